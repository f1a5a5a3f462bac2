package orders

import (
	"context"
	"log"
	"time"

	"github.com/woolstore/storefront/internal/apperr"
	"github.com/woolstore/storefront/internal/catalog"
)

// Catalog is the slice of the catalog repository the order flow needs:
// reads for pricing plus the atomic reservation primitives.
type Catalog interface {
	FindByID(ctx context.Context, id string) (catalog.Product, error)
	Reserve(ctx context.Context, orderID, productID string, qty int) error
	Reserved(ctx context.Context, orderID, productID string) (bool, error)
	Release(ctx context.Context, orderID string) error
}

type Store interface {
	Insert(ctx context.Context, o Order) error
	Get(ctx context.Context, id string) (Order, error)
	List(ctx context.Context) ([]Order, error)
	ListByCustomer(ctx context.Context, customerID string) ([]Order, error)
	UpdateStatus(ctx context.Context, id string, from, to Status) (bool, error)
}

type Customers interface {
	Exists(ctx context.Context, id string) (bool, error)
}

type Events interface {
	OrderCreated(ctx context.Context, o Order)
	OrderCancelled(ctx context.Context, o Order)
	OrderStatusChanged(ctx context.Context, o Order, from Status)
}

type Service struct {
	Catalog   Catalog
	Store     Store
	Customers Customers
	Events    Events // optional
}

// Create runs the order saga: validate, price from the live catalog,
// reserve stock line by line, persist. Any failure past the first
// reservation releases every hold taken for this order id before the
// error surfaces, so no partial reservation outlives the call.
//
// The caller mints orderID once and may retry the same id after a
// transient failure; reservations and the order insert are both
// idempotent on that id.
func (s *Service) Create(ctx context.Context, orderID, customerID string, lines []LineInput) (Order, error) {
	if orderID == "" || customerID == "" {
		return Order{}, apperr.New(apperr.KindValidation, "order id and customer id are required")
	}
	if len(lines) == 0 {
		return Order{}, apperr.New(apperr.KindValidation, "order has no lines")
	}
	seen := make(map[string]bool, len(lines))
	for _, ln := range lines {
		if ln.ProductID == "" || ln.Qty <= 0 {
			return Order{}, apperr.New(apperr.KindValidation, "each line needs a product id and a positive quantity")
		}
		if seen[ln.ProductID] {
			return Order{}, apperr.New(apperr.KindValidation, "duplicate line for product %s", ln.ProductID)
		}
		seen[ln.ProductID] = true
	}

	ok, err := s.Customers.Exists(ctx, customerID)
	if err != nil {
		return Order{}, err
	}
	if !ok {
		return Order{}, apperr.New(apperr.KindNotFound, "customer not found: %s", customerID)
	}

	// Price every line from current catalog state. Client-side totals are
	// never consulted; this sum is the one that gets persisted.
	order := Order{ID: orderID, CustomerID: customerID, Status: StatusPending}
	for _, ln := range lines {
		p, err := s.Catalog.FindByID(ctx, ln.ProductID)
		if err != nil {
			return Order{}, err
		}
		if ln.Qty > p.Stock {
			return Order{}, apperr.New(apperr.KindInsufficientStock,
				"insufficient stock for %s: have %d, need %d", p.Name, p.Stock, ln.Qty)
		}
		order.Lines = append(order.Lines, Line{
			ProductID:      ln.ProductID,
			Qty:            ln.Qty,
			UnitPriceCents: p.PriceCents,
		})
		order.TotalCents += p.PriceCents * ln.Qty
	}

	// Reserve each line. The pre-check above is advisory; the conditional
	// decrement inside Reserve is what actually guarantees no oversell.
	for _, ln := range order.Lines {
		if err := s.reserveLine(ctx, orderID, ln); err != nil {
			s.compensate(orderID)
			return Order{}, err
		}
	}

	if err := s.Store.Insert(ctx, order); err != nil {
		if apperr.IsKind(err, apperr.KindConflict) {
			// retry of a create that already committed
			return s.Store.Get(ctx, orderID)
		}
		s.compensate(orderID)
		return Order{}, err
	}

	persisted, err := s.Store.Get(ctx, orderID)
	if err != nil {
		return Order{}, err
	}
	if s.Events != nil {
		s.Events.OrderCreated(ctx, persisted)
	}
	return persisted, nil
}

// reserveLine reserves one line, reconciling ambiguous failures: a
// timed-out Reserve may still have committed, so before treating it as
// failed we read the reservation row back. Only a definitively absent
// hold propagates the error.
func (s *Service) reserveLine(ctx context.Context, orderID string, ln Line) error {
	err := s.Catalog.Reserve(ctx, orderID, ln.ProductID, ln.Qty)
	if err == nil {
		return nil
	}
	if apperr.Retryable(err) {
		rctx, cancel := detached(ctx)
		defer cancel()
		held, rerr := s.Catalog.Reserved(rctx, orderID, ln.ProductID)
		if rerr == nil && held {
			return nil
		}
	}
	return err
}

// compensate releases every hold taken for the order. It runs on a
// detached context: a caller disconnect mid-create must not be able to
// strand reservations.
func (s *Service) compensate(orderID string) {
	ctx, cancel := detached(context.Background())
	defer cancel()
	if err := s.Catalog.Release(ctx, orderID); err != nil {
		log.Printf("order %s: compensation failed, reservations may need manual release: %v", orderID, err)
	}
}

func detached(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
}

// Cancel is the terminal Pending -> Cancelled transition plus stock
// compensation. The conditional status flip decides the race; Release
// itself is idempotent.
func (s *Service) Cancel(ctx context.Context, orderID string) (Order, error) {
	o, err := s.Store.Get(ctx, orderID)
	if err != nil {
		return Order{}, err
	}
	ok, err := s.Store.UpdateStatus(ctx, orderID, StatusPending, StatusCancelled)
	if err != nil {
		return Order{}, err
	}
	if !ok {
		return Order{}, apperr.New(apperr.KindInvalidState,
			"order %s is %s, only Pending orders can be cancelled", orderID, o.Status)
	}
	if err := s.Catalog.Release(ctx, orderID); err != nil {
		// status already flipped; stock restoration must not be lost
		log.Printf("order %s: cancel stock restore failed: %v", orderID, err)
		return Order{}, err
	}
	cancelled, err := s.Store.Get(ctx, orderID)
	if err != nil {
		return Order{}, err
	}
	if s.Events != nil {
		s.Events.OrderCancelled(ctx, cancelled)
	}
	return cancelled, nil
}

// UpdateStatus applies a forward fulfilment transition.
func (s *Service) UpdateStatus(ctx context.Context, orderID string, to Status) (Order, error) {
	if !ValidStatus(to) {
		return Order{}, apperr.New(apperr.KindValidation, "unknown status %q", to)
	}
	o, err := s.Store.Get(ctx, orderID)
	if err != nil {
		return Order{}, err
	}
	if !CanTransition(o.Status, to) {
		return Order{}, apperr.New(apperr.KindInvalidTransition,
			"cannot move order %s from %s to %s", orderID, o.Status, to)
	}
	ok, err := s.Store.UpdateStatus(ctx, orderID, o.Status, to)
	if err != nil {
		return Order{}, err
	}
	if !ok {
		return Order{}, apperr.New(apperr.KindInvalidTransition,
			"order %s changed concurrently, transition to %s lost", orderID, to)
	}
	from := o.Status
	updated, err := s.Store.Get(ctx, orderID)
	if err != nil {
		return Order{}, err
	}
	if s.Events != nil {
		s.Events.OrderStatusChanged(ctx, updated, from)
	}
	return updated, nil
}

func (s *Service) Get(ctx context.Context, orderID string) (Order, error) {
	return s.Store.Get(ctx, orderID)
}

func (s *Service) List(ctx context.Context) ([]Order, error) {
	return s.Store.List(ctx)
}

func (s *Service) ListByCustomer(ctx context.Context, customerID string) ([]Order, error) {
	return s.Store.ListByCustomer(ctx, customerID)
}

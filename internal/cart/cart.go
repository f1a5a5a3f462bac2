// Package cart keeps per-user cart lines in a Store and derives every
// total from the live catalog. Nothing price-shaped is ever cached in
// the cart itself, so a repriced or restocked product is reflected the
// next time the cart is read.
package cart

import (
	"context"
	"sync"

	"github.com/woolstore/storefront/internal/apperr"
	"github.com/woolstore/storefront/internal/catalog"
)

type Catalog interface {
	FindByID(ctx context.Context, id string) (catalog.Product, error)
}

// Store holds only (product id -> qty); see MemoryStore and RedisStore.
type Store interface {
	Get(ctx context.Context, userID string) (map[string]int, error)
	SetQty(ctx context.Context, userID, productID string, qty int) error // qty <= 0 removes the line
	Clear(ctx context.Context, userID string) error
}

type SnapshotLine struct {
	Product       catalog.Product `json:"product"`
	Qty           int             `json:"qty"`
	SubtotalCents int             `json:"subtotal_cents"`
}

type Snapshot struct {
	Lines      []SnapshotLine `json:"lines"`
	TotalCents int            `json:"total_cents"`
}

type Aggregator struct {
	Store   Store
	Catalog Catalog
}

// Add increases a line by qty, refusing without mutating when the new
// quantity would exceed current stock.
func (a *Aggregator) Add(ctx context.Context, userID, productID string, qty int) error {
	if qty <= 0 {
		return apperr.New(apperr.KindValidation, "quantity must be positive")
	}
	p, err := a.Catalog.FindByID(ctx, productID)
	if err != nil {
		return err
	}
	lines, err := a.Store.Get(ctx, userID)
	if err != nil {
		return err
	}
	next := lines[productID] + qty
	if next > p.Stock {
		return apperr.New(apperr.KindInsufficientStock,
			"insufficient stock for %s: have %d, cart would hold %d", p.Name, p.Stock, next)
	}
	return a.Store.SetQty(ctx, userID, productID, next)
}

// SetQuantity pins a line to qty; zero removes it.
func (a *Aggregator) SetQuantity(ctx context.Context, userID, productID string, qty int) error {
	if qty < 0 {
		return apperr.New(apperr.KindValidation, "quantity must not be negative")
	}
	if qty == 0 {
		return a.Store.SetQty(ctx, userID, productID, 0)
	}
	p, err := a.Catalog.FindByID(ctx, productID)
	if err != nil {
		return err
	}
	if qty > p.Stock {
		return apperr.New(apperr.KindInsufficientStock,
			"insufficient stock for %s: have %d, requested %d", p.Name, p.Stock, qty)
	}
	return a.Store.SetQty(ctx, userID, productID, qty)
}

func (a *Aggregator) Remove(ctx context.Context, userID, productID string) error {
	return a.Store.SetQty(ctx, userID, productID, 0)
}

func (a *Aggregator) Clear(ctx context.Context, userID string) error {
	return a.Store.Clear(ctx, userID)
}

// Snapshot re-fetches every product so quantities meet current prices.
// Lines whose product has vanished from the catalog are skipped rather
// than failing the whole read.
func (a *Aggregator) Snapshot(ctx context.Context, userID string) (Snapshot, error) {
	lines, err := a.Store.Get(ctx, userID)
	if err != nil {
		return Snapshot{}, err
	}
	var snap Snapshot
	for pid, qty := range lines {
		p, err := a.Catalog.FindByID(ctx, pid)
		if apperr.IsKind(err, apperr.KindNotFound) {
			continue
		}
		if err != nil {
			return Snapshot{}, err
		}
		sub := p.PriceCents * qty
		snap.Lines = append(snap.Lines, SnapshotLine{Product: p, Qty: qty, SubtotalCents: sub})
		snap.TotalCents += sub
	}
	return snap, nil
}

// MemoryStore is the single-node Store, used directly in tests.
type MemoryStore struct {
	mu    sync.Mutex
	carts map[string]map[string]int
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{carts: make(map[string]map[string]int)}
}

func (m *MemoryStore) Get(_ context.Context, userID string) (map[string]int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[string]int, len(m.carts[userID]))
	for k, v := range m.carts[userID] {
		out[k] = v
	}
	return out, nil
}

func (m *MemoryStore) SetQty(_ context.Context, userID, productID string, qty int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if qty <= 0 {
		delete(m.carts[userID], productID)
		return nil
	}
	if m.carts[userID] == nil {
		m.carts[userID] = make(map[string]int)
	}
	m.carts[userID][productID] = qty
	return nil
}

func (m *MemoryStore) Clear(_ context.Context, userID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.carts, userID)
	return nil
}

package orders

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/woolstore/storefront/internal/apperr"
)

type Repo struct{ DB *pgxpool.Pool }

// Insert persists the order header and its lines in one transaction.
// A duplicate id reports conflict so a retrying caller can fall back
// to Get.
func (r *Repo) Insert(ctx context.Context, o Order) error {
	tx, err := r.DB.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	ct, err := tx.Exec(ctx, `
		INSERT INTO orders(id, customer_id, status, total_cents)
		VALUES ($1,$2,$3,$4)
		ON CONFLICT (id) DO NOTHING`,
		o.ID, o.CustomerID, o.Status, o.TotalCents)
	if err != nil {
		return err
	}
	if ct.RowsAffected() == 0 {
		return apperr.New(apperr.KindConflict, "order already exists: %s", o.ID)
	}

	for _, ln := range o.Lines {
		if _, err := tx.Exec(ctx, `
			INSERT INTO order_items(order_id, product_id, qty, unit_price_cents)
			VALUES ($1,$2,$3,$4)`,
			o.ID, ln.ProductID, ln.Qty, ln.UnitPriceCents); err != nil {
			return err
		}
	}
	return tx.Commit(ctx)
}

func (r *Repo) Get(ctx context.Context, id string) (Order, error) {
	var o Order
	err := r.DB.QueryRow(ctx, `
		SELECT id, customer_id, status, total_cents, created_at, updated_at
		FROM orders WHERE id=$1`, id).
		Scan(&o.ID, &o.CustomerID, &o.Status, &o.TotalCents, &o.CreatedAt, &o.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Order{}, apperr.New(apperr.KindNotFound, "order not found: %s", id)
	}
	if err != nil {
		return Order{}, err
	}

	rows, err := r.DB.Query(ctx, `
		SELECT product_id, qty, unit_price_cents
		FROM order_items WHERE order_id=$1`, id)
	if err != nil {
		return Order{}, err
	}
	defer rows.Close()
	for rows.Next() {
		var ln Line
		if err := rows.Scan(&ln.ProductID, &ln.Qty, &ln.UnitPriceCents); err != nil {
			return Order{}, err
		}
		o.Lines = append(o.Lines, ln)
	}
	return o, rows.Err()
}

func (r *Repo) List(ctx context.Context) ([]Order, error) {
	return r.list(ctx, `SELECT id, customer_id, status, total_cents, created_at, updated_at
		FROM orders ORDER BY created_at DESC`)
}

func (r *Repo) ListByCustomer(ctx context.Context, customerID string) ([]Order, error) {
	return r.list(ctx, `SELECT id, customer_id, status, total_cents, created_at, updated_at
		FROM orders WHERE customer_id=$1 ORDER BY created_at DESC`, customerID)
}

func (r *Repo) list(ctx context.Context, q string, args ...any) ([]Order, error) {
	rows, err := r.DB.Query(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Order
	for rows.Next() {
		var o Order
		if err := rows.Scan(&o.ID, &o.CustomerID, &o.Status, &o.TotalCents, &o.CreatedAt, &o.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, o)
	}
	return out, rows.Err()
}

// UpdateStatus flips status only when the current value still matches
// from, reporting whether a row changed. The condition is what keeps
// concurrent transitions (cancel vs ship) from both winning.
func (r *Repo) UpdateStatus(ctx context.Context, id string, from, to Status) (bool, error) {
	ct, err := r.DB.Exec(ctx, `
		UPDATE orders SET status=$3, updated_at=now()
		WHERE id=$1 AND status=$2`, id, from, to)
	if err != nil {
		return false, err
	}
	return ct.RowsAffected() == 1, nil
}

package catalog

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"

	"github.com/woolstore/storefront/internal/apperr"
)

// Reserve holds qty units of a product for an order: a conditional
// decrement (only if stock >= qty) plus a reservation row, in one
// transaction. The reservation row keyed on (order_id, product_id) makes
// the call idempotent: a retry after an ambiguous failure is a no-op if
// the first attempt actually committed. A row left behind as RELEASED by
// a compensated earlier attempt is re-armed instead, taking the stock
// again.
func (r *Repo) Reserve(ctx context.Context, orderID, productID string, qty int) error {
	if qty <= 0 {
		return apperr.New(apperr.KindValidation, "quantity must be positive for product %s", productID)
	}

	tx, err := r.DB.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	ct, err := tx.Exec(ctx, `
		INSERT INTO reservations(order_id, product_id, qty, status)
		VALUES ($1,$2,$3,'RESERVED')
		ON CONFLICT (order_id, product_id) DO NOTHING`,
		orderID, productID, qty)
	if err != nil {
		return err
	}
	if ct.RowsAffected() == 0 {
		// A row from an earlier attempt for this order. A live hold makes
		// this call a no-op; a RELEASED one was compensated before a retry
		// and must be re-armed so the decrement below runs again.
		ct, err = tx.Exec(ctx, `
			UPDATE reservations SET status='RESERVED', qty=$3
			WHERE order_id=$1 AND product_id=$2 AND status='RELEASED'`,
			orderID, productID, qty)
		if err != nil {
			return err
		}
		if ct.RowsAffected() == 0 {
			return nil
		}
	}

	ct, err = tx.Exec(ctx, `
		UPDATE products SET stock = stock - $2, updated_at=now()
		WHERE id=$1 AND stock >= $2`,
		productID, qty)
	if err != nil {
		return err
	}
	if ct.RowsAffected() == 0 {
		var stock int
		err := tx.QueryRow(ctx, `SELECT stock FROM products WHERE id=$1`, productID).Scan(&stock)
		if errors.Is(err, pgx.ErrNoRows) {
			return apperr.New(apperr.KindNotFound, "product not found: %s", productID)
		}
		if err != nil {
			return err
		}
		return apperr.New(apperr.KindInsufficientStock,
			"insufficient stock for product %s: have %d, need %d", productID, stock, qty)
	}

	return tx.Commit(ctx)
}

// Reserved reports whether a RESERVED row exists for (orderID, productID).
// Used as the read-back after a Reserve call failed ambiguously (timeout):
// a present row means the decrement committed.
func (r *Repo) Reserved(ctx context.Context, orderID, productID string) (bool, error) {
	var n int
	err := r.DB.QueryRow(ctx, `
		SELECT COUNT(*) FROM reservations
		WHERE order_id=$1 AND product_id=$2 AND status='RESERVED'`,
		orderID, productID).Scan(&n)
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// Release compensates every RESERVED row of an order: stock is added back
// and the rows flip to RELEASED, all in one transaction. Safe to call
// repeatedly; released rows are not touched again.
func (r *Repo) Release(ctx context.Context, orderID string) error {
	tx, err := r.DB.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	rows, err := tx.Query(ctx, `
		SELECT product_id, qty FROM reservations
		WHERE order_id=$1 AND status='RESERVED'`, orderID)
	if err != nil {
		return err
	}
	type rec struct {
		pid string
		qty int
	}
	var recs []rec
	for rows.Next() {
		var x rec
		if err := rows.Scan(&x.pid, &x.qty); err != nil {
			rows.Close()
			return err
		}
		recs = append(recs, x)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return err
	}

	for _, x := range recs {
		if _, err := tx.Exec(ctx, `UPDATE products SET stock = stock + $2, updated_at=now() WHERE id=$1`, x.pid, x.qty); err != nil {
			return err
		}
	}
	if _, err := tx.Exec(ctx, `UPDATE reservations SET status='RELEASED' WHERE order_id=$1 AND status='RESERVED'`, orderID); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

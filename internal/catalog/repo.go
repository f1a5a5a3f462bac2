package catalog

import (
	"context"
	"errors"
	"strconv"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/woolstore/storefront/internal/apperr"
)

type Repo struct{ DB *pgxpool.Pool }

const productCols = `id, name, description, price_cents, stock, category, image_url, created_at, updated_at`

func scanProduct(row pgx.Row) (Product, error) {
	var p Product
	err := row.Scan(&p.ID, &p.Name, &p.Description, &p.PriceCents, &p.Stock,
		&p.Category, &p.ImageURL, &p.CreatedAt, &p.UpdatedAt)
	return p, err
}

func (r *Repo) Create(ctx context.Context, p Product) (Product, error) {
	if p.Name == "" {
		return Product{}, apperr.New(apperr.KindValidation, "product name is required")
	}
	if p.PriceCents < 0 || p.Stock < 0 {
		return Product{}, apperr.New(apperr.KindValidation, "price and stock must be non-negative")
	}
	p.ID = uuid.NewString()
	row := r.DB.QueryRow(ctx, `
		INSERT INTO products(id, name, description, price_cents, stock, category, image_url)
		VALUES ($1,$2,$3,$4,$5,$6,$7)
		RETURNING `+productCols,
		p.ID, p.Name, p.Description, p.PriceCents, p.Stock, p.Category, p.ImageURL)
	return scanProduct(row)
}

func (r *Repo) FindByID(ctx context.Context, id string) (Product, error) {
	row := r.DB.QueryRow(ctx, `SELECT `+productCols+` FROM products WHERE id=$1`, id)
	p, err := scanProduct(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return Product{}, apperr.New(apperr.KindNotFound, "product not found: %s", id)
	}
	return p, err
}

// Update rewrites the descriptive fields only. Stock never moves through
// here; all stock mutation goes through the atomic paths in reserve.go
// and AdjustStock.
func (r *Repo) Update(ctx context.Context, p Product) (Product, error) {
	if p.PriceCents < 0 {
		return Product{}, apperr.New(apperr.KindValidation, "price must be non-negative")
	}
	row := r.DB.QueryRow(ctx, `
		UPDATE products
		SET name=$2, description=$3, price_cents=$4, category=$5, image_url=$6, updated_at=now()
		WHERE id=$1
		RETURNING `+productCols,
		p.ID, p.Name, p.Description, p.PriceCents, p.Category, p.ImageURL)
	out, err := scanProduct(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return Product{}, apperr.New(apperr.KindNotFound, "product not found: %s", p.ID)
	}
	return out, err
}

func (r *Repo) Delete(ctx context.Context, id string) error {
	ct, err := r.DB.Exec(ctx, `DELETE FROM products WHERE id=$1`, id)
	if err != nil {
		return err
	}
	if ct.RowsAffected() == 0 {
		return apperr.New(apperr.KindNotFound, "product not found: %s", id)
	}
	return nil
}

func (r *Repo) Search(ctx context.Context, f Filter) ([]Product, error) {
	q := `SELECT ` + productCols + ` FROM products WHERE 1=1`
	args := []any{}
	if f.Category != "" {
		args = append(args, f.Category)
		q += ` AND category=$1`
	}
	if f.Query != "" {
		args = append(args, "%"+f.Query+"%")
		n := strconv.Itoa(len(args))
		q += ` AND (name ILIKE $` + n + ` OR description ILIKE $` + n + `)`
	}
	q += ` ORDER BY name`

	rows, err := r.DB.Query(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Product
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// AdjustStock applies a delta atomically, refusing to take stock negative.
// Used for admin restock; order flows use Reserve/Release.
func (r *Repo) AdjustStock(ctx context.Context, id string, delta int) (Product, error) {
	row := r.DB.QueryRow(ctx, `
		UPDATE products SET stock = stock + $2, updated_at=now()
		WHERE id=$1 AND stock + $2 >= 0
		RETURNING `+productCols, id, delta)
	p, err := scanProduct(row)
	if errors.Is(err, pgx.ErrNoRows) {
		// either unknown id or the delta would go negative
		if _, ferr := r.FindByID(ctx, id); ferr != nil {
			return Product{}, ferr
		}
		return Product{}, apperr.New(apperr.KindInsufficientStock, "stock adjustment below zero for product %s", id)
	}
	return p, err
}

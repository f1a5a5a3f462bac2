package orders

import "time"

type Order struct {
	ID         string    `json:"id"`
	CustomerID string    `json:"customer_id"`
	Status     Status    `json:"status"`
	TotalCents int       `json:"total_cents"`
	Lines      []Line    `json:"lines"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// Line is immutable after the order is created; UnitPriceCents is the
// catalog price captured at order time, unaffected by later repricing.
type Line struct {
	ProductID      string `json:"product_id"`
	Qty            int    `json:"qty"`
	UnitPriceCents int    `json:"unit_price_cents"`
}

type LineInput struct {
	ProductID string `json:"product_id"`
	Qty       int    `json:"qty"`
}

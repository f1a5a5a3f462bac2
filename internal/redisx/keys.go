package redisx

import "time"

const (
	// Session record: session:{token} -> JSON session
	KeySession = "session:%s"

	// Cart hash: cart:{user_id}, field product_id -> qty
	KeyCart = "cart:%s"

	// Cache of order status for fast GETs: order_status:{order_id} -> {"status": "..."}
	KeyOrderStatus = "order_status:%s"

	// Dedup event processing: dedup:{service}:{event_id}
	KeyDedup = "dedup:%s:%s"
)

var (
	TTLSession     = time.Hour // fixed expiry, matched by the cookie MaxAge
	TTLCart        = 7 * 24 * time.Hour
	TTLStatusCache = 5 * time.Minute
	TTLDedup       = 48 * time.Hour
)

package cache

import "time"

const (
	// Idempotent placement: idem:order:place:{external_id} -> order_id
	KeyIdemOrderPlace = "idem:order:place:%s"

	// Product read cache: product:slug:{slug} -> product JSON
	KeyProductSlug = "product:slug:%s"

	// Consumer dedup: dedup:{service}:{event_id}
	KeyDedup = "dedup:%s:%s"
)

var (
	TTLIdempotency  = 24 * time.Hour
	TTLProductCache = 5 * time.Minute
	TTLDedup        = 48 * time.Hour
)

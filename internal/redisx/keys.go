package redisx

import "time"

const (
	// Bearer session: session:{token} -> user_id
	KeySession = "session:%s"

	// Payment callback dedup: idem:payment:cb:{reference} -> 1
	// Fast path only; the payment_attempts row lock is the truth.
	KeyPaymentCallback = "idem:payment:cb:%s"

	// Dedup event processing: dedup:{service}:{event_id}
	KeyDedup = "dedup:%s:%s"
)

var (
	TTLCallbackDedup = 48 * time.Hour
	TTLDedup         = 48 * time.Hour
)

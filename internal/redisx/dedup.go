package redisx

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// PaymentDedup short-circuits duplicate payment callbacks. Best-effort: a
// redis miss only means the DB-level idempotency check does the work.
type PaymentDedup struct{ Client *redis.Client }

func (d *PaymentDedup) Seen(ctx context.Context, reference string) bool {
	ok, err := Exists(ctx, d.Client, fmt.Sprintf(KeyPaymentCallback, reference))
	return err == nil && ok
}

func (d *PaymentDedup) Mark(ctx context.Context, reference string) {
	_ = d.Client.Set(ctx, fmt.Sprintf(KeyPaymentCallback, reference), "1", TTLCallbackDedup).Err()
}

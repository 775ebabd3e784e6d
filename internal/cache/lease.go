package cache

import (
	"context"
	"time"
)

// AcquireLease claims name for ttl on behalf of owner. It reports false when
// another owner holds the lease. Without Redis every caller gets the lease.
func AcquireLease(ctx context.Context, name, owner string, ttl time.Duration) (bool, error) {
	if client == nil {
		return true, nil
	}
	return client.SetNX(ctx, LeaseKey(name), owner, ttl).Result()
}

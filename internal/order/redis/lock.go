package redis

import (
	"context"
	"os"
	"strconv"
	"time"

	"github.com/go-redis/redis/v8"
)

// Locks serializes payment-link requests per order across service instances:
// only one in-flight provider call per order at a time, so a double-clicked
// checkout cannot mint two links.
type Locks struct {
	Client *redis.Client
}

func NewLocks(client *redis.Client) *Locks {
	return &Locks{Client: client}
}

func (r *Locks) lockTTL() time.Duration {
	defaultTTL := 30 * time.Second

	ttlStr := os.Getenv("PAYMENT_LINK_LOCK_SECONDS")
	if ttlStr == "" {
		return defaultTTL
	}
	ttlSec, err := strconv.Atoi(ttlStr)
	if err != nil || ttlSec <= 0 {
		return defaultTTL
	}
	return time.Duration(ttlSec) * time.Second
}

// LockPaymentLink acquires the per-order lock; false means another request
// for the same order is already in flight.
func (r *Locks) LockPaymentLink(orderID string) (bool, error) {
	key := "payment_link_lock:" + orderID
	return r.Client.SetNX(context.Background(), key, orderID, r.lockTTL()).Result()
}

// UnlockPaymentLink releases the lock. Missing keys are fine; the TTL may
// already have reclaimed it.
func (r *Locks) UnlockPaymentLink(orderID string) error {
	key := "payment_link_lock:" + orderID
	err := r.Client.Del(context.Background(), key).Err()
	if err == redis.Nil {
		return nil
	}
	return err
}

// Package idempotency derives checkout keys and defines the store that
// remembers them.
package idempotency

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// InFlight is the value held by a key whose checkout has not finished yet.
const InFlight = "in-flight"

// Store remembers idempotency keys for a bounded time.
type Store interface {
	// Claim atomically takes key for ttl. When the key is already held it
	// returns the existing value and false.
	Claim(ctx context.Context, key string, ttl time.Duration) (existing string, claimed bool, err error)
	// Complete stores the payment id that answered the key.
	Complete(ctx context.Context, key, paymentID string, ttl time.Duration) error
	// Release forgets key so the request can be made again.
	Release(ctx context.Context, key string) error
}

// Key identifies a checkout attempt: same contributor, target, amount and
// tip inside the same window collide.
func Key(contributor uuid.UUID, target string, amount, tip int64, now time.Time, window time.Duration) string {
	var bucket int64
	if window > 0 {
		bucket = now.UnixNano() / int64(window)
	}
	sum := sha256.Sum256([]byte(fmt.Sprintf("%s|%s|%d|%d|%d", contributor, target, amount, tip, bucket)))
	return "checkout-" + hex.EncodeToString(sum[:])
}

package subscriptions

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// LedgerCache is a read-through cache for derived session ledgers. The
// database COUNT stays authoritative; a short TTL bounds staleness and
// mutations invalidate eagerly.
type LedgerCache struct {
	client *redis.Client
	ttl    time.Duration
}

// NewLedgerCache creates the cache. A nil client disables caching.
func NewLedgerCache(client *redis.Client, ttl time.Duration) *LedgerCache {
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	return &LedgerCache{client: client, ttl: ttl}
}

func ledgerKey(id uuid.UUID) string {
	return "subscription:ledger:" + id.String()
}

// Get returns the cached ledger, or false on a miss. Cache errors degrade
// to a miss so Redis outages never break reads.
func (c *LedgerCache) Get(ctx context.Context, id uuid.UUID) (*Ledger, bool) {
	if c == nil || c.client == nil {
		return nil, false
	}
	data, err := c.client.Get(ctx, ledgerKey(id)).Bytes()
	if err != nil {
		return nil, false
	}
	var ledger Ledger
	if err := json.Unmarshal(data, &ledger); err != nil {
		return nil, false
	}
	return &ledger, true
}

// Set stores the ledger with the configured TTL.
func (c *LedgerCache) Set(ctx context.Context, ledger *Ledger) error {
	if c == nil || c.client == nil {
		return nil
	}
	data, err := json.Marshal(ledger)
	if err != nil {
		return fmt.Errorf("subscriptions: marshal ledger: %w", err)
	}
	if err := c.client.Set(ctx, ledgerKey(ledger.SubscriptionID), data, c.ttl).Err(); err != nil {
		return fmt.Errorf("subscriptions: cache ledger: %w", err)
	}
	return nil
}

// Invalidate drops the cached ledger after a mutation.
func (c *LedgerCache) Invalidate(ctx context.Context, id uuid.UUID) error {
	if c == nil || c.client == nil {
		return nil
	}
	if err := c.client.Del(ctx, ledgerKey(id)).Err(); err != nil && !errors.Is(err, redis.Nil) {
		return fmt.Errorf("subscriptions: invalidate ledger: %w", err)
	}
	return nil
}

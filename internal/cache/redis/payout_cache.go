package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/alanyoungcy/ctmarket/internal/domain"
)

// PayoutCache implements domain.PayoutCache. Payout vectors are immutable
// once reported, so entries carry no TTL.
//
// Key schema:
//
//	ctmarket:payouts:{conditionID} - JSON array of numerators
type PayoutCache struct {
	rdb *redis.Client
}

// NewPayoutCache creates a PayoutCache backed by the given Client.
func NewPayoutCache(c *Client) *PayoutCache {
	return &PayoutCache{rdb: c.Client}
}

func payoutKey(id domain.ConditionID) string { return "ctmarket:payouts:" + id.Hex() }

// Set stores the reported payout vector for a condition.
func (pc *PayoutCache) Set(ctx context.Context, id domain.ConditionID, numerators []uint64) error {
	data, err := json.Marshal(numerators)
	if err != nil {
		return fmt.Errorf("redis: marshal payouts %s: %w", id.Hex(), err)
	}
	if err := pc.rdb.Set(ctx, payoutKey(id), data, 0).Err(); err != nil {
		return fmt.Errorf("redis: set payouts %s: %w", id.Hex(), err)
	}
	return nil
}

// Get retrieves the payout vector for a condition. It returns
// domain.ErrNotFound when no vector has been cached.
func (pc *PayoutCache) Get(ctx context.Context, id domain.ConditionID) ([]uint64, error) {
	data, err := pc.rdb.Get(ctx, payoutKey(id)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("redis: get payouts %s: %w", id.Hex(), err)
	}

	var numerators []uint64
	if err := json.Unmarshal(data, &numerators); err != nil {
		return nil, fmt.Errorf("redis: unmarshal payouts %s: %w", id.Hex(), err)
	}
	return numerators, nil
}

// Compile-time interface check.
var _ domain.PayoutCache = (*PayoutCache)(nil)

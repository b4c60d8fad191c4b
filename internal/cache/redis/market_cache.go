package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/redis/go-redis/v9"

	"github.com/alanyoungcy/ctmarket/internal/domain"
)

const marketTTL = 5 * time.Minute

// MarketCache implements domain.MarketCache using Redis hashes with JSON-
// serialized market records and a secondary condition-to-market index.
//
// Key schema:
//
//	ctmarket:market:{address}         - hash with field "data" containing JSON
//	ctmarket:market:cond:{condition}  - string value of the market address
type MarketCache struct {
	rdb *redis.Client
}

// NewMarketCache creates a MarketCache backed by the given Client.
func NewMarketCache(c *Client) *MarketCache {
	return &MarketCache{rdb: c.Client}
}

func marketKey(addr common.Address) string { return "ctmarket:market:" + addr.Hex() }
func marketCondKey(id domain.ConditionID) string {
	return "ctmarket:market:cond:" + id.Hex()
}

// Set stores a market record with a 5-minute TTL and indexes it by its
// condition id.
func (mc *MarketCache) Set(ctx context.Context, m domain.Market) error {
	data, err := json.Marshal(m)
	if err != nil {
		return fmt.Errorf("redis: marshal market %s: %w", m.Address.Hex(), err)
	}

	key := marketKey(m.Address)

	pipe := mc.rdb.TxPipeline()
	pipe.HSet(ctx, key, "data", data)
	pipe.Expire(ctx, key, marketTTL)
	pipe.Set(ctx, marketCondKey(m.ConditionID), m.Address.Hex(), marketTTL)

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis: set market %s: %w", m.Address.Hex(), err)
	}
	return nil
}

// Get retrieves a market record by address. It returns domain.ErrNotFound
// when the key does not exist.
func (mc *MarketCache) Get(ctx context.Context, addr common.Address) (domain.Market, error) {
	data, err := mc.rdb.HGet(ctx, marketKey(addr), "data").Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return domain.Market{}, domain.ErrNotFound
		}
		return domain.Market{}, fmt.Errorf("redis: get market %s: %w", addr.Hex(), err)
	}

	var m domain.Market
	if err := json.Unmarshal(data, &m); err != nil {
		return domain.Market{}, fmt.Errorf("redis: unmarshal market %s: %w", addr.Hex(), err)
	}
	return m, nil
}

// GetByCondition looks up a market by its condition id.
func (mc *MarketCache) GetByCondition(ctx context.Context, id domain.ConditionID) (domain.Market, error) {
	addr, err := mc.rdb.Get(ctx, marketCondKey(id)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return domain.Market{}, domain.ErrNotFound
		}
		return domain.Market{}, fmt.Errorf("redis: get market by condition %s: %w", id.Hex(), err)
	}
	return mc.Get(ctx, common.HexToAddress(addr))
}

// Invalidate removes a market record and its condition index entry.
func (mc *MarketCache) Invalidate(ctx context.Context, addr common.Address) error {
	m, err := mc.Get(ctx, addr)
	if err != nil && !errors.Is(err, domain.ErrNotFound) {
		return fmt.Errorf("redis: invalidate market %s: %w", addr.Hex(), err)
	}

	pipe := mc.rdb.TxPipeline()
	pipe.Del(ctx, marketKey(addr))
	if err == nil {
		pipe.Del(ctx, marketCondKey(m.ConditionID))
	}

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis: invalidate market %s: %w", addr.Hex(), err)
	}
	return nil
}

// Compile-time interface check.
var _ domain.MarketCache = (*MarketCache)(nil)

package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"github.com/alanyoungcy/ctmarket/internal/domain"
	"github.com/alanyoungcy/ctmarket/internal/engine"
	"github.com/alanyoungcy/ctmarket/internal/notify"
)

// MarketService wraps the market factory and the per-market liquidity
// operations. Market records are written through to Postgres and cached in
// Redis after the in-memory commit.
type MarketService struct {
	factory    *engine.MarketFactory
	markets    domain.MarketStore
	cache      domain.MarketCache
	audit      domain.AuditStore
	notifier   *notify.Notifier
	defaultFee *uint256.Int
	logger     *slog.Logger
}

// NewMarketService creates a MarketService with all dependencies. defaultFee
// is used when Create is called without an explicit swap fee.
func NewMarketService(
	factory *engine.MarketFactory,
	markets domain.MarketStore,
	cache domain.MarketCache,
	audit domain.AuditStore,
	notifier *notify.Notifier,
	defaultFee *uint256.Int,
	logger *slog.Logger,
) *MarketService {
	return &MarketService{
		factory:    factory,
		markets:    markets,
		cache:      cache,
		audit:      audit,
		notifier:   notifier,
		defaultFee: defaultFee,
		logger:     logger.With(slog.String("component", "market_service")),
	}
}

// Create builds a market over a prepared condition whose outcome wrappers are
// all registered, persists the record and primes the cache. A nil swapFee
// falls back to the configured default.
func (s *MarketService) Create(ctx context.Context, name, symbol string, conditionID domain.ConditionID, collateralToken common.Address, swapFee *uint256.Int) (domain.Market, error) {
	if swapFee == nil {
		swapFee = s.defaultFee
	}

	rec, err := s.factory.Create(name, symbol, conditionID, collateralToken, swapFee)
	if err != nil {
		return domain.Market{}, fmt.Errorf("market_service: create: %w", err)
	}

	if err := s.markets.Insert(ctx, rec); err != nil && !errors.Is(err, domain.ErrAlreadyExists) {
		s.logger.ErrorContext(ctx, "market insert failed",
			slog.String("market", rec.Address.Hex()),
			slog.String("error", err.Error()),
		)
	}
	if cacheErr := s.cache.Set(ctx, rec); cacheErr != nil {
		s.logger.WarnContext(ctx, "market cache set failed",
			slog.String("market", rec.Address.Hex()),
			slog.String("error", cacheErr.Error()),
		)
	}

	s.auditLog(ctx, "market.created", map[string]any{
		"market":       rec.Address.Hex(),
		"symbol":       symbol,
		"condition_id": conditionID.Hex(),
		"collateral":   collateralToken.Hex(),
		"pool_id":      rec.PoolID.Hex(),
	})
	s.notifyEvent(ctx, notify.EventMarketCreated, "Market created",
		fmt.Sprintf("%s (%s) over condition %s", name, symbol, conditionID.Hex()))

	return rec, nil
}

// Get returns the market record, checking the cache, then the engine, then
// the persistent store.
func (s *MarketService) Get(ctx context.Context, addr common.Address) (domain.Market, error) {
	if rec, err := s.cache.Get(ctx, addr); err == nil {
		return rec, nil
	}

	if m, err := s.factory.Market(addr); err == nil {
		rec := m.Record()
		s.backfill(ctx, rec)
		return rec, nil
	}

	rec, err := s.markets.GetByAddress(ctx, addr)
	if err != nil {
		return domain.Market{}, fmt.Errorf("market_service: get %s: %w", addr.Hex(), err)
	}
	s.backfill(ctx, rec)
	return rec, nil
}

// List returns every live market from the engine.
func (s *MarketService) List() []domain.Market {
	return s.factory.Markets()
}

// Count returns the number of markets in the persistent store.
func (s *MarketService) Count(ctx context.Context) (int64, error) {
	count, err := s.markets.Count(ctx)
	if err != nil {
		return 0, fmt.Errorf("market_service: count: %w", err)
	}
	return count, nil
}

// PoolTokens returns the market pool's token list and balances.
func (s *MarketService) PoolTokens(addr common.Address) ([]common.Address, []*uint256.Int, error) {
	m, err := s.factory.Market(addr)
	if err != nil {
		return nil, nil, fmt.Errorf("market_service: pool tokens %s: %w", addr.Hex(), err)
	}
	tokens, balances, err := s.factory.PoolTokens(m.PoolID())
	if err != nil {
		return nil, nil, fmt.Errorf("market_service: pool tokens %s: %w", addr.Hex(), err)
	}
	return tokens, balances, nil
}

// SplitJoin splits the caller's collateral through the market's condition and
// joins the liquidity pool with the resulting legs. isInit selects the
// pool-seeding join; otherwise the join is bounded below by minBPTOut. It
// returns the BPT minted to the caller.
func (s *MarketService) SplitJoin(ctx context.Context, addr, caller common.Address, amount, minBPTOut *uint256.Int, isInit bool) (*uint256.Int, error) {
	m, err := s.factory.Market(addr)
	if err != nil {
		return nil, fmt.Errorf("market_service: split-join %s: %w", addr.Hex(), err)
	}

	bptOut, err := m.SplitCollateralAndJoin(caller, amount, minBPTOut, isInit)
	if err != nil {
		return nil, fmt.Errorf("market_service: split-join %s: %w", addr.Hex(), err)
	}

	s.auditLog(ctx, "market.split_join", map[string]any{
		"market":  addr.Hex(),
		"caller":  caller.Hex(),
		"amount":  amount.Dec(),
		"init":    isInit,
		"bpt_out": bptOut.Dec(),
	})
	return bptOut, nil
}

// ExitMerge exits the pool with the caller's BPT and merges the outcome legs
// back into collateral.
func (s *MarketService) ExitMerge(ctx context.Context, addr, caller common.Address, bptAmount *uint256.Int, minAmountsOut []*uint256.Int) error {
	m, err := s.factory.Market(addr)
	if err != nil {
		return fmt.Errorf("market_service: exit-merge %s: %w", addr.Hex(), err)
	}

	// An omitted minimum means no slippage bound.
	if len(minAmountsOut) == 0 {
		tokens, _, err := s.factory.PoolTokens(m.PoolID())
		if err != nil {
			return fmt.Errorf("market_service: exit-merge %s: %w", addr.Hex(), err)
		}
		minAmountsOut = make([]*uint256.Int, len(tokens))
		for i := range minAmountsOut {
			minAmountsOut[i] = new(uint256.Int)
		}
	}

	if err := m.ExitAndMergeCollateral(caller, bptAmount, minAmountsOut); err != nil {
		return fmt.Errorf("market_service: exit-merge %s: %w", addr.Hex(), err)
	}

	s.auditLog(ctx, "market.exit_merge", map[string]any{
		"market": addr.Hex(),
		"caller": caller.Hex(),
		"bpt_in": bptAmount.Dec(),
	})
	return nil
}

// Redeem converts the caller's wrapped outcome balances into collateral per
// the reported payout vector. It returns the payout.
func (s *MarketService) Redeem(ctx context.Context, addr, caller common.Address) (*uint256.Int, error) {
	m, err := s.factory.Market(addr)
	if err != nil {
		return nil, fmt.Errorf("market_service: redeem %s: %w", addr.Hex(), err)
	}

	payout, err := m.RedeemConditionalTokens(caller)
	if err != nil {
		return nil, fmt.Errorf("market_service: redeem %s: %w", addr.Hex(), err)
	}

	s.auditLog(ctx, "market.redeemed", map[string]any{
		"market": addr.Hex(),
		"caller": caller.Hex(),
		"payout": payout.Dec(),
	})
	return payout, nil
}

func (s *MarketService) backfill(ctx context.Context, rec domain.Market) {
	if err := s.cache.Set(ctx, rec); err != nil {
		s.logger.WarnContext(ctx, "market cache set failed",
			slog.String("market", rec.Address.Hex()),
			slog.String("error", err.Error()),
		)
	}
}

func (s *MarketService) auditLog(ctx context.Context, event string, detail map[string]any) {
	if err := s.audit.Log(ctx, event, detail); err != nil {
		s.logger.WarnContext(ctx, "audit log failed",
			slog.String("event", event),
			slog.String("error", err.Error()),
		)
	}
}

func (s *MarketService) notifyEvent(ctx context.Context, event, title, message string) {
	if s.notifier == nil {
		return
	}
	if err := s.notifier.Notify(ctx, event, title, message); err != nil {
		s.logger.WarnContext(ctx, "notify failed",
			slog.String("event", event),
			slog.String("error", err.Error()),
		)
	}
}

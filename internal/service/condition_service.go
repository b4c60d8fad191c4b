// Package service orchestrates the in-memory engine with persistence, caching
// and notifications. The engine commit always happens first; store and cache
// writes follow it and never gate the result.
package service

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"github.com/alanyoungcy/ctmarket/internal/domain"
	"github.com/alanyoungcy/ctmarket/internal/engine"
)

// ConditionService wraps the position ledger: condition preparation, the
// split/merge/redeem algebra, and balance queries. Condition records are
// written through to Postgres after the in-memory commit.
type ConditionService struct {
	ledger     *engine.Ledger
	conditions domain.ConditionStore
	payouts    domain.PayoutCache
	audit      domain.AuditStore
	logger     *slog.Logger
}

// NewConditionService creates a ConditionService with all dependencies.
func NewConditionService(
	ledger *engine.Ledger,
	conditions domain.ConditionStore,
	payouts domain.PayoutCache,
	audit domain.AuditStore,
	logger *slog.Logger,
) *ConditionService {
	return &ConditionService{
		ledger:     ledger,
		conditions: conditions,
		payouts:    payouts,
		audit:      audit,
		logger:     logger.With(slog.String("component", "condition_service")),
	}
}

// Prepare registers a condition for (oracle, questionID, outcomeSlotCount)
// and persists the record.
func (s *ConditionService) Prepare(ctx context.Context, oracle common.Address, questionID domain.QuestionID, outcomeSlotCount int) (domain.Condition, error) {
	id, err := s.ledger.PrepareCondition(oracle, questionID, outcomeSlotCount)
	if err != nil {
		return domain.Condition{}, fmt.Errorf("condition_service: prepare: %w", err)
	}

	cond, err := s.ledger.Condition(id)
	if err != nil {
		return domain.Condition{}, fmt.Errorf("condition_service: read back %s: %w", id.Hex(), err)
	}

	s.persist(ctx, cond)
	s.auditLog(ctx, "condition.prepared", map[string]any{
		"condition_id":       id.Hex(),
		"oracle":             oracle.Hex(),
		"question_id":        questionID.Hex(),
		"outcome_slot_count": outcomeSlotCount,
	})

	return cond, nil
}

// Get returns the condition, preferring the in-memory engine and falling back
// to the persistent store.
func (s *ConditionService) Get(ctx context.Context, id domain.ConditionID) (domain.Condition, error) {
	cond, err := s.ledger.Condition(id)
	if err == nil {
		return cond, nil
	}

	cond, err = s.conditions.GetByID(ctx, id)
	if err != nil {
		return domain.Condition{}, fmt.Errorf("condition_service: get %s: %w", id.Hex(), err)
	}
	return cond, nil
}

// List returns prepared conditions from the persistent store.
func (s *ConditionService) List(ctx context.Context, limit int) ([]domain.Condition, error) {
	conds, err := s.conditions.List(ctx, limit)
	if err != nil {
		return nil, fmt.Errorf("condition_service: list: %w", err)
	}
	return conds, nil
}

// Payouts returns the reported payout vector for a resolved condition,
// checking the cache first.
func (s *ConditionService) Payouts(ctx context.Context, id domain.ConditionID) ([]uint64, error) {
	if nums, err := s.payouts.Get(ctx, id); err == nil {
		return nums, nil
	}

	cond, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if !cond.Resolved() {
		return nil, fmt.Errorf("condition_service: payouts %s: %w", id.Hex(), domain.ErrPayoutsNotReported)
	}

	if cacheErr := s.payouts.Set(ctx, id, cond.PayoutNumerators); cacheErr != nil {
		s.logger.WarnContext(ctx, "payout cache set failed",
			slog.String("condition_id", id.Hex()),
			slog.String("error", cacheErr.Error()),
		)
	}
	return cond.PayoutNumerators, nil
}

// CollectionID folds (conditionID, indexSet) into parent.
func (s *ConditionService) CollectionID(parent domain.CollectionID, conditionID domain.ConditionID, indexSet domain.IndexSet) (domain.CollectionID, error) {
	id, err := s.ledger.GetCollectionID(parent, conditionID, indexSet)
	if err != nil {
		return domain.CollectionID{}, fmt.Errorf("condition_service: collection id: %w", err)
	}
	return id, nil
}

// PositionID derives the position id for a collateral token and collection.
func (s *ConditionService) PositionID(collateralToken common.Address, collectionID domain.CollectionID) domain.PositionID {
	return s.ledger.GetPositionID(collateralToken, collectionID)
}

// BalanceOf returns acct's balance of a position.
func (s *ConditionService) BalanceOf(acct common.Address, id domain.PositionID) *uint256.Int {
	return s.ledger.BalanceOf(acct, id)
}

// BatchBalanceOf returns balances for parallel (account, position) pairs.
func (s *ConditionService) BatchBalanceOf(accts []common.Address, ids []domain.PositionID) ([]*uint256.Int, error) {
	out, err := s.ledger.BatchBalanceOf(accts, ids)
	if err != nil {
		return nil, fmt.Errorf("condition_service: batch balance: %w", err)
	}
	return out, nil
}

// Split moves amount from a parent position (or raw collateral at the root)
// into the partition's child positions.
func (s *ConditionService) Split(ctx context.Context, caller, collateralToken common.Address, parent domain.CollectionID, conditionID domain.ConditionID, partition []domain.IndexSet, amount *uint256.Int) error {
	if err := s.ledger.SplitPosition(caller, collateralToken, parent, conditionID, partition, amount); err != nil {
		return fmt.Errorf("condition_service: split: %w", err)
	}

	s.auditLog(ctx, "position.split", map[string]any{
		"caller":       caller.Hex(),
		"collateral":   collateralToken.Hex(),
		"condition_id": conditionID.Hex(),
		"amount":       amount.Dec(),
	})
	return nil
}

// Merge is the inverse of Split.
func (s *ConditionService) Merge(ctx context.Context, caller, collateralToken common.Address, parent domain.CollectionID, conditionID domain.ConditionID, partition []domain.IndexSet, amount *uint256.Int) error {
	if err := s.ledger.MergePositions(caller, collateralToken, parent, conditionID, partition, amount); err != nil {
		return fmt.Errorf("condition_service: merge: %w", err)
	}

	s.auditLog(ctx, "position.merged", map[string]any{
		"caller":       caller.Hex(),
		"collateral":   collateralToken.Hex(),
		"condition_id": conditionID.Hex(),
		"amount":       amount.Dec(),
	})
	return nil
}

// Redeem burns the caller's positions for the given index sets and pays out
// per the reported payout vector. It returns the total payout.
func (s *ConditionService) Redeem(ctx context.Context, caller, collateralToken common.Address, parent domain.CollectionID, conditionID domain.ConditionID, indexSets []domain.IndexSet) (*uint256.Int, error) {
	payout, err := s.ledger.RedeemPositions(caller, collateralToken, parent, conditionID, indexSets)
	if err != nil {
		return nil, fmt.Errorf("condition_service: redeem: %w", err)
	}

	s.auditLog(ctx, "position.redeemed", map[string]any{
		"caller":       caller.Hex(),
		"collateral":   collateralToken.Hex(),
		"condition_id": conditionID.Hex(),
		"payout":       payout.Dec(),
	})
	return payout, nil
}

// SetApprovalForAll lets operator move all of the caller's positions.
func (s *ConditionService) SetApprovalForAll(caller, operator common.Address, approved bool) {
	s.ledger.SetApprovalForAll(caller, operator, approved)
}

// TransferPosition moves a position balance between accounts.
func (s *ConditionService) TransferPosition(ctx context.Context, caller, src, dst common.Address, id domain.PositionID, amount *uint256.Int) error {
	if err := s.ledger.SafeTransferFrom(caller, src, dst, id, amount); err != nil {
		return fmt.Errorf("condition_service: transfer: %w", err)
	}

	s.auditLog(ctx, "position.transferred", map[string]any{
		"caller":      caller.Hex(),
		"from":        src.Hex(),
		"to":          dst.Hex(),
		"position_id": id.Hex(),
		"amount":      amount.Dec(),
	})
	return nil
}

// persist writes a condition record through to the store. Failures are logged,
// not returned; the engine already committed.
func (s *ConditionService) persist(ctx context.Context, cond domain.Condition) {
	if err := s.conditions.Upsert(ctx, cond); err != nil {
		s.logger.ErrorContext(ctx, "condition upsert failed",
			slog.String("condition_id", cond.ID.Hex()),
			slog.String("error", err.Error()),
		)
	}
}

func (s *ConditionService) auditLog(ctx context.Context, event string, detail map[string]any) {
	if err := s.audit.Log(ctx, event, detail); err != nil {
		s.logger.WarnContext(ctx, "audit log failed",
			slog.String("event", event),
			slog.String("error", err.Error()),
		)
	}
}

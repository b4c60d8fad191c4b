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

// WrapperService wraps the transmuter: registering fungible wrappers over
// positions and moving balances between the two representations.
type WrapperService struct {
	transmuter *engine.Transmuter
	audit      domain.AuditStore
	logger     *slog.Logger
}

// NewWrapperService creates a WrapperService with all dependencies.
func NewWrapperService(transmuter *engine.Transmuter, audit domain.AuditStore, logger *slog.Logger) *WrapperService {
	return &WrapperService{
		transmuter: transmuter,
		audit:      audit,
		logger:     logger.With(slog.String("component", "wrapper_service")),
	}
}

// Register creates a wrapper token over (condition, collateral, indexSet).
func (s *WrapperService) Register(ctx context.Context, conditionID domain.ConditionID, collateralToken common.Address, indexSet domain.IndexSet, name, symbol string) (common.Address, error) {
	tok, err := s.transmuter.Register(conditionID, collateralToken, indexSet, name, symbol)
	if err != nil {
		return common.Address{}, fmt.Errorf("wrapper_service: register: %w", err)
	}

	s.auditLog(ctx, "wrapper.registered", map[string]any{
		"token":        tok.Hex(),
		"condition_id": conditionID.Hex(),
		"collateral":   collateralToken.Hex(),
		"index_set":    uint64(indexSet),
		"symbol":       symbol,
	})
	return tok, nil
}

// RegisterBasicPartition registers one wrapper per outcome slot of the
// condition, atomically.
func (s *WrapperService) RegisterBasicPartition(ctx context.Context, conditionID domain.ConditionID, collateralToken common.Address, names, symbols []string) ([]common.Address, error) {
	toks, err := s.transmuter.RegisterBasicPartition(conditionID, collateralToken, names, symbols)
	if err != nil {
		return nil, fmt.Errorf("wrapper_service: register partition: %w", err)
	}

	addrs := make([]string, len(toks))
	for i, t := range toks {
		addrs[i] = t.Hex()
	}
	s.auditLog(ctx, "wrapper.partition_registered", map[string]any{
		"condition_id": conditionID.Hex(),
		"collateral":   collateralToken.Hex(),
		"tokens":       addrs,
	})
	return toks, nil
}

// Token returns the wrapper token address for a position.
func (s *WrapperService) Token(positionID domain.PositionID) (common.Address, error) {
	tok, err := s.transmuter.Token(positionID)
	if err != nil {
		return common.Address{}, fmt.Errorf("wrapper_service: token for %s: %w", positionID.Hex(), err)
	}
	return tok, nil
}

// Wrapper returns the registration record for a wrapper token.
func (s *WrapperService) Wrapper(tok common.Address) (engine.WrapperInfo, error) {
	info, err := s.transmuter.Wrapper(tok)
	if err != nil {
		return engine.WrapperInfo{}, fmt.Errorf("wrapper_service: wrapper %s: %w", tok.Hex(), err)
	}
	return info, nil
}

// Mint pulls the caller's position into wrapper custody and mints the same
// amount of the fungible wrapper.
func (s *WrapperService) Mint(ctx context.Context, caller common.Address, positionID domain.PositionID, amount *uint256.Int) error {
	if err := s.transmuter.Mint(caller, positionID, amount); err != nil {
		return fmt.Errorf("wrapper_service: mint: %w", err)
	}

	s.auditLog(ctx, "wrapper.minted", map[string]any{
		"caller":      caller.Hex(),
		"position_id": positionID.Hex(),
		"amount":      amount.Dec(),
	})
	return nil
}

// Burn is the inverse of Mint: the wrapper amount is burned and the position
// returns to the caller.
func (s *WrapperService) Burn(ctx context.Context, caller common.Address, positionID domain.PositionID, amount *uint256.Int) error {
	if err := s.transmuter.Burn(caller, positionID, amount); err != nil {
		return fmt.Errorf("wrapper_service: burn: %w", err)
	}

	s.auditLog(ctx, "wrapper.burned", map[string]any{
		"caller":      caller.Hex(),
		"position_id": positionID.Hex(),
		"amount":      amount.Dec(),
	})
	return nil
}

func (s *WrapperService) auditLog(ctx context.Context, event string, detail map[string]any) {
	if err := s.audit.Log(ctx, event, detail); err != nil {
		s.logger.WarnContext(ctx, "audit log failed",
			slog.String("event", event),
			slog.String("error", err.Error()),
		)
	}
}

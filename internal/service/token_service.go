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

// TokenService wraps the fungible-token bank: balances, transfers, approvals
// and owner-gated supply changes.
type TokenService struct {
	bank   *engine.Bank
	audit  domain.AuditStore
	logger *slog.Logger
}

// NewTokenService creates a TokenService with all dependencies.
func NewTokenService(bank *engine.Bank, audit domain.AuditStore, logger *slog.Logger) *TokenService {
	return &TokenService{
		bank:   bank,
		audit:  audit,
		logger: logger.With(slog.String("component", "token_service")),
	}
}

// Create registers a new token owned by owner.
func (s *TokenService) Create(ctx context.Context, name, symbol string, decimals uint8, owner common.Address) (common.Address, error) {
	tok, err := s.bank.CreateToken(name, symbol, decimals, owner)
	if err != nil {
		return common.Address{}, fmt.Errorf("token_service: create: %w", err)
	}

	s.auditLog(ctx, "token.created", map[string]any{
		"token":  tok.Hex(),
		"symbol": symbol,
		"owner":  owner.Hex(),
	})
	return tok, nil
}

// Mint credits acct with amount. The caller must be the token owner.
func (s *TokenService) Mint(ctx context.Context, caller, tok, acct common.Address, amount *uint256.Int) error {
	if err := s.bank.Mint(caller, tok, acct, amount); err != nil {
		return fmt.Errorf("token_service: mint: %w", err)
	}

	s.auditLog(ctx, "token.minted", map[string]any{
		"token":   tok.Hex(),
		"account": acct.Hex(),
		"amount":  amount.Dec(),
	})
	return nil
}

// Transfer moves amount from the caller to dst.
func (s *TokenService) Transfer(ctx context.Context, caller, tok, dst common.Address, amount *uint256.Int) error {
	if err := s.bank.Transfer(caller, tok, dst, amount); err != nil {
		return fmt.Errorf("token_service: transfer: %w", err)
	}
	return nil
}

// TransferFrom moves amount from src to dst, spending the caller's allowance.
func (s *TokenService) TransferFrom(ctx context.Context, caller, tok, src, dst common.Address, amount *uint256.Int) error {
	if err := s.bank.TransferFrom(caller, tok, src, dst, amount); err != nil {
		return fmt.Errorf("token_service: transfer from: %w", err)
	}
	return nil
}

// Approve sets the caller's allowance for spender.
func (s *TokenService) Approve(ctx context.Context, caller, tok, spender common.Address, amount *uint256.Int) error {
	if err := s.bank.Approve(caller, tok, spender, amount); err != nil {
		return fmt.Errorf("token_service: approve: %w", err)
	}
	return nil
}

// BalanceOf returns acct's token balance.
func (s *TokenService) BalanceOf(tok, acct common.Address) *uint256.Int {
	return s.bank.BalanceOf(tok, acct)
}

// Allowance returns spender's remaining allowance from src.
func (s *TokenService) Allowance(tok, src, spender common.Address) *uint256.Int {
	return s.bank.Allowance(tok, src, spender)
}

// TotalSupply returns the token's total supply.
func (s *TokenService) TotalSupply(tok common.Address) *uint256.Int {
	return s.bank.TotalSupply(tok)
}

// Info returns the token's registration record.
func (s *TokenService) Info(tok common.Address) (engine.TokenInfo, error) {
	info, err := s.bank.Info(tok)
	if err != nil {
		return engine.TokenInfo{}, fmt.Errorf("token_service: info %s: %w", tok.Hex(), err)
	}
	return info, nil
}

func (s *TokenService) auditLog(ctx context.Context, event string, detail map[string]any) {
	if err := s.audit.Log(ctx, event, detail); err != nil {
		s.logger.WarnContext(ctx, "audit log failed",
			slog.String("event", event),
			slog.String("error", err.Error()),
		)
	}
}

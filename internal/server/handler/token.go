package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"github.com/alanyoungcy/ctmarket/internal/engine"
)

// TokenService defines what the token handler needs from the service layer.
type TokenService interface {
	Create(ctx context.Context, name, symbol string, decimals uint8, owner common.Address) (common.Address, error)
	Mint(ctx context.Context, caller, tok, acct common.Address, amount *uint256.Int) error
	Transfer(ctx context.Context, caller, tok, dst common.Address, amount *uint256.Int) error
	Approve(ctx context.Context, caller, tok, spender common.Address, amount *uint256.Int) error
	BalanceOf(tok, acct common.Address) *uint256.Int
	Allowance(tok, src, spender common.Address) *uint256.Int
	TotalSupply(tok common.Address) *uint256.Int
	Info(tok common.Address) (engine.TokenInfo, error)
}

// TokenHandler serves fungible-token endpoints.
type TokenHandler struct {
	tokens TokenService
	logger *slog.Logger
}

// NewTokenHandler creates a TokenHandler.
func NewTokenHandler(tokens TokenService, logger *slog.Logger) *TokenHandler {
	return &TokenHandler{
		tokens: tokens,
		logger: logger,
	}
}

type createTokenRequest struct {
	Name     string `json:"name"`
	Symbol   string `json:"symbol"`
	Decimals uint8  `json:"decimals"`
}

// CreateToken registers a token owned by the caller.
// POST /api/tokens
func (h *TokenHandler) CreateToken(w http.ResponseWriter, r *http.Request) {
	var req createTokenRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	caller, err := callerAddress(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	tok, err := h.tokens.Create(r.Context(), req.Name, req.Symbol, req.Decimals, caller)
	if err != nil {
		writeDomainError(w, h.logger, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"token": tok})
}

// GetToken returns the token's registration record and total supply.
// GET /api/tokens/{address}
func (h *TokenHandler) GetToken(w http.ResponseWriter, r *http.Request) {
	tok, err := parseAddress("address", pathParam(r, "address"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	info, err := h.tokens.Info(tok)
	if err != nil {
		writeDomainError(w, h.logger, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"info":         info,
		"total_supply": h.tokens.TotalSupply(tok).Dec(),
	})
}

// GetBalance returns an account's token balance.
// GET /api/tokens/{address}/balance?account=0x...
func (h *TokenHandler) GetBalance(w http.ResponseWriter, r *http.Request) {
	tok, err := parseAddress("address", pathParam(r, "address"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	acct, err := parseAddress("account", r.URL.Query().Get("account"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"token":   tok,
		"account": acct,
		"balance": h.tokens.BalanceOf(tok, acct).Dec(),
	})
}

// GetAllowance returns spender's remaining allowance from owner.
// GET /api/tokens/{address}/allowance?owner=0x...&spender=0x...
func (h *TokenHandler) GetAllowance(w http.ResponseWriter, r *http.Request) {
	tok, err := parseAddress("address", pathParam(r, "address"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	owner, err := parseAddress("owner", r.URL.Query().Get("owner"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	spender, err := parseAddress("spender", r.URL.Query().Get("spender"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"token":     tok,
		"owner":     owner,
		"spender":   spender,
		"allowance": h.tokens.Allowance(tok, owner, spender).Dec(),
	})
}

type mintTokenRequest struct {
	Account string `json:"account"`
	Amount  string `json:"amount"`
}

// MintToken credits an account. The caller must own the token.
// POST /api/tokens/{address}/mint
func (h *TokenHandler) MintToken(w http.ResponseWriter, r *http.Request) {
	tok, err := parseAddress("address", pathParam(r, "address"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	var req mintTokenRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	caller, err := callerAddress(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	acct, err := parseAddress("account", req.Account)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	amount, err := parseAmount("amount", req.Amount)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	if err := h.tokens.Mint(r.Context(), caller, tok, acct, amount); err != nil {
		writeDomainError(w, h.logger, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "minted"})
}

type transferTokenRequest struct {
	To     string `json:"to"`
	Amount string `json:"amount"`
}

// TransferToken moves tokens from the caller to another account.
// POST /api/tokens/{address}/transfer
func (h *TokenHandler) TransferToken(w http.ResponseWriter, r *http.Request) {
	tok, err := parseAddress("address", pathParam(r, "address"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	var req transferTokenRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	caller, err := callerAddress(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	dst, err := parseAddress("to", req.To)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	amount, err := parseAmount("amount", req.Amount)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	if err := h.tokens.Transfer(r.Context(), caller, tok, dst, amount); err != nil {
		writeDomainError(w, h.logger, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "transferred"})
}

type approveTokenRequest struct {
	Spender string `json:"spender"`
	Amount  string `json:"amount"`
}

// ApproveToken sets the caller's allowance for a spender.
// POST /api/tokens/{address}/approve
func (h *TokenHandler) ApproveToken(w http.ResponseWriter, r *http.Request) {
	tok, err := parseAddress("address", pathParam(r, "address"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	var req approveTokenRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	caller, err := callerAddress(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	spender, err := parseAddress("spender", req.Spender)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	amount, err := parseAmount("amount", req.Amount)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	if err := h.tokens.Approve(r.Context(), caller, tok, spender, amount); err != nil {
		writeDomainError(w, h.logger, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "approved"})
}

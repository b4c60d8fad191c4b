package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"github.com/alanyoungcy/ctmarket/internal/domain"
	"github.com/alanyoungcy/ctmarket/internal/engine"
)

// WrapperService defines what the wrapper handler needs from the service
// layer.
type WrapperService interface {
	Register(ctx context.Context, conditionID domain.ConditionID, collateralToken common.Address, indexSet domain.IndexSet, name, symbol string) (common.Address, error)
	RegisterBasicPartition(ctx context.Context, conditionID domain.ConditionID, collateralToken common.Address, names, symbols []string) ([]common.Address, error)
	Token(positionID domain.PositionID) (common.Address, error)
	Wrapper(tok common.Address) (engine.WrapperInfo, error)
	Mint(ctx context.Context, caller common.Address, positionID domain.PositionID, amount *uint256.Int) error
	Burn(ctx context.Context, caller common.Address, positionID domain.PositionID, amount *uint256.Int) error
}

// WrapperHandler serves wrapped-token endpoints.
type WrapperHandler struct {
	wrappers WrapperService
	logger   *slog.Logger
}

// NewWrapperHandler creates a WrapperHandler.
func NewWrapperHandler(wrappers WrapperService, logger *slog.Logger) *WrapperHandler {
	return &WrapperHandler{
		wrappers: wrappers,
		logger:   logger,
	}
}

type registerWrapperRequest struct {
	ConditionID string   `json:"condition_id"`
	Collateral  string   `json:"collateral"`
	IndexSet    uint64   `json:"index_set,omitempty"`
	Name        string   `json:"name,omitempty"`
	Symbol      string   `json:"symbol,omitempty"`
	Names       []string `json:"names,omitempty"`
	Symbols     []string `json:"symbols,omitempty"`
}

// RegisterWrapper registers a wrapper token for one index set, or one per
// outcome slot when names/symbols arrays are given.
// POST /api/wrappers
func (h *WrapperHandler) RegisterWrapper(w http.ResponseWriter, r *http.Request) {
	var req registerWrapperRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	collateral, err := parseAddress("collateral", req.Collateral)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	conditionID := domain.HexToConditionID(req.ConditionID)

	if len(req.Names) > 0 || len(req.Symbols) > 0 {
		toks, err := h.wrappers.RegisterBasicPartition(r.Context(), conditionID, collateral, req.Names, req.Symbols)
		if err != nil {
			writeDomainError(w, h.logger, r, err)
			return
		}
		writeJSON(w, http.StatusCreated, map[string]any{"tokens": toks})
		return
	}

	tok, err := h.wrappers.Register(r.Context(), conditionID, collateral, domain.IndexSet(req.IndexSet), req.Name, req.Symbol)
	if err != nil {
		writeDomainError(w, h.logger, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"token": tok})
}

// GetWrapper returns the registration record for a wrapper token.
// GET /api/wrappers/{address}
func (h *WrapperHandler) GetWrapper(w http.ResponseWriter, r *http.Request) {
	tok, err := parseAddress("address", pathParam(r, "address"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	info, err := h.wrappers.Wrapper(tok)
	if err != nil {
		writeDomainError(w, h.logger, r, err)
		return
	}
	writeJSON(w, http.StatusOK, info)
}

// GetWrapperByPosition returns the wrapper token address for a position.
// GET /api/positions/{id}/wrapper
func (h *WrapperHandler) GetWrapperByPosition(w http.ResponseWriter, r *http.Request) {
	id := domain.PositionID(common.HexToHash(pathParam(r, "id")))
	tok, err := h.wrappers.Token(id)
	if err != nil {
		writeDomainError(w, h.logger, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"position_id": id,
		"token":       tok,
	})
}

type wrapRequest struct {
	PositionID string `json:"position_id"`
	Amount     string `json:"amount"`
}

func (h *WrapperHandler) wrapArgs(r *http.Request) (caller common.Address, id domain.PositionID, amount *uint256.Int, err error) {
	var req wrapRequest
	if err = decodeBody(r, &req); err != nil {
		return
	}
	if caller, err = callerAddress(r); err != nil {
		return
	}
	if amount, err = parseAmount("amount", req.Amount); err != nil {
		return
	}
	id = domain.PositionID(common.HexToHash(req.PositionID))
	return
}

// Mint wraps the caller's position into its fungible token.
// POST /api/wrappers/mint
func (h *WrapperHandler) Mint(w http.ResponseWriter, r *http.Request) {
	caller, id, amount, err := h.wrapArgs(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := h.wrappers.Mint(r.Context(), caller, id, amount); err != nil {
		writeDomainError(w, h.logger, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "minted"})
}

// Burn unwraps the caller's fungible tokens back into the position.
// POST /api/wrappers/burn
func (h *WrapperHandler) Burn(w http.ResponseWriter, r *http.Request) {
	caller, id, amount, err := h.wrapArgs(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := h.wrappers.Burn(r.Context(), caller, id, amount); err != nil {
		writeDomainError(w, h.logger, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "burned"})
}

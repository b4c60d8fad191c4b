package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"github.com/alanyoungcy/ctmarket/internal/domain"
)

// MarketService defines what the market handler needs from the service layer.
type MarketService interface {
	Create(ctx context.Context, name, symbol string, conditionID domain.ConditionID, collateralToken common.Address, swapFee *uint256.Int) (domain.Market, error)
	Get(ctx context.Context, addr common.Address) (domain.Market, error)
	List() []domain.Market
	Count(ctx context.Context) (int64, error)
	PoolTokens(addr common.Address) ([]common.Address, []*uint256.Int, error)
	SplitJoin(ctx context.Context, addr, caller common.Address, amount, minBPTOut *uint256.Int, isInit bool) (*uint256.Int, error)
	ExitMerge(ctx context.Context, addr, caller common.Address, bptAmount *uint256.Int, minAmountsOut []*uint256.Int) error
	Redeem(ctx context.Context, addr, caller common.Address) (*uint256.Int, error)
}

// MarketHandler serves market endpoints.
type MarketHandler struct {
	markets MarketService
	logger  *slog.Logger
}

// NewMarketHandler creates a MarketHandler.
func NewMarketHandler(markets MarketService, logger *slog.Logger) *MarketHandler {
	return &MarketHandler{
		markets: markets,
		logger:  logger,
	}
}

type createMarketRequest struct {
	Name        string `json:"name"`
	Symbol      string `json:"symbol"`
	ConditionID string `json:"condition_id"`
	Collateral  string `json:"collateral"`
	SwapFee     string `json:"swap_fee,omitempty"`
}

// CreateMarket builds a market over a prepared condition. An omitted swap_fee
// uses the configured default.
// POST /api/markets
func (h *MarketHandler) CreateMarket(w http.ResponseWriter, r *http.Request) {
	var req createMarketRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	collateral, err := parseAddress("collateral", req.Collateral)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	var swapFee *uint256.Int
	if req.SwapFee != "" {
		if swapFee, err = parseAmount("swap_fee", req.SwapFee); err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
	}

	rec, err := h.markets.Create(r.Context(), req.Name, req.Symbol, domain.HexToConditionID(req.ConditionID), collateral, swapFee)
	if err != nil {
		writeDomainError(w, h.logger, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, rec)
}

// ListMarkets returns all live markets.
// GET /api/markets
func (h *MarketHandler) ListMarkets(w http.ResponseWriter, r *http.Request) {
	markets := h.markets.List()

	total, err := h.markets.Count(r.Context())
	if err != nil {
		// The engine list is authoritative; fall back to its length.
		total = int64(len(markets))
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"markets": markets,
		"total":   total,
	})
}

// GetMarket returns a market record.
// GET /api/markets/{address}
func (h *MarketHandler) GetMarket(w http.ResponseWriter, r *http.Request) {
	addr, err := parseAddress("address", pathParam(r, "address"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	rec, err := h.markets.Get(r.Context(), addr)
	if err != nil {
		writeDomainError(w, h.logger, r, err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

// GetPool returns the market pool's tokens and balances.
// GET /api/markets/{address}/pool
func (h *MarketHandler) GetPool(w http.ResponseWriter, r *http.Request) {
	addr, err := parseAddress("address", pathParam(r, "address"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	tokens, balances, err := h.markets.PoolTokens(addr)
	if err != nil {
		writeDomainError(w, h.logger, r, err)
		return
	}

	decs := make([]string, len(balances))
	for i, b := range balances {
		decs[i] = b.Dec()
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"tokens":   tokens,
		"balances": decs,
	})
}

type splitJoinRequest struct {
	Amount    string `json:"amount"`
	MinBPTOut string `json:"min_bpt_out,omitempty"`
	Init      bool   `json:"init,omitempty"`
}

// SplitJoin splits the caller's collateral and joins the pool with the legs.
// init seeds an empty pool; otherwise min_bpt_out bounds the join.
// POST /api/markets/{address}/join
func (h *MarketHandler) SplitJoin(w http.ResponseWriter, r *http.Request) {
	addr, err := parseAddress("address", pathParam(r, "address"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	var req splitJoinRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	caller, err := callerAddress(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	amount, err := parseAmount("amount", req.Amount)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	minBPTOut := new(uint256.Int)
	if req.MinBPTOut != "" {
		if minBPTOut, err = parseAmount("min_bpt_out", req.MinBPTOut); err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
	}

	bptOut, err := h.markets.SplitJoin(r.Context(), addr, caller, amount, minBPTOut, req.Init)
	if err != nil {
		writeDomainError(w, h.logger, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"bpt_out": bptOut.Dec()})
}

type exitMergeRequest struct {
	BPTAmount     string   `json:"bpt_amount"`
	MinAmountsOut []string `json:"min_amounts_out,omitempty"`
}

// ExitMerge exits the pool and merges the outcome legs back into collateral.
// POST /api/markets/{address}/exit
func (h *MarketHandler) ExitMerge(w http.ResponseWriter, r *http.Request) {
	addr, err := parseAddress("address", pathParam(r, "address"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	var req exitMergeRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	caller, err := callerAddress(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	bptAmount, err := parseAmount("bpt_amount", req.BPTAmount)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	minAmountsOut, err := parseAmounts("min_amounts_out", req.MinAmountsOut)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	if err := h.markets.ExitMerge(r.Context(), addr, caller, bptAmount, minAmountsOut); err != nil {
		writeDomainError(w, h.logger, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "exited"})
}

// Redeem converts the caller's wrapped outcome balances into collateral after
// resolution.
// POST /api/markets/{address}/redeem
func (h *MarketHandler) Redeem(w http.ResponseWriter, r *http.Request) {
	addr, err := parseAddress("address", pathParam(r, "address"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	caller, err := callerAddress(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	payout, err := h.markets.Redeem(r.Context(), addr, caller)
	if err != nil {
		writeDomainError(w, h.logger, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"payout": payout.Dec()})
}

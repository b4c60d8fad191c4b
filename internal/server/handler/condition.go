package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"github.com/alanyoungcy/ctmarket/internal/domain"
)

// ConditionService defines what the condition handler needs from the service
// layer.
type ConditionService interface {
	Prepare(ctx context.Context, oracle common.Address, questionID domain.QuestionID, outcomeSlotCount int) (domain.Condition, error)
	Get(ctx context.Context, id domain.ConditionID) (domain.Condition, error)
	List(ctx context.Context, limit int) ([]domain.Condition, error)
	Payouts(ctx context.Context, id domain.ConditionID) ([]uint64, error)
	CollectionID(parent domain.CollectionID, conditionID domain.ConditionID, indexSet domain.IndexSet) (domain.CollectionID, error)
	PositionID(collateralToken common.Address, collectionID domain.CollectionID) domain.PositionID
	BalanceOf(acct common.Address, id domain.PositionID) *uint256.Int
	Split(ctx context.Context, caller, collateralToken common.Address, parent domain.CollectionID, conditionID domain.ConditionID, partition []domain.IndexSet, amount *uint256.Int) error
	Merge(ctx context.Context, caller, collateralToken common.Address, parent domain.CollectionID, conditionID domain.ConditionID, partition []domain.IndexSet, amount *uint256.Int) error
	Redeem(ctx context.Context, caller, collateralToken common.Address, parent domain.CollectionID, conditionID domain.ConditionID, indexSets []domain.IndexSet) (*uint256.Int, error)
	SetApprovalForAll(caller, operator common.Address, approved bool)
	TransferPosition(ctx context.Context, caller, src, dst common.Address, id domain.PositionID, amount *uint256.Int) error
}

// ConditionHandler serves condition and position endpoints.
type ConditionHandler struct {
	conditions ConditionService
	logger     *slog.Logger
}

// NewConditionHandler creates a ConditionHandler.
func NewConditionHandler(conditions ConditionService, logger *slog.Logger) *ConditionHandler {
	return &ConditionHandler{
		conditions: conditions,
		logger:     logger,
	}
}

type prepareConditionRequest struct {
	Oracle           string `json:"oracle"`
	QuestionID       string `json:"question_id"`
	OutcomeSlotCount int    `json:"outcome_slot_count"`
}

// PrepareCondition registers a condition.
// POST /api/conditions
func (h *ConditionHandler) PrepareCondition(w http.ResponseWriter, r *http.Request) {
	var req prepareConditionRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	oracle, err := parseAddress("oracle", req.Oracle)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	cond, err := h.conditions.Prepare(r.Context(), oracle, domain.HexToQuestionID(req.QuestionID), req.OutcomeSlotCount)
	if err != nil {
		writeDomainError(w, h.logger, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, cond)
}

// ListConditions returns prepared conditions.
// GET /api/conditions?limit=100
func (h *ConditionHandler) ListConditions(w http.ResponseWriter, r *http.Request) {
	conds, err := h.conditions.List(r.Context(), parseLimit(r))
	if err != nil {
		writeDomainError(w, h.logger, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"conditions": conds})
}

// GetCondition returns a condition by id.
// GET /api/conditions/{id}
func (h *ConditionHandler) GetCondition(w http.ResponseWriter, r *http.Request) {
	cond, err := h.conditions.Get(r.Context(), domain.HexToConditionID(pathParam(r, "id")))
	if err != nil {
		writeDomainError(w, h.logger, r, err)
		return
	}
	writeJSON(w, http.StatusOK, cond)
}

// GetPayouts returns the reported payout vector.
// GET /api/conditions/{id}/payouts
func (h *ConditionHandler) GetPayouts(w http.ResponseWriter, r *http.Request) {
	id := domain.HexToConditionID(pathParam(r, "id"))
	nums, err := h.conditions.Payouts(r.Context(), id)
	if err != nil {
		writeDomainError(w, h.logger, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"condition_id": id,
		"payouts":      nums,
	})
}

type deriveIDsRequest struct {
	ParentCollection string `json:"parent_collection,omitempty"`
	ConditionID      string `json:"condition_id"`
	IndexSet         uint64 `json:"index_set"`
	Collateral       string `json:"collateral"`
}

// DeriveIDs computes the collection and position ids for a (parent,
// condition, index set, collateral) tuple.
// POST /api/positions/derive
func (h *ConditionHandler) DeriveIDs(w http.ResponseWriter, r *http.Request) {
	var req deriveIDsRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	collateral, err := parseAddress("collateral", req.Collateral)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	parent := domain.CollectionID(common.HexToHash(req.ParentCollection))
	collection, err := h.conditions.CollectionID(parent, domain.HexToConditionID(req.ConditionID), domain.IndexSet(req.IndexSet))
	if err != nil {
		writeDomainError(w, h.logger, r, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"collection_id": collection,
		"position_id":   h.conditions.PositionID(collateral, collection),
	})
}

// GetPositionBalance returns an account's balance of a position.
// GET /api/positions/{id}/balance?account=0x...
func (h *ConditionHandler) GetPositionBalance(w http.ResponseWriter, r *http.Request) {
	acct, err := parseAddress("account", r.URL.Query().Get("account"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	id := domain.PositionID(common.HexToHash(pathParam(r, "id")))

	writeJSON(w, http.StatusOK, map[string]any{
		"position_id": id,
		"account":     acct,
		"balance":     h.conditions.BalanceOf(acct, id).Dec(),
	})
}

type splitMergeRequest struct {
	Collateral       string   `json:"collateral"`
	ParentCollection string   `json:"parent_collection,omitempty"`
	ConditionID      string   `json:"condition_id"`
	Partition        []uint64 `json:"partition"`
	Amount           string   `json:"amount"`
}

func (h *ConditionHandler) splitMergeArgs(r *http.Request) (caller, collateral common.Address, parent domain.CollectionID, conditionID domain.ConditionID, partition []domain.IndexSet, amount *uint256.Int, err error) {
	var req splitMergeRequest
	if err = decodeBody(r, &req); err != nil {
		return
	}
	if caller, err = callerAddress(r); err != nil {
		return
	}
	if collateral, err = parseAddress("collateral", req.Collateral); err != nil {
		return
	}
	if amount, err = parseAmount("amount", req.Amount); err != nil {
		return
	}
	parent = domain.CollectionID(common.HexToHash(req.ParentCollection))
	conditionID = domain.HexToConditionID(req.ConditionID)
	partition = parseIndexSets(req.Partition)
	return
}

// SplitPosition splits collateral or a parent position into the partition's
// child positions.
// POST /api/positions/split
func (h *ConditionHandler) SplitPosition(w http.ResponseWriter, r *http.Request) {
	caller, collateral, parent, conditionID, partition, amount, err := h.splitMergeArgs(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := h.conditions.Split(r.Context(), caller, collateral, parent, conditionID, partition, amount); err != nil {
		writeDomainError(w, h.logger, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "split"})
}

// MergePositions is the inverse of SplitPosition.
// POST /api/positions/merge
func (h *ConditionHandler) MergePositions(w http.ResponseWriter, r *http.Request) {
	caller, collateral, parent, conditionID, partition, amount, err := h.splitMergeArgs(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := h.conditions.Merge(r.Context(), caller, collateral, parent, conditionID, partition, amount); err != nil {
		writeDomainError(w, h.logger, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "merged"})
}

type redeemRequest struct {
	Collateral       string   `json:"collateral"`
	ParentCollection string   `json:"parent_collection,omitempty"`
	ConditionID      string   `json:"condition_id"`
	IndexSets        []uint64 `json:"index_sets"`
}

// RedeemPositions redeems the caller's positions for the given index sets.
// POST /api/positions/redeem
func (h *ConditionHandler) RedeemPositions(w http.ResponseWriter, r *http.Request) {
	var req redeemRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	caller, err := callerAddress(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	collateral, err := parseAddress("collateral", req.Collateral)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	payout, err := h.conditions.Redeem(r.Context(), caller, collateral,
		domain.CollectionID(common.HexToHash(req.ParentCollection)),
		domain.HexToConditionID(req.ConditionID),
		parseIndexSets(req.IndexSets))
	if err != nil {
		writeDomainError(w, h.logger, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"payout": payout.Dec()})
}

type approvalRequest struct {
	Operator string `json:"operator"`
	Approved bool   `json:"approved"`
}

// SetApproval grants or revokes an operator over the caller's positions.
// POST /api/positions/approve
func (h *ConditionHandler) SetApproval(w http.ResponseWriter, r *http.Request) {
	var req approvalRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	caller, err := callerAddress(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	operator, err := parseAddress("operator", req.Operator)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	h.conditions.SetApprovalForAll(caller, operator, req.Approved)
	writeJSON(w, http.StatusOK, map[string]any{
		"operator": operator,
		"approved": req.Approved,
	})
}

type transferPositionRequest struct {
	From       string `json:"from,omitempty"`
	To         string `json:"to"`
	PositionID string `json:"position_id"`
	Amount     string `json:"amount"`
}

// TransferPosition moves a position balance. From defaults to the caller.
// POST /api/positions/transfer
func (h *ConditionHandler) TransferPosition(w http.ResponseWriter, r *http.Request) {
	var req transferPositionRequest
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
	src := caller
	if req.From != "" {
		if src, err = parseAddress("from", req.From); err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
	}
	amount, err := parseAmount("amount", req.Amount)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	id := domain.PositionID(common.HexToHash(req.PositionID))
	if err := h.conditions.TransferPosition(r.Context(), caller, src, dst, id, amount); err != nil {
		writeDomainError(w, h.logger, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "transferred"})
}

package handler

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/alanyoungcy/ctmarket/internal/domain"
)

// OracleService defines what the oracle handler needs from the service layer.
type OracleService interface {
	Address() common.Address
	Register(ctx context.Context, caller common.Address, questionID domain.QuestionID, outcomeSlotCount int, resolutionTime time.Time) (domain.Question, error)
	Resolve(ctx context.Context, caller common.Address, questionID domain.QuestionID, payouts []uint64) (domain.Question, error)
	Question(questionID domain.QuestionID) (domain.Question, error)
	Questions() []domain.Question
	Unresolved(ctx context.Context) ([]domain.Question, error)
}

// OracleHandler serves oracle question endpoints.
type OracleHandler struct {
	oracle OracleService
	logger *slog.Logger
}

// NewOracleHandler creates an OracleHandler.
func NewOracleHandler(oracle OracleService, logger *slog.Logger) *OracleHandler {
	return &OracleHandler{
		oracle: oracle,
		logger: logger,
	}
}

// GetOracle returns the oracle's account address.
// GET /api/oracle
func (h *OracleHandler) GetOracle(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"address": h.oracle.Address()})
}

type registerQuestionRequest struct {
	QuestionID       string `json:"question_id"`
	OutcomeSlotCount int    `json:"outcome_slot_count"`
	ResolutionTime   string `json:"resolution_time"` // RFC 3339
}

// RegisterQuestion registers a question for later resolution. Controller
// only.
// POST /api/oracle/questions
func (h *OracleHandler) RegisterQuestion(w http.ResponseWriter, r *http.Request) {
	var req registerQuestionRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	caller, err := callerAddress(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	resolutionTime, err := time.Parse(time.RFC3339, req.ResolutionTime)
	if err != nil {
		writeError(w, http.StatusBadRequest, "resolution_time must be RFC 3339")
		return
	}

	q, err := h.oracle.Register(r.Context(), caller, domain.HexToQuestionID(req.QuestionID), req.OutcomeSlotCount, resolutionTime)
	if err != nil {
		writeDomainError(w, h.logger, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, q)
}

type resolveQuestionRequest struct {
	Payouts []uint64 `json:"payouts"`
}

// ResolveQuestion reports the payout vector for a registered question.
// Controller only, resolution time must have been reached.
// POST /api/oracle/questions/{id}/resolve
func (h *OracleHandler) ResolveQuestion(w http.ResponseWriter, r *http.Request) {
	var req resolveQuestionRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	caller, err := callerAddress(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	q, err := h.oracle.Resolve(r.Context(), caller, domain.HexToQuestionID(pathParam(r, "id")), req.Payouts)
	if err != nil {
		writeDomainError(w, h.logger, r, err)
		return
	}
	writeJSON(w, http.StatusOK, q)
}

// GetQuestion returns a registered question.
// GET /api/oracle/questions/{id}
func (h *OracleHandler) GetQuestion(w http.ResponseWriter, r *http.Request) {
	q, err := h.oracle.Question(domain.HexToQuestionID(pathParam(r, "id")))
	if err != nil {
		writeDomainError(w, h.logger, r, err)
		return
	}
	writeJSON(w, http.StatusOK, q)
}

// ListQuestions returns every registered question, or only unresolved ones
// with ?unresolved=true.
// GET /api/oracle/questions
func (h *OracleHandler) ListQuestions(w http.ResponseWriter, r *http.Request) {
	if r.URL.Query().Get("unresolved") == "true" {
		qs, err := h.oracle.Unresolved(r.Context())
		if err != nil {
			writeDomainError(w, h.logger, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"questions": qs})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"questions": h.oracle.Questions()})
}

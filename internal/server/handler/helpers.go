// Package handler holds the JSON HTTP handlers for the market API. Callers
// are identified by the X-Account-Address header; there is no signing or
// session layer.
package handler

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"github.com/alanyoungcy/ctmarket/internal/domain"
)

// accountHeader carries the caller's account address on mutating requests.
const accountHeader = "X-Account-Address"

// writeJSON marshals v and writes it with the given status code.
func writeJSON(w http.ResponseWriter, status int, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		http.Error(w, `{"error":"internal server error"}`, http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	w.Write(data)
}

// writeError sends a JSON-formatted error response.
func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// writeDomainError maps engine sentinel errors onto HTTP status codes. Unknown
// errors become a 500 with a generic message.
func writeDomainError(w http.ResponseWriter, logger *slog.Logger, r *http.Request, err error) {
	switch {
	case errors.Is(err, domain.ErrNotFound),
		errors.Is(err, domain.ErrConditionNotPrepared),
		errors.Is(err, domain.ErrQuestionNotRegistered),
		errors.Is(err, domain.ErrWrapperNotRegistered),
		errors.Is(err, domain.ErrUnknownToken),
		errors.Is(err, domain.ErrUnknownMarket),
		errors.Is(err, domain.ErrUnknownPool):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, domain.ErrNotController),
		errors.Is(err, domain.ErrNotTokenOwner),
		errors.Is(err, domain.ErrNotApprovedForAll):
		writeError(w, http.StatusForbidden, err.Error())
	case errors.Is(err, domain.ErrConditionAlreadyPrepared),
		errors.Is(err, domain.ErrConditionAlreadyResolved),
		errors.Is(err, domain.ErrQuestionAlreadyRegistered),
		errors.Is(err, domain.ErrPayoutsAlreadyReported),
		errors.Is(err, domain.ErrWrapperAlreadyRegistered),
		errors.Is(err, domain.ErrPoolAlreadyInitialized),
		errors.Is(err, domain.ErrAlreadyExists):
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, domain.ErrInsufficientBalance),
		errors.Is(err, domain.ErrInsufficientAllowance),
		errors.Is(err, domain.ErrBPTOutBelowMin),
		errors.Is(err, domain.ErrExitBelowMin),
		errors.Is(err, domain.ErrPoolNotInitialized),
		errors.Is(err, domain.ErrTimestampNotReached),
		errors.Is(err, domain.ErrNothingToRedeem):
		writeError(w, http.StatusUnprocessableEntity, err.Error())
	case errors.Is(err, domain.ErrInvalidOutcomeSlotCount),
		errors.Is(err, domain.ErrInvalidIndexSet),
		errors.Is(err, domain.ErrInvalidPartition),
		errors.Is(err, domain.ErrPayoutsLength),
		errors.Is(err, domain.ErrPayoutsAllZero),
		errors.Is(err, domain.ErrPayoutsNotReported),
		errors.Is(err, domain.ErrNameCountMismatch),
		errors.Is(err, domain.ErrSymbolCountMismatch),
		errors.Is(err, domain.ErrTimestampNotInFuture),
		errors.Is(err, domain.ErrTooManyOutcomes),
		errors.Is(err, domain.ErrOddCollateral),
		errors.Is(err, domain.ErrPoolAmountsLength),
		errors.Is(err, domain.ErrAmountOverflow):
		writeError(w, http.StatusBadRequest, err.Error())
	default:
		logger.ErrorContext(r.Context(), "handler: internal error",
			slog.String("path", r.URL.Path),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "internal server error")
	}
}

// decodeBody decodes the JSON request body into v, rejecting unknown fields.
func decodeBody(r *http.Request, v any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("invalid request body: %w", err)
	}
	return nil
}

// callerAddress extracts and validates the caller account header.
func callerAddress(r *http.Request) (common.Address, error) {
	v := r.Header.Get(accountHeader)
	if v == "" {
		return common.Address{}, fmt.Errorf("missing %s header", accountHeader)
	}
	if !common.IsHexAddress(v) {
		return common.Address{}, fmt.Errorf("%s is not a hex address", accountHeader)
	}
	return common.HexToAddress(v), nil
}

// parseAddress validates and parses a hex address field.
func parseAddress(field, v string) (common.Address, error) {
	if !common.IsHexAddress(v) {
		return common.Address{}, fmt.Errorf("%s is not a hex address", field)
	}
	return common.HexToAddress(v), nil
}

// parseAmount parses a decimal amount string into a uint256.
func parseAmount(field, v string) (*uint256.Int, error) {
	if v == "" {
		return nil, fmt.Errorf("%s must not be empty", field)
	}
	amount, err := uint256.FromDecimal(v)
	if err != nil {
		return nil, fmt.Errorf("%s is not a decimal amount: %w", field, err)
	}
	return amount, nil
}

// parseAmounts parses a list of decimal amount strings.
func parseAmounts(field string, vs []string) ([]*uint256.Int, error) {
	out := make([]*uint256.Int, len(vs))
	for i, v := range vs {
		amount, err := parseAmount(fmt.Sprintf("%s[%d]", field, i), v)
		if err != nil {
			return nil, err
		}
		out[i] = amount
	}
	return out, nil
}

// parseIndexSets converts raw index-set masks.
func parseIndexSets(vs []uint64) []domain.IndexSet {
	out := make([]domain.IndexSet, len(vs))
	for i, v := range vs {
		out[i] = domain.IndexSet(v)
	}
	return out
}

// parseLimit extracts a limit query parameter. Defaults to 100, capped at 500.
func parseLimit(r *http.Request) int {
	limit := 100
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			limit = n
		}
	}
	if limit > 500 {
		limit = 500
	}
	return limit
}

// pathParam extracts a named path parameter (Go 1.22 routing).
func pathParam(r *http.Request, name string) string {
	return r.PathValue(name)
}

package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/alanyoungcy/ctmarket/internal/domain"
	"github.com/alanyoungcy/ctmarket/internal/engine"
	"github.com/alanyoungcy/ctmarket/internal/notify"
)

// OracleService wraps the resolution oracle. Registering a question prepares
// its condition; resolving reports payouts to the ledger. Question and
// condition records are written through after the in-memory commit, and the
// payout cache is primed on resolution.
type OracleService struct {
	oracle     *engine.Oracle
	ledger     *engine.Ledger
	questions  domain.QuestionStore
	conditions domain.ConditionStore
	payouts    domain.PayoutCache
	audit      domain.AuditStore
	notifier   *notify.Notifier
	logger     *slog.Logger
}

// NewOracleService creates an OracleService with all dependencies.
func NewOracleService(
	oracle *engine.Oracle,
	ledger *engine.Ledger,
	questions domain.QuestionStore,
	conditions domain.ConditionStore,
	payouts domain.PayoutCache,
	audit domain.AuditStore,
	notifier *notify.Notifier,
	logger *slog.Logger,
) *OracleService {
	return &OracleService{
		oracle:     oracle,
		ledger:     ledger,
		questions:  questions,
		conditions: conditions,
		payouts:    payouts,
		audit:      audit,
		notifier:   notifier,
		logger:     logger.With(slog.String("component", "oracle_service")),
	}
}

// Address returns the oracle's derived account address, the one conditions
// must be prepared under.
func (s *OracleService) Address() common.Address { return s.oracle.Address() }

// Register prepares the question's condition under the oracle address and
// registers the question with its resolution time. Controller only.
func (s *OracleService) Register(ctx context.Context, caller common.Address, questionID domain.QuestionID, outcomeSlotCount int, resolutionTime time.Time) (domain.Question, error) {
	conditionID := domain.ConditionIDFor(s.oracle.Address(), questionID, outcomeSlotCount)
	if _, err := s.ledger.PrepareCondition(s.oracle.Address(), questionID, outcomeSlotCount); err != nil {
		// A previously prepared condition is fine; registration still
		// validates it below.
		if !errors.Is(err, domain.ErrConditionAlreadyPrepared) {
			return domain.Question{}, fmt.Errorf("oracle_service: prepare condition: %w", err)
		}
	}

	if err := s.oracle.Register(caller, questionID, outcomeSlotCount, resolutionTime); err != nil {
		return domain.Question{}, fmt.Errorf("oracle_service: register: %w", err)
	}

	q, err := s.oracle.Question(questionID)
	if err != nil {
		return domain.Question{}, fmt.Errorf("oracle_service: read back %s: %w", questionID.Hex(), err)
	}

	s.persistQuestion(ctx, q)
	if cond, err := s.ledger.Condition(conditionID); err == nil {
		s.persistCondition(ctx, cond)
	}
	s.auditLog(ctx, "question.registered", map[string]any{
		"question_id":        questionID.Hex(),
		"condition_id":       conditionID.Hex(),
		"outcome_slot_count": outcomeSlotCount,
		"resolution_time":    resolutionTime.UTC().Format(time.RFC3339),
	})
	s.notify(ctx, notify.EventQuestionRegistered, "Question registered",
		fmt.Sprintf("question %s resolves at %s", questionID.Hex(), resolutionTime.UTC().Format(time.RFC3339)))

	return q, nil
}

// Resolve reports the payout vector for a registered question once its
// resolution time has been reached. Controller only.
func (s *OracleService) Resolve(ctx context.Context, caller common.Address, questionID domain.QuestionID, payouts []uint64) (domain.Question, error) {
	if err := s.oracle.Resolve(caller, questionID, payouts); err != nil {
		return domain.Question{}, fmt.Errorf("oracle_service: resolve: %w", err)
	}

	q, err := s.oracle.Question(questionID)
	if err != nil {
		return domain.Question{}, fmt.Errorf("oracle_service: read back %s: %w", questionID.Hex(), err)
	}

	s.persistQuestion(ctx, q)
	if cond, err := s.ledger.Condition(q.ConditionID); err == nil {
		s.persistCondition(ctx, cond)
		if cacheErr := s.payouts.Set(ctx, q.ConditionID, cond.PayoutNumerators); cacheErr != nil {
			s.logger.WarnContext(ctx, "payout cache set failed",
				slog.String("condition_id", q.ConditionID.Hex()),
				slog.String("error", cacheErr.Error()),
			)
		}
	}
	s.auditLog(ctx, "question.resolved", map[string]any{
		"question_id":  questionID.Hex(),
		"condition_id": q.ConditionID.Hex(),
		"payouts":      payouts,
	})
	s.notify(ctx, notify.EventQuestionResolved, "Question resolved",
		fmt.Sprintf("question %s resolved with payouts %s", questionID.Hex(), formatPayouts(payouts)))

	return q, nil
}

// Question returns a registered question.
func (s *OracleService) Question(questionID domain.QuestionID) (domain.Question, error) {
	q, err := s.oracle.Question(questionID)
	if err != nil {
		return domain.Question{}, fmt.Errorf("oracle_service: question %s: %w", questionID.Hex(), err)
	}
	return q, nil
}

// Questions returns every registered question.
func (s *OracleService) Questions() []domain.Question {
	return s.oracle.Questions()
}

// Unresolved returns registered-but-unresolved questions from the persistent
// store, ordered by resolution time.
func (s *OracleService) Unresolved(ctx context.Context) ([]domain.Question, error) {
	qs, err := s.questions.ListUnresolved(ctx)
	if err != nil {
		return nil, fmt.Errorf("oracle_service: list unresolved: %w", err)
	}
	return qs, nil
}

func (s *OracleService) persistQuestion(ctx context.Context, q domain.Question) {
	if err := s.questions.Upsert(ctx, q); err != nil {
		s.logger.ErrorContext(ctx, "question upsert failed",
			slog.String("question_id", q.ID.Hex()),
			slog.String("error", err.Error()),
		)
	}
}

func (s *OracleService) persistCondition(ctx context.Context, cond domain.Condition) {
	if err := s.conditions.Upsert(ctx, cond); err != nil {
		s.logger.ErrorContext(ctx, "condition upsert failed",
			slog.String("condition_id", cond.ID.Hex()),
			slog.String("error", err.Error()),
		)
	}
}

func (s *OracleService) auditLog(ctx context.Context, event string, detail map[string]any) {
	if err := s.audit.Log(ctx, event, detail); err != nil {
		s.logger.WarnContext(ctx, "audit log failed",
			slog.String("event", event),
			slog.String("error", err.Error()),
		)
	}
}

func (s *OracleService) notify(ctx context.Context, event, title, message string) {
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

func formatPayouts(payouts []uint64) string {
	parts := make([]string, len(payouts))
	for i, p := range payouts {
		parts[i] = fmt.Sprintf("%d", p)
	}
	return "[" + strings.Join(parts, ", ") + "]"
}

package engine

import (
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/alanyoungcy/ctmarket/internal/domain"
	"github.com/alanyoungcy/ctmarket/internal/state"
)

// Oracle is the time-gated resolution authority. It registers questions with
// a future resolution timestamp and, once that timestamp has passed, forwards
// the controller's payout vector to the ledger under the oracle's own
// reporting address.
type Oracle struct {
	store      *state.Store
	ledger     *Ledger
	address    common.Address
	controller common.Address
	questions  map[domain.QuestionID]*domain.Question
	now        func() time.Time
}

// NewOracle creates an Oracle controlled by controller. The oracle's derived
// address is the reporting address conditions must be prepared with.
func NewOracle(store *state.Store, ledger *Ledger, controller common.Address) *Oracle {
	return &Oracle{
		store:      store,
		ledger:     ledger,
		address:    domain.DeriveAddress("ctmarket/oracle", 0),
		controller: controller,
		questions:  make(map[domain.QuestionID]*domain.Question),
		now:        time.Now,
	}
}

// Address returns the oracle's reporting address.
func (o *Oracle) Address() common.Address { return o.address }

// SetClock overrides the oracle's time source. Intended for tests.
func (o *Oracle) SetClock(now func() time.Time) { o.now = now }

// Register records a question whose condition resolves no earlier than
// resolutionTime. The condition must already be prepared in the ledger with
// the oracle as reporter, and resolutionTime must be in the future.
func (o *Oracle) Register(caller common.Address, questionID domain.QuestionID, outcomeSlotCount int, resolutionTime time.Time) error {
	return o.store.Update(func() error {
		if caller != o.controller {
			return domain.ErrNotController
		}
		if _, ok := o.questions[questionID]; ok {
			return domain.ErrQuestionAlreadyRegistered
		}
		conditionID := domain.ConditionIDFor(o.address, questionID, outcomeSlotCount)
		cond, err := o.ledger.condition(conditionID)
		if err != nil {
			return err
		}
		if cond.Resolved() {
			return domain.ErrConditionAlreadyResolved
		}
		if !resolutionTime.After(o.now()) {
			return domain.ErrTimestampNotInFuture
		}
		o.questions[questionID] = &domain.Question{
			ID:               questionID,
			ConditionID:      conditionID,
			OutcomeSlotCount: outcomeSlotCount,
			ResolutionTime:   resolutionTime.UTC(),
			RegisteredAt:     o.now().UTC(),
		}
		o.store.Record(func() { delete(o.questions, questionID) })
		return nil
	})
}

// Resolve reports the payout vector for a registered question. It fails
// until the question's resolution timestamp has been reached, and at most one
// resolution ever succeeds per question.
func (o *Oracle) Resolve(caller common.Address, questionID domain.QuestionID, payouts []uint64) error {
	return o.store.Update(func() error {
		if caller != o.controller {
			return domain.ErrNotController
		}
		q, ok := o.questions[questionID]
		if !ok {
			return domain.ErrQuestionNotRegistered
		}
		if len(payouts) != q.OutcomeSlotCount {
			return domain.ErrPayoutsLength
		}
		now := o.now()
		if now.Before(q.ResolutionTime) {
			return domain.ErrTimestampNotReached
		}
		if q.Resolved {
			return domain.ErrConditionAlreadyResolved
		}
		if err := o.ledger.reportPayouts(o.address, questionID, payouts); err != nil {
			return err
		}

		wasResolvedAt := q.ResolvedAt
		wasPayouts := q.Payouts
		o.store.Record(func() {
			q.Resolved = false
			q.ResolvedAt = wasResolvedAt
			q.Payouts = wasPayouts
		})
		resolvedAt := now.UTC()
		q.Resolved = true
		q.ResolvedAt = &resolvedAt
		q.Payouts = append([]uint64(nil), payouts...)
		return nil
	})
}

// Question returns the registration record for questionID.
func (o *Oracle) Question(questionID domain.QuestionID) (domain.Question, error) {
	var out domain.Question
	err := o.store.View(func() error {
		q, ok := o.questions[questionID]
		if !ok {
			return domain.ErrQuestionNotRegistered
		}
		out = *q
		return nil
	})
	return out, err
}

// ResolutionTime returns the registered resolution timestamp for questionID.
func (o *Oracle) ResolutionTime(questionID domain.QuestionID) (time.Time, error) {
	q, err := o.Question(questionID)
	if err != nil {
		return time.Time{}, err
	}
	return q.ResolutionTime, nil
}

// Questions returns all registered questions in no particular order.
func (o *Oracle) Questions() []domain.Question {
	var out []domain.Question
	_ = o.store.View(func() error {
		for _, q := range o.questions {
			out = append(out, *q)
		}
		return nil
	})
	return out
}

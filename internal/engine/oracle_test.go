package engine

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/ctmarket/internal/domain"
)

func TestOracleRegister(t *testing.T) {
	r := newRig(t)
	r.prepare(t, qid("q1"), 2)

	deadline := r.clock.Now().Add(time.Hour)
	require.NoError(t, r.oracle.Register(admin, qid("q1"), 2, deadline))

	q, err := r.oracle.Question(qid("q1"))
	require.NoError(t, err)
	assert.Equal(t, deadline, q.ResolutionTime)
	assert.False(t, q.Resolved)

	got, err := r.oracle.ResolutionTime(qid("q1"))
	require.NoError(t, err)
	assert.Equal(t, deadline, got)
}

func TestOracleRegisterValidation(t *testing.T) {
	r := newRig(t)
	r.prepare(t, qid("q1"), 2)
	future := r.clock.Now().Add(time.Hour)

	err := r.oracle.Register(alice, qid("q1"), 2, future)
	assert.ErrorIs(t, err, domain.ErrNotController)

	err = r.oracle.Register(admin, qid("q1"), 2, r.clock.Now())
	assert.ErrorIs(t, err, domain.ErrTimestampNotInFuture)
	err = r.oracle.Register(admin, qid("q1"), 2, r.clock.Now().Add(-time.Minute))
	assert.ErrorIs(t, err, domain.ErrTimestampNotInFuture)

	// Condition must be prepared under the oracle's address first.
	err = r.oracle.Register(admin, qid("q2"), 2, future)
	assert.ErrorIs(t, err, domain.ErrConditionNotPrepared)

	require.NoError(t, r.oracle.Register(admin, qid("q1"), 2, future))
	err = r.oracle.Register(admin, qid("q1"), 2, future)
	assert.ErrorIs(t, err, domain.ErrQuestionAlreadyRegistered)
}

func TestOracleResolve(t *testing.T) {
	r := newRig(t)
	conditionID := r.prepare(t, qid("q1"), 2)
	require.NoError(t, r.oracle.Register(admin, qid("q1"), 2, r.clock.Now().Add(time.Hour)))

	err := r.oracle.Resolve(admin, qid("q1"), []uint64{1, 0})
	assert.ErrorIs(t, err, domain.ErrTimestampNotReached)

	r.clock.Advance(time.Hour)
	require.NoError(t, r.oracle.Resolve(admin, qid("q1"), []uint64{1, 0}))

	cond, err := r.ledger.Condition(conditionID)
	require.NoError(t, err)
	assert.True(t, cond.Resolved())
	assert.Equal(t, []uint64{1, 0}, cond.PayoutNumerators)

	q, err := r.oracle.Question(qid("q1"))
	require.NoError(t, err)
	assert.True(t, q.Resolved)
	assert.Equal(t, []uint64{1, 0}, q.Payouts)
}

func TestOracleResolveValidation(t *testing.T) {
	r := newRig(t)
	r.prepare(t, qid("q1"), 2)
	require.NoError(t, r.oracle.Register(admin, qid("q1"), 2, r.clock.Now().Add(time.Hour)))
	r.clock.Advance(2 * time.Hour)

	err := r.oracle.Resolve(alice, qid("q1"), []uint64{1, 0})
	assert.ErrorIs(t, err, domain.ErrNotController)

	err = r.oracle.Resolve(admin, qid("q2"), []uint64{1, 0})
	assert.ErrorIs(t, err, domain.ErrQuestionNotRegistered)

	err = r.oracle.Resolve(admin, qid("q1"), []uint64{1, 0, 0})
	assert.ErrorIs(t, err, domain.ErrPayoutsLength)

	require.NoError(t, r.oracle.Resolve(admin, qid("q1"), []uint64{1, 0}))
	err = r.oracle.Resolve(admin, qid("q1"), []uint64{0, 1})
	assert.ErrorIs(t, err, domain.ErrConditionAlreadyResolved)
}

func TestOracleResolveAtExactTimestamp(t *testing.T) {
	r := newRig(t)
	r.prepare(t, qid("q1"), 2)
	deadline := r.clock.Now().Add(time.Hour)
	require.NoError(t, r.oracle.Register(admin, qid("q1"), 2, deadline))

	r.clock.Advance(time.Hour)
	assert.NoError(t, r.oracle.Resolve(admin, qid("q1"), []uint64{0, 1}))
}

func TestOracleRegisterResolvedCondition(t *testing.T) {
	r := newRig(t)
	r.prepare(t, qid("q1"), 2)
	// Payouts reported out-of-band under the oracle's address.
	require.NoError(t, r.ledger.ReportPayouts(r.oracle.Address(), qid("q1"), []uint64{1, 0}))

	err := r.oracle.Register(admin, qid("q1"), 2, r.clock.Now().Add(time.Hour))
	assert.ErrorIs(t, err, domain.ErrConditionAlreadyResolved)
}

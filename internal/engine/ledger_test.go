package engine

import (
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/ctmarket/internal/domain"
)

func TestPrepareCondition(t *testing.T) {
	r := newRig(t)
	id, err := r.ledger.PrepareCondition(admin, qid("q1"), 2)
	require.NoError(t, err)
	assert.Equal(t, domain.ConditionIDFor(admin, qid("q1"), 2), id)

	cond, err := r.ledger.Condition(id)
	require.NoError(t, err)
	assert.Equal(t, 2, cond.OutcomeSlotCount)
	assert.False(t, cond.Resolved())
}

func TestPrepareConditionTwiceFails(t *testing.T) {
	r := newRig(t)
	_, err := r.ledger.PrepareCondition(admin, qid("q1"), 2)
	require.NoError(t, err)
	_, err = r.ledger.PrepareCondition(admin, qid("q1"), 2)
	assert.ErrorIs(t, err, domain.ErrConditionAlreadyPrepared)

	// Same question with a different slot count is a distinct condition.
	_, err = r.ledger.PrepareCondition(admin, qid("q1"), 3)
	assert.NoError(t, err)
}

func TestPrepareConditionSlotCountBounds(t *testing.T) {
	r := newRig(t)
	_, err := r.ledger.PrepareCondition(admin, qid("q1"), 1)
	assert.ErrorIs(t, err, domain.ErrInvalidOutcomeSlotCount)
	_, err = r.ledger.PrepareCondition(admin, qid("q1"), domain.MaxOutcomeSlots+1)
	assert.ErrorIs(t, err, domain.ErrInvalidOutcomeSlotCount)
}

func TestReportPayouts(t *testing.T) {
	r := newRig(t)
	id, err := r.ledger.PrepareCondition(admin, qid("q1"), 2)
	require.NoError(t, err)

	require.NoError(t, r.ledger.ReportPayouts(admin, qid("q1"), []uint64{1, 0}))
	cond, err := r.ledger.Condition(id)
	require.NoError(t, err)
	assert.True(t, cond.Resolved())
	assert.Equal(t, []uint64{1, 0}, cond.PayoutNumerators)
	assert.Equal(t, uint256.NewInt(1), cond.PayoutDenominator)
}

func TestReportPayoutsOnlyHitsOwnCondition(t *testing.T) {
	r := newRig(t)
	_, err := r.ledger.PrepareCondition(admin, qid("q1"), 2)
	require.NoError(t, err)

	// A different caller derives a different condition id, which is not
	// prepared.
	err = r.ledger.ReportPayouts(alice, qid("q1"), []uint64{1, 0})
	assert.ErrorIs(t, err, domain.ErrConditionNotPrepared)
}

func TestReportPayoutsValidation(t *testing.T) {
	r := newRig(t)
	_, err := r.ledger.PrepareCondition(admin, qid("q1"), 2)
	require.NoError(t, err)

	err = r.ledger.ReportPayouts(admin, qid("q1"), []uint64{0, 0})
	assert.ErrorIs(t, err, domain.ErrPayoutsAllZero)

	require.NoError(t, r.ledger.ReportPayouts(admin, qid("q1"), []uint64{3, 1}))
	err = r.ledger.ReportPayouts(admin, qid("q1"), []uint64{1, 3})
	assert.ErrorIs(t, err, domain.ErrPayoutsAlreadyReported)
}

func TestSplitPositionFromCollateral(t *testing.T) {
	r := newRig(t)
	r.fund(t, alice, e18(100))
	id := r.prepare(t, qid("q1"), 2)
	require.NoError(t, r.bank.Approve(alice, r.collateral, r.ledger.Custody(), domain.InfiniteAllowance()))

	partition := []domain.IndexSet{0b01, 0b10}
	require.NoError(t, r.ledger.SplitPosition(alice, r.collateral, domain.RootCollectionID, id, partition, e18(60)))

	assert.Equal(t, e18(40), r.bank.BalanceOf(r.collateral, alice))
	assert.Equal(t, e18(60), r.bank.BalanceOf(r.collateral, r.ledger.Custody()))
	for _, set := range partition {
		pos := domain.PositionIDFor(r.collateral, domain.CombineCollectionID(domain.RootCollectionID, id, set))
		assert.Equal(t, e18(60), r.ledger.BalanceOf(alice, pos))
	}
}

func TestSplitPositionValidation(t *testing.T) {
	r := newRig(t)
	r.fund(t, alice, e18(10))
	id := r.prepare(t, qid("q1"), 2)
	require.NoError(t, r.bank.Approve(alice, r.collateral, r.ledger.Custody(), domain.InfiniteAllowance()))

	tests := []struct {
		name      string
		partition []domain.IndexSet
		want      error
	}{
		{"singleton partition", []domain.IndexSet{0b01}, domain.ErrInvalidPartition},
		{"overlapping sets", []domain.IndexSet{0b01, 0b11}, domain.ErrInvalidPartition},
		{"empty set", []domain.IndexSet{0b01, 0}, domain.ErrInvalidIndexSet},
		{"set out of range", []domain.IndexSet{0b01, 0b100}, domain.ErrInvalidIndexSet},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := r.ledger.SplitPosition(alice, r.collateral, domain.RootCollectionID, id, tt.partition, e18(1))
			assert.ErrorIs(t, err, tt.want)
		})
	}

	err := r.ledger.SplitPosition(alice, r.collateral, domain.RootCollectionID, domain.ConditionID{1}, []domain.IndexSet{0b01, 0b10}, e18(1))
	assert.ErrorIs(t, err, domain.ErrConditionNotPrepared)
}

func TestSplitMergeRoundTrip(t *testing.T) {
	r := newRig(t)
	r.fund(t, alice, e18(100))
	id := r.prepare(t, qid("q1"), 3)
	require.NoError(t, r.bank.Approve(alice, r.collateral, r.ledger.Custody(), domain.InfiniteAllowance()))

	partition := []domain.IndexSet{0b001, 0b010, 0b100}
	require.NoError(t, r.ledger.SplitPosition(alice, r.collateral, domain.RootCollectionID, id, partition, e18(100)))
	require.NoError(t, r.ledger.MergePositions(alice, r.collateral, domain.RootCollectionID, id, partition, e18(100)))

	assert.Equal(t, e18(100), r.bank.BalanceOf(r.collateral, alice))
	assert.True(t, r.bank.BalanceOf(r.collateral, r.ledger.Custody()).IsZero())
	for _, set := range partition {
		pos := domain.PositionIDFor(r.collateral, domain.CombineCollectionID(domain.RootCollectionID, id, set))
		assert.True(t, r.ledger.BalanceOf(alice, pos).IsZero())
	}
}

func TestSplitPartialPartition(t *testing.T) {
	r := newRig(t)
	r.fund(t, alice, e18(10))
	id := r.prepare(t, qid("q1"), 3)
	require.NoError(t, r.bank.Approve(alice, r.collateral, r.ledger.Custody(), domain.InfiniteAllowance()))

	// Split into {AB, C}, then split AB into {A, B}. The second split debits
	// the AB union position, not collateral.
	require.NoError(t, r.ledger.SplitPosition(alice, r.collateral, domain.RootCollectionID, id, []domain.IndexSet{0b011, 0b100}, e18(10)))
	require.NoError(t, r.ledger.SplitPosition(alice, r.collateral, domain.RootCollectionID, id, []domain.IndexSet{0b001, 0b010}, e18(10)))

	abPos := domain.PositionIDFor(r.collateral, domain.CombineCollectionID(domain.RootCollectionID, id, 0b011))
	assert.True(t, r.ledger.BalanceOf(alice, abPos).IsZero())
	aPos := domain.PositionIDFor(r.collateral, domain.CombineCollectionID(domain.RootCollectionID, id, 0b001))
	assert.Equal(t, e18(10), r.ledger.BalanceOf(alice, aPos))

	// Merging {A, B} restores the union position.
	require.NoError(t, r.ledger.MergePositions(alice, r.collateral, domain.RootCollectionID, id, []domain.IndexSet{0b001, 0b010}, e18(10)))
	assert.Equal(t, e18(10), r.ledger.BalanceOf(alice, abPos))
}

func TestSplitDeeperCollection(t *testing.T) {
	r := newRig(t)
	r.fund(t, alice, e18(10))
	c1 := r.prepare(t, qid("q1"), 2)
	c2 := r.prepare(t, qid("q2"), 2)
	require.NoError(t, r.bank.Approve(alice, r.collateral, r.ledger.Custody(), domain.InfiniteAllowance()))

	require.NoError(t, r.ledger.SplitPosition(alice, r.collateral, domain.RootCollectionID, c1, []domain.IndexSet{0b01, 0b10}, e18(10)))

	// Condition the YES position of c1 on c2.
	parent := domain.CombineCollectionID(domain.RootCollectionID, c1, 0b01)
	require.NoError(t, r.ledger.SplitPosition(alice, r.collateral, parent, c2, []domain.IndexSet{0b01, 0b10}, e18(10)))

	parentPos := domain.PositionIDFor(r.collateral, parent)
	assert.True(t, r.ledger.BalanceOf(alice, parentPos).IsZero())

	deep := domain.PositionIDFor(r.collateral, domain.CombineCollectionID(parent, c2, 0b01))
	assert.Equal(t, e18(10), r.ledger.BalanceOf(alice, deep))

	require.NoError(t, r.ledger.MergePositions(alice, r.collateral, parent, c2, []domain.IndexSet{0b01, 0b10}, e18(10)))
	assert.Equal(t, e18(10), r.ledger.BalanceOf(alice, parentPos))
}

func TestSplitInsufficientCollateralRollsBack(t *testing.T) {
	r := newRig(t)
	r.fund(t, alice, e18(5))
	id := r.prepare(t, qid("q1"), 2)
	require.NoError(t, r.bank.Approve(alice, r.collateral, r.ledger.Custody(), domain.InfiniteAllowance()))

	err := r.ledger.SplitPosition(alice, r.collateral, domain.RootCollectionID, id, []domain.IndexSet{0b01, 0b10}, e18(10))
	assert.ErrorIs(t, err, domain.ErrInsufficientBalance)
	assert.Equal(t, e18(5), r.bank.BalanceOf(r.collateral, alice))
	assert.True(t, r.bank.BalanceOf(r.collateral, r.ledger.Custody()).IsZero())
}

func TestRedeemPositions(t *testing.T) {
	r := newRig(t)
	r.fund(t, alice, e18(100))
	id := r.prepare(t, qid("q1"), 2)
	require.NoError(t, r.bank.Approve(alice, r.collateral, r.ledger.Custody(), domain.InfiniteAllowance()))
	require.NoError(t, r.ledger.SplitPosition(alice, r.collateral, domain.RootCollectionID, id, []domain.IndexSet{0b01, 0b10}, e18(100)))

	_, err := r.ledger.RedeemPositions(alice, r.collateral, domain.RootCollectionID, id, []domain.IndexSet{0b01, 0b10})
	assert.ErrorIs(t, err, domain.ErrPayoutsNotReported)

	require.NoError(t, r.ledger.ReportPayouts(admin, qid("q1"), []uint64{3, 1}))
	payout, err := r.ledger.RedeemPositions(alice, r.collateral, domain.RootCollectionID, id, []domain.IndexSet{0b01, 0b10})
	require.NoError(t, err)

	// 100 * 3/4 from the first slot plus 100 * 1/4 from the second.
	assert.Equal(t, e18(100), payout)
	assert.Equal(t, e18(100), r.bank.BalanceOf(r.collateral, alice))
	assert.True(t, r.bank.BalanceOf(r.collateral, r.ledger.Custody()).IsZero())
}

func TestRedeemLosingSideOnly(t *testing.T) {
	r := newRig(t)
	r.fund(t, alice, e18(100))
	id := r.prepare(t, qid("q1"), 2)
	require.NoError(t, r.bank.Approve(alice, r.collateral, r.ledger.Custody(), domain.InfiniteAllowance()))
	require.NoError(t, r.ledger.SplitPosition(alice, r.collateral, domain.RootCollectionID, id, []domain.IndexSet{0b01, 0b10}, e18(100)))
	require.NoError(t, r.ledger.ReportPayouts(admin, qid("q1"), []uint64{1, 0}))

	payout, err := r.ledger.RedeemPositions(alice, r.collateral, domain.RootCollectionID, id, []domain.IndexSet{0b10})
	require.NoError(t, err)
	assert.True(t, payout.IsZero())
	assert.True(t, r.bank.BalanceOf(r.collateral, alice).IsZero())

	losing := domain.PositionIDFor(r.collateral, domain.CombineCollectionID(domain.RootCollectionID, id, 0b10))
	assert.True(t, r.ledger.BalanceOf(alice, losing).IsZero(), "losing balance is burned even with zero payout")
}

func TestSafeTransferFromRequiresApproval(t *testing.T) {
	r := newRig(t)
	r.fund(t, alice, e18(10))
	id := r.prepare(t, qid("q1"), 2)
	require.NoError(t, r.bank.Approve(alice, r.collateral, r.ledger.Custody(), domain.InfiniteAllowance()))
	require.NoError(t, r.ledger.SplitPosition(alice, r.collateral, domain.RootCollectionID, id, []domain.IndexSet{0b01, 0b10}, e18(10)))

	pos := domain.PositionIDFor(r.collateral, domain.CombineCollectionID(domain.RootCollectionID, id, 0b01))

	err := r.ledger.SafeTransferFrom(bob, alice, carol, pos, e18(1))
	assert.ErrorIs(t, err, domain.ErrNotApprovedForAll)

	r.ledger.SetApprovalForAll(alice, bob, true)
	require.NoError(t, r.ledger.SafeTransferFrom(bob, alice, carol, pos, e18(1)))
	assert.Equal(t, e18(1), r.ledger.BalanceOf(carol, pos))

	r.ledger.SetApprovalForAll(alice, bob, false)
	err = r.ledger.SafeTransferFrom(bob, alice, carol, pos, e18(1))
	assert.ErrorIs(t, err, domain.ErrNotApprovedForAll)
}

func TestBatchBalanceOf(t *testing.T) {
	r := newRig(t)
	r.fund(t, alice, e18(10))
	id := r.prepare(t, qid("q1"), 2)
	require.NoError(t, r.bank.Approve(alice, r.collateral, r.ledger.Custody(), domain.InfiniteAllowance()))
	require.NoError(t, r.ledger.SplitPosition(alice, r.collateral, domain.RootCollectionID, id, []domain.IndexSet{0b01, 0b10}, e18(10)))

	yes := domain.PositionIDFor(r.collateral, domain.CombineCollectionID(domain.RootCollectionID, id, 0b01))
	no := domain.PositionIDFor(r.collateral, domain.CombineCollectionID(domain.RootCollectionID, id, 0b10))

	balances, err := r.ledger.BatchBalanceOf(
		[]common.Address{alice, alice, bob},
		[]domain.PositionID{yes, no, yes},
	)
	require.NoError(t, err)
	assert.Equal(t, e18(10), balances[0])
	assert.Equal(t, e18(10), balances[1])
	assert.True(t, balances[2].IsZero())
}

func TestGetCollectionID(t *testing.T) {
	r := newRig(t)
	id := r.prepare(t, qid("q1"), 2)

	col, err := r.ledger.GetCollectionID(domain.RootCollectionID, id, 0b01)
	require.NoError(t, err)
	assert.Equal(t, domain.CombineCollectionID(domain.RootCollectionID, id, 0b01), col)

	_, err = r.ledger.GetCollectionID(domain.RootCollectionID, id, 0b11)
	assert.ErrorIs(t, err, domain.ErrInvalidIndexSet)
	_, err = r.ledger.GetCollectionID(domain.RootCollectionID, domain.ConditionID{1}, 0b01)
	assert.ErrorIs(t, err, domain.ErrConditionNotPrepared)
}

package engine

import (
	"testing"

	"github.com/holiman/uint256"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/ctmarket/internal/domain"
)

func TestRegisterWrapper(t *testing.T) {
	r := newRig(t)
	id := r.prepare(t, qid("q1"), 2)

	addr, err := r.transmuter.Register(id, r.collateral, 0b01, "Outcome Yes", "YES")
	require.NoError(t, err)

	pos := domain.PositionIDFor(r.collateral, domain.CombineCollectionID(domain.RootCollectionID, id, 0b01))
	got, err := r.transmuter.Token(pos)
	require.NoError(t, err)
	assert.Equal(t, addr, got)

	info, err := r.transmuter.Wrapper(addr)
	require.NoError(t, err)
	assert.Equal(t, pos, info.PositionID)
	assert.Equal(t, domain.IndexSet(0b01), info.IndexSet)

	// Wrapper decimals follow the collateral token.
	tokInfo, err := r.bank.Info(addr)
	require.NoError(t, err)
	assert.Equal(t, uint8(18), tokInfo.Decimals)
	assert.Equal(t, "YES", tokInfo.Symbol)
}

func TestRegisterWrapperValidation(t *testing.T) {
	r := newRig(t)
	id := r.prepare(t, qid("q1"), 2)

	_, err := r.transmuter.Register(domain.ConditionID{1}, r.collateral, 0b01, "X", "X")
	assert.ErrorIs(t, err, domain.ErrConditionNotPrepared)

	_, err = r.transmuter.Register(id, r.collateral, 0, "X", "X")
	assert.ErrorIs(t, err, domain.ErrInvalidIndexSet)
	_, err = r.transmuter.Register(id, r.collateral, 0b11, "X", "X")
	assert.ErrorIs(t, err, domain.ErrInvalidIndexSet)

	_, err = r.transmuter.Register(id, r.collateral, 0b01, "X", "X")
	require.NoError(t, err)
	_, err = r.transmuter.Register(id, r.collateral, 0b01, "X2", "X2")
	assert.ErrorIs(t, err, domain.ErrWrapperAlreadyRegistered)
}

func TestRegisterBasicPartition(t *testing.T) {
	r := newRig(t)
	id := r.prepare(t, qid("q1"), 3)

	addrs, err := r.transmuter.RegisterBasicPartition(id, r.collateral,
		[]string{"A", "B", "C"}, []string{"A", "B", "C"})
	require.NoError(t, err)
	require.Len(t, addrs, 3)

	for i, addr := range addrs {
		info, err := r.transmuter.Wrapper(addr)
		require.NoError(t, err)
		assert.Equal(t, domain.BasicIndexSet(i), info.IndexSet)
	}
}

func TestRegisterBasicPartitionLengthMismatch(t *testing.T) {
	r := newRig(t)
	id := r.prepare(t, qid("q1"), 3)

	_, err := r.transmuter.RegisterBasicPartition(id, r.collateral,
		[]string{"A", "B"}, []string{"A", "B", "C"})
	assert.ErrorIs(t, err, domain.ErrNameCountMismatch)

	_, err = r.transmuter.RegisterBasicPartition(id, r.collateral,
		[]string{"A", "B", "C"}, []string{"A", "B"})
	assert.ErrorIs(t, err, domain.ErrSymbolCountMismatch)

	// A failed batch registers nothing.
	pos := domain.PositionIDFor(r.collateral, domain.CombineCollectionID(domain.RootCollectionID, id, 0b001))
	_, err = r.transmuter.Token(pos)
	assert.ErrorIs(t, err, domain.ErrWrapperNotRegistered)
}

func TestMintAndBurnWrapper(t *testing.T) {
	r := newRig(t)
	r.fund(t, alice, e18(20))
	id := r.prepare(t, qid("q1"), 2)
	wrapper, err := r.transmuter.Register(id, r.collateral, 0b01, "Yes", "YES")
	require.NoError(t, err)

	require.NoError(t, r.bank.Approve(alice, r.collateral, r.ledger.Custody(), domain.InfiniteAllowance()))
	require.NoError(t, r.ledger.SplitPosition(alice, r.collateral, domain.RootCollectionID, id, []domain.IndexSet{0b01, 0b10}, e18(20)))

	pos := domain.PositionIDFor(r.collateral, domain.CombineCollectionID(domain.RootCollectionID, id, 0b01))

	// Mint needs operator approval on the position ledger.
	err = r.transmuter.Mint(alice, pos, e18(20))
	assert.ErrorIs(t, err, domain.ErrNotApprovedForAll)

	r.ledger.SetApprovalForAll(alice, wrapper, true)
	require.NoError(t, r.transmuter.Mint(alice, pos, e18(20)))
	assert.Equal(t, e18(20), r.bank.BalanceOf(wrapper, alice))
	assert.True(t, r.ledger.BalanceOf(alice, pos).IsZero())
	assert.Equal(t, e18(20), r.ledger.BalanceOf(wrapper, pos), "wrapper holds the position in custody")

	require.NoError(t, r.transmuter.Burn(alice, pos, e18(12)))
	assert.Equal(t, e18(8), r.bank.BalanceOf(wrapper, alice))
	assert.Equal(t, e18(12), r.ledger.BalanceOf(alice, pos))
	assert.Equal(t, e18(8), r.ledger.BalanceOf(wrapper, pos))

	err = r.transmuter.Burn(alice, pos, e18(100))
	assert.ErrorIs(t, err, domain.ErrInsufficientBalance)
}

func TestMintUnregisteredPosition(t *testing.T) {
	r := newRig(t)
	err := r.transmuter.Mint(alice, domain.PositionID{1}, e18(1))
	assert.ErrorIs(t, err, domain.ErrWrapperNotRegistered)
	err = r.transmuter.Burn(alice, domain.PositionID{1}, e18(1))
	assert.ErrorIs(t, err, domain.ErrWrapperNotRegistered)
}

func TestWrapperRejectsDirectPositionPush(t *testing.T) {
	r := newRig(t)
	r.fund(t, alice, e18(10))
	id := r.prepare(t, qid("q1"), 2)
	wrapper, err := r.transmuter.Register(id, r.collateral, 0b01, "Yes", "YES")
	require.NoError(t, err)

	require.NoError(t, r.bank.Approve(alice, r.collateral, r.ledger.Custody(), domain.InfiniteAllowance()))
	require.NoError(t, r.ledger.SplitPosition(alice, r.collateral, domain.RootCollectionID, id, []domain.IndexSet{0b01, 0b10}, e18(10)))

	pos := domain.PositionIDFor(r.collateral, domain.CombineCollectionID(domain.RootCollectionID, id, 0b01))

	// Pushing positions at the wrapper directly must not mint anything.
	err = r.ledger.SafeTransferFrom(alice, alice, wrapper, pos, e18(10))
	assert.ErrorIs(t, err, domain.ErrDirectPositionTransfer)
	assert.Equal(t, e18(10), r.ledger.BalanceOf(alice, pos))
	assert.True(t, r.bank.BalanceOf(wrapper, alice).IsZero())

	err = r.ledger.SafeBatchTransferFrom(alice, alice, wrapper, []domain.PositionID{pos}, []*uint256.Int{e18(10)})
	assert.ErrorIs(t, err, domain.ErrDirectPositionTransfer)
}

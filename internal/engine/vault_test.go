package engine

import (
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/ctmarket/internal/domain"
)

// vaultRig adds a second token and a two-token 50/50 pool to the base rig.
type vaultRig struct {
	*rig
	other  common.Address
	poolID domain.PoolID
	bpt    common.Address
}

func newVaultRig(t *testing.T) *vaultRig {
	t.Helper()
	r := newRig(t)
	other, err := r.bank.CreateToken("Stable", "USDS", 18, admin)
	require.NoError(t, err)

	half := new(uint256.Int).Rsh(domain.FullPoolWeight(), 1)
	var poolID domain.PoolID
	require.NoError(t, r.store.Update(func() error {
		var err error
		poolID, err = r.vault.CreatePool("Test Pool", "TPL",
			[]common.Address{r.collateral, other},
			[]*uint256.Int{half.Clone(), half.Clone()},
			uint256.NewInt(10_000_000_000_000_000), common.Address{})
		return err
	}))
	var bpt common.Address
	require.NoError(t, r.store.View(func() error {
		var err error
		bpt, err = r.vault.GetPool(poolID)
		return err
	}))

	for _, acct := range []common.Address{alice, bob} {
		require.NoError(t, r.bank.Mint(admin, r.collateral, acct, e18(1000)))
		require.NoError(t, r.bank.Mint(admin, other, acct, e18(1000)))
		require.NoError(t, r.bank.Approve(acct, r.collateral, r.vault.Custody(), domain.InfiniteAllowance()))
		require.NoError(t, r.bank.Approve(acct, other, r.vault.Custody(), domain.InfiniteAllowance()))
	}
	return &vaultRig{rig: r, other: other, poolID: poolID, bpt: bpt}
}

func (v *vaultRig) join(t *testing.T, sender common.Address, amounts []*uint256.Int, kind domain.JoinKind, minOut *uint256.Int) (*uint256.Int, error) {
	t.Helper()
	var out *uint256.Int
	err := v.store.Update(func() error {
		var err error
		out, err = v.vault.Join(v.poolID, sender, sender, amounts, kind, minOut)
		return err
	})
	return out, err
}

func (v *vaultRig) exit(t *testing.T, sender common.Address, minOut []*uint256.Int, bptIn *uint256.Int) ([]*uint256.Int, error) {
	t.Helper()
	var out []*uint256.Int
	err := v.store.Update(func() error {
		var err error
		out, err = v.vault.Exit(v.poolID, sender, sender, minOut, bptIn)
		return err
	})
	return out, err
}

func TestCreatePoolValidation(t *testing.T) {
	r := newRig(t)
	half := new(uint256.Int).Rsh(domain.FullPoolWeight(), 1)
	fee := uint256.NewInt(1)

	err := r.store.Update(func() error {
		_, err := r.vault.CreatePool("P", "P", []common.Address{r.collateral}, []*uint256.Int{domain.FullPoolWeight()}, fee, common.Address{})
		return err
	})
	assert.ErrorIs(t, err, domain.ErrTooManyPoolTokens)

	err = r.store.Update(func() error {
		_, err := r.vault.CreatePool("P", "P", []common.Address{r.collateral, alice}, []*uint256.Int{half, half}, fee, common.Address{})
		return err
	})
	assert.ErrorIs(t, err, domain.ErrUnknownToken)

	other, err := r.bank.CreateToken("Other", "OTH", 18, admin)
	require.NoError(t, err)
	err = r.store.Update(func() error {
		_, err := r.vault.CreatePool("P", "P", []common.Address{r.collateral, other}, []*uint256.Int{half, uint256.NewInt(1)}, fee, common.Address{})
		return err
	})
	assert.ErrorIs(t, err, domain.ErrInvalidPoolWeights)
}

func TestVaultInitJoin(t *testing.T) {
	v := newVaultRig(t)

	out, err := v.join(t, alice, []*uint256.Int{e18(50), e18(50)}, domain.JoinKindInit, nil)
	require.NoError(t, err)
	assert.Equal(t, e18(100), out)
	assert.Equal(t, e18(100), v.bank.BalanceOf(v.bpt, alice))
	assert.Equal(t, e18(950), v.bank.BalanceOf(v.collateral, alice))

	_, balances, err := v.vault.GetPoolTokens(v.poolID)
	require.NoError(t, err)
	assert.Equal(t, e18(50), balances[0])
	assert.Equal(t, e18(50), balances[1])

	_, err = v.join(t, alice, []*uint256.Int{e18(1), e18(1)}, domain.JoinKindInit, nil)
	assert.ErrorIs(t, err, domain.ErrPoolAlreadyInitialized)
}

func TestVaultProportionalJoin(t *testing.T) {
	v := newVaultRig(t)
	_, err := v.join(t, alice, []*uint256.Int{e18(50), e18(50)}, domain.JoinKindInit, nil)
	require.NoError(t, err)

	// A balanced join doubles the pool and mints pro rata.
	out, err := v.join(t, bob, []*uint256.Int{e18(50), e18(50)}, domain.JoinKindExactTokensIn, new(uint256.Int))
	require.NoError(t, err)
	assert.Equal(t, e18(100), out)

	// An unbalanced join mints against the least-funded leg.
	out, err = v.join(t, bob, []*uint256.Int{e18(100), e18(10)}, domain.JoinKindExactTokensIn, new(uint256.Int))
	require.NoError(t, err)
	assert.Equal(t, e18(20), out)
}

func TestVaultJoinBelowMinimum(t *testing.T) {
	v := newVaultRig(t)
	_, err := v.join(t, alice, []*uint256.Int{e18(50), e18(50)}, domain.JoinKindInit, nil)
	require.NoError(t, err)

	before := v.bank.BalanceOf(v.collateral, bob)
	_, err = v.join(t, bob, []*uint256.Int{e18(10), e18(10)}, domain.JoinKindExactTokensIn, e18(1000))
	assert.ErrorIs(t, err, domain.ErrBPTOutBelowMin)
	assert.Equal(t, before, v.bank.BalanceOf(v.collateral, bob), "failed join takes nothing")
}

func TestVaultJoinBeforeInit(t *testing.T) {
	v := newVaultRig(t)
	_, err := v.join(t, alice, []*uint256.Int{e18(1), e18(1)}, domain.JoinKindExactTokensIn, new(uint256.Int))
	assert.ErrorIs(t, err, domain.ErrPoolNotInitialized)
}

func TestVaultExit(t *testing.T) {
	v := newVaultRig(t)
	_, err := v.join(t, alice, []*uint256.Int{e18(50), e18(50)}, domain.JoinKindInit, nil)
	require.NoError(t, err)

	mins := []*uint256.Int{new(uint256.Int), new(uint256.Int)}
	out, err := v.exit(t, alice, mins, e18(50))
	require.NoError(t, err)
	assert.Equal(t, e18(25), out[0])
	assert.Equal(t, e18(25), out[1])
	assert.Equal(t, e18(50), v.bank.BalanceOf(v.bpt, alice))
	assert.Equal(t, e18(975), v.bank.BalanceOf(v.collateral, alice))

	// Full exit drains the pool.
	out, err = v.exit(t, alice, mins, e18(50))
	require.NoError(t, err)
	assert.Equal(t, e18(25), out[0])
	assert.True(t, v.bank.BalanceOf(v.bpt, alice).IsZero())
	_, balances, err := v.vault.GetPoolTokens(v.poolID)
	require.NoError(t, err)
	assert.True(t, balances[0].IsZero())
}

func TestVaultExitBelowMinimum(t *testing.T) {
	v := newVaultRig(t)
	_, err := v.join(t, alice, []*uint256.Int{e18(50), e18(50)}, domain.JoinKindInit, nil)
	require.NoError(t, err)

	_, err = v.exit(t, alice, []*uint256.Int{e18(26), new(uint256.Int)}, e18(50))
	assert.ErrorIs(t, err, domain.ErrExitBelowMin)
	assert.Equal(t, e18(100), v.bank.BalanceOf(v.bpt, alice), "failed exit burns nothing")
}

func TestVaultExitWithoutBPT(t *testing.T) {
	v := newVaultRig(t)
	_, err := v.join(t, alice, []*uint256.Int{e18(50), e18(50)}, domain.JoinKindInit, nil)
	require.NoError(t, err)

	_, err = v.exit(t, bob, []*uint256.Int{new(uint256.Int), new(uint256.Int)}, e18(1))
	assert.ErrorIs(t, err, domain.ErrInsufficientBalance)
}

func TestVaultUnknownPool(t *testing.T) {
	v := newVaultRig(t)
	err := v.store.View(func() error {
		_, err := v.vault.GetPool(domain.PoolID{1})
		return err
	})
	assert.ErrorIs(t, err, domain.ErrUnknownPool)
}

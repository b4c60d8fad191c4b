package engine

import (
	"testing"

	"github.com/holiman/uint256"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/ctmarket/internal/domain"
)

func TestBankMintAndTransfer(t *testing.T) {
	r := newRig(t)
	r.fund(t, alice, e18(100))

	require.NoError(t, r.bank.Transfer(alice, r.collateral, bob, e18(40)))
	assert.Equal(t, e18(60), r.bank.BalanceOf(r.collateral, alice))
	assert.Equal(t, e18(40), r.bank.BalanceOf(r.collateral, bob))
	assert.Equal(t, e18(100), r.bank.TotalSupply(r.collateral))
}

func TestBankMintRequiresOwner(t *testing.T) {
	r := newRig(t)
	err := r.bank.Mint(alice, r.collateral, alice, e18(1))
	assert.ErrorIs(t, err, domain.ErrNotTokenOwner)
}

func TestBankTransferInsufficientBalance(t *testing.T) {
	r := newRig(t)
	r.fund(t, alice, e18(1))
	err := r.bank.Transfer(alice, r.collateral, bob, e18(2))
	assert.ErrorIs(t, err, domain.ErrInsufficientBalance)
	assert.Equal(t, e18(1), r.bank.BalanceOf(r.collateral, alice))
}

func TestBankTransferFromConsumesAllowance(t *testing.T) {
	r := newRig(t)
	r.fund(t, alice, e18(10))
	require.NoError(t, r.bank.Approve(alice, r.collateral, bob, e18(6)))

	require.NoError(t, r.bank.TransferFrom(bob, r.collateral, alice, carol, e18(4)))
	assert.Equal(t, e18(2), r.bank.Allowance(r.collateral, alice, bob))
	assert.Equal(t, e18(4), r.bank.BalanceOf(r.collateral, carol))

	err := r.bank.TransferFrom(bob, r.collateral, alice, carol, e18(4))
	assert.ErrorIs(t, err, domain.ErrInsufficientAllowance)
}

func TestBankInfiniteAllowanceNeverDecrements(t *testing.T) {
	r := newRig(t)
	r.fund(t, alice, e18(10))
	require.NoError(t, r.bank.Approve(alice, r.collateral, bob, domain.InfiniteAllowance()))

	require.NoError(t, r.bank.TransferFrom(bob, r.collateral, alice, carol, e18(7)))
	assert.True(t, domain.IsInfiniteAllowance(r.bank.Allowance(r.collateral, alice, bob)))
}

func TestBankSelfTransferFromNeedsNoAllowance(t *testing.T) {
	r := newRig(t)
	r.fund(t, alice, e18(5))
	require.NoError(t, r.bank.TransferFrom(alice, r.collateral, alice, bob, e18(5)))
	assert.Equal(t, e18(5), r.bank.BalanceOf(r.collateral, bob))
}

func TestBankBurnAdjustsSupply(t *testing.T) {
	r := newRig(t)
	r.fund(t, alice, e18(10))
	require.NoError(t, r.bank.Burn(admin, r.collateral, alice, e18(4)))
	assert.Equal(t, e18(6), r.bank.BalanceOf(r.collateral, alice))
	assert.Equal(t, e18(6), r.bank.TotalSupply(r.collateral))

	err := r.bank.Burn(admin, r.collateral, alice, e18(100))
	assert.ErrorIs(t, err, domain.ErrInsufficientBalance)
}

func TestBankUnknownToken(t *testing.T) {
	r := newRig(t)
	err := r.bank.Transfer(alice, bob, carol, e18(1))
	assert.ErrorIs(t, err, domain.ErrUnknownToken)

	_, err = r.bank.Info(bob)
	assert.ErrorIs(t, err, domain.ErrUnknownToken)
}

func TestBankMintOverflowRollsBack(t *testing.T) {
	r := newRig(t)
	r.fund(t, alice, e18(10))

	max := new(uint256.Int).SetAllOne()
	err := r.bank.Mint(admin, r.collateral, alice, max)
	assert.ErrorIs(t, err, domain.ErrAmountOverflow)
	assert.Equal(t, e18(10), r.bank.TotalSupply(r.collateral))
	assert.Equal(t, e18(10), r.bank.BalanceOf(r.collateral, alice))
}

func TestBankInfo(t *testing.T) {
	r := newRig(t)
	info, err := r.bank.Info(r.collateral)
	require.NoError(t, err)
	assert.Equal(t, "WETH", info.Symbol)
	assert.Equal(t, uint8(18), info.Decimals)
	assert.Equal(t, admin, info.Owner)
}

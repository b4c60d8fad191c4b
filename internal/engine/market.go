package engine

import (
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"github.com/alanyoungcy/ctmarket/internal/domain"
	"github.com/alanyoungcy/ctmarket/internal/state"
)

// Market bundles the three-leg flows between collateral, the position
// ledger, the wrapper registry, and the pool into single atomic operations.
// A market never retains custody across an operation: whatever it pulls in
// one step it pushes out before the operation returns.
type Market struct {
	store      *state.Store
	bank       *Bank
	ledger     *Ledger
	transmuter *Transmuter
	pools      domain.PoolEngine

	address         common.Address
	name            string
	symbol          string
	conditionID     domain.ConditionID
	collateral      common.Address
	poolID          domain.PoolID
	bpt             common.Address
	swapFee         *uint256.Int
	poolTokens      []common.Address
	collateralIndex int
	outcomeTokens   []common.Address
	positionIDs     []domain.PositionID
	createdAt       time.Time
}

// Address returns the market's account address. Callers grant it allowances
// on collateral, BPT, and wrapper tokens before using the flows below.
func (m *Market) Address() common.Address { return m.address }

// Pool returns the market's BPT token address.
func (m *Market) Pool() common.Address { return m.bpt }

// PoolID returns the market's pool id.
func (m *Market) PoolID() domain.PoolID { return m.poolID }

// OutcomeTokens returns the wrapper token per outcome slot, in slot order.
func (m *Market) OutcomeTokens() []common.Address {
	return append([]common.Address(nil), m.outcomeTokens...)
}

// Record returns the market's immutable record.
func (m *Market) Record() domain.Market {
	return domain.Market{
		Address:       m.address,
		Name:          m.name,
		Symbol:        m.symbol,
		ConditionID:   m.conditionID,
		Collateral:    m.collateral,
		PoolID:        m.poolID,
		Pool:          m.bpt,
		SwapFee:       m.swapFee.Clone(),
		OutcomeTokens: m.OutcomeTokens(),
		CreatedAt:     m.createdAt,
	}
}

func (m *Market) basicPartition() []domain.IndexSet {
	partition := make([]domain.IndexSet, len(m.positionIDs))
	for i := range partition {
		partition[i] = domain.BasicIndexSet(i)
	}
	return partition
}

// SplitCollateralAndJoin pulls amount collateral from the caller, splits half
// of it into one wrapped outcome token of each slot, and supplies the half
// collateral plus the wrapped halves to the pool as a single join. BPT goes
// to the caller. The caller picks the join mode: isInit seeds an empty pool
// and ignores minBPTOut, otherwise the join is proportional and bounded below
// by minBPTOut. A mode that does not match the pool's state fails with
// ErrPoolAlreadyInitialized or ErrPoolNotInitialized. amount must be even so
// the two halves are equal.
func (m *Market) SplitCollateralAndJoin(caller common.Address, amount, minBPTOut *uint256.Int, isInit bool) (*uint256.Int, error) {
	var bptOut *uint256.Int
	err := m.store.Update(func() error {
		var err error
		bptOut, err = m.splitCollateralAndJoin(caller, amount, minBPTOut, isInit)
		return err
	})
	return bptOut, err
}

func (m *Market) splitCollateralAndJoin(caller common.Address, amount, minBPTOut *uint256.Int, isInit bool) (*uint256.Int, error) {
	if !new(uint256.Int).Mod(amount, uint256.NewInt(2)).IsZero() {
		return nil, domain.ErrOddCollateral
	}
	if err := m.bank.transferFrom(m.address, m.collateral, caller, m.address, amount); err != nil {
		return nil, err
	}

	half := new(uint256.Int).Rsh(amount, 1)
	if err := m.ledger.splitPosition(m.address, m.collateral, domain.RootCollectionID, m.conditionID, m.basicPartition(), half); err != nil {
		return nil, err
	}
	for _, pos := range m.positionIDs {
		if err := m.transmuter.mint(m.address, pos, half); err != nil {
			return nil, err
		}
	}

	amountsIn := make([]*uint256.Int, len(m.poolTokens))
	for i := range amountsIn {
		amountsIn[i] = half.Clone()
	}
	kind := domain.JoinKindExactTokensIn
	if isInit {
		kind = domain.JoinKindInit
	}
	return m.pools.Join(m.poolID, m.address, caller, amountsIn, kind, minBPTOut)
}

// ExitAndMergeCollateral burns the caller's bptAmount against the pool, then
// merges as many complete outcome sets as the exit produced back into
// collateral. The merged collateral, the exit's collateral leg, and any
// leftover wrapped outcome tokens are all handed to the caller.
func (m *Market) ExitAndMergeCollateral(caller common.Address, bptAmount *uint256.Int, minAmountsOut []*uint256.Int) error {
	return m.store.Update(func() error {
		return m.exitAndMergeCollateral(caller, bptAmount, minAmountsOut)
	})
}

func (m *Market) exitAndMergeCollateral(caller common.Address, bptAmount *uint256.Int, minAmountsOut []*uint256.Int) error {
	if len(minAmountsOut) != len(m.poolTokens) {
		return domain.ErrPoolAmountsLength
	}
	if err := m.bank.transferFrom(m.address, m.bpt, caller, m.address, bptAmount); err != nil {
		return err
	}
	amountsOut, err := m.pools.Exit(m.poolID, m.address, m.address, minAmountsOut, bptAmount)
	if err != nil {
		return err
	}

	// The largest merge is bounded by the scarcest outcome leg.
	var mergeable *uint256.Int
	for i, out := range amountsOut {
		if i == m.collateralIndex {
			continue
		}
		if mergeable == nil || out.Lt(mergeable) {
			mergeable = out
		}
	}
	mergeable = mergeable.Clone()

	if !mergeable.IsZero() {
		for i, tok := range m.poolTokens {
			if i == m.collateralIndex {
				continue
			}
			info, ok := m.transmuter.byToken[tok]
			if !ok {
				return domain.ErrWrapperNotRegistered
			}
			if err := m.transmuter.burn(m.address, info.PositionID, mergeable); err != nil {
				return err
			}
		}
		if err := m.ledger.mergePositions(m.address, m.collateral, domain.RootCollectionID, m.conditionID, m.basicPartition(), mergeable); err != nil {
			return err
		}
	}

	// Hand everything over: merged collateral plus the collateral leg, and
	// per-token residue the merge could not consume.
	payout := new(uint256.Int).Add(mergeable, amountsOut[m.collateralIndex])
	if !payout.IsZero() {
		if err := m.bank.transfer(m.collateral, m.address, caller, payout); err != nil {
			return err
		}
	}
	for i, tok := range m.poolTokens {
		if i == m.collateralIndex {
			continue
		}
		residue := new(uint256.Int).Sub(amountsOut[i], mergeable)
		if residue.IsZero() {
			continue
		}
		if err := m.bank.transfer(tok, m.address, caller, residue); err != nil {
			return err
		}
	}
	return nil
}

// RedeemConditionalTokens pulls the caller's entire balance of every outcome
// wrapper, unwraps them back into ledger positions, redeems those against the
// resolved condition, and pays the resulting collateral to the caller. Fails
// with ErrPayoutsNotReported while the condition is unresolved.
func (m *Market) RedeemConditionalTokens(caller common.Address) (*uint256.Int, error) {
	var payout *uint256.Int
	err := m.store.Update(func() error {
		var err error
		payout, err = m.redeemConditionalTokens(caller)
		return err
	})
	return payout, err
}

func (m *Market) redeemConditionalTokens(caller common.Address) (*uint256.Int, error) {
	cond, err := m.ledger.condition(m.conditionID)
	if err != nil {
		return nil, err
	}
	if !cond.Resolved() {
		return nil, domain.ErrPayoutsNotReported
	}

	redeemed := false
	for i, tok := range m.outcomeTokens {
		bal := m.bank.balanceOf(tok, caller)
		if bal.IsZero() {
			continue
		}
		redeemed = true
		if err := m.bank.transferFrom(m.address, tok, caller, m.address, bal); err != nil {
			return nil, err
		}
		if err := m.transmuter.burn(m.address, m.positionIDs[i], bal); err != nil {
			return nil, err
		}
	}
	if !redeemed {
		return nil, domain.ErrNothingToRedeem
	}

	payout, err := m.ledger.redeemPositions(m.address, m.collateral, domain.RootCollectionID, m.conditionID, m.basicPartition())
	if err != nil {
		return nil, err
	}
	if !payout.IsZero() {
		if err := m.bank.transfer(m.collateral, m.address, caller, payout); err != nil {
			return nil, err
		}
	}
	return payout, nil
}

package engine

import (
	"sort"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"github.com/alanyoungcy/ctmarket/internal/domain"
	"github.com/alanyoungcy/ctmarket/internal/state"
)

// Ledger is the conditional position ledger. It keeps the condition table and
// per-account balances of position ids, and implements the split/merge/redeem
// algebra over them. Raw collateral backing root-level positions is locked
// under the ledger's custody account in the bank.
type Ledger struct {
	store   *state.Store
	bank    *Bank
	custody common.Address

	conditions map[domain.ConditionID]*domain.Condition
	balances   map[domain.PositionID]map[common.Address]*uint256.Int
	approvals  map[common.Address]map[common.Address]bool
	receivers  map[common.Address]domain.PositionReceiver

	now func() time.Time
}

// NewLedger creates a Ledger over the shared store and bank.
func NewLedger(store *state.Store, bank *Bank) *Ledger {
	return &Ledger{
		store:      store,
		bank:       bank,
		custody:    domain.DeriveAddress("ctmarket/ledger", 0),
		conditions: make(map[domain.ConditionID]*domain.Condition),
		balances:   make(map[domain.PositionID]map[common.Address]*uint256.Int),
		approvals:  make(map[common.Address]map[common.Address]bool),
		receivers:  make(map[common.Address]domain.PositionReceiver),
		now:        time.Now,
	}
}

// Custody returns the bank account under which the ledger locks collateral.
func (l *Ledger) Custody() common.Address { return l.custody }

// RegisterReceiver attaches a position-transfer hook to addr. Transfers into
// addr are then subject to the receiver's acceptance.
func (l *Ledger) RegisterReceiver(addr common.Address, r domain.PositionReceiver) {
	_ = l.store.Update(func() error {
		l.receivers[addr] = r
		l.store.Record(func() { delete(l.receivers, addr) })
		return nil
	})
}

// PrepareCondition registers the condition (oracle, questionID,
// outcomeSlotCount) and returns its derived id. Preparing the same triple
// twice fails with ErrConditionAlreadyPrepared.
func (l *Ledger) PrepareCondition(oracle common.Address, questionID domain.QuestionID, outcomeSlotCount int) (domain.ConditionID, error) {
	var id domain.ConditionID
	err := l.store.Update(func() error {
		var err error
		id, err = l.prepareCondition(oracle, questionID, outcomeSlotCount)
		return err
	})
	return id, err
}

func (l *Ledger) prepareCondition(oracle common.Address, questionID domain.QuestionID, outcomeSlotCount int) (domain.ConditionID, error) {
	if outcomeSlotCount < 2 || outcomeSlotCount > domain.MaxOutcomeSlots {
		return domain.ConditionID{}, domain.ErrInvalidOutcomeSlotCount
	}
	id := domain.ConditionIDFor(oracle, questionID, outcomeSlotCount)
	if _, ok := l.conditions[id]; ok {
		return domain.ConditionID{}, domain.ErrConditionAlreadyPrepared
	}
	l.conditions[id] = &domain.Condition{
		ID:                id,
		Oracle:            oracle,
		QuestionID:        questionID,
		OutcomeSlotCount:  outcomeSlotCount,
		PayoutDenominator: new(uint256.Int),
		PreparedAt:        l.now().UTC(),
	}
	l.store.Record(func() { delete(l.conditions, id) })
	return id, nil
}

// ReportPayouts writes the payout vector for the condition derived from the
// caller and question. Only the oracle named at preparation can hit an
// existing condition, since the caller address is folded into the id.
func (l *Ledger) ReportPayouts(caller common.Address, questionID domain.QuestionID, payouts []uint64) error {
	return l.store.Update(func() error {
		return l.reportPayouts(caller, questionID, payouts)
	})
}

func (l *Ledger) reportPayouts(caller common.Address, questionID domain.QuestionID, payouts []uint64) error {
	if len(payouts) < 2 {
		return domain.ErrPayoutsLength
	}
	id := domain.ConditionIDFor(caller, questionID, len(payouts))
	cond, ok := l.conditions[id]
	if !ok {
		return domain.ErrConditionNotPrepared
	}
	if cond.Resolved() {
		return domain.ErrPayoutsAlreadyReported
	}
	den := new(uint256.Int)
	for _, p := range payouts {
		den.Add(den, uint256.NewInt(p))
	}
	if den.IsZero() {
		return domain.ErrPayoutsAllZero
	}

	oldNums, oldDen := cond.PayoutNumerators, cond.PayoutDenominator
	l.store.Record(func() {
		cond.PayoutNumerators = oldNums
		cond.PayoutDenominator = oldDen
	})
	cond.PayoutNumerators = append([]uint64(nil), payouts...)
	cond.PayoutDenominator = den
	return nil
}

// Condition returns the condition record for id.
func (l *Ledger) Condition(id domain.ConditionID) (domain.Condition, error) {
	var out domain.Condition
	err := l.store.View(func() error {
		c, ok := l.conditions[id]
		if !ok {
			return domain.ErrConditionNotPrepared
		}
		out = *c
		return nil
	})
	return out, err
}

// Conditions returns a copy of every prepared condition, ordered by
// preparation time.
func (l *Ledger) Conditions() []domain.Condition {
	var out []domain.Condition
	_ = l.store.View(func() error {
		out = make([]domain.Condition, 0, len(l.conditions))
		for _, c := range l.conditions {
			out = append(out, *c)
		}
		return nil
	})
	sort.Slice(out, func(i, j int) bool { return out[i].PreparedAt.Before(out[j].PreparedAt) })
	return out
}

func (l *Ledger) condition(id domain.ConditionID) (*domain.Condition, error) {
	c, ok := l.conditions[id]
	if !ok {
		return nil, domain.ErrConditionNotPrepared
	}
	return c, nil
}

// GetCollectionID validates the inputs and folds (conditionID, indexSet) into
// parent.
func (l *Ledger) GetCollectionID(parent domain.CollectionID, conditionID domain.ConditionID, indexSet domain.IndexSet) (domain.CollectionID, error) {
	var out domain.CollectionID
	err := l.store.View(func() error {
		cond, err := l.condition(conditionID)
		if err != nil {
			return err
		}
		if !indexSet.Valid(cond.OutcomeSlotCount) {
			return domain.ErrInvalidIndexSet
		}
		out = domain.CombineCollectionID(parent, conditionID, indexSet)
		return nil
	})
	return out, err
}

// GetPositionID derives the position id for a collateral token and
// collection.
func (l *Ledger) GetPositionID(collateralToken common.Address, collectionID domain.CollectionID) domain.PositionID {
	return domain.PositionIDFor(collateralToken, collectionID)
}

// BalanceOf returns acct's balance of the position.
func (l *Ledger) BalanceOf(acct common.Address, id domain.PositionID) *uint256.Int {
	out := new(uint256.Int)
	_ = l.store.View(func() error {
		out.Set(l.positionBalance(id, acct))
		return nil
	})
	return out
}

// BatchBalanceOf returns balances for parallel (account, position) pairs.
func (l *Ledger) BatchBalanceOf(accts []common.Address, ids []domain.PositionID) ([]*uint256.Int, error) {
	if len(accts) != len(ids) {
		return nil, domain.ErrPoolAmountsLength
	}
	out := make([]*uint256.Int, len(ids))
	_ = l.store.View(func() error {
		for i := range ids {
			out[i] = l.positionBalance(ids[i], accts[i]).Clone()
		}
		return nil
	})
	return out, nil
}

// SetApprovalForAll lets operator move all of the caller's positions.
func (l *Ledger) SetApprovalForAll(caller, operator common.Address, approved bool) {
	_ = l.store.Update(func() error {
		l.setApprovalForAll(caller, operator, approved)
		return nil
	})
}

func (l *Ledger) setApprovalForAll(caller, operator common.Address, approved bool) {
	inner, hadInner := l.approvals[caller]
	if !hadInner {
		inner = make(map[common.Address]bool)
		l.approvals[caller] = inner
		l.store.Record(func() { delete(l.approvals, caller) })
	}
	old, had := inner[operator]
	l.store.Record(func() {
		if had {
			inner[operator] = old
		} else {
			delete(inner, operator)
		}
	})
	inner[operator] = approved
}

// IsApprovedForAll reports whether operator may move owner's positions.
func (l *Ledger) IsApprovedForAll(owner, operator common.Address) bool {
	var out bool
	_ = l.store.View(func() error {
		out = l.approvals[owner][operator]
		return nil
	})
	return out
}

// SafeTransferFrom moves amount of a position from src to dst. The caller
// must be src or an approved operator. If dst has a registered receiver the
// receiver may veto the transfer.
func (l *Ledger) SafeTransferFrom(caller, src, dst common.Address, id domain.PositionID, amount *uint256.Int) error {
	return l.store.Update(func() error {
		return l.safeTransferFrom(caller, src, dst, id, amount)
	})
}

func (l *Ledger) safeTransferFrom(caller, src, dst common.Address, id domain.PositionID, amount *uint256.Int) error {
	if caller != src && !l.approvals[src][caller] {
		return domain.ErrNotApprovedForAll
	}
	if err := l.debitPosition(id, src, amount); err != nil {
		return err
	}
	if err := l.creditPosition(id, dst, amount); err != nil {
		return err
	}
	if r, ok := l.receivers[dst]; ok {
		if err := r.OnPositionTransfer(caller, src, id, amount.Clone()); err != nil {
			return err
		}
	}
	return nil
}

// SafeBatchTransferFrom is the batch form of SafeTransferFrom.
func (l *Ledger) SafeBatchTransferFrom(caller, src, dst common.Address, ids []domain.PositionID, amounts []*uint256.Int) error {
	return l.store.Update(func() error {
		if len(ids) != len(amounts) {
			return domain.ErrPoolAmountsLength
		}
		if caller != src && !l.approvals[src][caller] {
			return domain.ErrNotApprovedForAll
		}
		for i := range ids {
			if err := l.debitPosition(ids[i], src, amounts[i]); err != nil {
				return err
			}
			if err := l.creditPosition(ids[i], dst, amounts[i]); err != nil {
				return err
			}
		}
		if r, ok := l.receivers[dst]; ok {
			cloned := make([]*uint256.Int, len(amounts))
			for i, a := range amounts {
				cloned[i] = a.Clone()
			}
			return r.OnPositionBatchTransfer(caller, src, ids, cloned)
		}
		return nil
	})
}

// SplitPosition splits amount of the parent position into the partition's
// cells. Splitting from the root collection locks collateral pulled from the
// caller; splitting a full partition of a deeper collection burns the parent
// position; a partial partition burns the position on the partition's union.
func (l *Ledger) SplitPosition(caller, collateralToken common.Address, parent domain.CollectionID, conditionID domain.ConditionID, partition []domain.IndexSet, amount *uint256.Int) error {
	return l.store.Update(func() error {
		return l.splitPosition(caller, collateralToken, parent, conditionID, partition, amount)
	})
}

func (l *Ledger) splitPosition(caller, collateralToken common.Address, parent domain.CollectionID, conditionID domain.ConditionID, partition []domain.IndexSet, amount *uint256.Int) error {
	cond, err := l.condition(conditionID)
	if err != nil {
		return err
	}
	union, err := validPartition(partition, cond.OutcomeSlotCount)
	if err != nil {
		return err
	}

	full := domain.FullIndexSet(cond.OutcomeSlotCount)
	if union == full {
		if parent.IsRoot() {
			// Deepening from raw collateral: lock it under custody.
			if err := l.bank.transferFrom(l.custody, collateralToken, caller, l.custody, amount); err != nil {
				return err
			}
		} else {
			parentPos := domain.PositionIDFor(collateralToken, parent)
			if err := l.debitPosition(parentPos, caller, amount); err != nil {
				return err
			}
		}
	} else {
		unionPos := domain.PositionIDFor(collateralToken, domain.CombineCollectionID(parent, conditionID, union))
		if err := l.debitPosition(unionPos, caller, amount); err != nil {
			return err
		}
	}

	for _, set := range partition {
		pos := domain.PositionIDFor(collateralToken, domain.CombineCollectionID(parent, conditionID, set))
		if err := l.creditPosition(pos, caller, amount); err != nil {
			return err
		}
	}
	return nil
}

// MergePositions is the inverse of SplitPosition: it burns amount of each
// partition cell and restores the parent position, or unlocks collateral when
// merging a full partition at the root.
func (l *Ledger) MergePositions(caller, collateralToken common.Address, parent domain.CollectionID, conditionID domain.ConditionID, partition []domain.IndexSet, amount *uint256.Int) error {
	return l.store.Update(func() error {
		return l.mergePositions(caller, collateralToken, parent, conditionID, partition, amount)
	})
}

func (l *Ledger) mergePositions(caller, collateralToken common.Address, parent domain.CollectionID, conditionID domain.ConditionID, partition []domain.IndexSet, amount *uint256.Int) error {
	cond, err := l.condition(conditionID)
	if err != nil {
		return err
	}
	union, err := validPartition(partition, cond.OutcomeSlotCount)
	if err != nil {
		return err
	}

	for _, set := range partition {
		pos := domain.PositionIDFor(collateralToken, domain.CombineCollectionID(parent, conditionID, set))
		if err := l.debitPosition(pos, caller, amount); err != nil {
			return err
		}
	}

	full := domain.FullIndexSet(cond.OutcomeSlotCount)
	if union == full {
		if parent.IsRoot() {
			return l.bank.transfer(collateralToken, l.custody, caller, amount)
		}
		parentPos := domain.PositionIDFor(collateralToken, parent)
		return l.creditPosition(parentPos, caller, amount)
	}
	unionPos := domain.PositionIDFor(collateralToken, domain.CombineCollectionID(parent, conditionID, union))
	return l.creditPosition(unionPos, caller, amount)
}

// RedeemPositions burns the caller's full balance of each indexSets position
// under the resolved condition and pays out proportionally to the reported
// payout vector. Redeeming at the root pays raw collateral; deeper
// redemptions credit the parent position.
func (l *Ledger) RedeemPositions(caller, collateralToken common.Address, parent domain.CollectionID, conditionID domain.ConditionID, indexSets []domain.IndexSet) (*uint256.Int, error) {
	total := new(uint256.Int)
	err := l.store.Update(func() error {
		var err error
		total, err = l.redeemPositions(caller, collateralToken, parent, conditionID, indexSets)
		return err
	})
	return total, err
}

func (l *Ledger) redeemPositions(caller, collateralToken common.Address, parent domain.CollectionID, conditionID domain.ConditionID, indexSets []domain.IndexSet) (*uint256.Int, error) {
	cond, err := l.condition(conditionID)
	if err != nil {
		return nil, err
	}
	if !cond.Resolved() {
		return nil, domain.ErrPayoutsNotReported
	}

	total := new(uint256.Int)
	for _, set := range indexSets {
		if !set.Valid(cond.OutcomeSlotCount) {
			return nil, domain.ErrInvalidIndexSet
		}
		num := new(uint256.Int)
		for i := 0; i < cond.OutcomeSlotCount; i++ {
			if set.Contains(i) {
				num.Add(num, uint256.NewInt(cond.PayoutNumerators[i]))
			}
		}

		pos := domain.PositionIDFor(collateralToken, domain.CombineCollectionID(parent, conditionID, set))
		bal := l.positionBalance(pos, caller)
		if bal.IsZero() {
			continue
		}
		if err := l.debitPosition(pos, caller, bal); err != nil {
			return nil, err
		}
		payout, overflow := new(uint256.Int).MulDivOverflow(bal, num, cond.PayoutDenominator)
		if overflow {
			return nil, domain.ErrAmountOverflow
		}
		if _, overflow := total.AddOverflow(total, payout); overflow {
			return nil, domain.ErrAmountOverflow
		}
	}

	if total.IsZero() {
		return total, nil
	}
	if parent.IsRoot() {
		if err := l.bank.transfer(collateralToken, l.custody, caller, total); err != nil {
			return nil, err
		}
	} else {
		parentPos := domain.PositionIDFor(collateralToken, parent)
		if err := l.creditPosition(parentPos, caller, total); err != nil {
			return nil, err
		}
	}
	return total, nil
}

// validPartition checks that the sets are non-empty, in range, and pairwise
// disjoint, and returns their union.
func validPartition(partition []domain.IndexSet, outcomeSlotCount int) (domain.IndexSet, error) {
	if len(partition) < 2 {
		return 0, domain.ErrInvalidPartition
	}
	var union domain.IndexSet
	for _, set := range partition {
		if !set.Valid(outcomeSlotCount) {
			return 0, domain.ErrInvalidIndexSet
		}
		if union&set != 0 {
			return 0, domain.ErrInvalidPartition
		}
		union |= set
	}
	return union, nil
}

func (l *Ledger) positionBalance(id domain.PositionID, acct common.Address) *uint256.Int {
	if bal, ok := l.balances[id][acct]; ok {
		return bal
	}
	return new(uint256.Int)
}

func (l *Ledger) creditPosition(id domain.PositionID, acct common.Address, amount *uint256.Int) error {
	next, overflow := new(uint256.Int).AddOverflow(l.positionBalance(id, acct), amount)
	if overflow {
		return domain.ErrAmountOverflow
	}
	l.setPositionBalance(id, acct, next)
	return nil
}

func (l *Ledger) debitPosition(id domain.PositionID, acct common.Address, amount *uint256.Int) error {
	cur := l.positionBalance(id, acct)
	if cur.Lt(amount) {
		return domain.ErrInsufficientBalance
	}
	l.setPositionBalance(id, acct, new(uint256.Int).Sub(cur, amount))
	return nil
}

func (l *Ledger) setPositionBalance(id domain.PositionID, acct common.Address, v *uint256.Int) {
	inner, hadInner := l.balances[id]
	if !hadInner {
		inner = make(map[common.Address]*uint256.Int)
		l.balances[id] = inner
		l.store.Record(func() { delete(l.balances, id) })
	}
	old, had := inner[acct]
	l.store.Record(func() {
		if had {
			inner[acct] = old
		} else {
			delete(inner, acct)
		}
	})
	inner[acct] = v
}

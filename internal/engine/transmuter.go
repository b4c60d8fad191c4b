package engine

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"github.com/alanyoungcy/ctmarket/internal/domain"
	"github.com/alanyoungcy/ctmarket/internal/state"
)

// wrappedToken is the fungible face of a single ledger position. It owns its
// bank token and holds the underlying position in custody while wrapped
// supply is outstanding. As a position receiver it rejects every transfer it
// did not initiate itself, so positions can only enter through Mint.
type wrappedToken struct {
	addr       common.Address
	positionID domain.PositionID
}

func (w *wrappedToken) OnPositionTransfer(operator, _ common.Address, id domain.PositionID, _ *uint256.Int) error {
	if operator != w.addr || id != w.positionID {
		return domain.ErrDirectPositionTransfer
	}
	return nil
}

func (w *wrappedToken) OnPositionBatchTransfer(operator, _ common.Address, ids []domain.PositionID, _ []*uint256.Int) error {
	if operator != w.addr {
		return domain.ErrDirectPositionTransfer
	}
	for _, id := range ids {
		if id != w.positionID {
			return domain.ErrDirectPositionTransfer
		}
	}
	return nil
}

// WrapperInfo is the read-model of a registered wrapper.
type WrapperInfo struct {
	Token       common.Address
	PositionID  domain.PositionID
	ConditionID domain.ConditionID
	Collateral  common.Address
	IndexSet    domain.IndexSet
}

// Transmuter is the wrapper registry. It maps ledger positions to fungible
// bank tokens, at most one wrapper per position, and converts between the two
// representations 1:1.
type Transmuter struct {
	store  *state.Store
	bank   *Bank
	ledger *Ledger

	byPosition map[domain.PositionID]*wrappedToken
	byToken    map[common.Address]*WrapperInfo
}

// NewTransmuter creates an empty registry over the shared components.
func NewTransmuter(store *state.Store, bank *Bank, ledger *Ledger) *Transmuter {
	return &Transmuter{
		store:      store,
		bank:       bank,
		ledger:     ledger,
		byPosition: make(map[domain.PositionID]*wrappedToken),
		byToken:    make(map[common.Address]*WrapperInfo),
	}
}

// Register creates a wrapper token for the position
// (collateralToken, root ⊕ (conditionID, indexSet)). The wrapper token uses
// the collateral token's decimals.
func (t *Transmuter) Register(conditionID domain.ConditionID, collateralToken common.Address, indexSet domain.IndexSet, name, symbol string) (common.Address, error) {
	var addr common.Address
	err := t.store.Update(func() error {
		var err error
		addr, err = t.register(conditionID, collateralToken, indexSet, name, symbol)
		return err
	})
	return addr, err
}

func (t *Transmuter) register(conditionID domain.ConditionID, collateralToken common.Address, indexSet domain.IndexSet, name, symbol string) (common.Address, error) {
	cond, err := t.ledger.condition(conditionID)
	if err != nil {
		return common.Address{}, err
	}
	if !indexSet.Valid(cond.OutcomeSlotCount) {
		return common.Address{}, domain.ErrInvalidIndexSet
	}
	collection := domain.CombineCollectionID(domain.RootCollectionID, conditionID, indexSet)
	positionID := domain.PositionIDFor(collateralToken, collection)
	if _, ok := t.byPosition[positionID]; ok {
		return common.Address{}, domain.ErrWrapperAlreadyRegistered
	}

	decimals, err := t.bank.decimalsOf(collateralToken)
	if err != nil {
		return common.Address{}, err
	}
	addr, err := t.bank.createTokenOwnedBySelf(name, symbol, decimals)
	if err != nil {
		return common.Address{}, err
	}

	w := &wrappedToken{addr: addr, positionID: positionID}
	t.byPosition[positionID] = w
	t.byToken[addr] = &WrapperInfo{
		Token:       addr,
		PositionID:  positionID,
		ConditionID: conditionID,
		Collateral:  collateralToken,
		IndexSet:    indexSet,
	}
	t.store.Record(func() {
		delete(t.byPosition, positionID)
		delete(t.byToken, addr)
	})
	t.ledger.receivers[addr] = w
	t.store.Record(func() { delete(t.ledger.receivers, addr) })
	return addr, nil
}

// RegisterBasicPartition registers one wrapper per outcome slot of the
// condition, in slot order. names and symbols must each have exactly one
// entry per slot.
func (t *Transmuter) RegisterBasicPartition(conditionID domain.ConditionID, collateralToken common.Address, names, symbols []string) ([]common.Address, error) {
	var addrs []common.Address
	err := t.store.Update(func() error {
		cond, err := t.ledger.condition(conditionID)
		if err != nil {
			return err
		}
		if len(names) != cond.OutcomeSlotCount {
			return domain.ErrNameCountMismatch
		}
		if len(symbols) != cond.OutcomeSlotCount {
			return domain.ErrSymbolCountMismatch
		}
		addrs = make([]common.Address, cond.OutcomeSlotCount)
		for i := 0; i < cond.OutcomeSlotCount; i++ {
			addr, err := t.register(conditionID, collateralToken, domain.BasicIndexSet(i), names[i], symbols[i])
			if err != nil {
				return err
			}
			addrs[i] = addr
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return addrs, nil
}

// Token returns the wrapper token address for a position.
func (t *Transmuter) Token(positionID domain.PositionID) (common.Address, error) {
	var addr common.Address
	err := t.store.View(func() error {
		w, ok := t.byPosition[positionID]
		if !ok {
			return domain.ErrWrapperNotRegistered
		}
		addr = w.addr
		return nil
	})
	return addr, err
}

// Wrapper returns the registration record for a wrapper token address.
func (t *Transmuter) Wrapper(tok common.Address) (WrapperInfo, error) {
	var info WrapperInfo
	err := t.store.View(func() error {
		w, ok := t.byToken[tok]
		if !ok {
			return domain.ErrWrapperNotRegistered
		}
		info = *w
		return nil
	})
	return info, err
}

// Mint pulls amount of the wrapped position from the caller into the
// wrapper's custody and credits the caller the same amount of wrapper tokens.
// The caller must have approved the wrapper as a position operator.
func (t *Transmuter) Mint(caller common.Address, positionID domain.PositionID, amount *uint256.Int) error {
	return t.store.Update(func() error {
		return t.mint(caller, positionID, amount)
	})
}

func (t *Transmuter) mint(caller common.Address, positionID domain.PositionID, amount *uint256.Int) error {
	w, ok := t.byPosition[positionID]
	if !ok {
		return domain.ErrWrapperNotRegistered
	}
	if err := t.ledger.safeTransferFrom(w.addr, caller, w.addr, positionID, amount); err != nil {
		return err
	}
	return t.bank.mint(w.addr, w.addr, caller, amount)
}

// Burn destroys amount of the caller's wrapper tokens and releases the same
// amount of the underlying position back to the caller.
func (t *Transmuter) Burn(caller common.Address, positionID domain.PositionID, amount *uint256.Int) error {
	return t.store.Update(func() error {
		return t.burn(caller, positionID, amount)
	})
}

func (t *Transmuter) burn(caller common.Address, positionID domain.PositionID, amount *uint256.Int) error {
	w, ok := t.byPosition[positionID]
	if !ok {
		return domain.ErrWrapperNotRegistered
	}
	if err := t.bank.burn(w.addr, w.addr, caller, amount); err != nil {
		return err
	}
	return t.ledger.safeTransferFrom(w.addr, w.addr, caller, positionID, amount)
}

package engine

import (
	"sort"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"github.com/alanyoungcy/ctmarket/internal/domain"
	"github.com/alanyoungcy/ctmarket/internal/state"
)

// MaxOutcomeCount is the largest outcome slot count a market can cover: one
// pool slot is reserved for the collateral token.
const MaxOutcomeCount = MaxPoolTokens - 1

// MarketFactory creates markets over prepared conditions. Each market gets a
// weighted pool holding the collateral token plus one wrapped outcome token
// per slot, with weights computed so the collateral side carries exactly half
// the total weight plus the rounding remainder.
type MarketFactory struct {
	store      *state.Store
	bank       *Bank
	ledger     *Ledger
	transmuter *Transmuter
	pools      domain.PoolEngine

	markets map[common.Address]*Market
	nonce   uint64
	now     func() time.Time
}

// NewMarketFactory wires a factory over the shared components and the pool
// engine.
func NewMarketFactory(store *state.Store, bank *Bank, ledger *Ledger, transmuter *Transmuter, pools domain.PoolEngine) *MarketFactory {
	return &MarketFactory{
		store:      store,
		bank:       bank,
		ledger:     ledger,
		transmuter: transmuter,
		pools:      pools,
		markets:    make(map[common.Address]*Market),
		now:        time.Now,
	}
}

// PoolWeights computes the per-token normalized weights for a market over
// outcomeCount slots. The collateral weight absorbs the integer-division
// remainder so the weights always sum to exactly FullPoolWeight.
func PoolWeights(outcomeCount int) (collateral, outcome *uint256.Int) {
	half := new(uint256.Int).Rsh(domain.FullPoolWeight(), 1)
	n := uint256.NewInt(uint64(outcomeCount))
	outcome = new(uint256.Int).Div(half, n)
	remainder := new(uint256.Int).Mod(half, n)
	collateral = new(uint256.Int).Add(half, remainder)
	return collateral, outcome
}

// Create builds a market for the prepared condition over collateralToken.
// Every outcome slot must already have a registered wrapper. Returns the
// market record; the market itself is addressable via Market().
func (f *MarketFactory) Create(name, symbol string, conditionID domain.ConditionID, collateralToken common.Address, swapFee *uint256.Int) (domain.Market, error) {
	var rec domain.Market
	err := f.store.Update(func() error {
		var err error
		rec, err = f.create(name, symbol, conditionID, collateralToken, swapFee)
		return err
	})
	return rec, err
}

func (f *MarketFactory) create(name, symbol string, conditionID domain.ConditionID, collateralToken common.Address, swapFee *uint256.Int) (domain.Market, error) {
	cond, err := f.ledger.condition(conditionID)
	if err != nil {
		return domain.Market{}, err
	}
	if cond.OutcomeSlotCount > MaxOutcomeCount {
		return domain.Market{}, domain.ErrTooManyOutcomes
	}
	if _, ok := f.bank.tokens[collateralToken]; !ok {
		return domain.Market{}, domain.ErrUnknownToken
	}

	outcomeTokens := make([]common.Address, cond.OutcomeSlotCount)
	positionIDs := make([]domain.PositionID, cond.OutcomeSlotCount)
	for i := 0; i < cond.OutcomeSlotCount; i++ {
		collection := domain.CombineCollectionID(domain.RootCollectionID, conditionID, domain.BasicIndexSet(i))
		positionIDs[i] = domain.PositionIDFor(collateralToken, collection)
		w, ok := f.transmuter.byPosition[positionIDs[i]]
		if !ok {
			return domain.Market{}, domain.ErrWrapperNotRegistered
		}
		outcomeTokens[i] = w.addr
	}

	collateralWeight, outcomeWeight := PoolWeights(cond.OutcomeSlotCount)

	// The pool engine requires its token list in address order.
	poolTokens := append([]common.Address{collateralToken}, outcomeTokens...)
	weights := make([]*uint256.Int, len(poolTokens))
	weights[0] = collateralWeight
	for i := 1; i < len(weights); i++ {
		weights[i] = outcomeWeight.Clone()
	}
	sort.Sort(&tokenWeightOrder{tokens: poolTokens, weights: weights})

	poolID, err := f.pools.CreatePool(name, symbol, poolTokens, weights, swapFee, common.Address{})
	if err != nil {
		return domain.Market{}, err
	}
	bpt, err := f.pools.GetPool(poolID)
	if err != nil {
		return domain.Market{}, err
	}

	addr := domain.DeriveAddress("ctmarket/market", f.nonce)
	nonce := f.nonce
	f.nonce++
	f.store.Record(func() { f.nonce = nonce })

	m := &Market{
		store:      f.store,
		bank:       f.bank,
		ledger:     f.ledger,
		transmuter: f.transmuter,
		pools:      f.pools,

		address:       addr,
		name:          name,
		symbol:        symbol,
		conditionID:   conditionID,
		collateral:    collateralToken,
		poolID:        poolID,
		bpt:           bpt,
		swapFee:       swapFee.Clone(),
		poolTokens:    poolTokens,
		outcomeTokens: outcomeTokens,
		positionIDs:   positionIDs,
		createdAt:     f.now().UTC(),
	}
	for i, tok := range poolTokens {
		if tok == collateralToken {
			m.collateralIndex = i
			break
		}
	}

	// Standing authority for the market's internal flows: the ledger pulls
	// locked collateral, the wrappers pull positions, the pool engine pulls
	// join amounts.
	if err := f.bank.approve(addr, collateralToken, f.ledger.custody, domain.InfiniteAllowance()); err != nil {
		return domain.Market{}, err
	}
	custody := f.pools.Custody()
	if err := f.bank.approve(addr, collateralToken, custody, domain.InfiniteAllowance()); err != nil {
		return domain.Market{}, err
	}
	for _, tok := range outcomeTokens {
		if err := f.bank.approve(addr, tok, custody, domain.InfiniteAllowance()); err != nil {
			return domain.Market{}, err
		}
	}
	for _, tok := range outcomeTokens {
		f.ledger.setApprovalForAll(addr, tok, true)
	}

	f.markets[addr] = m
	f.store.Record(func() { delete(f.markets, addr) })
	return m.Record(), nil
}

// Market returns the live market at addr.
func (f *MarketFactory) Market(addr common.Address) (*Market, error) {
	var m *Market
	err := f.store.View(func() error {
		var ok bool
		m, ok = f.markets[addr]
		if !ok {
			return domain.ErrUnknownMarket
		}
		return nil
	})
	return m, err
}

// PoolTokens returns the pool's token list and balances under the store's
// read lock.
func (f *MarketFactory) PoolTokens(id domain.PoolID) ([]common.Address, []*uint256.Int, error) {
	var (
		tokens   []common.Address
		balances []*uint256.Int
	)
	err := f.store.View(func() error {
		var err error
		tokens, balances, err = f.pools.GetPoolTokens(id)
		return err
	})
	return tokens, balances, err
}

// Markets returns records of all created markets.
func (f *MarketFactory) Markets() []domain.Market {
	var out []domain.Market
	_ = f.store.View(func() error {
		for _, m := range f.markets {
			out = append(out, m.Record())
		}
		return nil
	})
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out
}

// tokenWeightOrder sorts a token list by address while keeping the weight
// list aligned.
type tokenWeightOrder struct {
	tokens  []common.Address
	weights []*uint256.Int
}

func (o *tokenWeightOrder) Len() int { return len(o.tokens) }
func (o *tokenWeightOrder) Less(i, j int) bool {
	return o.tokens[i].Cmp(o.tokens[j]) < 0
}
func (o *tokenWeightOrder) Swap(i, j int) {
	o.tokens[i], o.tokens[j] = o.tokens[j], o.tokens[i]
	o.weights[i], o.weights[j] = o.weights[j], o.weights[i]
}

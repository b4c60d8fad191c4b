package engine

import (
	"encoding/binary"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/holiman/uint256"

	"github.com/alanyoungcy/ctmarket/internal/domain"
	"github.com/alanyoungcy/ctmarket/internal/state"
)

// MaxPoolTokens bounds the token count of a vault pool.
const MaxPoolTokens = 5

// pool is a single weighted pool's accounting record.
type pool struct {
	id       domain.PoolID
	bpt      common.Address
	tokens   []common.Address
	weights  []*uint256.Int
	swapFee  *uint256.Int
	owner    common.Address
	balances []*uint256.Int
}

// Vault is the reference PoolEngine: a weighted-pool custodian that tracks
// deposits, mints BPT against them, and pays out proportionally on exit. It
// does the engine's accounting, not its pricing; swaps are out of scope.
//
// Vault methods do not take the store lock themselves. They run inside the
// enclosing market operation's unit of work, so a failed join or exit is
// rolled back together with everything the market did before it.
type Vault struct {
	store   *state.Store
	bank    *Bank
	address common.Address
	pools   map[domain.PoolID]*pool
	byBPT   map[common.Address]domain.PoolID
	nonce   uint64
}

var _ domain.PoolEngine = (*Vault)(nil)

// NewVault creates an empty Vault over the shared store and bank.
func NewVault(store *state.Store, bank *Bank) *Vault {
	return &Vault{
		store:   store,
		bank:    bank,
		address: domain.DeriveAddress("ctmarket/vault", 0),
		pools:   make(map[domain.PoolID]*pool),
		byBPT:   make(map[common.Address]domain.PoolID),
	}
}

// Custody returns the vault's custody account.
func (v *Vault) Custody() common.Address { return v.address }

// CreatePool registers a weighted pool and returns its id. Weights must sum
// to exactly FullPoolWeight.
func (v *Vault) CreatePool(name, symbol string, tokens []common.Address, weights []*uint256.Int, swapFee *uint256.Int, owner common.Address) (domain.PoolID, error) {
	if len(tokens) < 2 || len(tokens) > MaxPoolTokens {
		return domain.PoolID{}, domain.ErrTooManyPoolTokens
	}
	if len(weights) != len(tokens) {
		return domain.PoolID{}, domain.ErrPoolAmountsLength
	}
	sum := new(uint256.Int)
	for _, w := range weights {
		sum.Add(sum, w)
	}
	if !sum.Eq(domain.FullPoolWeight()) {
		return domain.PoolID{}, domain.ErrInvalidPoolWeights
	}
	for _, tok := range tokens {
		if _, ok := v.bank.tokens[tok]; !ok {
			return domain.PoolID{}, domain.ErrUnknownToken
		}
	}

	bpt, err := v.bank.createTokenOwnedBySelf(name, symbol, 18)
	if err != nil {
		return domain.PoolID{}, err
	}

	nonce := v.nonce
	v.nonce++
	v.store.Record(func() { v.nonce = nonce })

	var n [8]byte
	binary.BigEndian.PutUint64(n[:], nonce)
	id := domain.PoolID(crypto.Keccak256Hash(bpt.Bytes(), n[:]))
	p := &pool{
		id:       id,
		bpt:      bpt,
		tokens:   append([]common.Address(nil), tokens...),
		weights:  cloneAmounts(weights),
		swapFee:  swapFee.Clone(),
		owner:    owner,
		balances: zeroAmounts(len(tokens)),
	}
	v.pools[id] = p
	v.byBPT[bpt] = id
	v.store.Record(func() {
		delete(v.pools, id)
		delete(v.byBPT, bpt)
	})
	return id, nil
}

// GetPool returns the pool's BPT token address.
func (v *Vault) GetPool(id domain.PoolID) (common.Address, error) {
	p, ok := v.pools[id]
	if !ok {
		return common.Address{}, domain.ErrUnknownPool
	}
	return p.bpt, nil
}

// GetPoolTokens returns the pool's token list and current balances.
func (v *Vault) GetPoolTokens(id domain.PoolID) ([]common.Address, []*uint256.Int, error) {
	p, ok := v.pools[id]
	if !ok {
		return nil, nil, domain.ErrUnknownPool
	}
	return append([]common.Address(nil), p.tokens...), cloneAmounts(p.balances), nil
}

// Join pulls amountsIn from sender into the vault and mints BPT to recipient.
// JoinKindInit seeds the pool and mints BPT equal to the total deposited;
// JoinKindExactTokensIn mints in proportion to the least-funded token and
// enforces minBPTOut.
func (v *Vault) Join(id domain.PoolID, sender, recipient common.Address, amountsIn []*uint256.Int, kind domain.JoinKind, minBPTOut *uint256.Int) (*uint256.Int, error) {
	p, ok := v.pools[id]
	if !ok {
		return nil, domain.ErrUnknownPool
	}
	if len(amountsIn) != len(p.tokens) {
		return nil, domain.ErrPoolAmountsLength
	}

	supply := v.bank.tokens[p.bpt].totalSupply.Clone()
	var bptOut *uint256.Int
	switch kind {
	case domain.JoinKindInit:
		if !supply.IsZero() {
			return nil, domain.ErrPoolAlreadyInitialized
		}
		bptOut = new(uint256.Int)
		for _, a := range amountsIn {
			next, overflow := bptOut.AddOverflow(bptOut, a)
			if overflow {
				return nil, domain.ErrAmountOverflow
			}
			bptOut = next
		}
	case domain.JoinKindExactTokensIn:
		if supply.IsZero() {
			return nil, domain.ErrPoolNotInitialized
		}
		// BPT out is bounded by the proportionally least-funded token, so
		// unbalanced joins never mint more than a balanced join of the
		// smallest ratio would.
		for i, a := range amountsIn {
			if p.balances[i].IsZero() {
				return nil, domain.ErrPoolNotInitialized
			}
			share, overflow := new(uint256.Int).MulDivOverflow(a, supply, p.balances[i])
			if overflow {
				return nil, domain.ErrAmountOverflow
			}
			if bptOut == nil || share.Lt(bptOut) {
				bptOut = share
			}
		}
		if minBPTOut != nil && bptOut.Lt(minBPTOut) {
			return nil, domain.ErrBPTOutBelowMin
		}
	default:
		return nil, domain.ErrInvalidJoinKind
	}

	for i, a := range amountsIn {
		if a.IsZero() {
			continue
		}
		if err := v.bank.transferFrom(v.address, p.tokens[i], sender, v.address, a); err != nil {
			return nil, err
		}
		next, overflow := new(uint256.Int).AddOverflow(p.balances[i], a)
		if overflow {
			return nil, domain.ErrAmountOverflow
		}
		v.setPoolBalance(p, i, next)
	}
	if err := v.bank.mint(p.bpt, p.bpt, recipient, bptOut); err != nil {
		return nil, err
	}
	return bptOut.Clone(), nil
}

// Exit burns bptIn from sender and pays out each token's proportional share
// of the pool to recipient, enforcing minAmountsOut per token.
func (v *Vault) Exit(id domain.PoolID, sender, recipient common.Address, minAmountsOut []*uint256.Int, bptIn *uint256.Int) ([]*uint256.Int, error) {
	p, ok := v.pools[id]
	if !ok {
		return nil, domain.ErrUnknownPool
	}
	if len(minAmountsOut) != len(p.tokens) {
		return nil, domain.ErrPoolAmountsLength
	}
	supply := v.bank.tokens[p.bpt].totalSupply.Clone()
	if supply.IsZero() {
		return nil, domain.ErrPoolNotInitialized
	}
	if err := v.bank.burn(p.bpt, p.bpt, sender, bptIn); err != nil {
		return nil, err
	}

	amountsOut := make([]*uint256.Int, len(p.tokens))
	for i := range p.tokens {
		out, overflow := new(uint256.Int).MulDivOverflow(p.balances[i], bptIn, supply)
		if overflow {
			return nil, domain.ErrAmountOverflow
		}
		if minAmountsOut[i] != nil && out.Lt(minAmountsOut[i]) {
			return nil, domain.ErrExitBelowMin
		}
		v.setPoolBalance(p, i, new(uint256.Int).Sub(p.balances[i], out))
		if err := v.bank.transfer(p.tokens[i], v.address, recipient, out); err != nil {
			return nil, err
		}
		amountsOut[i] = out
	}
	return amountsOut, nil
}

func (v *Vault) setPoolBalance(p *pool, i int, next *uint256.Int) {
	old := p.balances[i]
	v.store.Record(func() { p.balances[i] = old })
	p.balances[i] = next
}

func cloneAmounts(in []*uint256.Int) []*uint256.Int {
	out := make([]*uint256.Int, len(in))
	for i, a := range in {
		out[i] = a.Clone()
	}
	return out
}

func zeroAmounts(n int) []*uint256.Int {
	out := make([]*uint256.Int, n)
	for i := range out {
		out[i] = new(uint256.Int)
	}
	return out
}

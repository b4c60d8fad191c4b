// Package engine implements the core accounting components of the
// conditional-outcome market: the fungible token bank, the position ledger,
// the wrapper registry (transmuter), the resolution oracle, the reference
// pool vault, and the market controller/factory. All components are services
// over one shared state.Store; a top-level operation either commits its whole
// effect or none of it.
package engine

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"github.com/alanyoungcy/ctmarket/internal/domain"
	"github.com/alanyoungcy/ctmarket/internal/state"
)

// token is a single fungible sub-ledger inside the bank.
type token struct {
	addr        common.Address
	name        string
	symbol      string
	decimals    uint8
	owner       common.Address // mint/burn authority
	totalSupply *uint256.Int
	balances    map[common.Address]*uint256.Int
	allowances  map[common.Address]map[common.Address]*uint256.Int
}

// TokenInfo is the read-model of a bank token.
type TokenInfo struct {
	Address     common.Address
	Name        string
	Symbol      string
	Decimals    uint8
	Owner       common.Address
	TotalSupply *uint256.Int
}

// Bank is the in-process fungible-asset ledger. Collateral tokens, wrapped
// outcome tokens, and pool BPT all live here as independent sub-ledgers with
// ERC20-style transfer/approve semantics, including the infinite-allowance
// convention.
type Bank struct {
	store  *state.Store
	tokens map[common.Address]*token
	nonce  uint64
}

// NewBank creates an empty Bank over the shared store.
func NewBank(store *state.Store) *Bank {
	return &Bank{
		store:  store,
		tokens: make(map[common.Address]*token),
	}
}

// CreateToken registers a new fungible token and returns its derived
// address. owner is the only account allowed to mint and burn.
func (b *Bank) CreateToken(name, symbol string, decimals uint8, owner common.Address) (common.Address, error) {
	var addr common.Address
	err := b.store.Update(func() error {
		var err error
		addr, err = b.createToken(name, symbol, decimals, owner)
		return err
	})
	return addr, err
}

func (b *Bank) createToken(name, symbol string, decimals uint8, owner common.Address) (common.Address, error) {
	addr := domain.DeriveAddress("ctmarket/token/"+symbol, b.nonce)
	b.nonce++
	nonce := b.nonce
	b.store.Record(func() { b.nonce = nonce - 1 })

	t := &token{
		addr:        addr,
		name:        name,
		symbol:      symbol,
		decimals:    decimals,
		owner:       owner,
		totalSupply: new(uint256.Int),
		balances:    make(map[common.Address]*uint256.Int),
		allowances:  make(map[common.Address]map[common.Address]*uint256.Int),
	}
	b.tokens[addr] = t
	b.store.Record(func() { delete(b.tokens, addr) })
	return addr, nil
}

// createTokenOwnedBySelf registers a token whose mint/burn authority is its
// own address. Used for wrapped outcome tokens and BPT, which are operated by
// the component acting as the token.
func (b *Bank) createTokenOwnedBySelf(name, symbol string, decimals uint8) (common.Address, error) {
	addr, err := b.createToken(name, symbol, decimals, common.Address{})
	if err != nil {
		return common.Address{}, err
	}
	t := b.tokens[addr]
	t.owner = addr
	return addr, nil
}

// Mint credits amount of tok to acct. Caller must be the token owner.
func (b *Bank) Mint(caller, tok, acct common.Address, amount *uint256.Int) error {
	return b.store.Update(func() error {
		return b.mint(caller, tok, acct, amount)
	})
}

func (b *Bank) mint(caller, tok, acct common.Address, amount *uint256.Int) error {
	t, ok := b.tokens[tok]
	if !ok {
		return domain.ErrUnknownToken
	}
	if caller != t.owner {
		return domain.ErrNotTokenOwner
	}
	supply, overflow := new(uint256.Int).AddOverflow(t.totalSupply, amount)
	if overflow {
		return domain.ErrAmountOverflow
	}
	b.setTotalSupply(t, supply)
	return b.credit(t, acct, amount)
}

// Burn debits amount of tok from acct. Caller must be the token owner.
func (b *Bank) Burn(caller, tok, acct common.Address, amount *uint256.Int) error {
	return b.store.Update(func() error {
		return b.burn(caller, tok, acct, amount)
	})
}

func (b *Bank) burn(caller, tok, acct common.Address, amount *uint256.Int) error {
	t, ok := b.tokens[tok]
	if !ok {
		return domain.ErrUnknownToken
	}
	if caller != t.owner {
		return domain.ErrNotTokenOwner
	}
	if err := b.debit(t, acct, amount); err != nil {
		return err
	}
	b.setTotalSupply(t, new(uint256.Int).Sub(t.totalSupply, amount))
	return nil
}

// Transfer moves amount of tok from the caller to dst.
func (b *Bank) Transfer(caller, tok, dst common.Address, amount *uint256.Int) error {
	return b.store.Update(func() error {
		return b.transfer(tok, caller, dst, amount)
	})
}

func (b *Bank) transfer(tok, src, dst common.Address, amount *uint256.Int) error {
	t, ok := b.tokens[tok]
	if !ok {
		return domain.ErrUnknownToken
	}
	if err := b.debit(t, src, amount); err != nil {
		return err
	}
	return b.credit(t, dst, amount)
}

// TransferFrom moves amount of tok from src to dst on the caller's
// authority. When caller != src the caller's allowance is consumed, except
// for the infinite allowance which is never decremented.
func (b *Bank) TransferFrom(caller, tok, src, dst common.Address, amount *uint256.Int) error {
	return b.store.Update(func() error {
		return b.transferFrom(caller, tok, src, dst, amount)
	})
}

func (b *Bank) transferFrom(caller, tok, src, dst common.Address, amount *uint256.Int) error {
	t, ok := b.tokens[tok]
	if !ok {
		return domain.ErrUnknownToken
	}
	if caller != src {
		if err := b.spendAllowance(t, src, caller, amount); err != nil {
			return err
		}
	}
	if err := b.debit(t, src, amount); err != nil {
		return err
	}
	return b.credit(t, dst, amount)
}

// Approve sets the caller's allowance for spender on tok.
func (b *Bank) Approve(caller, tok, spender common.Address, amount *uint256.Int) error {
	return b.store.Update(func() error {
		return b.approve(caller, tok, spender, amount)
	})
}

func (b *Bank) approve(caller, tok, spender common.Address, amount *uint256.Int) error {
	t, ok := b.tokens[tok]
	if !ok {
		return domain.ErrUnknownToken
	}
	b.setAllowance(t, caller, spender, amount.Clone())
	return nil
}

// BalanceOf returns acct's balance of tok. Unknown tokens read as zero.
func (b *Bank) BalanceOf(tok, acct common.Address) *uint256.Int {
	out := new(uint256.Int)
	_ = b.store.View(func() error {
		if t, ok := b.tokens[tok]; ok {
			if bal, ok := t.balances[acct]; ok {
				out.Set(bal)
			}
		}
		return nil
	})
	return out
}

// Allowance returns the allowance src granted spender on tok.
func (b *Bank) Allowance(tok, src, spender common.Address) *uint256.Int {
	out := new(uint256.Int)
	_ = b.store.View(func() error {
		if t, ok := b.tokens[tok]; ok {
			if a, ok := t.allowances[src][spender]; ok {
				out.Set(a)
			}
		}
		return nil
	})
	return out
}

// TotalSupply returns the outstanding supply of tok.
func (b *Bank) TotalSupply(tok common.Address) *uint256.Int {
	out := new(uint256.Int)
	_ = b.store.View(func() error {
		if t, ok := b.tokens[tok]; ok {
			out.Set(t.totalSupply)
		}
		return nil
	})
	return out
}

// Info returns token metadata, or ErrUnknownToken.
func (b *Bank) Info(tok common.Address) (TokenInfo, error) {
	var info TokenInfo
	err := b.store.View(func() error {
		t, ok := b.tokens[tok]
		if !ok {
			return domain.ErrUnknownToken
		}
		info = TokenInfo{
			Address:     t.addr,
			Name:        t.name,
			Symbol:      t.symbol,
			Decimals:    t.decimals,
			Owner:       t.owner,
			TotalSupply: t.totalSupply.Clone(),
		}
		return nil
	})
	return info, err
}

func (b *Bank) balanceOf(tok, acct common.Address) *uint256.Int {
	if t, ok := b.tokens[tok]; ok {
		if bal, ok := t.balances[acct]; ok {
			return bal.Clone()
		}
	}
	return new(uint256.Int)
}

func (b *Bank) decimalsOf(tok common.Address) (uint8, error) {
	t, ok := b.tokens[tok]
	if !ok {
		return 0, domain.ErrUnknownToken
	}
	return t.decimals, nil
}

// ---------------------------------------------------------------------------
// Journaled mutation helpers. Balances and allowances are replaced, never
// mutated in place, so undo closures can restore the old pointer.
// ---------------------------------------------------------------------------

func (b *Bank) setBalance(t *token, acct common.Address, v *uint256.Int) {
	old, had := t.balances[acct]
	b.store.Record(func() {
		if had {
			t.balances[acct] = old
		} else {
			delete(t.balances, acct)
		}
	})
	t.balances[acct] = v
}

func (b *Bank) setTotalSupply(t *token, v *uint256.Int) {
	old := t.totalSupply
	b.store.Record(func() { t.totalSupply = old })
	t.totalSupply = v
}

func (b *Bank) setAllowance(t *token, src, spender common.Address, v *uint256.Int) {
	inner, hadInner := t.allowances[src]
	if !hadInner {
		inner = make(map[common.Address]*uint256.Int)
		t.allowances[src] = inner
		b.store.Record(func() { delete(t.allowances, src) })
	}
	old, had := inner[spender]
	b.store.Record(func() {
		if had {
			inner[spender] = old
		} else {
			delete(inner, spender)
		}
	})
	inner[spender] = v
}

func (b *Bank) credit(t *token, acct common.Address, amount *uint256.Int) error {
	cur := new(uint256.Int)
	if bal, ok := t.balances[acct]; ok {
		cur.Set(bal)
	}
	next, overflow := new(uint256.Int).AddOverflow(cur, amount)
	if overflow {
		return domain.ErrAmountOverflow
	}
	b.setBalance(t, acct, next)
	return nil
}

func (b *Bank) debit(t *token, acct common.Address, amount *uint256.Int) error {
	cur := new(uint256.Int)
	if bal, ok := t.balances[acct]; ok {
		cur.Set(bal)
	}
	if cur.Lt(amount) {
		return domain.ErrInsufficientBalance
	}
	b.setBalance(t, acct, new(uint256.Int).Sub(cur, amount))
	return nil
}

func (b *Bank) spendAllowance(t *token, src, spender common.Address, amount *uint256.Int) error {
	cur, ok := t.allowances[src][spender]
	if !ok || cur.Lt(amount) {
		return domain.ErrInsufficientAllowance
	}
	if domain.IsInfiniteAllowance(cur) {
		return nil
	}
	b.setAllowance(t, src, spender, new(uint256.Int).Sub(cur, amount))
	return nil
}

package engine

import (
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/ctmarket/internal/domain"
	"github.com/alanyoungcy/ctmarket/internal/state"
)

var (
	admin = common.HexToAddress("0x00000000000000000000000000000000000AD417")
	alice = common.HexToAddress("0x00000000000000000000000000000000000A11CE")
	bob   = common.HexToAddress("0x0000000000000000000000000000000000000B0B")
	carol = common.HexToAddress("0x00000000000000000000000000000000000CA901")
)

// e18 returns n scaled by 10^18.
func e18(n uint64) *uint256.Int {
	return new(uint256.Int).Mul(uint256.NewInt(n), uint256.NewInt(1_000_000_000_000_000_000))
}

type fakeClock struct {
	t time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{t: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time          { return c.t }
func (c *fakeClock) Advance(d time.Duration) { c.t = c.t.Add(d) }

// rig wires the full engine over a fresh store with a funded collateral
// token.
type rig struct {
	store      *state.Store
	bank       *Bank
	ledger     *Ledger
	transmuter *Transmuter
	oracle     *Oracle
	vault      *Vault
	factory    *MarketFactory
	clock      *fakeClock
	collateral common.Address
}

func newRig(t *testing.T) *rig {
	t.Helper()
	store := state.New()
	bank := NewBank(store)
	ledger := NewLedger(store, bank)
	transmuter := NewTransmuter(store, bank, ledger)
	oracle := NewOracle(store, ledger, admin)
	vault := NewVault(store, bank)
	factory := NewMarketFactory(store, bank, ledger, transmuter, vault)

	clock := newFakeClock()
	oracle.SetClock(clock.Now)

	collateral, err := bank.CreateToken("Wrapped Ether", "WETH", 18, admin)
	require.NoError(t, err)

	return &rig{
		store:      store,
		bank:       bank,
		ledger:     ledger,
		transmuter: transmuter,
		oracle:     oracle,
		vault:      vault,
		factory:    factory,
		clock:      clock,
		collateral: collateral,
	}
}

func (r *rig) fund(t *testing.T, acct common.Address, amount *uint256.Int) {
	t.Helper()
	require.NoError(t, r.bank.Mint(admin, r.collateral, acct, amount))
}

// prepare registers a condition under the resolution oracle's address and
// returns its id.
func (r *rig) prepare(t *testing.T, questionID domain.QuestionID, outcomes int) domain.ConditionID {
	t.Helper()
	id, err := r.ledger.PrepareCondition(r.oracle.Address(), questionID, outcomes)
	require.NoError(t, err)
	return id
}

// wrapOutcomes registers one wrapper per outcome slot and returns the token
// addresses in slot order.
func (r *rig) wrapOutcomes(t *testing.T, conditionID domain.ConditionID, outcomes int) []common.Address {
	t.Helper()
	names := make([]string, outcomes)
	symbols := make([]string, outcomes)
	for i := range names {
		names[i] = "Outcome " + string(rune('A'+i))
		symbols[i] = "OUT" + string(rune('A'+i))
	}
	addrs, err := r.transmuter.RegisterBasicPartition(conditionID, r.collateral, names, symbols)
	require.NoError(t, err)
	return addrs
}

// newMarket prepares a condition, wraps its outcomes, and creates a market
// over it.
func (r *rig) newMarket(t *testing.T, questionID domain.QuestionID, outcomes int) *Market {
	t.Helper()
	conditionID := r.prepare(t, questionID, outcomes)
	r.wrapOutcomes(t, conditionID, outcomes)
	rec, err := r.factory.Create("Test Market", "TMKT", conditionID, r.collateral, uint256.NewInt(10_000_000_000_000_000))
	require.NoError(t, err)
	m, err := r.factory.Market(rec.Address)
	require.NoError(t, err)
	return m
}

func qid(s string) domain.QuestionID {
	var id domain.QuestionID
	copy(id[:], s)
	return id
}

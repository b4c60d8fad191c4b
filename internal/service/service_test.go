package service

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/ctmarket/internal/domain"
	"github.com/alanyoungcy/ctmarket/internal/engine"
	"github.com/alanyoungcy/ctmarket/internal/state"
)

// In-memory fakes for the external collaborators.

type memConditionStore struct {
	m map[domain.ConditionID]domain.Condition
}

func newMemConditionStore() *memConditionStore {
	return &memConditionStore{m: make(map[domain.ConditionID]domain.Condition)}
}

func (s *memConditionStore) Upsert(_ context.Context, c domain.Condition) error {
	s.m[c.ID] = c
	return nil
}

func (s *memConditionStore) GetByID(_ context.Context, id domain.ConditionID) (domain.Condition, error) {
	c, ok := s.m[id]
	if !ok {
		return domain.Condition{}, domain.ErrNotFound
	}
	return c, nil
}

func (s *memConditionStore) List(_ context.Context, limit int) ([]domain.Condition, error) {
	out := make([]domain.Condition, 0, len(s.m))
	for _, c := range s.m {
		if len(out) == limit {
			break
		}
		out = append(out, c)
	}
	return out, nil
}

type memQuestionStore struct {
	m map[domain.QuestionID]domain.Question
}

func newMemQuestionStore() *memQuestionStore {
	return &memQuestionStore{m: make(map[domain.QuestionID]domain.Question)}
}

func (s *memQuestionStore) Upsert(_ context.Context, q domain.Question) error {
	s.m[q.ID] = q
	return nil
}

func (s *memQuestionStore) GetByID(_ context.Context, id domain.QuestionID) (domain.Question, error) {
	q, ok := s.m[id]
	if !ok {
		return domain.Question{}, domain.ErrNotFound
	}
	return q, nil
}

func (s *memQuestionStore) ListUnresolved(_ context.Context) ([]domain.Question, error) {
	var out []domain.Question
	for _, q := range s.m {
		if !q.Resolved {
			out = append(out, q)
		}
	}
	return out, nil
}

type memMarketStore struct {
	m map[common.Address]domain.Market
}

func newMemMarketStore() *memMarketStore {
	return &memMarketStore{m: make(map[common.Address]domain.Market)}
}

func (s *memMarketStore) Insert(_ context.Context, m domain.Market) error {
	if _, ok := s.m[m.Address]; ok {
		return domain.ErrAlreadyExists
	}
	s.m[m.Address] = m
	return nil
}

func (s *memMarketStore) GetByAddress(_ context.Context, addr common.Address) (domain.Market, error) {
	m, ok := s.m[addr]
	if !ok {
		return domain.Market{}, domain.ErrNotFound
	}
	return m, nil
}

func (s *memMarketStore) List(_ context.Context, limit int) ([]domain.Market, error) {
	out := make([]domain.Market, 0, len(s.m))
	for _, m := range s.m {
		if len(out) == limit {
			break
		}
		out = append(out, m)
	}
	return out, nil
}

func (s *memMarketStore) Count(_ context.Context) (int64, error) {
	return int64(len(s.m)), nil
}

type memAuditStore struct {
	events []string
}

func (s *memAuditStore) Log(_ context.Context, event string, _ map[string]any) error {
	s.events = append(s.events, event)
	return nil
}

type memMarketCache struct {
	m map[common.Address]domain.Market
}

func newMemMarketCache() *memMarketCache {
	return &memMarketCache{m: make(map[common.Address]domain.Market)}
}

func (c *memMarketCache) Set(_ context.Context, m domain.Market) error {
	c.m[m.Address] = m
	return nil
}

func (c *memMarketCache) Get(_ context.Context, addr common.Address) (domain.Market, error) {
	m, ok := c.m[addr]
	if !ok {
		return domain.Market{}, domain.ErrNotFound
	}
	return m, nil
}

func (c *memMarketCache) Invalidate(_ context.Context, addr common.Address) error {
	delete(c.m, addr)
	return nil
}

type memPayoutCache struct {
	m map[domain.ConditionID][]uint64
}

func newMemPayoutCache() *memPayoutCache {
	return &memPayoutCache{m: make(map[domain.ConditionID][]uint64)}
}

func (c *memPayoutCache) Set(_ context.Context, id domain.ConditionID, numerators []uint64) error {
	c.m[id] = numerators
	return nil
}

func (c *memPayoutCache) Get(_ context.Context, id domain.ConditionID) ([]uint64, error) {
	nums, ok := c.m[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return nums, nil
}

type memBlobWriter struct {
	key         string
	contentType string
	data        []byte
}

func (w *memBlobWriter) Put(_ context.Context, key string, contentType string, data []byte) error {
	w.key = key
	w.contentType = contentType
	w.data = data
	return nil
}

// svcRig wires the engine plus fakes behind the service layer.
type svcRig struct {
	bank       *engine.Bank
	ledger     *engine.Ledger
	transmuter *engine.Transmuter
	oracle     *engine.Oracle
	factory    *engine.MarketFactory

	conditionStore *memConditionStore
	questionStore  *memQuestionStore
	marketStore    *memMarketStore
	audit          *memAuditStore
	marketCache    *memMarketCache
	payoutCache    *memPayoutCache

	controller common.Address
	collateral common.Address
	clock      time.Time
}

func newSvcRig(t *testing.T) *svcRig {
	t.Helper()

	store := state.New()
	bank := engine.NewBank(store)
	ledger := engine.NewLedger(store, bank)
	transmuter := engine.NewTransmuter(store, bank, ledger)
	controller := common.HexToAddress("0x00000000000000000000000000000000000000aa")
	oracle := engine.NewOracle(store, ledger, controller)
	vault := engine.NewVault(store, bank)
	factory := engine.NewMarketFactory(store, bank, ledger, transmuter, vault)

	rig := &svcRig{
		bank:           bank,
		ledger:         ledger,
		transmuter:     transmuter,
		oracle:         oracle,
		factory:        factory,
		conditionStore: newMemConditionStore(),
		questionStore:  newMemQuestionStore(),
		marketStore:    newMemMarketStore(),
		audit:          &memAuditStore{},
		marketCache:    newMemMarketCache(),
		payoutCache:    newMemPayoutCache(),
		controller:     controller,
		clock:          time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
	}
	oracle.SetClock(func() time.Time { return rig.clock })

	collateral, err := bank.CreateToken("Wrapped Ether", "WETH", 18, controller)
	require.NoError(t, err)
	rig.collateral = collateral

	return rig
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestConditionServicePrepareWritesThrough(t *testing.T) {
	rig := newSvcRig(t)
	svc := NewConditionService(rig.ledger, rig.conditionStore, rig.payoutCache, rig.audit, testLogger())
	ctx := context.Background()

	oracleAddr := common.HexToAddress("0x00000000000000000000000000000000000000bb")
	qid := domain.QuestionID(common.HexToHash("0x01"))

	cond, err := svc.Prepare(ctx, oracleAddr, qid, 2)
	require.NoError(t, err)
	assert.Equal(t, 2, cond.OutcomeSlotCount)

	stored, err := rig.conditionStore.GetByID(ctx, cond.ID)
	require.NoError(t, err)
	assert.Equal(t, cond.ID, stored.ID)
	assert.Contains(t, rig.audit.events, "condition.prepared")

	// Second prepare of the same triple fails and writes nothing new.
	_, err = svc.Prepare(ctx, oracleAddr, qid, 2)
	assert.ErrorIs(t, err, domain.ErrConditionAlreadyPrepared)
}

func TestConditionServicePayoutsBackfillsCache(t *testing.T) {
	rig := newSvcRig(t)
	svc := NewConditionService(rig.ledger, rig.conditionStore, rig.payoutCache, rig.audit, testLogger())
	ctx := context.Background()

	qid := domain.QuestionID(common.HexToHash("0x02"))
	id, err := rig.ledger.PrepareCondition(rig.controller, qid, 2)
	require.NoError(t, err)

	_, err = svc.Payouts(ctx, id)
	assert.ErrorIs(t, err, domain.ErrPayoutsNotReported)

	require.NoError(t, rig.ledger.ReportPayouts(rig.controller, qid, []uint64{1, 0}))

	nums, err := svc.Payouts(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, []uint64{1, 0}, nums)

	// The read primed the cache.
	cached, err := rig.payoutCache.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, []uint64{1, 0}, cached)
}

func TestOracleServiceRegisterAndResolve(t *testing.T) {
	rig := newSvcRig(t)
	svc := NewOracleService(rig.oracle, rig.ledger, rig.questionStore, rig.conditionStore, rig.payoutCache, rig.audit, nil, testLogger())
	ctx := context.Background()

	qid := domain.QuestionID(common.HexToHash("0x03"))
	resolution := rig.clock.Add(time.Hour)

	q, err := svc.Register(ctx, rig.controller, qid, 2, resolution)
	require.NoError(t, err)
	assert.False(t, q.Resolved)

	stored, err := rig.questionStore.GetByID(ctx, qid)
	require.NoError(t, err)
	assert.Equal(t, q.ConditionID, stored.ConditionID)

	// Not yet resolvable.
	_, err = svc.Resolve(ctx, rig.controller, qid, []uint64{1, 0})
	assert.ErrorIs(t, err, domain.ErrTimestampNotReached)

	rig.clock = resolution
	q, err = svc.Resolve(ctx, rig.controller, qid, []uint64{1, 0})
	require.NoError(t, err)
	assert.True(t, q.Resolved)

	// Resolution wrote the question and condition through and primed the
	// payout cache.
	stored, err = rig.questionStore.GetByID(ctx, qid)
	require.NoError(t, err)
	assert.True(t, stored.Resolved)

	cached, err := rig.payoutCache.Get(ctx, q.ConditionID)
	require.NoError(t, err)
	assert.Equal(t, []uint64{1, 0}, cached)

	cond, err := rig.conditionStore.GetByID(ctx, q.ConditionID)
	require.NoError(t, err)
	assert.True(t, cond.Resolved())
}

func TestMarketServiceCreateUsesDefaultFee(t *testing.T) {
	rig := newSvcRig(t)
	defaultFee := uint256.NewInt(1e16)
	svc := NewMarketService(rig.factory, rig.marketStore, rig.marketCache, rig.audit, nil, defaultFee, testLogger())
	ctx := context.Background()

	qid := domain.QuestionID(common.HexToHash("0x04"))
	id, err := rig.ledger.PrepareCondition(rig.controller, qid, 2)
	require.NoError(t, err)
	_, err = rig.transmuter.RegisterBasicPartition(id, rig.collateral,
		[]string{"Yes", "No"}, []string{"YES", "NO"})
	require.NoError(t, err)

	rec, err := svc.Create(ctx, "Test Market", "TM", id, rig.collateral, nil)
	require.NoError(t, err)
	assert.True(t, rec.SwapFee.Eq(defaultFee))

	// Written through and cached.
	stored, err := rig.marketStore.GetByAddress(ctx, rec.Address)
	require.NoError(t, err)
	assert.Equal(t, rec.PoolID, stored.PoolID)

	cached, err := svc.Get(ctx, rec.Address)
	require.NoError(t, err)
	assert.Equal(t, rec.Address, cached.Address)

	assert.Contains(t, rig.audit.events, "market.created")
}

func TestSnapshotServiceExport(t *testing.T) {
	rig := newSvcRig(t)
	blob := &memBlobWriter{}
	svc := NewSnapshotService(rig.ledger, rig.oracle, rig.factory, blob, nil, "snapshots", testLogger())
	svc.now = func() time.Time { return time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC) }

	qid := domain.QuestionID(common.HexToHash("0x05"))
	_, err := rig.ledger.PrepareCondition(rig.controller, qid, 3)
	require.NoError(t, err)

	key, err := svc.Export(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "snapshots/2026-03-02T00-00-00Z.json", key)
	assert.Equal(t, key, blob.key)
	assert.Equal(t, "application/json", blob.contentType)

	var snap Snapshot
	require.NoError(t, json.Unmarshal(blob.data, &snap))
	require.Len(t, snap.Conditions, 1)
	assert.Equal(t, 3, snap.Conditions[0].OutcomeSlotCount)
}

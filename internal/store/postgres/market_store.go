package postgres

import (
	"context"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/alanyoungcy/ctmarket/internal/domain"
)

// MarketStore implements domain.MarketStore using PostgreSQL.
type MarketStore struct {
	pool *pgxpool.Pool
}

var _ domain.MarketStore = (*MarketStore)(nil)

// NewMarketStore creates a MarketStore backed by the given connection pool.
func NewMarketStore(pool *pgxpool.Pool) *MarketStore {
	return &MarketStore{pool: pool}
}

const marketCols = `address, name, symbol, condition_id, collateral,
	pool_id, pool, swap_fee, outcome_tokens, created_at`

// Insert records a newly created market. Markets are immutable; inserting
// the same address twice fails with ErrAlreadyExists.
func (s *MarketStore) Insert(ctx context.Context, m domain.Market) error {
	const query = `
		INSERT INTO markets (
			address, name, symbol, condition_id, collateral,
			pool_id, pool, swap_fee, outcome_tokens, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (address) DO NOTHING`

	outcomes := make([]string, len(m.OutcomeTokens))
	for i, tok := range m.OutcomeTokens {
		outcomes[i] = tok.Hex()
	}
	swapFee := "0"
	if m.SwapFee != nil {
		swapFee = m.SwapFee.Dec()
	}

	tag, err := s.pool.Exec(ctx, query,
		m.Address.Hex(), m.Name, m.Symbol, m.ConditionID.Hex(), m.Collateral.Hex(),
		m.PoolID.Hex(), m.Pool.Hex(), swapFee, outcomes, m.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("postgres: insert market %s: %w", m.Address.Hex(), err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrAlreadyExists
	}
	return nil
}

// GetByAddress retrieves a market by its address.
func (s *MarketStore) GetByAddress(ctx context.Context, addr common.Address) (domain.Market, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+marketCols+` FROM markets WHERE address = $1`, addr.Hex())
	m, err := scanMarket(row)
	if err != nil {
		if err == pgx.ErrNoRows {
			return domain.Market{}, domain.ErrNotFound
		}
		return domain.Market{}, fmt.Errorf("postgres: get market %s: %w", addr.Hex(), err)
	}
	return m, nil
}

// List returns the most recently created markets.
func (s *MarketStore) List(ctx context.Context, limit int) ([]domain.Market, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.pool.Query(ctx,
		`SELECT `+marketCols+` FROM markets ORDER BY created_at DESC LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("postgres: list markets: %w", err)
	}
	defer rows.Close()

	var out []domain.Market
	for rows.Next() {
		m, err := scanMarket(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres: scan market: %w", err)
		}
		out = append(out, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: list markets rows: %w", err)
	}
	return out, nil
}

// Count returns the total number of markets in the database.
func (s *MarketStore) Count(ctx context.Context) (int64, error) {
	var count int64
	err := s.pool.QueryRow(ctx, "SELECT COUNT(*) FROM markets").Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("postgres: count markets: %w", err)
	}
	return count, nil
}

func scanMarket(row pgx.Row) (domain.Market, error) {
	var (
		m           domain.Market
		address     string
		conditionID string
		collateral  string
		poolID      string
		pool        string
		swapFee     string
		outcomes    []string
	)
	err := row.Scan(&address, &m.Name, &m.Symbol, &conditionID, &collateral,
		&poolID, &pool, &swapFee, &outcomes, &m.CreatedAt)
	if err != nil {
		return domain.Market{}, err
	}
	m.Address = common.HexToAddress(address)
	m.ConditionID = domain.HexToConditionID(conditionID)
	m.Collateral = common.HexToAddress(collateral)
	m.PoolID = domain.PoolID(common.HexToHash(poolID))
	m.Pool = common.HexToAddress(pool)
	fee, err := uint256.FromDecimal(swapFee)
	if err != nil {
		return domain.Market{}, fmt.Errorf("bad swap fee %q: %w", swapFee, err)
	}
	m.SwapFee = fee
	m.OutcomeTokens = make([]common.Address, len(outcomes))
	for i, tok := range outcomes {
		m.OutcomeTokens[i] = common.HexToAddress(tok)
	}
	return m, nil
}

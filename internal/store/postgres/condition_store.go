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

// ConditionStore implements domain.ConditionStore using PostgreSQL.
type ConditionStore struct {
	pool *pgxpool.Pool
}

var _ domain.ConditionStore = (*ConditionStore)(nil)

// NewConditionStore creates a ConditionStore backed by the given pool.
func NewConditionStore(pool *pgxpool.Pool) *ConditionStore {
	return &ConditionStore{pool: pool}
}

const conditionCols = `id, oracle, question_id, outcome_slot_count,
	payout_numerators, payout_denominator, prepared_at`

// Upsert inserts or updates a condition record.
func (s *ConditionStore) Upsert(ctx context.Context, c domain.Condition) error {
	const query = `
		INSERT INTO conditions (
			id, oracle, question_id, outcome_slot_count,
			payout_numerators, payout_denominator, prepared_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, NOW())
		ON CONFLICT (id) DO UPDATE SET
			payout_numerators  = EXCLUDED.payout_numerators,
			payout_denominator = EXCLUDED.payout_denominator,
			updated_at         = NOW()`

	numerators := make([]int64, len(c.PayoutNumerators))
	for i, n := range c.PayoutNumerators {
		numerators[i] = int64(n)
	}
	denominator := "0"
	if c.PayoutDenominator != nil {
		denominator = c.PayoutDenominator.Dec()
	}

	_, err := s.pool.Exec(ctx, query,
		c.ID.Hex(), c.Oracle.Hex(), c.QuestionID.Hex(), c.OutcomeSlotCount,
		numerators, denominator, c.PreparedAt,
	)
	if err != nil {
		return fmt.Errorf("postgres: upsert condition %s: %w", c.ID.Hex(), err)
	}
	return nil
}

// GetByID retrieves a condition by its id.
func (s *ConditionStore) GetByID(ctx context.Context, id domain.ConditionID) (domain.Condition, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+conditionCols+` FROM conditions WHERE id = $1`, id.Hex())
	c, err := scanCondition(row)
	if err != nil {
		if err == pgx.ErrNoRows {
			return domain.Condition{}, domain.ErrNotFound
		}
		return domain.Condition{}, fmt.Errorf("postgres: get condition %s: %w", id.Hex(), err)
	}
	return c, nil
}

// List returns the most recently prepared conditions.
func (s *ConditionStore) List(ctx context.Context, limit int) ([]domain.Condition, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.pool.Query(ctx,
		`SELECT `+conditionCols+` FROM conditions ORDER BY prepared_at DESC LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("postgres: list conditions: %w", err)
	}
	defer rows.Close()

	var out []domain.Condition
	for rows.Next() {
		c, err := scanCondition(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres: scan condition: %w", err)
		}
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: list conditions rows: %w", err)
	}
	return out, nil
}

func scanCondition(row pgx.Row) (domain.Condition, error) {
	var (
		c           domain.Condition
		id          string
		oracle      string
		questionID  string
		numerators  []int64
		denominator string
	)
	err := row.Scan(&id, &oracle, &questionID, &c.OutcomeSlotCount,
		&numerators, &denominator, &c.PreparedAt)
	if err != nil {
		return domain.Condition{}, err
	}
	c.ID = domain.HexToConditionID(id)
	c.Oracle = common.HexToAddress(oracle)
	c.QuestionID = domain.HexToQuestionID(questionID)
	if len(numerators) > 0 {
		c.PayoutNumerators = make([]uint64, len(numerators))
		for i, n := range numerators {
			c.PayoutNumerators[i] = uint64(n)
		}
	}
	den, err := uint256.FromDecimal(denominator)
	if err != nil {
		return domain.Condition{}, fmt.Errorf("bad payout denominator %q: %w", denominator, err)
	}
	c.PayoutDenominator = den
	return c, nil
}

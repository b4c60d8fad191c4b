package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/alanyoungcy/ctmarket/internal/domain"
)

// QuestionStore implements domain.QuestionStore using PostgreSQL.
type QuestionStore struct {
	pool *pgxpool.Pool
}

var _ domain.QuestionStore = (*QuestionStore)(nil)

// NewQuestionStore creates a QuestionStore backed by the given pool.
func NewQuestionStore(pool *pgxpool.Pool) *QuestionStore {
	return &QuestionStore{pool: pool}
}

const questionCols = `id, condition_id, outcome_slot_count, resolution_time,
	resolved, resolved_at, payouts, registered_at`

// Upsert inserts or updates a question record.
func (s *QuestionStore) Upsert(ctx context.Context, q domain.Question) error {
	const query = `
		INSERT INTO questions (
			id, condition_id, outcome_slot_count, resolution_time,
			resolved, resolved_at, payouts, registered_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, NOW())
		ON CONFLICT (id) DO UPDATE SET
			resolved    = EXCLUDED.resolved,
			resolved_at = EXCLUDED.resolved_at,
			payouts     = EXCLUDED.payouts,
			updated_at  = NOW()`

	payouts := make([]int64, len(q.Payouts))
	for i, p := range q.Payouts {
		payouts[i] = int64(p)
	}

	_, err := s.pool.Exec(ctx, query,
		q.ID.Hex(), q.ConditionID.Hex(), q.OutcomeSlotCount, q.ResolutionTime,
		q.Resolved, q.ResolvedAt, payouts, q.RegisteredAt,
	)
	if err != nil {
		return fmt.Errorf("postgres: upsert question %s: %w", q.ID.Hex(), err)
	}
	return nil
}

// GetByID retrieves a question by its id.
func (s *QuestionStore) GetByID(ctx context.Context, id domain.QuestionID) (domain.Question, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+questionCols+` FROM questions WHERE id = $1`, id.Hex())
	q, err := scanQuestion(row)
	if err != nil {
		if err == pgx.ErrNoRows {
			return domain.Question{}, domain.ErrNotFound
		}
		return domain.Question{}, fmt.Errorf("postgres: get question %s: %w", id.Hex(), err)
	}
	return q, nil
}

// ListUnresolved returns registered questions not yet resolved, oldest
// resolution time first.
func (s *QuestionStore) ListUnresolved(ctx context.Context) ([]domain.Question, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+questionCols+` FROM questions WHERE resolved = FALSE ORDER BY resolution_time ASC`)
	if err != nil {
		return nil, fmt.Errorf("postgres: list unresolved questions: %w", err)
	}
	defer rows.Close()

	var out []domain.Question
	for rows.Next() {
		q, err := scanQuestion(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres: scan question: %w", err)
		}
		out = append(out, q)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: list unresolved questions rows: %w", err)
	}
	return out, nil
}

func scanQuestion(row pgx.Row) (domain.Question, error) {
	var (
		q           domain.Question
		id          string
		conditionID string
		payouts     []int64
	)
	err := row.Scan(&id, &conditionID, &q.OutcomeSlotCount, &q.ResolutionTime,
		&q.Resolved, &q.ResolvedAt, &payouts, &q.RegisteredAt)
	if err != nil {
		return domain.Question{}, err
	}
	q.ID = domain.HexToQuestionID(id)
	q.ConditionID = domain.HexToConditionID(conditionID)
	if len(payouts) > 0 {
		q.Payouts = make([]uint64, len(payouts))
		for i, p := range payouts {
			q.Payouts[i] = uint64(p)
		}
	}
	return q, nil
}

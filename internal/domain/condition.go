package domain

import (
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

// Condition is an oracle-governed question with a fixed number of outcome
// slots. Prepared at most once per (oracle, questionID, outcomeSlotCount);
// the payout vector is written exactly once by the reporting oracle.
type Condition struct {
	ID               ConditionID
	Oracle           common.Address
	QuestionID       QuestionID
	OutcomeSlotCount int

	// PayoutNumerators has OutcomeSlotCount entries once reported, and
	// PayoutDenominator is their sum. A zero denominator means unresolved.
	PayoutNumerators  []uint64
	PayoutDenominator *uint256.Int

	PreparedAt time.Time
}

// Resolved reports whether payouts have been reported for the condition.
func (c *Condition) Resolved() bool {
	return c.PayoutDenominator != nil && !c.PayoutDenominator.IsZero()
}

// Question is the resolution oracle's registration record for a question.
type Question struct {
	ID               QuestionID
	ConditionID      ConditionID
	OutcomeSlotCount int
	ResolutionTime   time.Time
	Resolved         bool
	ResolvedAt       *time.Time
	Payouts          []uint64
	RegisteredAt     time.Time
}

// Market is the immutable record of a factory-created market.
type Market struct {
	Address       common.Address
	Name          string
	Symbol        string
	ConditionID   ConditionID
	Collateral    common.Address
	PoolID        PoolID
	Pool          common.Address
	SwapFee       *uint256.Int
	OutcomeTokens []common.Address
	CreatedAt     time.Time
}

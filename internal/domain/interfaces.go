package domain

import (
	"context"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

// JoinKind selects the pool engine's join mode.
type JoinKind int

const (
	// JoinKindInit supplies the pool's first liquidity: exact amounts in, no
	// minimum-output check.
	JoinKindInit JoinKind = iota
	// JoinKindExactTokensIn supplies subsequent liquidity, bounded below by a
	// caller-supplied minimum BPT output.
	JoinKindExactTokensIn
)

// PoolEngine is the external liquidity-pool collaborator. The core treats it
// as a black box: it never reimplements pool pricing. Calls are synchronous
// and run inside the caller's atomic unit of work; any error aborts the whole
// enclosing operation.
type PoolEngine interface {
	// Custody returns the bank account the engine pulls deposits into.
	// Markets grant it allowance on their pool tokens at creation.
	Custody() common.Address
	// CreatePool registers a pool over the given tokens with per-token
	// normalized weights summing to FullPoolWeight. A zero owner address
	// makes the weights permanent.
	CreatePool(name, symbol string, tokens []common.Address, weights []*uint256.Int, swapFee *uint256.Int, owner common.Address) (PoolID, error)
	// GetPool returns the pool's BPT token address.
	GetPool(id PoolID) (common.Address, error)
	// GetPoolTokens returns the pool's token list (creation order) and the
	// current per-token balances.
	GetPoolTokens(id PoolID) ([]common.Address, []*uint256.Int, error)
	// Join pulls amountsIn from sender and mints BPT to recipient. minBPTOut
	// is ignored for JoinKindInit.
	Join(id PoolID, sender, recipient common.Address, amountsIn []*uint256.Int, kind JoinKind, minBPTOut *uint256.Int) (*uint256.Int, error)
	// Exit burns bptIn from sender and pays per-token amounts, each at least
	// the matching minAmountsOut entry, to recipient.
	Exit(id PoolID, sender, recipient common.Address, minAmountsOut []*uint256.Int, bptIn *uint256.Int) ([]*uint256.Int, error)
}

// PositionReceiver lets an account veto position transfers addressed to it.
// The ledger invokes the hook only for accounts registered with one; transfers
// to unregistered accounts go through without a callback.
type PositionReceiver interface {
	// OnPositionTransfer is invoked after the balance move; returning an
	// error aborts the transfer.
	OnPositionTransfer(operator, from common.Address, positionID PositionID, amount *uint256.Int) error
	// OnPositionBatchTransfer is the batch analogue of OnPositionTransfer.
	OnPositionBatchTransfer(operator, from common.Address, positionIDs []PositionID, amounts []*uint256.Int) error
}

// ConditionStore persists the condition table.
type ConditionStore interface {
	Upsert(ctx context.Context, c Condition) error
	GetByID(ctx context.Context, id ConditionID) (Condition, error)
	List(ctx context.Context, limit int) ([]Condition, error)
}

// QuestionStore persists oracle registration/resolution records.
type QuestionStore interface {
	Upsert(ctx context.Context, q Question) error
	GetByID(ctx context.Context, id QuestionID) (Question, error)
	ListUnresolved(ctx context.Context) ([]Question, error)
}

// MarketStore persists the factory-created market set.
type MarketStore interface {
	Insert(ctx context.Context, m Market) error
	GetByAddress(ctx context.Context, addr common.Address) (Market, error)
	List(ctx context.Context, limit int) ([]Market, error)
	Count(ctx context.Context) (int64, error)
}

// AuditStore persists an append-only audit log.
type AuditStore interface {
	Log(ctx context.Context, event string, detail map[string]any) error
}

// MarketCache is a read-through cache over market records.
type MarketCache interface {
	Set(ctx context.Context, m Market) error
	Get(ctx context.Context, addr common.Address) (Market, error)
	Invalidate(ctx context.Context, addr common.Address) error
}

// PayoutCache caches reported payout vectors by condition.
type PayoutCache interface {
	Set(ctx context.Context, id ConditionID, numerators []uint64) error
	Get(ctx context.Context, id ConditionID) ([]uint64, error)
}

// BlobWriter stores a blob under a key in object storage.
type BlobWriter interface {
	Put(ctx context.Context, key string, contentType string, data []byte) error
}

package domain

import "errors"

// Sentinel errors. Every precondition failure in the core maps to exactly one
// of these so callers can tell failure classes apart; services and handlers
// add context with fmt.Errorf("...: %w", err).
var (
	// Ledger / condition table.
	ErrConditionNotPrepared     = errors.New("condition not prepared")
	ErrConditionAlreadyPrepared = errors.New("condition already prepared")
	ErrInvalidOutcomeSlotCount  = errors.New("outcome slot count must be at least 2 and within the supported maximum")
	ErrInvalidIndexSet          = errors.New("invalid index set")
	ErrInvalidPartition         = errors.New("partition index sets must be disjoint and non-empty")
	ErrPayoutsAlreadyReported   = errors.New("payouts already reported")
	ErrPayoutsNotReported       = errors.New("payouts not reported")
	ErrPayoutsAllZero           = errors.New("payout vector must have at least one non-zero entry")
	ErrPayoutsLength            = errors.New("payout vector length must equal the outcome slot count")
	ErrNotApprovedForAll        = errors.New("operator not approved for position transfers")

	// Fungible tokens.
	ErrUnknownToken          = errors.New("unknown token")
	ErrInsufficientBalance   = errors.New("transfer amount exceeds balance")
	ErrInsufficientAllowance = errors.New("transfer amount exceeds allowance")
	ErrNotTokenOwner         = errors.New("caller is not the token owner")
	ErrAmountOverflow        = errors.New("amount overflows")

	// Wrapper registry.
	ErrWrapperAlreadyRegistered = errors.New("position already registered")
	ErrWrapperNotRegistered     = errors.New("conditional token not registered")
	ErrNameCountMismatch        = errors.New("incorrect length names array")
	ErrSymbolCountMismatch      = errors.New("incorrect length symbols array")
	ErrDirectPositionTransfer   = errors.New("wrapped token rejects position transfers outside its own mint")

	// Resolution oracle.
	ErrConditionAlreadyResolved  = errors.New("condition already resolved")
	ErrQuestionAlreadyRegistered = errors.New("question already registered")
	ErrQuestionNotRegistered     = errors.New("question not registered")
	ErrTimestampNotInFuture      = errors.New("resolution timestamp must be in the future")
	ErrTimestampNotReached       = errors.New("resolution timestamp not reached")
	ErrNotController             = errors.New("caller is not the controller")

	// Pool engine.
	ErrUnknownPool            = errors.New("unknown pool")
	ErrPoolAlreadyInitialized = errors.New("pool already initialized")
	ErrPoolNotInitialized     = errors.New("pool not initialized")
	ErrBPTOutBelowMin         = errors.New("bpt amount out below minimum")
	ErrExitBelowMin           = errors.New("exit amount out below minimum")
	ErrTooManyPoolTokens      = errors.New("too many pool tokens")
	ErrPoolAmountsLength      = errors.New("amounts length must equal pool token count")
	ErrInvalidPoolWeights     = errors.New("pool weights must sum to the full weight")
	ErrInvalidJoinKind        = errors.New("invalid join kind")

	// Markets.
	ErrTooManyOutcomes = errors.New("condition has too many outcome slots")
	ErrOddCollateral   = errors.New("collateral amount must be divisible by 2")
	ErrUnknownMarket   = errors.New("unknown market")
	ErrNothingToRedeem = errors.New("no wrapped outcome balance to redeem")

	// Storage.
	ErrNotFound      = errors.New("not found")
	ErrAlreadyExists = errors.New("already exists")
)

package domain

import (
	"encoding/binary"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/holiman/uint256"
)

// Identifier types for the position algebra. All four are 32-byte values
// derived with keccak256 so distinct inputs never alias.
type (
	// QuestionID identifies an oracle question.
	QuestionID common.Hash
	// ConditionID identifies a prepared condition.
	ConditionID common.Hash
	// CollectionID identifies a node in the partition tree over outcome
	// slots. The zero value is the root (unconditioned) collection.
	CollectionID common.Hash
	// PositionID identifies a (collateral token, collection) pair.
	PositionID common.Hash
	// PoolID identifies a liquidity pool in the pool engine.
	PoolID common.Hash
)

// RootCollectionID is the parent of first-level collections.
var RootCollectionID = CollectionID{}

func (id QuestionID) Hex() string   { return common.Hash(id).Hex() }
func (id ConditionID) Hex() string  { return common.Hash(id).Hex() }
func (id CollectionID) Hex() string { return common.Hash(id).Hex() }
func (id PositionID) Hex() string   { return common.Hash(id).Hex() }
func (id PoolID) Hex() string       { return common.Hash(id).Hex() }

func (id CollectionID) IsRoot() bool { return id == RootCollectionID }

// Text marshaling renders ids as 0x-prefixed hex, for JSON payloads and
// cache keys.
func (id QuestionID) MarshalText() ([]byte, error)   { return common.Hash(id).MarshalText() }
func (id ConditionID) MarshalText() ([]byte, error)  { return common.Hash(id).MarshalText() }
func (id CollectionID) MarshalText() ([]byte, error) { return common.Hash(id).MarshalText() }
func (id PositionID) MarshalText() ([]byte, error)   { return common.Hash(id).MarshalText() }
func (id PoolID) MarshalText() ([]byte, error)       { return common.Hash(id).MarshalText() }

func (id *QuestionID) UnmarshalText(b []byte) error   { return (*common.Hash)(id).UnmarshalText(b) }
func (id *ConditionID) UnmarshalText(b []byte) error  { return (*common.Hash)(id).UnmarshalText(b) }
func (id *CollectionID) UnmarshalText(b []byte) error { return (*common.Hash)(id).UnmarshalText(b) }
func (id *PositionID) UnmarshalText(b []byte) error   { return (*common.Hash)(id).UnmarshalText(b) }
func (id *PoolID) UnmarshalText(b []byte) error       { return (*common.Hash)(id).UnmarshalText(b) }

// HexToQuestionID parses a 0x-prefixed hex string into a QuestionID.
func HexToQuestionID(s string) QuestionID { return QuestionID(common.HexToHash(s)) }

// HexToConditionID parses a 0x-prefixed hex string into a ConditionID.
func HexToConditionID(s string) ConditionID { return ConditionID(common.HexToHash(s)) }

// MaxOutcomeSlots bounds the outcome slot count of a condition so index sets
// fit in a 64-bit mask.
const MaxOutcomeSlots = 64

// IndexSet is a bitmask over a condition's outcome slots. Bit i set means
// outcome slot i is included.
type IndexSet uint64

// BasicIndexSet returns the index set with only outcome slot i.
func BasicIndexSet(i int) IndexSet { return 1 << uint(i) }

// FullIndexSet returns the set covering all n outcome slots.
func FullIndexSet(n int) IndexSet {
	if n >= MaxOutcomeSlots {
		return ^IndexSet(0)
	}
	return IndexSet(1)<<uint(n) - 1
}

// Valid reports whether s is a proper non-empty, non-full subset of n
// outcome slots. Empty and full sets are not valid collections.
func (s IndexSet) Valid(n int) bool {
	return s != 0 && s < FullIndexSet(n)
}

// Contains reports whether outcome slot i is in the set.
func (s IndexSet) Contains(i int) bool { return s&BasicIndexSet(i) != 0 }

func (s IndexSet) bytes32() [32]byte {
	var b [32]byte
	binary.BigEndian.PutUint64(b[24:], uint64(s))
	return b
}

// ConditionIDFor derives the condition identifier for
// (oracle, questionID, outcomeSlotCount).
func ConditionIDFor(oracle common.Address, questionID QuestionID, outcomeSlotCount int) ConditionID {
	var cnt [32]byte
	binary.BigEndian.PutUint64(cnt[24:], uint64(outcomeSlotCount))
	return ConditionID(crypto.Keccak256Hash(oracle.Bytes(), questionID[:], cnt[:]))
}

// CombineCollectionID folds (conditionID, indexSet) into parent. The leaf
// hash is combined by addition modulo 2^256, so folding the same set of
// pairs in any order yields the same collection id while distinct pair sets
// do not alias.
func CombineCollectionID(parent CollectionID, conditionID ConditionID, indexSet IndexSet) CollectionID {
	idx := indexSet.bytes32()
	leaf := crypto.Keccak256Hash(conditionID[:], idx[:])

	sum := new(uint256.Int).SetBytes(parent[:])
	sum.Add(sum, new(uint256.Int).SetBytes(leaf[:]))
	return CollectionID(sum.Bytes32())
}

// PositionIDFor derives the position identifier for a collateral token and a
// collection.
func PositionIDFor(collateralToken common.Address, collectionID CollectionID) PositionID {
	return PositionID(crypto.Keccak256Hash(collateralToken.Bytes(), collectionID[:]))
}

// DeriveAddress deterministically derives an account address for an
// in-process component (tokens, markets, custody accounts) from a seed and a
// nonce.
func DeriveAddress(seed string, nonce uint64) common.Address {
	var n [8]byte
	binary.BigEndian.PutUint64(n[:], nonce)
	return common.BytesToAddress(crypto.Keccak256([]byte(seed), n[:])[12:])
}

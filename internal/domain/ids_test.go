package domain

import (
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
)

func TestConditionIDForDeterministic(t *testing.T) {
	oracle := common.HexToAddress("0x1111111111111111111111111111111111111111")
	q := HexToQuestionID("0x01")

	a := ConditionIDFor(oracle, q, 2)
	b := ConditionIDFor(oracle, q, 2)
	assert.Equal(t, a, b)

	assert.NotEqual(t, a, ConditionIDFor(oracle, q, 3))
	assert.NotEqual(t, a, ConditionIDFor(common.Address{}, q, 2))
	assert.NotEqual(t, a, ConditionIDFor(oracle, HexToQuestionID("0x02"), 2))
}

func TestCombineCollectionIDOrderIndependent(t *testing.T) {
	oracle := common.HexToAddress("0x1111111111111111111111111111111111111111")
	c1 := ConditionIDFor(oracle, HexToQuestionID("0x01"), 2)
	c2 := ConditionIDFor(oracle, HexToQuestionID("0x02"), 2)

	ab := CombineCollectionID(CombineCollectionID(RootCollectionID, c1, 0b01), c2, 0b10)
	ba := CombineCollectionID(CombineCollectionID(RootCollectionID, c2, 0b10), c1, 0b01)
	assert.Equal(t, ab, ba)
}

func TestCombineCollectionIDDistinct(t *testing.T) {
	oracle := common.HexToAddress("0x1111111111111111111111111111111111111111")
	c1 := ConditionIDFor(oracle, HexToQuestionID("0x01"), 2)
	c2 := ConditionIDFor(oracle, HexToQuestionID("0x02"), 2)

	seen := map[CollectionID]bool{}
	for _, cond := range []ConditionID{c1, c2} {
		for _, set := range []IndexSet{0b01, 0b10} {
			id := CombineCollectionID(RootCollectionID, cond, set)
			assert.False(t, seen[id], "collection ids must not collide")
			seen[id] = true
		}
	}
	assert.False(t, seen[RootCollectionID])
}

func TestPositionIDForSeparatesCollateral(t *testing.T) {
	oracle := common.HexToAddress("0x1111111111111111111111111111111111111111")
	cond := ConditionIDFor(oracle, HexToQuestionID("0x01"), 2)
	col := CombineCollectionID(RootCollectionID, cond, 0b01)

	t1 := common.HexToAddress("0x2222222222222222222222222222222222222222")
	t2 := common.HexToAddress("0x3333333333333333333333333333333333333333")
	assert.NotEqual(t, PositionIDFor(t1, col), PositionIDFor(t2, col))
	assert.Equal(t, PositionIDFor(t1, col), PositionIDFor(t1, col))
}

func TestIndexSet(t *testing.T) {
	assert.Equal(t, IndexSet(0b100), BasicIndexSet(2))
	assert.Equal(t, IndexSet(0b111), FullIndexSet(3))

	assert.True(t, IndexSet(0b01).Valid(2))
	assert.True(t, IndexSet(0b10).Valid(2))
	assert.False(t, IndexSet(0).Valid(2), "empty set")
	assert.False(t, IndexSet(0b11).Valid(2), "full set")
	assert.False(t, IndexSet(0b100).Valid(2), "out of range")

	assert.True(t, IndexSet(0b101).Contains(0))
	assert.False(t, IndexSet(0b101).Contains(1))
	assert.True(t, IndexSet(0b101).Contains(2))
}

func TestFullIndexSetMaxSlots(t *testing.T) {
	full := FullIndexSet(MaxOutcomeSlots)
	assert.Equal(t, ^IndexSet(0), full)
	assert.True(t, IndexSet(1).Valid(MaxOutcomeSlots))
}

func TestDeriveAddress(t *testing.T) {
	a := DeriveAddress("seed", 0)
	assert.Equal(t, a, DeriveAddress("seed", 0))
	assert.NotEqual(t, a, DeriveAddress("seed", 1))
	assert.NotEqual(t, a, DeriveAddress("other", 0))
	assert.NotEqual(t, common.Address{}, a)
}

package domain

import "github.com/holiman/uint256"

// InfiniteAllowance returns the max-uint256 allowance marker. An allowance
// set to this value is never decremented by TransferFrom.
func InfiniteAllowance() *uint256.Int {
	return new(uint256.Int).SetAllOne()
}

// IsInfiniteAllowance reports whether a equals the infinite-allowance marker.
func IsInfiniteAllowance(a *uint256.Int) bool {
	return a != nil && a.Eq(new(uint256.Int).SetAllOne())
}

// FullPoolWeight is the pool engine's total normalized weight constant W
// (1e18). Per-token weights of a pool must sum to exactly this value.
func FullPoolWeight() *uint256.Int {
	return uint256.NewInt(1_000_000_000_000_000_000)
}

package lending

import (
	"math/big"

	"github.com/holiman/uint256"
)

var basisPoints = uint256.NewInt(10_000)

// zeroIfNil returns a non-nil amount so callers can treat nil as zero.
func zeroIfNil(v TokenAmount) *uint256.Int {
	if v == nil {
		return new(uint256.Int)
	}
	return v
}

// Zero returns a fresh zero amount.
func Zero() TokenAmount {
	return new(uint256.Int)
}

// FromBig converts an ABI-decoded integer into a TokenAmount. Negative or
// oversized values resolve to zero with ok=false.
func FromBig(v *big.Int) (TokenAmount, bool) {
	if v == nil || v.Sign() < 0 {
		return new(uint256.Int), false
	}
	out, overflow := uint256.FromBig(v)
	if overflow {
		return new(uint256.Int), false
	}
	return out, true
}

// SaturatingAdd returns a + b clamped to the maximum 256-bit value.
func SaturatingAdd(a, b TokenAmount) TokenAmount {
	sum, overflow := new(uint256.Int).AddOverflow(zeroIfNil(a), zeroIfNil(b))
	if overflow {
		return new(uint256.Int).SetAllOne()
	}
	return sum
}

// SaturatingSub returns a - b, clamped at zero.
func SaturatingSub(a, b TokenAmount) TokenAmount {
	x, y := zeroIfNil(a), zeroIfNil(b)
	if x.Lt(y) {
		return new(uint256.Int)
	}
	return new(uint256.Int).Sub(x, y)
}

// mulDiv computes x*y/d with a 512-bit intermediate, truncating. A zero
// divisor or a result wider than 256 bits yields zero.
func mulDiv(x, y, d *uint256.Int) *uint256.Int {
	if d == nil || d.IsZero() {
		return new(uint256.Int)
	}
	out, overflow := new(uint256.Int).MulDivOverflow(zeroIfNil(x), zeroIfNil(y), d)
	if overflow {
		return new(uint256.Int)
	}
	return out
}

func ratFromAmount(v TokenAmount) *big.Rat {
	return new(big.Rat).SetInt(zeroIfNil(v).ToBig())
}

func uint256FromBps(bp BasisPoints) *uint256.Int {
	return uint256.NewInt(uint64(bp))
}

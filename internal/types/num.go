package types

import (
	"fmt"
	"math/bits"
)

// NumWidth describes one primitive numeric width.
type NumWidth struct {
	Signed bool
	Bits   int
	Float  bool
}

// NumWidths is the full set of numeric primitives. Nat is the native word
// width; the table pins it to 64 bits, which matches every supported target.
var NumWidths = map[string]NumWidth{
	"U8":   {Signed: false, Bits: 8},
	"U16":  {Signed: false, Bits: 16},
	"U32":  {Signed: false, Bits: 32},
	"U64":  {Signed: false, Bits: 64},
	"U128": {Signed: false, Bits: 128},
	"I8":   {Signed: true, Bits: 8},
	"I16":  {Signed: true, Bits: 16},
	"I32":  {Signed: true, Bits: 32},
	"I64":  {Signed: true, Bits: 64},
	"I128": {Signed: true, Bits: 128},
	"Nat":  {Signed: false, Bits: 64},
	"F32":  {Signed: true, Bits: 32, Float: true},
	"F64":  {Signed: true, Bits: 64, Float: true},
	"Dec":  {Signed: true, Bits: 128, Float: true},
}

// IsNumPrim reports whether name is a numeric primitive.
func IsNumPrim(name string) bool {
	_, ok := NumWidths[name]
	return ok
}

// NumBound is a numeric literal's inferable width requirement. Bits is the
// exact number of bits needed to represent the literal: as an unsigned value
// when Sign is false, as a two's-complement signed value when Sign is true.
type NumBound struct {
	Sign  bool
	Bits  int
	Float bool
}

// IntBound computes the width requirement of an integer literal.
func IntBound(value int64) NumBound {
	if value >= 0 {
		return NumBound{Sign: false, Bits: bits.Len64(uint64(value))}
	}
	// Smallest signed width holding value: magnitude-1 leading bits plus
	// the sign bit. ^value is -value-1, which also dodges the MinInt64
	// negation overflow.
	return NumBound{Sign: true, Bits: bits.Len64(uint64(^value)) + 1}
}

// FloatBound is the width requirement of a fractional literal.
func FloatBound() NumBound {
	return NumBound{Float: true}
}

// Fits reports whether a literal with this bound is representable in w.
// Integral literals fit fractional widths (a bare 5 can be an F64); the bit
// check applies to integer widths only.
func (b NumBound) Fits(w NumWidth) bool {
	if b.Float {
		return w.Float
	}
	if w.Float {
		return true
	}
	if b.Sign {
		return w.Signed && w.Bits >= b.Bits
	}
	if w.Signed {
		// One bit is spent on the sign.
		return w.Bits >= b.Bits+1
	}
	return w.Bits >= b.Bits
}

// Merge combines the requirements of two literals that must share a type.
func (b NumBound) Merge(other NumBound) NumBound {
	out := NumBound{
		Sign:  b.Sign || other.Sign,
		Float: b.Float || other.Float,
	}
	out.Bits = b.Bits
	if other.Bits > out.Bits {
		out.Bits = other.Bits
	}
	return out
}

func (b NumBound) String() string {
	if b.Float {
		return "Frac *"
	}
	if b.Sign {
		return fmt.Sprintf("Num *(i%d)", b.Bits)
	}
	return fmt.Sprintf("Num *(u%d)", b.Bits)
}

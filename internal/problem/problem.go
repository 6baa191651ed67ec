// Package problem defines the type errors the checker can produce. Errors
// are values, accumulated in source order and rendered elsewhere; nothing in
// this package aborts anything.
package problem

import (
	"github.com/ternlang/tern/internal/can"
	"github.com/ternlang/tern/internal/region"
	"github.com/ternlang/tern/internal/symbols"
	"github.com/ternlang/tern/internal/types"
)

// Severity classifies how bad a problem is. Type errors do not stop the
// pipeline, so even Error problems leave a usable (if partially bogus) store
// behind.
type Severity uint8

const (
	SeverityWarning Severity = iota
	SeverityError
)

func (s Severity) String() string {
	if s == SeverityWarning {
		return "warning"
	}
	return "error"
}

// TypeError is one problem found while solving.
type TypeError interface {
	typeErrorVariant()
	Code() string
	Severity() Severity
}

// Expectation is the expected side of a mismatch, flattened for rendering:
// the snapshot of the expected type plus whichever provenance the constraint
// carried.
type Expectation struct {
	Type   types.ErrorType
	Reason *types.Reason    // set when the expectation came from a usage site
	Ann    *types.AnnSource // set when it came from an annotation
	Region region.Region
}

// PExpectation is Expectation for patterns.
type PExpectation struct {
	Type   types.ErrorType
	Reason *types.PReason
	Region region.Region
}

// BadExpr is an expression/expectation mismatch.
type BadExpr struct {
	Region   region.Region
	Category types.Category
	Actual   types.ErrorType
	Expected Expectation
}

// BadPattern is a pattern/expectation mismatch.
type BadPattern struct {
	Region   region.Region
	Category types.PCategory
	Actual   types.ErrorType
	Expected PExpectation
}

// CircularType reports a variable that occurs in its own structure in a way
// that cannot be read as a recursive tag union.
type CircularType struct {
	Region region.Region
	Symbol symbols.Symbol
	Whole  types.ErrorType
}

// CircularDef reports a definition cycle that passes through values instead
// of functions.
type CircularDef struct {
	Entries []can.CycleEntry
}

// UnexposedLookup reports a lookup of a symbol no import exposes.
type UnexposedLookup struct {
	Region region.Region
	Symbol symbols.Symbol
}

// UnfulfilledAbility reports a failed ability obligation with no better
// expression or pattern to blame.
type UnfulfilledAbility struct {
	Unfulfilled Unfulfilled
}

// BadExprMissingAbility blames an expression region for obligations that
// failed while checking it.
type BadExprMissingAbility struct {
	Region      region.Region
	Category    types.Category
	Actual      types.ErrorType
	Unfulfilled []Unfulfilled
}

// BadPatternMissingAbility is BadExprMissingAbility for patterns.
type BadPatternMissingAbility struct {
	Region      region.Region
	Category    types.PCategory
	Actual      types.ErrorType
	Unfulfilled []Unfulfilled
}

// StructuralSpecialization reports a specialization whose receiver turned
// out structural; only nominal opaques can specialize ability members.
type StructuralSpecialization struct {
	Region  region.Region
	Typ     types.ErrorType
	Ability symbols.Symbol
	Member  symbols.Symbol
}

// WrongSpecialization reports a specialization registered for one opaque
// that actually specializes another.
type WrongSpecialization struct {
	Region         region.Region
	Member         symbols.Symbol
	ExpectedOpaque symbols.Symbol
	FoundOpaque    symbols.Symbol
}

func (BadExpr) typeErrorVariant()                  {}
func (BadPattern) typeErrorVariant()               {}
func (CircularType) typeErrorVariant()             {}
func (CircularDef) typeErrorVariant()              {}
func (UnexposedLookup) typeErrorVariant()          {}
func (UnfulfilledAbility) typeErrorVariant()       {}
func (BadExprMissingAbility) typeErrorVariant()    {}
func (BadPatternMissingAbility) typeErrorVariant() {}
func (StructuralSpecialization) typeErrorVariant() {}
func (WrongSpecialization) typeErrorVariant()      {}

func (BadExpr) Code() string                  { return "T1001" }
func (BadPattern) Code() string               { return "T1002" }
func (CircularType) Code() string             { return "T1003" }
func (CircularDef) Code() string              { return "T1004" }
func (UnexposedLookup) Code() string          { return "T1005" }
func (UnfulfilledAbility) Code() string       { return "T1006" }
func (BadExprMissingAbility) Code() string    { return "T1007" }
func (BadPatternMissingAbility) Code() string { return "T1008" }
func (StructuralSpecialization) Code() string { return "T1009" }
func (WrongSpecialization) Code() string      { return "T1010" }

func (BadExpr) Severity() Severity                  { return SeverityError }
func (BadPattern) Severity() Severity               { return SeverityError }
func (CircularType) Severity() Severity             { return SeverityError }
func (CircularDef) Severity() Severity              { return SeverityError }
func (UnexposedLookup) Severity() Severity          { return SeverityError }
func (UnfulfilledAbility) Severity() Severity       { return SeverityError }
func (BadExprMissingAbility) Severity() Severity    { return SeverityError }
func (BadPatternMissingAbility) Severity() Severity { return SeverityError }
func (StructuralSpecialization) Severity() Severity { return SeverityError }
func (WrongSpecialization) Severity() Severity      { return SeverityError }

// Unfulfilled says why a type does not satisfy an ability obligation.
type Unfulfilled interface {
	unfulfilledVariant()
}

// OpaqueDoesNotImplement: the opaque simply has no implementation and no
// derive for the ability.
type OpaqueDoesNotImplement struct {
	Typ     symbols.Symbol
	Ability symbols.Symbol
}

// AdhocUnderivable: a structural type needed a built-in derivation that does
// not exist for it.
type AdhocUnderivable struct {
	Typ     types.ErrorType
	Ability symbols.Symbol
	Reason  UnderivableReason
}

// OpaqueUnderivable: an opaque asked to derive an ability its real type
// cannot support.
type OpaqueUnderivable struct {
	Typ          types.ErrorType
	Ability      symbols.Symbol
	Opaque       symbols.Symbol
	DeriveRegion region.Region
	Reason       UnderivableReason
}

func (OpaqueDoesNotImplement) unfulfilledVariant() {}
func (AdhocUnderivable) unfulfilledVariant()       {}
func (OpaqueUnderivable) unfulfilledVariant()      {}

// UnderivableKind places the failure: the ability is not derivable at all,
// the surface of the type refuses it, or something nested inside does.
type UnderivableKind uint8

const (
	UnderivableNotABuiltin UnderivableKind = iota
	UnderivableSurface
	UnderivableNested
)

// NotDerivableContext carves out the specific rule that refused derivation.
type NotDerivableContext uint8

const (
	DeriveNoContext NotDerivableContext = iota
	DeriveFunction
	DeriveUnboundVar
	DeriveOpaque
	DeriveNat
	DeriveOptionalField
	DeriveFloatEq
)

func (c NotDerivableContext) String() string {
	switch c {
	case DeriveFunction:
		return "functions cannot be derived"
	case DeriveUnboundVar:
		return "unbound type variables cannot be derived"
	case DeriveOpaque:
		return "opaque types do not derive structurally"
	case DeriveNat:
		return "Nat is platform-dependent and cannot be derived"
	case DeriveOptionalField:
		return "optional record fields cannot be derived"
	case DeriveFloatEq:
		return "floating-point equality is not structural"
	default:
		return ""
	}
}

// UnderivableReason is the kind plus whatever detail the kind carries.
type UnderivableReason struct {
	Kind    UnderivableKind
	Context NotDerivableContext
	Nested  types.ErrorType // UnderivableNested
}

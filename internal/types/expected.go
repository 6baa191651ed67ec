package types

import (
	"fmt"

	"github.com/ternlang/tern/internal/region"
)

// Expected wraps the type a constraint requires together with where that
// requirement came from, so mismatch messages can say "but the annotation
// says" instead of a bare "expected X, got Y".
type Expected interface {
	expectedVariant()
	// Type returns the required type.
	Type() Type
}

// NoExpectation requires t with no story attached.
type NoExpectation struct {
	T Type
}

// ForReason requires t because of the surrounding expression.
type ForReason struct {
	Reason Reason
	T      Type
	Region region.Region
}

// FromAnnotation requires t because the definition is annotated. Arity is
// the annotated function's argument count, used when blaming argument
// mismatches.
type FromAnnotation struct {
	Source AnnSource
	Arity  int
	T      Type
	Region region.Region
}

func (NoExpectation) expectedVariant()  {}
func (ForReason) expectedVariant()      {}
func (FromAnnotation) expectedVariant() {}

func (e NoExpectation) Type() Type  { return e.T }
func (e ForReason) Type() Type      { return e.T }
func (e FromAnnotation) Type() Type { return e.T }

// ReplaceExpected returns e with its type swapped for t, keeping the story.
func ReplaceExpected(e Expected, t Type) Expected {
	switch e := e.(type) {
	case NoExpectation:
		return NoExpectation{T: t}
	case ForReason:
		e.T = t
		return e
	case FromAnnotation:
		e.T = t
		return e
	default:
		panic("types: ReplaceExpected: unhandled Expected variant")
	}
}

// PReasonKind is ReasonKind's counterpart for pattern expectations.
type PReasonKind uint8

const (
	PReasonWhenMatch PReasonKind = iota
	PReasonTypedArg
	PReasonOptionalField
)

// PReason says why a pattern must have a given type.
type PReason struct {
	Kind  PReasonKind
	Index int    // one-based branch or argument index
	Name  string // annotated function name, when known
}

// Describe renders the reason for reporting.
func (r PReason) Describe() string {
	switch r.Kind {
	case PReasonWhenMatch:
		return fmt.Sprintf("pattern %d of this when", r.Index)
	case PReasonTypedArg:
		if r.Name != "" {
			return fmt.Sprintf("argument %d to %s (from the annotation)", r.Index, r.Name)
		}
		return fmt.Sprintf("argument %d (from the annotation)", r.Index)
	case PReasonOptionalField:
		return "optional field pattern"
	default:
		return "surrounding pattern"
	}
}

// PExpected is Expected for patterns.
type PExpected interface {
	pexpectedVariant()
	Type() Type
}

// PNoExpectation requires t with no story attached.
type PNoExpectation struct {
	T Type
}

// PForReason requires t because of the pattern's position.
type PForReason struct {
	Reason PReason
	T      Type
	Region region.Region
}

func (PNoExpectation) pexpectedVariant() {}
func (PForReason) pexpectedVariant()     {}

func (e PNoExpectation) Type() Type { return e.T }
func (e PForReason) Type() Type     { return e.T }

// ReplacePExpected returns e with its type swapped for t.
func ReplacePExpected(e PExpected, t Type) PExpected {
	switch e := e.(type) {
	case PNoExpectation:
		return PNoExpectation{T: t}
	case PForReason:
		e.T = t
		return e
	default:
		panic("types: ReplacePExpected: unhandled PExpected variant")
	}
}

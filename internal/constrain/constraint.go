// Package constrain turns canonical declarations into a tree of constraints.
// Nothing is unified here: the tree says what must be true, the solver
// decides when to check it. Keeping the two apart is what lets a single
// builder pass feed an error-accumulating solve pass, and leaves the door
// open to re-solving a cached tree later.
package constrain

import (
	"fmt"

	"github.com/ternlang/tern/internal/region"
	"github.com/ternlang/tern/internal/symbols"
	"github.com/ternlang/tern/internal/types"
)

// Constraint is the closed set of constraint-tree nodes.
type Constraint interface {
	constraintVariant()
}

// Eq demands that an expression's type match an expectation.
type Eq struct {
	T        types.Type
	Expected types.Expected
	Category types.Category
	Region   region.Region
}

// Pattern demands that a pattern's type match a pattern expectation.
type Pattern struct {
	T        types.Type
	Expected types.PExpected
	Category types.PCategory
	Region   region.Region
}

// Store binds T to Var without an expectation of its own. It is how the
// builder pins a type at an AST variable for downstream consumers; a failure
// here means the builder equated two things it should not have, so Src keeps
// the builder file:line for the bug report and Region points at the nearest
// source node so the report still lands somewhere.
type Store struct {
	T      types.Type
	Var    types.Variable
	Region region.Region
	Src    string
}

// Lookup demands that a use of symbol match an expectation. The solver finds
// the symbol in the accumulated let headers and instantiates it if it was
// generalized.
type Lookup struct {
	Symbol   symbols.Symbol
	Expected types.Expected
	Region   region.Region
}

// AbilityLookup is Lookup for ability members: the signature comes from the
// member's frontloaded declaration, and once the receiver is concrete the
// solver records which specialization the call dispatches to under
// Specialization.
type AbilityLookup struct {
	Member         symbols.Symbol
	Specialization types.Variable
	Expected       types.Expected
	Region         region.Region
}

// And solves its children left to right. The order is user-visible in error
// ordering, so builders emit children in source order.
type And struct {
	Constraints []Constraint
}

// Let is the generalization boundary. RigidVars are annotation parameters,
// FlexVars everything else the subtree minted; both are introduced one rank
// deeper, Defs is solved there, header variables still unbound at that rank
// are generalized, and Ret is solved with Header in scope.
type Let struct {
	RigidVars []types.Variable
	FlexVars  []types.Variable
	Header    map[symbols.Symbol]TypeAt
	Defs      Constraint
	Ret       Constraint
}

// TypeAt is a header entry: the bound symbol's type and where it was bound.
type TypeAt struct {
	T      types.Type
	Region region.Region
}

// True is trivially satisfied.
type True struct{}

// SaveTheEnvironment ends the module's constraint: the solver snapshots the
// top-level bindings when it reaches it. Exactly one must appear per module;
// the Check validator enforces that.
type SaveTheEnvironment struct{}

func (Eq) constraintVariant()                 {}
func (Pattern) constraintVariant()            {}
func (Store) constraintVariant()              {}
func (Lookup) constraintVariant()             {}
func (AbilityLookup) constraintVariant()      {}
func (And) constraintVariant()                {}
func (Let) constraintVariant()                {}
func (True) constraintVariant()               {}
func (SaveTheEnvironment) constraintVariant() {}

// ConstraintVariantCount is the number of Constraint variants, asserted by a
// companion test against the dispatch sites.
const ConstraintVariantCount = 9

// and flattens into a single And, skipping Trues. Zero useful children
// collapse to True.
func and(cons ...Constraint) Constraint {
	out := make([]Constraint, 0, len(cons))
	for _, c := range cons {
		switch c := c.(type) {
		case True:
		case And:
			out = append(out, c.Constraints...)
		default:
			out = append(out, c)
		}
	}
	switch len(out) {
	case 0:
		return True{}
	case 1:
		return out[0]
	}
	return And{Constraints: out}
}

// exists quantifies vars over a constraint without binding any names: a Let
// with only flex variables and no header.
func exists(vars []types.Variable, c Constraint) Constraint {
	if len(vars) == 0 {
		return c
	}
	return Let{FlexVars: vars, Defs: c, Ret: True{}}
}

// src renders builder provenance for Store constraints.
func src(file string, line int) string {
	return fmt.Sprintf("%s:%d", file, line)
}

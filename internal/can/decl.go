package can

import (
	"github.com/ternlang/tern/internal/region"
	"github.com/ternlang/tern/internal/symbols"
	"github.com/ternlang/tern/internal/types"
)

// Declaration is one top-level item, already grouped and ordered by the
// dependency pass: definitions a module exposes or uses come out as single
// Declare items or mutually recursive DeclareRec groups.
type Declaration interface {
	declarationVariant()
}

// Declare is a single non-recursive definition.
type Declare struct {
	Def *Def
}

// DeclareRec is a strongly connected group of definitions. IllegalCycle marks
// groups whose recursion passes through values rather than functions; those
// are reported as circular definitions and never constrained.
type DeclareRec struct {
	Defs         []*Def
	IllegalCycle bool
	Entries      []CycleEntry
}

// CycleEntry names one participant of a definition cycle for reporting.
type CycleEntry struct {
	Symbol       symbols.Symbol
	SymbolRegion region.Region
	ExprRegion   region.Region
}

func (Declare) declarationVariant()    {}
func (DeclareRec) declarationVariant() {}

// Def is one definition: a pattern, the expression it names, and an optional
// type annotation. ExprVar carries the expression's type; PatternVars maps
// every symbol the pattern binds to the variable holding its type.
type Def struct {
	Pattern       Pattern
	PatternRegion region.Region
	Expr          Expr
	ExprRegion    region.Region
	ExprVar       types.Variable
	PatternVars   map[symbols.Symbol]types.Variable
	Annotation    *Annotation
}

// Annotation is a declared signature plus the variables introduced while
// canonicalizing it.
type Annotation struct {
	Signature  types.Type
	Introduced IntroducedVars
	Region     region.Region
}

// IntroducedVars are the type variables an annotation brought into being.
// Named and able variables are rigid under the annotation; wildcards and
// inferred holes stay flex.
type IntroducedVars struct {
	Named     []NamedVar
	Able      []AbleVar
	Wildcards []types.Variable
	Inferred  []types.Variable
}

// NamedVar is a named annotation variable such as `a`.
type NamedVar struct {
	Name   string
	Var    types.Variable
	Region region.Region
}

// AbleVar is an ability-bounded annotation variable such as `a implements Eq`.
type AbleVar struct {
	Name    string
	Var     types.Variable
	Ability symbols.Symbol
	Region  region.Region
}

// AllRigids returns the named and able variables in declaration order.
func (iv IntroducedVars) AllRigids() []types.Variable {
	out := make([]types.Variable, 0, len(iv.Named)+len(iv.Able))
	for _, nv := range iv.Named {
		out = append(out, nv.Var)
	}
	for _, av := range iv.Able {
		out = append(out, av.Var)
	}
	return out
}

// AllFlex returns the wildcard and inferred variables.
func (iv IntroducedVars) AllFlex() []types.Variable {
	out := make([]types.Variable, 0, len(iv.Wildcards)+len(iv.Inferred))
	out = append(out, iv.Wildcards...)
	out = append(out, iv.Inferred...)
	return out
}

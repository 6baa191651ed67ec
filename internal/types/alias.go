package types

import (
	"github.com/ternlang/tern/internal/region"
	"github.com/ternlang/tern/internal/symbols"
)

// Alias is an alias definition as scope owns it: the declared type variables
// and the body written in terms of them. Uses of the alias copy it with the
// declared variables substituted; the definition itself is never mutated.
type Alias struct {
	Symbol        symbols.Symbol
	Region        region.Region
	Vars          []AliasTypeVar
	LambdaSetVars []Variable
	RecursionVars []Variable
	Real          Type
	Kind          AliasKind
}

// AliasTypeVar is one declared type parameter. Ability is set when the
// parameter is bounded, as in `Set a implements Hash`.
type AliasTypeVar struct {
	Name    string
	Var     Variable
	Ability symbols.Symbol
	Region  region.Region
}

// HiddenVars are the variables an alias quantifies beyond its named
// parameters: lambda sets and recursion knots. Instantiation must refresh
// these too or two uses of the alias would share inference state.
func (a *Alias) HiddenVars() []Variable {
	out := make([]Variable, 0, len(a.LambdaSetVars)+len(a.RecursionVars))
	out = append(out, a.LambdaSetVars...)
	out = append(out, a.RecursionVars...)
	return out
}

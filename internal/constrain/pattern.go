package constrain

import (
	"sort"

	"github.com/ternlang/tern/internal/can"
	"github.com/ternlang/tern/internal/symbols"
	"github.com/ternlang/tern/internal/types"
)

// PatternState accumulates what constraining a pattern produces: the symbols
// it binds (headers), the variables it mints, and the constraints that must
// hold for the match to type-check. One state covers a whole binding site
// (all arguments of a closure, all alternatives of a when branch).
type PatternState struct {
	Headers     map[symbols.Symbol]TypeAt
	Vars        []types.Variable
	Constraints []Constraint
}

// NewPatternState returns an empty accumulator.
func NewPatternState() *PatternState {
	return &PatternState{Headers: make(map[symbols.Symbol]TypeAt)}
}

// ConstrainPattern accumulates the constraints for p matching a value of the
// expected type into state.
func (b *Builder) ConstrainPattern(p can.Pattern, expected types.PExpected, state *PatternState) {
	switch p := p.(type) {
	case can.PIdent:
		state.Headers[p.Symbol] = TypeAt{T: expected.Type(), Region: p.Region}

	case can.PUnderscore:
		// Matches anything, binds nothing.

	case can.PIntLit:
		numType := types.TVar{V: p.Var}
		state.Vars = append(state.Vars, p.Var)
		// Width bound first, then the general equality; same blame order as
		// integer literal expressions.
		state.Constraints = append(state.Constraints,
			Pattern{
				T:        numType,
				Expected: types.PNoExpectation{T: types.TNumRange{Bound: p.Bound}},
				Category: types.PCategory{Kind: types.PCategoryInt},
				Region:   p.Region,
			},
			Pattern{
				T:        numType,
				Expected: expected,
				Category: types.PCategory{Kind: types.PCategoryInt},
				Region:   p.Region,
			},
		)

	case can.PStrLit:
		state.Constraints = append(state.Constraints, Pattern{
			T:        types.TPrim{Name: "Str"},
			Expected: expected,
			Category: types.PCategory{Kind: types.PCategoryStr},
			Region:   p.Region,
		})

	case can.PTag:
		payload := make([]types.Type, len(p.Args))
		for i, arg := range p.Args {
			state.Vars = append(state.Vars, arg.Var)
			payload[i] = types.TVar{V: arg.Var}
			b.ConstrainPattern(arg.Pattern, types.PNoExpectation{T: payload[i]}, state)
		}
		unionType := types.TTagUnion{
			Tags: map[string][]types.Type{p.Name: payload},
			Ext:  types.TVar{V: p.ExtVar},
		}
		state.Vars = append(state.Vars, p.WholeVar, p.ExtVar)
		state.Constraints = append(state.Constraints,
			Pattern{
				T:        unionType,
				Expected: expected,
				Category: types.PCategory{Kind: types.PCategoryCtor, TagName: p.Name},
				Region:   p.Region,
			},
			Store{T: unionType, Var: p.WholeVar, Region: p.Region, Src: src("pattern.go", 86)},
		)

	case can.PRecord:
		b.recordDestructure(p, expected, state)

	case can.POpaque:
		argType := types.TVar{V: p.Arg.Var}
		state.Vars = append(state.Vars, p.WholeVar, p.Arg.Var)
		types.WalkVars(p.Alias, func(v types.Variable) {
			state.Vars = append(state.Vars, v)
		})
		b.ConstrainPattern(p.Arg.Pattern, types.PNoExpectation{T: argType}, state)
		state.Constraints = append(state.Constraints,
			// The unwrapped payload has the opaque's real type.
			Pattern{
				T:        argType,
				Expected: types.PNoExpectation{T: p.Alias.Real},
				Category: types.PCategory{Kind: types.PCategoryOpaque, Symbol: p.Name},
				Region:   p.Arg.Region,
			},
			// The whole pattern matches the opaque type itself.
			Pattern{
				T:        p.Alias,
				Expected: expected,
				Category: types.PCategory{Kind: types.PCategoryOpaque, Symbol: p.Name},
				Region:   p.Region,
			},
			Store{T: p.Alias, Var: p.WholeVar, Region: p.Region, Src: src("pattern.go", 115)},
		)

	case can.PMalformed:
		// Reported during canonicalization; matches under an error type.

	default:
		panic("constrain: unhandled pattern variant")
	}
}

func (b *Builder) recordDestructure(p can.PRecord, expected types.PExpected, state *PatternState) {
	fields := make(map[string]types.Type, len(p.Destructs))
	for _, d := range p.Destructs {
		fieldType := types.TVar{V: d.Var}
		state.Vars = append(state.Vars, d.Var)
		fields[d.Label] = fieldType

		switch d.Kind {
		case can.DestructRequired:
			state.Headers[d.Symbol] = TypeAt{T: fieldType, Region: d.Region}

		case can.DestructOptional:
			state.Headers[d.Symbol] = TypeAt{T: fieldType, Region: d.Region}
			state.Constraints = append(state.Constraints, b.ConstrainExpr(d.Default, types.ForReason{
				Reason: types.Reason{Kind: types.ReasonRecordDefaultField, Field: d.Label},
				T:      fieldType,
				Region: can.RegionOf(d.Default),
			}))

		case can.DestructGuard:
			b.ConstrainPattern(d.Guard, types.PNoExpectation{T: fieldType}, state)
		}
	}

	recordType := types.TRecord{Fields: fields, Ext: types.TVar{V: p.ExtVar}}
	state.Vars = append(state.Vars, p.WholeVar, p.ExtVar)
	state.Constraints = append(state.Constraints,
		Pattern{
			T:        recordType,
			Expected: expected,
			Category: types.PCategory{Kind: types.PCategoryRecord},
			Region:   p.Region,
		},
		Store{T: recordType, Var: p.WholeVar, Region: p.Region, Src: src("pattern.go", 160)},
	)
}

// sortedFieldNames orders literal/update field maps for deterministic
// constraint emission.
func sortedFieldNames(fields map[string]can.RecordField) []string {
	names := make([]string, 0, len(fields))
	for name := range fields {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

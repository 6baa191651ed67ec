package constrain

import (
	"github.com/ternlang/tern/internal/can"
	"github.com/ternlang/tern/internal/problem"
	"github.com/ternlang/tern/internal/symbols"
	"github.com/ternlang/tern/internal/types"
)

// constrainDef wraps ret in the Let for one non-recursive definition. The
// Let boundary is where the definition's type gets generalized.
func (b *Builder) constrainDef(def *can.Def, ret Constraint) Constraint {
	if def.Annotation != nil {
		return b.constrainAnnotatedDef(def, ret)
	}

	exprType := types.TVar{V: def.ExprVar}
	state := NewPatternState()
	b.ConstrainPattern(def.Pattern, types.PNoExpectation{T: exprType}, state)
	exprCon := b.ConstrainExpr(def.Expr, types.NoExpectation{T: exprType})

	return Let{
		FlexVars: append(state.Vars, def.ExprVar),
		Header:   state.Headers,
		Defs:     and(and(state.Constraints...), exprCon),
		Ret:      ret,
	}
}

func (b *Builder) constrainAnnotatedDef(def *can.Def, ret Constraint) Constraint {
	ann := def.Annotation
	annExpected := types.FromAnnotation{
		Source: types.AnnSource{Kind: types.AnnTypedBody, Region: ann.Region},
		Arity:  arityOf(ann.Signature),
		T:      ann.Signature,
		Region: def.ExprRegion,
	}

	state := NewPatternState()
	b.ConstrainPattern(def.Pattern, types.PNoExpectation{T: ann.Signature}, state)
	exprCon := b.ConstrainExpr(def.Expr, annExpected)

	return Let{
		RigidVars: ann.Introduced.AllRigids(),
		FlexVars:  append(append(state.Vars, ann.Introduced.AllFlex()...), def.ExprVar),
		Header:    state.Headers,
		Defs: and(
			and(state.Constraints...),
			exprCon,
			Store{T: ann.Signature, Var: def.ExprVar, Region: def.ExprRegion, Src: src("def.go", 50)},
		),
		Ret: ret,
	}
}

type defsInfo struct {
	vars        []types.Variable
	headers     map[symbols.Symbol]TypeAt
	constraints []Constraint
}

// constrainRecDefs wraps ret in the three-Let structure for a mutually
// recursive group. Annotated members go into the rigid bucket: their
// signatures are introduced (and generalized) up front so every member of the
// group checks against them. Unannotated members go into the flex bucket:
// their headers are first made available un-generalized while their own
// bodies solve, so recursion inside the group does not force premature
// generalization, and only then generalized for the code after the group.
func (b *Builder) constrainRecDefs(defs []*can.Def, ret Constraint) Constraint {
	rigid := defsInfo{headers: make(map[symbols.Symbol]TypeAt)}
	flex := defsInfo{headers: make(map[symbols.Symbol]TypeAt)}

	for _, def := range defs {
		if def.Annotation != nil {
			b.recAnnotated(def, &rigid)
			continue
		}
		b.recUnannotated(def, &flex)
	}

	groupCons := append(rigid.constraints, ret)

	return Let{
		RigidVars: rigid.vars,
		Header:    rigid.headers,
		Defs:      True{},
		Ret: Let{
			FlexVars: flex.vars,
			Header:   flex.headers,
			Defs: Let{
				Header: flex.headers,
				Defs:   True{},
				Ret:    and(flex.constraints...),
			},
			Ret: and(groupCons...),
		},
	}
}

func (b *Builder) recAnnotated(def *can.Def, info *defsInfo) {
	ann := def.Annotation
	annExpected := types.FromAnnotation{
		Source: types.AnnSource{Kind: types.AnnTypedBody, Region: ann.Region},
		Arity:  arityOf(ann.Signature),
		T:      ann.Signature,
		Region: def.ExprRegion,
	}

	state := NewPatternState()
	b.ConstrainPattern(def.Pattern, types.PNoExpectation{T: ann.Signature}, state)
	exprCon := b.ConstrainExpr(def.Expr, annExpected)

	info.vars = append(info.vars, ann.Introduced.AllRigids()...)
	info.vars = append(info.vars, ann.Introduced.AllFlex()...)
	for sym, at := range state.Headers {
		info.headers[sym] = at
	}
	info.constraints = append(info.constraints, Let{
		FlexVars: append(state.Vars, def.ExprVar),
		Defs: and(
			and(state.Constraints...),
			exprCon,
			Store{T: ann.Signature, Var: def.ExprVar, Region: def.ExprRegion, Src: src("def.go", 124)},
		),
		Ret: True{},
	})
}

func (b *Builder) recUnannotated(def *can.Def, info *defsInfo) {
	exprType := types.TVar{V: def.ExprVar}
	state := NewPatternState()
	b.ConstrainPattern(def.Pattern, types.PNoExpectation{T: exprType}, state)
	exprCon := b.ConstrainExpr(def.Expr, types.NoExpectation{T: exprType})

	info.vars = append(info.vars, def.ExprVar)
	info.vars = append(info.vars, state.Vars...)
	for sym, at := range state.Headers {
		info.headers[sym] = at
	}
	info.constraints = append(info.constraints, and(and(state.Constraints...), exprCon))
}

// ConstrainDecls folds the module's declarations, in reverse, around the
// SaveTheEnvironment sentinel: the first declaration ends up as the outermost
// Let, and the sentinel marks the spot where the solver snapshots the
// accumulated top-level bindings. Pre-classified illegal cycles contribute no
// constraints; CircularDefs reports them.
func (b *Builder) ConstrainDecls(decls []can.Declaration) Constraint {
	var con Constraint = SaveTheEnvironment{}
	for i := len(decls) - 1; i >= 0; i-- {
		switch d := decls[i].(type) {
		case can.Declare:
			con = b.constrainDef(d.Def, con)
		case can.DeclareRec:
			if d.IllegalCycle {
				continue
			}
			con = b.constrainRecDefs(d.Defs, con)
		default:
			panic("constrain: unhandled declaration variant")
		}
	}
	return con
}

// ConstrainModule is the module entry point: declarations folded around the
// sentinel, ability member signatures frontloaded outside them, and imported
// symbols' types as the outermost header.
func (b *Builder) ConstrainModule(decls []can.Declaration, imports map[symbols.Symbol]TypeAt) Constraint {
	con := b.ConstrainDecls(decls)
	con = b.frontloadAbilityMembers(con)
	if len(imports) > 0 {
		con = Let{Header: imports, Defs: True{}, Ret: con}
	}
	return con
}

// frontloadAbilityMembers wraps con in one Let per ability member, binding
// the member symbol to its declared signature and pinning the signature at
// its SignatureVar. Call sites instantiate from that variable.
func (b *Builder) frontloadAbilityMembers(con Constraint) Constraint {
	abilityList := b.abilities.Abilities()
	for i := len(abilityList) - 1; i >= 0; i-- {
		members := b.abilities.Members(abilityList[i])
		for j := len(members) - 1; j >= 0; j-- {
			member := members[j]
			data, ok := b.abilities.Member(member)
			if !ok {
				panic("constrain: ability lists a member the store does not know")
			}
			con = Let{
				RigidVars: append(append([]types.Variable{}, data.Vars.Rigid...), data.Vars.Able...),
				FlexVars:  append(append([]types.Variable{}, data.Vars.Flex...), data.SignatureVar),
				Header:    map[symbols.Symbol]TypeAt{member: {T: data.Signature, Region: data.Region}},
				Defs: Eq{
					T:        types.TVar{V: data.SignatureVar},
					Expected: types.NoExpectation{T: data.Signature},
					Category: types.Category{Kind: types.CategoryAbilityMemberSpec, Symbol: member},
					Region:   data.Region,
				},
				Ret: con,
			}
		}
	}
	return con
}

// CircularDefs extracts the pre-classified illegal cycles as problems. The
// solver never sees constraints for them; the diagnostics pass through.
func CircularDefs(decls []can.Declaration) []problem.TypeError {
	var out []problem.TypeError
	for _, d := range decls {
		if rec, ok := d.(can.DeclareRec); ok && rec.IllegalCycle {
			out = append(out, problem.CircularDef{Entries: rec.Entries})
		}
	}
	return out
}

func arityOf(t types.Type) int {
	if fn, ok := t.(types.TFunc); ok {
		return len(fn.Args)
	}
	return 0
}

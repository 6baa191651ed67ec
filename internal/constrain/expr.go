package constrain

import (
	"github.com/ternlang/tern/internal/abilities"
	"github.com/ternlang/tern/internal/can"
	"github.com/ternlang/tern/internal/region"
	"github.com/ternlang/tern/internal/symbols"
	"github.com/ternlang/tern/internal/types"
)

// Builder emits constraints for canonical expressions and patterns. It holds
// no mutable state of its own; all variables were minted upstream and ride on
// the AST nodes.
type Builder struct {
	abilities *abilities.Store
}

// NewBuilder returns a builder that resolves ability member references
// through ab.
func NewBuilder(ab *abilities.Store) *Builder {
	return &Builder{abilities: ab}
}

// ConstrainExpr emits the constraints that pin e's type to expected and
// recursively constrain every subexpression.
func (b *Builder) ConstrainExpr(e can.Expr, expected types.Expected) Constraint {
	switch e := e.(type) {
	case can.IntLit:
		return b.numLiteral(e.Var, types.TNumRange{Bound: e.Bound}, expected,
			types.CatInt(), types.ReasonIntLiteral, e.Region)

	case can.FloatLit:
		return b.numLiteral(e.Var, types.TNumRange{Bound: types.FloatBound()}, expected,
			types.CatFloat(), types.ReasonFloatLiteral, e.Region)

	case can.StrLit:
		return Eq{T: types.TPrim{Name: "Str"}, Expected: expected, Category: types.CatStr(), Region: e.Region}

	case can.ListLit:
		return b.list(e, expected)

	case can.VarRef:
		return b.varRef(e, expected)

	case can.Call:
		return b.call(e, expected)

	case can.Closure:
		return b.closure(e, expected)

	case can.If:
		return b.ifExpr(e, expected)

	case can.When:
		return b.when(e, expected)

	case can.LetNonRec:
		return b.constrainDef(e.Def, b.ConstrainExpr(e.Cont, expected))

	case can.LetRec:
		return b.constrainRecDefs(e.Defs, b.ConstrainExpr(e.Cont, expected))

	case can.RecordLit:
		return b.record(e, expected)

	case can.EmptyRecord:
		return Eq{T: types.TEmptyRecord{}, Expected: expected, Category: types.CatRecord(), Region: e.Region}

	case can.Access:
		return b.access(e, expected)

	case can.Accessor:
		return b.accessor(e, expected)

	case can.Update:
		return b.update(e, expected)

	case can.Tag:
		return b.tag(e, expected)

	case can.OpaqueRef:
		return b.opaqueRef(e, expected)

	case can.RuntimeError:
		// Already reported during canonicalization; the expression types as
		// anything.
		return True{}
	}
	panic("constrain: unhandled expression variant")
}

// numLiteral emits the literal's width bound before the general equality, so
// a too-narrow expected type blames the literal rather than a generic
// mismatch.
func (b *Builder) numLiteral(v types.Variable, lit types.TNumRange, expected types.Expected, cat types.Category, reason types.ReasonKind, r region.Region) Constraint {
	numType := types.TVar{V: v}
	return exists([]types.Variable{v}, and(
		Eq{
			T:        numType,
			Expected: types.ForReason{Reason: types.Reason{Kind: reason}, T: lit, Region: r},
			Category: cat,
			Region:   r,
		},
		Eq{T: numType, Expected: expected, Category: cat, Region: r},
	))
}

func (b *Builder) list(e can.ListLit, expected types.Expected) Constraint {
	elemType := types.TVar{V: e.ElemVar}
	cons := make([]Constraint, 0, len(e.Elems)+1)
	for i, elem := range e.Elems {
		cons = append(cons, b.ConstrainExpr(elem, types.ForReason{
			Reason: types.Reason{Kind: types.ReasonElemInList, Index: i + 1},
			T:      elemType,
			Region: can.RegionOf(elem),
		}))
	}
	listType := types.TApply{Symbol: symbols.SymList, Args: []types.Type{elemType}}
	cons = append(cons, Eq{T: listType, Expected: expected, Category: types.CatList(), Region: e.Region})
	return exists([]types.Variable{e.ElemVar}, and(cons...))
}

func (b *Builder) varRef(e can.VarRef, expected types.Expected) Constraint {
	if b.abilities.IsMember(e.Symbol) {
		return exists([]types.Variable{e.Var}, and(
			AbilityLookup{Member: e.Symbol, Specialization: e.Var, Expected: expected, Region: e.Region},
			Store{T: expected.Type(), Var: e.Var, Region: e.Region, Src: src("expr.go", 153)},
		))
	}
	return exists([]types.Variable{e.Var}, and(
		Lookup{Symbol: e.Symbol, Expected: expected, Region: e.Region},
		Store{T: expected.Type(), Var: e.Var, Region: e.Region, Src: src("expr.go", 158)},
	))
}

// call emits callee first, then the function-shape equality, then arguments
// in source order, then the return equality. The solver reports errors in
// this order, and tests pin it.
func (b *Builder) call(e can.Call, expected types.Expected) Constraint {
	fnType := types.TVar{V: e.FnVar}
	fnName := symbols.NoSymbol
	if ref, ok := e.Fn.(can.VarRef); ok {
		fnName = ref.Symbol
	}

	vars := []types.Variable{e.FnVar, e.ClosureVar, e.RetVar}
	argTypes := make([]types.Type, len(e.Args))
	argCons := make([]Constraint, len(e.Args))
	for i, arg := range e.Args {
		vars = append(vars, arg.Var)
		argTypes[i] = types.TVar{V: arg.Var}
		argCons[i] = b.ConstrainExpr(arg.Expr, types.ForReason{
			Reason: types.Reason{Kind: types.ReasonFnArg, Index: i + 1},
			T:      argTypes[i],
			Region: arg.Region,
		})
	}

	expectedFn := types.ForReason{
		Reason: types.Reason{Kind: types.ReasonFnCall, Arity: len(e.Args)},
		T: types.TFunc{
			Args:    argTypes,
			Closure: types.TVar{V: e.ClosureVar},
			Ret:     types.TVar{V: e.RetVar},
		},
		Region: e.Region,
	}

	cons := []Constraint{
		b.ConstrainExpr(e.Fn, types.NoExpectation{T: fnType}),
		Eq{T: fnType, Expected: expectedFn, Category: types.CatCallResult(fnName), Region: e.Region},
	}
	cons = append(cons, argCons...)
	cons = append(cons, Eq{
		T:        types.TVar{V: e.RetVar},
		Expected: expected,
		Category: types.CatCallResult(fnName),
		Region:   e.Region,
	})
	return exists(vars, and(cons...))
}

func (b *Builder) closure(e can.Closure, expected types.Expected) Constraint {
	// Argument variables stay in the outer exists, not in the binding Let.
	// The Let generalizes whatever it introduces once its defs are solved,
	// and an argument generalized before the body runs would let each use
	// site pick a different type.
	vars := []types.Variable{e.FnVar, e.ClosureVar, e.RetVar}
	state := NewPatternState()
	argTypes := make([]types.Type, len(e.Args))
	for i, arg := range e.Args {
		vars = append(vars, arg.Var)
		argTypes[i] = types.TVar{V: arg.Var}
		b.ConstrainPattern(arg.Pattern, types.PNoExpectation{T: argTypes[i]}, state)
	}

	retType := types.TVar{V: e.RetVar}
	bodyCon := b.ConstrainExpr(e.Body, types.NoExpectation{T: retType})

	fnType := types.TFunc{
		Args:    argTypes,
		Closure: types.TVar{V: e.ClosureVar},
		Ret:     retType,
	}

	return exists(vars, and(
		Let{
			FlexVars: state.Vars,
			Header:   state.Headers,
			Defs:     and(state.Constraints...),
			Ret:      bodyCon,
		},
		Eq{T: fnType, Expected: expected, Category: types.CatLambda(), Region: e.Region},
		Store{T: fnType, Var: e.FnVar, Region: e.Region, Src: src("expr.go", 231)},
	))
}

// ifExpr constrains a conditional. With an annotation-derived expectation
// each branch is checked against the annotation directly, so the error for a
// bad branch says which branch of the annotated if disagrees; otherwise the
// branches meet in the shared branch variable first.
func (b *Builder) ifExpr(e can.If, expected types.Expected) Constraint {
	boolType := types.TPrim{Name: "Bool"}
	total := len(e.Branches) + 1
	cons := make([]Constraint, 0, 2*total+1)

	for _, br := range e.Branches {
		cons = append(cons, b.ConstrainExpr(br.Cond, types.ForReason{
			Reason: types.Reason{Kind: types.ReasonIfCondition},
			T:      boolType,
			Region: br.CondRegion,
		}))
	}

	if ann, annotated := expected.(types.FromAnnotation); annotated {
		for i, br := range e.Branches {
			cons = append(cons, b.ConstrainExpr(br.Body, types.FromAnnotation{
				Source: types.AnnSource{Kind: types.AnnTypedIfBranch, Index: i + 1, Total: total, Region: ann.Source.Region},
				Arity:  ann.Arity,
				T:      ann.T,
				Region: br.BodyRegion,
			}))
		}
		cons = append(cons, b.ConstrainExpr(e.FinalElse, types.FromAnnotation{
			Source: types.AnnSource{Kind: types.AnnTypedIfBranch, Index: total, Total: total, Region: ann.Source.Region},
			Arity:  ann.Arity,
			T:      ann.T,
			Region: e.ElseRegion,
		}))
		cons = append(cons, Eq{T: types.TVar{V: e.BranchVar}, Expected: expected, Category: types.CatIf(), Region: e.Region})
		return exists([]types.Variable{e.CondVar, e.BranchVar}, and(cons...))
	}

	branchType := types.TVar{V: e.BranchVar}
	for i, br := range e.Branches {
		cons = append(cons, b.ConstrainExpr(br.Body, types.ForReason{
			Reason: types.Reason{Kind: types.ReasonIfBranch, Index: i + 1, Total: total},
			T:      branchType,
			Region: br.BodyRegion,
		}))
	}
	cons = append(cons, b.ConstrainExpr(e.FinalElse, types.ForReason{
		Reason: types.Reason{Kind: types.ReasonIfBranch, Index: total, Total: total},
		T:      branchType,
		Region: e.ElseRegion,
	}))
	cons = append(cons, Eq{T: branchType, Expected: expected, Category: types.CatIf(), Region: e.Region})
	return exists([]types.Variable{e.CondVar, e.BranchVar}, and(cons...))
}

func (b *Builder) when(e can.When, expected types.Expected) Constraint {
	condType := types.TVar{V: e.CondVar}
	branchType := types.TVar{V: e.ExprVar}
	boolType := types.TPrim{Name: "Bool"}
	ann, annotated := expected.(types.FromAnnotation)

	cons := []Constraint{
		b.ConstrainExpr(e.Cond, types.NoExpectation{T: condType}),
	}

	for i, br := range e.Branches {
		state := NewPatternState()
		for _, wp := range br.Patterns {
			b.ConstrainPattern(wp.Pattern, types.PForReason{
				Reason: types.PReason{Kind: types.PReasonWhenMatch, Index: i + 1},
				T:      condType,
				Region: wp.Region,
			}, state)
		}

		var guardCon Constraint = True{}
		if br.Guard != nil {
			guardCon = b.ConstrainExpr(br.Guard, types.ForReason{
				Reason: types.Reason{Kind: types.ReasonWhenGuard, Index: i + 1},
				T:      boolType,
				Region: br.GuardRegion,
			})
		}

		var bodyExpected types.Expected
		if annotated {
			bodyExpected = types.FromAnnotation{
				Source: types.AnnSource{Kind: types.AnnTypedWhenBranch, Index: i + 1, Region: ann.Source.Region},
				Arity:  ann.Arity,
				T:      ann.T,
				Region: br.BodyRegion,
			}
		} else {
			bodyExpected = types.ForReason{
				Reason: types.Reason{Kind: types.ReasonWhenBranch, Index: i + 1},
				T:      branchType,
				Region: br.BodyRegion,
			}
		}
		bodyCon := b.ConstrainExpr(br.Body, bodyExpected)

		cons = append(cons, Let{
			FlexVars: state.Vars,
			Header:   state.Headers,
			Defs:     and(state.Constraints...),
			Ret:      and(guardCon, bodyCon),
		})
	}

	cons = append(cons, Eq{
		T:        branchType,
		Expected: expected,
		Category: types.Category{Kind: types.CategoryWhenBranch},
		Region:   e.Region,
	})
	return exists([]types.Variable{e.CondVar, e.ExprVar}, and(cons...))
}

func (b *Builder) record(e can.RecordLit, expected types.Expected) Constraint {
	vars := []types.Variable{e.Var}
	fields := make(map[string]types.Type, len(e.Fields))
	var cons []Constraint
	for _, name := range sortedFieldNames(e.Fields) {
		f := e.Fields[name]
		vars = append(vars, f.Var)
		fields[name] = types.TVar{V: f.Var}
		cons = append(cons, b.ConstrainExpr(f.Expr, types.NoExpectation{T: fields[name]}))
	}
	recordType := types.TRecord{Fields: fields, Ext: types.TEmptyRecord{}}
	cons = append(cons,
		Eq{T: recordType, Expected: expected, Category: types.CatRecord(), Region: e.Region},
		Store{T: recordType, Var: e.Var, Region: e.Region, Src: src("expr.go", 338)},
	)
	return exists(vars, and(cons...))
}

// access builds the open singleton row { field : a | ext } and equates it to
// the receiver: the receiver must have this field, and may have any others.
func (b *Builder) access(e can.Access, expected types.Expected) Constraint {
	fieldType := types.TVar{V: e.FieldVar}
	recordType := types.TRecord{
		Fields: map[string]types.Type{e.Field: fieldType},
		Ext:    types.TVar{V: e.ExtVar},
	}
	return exists([]types.Variable{e.RecordVar, e.ExtVar, e.FieldVar}, and(
		b.ConstrainExpr(e.Rec, types.NoExpectation{T: recordType}),
		Store{T: recordType, Var: e.RecordVar, Region: e.Region, Src: src("expr.go", 355)},
		Eq{T: fieldType, Expected: expected, Category: types.CatAccess(e.Field), Region: e.Region},
	))
}

func (b *Builder) accessor(e can.Accessor, expected types.Expected) Constraint {
	fieldType := types.TVar{V: e.FieldVar}
	recordType := types.TRecord{
		Fields: map[string]types.Type{e.Field: fieldType},
		Ext:    types.TVar{V: e.ExtVar},
	}
	fnType := types.TFunc{
		Args:    []types.Type{recordType},
		Closure: types.TVar{V: e.ClosureVar},
		Ret:     fieldType,
	}
	return exists([]types.Variable{e.FnVar, e.RecordVar, e.ClosureVar, e.ExtVar, e.FieldVar}, and(
		Eq{
			T:        fnType,
			Expected: expected,
			Category: types.Category{Kind: types.CategoryAccessor, Field: e.Field},
			Region:   e.Region,
		},
		Store{T: fnType, Var: e.FnVar, Region: e.Region, Src: src("expr.go", 381)},
	))
}

// update looks the record symbol up with an expectation listing exactly the
// updated fields over an open row: updating a field that does not exist is a
// RecordUpdateKeys mismatch, not a silent extension.
func (b *Builder) update(e can.Update, expected types.Expected) Constraint {
	vars := []types.Variable{e.RecordVar, e.ExtVar}
	fields := make(map[string]types.Type, len(e.Updates))
	var cons []Constraint
	for _, name := range sortedFieldNames(e.Updates) {
		f := e.Updates[name]
		vars = append(vars, f.Var)
		fields[name] = types.TVar{V: f.Var}
		cons = append(cons, b.ConstrainExpr(f.Expr, types.ForReason{
			Reason: types.Reason{Kind: types.ReasonRecordUpdateValue, Field: name},
			T:      fields[name],
			Region: f.Region,
		}))
	}
	recordType := types.TRecord{Fields: fields, Ext: types.TVar{V: e.ExtVar}}

	all := []Constraint{
		Lookup{
			Symbol: e.Symbol,
			Expected: types.ForReason{
				Reason: types.Reason{Kind: types.ReasonRecordUpdateKeys},
				T:      recordType,
				Region: e.Region,
			},
			Region: e.Region,
		},
	}
	all = append(all, cons...)
	all = append(all,
		Eq{T: recordType, Expected: expected, Category: types.CatRecord(), Region: e.Region},
		Store{T: recordType, Var: e.RecordVar, Region: e.Region, Src: src("expr.go", 422)},
	)
	return exists(vars, and(all...))
}

func (b *Builder) tag(e can.Tag, expected types.Expected) Constraint {
	vars := []types.Variable{e.UnionVar, e.ExtVar}
	payload := make([]types.Type, len(e.Args))
	var cons []Constraint
	for i, arg := range e.Args {
		vars = append(vars, arg.Var)
		payload[i] = types.TVar{V: arg.Var}
		cons = append(cons, b.ConstrainExpr(arg.Expr, types.NoExpectation{T: payload[i]}))
	}
	unionType := types.TTagUnion{
		Tags: map[string][]types.Type{e.Name: payload},
		Ext:  types.TVar{V: e.ExtVar},
	}
	cons = append(cons,
		Eq{
			T:        unionType,
			Expected: expected,
			Category: types.Category{Kind: types.CategoryTagApply, TagName: e.Name},
			Region:   e.Region,
		},
		Store{T: unionType, Var: e.UnionVar, Region: e.Region, Src: src("expr.go", 448)},
	)
	return exists(vars, and(cons...))
}

// opaqueRef constrains the wrapped argument against the opaque's real type,
// then stores the alias type itself at the expression variable: downstream
// consumers see @Name, not the unwrapped shape.
func (b *Builder) opaqueRef(e can.OpaqueRef, expected types.Expected) Constraint {
	vars := []types.Variable{e.Var, e.ArgVar}
	types.WalkVars(e.Alias, func(v types.Variable) {
		vars = append(vars, v)
	})

	argType := types.TVar{V: e.ArgVar}
	return exists(vars, and(
		b.ConstrainExpr(e.Arg, types.NoExpectation{T: argType}),
		Eq{
			T:        argType,
			Expected: types.NoExpectation{T: e.Alias.Real},
			Category: types.Category{Kind: types.CategoryOpaqueArg},
			Region:   can.RegionOf(e.Arg),
		},
		Eq{
			T:        e.Alias,
			Expected: expected,
			Category: types.Category{Kind: types.CategoryOpaqueWrap, Symbol: e.Name},
			Region:   e.Region,
		},
		Store{T: e.Alias, Var: e.Var, Region: e.Region, Src: src("expr.go", 480)},
	))
}

package pipeline

import (
	"fmt"

	"github.com/ternlang/tern/internal/constrain"
	"github.com/ternlang/tern/internal/problem"
	"github.com/ternlang/tern/internal/solve"
	"github.com/ternlang/tern/internal/subs"
)

// ConstrainStage turns the canonical declarations into the module constraint
// tree.
type ConstrainStage struct{}

func (ConstrainStage) Process(ctx *Context) *Context {
	if ctx.Abilities == nil {
		ctx.AddError(fmt.Errorf("pipeline: constrain stage needs an abilities store"))
		return ctx
	}
	builder := constrain.NewBuilder(ctx.Abilities)
	ctx.Constraint = builder.ConstrainModule(ctx.Decls, ctx.Imports)
	if ctx.DebugConstraints {
		if err := constrain.Check(ctx.Constraint, ctx.ImportVars...); err != nil {
			ctx.AddError(fmt.Errorf("pipeline: constraint validation: %w", err))
		}
	}
	return ctx
}

// SolveStage initializes the substitution store from the variable counter and
// solves the constraint tree.
type SolveStage struct{}

func (SolveStage) Process(ctx *Context) *Context {
	if ctx.Constraint == nil {
		ctx.AddError(fmt.Errorf("pipeline: solve stage ran without a constraint tree"))
		return ctx
	}
	if ctx.Store == nil {
		if ctx.Vars == nil {
			ctx.AddError(fmt.Errorf("pipeline: solve stage needs a variable counter or a prepared store"))
			return ctx
		}
		ctx.Store = subs.FromVarStore(ctx.Vars)
	}
	ctx.Solved = solve.Module(ctx.Store, ctx.Abilities, ctx.Deriver, solve.ModuleInput{
		Constraint:       ctx.Constraint,
		Declarations:     ctx.Decls,
		ExposedSymbols:   ctx.ExposedSymbols,
		UnexposedLookups: ctx.UnexposedLookups,
		Circular:         append(append([]problem.TypeError{}, ctx.Pre...), constrain.CircularDefs(ctx.Decls)...),
	})
	return ctx
}

// Package check is the embedding facade over the type checker: hand it a
// canonical module and get back the solved store and the problem list,
// without touching the pipeline machinery directly.
package check

import (
	"fmt"

	"github.com/google/uuid"

	"github.com/ternlang/tern/internal/abilities"
	"github.com/ternlang/tern/internal/can"
	"github.com/ternlang/tern/internal/constrain"
	"github.com/ternlang/tern/internal/pipeline"
	"github.com/ternlang/tern/internal/problem"
	"github.com/ternlang/tern/internal/solve"
	"github.com/ternlang/tern/internal/subs"
	"github.com/ternlang/tern/internal/symbols"
	"github.com/ternlang/tern/internal/types"
)

// Input is one canonical module ready for checking. Interns, Vars, and
// Abilities are the shared tables canonicalization filled while producing
// Decls.
type Input struct {
	Name             string
	Interns          *symbols.Interns
	Decls            []can.Declaration
	Imports          map[symbols.Symbol]constrain.TypeAt
	ImportVars       []types.Variable
	Exposed          []symbols.Symbol
	UnexposedLookups []symbols.Symbol
	Vars             *subs.VarStore
	Abilities        *abilities.Store

	// Pre holds problems earlier passes already classified; they ride
	// through to the result untouched.
	Pre []problem.TypeError
}

// Options tune a single check run.
type Options struct {
	// Deriver answers structural-derivation questions. Nil means the
	// builtin default rules.
	Deriver *abilities.Deriver

	// Store lets the caller supply a prepared substitution store, for
	// planting restored import artifacts. Nil builds one from Input.Vars.
	Store *subs.Store

	// DebugConstraints validates the constraint tree before solving.
	DebugConstraints bool
}

// Result is what one check run produced.
type Result struct {
	RunID           uuid.UUID
	Store           *subs.Store
	Problems        []problem.TypeError
	Exposed         *solve.ExposedModuleTypes
	Specializations map[types.Variable]symbols.Symbol
}

// Module type-checks one canonical module. The error return covers driver
// misuse (missing tables, an inconsistent constraint tree); type errors in
// the module come back in Result.Problems.
func Module(in Input, opts Options) (*Result, error) {
	if in.Interns == nil || in.Vars == nil || in.Abilities == nil {
		return nil, fmt.Errorf("check: input needs interns, a variable counter, and an abilities store")
	}

	ctx := pipeline.NewContext(in.Name)
	ctx.Interns = in.Interns
	ctx.Decls = in.Decls
	ctx.Imports = in.Imports
	ctx.ImportVars = in.ImportVars
	ctx.ExposedSymbols = in.Exposed
	ctx.UnexposedLookups = in.UnexposedLookups
	ctx.Vars = in.Vars
	ctx.Abilities = in.Abilities
	ctx.Pre = in.Pre
	ctx.Store = opts.Store
	ctx.DebugConstraints = opts.DebugConstraints

	ctx.Deriver = opts.Deriver
	if ctx.Deriver == nil {
		ctx.Deriver = abilities.NewDeriver(abilities.DefaultConfig())
	}

	ctx = pipeline.Check(ctx)
	if errs := ctx.Errors(); len(errs) > 0 {
		return nil, fmt.Errorf("check: %s: %w", in.Name, errs[0])
	}

	return &Result{
		RunID:           ctx.RunID,
		Store:           ctx.Solved.Store,
		Problems:        ctx.Solved.Problems,
		Exposed:         ctx.Solved.Exposed,
		Specializations: ctx.Solved.Specializations,
	}, nil
}

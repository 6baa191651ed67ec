package pipeline

import (
	"github.com/google/uuid"

	"github.com/ternlang/tern/internal/abilities"
	"github.com/ternlang/tern/internal/can"
	"github.com/ternlang/tern/internal/constrain"
	"github.com/ternlang/tern/internal/problem"
	"github.com/ternlang/tern/internal/solve"
	"github.com/ternlang/tern/internal/subs"
	"github.com/ternlang/tern/internal/symbols"
	"github.com/ternlang/tern/internal/types"
)

// Context carries one module through the stages. Inputs are filled by the
// caller before Run, stage outputs accumulate as the pipeline advances.
type Context struct {
	// RunID names this invocation in logs and cache rows.
	RunID uuid.UUID

	// Inputs.
	ModuleName       string
	Interns          *symbols.Interns
	Decls            []can.Declaration
	Imports          map[symbols.Symbol]constrain.TypeAt
	ImportVars       []types.Variable // restored from artifacts, bound by no Let
	ExposedSymbols   []symbols.Symbol
	UnexposedLookups []symbols.Symbol
	Vars             *subs.VarStore
	Abilities        *abilities.Store
	Deriver          *abilities.Deriver

	// Pre holds problems earlier passes already classified (wrong
	// specializations, shadowing fallout); they ride through to the solved
	// module's problem list.
	Pre []problem.TypeError

	// DebugConstraints runs the constraint validator between stages.
	DebugConstraints bool

	// Stage outputs.
	Constraint constrain.Constraint
	Store      *subs.Store
	Solved     *solve.SolvedModule

	errs []error
}

// NewContext returns a context with a fresh run id.
func NewContext(moduleName string) *Context {
	return &Context{
		RunID:      uuid.New(),
		ModuleName: moduleName,
	}
}

// AddError records a stage-level failure (not a type problem).
func (c *Context) AddError(err error) {
	if err != nil {
		c.errs = append(c.errs, err)
	}
}

// Errors returns the stage-level failures in occurrence order.
func (c *Context) Errors() []error {
	return c.errs
}

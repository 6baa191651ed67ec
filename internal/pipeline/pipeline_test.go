package pipeline

import (
	"testing"

	"github.com/ternlang/tern/internal/abilities"
	"github.com/ternlang/tern/internal/can"
	"github.com/ternlang/tern/internal/problem"
	"github.com/ternlang/tern/internal/region"
	"github.com/ternlang/tern/internal/subs"
	"github.com/ternlang/tern/internal/symbols"
	"github.com/ternlang/tern/internal/types"
)

// identityModule builds `id = \x -> x`, exposed, the smallest module that
// exercises constrain, solve, and generalization.
func identityModule(t *testing.T) *Context {
	t.Helper()
	interns := symbols.NewInterns()
	home := interns.AddModule("Main")
	idSym := interns.Symbol(home, "id")
	xSym := interns.Symbol(home, "x")

	vs := subs.NewVarStore()
	body := can.VarRef{Symbol: xSym, Var: vs.Fresh(), Region: region.New(10, 11)}
	clo := can.Closure{
		FnVar:      vs.Fresh(),
		ClosureVar: vs.Fresh(),
		RetVar:     vs.Fresh(),
		Name:       idSym,
		Args: []can.ClosureArg{{
			Var:     vs.Fresh(),
			Pattern: can.PIdent{Symbol: xSym, Region: region.New(6, 7)},
			Region:  region.New(6, 7),
		}},
		Body:       body,
		BodyRegion: body.Region,
		Region:     region.New(5, 11),
	}
	def := &can.Def{
		Pattern:       can.PIdent{Symbol: idSym, Region: region.New(1, 3)},
		PatternRegion: region.New(1, 3),
		Expr:          clo,
		ExprRegion:    clo.Region,
		ExprVar:       vs.Fresh(),
		PatternVars:   map[symbols.Symbol]types.Variable{idSym: vs.Fresh()},
	}

	ctx := NewContext("Main")
	ctx.Interns = interns
	ctx.Decls = []can.Declaration{can.Declare{Def: def}}
	ctx.ExposedSymbols = []symbols.Symbol{idSym}
	ctx.Vars = vs
	ctx.Abilities = abilities.NewStore()
	ctx.Deriver = abilities.NewDeriver(abilities.DefaultConfig())
	ctx.DebugConstraints = true
	return ctx
}

func TestCheckSolvesModule(t *testing.T) {
	ctx := Check(identityModule(t))

	if errs := ctx.Errors(); len(errs) > 0 {
		t.Fatalf("stage errors: %v", errs)
	}
	if ctx.Constraint == nil {
		t.Fatal("constrain stage produced no constraint")
	}
	if ctx.Solved == nil {
		t.Fatal("solve stage produced no result")
	}
	if len(ctx.Solved.Problems) != 0 {
		t.Fatalf("unexpected problems: %v", ctx.Solved.Problems)
	}
	if ctx.Solved.Exposed == nil {
		t.Fatal("no exposed artifact for an exposing module")
	}
	if len(ctx.Solved.Exposed.Types) != 1 {
		t.Errorf("exposed %d symbols, want 1", len(ctx.Solved.Exposed.Types))
	}
}

func TestRunIDsAreDistinct(t *testing.T) {
	a := NewContext("Main")
	b := NewContext("Main")
	if a.RunID == b.RunID {
		t.Error("two contexts share a run id")
	}
}

func TestConstrainStageNeedsAbilities(t *testing.T) {
	ctx := identityModule(t)
	ctx.Abilities = nil

	ctx = New(ConstrainStage{}).Run(ctx)
	if len(ctx.Errors()) == 0 {
		t.Error("constrain stage accepted a context without an abilities store")
	}
}

func TestSolveStageNeedsConstraint(t *testing.T) {
	ctx := NewContext("Main")
	ctx = New(SolveStage{}).Run(ctx)
	if len(ctx.Errors()) == 0 {
		t.Error("solve stage ran without a constraint tree")
	}
}

func TestPipelineContinuesAfterErrors(t *testing.T) {
	// A failing early stage must not stop later ones; diagnostics accumulate.
	ctx := identityModule(t)
	ctx.Abilities = nil
	ctx = New(ConstrainStage{}, SolveStage{}).Run(ctx)

	if len(ctx.Errors()) < 2 {
		t.Errorf("want errors from both stages, got %v", ctx.Errors())
	}
}

func TestPreProblemsRideThrough(t *testing.T) {
	ctx := identityModule(t)
	interns := ctx.Interns
	home := interns.AddModule("Main")
	pre := problem.WrongSpecialization{
		Region: region.New(1, 2),
		Member: interns.Symbol(home, "isEq"),
	}
	ctx.Pre = append(ctx.Pre, pre)

	ctx = Check(ctx)
	if errs := ctx.Errors(); len(errs) > 0 {
		t.Fatalf("stage errors: %v", errs)
	}
	if len(ctx.Solved.Problems) != 1 {
		t.Fatalf("problems = %v, want just the pre-classified one", ctx.Solved.Problems)
	}
	if ctx.Solved.Problems[0] != pre {
		t.Error("pre-classified problem did not ride through unchanged")
	}
}

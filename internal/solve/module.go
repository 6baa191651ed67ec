package solve

import (
	"github.com/google/uuid"

	"github.com/ternlang/tern/internal/abilities"
	"github.com/ternlang/tern/internal/can"
	"github.com/ternlang/tern/internal/constrain"
	"github.com/ternlang/tern/internal/problem"
	"github.com/ternlang/tern/internal/subs"
	"github.com/ternlang/tern/internal/symbols"
	"github.com/ternlang/tern/internal/types"
)

// SolvedModule is everything a module's solve pass produces.
type SolvedModule struct {
	Store           *subs.Store
	Problems        []problem.TypeError
	Exposed         *ExposedModuleTypes
	Specializations map[types.Variable]symbols.Symbol
}

// ExposedModuleTypes is the artifact a module hands to its importers: the
// exposed symbols' generalized types, copied into a standalone arena so the
// importer never touches the exporter's live store. The id names the artifact
// in caches and logs.
type ExposedModuleTypes struct {
	ArtifactID uuid.UUID
	Storage    *subs.StorageStore
	Types      map[symbols.Symbol]types.Variable
}

// ModuleInput bundles what canonicalization hands the solver beyond the
// constraint tree itself.
type ModuleInput struct {
	Constraint constrain.Constraint

	// Declarations, for seeding annotation variable names and ability
	// bounds into the store before solving.
	Declarations []can.Declaration

	// ExposedSymbols are this module's exports, extracted after solving.
	ExposedSymbols []symbols.Symbol

	// UnexposedLookups are symbols resolution matched to an import that
	// does not expose them.
	UnexposedLookups []symbols.Symbol

	// Circular are the pre-classified illegal definition cycles; they pass
	// through to the problem list untouched.
	Circular []problem.TypeError
}

// Module solves one module end to end and assembles the result.
func Module(st *subs.Store, ab *abilities.Store, d *abilities.Deriver, in ModuleInput) *SolvedModule {
	Seed(st, ab, in.Declarations)

	solver := New(st, ab, d)
	solver.MarkUnexposed(in.UnexposedLookups...)
	problems, specializations := solver.Solve(in.Constraint)

	out := &SolvedModule{
		Store:           st,
		Problems:        append(in.Circular, problems...),
		Specializations: specializations,
	}
	if saved := solver.SavedEnv(); saved != nil {
		out.Exposed = Exposed(st, in.ExposedSymbols, saved)
	}
	return out
}

// Exposed extracts the exposed symbols' types into a fresh artifact. Symbols
// without a top-level binding (a definition that collapsed into a runtime
// error) are skipped; canonicalization already reported those.
func Exposed(st *subs.Store, exposed []symbols.Symbol, env map[symbols.Symbol]Binding) *ExposedModuleTypes {
	out := &ExposedModuleTypes{
		ArtifactID: uuid.New(),
		Storage:    subs.NewStorageStore(),
		Types:      make(map[symbols.Symbol]types.Variable, len(exposed)),
	}
	for _, sym := range exposed {
		b, ok := env[sym]
		if !ok {
			continue
		}
		out.Types[sym] = out.Storage.Extract(st, b.Var)
	}
	return out
}

// Seed copies the variable metadata canonicalization collected into the
// store: names for annotation variables and ability bounds for able ones.
// Rigidity is not set here; the Let that introduces a rigid variable marks it
// when solving enters that scope, so a signature never constrains anything
// before its quantifier is live.
func Seed(st *subs.Store, ab *abilities.Store, decls []can.Declaration) {
	seeder := varSeeder{st: st}
	for _, d := range decls {
		switch d := d.(type) {
		case can.Declare:
			seeder.def(d.Def)
		case can.DeclareRec:
			for _, def := range d.Defs {
				seeder.def(def)
			}
		}
	}
	for _, member := range ab.MemberSymbols() {
		data, _ := ab.Member(member)
		for _, v := range data.Vars.Able {
			seeder.able(v, "", data.Ability)
		}
	}
}

type varSeeder struct {
	st *subs.Store
}

func (vs varSeeder) def(def *can.Def) {
	if def.Annotation != nil {
		vs.annotation(def.Annotation)
	}
	vs.expr(def.Expr)
}

func (vs varSeeder) annotation(ann *can.Annotation) {
	for _, nv := range ann.Introduced.Named {
		vs.named(nv.Var, nv.Name)
	}
	for _, av := range ann.Introduced.Able {
		vs.able(av.Var, av.Name, av.Ability)
	}
}

func (vs varSeeder) named(v types.Variable, name string) {
	if u, ok := vs.st.Content(v).(subs.Unbound); ok {
		u.Name = name
		vs.st.Set(v, u)
	}
}

func (vs varSeeder) able(v types.Variable, name string, ability symbols.Symbol) {
	if u, ok := vs.st.Content(v).(subs.Unbound); ok {
		if name != "" {
			u.Name = name
		}
		u.Able = ability
		vs.st.Set(v, u)
	}
}

// expr descends into nested definitions; annotations can appear on any let.
func (vs varSeeder) expr(e can.Expr) {
	switch e := e.(type) {
	case can.ListLit:
		for _, elem := range e.Elems {
			vs.expr(elem)
		}
	case can.Call:
		vs.expr(e.Fn)
		for _, arg := range e.Args {
			vs.expr(arg.Expr)
		}
	case can.Closure:
		vs.expr(e.Body)
	case can.If:
		for _, br := range e.Branches {
			vs.expr(br.Cond)
			vs.expr(br.Body)
		}
		vs.expr(e.FinalElse)
	case can.When:
		vs.expr(e.Cond)
		for _, br := range e.Branches {
			if br.Guard != nil {
				vs.expr(br.Guard)
			}
			vs.expr(br.Body)
		}
	case can.LetNonRec:
		vs.def(e.Def)
		vs.expr(e.Cont)
	case can.LetRec:
		for _, def := range e.Defs {
			vs.def(def)
		}
		vs.expr(e.Cont)
	case can.RecordLit:
		for _, f := range e.Fields {
			vs.expr(f.Expr)
		}
	case can.Access:
		vs.expr(e.Rec)
	case can.Update:
		for _, f := range e.Updates {
			vs.expr(f.Expr)
		}
	case can.Tag:
		for _, arg := range e.Args {
			vs.expr(arg.Expr)
		}
	case can.OpaqueRef:
		vs.expr(e.Arg)
	}
}

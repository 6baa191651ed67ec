// Package solve walks a constraint tree and mutates the substitution store
// until every demand in the tree has been checked. It never aborts: a failed
// unification becomes a problem value and solving continues with whatever the
// store ended up holding, so one mistake produces one error instead of a
// cascade of dependent ones.
package solve

import (
	"fmt"
	"sort"

	"github.com/ternlang/tern/internal/abilities"
	"github.com/ternlang/tern/internal/constrain"
	"github.com/ternlang/tern/internal/problem"
	"github.com/ternlang/tern/internal/region"
	"github.com/ternlang/tern/internal/subs"
	"github.com/ternlang/tern/internal/symbols"
	"github.com/ternlang/tern/internal/types"
	"github.com/ternlang/tern/internal/unify"
)

// Binding is one name in scope during solving: the variable holding its type
// and where the name was bound.
type Binding struct {
	Var    types.Variable
	Region region.Region
}

// env is a linked chain of Let scopes. Lookups walk inner to outer; a scope
// is immutable once pushed, so sibling constraints cannot see each other's
// bindings.
type env struct {
	parent  *env
	entries map[symbols.Symbol]Binding
}

func (e *env) lookup(sym symbols.Symbol) (Binding, bool) {
	for scope := e; scope != nil; scope = scope.parent {
		if b, ok := scope.entries[sym]; ok {
			return b, true
		}
	}
	return Binding{}, false
}

// flatten collapses the chain into one map, outer entries first so inner
// shadowing wins.
func (e *env) flatten() map[symbols.Symbol]Binding {
	if e == nil {
		return map[symbols.Symbol]Binding{}
	}
	out := e.parent.flatten()
	for sym, b := range e.entries {
		out[sym] = b
	}
	return out
}

// Solver holds the mutable state of one module's solve pass.
type Solver struct {
	st        *subs.Store
	abilities *abilities.Store
	deriver   *abilities.Deriver

	unexposed       map[symbols.Symbol]bool
	problems        []problem.TypeError
	specializations map[types.Variable]symbols.Symbol
	pendingSpecs    []pendingSpec
	saved           map[symbols.Symbol]Binding
}

// pendingSpec is one ability member use waiting for its receiver to become
// concrete. receiver is the use-site copy of the member's able variable.
type pendingSpec struct {
	member         symbols.Symbol
	specialization types.Variable
	receiver       types.Variable
}

// New returns a solver over st. The abilities store and deriver resolve
// member dispatch and obligation checks; both are read-only here.
func New(st *subs.Store, ab *abilities.Store, d *abilities.Deriver) *Solver {
	return &Solver{
		st:              st,
		abilities:       ab,
		deriver:         d,
		unexposed:       make(map[symbols.Symbol]bool),
		specializations: make(map[types.Variable]symbols.Symbol),
	}
}

// MarkUnexposed registers symbols that canonicalization resolved to an
// imported module which does not expose them. A Lookup of one of these is a
// reportable problem; a Lookup of anything else unknown is a solver bug.
func (s *Solver) MarkUnexposed(syms ...symbols.Symbol) {
	for _, sym := range syms {
		s.unexposed[sym] = true
	}
}

// Solve runs the whole tree at the top-level rank and returns the problems in
// the order they were found plus the ability specializations chosen per use
// site.
func (s *Solver) Solve(c constrain.Constraint) ([]problem.TypeError, map[types.Variable]symbols.Symbol) {
	s.solve(c, subs.RankTopLevel, nil)
	s.resolveSpecializations()
	return s.problems, s.specializations
}

// SavedEnv returns the top-level bindings snapshotted at the
// SaveTheEnvironment sentinel. Nil until Solve has run past it.
func (s *Solver) SavedEnv() map[symbols.Symbol]Binding {
	return s.saved
}

// Solve is the package-level convenience wrapper matching the pipeline's
// shape: one call, problems and specializations out.
func Solve(st *subs.Store, ab *abilities.Store, d *abilities.Deriver, c constrain.Constraint) ([]problem.TypeError, map[types.Variable]symbols.Symbol) {
	return New(st, ab, d).Solve(c)
}

func (s *Solver) solve(c constrain.Constraint, rank subs.Rank, scope *env) {
	switch c := c.(type) {
	case constrain.True:

	case constrain.SaveTheEnvironment:
		s.saved = scope.flatten()

	case constrain.Eq:
		s.solveEq(c, rank)

	case constrain.Pattern:
		s.solvePattern(c, rank)

	case constrain.Store:
		s.solveStore(c, rank)

	case constrain.Lookup:
		s.solveLookup(c, rank, scope)

	case constrain.AbilityLookup:
		s.solveAbilityLookup(c, rank)

	case constrain.And:
		for _, sub := range c.Constraints {
			s.solve(sub, rank, scope)
		}

	case constrain.Let:
		s.solveLet(c, rank, scope)

	default:
		panic(fmt.Sprintf("solve: unhandled constraint variant %T", c))
	}
}

// materialize turns a constraint-side type into a store variable. Bare
// variable references pass through; structural trees get a variable of their
// own at the current rank so unification can merge into them.
func (s *Solver) materialize(rank subs.Rank, t types.Type) types.Variable {
	if tv, ok := t.(types.TVar); ok {
		return tv.V
	}
	return s.st.FreshBoundAt(rank, t)
}

func (s *Solver) solveEq(c constrain.Eq, rank subs.Rank) {
	actual := s.materialize(rank, c.T)
	expected := s.materialize(rank, c.Expected.Type())
	obligations, fail := unify.Unify(s.st, actual, expected, rank)
	if fail != nil {
		s.problems = append(s.problems, problem.BadExpr{
			Region:   c.Region,
			Category: c.Category,
			Actual:   fail.Left,
			Expected: expectation(c.Expected, fail.Right),
		})
		return
	}
	if unfulfilled := s.discharge(obligations); len(unfulfilled) > 0 {
		s.problems = append(s.problems, problem.BadExprMissingAbility{
			Region:      c.Region,
			Category:    c.Category,
			Actual:      subs.ErrorTypeOf(s.st, actual),
			Unfulfilled: unfulfilled,
		})
	}
}

func (s *Solver) solvePattern(c constrain.Pattern, rank subs.Rank) {
	actual := s.materialize(rank, c.T)
	expected := s.materialize(rank, c.Expected.Type())
	obligations, fail := unify.Unify(s.st, actual, expected, rank)
	if fail != nil {
		s.problems = append(s.problems, problem.BadPattern{
			Region:   c.Region,
			Category: c.Category,
			Actual:   fail.Left,
			Expected: pExpectation(c.Expected, fail.Right),
		})
		return
	}
	if unfulfilled := s.discharge(obligations); len(unfulfilled) > 0 {
		s.problems = append(s.problems, problem.BadPatternMissingAbility{
			Region:      c.Region,
			Category:    c.Category,
			Actual:      subs.ErrorTypeOf(s.st, actual),
			Unfulfilled: unfulfilled,
		})
	}
}

// solveStore pins a type at an AST variable. A mismatch here means the
// builder equated two things it never constrained together, so the report
// carries the builder's file:line instead of a user-facing reason.
func (s *Solver) solveStore(c constrain.Store, rank subs.Rank) {
	actual := s.materialize(rank, c.T)
	obligations, fail := unify.Unify(s.st, actual, c.Var, rank)
	if fail != nil {
		s.problems = append(s.problems, problem.BadExpr{
			Region:   c.Region,
			Category: types.CatStorage(c.Src),
			Actual:   fail.Left,
			Expected: problem.Expectation{Type: fail.Right},
		})
		return
	}
	for _, unf := range s.discharge(obligations) {
		s.problems = append(s.problems, problem.UnfulfilledAbility{Unfulfilled: unf})
	}
}

func (s *Solver) solveLookup(c constrain.Lookup, rank subs.Rank, scope *env) {
	b, ok := scope.lookup(c.Symbol)
	if !ok {
		if s.unexposed[c.Symbol] {
			s.problems = append(s.problems, problem.UnexposedLookup{Region: c.Region, Symbol: c.Symbol})
			s.recoverWith(rank, c.Expected.Type())
			return
		}
		panic(fmt.Sprintf("solve: no binding for %s; canonicalization lets no such lookup through", c.Symbol))
	}
	actual := s.instantiate(rank, b.Var)
	expected := s.materialize(rank, c.Expected.Type())
	obligations, fail := unify.Unify(s.st, actual, expected, rank)
	if fail != nil {
		s.problems = append(s.problems, problem.BadExpr{
			Region:   c.Region,
			Category: types.CatLookup(c.Symbol),
			Actual:   fail.Left,
			Expected: expectation(c.Expected, fail.Right),
		})
		return
	}
	if unfulfilled := s.discharge(obligations); len(unfulfilled) > 0 {
		s.problems = append(s.problems, problem.BadExprMissingAbility{
			Region:      c.Region,
			Category:    types.CatLookup(c.Symbol),
			Actual:      subs.ErrorTypeOf(s.st, actual),
			Unfulfilled: unfulfilled,
		})
	}
}

// solveAbilityLookup checks a use of an ability member. The signature is
// instantiated from the frontloaded SignatureVar and unified with the use
// site. Dispatch cannot happen here: a call constrains its callee before its
// arguments, so the receiver is still unbound when this runs. The use-site
// copy of the member's able variable is remembered instead, and the
// specialization is picked once the whole tree is solved.
func (s *Solver) solveAbilityLookup(c constrain.AbilityLookup, rank subs.Rank) {
	data, ok := s.abilities.Member(c.Member)
	if !ok {
		panic(fmt.Sprintf("solve: AbilityLookup for %s, which is not a registered member", c.Member))
	}
	table := make(map[types.Variable]types.Variable)
	actual := copyVar(s.st, rank, data.SignatureVar, table)
	expected := s.materialize(rank, c.Expected.Type())
	obligations, fail := unify.Unify(s.st, actual, expected, rank)
	if fail != nil {
		s.problems = append(s.problems, problem.BadExpr{
			Region:   c.Region,
			Category: types.CatLookup(c.Member),
			Actual:   fail.Left,
			Expected: expectation(c.Expected, fail.Right),
		})
		s.bindError(rank, c.Specialization)
		return
	}
	for _, ob := range obligations {
		if ob.Ability == data.Ability {
			continue
		}
		if unf := abilities.CheckObligation(s.st, s.abilities, s.deriver, ob.Concrete, ob.Ability); unf != nil {
			s.problems = append(s.problems, problem.UnfulfilledAbility{Unfulfilled: unf})
		}
	}
	for _, v := range data.Vars.Able {
		root, content := s.st.Resolve(v)
		u, isUnbound := content.(subs.Unbound)
		if !isUnbound || u.Able != data.Ability {
			continue
		}
		receiver, copied := table[root]
		if !copied {
			continue
		}
		s.pendingSpecs = append(s.pendingSpecs, pendingSpec{
			member:         c.Member,
			specialization: c.Specialization,
			receiver:       receiver,
		})
	}
}

// resolveSpecializations dispatches the member uses recorded during solving,
// in the order they were encountered. A receiver that is still unbound stays
// unresolved without complaint: the use sits inside a generalized function,
// and dispatch belongs to whoever instantiates it.
func (s *Solver) resolveSpecializations() {
	for _, p := range s.pendingSpecs {
		spec, unf := abilities.Resolve(s.st, s.abilities, s.deriver, p.member, p.receiver)
		if unf != nil {
			s.problems = append(s.problems, problem.UnfulfilledAbility{Unfulfilled: unf})
			continue
		}
		if spec != symbols.NoSymbol {
			s.specializations[p.specialization] = spec
		}
	}
}

// discharge checks the obligations a unification produced and returns the
// ones the types cannot satisfy.
func (s *Solver) discharge(obligations []unify.Obligation) []problem.Unfulfilled {
	var out []problem.Unfulfilled
	for _, ob := range obligations {
		if unf := abilities.CheckObligation(s.st, s.abilities, s.deriver, ob.Concrete, ob.Ability); unf != nil {
			out = append(out, unf)
		}
	}
	return out
}

// recoverWith ties an expectation to the error type so downstream constraints
// on the same variables see something instead of failing again.
func (s *Solver) recoverWith(rank subs.Rank, expected types.Type) {
	errVar := s.st.FreshBoundAt(rank, types.TError{})
	unify.Unify(s.st, errVar, s.materialize(rank, expected), rank)
}

func (s *Solver) bindError(rank subs.Rank, v types.Variable) {
	root, _ := s.st.Resolve(v)
	s.st.Set(root, subs.Bound{T: types.TError{}, Rank: rank})
}

// solveLet is the generalization boundary.
//
// Two shapes skip the rank push. An existential (no header, trivially true
// ret) just re-ranks its variables and solves its body: nothing gets
// generalized. A pure header (trivially true defs, nothing introduced) just
// extends the scope: the header types are already pinned, either generalized
// by an enclosing Let or restored from another module's artifact.
//
// The general path pushes one rank deeper, introduces the rigid and flex
// variables there, solves the defs, runs the occurs pass over each header,
// generalizes everything still stuck at the pushed rank, and then solves the
// ret one level up with the header names in scope.
func (s *Solver) solveLet(c constrain.Let, rank subs.Rank, scope *env) {
	if _, trueRet := c.Ret.(constrain.True); trueRet && len(c.RigidVars) == 0 && len(c.Header) == 0 {
		s.st.Introduce(rank, c.FlexVars...)
		s.solve(c.Defs, rank, scope)
		return
	}
	if _, trueDefs := c.Defs.(constrain.True); trueDefs && len(c.RigidVars) == 0 && len(c.FlexVars) == 0 {
		s.solve(c.Ret, rank, s.bindHeader(c.Header, rank, scope))
		return
	}

	next := rank.Next()
	for _, v := range c.RigidVars {
		root, content := s.st.Resolve(v)
		if u, ok := content.(subs.Unbound); ok {
			u.Rank = next
			u.Rigid = true
			s.st.Set(root, u)
		}
	}
	s.st.Introduce(next, c.FlexVars...)

	s.solve(c.Defs, next, scope)

	child := s.bindHeader(c.Header, next, scope)
	visited := make(map[types.Variable]bool)
	for _, sym := range sortedHeaderSymbols(c.Header) {
		b := child.entries[sym]
		s.fixInfiniteTypes(b.Var, sym, b.Region)
		s.generalize(b.Var, next, visited)
	}
	// Introduced variables the headers cannot reach (pinned signature
	// variables, dead pattern variables) still generalize; nothing below
	// this rank can see them, so quantifying them is free and instantiation
	// relies on it.
	for _, v := range c.RigidVars {
		s.generalize(v, next, visited)
	}
	for _, v := range c.FlexVars {
		s.generalize(v, next, visited)
	}

	s.solve(c.Ret, rank, child)
}

// bindHeader materializes the header types at rank and pushes them as a new
// scope.
func (s *Solver) bindHeader(header map[symbols.Symbol]constrain.TypeAt, rank subs.Rank, scope *env) *env {
	entries := make(map[symbols.Symbol]Binding, len(header))
	for sym, at := range header {
		entries[sym] = Binding{Var: s.materialize(rank, at.T), Region: at.Region}
	}
	return &env{parent: scope, entries: entries}
}

// generalize quantifies everything reachable from v that is still stuck at
// or below the boundary rank. Variables that escaped to an outer scope were
// demoted during unification and keep their rank.
func (s *Solver) generalize(v types.Variable, boundary subs.Rank, visited map[types.Variable]bool) {
	root, content := s.st.Resolve(v)
	if visited[root] {
		return
	}
	visited[root] = true
	switch c := content.(type) {
	case subs.Unbound:
		if c.Rank >= boundary {
			c.Rank = subs.RankNone
			s.st.Set(root, c)
		}
	case subs.Bound:
		if c.Rank >= boundary {
			c.Rank = subs.RankNone
			s.st.Set(root, c)
		}
		types.WalkVars(c.T, func(inner types.Variable) {
			s.generalize(inner, boundary, visited)
		})
	}
}

func sortedHeaderSymbols(header map[symbols.Symbol]constrain.TypeAt) []symbols.Symbol {
	out := make([]symbols.Symbol, 0, len(header))
	for sym := range header {
		out = append(out, sym)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// expectation flattens the expectation's provenance next to the failure
// snapshot for reporting.
func expectation(e types.Expected, snapshot types.ErrorType) problem.Expectation {
	switch e := e.(type) {
	case types.NoExpectation:
		return problem.Expectation{Type: snapshot}
	case types.ForReason:
		reason := e.Reason
		return problem.Expectation{Type: snapshot, Reason: &reason, Region: e.Region}
	case types.FromAnnotation:
		ann := e.Source
		return problem.Expectation{Type: snapshot, Ann: &ann, Region: e.Region}
	}
	panic(fmt.Sprintf("solve: unhandled expectation variant %T", e))
}

func pExpectation(e types.PExpected, snapshot types.ErrorType) problem.PExpectation {
	switch e := e.(type) {
	case types.PNoExpectation:
		return problem.PExpectation{Type: snapshot}
	case types.PForReason:
		reason := e.Reason
		return problem.PExpectation{Type: snapshot, Reason: &reason, Region: e.Region}
	}
	panic(fmt.Sprintf("solve: unhandled pattern expectation variant %T", e))
}

// Package unify makes two type variables describe the same type, or reports
// that they cannot. It only ever merges: on success the two union-find roots
// share one content, on failure the store keeps whatever partial merges
// happened before the clash so that later constraints still see the most
// informed picture.
//
// Unification is occurs-check free. Cyclic structure is tolerated here (a
// visited-pair set makes the recursion co-inductive) and rejected or
// legalized later, when the solver runs its occurs pass at generalization
// points.
package unify

import (
	"github.com/ternlang/tern/internal/subs"
	"github.com/ternlang/tern/internal/symbols"
	"github.com/ternlang/tern/internal/types"
)

// Obligation records that a concrete type ended up instantiating an
// ability-constrained variable. Unification itself never judges whether the
// type actually implements the ability; it defers that to the caller, which
// checks obligations once the dust of the enclosing constraint has settled.
type Obligation struct {
	Concrete types.Variable
	Ability  symbols.Symbol
}

// Failure is a snapshot of both sides at the moment unification gave up.
// The snapshots are taken from the partially merged store, so shared
// sub-structure that did unify renders identically on both sides.
type Failure struct {
	Left  types.ErrorType
	Right types.ErrorType
}

// Unify merges a and b in st. Fresh variables created along the way (row
// extensions, lifted sub-structures) are introduced at rank.
//
// On success it returns the obligations incurred by binding able variables.
// On failure it returns a nil obligation slice and a Failure; the store is
// left partially merged and the caller is expected to keep solving.
func Unify(st *subs.Store, a, b types.Variable, rank subs.Rank) ([]Obligation, *Failure) {
	u := &unifier{
		st:   st,
		rank: rank,
		seen: make(map[varPair]bool),
	}
	if u.vars(a, b) {
		return u.obligations, nil
	}
	return nil, &Failure{
		Left:  subs.ErrorTypeOf(st, a),
		Right: subs.ErrorTypeOf(st, b),
	}
}

type varPair struct {
	a, b types.Variable
}

type unifier struct {
	st          *subs.Store
	rank        subs.Rank
	seen        map[varPair]bool
	obligations []Obligation
}

func (u *unifier) mismatch() bool { return false }

func (u *unifier) obligate(concrete types.Variable, ability symbols.Symbol) {
	u.obligations = append(u.obligations, Obligation{Concrete: concrete, Ability: ability})
}

// vars unifies two variables. All structural recursion funnels back through
// here, so the seen set guards every cycle the store can express.
func (u *unifier) vars(a, b types.Variable) bool {
	rootA, contentA := u.st.Resolve(a)
	rootB, contentB := u.st.Resolve(b)
	if rootA == rootB {
		return true
	}
	pair := varPair{rootA, rootB}
	if rootB < rootA {
		pair = varPair{rootB, rootA}
	}
	if u.seen[pair] {
		return true
	}
	u.seen[pair] = true

	switch ca := contentA.(type) {
	case subs.Unbound:
		return u.unbound(rootA, ca, rootB, contentB)
	case subs.Bound:
		switch cb := contentB.(type) {
		case subs.Unbound:
			return u.unbound(rootB, cb, rootA, contentA)
		case subs.Bound:
			merged, ok := u.structures(ca.T, cb.T)
			if !ok {
				return u.mismatch()
			}
			u.st.Merge(rootA, rootB, subs.Bound{T: merged, Rank: minRank(ca.Rank, cb.Rank)})
			return true
		}
	}
	panic("unify: redirect escaped resolve")
}

// unbound handles the cases where root is an unbound variable and other is
// anything. Rigid variables only ever absorb flex ones; able variables pass
// their ability along or turn it into an obligation when they meet structure.
func (u *unifier) unbound(root types.Variable, un subs.Unbound, other types.Variable, co subs.Content) bool {
	switch co := co.(type) {
	case subs.Unbound:
		merged, ok := mergeUnbound(un, co)
		if !ok {
			return u.mismatch()
		}
		u.st.Merge(root, other, merged)
		return true
	case subs.Bound:
		if un.Rigid {
			return u.mismatch()
		}
		if un.Able != symbols.NoSymbol {
			u.obligate(other, un.Able)
		}
		u.st.Set(root, subs.Redirect{To: other})
		u.demoteVar(other, un.Rank, make(map[types.Variable]bool))
		return true
	}
	panic("unify: redirect escaped resolve")
}

// mergeUnbound combines two unbound descriptors. The result keeps the lower
// rank so that generalization never captures a variable that leaked out of a
// deeper scope.
func mergeUnbound(a, b subs.Unbound) (subs.Unbound, bool) {
	if a.Rigid && b.Rigid {
		// Distinct rigids never unify, same-named or not.
		return subs.Unbound{}, false
	}
	if b.Rigid {
		a, b = b, a
	}
	if a.Rigid {
		// a rigid, b flex. The rigid survives, but only if it can carry
		// b's ability demand.
		if b.Able != symbols.NoSymbol && a.Able != b.Able {
			return subs.Unbound{}, false
		}
		a.Rank = minRank(a.Rank, b.Rank)
		return a, true
	}
	// Both flex.
	merged := subs.Unbound{Rank: minRank(a.Rank, b.Rank)}
	merged.Name = a.Name
	if merged.Name == "" {
		merged.Name = b.Name
	}
	switch {
	case a.Able == symbols.NoSymbol:
		merged.Able = b.Able
	case b.Able == symbols.NoSymbol || a.Able == b.Able:
		merged.Able = a.Able
	default:
		return subs.Unbound{}, false
	}
	return merged, true
}

func minRank(a, b subs.Rank) subs.Rank {
	if b < a {
		return b
	}
	return a
}

// demoteVar walks the structure reachable from v and caps every unbound
// variable's rank at max. Binding a structure to a variable from an outer
// scope makes everything inside the structure visible at that outer scope,
// and the ranks must say so before generalization trusts them.
func (u *unifier) demoteVar(v types.Variable, max subs.Rank, visited map[types.Variable]bool) {
	root, content := u.st.Resolve(v)
	if visited[root] {
		return
	}
	visited[root] = true
	switch c := content.(type) {
	case subs.Unbound:
		if c.Rank > max {
			c.Rank = max
			u.st.Set(root, c)
		}
	case subs.Bound:
		if c.Rank > max {
			c.Rank = max
			u.st.Set(root, c)
		}
		u.demoteType(c.T, max, visited)
	}
}

func (u *unifier) demoteType(t types.Type, max subs.Rank, visited map[types.Variable]bool) {
	types.WalkVars(t, func(v types.Variable) {
		u.demoteVar(v, max, visited)
	})
}

// lift gives a bare type tree a variable of its own so that variable-level
// bookkeeping (cycle guard, merging) applies to it.
func (u *unifier) lift(t types.Type) types.Variable {
	if tv, ok := t.(types.TVar); ok {
		return tv.V
	}
	return u.st.FreshBoundAt(u.rank, t)
}

// structures unifies two type trees, returning the merged tree. Either side
// may still be a variable reference; those are routed back through vars so
// the cycle guard sees them.
func (u *unifier) structures(ta, tb types.Type) (types.Type, bool) {
	if tv, ok := ta.(types.TVar); ok {
		if !u.vars(tv.V, u.lift(tb)) {
			return nil, false
		}
		return ta, true
	}
	if tv, ok := tb.(types.TVar); ok {
		if !u.vars(tv.V, u.lift(ta)) {
			return nil, false
		}
		return tb, true
	}

	// Errors absorb anything without complaint; one reported mismatch is
	// enough for the region that produced the error type.
	if _, ok := ta.(types.TError); ok {
		return ta, true
	}
	if _, ok := tb.(types.TError); ok {
		return tb, true
	}

	// Markers and aliases on the right mirror onto their dedicated
	// handlers so the shape cases below only see like-for-like.
	if m, ok := tb.(types.TRecMarker); ok {
		if _, also := ta.(types.TRecMarker); !also {
			return u.recMarker(m, ta)
		}
	}
	if b, ok := tb.(types.TAlias); ok {
		if _, also := ta.(types.TAlias); !also {
			return u.alias(b, ta)
		}
	}

	switch a := ta.(type) {
	case types.TPrim:
		return u.prim(a, tb)
	case types.TNumRange:
		return u.numRange(a, tb)
	case types.TApply:
		b, ok := tb.(types.TApply)
		if !ok || a.Symbol != b.Symbol || len(a.Args) != len(b.Args) {
			return nil, false
		}
		args, ok := u.pairwise(a.Args, b.Args)
		if !ok {
			return nil, false
		}
		return types.TApply{Symbol: a.Symbol, Args: args}, true
	case types.TFunc:
		b, ok := tb.(types.TFunc)
		if !ok || len(a.Args) != len(b.Args) {
			return nil, false
		}
		args, ok := u.pairwise(a.Args, b.Args)
		if !ok {
			return nil, false
		}
		closure, ok := u.structures(a.Closure, b.Closure)
		if !ok {
			return nil, false
		}
		ret, ok := u.structures(a.Ret, b.Ret)
		if !ok {
			return nil, false
		}
		return types.TFunc{Args: args, Closure: closure, Ret: ret}, true
	case types.TRecord:
		return u.recordish(ta, tb)
	case types.TEmptyRecord:
		// Two closed rows agree by construction; recursing through the row
		// machinery would chase the closed markers forever.
		if _, ok := tb.(types.TEmptyRecord); ok {
			return ta, true
		}
		return u.recordish(ta, tb)
	case types.TTagUnion:
		return u.unionish(ta, tb)
	case types.TEmptyTagUnion:
		if _, ok := tb.(types.TEmptyTagUnion); ok {
			return ta, true
		}
		return u.unionish(ta, tb)
	case types.TRecUnion:
		return u.unionish(ta, tb)
	case types.TRecMarker:
		return u.recMarker(a, tb)
	case types.TAlias:
		return u.alias(a, tb)
	}
	return nil, false
}

func (u *unifier) pairwise(as, bs []types.Type) ([]types.Type, bool) {
	merged := make([]types.Type, len(as))
	for i := range as {
		m, ok := u.structures(as[i], bs[i])
		if !ok {
			return nil, false
		}
		merged[i] = m
	}
	return merged, true
}

func (u *unifier) prim(a types.TPrim, tb types.Type) (types.Type, bool) {
	switch b := tb.(type) {
	case types.TPrim:
		if a.Name == b.Name {
			return a, true
		}
		return nil, false
	case types.TNumRange:
		if rangeFitsPrim(b, a) {
			return a, true
		}
		return nil, false
	}
	return nil, false
}

func (u *unifier) numRange(a types.TNumRange, tb types.Type) (types.Type, bool) {
	switch b := tb.(type) {
	case types.TNumRange:
		return types.TNumRange{Bound: a.Bound.Merge(b.Bound)}, true
	case types.TPrim:
		if rangeFitsPrim(a, b) {
			return b, true
		}
		return nil, false
	}
	return nil, false
}

// rangeFitsPrim asks whether the literal bound is representable in the named
// numeric primitive.
func rangeFitsPrim(r types.TNumRange, p types.TPrim) bool {
	width, ok := types.NumWidths[p.Name]
	if !ok {
		return false
	}
	return r.Bound.Fits(width)
}

// recMarker unifies a recursion marker with another type by unifying the
// structure the marker stands for. The marker survives as the merged type so
// parents keep pointing at the knot.
func (u *unifier) recMarker(a types.TRecMarker, tb types.Type) (types.Type, bool) {
	if b, ok := tb.(types.TRecMarker); ok {
		if !u.vars(a.Structure, b.Structure) {
			return nil, false
		}
		return a, true
	}
	if !u.vars(a.Structure, u.lift(tb)) {
		return nil, false
	}
	return a, true
}

// alias unifies an alias with another type. Same-symbol aliases unify their
// arguments and real types; structural aliases otherwise unwrap to their
// real type, while opaques refuse anything but themselves.
func (u *unifier) alias(a types.TAlias, tb types.Type) (types.Type, bool) {
	if b, ok := tb.(types.TAlias); ok && a.Symbol == b.Symbol && len(a.Args) == len(b.Args) {
		for i := range a.Args {
			if _, ok := u.structures(a.Args[i].T, b.Args[i].T); !ok {
				return nil, false
			}
		}
		if _, ok := u.structures(a.Real, b.Real); !ok {
			return nil, false
		}
		return a, true
	}
	if a.Kind == types.AliasOpaque {
		return nil, false
	}
	if _, ok := u.structures(a.Real, tb); !ok {
		return nil, false
	}
	// Keep the alias in the merged content; error messages read better
	// with the name than with its expansion.
	return a, true
}

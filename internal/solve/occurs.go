package solve

import (
	"github.com/ternlang/tern/internal/problem"
	"github.com/ternlang/tern/internal/region"
	"github.com/ternlang/tern/internal/subs"
	"github.com/ternlang/tern/internal/symbols"
	"github.com/ternlang/tern/internal/types"
)

// fixInfiniteTypes is the occurs pass, run per header variable at each
// generalization boundary. Unification tolerates cycles; here they get
// judged. A cycle that passes through a tag union is the legal kind of
// recursion: the union is rewritten in place to a recursive union with an
// explicit marker tying the knot, and self-references inside its payloads
// are redirected at the marker. A cycle with no union anywhere on it has no
// finite reading, so it is reported as circular and cut with the error type.
//
// Legalizing one cycle can expose another, so the pass loops until the
// structure is clean.
func (s *Solver) fixInfiniteTypes(v types.Variable, sym symbols.Symbol, r region.Region) {
	for {
		chain := s.occurs(v)
		if chain == nil {
			return
		}
		unionVar := types.NoVariable
		for _, cv := range chain {
			if content, ok := s.st.Content(cv).(subs.Bound); ok {
				if _, isUnion := content.T.(types.TTagUnion); isUnion {
					unionVar = cv
				}
			}
		}
		if unionVar != types.NoVariable {
			s.markRecursive(unionVar)
			continue
		}
		whole := subs.ErrorTypeOf(s.st, v)
		s.problems = append(s.problems, problem.CircularType{Region: r, Symbol: sym, Whole: whole})
		root, _ := s.st.Resolve(chain[0])
		s.st.Set(root, subs.Bound{T: types.TError{}, Rank: subs.RankTopLevel})
	}
}

// occurs returns a cycle of root variables reachable from v, or nil. The
// chain starts and ends at the repeated variable; recursion markers and the
// sanctioned knot variable of an already-recursive union terminate the walk.
func (s *Solver) occurs(v types.Variable) []types.Variable {
	o := &occursWalk{st: s.st, clean: make(map[types.Variable]bool)}
	return o.visit(v, nil)
}

type occursWalk struct {
	st    *subs.Store
	clean map[types.Variable]bool
}

func (o *occursWalk) visit(v types.Variable, chain []types.Variable) []types.Variable {
	root, content := o.st.Resolve(v)
	for i, on := range chain {
		if on == root {
			return append(chain[i:len(chain):len(chain)], root)
		}
	}
	if o.clean[root] {
		return nil
	}
	bound, ok := content.(subs.Bound)
	if !ok {
		o.clean[root] = true
		return nil
	}
	cycle := o.visitType(bound.T, append(chain, root))
	if cycle == nil {
		o.clean[root] = true
	}
	return cycle
}

func (o *occursWalk) visitType(t types.Type, chain []types.Variable) []types.Variable {
	switch t := t.(type) {
	case types.TVar:
		return o.visit(t.V, chain)
	case types.TRecMarker:
		// The marker is the legalized knot; walking through it would
		// re-find the cycle it exists to sanction.
		return nil
	case types.TRecUnion:
		for _, name := range types.SortedTagNames(t.Tags) {
			for _, payload := range t.Tags[name] {
				if cycle := o.visitType(payload, chain); cycle != nil {
					return cycle
				}
			}
		}
		return o.visitType(t.Ext, chain)
	case types.TTagUnion:
		for _, name := range types.SortedTagNames(t.Tags) {
			for _, payload := range t.Tags[name] {
				if cycle := o.visitType(payload, chain); cycle != nil {
					return cycle
				}
			}
		}
		return o.visitType(t.Ext, chain)
	case types.TRecord:
		for _, name := range types.SortedFieldNames(t.Fields) {
			if cycle := o.visitType(t.Fields[name], chain); cycle != nil {
				return cycle
			}
		}
		return o.visitType(t.Ext, chain)
	case types.TFunc:
		for _, arg := range t.Args {
			if cycle := o.visitType(arg, chain); cycle != nil {
				return cycle
			}
		}
		if cycle := o.visitType(t.Closure, chain); cycle != nil {
			return cycle
		}
		return o.visitType(t.Ret, chain)
	case types.TApply:
		for _, arg := range t.Args {
			if cycle := o.visitType(arg, chain); cycle != nil {
				return cycle
			}
		}
		return nil
	case types.TAlias:
		for _, arg := range t.Args {
			if cycle := o.visitType(arg.T, chain); cycle != nil {
				return cycle
			}
		}
		return o.visitType(t.Real, chain)
	default:
		return nil
	}
}

// markRecursive rewrites a tag union that contains itself into the recursive
// form: a fresh marker variable points back at the union, and every payload
// reference to the union is redirected at the marker. After the rewrite the
// occurs walk terminates at the marker instead of looping.
func (s *Solver) markRecursive(unionVar types.Variable) {
	root, content := s.st.Resolve(unionVar)
	bound, ok := content.(subs.Bound)
	if !ok {
		return
	}
	union, ok := bound.T.(types.TTagUnion)
	if !ok {
		return
	}
	rec := s.st.Fresh(subs.Bound{T: types.TRecMarker{Structure: root}, Rank: bound.Rank})

	visited := map[types.Variable]bool{rec: true}
	tags := make(map[string][]types.Type, len(union.Tags))
	for name, payloads := range union.Tags {
		rewritten := make([]types.Type, len(payloads))
		for i, payload := range payloads {
			rewritten[i] = s.substitute(root, rec, payload, visited)
		}
		tags[name] = rewritten
	}
	ext := s.substitute(root, rec, union.Ext, visited)
	s.st.Set(root, subs.Bound{T: types.TRecUnion{Rec: rec, Tags: tags, Ext: ext}, Rank: bound.Rank})
}

// substitute rewrites references to from (by root identity) into to,
// descending through bound structure in the store as well as the given tree.
func (s *Solver) substitute(from, to types.Variable, t types.Type, visited map[types.Variable]bool) types.Type {
	return types.MapVars(t, func(v types.Variable) types.Variable {
		root, content := s.st.Resolve(v)
		if root == from {
			return to
		}
		if !visited[root] {
			visited[root] = true
			if bound, ok := content.(subs.Bound); ok {
				rewritten := s.substitute(from, to, bound.T, visited)
				s.st.Set(root, subs.Bound{T: rewritten, Rank: bound.Rank})
			}
		}
		return root
	})
}

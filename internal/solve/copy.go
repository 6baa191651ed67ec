package solve

import (
	"fmt"

	"github.com/ternlang/tern/internal/subs"
	"github.com/ternlang/tern/internal/types"
)

// instantiate makes a use-site copy of a generalized type. Only content
// marked RankNone is copied; everything else is shared, so a monomorphic
// variable used twice stays one variable and constraints flow between its
// uses. Rigid variables come out flex: the quantifier they belonged to is
// gone, and the use site is free to pick any type. The copy table lives for
// one call, which is what keeps recursive types terminating and two separate
// instantiations independent.
func (s *Solver) instantiate(rank subs.Rank, v types.Variable) types.Variable {
	return copyVar(s.st, rank, v, make(map[types.Variable]types.Variable))
}

func copyVar(st *subs.Store, rank subs.Rank, v types.Variable, table map[types.Variable]types.Variable) types.Variable {
	root, content := st.Resolve(v)
	if copied, ok := table[root]; ok {
		return copied
	}
	switch c := content.(type) {
	case subs.Unbound:
		if c.Rank != subs.RankNone {
			return root
		}
		fresh := st.Fresh(subs.Unbound{Rank: rank, Name: c.Name, Able: c.Able})
		table[root] = fresh
		return fresh
	case subs.Bound:
		if c.Rank != subs.RankNone {
			return root
		}
		// Reserve the copy before descending so a recursive skeleton maps
		// back to it instead of looping.
		fresh := st.FreshUnbound(rank)
		table[root] = fresh
		t := types.MapVars(c.T, func(inner types.Variable) types.Variable {
			return copyVar(st, rank, inner, table)
		})
		st.Set(fresh, subs.Bound{T: t, Rank: rank})
		return fresh
	}
	panic(fmt.Sprintf("solve: instantiate: redirect escaped resolve for %s", v))
}

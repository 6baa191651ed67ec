package subs

import "github.com/ternlang/tern/internal/types"

// VarStore mints globally-unique type variables before solving begins.
// Canonicalization and the constraint builder draw from one VarStore; the
// solve store is then sized from its final count, so every pre-minted
// variable has an entry.
type VarStore struct {
	next int32
}

// NewVarStore returns a counter starting at zero.
func NewVarStore() *VarStore {
	return &VarStore{}
}

// Fresh mints the next variable.
func (vs *VarStore) Fresh() types.Variable {
	v := types.Variable(vs.next)
	vs.next++
	return v
}

// FreshN mints n variables and returns them in order.
func (vs *VarStore) FreshN(n int) []types.Variable {
	out := make([]types.Variable, n)
	for i := range out {
		out[i] = vs.Fresh()
	}
	return out
}

// Peek returns how many variables have been minted.
func (vs *VarStore) Peek() int32 {
	return vs.next
}

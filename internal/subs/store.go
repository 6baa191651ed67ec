// Package subs implements the substitution store: a union-find arena mapping
// type variables to their current content. The solver mutates it in place;
// snapshot/rollback supports speculative unification. One store belongs to
// exactly one module's solve pass and is never shared across goroutines.
package subs

import (
	"fmt"

	"github.com/ternlang/tern/internal/symbols"
	"github.com/ternlang/tern/internal/types"
)

// Rank records the let-nesting depth at which a variable was created. It
// decides generalization: at a let boundary, unbound variables whose rank is
// at least the boundary's rank become quantified.
type Rank int32

const (
	// RankNone marks a generalized variable. Instantiation copies content
	// at this rank; everything else is shared.
	RankNone Rank = 0

	// RankTopLevel is the module's outermost scope.
	RankTopLevel Rank = 1
)

// Next returns the rank one let-level deeper.
func (r Rank) Next() Rank { return r + 1 }

func (r Rank) String() string {
	if r == RankNone {
		return "generalized"
	}
	return fmt.Sprintf("rank%d", int32(r))
}

// Content is what a variable currently resolves to: one of Unbound, Bound,
// or Redirect. Following Redirect chains always terminates at an Unbound or
// Bound root.
type Content interface {
	contentVariant()
}

// Unbound is a variable with no concrete shape yet. Rigidity and ability
// bounds are properties of unbound variables only; binding discharges them.
type Unbound struct {
	Rank  Rank
	Rigid bool
	Name  string         // user-written name; "" for anonymous flex vars
	Able  symbols.Symbol // ability bound; NoSymbol when unbounded
}

// Bound is a variable resolved to a type skeleton. The skeleton may mention
// other variables. Rank tracks the shallowest scope the skeleton is visible
// from; generalization rewrites it to RankNone, and instantiation copies only
// RankNone content.
type Bound struct {
	T    types.Type
	Rank Rank
}

// Redirect says this variable was unified into another.
type Redirect struct {
	To types.Variable
}

func (Unbound) contentVariant()  {}
func (Bound) contentVariant()    {}
func (Redirect) contentVariant() {}

type undoRecord struct {
	v    types.Variable
	prev Content
}

type snapState struct {
	entries int
	log     int
}

// Store is the substitution arena. Variables are indices into entries.
type Store struct {
	entries []Content
	log     []undoRecord
	snaps   []snapState
}

// NewStore returns an empty store.
func NewStore() *Store {
	return &Store{}
}

// FromVarStore returns a store with one entry per variable the counter has
// minted so far. Entries start unbound and flexible at the top-level rank;
// the solver re-ranks them as Let constraints introduce them.
func FromVarStore(vs *VarStore) *Store {
	n := int(vs.Peek())
	st := &Store{entries: make([]Content, n)}
	for i := range st.entries {
		st.entries[i] = Unbound{Rank: RankTopLevel}
	}
	return st
}

// Len returns the number of allocated variables.
func (st *Store) Len() int {
	return len(st.entries)
}

// Fresh allocates a new variable with the given content.
func (st *Store) Fresh(c Content) types.Variable {
	v := types.Variable(len(st.entries))
	st.entries = append(st.entries, c)
	return v
}

// FreshUnbound allocates an anonymous flexible variable at rank.
func (st *Store) FreshUnbound(rank Rank) types.Variable {
	return st.Fresh(Unbound{Rank: rank})
}

// FreshBound allocates a variable already bound to t at the top-level rank.
func (st *Store) FreshBound(t types.Type) types.Variable {
	return st.Fresh(Bound{T: t, Rank: RankTopLevel})
}

// FreshBoundAt allocates a variable already bound to t at rank.
func (st *Store) FreshBoundAt(rank Rank, t types.Type) types.Variable {
	return st.Fresh(Bound{T: t, Rank: rank})
}

// Content returns v's raw content without following redirects.
func (st *Store) Content(v types.Variable) Content {
	if int(v) < 0 || int(v) >= len(st.entries) {
		panic(fmt.Sprintf("subs: variable %s out of range (store has %d)", v, len(st.entries)))
	}
	return st.entries[v]
}

// Root follows redirects to the canonical representative, compressing the
// path as it goes. Compression is logged like any other write so rollback
// stays exact.
func (st *Store) Root(v types.Variable) types.Variable {
	root := v
	for {
		r, ok := st.Content(root).(Redirect)
		if !ok {
			break
		}
		root = r.To
	}
	// Second pass: point every link on the walked chain at the root.
	for v != root {
		next := st.Content(v).(Redirect).To
		if next != root {
			st.Set(v, Redirect{To: root})
		}
		v = next
	}
	return root
}

// Resolve returns v's root and the content stored there. The content is
// never a Redirect.
func (st *Store) Resolve(v types.Variable) (types.Variable, Content) {
	root := st.Root(v)
	return root, st.Content(root)
}

// Set overwrites v's content, recording the previous content while a
// snapshot is open.
func (st *Store) Set(v types.Variable, c Content) {
	if len(st.snaps) > 0 {
		st.log = append(st.log, undoRecord{v: v, prev: st.entries[v]})
	}
	st.entries[v] = c
}

// Merge unifies from into into: from becomes a redirect and into receives
// the merged content. Callers decide the content (min-ranked Unbound for
// variable merges, the unified skeleton for structural merges).
func (st *Store) Merge(into, from types.Variable, c Content) {
	if into == from {
		st.Set(into, c)
		return
	}
	st.Set(from, Redirect{To: into})
	st.Set(into, c)
}

// Introduce re-ranks the given variables' unbound roots to rank. Let solving
// calls this for rigid and flex variable lists when entering the binding
// scope.
func (st *Store) Introduce(rank Rank, vars ...types.Variable) {
	for _, v := range vars {
		root, content := st.Resolve(v)
		if u, ok := content.(Unbound); ok {
			u.Rank = rank
			st.Set(root, u)
		}
	}
}

// Snapshot marks the current state for speculative unification.
type Snapshot struct {
	idx int
}

// Snapshot opens a new snapshot. Snapshots nest; roll back or commit in
// reverse order of opening.
func (st *Store) Snapshot() Snapshot {
	st.snaps = append(st.snaps, snapState{entries: len(st.entries), log: len(st.log)})
	return Snapshot{idx: len(st.snaps) - 1}
}

// Rollback undoes every change made since the snapshot, including variable
// allocations.
func (st *Store) Rollback(s Snapshot) {
	state := st.popTo(s)
	for i := len(st.log) - 1; i >= state.log; i-- {
		rec := st.log[i]
		st.entries[rec.v] = rec.prev
	}
	st.log = st.log[:state.log]
	st.entries = st.entries[:state.entries]
}

// Commit keeps every change made since the snapshot.
func (st *Store) Commit(s Snapshot) {
	state := st.popTo(s)
	st.log = st.log[:state.log]
}

func (st *Store) popTo(s Snapshot) snapState {
	if s.idx != len(st.snaps)-1 {
		panic(fmt.Sprintf("subs: snapshot %d closed out of order (%d open)", s.idx, len(st.snaps)))
	}
	state := st.snaps[s.idx]
	st.snaps = st.snaps[:s.idx]
	return state
}

// RankOf returns the rank of v's root if it is unbound, or RankNone.
func (st *Store) RankOf(v types.Variable) Rank {
	if _, content := st.Resolve(v); content != nil {
		if u, ok := content.(Unbound); ok {
			return u.Rank
		}
	}
	return RankNone
}

// IsUnbound reports whether v's root has no concrete shape.
func (st *Store) IsUnbound(v types.Variable) bool {
	_, content := st.Resolve(v)
	_, ok := content.(Unbound)
	return ok
}

package subs

import "github.com/ternlang/tern/internal/types"

// StorageStore is a standalone arena holding types copied out of a module's
// private store. Exported symbols' generalized types live here between
// compiles: an importing module restores them into its own store and never
// shares live variables with the exporter.
type StorageStore struct {
	Store *Store
}

// NewStorageStore returns an empty storage arena.
func NewStorageStore() *StorageStore {
	return &StorageStore{Store: NewStore()}
}

// Extract deep-copies v's resolved graph from src into the storage arena and
// returns the storage-local handle. Content is preserved verbatim: rigidity,
// names, ability bounds, and the generalized rank marking.
func (ss *StorageStore) Extract(src *Store, v types.Variable) types.Variable {
	return copyAcross(src, ss.Store, v, make(map[types.Variable]types.Variable))
}

// Restore deep-copies a stored graph into dst and returns the dst-local
// handle. Each Restore call makes an independent copy, so two importers (or
// two imports by one module) cannot unify through the artifact.
func (ss *StorageStore) Restore(dst *Store, v types.Variable) types.Variable {
	return copyAcross(ss.Store, dst, v, make(map[types.Variable]types.Variable))
}

// copyAcross copies the graph rooted at v between stores. The table carries
// already-copied roots so shared subtrees stay shared and recursive types
// terminate: the destination slot is reserved before descending.
func copyAcross(src, dst *Store, v types.Variable, table map[types.Variable]types.Variable) types.Variable {
	root, content := src.Resolve(v)
	if copied, ok := table[root]; ok {
		return copied
	}
	fresh := dst.Fresh(Unbound{Rank: RankNone})
	table[root] = fresh

	switch c := content.(type) {
	case Unbound:
		dst.Set(fresh, c)
	case Bound:
		t := types.MapVars(c.T, func(inner types.Variable) types.Variable {
			return copyAcross(src, dst, inner, table)
		})
		dst.Set(fresh, Bound{T: t, Rank: c.Rank})
	default:
		panic("subs: copyAcross: resolve returned a redirect")
	}
	return fresh
}

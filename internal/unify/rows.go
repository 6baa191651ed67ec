package unify

import (
	"github.com/ternlang/tern/internal/subs"
	"github.com/ternlang/tern/internal/types"
)

// Row unification. Both sides are flattened to a field (or tag) map plus a
// final extension, shared entries unify pairwise, and entries unique to one
// side are pushed into the other side's extension. When both sides have
// unique entries they meet in a fresh shared extension, which is how two
// partial views of the same record grow toward each other.

func (u *unifier) recordish(ta, tb types.Type) (types.Type, bool) {
	fieldsA, extA, ok := u.asRecord(ta)
	if !ok {
		return nil, false
	}
	fieldsB, extB, ok := u.asRecord(tb)
	if !ok {
		return nil, false
	}

	merged := make(map[string]types.Type)
	uniqueA := make(map[string]types.Type)
	uniqueB := make(map[string]types.Type)
	for _, name := range types.SortedFieldNames(fieldsA) {
		fa := fieldsA[name]
		fb, shared := fieldsB[name]
		if !shared {
			uniqueA[name] = fa
			continue
		}
		m, ok := u.structures(fa, fb)
		if !ok {
			return nil, false
		}
		merged[name] = m
	}
	for _, name := range types.SortedFieldNames(fieldsB) {
		if _, shared := fieldsA[name]; !shared {
			uniqueB[name] = fieldsB[name]
		}
	}

	ext, ok := extendRows(u, extA, extB, uniqueA, uniqueB,
		func(fields map[string]types.Type, ext types.Type) types.Type {
			return types.TRecord{Fields: fields, Ext: ext}
		})
	if !ok {
		return nil, false
	}
	for name, t := range uniqueA {
		merged[name] = t
	}
	for name, t := range uniqueB {
		merged[name] = t
	}
	if len(merged) == 0 {
		if _, closed := ext.(types.TEmptyRecord); closed {
			return types.TEmptyRecord{}, true
		}
	}
	return types.TRecord{Fields: merged, Ext: ext}, true
}

func (u *unifier) asRecord(t types.Type) (map[string]types.Type, types.Type, bool) {
	switch r := t.(type) {
	case types.TRecord:
		fields, ext := subs.FlattenRecord(u.st, r)
		return fields, ext, true
	case types.TEmptyRecord:
		return map[string]types.Type{}, types.TEmptyRecord{}, true
	}
	return nil, nil, false
}

func (u *unifier) unionish(ta, tb types.Type) (types.Type, bool) {
	tagsA, extA, recA, ok := u.asTagUnion(ta)
	if !ok {
		return nil, false
	}
	tagsB, extB, recB, ok := u.asTagUnion(tb)
	if !ok {
		return nil, false
	}
	if recA != types.NoVariable && recB != types.NoVariable {
		if !u.vars(recA, recB) {
			return nil, false
		}
	}

	merged := make(map[string][]types.Type)
	uniqueA := make(map[string][]types.Type)
	uniqueB := make(map[string][]types.Type)
	for _, name := range types.SortedTagNames(tagsA) {
		pa := tagsA[name]
		pb, shared := tagsB[name]
		if !shared {
			uniqueA[name] = pa
			continue
		}
		if len(pa) != len(pb) {
			return nil, false
		}
		ps, ok := u.pairwise(pa, pb)
		if !ok {
			return nil, false
		}
		merged[name] = ps
	}
	for _, name := range types.SortedTagNames(tagsB) {
		if _, shared := tagsA[name]; !shared {
			uniqueB[name] = tagsB[name]
		}
	}

	ext, ok := extendRows(u, extA, extB, uniqueA, uniqueB,
		func(tags map[string][]types.Type, ext types.Type) types.Type {
			return types.TTagUnion{Tags: tags, Ext: ext}
		})
	if !ok {
		return nil, false
	}
	for name, ps := range uniqueA {
		merged[name] = ps
	}
	for name, ps := range uniqueB {
		merged[name] = ps
	}

	rec := recA
	if rec == types.NoVariable {
		rec = recB
	}
	if rec != types.NoVariable {
		return types.TRecUnion{Rec: rec, Tags: merged, Ext: ext}, true
	}
	if len(merged) == 0 {
		if _, closed := ext.(types.TEmptyTagUnion); closed {
			return types.TEmptyTagUnion{}, true
		}
	}
	return types.TTagUnion{Tags: merged, Ext: ext}, true
}

func (u *unifier) asTagUnion(t types.Type) (map[string][]types.Type, types.Type, types.Variable, bool) {
	switch tu := t.(type) {
	case types.TTagUnion:
		tags, ext := subs.FlattenTagUnion(u.st, tu.Tags, tu.Ext)
		return tags, ext, types.NoVariable, true
	case types.TRecUnion:
		tags, ext := subs.FlattenTagUnion(u.st, tu.Tags, tu.Ext)
		return tags, ext, tu.Rec, true
	case types.TEmptyTagUnion:
		return map[string][]types.Type{}, types.TEmptyTagUnion{}, types.NoVariable, true
	}
	return nil, nil, types.NoVariable, false
}

// extendRows unifies the two extensions, pushing each side's unique entries
// into the other side's extension. rebuild packages a unique-entry map and
// an extension back into a row type of the right flavor, covering both row
// kinds with one set of ext rules.
func extendRows[E any](
	u *unifier,
	extA, extB types.Type,
	uniqueA, uniqueB map[string]E,
	rebuild func(map[string]E, types.Type) types.Type,
) (types.Type, bool) {
	switch {
	case len(uniqueA) == 0 && len(uniqueB) == 0:
		ext, ok := u.structures(extA, extB)
		if !ok {
			return nil, false
		}
		return ext, true
	case len(uniqueB) == 0:
		// A closed extension cannot absorb the other side's entries; without
		// this check the closed marker bounces against the rebuilt row
		// forever instead of reporting the missing entries.
		if closedRow(extB) {
			return nil, false
		}
		if _, ok := u.structures(extB, rebuild(uniqueA, extA)); !ok {
			return nil, false
		}
		return extA, true
	case len(uniqueA) == 0:
		if closedRow(extA) {
			return nil, false
		}
		if _, ok := u.structures(extA, rebuild(uniqueB, extB)); !ok {
			return nil, false
		}
		return extB, true
	default:
		if closedRow(extA) || closedRow(extB) {
			return nil, false
		}
		shared := types.TVar{V: u.st.FreshUnbound(u.rank)}
		if _, ok := u.structures(extA, rebuild(uniqueB, shared)); !ok {
			return nil, false
		}
		if _, ok := u.structures(extB, rebuild(uniqueA, shared)); !ok {
			return nil, false
		}
		return shared, true
	}
}

func closedRow(t types.Type) bool {
	switch t.(type) {
	case types.TEmptyRecord, types.TEmptyTagUnion:
		return true
	}
	return false
}

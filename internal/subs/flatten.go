package subs

import "github.com/ternlang/tern/internal/types"

// Row extensions can resolve to further rows (a record whose ext is another
// record, through any chain of variables and structural aliases). Flattening
// merges the chain into one field map plus a final extension, which is what
// unification and error rendering both want to see.
//
// The returned extension is one of: types.TEmptyRecord / types.TEmptyTagUnion
// (closed), types.TVar (open), types.TError, or whatever non-row type the
// chain ran into (a shape error the caller reports).

// FlattenRecord merges rec's extension chain. Inner occurrences of a field
// shadow outer ones, matching how row concatenation reads.
func FlattenRecord(st *Store, rec types.TRecord) (map[string]types.Type, types.Type) {
	fields := make(map[string]types.Type, len(rec.Fields))
	for name, t := range rec.Fields {
		fields[name] = t
	}
	ext := rec.Ext
	for {
		switch e := ext.(type) {
		case types.TRecord:
			for name, t := range e.Fields {
				if _, seen := fields[name]; !seen {
					fields[name] = t
				}
			}
			ext = e.Ext
			continue
		case types.TEmptyRecord, types.TError:
			return fields, ext
		case types.TAlias:
			if e.Kind == types.AliasStructural {
				ext = e.Real
				continue
			}
			return fields, ext
		case types.TVar:
			root, content := st.Resolve(e.V)
			if b, ok := content.(Bound); ok {
				ext = b.T
				continue
			}
			return fields, types.TVar{V: root}
		default:
			return fields, ext
		}
	}
}

// FlattenTagUnion merges a tag union's extension chain the same way.
func FlattenTagUnion(st *Store, tags map[string][]types.Type, ext types.Type) (map[string][]types.Type, types.Type) {
	merged := make(map[string][]types.Type, len(tags))
	for name, args := range tags {
		merged[name] = args
	}
	for {
		switch e := ext.(type) {
		case types.TTagUnion:
			for name, args := range e.Tags {
				if _, seen := merged[name]; !seen {
					merged[name] = args
				}
			}
			ext = e.Ext
			continue
		case types.TRecUnion:
			for name, args := range e.Tags {
				if _, seen := merged[name]; !seen {
					merged[name] = args
				}
			}
			ext = e.Ext
			continue
		case types.TEmptyTagUnion, types.TError:
			return merged, ext
		case types.TAlias:
			if e.Kind == types.AliasStructural {
				ext = e.Real
				continue
			}
			return merged, ext
		case types.TVar:
			root, content := st.Resolve(e.V)
			if b, ok := content.(Bound); ok {
				ext = b.T
				continue
			}
			return merged, types.TVar{V: root}
		default:
			return merged, ext
		}
	}
}

package abilities

import (
	"github.com/ternlang/tern/internal/problem"
	"github.com/ternlang/tern/internal/subs"
	"github.com/ternlang/tern/internal/symbols"
	"github.com/ternlang/tern/internal/types"
)

type headKind uint8

const (
	headOpaque headKind = iota
	headStructural
	headUnbound
	headError
)

// nominalHead is the outermost named constructor of a type, found by peeling
// structural aliases and following bound variables.
type nominalHead struct {
	kind   headKind
	opaque symbols.Symbol
	real   types.Type
}

func headOf(st *subs.Store, v types.Variable) nominalHead {
	return headOfType(st, types.TVar{V: v}, make(map[types.Variable]bool))
}

func headOfType(st *subs.Store, t types.Type, seen map[types.Variable]bool) nominalHead {
	for {
		switch tt := t.(type) {
		case types.TVar:
			root, content := st.Resolve(tt.V)
			if seen[root] {
				return nominalHead{kind: headStructural}
			}
			seen[root] = true
			switch c := content.(type) {
			case subs.Unbound:
				return nominalHead{kind: headUnbound}
			case subs.Bound:
				t = c.T
				continue
			}
			return nominalHead{kind: headError}
		case types.TRecMarker:
			t = types.TVar{V: tt.Structure}
		case types.TAlias:
			if tt.Kind == types.AliasOpaque {
				return nominalHead{kind: headOpaque, opaque: tt.Symbol, real: tt.Real}
			}
			t = tt.Real
		case types.TError:
			return nominalHead{kind: headError}
		default:
			return nominalHead{kind: headStructural}
		}
	}
}

// Resolve picks the specialization of member for the concrete receiver type.
// Only opaque types carry implementations; a structural receiver is reported
// as unfulfilled even when a derivation exists for it, because there is no
// named symbol to dispatch to.
//
// A NoSymbol result with a nil Unfulfilled means the receiver is still
// unbound or already erroneous; the caller skips it.
func Resolve(st *subs.Store, reg *Store, d *Deriver, member symbols.Symbol, receiver types.Variable) (symbols.Symbol, problem.Unfulfilled) {
	data, ok := reg.Member(member)
	if !ok {
		panic("abilities: resolving a symbol that is not an ability member")
	}
	head := headOf(st, receiver)
	switch head.kind {
	case headUnbound, headError:
		return symbols.NoSymbol, nil
	case headOpaque:
		impl, ok := reg.Implementation(head.opaque, data.Ability)
		if !ok {
			return symbols.NoSymbol, problem.OpaqueDoesNotImplement{Typ: head.opaque, Ability: data.Ability}
		}
		switch impl.Kind {
		case ImplMembers:
			spec, ok := impl.Members[member]
			if !ok {
				return symbols.NoSymbol, problem.OpaqueDoesNotImplement{Typ: head.opaque, Ability: data.Ability}
			}
			return spec, nil
		case ImplDerived:
			if reason := d.DerivableType(st, data.Ability, head.real); reason != nil {
				return symbols.NoSymbol, problem.OpaqueUnderivable{
					Typ:          subs.ErrorTypeOf(st, receiver),
					Ability:      data.Ability,
					Opaque:       head.opaque,
					DeriveRegion: impl.DeriveRegion,
					Reason:       *reason,
				}
			}
			return impl.DerivedName, nil
		}
		return symbols.NoSymbol, nil
	default:
		reason := d.Derivable(st, data.Ability, receiver)
		if reason == nil {
			reason = &problem.UnderivableReason{Kind: problem.UnderivableSurface, Context: problem.DeriveNoContext}
		}
		return symbols.NoSymbol, problem.AdhocUnderivable{
			Typ:     subs.ErrorTypeOf(st, receiver),
			Ability: data.Ability,
			Reason:  *reason,
		}
	}
}

// CheckObligation verifies that the concrete type an able variable was bound
// to actually satisfies the ability. Unlike Resolve it accepts structural
// types whenever a derivation exists: the obligation does not need a symbol,
// only a proof.
func CheckObligation(st *subs.Store, reg *Store, d *Deriver, concrete types.Variable, ability symbols.Symbol) problem.Unfulfilled {
	head := headOf(st, concrete)
	switch head.kind {
	case headUnbound, headError:
		return nil
	case headOpaque:
		impl, ok := reg.Implementation(head.opaque, ability)
		if !ok {
			return problem.OpaqueDoesNotImplement{Typ: head.opaque, Ability: ability}
		}
		if impl.Kind == ImplDerived {
			if reason := d.DerivableType(st, ability, head.real); reason != nil {
				return problem.OpaqueUnderivable{
					Typ:          subs.ErrorTypeOf(st, concrete),
					Ability:      ability,
					Opaque:       head.opaque,
					DeriveRegion: impl.DeriveRegion,
					Reason:       *reason,
				}
			}
		}
		return nil
	default:
		if reason := d.Derivable(st, ability, concrete); reason != nil {
			return problem.AdhocUnderivable{
				Typ:     subs.ErrorTypeOf(st, concrete),
				Ability: ability,
				Reason:  *reason,
			}
		}
		return nil
	}
}

package abilities

import (
	"testing"

	"github.com/ternlang/tern/internal/problem"
	"github.com/ternlang/tern/internal/region"
	"github.com/ternlang/tern/internal/subs"
	"github.com/ternlang/tern/internal/symbols"
	"github.com/ternlang/tern/internal/types"
)

func testDeriver(t *testing.T) *Deriver {
	t.Helper()
	return NewDeriver(DefaultConfig())
}

func TestDerivable(t *testing.T) {
	tests := []struct {
		name    string
		ability symbols.Symbol
		build   func(st *subs.Store) types.Variable
		wantCtx problem.NotDerivableContext
		wantErr bool
	}{
		{
			name:    "U64 hashes",
			ability: symbols.SymAbilityHash,
			build: func(st *subs.Store) types.Variable {
				return st.FreshBound(types.TPrim{Name: "U64"})
			},
		},
		{
			name:    "Str compares",
			ability: symbols.SymAbilityEq,
			build: func(st *subs.Store) types.Variable {
				return st.FreshBound(types.TPrim{Name: "Str"})
			},
		},
		{
			name:    "F64 refuses Eq",
			ability: symbols.SymAbilityEq,
			build: func(st *subs.Store) types.Variable {
				return st.FreshBound(types.TPrim{Name: "F64"})
			},
			wantErr: true,
			wantCtx: problem.DeriveFloatEq,
		},
		{
			name:    "F64 still hashes",
			ability: symbols.SymAbilityHash,
			build: func(st *subs.Store) types.Variable {
				return st.FreshBound(types.TPrim{Name: "F64"})
			},
		},
		{
			name:    "Nat refuses Hash",
			ability: symbols.SymAbilityHash,
			build: func(st *subs.Store) types.Variable {
				return st.FreshBound(types.TPrim{Name: "Nat"})
			},
			wantErr: true,
			wantCtx: problem.DeriveNat,
		},
		{
			name:    "Nat compares",
			ability: symbols.SymAbilityEq,
			build: func(st *subs.Store) types.Variable {
				return st.FreshBound(types.TPrim{Name: "Nat"})
			},
		},
		{
			name:    "unpinned literal counts as a number",
			ability: symbols.SymAbilityEq,
			build: func(st *subs.Store) types.Variable {
				return st.FreshBound(types.TNumRange{Bound: types.IntBound(42)})
			},
		},
		{
			name:    "function refuses everything",
			ability: symbols.SymAbilityEq,
			build: func(st *subs.Store) types.Variable {
				return st.FreshBound(types.TFunc{
					Args:    []types.Type{types.TPrim{Name: "U64"}},
					Closure: types.TVar{V: st.FreshUnbound(subs.RankTopLevel)},
					Ret:     types.TPrim{Name: "U64"},
				})
			},
			wantErr: true,
			wantCtx: problem.DeriveFunction,
		},
		{
			name:    "closed record of scalars",
			ability: symbols.SymAbilityEq,
			build: func(st *subs.Store) types.Variable {
				return st.FreshBound(types.TRecord{
					Fields: map[string]types.Type{
						"x": types.TPrim{Name: "I64"},
						"y": types.TPrim{Name: "Str"},
					},
					Ext: types.TEmptyRecord{},
				})
			},
		},
		{
			name:    "open record is fine while the tail is unbound",
			ability: symbols.SymAbilityEq,
			build: func(st *subs.Store) types.Variable {
				return st.FreshBound(types.TRecord{
					Fields: map[string]types.Type{"x": types.TPrim{Name: "I64"}},
					Ext:    types.TVar{V: st.FreshUnbound(subs.RankTopLevel)},
				})
			},
		},
		{
			name:    "tag union payloads are checked",
			ability: symbols.SymAbilityEq,
			build: func(st *subs.Store) types.Variable {
				return st.FreshBound(types.TTagUnion{
					Tags: map[string][]types.Type{
						"Ok":  {types.TPrim{Name: "Str"}},
						"Err": {},
					},
					Ext: types.TEmptyTagUnion{},
				})
			},
		},
		{
			name:    "tag union refuses Default",
			ability: symbols.SymAbilityDefault,
			build: func(st *subs.Store) types.Variable {
				return st.FreshBound(types.TTagUnion{
					Tags: map[string][]types.Type{"None": {}},
					Ext:  types.TEmptyTagUnion{},
				})
			},
			wantErr: true,
			wantCtx: problem.DeriveNoContext,
		},
		{
			name:    "list of derivable elements",
			ability: symbols.SymAbilityHash,
			build: func(st *subs.Store) types.Variable {
				return st.FreshBound(types.TApply{
					Symbol: symbols.SymList,
					Args:   []types.Type{types.TPrim{Name: "Str"}},
				})
			},
		},
		{
			name:    "bare unbound variable",
			ability: symbols.SymAbilityEq,
			build: func(st *subs.Store) types.Variable {
				return st.FreshUnbound(subs.RankTopLevel)
			},
			wantErr: true,
			wantCtx: problem.DeriveUnboundVar,
		},
		{
			name:    "able variable bounded by the same ability",
			ability: symbols.SymAbilityEq,
			build: func(st *subs.Store) types.Variable {
				return st.Fresh(subs.Unbound{Rank: subs.RankTopLevel, Able: symbols.SymAbilityEq})
			},
		},
		{
			name:    "structural alias is transparent",
			ability: symbols.SymAbilityEq,
			build: func(st *subs.Store) types.Variable {
				interns := symbols.NewInterns()
				mod := interns.AddModule("Main")
				return st.FreshBound(types.TAlias{
					Symbol: interns.Symbol(mod, "Point"),
					Real: types.TRecord{
						Fields: map[string]types.Type{"x": types.TPrim{Name: "I64"}},
						Ext:    types.TEmptyRecord{},
					},
					Kind: types.AliasStructural,
				})
			},
		},
		{
			name:    "opaque does not derive structurally",
			ability: symbols.SymAbilityEq,
			build: func(st *subs.Store) types.Variable {
				interns := symbols.NewInterns()
				mod := interns.AddModule("Main")
				return st.FreshBound(types.TAlias{
					Symbol: interns.Symbol(mod, "Id"),
					Real:   types.TPrim{Name: "U64"},
					Kind:   types.AliasOpaque,
				})
			},
			wantErr: true,
			wantCtx: problem.DeriveOpaque,
		},
		{
			name:    "error type derives anything",
			ability: symbols.SymAbilityDefault,
			build: func(st *subs.Store) types.Variable {
				return st.FreshBound(types.TError{})
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			st := subs.NewStore()
			d := testDeriver(t)
			v := tt.build(st)
			reason := d.Derivable(st, tt.ability, v)
			if !tt.wantErr {
				if reason != nil {
					t.Fatalf("Derivable() = %+v, want nil", reason)
				}
				return
			}
			if reason == nil {
				t.Fatal("Derivable() = nil, want a refusal")
			}
			if reason.Context != tt.wantCtx {
				t.Errorf("reason.Context = %v, want %v", reason.Context, tt.wantCtx)
			}
		})
	}
}

func TestDerivableSurfaceVersusNested(t *testing.T) {
	st := subs.NewStore()
	d := testDeriver(t)

	// The offending function at the surface.
	fn := types.TFunc{
		Args:    []types.Type{types.TPrim{Name: "U64"}},
		Closure: types.TVar{V: st.FreshUnbound(subs.RankTopLevel)},
		Ret:     types.TPrim{Name: "U64"},
	}
	surface := d.Derivable(st, symbols.SymAbilityEq, st.FreshBound(fn))
	if surface == nil || surface.Kind != problem.UnderivableSurface {
		t.Fatalf("surface refusal Kind = %+v, want UnderivableSurface", surface)
	}

	// The same function buried in a record field.
	buried := d.Derivable(st, symbols.SymAbilityEq, st.FreshBound(types.TRecord{
		Fields: map[string]types.Type{"callback": fn},
		Ext:    types.TEmptyRecord{},
	}))
	if buried == nil || buried.Kind != problem.UnderivableNested {
		t.Fatalf("nested refusal Kind = %+v, want UnderivableNested", buried)
	}
	if buried.Context != problem.DeriveFunction {
		t.Errorf("nested refusal Context = %v, want DeriveFunction", buried.Context)
	}
}

func TestDerivableUnknownAbility(t *testing.T) {
	st := subs.NewStore()
	d := testDeriver(t)
	interns := symbols.NewInterns()
	mod := interns.AddModule("Main")

	reason := d.Derivable(st, interns.Symbol(mod, "Sortable"), st.FreshBound(types.TPrim{Name: "U64"}))
	if reason == nil || reason.Kind != problem.UnderivableNotABuiltin {
		t.Fatalf("Derivable() on a user ability = %+v, want UnderivableNotABuiltin", reason)
	}
}

func TestDerivableRecursiveUnion(t *testing.T) {
	st := subs.NewStore()
	d := testDeriver(t)

	// [Cons Str rec, Nil] as the occurs pass would leave it: the union bound
	// at one variable, the payload referring back through a marker.
	rec := st.FreshUnbound(subs.RankTopLevel)
	union := st.FreshBound(types.TRecUnion{
		Rec: rec,
		Tags: map[string][]types.Type{
			"Cons": {types.TPrim{Name: "Str"}, types.TVar{V: rec}},
			"Nil":  {},
		},
		Ext: types.TEmptyTagUnion{},
	})
	st.Set(rec, subs.Bound{T: types.TRecMarker{Structure: union}})

	if reason := d.Derivable(st, symbols.SymAbilityEq, union); reason != nil {
		t.Fatalf("recursive union should derive Eq, got %+v", reason)
	}
}

func buildOpaque(st *subs.Store, interns *symbols.Interns, name string, real types.Type) (types.Variable, symbols.Symbol) {
	mod := interns.AddModule("Main")
	sym := interns.Symbol(mod, name)
	v := st.FreshBound(types.TAlias{Symbol: sym, Real: real, Kind: types.AliasOpaque})
	return v, sym
}

func TestResolve(t *testing.T) {
	interns := symbols.NewInterns()
	mod := interns.AddModule("Main")
	member := symbols.SymMemberHash

	newWorld := func(t *testing.T) (*subs.Store, *Store, *Deriver) {
		t.Helper()
		st := subs.NewStore()
		reg := NewStore()
		reg.RegisterMember(member, MemberData{Ability: symbols.SymAbilityHash})
		return st, reg, testDeriver(t)
	}

	t.Run("member implementation wins", func(t *testing.T) {
		st, reg, d := newWorld(t)
		recv, opaque := buildOpaque(st, interns, "Id", types.TPrim{Name: "U64"})
		spec := interns.Symbol(mod, "hash#Id")
		reg.RegisterMemberImpl(opaque, member, spec)

		got, unfulfilled := Resolve(st, reg, d, member, recv)
		if unfulfilled != nil {
			t.Fatalf("Resolve() unfulfilled = %+v, want nil", unfulfilled)
		}
		if got != spec {
			t.Errorf("Resolve() = %v, want %v", got, spec)
		}
	})

	t.Run("no implementation at all", func(t *testing.T) {
		st, reg, d := newWorld(t)
		recv, opaque := buildOpaque(st, interns, "Id", types.TPrim{Name: "U64"})

		got, unfulfilled := Resolve(st, reg, d, member, recv)
		if got != symbols.NoSymbol {
			t.Errorf("Resolve() = %v, want NoSymbol", got)
		}
		missing, ok := unfulfilled.(problem.OpaqueDoesNotImplement)
		if !ok {
			t.Fatalf("unfulfilled = %T, want OpaqueDoesNotImplement", unfulfilled)
		}
		if missing.Typ != opaque || missing.Ability != symbols.SymAbilityHash {
			t.Errorf("OpaqueDoesNotImplement = %+v", missing)
		}
	})

	t.Run("derived implementation succeeds", func(t *testing.T) {
		st, reg, d := newWorld(t)
		recv, opaque := buildOpaque(st, interns, "Id", types.TPrim{Name: "U64"})
		derived := interns.Symbol(mod, "#Id_hash")
		reg.RegisterDerived(opaque, symbols.SymAbilityHash, derived, region.New(3, 9))

		got, unfulfilled := Resolve(st, reg, d, member, recv)
		if unfulfilled != nil {
			t.Fatalf("Resolve() unfulfilled = %+v, want nil", unfulfilled)
		}
		if got != derived {
			t.Errorf("Resolve() = %v, want the synthesized symbol", got)
		}
	})

	t.Run("derived implementation fails on the real type", func(t *testing.T) {
		st, reg, d := newWorld(t)
		recv, opaque := buildOpaque(st, interns, "Key", types.TPrim{Name: "Nat"})
		reg.RegisterDerived(opaque, symbols.SymAbilityHash, interns.Symbol(mod, "#Key_hash"), region.New(3, 9))

		got, unfulfilled := Resolve(st, reg, d, member, recv)
		if got != symbols.NoSymbol {
			t.Errorf("Resolve() = %v, want NoSymbol", got)
		}
		under, ok := unfulfilled.(problem.OpaqueUnderivable)
		if !ok {
			t.Fatalf("unfulfilled = %T, want OpaqueUnderivable", unfulfilled)
		}
		if under.Opaque != opaque {
			t.Errorf("under.Opaque = %v, want %v", under.Opaque, opaque)
		}
		if under.DeriveRegion != region.New(3, 9) {
			t.Errorf("under.DeriveRegion = %v, want the derive clause", under.DeriveRegion)
		}
		if under.Reason.Context != problem.DeriveNat {
			t.Errorf("under.Reason.Context = %v, want DeriveNat", under.Reason.Context)
		}
	})

	t.Run("structural receiver has no specialization", func(t *testing.T) {
		st, reg, d := newWorld(t)
		recv := st.FreshBound(types.TRecord{
			Fields: map[string]types.Type{"x": types.TPrim{Name: "U64"}},
			Ext:    types.TEmptyRecord{},
		})

		got, unfulfilled := Resolve(st, reg, d, member, recv)
		if got != symbols.NoSymbol {
			t.Errorf("Resolve() = %v, want NoSymbol", got)
		}
		if _, ok := unfulfilled.(problem.AdhocUnderivable); !ok {
			t.Fatalf("unfulfilled = %T, want AdhocUnderivable", unfulfilled)
		}
	})

	t.Run("unbound receiver is skipped", func(t *testing.T) {
		st, reg, d := newWorld(t)
		recv := st.FreshUnbound(subs.RankTopLevel)

		got, unfulfilled := Resolve(st, reg, d, member, recv)
		if got != symbols.NoSymbol || unfulfilled != nil {
			t.Errorf("Resolve() = %v, %+v; want NoSymbol, nil", got, unfulfilled)
		}
	})
}

func TestCheckObligation(t *testing.T) {
	interns := symbols.NewInterns()
	mod := interns.AddModule("Main")

	t.Run("structural type with a derivation passes", func(t *testing.T) {
		st := subs.NewStore()
		reg := NewStore()
		d := testDeriver(t)
		concrete := st.FreshBound(types.TRecord{
			Fields: map[string]types.Type{"x": types.TPrim{Name: "U64"}},
			Ext:    types.TEmptyRecord{},
		})
		if got := CheckObligation(st, reg, d, concrete, symbols.SymAbilityHash); got != nil {
			t.Errorf("CheckObligation() = %+v, want nil", got)
		}
	})

	t.Run("structural type without a derivation fails", func(t *testing.T) {
		st := subs.NewStore()
		reg := NewStore()
		d := testDeriver(t)
		concrete := st.FreshBound(types.TRecord{
			Fields: map[string]types.Type{"ratio": types.TPrim{Name: "F64"}},
			Ext:    types.TEmptyRecord{},
		})
		got := CheckObligation(st, reg, d, concrete, symbols.SymAbilityEq)
		adhoc, ok := got.(problem.AdhocUnderivable)
		if !ok {
			t.Fatalf("CheckObligation() = %T, want AdhocUnderivable", got)
		}
		if adhoc.Reason.Context != problem.DeriveFloatEq {
			t.Errorf("Reason.Context = %v, want DeriveFloatEq", adhoc.Reason.Context)
		}
	})

	t.Run("opaque with member impl passes", func(t *testing.T) {
		st := subs.NewStore()
		reg := NewStore()
		d := testDeriver(t)
		reg.RegisterMember(symbols.SymMemberHash, MemberData{Ability: symbols.SymAbilityHash})
		concrete, opaque := buildOpaque(st, interns, "Id", types.TPrim{Name: "U64"})
		reg.RegisterMemberImpl(opaque, symbols.SymMemberHash, interns.Symbol(mod, "hash#Id"))

		if got := CheckObligation(st, reg, d, concrete, symbols.SymAbilityHash); got != nil {
			t.Errorf("CheckObligation() = %+v, want nil", got)
		}
	})

	t.Run("opaque without impl fails", func(t *testing.T) {
		st := subs.NewStore()
		reg := NewStore()
		d := testDeriver(t)
		concrete, opaque := buildOpaque(st, interns, "Id", types.TPrim{Name: "U64"})

		got := CheckObligation(st, reg, d, concrete, symbols.SymAbilityHash)
		missing, ok := got.(problem.OpaqueDoesNotImplement)
		if !ok {
			t.Fatalf("CheckObligation() = %T, want OpaqueDoesNotImplement", got)
		}
		if missing.Typ != opaque {
			t.Errorf("missing.Typ = %v, want %v", missing.Typ, opaque)
		}
	})

	t.Run("opaque derive is checked against the real type", func(t *testing.T) {
		st := subs.NewStore()
		reg := NewStore()
		d := testDeriver(t)
		concrete, opaque := buildOpaque(st, interns, "Key", types.TFunc{
			Args:    []types.Type{types.TPrim{Name: "U64"}},
			Closure: types.TVar{V: st.FreshUnbound(subs.RankTopLevel)},
			Ret:     types.TPrim{Name: "U64"},
		})
		reg.RegisterDerived(opaque, symbols.SymAbilityEq, interns.Symbol(mod, "#Key_isEq"), region.Region{})

		got := CheckObligation(st, reg, d, concrete, symbols.SymAbilityEq)
		under, ok := got.(problem.OpaqueUnderivable)
		if !ok {
			t.Fatalf("CheckObligation() = %T, want OpaqueUnderivable", got)
		}
		if under.Reason.Context != problem.DeriveFunction {
			t.Errorf("Reason.Context = %v, want DeriveFunction", under.Reason.Context)
		}
	})
}

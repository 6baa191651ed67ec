package unify

import (
	"testing"

	"github.com/ternlang/tern/internal/subs"
	"github.com/ternlang/tern/internal/symbols"
	"github.com/ternlang/tern/internal/types"
)

const testRank = subs.RankTopLevel

func mustUnify(t *testing.T, st *subs.Store, a, b types.Variable) []Obligation {
	t.Helper()
	obs, fail := Unify(st, a, b, testRank)
	if fail != nil {
		t.Fatalf("Unify failed: %s vs %s", fail.Left, fail.Right)
	}
	return obs
}

func mustFail(t *testing.T, st *subs.Store, a, b types.Variable) *Failure {
	t.Helper()
	_, fail := Unify(st, a, b, testRank)
	if fail == nil {
		t.Fatalf("Unify succeeded, want mismatch")
	}
	return fail
}

func boundType(t *testing.T, st *subs.Store, v types.Variable) types.Type {
	t.Helper()
	_, content := st.Resolve(v)
	bound, ok := content.(subs.Bound)
	if !ok {
		t.Fatalf("variable %d resolved to %T, want Bound", v, content)
	}
	return bound.T
}

func TestUnifyFlexFlexTakesMinRank(t *testing.T) {
	st := subs.NewStore()
	a := st.FreshUnbound(3)
	b := st.FreshUnbound(1)

	mustUnify(t, st, a, b)

	rootA, _ := st.Resolve(a)
	rootB, _ := st.Resolve(b)
	if rootA != rootB {
		t.Errorf("roots differ after unify: %d vs %d", rootA, rootB)
	}
	if got := st.RankOf(a); got != 1 {
		t.Errorf("merged rank = %s, want 1", got)
	}
}

func TestUnifyFlexBindsStructure(t *testing.T) {
	st := subs.NewStore()
	a := st.FreshUnbound(testRank)
	s := st.FreshBound(types.TPrim{Name: "Str"})

	mustUnify(t, st, a, s)

	prim, ok := boundType(t, st, a).(types.TPrim)
	if !ok || prim.Name != "Str" {
		t.Errorf("a resolved to %s, want Str", boundType(t, st, a))
	}
}

func TestUnifyIsIdempotent(t *testing.T) {
	st := subs.NewStore()
	a := st.FreshBound(types.TFunc{
		Args:    []types.Type{types.TPrim{Name: "Str"}},
		Closure: types.TVar{V: st.FreshUnbound(testRank)},
		Ret:     types.TVar{V: st.FreshUnbound(testRank)},
	})
	b := st.FreshBound(types.TFunc{
		Args:    []types.Type{types.TVar{V: st.FreshUnbound(testRank)}},
		Closure: types.TVar{V: st.FreshUnbound(testRank)},
		Ret:     types.TPrim{Name: "U8"},
	})

	mustUnify(t, st, a, b)
	before := st.Len()
	mustUnify(t, st, a, b)
	if st.Len() != before {
		t.Errorf("second unify allocated variables: %d -> %d", before, st.Len())
	}
}

func TestUnifyMismatchIsSymmetric(t *testing.T) {
	build := func() (*subs.Store, types.Variable, types.Variable) {
		st := subs.NewStore()
		a := st.FreshBound(types.TPrim{Name: "Str"})
		b := st.FreshBound(types.TPrim{Name: "U8"})
		return st, a, b
	}

	st, a, b := build()
	mustFail(t, st, a, b)
	st, a, b = build()
	mustFail(t, st, b, a)
}

func TestUnifyRigid(t *testing.T) {
	t.Run("rigid absorbs flex", func(t *testing.T) {
		st := subs.NewStore()
		rigid := st.Fresh(subs.Unbound{Rank: testRank, Rigid: true, Name: "a"})
		flex := st.FreshUnbound(testRank)

		mustUnify(t, st, flex, rigid)

		_, content := st.Resolve(flex)
		un, ok := content.(subs.Unbound)
		if !ok || !un.Rigid || un.Name != "a" {
			t.Errorf("merged content = %#v, want rigid a", content)
		}
	})

	t.Run("rigid refuses structure", func(t *testing.T) {
		st := subs.NewStore()
		rigid := st.Fresh(subs.Unbound{Rank: testRank, Rigid: true, Name: "a"})
		s := st.FreshBound(types.TPrim{Name: "Str"})
		mustFail(t, st, rigid, s)
		if !st.IsUnbound(rigid) {
			t.Errorf("rigid was bound by a failed unify")
		}
	})

	t.Run("two rigids refuse each other", func(t *testing.T) {
		st := subs.NewStore()
		r1 := st.Fresh(subs.Unbound{Rank: testRank, Rigid: true, Name: "a"})
		r2 := st.Fresh(subs.Unbound{Rank: testRank, Rigid: true, Name: "a"})
		mustFail(t, st, r1, r2)
	})
}

func TestUnifyFunctions(t *testing.T) {
	st := subs.NewStore()
	argVar := st.FreshUnbound(testRank)
	retVar := st.FreshUnbound(testRank)
	a := st.FreshBound(types.TFunc{
		Args:    []types.Type{types.TPrim{Name: "Str"}},
		Closure: types.TVar{V: st.FreshUnbound(testRank)},
		Ret:     types.TVar{V: retVar},
	})
	b := st.FreshBound(types.TFunc{
		Args:    []types.Type{types.TVar{V: argVar}},
		Closure: types.TVar{V: st.FreshUnbound(testRank)},
		Ret:     types.TPrim{Name: "U8"},
	})

	mustUnify(t, st, a, b)

	if got := boundType(t, st, argVar).String(); got != "Str" {
		t.Errorf("arg = %s, want Str", got)
	}
	if got := boundType(t, st, retVar).String(); got != "U8" {
		t.Errorf("ret = %s, want U8", got)
	}
}

func TestUnifyFunctionArityMismatch(t *testing.T) {
	st := subs.NewStore()
	a := st.FreshBound(types.TFunc{
		Args:    []types.Type{types.TPrim{Name: "Str"}},
		Closure: types.TEmptyTagUnion{},
		Ret:     types.TPrim{Name: "Str"},
	})
	b := st.FreshBound(types.TFunc{
		Args:    []types.Type{types.TPrim{Name: "Str"}, types.TPrim{Name: "Str"}},
		Closure: types.TEmptyTagUnion{},
		Ret:     types.TPrim{Name: "Str"},
	})
	mustFail(t, st, a, b)
}

func TestUnifyOpenRecordsGrowTogether(t *testing.T) {
	st := subs.NewStore()
	f64 := types.TPrim{Name: "F64"}
	a := st.FreshBound(types.TRecord{
		Fields: map[string]types.Type{"x": f64},
		Ext:    types.TVar{V: st.FreshUnbound(testRank)},
	})
	b := st.FreshBound(types.TRecord{
		Fields: map[string]types.Type{"y": f64},
		Ext:    types.TVar{V: st.FreshUnbound(testRank)},
	})

	mustUnify(t, st, a, b)

	rec, ok := boundType(t, st, a).(types.TRecord)
	if !ok {
		t.Fatalf("merged content is %s, want record", boundType(t, st, a))
	}
	fields, ext := subs.FlattenRecord(st, rec)
	if len(fields) != 2 || fields["x"] == nil || fields["y"] == nil {
		t.Errorf("merged fields = %v, want x and y", fields)
	}
	extVar, ok := ext.(types.TVar)
	if !ok || !st.IsUnbound(extVar.V) {
		t.Errorf("merged ext = %s, want a fresh unbound variable", ext)
	}
}

func TestUnifyOpenRecordAgainstClosed(t *testing.T) {
	st := subs.NewStore()
	f64 := types.TPrim{Name: "F64"}
	open := st.FreshBound(types.TRecord{
		Fields: map[string]types.Type{"x": f64},
		Ext:    types.TVar{V: st.FreshUnbound(testRank)},
	})
	closed := st.FreshBound(types.TRecord{
		Fields: map[string]types.Type{"x": f64, "y": f64},
		Ext:    types.TEmptyRecord{},
	})

	mustUnify(t, st, open, closed)

	rec := boundType(t, st, open).(types.TRecord)
	fields, ext := subs.FlattenRecord(st, rec)
	if len(fields) != 2 {
		t.Errorf("merged fields = %v, want x and y", fields)
	}
	if _, ok := ext.(types.TEmptyRecord); !ok {
		t.Errorf("merged ext = %s, want closed", ext)
	}
}

func TestUnifyClosedRecordMissingField(t *testing.T) {
	st := subs.NewStore()
	f64 := types.TPrim{Name: "F64"}
	a := st.FreshBound(types.TRecord{
		Fields: map[string]types.Type{"x": f64},
		Ext:    types.TEmptyRecord{},
	})
	b := st.FreshBound(types.TRecord{
		Fields: map[string]types.Type{"x": f64, "y": f64},
		Ext:    types.TEmptyRecord{},
	})
	mustFail(t, st, a, b)
}

func TestUnifyClosedRowsTerminate(t *testing.T) {
	f64 := types.TPrim{Name: "F64"}

	t.Run("empty records", func(t *testing.T) {
		st := subs.NewStore()
		a := st.FreshBound(types.TEmptyRecord{})
		b := st.FreshBound(types.TEmptyRecord{})
		mustUnify(t, st, a, b)
	})

	t.Run("identical closed records", func(t *testing.T) {
		st := subs.NewStore()
		a := st.FreshBound(types.TRecord{
			Fields: map[string]types.Type{"x": f64},
			Ext:    types.TEmptyRecord{},
		})
		b := st.FreshBound(types.TRecord{
			Fields: map[string]types.Type{"x": f64},
			Ext:    types.TEmptyRecord{},
		})
		mustUnify(t, st, a, b)
	})

	t.Run("empty record refuses any field", func(t *testing.T) {
		st := subs.NewStore()
		empty := st.FreshBound(types.TEmptyRecord{})
		one := st.FreshBound(types.TRecord{
			Fields: map[string]types.Type{"x": f64},
			Ext:    types.TEmptyRecord{},
		})
		mustFail(t, st, empty, one)
		mustFail(t, st, one, empty)
	})

	t.Run("empty tag unions", func(t *testing.T) {
		st := subs.NewStore()
		a := st.FreshBound(types.TEmptyTagUnion{})
		b := st.FreshBound(types.TEmptyTagUnion{})
		mustUnify(t, st, a, b)
	})

	t.Run("closed unions with distinct tags", func(t *testing.T) {
		st := subs.NewStore()
		a := st.FreshBound(types.TTagUnion{
			Tags: map[string][]types.Type{"A": nil},
			Ext:  types.TEmptyTagUnion{},
		})
		b := st.FreshBound(types.TTagUnion{
			Tags: map[string][]types.Type{"B": nil},
			Ext:  types.TEmptyTagUnion{},
		})
		mustFail(t, st, a, b)
	})
}

func TestUnifyTagUnions(t *testing.T) {
	str := types.TPrim{Name: "Str"}

	t.Run("open unions grow together", func(t *testing.T) {
		st := subs.NewStore()
		a := st.FreshBound(types.TTagUnion{
			Tags: map[string][]types.Type{"Red": nil},
			Ext:  types.TVar{V: st.FreshUnbound(testRank)},
		})
		b := st.FreshBound(types.TTagUnion{
			Tags: map[string][]types.Type{"Blue": {str}},
			Ext:  types.TVar{V: st.FreshUnbound(testRank)},
		})

		mustUnify(t, st, a, b)

		union := boundType(t, st, a).(types.TTagUnion)
		tags, _ := subs.FlattenTagUnion(st, union.Tags, union.Ext)
		if len(tags) != 2 {
			t.Errorf("merged tags = %v, want Red and Blue", tags)
		}
	})

	t.Run("payload arity mismatch", func(t *testing.T) {
		st := subs.NewStore()
		a := st.FreshBound(types.TTagUnion{
			Tags: map[string][]types.Type{"Ok": {str}},
			Ext:  types.TEmptyTagUnion{},
		})
		b := st.FreshBound(types.TTagUnion{
			Tags: map[string][]types.Type{"Ok": nil},
			Ext:  types.TEmptyTagUnion{},
		})
		mustFail(t, st, a, b)
	})

	t.Run("payload type mismatch", func(t *testing.T) {
		st := subs.NewStore()
		a := st.FreshBound(types.TTagUnion{
			Tags: map[string][]types.Type{"Ok": {str}},
			Ext:  types.TEmptyTagUnion{},
		})
		b := st.FreshBound(types.TTagUnion{
			Tags: map[string][]types.Type{"Ok": {types.TPrim{Name: "U8"}}},
			Ext:  types.TEmptyTagUnion{},
		})
		mustFail(t, st, a, b)
	})
}

func TestUnifyNumLiterals(t *testing.T) {
	tests := []struct {
		name    string
		literal int64
		prim    string
		wantErr bool
	}{
		{name: "255 fits U8", literal: 255, prim: "U8", wantErr: false},
		{name: "255 does not fit I8", literal: 255, prim: "I8", wantErr: true},
		{name: "255 fits I16", literal: 255, prim: "I16", wantErr: false},
		{name: "-128 fits I8", literal: -128, prim: "I8", wantErr: false},
		{name: "-129 does not fit I8", literal: -129, prim: "I8", wantErr: true},
		{name: "negative literal refuses unsigned", literal: -1, prim: "U64", wantErr: true},
		{name: "integer literal fits F64", literal: 42, prim: "F64", wantErr: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			st := subs.NewStore()
			lit := st.FreshBound(types.TNumRange{Bound: types.IntBound(tt.literal)})
			prim := st.FreshBound(types.TPrim{Name: tt.prim})

			_, fail := Unify(st, lit, prim, testRank)
			if (fail != nil) != tt.wantErr {
				t.Errorf("Unify(%d, %s) failure = %v, want %v", tt.literal, tt.prim, fail, tt.wantErr)
			}
			if fail == nil {
				prim, ok := boundType(t, st, lit).(types.TPrim)
				if !ok || prim.Name != tt.prim {
					t.Errorf("literal resolved to %s, want %s", boundType(t, st, lit), tt.prim)
				}
			}
		})
	}
}

func TestUnifyTwoNumLiteralsMergeBounds(t *testing.T) {
	st := subs.NewStore()
	a := st.FreshBound(types.TNumRange{Bound: types.IntBound(255)})
	b := st.FreshBound(types.TNumRange{Bound: types.IntBound(-1)})

	mustUnify(t, st, a, b)

	merged, ok := boundType(t, st, a).(types.TNumRange)
	if !ok {
		t.Fatalf("merged content is %s, want a numeric range", boundType(t, st, a))
	}
	// 255 needs 8 magnitude bits, -1 forces a sign: together they need I16.
	if merged.Bound.Fits(types.NumWidths["U8"]) {
		t.Errorf("merged bound %s should not fit U8", merged.Bound)
	}
	if merged.Bound.Fits(types.NumWidths["I8"]) {
		t.Errorf("merged bound %s should not fit I8", merged.Bound)
	}
	if !merged.Bound.Fits(types.NumWidths["I16"]) {
		t.Errorf("merged bound %s should fit I16", merged.Bound)
	}
}

func TestUnifyAliases(t *testing.T) {
	interns := symbols.NewInterns()
	module := interns.AddModule("Main")
	ageSym := interns.Symbol(module, "Age")
	idSym := interns.Symbol(module, "Id")

	t.Run("structural alias unwraps", func(t *testing.T) {
		st := subs.NewStore()
		alias := st.FreshBound(types.TAlias{
			Symbol: ageSym,
			Real:   types.TPrim{Name: "U8"},
			Kind:   types.AliasStructural,
		})
		prim := st.FreshBound(types.TPrim{Name: "U8"})
		mustUnify(t, st, alias, prim)
	})

	t.Run("opaque refuses its own real type", func(t *testing.T) {
		st := subs.NewStore()
		opaque := st.FreshBound(types.TAlias{
			Symbol: idSym,
			Real:   types.TPrim{Name: "U64"},
			Kind:   types.AliasOpaque,
		})
		prim := st.FreshBound(types.TPrim{Name: "U64"})
		mustFail(t, st, opaque, prim)
	})

	t.Run("same opaque unifies arguments", func(t *testing.T) {
		st := subs.NewStore()
		arg := st.FreshUnbound(testRank)
		a := st.FreshBound(types.TAlias{
			Symbol: idSym,
			Args:   []types.AliasArg{{Name: "a", T: types.TVar{V: arg}}},
			Real:   types.TVar{V: arg},
			Kind:   types.AliasOpaque,
		})
		b := st.FreshBound(types.TAlias{
			Symbol: idSym,
			Args:   []types.AliasArg{{Name: "a", T: types.TPrim{Name: "Str"}}},
			Real:   types.TPrim{Name: "Str"},
			Kind:   types.AliasOpaque,
		})

		mustUnify(t, st, a, b)
		if got := boundType(t, st, arg).String(); got != "Str" {
			t.Errorf("opaque argument = %s, want Str", got)
		}
	})
}

func TestUnifyErrorAbsorbs(t *testing.T) {
	st := subs.NewStore()
	e := st.FreshBound(types.TError{})
	s := st.FreshBound(types.TPrim{Name: "Str"})
	mustUnify(t, st, e, s)
	mustUnify(t, st, s, e)
}

func TestUnifyAbleVarRecordsObligation(t *testing.T) {
	interns := symbols.NewInterns()
	st := subs.NewStore()
	able := st.Fresh(subs.Unbound{Rank: testRank, Able: symbols.SymAbilityHash})
	s := st.FreshBound(types.TPrim{Name: "Str"})

	obs := mustUnify(t, st, able, s)

	if len(obs) != 1 {
		t.Fatalf("obligations = %d, want 1", len(obs))
	}
	if obs[0].Ability != symbols.SymAbilityHash {
		t.Errorf("obligation ability = %s, want Hash", interns.Name(obs[0].Ability))
	}
	root, _ := st.Resolve(s)
	gotRoot, _ := st.Resolve(obs[0].Concrete)
	if gotRoot != root {
		t.Errorf("obligation concrete = %d, want root of the bound structure %d", gotRoot, root)
	}
}

func TestUnifyBindDemotesInnerRanks(t *testing.T) {
	st := subs.NewStore()
	inner := st.FreshUnbound(3)
	structure := st.FreshBound(types.TFunc{
		Args:    []types.Type{types.TVar{V: inner}},
		Closure: types.TEmptyTagUnion{},
		Ret:     types.TPrim{Name: "Str"},
	})
	outer := st.FreshUnbound(1)

	mustUnify(t, st, outer, structure)

	if got := st.RankOf(inner); got != 1 {
		t.Errorf("inner rank = %s, want demotion to 1", got)
	}
}

func TestUnifyRecursiveUnions(t *testing.T) {
	str := types.TPrim{Name: "Str"}

	// Two copies of the same recursive list-ish union must unify without
	// looping: [Cons Str rec, Nil] as rec.
	build := func(st *subs.Store) types.Variable {
		rec := st.FreshUnbound(testRank)
		union := st.FreshBound(types.TRecUnion{
			Rec: rec,
			Tags: map[string][]types.Type{
				"Cons": {str, types.TVar{V: rec}},
				"Nil":  nil,
			},
			Ext: types.TEmptyTagUnion{},
		})
		st.Set(rec, subs.Bound{T: types.TRecMarker{Structure: union}})
		return union
	}

	st := subs.NewStore()
	a := build(st)
	b := build(st)
	mustUnify(t, st, a, b)
	mustUnify(t, st, a, b)
}

func FuzzUnify(f *testing.F) {
	f.Add([]byte{0, 1}, []byte{1, 0})
	f.Add([]byte{4, 2, 2, 4}, []byte{4, 3, 3, 3})
	f.Add([]byte{6, 0, 1, 6, 1, 0}, []byte{2, 200, 2, 9})

	f.Fuzz(func(t *testing.T, left, right []byte) {
		st := subs.NewStore()
		a := fuzzVar(st, left, new(int), 0)
		b := fuzzVar(st, right, new(int), 0)

		// Unify must never panic or loop, and a success must still be a
		// success when repeated.
		_, fail := Unify(st, a, b, testRank)
		if fail == nil {
			if _, again := Unify(st, a, b, testRank); again != nil {
				t.Fatalf("unify succeeded once and then failed: %s vs %s", again.Left, again.Right)
			}
		}
	})
}

var fuzzPrims = []string{"Str", "U8", "I64", "F64", "Bool"}

func fuzzVar(st *subs.Store, data []byte, pos *int, depth int) types.Variable {
	next := func() byte {
		if *pos >= len(data) {
			return 0
		}
		b := data[*pos]
		*pos++
		return b
	}

	b := next()
	if depth >= 3 {
		return st.FreshUnbound(testRank)
	}
	switch b % 7 {
	case 0:
		return st.FreshUnbound(testRank)
	case 1:
		return st.FreshBound(types.TPrim{Name: fuzzPrims[int(next())%len(fuzzPrims)]})
	case 2:
		return st.FreshBound(types.TNumRange{Bound: types.IntBound(int64(next()) - 128)})
	case 3:
		fields := map[string]types.Type{}
		for i := 0; i < int(next()%3); i++ {
			fields[string(rune('a'+i))] = types.TVar{V: fuzzVar(st, data, pos, depth+1)}
		}
		var ext types.Type = types.TEmptyRecord{}
		if next()%2 == 0 {
			ext = types.TVar{V: st.FreshUnbound(testRank)}
		}
		return st.FreshBound(types.TRecord{Fields: fields, Ext: ext})
	case 4:
		tags := map[string][]types.Type{}
		for i := 0; i < int(next()%3); i++ {
			tags[string(rune('A'+i))] = []types.Type{types.TVar{V: fuzzVar(st, data, pos, depth+1)}}
		}
		var ext types.Type = types.TEmptyTagUnion{}
		if next()%2 == 0 {
			ext = types.TVar{V: st.FreshUnbound(testRank)}
		}
		return st.FreshBound(types.TTagUnion{Tags: tags, Ext: ext})
	case 5:
		return st.FreshBound(types.TFunc{
			Args:    []types.Type{types.TVar{V: fuzzVar(st, data, pos, depth+1)}},
			Closure: types.TVar{V: st.FreshUnbound(testRank)},
			Ret:     types.TVar{V: fuzzVar(st, data, pos, depth+1)},
		})
	default:
		return st.Fresh(subs.Unbound{Rank: testRank, Rigid: next()%2 == 0, Name: "r"})
	}
}

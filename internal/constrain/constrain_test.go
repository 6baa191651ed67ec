package constrain

import (
	"testing"

	"github.com/ternlang/tern/internal/abilities"
	"github.com/ternlang/tern/internal/can"
	"github.com/ternlang/tern/internal/problem"
	"github.com/ternlang/tern/internal/region"
	"github.com/ternlang/tern/internal/symbols"
	"github.com/ternlang/tern/internal/types"
)

func TestConstraintVariantCount(t *testing.T) {
	variants := []Constraint{
		Eq{}, Pattern{}, Store{}, Lookup{}, AbilityLookup{},
		And{}, Let{}, True{}, SaveTheEnvironment{},
	}
	if len(variants) != ConstraintVariantCount {
		t.Fatalf("listed %d variants, constant says %d", len(variants), ConstraintVariantCount)
	}
}

func TestAndFlattens(t *testing.T) {
	eq := Eq{Region: region.New(1, 2)}
	store := Store{Src: "here"}

	if _, ok := and().(True); !ok {
		t.Error("and() is not True")
	}
	if got := and(eq); got != Constraint(eq) {
		t.Errorf("and(single) = %v, want the child itself", got)
	}
	got, ok := and(True{}, And{Constraints: []Constraint{eq, store}}, eq).(And)
	if !ok || len(got.Constraints) != 3 {
		t.Fatalf("and did not flatten: %v", got)
	}
	if got.Constraints[0] != Constraint(eq) || got.Constraints[1] != Constraint(store) {
		t.Error("flattening reordered children")
	}
}

func TestExists(t *testing.T) {
	eq := Eq{}
	if got := exists(nil, eq); got != Constraint(eq) {
		t.Error("exists with no variables wrapped anyway")
	}
	let, ok := exists([]types.Variable{7}, eq).(Let)
	if !ok {
		t.Fatal("exists did not produce a Let")
	}
	if len(let.FlexVars) != 1 || let.FlexVars[0] != 7 {
		t.Errorf("FlexVars = %v", let.FlexVars)
	}
	if len(let.RigidVars) != 0 || len(let.Header) != 0 {
		t.Error("exists introduced rigids or a header")
	}
	if _, ok := let.Ret.(True); !ok {
		t.Error("exists Ret is not trivially true")
	}
}

// testDecl builds `name = <expr>` with sequentially minted variables.
type varMint struct{ next types.Variable }

func (m *varMint) v() types.Variable {
	v := m.next
	m.next++
	return v
}

func testDecl(m *varMint, sym symbols.Symbol, e can.Expr) can.Declaration {
	return can.Declare{Def: &can.Def{
		Pattern:       can.PIdent{Symbol: sym, Region: region.New(1, 2)},
		PatternRegion: region.New(1, 2),
		Expr:          e,
		ExprRegion:    can.RegionOf(e),
		ExprVar:       m.v(),
		PatternVars:   map[symbols.Symbol]types.Variable{sym: m.v()},
	}}
}

func TestConstrainDeclsFoldsAroundSentinel(t *testing.T) {
	interns := symbols.NewInterns()
	home := interns.AddModule("Main")
	m := &varMint{}
	decls := []can.Declaration{
		testDecl(m, interns.Symbol(home, "a"), can.StrLit{Value: "x", Region: region.New(3, 6)}),
		testDecl(m, interns.Symbol(home, "b"), can.StrLit{Value: "y", Region: region.New(8, 11)}),
	}

	con := NewBuilder(abilities.NewStore()).ConstrainDecls(decls)
	if err := Check(con); err != nil {
		t.Fatalf("Check: %v", err)
	}

	// The first declaration is the outermost Let; the sentinel sits at the
	// innermost Ret.
	outer, ok := con.(Let)
	if !ok {
		t.Fatalf("tree root = %T, want Let", con)
	}
	inner, ok := outer.Ret.(Let)
	if !ok {
		t.Fatalf("second declaration = %T, want Let", outer.Ret)
	}
	if _, ok := inner.Ret.(SaveTheEnvironment); !ok {
		t.Errorf("innermost Ret = %T, want the sentinel", inner.Ret)
	}
}

func TestNumLiteralBlamesWidthFirst(t *testing.T) {
	m := &varMint{}
	lit := can.IntLit{Var: m.v(), Bound: types.IntBound(200), Value: 200, Region: region.New(4, 7)}
	target := types.NoExpectation{T: types.TVar{V: m.v()}}

	let, ok := NewBuilder(abilities.NewStore()).ConstrainExpr(lit, target).(Let)
	if !ok {
		t.Fatal("literal did not quantify its variable")
	}
	cons, ok := let.Defs.(And)
	if !ok || len(cons.Constraints) != 2 {
		t.Fatalf("literal constraints = %v, want two", let.Defs)
	}
	width, ok := cons.Constraints[0].(Eq)
	if !ok {
		t.Fatalf("first constraint = %T, want Eq", cons.Constraints[0])
	}
	reason, ok := width.Expected.(types.ForReason)
	if !ok || reason.Reason.Kind != types.ReasonIntLiteral {
		t.Errorf("width bound expectation = %v, want the literal reason", width.Expected)
	}
	general, ok := cons.Constraints[1].(Eq)
	if !ok {
		t.Fatalf("second constraint = %T, want Eq", cons.Constraints[1])
	}
	if general.Expected.Type() != target.T {
		t.Error("general equality does not target the caller's expectation")
	}
}

func TestCallConstrainsCalleeThenShapeThenArgs(t *testing.T) {
	m := &varMint{}
	interns := symbols.NewInterns()
	home := interns.AddModule("Main")
	fnSym := interns.Symbol(home, "f")

	call := can.Call{
		FnVar:      m.v(),
		ClosureVar: m.v(),
		RetVar:     m.v(),
		Fn:         can.VarRef{Symbol: fnSym, Var: m.v(), Region: region.New(1, 2)},
		Args: []can.CallArg{{
			Var:    m.v(),
			Expr:   can.StrLit{Value: "x", Region: region.New(3, 6)},
			Region: region.New(3, 6),
		}},
		Region: region.New(1, 6),
	}
	target := types.NoExpectation{T: types.TVar{V: m.v()}}

	let, ok := NewBuilder(abilities.NewStore()).ConstrainExpr(call, target).(Let)
	if !ok {
		t.Fatal("call did not quantify its variables")
	}
	cons, ok := let.Defs.(And)
	if !ok || len(cons.Constraints) < 4 {
		t.Fatalf("call constraints = %v, want callee, shape, arg, result", let.Defs)
	}

	shape, ok := cons.Constraints[1].(Eq)
	if !ok {
		t.Fatalf("second constraint = %T, want the function-shape Eq", cons.Constraints[1])
	}
	if tv, ok := shape.T.(types.TVar); !ok || tv.V != call.FnVar {
		t.Errorf("shape constrains %v, want the callee variable", shape.T)
	}
	if _, ok := shape.Expected.Type().(types.TFunc); !ok {
		t.Errorf("shape expects %T, want a function type", shape.Expected.Type())
	}

	last, ok := cons.Constraints[len(cons.Constraints)-1].(Eq)
	if !ok {
		t.Fatalf("last constraint = %T, want the result Eq", cons.Constraints[len(cons.Constraints)-1])
	}
	if tv, ok := last.T.(types.TVar); !ok || tv.V != call.RetVar {
		t.Errorf("result constrains %v, want the return variable", last.T)
	}
	if last.Expected.Type() != target.T {
		t.Error("result equality does not target the caller's expectation")
	}
}

func TestAnnotatedDefPinsSignature(t *testing.T) {
	interns := symbols.NewInterns()
	home := interns.AddModule("Main")
	sym := interns.Symbol(home, "f")
	m := &varMint{}

	a := m.v()
	sig := types.TFunc{
		Args:    []types.Type{types.TVar{V: a}},
		Closure: types.TVar{V: m.v()},
		Ret:     types.TVar{V: a},
	}
	def := testDecl(m, sym, can.StrLit{Value: "x", Region: region.New(5, 8)}).(can.Declare)
	def.Def.Annotation = &can.Annotation{
		Signature: sig,
		Introduced: can.IntroducedVars{
			Named:     []can.NamedVar{{Name: "a", Var: a, Region: region.New(1, 2)}},
			Wildcards: []types.Variable{sig.Closure.(types.TVar).V},
		},
		Region: region.New(1, 4),
	}

	con := NewBuilder(abilities.NewStore()).ConstrainDecls([]can.Declaration{def})
	if err := Check(con); err != nil {
		t.Fatalf("Check: %v", err)
	}
	let, ok := con.(Let)
	if !ok {
		t.Fatalf("tree root = %T, want Let", con)
	}
	if len(let.RigidVars) != 1 || let.RigidVars[0] != a {
		t.Errorf("RigidVars = %v, want the named annotation variable", let.RigidVars)
	}

	found := false
	walkConstraints(let.Defs, func(c Constraint) {
		if st, ok := c.(Store); ok && st.Var == def.Def.ExprVar {
			found = true
		}
	})
	if !found {
		t.Error("annotated definition does not pin its signature at the expression variable")
	}
}

func TestConstrainModuleFrontloadsMembersAndImports(t *testing.T) {
	interns := symbols.NewInterns()
	home := interns.AddModule("Main")
	m := &varMint{next: 10}

	ab := abilities.NewStore()
	able, closure, sigVar := m.v(), m.v(), m.v()
	ab.RegisterMember(symbols.SymMemberIsEq, abilities.MemberData{
		Ability: symbols.SymAbilityEq,
		Signature: types.TFunc{
			Args:    []types.Type{types.TVar{V: able}, types.TVar{V: able}},
			Closure: types.TVar{V: closure},
			Ret:     types.TPrim{Name: "Bool"},
		},
		SignatureVar: sigVar,
		Vars: abilities.MemberVariables{
			Able: []types.Variable{able},
			Flex: []types.Variable{closure},
		},
		Region: region.New(1, 9),
	})

	imported := interns.Symbol(interns.AddModule("Str"), "concat")
	imports := map[symbols.Symbol]TypeAt{
		imported: {T: types.TVar{V: m.v()}, Region: region.New(20, 26)},
	}
	decls := []can.Declaration{
		testDecl(m, interns.Symbol(home, "x"), can.StrLit{Value: "v", Region: region.New(30, 33)}),
	}

	con := NewBuilder(ab).ConstrainModule(decls, imports)
	if err := Check(con, imports[imported].T.(types.TVar).V); err != nil {
		t.Fatalf("Check: %v", err)
	}

	// Outermost: the import header, nothing to solve of its own.
	importLet, ok := con.(Let)
	if !ok {
		t.Fatalf("tree root = %T, want the import Let", con)
	}
	if _, ok := importLet.Header[imported]; !ok {
		t.Fatal("import header does not bind the imported symbol")
	}
	if _, ok := importLet.Defs.(True); !ok {
		t.Error("import Let has defs of its own")
	}

	// Next: the frontloaded member, pinning its signature variable.
	memberLet, ok := importLet.Ret.(Let)
	if !ok {
		t.Fatalf("inside the imports = %T, want the member Let", importLet.Ret)
	}
	if _, ok := memberLet.Header[symbols.SymMemberIsEq]; !ok {
		t.Fatal("member Let does not bind the member symbol")
	}
	pin, ok := memberLet.Defs.(Eq)
	if !ok {
		t.Fatalf("member defs = %T, want the signature pin", memberLet.Defs)
	}
	data, _ := ab.Member(symbols.SymMemberIsEq)
	if tv, ok := pin.T.(types.TVar); !ok || tv.V != data.SignatureVar {
		t.Errorf("pin constrains %v, want the signature variable", pin.T)
	}
}

func TestCircularDefs(t *testing.T) {
	interns := symbols.NewInterns()
	home := interns.AddModule("Main")
	m := &varMint{}

	legal := testDecl(m, interns.Symbol(home, "fine"), can.StrLit{Value: "x", Region: region.New(1, 4)})
	illegal := can.DeclareRec{
		IllegalCycle: true,
		Entries: []can.CycleEntry{
			{Symbol: interns.Symbol(home, "a"), SymbolRegion: region.New(5, 6)},
			{Symbol: interns.Symbol(home, "b"), SymbolRegion: region.New(8, 9)},
		},
	}

	problems := CircularDefs([]can.Declaration{legal, illegal})
	if len(problems) != 1 {
		t.Fatalf("problems = %v, want one", problems)
	}
	cd, ok := problems[0].(problem.CircularDef)
	if !ok || len(cd.Entries) != 2 {
		t.Errorf("problem = %#v, want the two-entry cycle", problems[0])
	}
}

func TestCheckRejectsEscapedVariable(t *testing.T) {
	con := Let{
		FlexVars: []types.Variable{1},
		Defs: and(
			Eq{T: types.TVar{V: 1}, Expected: types.NoExpectation{T: types.TVar{V: 99}}},
			SaveTheEnvironment{},
		),
		Ret: True{},
	}
	if err := Check(con); err == nil {
		t.Error("Check accepted a variable no Let quantifies")
	}
	if err := Check(con, 99); err != nil {
		t.Errorf("Check rejected a pre-quantified variable: %v", err)
	}
}

func TestCheckCountsSentinels(t *testing.T) {
	if err := Check(True{}); err == nil {
		t.Error("Check accepted a tree with no sentinel")
	}
	two := and(SaveTheEnvironment{}, SaveTheEnvironment{})
	if err := Check(two); err == nil {
		t.Error("Check accepted a tree with two sentinels")
	}
}

// walkConstraints visits every node of a constraint tree.
func walkConstraints(c Constraint, visit func(Constraint)) {
	visit(c)
	switch c := c.(type) {
	case And:
		for _, sub := range c.Constraints {
			walkConstraints(sub, visit)
		}
	case Let:
		walkConstraints(c.Defs, visit)
		walkConstraints(c.Ret, visit)
	}
}

package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/ternlang/tern/internal/abilities"
	"github.com/ternlang/tern/internal/can"
	"github.com/ternlang/tern/internal/config"
	"github.com/ternlang/tern/internal/constrain"
	"github.com/ternlang/tern/internal/pipeline"
	"github.com/ternlang/tern/internal/problem"
	"github.com/ternlang/tern/internal/region"
	"github.com/ternlang/tern/internal/scope"
	"github.com/ternlang/tern/internal/subs"
	"github.com/ternlang/tern/internal/symbols"
	"github.com/ternlang/tern/internal/types"
)

// A fixture file is one canonical module written as YAML: declarations with
// names already unique, every type position carrying its own node, imports
// listed with either an inline signature or a cache reference. It stands in
// for the front end so the checker can be driven from a file.
//
//	module: Main
//	exposes: [len]
//	imports:
//	  - {module: Json, name: decode}                # type from -cache
//	  - {module: Str, name: concat, type: {...}}    # inline signature
//	aliases:
//	  - {name: Id, opaque: true, vars: [{name: a}], real: {...}, derives: [Eq]}
//	abilities:
//	  - {name: Eq, members: [{name: isEq, signature: {...}}]}
//	impls:
//	  - {opaque: Id, ability: Eq, members: {isEq: isEqId}}
//	decls:
//	  - {name: len, annotation: {...}, expr: {...}}
//	  - {rec: [{name: even, expr: {...}}, {name: odd, expr: {...}}]}
type fixtureDTO struct {
	Module    string       `yaml:"module"`
	Exposes   []string     `yaml:"exposes"`
	Imports   []importDTO  `yaml:"imports"`
	Aliases   []aliasDTO   `yaml:"aliases"`
	Abilities []abilityDTO `yaml:"abilities"`
	Impls     []implDTO    `yaml:"impls"`
	Decls     []declDTO    `yaml:"decls"`
}

type importDTO struct {
	Module string    `yaml:"module"`
	Name   string    `yaml:"name"`
	Type   *typeNode `yaml:"type"`
	// Unexposed binds the name but marks it as not exported by its module;
	// every use becomes an unexposed-lookup problem.
	Unexposed bool `yaml:"unexposed"`
}

type aliasDTO struct {
	Name    string        `yaml:"name"`
	Opaque  bool          `yaml:"opaque"`
	Vars    []aliasVarDTO `yaml:"vars"`
	Real    *typeNode     `yaml:"real"`
	Derives []string      `yaml:"derives"`
}

type aliasVarDTO struct {
	Name    string `yaml:"name"`
	Ability string `yaml:"ability"`
}

type abilityDTO struct {
	Name    string      `yaml:"name"`
	Members []memberDTO `yaml:"members"`
}

type memberDTO struct {
	Name      string    `yaml:"name"`
	Signature *typeNode `yaml:"signature"`
}

type implDTO struct {
	Opaque  string            `yaml:"opaque"`
	Ability string            `yaml:"ability"`
	Members map[string]string `yaml:"members"`
}

type declDTO struct {
	Name       string       `yaml:"name"`
	Pattern    *patternNode `yaml:"pattern"`
	Annotation *typeNode    `yaml:"annotation"`
	Expr       *exprNode    `yaml:"expr"`
	Rec        []declDTO    `yaml:"rec"`
	Illegal    bool         `yaml:"illegal"`
}

// typeNode kinds: var, able, wildcard, infer, prim, apply, func, record,
// union, alias, error. Row extensions default to closed when ext is absent.
type typeNode struct {
	Kind    string                 `yaml:"kind"`
	Name    string                 `yaml:"name"`
	Ability string                 `yaml:"ability"`
	Args    []*typeNode            `yaml:"args"`
	Fields  map[string]*typeNode   `yaml:"fields"`
	Tags    map[string][]*typeNode `yaml:"tags"`
	Ext     *typeNode              `yaml:"ext"`
	Closure *typeNode              `yaml:"closure"`
	Ret     *typeNode              `yaml:"ret"`
}

// exprNode kinds: int, float, str, list, var, call, closure, if, when, let,
// record, empty-record, access, accessor, update, tag, opaque, error.
type exprNode struct {
	Kind     string               `yaml:"kind"`
	Int      int64                `yaml:"int"`
	Float    float64              `yaml:"float"`
	Str      string               `yaml:"str"`
	Name     string               `yaml:"name"`
	Field    string               `yaml:"field"`
	Elems    []*exprNode          `yaml:"elems"`
	Fn       *exprNode            `yaml:"fn"`
	Args     []*exprNode          `yaml:"args"`
	Params   []*patternNode       `yaml:"params"`
	Body     *exprNode            `yaml:"body"`
	Cond     *exprNode            `yaml:"cond"`
	Else     *exprNode            `yaml:"else"`
	Branches []*branchNode        `yaml:"branches"`
	Defs     []declDTO            `yaml:"defs"`
	Rec      bool                 `yaml:"rec"`
	Cont     *exprNode            `yaml:"in"`
	Fields   map[string]*exprNode `yaml:"fields"`
	Record   *exprNode            `yaml:"record"`
	Target   string               `yaml:"target"`
	Arg      *exprNode            `yaml:"arg"`
}

// branchNode is an if arm (cond/body) or a when arm (patterns/guard/body).
type branchNode struct {
	Cond     *exprNode      `yaml:"cond"`
	Patterns []*patternNode `yaml:"patterns"`
	Guard    *exprNode      `yaml:"guard"`
	Body     *exprNode      `yaml:"body"`
}

// patternNode kinds: ident, underscore, int, str, tag, record, opaque,
// malformed.
type patternNode struct {
	Kind   string          `yaml:"kind"`
	Name   string          `yaml:"name"`
	Int    int64           `yaml:"int"`
	Str    string          `yaml:"str"`
	Args   []*patternNode  `yaml:"args"`
	Arg    *patternNode    `yaml:"arg"`
	Fields []*destructNode `yaml:"fields"`
}

type destructNode struct {
	Name    string       `yaml:"name"`
	Default *exprNode    `yaml:"default"`
	Guard   *patternNode `yaml:"guard"`
}

// inlineImport is an import whose signature came inline; the driver binds it
// into the store as already-generalized content before solving.
type inlineImport struct {
	Root  types.Variable
	Type  types.Type
	Inner []inlineVar
}

type inlineVar struct {
	Var  types.Variable
	Name string
	Able symbols.Symbol
}

// cacheNeed is an import whose signature must come from the artifact cache.
type cacheNeed struct {
	Module string
	Symbol symbols.Symbol
	Region region.Region
}

// fixtureModule is the decoded fixture, ready for the pipeline once the
// driver has prepared the store and resolved cache needs.
type fixtureModule struct {
	Ctx        *pipeline.Context
	Inline     []inlineImport
	CacheNeeds []cacheNeed
}

type decoder struct {
	interns *symbols.Interns
	home    symbols.ModuleID
	sc      *scope.Scope
	ab      *abilities.Store
	vars    *subs.VarStore

	// locals stacks lexical frames on top of the flat top-level scope;
	// closure parameters, let bindings, and when arms push and pop here.
	locals []map[string]symbols.Symbol

	members map[string]symbols.Symbol // member name -> member symbol
	shadows []shadowRec               // specializations awaiting an impl entry
	pos     uint32
	errs    []error
}

type shadowRec struct {
	Sym    symbols.Symbol
	Region region.Region
}

func loadFixture(path string) (*fixtureModule, error) {
	if !fixtureExtension(path) {
		return nil, fmt.Errorf("%s: not a module fixture (want %s)",
			path, strings.Join(config.FixtureFileExtensions, " or "))
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var dto fixtureDTO
	if err := yaml.Unmarshal(data, &dto); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}
	if dto.Module == "" {
		return nil, fmt.Errorf("%s: fixture has no module name", path)
	}

	interns := symbols.NewInterns()
	home := interns.AddModule(dto.Module)
	ab := abilities.NewStore()
	d := &decoder{
		interns: interns,
		home:    home,
		sc:      scope.New(home, interns, ab),
		ab:      ab,
		vars:    subs.NewVarStore(),
		members: make(map[string]symbols.Symbol),
		pos:     1,
	}

	ctx := pipeline.NewContext(dto.Module)
	ctx.Interns = interns
	ctx.Abilities = ab
	ctx.Imports = make(map[symbols.Symbol]constrain.TypeAt)

	d.decodeAbilities(dto.Abilities)
	d.decodeAliases(dto.Aliases)
	fm := &fixtureModule{Ctx: ctx}
	d.decodeImports(dto.Imports, ctx, fm)

	// Two passes over the declarations: names first so definitions can refer
	// to each other regardless of order, bodies second.
	defs := d.introduceDecls(dto.Decls)
	d.decodeImpls(dto.Impls, ctx)
	ctx.Decls = d.decodeDeclExprs(dto.Decls, defs)

	for _, name := range dto.Exposes {
		b, ok := d.sc.Lookup(name)
		if !ok {
			d.errs = append(d.errs, fmt.Errorf("exposes %s: no such definition", name))
			continue
		}
		ctx.ExposedSymbols = append(ctx.ExposedSymbols, b.Symbol)
	}

	ctx.Vars = d.vars
	if len(d.errs) > 0 {
		return nil, joinErrors(path, d.errs)
	}
	return fm, nil
}

func joinErrors(path string, errs []error) error {
	msg := fmt.Sprintf("%s: %d fixture error(s):", path, len(errs))
	for _, err := range errs {
		msg += "\n  - " + err.Error()
	}
	return fmt.Errorf("%s", msg)
}

// reg synthesizes a distinct region per call so problems stay tellable apart
// even though fixtures carry no real source text.
func (d *decoder) reg() region.Region {
	r := region.New(d.pos, d.pos+1)
	d.pos += 2
	return r
}

func (d *decoder) errorf(format string, args ...interface{}) {
	d.errs = append(d.errs, fmt.Errorf(format, args...))
}

// --- name resolution ---

func (d *decoder) push()    { d.locals = append(d.locals, make(map[string]symbols.Symbol)) }
func (d *decoder) pop()     { d.locals = d.locals[:len(d.locals)-1] }
func (d *decoder) topFrame() map[string]symbols.Symbol {
	return d.locals[len(d.locals)-1]
}

// bindLocal mints a symbol for a binder inside an expression. Local shadowing
// is allowed; the innermost frame wins.
func (d *decoder) bindLocal(name string, _ region.Region) symbols.Symbol {
	sym := symbols.New(d.home, d.interns.Idents(d.home).Add(name))
	d.topFrame()[name] = sym
	return sym
}

func (d *decoder) lookup(name string) (symbols.Symbol, bool) {
	for i := len(d.locals) - 1; i >= 0; i-- {
		if sym, ok := d.locals[i][name]; ok {
			return sym, true
		}
	}
	if b, ok := d.sc.Lookup(name); ok {
		return b.Symbol, true
	}
	return symbols.NoSymbol, false
}

// knownPrim accepts the builtin scalar names a fixture may write.
func knownPrim(name string) bool {
	switch name {
	case config.StrTypeName, config.BoolTypeName:
		return true
	}
	for _, w := range config.NumericWidthNames {
		if name == w {
			return true
		}
	}
	return false
}

func fixtureExtension(path string) bool {
	ext := filepath.Ext(path)
	for _, want := range config.FixtureFileExtensions {
		if ext == want {
			return true
		}
	}
	return false
}

func (d *decoder) abilitySymbol(name string) symbols.Symbol {
	switch name {
	case config.EqAbilityName:
		return symbols.SymAbilityEq
	case config.HashAbilityName:
		return symbols.SymAbilityHash
	case config.DefaultAbilityName:
		return symbols.SymAbilityDefault
	case "":
		return symbols.NoSymbol
	}
	return d.interns.Symbol(d.home, name)
}

func builtinMemberSymbol(ability symbols.Symbol, name string) (symbols.Symbol, bool) {
	switch {
	case ability == symbols.SymAbilityEq && name == config.IsEqMemberName:
		return symbols.SymMemberIsEq, true
	case ability == symbols.SymAbilityHash && name == config.HashMemberName:
		return symbols.SymMemberHash, true
	case ability == symbols.SymAbilityDefault && name == config.DefaultMemberName:
		return symbols.SymMemberDefault, true
	}
	return symbols.NoSymbol, false
}

// --- sections ---

func (d *decoder) decodeAbilities(dtos []abilityDTO) {
	for _, a := range dtos {
		abilitySym := d.abilitySymbol(a.Name)
		for _, m := range a.Members {
			r := d.reg()
			memberSym, builtin := builtinMemberSymbol(abilitySym, m.Name)
			if builtin {
				if shadow := d.sc.Import(m.Name, memberSym, r); shadow != nil {
					d.errs = append(d.errs, shadow)
					continue
				}
			} else {
				sym, shadow := d.sc.Introduce(m.Name, r)
				if shadow != nil {
					d.errs = append(d.errs, shadow)
					continue
				}
				memberSym = sym
			}
			if m.Signature == nil {
				d.errorf("ability %s: member %s has no signature", a.Name, m.Name)
				continue
			}
			ts := newTypeScope()
			sig := d.decodeType(m.Signature, ts)
			d.ab.RegisterMember(memberSym, abilities.MemberData{
				Ability:      abilitySym,
				Signature:    sig,
				SignatureVar: d.vars.Fresh(),
				Vars: abilities.MemberVariables{
					Rigid: namedVarIDs(ts.intro.Named),
					Flex:  ts.intro.AllFlex(),
					Able:  ableVarIDs(ts.intro.Able),
				},
				Region: r,
			})
			d.members[m.Name] = memberSym
		}
	}
}

func namedVarIDs(named []can.NamedVar) []types.Variable {
	out := make([]types.Variable, len(named))
	for i, nv := range named {
		out[i] = nv.Var
	}
	return out
}

func ableVarIDs(able []can.AbleVar) []types.Variable {
	out := make([]types.Variable, len(able))
	for i, av := range able {
		out[i] = av.Var
	}
	return out
}

func (d *decoder) decodeAliases(dtos []aliasDTO) {
	for _, a := range dtos {
		r := d.reg()
		sym, shadow := d.sc.Introduce(a.Name, r)
		if shadow != nil {
			d.errs = append(d.errs, shadow)
			continue
		}
		ts := newTypeScope()
		vars := make([]types.AliasTypeVar, len(a.Vars))
		for i, v := range a.Vars {
			tv := d.vars.Fresh()
			ts.vars[v.Name] = tv
			vars[i] = types.AliasTypeVar{
				Name:    v.Name,
				Var:     tv,
				Ability: d.abilitySymbol(v.Ability),
				Region:  r,
			}
		}
		if a.Real == nil {
			d.errorf("alias %s has no real type", a.Name)
			continue
		}
		real := d.decodeType(a.Real, ts)
		kind := types.AliasStructural
		if a.Opaque {
			kind = types.AliasOpaque
		}
		d.sc.AddAlias(sym, r, vars, real, kind)

		for _, ability := range a.Derives {
			if !a.Opaque {
				d.errorf("alias %s: only opaque types derive abilities", a.Name)
				break
			}
			derivedName := symbols.New(d.home, d.interns.Idents(d.home).Add("#derived_"+ability+"_"+a.Name))
			d.ab.RegisterDerived(sym, d.abilitySymbol(ability), derivedName, d.reg())
		}
	}
}

func (d *decoder) decodeImports(dtos []importDTO, ctx *pipeline.Context, fm *fixtureModule) {
	for _, imp := range dtos {
		r := d.reg()
		moduleID := d.interns.AddModule(imp.Module)
		sym := d.interns.Symbol(moduleID, imp.Name)
		if shadow := d.sc.Import(imp.Name, sym, r); shadow != nil {
			d.errs = append(d.errs, shadow)
			continue
		}
		if imp.Unexposed {
			ctx.UnexposedLookups = append(ctx.UnexposedLookups, sym)
			continue
		}
		if imp.Type == nil {
			fm.CacheNeeds = append(fm.CacheNeeds, cacheNeed{Module: imp.Module, Symbol: sym, Region: r})
			continue
		}

		// Inline signature: decode it, then hand the driver the variables to
		// pre-generalize so every use instantiates a fresh copy.
		ts := newTypeScope()
		t := d.decodeType(imp.Type, ts)
		root := d.vars.Fresh()
		inline := inlineImport{Root: root, Type: t}
		for _, nv := range ts.intro.Named {
			inline.Inner = append(inline.Inner, inlineVar{Var: nv.Var, Name: nv.Name})
		}
		for _, av := range ts.intro.Able {
			inline.Inner = append(inline.Inner, inlineVar{Var: av.Var, Name: av.Name, Able: av.Ability})
		}
		for _, v := range ts.intro.AllFlex() {
			inline.Inner = append(inline.Inner, inlineVar{Var: v})
		}
		fm.Inline = append(fm.Inline, inline)

		ctx.Imports[sym] = constrain.TypeAt{T: types.TVar{V: root}, Region: r}
		ctx.ImportVars = append(ctx.ImportVars, root)
		for _, iv := range inline.Inner {
			ctx.ImportVars = append(ctx.ImportVars, iv.Var)
		}
	}
}

func (d *decoder) decodeImpls(dtos []implDTO, ctx *pipeline.Context) {
	claimed := make(map[symbols.Symbol]symbols.Symbol) // specializing -> opaque
	for _, impl := range dtos {
		r := d.reg()
		opaqueBinding, ok := d.sc.Lookup(impl.Opaque)
		if !ok {
			d.errorf("impl: unknown opaque %s", impl.Opaque)
			continue
		}
		if alias, isAlias := d.sc.LookupAlias(opaqueBinding.Symbol); !isAlias || alias.Kind != types.AliasOpaque {
			d.errorf("impl: %s is not an opaque type", impl.Opaque)
			continue
		}
		for memberName, specName := range impl.Members {
			memberSym, ok := d.members[memberName]
			if !ok {
				d.errorf("impl %s: unknown ability member %s", impl.Opaque, memberName)
				continue
			}
			specBinding, ok := d.sc.Lookup(specName)
			if !ok {
				d.errorf("impl %s: unknown definition %s", impl.Opaque, specName)
				continue
			}
			if prev, dup := claimed[specBinding.Symbol]; dup {
				ctx.Pre = append(ctx.Pre, problem.WrongSpecialization{
					Region:         r,
					Member:         memberSym,
					ExpectedOpaque: opaqueBinding.Symbol,
					FoundOpaque:    prev,
				})
				continue
			}
			if _, pending := d.ab.Pending(specBinding.Symbol); !pending {
				d.errorf("impl %s: %s does not shadow ability member %s", impl.Opaque, specName, memberName)
				continue
			}
			d.ab.RegisterMemberImpl(opaqueBinding.Symbol, memberSym, specBinding.Symbol)
			claimed[specBinding.Symbol] = opaqueBinding.Symbol
		}
	}

	// A definition that shadowed a member but was never claimed by an impl is
	// a specialization that names no opaque.
	for _, sh := range d.shadows {
		if member, pending := d.ab.Pending(sh.Sym); pending {
			ctx.Pre = append(ctx.Pre, problem.WrongSpecialization{
				Region:         sh.Region,
				Member:         member,
				ExpectedOpaque: symbols.NoSymbol,
				FoundOpaque:    symbols.NoSymbol,
			})
		}
	}
}

// --- declarations ---

// introduceDecls runs the first declaration pass: bind every top-level name,
// decode patterns and annotations, reserve expression variables. The returned
// defs parallel the DTO list (rec groups flattened in order).
func (d *decoder) introduceDecls(dtos []declDTO) map[*declDTO]*can.Def {
	defs := make(map[*declDTO]*can.Def)
	var introduce func(dto *declDTO)
	introduce = func(dto *declDTO) {
		if len(dto.Rec) > 0 {
			for i := range dto.Rec {
				introduce(&dto.Rec[i])
			}
			return
		}
		r := d.reg()
		def := &can.Def{
			PatternRegion: r,
			ExprVar:       d.vars.Fresh(),
			PatternVars:   make(map[symbols.Symbol]types.Variable),
		}
		switch {
		case dto.Name != "":
			sym, shadow := d.sc.IntroduceOrShadowAbilityMember(dto.Name, r)
			if shadow != nil {
				d.errs = append(d.errs, shadow)
			}
			if _, pending := d.ab.Pending(sym); pending {
				d.shadows = append(d.shadows, shadowRec{Sym: sym, Region: r})
			}
			def.Pattern = can.PIdent{Symbol: sym, Region: r}
		case dto.Pattern != nil:
			def.Pattern = d.decodePattern(dto.Pattern, d.introduceTopLevel)
		default:
			d.errorf("declaration needs a name or a pattern")
			def.Pattern = can.PMalformed{Region: r}
		}
		for _, sym := range can.BoundSymbols(def.Pattern) {
			def.PatternVars[sym] = d.vars.Fresh()
		}
		if dto.Annotation != nil {
			def.Annotation = d.decodeAnnotation(dto.Annotation)
		}
		defs[dto] = def
	}
	for i := range dtos {
		introduce(&dtos[i])
	}
	return defs
}

func (d *decoder) introduceTopLevel(name string, r region.Region) symbols.Symbol {
	sym, shadow := d.sc.Introduce(name, r)
	if shadow != nil {
		d.errs = append(d.errs, shadow)
	}
	return sym
}

// decodeDeclExprs runs the second pass: bodies, with every top-level name
// already in scope.
func (d *decoder) decodeDeclExprs(dtos []declDTO, defs map[*declDTO]*can.Def) []can.Declaration {
	var out []can.Declaration
	for i := range dtos {
		dto := &dtos[i]
		if len(dto.Rec) == 0 {
			out = append(out, can.Declare{Def: d.finishDef(dto, defs[dto])})
			continue
		}
		rec := can.DeclareRec{IllegalCycle: dto.Illegal}
		for j := range dto.Rec {
			inner := &dto.Rec[j]
			def := d.finishDef(inner, defs[inner])
			rec.Defs = append(rec.Defs, def)
			if dto.Illegal {
				if ident, ok := def.Pattern.(can.PIdent); ok {
					rec.Entries = append(rec.Entries, can.CycleEntry{
						Symbol:       ident.Symbol,
						SymbolRegion: ident.Region,
						ExprRegion:   def.ExprRegion,
					})
				}
			}
		}
		out = append(out, rec)
	}
	return out
}

func (d *decoder) finishDef(dto *declDTO, def *can.Def) *can.Def {
	r := d.reg()
	if dto.Expr == nil {
		d.errorf("definition %s has no expression", dto.Name)
		def.Expr = can.RuntimeError{Region: r}
		def.ExprRegion = r
		return def
	}
	def.Expr = d.decodeExpr(dto.Expr)
	def.ExprRegion = can.RegionOf(def.Expr)

	// A named definition whose body is a lambda gets the definition's symbol
	// as the closure name, so recursion and diagnostics see the right name.
	if ident, ok := def.Pattern.(can.PIdent); ok {
		if clo, isClosure := def.Expr.(can.Closure); isClosure {
			clo.Name = ident.Symbol
			def.Expr = clo
		}
	}
	return def
}

// --- types ---

// typeScope is the variable namespace of one annotation or signature. Named
// variables are shared within it; wildcards are fresh per occurrence.
type typeScope struct {
	vars  map[string]types.Variable
	intro *can.IntroducedVars
}

func newTypeScope() *typeScope {
	return &typeScope{vars: make(map[string]types.Variable), intro: &can.IntroducedVars{}}
}

func (d *decoder) decodeAnnotation(n *typeNode) *can.Annotation {
	r := d.reg()
	ts := newTypeScope()
	sig := d.decodeType(n, ts)
	return &can.Annotation{Signature: sig, Introduced: *ts.intro, Region: r}
}

func (d *decoder) decodeType(n *typeNode, ts *typeScope) types.Type {
	if n == nil {
		d.errorf("missing type node")
		return types.TError{}
	}
	switch n.Kind {
	case "var":
		if v, ok := ts.vars[n.Name]; ok {
			return types.TVar{V: v}
		}
		v := d.vars.Fresh()
		ts.vars[n.Name] = v
		ts.intro.Named = append(ts.intro.Named, can.NamedVar{Name: n.Name, Var: v, Region: d.reg()})
		return types.TVar{V: v}
	case "able":
		if v, ok := ts.vars[n.Name]; ok {
			return types.TVar{V: v}
		}
		v := d.vars.Fresh()
		ts.vars[n.Name] = v
		ts.intro.Able = append(ts.intro.Able, can.AbleVar{
			Name:    n.Name,
			Var:     v,
			Ability: d.abilitySymbol(n.Ability),
			Region:  d.reg(),
		})
		return types.TVar{V: v}
	case "wildcard":
		v := d.vars.Fresh()
		ts.intro.Wildcards = append(ts.intro.Wildcards, v)
		return types.TVar{V: v}
	case "infer":
		v := d.vars.Fresh()
		ts.intro.Inferred = append(ts.intro.Inferred, v)
		return types.TVar{V: v}
	case "prim":
		if !knownPrim(n.Name) {
			d.errorf("unknown primitive type %s", n.Name)
			return types.TError{}
		}
		return types.TPrim{Name: n.Name}
	case "apply":
		args := make([]types.Type, len(n.Args))
		for i, a := range n.Args {
			args[i] = d.decodeType(a, ts)
		}
		sym := symbols.SymList
		if n.Name != config.ListTypeName {
			sym = d.interns.Symbol(symbols.BuiltinModule, n.Name)
		}
		return types.TApply{Symbol: sym, Args: args}
	case "func":
		args := make([]types.Type, len(n.Args))
		for i, a := range n.Args {
			args[i] = d.decodeType(a, ts)
		}
		var closure types.Type
		if n.Closure != nil {
			closure = d.decodeType(n.Closure, ts)
		} else {
			v := d.vars.Fresh()
			ts.intro.Wildcards = append(ts.intro.Wildcards, v)
			closure = types.TVar{V: v}
		}
		return types.TFunc{Args: args, Closure: closure, Ret: d.decodeType(n.Ret, ts)}
	case "record":
		fields := make(map[string]types.Type, len(n.Fields))
		for name, f := range n.Fields {
			fields[name] = d.decodeType(f, ts)
		}
		ext := types.Type(types.TEmptyRecord{})
		if n.Ext != nil {
			ext = d.decodeType(n.Ext, ts)
		}
		return types.TRecord{Fields: fields, Ext: ext}
	case "union":
		tags := make(map[string][]types.Type, len(n.Tags))
		for name, payload := range n.Tags {
			args := make([]types.Type, len(payload))
			for i, p := range payload {
				args[i] = d.decodeType(p, ts)
			}
			tags[name] = args
		}
		ext := types.Type(types.TEmptyTagUnion{})
		if n.Ext != nil {
			ext = d.decodeType(n.Ext, ts)
		}
		return types.TTagUnion{Tags: tags, Ext: ext}
	case "alias":
		return d.decodeAliasRef(n, ts)
	case "error":
		return types.TError{}
	}
	d.errorf("unknown type kind %q", n.Kind)
	return types.TError{}
}

func (d *decoder) decodeAliasRef(n *typeNode, ts *typeScope) types.Type {
	b, ok := d.sc.Lookup(n.Name)
	if !ok {
		d.errorf("unknown type alias %s", n.Name)
		return types.TError{}
	}
	alias, ok := d.sc.LookupAlias(b.Symbol)
	if !ok {
		d.errorf("%s is not a type alias", n.Name)
		return types.TError{}
	}
	if len(n.Args) != len(alias.Vars) {
		d.errorf("alias %s expects %d argument(s), got %d", n.Name, len(alias.Vars), len(n.Args))
		return types.TError{}
	}

	// Instantiate with fresh variables, then replace the fresh parameter
	// variables with the written argument types.
	inst := scope.Instantiate(alias, d.vars.Fresh)
	sub := make(map[types.Variable]types.Type, len(inst.Args))
	args := make([]types.AliasArg, len(inst.Args))
	for i, arg := range inst.Args {
		decoded := d.decodeType(n.Args[i], ts)
		sub[arg.T.(types.TVar).V] = decoded
		args[i] = types.AliasArg{Name: arg.Name, T: decoded}
	}
	return types.TAlias{
		Symbol: inst.Symbol,
		Args:   args,
		Real:   substituteVars(inst.Real, sub),
		Kind:   inst.Kind,
	}
}

// substituteVars replaces variables with whole types. MapVars only renames,
// so alias argument substitution needs its own walk.
func substituteVars(t types.Type, sub map[types.Variable]types.Type) types.Type {
	switch t := t.(type) {
	case types.TVar:
		if repl, ok := sub[t.V]; ok {
			return repl
		}
		return t
	case types.TPrim, types.TEmptyRecord, types.TEmptyTagUnion, types.TNumRange, types.TError, types.TRecMarker:
		return t
	case types.TApply:
		args := make([]types.Type, len(t.Args))
		for i, a := range t.Args {
			args[i] = substituteVars(a, sub)
		}
		return types.TApply{Symbol: t.Symbol, Args: args}
	case types.TFunc:
		args := make([]types.Type, len(t.Args))
		for i, a := range t.Args {
			args[i] = substituteVars(a, sub)
		}
		return types.TFunc{Args: args, Closure: substituteVars(t.Closure, sub), Ret: substituteVars(t.Ret, sub)}
	case types.TRecord:
		fields := make(map[string]types.Type, len(t.Fields))
		for name, f := range t.Fields {
			fields[name] = substituteVars(f, sub)
		}
		return types.TRecord{Fields: fields, Ext: substituteVars(t.Ext, sub)}
	case types.TTagUnion:
		return types.TTagUnion{Tags: substituteTags(t.Tags, sub), Ext: substituteVars(t.Ext, sub)}
	case types.TRecUnion:
		return types.TRecUnion{Rec: t.Rec, Tags: substituteTags(t.Tags, sub), Ext: substituteVars(t.Ext, sub)}
	case types.TAlias:
		args := make([]types.AliasArg, len(t.Args))
		for i, a := range t.Args {
			args[i] = types.AliasArg{Name: a.Name, T: substituteVars(a.T, sub)}
		}
		return types.TAlias{Symbol: t.Symbol, Args: args, Real: substituteVars(t.Real, sub), Kind: t.Kind}
	}
	panic(fmt.Sprintf("fixture: substituteVars: unhandled type %T", t))
}

func substituteTags(tags map[string][]types.Type, sub map[types.Variable]types.Type) map[string][]types.Type {
	out := make(map[string][]types.Type, len(tags))
	for name, payload := range tags {
		args := make([]types.Type, len(payload))
		for i, p := range payload {
			args[i] = substituteVars(p, sub)
		}
		out[name] = args
	}
	return out
}

// --- expressions ---

func (d *decoder) decodeExpr(n *exprNode) can.Expr {
	if n == nil {
		r := d.reg()
		d.errorf("missing expression node")
		return can.RuntimeError{Region: r}
	}
	r := d.reg()
	switch n.Kind {
	case "int":
		return can.IntLit{Var: d.vars.Fresh(), Bound: types.IntBound(n.Int), Value: n.Int, Region: r}
	case "float":
		return can.FloatLit{Var: d.vars.Fresh(), Value: n.Float, Region: r}
	case "str":
		return can.StrLit{Value: n.Str, Region: r}
	case "list":
		elems := make([]can.Expr, len(n.Elems))
		for i, e := range n.Elems {
			elems[i] = d.decodeExpr(e)
		}
		return can.ListLit{ElemVar: d.vars.Fresh(), Elems: elems, Region: r}
	case "var":
		sym, ok := d.lookup(n.Name)
		if !ok {
			d.errorf("unknown name %s", n.Name)
			return can.RuntimeError{Region: r}
		}
		return can.VarRef{Symbol: sym, Var: d.vars.Fresh(), Region: r}
	case "call":
		args := make([]can.CallArg, len(n.Args))
		fn := d.decodeExpr(n.Fn)
		for i, a := range n.Args {
			expr := d.decodeExpr(a)
			args[i] = can.CallArg{Var: d.vars.Fresh(), Expr: expr, Region: can.RegionOf(expr)}
		}
		return can.Call{
			FnVar:      d.vars.Fresh(),
			ClosureVar: d.vars.Fresh(),
			RetVar:     d.vars.Fresh(),
			Fn:         fn,
			Args:       args,
			Region:     r,
		}
	case "closure":
		return d.decodeClosure(n, r)
	case "if":
		return d.decodeIf(n, r)
	case "when":
		return d.decodeWhen(n, r)
	case "let":
		return d.decodeLet(n, r)
	case "record":
		fields := make(map[string]can.RecordField, len(n.Fields))
		for name, f := range n.Fields {
			expr := d.decodeExpr(f)
			fields[name] = can.RecordField{Var: d.vars.Fresh(), Expr: expr, Region: can.RegionOf(expr)}
		}
		if len(fields) == 0 {
			return can.EmptyRecord{Region: r}
		}
		return can.RecordLit{Var: d.vars.Fresh(), Fields: fields, Region: r}
	case "empty-record":
		return can.EmptyRecord{Region: r}
	case "access":
		return can.Access{
			RecordVar: d.vars.Fresh(),
			ExtVar:    d.vars.Fresh(),
			FieldVar:  d.vars.Fresh(),
			Rec:       d.decodeExpr(n.Record),
			Field:     n.Field,
			Region:    r,
		}
	case "accessor":
		return can.Accessor{
			Name:       symbols.New(d.home, d.interns.Idents(d.home).Add("#accessor_"+n.Field)),
			FnVar:      d.vars.Fresh(),
			RecordVar:  d.vars.Fresh(),
			ClosureVar: d.vars.Fresh(),
			ExtVar:     d.vars.Fresh(),
			FieldVar:   d.vars.Fresh(),
			Field:      n.Field,
			Region:     r,
		}
	case "update":
		sym, ok := d.lookup(n.Target)
		if !ok {
			d.errorf("update: unknown name %s", n.Target)
			return can.RuntimeError{Region: r}
		}
		updates := make(map[string]can.RecordField, len(n.Fields))
		for name, f := range n.Fields {
			expr := d.decodeExpr(f)
			updates[name] = can.RecordField{Var: d.vars.Fresh(), Expr: expr, Region: can.RegionOf(expr)}
		}
		return can.Update{
			RecordVar: d.vars.Fresh(),
			ExtVar:    d.vars.Fresh(),
			Symbol:    sym,
			Updates:   updates,
			Region:    r,
		}
	case "tag":
		args := make([]can.CallArg, len(n.Args))
		for i, a := range n.Args {
			expr := d.decodeExpr(a)
			args[i] = can.CallArg{Var: d.vars.Fresh(), Expr: expr, Region: can.RegionOf(expr)}
		}
		return can.Tag{
			UnionVar: d.vars.Fresh(),
			ExtVar:   d.vars.Fresh(),
			Name:     n.Name,
			Args:     args,
			Region:   r,
		}
	case "opaque":
		alias, err := d.sc.LookupOpaqueRef(n.Name)
		if err != nil {
			d.errs = append(d.errs, err)
			return can.RuntimeError{Region: r}
		}
		return can.OpaqueRef{
			Var:    d.vars.Fresh(),
			Name:   alias.Symbol,
			ArgVar: d.vars.Fresh(),
			Arg:    d.decodeExpr(n.Arg),
			Alias:  scope.Instantiate(alias, d.vars.Fresh),
			Region: r,
		}
	case "error":
		return can.RuntimeError{Region: r}
	}
	d.errorf("unknown expression kind %q", n.Kind)
	return can.RuntimeError{Region: r}
}

func (d *decoder) decodeClosure(n *exprNode, r region.Region) can.Expr {
	d.push()
	defer d.pop()
	args := make([]can.ClosureArg, len(n.Params))
	for i, p := range n.Params {
		pat := d.decodePattern(p, d.bindLocal)
		args[i] = can.ClosureArg{Var: d.vars.Fresh(), Pattern: pat, Region: can.PatternRegionOf(pat)}
	}
	body := d.decodeExpr(n.Body)
	return can.Closure{
		FnVar:      d.vars.Fresh(),
		ClosureVar: d.vars.Fresh(),
		RetVar:     d.vars.Fresh(),
		Name:       symbols.New(d.home, d.interns.Idents(d.home).Add("#anon")),
		Args:       args,
		Body:       body,
		BodyRegion: can.RegionOf(body),
		Region:     r,
	}
}

func (d *decoder) decodeIf(n *exprNode, r region.Region) can.Expr {
	branches := make([]can.IfBranch, len(n.Branches))
	for i, b := range n.Branches {
		cond := d.decodeExpr(b.Cond)
		body := d.decodeExpr(b.Body)
		branches[i] = can.IfBranch{
			Cond:       cond,
			CondRegion: can.RegionOf(cond),
			Body:       body,
			BodyRegion: can.RegionOf(body),
		}
	}
	finalElse := d.decodeExpr(n.Else)
	return can.If{
		CondVar:    d.vars.Fresh(),
		BranchVar:  d.vars.Fresh(),
		Branches:   branches,
		FinalElse:  finalElse,
		ElseRegion: can.RegionOf(finalElse),
		Region:     r,
	}
}

func (d *decoder) decodeWhen(n *exprNode, r region.Region) can.Expr {
	cond := d.decodeExpr(n.Cond)
	branches := make([]can.WhenBranch, len(n.Branches))
	for i, b := range n.Branches {
		d.push()
		pats := make([]can.WhenPattern, len(b.Patterns))
		for j, p := range b.Patterns {
			pat := d.decodePattern(p, d.bindLocal)
			pats[j] = can.WhenPattern{Pattern: pat, Region: can.PatternRegionOf(pat)}
		}
		branch := can.WhenBranch{Patterns: pats}
		if b.Guard != nil {
			branch.Guard = d.decodeExpr(b.Guard)
			branch.GuardRegion = can.RegionOf(branch.Guard)
		}
		branch.Body = d.decodeExpr(b.Body)
		branch.BodyRegion = can.RegionOf(branch.Body)
		branches[i] = branch
		d.pop()
	}
	return can.When{
		CondVar:    d.vars.Fresh(),
		ExprVar:    d.vars.Fresh(),
		Cond:       cond,
		CondRegion: can.RegionOf(cond),
		Branches:   branches,
		Region:     r,
	}
}

func (d *decoder) decodeLet(n *exprNode, r region.Region) can.Expr {
	d.push()
	defer d.pop()

	if n.Rec {
		// Recursive group: names first, then bodies, like the top level.
		defs := make([]*can.Def, len(n.Defs))
		for i := range n.Defs {
			defs[i] = d.letDefSkeleton(&n.Defs[i])
		}
		for i := range n.Defs {
			d.letDefBody(&n.Defs[i], defs[i])
		}
		cont := d.decodeExpr(n.Cont)
		return can.LetRec{Defs: defs, Cont: cont, Region: r}
	}

	// Sequential bindings: each body sees the ones before it, so decode the
	// body before introducing the pattern.
	defs := make([]*can.Def, len(n.Defs))
	for i := range n.Defs {
		dto := &n.Defs[i]
		def := &can.Def{
			ExprVar:     d.vars.Fresh(),
			PatternVars: make(map[symbols.Symbol]types.Variable),
		}
		d.letDefBody(dto, def)
		def.Pattern = d.letPattern(dto)
		def.PatternRegion = can.PatternRegionOf(def.Pattern)
		for _, sym := range can.BoundSymbols(def.Pattern) {
			def.PatternVars[sym] = d.vars.Fresh()
		}
		if dto.Annotation != nil {
			def.Annotation = d.decodeAnnotation(dto.Annotation)
		}
		defs[i] = def
	}
	cont := d.decodeExpr(n.Cont)
	out := cont
	for i := len(defs) - 1; i >= 0; i-- {
		out = can.LetNonRec{Def: defs[i], Cont: out, Region: r}
	}
	return out
}

func (d *decoder) letDefSkeleton(dto *declDTO) *can.Def {
	def := &can.Def{
		ExprVar:     d.vars.Fresh(),
		PatternVars: make(map[symbols.Symbol]types.Variable),
	}
	def.Pattern = d.letPattern(dto)
	def.PatternRegion = can.PatternRegionOf(def.Pattern)
	for _, sym := range can.BoundSymbols(def.Pattern) {
		def.PatternVars[sym] = d.vars.Fresh()
	}
	if dto.Annotation != nil {
		def.Annotation = d.decodeAnnotation(dto.Annotation)
	}
	return def
}

func (d *decoder) letPattern(dto *declDTO) can.Pattern {
	r := d.reg()
	switch {
	case dto.Name != "":
		return can.PIdent{Symbol: d.bindLocal(dto.Name, r), Region: r}
	case dto.Pattern != nil:
		return d.decodePattern(dto.Pattern, d.bindLocal)
	}
	d.errorf("let binding needs a name or a pattern")
	return can.PMalformed{Region: r}
}

func (d *decoder) letDefBody(dto *declDTO, def *can.Def) {
	if dto.Expr == nil {
		r := d.reg()
		d.errorf("let binding %s has no expression", dto.Name)
		def.Expr = can.RuntimeError{Region: r}
		def.ExprRegion = r
		return
	}
	def.Expr = d.decodeExpr(dto.Expr)
	def.ExprRegion = can.RegionOf(def.Expr)
	if ident, ok := def.Pattern.(can.PIdent); ok {
		if clo, isClosure := def.Expr.(can.Closure); isClosure {
			clo.Name = ident.Symbol
			def.Expr = clo
		}
	}
}

// --- patterns ---

func (d *decoder) decodePattern(n *patternNode, bind func(string, region.Region) symbols.Symbol) can.Pattern {
	r := d.reg()
	if n == nil {
		d.errorf("missing pattern node")
		return can.PMalformed{Region: r}
	}
	switch n.Kind {
	case "ident":
		return can.PIdent{Symbol: bind(n.Name, r), Region: r}
	case "underscore":
		return can.PUnderscore{Region: r}
	case "int":
		return can.PIntLit{Var: d.vars.Fresh(), Bound: types.IntBound(n.Int), Value: n.Int, Region: r}
	case "str":
		return can.PStrLit{Value: n.Str, Region: r}
	case "tag":
		args := make([]can.PatternArg, len(n.Args))
		for i, a := range n.Args {
			pat := d.decodePattern(a, bind)
			args[i] = can.PatternArg{Var: d.vars.Fresh(), Pattern: pat, Region: can.PatternRegionOf(pat)}
		}
		return can.PTag{
			WholeVar: d.vars.Fresh(),
			ExtVar:   d.vars.Fresh(),
			Name:     n.Name,
			Args:     args,
			Region:   r,
		}
	case "record":
		destructs := make([]can.Destruct, len(n.Fields))
		for i, f := range n.Fields {
			dr := d.reg()
			dest := can.Destruct{Var: d.vars.Fresh(), Label: f.Name, Region: dr}
			switch {
			case f.Guard != nil:
				dest.Kind = can.DestructGuard
				dest.Guard = d.decodePattern(f.Guard, bind)
			case f.Default != nil:
				dest.Kind = can.DestructOptional
				dest.Symbol = bind(f.Name, dr)
				dest.Default = d.decodeExpr(f.Default)
			default:
				dest.Kind = can.DestructRequired
				dest.Symbol = bind(f.Name, dr)
			}
			destructs[i] = dest
		}
		return can.PRecord{
			WholeVar:  d.vars.Fresh(),
			ExtVar:    d.vars.Fresh(),
			Destructs: destructs,
			Region:    r,
		}
	case "opaque":
		alias, err := d.sc.LookupOpaqueRef(n.Name)
		if err != nil {
			d.errs = append(d.errs, err)
			return can.PMalformed{Region: r}
		}
		pat := d.decodePattern(n.Arg, bind)
		return can.POpaque{
			WholeVar: d.vars.Fresh(),
			Name:     alias.Symbol,
			Arg:      can.PatternArg{Var: d.vars.Fresh(), Pattern: pat, Region: can.PatternRegionOf(pat)},
			Alias:    scope.Instantiate(alias, d.vars.Fresh),
			Region:   r,
		}
	case "malformed":
		return can.PMalformed{Region: r}
	}
	d.errorf("unknown pattern kind %q", n.Kind)
	return can.PMalformed{Region: r}
}

// Package symbols provides interned identities for modules and identifiers.
//
// A Symbol packs a module id and an ident id into one comparable handle.
// Canonicalization mints symbols; everything downstream (scope, constraints,
// the solver, problems) passes them around without touching strings. Names
// come back out only when rendering diagnostics.
package symbols

import "fmt"

// ModuleID identifies a module within one compilation. Zero is reserved so
// that the zero Symbol stays invalid.
type ModuleID uint32

// IdentID identifies an identifier within its module.
type IdentID uint32

// Symbol is a (module, ident) pair packed into a uint64. The zero value is
// NoSymbol and never names anything.
type Symbol uint64

// NoSymbol is the absent-symbol sentinel.
const NoSymbol Symbol = 0

// BuiltinModule is the module that hosts compiler-known names. It is always
// module id 1 and is seeded by NewInterns, so the Sym* constants below are
// stable across runs.
const BuiltinModule ModuleID = 1

// New packs a module and ident id into a Symbol.
func New(module ModuleID, ident IdentID) Symbol {
	return Symbol(uint64(module)<<32 | uint64(ident))
}

// Module returns the module id of s.
func (s Symbol) Module() ModuleID {
	return ModuleID(s >> 32)
}

// Ident returns the ident id of s within its module.
func (s Symbol) Ident() IdentID {
	return IdentID(s & 0xffffffff)
}

// IsBuiltin reports whether s lives in the builtin module.
func (s Symbol) IsBuiltin() bool {
	return s.Module() == BuiltinModule
}

func (s Symbol) String() string {
	if s == NoSymbol {
		return "<no symbol>"
	}
	return fmt.Sprintf("sym(%d.%d)", s.Module(), s.Ident())
}

// Builtin symbols, in seeding order. NewInterns registers these names first,
// so the constants below match what lookups return.
const (
	identList IdentID = iota
	identEq
	identHash
	identDefault
	identIsEq
	identHashMember
	identDefaultMember
)

var (
	// SymList is the builtin List type constructor.
	SymList = New(BuiltinModule, identList)

	// Builtin abilities.
	SymAbilityEq      = New(BuiltinModule, identEq)
	SymAbilityHash    = New(BuiltinModule, identHash)
	SymAbilityDefault = New(BuiltinModule, identDefault)

	// Builtin ability members.
	SymMemberIsEq    = New(BuiltinModule, identIsEq)
	SymMemberHash    = New(BuiltinModule, identHashMember)
	SymMemberDefault = New(BuiltinModule, identDefaultMember)
)

var builtinIdents = []string{
	"List",
	"Eq",
	"Hash",
	"Default",
	"isEq",
	"hash",
	"default",
}

// IdentIDs interns identifier names for one module.
type IdentIDs struct {
	names  []string
	byName map[string]IdentID
}

// NewIdentIDs returns an empty ident table.
func NewIdentIDs() *IdentIDs {
	return &IdentIDs{byName: make(map[string]IdentID)}
}

// Add registers name under a fresh id, even if the name was seen before.
// Shadowing relies on this: the shadow gets its own id.
func (ids *IdentIDs) Add(name string) IdentID {
	id := IdentID(len(ids.names))
	ids.names = append(ids.names, name)
	ids.byName[name] = id
	return id
}

// GetOrAdd returns the existing id for name, or registers it.
func (ids *IdentIDs) GetOrAdd(name string) IdentID {
	if id, ok := ids.byName[name]; ok {
		return id
	}
	return ids.Add(name)
}

// ID returns the id most recently registered for name.
func (ids *IdentIDs) ID(name string) (IdentID, bool) {
	id, ok := ids.byName[name]
	return id, ok
}

// Name returns the name registered under id, or "" if out of range.
func (ids *IdentIDs) Name(id IdentID) string {
	if int(id) >= len(ids.names) {
		return ""
	}
	return ids.names[id]
}

// Len returns the number of registered idents.
func (ids *IdentIDs) Len() int {
	return len(ids.names)
}

// Interns owns module and identifier names for one compilation.
type Interns struct {
	moduleNames []string // index = ModuleID - 1
	modulesBy   map[string]ModuleID
	idents      map[ModuleID]*IdentIDs
}

// NewInterns returns an intern table with the builtin module seeded.
func NewInterns() *Interns {
	in := &Interns{
		modulesBy: make(map[string]ModuleID),
		idents:    make(map[ModuleID]*IdentIDs),
	}
	id := in.AddModule("Builtin")
	if id != BuiltinModule {
		panic("symbols: builtin module must be the first registered module")
	}
	for _, name := range builtinIdents {
		in.idents[BuiltinModule].Add(name)
	}
	return in
}

// AddModule registers a module name and returns its id. Registering the same
// name twice returns the original id.
func (in *Interns) AddModule(name string) ModuleID {
	if id, ok := in.modulesBy[name]; ok {
		return id
	}
	id := ModuleID(len(in.moduleNames) + 1)
	in.moduleNames = append(in.moduleNames, name)
	in.modulesBy[name] = id
	in.idents[id] = NewIdentIDs()
	return id
}

// ModuleName returns the name of module id, or "" if unknown.
func (in *Interns) ModuleName(id ModuleID) string {
	if id == 0 || int(id) > len(in.moduleNames) {
		return ""
	}
	return in.moduleNames[id-1]
}

// Idents returns the ident table for module, creating it if needed.
func (in *Interns) Idents(module ModuleID) *IdentIDs {
	ids, ok := in.idents[module]
	if !ok {
		ids = NewIdentIDs()
		in.idents[module] = ids
	}
	return ids
}

// Symbol interns name in module and returns the packed symbol. Existing
// names are reused; shadowing goes through IdentIDs.Add explicitly.
func (in *Interns) Symbol(module ModuleID, name string) Symbol {
	return New(module, in.Idents(module).GetOrAdd(name))
}

// Name renders a symbol as Module.ident for diagnostics. Unknown symbols
// render through Symbol.String.
func (in *Interns) Name(s Symbol) string {
	if s == NoSymbol {
		return "<no symbol>"
	}
	mod := in.ModuleName(s.Module())
	ids, ok := in.idents[s.Module()]
	if mod == "" || !ok {
		return s.String()
	}
	ident := ids.Name(s.Ident())
	if ident == "" {
		return s.String()
	}
	return mod + "." + ident
}

// Package scope tracks what a name means at one point of a module:
// identifier bindings, type aliases, and the hooks that route ability member
// shadows into the abilities store. Canonicalization owns it; the solver only
// ever sees the alias and ability data it accumulated.
package scope

import (
	"fmt"

	"github.com/ternlang/tern/internal/abilities"
	"github.com/ternlang/tern/internal/region"
	"github.com/ternlang/tern/internal/symbols"
	"github.com/ternlang/tern/internal/types"
)

// Binding is one in-scope identifier.
type Binding struct {
	Symbol symbols.Symbol
	Region region.Region
}

// Shadowed reports a rejected rebinding: where the original was introduced
// and the fresh symbol minted for the shadow so canonicalization can keep
// going with a usable handle.
type Shadowed struct {
	Name           string
	OriginalRegion region.Region
	ShadowSymbol   symbols.Symbol
	ShadowRegion   region.Region
}

func (s *Shadowed) Error() string {
	return fmt.Sprintf("%s is already defined at %s", s.Name, s.OriginalRegion)
}

// Scope is the lexical scope of one module during canonicalization.
type Scope struct {
	home      symbols.ModuleID
	interns   *symbols.Interns
	abilities *abilities.Store

	idents  map[string]Binding
	regions map[symbols.Symbol]region.Region
	aliases map[symbols.Symbol]*types.Alias
}

// New returns an empty scope for the home module. The abilities store is
// shared with the rest of the compile; member shadows registered here are
// what the solver later resolves specializations through.
func New(home symbols.ModuleID, interns *symbols.Interns, ab *abilities.Store) *Scope {
	return &Scope{
		home:      home,
		interns:   interns,
		abilities: ab,
		idents:    make(map[string]Binding),
		regions:   make(map[symbols.Symbol]region.Region),
		aliases:   make(map[symbols.Symbol]*types.Alias),
	}
}

// Home returns the module this scope canonicalizes.
func (s *Scope) Home() symbols.ModuleID { return s.home }

// Interns returns the shared intern table.
func (s *Scope) Interns() *symbols.Interns { return s.interns }

// Abilities returns the shared abilities store.
func (s *Scope) Abilities() *abilities.Store { return s.abilities }

// Introduce binds name to a fresh symbol in the home module. If the name is
// already bound, the original binding stays, a fresh shadow symbol is minted
// anyway, and the returned Shadowed describes the clash.
func (s *Scope) Introduce(name string, r region.Region) (symbols.Symbol, *Shadowed) {
	if existing, taken := s.idents[name]; taken {
		shadow := symbols.New(s.home, s.interns.Idents(s.home).Add(name))
		s.regions[shadow] = r
		return shadow, &Shadowed{
			Name:           name,
			OriginalRegion: existing.Region,
			ShadowSymbol:   shadow,
			ShadowRegion:   r,
		}
	}
	sym := symbols.New(s.home, s.interns.Idents(s.home).Add(name))
	s.idents[name] = Binding{Symbol: sym, Region: r}
	s.regions[sym] = r
	return sym, nil
}

// IntroduceOrShadowAbilityMember is Introduce with the one sanctioned kind of
// shadowing: rebinding an ability member's name declares a specialization of
// that member. The shadow gets its own symbol, is bound in place of the
// member, and is marked pending in the abilities store until the opaque it
// specializes for is known.
func (s *Scope) IntroduceOrShadowAbilityMember(name string, r region.Region) (symbols.Symbol, *Shadowed) {
	existing, taken := s.idents[name]
	if !taken || !s.abilities.IsMember(existing.Symbol) {
		return s.Introduce(name, r)
	}
	shadow := symbols.New(s.home, s.interns.Idents(s.home).Add(name))
	s.idents[name] = Binding{Symbol: shadow, Region: r}
	s.regions[shadow] = r
	s.abilities.MarkPending(shadow, existing.Symbol)
	return shadow, nil
}

// Import binds name to a symbol from another module.
func (s *Scope) Import(name string, sym symbols.Symbol, r region.Region) *Shadowed {
	if existing, taken := s.idents[name]; taken {
		return &Shadowed{Name: name, OriginalRegion: existing.Region, ShadowSymbol: existing.Symbol, ShadowRegion: r}
	}
	s.idents[name] = Binding{Symbol: sym, Region: r}
	s.regions[sym] = r
	return nil
}

// Ignore mints a symbol for a binder that is deliberately unused (`_`).
// Nothing is added to the ident map, so the name can never be looked up.
func (s *Scope) Ignore(r region.Region) symbols.Symbol {
	sym := symbols.New(s.home, s.interns.Idents(s.home).Add("_"))
	s.regions[sym] = r
	return sym
}

// Lookup resolves name to its current binding.
func (s *Scope) Lookup(name string) (Binding, bool) {
	b, ok := s.idents[name]
	return b, ok
}

// RegionOf returns where a symbol was introduced.
func (s *Scope) RegionOf(sym symbols.Symbol) (region.Region, bool) {
	r, ok := s.regions[sym]
	return r, ok
}

// AddAlias creates and registers an alias definition in one step.
func (s *Scope) AddAlias(sym symbols.Symbol, r region.Region, vars []types.AliasTypeVar, real types.Type, kind types.AliasKind) *types.Alias {
	alias := CreateAlias(sym, r, vars, real, kind)
	s.aliases[sym] = alias
	return alias
}

// LookupAlias returns the alias registered under sym.
func (s *Scope) LookupAlias(sym symbols.Symbol) (*types.Alias, bool) {
	a, ok := s.aliases[sym]
	return a, ok
}

// LookupOpaqueRef resolves an `@Name` reference. Opaque wrapping and
// unwrapping is only legal in the module that declared the opaque, so the
// name must resolve to an opaque alias bound in this scope's home module.
func (s *Scope) LookupOpaqueRef(name string) (*types.Alias, error) {
	b, ok := s.idents[name]
	if !ok {
		return nil, fmt.Errorf("opaque type %s is not declared in this module", name)
	}
	alias, ok := s.aliases[b.Symbol]
	if !ok || alias.Kind != types.AliasOpaque {
		return nil, fmt.Errorf("%s is not an opaque type", name)
	}
	if b.Symbol.Module() != s.home {
		return nil, fmt.Errorf("opaque type %s can only be wrapped in its defining module", name)
	}
	return alias, nil
}

// Aliases returns every registered alias keyed by symbol. The map is shared;
// callers treat it as read-only.
func (s *Scope) Aliases() map[symbols.Symbol]*types.Alias {
	return s.aliases
}

// CreateAlias builds an alias definition and verifies that the body only
// mentions the declared variables. A variable outside the declared list means
// canonicalization dropped one on the floor; that is a compiler defect, not a
// user error.
func CreateAlias(sym symbols.Symbol, r region.Region, vars []types.AliasTypeVar, real types.Type, kind types.AliasKind) *types.Alias {
	alias := &types.Alias{
		Symbol: sym,
		Region: r,
		Vars:   vars,
		Real:   real,
		Kind:   kind,
	}

	declared := make(map[types.Variable]bool, len(vars))
	for _, v := range vars {
		declared[v.Var] = true
	}
	types.WalkVars(real, func(v types.Variable) {
		if !declared[v] {
			// Variables the body introduces beyond the named parameters are
			// the alias's hidden quantifiers (recursion knots); track them so
			// instantiation refreshes them too.
			declared[v] = true
			alias.RecursionVars = append(alias.RecursionVars, v)
		}
	})
	return alias
}

// Instantiate copies the alias with fresh variables for its parameters and
// hidden quantifiers, minted from fresh. Returns the instantiated alias
// application type.
func Instantiate(alias *types.Alias, fresh func() types.Variable) types.TAlias {
	table := make(map[types.Variable]types.Variable, len(alias.Vars))
	args := make([]types.AliasArg, len(alias.Vars))
	for i, v := range alias.Vars {
		table[v.Var] = fresh()
		args[i] = types.AliasArg{Name: v.Name, T: types.TVar{V: table[v.Var]}}
	}
	for _, v := range alias.HiddenVars() {
		if _, done := table[v]; !done {
			table[v] = fresh()
		}
	}
	real := types.MapVars(alias.Real, func(v types.Variable) types.Variable {
		if mapped, ok := table[v]; ok {
			return mapped
		}
		return v
	})
	return types.TAlias{Symbol: alias.Symbol, Args: args, Real: real, Kind: alias.Kind}
}

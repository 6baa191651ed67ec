// Package abilities tracks ability declarations and implementations: which
// members each ability demands, the signature each member promises, and
// which symbol specializes a member for a given opaque type. The checker
// reads it to frontload member signatures and to resolve obligations; it is
// populated during canonicalization and read-only afterwards.
package abilities

import (
	"sort"

	"github.com/ternlang/tern/internal/region"
	"github.com/ternlang/tern/internal/symbols"
	"github.com/ternlang/tern/internal/types"
)

// MemberVariables are the variables introduced by a member's signature
// annotation, kept for instantiating the signature at call sites.
type MemberVariables struct {
	Rigid []types.Variable
	Flex  []types.Variable
	Able  []types.Variable
}

// MemberData is everything known about one ability member.
type MemberData struct {
	Ability      symbols.Symbol
	Signature    types.Type
	SignatureVar types.Variable
	Vars         MemberVariables
	Region       region.Region
}

// ImplKind says how an opaque satisfies an ability.
type ImplKind uint8

const (
	// ImplMembers: the opaque defines the members itself.
	ImplMembers ImplKind = iota
	// ImplDerived: the opaque asked for the implementation to be derived
	// from its real type.
	ImplDerived
)

// Impl is one (opaque, ability) implementation record.
type Impl struct {
	Kind         ImplKind
	Members      map[symbols.Symbol]symbols.Symbol // member -> specializing symbol
	DerivedName  symbols.Symbol                    // ImplDerived: synthesized symbol
	DeriveRegion region.Region
}

type implKey struct {
	Opaque  symbols.Symbol
	Ability symbols.Symbol
}

// Store is the module's ability world.
type Store struct {
	members        map[symbols.Symbol]MemberData
	abilityMembers map[symbols.Symbol][]symbols.Symbol
	impls          map[implKey]Impl
	pending        map[symbols.Symbol]symbols.Symbol // specializing symbol -> member
}

func NewStore() *Store {
	return &Store{
		members:        make(map[symbols.Symbol]MemberData),
		abilityMembers: make(map[symbols.Symbol][]symbols.Symbol),
		impls:          make(map[implKey]Impl),
		pending:        make(map[symbols.Symbol]symbols.Symbol),
	}
}

// RegisterMember records a member of an ability. Members keep declaration
// order; the solver frontloads their signatures in this order.
func (s *Store) RegisterMember(member symbols.Symbol, data MemberData) {
	if _, dup := s.members[member]; dup {
		panic("abilities: member registered twice")
	}
	s.members[member] = data
	s.abilityMembers[data.Ability] = append(s.abilityMembers[data.Ability], member)
}

// Member returns what is known about an ability member.
func (s *Store) Member(member symbols.Symbol) (MemberData, bool) {
	data, ok := s.members[member]
	return data, ok
}

// Members returns an ability's members in declaration order.
func (s *Store) Members(ability symbols.Symbol) []symbols.Symbol {
	return s.abilityMembers[ability]
}

// Abilities returns every ability with at least one member, sorted by symbol
// so iteration order is reproducible.
func (s *Store) Abilities() []symbols.Symbol {
	out := make([]symbols.Symbol, 0, len(s.abilityMembers))
	for ability := range s.abilityMembers {
		out = append(out, ability)
	}
	sortSymbols(out)
	return out
}

// MemberSymbols returns every registered member, sorted by symbol.
func (s *Store) MemberSymbols() []symbols.Symbol {
	out := make([]symbols.Symbol, 0, len(s.members))
	for member := range s.members {
		out = append(out, member)
	}
	sortSymbols(out)
	return out
}

// IsMember reports whether sym names an ability member.
func (s *Store) IsMember(sym symbols.Symbol) bool {
	_, ok := s.members[sym]
	return ok
}

// MarkPending records that specializing was introduced by shadowing an
// ability member's name; the opaque it specializes for is discovered later,
// when its definition is processed.
func (s *Store) MarkPending(specializing, member symbols.Symbol) {
	s.pending[specializing] = member
}

// Pending looks up the member a specializing symbol shadows.
func (s *Store) Pending(specializing symbols.Symbol) (symbols.Symbol, bool) {
	member, ok := s.pending[specializing]
	return member, ok
}

// RegisterMemberImpl ties a specializing symbol to the opaque it implements
// member for.
func (s *Store) RegisterMemberImpl(opaque, member, specializing symbols.Symbol) {
	data, ok := s.members[member]
	if !ok {
		panic("abilities: implementation for unknown member")
	}
	key := implKey{Opaque: opaque, Ability: data.Ability}
	impl, ok := s.impls[key]
	if !ok {
		impl = Impl{Kind: ImplMembers, Members: make(map[symbols.Symbol]symbols.Symbol)}
	}
	impl.Members[member] = specializing
	s.impls[key] = impl
	delete(s.pending, specializing)
}

// RegisterDerived records `Opaque implements Ability` asked for by a derive
// clause. name is the synthesized symbol resolution hands out when the
// derivation succeeds.
func (s *Store) RegisterDerived(opaque, ability, name symbols.Symbol, r region.Region) {
	key := implKey{Opaque: opaque, Ability: ability}
	s.impls[key] = Impl{Kind: ImplDerived, DerivedName: name, DeriveRegion: r}
}

// Implementation returns the implementation record for (opaque, ability).
func (s *Store) Implementation(opaque, ability symbols.Symbol) (Impl, bool) {
	impl, ok := s.impls[implKey{Opaque: opaque, Ability: ability}]
	return impl, ok
}

// Specializations returns the (opaque, member, specializing) triples in
// deterministic order, for export and debugging.
func (s *Store) Specializations() []Specialization {
	var out []Specialization
	for key, impl := range s.impls {
		if impl.Kind != ImplMembers {
			continue
		}
		for member, spec := range impl.Members {
			out = append(out, Specialization{
				Opaque:       key.Opaque,
				Member:       member,
				Specializing: spec,
			})
		}
	}
	sortSpecializations(out)
	return out
}

// Specialization is one resolved (opaque, member) implementation.
type Specialization struct {
	Opaque       symbols.Symbol
	Member       symbols.Symbol
	Specializing symbols.Symbol
}

func sortSymbols(syms []symbols.Symbol) {
	sort.Slice(syms, func(i, j int) bool { return syms[i] < syms[j] })
}

func sortSpecializations(specs []Specialization) {
	sort.Slice(specs, func(i, j int) bool {
		if specs[i].Opaque != specs[j].Opaque {
			return specs[i].Opaque < specs[j].Opaque
		}
		return specs[i].Member < specs[j].Member
	})
}

package modcache

import (
	"fmt"

	"gopkg.in/yaml.v3"

	"github.com/ternlang/tern/internal/solve"
	"github.com/ternlang/tern/internal/subs"
	"github.com/ternlang/tern/internal/symbols"
	"github.com/ternlang/tern/internal/types"
)

// The artifact payload is YAML over plain DTOs. Symbols are stored as
// module/name pairs and re-interned on decode: packed symbol ids are only
// stable within one compilation, names are stable across them.

type artifactDTO struct {
	Artifact string       `yaml:"artifact"`
	Entries  []entryDTO   `yaml:"entries"`
	Exposed  []exposedDTO `yaml:"exposed"`
}

type exposedDTO struct {
	Module string `yaml:"module"`
	Name   string `yaml:"name"`
	Var    int32  `yaml:"var"`
}

type entryDTO struct {
	Var   int32      `yaml:"var"`
	Kind  string     `yaml:"kind"` // unbound, bound, redirect
	Rank  int32      `yaml:"rank,omitempty"`
	Rigid bool       `yaml:"rigid,omitempty"`
	Name  string     `yaml:"name,omitempty"`
	Able  *symbolDTO `yaml:"able,omitempty"`
	Type  *typeDTO   `yaml:"type,omitempty"`
	To    int32      `yaml:"to,omitempty"`
}

type symbolDTO struct {
	Module string `yaml:"module"`
	Name   string `yaml:"name"`
}

type typeDTO struct {
	Kind    string                `yaml:"kind"`
	Var     int32                 `yaml:"var,omitempty"`
	Name    string                `yaml:"name,omitempty"`
	Symbol  *symbolDTO            `yaml:"symbol,omitempty"`
	Args    []*typeDTO            `yaml:"args,omitempty"`
	Closure *typeDTO              `yaml:"closure,omitempty"`
	Ret     *typeDTO              `yaml:"ret,omitempty"`
	Ext     *typeDTO              `yaml:"ext,omitempty"`
	Fields  map[string]*typeDTO   `yaml:"fields,omitempty"`
	Tags    map[string][]*typeDTO `yaml:"tags,omitempty"`
	Rec     int32                 `yaml:"rec,omitempty"`
	Alias   *aliasDTO             `yaml:"alias,omitempty"`
	Bound   *numBoundDTO          `yaml:"bound,omitempty"`
}

type aliasDTO struct {
	Args []aliasArgDTO `yaml:"args,omitempty"`
	Real *typeDTO      `yaml:"real"`
	Kind string        `yaml:"kind"` // structural, opaque
}

type aliasArgDTO struct {
	Name string   `yaml:"name"`
	Type *typeDTO `yaml:"type"`
}

type numBoundDTO struct {
	Sign  bool `yaml:"sign"`
	Bits  int  `yaml:"bits"`
	Float bool `yaml:"float"`
}

type encoder struct {
	interns *symbols.Interns
}

// Encode serializes an exposed-types artifact to the YAML payload.
func Encode(interns *symbols.Interns, exposed *solve.ExposedModuleTypes) ([]byte, error) {
	enc := encoder{interns: interns}
	st := exposed.Storage.Store

	dto := artifactDTO{Artifact: exposed.ArtifactID.String()}
	for v := int32(0); v < int32(st.Len()); v++ {
		entry, err := enc.entry(types.Variable(v), st.Content(types.Variable(v)))
		if err != nil {
			return nil, err
		}
		dto.Entries = append(dto.Entries, entry)
	}
	for sym, v := range exposed.Types {
		sd := enc.symbol(sym)
		dto.Exposed = append(dto.Exposed, exposedDTO{Module: sd.Module, Name: sd.Name, Var: int32(v)})
	}
	return yaml.Marshal(&dto)
}

func (enc encoder) entry(v types.Variable, c subs.Content) (entryDTO, error) {
	switch c := c.(type) {
	case subs.Unbound:
		entry := entryDTO{Var: int32(v), Kind: "unbound", Rank: int32(c.Rank), Rigid: c.Rigid, Name: c.Name}
		if c.Able != symbols.NoSymbol {
			able := enc.symbol(c.Able)
			entry.Able = &able
		}
		return entry, nil
	case subs.Bound:
		return entryDTO{Var: int32(v), Kind: "bound", Rank: int32(c.Rank), Type: enc.typ(c.T)}, nil
	case subs.Redirect:
		return entryDTO{Var: int32(v), Kind: "redirect", To: int32(c.To)}, nil
	}
	return entryDTO{}, fmt.Errorf("modcache: unencodable store content %T", c)
}

func (enc encoder) symbol(sym symbols.Symbol) symbolDTO {
	module := enc.interns.ModuleName(sym.Module())
	name := enc.interns.Idents(sym.Module()).Name(sym.Ident())
	return symbolDTO{Module: module, Name: name}
}

func (enc encoder) typ(t types.Type) *typeDTO {
	switch t := t.(type) {
	case types.TVar:
		return &typeDTO{Kind: "var", Var: int32(t.V)}
	case types.TPrim:
		return &typeDTO{Kind: "prim", Name: t.Name}
	case types.TApply:
		sym := enc.symbol(t.Symbol)
		return &typeDTO{Kind: "apply", Symbol: &sym, Args: enc.types(t.Args)}
	case types.TFunc:
		return &typeDTO{Kind: "func", Args: enc.types(t.Args), Closure: enc.typ(t.Closure), Ret: enc.typ(t.Ret)}
	case types.TRecord:
		fields := make(map[string]*typeDTO, len(t.Fields))
		for name, ft := range t.Fields {
			fields[name] = enc.typ(ft)
		}
		return &typeDTO{Kind: "record", Fields: fields, Ext: enc.typ(t.Ext)}
	case types.TTagUnion:
		return &typeDTO{Kind: "tags", Tags: enc.tags(t.Tags), Ext: enc.typ(t.Ext)}
	case types.TRecUnion:
		return &typeDTO{Kind: "recunion", Rec: int32(t.Rec), Tags: enc.tags(t.Tags), Ext: enc.typ(t.Ext)}
	case types.TEmptyRecord:
		return &typeDTO{Kind: "emptyrecord"}
	case types.TEmptyTagUnion:
		return &typeDTO{Kind: "emptytags"}
	case types.TAlias:
		sym := enc.symbol(t.Symbol)
		alias := &aliasDTO{Real: enc.typ(t.Real), Kind: "structural"}
		if t.Kind == types.AliasOpaque {
			alias.Kind = "opaque"
		}
		for _, arg := range t.Args {
			alias.Args = append(alias.Args, aliasArgDTO{Name: arg.Name, Type: enc.typ(arg.T)})
		}
		return &typeDTO{Kind: "alias", Symbol: &sym, Alias: alias}
	case types.TRecMarker:
		return &typeDTO{Kind: "recmarker", Var: int32(t.Structure)}
	case types.TNumRange:
		return &typeDTO{Kind: "numrange", Bound: &numBoundDTO{Sign: t.Bound.Sign, Bits: t.Bound.Bits, Float: t.Bound.Float}}
	case types.TError:
		return &typeDTO{Kind: "error"}
	}
	panic(fmt.Sprintf("modcache: unencodable type variant %T", t))
}

func (enc encoder) types(ts []types.Type) []*typeDTO {
	out := make([]*typeDTO, len(ts))
	for i, t := range ts {
		out[i] = enc.typ(t)
	}
	return out
}

func (enc encoder) tags(tags map[string][]types.Type) map[string][]*typeDTO {
	out := make(map[string][]*typeDTO, len(tags))
	for name, payloads := range tags {
		out[name] = enc.types(payloads)
	}
	return out
}

type decoder struct {
	interns *symbols.Interns
}

// Decode rebuilds an exposed-types artifact from the YAML payload,
// re-interning symbol names through interns.
func Decode(interns *symbols.Interns, payload []byte) (*solve.ExposedModuleTypes, error) {
	var dto artifactDTO
	if err := yaml.Unmarshal(payload, &dto); err != nil {
		return nil, fmt.Errorf("modcache: decode artifact: %w", err)
	}
	id, err := parseArtifactID(dto.Artifact)
	if err != nil {
		return nil, err
	}

	dec := decoder{interns: interns}
	storage := subs.NewStorageStore()
	for i, entry := range dto.Entries {
		if entry.Var != int32(i) {
			return nil, fmt.Errorf("modcache: artifact entry %d claims variable %d", i, entry.Var)
		}
		content, err := dec.content(entry)
		if err != nil {
			return nil, err
		}
		storage.Store.Fresh(content)
	}

	out := &solve.ExposedModuleTypes{
		ArtifactID: id,
		Storage:    storage,
		Types:      make(map[symbols.Symbol]types.Variable, len(dto.Exposed)),
	}
	for _, exp := range dto.Exposed {
		sym := dec.symbol(symbolDTO{Module: exp.Module, Name: exp.Name})
		out.Types[sym] = types.Variable(exp.Var)
	}
	return out, nil
}

func (dec decoder) content(entry entryDTO) (subs.Content, error) {
	switch entry.Kind {
	case "unbound":
		c := subs.Unbound{Rank: subs.Rank(entry.Rank), Rigid: entry.Rigid, Name: entry.Name}
		if entry.Able != nil {
			c.Able = dec.symbol(*entry.Able)
		}
		return c, nil
	case "bound":
		if entry.Type == nil {
			return nil, fmt.Errorf("modcache: bound entry %d without a type", entry.Var)
		}
		return subs.Bound{T: dec.typ(entry.Type), Rank: subs.Rank(entry.Rank)}, nil
	case "redirect":
		return subs.Redirect{To: types.Variable(entry.To)}, nil
	}
	return nil, fmt.Errorf("modcache: unknown entry kind %q", entry.Kind)
}

func (dec decoder) symbol(sd symbolDTO) symbols.Symbol {
	module := dec.interns.AddModule(sd.Module)
	return dec.interns.Symbol(module, sd.Name)
}

func (dec decoder) typ(dto *typeDTO) types.Type {
	switch dto.Kind {
	case "var":
		return types.TVar{V: types.Variable(dto.Var)}
	case "prim":
		return types.TPrim{Name: dto.Name}
	case "apply":
		return types.TApply{Symbol: dec.symbol(*dto.Symbol), Args: dec.typesOf(dto.Args)}
	case "func":
		return types.TFunc{Args: dec.typesOf(dto.Args), Closure: dec.typ(dto.Closure), Ret: dec.typ(dto.Ret)}
	case "record":
		fields := make(map[string]types.Type, len(dto.Fields))
		for name, fd := range dto.Fields {
			fields[name] = dec.typ(fd)
		}
		return types.TRecord{Fields: fields, Ext: dec.typ(dto.Ext)}
	case "tags":
		return types.TTagUnion{Tags: dec.tagsOf(dto.Tags), Ext: dec.typ(dto.Ext)}
	case "recunion":
		return types.TRecUnion{Rec: types.Variable(dto.Rec), Tags: dec.tagsOf(dto.Tags), Ext: dec.typ(dto.Ext)}
	case "emptyrecord":
		return types.TEmptyRecord{}
	case "emptytags":
		return types.TEmptyTagUnion{}
	case "alias":
		kind := types.AliasStructural
		if dto.Alias.Kind == "opaque" {
			kind = types.AliasOpaque
		}
		args := make([]types.AliasArg, len(dto.Alias.Args))
		for i, arg := range dto.Alias.Args {
			args[i] = types.AliasArg{Name: arg.Name, T: dec.typ(arg.Type)}
		}
		return types.TAlias{Symbol: dec.symbol(*dto.Symbol), Args: args, Real: dec.typ(dto.Alias.Real), Kind: kind}
	case "recmarker":
		return types.TRecMarker{Structure: types.Variable(dto.Var)}
	case "numrange":
		return types.TNumRange{Bound: types.NumBound{Sign: dto.Bound.Sign, Bits: dto.Bound.Bits, Float: dto.Bound.Float}}
	case "error":
		return types.TError{}
	}
	panic(fmt.Sprintf("modcache: undecodable type kind %q", dto.Kind))
}

func (dec decoder) typesOf(dtos []*typeDTO) []types.Type {
	out := make([]types.Type, len(dtos))
	for i, dto := range dtos {
		out[i] = dec.typ(dto)
	}
	return out
}

func (dec decoder) tagsOf(tags map[string][]*typeDTO) map[string][]types.Type {
	out := make(map[string][]types.Type, len(tags))
	for name, payloads := range tags {
		out[name] = dec.typesOf(payloads)
	}
	return out
}

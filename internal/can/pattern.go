package can

import (
	"github.com/ternlang/tern/internal/region"
	"github.com/ternlang/tern/internal/symbols"
	"github.com/ternlang/tern/internal/types"
)

// Pattern is a canonical pattern.
type Pattern interface {
	patternVariant()
}

// PIdent binds the matched value to a name.
type PIdent struct {
	Symbol symbols.Symbol
	Region region.Region
}

type PUnderscore struct {
	Region region.Region
}

// PIntLit matches an integer literal.
type PIntLit struct {
	Var    types.Variable
	Bound  types.NumBound
	Value  int64
	Region region.Region
}

// PStrLit matches a string literal.
type PStrLit struct {
	Value  string
	Region region.Region
}

// PTag matches a tag and destructures its payload.
type PTag struct {
	WholeVar types.Variable
	ExtVar   types.Variable
	Name     string
	Args     []PatternArg
	Region   region.Region
}

// PatternArg is one payload position of a tag or opaque pattern.
type PatternArg struct {
	Var     types.Variable
	Pattern Pattern
	Region  region.Region
}

// PRecord destructures a record.
type PRecord struct {
	WholeVar  types.Variable
	ExtVar    types.Variable
	Destructs []Destruct
	Region    region.Region
}

// DestructKind distinguishes the three field destructure forms.
type DestructKind uint8

const (
	// DestructRequired is plain `{ name }`.
	DestructRequired DestructKind = iota
	// DestructOptional is `{ name ? default }`; the field may be absent.
	DestructOptional
	// DestructGuard is `{ name: pattern }`; the field value is matched
	// against a nested pattern.
	DestructGuard
)

// Destruct is one field of a record destructure.
type Destruct struct {
	Var     types.Variable
	Label   string
	Symbol  symbols.Symbol
	Kind    DestructKind
	Default Expr    // DestructOptional
	Guard   Pattern // DestructGuard
	Region  region.Region
}

// POpaque unwraps an opaque value, `@Name pattern`. Alias is instantiated the
// same way as OpaqueRef's.
type POpaque struct {
	WholeVar types.Variable
	Name     symbols.Symbol
	Arg      PatternArg
	Alias    types.TAlias
	Region   region.Region
}

// PMalformed is a pattern canonicalization already rejected; it binds nothing
// and matches under an error type.
type PMalformed struct {
	Region region.Region
}

func (PIdent) patternVariant()      {}
func (PUnderscore) patternVariant() {}
func (PIntLit) patternVariant()     {}
func (PStrLit) patternVariant()     {}
func (PTag) patternVariant()        {}
func (PRecord) patternVariant()     {}
func (POpaque) patternVariant()     {}
func (PMalformed) patternVariant()  {}

// PatternRegionOf returns the source span of any pattern.
func PatternRegionOf(p Pattern) region.Region {
	switch p := p.(type) {
	case PIdent:
		return p.Region
	case PUnderscore:
		return p.Region
	case PIntLit:
		return p.Region
	case PStrLit:
		return p.Region
	case PTag:
		return p.Region
	case PRecord:
		return p.Region
	case POpaque:
		return p.Region
	case PMalformed:
		return p.Region
	}
	return region.Region{}
}

// BoundSymbols lists the symbols a pattern binds, in source order.
func BoundSymbols(p Pattern) []symbols.Symbol {
	var out []symbols.Symbol
	collectBound(p, &out)
	return out
}

func collectBound(p Pattern, out *[]symbols.Symbol) {
	switch p := p.(type) {
	case PIdent:
		*out = append(*out, p.Symbol)
	case PTag:
		for _, arg := range p.Args {
			collectBound(arg.Pattern, out)
		}
	case PRecord:
		for _, d := range p.Destructs {
			if d.Kind == DestructGuard {
				collectBound(d.Guard, out)
				continue
			}
			*out = append(*out, d.Symbol)
		}
	case POpaque:
		collectBound(p.Arg.Pattern, out)
	}
}

package types

import (
	"fmt"

	"github.com/ternlang/tern/internal/region"
	"github.com/ternlang/tern/internal/symbols"
)

// CategoryKind says what kind of expression produced a type obligation. It
// picks the noun in "this <noun> has the type ...".
type CategoryKind uint8

const (
	CategoryUnknown CategoryKind = iota
	CategoryInt
	CategoryFloat
	CategoryNum
	CategoryStr
	CategoryList
	CategoryRecord
	CategoryAccess
	CategoryAccessor
	CategoryCallResult
	CategoryLookup
	CategoryLambda
	CategoryIf
	CategoryWhenBranch
	CategoryTagApply
	CategoryOpaqueWrap
	CategoryOpaqueArg
	CategoryDefaultValue
	CategoryAbilityMemberSpec
	CategoryStorage
)

// Category is a CategoryKind plus whatever the kind needs for rendering.
type Category struct {
	Kind    CategoryKind
	Symbol  symbols.Symbol // Lookup, CallResult, OpaqueWrap, AbilityMemberSpec
	Field   string         // Access, Accessor, DefaultValue
	TagName string         // TagApply
	Src     string         // Storage: "file:line" provenance
}

func CatInt() Category    { return Category{Kind: CategoryInt} }
func CatFloat() Category  { return Category{Kind: CategoryFloat} }
func CatNum() Category    { return Category{Kind: CategoryNum} }
func CatStr() Category    { return Category{Kind: CategoryStr} }
func CatList() Category   { return Category{Kind: CategoryList} }
func CatRecord() Category { return Category{Kind: CategoryRecord} }
func CatLambda() Category { return Category{Kind: CategoryLambda} }
func CatIf() Category     { return Category{Kind: CategoryIf} }

func CatLookup(sym symbols.Symbol) Category {
	return Category{Kind: CategoryLookup, Symbol: sym}
}

func CatCallResult(fn symbols.Symbol) Category {
	return Category{Kind: CategoryCallResult, Symbol: fn}
}

func CatAccess(field string) Category {
	return Category{Kind: CategoryAccess, Field: field}
}

func CatStorage(src string) Category {
	return Category{Kind: CategoryStorage, Src: src}
}

// Describe renders the category as the reporting noun phrase.
func (c Category) Describe() string {
	switch c.Kind {
	case CategoryInt:
		return "integer literal"
	case CategoryFloat:
		return "fraction literal"
	case CategoryNum:
		return "number literal"
	case CategoryStr:
		return "string literal"
	case CategoryList:
		return "list"
	case CategoryRecord:
		return "record"
	case CategoryAccess:
		return fmt.Sprintf("value of the .%s field", c.Field)
	case CategoryAccessor:
		return fmt.Sprintf(".%s accessor function", c.Field)
	case CategoryCallResult:
		return "call result"
	case CategoryLookup:
		return "value"
	case CategoryLambda:
		return "function"
	case CategoryIf:
		return "if expression"
	case CategoryWhenBranch:
		return "when branch"
	case CategoryTagApply:
		return fmt.Sprintf("%s tag application", c.TagName)
	case CategoryOpaqueWrap:
		return "opaque wrapping"
	case CategoryOpaqueArg:
		return "opaque type argument"
	case CategoryDefaultValue:
		return fmt.Sprintf("default value of the .%s field", c.Field)
	case CategoryAbilityMemberSpec:
		return "ability member specialization"
	case CategoryStorage:
		return "stored value (" + c.Src + ")"
	default:
		return "expression"
	}
}

// PCategoryKind is CategoryKind's counterpart for patterns.
type PCategoryKind uint8

const (
	PCategoryUnknown PCategoryKind = iota
	PCategoryRecord
	PCategoryEmptyRecord
	PCategoryPatternGuard
	PCategoryPatternDefault
	PCategoryCtor
	PCategoryOpaque
	PCategoryStr
	PCategoryNum
	PCategoryInt
	PCategoryFloat
)

// PCategory blames a pattern for a type obligation.
type PCategory struct {
	Kind    PCategoryKind
	TagName string         // Ctor
	Symbol  symbols.Symbol // Opaque
}

// Describe renders the pattern category for reporting.
func (c PCategory) Describe() string {
	switch c.Kind {
	case PCategoryRecord:
		return "record destructure"
	case PCategoryEmptyRecord:
		return "empty record pattern"
	case PCategoryPatternGuard:
		return "pattern guard"
	case PCategoryPatternDefault:
		return "optional field default"
	case PCategoryCtor:
		return c.TagName + " pattern"
	case PCategoryOpaque:
		return "opaque unwrapping pattern"
	case PCategoryStr:
		return "string pattern"
	case PCategoryNum:
		return "number pattern"
	case PCategoryInt:
		return "integer pattern"
	case PCategoryFloat:
		return "fraction pattern"
	default:
		return "pattern"
	}
}

// ReasonKind says why two types were expected to match, beyond the bare fact
// of a mismatch. It picks the clause in "... but the <reason> needs ...".
type ReasonKind uint8

const (
	ReasonUnknown ReasonKind = iota
	ReasonFnArg
	ReasonFnCall
	ReasonIfCondition
	ReasonIfBranch
	ReasonWhenBranch
	ReasonWhenGuard
	ReasonElemInList
	ReasonRecordUpdateValue
	ReasonRecordUpdateKeys
	ReasonRecordDefaultField
	ReasonNumericLiteralSuffix
	ReasonIntLiteral
	ReasonFloatLiteral
	ReasonTypedArg
)

// Reason carries the kind plus rendering payload. Index values are
// one-based, matching how branches and arguments are counted in messages.
type Reason struct {
	Kind  ReasonKind
	Index int
	Total int
	Field string
	Name  string
	Arity int
}

// Describe renders the reason for reporting.
func (r Reason) Describe() string {
	switch r.Kind {
	case ReasonFnArg:
		if r.Name != "" {
			return fmt.Sprintf("argument %d to %s", r.Index, r.Name)
		}
		return fmt.Sprintf("argument %d of this call", r.Index)
	case ReasonFnCall:
		return fmt.Sprintf("function called with %d arguments", r.Arity)
	case ReasonIfCondition:
		return "if condition"
	case ReasonIfBranch:
		return fmt.Sprintf("branch %d of %d of this if", r.Index, r.Total)
	case ReasonWhenBranch:
		return fmt.Sprintf("branch %d of this when", r.Index)
	case ReasonWhenGuard:
		return fmt.Sprintf("guard of branch %d", r.Index)
	case ReasonElemInList:
		return fmt.Sprintf("element %d of this list", r.Index)
	case ReasonRecordUpdateValue:
		return fmt.Sprintf("new value of the .%s field", r.Field)
	case ReasonRecordUpdateKeys:
		return "fields of the updated record"
	case ReasonRecordDefaultField:
		return fmt.Sprintf("default of the .%s field", r.Field)
	case ReasonNumericLiteralSuffix:
		return "width of this number literal"
	case ReasonIntLiteral:
		return "integer literal"
	case ReasonFloatLiteral:
		return "fraction literal"
	case ReasonTypedArg:
		if r.Name != "" {
			return fmt.Sprintf("argument %d to %s (from the annotation)", r.Index, r.Name)
		}
		return fmt.Sprintf("argument %d (from the annotation)", r.Index)
	default:
		return "surrounding expression"
	}
}

// AnnSourceKind identifies which part of an annotated definition an expected
// type was projected from.
type AnnSourceKind uint8

const (
	AnnTypedBody AnnSourceKind = iota
	AnnTypedIfBranch
	AnnTypedWhenBranch
)

// AnnSource points an annotation-derived expectation back at the annotation.
type AnnSource struct {
	Kind   AnnSourceKind
	Index  int // one-based branch index
	Total  int // branch count, for TypedIfBranch
	Region region.Region
}

// Describe renders the annotation source for reporting.
func (s AnnSource) Describe() string {
	switch s.Kind {
	case AnnTypedIfBranch:
		return fmt.Sprintf("branch %d of %d of this annotated if", s.Index, s.Total)
	case AnnTypedWhenBranch:
		return fmt.Sprintf("branch %d of this annotated when", s.Index)
	default:
		return "body of the annotated definition"
	}
}

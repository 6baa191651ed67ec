// Package types defines the type tree the constraint builder emits and the
// solver resolves, together with the blame metadata (categories, reasons,
// expectations) that rides along with every constraint, and the ErrorType
// snapshots used for diagnostics.
//
// Types are immutable trees over Variable handles. All mutation happens in
// the substitution store (internal/subs); a Type never changes after
// construction, which is what makes sharing subtrees between constraints
// safe and cheap.
package types

import (
	"fmt"
	"sort"
	"strings"

	"github.com/ternlang/tern/internal/symbols"
)

// Variable is a handle into the substitution store. Identity matters, not
// value: two variables denote the same type only after unification merges
// them.
type Variable int32

// NoVariable marks an absent variable.
const NoVariable Variable = -1

func (v Variable) String() string {
	return fmt.Sprintf("#%d", int32(v))
}

// Type is the closed set of type-tree variants. Each variant is a struct;
// dispatch is a type switch. typeVariant keeps the set closed to this
// package.
type Type interface {
	fmt.Stringer
	typeVariant()
}

// TVar references a substitution-store variable.
type TVar struct {
	V Variable
}

// TPrim is a primitive leaf: Str, Bool, or one of the numeric widths listed
// in NumWidths.
type TPrim struct {
	Name string
}

// TApply is a builtin nominal type application, e.g. List elem.
type TApply struct {
	Symbol symbols.Symbol
	Args   []Type
}

// TFunc is a function type. Closure is the closure-capture marker (usually a
// TVar); codegen resolves it to the concrete capture set later, type
// inference only threads it through.
type TFunc struct {
	Args    []Type
	Closure Type
	Ret     Type
}

// TRecord is a row-polymorphic record. Ext is the extension row: TEmptyRecord
// closes it, a variable leaves it open for more fields.
type TRecord struct {
	Fields map[string]Type
	Ext    Type
}

// TTagUnion is a row-polymorphic tag union. Ext works like TRecord.Ext with
// TEmptyTagUnion as the closed marker.
type TTagUnion struct {
	Tags map[string][]Type
	Ext  Type
}

// TRecUnion is a tag union whose payloads refer back to the union itself
// through Rec. Produced by the solver's occurs pass when a legal recursive
// union is detected; never built directly by the constraint builder.
type TRecUnion struct {
	Rec  Variable
	Tags map[string][]Type
	Ext  Type
}

// TEmptyRecord is the closed-record row marker.
type TEmptyRecord struct{}

// TEmptyTagUnion is the closed-tag-union row marker.
type TEmptyTagUnion struct{}

// AliasKind separates transparent aliases from opaque (nominal) wrappers.
type AliasKind uint8

const (
	AliasStructural AliasKind = iota
	AliasOpaque
)

// AliasArg is one named type argument of an alias.
type AliasArg struct {
	Name string
	T    Type
}

// TAlias wraps a real type under a name. Structural aliases unify through to
// Real; opaque aliases unify nominally only.
type TAlias struct {
	Symbol symbols.Symbol
	Args   []AliasArg
	Real   Type
	Kind   AliasKind
}

// TRecMarker ties a recursive knot: it stands for the union stored at
// Structure without expanding it. Walks treat it as a leaf.
type TRecMarker struct {
	Structure Variable
}

// TNumRange is the type of a numeric literal before it is pinned to a
// concrete width: any width the bound fits is acceptable.
type TNumRange struct {
	Bound NumBound
}

// TError is the error-recovery type. It unifies with everything so that one
// bad expression does not cascade.
type TError struct{}

func (TVar) typeVariant()           {}
func (TPrim) typeVariant()          {}
func (TApply) typeVariant()         {}
func (TFunc) typeVariant()          {}
func (TRecord) typeVariant()        {}
func (TTagUnion) typeVariant()      {}
func (TRecUnion) typeVariant()      {}
func (TEmptyRecord) typeVariant()   {}
func (TEmptyTagUnion) typeVariant() {}
func (TAlias) typeVariant()         {}
func (TRecMarker) typeVariant()     {}
func (TNumRange) typeVariant()      {}
func (TError) typeVariant()         {}

func (t TVar) String() string  { return t.V.String() }
func (t TPrim) String() string { return t.Name }

func (t TApply) String() string {
	if len(t.Args) == 0 {
		return t.Symbol.String()
	}
	parts := make([]string, len(t.Args))
	for i, a := range t.Args {
		parts[i] = a.String()
	}
	return fmt.Sprintf("%s %s", t.Symbol, strings.Join(parts, " "))
}

func (t TFunc) String() string {
	parts := make([]string, len(t.Args))
	for i, a := range t.Args {
		parts[i] = a.String()
	}
	return fmt.Sprintf("(%s -> %s)", strings.Join(parts, ", "), t.Ret)
}

func (t TRecord) String() string {
	names := SortedFieldNames(t.Fields)
	parts := make([]string, len(names))
	for i, name := range names {
		parts[i] = name + " : " + t.Fields[name].String()
	}
	return fmt.Sprintf("{ %s | %s }", strings.Join(parts, ", "), t.Ext)
}

func (t TTagUnion) String() string {
	return tagUnionString(t.Tags, t.Ext, NoVariable)
}

func (t TRecUnion) String() string {
	return tagUnionString(t.Tags, t.Ext, t.Rec)
}

func tagUnionString(tags map[string][]Type, ext Type, rec Variable) string {
	names := SortedTagNames(tags)
	parts := make([]string, len(names))
	for i, name := range names {
		args := tags[name]
		if len(args) == 0 {
			parts[i] = name
			continue
		}
		rendered := make([]string, len(args))
		for j, a := range args {
			rendered[j] = a.String()
		}
		parts[i] = name + " " + strings.Join(rendered, " ")
	}
	body := fmt.Sprintf("[%s | %s]", strings.Join(parts, ", "), ext)
	if rec != NoVariable {
		body += " as " + rec.String()
	}
	return body
}

func (TEmptyRecord) String() string   { return "{}" }
func (TEmptyTagUnion) String() string { return "[]" }

func (t TAlias) String() string {
	prefix := ""
	if t.Kind == AliasOpaque {
		prefix = "@"
	}
	if len(t.Args) == 0 {
		return prefix + t.Symbol.String()
	}
	parts := make([]string, len(t.Args))
	for i, a := range t.Args {
		parts[i] = a.T.String()
	}
	return fmt.Sprintf("%s%s %s", prefix, t.Symbol, strings.Join(parts, " "))
}

func (t TRecMarker) String() string { return "<rec " + t.Structure.String() + ">" }
func (t TNumRange) String() string  { return t.Bound.String() }
func (TError) String() string       { return "<error>" }

// SortedFieldNames returns record field names in deterministic order.
// Everything that iterates rows goes through this (or SortedTagNames) so
// unification order and error messages are reproducible.
func SortedFieldNames(fields map[string]Type) []string {
	names := make([]string, 0, len(fields))
	for name := range fields {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// SortedTagNames returns tag names in deterministic order.
func SortedTagNames(tags map[string][]Type) []string {
	names := make([]string, 0, len(tags))
	for name := range tags {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// WalkVars calls f for every variable mentioned anywhere in t, including
// recursion markers and alias arguments. Order is deterministic.
func WalkVars(t Type, f func(Variable)) {
	switch t := t.(type) {
	case TVar:
		f(t.V)
	case TPrim, TEmptyRecord, TEmptyTagUnion, TNumRange, TError:
	case TApply:
		for _, a := range t.Args {
			WalkVars(a, f)
		}
	case TFunc:
		for _, a := range t.Args {
			WalkVars(a, f)
		}
		WalkVars(t.Closure, f)
		WalkVars(t.Ret, f)
	case TRecord:
		for _, name := range SortedFieldNames(t.Fields) {
			WalkVars(t.Fields[name], f)
		}
		WalkVars(t.Ext, f)
	case TTagUnion:
		walkTagVars(t.Tags, f)
		WalkVars(t.Ext, f)
	case TRecUnion:
		f(t.Rec)
		walkTagVars(t.Tags, f)
		WalkVars(t.Ext, f)
	case TAlias:
		for _, arg := range t.Args {
			WalkVars(arg.T, f)
		}
		WalkVars(t.Real, f)
	case TRecMarker:
		f(t.Structure)
	default:
		panic(fmt.Sprintf("types: WalkVars: unhandled variant %T", t))
	}
}

func walkTagVars(tags map[string][]Type, f func(Variable)) {
	for _, name := range SortedTagNames(tags) {
		for _, a := range tags[name] {
			WalkVars(a, f)
		}
	}
}

// VariantCount is the number of Type variants. The companion test asserts a
// type switch covering this many cases so a silently-missed case in a new
// variant shows up as a test failure.
const VariantCount = 13

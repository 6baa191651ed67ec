package types

import (
	"fmt"
	"sort"
	"strings"

	"github.com/ternlang/tern/internal/symbols"
)

// ErrorType is a self-contained snapshot of a type for diagnostics: no
// variable handles, cycles cut with EInfinite, unbound variables named. It
// survives after the substitution store is gone, so problems can be rendered
// at any point.
type ErrorType interface {
	errorTypeVariant()
	fmt.Stringer
}

// EFlexVar is an unbound flexible variable, shown as a lowercase name.
type EFlexVar struct {
	Name string
}

// ERigidVar is an annotation-introduced type parameter.
type ERigidVar struct {
	Name string
}

// EAbleVar is a variable bounded by an ability, flexible or rigid.
type EAbleVar struct {
	Name    string
	Ability symbols.Symbol
	Rigid   bool
}

// EPrim is a primitive leaf.
type EPrim struct {
	Name string
}

// EApply is a builtin nominal application.
type EApply struct {
	Symbol symbols.Symbol
	Args   []ErrorType
}

// EFunc is a function type.
type EFunc struct {
	Args []ErrorType
	Ret  ErrorType
}

// ERecord is a record snapshot. A nil Ext means the row is closed; a
// non-nil Ext renders after the fields.
type ERecord struct {
	Fields map[string]ErrorType
	Ext    ErrorType
}

// ETagUnion is a tag union snapshot. Rec is non-empty for recursive unions.
type ETagUnion struct {
	Tags map[string][]ErrorType
	Ext  ErrorType
	Rec  string
}

// EAlias is an alias application snapshot.
type EAlias struct {
	Symbol symbols.Symbol
	Args   []ErrorType
	Kind   AliasKind
}

// ERange is an unresolved numeric literal.
type ERange struct {
	Bound NumBound
}

// EInfinite cuts a cycle found while snapshotting.
type EInfinite struct{}

// EError is the error-recovery type.
type EError struct{}

func (EFlexVar) errorTypeVariant()  {}
func (ERigidVar) errorTypeVariant() {}
func (EAbleVar) errorTypeVariant()  {}
func (EPrim) errorTypeVariant()     {}
func (EApply) errorTypeVariant()    {}
func (EFunc) errorTypeVariant()     {}
func (ERecord) errorTypeVariant()   {}
func (ETagUnion) errorTypeVariant() {}
func (EAlias) errorTypeVariant()    {}
func (ERange) errorTypeVariant()    {}
func (EInfinite) errorTypeVariant() {}
func (EError) errorTypeVariant()    {}

func (e EFlexVar) String() string {
	if e.Name == "" {
		return "*"
	}
	return e.Name
}

func (e ERigidVar) String() string { return e.Name }

func (e EAbleVar) String() string {
	name := e.Name
	if name == "" {
		name = "*"
	}
	return fmt.Sprintf("%s | %s has ability", name, e.Ability)
}

func (e EPrim) String() string { return e.Name }

func (e EApply) String() string {
	if len(e.Args) == 0 {
		return e.Symbol.String()
	}
	parts := make([]string, len(e.Args))
	for i, a := range e.Args {
		parts[i] = a.String()
	}
	return fmt.Sprintf("%s %s", e.Symbol, strings.Join(parts, " "))
}

func (e EFunc) String() string {
	parts := make([]string, len(e.Args))
	for i, a := range e.Args {
		parts[i] = a.String()
	}
	return fmt.Sprintf("%s -> %s", strings.Join(parts, ", "), e.Ret)
}

func (e ERecord) String() string {
	names := make([]string, 0, len(e.Fields))
	for name := range e.Fields {
		names = append(names, name)
	}
	sort.Strings(names)
	parts := make([]string, len(names))
	for i, name := range names {
		parts[i] = name + " : " + e.Fields[name].String()
	}
	body := "{ " + strings.Join(parts, ", ") + " }"
	if len(parts) == 0 {
		body = "{}"
	}
	return body + extSuffix(e.Ext)
}

func (e ETagUnion) String() string {
	names := make([]string, 0, len(e.Tags))
	for name := range e.Tags {
		names = append(names, name)
	}
	sort.Strings(names)
	parts := make([]string, len(names))
	for i, name := range names {
		args := e.Tags[name]
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
	body := "[" + strings.Join(parts, ", ") + "]" + extSuffix(e.Ext)
	if e.Rec != "" {
		body += " as " + e.Rec
	}
	return body
}

func extSuffix(ext ErrorType) string {
	if ext == nil {
		return ""
	}
	return ext.String()
}

func (e EAlias) String() string {
	prefix := ""
	if e.Kind == AliasOpaque {
		prefix = "@"
	}
	if len(e.Args) == 0 {
		return prefix + e.Symbol.String()
	}
	parts := make([]string, len(e.Args))
	for i, a := range e.Args {
		parts[i] = a.String()
	}
	return fmt.Sprintf("%s%s %s", prefix, e.Symbol, strings.Join(parts, " "))
}

func (e ERange) String() string { return e.Bound.String() }
func (EInfinite) String() string { return "∞" }
func (EError) String() string    { return "<type error>" }

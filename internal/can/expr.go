// Package can is the canonical IR the checker consumes. Earlier passes have
// already resolved names to symbols, reserved a type variable for every
// position that needs one, and swapped anything unsalvageable for an explicit
// error node, so everything in this package is plain data.
package can

import (
	"github.com/ternlang/tern/internal/region"
	"github.com/ternlang/tern/internal/symbols"
	"github.com/ternlang/tern/internal/types"
)

// Expr is a canonical expression.
type Expr interface {
	exprVariant()
}

// IntLit is an integer literal. Bound is the literal's width requirement and
// Var the variable its eventual numeric type lives in.
type IntLit struct {
	Var    types.Variable
	Bound  types.NumBound
	Value  int64
	Region region.Region
}

// FloatLit is a fraction literal.
type FloatLit struct {
	Var    types.Variable
	Value  float64
	Region region.Region
}

type StrLit struct {
	Value  string
	Region region.Region
}

// ListLit is a list literal; ElemVar is shared by every element.
type ListLit struct {
	ElemVar types.Variable
	Elems   []Expr
	Region  region.Region
}

// VarRef is a use of a let-bound or imported value.
type VarRef struct {
	Symbol symbols.Symbol
	Var    types.Variable
	Region region.Region
}

// Call applies Fn to Args. FnVar is the variable the callee's type is forced
// into, RetVar the call result.
type Call struct {
	FnVar      types.Variable
	ClosureVar types.Variable
	RetVar     types.Variable
	Fn         Expr
	Args       []CallArg
	Region     region.Region
}

// CallArg pairs an argument expression with the variable its type lives in.
type CallArg struct {
	Var    types.Variable
	Expr   Expr
	Region region.Region
}

// Closure is a lambda. FnVar carries the whole function type, ClosureVar the
// closure row, RetVar the body's type. Name identifies the function for
// recursion and error messages; anonymous closures get a generated symbol.
type Closure struct {
	FnVar      types.Variable
	ClosureVar types.Variable
	RetVar     types.Variable
	Name       symbols.Symbol
	Args       []ClosureArg
	Body       Expr
	BodyRegion region.Region
	Region     region.Region
}

// ClosureArg is one formal parameter.
type ClosureArg struct {
	Var     types.Variable
	Pattern Pattern
	Region  region.Region
}

// If is a chain of condition/body pairs with a final else. All branch bodies
// and the else share BranchVar.
type If struct {
	CondVar    types.Variable
	BranchVar  types.Variable
	Branches   []IfBranch
	FinalElse  Expr
	ElseRegion region.Region
	Region     region.Region
}

type IfBranch struct {
	Cond       Expr
	CondRegion region.Region
	Body       Expr
	BodyRegion region.Region
}

// When matches Cond against pattern branches. CondVar carries the
// scrutinee's type, ExprVar the shared type of all branch bodies.
type When struct {
	CondVar    types.Variable
	ExprVar    types.Variable
	Cond       Expr
	CondRegion region.Region
	Branches   []WhenBranch
	Region     region.Region
}

// WhenBranch is one arm: alternative patterns, an optional guard, a body.
type WhenBranch struct {
	Patterns    []WhenPattern
	Guard       Expr // nil when absent
	GuardRegion region.Region
	Body        Expr
	BodyRegion  region.Region
}

type WhenPattern struct {
	Pattern Pattern
	Region  region.Region
}

// LetNonRec scopes a single non-recursive definition over Cont.
type LetNonRec struct {
	Def    *Def
	Cont   Expr
	Region region.Region
}

// LetRec scopes a strongly connected group of definitions over Cont.
type LetRec struct {
	Defs   []*Def
	Cont   Expr
	Region region.Region
}

// RecordLit builds a record value.
type RecordLit struct {
	Var    types.Variable
	Fields map[string]RecordField
	Region region.Region
}

// RecordField is one field of a literal or update.
type RecordField struct {
	Var    types.Variable
	Expr   Expr
	Region region.Region
}

type EmptyRecord struct {
	Region region.Region
}

// Access reads one field out of a record.
type Access struct {
	RecordVar types.Variable
	ExtVar    types.Variable
	FieldVar  types.Variable
	Rec       Expr
	Field     string
	Region    region.Region
}

// Accessor is a field access lifted to a function, `.field`.
type Accessor struct {
	Name       symbols.Symbol
	FnVar      types.Variable
	RecordVar  types.Variable
	ClosureVar types.Variable
	ExtVar     types.Variable
	FieldVar   types.Variable
	Field      string
	Region     region.Region
}

// Update rebuilds Symbol's record with some fields replaced.
type Update struct {
	RecordVar types.Variable
	ExtVar    types.Variable
	Symbol    symbols.Symbol
	Updates   map[string]RecordField
	Region    region.Region
}

// Tag applies a tag constructor, possibly with payload arguments.
type Tag struct {
	UnionVar types.Variable
	ExtVar   types.Variable
	Name     string
	Args     []CallArg
	Region   region.Region
}

// OpaqueRef wraps a payload into an opaque type, `@Name arg`. Alias is the
// opaque alias instantiated for this use: fresh variables in the argument
// positions and the real type written in terms of them.
type OpaqueRef struct {
	Var    types.Variable
	Name   symbols.Symbol
	ArgVar types.Variable
	Arg    Expr
	Alias  types.TAlias
	Region region.Region
}

// RuntimeError marks an expression canonicalization already rejected. The
// checker gives it no constraints; the error was reported upstream.
type RuntimeError struct {
	Region region.Region
}

func (IntLit) exprVariant()       {}
func (FloatLit) exprVariant()     {}
func (StrLit) exprVariant()       {}
func (ListLit) exprVariant()      {}
func (VarRef) exprVariant()       {}
func (Call) exprVariant()         {}
func (Closure) exprVariant()      {}
func (If) exprVariant()           {}
func (When) exprVariant()         {}
func (LetNonRec) exprVariant()    {}
func (LetRec) exprVariant()       {}
func (RecordLit) exprVariant()    {}
func (EmptyRecord) exprVariant()  {}
func (Access) exprVariant()       {}
func (Accessor) exprVariant()     {}
func (Update) exprVariant()       {}
func (Tag) exprVariant()          {}
func (OpaqueRef) exprVariant()    {}
func (RuntimeError) exprVariant() {}

// RegionOf returns the source span of any expression.
func RegionOf(e Expr) region.Region {
	switch e := e.(type) {
	case IntLit:
		return e.Region
	case FloatLit:
		return e.Region
	case StrLit:
		return e.Region
	case ListLit:
		return e.Region
	case VarRef:
		return e.Region
	case Call:
		return e.Region
	case Closure:
		return e.Region
	case If:
		return e.Region
	case When:
		return e.Region
	case LetNonRec:
		return e.Region
	case LetRec:
		return e.Region
	case RecordLit:
		return e.Region
	case EmptyRecord:
		return e.Region
	case Access:
		return e.Region
	case Accessor:
		return e.Region
	case Update:
		return e.Region
	case Tag:
		return e.Region
	case OpaqueRef:
		return e.Region
	case RuntimeError:
		return e.Region
	}
	return region.Region{}
}

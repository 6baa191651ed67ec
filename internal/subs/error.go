package subs

import (
	"fmt"

	"github.com/ternlang/tern/internal/symbols"
	"github.com/ternlang/tern/internal/types"
)

// ErrorTypeOf snapshots v's resolved type as a self-contained ErrorType for
// diagnostics. Unbound variables get stable single-letter names in order of
// first appearance; cycles that the occurs pass has not legalized render as
// the infinite type.
func ErrorTypeOf(st *Store, v types.Variable) types.ErrorType {
	conv := &errConv{
		st:     st,
		names:  make(map[types.Variable]string),
		taken:  make(map[string]bool),
		onPath: make(map[types.Variable]bool),
	}
	return conv.variable(v)
}

// ErrorTypeOfType snapshots a type tree that is not (or not yet) stored
// behind a variable.
func ErrorTypeOfType(st *Store, t types.Type) types.ErrorType {
	conv := &errConv{
		st:     st,
		names:  make(map[types.Variable]string),
		taken:  make(map[string]bool),
		onPath: make(map[types.Variable]bool),
	}
	return conv.typ(t)
}

type errConv struct {
	st      *Store
	names   map[types.Variable]string
	taken   map[string]bool
	onPath  map[types.Variable]bool
	counter int
}

func (c *errConv) nameFor(root types.Variable, preferred string) string {
	if name, ok := c.names[root]; ok {
		return name
	}
	name := preferred
	if name == "" || c.taken[name] {
		for {
			name = generatedName(c.counter)
			c.counter++
			if !c.taken[name] {
				break
			}
		}
	}
	c.names[root] = name
	c.taken[name] = true
	return name
}

func generatedName(i int) string {
	if i < 26 {
		return string(rune('a' + i))
	}
	return fmt.Sprintf("t%d", i-25)
}

func (c *errConv) variable(v types.Variable) types.ErrorType {
	root, content := c.st.Resolve(v)
	switch content := content.(type) {
	case Unbound:
		name := c.nameFor(root, content.Name)
		if content.Able != symbols.NoSymbol {
			return types.EAbleVar{Name: name, Ability: content.Able, Rigid: content.Rigid}
		}
		if content.Rigid {
			return types.ERigidVar{Name: name}
		}
		return types.EFlexVar{Name: name}
	case Bound:
		if c.onPath[root] {
			return types.EInfinite{}
		}
		c.onPath[root] = true
		defer delete(c.onPath, root)
		return c.typ(content.T)
	default:
		panic("subs: ErrorTypeOf: resolve returned a redirect")
	}
}

func (c *errConv) typ(t types.Type) types.ErrorType {
	switch t := t.(type) {
	case types.TVar:
		return c.variable(t.V)
	case types.TPrim:
		return types.EPrim{Name: t.Name}
	case types.TApply:
		args := make([]types.ErrorType, len(t.Args))
		for i, a := range t.Args {
			args[i] = c.typ(a)
		}
		return types.EApply{Symbol: t.Symbol, Args: args}
	case types.TFunc:
		args := make([]types.ErrorType, len(t.Args))
		for i, a := range t.Args {
			args[i] = c.typ(a)
		}
		return types.EFunc{Args: args, Ret: c.typ(t.Ret)}
	case types.TRecord:
		fields, ext := FlattenRecord(c.st, t)
		out := make(map[string]types.ErrorType, len(fields))
		for name, ft := range fields {
			out[name] = c.typ(ft)
		}
		return types.ERecord{Fields: out, Ext: c.ext(ext)}
	case types.TTagUnion:
		return c.tagUnion(t.Tags, t.Ext, types.NoVariable)
	case types.TRecUnion:
		return c.tagUnion(t.Tags, t.Ext, t.Rec)
	case types.TEmptyRecord:
		return types.ERecord{Fields: map[string]types.ErrorType{}}
	case types.TEmptyTagUnion:
		return types.ETagUnion{Tags: map[string][]types.ErrorType{}}
	case types.TAlias:
		args := make([]types.ErrorType, len(t.Args))
		for i, arg := range t.Args {
			args[i] = c.typ(arg.T)
		}
		return types.EAlias{Symbol: t.Symbol, Args: args, Kind: t.Kind}
	case types.TRecMarker:
		root, _ := c.st.Resolve(t.Structure)
		return types.EFlexVar{Name: c.nameFor(root, "")}
	case types.TNumRange:
		return types.ERange{Bound: t.Bound}
	case types.TError:
		return types.EError{}
	default:
		panic(fmt.Sprintf("subs: ErrorTypeOf: unhandled type variant %T", t))
	}
}

func (c *errConv) tagUnion(tags map[string][]types.Type, ext types.Type, rec types.Variable) types.ErrorType {
	flat, flatExt := FlattenTagUnion(c.st, tags, ext)
	out := make(map[string][]types.ErrorType, len(flat))
	for name, args := range flat {
		converted := make([]types.ErrorType, len(args))
		for i, a := range args {
			converted[i] = c.typ(a)
		}
		out[name] = converted
	}
	recName := ""
	if rec != types.NoVariable {
		// Name the union's own root so inner markers and the "as" clause
		// agree.
		recRoot, _ := c.st.Resolve(rec)
		if marker, ok := c.st.Content(recRoot).(Bound); ok {
			if m, ok := marker.T.(types.TRecMarker); ok {
				structRoot, _ := c.st.Resolve(m.Structure)
				recName = c.nameFor(structRoot, "")
			}
		}
		if recName == "" {
			recName = c.nameFor(recRoot, "")
		}
	}
	return types.ETagUnion{Tags: out, Ext: c.ext(flatExt), Rec: recName}
}

// ext converts a flattened extension: nil means closed.
func (c *errConv) ext(t types.Type) types.ErrorType {
	switch t := t.(type) {
	case types.TEmptyRecord, types.TEmptyTagUnion:
		return nil
	case types.TVar:
		return c.variable(t.V)
	case types.TError:
		return types.EError{}
	default:
		return c.typ(t)
	}
}

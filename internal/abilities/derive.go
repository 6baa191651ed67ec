package abilities

import (
	"github.com/ternlang/tern/internal/problem"
	"github.com/ternlang/tern/internal/subs"
	"github.com/ternlang/tern/internal/symbols"
	"github.com/ternlang/tern/internal/types"
)

type ruleFlags struct {
	records   bool
	tagUnions bool
	lists     bool
	strings   bool
	numbers   bool

	noFloats   bool
	noNat      bool
	noOptional bool
}

// Deriver answers "can this type structurally derive that ability" from a
// compiled Config.
type Deriver struct {
	rules map[symbols.Symbol]ruleFlags
}

// NewDeriver compiles a validated Config.
func NewDeriver(cfg *Config) *Deriver {
	rules := make(map[symbols.Symbol]ruleFlags, len(cfg.Abilities))
	for name, r := range cfg.Abilities {
		var f ruleFlags
		for _, shape := range r.Structural {
			switch shape {
			case "records":
				f.records = true
			case "tagUnions":
				f.tagUnions = true
			case "lists":
				f.lists = true
			case "strings":
				f.strings = true
			case "numbers":
				f.numbers = true
			}
		}
		for _, carve := range r.Except {
			switch carve {
			case "floatingPoint":
				f.noFloats = true
			case "nat":
				f.noNat = true
			case "optionalFields":
				f.noOptional = true
			}
		}
		rules[builtinAbilities[name]] = f
	}
	return &Deriver{rules: rules}
}

// Derivable walks the type rooted at v and reports why it cannot derive
// ability, or nil when it can. Recursive types are fine; the walk remembers
// visited roots.
func (d *Deriver) Derivable(st *subs.Store, ability symbols.Symbol, v types.Variable) *problem.UnderivableReason {
	flags, ok := d.rules[ability]
	if !ok {
		return &problem.UnderivableReason{Kind: problem.UnderivableNotABuiltin}
	}
	w := &deriveWalk{st: st, ability: ability, flags: flags, seen: make(map[types.Variable]bool)}
	return w.variable(v, 0)
}

// DerivableType is Derivable for a type tree not rooted at a variable (an
// alias's real type, for instance).
func (d *Deriver) DerivableType(st *subs.Store, ability symbols.Symbol, t types.Type) *problem.UnderivableReason {
	flags, ok := d.rules[ability]
	if !ok {
		return &problem.UnderivableReason{Kind: problem.UnderivableNotABuiltin}
	}
	w := &deriveWalk{st: st, ability: ability, flags: flags, seen: make(map[types.Variable]bool)}
	return w.typ(t, 0)
}

type deriveWalk struct {
	st      *subs.Store
	ability symbols.Symbol
	flags   ruleFlags
	seen    map[types.Variable]bool
}

func (w *deriveWalk) variable(v types.Variable, depth int) *problem.UnderivableReason {
	root, content := w.st.Resolve(v)
	if w.seen[root] {
		return nil
	}
	w.seen[root] = true
	switch c := content.(type) {
	case subs.Unbound:
		if c.Able == w.ability {
			// The variable is itself bounded by this ability; whatever
			// instantiates it will be checked then.
			return nil
		}
		return w.fail(depth, problem.DeriveUnboundVar, subs.ErrorTypeOf(w.st, root))
	case subs.Bound:
		return w.typ(c.T, depth)
	}
	return nil
}

func (w *deriveWalk) typ(t types.Type, depth int) *problem.UnderivableReason {
	switch t := t.(type) {
	case types.TVar:
		return w.variable(t.V, depth)
	case types.TError:
		return nil
	case types.TRecMarker:
		// Recursion knot; the structure it stands for is already on the
		// visited path.
		return nil
	case types.TPrim:
		return w.prim(t, depth)
	case types.TNumRange:
		if !w.flags.numbers {
			return w.fail(depth, problem.DeriveNoContext, w.snapshot(t))
		}
		if t.Bound.Float && w.flags.noFloats {
			return w.fail(depth, problem.DeriveFloatEq, w.snapshot(t))
		}
		return nil
	case types.TFunc:
		return w.fail(depth, problem.DeriveFunction, w.snapshot(t))
	case types.TApply:
		if t.Symbol != symbols.SymList {
			return w.fail(depth, problem.DeriveNoContext, w.snapshot(t))
		}
		if !w.flags.lists {
			return w.fail(depth, problem.DeriveNoContext, w.snapshot(t))
		}
		for _, arg := range t.Args {
			if reason := w.typ(arg, depth+1); reason != nil {
				return reason
			}
		}
		return nil
	case types.TRecord:
		if !w.flags.records {
			return w.fail(depth, problem.DeriveNoContext, w.snapshot(t))
		}
		for _, name := range types.SortedFieldNames(t.Fields) {
			if reason := w.typ(t.Fields[name], depth+1); reason != nil {
				return reason
			}
		}
		return w.ext(t.Ext, depth)
	case types.TEmptyRecord:
		if !w.flags.records {
			return w.fail(depth, problem.DeriveNoContext, w.snapshot(t))
		}
		return nil
	case types.TTagUnion:
		return w.union(t.Tags, t.Ext, t, depth)
	case types.TRecUnion:
		return w.union(t.Tags, t.Ext, t, depth)
	case types.TEmptyTagUnion:
		if !w.flags.tagUnions {
			return w.fail(depth, problem.DeriveNoContext, w.snapshot(t))
		}
		return nil
	case types.TAlias:
		if t.Kind == types.AliasOpaque {
			return w.fail(depth, problem.DeriveOpaque, w.snapshot(t))
		}
		return w.typ(t.Real, depth)
	}
	return w.fail(depth, problem.DeriveNoContext, w.snapshot(t))
}

func (w *deriveWalk) prim(t types.TPrim, depth int) *problem.UnderivableReason {
	width, isNum := types.NumWidths[t.Name]
	switch {
	case t.Name == "Str":
		if !w.flags.strings {
			return w.fail(depth, problem.DeriveNoContext, w.snapshot(t))
		}
		return nil
	case t.Name == "Bool":
		// Bool rides the numbers class; it is a fixed-width scalar.
		if !w.flags.numbers {
			return w.fail(depth, problem.DeriveNoContext, w.snapshot(t))
		}
		return nil
	case isNum:
		if !w.flags.numbers {
			return w.fail(depth, problem.DeriveNoContext, w.snapshot(t))
		}
		if width.Float && w.flags.noFloats {
			return w.fail(depth, problem.DeriveFloatEq, w.snapshot(t))
		}
		if t.Name == "Nat" && w.flags.noNat {
			return w.fail(depth, problem.DeriveNat, w.snapshot(t))
		}
		return nil
	}
	return w.fail(depth, problem.DeriveNoContext, w.snapshot(t))
}

func (w *deriveWalk) union(tags map[string][]types.Type, ext types.Type, whole types.Type, depth int) *problem.UnderivableReason {
	if !w.flags.tagUnions {
		return w.fail(depth, problem.DeriveNoContext, w.snapshot(whole))
	}
	for _, name := range types.SortedTagNames(tags) {
		for _, payload := range tags[name] {
			if reason := w.typ(payload, depth+1); reason != nil {
				return reason
			}
		}
	}
	return w.ext(ext, depth)
}

// ext follows a row extension. Unbound extensions are fine: an open row can
// still close to something derivable, and if it closes to something that is
// not, the obligation is re-checked where that happens.
func (w *deriveWalk) ext(ext types.Type, depth int) *problem.UnderivableReason {
	if tv, ok := ext.(types.TVar); ok {
		if w.st.IsUnbound(tv.V) {
			return nil
		}
		return w.variable(tv.V, depth)
	}
	switch ext.(type) {
	case types.TEmptyRecord, types.TEmptyTagUnion, types.TError:
		return nil
	}
	return w.typ(ext, depth)
}

func (w *deriveWalk) snapshot(t types.Type) types.ErrorType {
	return subs.ErrorTypeOfType(w.st, t)
}

func (w *deriveWalk) fail(depth int, ctx problem.NotDerivableContext, offender types.ErrorType) *problem.UnderivableReason {
	if depth == 0 {
		return &problem.UnderivableReason{Kind: problem.UnderivableSurface, Context: ctx}
	}
	return &problem.UnderivableReason{Kind: problem.UnderivableNested, Context: ctx, Nested: offender}
}

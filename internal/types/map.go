package types

import "fmt"

// MapVars returns a copy of t with every variable rewritten through f.
// Used when copying types across stores and when instantiating polymorphic
// types: the tree shape is preserved, only handles change.
func MapVars(t Type, f func(Variable) Variable) Type {
	switch t := t.(type) {
	case TVar:
		return TVar{V: f(t.V)}
	case TPrim, TEmptyRecord, TEmptyTagUnion, TNumRange, TError:
		return t
	case TApply:
		args := make([]Type, len(t.Args))
		for i, a := range t.Args {
			args[i] = MapVars(a, f)
		}
		return TApply{Symbol: t.Symbol, Args: args}
	case TFunc:
		args := make([]Type, len(t.Args))
		for i, a := range t.Args {
			args[i] = MapVars(a, f)
		}
		return TFunc{Args: args, Closure: MapVars(t.Closure, f), Ret: MapVars(t.Ret, f)}
	case TRecord:
		fields := make(map[string]Type, len(t.Fields))
		for name, ft := range t.Fields {
			fields[name] = MapVars(ft, f)
		}
		return TRecord{Fields: fields, Ext: MapVars(t.Ext, f)}
	case TTagUnion:
		return TTagUnion{Tags: mapTagVars(t.Tags, f), Ext: MapVars(t.Ext, f)}
	case TRecUnion:
		return TRecUnion{Rec: f(t.Rec), Tags: mapTagVars(t.Tags, f), Ext: MapVars(t.Ext, f)}
	case TAlias:
		args := make([]AliasArg, len(t.Args))
		for i, arg := range t.Args {
			args[i] = AliasArg{Name: arg.Name, T: MapVars(arg.T, f)}
		}
		return TAlias{Symbol: t.Symbol, Args: args, Real: MapVars(t.Real, f), Kind: t.Kind}
	case TRecMarker:
		return TRecMarker{Structure: f(t.Structure)}
	default:
		panic(fmt.Sprintf("types: MapVars: unhandled variant %T", t))
	}
}

func mapTagVars(tags map[string][]Type, f func(Variable) Variable) map[string][]Type {
	out := make(map[string][]Type, len(tags))
	for name, args := range tags {
		copied := make([]Type, len(args))
		for i, a := range args {
			copied[i] = MapVars(a, f)
		}
		out[name] = copied
	}
	return out
}

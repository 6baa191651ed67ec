package constrain

import (
	"fmt"

	"github.com/ternlang/tern/internal/types"
)

// Check validates the structural invariants of a finished constraint tree:
// exactly one SaveTheEnvironment sentinel, and no variable referenced by any
// constraint that is absent from every enclosing Let quantifier. A violation
// is a builder bug (a variable that escaped its binding scope confuses
// generalization), so the pipeline runs Check in debug mode and the builder
// tests run it on everything they emit.
//
// preQuantified lists variables that are legitimately bound elsewhere:
// imported types restored from another module's artifact arrive already
// generalized and are never listed in a Let.
func Check(c Constraint, preQuantified ...types.Variable) error {
	ck := &checker{bound: make(map[types.Variable]int)}
	for _, v := range preQuantified {
		ck.bound[v]++
	}
	if err := ck.walk(c); err != nil {
		return err
	}
	if ck.sentinels != 1 {
		return fmt.Errorf("constraint tree has %d SaveTheEnvironment sentinels, want exactly 1", ck.sentinels)
	}
	return nil
}

type checker struct {
	bound     map[types.Variable]int
	sentinels int
}

func (ck *checker) walk(c Constraint) error {
	switch c := c.(type) {
	case True:
		return nil
	case SaveTheEnvironment:
		ck.sentinels++
		return nil
	case Eq:
		if err := ck.typ(c.T); err != nil {
			return err
		}
		return ck.typ(c.Expected.Type())
	case Pattern:
		if err := ck.typ(c.T); err != nil {
			return err
		}
		return ck.typ(c.Expected.Type())
	case Store:
		if err := ck.typ(c.T); err != nil {
			return err
		}
		return ck.typ(types.TVar{V: c.Var})
	case Lookup:
		return ck.typ(c.Expected.Type())
	case AbilityLookup:
		if err := ck.typ(types.TVar{V: c.Specialization}); err != nil {
			return err
		}
		return ck.typ(c.Expected.Type())
	case And:
		for _, sub := range c.Constraints {
			if err := ck.walk(sub); err != nil {
				return err
			}
		}
		return nil
	case Let:
		ck.push(c.RigidVars)
		ck.push(c.FlexVars)
		for _, at := range c.Header {
			if err := ck.typ(at.T); err != nil {
				return err
			}
		}
		if err := ck.walk(c.Defs); err != nil {
			return err
		}
		if err := ck.walk(c.Ret); err != nil {
			return err
		}
		ck.pop(c.FlexVars)
		ck.pop(c.RigidVars)
		return nil
	}
	return fmt.Errorf("constrain: Check: unhandled constraint variant %T", c)
}

func (ck *checker) push(vars []types.Variable) {
	for _, v := range vars {
		ck.bound[v]++
	}
}

func (ck *checker) pop(vars []types.Variable) {
	for _, v := range vars {
		ck.bound[v]--
	}
}

func (ck *checker) typ(t types.Type) error {
	var orphan error
	types.WalkVars(t, func(v types.Variable) {
		if orphan == nil && ck.bound[v] <= 0 {
			orphan = fmt.Errorf("variable %s escapes every enclosing Let quantifier", v)
		}
	})
	return orphan
}

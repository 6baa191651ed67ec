package report

import (
	"bytes"
	"strings"
	"testing"

	"github.com/ternlang/tern/internal/can"
	"github.com/ternlang/tern/internal/problem"
	"github.com/ternlang/tern/internal/region"
	"github.com/ternlang/tern/internal/symbols"
	"github.com/ternlang/tern/internal/types"
)

func TestParseColorMode(t *testing.T) {
	for input, want := range map[string]ColorMode{
		"auto":   ColorAuto,
		"always": ColorAlways,
		"never":  ColorNever,
	} {
		got, err := ParseColorMode(input)
		if err != nil || got != want {
			t.Errorf("ParseColorMode(%q) = %v, %v", input, got, err)
		}
	}
	if _, err := ParseColorMode("rainbow"); err == nil {
		t.Error("ParseColorMode accepted an unknown mode")
	}
}

func renderOne(t *testing.T, p problem.TypeError) string {
	t.Helper()
	interns := symbols.NewInterns()
	interns.AddModule("Main")
	var buf bytes.Buffer
	New(&buf, interns, ColorNever).Render(p)
	return buf.String()
}

func TestRenderBadExpr(t *testing.T) {
	out := renderOne(t, problem.BadExpr{
		Region:   region.New(4, 9),
		Category: types.CatStr(),
		Actual:   types.EPrim{Name: "Str"},
		Expected: problem.Expectation{Type: types.EPrim{Name: "U64"}},
	})
	for _, want := range []string{"T1001", "it is Str", "needs to be", "U64"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
	if strings.Contains(out, "\x1b[") {
		t.Error("ColorNever output contains ANSI escapes")
	}
}

func TestRenderBadExprWithReason(t *testing.T) {
	reason := types.Reason{Kind: types.ReasonElemInList, Index: 2}
	out := renderOne(t, problem.BadExpr{
		Region:   region.New(4, 9),
		Category: types.CatInt(),
		Actual:   types.ERange{Bound: types.IntBound(1)},
		Expected: problem.Expectation{
			Type:   types.EPrim{Name: "Str"},
			Reason: &reason,
			Region: region.New(1, 9),
		},
	})
	if !strings.Contains(out, "but the "+reason.Describe()) {
		t.Errorf("output does not blame the reason:\n%s", out)
	}
}

func TestRenderBadPatternWithReason(t *testing.T) {
	reason := types.PReason{Kind: types.PReasonWhenMatch, Index: 2}
	out := renderOne(t, problem.BadPattern{
		Region:   region.New(3, 8),
		Category: types.PCategory{Kind: types.PCategoryStr},
		Actual:   types.EPrim{Name: "Str"},
		Expected: problem.PExpectation{
			Type:   types.EPrim{Name: "U64"},
			Reason: &reason,
			Region: region.New(1, 8),
		},
	})
	for _, want := range []string{"T1002", "but the " + reason.Describe()} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
}

func TestPReasonDescriptions(t *testing.T) {
	cases := []struct {
		reason types.PReason
		want   string
	}{
		{types.PReason{Kind: types.PReasonWhenMatch, Index: 3}, "pattern 3 of this when"},
		{types.PReason{Kind: types.PReasonTypedArg, Index: 1, Name: "len"}, "argument 1 to len (from the annotation)"},
		{types.PReason{Kind: types.PReasonTypedArg, Index: 2}, "argument 2 (from the annotation)"},
		{types.PReason{Kind: types.PReasonOptionalField}, "optional field pattern"},
	}
	for _, tc := range cases {
		if got := tc.reason.Describe(); got != tc.want {
			t.Errorf("Describe(%+v) = %q, want %q", tc.reason, got, tc.want)
		}
	}
}

func TestRenderCircularType(t *testing.T) {
	interns := symbols.NewInterns()
	home := interns.AddModule("Main")
	sym := interns.Symbol(home, "knot")
	var buf bytes.Buffer
	New(&buf, interns, ColorNever).Render(problem.CircularType{
		Region: region.New(2, 6),
		Symbol: sym,
		Whole:  types.EInfinite{},
	})
	out := buf.String()
	for _, want := range []string{"T1003", "Main.knot", "infinite type"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
}

func TestRenderCircularDef(t *testing.T) {
	interns := symbols.NewInterns()
	home := interns.AddModule("Main")
	var buf bytes.Buffer
	New(&buf, interns, ColorNever).Render(problem.CircularDef{
		Entries: []can.CycleEntry{
			{Symbol: interns.Symbol(home, "a"), SymbolRegion: region.New(1, 2)},
			{Symbol: interns.Symbol(home, "b"), SymbolRegion: region.New(4, 5)},
		},
	})
	out := buf.String()
	if !strings.Contains(out, "Main.a <- Main.b") {
		t.Errorf("cycle chain missing:\n%s", out)
	}
	if !strings.Contains(out, "only allowed through functions") {
		t.Errorf("cycle hint missing:\n%s", out)
	}
}

func TestRenderUnfulfilledVariants(t *testing.T) {
	interns := symbols.NewInterns()
	home := interns.AddModule("Main")
	opaque := interns.Symbol(home, "Id")

	cases := []struct {
		unf  problem.Unfulfilled
		want string
	}{
		{
			problem.OpaqueDoesNotImplement{Typ: opaque, Ability: symbols.SymAbilityHash},
			"does not implement",
		},
		{
			problem.AdhocUnderivable{
				Typ:     types.EFunc{Args: []types.ErrorType{types.EPrim{Name: "Str"}}, Ret: types.EPrim{Name: "Str"}},
				Ability: symbols.SymAbilityEq,
				Reason:  problem.UnderivableReason{Kind: problem.UnderivableSurface, Context: problem.DeriveFunction},
			},
			"cannot derive",
		},
		{
			problem.OpaqueUnderivable{
				Typ:          types.EPrim{Name: "F64"},
				Ability:      symbols.SymAbilityEq,
				Opaque:       opaque,
				DeriveRegion: region.New(1, 5),
				Reason:       problem.UnderivableReason{Kind: problem.UnderivableSurface, Context: problem.DeriveFloatEq},
			},
			"asked to derive",
		},
	}
	for _, tc := range cases {
		var buf bytes.Buffer
		New(&buf, interns, ColorNever).Render(problem.UnfulfilledAbility{Unfulfilled: tc.unf})
		out := buf.String()
		if !strings.Contains(out, "T1006") || !strings.Contains(out, tc.want) {
			t.Errorf("rendering %T missing %q:\n%s", tc.unf, tc.want, out)
		}
	}
}

func TestRenderWrongSpecialization(t *testing.T) {
	interns := symbols.NewInterns()
	home := interns.AddModule("Main")
	var buf bytes.Buffer
	New(&buf, interns, ColorNever).Render(problem.WrongSpecialization{
		Region:         region.New(7, 12),
		Member:         symbols.SymMemberIsEq,
		ExpectedOpaque: interns.Symbol(home, "Id"),
		FoundOpaque:    interns.Symbol(home, "Token"),
	})
	out := buf.String()
	for _, want := range []string{"T1010", "Main.Token", "Main.Id"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
}

func TestRenderAllCountsErrors(t *testing.T) {
	interns := symbols.NewInterns()
	home := interns.AddModule("Main")
	var buf bytes.Buffer
	problems := []problem.TypeError{
		problem.UnexposedLookup{Region: region.New(1, 4), Symbol: interns.Symbol(home, "secret")},
		problem.BadExpr{
			Region:   region.New(6, 9),
			Category: types.CatStr(),
			Actual:   types.EPrim{Name: "Str"},
			Expected: problem.Expectation{Type: types.EPrim{Name: "Bool"}},
		},
	}
	count := New(&buf, interns, ColorNever).RenderAll(problems)
	if count != 2 {
		t.Errorf("RenderAll counted %d errors, want 2", count)
	}
	if got := strings.Count(buf.String(), "\n"); got < 2 {
		t.Errorf("expected at least one line per problem, got %d lines", got)
	}
}

func TestColorAlwaysPaints(t *testing.T) {
	interns := symbols.NewInterns()
	var buf bytes.Buffer
	New(&buf, interns, ColorAlways).Render(problem.UnexposedLookup{
		Region: region.New(1, 4),
		Symbol: symbols.SymList,
	})
	if !strings.Contains(buf.String(), "\x1b[") {
		t.Error("ColorAlways output has no ANSI escapes")
	}
}

// Package report renders accumulated type problems for humans. It owns no
// policy about what a problem is; it only decides how one reads on a
// terminal.
package report

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"github.com/mattn/go-isatty"

	"github.com/ternlang/tern/internal/problem"
	"github.com/ternlang/tern/internal/region"
	"github.com/ternlang/tern/internal/symbols"
	"github.com/ternlang/tern/internal/types"
)

// ColorMode says when to emit ANSI color.
type ColorMode uint8

const (
	ColorAuto ColorMode = iota
	ColorAlways
	ColorNever
)

// ParseColorMode maps the driver's -color flag values.
func ParseColorMode(s string) (ColorMode, error) {
	switch s {
	case "auto":
		return ColorAuto, nil
	case "always":
		return ColorAlways, nil
	case "never":
		return ColorNever, nil
	}
	return ColorAuto, fmt.Errorf("report: unknown color mode %q (want auto, always, or never)", s)
}

var (
	stderrTTYOnce sync.Once
	stderrTTYVal  bool
)

// stderrIsTerminal caches the detection; the answer cannot change mid-run.
func stderrIsTerminal() bool {
	stderrTTYOnce.Do(func() {
		// NO_COLOR convention: https://no-color.org/
		if _, ok := os.LookupEnv("NO_COLOR"); ok {
			return
		}
		if os.Getenv("TERM") == "dumb" {
			return
		}
		fd := os.Stderr.Fd()
		stderrTTYVal = isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
	})
	return stderrTTYVal
}

// Renderer writes problems to one destination with one color decision.
type Renderer struct {
	out     io.Writer
	interns *symbols.Interns
	color   bool
}

// New builds a renderer. ColorAuto enables color only when the process
// stderr is a terminal, regardless of where out actually points; callers
// piping elsewhere pass ColorNever.
func New(out io.Writer, interns *symbols.Interns, mode ColorMode) *Renderer {
	color := false
	switch mode {
	case ColorAlways:
		color = true
	case ColorAuto:
		color = stderrIsTerminal()
	}
	return &Renderer{out: out, interns: interns, color: color}
}

const (
	ansiRed    = "\x1b[31m"
	ansiYellow = "\x1b[33m"
	ansiCyan   = "\x1b[36m"
	ansiBold   = "\x1b[1m"
	ansiReset  = "\x1b[0m"
)

func (r *Renderer) paint(code, s string) string {
	if !r.color {
		return s
	}
	return code + s + ansiReset
}

// RenderAll writes every problem and returns how many were errors.
func (r *Renderer) RenderAll(problems []problem.TypeError) int {
	errors := 0
	for _, p := range problems {
		if p.Severity() == problem.SeverityError {
			errors++
		}
		r.Render(p)
	}
	return errors
}

// Render writes one problem as a short block: a headline with severity and
// code, then indented detail lines.
func (r *Renderer) Render(p problem.TypeError) {
	switch p := p.(type) {
	case problem.BadExpr:
		r.headline(p, p.Region, "this %s has an unexpected type", p.Category.Describe())
		r.typeLine("it is", p.Actual)
		r.expectedLines(p.Expected)
	case problem.BadPattern:
		r.headline(p, p.Region, "this %s does not match", p.Category.Describe())
		r.typeLine("it matches", p.Actual)
		r.pExpectedLines(p.Expected)
	case problem.CircularType:
		r.headline(p, p.Region, "%s has an infinite type", r.name(p.Symbol))
		r.typeLine("it occurs inside itself as", p.Whole)
	case problem.CircularDef:
		r.circularDef(p)
	case problem.UnexposedLookup:
		r.headline(p, p.Region, "%s is not exposed by its module", r.name(p.Symbol))
	case problem.UnfulfilledAbility:
		r.headline(p, region.Region{}, "an ability obligation is unfulfilled")
		r.unfulfilled(p.Unfulfilled)
	case problem.BadExprMissingAbility:
		r.headline(p, p.Region, "this %s needs abilities its type lacks", p.Category.Describe())
		r.typeLine("it is", p.Actual)
		for _, unf := range p.Unfulfilled {
			r.unfulfilled(unf)
		}
	case problem.BadPatternMissingAbility:
		r.headline(p, p.Region, "this %s needs abilities its type lacks", p.Category.Describe())
		r.typeLine("it matches", p.Actual)
		for _, unf := range p.Unfulfilled {
			r.unfulfilled(unf)
		}
	case problem.StructuralSpecialization:
		r.headline(p, p.Region, "only opaque types can specialize %s of %s",
			r.name(p.Member), r.name(p.Ability))
		r.typeLine("the receiver is", p.Typ)
	case problem.WrongSpecialization:
		r.headline(p, p.Region, "this definition specializes %s for %s, not %s",
			r.name(p.Member), r.name(p.FoundOpaque), r.name(p.ExpectedOpaque))
	default:
		fmt.Fprintf(r.out, "%s: unrenderable problem %T\n", p.Code(), p)
	}
}

func (r *Renderer) headline(p problem.TypeError, reg region.Region, format string, args ...interface{}) {
	severity := r.paint(ansiYellow, p.Severity().String())
	if p.Severity() == problem.SeverityError {
		severity = r.paint(ansiRed, p.Severity().String())
	}
	at := ""
	if !reg.Zero() {
		at = " at " + reg.String()
	}
	msg := fmt.Sprintf(format, args...)
	fmt.Fprintf(r.out, "%s[%s]%s: %s\n", severity, r.paint(ansiBold, p.Code()), at, msg)
}

func (r *Renderer) typeLine(label string, t types.ErrorType) {
	fmt.Fprintf(r.out, "    %s %s\n", label, r.paint(ansiCyan, t.String()))
}

func (r *Renderer) expectedLines(e problem.Expectation) {
	switch {
	case e.Reason != nil:
		fmt.Fprintf(r.out, "    but the %s needs %s\n", e.Reason.Describe(), r.paint(ansiCyan, e.Type.String()))
	case e.Ann != nil:
		fmt.Fprintf(r.out, "    but the %s promises %s\n", e.Ann.Describe(), r.paint(ansiCyan, e.Type.String()))
	default:
		r.typeLine("but it needs to be", e.Type)
	}
}

func (r *Renderer) pExpectedLines(e problem.PExpectation) {
	if e.Reason != nil {
		fmt.Fprintf(r.out, "    but the %s needs %s\n", e.Reason.Describe(), r.paint(ansiCyan, e.Type.String()))
		return
	}
	r.typeLine("but it needs to match", e.Type)
}

func (r *Renderer) circularDef(p problem.CircularDef) {
	names := make([]string, len(p.Entries))
	for i, entry := range p.Entries {
		names[i] = r.name(entry.Symbol)
	}
	reg := region.Region{}
	if len(p.Entries) > 0 {
		reg = p.Entries[0].SymbolRegion
	}
	r.headline(p, reg, "definition cycle through values: %s", strings.Join(names, " <- "))
	fmt.Fprintf(r.out, "    recursion is only allowed through functions\n")
}

func (r *Renderer) unfulfilled(unf problem.Unfulfilled) {
	switch unf := unf.(type) {
	case problem.OpaqueDoesNotImplement:
		fmt.Fprintf(r.out, "    %s does not implement %s\n", r.name(unf.Typ), r.name(unf.Ability))
	case problem.AdhocUnderivable:
		fmt.Fprintf(r.out, "    %s cannot derive %s%s\n",
			r.paint(ansiCyan, unf.Typ.String()), r.name(unf.Ability), reasonSuffix(unf.Reason))
	case problem.OpaqueUnderivable:
		fmt.Fprintf(r.out, "    %s asked to derive %s but its backing type %s cannot%s\n",
			r.name(unf.Opaque), r.name(unf.Ability),
			r.paint(ansiCyan, unf.Typ.String()), reasonSuffix(unf.Reason))
	}
}

func reasonSuffix(reason problem.UnderivableReason) string {
	if reason.Kind == problem.UnderivableNested && reason.Nested != nil {
		return fmt.Sprintf(" (because of %s)", reason.Nested.String())
	}
	if detail := reason.Context.String(); detail != "" {
		return " (" + detail + ")"
	}
	return ""
}

func (r *Renderer) name(sym symbols.Symbol) string {
	if name := r.interns.Name(sym); name != "" {
		return name
	}
	return sym.String()
}

package main

import (
	"flag"
	"fmt"
	"os"
	"path/filepath"

	"github.com/davecgh/go-spew/spew"

	"github.com/ternlang/tern/internal/abilities"
	"github.com/ternlang/tern/internal/constrain"
	"github.com/ternlang/tern/internal/modcache"
	"github.com/ternlang/tern/internal/pipeline"
	"github.com/ternlang/tern/internal/report"
	"github.com/ternlang/tern/internal/subs"
	"github.com/ternlang/tern/internal/types"
)

func usage() {
	fmt.Fprintf(os.Stderr, `Usage: %s check <module.yaml> [flags]

Flags:
  -derive path    derive.yaml with the derivable-ability rules
                  (default: nearest derive.yaml up the tree, else builtin rules)
  -cache path     module artifact cache database
  -color mode     diagnostic colors: auto, always, never (default auto)
  -dump-store     dump the substitution store after solving
  -debug-constraints
                  validate the constraint tree before solving
`, os.Args[0])
}

func main() {
	// Catch panics and show user-friendly error
	defer func() {
		if r := recover(); r != nil {
			if os.Getenv("DEBUG") == "1" {
				panic(r)
			}
			fmt.Fprintf(os.Stderr, "Internal error: %v\n", r)
			fmt.Fprintln(os.Stderr, "This is a bug. Please report it.")
			os.Exit(1)
		}
	}()

	if len(os.Args) < 2 || os.Args[1] != "check" {
		usage()
		os.Exit(2)
	}

	fs := flag.NewFlagSet("check", flag.ExitOnError)
	derivePath := fs.String("derive", "", "path to derive.yaml")
	cachePath := fs.String("cache", "", "module artifact cache database")
	colorFlag := fs.String("color", "auto", "diagnostic colors: auto, always, never")
	dumpStore := fs.Bool("dump-store", false, "dump the substitution store after solving")
	debugConstraints := fs.Bool("debug-constraints", false, "validate the constraint tree before solving")
	fs.Usage = usage
	fs.Parse(os.Args[2:])
	if fs.NArg() != 1 {
		usage()
		os.Exit(2)
	}
	path := fs.Arg(0)

	mode, err := report.ParseColorMode(*colorFlag)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %s\n", err)
		os.Exit(2)
	}

	fm, err := loadFixture(path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %s\n", err)
		os.Exit(1)
	}
	ctx := fm.Ctx
	ctx.DebugConstraints = *debugConstraints

	ctx.Deriver, err = loadDeriver(*derivePath, filepath.Dir(path))
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %s\n", err)
		os.Exit(1)
	}

	// The store is built here rather than in the pipeline so imported
	// signatures can be planted as pre-generalized content.
	st := subs.FromVarStore(ctx.Vars)
	applyInlineImports(st, fm.Inline)

	var cache *modcache.Cache
	if *cachePath != "" {
		cache, err = modcache.Open(*cachePath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %s\n", err)
			os.Exit(1)
		}
		defer cache.Close()
	}
	if err := resolveCacheNeeds(st, cache, fm, ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %s\n", err)
		os.Exit(1)
	}
	ctx.Store = st

	ctx = pipeline.Check(ctx)
	if errs := ctx.Errors(); len(errs) > 0 {
		fmt.Fprintln(os.Stderr, "Processing failed with errors:")
		for _, err := range errs {
			fmt.Fprintf(os.Stderr, "- %s\n", err)
		}
		os.Exit(1)
	}

	renderer := report.New(os.Stderr, ctx.Interns, mode)
	errorCount := renderer.RenderAll(ctx.Solved.Problems)

	if *dumpStore {
		dumpStoreContents(ctx.Store)
	}

	if cache != nil && ctx.Solved.Exposed != nil && errorCount == 0 {
		if err := cache.Put(ctx.ModuleName, ctx.Interns, ctx.Solved.Exposed); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %s\n", err)
			os.Exit(1)
		}
	}

	if errorCount > 0 {
		os.Exit(1)
	}
	fmt.Printf("%s: ok\n", ctx.ModuleName)
}

// loadDeriver resolves the derivable-ability rules: an explicit -derive path
// wins, then the nearest derive.yaml up from the module's directory, then the
// builtin defaults.
func loadDeriver(flagPath, moduleDir string) (*abilities.Deriver, error) {
	path := flagPath
	if path == "" {
		found, err := abilities.FindConfig(moduleDir)
		if err != nil {
			return nil, err
		}
		path = found
	}
	if path == "" {
		return abilities.NewDeriver(abilities.DefaultConfig()), nil
	}
	cfg, err := abilities.LoadConfig(path)
	if err != nil {
		return nil, err
	}
	return abilities.NewDeriver(cfg), nil
}

// applyInlineImports plants inline import signatures as generalized content:
// the signature's own variables at the generalized rank, the root bound to
// the written type. Every lookup then instantiates a fresh copy, same as a
// cache-restored import.
func applyInlineImports(st *subs.Store, inline []inlineImport) {
	for _, imp := range inline {
		for _, iv := range imp.Inner {
			st.Set(iv.Var, subs.Unbound{Rank: subs.RankNone, Name: iv.Name, Able: iv.Able})
		}
		st.Set(imp.Root, subs.Bound{T: imp.Type, Rank: subs.RankNone})
	}
}

// resolveCacheNeeds restores each cache-dependent import's artifact into the
// live store and binds the import header to the restored variable.
func resolveCacheNeeds(st *subs.Store, cache *modcache.Cache, fm *fixtureModule, ctx *pipeline.Context) error {
	for _, need := range fm.CacheNeeds {
		name := ctx.Interns.Name(need.Symbol)
		if cache == nil {
			return fmt.Errorf("import %s: no inline type and no -cache database", name)
		}
		artifact, ok, err := cache.Get(need.Module, ctx.Interns)
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("import %s: module %s is not in the cache", name, need.Module)
		}
		stored, ok := artifact.Types[need.Symbol]
		if !ok {
			return fmt.Errorf("import %s: module %s does not expose it", name, need.Module)
		}
		v := artifact.Storage.Restore(st, stored)
		ctx.Imports[need.Symbol] = constrain.TypeAt{T: types.TVar{V: v}, Region: need.Region}
		ctx.ImportVars = append(ctx.ImportVars, v)
	}
	return nil
}

type storeEntry struct {
	Var     types.Variable
	Root    types.Variable
	Content subs.Content
}

func dumpStoreContents(st *subs.Store) {
	cfg := spew.ConfigState{
		Indent:                  "  ",
		DisablePointerAddresses: true,
		DisableCapacities:       true,
		SortKeys:                true,
	}
	entries := make([]storeEntry, st.Len())
	for i := range entries {
		v := types.Variable(i)
		entries[i] = storeEntry{Var: v, Root: st.Root(v), Content: st.Content(v)}
	}
	cfg.Fdump(os.Stdout, entries)
}

package abilities

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestParseConfig(t *testing.T) {
	tests := []struct {
		name    string
		yaml    string
		wantErr string
	}{
		{
			name: "full config",
			yaml: `
abilities:
  Eq:
    structural: [records, tagUnions, lists, strings, numbers]
    except: [floatingPoint]
  Hash:
    structural: [numbers]
`,
		},
		{
			name: "ability omitted entirely",
			yaml: `
abilities:
  Eq:
    structural: [records]
`,
		},
		{
			name: "unknown ability",
			yaml: `
abilities:
  Ord:
    structural: [numbers]
`,
			wantErr: "abilities[Ord]: not a derivable builtin ability",
		},
		{
			name: "empty structural list",
			yaml: `
abilities:
  Eq:
    structural: []
`,
			wantErr: "structural is required",
		},
		{
			name: "unknown shape",
			yaml: `
abilities:
  Eq:
    structural: [records, tuples]
`,
			wantErr: `structural[1]: unknown shape "tuples"`,
		},
		{
			name: "unknown carve-out",
			yaml: `
abilities:
  Hash:
    structural: [numbers]
    except: [bigint]
`,
			wantErr: `except[0]: unknown carve-out "bigint"`,
		},
		{
			name:    "malformed yaml",
			yaml:    "abilities: [not, a, map]",
			wantErr: "parsing",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg, err := ParseConfig([]byte(tt.yaml), "derive.yaml")
			if tt.wantErr == "" {
				if err != nil {
					t.Fatalf("ParseConfig() error = %v, want nil", err)
				}
				if cfg == nil {
					t.Fatal("ParseConfig() returned nil config without error")
				}
				return
			}
			if err == nil {
				t.Fatalf("ParseConfig() error = nil, want %q", tt.wantErr)
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("ParseConfig() error = %q, want it to contain %q", err, tt.wantErr)
			}
		})
	}
}

func TestDefaultConfigValidates(t *testing.T) {
	cfg := DefaultConfig()
	if err := cfg.validate("builtin"); err != nil {
		t.Fatalf("DefaultConfig() does not pass its own validation: %v", err)
	}
	for _, name := range []string{"Eq", "Hash", "Default"} {
		if _, ok := cfg.Abilities[name]; !ok {
			t.Errorf("DefaultConfig() missing %s", name)
		}
	}
	if hasShape(cfg.Abilities["Default"].Structural, "tagUnions") {
		t.Error("Default derives through tag unions; a union has no zero value")
	}
}

func hasShape(shapes []string, want string) bool {
	for _, s := range shapes {
		if s == want {
			return true
		}
	}
	return false
}

func TestLoadConfig(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "derive.yaml")
	content := "abilities:\n  Eq:\n    structural: [numbers]\n"
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig() error = %v", err)
	}
	if got := cfg.Abilities["Eq"].Structural; len(got) != 1 || got[0] != "numbers" {
		t.Errorf("Eq.Structural = %v, want [numbers]", got)
	}

	if _, err := LoadConfig(filepath.Join(dir, "missing.yaml")); err == nil {
		t.Error("LoadConfig() on a missing file: error = nil, want non-nil")
	}
}

func TestFindConfig(t *testing.T) {
	root := t.TempDir()
	nested := filepath.Join(root, "a", "b", "c")
	if err := os.MkdirAll(nested, 0o755); err != nil {
		t.Fatal(err)
	}
	path := filepath.Join(root, "derive.yaml")
	if err := os.WriteFile(path, []byte("abilities: {}\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	// 1. Found by walking up from a nested directory.
	got, err := FindConfig(nested)
	if err != nil {
		t.Fatalf("FindConfig() error = %v", err)
	}
	if got != path {
		t.Errorf("FindConfig() = %q, want %q", got, path)
	}

	// 2. Nothing anywhere up the tree: empty path, no error.
	empty := t.TempDir()
	got, err = FindConfig(empty)
	if err != nil {
		t.Fatalf("FindConfig() error = %v", err)
	}
	if got != "" {
		t.Errorf("FindConfig() = %q, want empty", got)
	}
}

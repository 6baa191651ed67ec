package abilities

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/ternlang/tern/internal/symbols"
)

// Config declares which builtin abilities can be derived structurally and
// for which shapes. It is data rather than code so the derivable surface can
// be audited and narrowed per project (a derive.yaml next to the module
// being checked overrides the defaults).
type Config struct {
	// Abilities maps a builtin ability name to its derivation rules.
	// Abilities absent from the map are not derivable at all.
	Abilities map[string]Rules `yaml:"abilities"`
}

// Rules describes the structural shapes one ability derives through.
type Rules struct {
	// Structural lists the shape classes the derivation accepts:
	// records, tagUnions, lists, strings, numbers.
	Structural []string `yaml:"structural"`

	// Except lists carve-outs inside otherwise accepted shapes:
	// floatingPoint (no F32/F64 equality), nat (platform-dependent width),
	// optionalFields (fields that may be absent).
	Except []string `yaml:"except,omitempty"`
}

// structural shape classes and carve-outs accepted in derive.yaml.
var (
	knownStructural = map[string]bool{
		"records":   true,
		"tagUnions": true,
		"lists":     true,
		"strings":   true,
		"numbers":   true,
	}
	knownExcept = map[string]bool{
		"floatingPoint":  true,
		"nat":            true,
		"optionalFields": true,
	}
	builtinAbilities = map[string]symbols.Symbol{
		"Eq":      symbols.SymAbilityEq,
		"Hash":    symbols.SymAbilityHash,
		"Default": symbols.SymAbilityDefault,
	}
)

// DefaultConfig is the built-in derivable surface: Eq everywhere except
// floating point, Hash everywhere except Nat, Default for everything that
// has an obvious zero value (tag unions do not).
func DefaultConfig() *Config {
	return &Config{
		Abilities: map[string]Rules{
			"Eq": {
				Structural: []string{"records", "tagUnions", "lists", "strings", "numbers"},
				Except:     []string{"floatingPoint"},
			},
			"Hash": {
				Structural: []string{"records", "tagUnions", "lists", "strings", "numbers"},
				Except:     []string{"nat"},
			},
			"Default": {
				Structural: []string{"records", "lists", "strings", "numbers"},
			},
		},
	}
}

// LoadConfig reads and parses a derive.yaml file.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading derive config %s: %w", path, err)
	}
	return ParseConfig(data, path)
}

// ParseConfig parses derive.yaml content from bytes. The path argument is
// used only for error messages.
func ParseConfig(data []byte, path string) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}
	if err := cfg.validate(path); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// FindConfig searches for derive.yaml starting from dir and walking up to
// parent directories. Returns the path if found, or "" and nil error if no
// config exists anywhere up the tree.
func FindConfig(dir string) (string, error) {
	dir, err := filepath.Abs(dir)
	if err != nil {
		return "", fmt.Errorf("resolving directory: %w", err)
	}

	for {
		candidate := filepath.Join(dir, "derive.yaml")
		if _, err := os.Stat(candidate); err == nil {
			return candidate, nil
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			return "", nil
		}
		dir = parent
	}
}

// validate checks the configuration for semantic errors.
func (c *Config) validate(path string) error {
	for name, rules := range c.Abilities {
		if _, ok := builtinAbilities[name]; !ok {
			return fmt.Errorf("%s: abilities[%s]: not a derivable builtin ability", path, name)
		}
		if len(rules.Structural) == 0 {
			return fmt.Errorf("%s: abilities[%s]: structural is required (remove the ability to disable it)", path, name)
		}
		for i, shape := range rules.Structural {
			if !knownStructural[shape] {
				return fmt.Errorf("%s: abilities[%s].structural[%d]: unknown shape %q", path, name, i, shape)
			}
		}
		for i, carve := range rules.Except {
			if !knownExcept[carve] {
				return fmt.Errorf("%s: abilities[%s].except[%d]: unknown carve-out %q", path, name, i, carve)
			}
		}
	}
	return nil
}

package fabric

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// RulesVersion is the version of the default suffix list and typo table.
const RulesVersion = 1

const maxTypoPasses = 8

// TypoFix replaces every occurrence of From with To.
type TypoFix struct {
	From string `yaml:"from" json:"from"`
	To   string `yaml:"to" json:"to"`
}

// Rules is the data driving normalization and grouping.
type Rules struct {
	Version       int       `yaml:"version" json:"version"`
	Typos         []TypoFix `yaml:"typos" json:"typos"`
	GroupSuffixes []string  `yaml:"group_suffixes" json:"group_suffixes"`
}

// DefaultGroupSuffixes are the view markers used in photo file names, in match order.
func DefaultGroupSuffixes() []string {
	return []string{"_detail", "_back", "_dupatta", "_bottoms", "_front", "_full"}
}

// DefaultTypos holds the misspellings seen in historical photo names.
func DefaultTypos() []TypoFix {
	return []TypoFix{{From: "detial", To: "detail"}}
}

func DefaultRules() Rules {
	return Rules{
		Version:       RulesVersion,
		Typos:         DefaultTypos(),
		GroupSuffixes: DefaultGroupSuffixes(),
	}
}

// LoadRules reads a YAML rules file. A missing file yields DefaultRules; missing sections fall
// back to their defaults, while an explicitly empty list disables that section.
func LoadRules(path string) (Rules, error) {
	if path == "" {
		return Rules{}, errors.New("LoadRules: path is empty")
	}
	b, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return DefaultRules(), nil
		}
		return Rules{}, fmt.Errorf("LoadRules: read file: %w", err)
	}
	var r Rules
	if err := yaml.Unmarshal(b, &r); err != nil {
		return Rules{}, fmt.Errorf("LoadRules: unmarshal: %w", err)
	}
	if r.Version == 0 {
		r.Version = RulesVersion
	}
	if r.Typos == nil {
		r.Typos = DefaultTypos()
	}
	if r.GroupSuffixes == nil {
		r.GroupSuffixes = DefaultGroupSuffixes()
	}
	if err := r.Validate(); err != nil {
		return Rules{}, fmt.Errorf("LoadRules: %w", err)
	}
	return r, nil
}

// Validate rejects tables that would make normalization non-idempotent: an empty pattern, or a
// replacement containing any pattern in the table.
func (r Rules) Validate() error {
	var errs []error
	for i, t := range r.Typos {
		if t.From == "" {
			errs = append(errs, fmt.Errorf("typos[%d]: from is empty", i))
			continue
		}
		for _, other := range r.Typos {
			if other.From != "" && strings.Contains(t.To, other.From) {
				errs = append(errs, fmt.Errorf("typos[%d]: replacement %q contains pattern %q", i, t.To, other.From))
			}
		}
	}
	for i, s := range r.GroupSuffixes {
		if s == "" {
			errs = append(errs, fmt.Errorf("group_suffixes[%d]: suffix is empty", i))
		}
	}
	return errors.Join(errs...)
}

// FixTypos applies the typo table until no pattern remains (bounded, so a hostile table cannot
// loop forever).
func (r Rules) FixTypos(s string) string {
	for pass := 0; pass < maxTypoPasses; pass++ {
		changed := false
		for _, t := range r.Typos {
			if t.From == "" || !strings.Contains(s, t.From) {
				continue
			}
			s = strings.ReplaceAll(s, t.From, t.To)
			changed = true
		}
		if !changed {
			break
		}
	}
	return s
}

// Package registry resolves a source file to the transform chain that
// applies to it. Rules are evaluated in declared order; the first rule whose
// pattern matches and whose scopes accept the path wins.
package registry

import (
	"fmt"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/bmatcuk/doublestar/v4"

	"git.home.luguber.info/inful/assetbuilder/internal/config"
	ferrors "git.home.luguber.info/inful/assetbuilder/internal/foundation/errors"
	"git.home.luguber.info/inful/assetbuilder/internal/transforms"
)

// StepCatalog reports which step identifiers exist.
type StepCatalog interface {
	Has(id string) bool
}

// Chain is the ordered list of steps applied to one file.
type Chain []transforms.Step

// IDs returns the step identifiers in execution order.
func (c Chain) IDs() []string {
	ids := make([]string, len(c))
	for i, s := range c {
		ids[i] = s.ID
	}
	return ids
}

// Signature identifies the chain including its options.
func (c Chain) Signature() string {
	var b strings.Builder
	for i, s := range c {
		if i > 0 {
			b.WriteString("|")
		}
		b.WriteString(s.ID)
		if sig := s.Options.Signature(); sig != "" {
			b.WriteString("{" + sig + "}")
		}
	}
	return b.String()
}

// Rule is a compiled transform rule.
type Rule struct {
	Index   int
	Pattern string
	IsGlob  bool
	Include []Scope
	Exclude []Scope
	Chain   Chain

	re *regexp.Regexp
}

// Registry holds the ordered rules. It is immutable after New.
type Registry struct {
	baseDir string
	rules   []Rule
}

// New compiles rules. Relative scopes resolve against baseDir. When catalog is
// non-nil every step identifier must be registered in it.
func New(rules []config.RuleConfig, baseDir string, catalog StepCatalog) (*Registry, error) {
	r := &Registry{baseDir: filepath.Clean(baseDir), rules: make([]Rule, 0, len(rules))}
	for i, rc := range rules {
		rule := Rule{Index: i}
		switch {
		case rc.Test != "":
			re, err := regexp.Compile(rc.Test)
			if err != nil {
				return nil, ferrors.ConfigError("invalid rule pattern").WithCause(err).WithContext("rule", i).Build()
			}
			rule.Pattern, rule.re = rc.Test, re
		case rc.Glob != "":
			if !doublestar.ValidatePattern(rc.Glob) {
				return nil, ferrors.ConfigError("invalid rule glob").WithContext("rule", i).WithContext("glob", rc.Glob).Build()
			}
			rule.Pattern, rule.IsGlob = rc.Glob, true
		default:
			return nil, ferrors.ConfigError("rule has no pattern").WithContext("rule", i).Build()
		}
		for _, s := range rc.Include {
			rule.Include = append(rule.Include, NewScope(s, baseDir))
		}
		for _, s := range rc.Exclude {
			rule.Exclude = append(rule.Exclude, NewScope(s, baseDir))
		}
		for _, sc := range rc.Use {
			if catalog != nil && !catalog.Has(sc.ID) {
				return nil, ferrors.ConfigError(fmt.Sprintf("unknown transform step %q", sc.ID)).WithContext("rule", i).Build()
			}
			rule.Chain = append(rule.Chain, transforms.Step{ID: sc.ID, Options: transforms.Options(sc.Options)})
		}
		r.rules = append(r.rules, rule)
	}
	return r, nil
}

// Rules returns the compiled rules in evaluation order.
func (r *Registry) Rules() []Rule {
	out := make([]Rule, len(r.rules))
	copy(out, r.rules)
	return out
}

// Resolve returns the chain of the first rule accepting path.
func (r *Registry) Resolve(path string) (Chain, bool) {
	abs := r.abs(path)
	for i := range r.rules {
		if r.rules[i].accepts(abs, r.relSlash(abs)) {
			return r.rules[i].Chain, true
		}
	}
	return nil, false
}

// Match is the per-rule diagnostic produced by Explain.
type Match struct {
	Rule           int
	Pattern        string
	PatternMatched bool
	InInclude      bool
	InExclude      bool
	Selected       bool
}

// Explain evaluates every rule against path without short-circuiting, marking
// the one Resolve would pick.
func (r *Registry) Explain(path string) []Match {
	abs := r.abs(path)
	rel := r.relSlash(abs)
	out := make([]Match, 0, len(r.rules))
	selected := false
	for i := range r.rules {
		rule := &r.rules[i]
		m := Match{
			Rule:           rule.Index,
			Pattern:        rule.Pattern,
			PatternMatched: rule.patternMatches(abs, rel),
			InInclude:      len(rule.Include) == 0 || anyContains(rule.Include, abs),
			InExclude:      anyContains(rule.Exclude, abs),
		}
		if !selected && m.PatternMatched && m.InInclude && !m.InExclude {
			m.Selected = true
			selected = true
		}
		out = append(out, m)
	}
	return out
}

func (r *Registry) abs(path string) string {
	if filepath.IsAbs(path) {
		return filepath.Clean(path)
	}
	return filepath.Join(r.baseDir, path)
}

// relSlash returns abs relative to the base directory in slash form, or the
// slash-normalised absolute path when abs lies outside it.
func (r *Registry) relSlash(abs string) string {
	rel, err := filepath.Rel(r.baseDir, abs)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return filepath.ToSlash(abs)
	}
	return filepath.ToSlash(rel)
}

func (rule *Rule) patternMatches(abs, rel string) bool {
	if rule.IsGlob {
		ok, err := doublestar.Match(rule.Pattern, rel)
		return err == nil && ok
	}
	return rule.re.MatchString(filepath.ToSlash(abs))
}

func (rule *Rule) accepts(abs, rel string) bool {
	if !rule.patternMatches(abs, rel) {
		return false
	}
	if len(rule.Include) > 0 && !anyContains(rule.Include, abs) {
		return false
	}
	return !anyContains(rule.Exclude, abs)
}

func anyContains(scopes []Scope, abs string) bool {
	for _, s := range scopes {
		if s.Contains(abs) {
			return true
		}
	}
	return false
}

// Package entry models the named roots a build pass starts from.
package entry

import (
	"fmt"
	"path/filepath"

	"git.home.luguber.info/inful/assetbuilder/internal/config"
	ferrors "git.home.luguber.info/inful/assetbuilder/internal/foundation/errors"
)

// Kind distinguishes script entries from templates.
type Kind string

const (
	KindScript   Kind = "script"
	KindTemplate Kind = "template"
)

// Entry is a named build root. Template names are the basename of their
// source file.
type Entry struct {
	Name       string
	SourcePath string
	Kind       Kind
}

// Graph is the ordered, immutable set of entries for one pass.
type Graph struct {
	scripts   []Entry
	templates []Entry
	byName    map[string]Entry
}

// NewGraph builds a graph from script entries and template paths. Names must
// be unique across both kinds.
func NewGraph(scripts []config.EntryConfig, templates []string) (*Graph, error) {
	g := &Graph{byName: make(map[string]Entry, len(scripts)+len(templates))}
	add := func(e Entry) error {
		if e.Name == "" {
			return ferrors.ValidationError("entry name cannot be empty").WithContext("path", e.SourcePath).Build()
		}
		if prev, dup := g.byName[e.Name]; dup {
			return ferrors.ValidationError(fmt.Sprintf("duplicate entry name %q", e.Name)).
				WithContext("path", e.SourcePath).
				WithContext("previous", prev.SourcePath).
				Build()
		}
		g.byName[e.Name] = e
		return nil
	}
	for _, s := range scripts {
		e := Entry{Name: s.Name, SourcePath: s.Source, Kind: KindScript}
		if err := add(e); err != nil {
			return nil, err
		}
		g.scripts = append(g.scripts, e)
	}
	for _, t := range templates {
		e := Entry{Name: filepath.Base(t), SourcePath: t, Kind: KindTemplate}
		if err := add(e); err != nil {
			return nil, err
		}
		g.templates = append(g.templates, e)
	}
	return g, nil
}

// FromConfig builds the graph declared by cfg.
func FromConfig(cfg *config.Config) (*Graph, error) {
	return NewGraph(cfg.Entries, cfg.Templates)
}

// Entries returns script entries followed by templates, each in declared order.
func (g *Graph) Entries() []Entry {
	out := make([]Entry, 0, len(g.scripts)+len(g.templates))
	out = append(out, g.scripts...)
	return append(out, g.templates...)
}

// Scripts returns the script entries in declared order.
func (g *Graph) Scripts() []Entry { return append([]Entry(nil), g.scripts...) }

// Templates returns the template entries in declared order.
func (g *Graph) Templates() []Entry { return append([]Entry(nil), g.templates...) }

// Lookup finds an entry by name.
func (g *Graph) Lookup(name string) (Entry, bool) {
	e, ok := g.byName[name]
	return e, ok
}

// SourceDirs returns the distinct directories holding entry sources.
func (g *Graph) SourceDirs() []string {
	seen := make(map[string]bool)
	var dirs []string
	for _, e := range g.Entries() {
		d := filepath.Dir(e.SourcePath)
		if !seen[d] {
			seen[d] = true
			dirs = append(dirs, d)
		}
	}
	return dirs
}

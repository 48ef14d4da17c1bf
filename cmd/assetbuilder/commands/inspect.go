package commands

import (
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"text/tabwriter"

	"git.home.luguber.info/inful/assetbuilder/internal/asset"
	"git.home.luguber.info/inful/assetbuilder/internal/config"
	"git.home.luguber.info/inful/assetbuilder/internal/deps"
	"git.home.luguber.info/inful/assetbuilder/internal/entry"
	"git.home.luguber.info/inful/assetbuilder/internal/planner"
	"git.home.luguber.info/inful/assetbuilder/internal/registry"
	"git.home.luguber.info/inful/assetbuilder/internal/transforms"
)

// InspectCmd implements the 'inspect' command.
type InspectCmd struct {
	Files []string `arg:"" optional:"" name:"file" help:"Files to explain rule selection for" type:"path"`
}

// Run prints the resolved configuration and, per file, how each rule
// evaluates against it.
func (c *InspectCmd) Run(g *Global, root *CLI) error {
	cfg, err := loadConfig(root)
	if err != nil {
		return err
	}
	reg, err := registry.New(cfg.Rules, cfg.BaseDir, transforms.DefaultCatalog())
	if err != nil {
		return err
	}
	graph, err := entry.FromConfig(cfg)
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(g.out(), 0, 4, 2, ' ', 0)
	writeSummary(w, cfg, graph, reg)
	for _, f := range c.Files {
		writeExplain(w, cfg, reg, f)
	}
	return w.Flush()
}

func rel(cfg *config.Config, p string) string {
	if r, err := filepath.Rel(cfg.BaseDir, p); err == nil && !strings.HasPrefix(r, "..") {
		return filepath.ToSlash(r)
	}
	return p
}

func writeSummary(w io.Writer, cfg *config.Config, graph *entry.Graph, reg *registry.Registry) {
	excluded := make(map[string]bool, len(cfg.ExcludeOutputs))
	for _, p := range cfg.ExcludeOutputs {
		excluded[p] = true
	}
	mark := func(p string) string {
		if excluded[p] {
			return p + " (excluded)"
		}
		return p
	}

	_, _ = fmt.Fprintf(w, "Mode:\t%s\n", cfg.Mode)
	_, _ = fmt.Fprintf(w, "Output:\t%s\n", cfg.Output)
	_, _ = fmt.Fprintf(w, "Linker:\t%s (%s, %s)\n\n", cfg.Link.Linker, cfg.Link.Format, cfg.Link.Target)

	_, _ = fmt.Fprintln(w, "Entries:")
	for _, e := range graph.Scripts() {
		outs := []string{}
		if p, err := planner.Plan(asset.CategoryScript, e.Name); err == nil {
			outs = append(outs, mark(p))
		}
		if g, err := deps.Walk(e.SourcePath); err != nil {
			outs = append(outs, "source not readable")
		} else if len(g.Styles) > 0 {
			if p, err := planner.Plan(asset.CategoryStyle, e.Name); err == nil {
				outs = append(outs, mark(p))
			}
		}
		_, _ = fmt.Fprintf(w, "  %s\t%s\t-> %s\n", e.Name, rel(cfg, e.SourcePath), strings.Join(outs, ", "))
	}
	for _, t := range graph.Templates() {
		p, _ := planner.Plan(asset.CategoryTemplate, t.SourcePath)
		_, _ = fmt.Fprintf(w, "  %s\t%s\t-> %s\n", t.Name, rel(cfg, t.SourcePath), mark(p))
	}
	for _, s := range cfg.Static {
		_, _ = fmt.Fprintf(w, "  static\t%s\t-> %s/\n", rel(cfg, s.From), s.To)
	}

	_, _ = fmt.Fprintln(w, "\nRules:")
	for _, r := range reg.Rules() {
		kind := "test"
		if r.IsGlob {
			kind = "glob"
		}
		line := fmt.Sprintf("  #%d\t%s %s\t[%s]", r.Index, kind, r.Pattern, strings.Join(r.Chain.IDs(), " -> "))
		if len(r.Include) > 0 {
			line += "\tinclude: " + joinScopes(r.Include)
		}
		if len(r.Exclude) > 0 {
			line += "\texclude: " + joinScopes(r.Exclude)
		}
		_, _ = fmt.Fprintln(w, line)
	}
	if len(cfg.ExcludeOutputs) > 0 {
		_, _ = fmt.Fprintln(w, "\nExcluded outputs:")
		for _, p := range cfg.ExcludeOutputs {
			_, _ = fmt.Fprintf(w, "  %s\n", p)
		}
	}
}

func joinScopes(scopes []registry.Scope) string {
	parts := make([]string, len(scopes))
	for i, s := range scopes {
		parts[i] = s.String()
	}
	return strings.Join(parts, ", ")
}

func yesNo(b bool) string {
	if b {
		return "yes"
	}
	return "no"
}

func writeExplain(w io.Writer, cfg *config.Config, reg *registry.Registry, file string) {
	abs, err := filepath.Abs(file)
	if err != nil {
		abs = file
	}
	cat := asset.CategoryOf(abs)
	_, _ = fmt.Fprintf(w, "\n%s (%s):\n", rel(cfg, abs), cat)
	for _, m := range reg.Explain(abs) {
		sel := ""
		if m.Selected {
			sel = "\t<- selected"
		}
		_, _ = fmt.Fprintf(w, "  #%d\t%s\tpattern=%s include=%s exclude=%s%s\n",
			m.Rule, m.Pattern, yesNo(m.PatternMatched), yesNo(m.InInclude), yesNo(m.InExclude), sel)
	}
	if chain, ok := reg.Resolve(abs); ok {
		_, _ = fmt.Fprintf(w, "  chain:\t%s\n", chain.Signature())
		return
	}
	switch {
	case cat.RequiresRule():
		_, _ = fmt.Fprintln(w, "  no rule matches: a build including this file fails")
	case cat == asset.CategoryScript:
		_, _ = fmt.Fprintln(w, "  no rule matches: linked untransformed")
	default:
		_, _ = fmt.Fprintln(w, "  no rule matches: ignored")
	}
}

package pipeline

import (
	"bytes"
	"errors"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"

	"git.home.luguber.info/inful/assetbuilder/internal/asset"
	"git.home.luguber.info/inful/assetbuilder/internal/cache"
	"git.home.luguber.info/inful/assetbuilder/internal/deps"
	ferrors "git.home.luguber.info/inful/assetbuilder/internal/foundation/errors"
	"git.home.luguber.info/inful/assetbuilder/internal/htmlrefs"
	"git.home.luguber.info/inful/assetbuilder/internal/link"
	"git.home.luguber.info/inful/assetbuilder/internal/logfields"
	"git.home.luguber.info/inful/assetbuilder/internal/planner"
	"git.home.luguber.info/inful/assetbuilder/internal/registry"
	"git.home.luguber.info/inful/assetbuilder/internal/transforms"
)

func stageClean(ps *passState) error {
	root := ps.orch.root
	if err := root.beginStaging(ps.ctx); err != nil {
		return ferrors.CleanFailure("cannot prepare output root").WithCause(err).WithContext("path", root.Dir()).Build()
	}
	return nil
}

// stageTransform discovers every file reachable from the script entries plus
// the images under image rule scopes, then runs each file's chain.
func stageTransform(ps *passState) error {
	o := ps.orch
	for _, e := range o.graph.Scripts() {
		g, err := deps.Walk(e.SourcePath)
		if err != nil {
			return ferrors.FileSystemError("cannot read entry source").
				WithCause(err).
				WithContext("entry", e.Name).
				WithContext("path", e.SourcePath).
				Build()
		}
		for _, u := range g.Unresolved {
			ps.report.AddWarning(ferrors.NewError(ferrors.CategoryValidation, "unresolved relative import").
				Warning().WithContext("path", u).Build())
		}
		for file, by := range g.Reasons {
			ps.addReason(file, by)
		}
		ps.graphs = append(ps.graphs, entryGraph{entry: e, graph: g})
		for _, f := range g.Modules {
			ps.addFile(f)
		}
		for _, f := range g.Styles {
			ps.addFile(f)
		}
		for _, f := range g.Images {
			ps.addFile(f)
		}
	}
	for _, img := range scopedImages(o.registry) {
		ps.addFile(img)
		ps.addReason(img, []string{"image scope"})
	}

	jobs := make([]transformJob, 0, len(ps.files))
	for _, f := range ps.files {
		cat := asset.CategoryOf(f)
		chain, ok := o.registry.Resolve(f)
		if !ok {
			switch {
			case cat.RequiresRule():
				return ferrors.UnmatchedFileFailure("no transform rule matches file").
					WithContext("path", f).
					WithContext("category", string(cat)).
					Build()
			case cat == asset.CategoryScript:
				// Scoped out of transformation; linked as written.
				jobs = append(jobs, transformJob{path: f, passthrough: true})
			}
			continue
		}
		jobs = append(jobs, transformJob{path: f, chain: chain, partials: styleDeps(ps.graphs, f)})
	}

	results := runOrdered(jobs, o.concurrency, ps.transformOne)
	ps.outputs = make(map[string][]byte, len(jobs))
	for i, r := range results {
		if r.Err != nil {
			return classifyTransformError(jobs[i].path, r.Err)
		}
		ps.outputs[jobs[i].path] = r.Value
	}
	o.logger.Debug("Transformed files", logfields.PassID(ps.report.PassID), logfields.Count(len(jobs)))
	return nil
}

type transformJob struct {
	path        string
	chain       registry.Chain
	partials    []string
	passthrough bool
}

func (ps *passState) transformOne(job transformJob) ([]byte, error) {
	src, err := os.ReadFile(job.path)
	if err != nil {
		return nil, ferrors.FileSystemError("cannot read source file").WithCause(err).WithContext("path", job.path).Build()
	}
	if job.passthrough {
		return src, nil
	}

	keyInput := src
	if len(job.partials) > 0 {
		var b bytes.Buffer
		b.Write(src)
		for _, p := range job.partials {
			b.WriteString("\x00" + p + "\x00")
			if data, err := os.ReadFile(p); err == nil {
				b.Write(data)
			}
		}
		keyInput = b.Bytes()
	}
	key := cache.Key(job.path, keyInput, job.chain.Signature())
	if out, ok := ps.orch.cache.Get(key); ok {
		ps.cacheHits.Add(1)
		return out, nil
	}
	ps.cacheMisses.Add(1)

	out, err := ps.orch.catalog.Apply(ps.ctx, job.chain, src, job.path)
	if err != nil {
		return nil, err
	}
	ps.orch.cache.Put(key, out)
	return out, nil
}

func classifyTransformError(p string, err error) error {
	if ferrors.IsClassified(err) {
		return err
	}
	b := ferrors.TransformFailure("transform failed").WithCause(err).WithContext("path", p)
	var te *transforms.Error
	if errors.As(err, &te) {
		b = b.WithContext("step", te.Step)
	}
	return b.Build()
}

func styleDeps(graphs []entryGraph, root string) []string {
	for _, eg := range graphs {
		if d, ok := eg.graph.StyleDeps[root]; ok {
			return d
		}
	}
	return nil
}

// scopedImages walks the include directories of every rule and returns the
// images the registry accepts, sorted.
func scopedImages(reg *registry.Registry) []string {
	seen := make(map[string]bool)
	var out []string
	for _, rule := range reg.Rules() {
		for _, scope := range rule.Include {
			if !scope.IsDir() {
				continue
			}
			_ = filepath.WalkDir(scope.Dir, func(p string, d fs.DirEntry, err error) error {
				if err != nil {
					return nil
				}
				if d.IsDir() {
					if p != scope.Dir && strings.HasPrefix(d.Name(), ".") {
						return filepath.SkipDir
					}
					return nil
				}
				if seen[p] || asset.CategoryOf(p) != asset.CategoryImage {
					return nil
				}
				if _, ok := reg.Resolve(p); ok {
					seen[p] = true
					out = append(out, p)
				}
				return nil
			})
		}
	}
	sort.Strings(out)
	return out
}

// stagePlan assembles build units and assigns each its output path.
func stagePlan(ps *passState) error {
	o := ps.orch
	for _, eg := range ps.graphs {
		e, g := eg.entry, eg.graph

		var code []byte
		if len(g.Modules) > 0 {
			unit := link.Unit{Name: e.Name, EntryPath: g.Entry}
			for _, m := range g.Modules {
				unit.Modules = append(unit.Modules, link.Module{Path: m, Code: ps.outputs[m]})
			}
			out, err := o.linker.Link(ps.ctx, unit)
			if err != nil {
				return ferrors.TransformFailure("cannot link script entry").
					WithCause(err).
					WithContext("entry", e.Name).
					WithContext("path", e.SourcePath).
					WithContext("step", "link").
					Build()
			}
			code = out
		}
		rel, err := planner.Plan(asset.CategoryScript, e.Name)
		if err != nil {
			return err
		}
		ps.plan(rel, code, e.SourcePath, asset.CategoryScript)

		if len(g.Styles) > 0 {
			parts := make([][]byte, 0, len(g.Styles))
			for _, s := range g.Styles {
				parts = append(parts, ps.outputs[s])
			}
			rel, err := planner.Plan(asset.CategoryStyle, e.Name)
			if err != nil {
				return err
			}
			ps.plan(rel, bytes.Join(parts, []byte("\n")), e.SourcePath, asset.CategoryStyle)
		}
	}

	for _, img := range ps.images {
		out, ok := ps.outputs[img]
		if !ok {
			continue
		}
		rel, err := planner.Plan(asset.CategoryImage, img)
		if err != nil {
			return err
		}
		ps.plan(rel, out, img, asset.CategoryImage)
	}

	for _, t := range o.graph.Templates() {
		src, err := os.ReadFile(t.SourcePath)
		if err != nil {
			return ferrors.FileSystemError("cannot read template").WithCause(err).WithContext("path", t.SourcePath).Build()
		}
		rel, err := planner.Plan(asset.CategoryTemplate, t.SourcePath)
		if err != nil {
			return err
		}
		ps.plan(rel, src, t.SourcePath, asset.CategoryTemplate)
	}

	if err := ps.planStatic(); err != nil {
		return err
	}
	ps.checkTemplateRefs()
	return nil
}

// planStatic adds the files of every static directory verbatim.
func (ps *passState) planStatic() error {
	for _, s := range ps.orch.cfg.Static {
		err := filepath.WalkDir(s.From, func(p string, d fs.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if d.IsDir() {
				return nil
			}
			rel, err := filepath.Rel(s.From, p)
			if err != nil {
				return err
			}
			data, err := os.ReadFile(p)
			if err != nil {
				return err
			}
			ps.plan(path.Join(s.To, filepath.ToSlash(rel)), data, p, asset.CategoryOf(p))
			return nil
		})
		if err != nil {
			return ferrors.FileSystemError("cannot copy static directory").WithCause(err).WithContext("path", s.From).Build()
		}
	}
	return nil
}

// checkTemplateRefs warns about template asset URLs that will not exist
// once exclusions are applied.
func (ps *passState) checkTemplateRefs() {
	available := make(map[string]bool, len(ps.artifacts))
	for _, a := range ps.artifacts {
		if !ps.orch.exclusions[a.RelPath] {
			available[a.RelPath] = true
		}
	}
	for _, a := range ps.artifacts {
		if a.category != asset.CategoryTemplate {
			continue
		}
		msgs, err := htmlrefs.Check(a.RelPath, a.Content, available)
		if err != nil {
			ps.report.AddWarning(err)
			continue
		}
		for _, m := range msgs {
			ps.report.AddWarning(ferrors.NewError(ferrors.CategoryValidation, m).Warning().WithContext("path", a.RelPath).Build())
		}
	}
}

func stageEmit(ps *passState) error {
	stage := ps.orch.root.StageDir()
	for _, a := range ps.artifacts {
		dst := filepath.Join(stage, filepath.FromSlash(a.RelPath))
		if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
			return ferrors.FileSystemError("cannot create output directory").WithCause(err).WithContext("path", dst).Build()
		}
		if err := os.WriteFile(dst, a.Content, 0o644); err != nil {
			return ferrors.FileSystemError("cannot write artifact").WithCause(err).WithContext("path", dst).Build()
		}
	}
	return nil
}

// stageExclusionFilter removes excluded paths after every artifact has been
// emitted and records what remains.
func stageExclusionFilter(ps *passState) error {
	o := ps.orch
	stage := o.root.StageDir()
	for _, a := range ps.artifacts {
		if !o.exclusions[a.RelPath] {
			ps.report.Artifacts = append(ps.report.Artifacts, a.RelPath)
			ps.report.Sizes[a.RelPath] = a.Size()
			continue
		}
		dst := filepath.Join(stage, filepath.FromSlash(a.RelPath))
		if err := os.Remove(dst); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return ferrors.FileSystemError("cannot remove excluded artifact").WithCause(err).WithContext("path", dst).Build()
		}
		removeEmptyParents(stage, filepath.Dir(dst))
		ps.report.Excluded = append(ps.report.Excluded, a.RelPath)
		o.logger.Debug("Excluded artifact", logfields.PassID(ps.report.PassID), logfields.Artifact(a.RelPath))
	}
	return nil
}

func removeEmptyParents(stop, dir string) {
	for dir != stop && strings.HasPrefix(dir, stop) {
		if err := os.Remove(dir); err != nil {
			return
		}
		dir = filepath.Dir(dir)
	}
}

func stagePromote(ps *passState) error {
	if err := ps.orch.root.promote(); err != nil {
		return ferrors.CleanFailure("cannot promote build output").WithCause(err).WithContext("path", ps.orch.root.Dir()).Build()
	}
	return nil
}

func cleanRel(p string) string {
	return path.Clean(strings.TrimPrefix(filepath.ToSlash(p), "./"))
}

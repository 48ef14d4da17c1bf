package deps

import (
	"fmt"
	"os"
	"path/filepath"

	"git.home.luguber.info/inful/assetbuilder/internal/asset"
)

// ReasonEntry marks a file included because it is the entry itself.
const ReasonEntry = "entry"

// Graph is the dependency set reachable from one script entry.
type Graph struct {
	Entry string
	// Modules lists script files dependencies first; the entry is last.
	Modules []string
	// Styles lists stylesheets imported from scripts, in import order.
	Styles []string
	// StyleDeps maps each style root to the partials it pulls in.
	StyleDeps map[string][]string
	// Images lists images referenced from scripts or styles.
	Images []string
	// Reasons maps each file to the files that imported it.
	Reasons map[string][]string
	// Unresolved lists relative imports that matched no file.
	Unresolved []string
}

type walker struct {
	g       *Graph
	scripts map[string]bool
	styles  map[string]bool
	images  map[string]bool
}

// Walk reads the entry at entryPath and everything it reaches through
// relative imports.
func Walk(entryPath string) (*Graph, error) {
	abs, err := filepath.Abs(entryPath)
	if err != nil {
		return nil, err
	}
	if !isFile(abs) {
		return nil, fmt.Errorf("entry source %s: %w", abs, os.ErrNotExist)
	}
	w := &walker{
		g: &Graph{
			Entry:     abs,
			StyleDeps: make(map[string][]string),
			Reasons:   map[string][]string{abs: {ReasonEntry}},
		},
		scripts: make(map[string]bool),
		styles:  make(map[string]bool),
		images:  make(map[string]bool),
	}
	switch asset.CategoryOf(abs) {
	case asset.CategoryStyle:
		// A stylesheet used directly as an entry is its own style root.
		if err := w.addStyleRoot(abs); err != nil {
			return nil, err
		}
	default:
		if err := w.visitScript(abs); err != nil {
			return nil, err
		}
	}
	return w.g, nil
}

func (w *walker) reason(file, importer string) {
	for _, r := range w.g.Reasons[file] {
		if r == importer {
			return
		}
	}
	w.g.Reasons[file] = append(w.g.Reasons[file], importer)
}

func (w *walker) visitScript(path string) error {
	if w.scripts[path] {
		return nil
	}
	w.scripts[path] = true
	src, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	dir := filepath.Dir(path)
	for _, spec := range ScanScript(src) {
		if !IsRelative(spec) {
			continue
		}
		dep, ok := ResolveScript(dir, spec)
		if !ok {
			w.g.Unresolved = append(w.g.Unresolved, path+": "+spec)
			continue
		}
		w.reason(dep, path)
		switch asset.CategoryOf(dep) {
		case asset.CategoryScript:
			if err := w.visitScript(dep); err != nil {
				return err
			}
		case asset.CategoryStyle:
			if err := w.addStyleRoot(dep); err != nil {
				return err
			}
		case asset.CategoryImage:
			w.addImage(dep)
		}
	}
	w.g.Modules = append(w.g.Modules, path)
	return nil
}

func (w *walker) addImage(p string) {
	if !w.images[p] {
		w.images[p] = true
		w.g.Images = append(w.g.Images, p)
	}
}

func (w *walker) addStyleRoot(root string) error {
	if w.styles[root] {
		return nil
	}
	w.styles[root] = true
	w.g.Styles = append(w.g.Styles, root)
	seen := map[string]bool{root: true}
	return w.walkStyle(root, root, seen)
}

func (w *walker) walkStyle(root, path string, seen map[string]bool) error {
	src, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	dir := filepath.Dir(path)
	imports, urls := ScanStyle(src)
	for _, spec := range imports {
		if IsExternalURL(spec) {
			continue
		}
		dep, ok := ResolveStyle(dir, spec)
		if !ok {
			// Load-path and package imports are resolved by the compiler.
			continue
		}
		w.reason(dep, path)
		if seen[dep] {
			continue
		}
		seen[dep] = true
		w.g.StyleDeps[root] = append(w.g.StyleDeps[root], dep)
		if err := w.walkStyle(root, dep, seen); err != nil {
			return err
		}
	}
	for _, ref := range urls {
		if IsExternalURL(ref) {
			continue
		}
		p := StripQuery(ref)
		if asset.CategoryOf(p) != asset.CategoryImage {
			continue
		}
		// Compiled stylesheets keep url() text as written, so a reference
		// may be relative to the partial or to the root.
		for _, base := range []string{dir, filepath.Dir(root)} {
			candidate := filepath.Join(base, filepath.FromSlash(p))
			if isFile(candidate) {
				w.reason(candidate, path)
				w.addImage(candidate)
				break
			}
		}
	}
	return nil
}

package devserver

import (
	"fmt"
	"hash/fnv"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/fsnotify/fsnotify"

	"git.home.luguber.info/inful/assetbuilder/internal/config"
	"git.home.luguber.info/inful/assetbuilder/internal/logfields"
	"git.home.luguber.info/inful/assetbuilder/internal/pipeline"
)

// watchDirs lists the directories whose contents can change a pass: the
// entry source directories, rule include scopes and static sources. Nested
// duplicates are dropped and the trees owned by root are never watched.
func watchDirs(cfg *config.Config, sourceDirs []string, root *pipeline.OutputRoot) []string {
	candidates := append([]string(nil), sourceDirs...)
	for _, r := range cfg.Rules {
		for _, inc := range r.Include {
			if strings.ContainsAny(inc, `/\`) {
				candidates = append(candidates, cfg.Abs(inc))
			}
		}
	}
	for _, s := range cfg.Static {
		candidates = append(candidates, s.From)
	}

	var dirs []string
	for _, c := range candidates {
		if fi, err := os.Stat(c); err != nil || !fi.IsDir() {
			continue
		}
		if root.Owns(c) {
			continue
		}
		dirs = append(dirs, filepath.Clean(c))
	}
	sort.Strings(dirs)

	var out []string
	for _, d := range dirs {
		if len(out) > 0 && isWithin(d, out[len(out)-1]) {
			continue
		}
		out = append(out, d)
	}
	return out
}

func isWithin(p, dir string) bool {
	rel, err := filepath.Rel(dir, p)
	return err == nil && rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}

func newWatcher(dirs []string, out *pipeline.OutputRoot) (*fsnotify.Watcher, error) {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("fsnotify: %w", err)
	}
	for _, d := range dirs {
		addDirsRecursive(w, d, out)
	}
	return w, nil
}

func addDirsRecursive(w *fsnotify.Watcher, root string, out *pipeline.OutputRoot) {
	_ = filepath.WalkDir(root, func(p string, d fs.DirEntry, err error) error {
		if err != nil || !d.IsDir() {
			return nil
		}
		if p != root && (strings.HasPrefix(d.Name(), ".") || d.Name() == "node_modules") {
			return filepath.SkipDir
		}
		if out.Owns(p) {
			return filepath.SkipDir
		}
		if err := w.Add(p); err != nil {
			slog.Warn("watch add failed", logfields.Path(p), logfields.Error(err))
		}
		return nil
	})
}

// shouldIgnoreEvent reports whether a change to path cannot affect a pass.
func shouldIgnoreEvent(path string) bool {
	base := filepath.Base(path)
	switch {
	case strings.HasPrefix(base, "."):
		return true
	case strings.HasSuffix(base, "~"),
		strings.HasSuffix(base, ".swp"),
		strings.HasSuffix(base, ".swx"),
		strings.HasSuffix(base, ".tmp"),
		strings.HasPrefix(base, "#") && strings.HasSuffix(base, "#"):
		return true
	case base == "Thumbs.db" || base == "4913":
		return true
	}
	return false
}

// treeFingerprint summarises names, sizes and modification times under dirs.
// The poll fallback compares successive fingerprints.
func treeFingerprint(dirs []string) uint64 {
	h := fnv.New64a()
	for _, root := range dirs {
		_ = filepath.WalkDir(root, func(p string, d fs.DirEntry, err error) error {
			if err != nil {
				return nil
			}
			if d.IsDir() {
				if p != root && strings.HasPrefix(d.Name(), ".") {
					return filepath.SkipDir
				}
				return nil
			}
			if shouldIgnoreEvent(p) {
				return nil
			}
			info, err := d.Info()
			if err != nil {
				return nil
			}
			fmt.Fprintf(h, "%s\x00%d\x00%d\n", p, info.Size(), info.ModTime().UnixNano())
			return nil
		})
	}
	return h.Sum64()
}

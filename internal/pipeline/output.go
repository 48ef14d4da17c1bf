package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"git.home.luguber.info/inful/assetbuilder/internal/logfields"
	"git.home.luguber.info/inful/assetbuilder/internal/retry"
)

// OutputRoot is the destination tree of a build. Passes write into a
// sibling staging directory and swap it into place under the write lock.
// Readers open files under the read lock; an open file keeps its content
// after the swap, so a reader sees either the complete previous file or the
// complete new one.
type OutputRoot struct {
	dir string
	mu  sync.RWMutex

	// removeAll is swapped in tests to simulate cleanup failures.
	removeAll func(string) error
	retry     retry.Policy
	cleanup   sync.WaitGroup
}

// NewOutputRoot returns an output root for dir.
func NewOutputRoot(dir string) *OutputRoot {
	return &OutputRoot{dir: filepath.Clean(dir), removeAll: os.RemoveAll, retry: retry.DefaultPolicy()}
}

// Dir is the served directory.
func (o *OutputRoot) Dir() string { return o.dir }

// StageDir is the sibling directory a pass is built into.
func (o *OutputRoot) StageDir() string { return o.dir + "_stage" }

func (o *OutputRoot) prevDir() string { return o.dir + ".prev" }

// Owns reports whether p is the output tree, the staging tree or the
// previous tree awaiting removal, or lies inside one of them. Every pass
// writes to these paths, so a watcher must never treat them as sources.
func (o *OutputRoot) Owns(p string) bool {
	p = filepath.Clean(p)
	for _, dir := range []string{o.dir, o.StageDir(), o.prevDir()} {
		if p == dir || strings.HasPrefix(p, dir+string(filepath.Separator)) {
			return true
		}
	}
	return false
}

// RLock acquires the read side; hold it while opening files under Dir.
func (o *OutputRoot) RLock() { o.mu.RLock() }

// RUnlock releases the read side.
func (o *OutputRoot) RUnlock() { o.mu.RUnlock() }

// Exists reports whether a promoted tree is present.
func (o *OutputRoot) Exists() bool {
	o.mu.RLock()
	defer o.mu.RUnlock()
	fi, err := os.Stat(o.dir)
	return err == nil && fi.IsDir()
}

// beginStaging removes leftovers of an interrupted pass and creates an empty
// staging directory.
func (o *OutputRoot) beginStaging(ctx context.Context) error {
	o.cleanup.Wait()
	for _, leftover := range []string{o.StageDir(), o.prevDir()} {
		if err := o.retry.Do(ctx, func() error { return o.removeAll(leftover) }); err != nil {
			return fmt.Errorf("remove %s: %w", leftover, err)
		}
	}
	if err := os.MkdirAll(o.StageDir(), 0o755); err != nil {
		return fmt.Errorf("create staging directory: %w", err)
	}
	slog.Debug("Initialized staging directory", "staging", o.StageDir(), "final", o.dir)
	return nil
}

// promote swaps staging into place:
//  1. Move the existing output to <output>.prev.
//  2. Rename staging to the output.
//  3. Remove the previous tree in the background.
func (o *OutputRoot) promote() error {
	stage := o.StageDir()
	if _, err := os.Stat(stage); err != nil {
		return fmt.Errorf("staging directory missing: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(o.dir), 0o755); err != nil {
		return fmt.Errorf("create output parent: %w", err)
	}

	prev := o.prevDir()
	if err := o.removeAll(prev); err != nil {
		return fmt.Errorf("remove stale backup: %w", err)
	}

	o.mu.Lock()
	movedAside := false
	if _, err := os.Stat(o.dir); err == nil {
		if err := os.Rename(o.dir, prev); err != nil {
			o.mu.Unlock()
			return fmt.Errorf("backup existing output: %w", err)
		}
		movedAside = true
	} else if !errors.Is(err, fs.ErrNotExist) {
		o.mu.Unlock()
		return fmt.Errorf("stat output: %w", err)
	}
	if err := os.Rename(stage, o.dir); err != nil {
		if movedAside {
			// Put the previous tree back so readers keep a complete site.
			_ = os.Rename(prev, o.dir)
		}
		o.mu.Unlock()
		return fmt.Errorf("promote staging: %w", err)
	}
	o.mu.Unlock()

	if movedAside {
		o.cleanup.Add(1)
		go func(p string) {
			defer o.cleanup.Done()
			if err := os.RemoveAll(p); err != nil {
				slog.Warn("Failed to remove previous output", logfields.Path(p), logfields.Error(err))
			}
		}(prev)
	}
	slog.Debug("Promoted staging directory", "output", o.dir)
	return nil
}

// Wait blocks until the previous tree of the last promotion is removed.
func (o *OutputRoot) Wait() { o.cleanup.Wait() }

// abortStaging removes the staging directory after a failed pass. The
// promoted tree is left untouched.
func (o *OutputRoot) abortStaging() {
	dir := o.StageDir()
	if err := o.removeAll(dir); err != nil {
		slog.Warn("Failed to remove staging directory after abort", "staging", dir, logfields.Error(err))
	}
}

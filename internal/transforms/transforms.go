// Package transforms defines the uniform contract every transform step
// implements and the catalog of steps a rule chain may reference.
package transforms

import (
	"context"
	"fmt"
	"slices"
	"sort"
	"sync"
)

// Transformer rewrites the content of a single file. path is the absolute
// source path and is used for diagnostics and relative lookups only.
type Transformer interface {
	Transform(ctx context.Context, in []byte, path string, opts Options) ([]byte, error)
}

// TransformerFunc adapts a plain function to Transformer.
type TransformerFunc func(ctx context.Context, in []byte, path string, opts Options) ([]byte, error)

// Transform calls f.
func (f TransformerFunc) Transform(ctx context.Context, in []byte, path string, opts Options) ([]byte, error) {
	return f(ctx, in, path, opts)
}

// Step is one configured element of a chain.
type Step struct {
	ID      string
	Options Options
}

// Error reports a step rejecting its input.
type Error struct {
	Path  string
	Step  string
	Cause error
}

func (e *Error) Error() string {
	return fmt.Sprintf("transform %s failed for %s: %v", e.Step, e.Path, e.Cause)
}

func (e *Error) Unwrap() error { return e.Cause }

// Catalog maps step identifiers to transformers. It is safe for concurrent
// lookups once populated.
type Catalog struct {
	mu    sync.RWMutex
	steps map[string]Transformer
}

// NewCatalog returns an empty catalog.
func NewCatalog() *Catalog {
	return &Catalog{steps: make(map[string]Transformer)}
}

// Register adds or replaces the transformer for id.
func (c *Catalog) Register(id string, t Transformer) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.steps[id] = t
}

// Lookup returns the transformer registered for id.
func (c *Catalog) Lookup(id string) (Transformer, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	t, ok := c.steps[id]
	return t, ok
}

// Has reports whether id is registered.
func (c *Catalog) Has(id string) bool {
	_, ok := c.Lookup(id)
	return ok
}

// IDs returns the registered identifiers in sorted order.
func (c *Catalog) IDs() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	ids := make([]string, 0, len(c.steps))
	for id := range c.steps {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Apply threads in through steps in order: the output of step n is the input
// of step n+1. Any failure is returned as *Error naming the step.
func (c *Catalog) Apply(ctx context.Context, steps []Step, in []byte, path string) ([]byte, error) {
	out := slices.Clone(in)
	for _, s := range steps {
		if err := ctx.Err(); err != nil {
			return nil, &Error{Path: path, Step: s.ID, Cause: err}
		}
		t, ok := c.Lookup(s.ID)
		if !ok {
			return nil, &Error{Path: path, Step: s.ID, Cause: fmt.Errorf("unknown transform step %q", s.ID)}
		}
		next, err := t.Transform(ctx, out, path, s.Options)
		if err != nil {
			return nil, &Error{Path: path, Step: s.ID, Cause: err}
		}
		out = next
	}
	return out, nil
}

// Package link turns the transformed modules of one script entry into a
// single output file.
package link

import (
	"bytes"
	"context"
	"fmt"

	"git.home.luguber.info/inful/assetbuilder/internal/config"
)

// Module is one transformed script file.
type Module struct {
	Path string
	Code []byte
}

// Unit is the module graph of a script entry. Modules are ordered
// dependencies first; the module at EntryPath is last.
type Unit struct {
	Name      string
	EntryPath string
	Modules   []Module
}

// Linker assembles a unit into one artifact.
type Linker interface {
	Link(ctx context.Context, u Unit) ([]byte, error)
}

// New returns the linker selected by cfg. Production mode minifies.
func New(cfg config.LinkConfig, mode config.Mode) (Linker, error) {
	switch cfg.Linker {
	case config.LinkerConcat:
		return ConcatLinker{}, nil
	case config.LinkerEsbuild, "":
		return NewEsbuildLinker(cfg.Target, cfg.Format, mode)
	default:
		return nil, fmt.Errorf("unknown linker %q", cfg.Linker)
	}
}

// ConcatLinker joins module code in dependency order. It performs no
// module rewriting and suits plain scripts that share globals.
type ConcatLinker struct{}

// Link implements Linker.
func (ConcatLinker) Link(_ context.Context, u Unit) ([]byte, error) {
	if len(u.Modules) == 0 {
		return nil, fmt.Errorf("entry %s has no modules", u.Name)
	}
	if len(u.Modules) == 1 {
		return u.Modules[0].Code, nil
	}
	parts := make([][]byte, len(u.Modules))
	for i, m := range u.Modules {
		parts[i] = m.Code
	}
	return bytes.Join(parts, []byte("\n")), nil
}

package registry

import (
	"path/filepath"
	"strings"
)

// Scope restricts a rule to part of the tree. A bare name without a
// separator (node_modules) matches that name as any path segment; anything
// else is a directory resolved against the base directory.
type Scope struct {
	Raw     string
	Dir     string
	Segment string
}

// NewScope parses a scope declaration.
func NewScope(raw, baseDir string) Scope {
	s := Scope{Raw: raw}
	trimmed := strings.TrimSpace(raw)
	if !strings.ContainsAny(trimmed, `/\`) && trimmed != "." && trimmed != ".." {
		s.Segment = trimmed
		return s
	}
	if filepath.IsAbs(trimmed) {
		s.Dir = filepath.Clean(trimmed)
	} else {
		s.Dir = filepath.Join(baseDir, trimmed)
	}
	return s
}

// Contains reports whether the absolute path abs falls inside the scope.
func (s Scope) Contains(abs string) bool {
	if s.Segment != "" {
		for _, part := range strings.Split(filepath.ToSlash(abs), "/") {
			if part == s.Segment {
				return true
			}
		}
		return false
	}
	rel, err := filepath.Rel(s.Dir, abs)
	if err != nil {
		return false
	}
	return rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}

// IsDir reports whether the scope names a concrete directory that can be
// walked.
func (s Scope) IsDir() bool { return s.Dir != "" }

func (s Scope) String() string { return s.Raw }

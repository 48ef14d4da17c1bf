// Package asset holds the file categories and output artifacts shared by the
// build stages.
package asset

import (
	"mime"
	"path"
	"path/filepath"
	"strings"
)

// Category classifies a source file by extension. Script, style and image
// are mutually exclusive.
type Category string

const (
	CategoryScript   Category = "script"
	CategoryStyle    Category = "style"
	CategoryImage    Category = "image"
	CategoryTemplate Category = "template"
	CategoryOther    Category = "other"
)

var extCategories = map[string]Category{
	".js":   CategoryScript,
	".mjs":  CategoryScript,
	".cjs":  CategoryScript,
	".scss": CategoryStyle,
	".sass": CategoryStyle,
	".css":  CategoryStyle,
	".png":  CategoryImage,
	".svg":  CategoryImage,
	".jpg":  CategoryImage,
	".jpeg": CategoryImage,
	".gif":  CategoryImage,
	".webp": CategoryImage,
	".ico":  CategoryImage,
	".html": CategoryTemplate,
	".htm":  CategoryTemplate,
}

// CategoryOf returns the category of p based on its extension.
func CategoryOf(p string) Category {
	if c, ok := extCategories[strings.ToLower(filepath.Ext(p))]; ok {
		return c
	}
	return CategoryOther
}

// RequiresRule reports whether a file of this category must be matched by a
// transform rule. Unmatched style and image files fail the pass.
func (c Category) RequiresRule() bool {
	return c == CategoryStyle || c == CategoryImage
}

// Artifact is one output file. Artifacts are never mutated once created.
type Artifact struct {
	RelPath     string
	Content     []byte
	ContentType string
	// Source is the file or entry the artifact was produced from.
	Source string
}

// NewArtifact creates an artifact and derives its content type from the
// extension of relPath.
func NewArtifact(relPath string, content []byte, source string) Artifact {
	relPath = path.Clean(filepath.ToSlash(relPath))
	ct := mime.TypeByExtension(path.Ext(relPath))
	if ct == "" {
		ct = "application/octet-stream"
	}
	return Artifact{RelPath: relPath, Content: content, ContentType: ct, Source: source}
}

// Size returns the content length in bytes.
func (a Artifact) Size() int { return len(a.Content) }

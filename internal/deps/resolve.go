package deps

import (
	"os"
	"path/filepath"
	"strings"
)

var scriptExtensions = []string{".js", ".mjs", ".cjs"}

var styleExtensions = []string{".scss", ".sass", ".css"}

// IsRelative reports whether a script specifier names a file rather than a
// package.
func IsRelative(spec string) bool {
	return strings.HasPrefix(spec, "./") || strings.HasPrefix(spec, "../") || spec == "." || spec == ".." || filepath.IsAbs(spec)
}

// IsExternalURL reports url() references that never point at a local file.
func IsExternalURL(ref string) bool {
	if ref == "" || strings.HasPrefix(ref, "#") || strings.HasPrefix(ref, "/") {
		return true
	}
	if i := strings.Index(ref, ":"); i > 0 && !strings.ContainsAny(ref[:i], "/.") {
		return true
	}
	return false
}

// StripQuery removes a query string or fragment from a reference.
func StripQuery(ref string) string {
	if i := strings.IndexAny(ref, "?#"); i >= 0 {
		return ref[:i]
	}
	return ref
}

func isFile(p string) bool {
	fi, err := os.Stat(p)
	return err == nil && fi.Mode().IsRegular()
}

// ResolveScript resolves a relative specifier imported from a file in
// fromDir. Missing extensions and directory index files are tried the way
// Node does.
func ResolveScript(fromDir, spec string) (string, bool) {
	if !IsRelative(spec) {
		return "", false
	}
	base := spec
	if !filepath.IsAbs(base) {
		base = filepath.Join(fromDir, filepath.FromSlash(spec))
	}
	if isFile(base) {
		return base, true
	}
	for _, ext := range scriptExtensions {
		if isFile(base + ext) {
			return base + ext, true
		}
	}
	for _, ext := range scriptExtensions {
		if p := filepath.Join(base, "index"+ext); isFile(p) {
			return p, true
		}
	}
	return "", false
}

// ResolveStyle resolves a Sass or CSS import from a file in fromDir,
// including partials (_name.scss) and directory indexes.
func ResolveStyle(fromDir, spec string) (string, bool) {
	p := filepath.FromSlash(spec)
	if !filepath.IsAbs(p) {
		p = filepath.Join(fromDir, p)
	}
	dir, name := filepath.Split(p)
	candidates := []string{p}
	for _, ext := range styleExtensions {
		candidates = append(candidates, filepath.Join(dir, name+ext), filepath.Join(dir, "_"+name+ext))
	}
	for _, ext := range styleExtensions {
		candidates = append(candidates, filepath.Join(p, "_index"+ext), filepath.Join(p, "index"+ext))
	}
	for _, c := range candidates {
		if isFile(c) {
			return c, true
		}
	}
	return "", false
}

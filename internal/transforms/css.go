package transforms

import (
	"context"
	"path"
	"regexp"
	"strings"

	"git.home.luguber.info/inful/assetbuilder/internal/asset"
)

var cssURL = regexp.MustCompile(`url\(\s*(['"]?)([^'")]+?)(['"]?)\s*\)`)

// rewriteURLs applies fn to every url() reference in css. Returning false
// keeps the original text.
func rewriteURLs(css []byte, fn func(ref string) (string, bool)) []byte {
	return cssURL.ReplaceAllFunc(css, func(m []byte) []byte {
		sub := cssURL.FindSubmatch(m)
		ref := strings.TrimSpace(string(sub[2]))
		next, ok := fn(ref)
		if !ok {
			return m
		}
		return []byte("url(" + string(sub[1]) + next + string(sub[3]) + ")")
	})
}

// isExternalRef reports references that never point into the build: data
// URIs, absolute URLs, root-relative paths and fragments.
func isExternalRef(ref string) bool {
	if ref == "" || strings.HasPrefix(ref, "#") || strings.HasPrefix(ref, "/") {
		return true
	}
	if i := strings.Index(ref, ":"); i > 0 && !strings.ContainsAny(ref[:i], "/.") {
		return true
	}
	return false
}

// splitRef separates a reference into its path and its query/fragment suffix.
func splitRef(ref string) (string, string) {
	if i := strings.IndexAny(ref, "?#"); i >= 0 {
		return ref[:i], ref[i:]
	}
	return ref, ""
}

// CSS points image references at the flat image output directory.
// Options: publicPath (default "../img/").
type CSS struct{}

func (CSS) Transform(_ context.Context, in []byte, _ string, opts Options) ([]byte, error) {
	public := opts.String("publicPath", "../img/")
	return rewriteURLs(in, func(ref string) (string, bool) {
		if isExternalRef(ref) {
			return "", false
		}
		p, suffix := splitRef(ref)
		if asset.CategoryOf(p) != asset.CategoryImage {
			return "", false
		}
		return public + path.Base(p) + suffix, true
	}), nil
}

// Extract prepares a stylesheet for emission under resources/css by
// prefixing remaining relative references with publicPath, the way back to
// the output root. Options: publicPath (default "../../").
type Extract struct{}

func (Extract) Transform(_ context.Context, in []byte, _ string, opts Options) ([]byte, error) {
	public := opts.String("publicPath", "../../")
	return rewriteURLs(in, func(ref string) (string, bool) {
		if isExternalRef(ref) || strings.HasPrefix(ref, "../") || strings.HasPrefix(ref, public) {
			return "", false
		}
		p, _ := splitRef(ref)
		if asset.CategoryOf(p) == asset.CategoryImage {
			return "", false
		}
		return public + strings.TrimPrefix(ref, "./"), true
	}), nil
}

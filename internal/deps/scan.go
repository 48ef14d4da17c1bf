// Package deps discovers the files an entry depends on by scanning import
// statements and resolving relative specifiers on disk. Bare specifiers
// (packages) are left for the linker to resolve.
package deps

import (
	"regexp"
	"sort"
	"strings"
)

var scriptPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?m)^\s*import\s+(?:[\w*{}\s,$]+?\s+from\s+)?['"]([^'"\n]+)['"]`),
	regexp.MustCompile(`(?m)^\s*export\s+(?:\*(?:\s+as\s+[\w$]+)?|\{[^}]*\})\s+from\s+['"]([^'"\n]+)['"]`),
	regexp.MustCompile(`\brequire\(\s*['"]([^'"\n]+)['"]\s*\)`),
	regexp.MustCompile(`\bimport\(\s*['"]([^'"\n]+)['"]\s*\)`),
}

var (
	styleImport = regexp.MustCompile(`@(?:import|use|forward)\s+([^;]+);`)
	quoted      = regexp.MustCompile(`['"]([^'"]+)['"]`)
	styleURL    = regexp.MustCompile(`url\(\s*['"]?([^'")]+?)['"]?\s*\)`)
)

type located struct {
	pos  int
	spec string
}

// ScanScript returns the module specifiers imported by JavaScript source in
// order of appearance, without duplicates.
func ScanScript(src []byte) []string {
	var found []located
	for _, re := range scriptPatterns {
		for _, m := range re.FindAllSubmatchIndex(src, -1) {
			found = append(found, located{pos: m[2], spec: string(src[m[2]:m[3]])})
		}
	}
	sort.SliceStable(found, func(i, j int) bool { return found[i].pos < found[j].pos })
	return dedupe(found)
}

// ScanStyle returns the stylesheets imported by SCSS, Sass or CSS source and
// the url() references it contains, each in order of appearance.
func ScanStyle(src []byte) (imports, urls []string) {
	var imp []located
	for _, m := range styleImport.FindAllSubmatchIndex(src, -1) {
		clause := src[m[2]:m[3]]
		if strings.HasPrefix(strings.TrimSpace(string(clause)), "url(") {
			continue
		}
		for _, q := range quoted.FindAllSubmatch(clause, -1) {
			imp = append(imp, located{pos: m[2], spec: string(q[1])})
		}
	}
	var refs []located
	for _, m := range styleURL.FindAllSubmatchIndex(src, -1) {
		refs = append(refs, located{pos: m[2], spec: strings.TrimSpace(string(src[m[2]:m[3]]))})
	}
	return dedupe(imp), dedupe(refs)
}

func dedupe(in []located) []string {
	seen := make(map[string]bool, len(in))
	out := make([]string, 0, len(in))
	for _, l := range in {
		if l.spec == "" || seen[l.spec] {
			continue
		}
		seen[l.spec] = true
		out = append(out, l.spec)
	}
	return out
}

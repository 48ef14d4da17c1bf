// Package htmlrefs checks the asset references of rendered templates
// against the artifacts a pass planned. Templates are copied verbatim, so a
// stale script or stylesheet URL is only caught here.
package htmlrefs

import (
	"bytes"
	"fmt"
	"io"
	"net/url"
	"path"
	"strings"

	"golang.org/x/net/html"

	ferrors "git.home.luguber.info/inful/assetbuilder/internal/foundation/errors"
)

// Ref is an asset reference found in a template.
type Ref struct {
	URL       string
	Tag       string
	Attribute string
}

// Extract returns the asset references in an HTML document: script and
// image sources and link hrefs. Anchors are navigation and are skipped.
func Extract(r io.Reader) ([]Ref, error) {
	doc, err := html.Parse(r)
	if err != nil {
		return nil, ferrors.WrapError(err, ferrors.CategoryValidation, "failed to parse HTML").WithSeverity(ferrors.SeverityError).Build()
	}
	var refs []Ref
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode {
			if attr := assetAttr(n.Data); attr != "" {
				if v := getAttr(n, attr); v != "" {
					refs = append(refs, Ref{URL: v, Tag: n.Data, Attribute: attr})
				}
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(doc)
	return refs, nil
}

func assetAttr(tag string) string {
	switch tag {
	case "script", "img", "source", "video", "audio":
		return "src"
	case "link":
		return "href"
	}
	return ""
}

func getAttr(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if a.Key == key {
			return strings.TrimSpace(a.Val)
		}
	}
	return ""
}

// Resolve maps a reference in the template at templateRel to an output
// relative path. External and data references report false.
func Resolve(templateRel, ref string) (string, bool) {
	u, err := url.Parse(ref)
	if err != nil || u.Scheme != "" || u.Host != "" || u.Path == "" {
		return "", false
	}
	p := u.Path
	if strings.HasPrefix(p, "/") {
		return strings.TrimPrefix(path.Clean(p), "/"), true
	}
	resolved := path.Clean(path.Join(path.Dir(templateRel), p))
	if resolved == ".." || strings.HasPrefix(resolved, "../") {
		return "", false
	}
	return resolved, true
}

// Check returns one warning per internal reference in content that does not
// name a planned artifact.
func Check(templateRel string, content []byte, planned map[string]bool) ([]string, error) {
	refs, err := Extract(bytes.NewReader(content))
	if err != nil {
		return nil, err
	}
	var warnings []string
	for _, r := range refs {
		target, ok := Resolve(templateRel, r.URL)
		if !ok || planned[target] {
			continue
		}
		warnings = append(warnings, fmt.Sprintf("%s: <%s %s=%q> references %s which this build does not produce", templateRel, r.Tag, r.Attribute, r.URL, target))
	}
	return warnings, nil
}

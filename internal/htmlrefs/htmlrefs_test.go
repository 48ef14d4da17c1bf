package htmlrefs

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const page = `<!doctype html>
<html><head>
<link rel="stylesheet" href="resources/css/main.css">
<link rel="icon" href="/resources/img/favicon.ico">
<link rel="preconnect" href="https://fonts.example">
</head><body>
<a href="about.html">About</a>
<img src="resources/img/logo.png?v=3" alt="logo">
<img src="data:image/gif;base64,R0lGOD">
<script src="resources/js/vendor.js"></script>
<script src="resources/js/main.js"></script>
<script src="resources/js/old.js"></script>
</body></html>`

func TestExtract(t *testing.T) {
	refs, err := Extract(strings.NewReader(page))
	require.NoError(t, err)
	var urls []string
	for _, r := range refs {
		urls = append(urls, r.URL)
	}
	assert.Equal(t, []string{
		"resources/css/main.css",
		"/resources/img/favicon.ico",
		"https://fonts.example",
		"resources/img/logo.png?v=3",
		"data:image/gif;base64,R0lGOD",
		"resources/js/vendor.js",
		"resources/js/main.js",
		"resources/js/old.js",
	}, urls)
}

func TestResolve(t *testing.T) {
	p, ok := Resolve("index.html", "resources/js/main.js")
	require.True(t, ok)
	assert.Equal(t, "resources/js/main.js", p)
	p, ok = Resolve("index.html", "/resources/img/a.png?x#y")
	require.True(t, ok)
	assert.Equal(t, "resources/img/a.png", p)
	_, ok = Resolve("index.html", "https://cdn.example/x.js")
	assert.False(t, ok)
	_, ok = Resolve("index.html", "//cdn.example/x.js")
	assert.False(t, ok)
	_, ok = Resolve("index.html", "../outside.js")
	assert.False(t, ok)
	_, ok = Resolve("index.html", "#top")
	assert.False(t, ok)
}

func TestCheck(t *testing.T) {
	planned := map[string]bool{
		"resources/css/main.css":    true,
		"resources/img/favicon.ico": true,
		"resources/img/logo.png":    true,
		"resources/js/main.js":      true,
	}
	warnings, err := Check("index.html", []byte(page), planned)
	require.NoError(t, err)
	require.Len(t, warnings, 2)
	assert.Contains(t, warnings[0], "resources/js/vendor.js")
	assert.Contains(t, warnings[1], "resources/js/old.js")
}

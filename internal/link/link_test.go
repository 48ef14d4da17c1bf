package link

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"git.home.luguber.info/inful/assetbuilder/internal/config"
)

func TestConcatLinker(t *testing.T) {
	l := ConcatLinker{}
	out, err := l.Link(context.Background(), Unit{Name: "main", Modules: []Module{{Path: "a.js", Code: []byte("var a;")}}})
	require.NoError(t, err)
	assert.Equal(t, "var a;", string(out), "a single module is returned as is")

	out, err = l.Link(context.Background(), Unit{Name: "main", Modules: []Module{
		{Path: "dep.js", Code: []byte("var dep;")},
		{Path: "main.js", Code: []byte("var main;")},
	}})
	require.NoError(t, err)
	assert.Equal(t, "var dep;\nvar main;", string(out))

	_, err = l.Link(context.Background(), Unit{Name: "empty"})
	require.Error(t, err)
}

func TestNewSelectsLinker(t *testing.T) {
	l, err := New(config.LinkConfig{Linker: config.LinkerConcat}, config.ModeProduction)
	require.NoError(t, err)
	assert.IsType(t, ConcatLinker{}, l)

	l, err = New(config.LinkConfig{Linker: config.LinkerEsbuild, Target: "es2015", Format: "iife"}, config.ModeDevelopment)
	require.NoError(t, err)
	assert.IsType(t, &EsbuildLinker{}, l)

	_, err = New(config.LinkConfig{Linker: config.LinkerEsbuild, Target: "es2015", Format: "amd"}, config.ModeDevelopment)
	require.Error(t, err)
	_, err = New(config.LinkConfig{Linker: "rollup"}, config.ModeDevelopment)
	require.Error(t, err)
}

func writeSources(t *testing.T) (string, Unit) {
	t.Helper()
	dir := t.TempDir()
	files := map[string]string{
		"main.js":   "import { greet } from './util';\nimport '../scss/main.scss';\ngreet('DISK-MAIN');\n",
		"util.js":   "export function greet(n) { console.log('DISK-UTIL', n); }\n",
		"main.scss": ".a{}",
	}
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "js"), 0o755))
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "scss"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "js", "main.js"), []byte(files["main.js"]), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "js", "util.js"), []byte(files["util.js"]), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "scss", "main.scss"), []byte(files["main.scss"]), 0o644))

	entry := filepath.Join(dir, "js", "main.js")
	return dir, Unit{
		Name:      "main",
		EntryPath: entry,
		Modules: []Module{
			{Path: filepath.Join(dir, "js", "util.js"), Code: []byte("export function greet(n) { console.log('MEMORY-UTIL', n); }\n")},
			{Path: entry, Code: []byte("import { greet } from './util';\nimport '../scss/main.scss';\ngreet('MEMORY-MAIN');\n")},
		},
	}
}

func TestEsbuildLinkerBundlesTransformedModules(t *testing.T) {
	_, unit := writeSources(t)
	l, err := NewEsbuildLinker("es2015", "iife", config.ModeDevelopment)
	require.NoError(t, err)

	out, err := l.Link(context.Background(), unit)
	require.NoError(t, err)
	s := string(out)
	assert.Contains(t, s, "MEMORY-UTIL")
	assert.Contains(t, s, "MEMORY-MAIN")
	assert.NotContains(t, s, "DISK-")
	assert.NotContains(t, s, ".a{}", "style imports are not inlined into scripts")
	assert.Less(t, strings.Index(s, "MEMORY-UTIL"), strings.Index(s, "MEMORY-MAIN"))
	assert.NotContains(t, s, "import ")
}

func TestEsbuildLinkerMinifiesInProduction(t *testing.T) {
	_, unit := writeSources(t)
	dev, err := NewEsbuildLinker("es2015", "iife", config.ModeDevelopment)
	require.NoError(t, err)
	prod, err := NewEsbuildLinker("es2015", "iife", config.ModeProduction)
	require.NoError(t, err)

	devOut, err := dev.Link(context.Background(), unit)
	require.NoError(t, err)
	prodOut, err := prod.Link(context.Background(), unit)
	require.NoError(t, err)
	assert.Less(t, len(prodOut), len(devOut))
	assert.Contains(t, string(prodOut), "MEMORY-MAIN")
}

func TestEsbuildLinkerReportsUnresolvedImports(t *testing.T) {
	dir := t.TempDir()
	entry := filepath.Join(dir, "main.js")
	require.NoError(t, os.WriteFile(entry, []byte("import './gone';\n"), 0o644))
	l, err := NewEsbuildLinker("es2015", "iife", config.ModeDevelopment)
	require.NoError(t, err)

	_, err = l.Link(context.Background(), Unit{Name: "main", EntryPath: entry, Modules: []Module{{Path: entry, Code: []byte("import './gone';\n")}}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "bundle main")
}

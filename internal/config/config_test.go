package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	ferrors "git.home.luguber.info/inful/assetbuilder/internal/foundation/errors"
)

func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range []string{EnvMode, EnvNodeEnv, EnvOutput, EnvPort} {
		t.Setenv(k, "")
	}
}

const minimalYAML = `
entries:
  - {name: main, source: ./src/main.js}
rules:
  - test: '\.js$'
    use: [esbuild]
`

func TestParseAppliesDefaults(t *testing.T) {
	clearEnv(t)
	dir := t.TempDir()

	cfg, err := Parse([]byte(minimalYAML), dir)
	require.NoError(t, err)

	assert.Equal(t, ModeProduction, cfg.Mode)
	assert.Equal(t, filepath.Join(dir, "dist"), cfg.Output)
	assert.Equal(t, filepath.Join(dir, "src", "main.js"), cfg.Entries[0].Source)
	assert.Equal(t, "esbuild", cfg.Rules[0].Use[0].ID)
	assert.Equal(t, DefaultPort, cfg.Server.Port)
	assert.True(t, cfg.Server.Compress)
	assert.True(t, cfg.Server.LiveReload)
	assert.Equal(t, 300*time.Millisecond, cfg.Server.Debounce)
	assert.True(t, cfg.Server.Stats.Assets)
	assert.Equal(t, LinkerEsbuild, cfg.Link.Linker)
	assert.Equal(t, "iife", cfg.Link.Format)
	assert.Equal(t, dir, cfg.BaseDir)
}

func TestParseExplicitZeroValuesWin(t *testing.T) {
	clearEnv(t)
	data := minimalYAML + `
server:
  compress: false
  live_reload: false
  debounce: 50ms
  stats: {assets: false, warnings: true}
`
	cfg, err := Parse([]byte(data), t.TempDir())
	require.NoError(t, err)
	assert.False(t, cfg.Server.Compress)
	assert.False(t, cfg.Server.LiveReload)
	assert.Equal(t, 50*time.Millisecond, cfg.Server.Debounce)
	assert.False(t, cfg.Server.Stats.Assets)
	assert.True(t, cfg.Server.Stats.Warnings)
}

func TestParseStepOptions(t *testing.T) {
	clearEnv(t)
	data := `
entries:
  - {name: main, source: ./src/main.js}
rules:
  - test: '\.scss$'
    include: [./src/scss]
    exclude: [node_modules]
    use:
      - sass
      - {id: css, options: {publicPath: ../img/}}
`
	cfg, err := Parse([]byte(data), t.TempDir())
	require.NoError(t, err)
	require.Len(t, cfg.Rules[0].Use, 2)
	assert.Equal(t, "sass", cfg.Rules[0].Use[0].ID)
	assert.Nil(t, cfg.Rules[0].Use[0].Options)
	assert.Equal(t, "css", cfg.Rules[0].Use[1].ID)
	assert.Equal(t, "../img/", cfg.Rules[0].Use[1].Options["publicPath"])
}

func TestParseRejectsUnknownFields(t *testing.T) {
	clearEnv(t)
	_, err := Parse([]byte(minimalYAML+"\nbogus: true\n"), t.TempDir())
	require.Error(t, err)
	assert.True(t, ferrors.HasCategory(err, ferrors.CategoryConfig))
}

func TestParseModeAliases(t *testing.T) {
	clearEnv(t)
	cfg, err := Parse([]byte(minimalYAML+"\nmode: dev\n"), t.TempDir())
	require.NoError(t, err)
	assert.Equal(t, ModeDevelopment, cfg.Mode)
	assert.False(t, cfg.Mode.IsProduction())

	_, err = Parse([]byte(minimalYAML+"\nmode: staging\n"), t.TempDir())
	require.Error(t, err)
	assert.True(t, ferrors.HasCategory(err, ferrors.CategoryConfig))
}

func TestEnvOverrides(t *testing.T) {
	clearEnv(t)
	t.Setenv(EnvNodeEnv, "development")
	t.Setenv(EnvPort, "4000")
	t.Setenv(EnvOutput, "/tmp/assets-out")

	cfg, err := Parse([]byte(minimalYAML), t.TempDir())
	require.NoError(t, err)
	assert.Equal(t, ModeDevelopment, cfg.Mode)
	assert.Equal(t, 4000, cfg.Server.Port)
	assert.Equal(t, filepath.Clean("/tmp/assets-out"), cfg.Output)

	t.Setenv(EnvMode, "production")
	cfg, err = Parse([]byte(minimalYAML), t.TempDir())
	require.NoError(t, err)
	assert.Equal(t, ModeProduction, cfg.Mode, "ASSETBUILDER_MODE takes precedence over NODE_ENV")
}

func TestValidationFailures(t *testing.T) {
	tests := []struct {
		name string
		yaml string
	}{
		{"no entries", "rules: []\n"},
		{"duplicate entry", "entries:\n  - {name: a, source: a.js}\n  - {name: a, source: b.js}\n"},
		{"slash in name", "entries:\n  - {name: a/b, source: a.js}\n"},
		{"missing source", "entries:\n  - {name: a}\n"},
		{"duplicate template basename", "templates: [a/index.html, b/index.html]\n"},
		{"test and glob", minimalYAML + "  - {test: x, glob: '*.x', use: [identity]}\n"},
		{"neither test nor glob", minimalYAML + "  - {use: [identity]}\n"},
		{"bad regex", minimalYAML + "  - {test: '(', use: [identity]}\n"},
		{"bad glob", minimalYAML + "  - {glob: '[', use: [identity]}\n"},
		{"empty use", minimalYAML + "  - {test: x, use: []}\n"},
		{"absolute exclusion", minimalYAML + "exclude_outputs: [/etc/passwd]\n"},
		{"escaping exclusion", minimalYAML + "exclude_outputs: [../x.js]\n"},
		{"bad format", minimalYAML + "link: {format: amd}\n"},
		{"bad port", minimalYAML + "server: {port: 70000}\n"},
		{"negative concurrency", minimalYAML + "build: {concurrency: -1}\n"},
		{"copy renames images", minimalYAML + "  - {test: '\\.png$', use: [{id: copy, options: {name: '[hash].[ext]'}}]}\n"},
		{"copy moves images", minimalYAML + "  - {test: '\\.png$', use: [{id: copy, options: {outputPath: ./assets}}]}\n"},
		{"copy changes public path", minimalYAML + "  - {test: '\\.png$', use: [{id: copy, options: {publicPath: /static/}}]}\n"},
		{"copy unknown option", minimalYAML + "  - {test: '\\.png$', use: [{id: copy, options: {emitFile: 'no'}}]}\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clearEnv(t)
			_, err := Parse([]byte(tt.yaml), t.TempDir())
			require.Error(t, err)
			assert.True(t, ferrors.HasCategory(err, ferrors.CategoryValidation), "got %v", err)
		})
	}
}

func TestCopyOptionsMatchingLayout(t *testing.T) {
	clearEnv(t)
	yml := minimalYAML + "  - {test: '\\.png$', use: [{id: copy, options: {name: '[name].[ext]', outputPath: resources/img/, publicPath: ../img}}]}\n"
	cfg, err := Parse([]byte(yml), t.TempDir())
	require.NoError(t, err)
	assert.Equal(t, "copy", cfg.Rules[1].Use[0].ID)
}

func TestLoadMissingFile(t *testing.T) {
	clearEnv(t)
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
	assert.True(t, ferrors.HasCategory(err, ferrors.CategoryConfig))
}

func TestLoadReadsDotEnvAndExpands(t *testing.T) {
	clearEnv(t)
	t.Setenv("ASSETBUILDER_TEST_ENTRY", "")
	require.NoError(t, os.Unsetenv("ASSETBUILDER_TEST_ENTRY"))
	t.Cleanup(func() { _ = os.Unsetenv("ASSETBUILDER_TEST_ENTRY") })

	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".env"), []byte("ASSETBUILDER_TEST_ENTRY=app.js\n"), 0o600))
	data := "entries:\n  - {name: app, source: ./src/${ASSETBUILDER_TEST_ENTRY}}\n"
	path := filepath.Join(dir, DefaultConfigFile)
	require.NoError(t, os.WriteFile(path, []byte(data), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "src", "app.js"), cfg.Entries[0].Source)
}

func TestInitRoundTrip(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), DefaultConfigFile)

	require.NoError(t, Init(path, false))
	require.Error(t, Init(path, false), "existing file requires --force")
	require.NoError(t, Init(path, true))

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Len(t, cfg.Entries, 2)
	assert.Equal(t, "main", cfg.Entries[0].Name)
	assert.Equal(t, "vendor", cfg.Entries[1].Name)
	require.Len(t, cfg.Rules, 3)
	assert.Equal(t, []string{"sass", "autoprefixer", "css", "extract"}, stepIDs(cfg.Rules[1]))
	assert.Equal(t, []string{DefaultVendorOutput}, cfg.ExcludeOutputs)
	assert.Equal(t, DefaultPort, cfg.Server.Port)
}

func stepIDs(r RuleConfig) []string {
	ids := make([]string, 0, len(r.Use))
	for _, s := range r.Use {
		ids = append(ids, s.ID)
	}
	return ids
}

func TestAddr(t *testing.T) {
	cfg := Default()
	assert.Equal(t, ":3000", cfg.Addr())
	cfg.Server.Host = "127.0.0.1"
	assert.Equal(t, "127.0.0.1:3000", cfg.Addr())
}

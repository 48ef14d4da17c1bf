package commands

import (
	"bytes"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/alecthomas/kong"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"git.home.luguber.info/inful/assetbuilder/internal/config"
	ferrors "git.home.luguber.info/inful/assetbuilder/internal/foundation/errors"
)

const projectYAML = `
entries:
  - {name: main, source: ./src/main.js}
link: {linker: concat}
rules:
  - {test: '\.js$', use: [identity]}
  - {test: '\.css$', use: [css, extract]}
  - {test: '\.png$', use: [copy]}
exclude_outputs: [resources/js/vendor.js]
`

func setupProject(t *testing.T, yml string) (*CLI, string) {
	t.Helper()
	for _, k := range []string{config.EnvMode, config.EnvNodeEnv, config.EnvOutput, config.EnvPort} {
		t.Setenv(k, "")
	}
	dir := t.TempDir()
	files := map[string]string{
		config.DefaultConfigFile: yml,
		"src/main.js":            "import './main.css';\nconsole.log('main');\n",
		"src/main.css":           "body{background:url(img/logo.png)}",
		"src/img/logo.png":       "PNG",
	}
	for rel, content := range files {
		p := filepath.Join(dir, filepath.FromSlash(rel))
		require.NoError(t, os.MkdirAll(filepath.Dir(p), 0o755))
		require.NoError(t, os.WriteFile(p, []byte(content), 0o644))
	}
	return &CLI{Config: filepath.Join(dir, config.DefaultConfigFile)}, dir
}

func testGlobal() (*Global, *bytes.Buffer) {
	var out bytes.Buffer
	return &Global{Logger: slog.New(slog.NewTextHandler(io.Discard, nil)), Out: &out}, &out
}

func TestBuildCommand(t *testing.T) {
	cli, dir := setupProject(t, projectYAML)
	g, _ := testGlobal()

	require.NoError(t, (&BuildCmd{Output: filepath.Join(dir, "out")}).Run(g, cli))

	js, err := os.ReadFile(filepath.Join(dir, "out", "resources", "js", "main.js"))
	require.NoError(t, err)
	assert.Contains(t, string(js), "console.log('main');")

	css, err := os.ReadFile(filepath.Join(dir, "out", "resources", "css", "main.css"))
	require.NoError(t, err)
	assert.Contains(t, string(css), "../img/logo.png")
	assert.FileExists(t, filepath.Join(dir, "out", "resources", "img", "logo.png"))
	assert.NoDirExists(t, filepath.Join(dir, "dist"))
}

func TestBuildCommandExitCodes(t *testing.T) {
	adapter := ferrors.NewCLIErrorAdapter(false, slog.New(slog.NewTextHandler(io.Discard, nil)))
	g, _ := testGlobal()

	t.Run("missing config", func(t *testing.T) {
		err := (&BuildCmd{}).Run(g, &CLI{Config: filepath.Join(t.TempDir(), "nope.yaml")})
		require.Error(t, err)
		assert.Equal(t, 7, adapter.ExitCodeFor(err))
	})

	t.Run("unmatched stylesheet", func(t *testing.T) {
		cli, _ := setupProject(t, `
entries:
  - {name: main, source: ./src/main.js}
link: {linker: concat}
rules:
  - {test: '\.js$', use: [identity]}
`)
		err := (&BuildCmd{}).Run(g, cli)
		require.Error(t, err)
		assert.Equal(t, 11, adapter.ExitCodeFor(err))
	})

	t.Run("unknown step", func(t *testing.T) {
		cli, _ := setupProject(t, `
entries:
  - {name: main, source: ./src/main.js}
rules:
  - {test: '\.js$', use: [babel]}
`)
		err := (&BuildCmd{}).Run(g, cli)
		require.Error(t, err)
		assert.Equal(t, 7, adapter.ExitCodeFor(err))
	})
}

func TestInitCommand(t *testing.T) {
	path := filepath.Join(t.TempDir(), config.DefaultConfigFile)
	g, out := testGlobal()

	require.NoError(t, (&InitCmd{}).Run(g, &CLI{Config: path}))
	assert.Contains(t, out.String(), "initialized successfully")
	assert.FileExists(t, path)

	assert.Error(t, (&InitCmd{}).Run(g, &CLI{Config: path}))
	assert.NoError(t, (&InitCmd{Force: true}).Run(g, &CLI{Config: path}))
}

func TestInspectCommand(t *testing.T) {
	cli, dir := setupProject(t, projectYAML)
	g, out := testGlobal()

	cmd := &InspectCmd{Files: []string{
		filepath.Join(dir, "src", "main.css"),
		filepath.Join(dir, "src", "notes.txt"),
	}}
	require.NoError(t, cmd.Run(g, cli))

	text := out.String()
	assert.Contains(t, text, "resources/js/main.js")
	assert.Contains(t, text, "resources/css/main.css")
	assert.Contains(t, text, "[css -> extract]")
	assert.Contains(t, text, "resources/js/vendor.js")
	assert.Contains(t, text, "<- selected")
	assert.Contains(t, text, "chain:")
	assert.Contains(t, text, "no rule matches: ignored")
}

func TestParseFlags(t *testing.T) {
	var cli CLI
	parser, err := kong.New(&cli, kong.Vars{"version": "test"}, kong.Exit(func(int) {}))
	require.NoError(t, err)

	_, err = parser.Parse([]string{"-c", "site.yaml", "serve", "--port", "4000", "--no-compress"})
	require.NoError(t, err)
	assert.Equal(t, 4000, cli.Serve.Port)
	assert.True(t, cli.Serve.NoCompress)
	assert.Equal(t, "site.yaml", filepath.Base(cli.Config))

	_, err = parser.Parse([]string{"inspect", "a.js", "b.scss"})
	require.NoError(t, err)
	assert.Len(t, cli.Inspect.Files, 2)
}

func TestServeOverrides(t *testing.T) {
	sc := config.Default().Server
	(&ServeCmd{Port: 8080, Host: "0.0.0.0", NoCompress: true, NoLiveReload: true, Metrics: true}).apply(&sc)
	assert.Equal(t, 8080, sc.Port)
	assert.Equal(t, "0.0.0.0", sc.Host)
	assert.False(t, sc.Compress)
	assert.False(t, sc.LiveReload)
	assert.True(t, sc.Metrics)

	sc = config.Default().Server
	(&ServeCmd{}).apply(&sc)
	assert.Equal(t, config.DefaultPort, sc.Port)
	assert.True(t, sc.Compress)
}

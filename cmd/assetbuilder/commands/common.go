package commands

import (
	"io"
	"log/slog"
	"os"

	"github.com/alecthomas/kong"

	"git.home.luguber.info/inful/assetbuilder/internal/config"
)

// Global is passed to every command's Run.
type Global struct {
	Logger *slog.Logger
	Out    io.Writer
}

func (g *Global) logger() *slog.Logger {
	if g == nil || g.Logger == nil {
		return slog.Default()
	}
	return g.Logger
}

func (g *Global) out() io.Writer {
	if g == nil || g.Out == nil {
		return os.Stdout
	}
	return g.Out
}

// CLI definition & global flags.
type CLI struct {
	Config  string           `short:"c" help:"Configuration file path" default:"assetbuilder.yaml" type:"path"`
	Verbose bool             `short:"v" help:"Enable verbose logging"`
	Version kong.VersionFlag `name:"version" help:"Show version and exit"`

	Build   BuildCmd   `cmd:"" help:"Run one build pass and exit"`
	Serve   ServeCmd   `cmd:"" help:"Serve the output and rebuild on source changes"`
	Init    InitCmd    `cmd:"" help:"Write an example configuration file"`
	Inspect InspectCmd `cmd:"" help:"Show entries, rules and planned outputs; explain which rule handles each FILE"`
}

// AfterApply runs after flag parsing; setup logging once.
// nolint:unparam // AfterApply currently never returns an error.
func (c *CLI) AfterApply() error {
	level := slog.LevelInfo
	if c.Verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)
	return nil
}

// loadConfig reads the configuration named by --config.
func loadConfig(root *CLI) (*config.Config, error) {
	path := config.DefaultConfigFile
	if root != nil && root.Config != "" {
		path = root.Config
	}
	return config.Load(path)
}

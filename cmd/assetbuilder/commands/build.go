package commands

import (
	"context"
	"os/signal"
	"syscall"

	"git.home.luguber.info/inful/assetbuilder/internal/pipeline"
)

// BuildCmd implements the 'build' command.
type BuildCmd struct {
	Output string `short:"o" help:"Output directory (overrides the configuration)" type:"path"`
}

func (b *BuildCmd) Run(g *Global, root *CLI) error {
	cfg, err := loadConfig(root)
	if err != nil {
		return err
	}
	if b.Output != "" {
		cfg.Output = cfg.Abs(b.Output)
	}
	log := g.logger()
	log.Info("Build mode", "mode", string(cfg.Mode), "output", cfg.Output)

	orch, err := pipeline.New(cfg, pipeline.WithLogger(log))
	if err != nil {
		return err
	}
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	report, err := orch.Run(ctx)
	orch.Root().Wait()
	stats := cfg.Server.Stats
	stats.Warnings = true
	report.LogStats(log, stats)
	return err
}

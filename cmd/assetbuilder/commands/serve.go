package commands

import (
	"context"
	"os/signal"
	"syscall"

	"git.home.luguber.info/inful/assetbuilder/internal/config"
	"git.home.luguber.info/inful/assetbuilder/internal/devserver"
	"git.home.luguber.info/inful/assetbuilder/internal/metrics"
	"git.home.luguber.info/inful/assetbuilder/internal/pipeline"
)

// ServeCmd implements the 'serve' command.
type ServeCmd struct {
	Port         int    `short:"p" help:"Port to listen on (overrides the configuration)"`
	Host         string `help:"Interface to bind (overrides the configuration)"`
	NoCompress   bool   `name:"no-compress" help:"Disable gzip compression"`
	NoLiveReload bool   `name:"no-live-reload" help:"Disable browser live reload"`
	Metrics      bool   `help:"Expose Prometheus metrics on /metrics"`
}

func (s *ServeCmd) Run(g *Global, root *CLI) error {
	cfg, err := loadConfig(root)
	if err != nil {
		return err
	}
	s.apply(&cfg.Server)
	log := g.logger()
	log.Info("Build mode", "mode", string(cfg.Mode), "output", cfg.Output)

	reg := metrics.NewRegistry()
	rec := metrics.NewPrometheusRecorder(reg)
	orch, err := pipeline.New(cfg, pipeline.WithLogger(log), pipeline.WithRecorder(rec))
	if err != nil {
		return err
	}
	srv := devserver.New(cfg, orch,
		devserver.WithLogger(log),
		devserver.WithRecorder(rec),
		devserver.WithMetricsRegistry(reg),
	)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()
	return srv.Run(ctx)
}

// apply folds the command line overrides into the server settings.
func (s *ServeCmd) apply(sc *config.ServerConfig) {
	if s.Port != 0 {
		sc.Port = s.Port
	}
	if s.Host != "" {
		sc.Host = s.Host
	}
	if s.NoCompress {
		sc.Compress = false
	}
	if s.NoLiveReload {
		sc.LiveReload = false
	}
	if s.Metrics {
		sc.Metrics = true
	}
}

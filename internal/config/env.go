package config

import (
	"errors"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"

	"github.com/joho/godotenv"

	ferrors "git.home.luguber.info/inful/assetbuilder/internal/foundation/errors"
)

// Environment variables consulted after the file is decoded.
const (
	EnvMode    = "ASSETBUILDER_MODE"
	EnvNodeEnv = "NODE_ENV"
	EnvOutput  = "ASSETBUILDER_OUTPUT"
	EnvPort    = "ASSETBUILDER_PORT"
)

// loadEnvFile loads .env then .env.local from dir. Existing process
// environment variables are never overwritten; missing files are fine.
func loadEnvFile(dir string) error {
	for _, name := range []string{".env", ".env.local"} {
		p := filepath.Join(dir, name)
		if _, err := os.Stat(p); errors.Is(err, fs.ErrNotExist) {
			continue
		}
		if err := godotenv.Load(p); err != nil {
			return ferrors.WrapError(err, ferrors.CategoryConfig, "load env file").Fatal().WithContext("path", p).Build()
		}
		slog.Debug("Loaded environment file", "path", p)
	}
	return nil
}

// applyEnvOverrides lets the environment win over the file. ASSETBUILDER_MODE
// takes precedence over NODE_ENV. Unparsable values are logged and ignored.
func applyEnvOverrides(cfg *Config) {
	for _, key := range []string{EnvMode, EnvNodeEnv} {
		raw := os.Getenv(key)
		if raw == "" {
			continue
		}
		m, err := NormalizeMode(raw)
		if err != nil {
			slog.Warn("Ignoring invalid build mode from environment", "variable", key, "value", raw)
			continue
		}
		cfg.Mode = m
		break
	}
	if out := os.Getenv(EnvOutput); out != "" {
		cfg.Output = out
	}
	if raw := os.Getenv(EnvPort); raw != "" {
		if port, err := strconv.Atoi(raw); err == nil {
			cfg.Server.Port = port
		} else {
			slog.Warn("Ignoring invalid port from environment", "variable", EnvPort, "value", raw)
		}
	}
}

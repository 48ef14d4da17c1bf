package config

import (
	"path/filepath"
	"strings"

	ferrors "git.home.luguber.info/inful/assetbuilder/internal/foundation/errors"
)

// normalize canonicalizes enum spellings and resolves relative filesystem
// paths against baseDir. Output exclusion patterns and static `to` targets
// stay relative to the output root.
func normalize(cfg *Config, baseDir string) error {
	if baseDir == "" {
		baseDir = "."
	}
	abs, err := filepath.Abs(baseDir)
	if err != nil {
		return ferrors.WrapError(err, ferrors.CategoryConfig, "resolve base directory").Fatal().Build()
	}
	cfg.BaseDir = abs

	mode, err := NormalizeMode(string(cfg.Mode))
	if err != nil {
		return ferrors.ConfigError("invalid mode").WithCause(err).WithContext("value", string(cfg.Mode)).Build()
	}
	cfg.Mode = mode

	linker, err := NormalizeLinker(string(cfg.Link.Linker))
	if err != nil {
		return ferrors.ConfigError("invalid linker").WithCause(err).WithContext("value", string(cfg.Link.Linker)).Build()
	}
	cfg.Link.Linker = linker
	cfg.Link.Target = strings.ToLower(strings.TrimSpace(cfg.Link.Target))
	cfg.Link.Format = strings.ToLower(strings.TrimSpace(cfg.Link.Format))

	if strings.TrimSpace(cfg.Output) == "" {
		cfg.Output = DefaultOutput
	}
	cfg.Output = cfg.Abs(cfg.Output)

	for i := range cfg.Entries {
		cfg.Entries[i].Name = strings.TrimSpace(cfg.Entries[i].Name)
		if cfg.Entries[i].Source != "" {
			cfg.Entries[i].Source = cfg.Abs(cfg.Entries[i].Source)
		}
	}
	for i, t := range cfg.Templates {
		if t != "" {
			cfg.Templates[i] = cfg.Abs(t)
		}
	}
	for i := range cfg.Rules {
		for j := range cfg.Rules[i].Use {
			cfg.Rules[i].Use[j].ID = strings.ToLower(strings.TrimSpace(cfg.Rules[i].Use[j].ID))
		}
	}
	for i := range cfg.Static {
		if cfg.Static[i].From != "" {
			cfg.Static[i].From = cfg.Abs(cfg.Static[i].From)
		}
		cfg.Static[i].To = filepath.ToSlash(filepath.Clean(cfg.Static[i].To))
	}
	for i, p := range cfg.ExcludeOutputs {
		cfg.ExcludeOutputs[i] = filepath.ToSlash(strings.TrimSpace(p))
	}
	return nil
}

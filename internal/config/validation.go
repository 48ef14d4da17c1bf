package config

import (
	"errors"
	"fmt"
	"path"
	"regexp"
	"strings"

	"github.com/bmatcuk/doublestar/v4"

	ferrors "git.home.luguber.info/inful/assetbuilder/internal/foundation/errors"
)

var validFormats = map[string]bool{"iife": true, "esm": true, "cjs": true}

// Validate checks the structural soundness of a normalized configuration.
// Step identifiers are checked against the transform catalog when the
// registry is built, since this package does not know the catalog.
func Validate(cfg *Config) error {
	if err := newConfigurationValidator(cfg).validate(); err != nil {
		return ferrors.ValidationError("invalid configuration").WithCause(err).Build()
	}
	return nil
}

type configurationValidator struct {
	config *Config
}

func newConfigurationValidator(config *Config) *configurationValidator {
	return &configurationValidator{config: config}
}

func (cv *configurationValidator) validate() error {
	if err := cv.validateEntries(); err != nil {
		return err
	}
	if err := cv.validateRules(); err != nil {
		return err
	}
	if err := cv.validateOutputs(); err != nil {
		return err
	}
	if err := cv.validateLink(); err != nil {
		return err
	}
	return cv.validateServer()
}

// validateEntries checks entry and template names. Template names are the
// basenames of their sources and share one namespace with script entries.
func (cv *configurationValidator) validateEntries() error {
	if len(cv.config.Entries) == 0 && len(cv.config.Templates) == 0 {
		return errors.New("at least one entry or template must be configured")
	}
	names := make(map[string]bool)
	for _, e := range cv.config.Entries {
		if e.Name == "" {
			return errors.New("entry name cannot be empty")
		}
		if strings.ContainsAny(e.Name, `/\`) {
			return fmt.Errorf("entry name %q must not contain path separators", e.Name)
		}
		if e.Source == "" {
			return fmt.Errorf("entry %q has no source", e.Name)
		}
		if names[e.Name] {
			return fmt.Errorf("duplicate entry name: %s", e.Name)
		}
		names[e.Name] = true
	}
	templates := make(map[string]bool)
	for _, t := range cv.config.Templates {
		if t == "" {
			return errors.New("template path cannot be empty")
		}
		base := path.Base(strings.ReplaceAll(t, `\`, "/"))
		if templates[base] {
			return fmt.Errorf("duplicate template name: %s", base)
		}
		templates[base] = true
	}
	return nil
}

func (cv *configurationValidator) validateRules() error {
	for i, r := range cv.config.Rules {
		hasTest := strings.TrimSpace(r.Test) != ""
		hasGlob := strings.TrimSpace(r.Glob) != ""
		switch {
		case hasTest && hasGlob:
			return fmt.Errorf("rule %d: test and glob are mutually exclusive", i)
		case !hasTest && !hasGlob:
			return fmt.Errorf("rule %d: one of test or glob is required", i)
		case hasTest:
			if _, err := regexp.Compile(r.Test); err != nil {
				return fmt.Errorf("rule %d: invalid test pattern: %w", i, err)
			}
		case hasGlob:
			if !doublestar.ValidatePattern(r.Glob) {
				return fmt.Errorf("rule %d: invalid glob pattern %q", i, r.Glob)
			}
		}
		if len(r.Use) == 0 {
			return fmt.Errorf("rule %d: use must list at least one step", i)
		}
		for j, s := range r.Use {
			if s.ID == "" {
				return fmt.Errorf("rule %d step %d: id cannot be empty", i, j)
			}
			if s.ID == "copy" {
				if err := validateCopyOptions(s.Options); err != nil {
					return fmt.Errorf("rule %d step %d: %w", i, j, err)
				}
			}
		}
		for _, scope := range append(append([]string{}, r.Include...), r.Exclude...) {
			if strings.TrimSpace(scope) == "" {
				return fmt.Errorf("rule %d: empty scope", i)
			}
		}
	}
	return nil
}

// validateOutputs requires exclusion and static targets to stay inside the
// output root.
func (cv *configurationValidator) validateOutputs() error {
	for _, p := range cv.config.ExcludeOutputs {
		if err := relativeOutputPath(p); err != nil {
			return fmt.Errorf("exclude_outputs: %w", err)
		}
	}
	for _, s := range cv.config.Static {
		if s.From == "" {
			return errors.New("static: from cannot be empty")
		}
		if s.To == "." {
			continue
		}
		if err := relativeOutputPath(s.To); err != nil {
			return fmt.Errorf("static: %w", err)
		}
	}
	return nil
}

// validateCopyOptions accepts the file-loader style options of the copy step
// only when they describe the fixed image layout; any other value would be
// silently ignored by the output planner.
func validateCopyOptions(opts map[string]any) error {
	for k, v := range opts {
		s, ok := v.(string)
		if !ok {
			return fmt.Errorf("copy: option %s must be a string", k)
		}
		switch k {
		case "name":
			if s != DefaultImageName {
				return fmt.Errorf("copy: name %q is not supported; images keep their file name (%s)", s, DefaultImageName)
			}
		case "outputPath":
			if path.Clean(strings.ReplaceAll(s, `\`, "/")) != DefaultImageOutput {
				return fmt.Errorf("copy: outputPath %q is not supported; images are written to %s", s, DefaultImageOutput)
			}
		case "publicPath":
			if strings.TrimSuffix(s, "/")+"/" != DefaultImagePublic {
				return fmt.Errorf("copy: publicPath %q is not supported; stylesheets reference images via %s", s, DefaultImagePublic)
			}
		default:
			return fmt.Errorf("copy: unknown option %q", k)
		}
	}
	return nil
}

func relativeOutputPath(p string) error {
	if p == "" {
		return errors.New("path cannot be empty")
	}
	if path.IsAbs(p) || strings.HasPrefix(p, `\`) || (len(p) > 1 && p[1] == ':') {
		return fmt.Errorf("path %q must be relative to the output root", p)
	}
	clean := path.Clean(p)
	if clean == ".." || strings.HasPrefix(clean, "../") {
		return fmt.Errorf("path %q escapes the output root", p)
	}
	return nil
}

func (cv *configurationValidator) validateLink() error {
	if !validFormats[cv.config.Link.Format] {
		return fmt.Errorf("link: unsupported format %q", cv.config.Link.Format)
	}
	if cv.config.Link.Target == "" {
		return errors.New("link: target cannot be empty")
	}
	return nil
}

func (cv *configurationValidator) validateServer() error {
	s := cv.config.Server
	if s.Port < 0 || s.Port > 65535 {
		return fmt.Errorf("server: port %d out of range", s.Port)
	}
	if s.Debounce < 0 {
		return errors.New("server: debounce cannot be negative")
	}
	if s.PollInterval < 0 {
		return errors.New("server: poll_interval cannot be negative")
	}
	if cv.config.Build.Concurrency < 0 {
		return errors.New("build: concurrency cannot be negative")
	}
	if cv.config.Build.CacheSize < 0 {
		return errors.New("build: cache_size cannot be negative")
	}
	return nil
}

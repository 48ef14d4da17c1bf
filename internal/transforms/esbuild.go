package transforms

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"unicode"

	"github.com/evanw/esbuild/pkg/api"
)

// DefaultBrowsers is the prefixing baseline used when the autoprefixer step
// has no browsers option.
var DefaultBrowsers = []string{"chrome58", "firefox57", "safari11", "edge16"}

var targets = map[string]api.Target{
	"esnext": api.ESNext,
	"es5":    api.ES5,
	"es6":    api.ES2015,
	"es2015": api.ES2015,
	"es2016": api.ES2016,
	"es2017": api.ES2017,
	"es2018": api.ES2018,
	"es2019": api.ES2019,
	"es2020": api.ES2020,
	"es2021": api.ES2021,
	"es2022": api.ES2022,
}

// ParseTarget maps a language level such as "es2015" to an esbuild target.
func ParseTarget(raw string) (api.Target, error) {
	if t, ok := targets[strings.ToLower(strings.TrimSpace(raw))]; ok {
		return t, nil
	}
	return api.DefaultTarget, fmt.Errorf("unsupported target %q", raw)
}

var engineNames = map[string]api.EngineName{
	"chrome":  api.EngineChrome,
	"edge":    api.EngineEdge,
	"firefox": api.EngineFirefox,
	"ie":      api.EngineIE,
	"ios":     api.EngineIOS,
	"node":    api.EngineNode,
	"opera":   api.EngineOpera,
	"safari":  api.EngineSafari,
}

// ParseEngines converts browser specs such as "chrome58" or "safari11.1"
// into esbuild engines.
func ParseEngines(specs []string) ([]api.Engine, error) {
	engines := make([]api.Engine, 0, len(specs))
	for _, spec := range specs {
		spec = strings.ToLower(strings.TrimSpace(spec))
		idx := strings.IndexFunc(spec, unicode.IsDigit)
		if idx <= 0 {
			return nil, fmt.Errorf("invalid browser %q: expected name followed by version", spec)
		}
		name, ok := engineNames[spec[:idx]]
		if !ok {
			return nil, fmt.Errorf("unknown browser %q", spec[:idx])
		}
		engines = append(engines, api.Engine{Name: name, Version: spec[idx:]})
	}
	return engines, nil
}

// MessagesError folds esbuild diagnostics into one error.
func MessagesError(msgs []api.Message) error {
	if len(msgs) == 0 {
		return nil
	}
	parts := make([]string, 0, len(msgs))
	for _, m := range msgs {
		if m.Location != nil {
			parts = append(parts, fmt.Sprintf("%s:%d:%d: %s", m.Location.File, m.Location.Line, m.Location.Column, m.Text))
			continue
		}
		parts = append(parts, m.Text)
	}
	return errors.New(strings.Join(parts, "; "))
}

// Esbuild lowers modern JavaScript to the configured target. Import and
// export statements are preserved so the linker can bundle the result.
// Options: target (default "es2015").
type Esbuild struct{}

func (Esbuild) Transform(_ context.Context, in []byte, path string, opts Options) ([]byte, error) {
	target, err := ParseTarget(opts.String("target", "es2015"))
	if err != nil {
		return nil, err
	}
	res := api.Transform(string(in), api.TransformOptions{
		Loader:     api.LoaderJS,
		Target:     target,
		Sourcefile: path,
		LogLevel:   api.LogLevelSilent,
	})
	if err := MessagesError(res.Errors); err != nil {
		return nil, err
	}
	return res.Code, nil
}

// Autoprefixer adds vendor prefixes to plain CSS for the configured
// browsers. Options: browsers (list, default DefaultBrowsers).
type Autoprefixer struct{}

func (Autoprefixer) Transform(_ context.Context, in []byte, path string, opts Options) ([]byte, error) {
	browsers := opts.Strings("browsers")
	if len(browsers) == 0 {
		browsers = DefaultBrowsers
	}
	engines, err := ParseEngines(browsers)
	if err != nil {
		return nil, err
	}
	res := api.Transform(string(in), api.TransformOptions{
		Loader:     api.LoaderCSS,
		Engines:    engines,
		Sourcefile: path,
		LogLevel:   api.LogLevelSilent,
	})
	if err := MessagesError(res.Errors); err != nil {
		return nil, err
	}
	return res.Code, nil
}

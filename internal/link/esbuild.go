package link

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/evanw/esbuild/pkg/api"

	"git.home.luguber.info/inful/assetbuilder/internal/asset"
	"git.home.luguber.info/inful/assetbuilder/internal/config"
	"git.home.luguber.info/inful/assetbuilder/internal/deps"
	"git.home.luguber.info/inful/assetbuilder/internal/transforms"
)

const (
	namespaceModule = "assetbuilder"
	namespaceIgnore = "assetbuilder-ignore"
)

var formats = map[string]api.Format{
	"iife": api.FormatIIFE,
	"esm":  api.FormatESModule,
	"cjs":  api.FormatCommonJS,
}

// EsbuildLinker bundles a unit with esbuild. Transformed modules are served
// from memory; package imports resolve from node_modules on disk; style and
// image imports are dropped since those files are emitted separately.
type EsbuildLinker struct {
	target api.Target
	format api.Format
	mode   config.Mode
}

// NewEsbuildLinker validates the target and format.
func NewEsbuildLinker(target, format string, mode config.Mode) (*EsbuildLinker, error) {
	t, err := transforms.ParseTarget(target)
	if err != nil {
		return nil, err
	}
	f, ok := formats[strings.ToLower(format)]
	if !ok {
		return nil, fmt.Errorf("unsupported format %q", format)
	}
	return &EsbuildLinker{target: t, format: f, mode: mode}, nil
}

// Link implements Linker.
func (l *EsbuildLinker) Link(_ context.Context, u Unit) ([]byte, error) {
	if u.EntryPath == "" {
		return nil, fmt.Errorf("entry %s has no source path", u.Name)
	}
	sources := make(map[string]string, len(u.Modules))
	for _, m := range u.Modules {
		sources[filepath.Clean(m.Path)] = string(m.Code)
	}

	minify := l.mode.IsProduction()
	res := api.Build(api.BuildOptions{
		EntryPoints:       []string{u.EntryPath},
		AbsWorkingDir:     filepath.Dir(u.EntryPath),
		Outfile:           u.Name + ".js",
		Bundle:            true,
		Write:             false,
		Format:            l.format,
		Target:            l.target,
		MinifyWhitespace:  minify,
		MinifyIdentifiers: minify,
		MinifySyntax:      minify,
		Define:            map[string]string{"process.env.NODE_ENV": fmt.Sprintf("%q", string(l.mode))},
		LogLevel:          api.LogLevelSilent,
		Plugins:           []api.Plugin{memoryPlugin(sources)},
	})
	if err := transforms.MessagesError(res.Errors); err != nil {
		return nil, fmt.Errorf("bundle %s: %w", u.Name, err)
	}
	for _, f := range res.OutputFiles {
		if strings.HasSuffix(f.Path, ".js") {
			return f.Contents, nil
		}
	}
	return nil, fmt.Errorf("bundle %s: esbuild produced no script output", u.Name)
}

func memoryPlugin(sources map[string]string) api.Plugin {
	return api.Plugin{
		Name: "assetbuilder-modules",
		Setup: func(build api.PluginBuild) {
			build.OnResolve(api.OnResolveOptions{Filter: `.*`}, func(args api.OnResolveArgs) (api.OnResolveResult, error) {
				var resolved string
				switch {
				case filepath.IsAbs(args.Path):
					resolved = filepath.Clean(args.Path)
				case deps.IsRelative(args.Path):
					p, ok := deps.ResolveScript(args.ResolveDir, args.Path)
					if !ok {
						return api.OnResolveResult{}, nil
					}
					resolved = p
				default:
					// Packages take esbuild's own node_modules resolution.
					return api.OnResolveResult{}, nil
				}
				if _, ok := sources[resolved]; ok {
					return api.OnResolveResult{Path: resolved, Namespace: namespaceModule}, nil
				}
				switch asset.CategoryOf(resolved) {
				case asset.CategoryStyle, asset.CategoryImage:
					return api.OnResolveResult{Path: resolved, Namespace: namespaceIgnore}, nil
				}
				return api.OnResolveResult{}, nil
			})
			build.OnLoad(api.OnLoadOptions{Filter: `.*`, Namespace: namespaceModule}, func(args api.OnLoadArgs) (api.OnLoadResult, error) {
				contents := sources[args.Path]
				return api.OnLoadResult{
					Contents:   &contents,
					Loader:     api.LoaderJS,
					ResolveDir: filepath.Dir(args.Path),
				}, nil
			})
			build.OnLoad(api.OnLoadOptions{Filter: `.*`, Namespace: namespaceIgnore}, func(api.OnLoadArgs) (api.OnLoadResult, error) {
				empty := ""
				return api.OnLoadResult{Contents: &empty, Loader: api.LoaderJS}, nil
			})
		},
	}
}

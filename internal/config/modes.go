package config

import "git.home.luguber.info/inful/assetbuilder/internal/foundation/normalization"

// Mode is the build mode captured once at load time.
type Mode string

const (
	ModeProduction  Mode = "production"
	ModeDevelopment Mode = "development"
)

var modeNormalizer = normalization.NewNormalizer(map[string]Mode{
	"production":  ModeProduction,
	"prod":        ModeProduction,
	"development": ModeDevelopment,
	"dev":         ModeDevelopment,
}, ModeProduction)

// NormalizeMode returns the canonical mode for raw, or an error for unknown values.
func NormalizeMode(raw string) (Mode, error) {
	return modeNormalizer.NormalizeWithError(raw)
}

// IsProduction reports whether output should be minified.
func (m Mode) IsProduction() bool { return m == ModeProduction }

// LinkerKind selects the script linker.
type LinkerKind string

const (
	// LinkerEsbuild bundles each script entry with esbuild.
	LinkerEsbuild LinkerKind = "esbuild"
	// LinkerConcat concatenates transformed modules in dependency order.
	LinkerConcat LinkerKind = "concat"
)

var linkerNormalizer = normalization.NewNormalizer(map[string]LinkerKind{
	"esbuild": LinkerEsbuild,
	"concat":  LinkerConcat,
}, LinkerEsbuild)

// NormalizeLinker returns the canonical linker kind for raw.
func NormalizeLinker(raw string) (LinkerKind, error) {
	return linkerNormalizer.NormalizeWithError(raw)
}

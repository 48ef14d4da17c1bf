package config

import "time"

// Defaults mirror the webpack setup this tool replaces: dist output, dev
// server on port 3000 with compression, and an asset list in the stats.
const (
	DefaultOutput       = "./dist"
	DefaultPort         = 3000
	DefaultDebounce     = 300 * time.Millisecond
	DefaultCacheSize    = 512
	DefaultLinkTarget   = "es2015"
	DefaultLinkFormat   = "iife"
	DefaultStylePublic  = "../../"
	DefaultImagePublic  = "../img/"
	DefaultImageName    = "[name].[ext]"
	DefaultImageOutput  = "resources/img"
	DefaultVendorOutput = "resources/js/vendor.js"
)

// Default returns a configuration holding every default value. Load decodes
// the file on top of it so omitted keys keep their defaults while explicit
// zero values (for example `compress: false`) win.
func Default() *Config {
	return &Config{
		Mode:   ModeProduction,
		Output: DefaultOutput,
		Link: LinkConfig{
			Linker: LinkerEsbuild,
			Target: DefaultLinkTarget,
			Format: DefaultLinkFormat,
		},
		Build: BuildConfig{
			CacheSize: DefaultCacheSize,
		},
		Server: ServerConfig{
			Port:       DefaultPort,
			Compress:   true,
			LiveReload: true,
			Debounce:   DefaultDebounce,
			Stats: StatsConfig{
				Assets: true,
			},
		},
	}
}

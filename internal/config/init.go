package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Example returns the starter configuration written by `assetbuilder init`.
// It reproduces the classic webpack layout: a main and a vendor script
// entry, an index.html template, Babel-style script lowering, a
// sass/autoprefixer/extract style chain and image copying.
func Example() *Config {
	cfg := Default()
	cfg.Output = DefaultOutput
	cfg.Entries = []EntryConfig{
		{Name: "main", Source: "./src/resources/js/main.js"},
		{Name: "vendor", Source: "./src/resources/js/_vendor.js"},
	}
	cfg.Templates = []string{"./src/index.html"}
	cfg.Rules = []RuleConfig{
		{
			Test:    `\.m?js$`,
			Exclude: []string{"node_modules", "bower_components"},
			Use:     []StepConfig{{ID: "esbuild", Options: map[string]any{"target": DefaultLinkTarget}}},
		},
		{
			Test:    `\.(scss|sass)$`,
			Include: []string{"./src/resources/scss"},
			Exclude: []string{"./node_modules"},
			Use: []StepConfig{
				{ID: "sass"},
				{ID: "autoprefixer"},
				{ID: "css", Options: map[string]any{"publicPath": DefaultImagePublic}},
				{ID: "extract", Options: map[string]any{"publicPath": DefaultStylePublic}},
			},
		},
		{
			Test:    `\.(png|svg|jpg|jpeg|gif)$`,
			Include: []string{"./src/resources/img"},
			Exclude: []string{"./node_modules"},
			Use: []StepConfig{{ID: "copy", Options: map[string]any{
				"name":       DefaultImageName,
				"outputPath": "./" + DefaultImageOutput,
				"publicPath": DefaultImagePublic,
			}}},
		},
	}
	cfg.ExcludeOutputs = []string{DefaultVendorOutput}
	return cfg
}

// Init writes the example configuration to configPath.
func Init(configPath string, force bool) error {
	if _, err := os.Stat(configPath); err == nil && !force {
		return fmt.Errorf("configuration file already exists: %s (use --force to overwrite)", configPath)
	}

	data, err := yaml.Marshal(Example())
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(configPath, data, 0o644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

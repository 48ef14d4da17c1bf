package transforms

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"os/exec"
	"path/filepath"
	"strings"
)

// Sass compiles SCSS and indented Sass by piping the source through the
// Dart Sass command line. Options: binary (default "sass"), loadPaths (list,
// searched after the file's own directory), style ("expanded" or "compressed").
type Sass struct{}

func (Sass) Transform(ctx context.Context, in []byte, path string, opts Options) ([]byte, error) {
	bin := opts.String("binary", "sass")
	if _, err := exec.LookPath(bin); err != nil {
		return nil, fmt.Errorf("sass binary %q not found in PATH: %w", bin, err)
	}

	args := []string{"--stdin", "--no-source-map", "--load-path=" + filepath.Dir(path)}
	for _, lp := range opts.Strings("loadPaths") {
		args = append(args, "--load-path="+lp)
	}
	if style := opts.String("style", ""); style != "" {
		args = append(args, "--style="+style)
	}
	if strings.EqualFold(filepath.Ext(path), ".sass") {
		args = append(args, "--indented")
	}

	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, bin, args...)
	cmd.Stdin = bytes.NewReader(in)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	slog.Debug("Running sass", "path", path, "args", args)
	if err := cmd.Run(); err != nil {
		msg := strings.TrimSpace(stderr.String())
		if msg == "" {
			return nil, fmt.Errorf("sass command failed: %w", err)
		}
		return nil, fmt.Errorf("sass command failed: %w: %s", err, msg)
	}
	return stdout.Bytes(), nil
}

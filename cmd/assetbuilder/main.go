package main

import (
	"log/slog"
	"os"

	"github.com/alecthomas/kong"

	"git.home.luguber.info/inful/assetbuilder/cmd/assetbuilder/commands"
	ferrors "git.home.luguber.info/inful/assetbuilder/internal/foundation/errors"
	"git.home.luguber.info/inful/assetbuilder/internal/version"
)

func main() {
	cli := &commands.CLI{}
	parser := kong.Parse(cli,
		kong.Name("assetbuilder"),
		kong.Description("Build and serve front-end assets from a declarative rule set."),
		kong.UsageOnError(),
		kong.Vars{"version": version.String()},
	)
	err := parser.Run(&commands.Global{Logger: slog.Default(), Out: os.Stdout}, cli)
	os.Exit(ferrors.NewCLIErrorAdapter(cli.Verbose, slog.Default()).Report(err))
}

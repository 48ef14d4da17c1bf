package commands

import (
	"fmt"

	"git.home.luguber.info/inful/assetbuilder/internal/config"
)

// InitCmd implements the 'init' command.
type InitCmd struct {
	Force bool `help:"Overwrite existing configuration file"`
}

func (i *InitCmd) Run(g *Global, root *CLI) error {
	path := config.DefaultConfigFile
	if root != nil && root.Config != "" {
		path = root.Config
	}
	out := g.out()
	_, _ = fmt.Fprintf(out, "Writing configuration to %s\n", path)
	if err := config.Init(path, i.Force); err != nil {
		return err
	}
	_, _ = fmt.Fprintln(out, "initialized successfully")
	return nil
}

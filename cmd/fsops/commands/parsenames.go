package commands

import (
	"context"
	"fmt"
	"strings"

	"github.com/alecthomas/kingpin/v2"

	"github.com/feedstockops/fsops/internal/app/parsenames"
)

type ParseNamesCommand struct {
	Cmd     *kingpin.CmdClause
	rootCmd *RootCommand

	feedstockDir string
	opFlags      *operationFlags
}

// NewParseNamesCommand returns the parse-names command.
func NewParseNamesCommand(rootCmd *RootCommand, app *kingpin.Application) *ParseNamesCommand {
	c := &ParseNamesCommand{rootCmd: rootCmd}

	c.Cmd = app.Command("parse-names", "Parse the feedstock and package names from a feedstock's recipe.")
	c.Cmd.Arg("feedstock-dir", "Path to the feedstock directory.").Required().StringVar(&c.feedstockDir)
	c.opFlags = registerOperationFlags(c.Cmd)

	return c
}

func (c ParseNamesCommand) Name() string { return c.Cmd.FullCommand() }

func (c ParseNamesCommand) Run(ctx context.Context) error {
	fc, err := loadFileConfig(c.rootCmd)
	if err != nil {
		return err
	}

	cfg, err := c.opFlags.operationConfig(fc)
	if err != nil {
		return err
	}

	launcher, err := newLauncher(c.rootCmd, fc)
	if err != nil {
		return err
	}

	svc, err := parsenames.NewService(parsenames.ServiceConfig{
		Launcher: launcher,
		Logger:   c.rootCmd.Logger,
	})
	if err != nil {
		return fmt.Errorf("could not create service: %w", err)
	}

	result, err := svc.Run(ctx, parsenames.Request{
		FeedstockDir: c.feedstockDir,
		Config:       cfg,
	})
	if err != nil {
		return fmt.Errorf("could not parse feedstock names: %w", err)
	}

	out := c.rootCmd.Stdout
	fmt.Fprintf(out, "Feedstock: %s\n", result.FeedstockName)
	fmt.Fprintf(out, "Packages:  %s\n", strings.Join(result.PackageNames, ", "))
	if len(result.Subdirs) > 0 {
		fmt.Fprintf(out, "Subdirs:   %s\n", strings.Join(result.Subdirs, ", "))
	}

	return nil
}

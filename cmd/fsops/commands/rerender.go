package commands

import (
	"context"
	"fmt"

	"github.com/alecthomas/kingpin/v2"

	"github.com/feedstockops/fsops/internal/app/rerender"
)

type RerenderCommand struct {
	Cmd     *kingpin.CmdClause
	rootCmd *RootCommand

	feedstockDir        string
	exclusiveConfigFile string
	opFlags             *operationFlags
}

// NewRerenderCommand returns the rerender command.
func NewRerenderCommand(rootCmd *RootCommand, app *kingpin.Application) *RerenderCommand {
	c := &RerenderCommand{rootCmd: rootCmd}

	c.Cmd = app.Command("rerender", "Rerender a feedstock, writing the regenerated files back in place.")
	c.Cmd.Arg("feedstock-dir", "Path to the feedstock directory.").Required().StringVar(&c.feedstockDir)
	c.Cmd.Flag("exclusive-config-file", "Pinnings file to use instead of the image's bundled copy.").StringVar(&c.exclusiveConfigFile)
	c.opFlags = registerOperationFlags(c.Cmd)

	return c
}

func (c RerenderCommand) Name() string { return c.Cmd.FullCommand() }

func (c RerenderCommand) Run(ctx context.Context) error {
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

	svc, err := rerender.NewService(rerender.ServiceConfig{
		Launcher: launcher,
		Logger:   c.rootCmd.Logger,
	})
	if err != nil {
		return fmt.Errorf("could not create service: %w", err)
	}

	result, err := svc.Run(ctx, rerender.Request{
		FeedstockDir:        c.feedstockDir,
		ExclusiveConfigFile: c.exclusiveConfigFile,
		Config:              cfg,
	})
	if err != nil {
		return fmt.Errorf("could not rerender feedstock: %w", err)
	}

	if result.Changed {
		fmt.Fprintf(c.rootCmd.Stdout, "Rerender changed the feedstock.\n")
		fmt.Fprintf(c.rootCmd.Stdout, "Suggested commit message: %s\n", result.CommitMessage)
	} else {
		fmt.Fprintln(c.rootCmd.Stdout, "Rerender produced no changes.")
	}

	return nil
}

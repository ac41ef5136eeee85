package commands

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/alecthomas/kingpin/v2"

	"github.com/feedstockops/fsops/internal/model"
)

type RunCommand struct {
	Cmd     *kingpin.CmdClause
	rootCmd *RootCommand

	operation string
	opArgs    []string
	mountPath string
	mountName string
	readOnly  bool
	opFlags   *operationFlags
}

// NewRunCommand returns the run command.
func NewRunCommand(rootCmd *RootCommand, app *kingpin.Application) *RunCommand {
	c := &RunCommand{rootCmd: rootCmd}

	c.Cmd = app.Command("run", "Run an arbitrary operation in a container and print its result data as JSON.")
	c.Cmd.Arg("operation", "Operation name passed to the in-container entrypoint.").Required().StringVar(&c.operation)
	c.Cmd.Arg("args", "Extra arguments for the operation (use -- before them).").StringsVar(&c.opArgs)
	c.Cmd.Flag("mount", "Host directory to expose to the operation as a virtual mount.").Short('m').StringVar(&c.mountPath)
	c.Cmd.Flag("mount-name", "Name of the mount inside the container (defaults to the directory base name).").StringVar(&c.mountName)
	c.Cmd.Flag("read-only", "Do not write container changes back to the mounted directory.").BoolVar(&c.readOnly)
	c.opFlags = registerOperationFlags(c.Cmd)

	return c
}

func (c RunCommand) Name() string { return c.Cmd.FullCommand() }

func (c RunCommand) Run(ctx context.Context) error {
	fc, err := loadFileConfig(c.rootCmd)
	if err != nil {
		return err
	}

	cfg, err := c.opFlags.operationConfig(fc)
	if err != nil {
		return err
	}

	req := model.OperationRequest{
		Operation: c.operation,
		Args:      c.opArgs,
		Config:    cfg,
	}

	if c.mountPath != "" {
		dir, err := filepath.Abs(c.mountPath)
		if err != nil {
			return fmt.Errorf("invalid mount path: %w", err)
		}
		name := c.mountName
		if name == "" {
			name = filepath.Base(dir)
		}
		req.Mount = &model.VirtualMount{
			HostPath: dir,
			Name:     name,
			ReadOnly: c.readOnly,
		}
	}

	launcher, err := newLauncher(c.rootCmd, fc)
	if err != nil {
		return err
	}

	data, err := launcher.Run(ctx, req)
	if err != nil {
		return fmt.Errorf("operation failed: %w", err)
	}

	fmt.Fprintf(c.rootCmd.Stdout, "%s\n", data)

	return nil
}

package commands

import (
	"context"
	"fmt"
	"sort"

	"github.com/alecthomas/kingpin/v2"

	"github.com/feedstockops/fsops/internal/app/lint"
)

type LintCommand struct {
	Cmd     *kingpin.CmdClause
	rootCmd *RootCommand

	feedstockDir string
	opFlags      *operationFlags
}

// NewLintCommand returns the lint command.
func NewLintCommand(rootCmd *RootCommand, app *kingpin.Application) *LintCommand {
	c := &LintCommand{rootCmd: rootCmd}

	c.Cmd = app.Command("lint", "Lint the recipes of a feedstock.")
	c.Cmd.Arg("feedstock-dir", "Path to the feedstock directory.").Required().StringVar(&c.feedstockDir)
	c.opFlags = registerOperationFlags(c.Cmd)

	return c
}

func (c LintCommand) Name() string { return c.Cmd.FullCommand() }

func (c LintCommand) Run(ctx context.Context) error {
	out := c.rootCmd.Stdout

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

	svc, err := lint.NewService(lint.ServiceConfig{
		Launcher: launcher,
		Logger:   c.rootCmd.Logger,
	})
	if err != nil {
		return fmt.Errorf("could not create service: %w", err)
	}

	result, err := svc.Run(ctx, lint.Request{
		FeedstockDir: c.feedstockDir,
		Config:       cfg,
	})
	if err != nil {
		return fmt.Errorf("could not lint feedstock: %w", err)
	}

	// Stable output, one block per recipe.
	recipes := make([]string, 0, len(result.Lints))
	for recipe := range result.Lints {
		recipes = append(recipes, recipe)
	}
	sort.Strings(recipes)

	total := 0
	errored := 0
	for _, recipe := range recipes {
		lints := result.Lints[recipe]
		hints := result.Hints[recipe]
		if len(lints) == 0 && len(hints) == 0 && !result.Errors[recipe] {
			continue
		}

		fmt.Fprintf(out, "%s:\n", recipe)
		for _, l := range lints {
			fmt.Fprintf(out, "  lint: %s\n", l)
			total++
		}
		for _, h := range hints {
			fmt.Fprintf(out, "  hint: %s\n", h)
		}
		if result.Errors[recipe] {
			fmt.Fprintf(out, "  error: linting this recipe failed\n")
			errored++
		}
	}

	if total == 0 && errored == 0 {
		fmt.Fprintln(out, "No lint findings!")
	}

	if errored > 0 {
		return fmt.Errorf("linting failed for %d recipe(s)", errored)
	}

	return nil
}

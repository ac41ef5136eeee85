package commands

import (
	"context"
	"fmt"
	"os"

	"github.com/alecthomas/kingpin/v2"
	"github.com/docker/docker/client"
)

type DoctorCommand struct {
	Cmd     *kingpin.CmdClause
	rootCmd *RootCommand
}

// NewDoctorCommand returns the doctor command.
func NewDoctorCommand(rootCmd *RootCommand, app *kingpin.Application) *DoctorCommand {
	c := &DoctorCommand{rootCmd: rootCmd}

	c.Cmd = app.Command("doctor", "Run preflight checks for running container operations.")

	return c
}

func (c DoctorCommand) Name() string { return c.Cmd.FullCommand() }

func (c DoctorCommand) Run(ctx context.Context) error {
	out := c.rootCmd.Stdout

	var results []checkResult

	// Docker daemon checks.
	cli, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
	if err != nil {
		results = append(results, checkResult{"docker-client", statusError, err.Error()})
	} else {
		ping, err := cli.Ping(ctx)
		switch {
		case err != nil:
			results = append(results, checkResult{"docker-daemon", statusError, fmt.Sprintf("daemon not reachable: %s", err)})
		default:
			results = append(results, checkResult{"docker-daemon", statusOK, fmt.Sprintf("reachable (API %s)", ping.APIVersion)})
			if ping.OSType != "" && ping.OSType != "linux" {
				results = append(results, checkResult{"docker-os", statusWarning, fmt.Sprintf("daemon OS is %q, operation images are linux", ping.OSType)})
			} else {
				results = append(results, checkResult{"docker-os", statusOK, "linux daemon"})
			}
		}
		cli.Close()
	}

	// Config file checks.
	if _, err := os.Stat(c.rootCmd.ConfigFile); os.IsNotExist(err) {
		results = append(results, checkResult{"config-file", statusWarning, fmt.Sprintf("%s not found, an --image flag will be required", c.rootCmd.ConfigFile)})
	} else {
		fc, err := loadFileConfig(c.rootCmd)
		switch {
		case err != nil:
			results = append(results, checkResult{"config-file", statusError, err.Error()})
		case fc.Image == "":
			results = append(results, checkResult{"config-file", statusWarning, "no image configured, an --image flag will be required"})
		default:
			results = append(results, checkResult{"config-file", statusOK, fmt.Sprintf("image %s", fc.Image)})
		}
	}

	errors := 0
	for _, r := range results {
		fmt.Fprintf(out, "  %s %-14s %s\n", r.status.icon(), r.id, r.message)
		if r.status == statusError {
			errors++
		}
	}

	fmt.Fprintln(out)
	if errors > 0 {
		return fmt.Errorf("preflight checks failed with %d error(s)", errors)
	}
	fmt.Fprintln(out, "All checks passed!")

	return nil
}

type checkStatus int

const (
	statusOK checkStatus = iota
	statusWarning
	statusError
)

func (s checkStatus) icon() string {
	switch s {
	case statusOK:
		return "OK"
	case statusWarning:
		return "!!"
	case statusError:
		return "XX"
	default:
		return "??"
	}
}

type checkResult struct {
	id      string
	status  checkStatus
	message string
}

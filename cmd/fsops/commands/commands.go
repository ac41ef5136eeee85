package commands

import (
	"context"
	"fmt"
	"io"
	"path/filepath"
	"time"

	"github.com/alecthomas/kingpin/v2"
	"k8s.io/client-go/util/homedir"

	"github.com/feedstockops/fsops/internal/app/run"
	"github.com/feedstockops/fsops/internal/conventions"
	"github.com/feedstockops/fsops/internal/log"
	"github.com/feedstockops/fsops/internal/model"
	"github.com/feedstockops/fsops/internal/supervisor/docker"
	"github.com/feedstockops/fsops/internal/utils/env"
)

const (
	// LoggerTypeDefault is the logger default type.
	LoggerTypeDefault = "default"
	// LoggerTypeJSON is the logger json type.
	LoggerTypeJSON = "json"
)

// Command represents an application command, all commands that want to be executed
// should implement and setup on main.
type Command interface {
	Name() string
	Run(ctx context.Context) error
}

// RootCommand represents the root command configuration and global configuration
// for all the commands.
type RootCommand struct {
	// Global flags.
	Debug             bool
	NoLog             bool
	NoColor           bool
	LoggerType        string
	ConfigFile        string
	ContainerLogLevel string

	// Global instances.
	Stdin  io.Reader
	Stdout io.Writer
	Stderr io.Writer
	Logger log.Logger
}

// NewRootCommand initializes the main root configuration.
func NewRootCommand(app *kingpin.Application) *RootCommand {
	c := &RootCommand{}

	app.Flag("debug", "Enable debug mode.").BoolVar(&c.Debug)
	app.Flag("no-log", "Disable logger.").BoolVar(&c.NoLog)
	app.Flag("no-color", "Disable logger color.").BoolVar(&c.NoColor)
	app.Flag("logger", "Selects the logger type.").Default(LoggerTypeDefault).EnumVar(&c.LoggerType, LoggerTypeDefault, LoggerTypeJSON)

	defaultConfig := filepath.Join(homedir.HomeDir(), conventions.DefaultConfigDir, conventions.DefaultConfigFile)
	app.Flag("config", "Path to the fsops config file.").Default(defaultConfig).StringVar(&c.ConfigFile)
	app.Flag("container-log-level", "Log level passed to the in-container entrypoint.").EnumVar(&c.ContainerLogLevel, "debug", "info", "warning", "error")

	return c
}

// operationFlags are the flags shared by every command that launches a
// container operation.
type operationFlags struct {
	image    string
	timeout  time.Duration
	cpus     float64
	memoryMB int64
	tmpfsMB  int64
	envSpecs []string
	envFile  string
}

func registerOperationFlags(cmd *kingpin.CmdClause) *operationFlags {
	f := &operationFlags{}

	cmd.Flag("image", "Container image to run the operation in (falls back to the config file).").Short('i').StringVar(&f.image)
	cmd.Flag("timeout", "Wall-clock limit for the operation (e.g. 10m). Zero means no limit.").DurationVar(&f.timeout)
	cmd.Flag("cpu", "CPU limit for the container (can be fractional, e.g. 0.5).").Float64Var(&f.cpus)
	cmd.Flag("memory", "Memory limit in MB.").Int64Var(&f.memoryMB)
	cmd.Flag("tmpfs", "Size of the writable /tmp tmpfs in MB.").Int64Var(&f.tmpfsMB)
	cmd.Flag("env", "Environment variables for the operation (KEY=VALUE or KEY from current environment). Can be repeated.").Short('e').StringsVar(&f.envSpecs)
	cmd.Flag("env-file", "Dotenv file with environment variables for the operation.").StringVar(&f.envFile)

	return f
}

// operationConfig resolves the operation configuration from the flags and the
// config file. Flags win over the file; environment maps merge with CLI specs
// on top.
func (f *operationFlags) operationConfig(fc *fileConfig) (model.OperationConfig, error) {
	cfg := model.OperationConfig{
		Image:   f.image,
		Timeout: f.timeout,
		Resources: model.Resources{
			CPUs:        f.cpus,
			MemoryMB:    f.memoryMB,
			TmpfsSizeMB: f.tmpfsMB,
		},
	}

	if cfg.Image == "" {
		cfg.Image = fc.Image
	}
	if cfg.Image == "" {
		return cfg, fmt.Errorf("a container image is required (--image flag or config file)")
	}

	if cfg.Timeout == 0 && fc.Timeout != "" {
		timeout, err := time.ParseDuration(fc.Timeout)
		if err != nil {
			return cfg, fmt.Errorf("invalid timeout in config file: %w", err)
		}
		cfg.Timeout = timeout
	}

	if cfg.Resources.CPUs == 0 {
		cfg.Resources.CPUs = fc.Resources.CPUs
	}
	if cfg.Resources.MemoryMB == 0 {
		cfg.Resources.MemoryMB = fc.Resources.MemoryMB
	}
	if cfg.Resources.TmpfsSizeMB == 0 {
		cfg.Resources.TmpfsSizeMB = fc.Resources.TmpfsMB
	}

	cliEnv, err := env.ParseSpecs(f.envSpecs)
	if err != nil {
		return cfg, fmt.Errorf("invalid --env value: %w", err)
	}

	fileEnv := map[string]string{}
	if f.envFile != "" {
		fileEnv, err = env.FromFile(f.envFile)
		if err != nil {
			return cfg, err
		}
	}

	cfg.Env = env.Merge(fc.Env, fileEnv, cliEnv)

	return cfg, nil
}

// newLauncher builds the container launcher the operation commands run
// through: a Docker supervisor wrapped by the run service.
func newLauncher(rootCmd *RootCommand, fc *fileConfig) (run.Launcher, error) {
	supervisor, err := docker.NewSupervisor(docker.SupervisorConfig{
		Logger: rootCmd.Logger,
	})
	if err != nil {
		return nil, fmt.Errorf("could not create Docker supervisor: %w", err)
	}

	containerLogLevel := rootCmd.ContainerLogLevel
	if containerLogLevel == "" {
		containerLogLevel = fc.ContainerLogLevel
	}

	svc, err := run.NewService(run.ServiceConfig{
		Supervisor:        supervisor,
		ContainerLogLevel: containerLogLevel,
		Logger:            rootCmd.Logger,
	})
	if err != nil {
		return nil, fmt.Errorf("could not create launcher service: %w", err)
	}

	return svc, nil
}

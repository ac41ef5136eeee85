package commands

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"
)

// fileConfig is the optional on-disk configuration (by default
// ~/.fsops/config.yaml). It only carries defaults, every field can be
// overridden by a flag.
type fileConfig struct {
	Image             string            `yaml:"image"`
	ContainerLogLevel string            `yaml:"container_log_level"`
	Timeout           string            `yaml:"timeout"`
	Env               map[string]string `yaml:"env"`
	Resources         fileResources     `yaml:"resources"`
}

type fileResources struct {
	CPUs     float64 `yaml:"cpus"`
	MemoryMB int64   `yaml:"memory_mb"`
	TmpfsMB  int64   `yaml:"tmpfs_mb"`
}

// loadFileConfig loads the config file of the root command. A missing file is
// not an error, everything can be configured through flags.
func loadFileConfig(rootCmd *RootCommand) (*fileConfig, error) {
	data, err := os.ReadFile(rootCmd.ConfigFile)
	if os.IsNotExist(err) {
		return &fileConfig{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("could not read config file %s: %w", rootCmd.ConfigFile, err)
	}

	cfg := &fileConfig{}
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("could not parse config file %s: %w", rootCmd.ConfigFile, err)
	}

	return cfg, nil
}

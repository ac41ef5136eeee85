// Package env resolves the environment variables forwarded to a container
// operation from CLI specs, dotenv files and config file defaults.
package env

import (
	"fmt"
	"os"
	"regexp"
	"strings"

	"github.com/joho/godotenv"
)

var envKeyRegexp = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// ParseSpecs parses CLI environment specs. A spec is either "KEY=VALUE" or a
// bare "KEY" that inherits the value from the current process environment.
// Inheriting an unset variable is an error, a silent empty value inside the
// container would be much harder to debug.
func ParseSpecs(specs []string) (map[string]string, error) {
	env := make(map[string]string, len(specs))

	for _, spec := range specs {
		if spec == "" {
			return nil, fmt.Errorf("environment variable spec cannot be empty")
		}

		if key, value, ok := strings.Cut(spec, "="); ok {
			if !isValidKey(key) {
				return nil, fmt.Errorf("invalid environment variable key %q", key)
			}

			env[key] = value
			continue
		}

		if !isValidKey(spec) {
			return nil, fmt.Errorf("invalid environment variable key %q", spec)
		}

		value, ok := os.LookupEnv(spec)
		if !ok {
			return nil, fmt.Errorf("environment variable %q is not set", spec)
		}

		env[spec] = value
	}

	return env, nil
}

// FromFile loads environment variables from a dotenv file. The variables are
// returned, not applied to the current process.
func FromFile(path string) (map[string]string, error) {
	env, err := godotenv.Read(path)
	if err != nil {
		return nil, fmt.Errorf("could not read env file %s: %w", path, err)
	}

	for key := range env {
		if !isValidKey(key) {
			return nil, fmt.Errorf("invalid environment variable key %q in %s", key, path)
		}
	}

	return env, nil
}

// Merge merges environment maps, later maps override earlier ones. Always
// returns a non-nil map.
func Merge(envs ...map[string]string) map[string]string {
	merged := map[string]string{}
	for _, env := range envs {
		for k, v := range env {
			merged[k] = v
		}
	}

	return merged
}

func isValidKey(k string) bool {
	return envKeyRegexp.MatchString(k)
}

package env_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/feedstockops/fsops/internal/utils/env"
)

func TestParseSpecs(t *testing.T) {
	t.Setenv("FROM_HOST", "host-value")

	tests := map[string]struct {
		specs  []string
		expEnv map[string]string
		expErr bool
	}{
		"KEY=VALUE should parse": {
			specs:  []string{"FOO=bar"},
			expEnv: map[string]string{"FOO": "bar"},
		},
		"KEY should inherit from host": {
			specs:  []string{"FROM_HOST"},
			expEnv: map[string]string{"FROM_HOST": "host-value"},
		},
		"Later entries should override earlier ones": {
			specs:  []string{"FOO=one", "FOO=two"},
			expEnv: map[string]string{"FOO": "two"},
		},
		"Missing inherited var should fail": {
			specs:  []string{"DOES_NOT_EXIST"},
			expErr: true,
		},
		"Invalid key should fail": {
			specs:  []string{"1INVALID=value"},
			expErr: true,
		},
	}

	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			got, err := env.ParseSpecs(tc.specs)

			if tc.expErr {
				require.Error(t, err)
				return
			}

			require.NoError(t, err)
			assert.Equal(t, tc.expEnv, got)
		})
	}
}

func TestFromFile(t *testing.T) {
	tests := map[string]struct {
		content string
		expEnv  map[string]string
		expErr  bool
	}{
		"A dotenv file should load its variables": {
			content: "CONDA_TOKEN=s3cr3t\nCI=true\n",
			expEnv:  map[string]string{"CONDA_TOKEN": "s3cr3t", "CI": "true"},
		},
		"Quoted values should be unquoted": {
			content: `MSG="hello world"` + "\n",
			expEnv:  map[string]string{"MSG": "hello world"},
		},
	}

	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "ops.env")
			require.NoError(t, os.WriteFile(path, []byte(tc.content), 0o644))

			got, err := env.FromFile(path)

			if tc.expErr {
				require.Error(t, err)
				return
			}

			require.NoError(t, err)
			assert.Equal(t, tc.expEnv, got)
		})
	}

	t.Run("A missing file should fail", func(t *testing.T) {
		_, err := env.FromFile(filepath.Join(t.TempDir(), "nope.env"))
		require.Error(t, err)
	})
}

func TestMerge(t *testing.T) {
	tests := map[string]struct {
		envs   []map[string]string
		expEnv map[string]string
	}{
		"Later maps should override earlier ones": {
			envs: []map[string]string{
				{"A": "1", "B": "1"},
				{"B": "2"},
			},
			expEnv: map[string]string{"A": "1", "B": "2"},
		},
		"No maps should give an empty map": {
			envs:   nil,
			expEnv: map[string]string{},
		},
	}

	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			assert.Equal(t, tc.expEnv, env.Merge(tc.envs...))
		})
	}
}

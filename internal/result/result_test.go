package result_test

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/feedstockops/fsops/internal/model"
	"github.com/feedstockops/fsops/internal/result"
)

func TestInterpret(t *testing.T) {
	tests := map[string]struct {
		exitCode   int
		envelope   *string
		expData    string
		expErr     bool
		expMessage string
	}{
		"Exit 0 with a clean envelope should return the data verbatim": {
			exitCode: 0,
			envelope: strPtr(`{"error":"","data":{"commit_message":"rerendered"}}`),
			expData:  `{"commit_message":"rerendered"}`,
		},

		"Exit 0 with a null error field should return the data": {
			exitCode: 0,
			envelope: strPtr(`{"error":null,"data":[1,2,3]}`),
			expData:  `[1,2,3]`,
		},

		"A nonzero exit should fail even when the envelope reports success": {
			exitCode:   1,
			envelope:   strPtr(`{"error":"","data":{"fine":true}}`),
			expErr:     true,
			expMessage: "nonzero exit: 1",
		},

		"Exit 0 without an envelope should fail as missing envelope": {
			exitCode:   0,
			envelope:   nil,
			expErr:     true,
			expMessage: "missing result envelope",
		},

		"An explicit error field should fail with that message": {
			exitCode:   0,
			envelope:   strPtr(`{"error":"RuntimeError(conda solve failed)","data":null}`),
			expErr:     true,
			expMessage: "RuntimeError(conda solve failed)",
		},

		"An envelope that is not JSON should fail as malformed": {
			exitCode: 0,
			envelope: strPtr(`this is not json`),
			expErr:   true,
		},

		"An envelope with extra top-level fields should fail as malformed": {
			exitCode: 0,
			envelope: strPtr(`{"error":"","data":null,"traceback":"..."}`),
			expErr:   true,
		},
	}

	for name, test := range tests {
		t.Run(name, func(t *testing.T) {
			dir := t.TempDir()
			envelopePath := filepath.Join(dir, "result.json")
			if test.envelope != nil {
				require.NoError(t, os.WriteFile(envelopePath, []byte(*test.envelope), 0o644))
			}

			data, err := result.Interpret("lint", test.exitCode, envelopePath)

			if test.expErr {
				require.Error(t, err)
				var cre *model.ContainerRuntimeError
				require.True(t, errors.As(err, &cre))
				assert.Equal(t, "lint", cre.Operation)
				if test.expMessage != "" {
					assert.Equal(t, test.expMessage, cre.Message)
				}
				return
			}

			require.NoError(t, err)
			assert.JSONEq(t, test.expData, string(data))
		})
	}
}

func strPtr(s string) *string { return &s }

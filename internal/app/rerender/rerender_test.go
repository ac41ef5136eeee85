package rerender_test

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"

	"github.com/feedstockops/fsops/internal/app/rerender"
	"github.com/feedstockops/fsops/internal/app/run/runmock"
	"github.com/feedstockops/fsops/internal/model"
)

func TestNewService(t *testing.T) {
	tests := map[string]struct {
		config rerender.ServiceConfig
		expErr bool
	}{
		"A config without launcher should fail.": {
			config: rerender.ServiceConfig{},
			expErr: true,
		},

		"A config with launcher should create the service.": {
			config: rerender.ServiceConfig{Launcher: &runmock.MockLauncher{}},
		},
	}

	for name, test := range tests {
		t.Run(name, func(t *testing.T) {
			assert := assert.New(t)

			_, err := rerender.NewService(test.config)
			if test.expErr {
				assert.Error(err)
			} else {
				assert.NoError(err)
			}
		})
	}
}

func TestServiceRun(t *testing.T) {
	commitMsg := "MNT: rerender"

	tests := map[string]struct {
		req       func(dir string) rerender.Request
		mock      func(dir string, m *runmock.MockLauncher)
		expResult *rerender.Result
		expErr    bool
	}{
		"A rerender run should mount the feedstock writable and report the change.": {
			req: func(dir string) rerender.Request {
				return rerender.Request{FeedstockDir: dir}
			},
			mock: func(dir string, m *runmock.MockLauncher) {
				expReq := model.OperationRequest{
					Operation: "rerender",
					Args:      []string{},
					Mount: &model.VirtualMount{
						HostPath: dir,
						Name:     filepath.Base(dir),
						ReadOnly: false,
					},
				}
				data := json.RawMessage(fmt.Sprintf(`{"commit_message": %q}`, commitMsg))
				m.On("Run", mock.Anything, expReq).Once().Return(data, nil)
			},
			expResult: &rerender.Result{CommitMessage: commitMsg, Changed: true},
		},

		"A rerender that changed nothing should report no change.": {
			req: func(dir string) rerender.Request {
				return rerender.Request{FeedstockDir: dir}
			},
			mock: func(dir string, m *runmock.MockLauncher) {
				data := json.RawMessage(`{"commit_message": null}`)
				m.On("Run", mock.Anything, mock.Anything).Once().Return(data, nil)
			},
			expResult: &rerender.Result{},
		},

		"A timeout on the operation config should be forwarded as an argument.": {
			req: func(dir string) rerender.Request {
				return rerender.Request{
					FeedstockDir: dir,
					Config:       model.OperationConfig{Timeout: 2 * time.Minute},
				}
			},
			mock: func(dir string, m *runmock.MockLauncher) {
				match := mock.MatchedBy(func(req model.OperationRequest) bool {
					return len(req.Args) == 2 && req.Args[0] == "--timeout" && req.Args[1] == "120"
				})
				data := json.RawMessage(`{"commit_message": null}`)
				m.On("Run", mock.Anything, match).Once().Return(data, nil)
			},
			expResult: &rerender.Result{},
		},

		"An exclusive config file should be staged into the mount for the duration of the run.": {
			req: func(dir string) rerender.Request {
				pinnings := filepath.Join(dir, "..", "pinnings.yaml")
				err := os.WriteFile(pinnings, []byte("zlib:\n- \"1.3\"\n"), 0o644)
				if err != nil {
					t.Fatal(err)
				}
				return rerender.Request{FeedstockDir: dir, ExclusiveConfigFile: pinnings}
			},
			mock: func(dir string, m *runmock.MockLauncher) {
				match := mock.MatchedBy(func(req model.OperationRequest) bool {
					if len(req.Args) != 2 || req.Args[0] != "--exclusive-config-file" {
						return false
					}
					// The pinnings copy must exist inside the mount while
					// the operation runs.
					staged := filepath.Join(dir, req.Args[1])
					content, err := os.ReadFile(staged)
					return err == nil && string(content) == "zlib:\n- \"1.3\"\n"
				})
				data := json.RawMessage(`{"commit_message": null}`)
				m.On("Run", mock.Anything, match).Once().Return(data, nil)
			},
			expResult: &rerender.Result{},
		},

		"A missing feedstock directory should fail before launching.": {
			req: func(dir string) rerender.Request {
				return rerender.Request{}
			},
			mock:   func(dir string, m *runmock.MockLauncher) {},
			expErr: true,
		},

		"A missing exclusive config file should fail before launching.": {
			req: func(dir string) rerender.Request {
				return rerender.Request{
					FeedstockDir:        dir,
					ExclusiveConfigFile: filepath.Join(dir, "does-not-exist.yaml"),
				}
			},
			mock:   func(dir string, m *runmock.MockLauncher) {},
			expErr: true,
		},

		"A launcher error should be returned to the caller.": {
			req: func(dir string) rerender.Request {
				return rerender.Request{FeedstockDir: dir}
			},
			mock: func(dir string, m *runmock.MockLauncher) {
				m.On("Run", mock.Anything, mock.Anything).Once().Return(nil, fmt.Errorf("wanted error"))
			},
			expErr: true,
		},
	}

	for name, test := range tests {
		t.Run(name, func(t *testing.T) {
			assert := assert.New(t)

			dir := filepath.Join(t.TempDir(), "numpy-feedstock")
			assert.NoError(os.Mkdir(dir, 0o755))

			ml := &runmock.MockLauncher{}
			test.mock(dir, ml)

			svc, err := rerender.NewService(rerender.ServiceConfig{Launcher: ml})
			assert.NoError(err)

			result, err := svc.Run(context.TODO(), test.req(dir))

			if test.expErr {
				assert.Error(err)
			} else if assert.NoError(err) {
				assert.Equal(test.expResult, result)
			}

			// The staged pinnings copy never outlives the run.
			_, statErr := os.Stat(filepath.Join(dir, ".fsops-exclusive-config.yaml"))
			assert.True(os.IsNotExist(statErr))

			ml.AssertExpectations(t)
		})
	}
}

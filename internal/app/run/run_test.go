package run_test

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/feedstockops/fsops/internal/app/run"
	"github.com/feedstockops/fsops/internal/archive"
	"github.com/feedstockops/fsops/internal/conventions"
	"github.com/feedstockops/fsops/internal/model"
	"github.com/feedstockops/fsops/internal/supervisor"
	"github.com/feedstockops/fsops/internal/supervisor/supervisormock"
)

// containerBehavior simulates the in-container entrypoint against the
// streams the launcher wires up.
type containerBehavior func(t *testing.T, spec supervisor.RunSpec)

func mockRun(t *testing.T, m *supervisormock.MockSupervisor, behavior containerBehavior, res *supervisor.RunResult, err error) {
	t.Helper()

	call := m.On("Run", mock.Anything, mock.AnythingOfType("supervisor.RunSpec")).Once()
	call.Run(func(args mock.Arguments) {
		spec := args.Get(1).(supervisor.RunSpec)
		if behavior != nil {
			behavior(t, spec)
		}
	})
	call.Return(res, err)
}

// opsDirArchive encodes a synthetic container ops dir (envelope plus
// optional mount content) the way the entrypoint contract requires.
func opsDirArchive(t *testing.T, envelope string, mountName string, mountFiles map[string]string) []byte {
	t.Helper()

	opsDir := t.TempDir()
	if envelope != "" {
		require.NoError(t, os.WriteFile(filepath.Join(opsDir, conventions.ResultFileName), []byte(envelope), 0o644))
	}
	for rel, content := range mountFiles {
		p := filepath.Join(opsDir, mountName, rel)
		require.NoError(t, os.MkdirAll(filepath.Dir(p), 0o755))
		require.NoError(t, os.WriteFile(p, []byte(content), 0o644))
	}

	var buf bytes.Buffer
	require.NoError(t, archive.Encode(opsDir, ".", &buf))
	return buf.Bytes()
}

func consumeAndReply(output []byte) containerBehavior {
	return func(t *testing.T, spec supervisor.RunSpec) {
		_, err := io.Copy(io.Discard, spec.Stdin)
		require.NoError(t, err)
		_, err = spec.Stdout.Write(output)
		require.NoError(t, err)
	}
}

func TestNewService(t *testing.T) {
	tests := map[string]struct {
		cfg    run.ServiceConfig
		expErr bool
	}{
		"Valid configuration should create the service": {
			cfg:    run.ServiceConfig{Supervisor: &supervisormock.MockSupervisor{}},
			expErr: false,
		},
		"Missing supervisor should fail": {
			cfg:    run.ServiceConfig{},
			expErr: true,
		},
	}

	for name, test := range tests {
		t.Run(name, func(t *testing.T) {
			svc, err := run.NewService(test.cfg)
			if test.expErr {
				assert.Error(t, err)
				assert.Nil(t, svc)
			} else {
				assert.NoError(t, err)
				assert.NotNil(t, svc)
			}
		})
	}
}

func TestServiceRunSuccess(t *testing.T) {
	host := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(host, "meta.yaml"), []byte("name: x\n"), 0o644))

	m := &supervisormock.MockSupervisor{}
	out := opsDirArchive(t, `{"error":"","data":{"commit_message":"MNT: rerender"}}`, "feedstock", map[string]string{
		"meta.yaml": "name: x\nrendered: true\n",
	})
	mockRun(t, m, consumeAndReply(out), &supervisor.RunResult{ExitCode: 0}, nil)

	svc, err := run.NewService(run.ServiceConfig{Supervisor: m})
	require.NoError(t, err)

	data, err := svc.Run(context.Background(), model.OperationRequest{
		Operation: "rerender",
		Mount:     &model.VirtualMount{HostPath: host, Name: "feedstock", ReadOnly: false},
		Config: model.OperationConfig{
			Image:   "example.com/fsops:1",
			Timeout: time.Minute,
		},
	})
	require.NoError(t, err)
	assert.JSONEq(t, `{"commit_message":"MNT: rerender"}`, string(data))

	// Writable mount committed back.
	content, err := os.ReadFile(filepath.Join(host, "meta.yaml"))
	require.NoError(t, err)
	assert.Equal(t, "name: x\nrendered: true\n", string(content))

	m.AssertExpectations(t)
}

func TestServiceRunCommandContract(t *testing.T) {
	m := &supervisormock.MockSupervisor{}
	out := opsDirArchive(t, `{"error":"","data":null}`, "", nil)

	var gotSpec supervisor.RunSpec
	call := m.On("Run", mock.Anything, mock.AnythingOfType("supervisor.RunSpec")).Once()
	call.Run(func(args mock.Arguments) {
		gotSpec = args.Get(1).(supervisor.RunSpec)
		consumeAndReply(out)(t, gotSpec)
	})
	call.Return(&supervisor.RunResult{ExitCode: 0}, nil)

	svc, err := run.NewService(run.ServiceConfig{Supervisor: m, ContainerLogLevel: "debug"})
	require.NoError(t, err)

	_, err = svc.Run(context.Background(), model.OperationRequest{
		Operation: "lint",
		Args:      []string{"--recipes", "all"},
		Config:    model.OperationConfig{Image: "example.com/fsops:1"},
	})
	require.NoError(t, err)

	assert.Equal(t, []string{
		conventions.EntrypointCommand, "lint", "--log-level", "debug", "--recipes", "all",
	}, gotSpec.Command)
	assert.Equal(t, "example.com/fsops:1", gotSpec.Image)
}

func TestServiceRunExitCodeDominance(t *testing.T) {
	// The process exits 1 but still emits a valid success envelope: the
	// exit code must win.
	m := &supervisormock.MockSupervisor{}
	out := opsDirArchive(t, `{"error":"","data":{"fine":true}}`, "", nil)
	mockRun(t, m, consumeAndReply(out), &supervisor.RunResult{ExitCode: 1}, nil)

	svc, err := run.NewService(run.ServiceConfig{Supervisor: m})
	require.NoError(t, err)

	_, err = svc.Run(context.Background(), model.OperationRequest{
		Operation: "lint",
		Config:    model.OperationConfig{Image: "example.com/fsops:1"},
	})
	require.Error(t, err)

	var cre *model.ContainerRuntimeError
	require.True(t, errors.As(err, &cre))
	assert.Equal(t, 1, cre.ExitCode)
	assert.Contains(t, cre.Message, "nonzero exit")
}

func TestServiceRunMissingEnvelope(t *testing.T) {
	// Exit 0 but the output archive has no envelope file.
	m := &supervisormock.MockSupervisor{}
	out := opsDirArchive(t, "", "feedstock", map[string]string{"meta.yaml": "x"})
	mockRun(t, m, consumeAndReply(out), &supervisor.RunResult{ExitCode: 0}, nil)

	svc, err := run.NewService(run.ServiceConfig{Supervisor: m})
	require.NoError(t, err)

	_, err = svc.Run(context.Background(), model.OperationRequest{
		Operation: "lint",
		Config:    model.OperationConfig{Image: "example.com/fsops:1"},
	})
	require.Error(t, err)

	var cre *model.ContainerRuntimeError
	require.True(t, errors.As(err, &cre))
	assert.Equal(t, "missing result envelope", cre.Message)
}

func TestServiceRunEnvelopeError(t *testing.T) {
	m := &supervisormock.MockSupervisor{}
	out := opsDirArchive(t, `{"error":"YAMLError(could not parse meta.yaml)","data":null}`, "", nil)
	mockRun(t, m, consumeAndReply(out), &supervisor.RunResult{ExitCode: 0}, nil)

	svc, err := run.NewService(run.ServiceConfig{Supervisor: m})
	require.NoError(t, err)

	_, err = svc.Run(context.Background(), model.OperationRequest{
		Operation: "parse-package-and-feedstock-names",
		Config:    model.OperationConfig{Image: "example.com/fsops:1"},
	})
	require.Error(t, err)

	var cre *model.ContainerRuntimeError
	require.True(t, errors.As(err, &cre))
	assert.Equal(t, "YAMLError(could not parse meta.yaml)", cre.Message)
}

func TestServiceRunReadOnlyMount(t *testing.T) {
	host := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(host, "meta.yaml"), []byte("original"), 0o644))

	m := &supervisormock.MockSupervisor{}
	out := opsDirArchive(t, `{"error":"","data":null}`, "feedstock", map[string]string{
		"meta.yaml": "modified by the container",
	})
	mockRun(t, m, consumeAndReply(out), &supervisor.RunResult{ExitCode: 0}, nil)

	svc, err := run.NewService(run.ServiceConfig{Supervisor: m})
	require.NoError(t, err)

	_, err = svc.Run(context.Background(), model.OperationRequest{
		Operation: "lint",
		Mount:     &model.VirtualMount{HostPath: host, Name: "feedstock", ReadOnly: true},
		Config:    model.OperationConfig{Image: "example.com/fsops:1"},
	})
	require.NoError(t, err)

	content, err := os.ReadFile(filepath.Join(host, "meta.yaml"))
	require.NoError(t, err)
	assert.Equal(t, "original", string(content))
}

func TestServiceRunGarbageOutput(t *testing.T) {
	m := &supervisormock.MockSupervisor{}
	mockRun(t, m, consumeAndReply([]byte("plain JSON on stdout is the legacy convention")), &supervisor.RunResult{ExitCode: 0}, nil)

	svc, err := run.NewService(run.ServiceConfig{Supervisor: m})
	require.NoError(t, err)

	_, err = svc.Run(context.Background(), model.OperationRequest{
		Operation: "lint",
		Config:    model.OperationConfig{Image: "example.com/fsops:1"},
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, model.ErrOutputProtocol)
}

func TestServiceRunSupervisorErrors(t *testing.T) {
	tests := map[string]struct {
		runErr error
		expErr error
	}{
		"A launch failure should propagate": {
			runErr: model.ErrLaunch,
			expErr: model.ErrLaunch,
		},
		"A timeout should propagate": {
			runErr: model.ErrTimeout,
			expErr: model.ErrTimeout,
		},
		"A cancellation should propagate": {
			runErr: model.ErrCancelled,
			expErr: model.ErrCancelled,
		},
	}

	for name, test := range tests {
		t.Run(name, func(t *testing.T) {
			m := &supervisormock.MockSupervisor{}
			mockRun(t, m, nil, nil, test.runErr)

			svc, err := run.NewService(run.ServiceConfig{Supervisor: m})
			require.NoError(t, err)

			_, err = svc.Run(context.Background(), model.OperationRequest{
				Operation: "rerender",
				Config:    model.OperationConfig{Image: "example.com/fsops:1"},
			})
			require.Error(t, err)
			assert.ErrorIs(t, err, test.expErr)
		})
	}
}

func TestServiceRunValidation(t *testing.T) {
	svc, err := run.NewService(run.ServiceConfig{Supervisor: &supervisormock.MockSupervisor{}})
	require.NoError(t, err)

	tests := map[string]struct {
		req model.OperationRequest
	}{
		"Missing operation name should fail": {
			req: model.OperationRequest{Config: model.OperationConfig{Image: "x"}},
		},
		"Missing image should fail": {
			req: model.OperationRequest{Operation: "lint"},
		},
		"A mount name with parent segments should fail": {
			req: model.OperationRequest{
				Operation: "lint",
				Mount:     &model.VirtualMount{HostPath: "/tmp/x", Name: "../escape"},
				Config:    model.OperationConfig{Image: "x"},
			},
		},
	}

	for name, test := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := svc.Run(context.Background(), test.req)
			require.Error(t, err)
			assert.ErrorIs(t, err, model.ErrNotValid)
		})
	}
}

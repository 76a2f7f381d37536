package runtime

import (
	"bytes"
	"context"
	"errors"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/docker/docker/api/types"
	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/mount"
	"github.com/docker/docker/api/types/network"
	"github.com/docker/docker/errdefs"
	"github.com/docker/docker/pkg/stdcopy"
	ocispec "github.com/opencontainers/image-spec/specs-go/v1"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"dockexec/pkg/runtime"
)

// MockDockerAPI is a mock implementation of the dockerAPI interface
type MockDockerAPI struct {
	mock.Mock
}

func (m *MockDockerAPI) Ping(ctx context.Context) (types.Ping, error) {
	args := m.Called(ctx)
	return args.Get(0).(types.Ping), args.Error(1)
}

func (m *MockDockerAPI) ContainerCreate(ctx context.Context, config *container.Config, hostConfig *container.HostConfig, networkingConfig *network.NetworkingConfig, platform *ocispec.Platform, containerName string) (container.CreateResponse, error) {
	args := m.Called(ctx, config, hostConfig, networkingConfig, platform, containerName)
	return args.Get(0).(container.CreateResponse), args.Error(1)
}

func (m *MockDockerAPI) ContainerStart(ctx context.Context, containerID string, options container.StartOptions) error {
	args := m.Called(ctx, containerID, options)
	return args.Error(0)
}

func (m *MockDockerAPI) ContainerWait(ctx context.Context, containerID string, condition container.WaitCondition) (<-chan container.WaitResponse, <-chan error) {
	args := m.Called(ctx, containerID, condition)
	return args.Get(0).(chan container.WaitResponse), args.Get(1).(chan error)
}

func (m *MockDockerAPI) ContainerStop(ctx context.Context, containerID string, options container.StopOptions) error {
	args := m.Called(ctx, containerID, options)
	return args.Error(0)
}

func (m *MockDockerAPI) ContainerLogs(ctx context.Context, containerID string, options container.LogsOptions) (io.ReadCloser, error) {
	args := m.Called(ctx, containerID, options)
	if rc, ok := args.Get(0).(io.ReadCloser); ok {
		return rc, args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockDockerAPI) ContainerRemove(ctx context.Context, containerID string, options container.RemoveOptions) error {
	args := m.Called(ctx, containerID, options)
	return args.Error(0)
}

func (m *MockDockerAPI) Close() error {
	return m.Called().Error(0)
}

// multiplexed builds a log stream framed the way the daemon frames non-TTY output.
func multiplexed(t *testing.T, stdout, stderr string) io.ReadCloser {
	t.Helper()
	var buf bytes.Buffer
	if stdout != "" {
		_, err := stdcopy.NewStdWriter(&buf, stdcopy.Stdout).Write([]byte(stdout))
		require.NoError(t, err)
	}
	if stderr != "" {
		_, err := stdcopy.NewStdWriter(&buf, stdcopy.Stderr).Write([]byte(stderr))
		require.NoError(t, err)
	}
	return io.NopCloser(&buf)
}

func waitChannels(resp *container.WaitResponse, err error) (chan container.WaitResponse, chan error) {
	statusCh := make(chan container.WaitResponse, 1)
	errCh := make(chan error, 1)
	if resp != nil {
		statusCh <- *resp
	}
	if err != nil {
		errCh <- err
	}
	return statusCh, errCh
}

func TestDockerRuntime_CreateContainer(t *testing.T) {
	api := &MockDockerAPI{}
	api.On("ContainerCreate", mock.Anything,
		mock.MatchedBy(func(cfg *container.Config) bool {
			return cfg.Image == "alpine" &&
				strings.Join(cfg.Cmd, " ") == "echo hi" &&
				!cfg.Tty &&
				cfg.WorkingDir == "/work" &&
				cfg.Labels[ManagedLabel] == "true" &&
				cfg.Labels["team"] == "infra" &&
				len(cfg.Env) == 1 && cfg.Env[0] == "FOO=bar"
		}),
		mock.MatchedBy(func(hc *container.HostConfig) bool {
			return len(hc.Mounts) == 1 &&
				hc.Mounts[0].Type == mount.TypeBind &&
				hc.Mounts[0].Source == "/src" &&
				hc.Mounts[0].Target == "/work" &&
				hc.Mounts[0].ReadOnly
		}),
		(*network.NetworkingConfig)(nil), (*ocispec.Platform)(nil), "dockexec-1",
	).Return(container.CreateResponse{ID: "abc123"}, nil)

	rt := newDockerRuntime(api)
	id, err := rt.CreateContainer(context.Background(), runtime.RunOptions{
		Name:             "dockexec-1",
		Image:            "alpine",
		Command:          []string{"echo", "hi"},
		Env:              []string{"FOO=bar"},
		Mounts:           []runtime.Mount{{Source: "/src", Target: "/work", ReadOnly: true}},
		Labels:           map[string]string{"team": "infra"},
		WorkingDirectory: "/work",
	})

	require.NoError(t, err)
	assert.Equal(t, "abc123", id)
	api.AssertExpectations(t)
}

func TestDockerRuntime_CreateContainer_ImageNotFound(t *testing.T) {
	api := &MockDockerAPI{}
	api.On("ContainerCreate", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		Return(container.CreateResponse{}, errdefs.NotFound(errors.New("No such image: does-not-exist:latest")))

	_, err := newDockerRuntime(api).CreateContainer(context.Background(), runtime.RunOptions{
		Image:   "does-not-exist:latest",
		Command: []string{"true"},
	})

	require.Error(t, err)
	assert.ErrorIs(t, err, runtime.ErrImageNotFound)
	assert.Contains(t, err.Error(), "does-not-exist:latest")
}

func TestDockerRuntime_StartContainer_DoesNotRemove(t *testing.T) {
	api := &MockDockerAPI{}
	api.On("ContainerStart", mock.Anything, "abc", container.StartOptions{}).Return(errors.New("bad entrypoint"))

	err := newDockerRuntime(api).StartContainer(context.Background(), "abc")

	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to start container")
	api.AssertNotCalled(t, "ContainerRemove", mock.Anything, mock.Anything, mock.Anything)
}

func TestDockerRuntime_WaitContainer(t *testing.T) {
	tests := []struct {
		name        string
		resp        *container.WaitResponse
		err         error
		wantCode    int64
		expectError bool
	}{
		{
			name:     "exit status",
			resp:     &container.WaitResponse{StatusCode: 7},
			wantCode: 7,
		},
		{
			name:        "daemon wait error",
			resp:        &container.WaitResponse{StatusCode: 137, Error: &container.WaitExitError{Message: "killed"}},
			wantCode:    137,
			expectError: true,
		},
		{
			name:        "transport error",
			err:         errors.New("connection reset"),
			wantCode:    -1,
			expectError: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			api := &MockDockerAPI{}
			statusCh, errCh := waitChannels(tt.resp, tt.err)
			api.On("ContainerWait", mock.Anything, "abc", container.WaitConditionNotRunning).Return(statusCh, errCh)

			code, err := newDockerRuntime(api).WaitContainer(context.Background(), "abc")

			assert.Equal(t, tt.wantCode, code)
			if tt.expectError {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestDockerRuntime_WaitContainer_ContextDone(t *testing.T) {
	api := &MockDockerAPI{}
	statusCh, errCh := waitChannels(nil, nil)
	api.On("ContainerWait", mock.Anything, "abc", container.WaitConditionNotRunning).Return(statusCh, errCh)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	code, err := newDockerRuntime(api).WaitContainer(ctx, "abc")

	assert.Equal(t, int64(-1), code)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestDockerRuntime_StopContainer_RoundsGracePeriodUp(t *testing.T) {
	api := &MockDockerAPI{}
	api.On("ContainerStop", mock.Anything, "abc", mock.MatchedBy(func(opts container.StopOptions) bool {
		return opts.Timeout != nil && *opts.Timeout == 2
	})).Return(nil)

	err := newDockerRuntime(api).StopContainer(context.Background(), "abc", 1500*time.Millisecond)

	require.NoError(t, err)
	api.AssertExpectations(t)
}

func TestDockerRuntime_ContainerLogs(t *testing.T) {
	api := &MockDockerAPI{}
	api.On("ContainerLogs", mock.Anything, "abc", container.LogsOptions{ShowStdout: true, ShowStderr: true}).
		Return(multiplexed(t, "hi\n", "oops\n"), nil)

	logs, err := newDockerRuntime(api).ContainerLogs(context.Background(), "abc")

	require.NoError(t, err)
	assert.Equal(t, "hi\n", logs.Stdout)
	assert.Equal(t, "oops\n", logs.Stderr)
}

func TestDockerRuntime_ContainerLogs_CorruptStreamKeepsPartialOutput(t *testing.T) {
	full := multiplexed(t, "complete frame\n", "")
	data, err := io.ReadAll(full)
	require.NoError(t, err)

	// a second frame with an unknown stream type
	corrupt := append(data, 9, 0, 0, 0, 0, 0, 0, 1, 'x')

	api := &MockDockerAPI{}
	api.On("ContainerLogs", mock.Anything, "abc", mock.Anything).
		Return(io.NopCloser(bytes.NewReader(corrupt)), nil)

	logs, err := newDockerRuntime(api).ContainerLogs(context.Background(), "abc")

	require.Error(t, err)
	assert.Equal(t, "complete frame\n", logs.Stdout)
}

func TestDockerRuntime_RemoveContainer(t *testing.T) {
	tests := []struct {
		name      string
		removeErr error
		wantErr   error
	}{
		{name: "removed"},
		{name: "already gone", removeErr: errdefs.NotFound(errors.New("no such container")), wantErr: runtime.ErrContainerNotFound},
		{name: "daemon failure", removeErr: errors.New("device busy")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			api := &MockDockerAPI{}
			api.On("ContainerRemove", mock.Anything, "abc", container.RemoveOptions{Force: true, RemoveVolumes: true}).
				Return(tt.removeErr)

			err := newDockerRuntime(api).RemoveContainer(context.Background(), "abc")

			switch {
			case tt.removeErr == nil:
				assert.NoError(t, err)
			case tt.wantErr != nil:
				assert.ErrorIs(t, err, tt.wantErr)
			default:
				assert.ErrorContains(t, err, "failed to remove container")
			}
		})
	}
}

func TestNewDockerRuntime_RequiresDockerDaemon(t *testing.T) {
	// Succeeds when a daemon is reachable; otherwise the error must say which step failed.
	rt, err := NewDockerRuntime(context.Background())
	if err != nil {
		msg := err.Error()
		if !strings.HasPrefix(msg, "failed to create Docker client") && !strings.HasPrefix(msg, "failed to connect to Docker daemon") {
			t.Errorf("Unexpected error format: %s", msg)
		}
		return
	}
	defer rt.Close()
}

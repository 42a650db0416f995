package dependency

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// ============================================================================
// Test Doubles (Fakes)
// ============================================================================

// FakeExecutor is a test double for DependencyClient tests. It records the
// requests it receives and returns preset results.
type FakeExecutor struct {
	ResponseToReturn  CommandResponse
	ErrorToReturn     error
	ExecutedCommands  []CommandRequest
	HealthCheckCalled bool
}

func (f *FakeExecutor) ExecuteCommand(ctx context.Context, req CommandRequest) (CommandResponse, error) {
	f.ExecutedCommands = append(f.ExecutedCommands, req)
	return f.ResponseToReturn, f.ErrorToReturn
}

func (f *FakeExecutor) HealthCheck(ctx context.Context) error {
	f.HealthCheckCalled = true
	return f.ErrorToReturn
}

// ============================================================================
// DependencyClient Tests
// ============================================================================

func TestDependencyClient_DecodeAudio_Success(t *testing.T) {
	fakeExec := &FakeExecutor{
		ResponseToReturn: CommandResponse{Success: true, ExitCode: 0, Duration: 500 * time.Millisecond},
	}
	config := ExecutorConfig{
		Mode:            ModeLocal,
		WorkDir:         "/data",
		DefaultTimeout:  5 * time.Minute,
		AllowedCommands: []string{"ffmpeg", "whisper"},
	}
	client := NewClientWithExecutor(fakeExec, config)

	err := client.DecodeAudio(context.Background(), "/media/in/talk.mp3", "/data/jobs/j1/source.wav", 16000)

	assert.NoError(t, err)
	require.Len(t, fakeExec.ExecutedCommands, 1)

	cmd := fakeExec.ExecutedCommands[0]
	assert.Equal(t, "ffmpeg", cmd.Command)
	assert.Equal(t, 5*time.Minute, cmd.Timeout)
	assert.Contains(t, cmd.Args, "/media/in/talk.mp3")
	assert.Contains(t, cmd.Args, "16000")
	assert.Contains(t, cmd.Args, "pcm_s16le")
	assert.Equal(t, "/data/jobs/j1/source.wav", cmd.Args[len(cmd.Args)-1])
}

func TestDependencyClient_DecodeAudio_Failure(t *testing.T) {
	fakeExec := &FakeExecutor{
		ResponseToReturn: CommandResponse{Success: false, ExitCode: 1, Stderr: "Invalid data found when processing input"},
	}
	client := NewClientWithExecutor(fakeExec, ExecutorConfig{Mode: ModeLocal, WorkDir: "/data"})

	err := client.DecodeAudio(context.Background(), "/media/broken.mp3", "/data/out.wav", 16000)

	require.Error(t, err)
	assert.Contains(t, err.Error(), "exit code 1")
	assert.Contains(t, err.Error(), "Invalid data found")
}

func TestDependencyClient_DecodeAudio_ExecutorError(t *testing.T) {
	fakeExec := &FakeExecutor{ErrorToReturn: errors.New("ffmpeg not found")}
	client := NewClientWithExecutor(fakeExec, ExecutorConfig{Mode: ModeLocal, WorkDir: "/data"})

	err := client.DecodeAudio(context.Background(), "/media/in.mp3", "/data/out.wav", 16000)

	require.Error(t, err)
	assert.Contains(t, err.Error(), "ffmpeg not found")
}

func TestDependencyClient_DecodeAudio_RejectsTraversal(t *testing.T) {
	fakeExec := &FakeExecutor{}
	client := NewClientWithExecutor(fakeExec, ExecutorConfig{Mode: ModeLocal, WorkDir: "/data"})

	err := client.DecodeAudio(context.Background(), "/media/../etc/passwd", "/data/out.wav", 16000)

	require.Error(t, err)
	assert.Contains(t, err.Error(), "validation failed")
	assert.Empty(t, fakeExec.ExecutedCommands, "rejected requests must not reach the executor")
}

func TestDependencyClient_HealthCheck(t *testing.T) {
	fakeExec := &FakeExecutor{}
	client := NewClientWithExecutor(fakeExec, ExecutorConfig{Mode: ModeLocal})

	assert.NoError(t, client.HealthCheck(context.Background()))
	assert.True(t, fakeExec.HealthCheckCalled)

	fakeExec.ErrorToReturn = errors.New("ffmpeg missing")
	assert.Error(t, client.HealthCheck(context.Background()))
}

func TestNewClient_Modes(t *testing.T) {
	client, err := NewClient(ExecutorConfig{WorkDir: "/data"})
	require.NoError(t, err)
	assert.Equal(t, ModeLocal, client.Config().Mode)
	assert.Equal(t, "/data", client.PathManager().BaseDir())

	_, err = NewClient(ExecutorConfig{Mode: "remote"})
	assert.Error(t, err)
}

// ============================================================================
// LocalExecutor Tests
// ============================================================================

func TestLocalExecutor_ExecuteCommand(t *testing.T) {
	tests := []struct {
		name         string
		req          CommandRequest
		wantErr      bool
		wantExitCode int
		wantTimeout  bool
	}{
		{
			name:         "echo succeeds",
			req:          CommandRequest{Command: "echo", Args: []string{"hello", "world"}, Timeout: 5 * time.Second},
			wantExitCode: 0,
		},
		{
			name:    "missing command",
			req:     CommandRequest{Command: "nonexistent_command_12345_xyz", Timeout: 5 * time.Second},
			wantErr: true,
		},
		{
			name:         "non-zero exit",
			req:          CommandRequest{Command: "sh", Args: []string{"-c", "exit 3"}, Timeout: 5 * time.Second},
			wantErr:      true,
			wantExitCode: 3,
		},
		{
			name:        "timeout",
			req:         CommandRequest{Command: "sleep", Args: []string{"3"}, Timeout: 100 * time.Millisecond},
			wantErr:     true,
			wantTimeout: true,
		},
	}

	executor := NewLocalExecutor(ExecutorConfig{Mode: ModeLocal, WorkDir: os.TempDir(), DefaultTimeout: 5 * time.Second})

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, err := executor.ExecuteCommand(context.Background(), tt.req)

			if !tt.wantErr {
				require.NoError(t, err)
				assert.Equal(t, tt.wantExitCode, resp.ExitCode)
				assert.True(t, resp.Success)
				assert.Equal(t, "hello world\n", resp.Stdout)
				return
			}

			require.Error(t, err)
			assert.False(t, resp.Success)
			if tt.wantTimeout {
				assert.Contains(t, err.Error(), "timeout")
			}
			if tt.wantExitCode != 0 {
				assert.Equal(t, tt.wantExitCode, resp.ExitCode)
			}
		})
	}
}

func TestLocalExecutor_CancelStopsCommand(t *testing.T) {
	executor := NewLocalExecutor(ExecutorConfig{Mode: ModeLocal})

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(100 * time.Millisecond)
		cancel()
	}()

	start := time.Now()
	_, err := executor.ExecuteCommand(ctx, CommandRequest{Command: "sleep", Args: []string{"10"}})

	require.Error(t, err)
	assert.Contains(t, err.Error(), "cancelled")
	assert.Less(t, time.Since(start), 5*time.Second)
}

func TestLocalExecutor_HealthCheck(t *testing.T) {
	ok := NewLocalExecutor(ExecutorConfig{LocalBinaryPaths: map[string]string{"echo": "echo"}})
	assert.NoError(t, ok.HealthCheck(context.Background()))

	missing := NewLocalExecutor(ExecutorConfig{LocalBinaryPaths: map[string]string{"fake": "/path/to/nonexistent/binary"}})
	err := missing.HealthCheck(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not available")
}

// ============================================================================
// PathManager Tests
// ============================================================================

func TestPathManager_Layout(t *testing.T) {
	pm := NewPathManager("/data")

	assert.Equal(t, "/data", pm.BaseDir())
	assert.Equal(t, "chunk_0005", pm.GetChunkBasename(5))
	assert.Equal(t, "/w/chunk_0012.wav", pm.GetChunkAudioPath("/w", 12))
}

func TestGetTranscriptPath(t *testing.T) {
	assert.Equal(t, "/in/talk.txt", GetTranscriptPath("/in/talk.mp3", ""))
	assert.Equal(t, "/out/talk.v2.txt", GetTranscriptPath("/in/talk.v2.opus", "/out"))
	assert.Equal(t, "/in/noext.txt", GetTranscriptPath("/in/noext", ""))
}

func TestPathManager_ValidatePath(t *testing.T) {
	base := t.TempDir()
	pm := NewPathManager(base)

	assert.NoError(t, pm.ValidatePath(filepath.Join(base, "jobs", "j1")))
	assert.Error(t, pm.ValidatePath("/somewhere/else"))
	assert.Error(t, pm.ValidatePath(base+"-sibling"))
	assert.Error(t, pm.ValidatePath(filepath.Join(base, "jobs", "..", "..", "x")))
}

func TestPathManager_EnsureDir(t *testing.T) {
	base := t.TempDir()
	pm := NewPathManager(base)

	dir, err := pm.EnsureDir(filepath.Join(base, "decode-1"))
	require.NoError(t, err)
	info, err := os.Stat(dir)
	require.NoError(t, err)
	assert.True(t, info.IsDir())

	_, err = pm.EnsureDir(filepath.Join(base, "..", "escape"))
	assert.Error(t, err)
}

// ============================================================================
// Validator Tests
// ============================================================================

func TestValidateCommandRequest(t *testing.T) {
	config := ExecutorConfig{WorkDir: "/data", AllowedCommands: []string{"ffmpeg"}}

	tests := []struct {
		name    string
		req     CommandRequest
		wantErr string
	}{
		{name: "allowed", req: CommandRequest{Command: "ffmpeg", Args: []string{"-i", "/media/a.mp3"}}},
		{name: "double dot inside file name", req: CommandRequest{Command: "ffmpeg", Args: []string{"/media/take..2.mp3"}}},
		{name: "not whitelisted", req: CommandRequest{Command: "rm"}, wantErr: "whitelist"},
		{name: "traversal", req: CommandRequest{Command: "ffmpeg", Args: []string{"../secret.wav"}}, wantErr: "traversal"},
		{name: "system dir", req: CommandRequest{Command: "ffmpeg", Args: []string{"/etc/shadow"}}, wantErr: "forbidden"},
		{name: "device prefix lookalike", req: CommandRequest{Command: "ffmpeg", Args: []string{"/devices/a.wav"}}},
		{name: "working dir outside", req: CommandRequest{Command: "ffmpeg", WorkingDir: "/tmp/x"}, wantErr: "working directory"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateCommandRequest(tt.req, config)
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.True(t, strings.Contains(err.Error(), tt.wantErr), "error %q should mention %q", err, tt.wantErr)
		})
	}
}

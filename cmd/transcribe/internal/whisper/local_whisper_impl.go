package whisper

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"sync"
	"time"

	"github.com/houzhh15/aidg-transcribe/cmd/transcribe/internal/audio"
	"github.com/houzhh15/aidg-transcribe/cmd/transcribe/internal/dependency"
	"github.com/houzhh15/aidg-transcribe/pkg/logger"
)

// CommandName is the dependency alias of the whisper CLI. The executor config
// maps it to the program path through LocalBinaryPaths.
const CommandName = "whisper"

// LocalWhisperImpl implements Backend for a local whisper executable
// (e.g., a whisper.cpp build exposing `transcribe <model> <audio> --format json`).
// Commands go through the dependency client so they are validated, timed
// and killed with their process group on cancellation.
type LocalWhisperImpl struct {
	client      *dependency.DependencyClient
	programPath string // Resolved path of the whisper executable
	modelDir    string // Directory containing GGML model files; empty skips the file check
	logger      *slog.Logger
}

// NewLocalWhisperImpl creates a new LocalWhisperImpl with startup validation.
//
// Parameters:
//   - client: Dependency client whose config maps CommandName to the program
//   - modelDir: Directory containing ggml-*.bin models (optional)
//
// Startup validation:
//   - Checks program file existence using os.Stat
//   - Verifies executable permission bits (Unix mode 0111)
func NewLocalWhisperImpl(client *dependency.DependencyClient, modelDir string, l *slog.Logger) (*LocalWhisperImpl, error) {
	programPath := client.Config().LocalBinaryPaths[CommandName]
	if programPath == "" {
		programPath = CommandName
	}
	if !filepath.IsAbs(programPath) {
		resolved, err := exec.LookPath(programPath)
		if err != nil {
			return nil, fmt.Errorf("whisper program not found: %s", programPath)
		}
		programPath = resolved
	}

	info, err := os.Stat(programPath)
	if os.IsNotExist(err) {
		return nil, fmt.Errorf("whisper program not found: %s", programPath)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to stat whisper program: %w", err)
	}
	if info.Mode()&0111 == 0 {
		return nil, fmt.Errorf("whisper program is not executable: %s (mode: %s)", programPath, info.Mode())
	}

	return &LocalWhisperImpl{
		client:      client,
		programPath: programPath,
		modelDir:    modelDir,
		logger:      logger.OrDefault(l).With("component", "local-whisper"),
	}, nil
}

// Initialize checks the model file and gives the instance a private scratch
// directory for chunk WAVs.
func (l *LocalWhisperImpl) Initialize(ctx context.Context, model string) (Transcriber, error) {
	model = NormalizeModel(model)

	if l.modelDir != "" {
		modelFile := filepath.Join(l.modelDir, model+".bin")
		if _, err := os.Stat(modelFile); err != nil {
			return nil, fmt.Errorf("local-whisper initialize: model file %s: %w", modelFile, err)
		}
	}

	pm := l.client.PathManager()
	if _, err := pm.EnsureDir(pm.BaseDir()); err != nil {
		return nil, fmt.Errorf("local-whisper initialize: %w", err)
	}
	dir, err := os.MkdirTemp(pm.BaseDir(), "whisper-")
	if err != nil {
		return nil, fmt.Errorf("local-whisper initialize: create scratch dir: %w", err)
	}

	return &localWhisperSession{impl: l, model: model, dir: dir}, nil
}

// HealthCheck runs `whisper version` (subcommand, not --version flag).
func (l *LocalWhisperImpl) HealthCheck(ctx context.Context) (bool, error) {
	resp, err := l.client.ExecuteCommand(ctx, dependency.CommandRequest{
		Command: CommandName,
		Args:    []string{"version"},
		Timeout: 10 * time.Second,
	})
	if err != nil {
		return false, fmt.Errorf("version check failed: %w, output: %s", err, resp.Stderr)
	}
	if resp.Stdout == "" && resp.Stderr == "" {
		return false, fmt.Errorf("unexpected empty version output")
	}
	return true, nil
}

// Name returns the identifier of this backend.
func (l *LocalWhisperImpl) Name() string {
	return "local-whisper"
}

// localWhisperSession owns one scratch directory; chunk files never collide
// across workers.
type localWhisperSession struct {
	impl  *LocalWhisperImpl
	model string
	dir   string
	seq   int

	closeOnce sync.Once
	closed    bool
}

// Transcribe writes samples to a WAV in the session directory and runs:
//
//	whisper transcribe <model> <wav> --format json --temperature T [--language L] [--prompt P]
func (s *localWhisperSession) Transcribe(ctx context.Context, samples []float32, sampleRate int, options *TranscribeOptions) (*TranscriptionResult, error) {
	if s.closed {
		return nil, errSessionClosed
	}
	ctx, cancel := withTimeout(ctx, options)
	defer cancel()

	wavPath := s.impl.client.PathManager().GetChunkAudioPath(s.dir, s.seq)
	s.seq++
	f, err := os.Create(wavPath)
	if err != nil {
		return nil, fmt.Errorf("create chunk wav: %w", err)
	}
	encErr := audio.EncodeWAV(f, audio.Buffer{Samples: samples, SampleRate: sampleRate})
	closeErr := f.Close()
	if err := errors.Join(encErr, closeErr); err != nil {
		return nil, fmt.Errorf("write chunk wav: %w", err)
	}
	defer os.Remove(wavPath)

	args := []string{"transcribe", s.model, wavPath, "--format", "json"}
	temperature := 0.0
	if options != nil && options.Temperature > 0 {
		temperature = options.Temperature
	}
	args = append(args, "--temperature", fmt.Sprintf("%.1f", temperature))
	if options != nil && options.Language != "" {
		args = append(args, "--language", options.Language)
	}
	if options != nil && options.Prompt != "" {
		args = append(args, "--prompt", options.Prompt)
	}

	resp, err := s.impl.client.ExecuteCommand(ctx, dependency.CommandRequest{
		Command: CommandName,
		Args:    args,
	})
	if err != nil {
		return nil, fmt.Errorf("CLI execution failed: %w, output: %s", err, resp.Stderr)
	}

	result, err := parseSegmentStream([]byte(resp.Stdout))
	if err != nil {
		return nil, err
	}
	s.impl.logger.Debug("transcribed", "model", s.model, "segments", len(result.Segments), "elapsed", resp.Duration)
	return result, nil
}

func (s *localWhisperSession) Close() error {
	var err error
	s.closeOnce.Do(func() {
		s.closed = true
		err = os.RemoveAll(s.dir)
	})
	return err
}

// parseSegmentStream decodes the CLI output: a sequence of JSON segment
// objects, pretty-printed and not strictly one per line. Empty output means
// silence.
func parseSegmentStream(output []byte) (*TranscriptionResult, error) {
	result := &TranscriptionResult{Segments: []TranscriptionSegment{}}

	decoder := json.NewDecoder(bytes.NewReader(output))
	for {
		var segment TranscriptionSegment
		if err := decoder.Decode(&segment); err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			return nil, fmt.Errorf("failed to parse JSON segment: %w", err)
		}
		result.Segments = append(result.Segments, segment)
	}

	if n := len(result.Segments); n > 0 {
		result.Duration = result.Segments[n-1].End
	}
	result.Text = result.FullText()
	return result, nil
}

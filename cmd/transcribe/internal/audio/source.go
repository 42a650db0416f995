package audio

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/houzhh15/aidg-transcribe/cmd/transcribe/internal/dependency"
	"github.com/houzhh15/aidg-transcribe/pkg/logger"
)

// Source decodes a media file into a mono buffer at a fixed rate.
type Source interface {
	Load(ctx context.Context, path string) (Buffer, error)
}

// FFmpegSource loads audio through ffmpeg. WAV files already in 16-bit PCM
// or float at the target rate are decoded in-process.
type FFmpegSource struct {
	client     *dependency.DependencyClient
	sampleRate int
	logger     *slog.Logger
}

// NewFFmpegSource creates a source that resamples everything to sampleRate.
// A sampleRate <= 0 selects DefaultSampleRate.
func NewFFmpegSource(client *dependency.DependencyClient, sampleRate int, l *slog.Logger) *FFmpegSource {
	if sampleRate <= 0 {
		sampleRate = DefaultSampleRate
	}
	return &FFmpegSource{
		client:     client,
		sampleRate: sampleRate,
		logger:     logger.OrDefault(l).With("component", "audio"),
	}
}

// SampleRate returns the rate every loaded buffer has.
func (s *FFmpegSource) SampleRate() int {
	return s.sampleRate
}

// Load decodes path into a mono buffer at the source rate.
func (s *FFmpegSource) Load(ctx context.Context, path string) (Buffer, error) {
	start := time.Now()

	if strings.EqualFold(filepath.Ext(path), ".wav") {
		buf, err := s.loadWAVDirect(path)
		if err == nil {
			s.logger.Debug("decoded wav in-process", "path", path, "samples", buf.Len(), "elapsed", time.Since(start))
			return buf, nil
		}
		if !errors.Is(err, ErrUnsupportedWAV) {
			return Buffer{}, err
		}
		s.logger.Debug("wav needs conversion, using ffmpeg", "path", path, "reason", err)
	}

	buf, err := s.loadViaFFmpeg(ctx, path)
	if err != nil {
		return Buffer{}, err
	}
	s.logger.Info("decoded audio", "path", path, "duration_s", buf.Duration(), "elapsed", time.Since(start))
	return buf, nil
}

func (s *FFmpegSource) loadWAVDirect(path string) (Buffer, error) {
	f, err := os.Open(path)
	if err != nil {
		return Buffer{}, fmt.Errorf("open audio file: %w", err)
	}
	defer f.Close()

	buf, info, err := DecodeWAV(f)
	if err != nil {
		return Buffer{}, err
	}
	if info.SampleRate != s.sampleRate {
		return Buffer{}, fmt.Errorf("%w: sample rate %d, want %d", ErrUnsupportedWAV, info.SampleRate, s.sampleRate)
	}
	return buf, nil
}

func (s *FFmpegSource) loadViaFFmpeg(ctx context.Context, path string) (Buffer, error) {
	pm := s.client.PathManager()
	if _, err := pm.EnsureDir(pm.BaseDir()); err != nil {
		return Buffer{}, fmt.Errorf("prepare work dir: %w", err)
	}
	tmpDir, err := os.MkdirTemp(pm.BaseDir(), "decode-")
	if err != nil {
		return Buffer{}, fmt.Errorf("create decode dir: %w", err)
	}
	defer os.RemoveAll(tmpDir)

	absPath, err := filepath.Abs(path)
	if err != nil {
		return Buffer{}, fmt.Errorf("resolve audio path: %w", err)
	}

	out := filepath.Join(tmpDir, "decoded.wav")
	if err := s.client.DecodeAudio(ctx, absPath, out, s.sampleRate); err != nil {
		return Buffer{}, err
	}

	f, err := os.Open(out)
	if err != nil {
		return Buffer{}, fmt.Errorf("open decoded audio: %w", err)
	}
	defer f.Close()

	buf, _, err := DecodeWAV(f)
	if err != nil {
		return Buffer{}, fmt.Errorf("read decoded audio: %w", err)
	}
	return buf, nil
}

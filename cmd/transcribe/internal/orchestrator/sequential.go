package orchestrator

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/houzhh15/aidg-transcribe/cmd/transcribe/internal/audio"
	"github.com/houzhh15/aidg-transcribe/cmd/transcribe/internal/metrics"
	"github.com/houzhh15/aidg-transcribe/cmd/transcribe/internal/whisper"
	"github.com/houzhh15/aidg-transcribe/pkg/logger"
)

// SequentialEngine transcribes a whole recording in one call on a single
// model instance, keeping full cross-segment context.
type SequentialEngine struct {
	transcriber whisper.Transcriber
	options     whisper.TranscribeOptions
	logger      *slog.Logger
}

// NewSequentialEngine wraps an initialized instance. The caller owns t and
// closes it.
func NewSequentialEngine(t whisper.Transcriber, options whisper.TranscribeOptions, l *slog.Logger) *SequentialEngine {
	return &SequentialEngine{
		transcriber: t,
		options:     options,
		logger:      logger.OrDefault(l).With("component", "sequential"),
	}
}

// TranscribeWhole returns the text of buf. There is no partial result: any
// failure fails the whole call.
func (e *SequentialEngine) TranscribeWhole(ctx context.Context, buf audio.Buffer) (text string, err error) {
	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			text, err = "", fmt.Errorf("transcriber panic: %v", r)
		}
		elapsed := time.Since(start)
		metrics.RecordDuration("sequential", elapsed.Seconds())
		metrics.RecordChunkProcessed("sequential", err == nil)
		if err != nil {
			logger.LogChunkProcessing(e.logger, "sequential", "error", 0, elapsed.Milliseconds(), string(SEQUENTIAL_TRANSCRIPTION_ERROR))
			return
		}
		logger.LogChunkProcessing(e.logger, "sequential", "success", 0, elapsed.Milliseconds(), "")
	}()

	opts := e.options
	result, err := e.transcriber.Transcribe(ctx, buf.Samples, buf.SampleRate, &opts)
	if err != nil {
		return "", err
	}
	return result.FullText(), nil
}

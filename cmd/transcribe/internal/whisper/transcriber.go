// Package whisper provides an abstraction layer over Whisper speech recognition
// backends. A Backend loads model instances; each instance (Transcriber) is
// owned by exactly one worker and turns a run of samples into text.
//
// Implementations: go-whisper over HTTP, a local whisper CLI program, and a
// scriptable mock used for dry runs and tests.
package whisper

import (
	"context"
	"strings"
	"time"
)

// TranscriptionSegment represents a single segment of transcribed audio with timing information.
// Each segment corresponds to a continuous speech interval in the audio.
type TranscriptionSegment struct {
	// ID is the sequential identifier of this segment within the transcription
	ID int `json:"id"`

	// Start is the beginning time of this segment in seconds from the audio start
	Start float64 `json:"start"`

	// End is the ending time of this segment in seconds from the audio start
	End float64 `json:"end"`

	// Text is the transcribed text content of this segment
	Text string `json:"text"`
}

// TranscriptionResult represents the complete result of a transcription call.
type TranscriptionResult struct {
	// Segments is the list of all transcribed segments with timing information
	Segments []TranscriptionSegment `json:"segments"`

	// Text is the complete transcribed text. Some backends leave it empty and
	// only fill Segments; use FullText to read either.
	Text string `json:"text"`

	// Language is the detected or specified language code (e.g., "en", "ru")
	Language string `json:"language"`

	// Duration is the total duration of the audio in seconds
	Duration float64 `json:"duration"`
}

// FullText returns Text, or the trimmed segment texts joined by single
// spaces when Text is empty.
func (r *TranscriptionResult) FullText() string {
	if r == nil {
		return ""
	}
	if text := strings.TrimSpace(r.Text); text != "" {
		return text
	}
	parts := make([]string, 0, len(r.Segments))
	for _, seg := range r.Segments {
		if text := strings.TrimSpace(seg.Text); text != "" {
			parts = append(parts, text)
		}
	}
	return strings.Join(parts, " ")
}

// Backend is a source of Transcriber instances.
//
// Initialize is the expensive step (a model load, a model availability check)
// and is called once per worker, never once per chunk.
type Backend interface {
	// Initialize prepares one independent Transcriber for the given model.
	//
	// Parameters:
	//   - ctx: Context for cancellation of the load
	//   - model: Model identifier (e.g., "small", "ggml-large-v3")
	//
	// Returns:
	//   - Transcriber: A ready instance, owned by the caller until Close
	//   - error: Non-nil when the model cannot be loaded or the backend is unreachable
	Initialize(ctx context.Context, model string) (Transcriber, error)

	// HealthCheck verifies that the backend is operational.
	//
	// Returns:
	//   - bool: true if the backend can serve transcription requests
	//   - error: Non-nil if the health check itself failed (network error, program missing)
	//
	// Implementation notes:
	//   - Should be lightweight and fast (< 10 seconds)
	//   - MockBackend reports whatever it was configured with
	HealthCheck(ctx context.Context) (bool, error)

	// Name returns the human-readable identifier of this backend
	// (e.g., "go-whisper", "local-whisper", "mock").
	Name() string
}

// Transcriber is one loaded model instance. It is not safe for concurrent
// use: a worker issues one Transcribe call at a time.
type Transcriber interface {
	// Transcribe recognises speech in samples.
	//
	// Parameters:
	//   - ctx: Context for timeout control and cancellation
	//   - samples: Mono samples normalised to [-1, 1]
	//   - sampleRate: Rate of samples in Hz (16000 expected by whisper)
	//   - options: Optional parameters (language, prompt, temperature)
	//
	// Implementation notes:
	//   - Must respect context timeout and cancellation
	//   - Silence yields a valid result with empty text, not an error
	Transcribe(ctx context.Context, samples []float32, sampleRate int, options *TranscribeOptions) (*TranscriptionResult, error)

	// Close releases the instance. Calling Close twice is safe.
	Close() error
}

// TranscribeOptions defines optional parameters for the Transcribe operation.
// All fields are optional; implementations should provide sensible defaults.
type TranscribeOptions struct {
	// Language forces transcription in a specific language (ISO 639-1 code, e.g., "ru", "en").
	// Empty string means auto-detection.
	Language string

	// Prompt provides context to improve transcription accuracy (optional).
	Prompt string

	// Temperature controls sampling; 0 reduces hallucinations and repetitions.
	Temperature float64

	// Timeout bounds a single call when > 0, on top of ctx.
	Timeout time.Duration
}

// NormalizeModel maps a short model name to the GGML identifier both go-whisper
// and whisper.cpp use: "small" -> "ggml-small", "ggml-base.bin" -> "ggml-base".
func NormalizeModel(model string) string {
	model = strings.TrimSpace(model)
	if model == "" {
		model = "small"
	}
	model = strings.TrimSuffix(model, ".bin")
	if !strings.HasPrefix(model, "ggml-") {
		model = "ggml-" + model
	}
	return model
}

// withTimeout applies options.Timeout to ctx.
func withTimeout(ctx context.Context, options *TranscribeOptions) (context.Context, context.CancelFunc) {
	if options != nil && options.Timeout > 0 {
		return context.WithTimeout(ctx, options.Timeout)
	}
	return context.WithCancel(ctx)
}

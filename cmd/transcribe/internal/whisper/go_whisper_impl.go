package whisper

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"strings"
	"sync/atomic"
	"time"

	"github.com/houzhh15/aidg-transcribe/cmd/transcribe/internal/audio"
	"github.com/houzhh15/aidg-transcribe/pkg/logger"
)

// errSessionClosed is returned by Transcribe after Close.
var errSessionClosed = errors.New("transcriber is closed")

// GoWhisperImpl implements Backend for the go-whisper HTTP service
// (ghcr.io/mutablelogic/go-whisper). Audio is posted as an in-memory WAV in a
// multipart/form-data request.
type GoWhisperImpl struct {
	apiURL     string       // Base URL of the go-whisper service (e.g., "http://localhost:8082")
	httpClient *http.Client // Shared by every session; http.Client is safe for concurrent use
	logger     *slog.Logger
}

// NewGoWhisperImpl creates a new GoWhisperImpl instance with the specified API URL.
//
// The HTTP client is configured with a 10-minute timeout: transcription time is
// roughly equal to audio duration and a sequential job posts the whole file.
func NewGoWhisperImpl(apiURL string, l *slog.Logger) *GoWhisperImpl {
	return &GoWhisperImpl{
		apiURL: strings.TrimRight(apiURL, "/"),
		httpClient: &http.Client{
			Timeout: 10 * time.Minute,
		},
		logger: logger.OrDefault(l).With("component", "go-whisper"),
	}
}

// modelList is the subset of the GET /api/whisper/model response we read.
type modelList struct {
	Models []struct {
		ID string `json:"id"`
	} `json:"models"`
}

// Initialize checks that the service knows the model and returns a session
// bound to it.
//
// API endpoint: GET {apiURL}/api/whisper/model
// Reference: https://github.com/mutablelogic/go-whisper/blob/main/doc/API.md#models
func (g *GoWhisperImpl) Initialize(ctx context.Context, model string) (Transcriber, error) {
	model = NormalizeModel(model)

	models, err := g.listModels(ctx)
	if err != nil {
		return nil, fmt.Errorf("go-whisper initialize: %w", err)
	}
	if len(models) > 0 && !containsModel(models, model) {
		return nil, fmt.Errorf("go-whisper initialize: model %s not available (have %s)", model, strings.Join(models, ", "))
	}

	g.logger.Debug("session initialized", "model", model)
	return &goWhisperSession{impl: g, model: model}, nil
}

func (g *GoWhisperImpl) listModels(ctx context.Context) ([]string, error) {
	endpoint := fmt.Sprintf("%s/api/whisper/model", g.apiURL)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create model list request: %w", err)
	}

	resp, err := g.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("model list request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("model list returned status %d: %s", resp.StatusCode, string(body))
	}

	var list modelList
	if err := json.NewDecoder(resp.Body).Decode(&list); err != nil {
		// Older builds answer with a different shape; availability is then
		// discovered on the first transcription.
		g.logger.Warn("unrecognised model list response", "error", err)
		return nil, nil
	}

	ids := make([]string, 0, len(list.Models))
	for _, m := range list.Models {
		ids = append(ids, NormalizeModel(m.ID))
	}
	return ids, nil
}

func containsModel(models []string, model string) bool {
	for _, m := range models {
		if m == model {
			return true
		}
	}
	return false
}

// HealthCheck verifies that the go-whisper service is operational.
//
// Implementation:
//   - Sends GET request to /api/whisper/model endpoint (go-whisper standard)
//   - Returns true if service responds with 200 OK
func (g *GoWhisperImpl) HealthCheck(ctx context.Context) (bool, error) {
	endpoint := fmt.Sprintf("%s/api/whisper/model", g.apiURL)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return false, fmt.Errorf("failed to create health check request: %w", err)
	}

	resp, err := g.httpClient.Do(req)
	if err != nil {
		return false, fmt.Errorf("health check request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusOK {
		return true, nil
	}

	return false, fmt.Errorf("health check failed: status %d", resp.StatusCode)
}

// Name returns the identifier of this backend.
func (g *GoWhisperImpl) Name() string {
	return "go-whisper"
}

// goWhisperSession is one worker's handle on the service.
type goWhisperSession struct {
	impl   *GoWhisperImpl
	model  string
	calls  atomic.Int64
	closed atomic.Bool
}

// Transcribe posts samples as a WAV file to go-whisper.
//
// API endpoint: POST {apiURL}/api/whisper/transcribe
// Reference: https://github.com/mutablelogic/go-whisper/blob/main/doc/API.md#transcription
func (s *goWhisperSession) Transcribe(ctx context.Context, samples []float32, sampleRate int, options *TranscribeOptions) (*TranscriptionResult, error) {
	if s.closed.Load() {
		return nil, errSessionClosed
	}
	ctx, cancel := withTimeout(ctx, options)
	defer cancel()

	wav, err := audio.EncodeWAVBytes(audio.Buffer{Samples: samples, SampleRate: sampleRate})
	if err != nil {
		return nil, fmt.Errorf("failed to encode audio: %w", err)
	}

	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)

	// go-whisper API uses the 'audio' field name
	part, err := writer.CreateFormFile("audio", fmt.Sprintf("chunk_%04d.wav", s.calls.Add(1)))
	if err != nil {
		return nil, fmt.Errorf("failed to create form file: %w", err)
	}
	if _, err := part.Write(wav); err != nil {
		return nil, fmt.Errorf("failed to copy audio data: %w", err)
	}

	fields := map[string]string{
		"model":           s.model,
		"response_format": "json",
		"temperature":     "0.0",
	}
	if options != nil {
		if options.Language != "" {
			fields["language"] = options.Language
		}
		if options.Temperature > 0 {
			fields["temperature"] = fmt.Sprintf("%.1f", options.Temperature)
		}
		if options.Prompt != "" {
			fields["prompt"] = options.Prompt
		}
	}
	for name, value := range fields {
		if err := writer.WriteField(name, value); err != nil {
			return nil, fmt.Errorf("failed to write %s field: %w", name, err)
		}
	}

	if err := writer.Close(); err != nil {
		return nil, fmt.Errorf("failed to close multipart writer: %w", err)
	}

	endpoint := fmt.Sprintf("%s/api/whisper/transcribe", s.impl.apiURL)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, body)
	if err != nil {
		return nil, fmt.Errorf("failed to create HTTP request: %w", err)
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())

	start := time.Now()
	resp, err := s.impl.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("HTTP request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		bodyBytes, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("API returned status %d: %s", resp.StatusCode, string(bodyBytes))
	}

	var result TranscriptionResult
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("failed to parse JSON response: %w", err)
	}

	s.impl.logger.Debug("transcribed",
		"model", s.model,
		"samples", len(samples),
		"segments", len(result.Segments),
		"elapsed", time.Since(start))
	return &result, nil
}

func (s *goWhisperSession) Close() error {
	s.closed.Store(true)
	return nil
}

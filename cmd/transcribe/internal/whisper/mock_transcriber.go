package whisper

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/houzhh15/aidg-transcribe/pkg/logger"
)

// MockBackend is a scriptable Backend. With no hooks set it behaves like a
// dry run: every instance initializes and every call returns empty text.
// The CLI exposes it as backend "mock" to exercise the pipeline without a model.
type MockBackend struct {
	// BackendName overrides Name(); default "mock".
	BackendName string

	// InitFunc, when set, is called with the 1-based initialization sequence
	// number; a non-nil error fails that initialization.
	InitFunc func(ctx context.Context, seq int) error

	// TranscribeFunc, when set, produces the text for a call.
	TranscribeFunc func(ctx context.Context, samples []float32, sampleRate int) (string, error)

	Logger *slog.Logger

	healthy     atomic.Bool
	healthSet   atomic.Bool
	inits       atomic.Int64
	initFails   atomic.Int64
	closes      atomic.Int64
	calls       atomic.Int64
	mu          sync.Mutex
	overlapping bool
}

// NewMockBackend creates a healthy dry-run backend.
func NewMockBackend() *MockBackend {
	m := &MockBackend{}
	m.SetHealthy(true)
	return m
}

// SetHealthy controls the HealthCheck answer.
func (m *MockBackend) SetHealthy(healthy bool) {
	m.healthy.Store(healthy)
	m.healthSet.Store(true)
}

// Initialize returns a new MockTranscriber unless InitFunc rejects it.
func (m *MockBackend) Initialize(ctx context.Context, model string) (Transcriber, error) {
	seq := int(m.inits.Add(1))
	if err := ctx.Err(); err != nil {
		m.initFails.Add(1)
		return nil, err
	}
	if m.InitFunc != nil {
		if err := m.InitFunc(ctx, seq); err != nil {
			m.initFails.Add(1)
			return nil, err
		}
	}
	return &MockTranscriber{backend: m, model: NormalizeModel(model)}, nil
}

// HealthCheck reports the configured health; a fresh zero-value backend is healthy.
func (m *MockBackend) HealthCheck(ctx context.Context) (bool, error) {
	if !m.healthSet.Load() {
		return true, nil
	}
	return m.healthy.Load(), nil
}

// Name returns BackendName or "mock".
func (m *MockBackend) Name() string {
	if m.BackendName != "" {
		return m.BackendName
	}
	return "mock"
}

// Inits returns how many Initialize calls were made.
func (m *MockBackend) Inits() int { return int(m.inits.Load()) }

// Live returns how many successfully initialized instances are not closed yet.
func (m *MockBackend) Live() int {
	return int(m.inits.Load() - m.initFails.Load() - m.closes.Load())
}

// Calls returns how many Transcribe calls were made across all instances.
func (m *MockBackend) Calls() int { return int(m.calls.Load()) }

// Overlapped reports whether any instance ever served two calls at once.
func (m *MockBackend) Overlapped() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.overlapping
}

// MockTranscriber is one instance handed out by MockBackend.
type MockTranscriber struct {
	backend *MockBackend
	model   string
	busy    atomic.Bool
	closed  atomic.Bool
}

// Transcribe runs TranscribeFunc, or returns an empty result in dry-run mode.
func (t *MockTranscriber) Transcribe(ctx context.Context, samples []float32, sampleRate int, options *TranscribeOptions) (*TranscriptionResult, error) {
	if t.closed.Load() {
		return nil, errSessionClosed
	}
	if !t.busy.CompareAndSwap(false, true) {
		t.backend.mu.Lock()
		t.backend.overlapping = true
		t.backend.mu.Unlock()
		return nil, errors.New("mock transcriber used concurrently")
	}
	defer t.busy.Store(false)
	t.backend.calls.Add(1)

	ctx, cancel := withTimeout(ctx, options)
	defer cancel()

	if t.backend.TranscribeFunc == nil {
		logger.OrDefault(t.backend.Logger).Warn("mock backend returns empty transcription", "samples", len(samples))
		return &TranscriptionResult{Segments: []TranscriptionSegment{}, Language: "unknown"}, nil
	}

	text, err := t.backend.TranscribeFunc(ctx, samples, sampleRate)
	if err != nil {
		return nil, err
	}
	return &TranscriptionResult{
		Text:     text,
		Segments: []TranscriptionSegment{{ID: 0, Start: 0, End: float64(len(samples)) / float64(max(sampleRate, 1)), Text: text}},
		Duration: float64(len(samples)) / float64(max(sampleRate, 1)),
	}, nil
}

// Close marks the instance closed; the second call is a no-op.
func (t *MockTranscriber) Close() error {
	if t.closed.CompareAndSwap(false, true) {
		t.backend.closes.Add(1)
	}
	return nil
}

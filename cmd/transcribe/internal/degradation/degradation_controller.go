// Package degradation switches jobs between a primary and a fallback
// transcription backend based on the primary's health.
package degradation

import (
	"log/slog"
	"sync"

	"github.com/houzhh15/aidg-transcribe/cmd/transcribe/internal/health"
	"github.com/houzhh15/aidg-transcribe/cmd/transcribe/internal/whisper"
	"github.com/houzhh15/aidg-transcribe/pkg/logger"
	"github.com/houzhh15/aidg-transcribe/pkg/metrics"
)

// DegradationController picks the backend each job initializes its workers
// from: the primary (e.g., go-whisper) while it is healthy, otherwise the
// fallback (e.g., local-whisper). Switches happen between jobs, never inside
// one, because workers bind to a backend at initialization.
//
// Thread-safety: All public methods are thread-safe via sync.Mutex.
type DegradationController struct {
	primary       whisper.Backend
	fallback      whisper.Backend
	healthChecker *health.HealthChecker
	logger        *slog.Logger

	mu         sync.Mutex
	current    whisper.Backend
	isDegraded bool
}

// NewDegradationController creates a controller starting on the primary
// backend (optimistic assumption of health).
func NewDegradationController(primary, fallback whisper.Backend, hc *health.HealthChecker, l *slog.Logger) *DegradationController {
	return &DegradationController{
		primary:       primary,
		fallback:      fallback,
		healthChecker: hc,
		current:       primary,
		logger:        logger.OrDefault(l).With("component", "degradation"),
	}
}

// GetBackend returns the backend to use now, switching to the fallback when
// the primary is unhealthy and back when it recovers.
func (dc *DegradationController) GetBackend() whisper.Backend {
	status := dc.healthChecker.GetStatus()

	dc.mu.Lock()
	defer dc.mu.Unlock()

	if !status.IsHealthy && !dc.isDegraded {
		dc.logger.Warn("degrading to fallback backend",
			"fallback", dc.fallback.Name(),
			"primary", dc.primary.Name(),
			"reason", status.ErrorMessage)
		metrics.RecordDegradationEvent(dc.primary.Name(), dc.fallback.Name())
		dc.current = dc.fallback
		dc.isDegraded = true
	}

	if status.IsHealthy && dc.isDegraded {
		dc.logger.Info("recovering to primary backend", "primary", dc.primary.Name())
		metrics.RecordDegradationEvent(dc.fallback.Name(), dc.primary.Name())
		dc.current = dc.primary
		dc.isDegraded = false
	}

	return dc.current
}

// IsDegraded reports whether the fallback is in use.
func (dc *DegradationController) IsDegraded() bool {
	dc.mu.Lock()
	defer dc.mu.Unlock()
	return dc.isDegraded
}

// Package health provides health checking for transcription backends.
// It implements periodic probes with configurable intervals and failure thresholds.
package health

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/houzhh15/aidg-transcribe/cmd/transcribe/internal/whisper"
	"github.com/houzhh15/aidg-transcribe/pkg/logger"
)

// probeTimeout bounds a single HealthCheck call.
const probeTimeout = 10 * time.Second

// ServiceStatus represents the current health state of a backend.
// All fields are safe for JSON serialization.
type ServiceStatus struct {
	// IsHealthy indicates whether the backend passed recent health checks
	IsHealthy bool `json:"is_healthy"`

	// LastCheckTime records when the most recent health check was performed
	LastCheckTime time.Time `json:"last_check_time"`

	// ConsecutiveFails counts how many health checks have failed in a row
	// Reset to 0 when a check succeeds
	ConsecutiveFails int `json:"consecutive_fails"`

	// ErrorMessage contains the last error message if health check failed
	ErrorMessage string `json:"error_message"`
}

// HealthChecker performs periodic health checks on a Backend and tracks
// consecutive failures to trigger degradation.
//
// Thread-safety: All public methods are thread-safe via sync.RWMutex.
type HealthChecker struct {
	backend       whisper.Backend
	status        ServiceStatus
	mu            sync.RWMutex
	checkInterval time.Duration
	failThreshold int
	stopChan      chan struct{}
	stopOnce      sync.Once
	logger        *slog.Logger
}

// NewHealthChecker creates a HealthChecker. It starts in a healthy state
// (optimistic assumption); call Start to begin periodic checks.
//
// Parameters:
//   - backend: The Backend to monitor
//   - checkInterval: Duration between health checks (e.g., 5*time.Minute)
//   - failThreshold: Consecutive failures before marking unhealthy (values < 1 mean 1)
func NewHealthChecker(backend whisper.Backend, checkInterval time.Duration, failThreshold int, l *slog.Logger) *HealthChecker {
	return &HealthChecker{
		backend:       backend,
		checkInterval: checkInterval,
		failThreshold: max(failThreshold, 1),
		stopChan:      make(chan struct{}),
		status: ServiceStatus{
			IsHealthy:     true,
			LastCheckTime: time.Now(),
		},
		logger: logger.OrDefault(l).With("component", "health", "backend", backend.Name()),
	}
}

// Start performs an immediate check, then checks at regular intervals until
// Stop is called or ctx is cancelled. It blocks; run it in a goroutine.
func (hc *HealthChecker) Start(ctx context.Context) {
	ticker := time.NewTicker(hc.checkInterval)
	defer ticker.Stop()

	hc.CheckNow(ctx)

	for {
		select {
		case <-ticker.C:
			hc.CheckNow(ctx)
		case <-hc.stopChan:
			hc.logger.Info("health checker stopped")
			return
		case <-ctx.Done():
			hc.logger.Info("health checker context cancelled")
			return
		}
	}
}

// CheckNow executes a single health check and updates the status.
func (hc *HealthChecker) CheckNow(ctx context.Context) ServiceStatus {
	checkCtx, cancel := context.WithTimeout(ctx, probeTimeout)
	defer cancel()

	isHealthy, err := hc.backend.HealthCheck(checkCtx)

	hc.mu.Lock()
	defer hc.mu.Unlock()

	hc.status.LastCheckTime = time.Now()

	if isHealthy {
		if hc.status.ConsecutiveFails > 0 || !hc.status.IsHealthy {
			hc.logger.Info("health check passed")
		}
		hc.status.IsHealthy = true
		hc.status.ConsecutiveFails = 0
		hc.status.ErrorMessage = ""
		return hc.status
	}

	hc.status.ConsecutiveFails++
	errMsg := "unknown error"
	if err != nil {
		errMsg = err.Error()
	}
	hc.status.ErrorMessage = fmt.Sprintf("Health check failed: %s", errMsg)

	if hc.status.ConsecutiveFails >= hc.failThreshold {
		hc.status.IsHealthy = false
		hc.logger.Error("backend marked unhealthy", "consecutive_fails", hc.status.ConsecutiveFails)
	} else {
		hc.logger.Warn("health check failed",
			"consecutive_fails", hc.status.ConsecutiveFails,
			"threshold", hc.failThreshold,
			"error", errMsg)
	}
	return hc.status
}

// GetStatus returns a copy of the current health status.
func (hc *HealthChecker) GetStatus() ServiceStatus {
	hc.mu.RLock()
	defer hc.mu.RUnlock()
	return hc.status
}

// Stop terminates the Start loop. Safe to call multiple times.
func (hc *HealthChecker) Stop() {
	hc.stopOnce.Do(func() { close(hc.stopChan) })
}

package health

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/houzhh15/aidg-transcribe/cmd/transcribe/internal/whisper"
)

// flakyBackend answers health checks from a script.
type flakyBackend struct {
	whisper.MockBackend
	err error
}

func (f *flakyBackend) HealthCheck(ctx context.Context) (bool, error) {
	healthy, _ := f.MockBackend.HealthCheck(ctx)
	if !healthy {
		return false, f.err
	}
	return true, nil
}

// TestHealthChecker tests the health checking functionality.
func TestHealthChecker(t *testing.T) {
	t.Run("initial state is healthy", func(t *testing.T) {
		checker := NewHealthChecker(whisper.NewMockBackend(), time.Second, 3, nil)

		status := checker.GetStatus()
		assert.True(t, status.IsHealthy)
		assert.Equal(t, 0, status.ConsecutiveFails)
	})

	t.Run("unhealthy only after threshold", func(t *testing.T) {
		backend := &flakyBackend{err: errors.New("connection refused")}
		backend.SetHealthy(false)
		checker := NewHealthChecker(backend, time.Second, 3, nil)

		for i := 1; i < 3; i++ {
			status := checker.CheckNow(context.Background())
			assert.True(t, status.IsHealthy, "check %d stays healthy below threshold", i)
			assert.Equal(t, i, status.ConsecutiveFails)
		}

		status := checker.CheckNow(context.Background())
		assert.False(t, status.IsHealthy)
		assert.Equal(t, 3, status.ConsecutiveFails)
		assert.Contains(t, status.ErrorMessage, "connection refused")
	})

	t.Run("recovery resets counter", func(t *testing.T) {
		backend := &flakyBackend{}
		backend.SetHealthy(false)
		checker := NewHealthChecker(backend, time.Second, 1, nil)

		assert.False(t, checker.CheckNow(context.Background()).IsHealthy)
		assert.Equal(t, "Health check failed: unknown error", checker.GetStatus().ErrorMessage)

		backend.SetHealthy(true)
		status := checker.CheckNow(context.Background())
		assert.True(t, status.IsHealthy)
		assert.Equal(t, 0, status.ConsecutiveFails)
		assert.Empty(t, status.ErrorMessage)
	})

	t.Run("start checks immediately and stops", func(t *testing.T) {
		backend := &flakyBackend{}
		backend.SetHealthy(false)
		checker := NewHealthChecker(backend, time.Hour, 1, nil)

		done := make(chan struct{})
		go func() {
			checker.Start(context.Background())
			close(done)
		}()

		assert.Eventually(t, func() bool { return !checker.GetStatus().IsHealthy }, time.Second, 10*time.Millisecond)

		checker.Stop()
		checker.Stop()
		select {
		case <-done:
		case <-time.After(time.Second):
			t.Fatal("Start did not return after Stop")
		}
	})

	t.Run("start returns on context cancel", func(t *testing.T) {
		checker := NewHealthChecker(whisper.NewMockBackend(), time.Hour, 3, nil)
		ctx, cancel := context.WithCancel(context.Background())

		done := make(chan struct{})
		go func() {
			checker.Start(ctx)
			close(done)
		}()
		cancel()

		select {
		case <-done:
		case <-time.After(time.Second):
			t.Fatal("Start did not return after cancel")
		}
	})
}

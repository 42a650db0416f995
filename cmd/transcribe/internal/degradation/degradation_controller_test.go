package degradation

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/houzhh15/aidg-transcribe/cmd/transcribe/internal/health"
	"github.com/houzhh15/aidg-transcribe/cmd/transcribe/internal/whisper"
)

func newBackends() (*whisper.MockBackend, *whisper.MockBackend) {
	primary := &whisper.MockBackend{BackendName: "go-whisper"}
	primary.SetHealthy(true)
	fallback := &whisper.MockBackend{BackendName: "local-whisper"}
	fallback.SetHealthy(true)
	return primary, fallback
}

// TestDegradationController tests switching between primary and fallback.
func TestDegradationController(t *testing.T) {
	t.Run("starts on primary", func(t *testing.T) {
		primary, fallback := newBackends()
		hc := health.NewHealthChecker(primary, time.Minute, 1, nil)
		dc := NewDegradationController(primary, fallback, hc, nil)

		assert.Equal(t, "go-whisper", dc.GetBackend().Name())
		assert.False(t, dc.IsDegraded())
	})

	t.Run("degrades when primary becomes unhealthy", func(t *testing.T) {
		primary, fallback := newBackends()
		hc := health.NewHealthChecker(primary, time.Minute, 2, nil)
		dc := NewDegradationController(primary, fallback, hc, nil)

		primary.SetHealthy(false)
		hc.CheckNow(context.Background())
		assert.Equal(t, "go-whisper", dc.GetBackend().Name(), "one failure is below threshold")

		hc.CheckNow(context.Background())
		assert.Equal(t, "local-whisper", dc.GetBackend().Name())
		assert.True(t, dc.IsDegraded())

		// repeated calls stay on the fallback
		assert.Equal(t, "local-whisper", dc.GetBackend().Name())
	})

	t.Run("recovers when primary is healthy again", func(t *testing.T) {
		primary, fallback := newBackends()
		hc := health.NewHealthChecker(primary, time.Minute, 1, nil)
		dc := NewDegradationController(primary, fallback, hc, nil)

		primary.SetHealthy(false)
		hc.CheckNow(context.Background())
		assert.Same(t, whisper.Backend(fallback), dc.GetBackend())

		primary.SetHealthy(true)
		hc.CheckNow(context.Background())
		assert.Same(t, whisper.Backend(primary), dc.GetBackend())
		assert.False(t, dc.IsDegraded())
	})
}

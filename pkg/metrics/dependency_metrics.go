// Package metrics provides process-level Prometheus instruments shared by the
// transcription binaries: external command execution and backend degradation.
package metrics

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
)

// Command execution status labels.
const (
	StatusSuccess = "success"
	StatusFailed  = "failed"
	StatusTimeout = "timeout"
)

var (
	// commandExecutionTotal counts external command executions.
	// Labels:
	//   - command: Command name (e.g., "ffmpeg", "whisper")
	//   - mode: Execution mode (currently always "local")
	//   - status: success, failed or timeout
	commandExecutionTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dependency_command_executions_total",
			Help: "Total number of external command executions",
		},
		[]string{"command", "mode", "status"},
	)

	// commandExecutionDuration records wall time of external commands.
	// Decoding an hour of audio or running the CLI on a long chunk can take minutes.
	commandExecutionDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "dependency_command_duration_seconds",
			Help:    "Duration of external command executions in seconds",
			Buckets: []float64{0.1, 0.5, 1, 5, 10, 30, 60, 300, 900},
		},
		[]string{"command", "mode"},
	)

	// degradationEventsTotal counts switches between transcription backends.
	// Labels:
	//   - from_backend: backend that was active (e.g., "go-whisper")
	//   - to_backend: backend switched to (e.g., "local-whisper")
	degradationEventsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dependency_degradation_events_total",
			Help: "Total number of transcription backend switches (e.g., go-whisper -> local-whisper)",
		},
		[]string{"from_backend", "to_backend"},
	)
)

func init() {
	prometheus.MustRegister(commandExecutionTotal)
	prometheus.MustRegister(commandExecutionDuration)
	prometheus.MustRegister(degradationEventsTotal)
}

// RecordCommandExecution records a command execution event.
func RecordCommandExecution(command, mode, status string) {
	commandExecutionTotal.WithLabelValues(command, mode, status).Inc()
}

// RecordCommandDuration records the duration of a command execution.
func RecordCommandDuration(command, mode string, durationSeconds float64) {
	commandExecutionDuration.WithLabelValues(command, mode).Observe(durationSeconds)
}

// RecordDegradationEvent records a backend switch.
func RecordDegradationEvent(fromBackend, toBackend string) {
	degradationEventsTotal.WithLabelValues(fromBackend, toBackend).Inc()
}

// WriteTextfile dumps every metric of the default gatherer to path in the
// text exposition format, for the node exporter textfile collector.
// A one-shot CLI run has no scrape window, so this is how its numbers survive.
func WriteTextfile(path string) error {
	if err := prometheus.WriteToTextfile(path, prometheus.DefaultGatherer); err != nil {
		return fmt.Errorf("write metrics textfile: %w", err)
	}
	return nil
}

package metrics

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
)

func TestRecordCommandExecution(t *testing.T) {
	commandExecutionTotal.Reset()

	RecordCommandExecution("ffmpeg", "local", StatusSuccess)

	metric := &dto.Metric{}
	if err := commandExecutionTotal.WithLabelValues("ffmpeg", "local", StatusSuccess).Write(metric); err != nil {
		t.Fatalf("Failed to write metric: %v", err)
	}
	if metric.Counter.GetValue() != 1 {
		t.Errorf("Expected counter value 1, got %f", metric.Counter.GetValue())
	}

	RecordCommandExecution("ffmpeg", "local", StatusSuccess)
	metric = &dto.Metric{}
	if err := commandExecutionTotal.WithLabelValues("ffmpeg", "local", StatusSuccess).Write(metric); err != nil {
		t.Fatalf("Failed to write metric: %v", err)
	}
	if metric.Counter.GetValue() != 2 {
		t.Errorf("Expected counter value 2, got %f", metric.Counter.GetValue())
	}
}

func TestRecordCommandDuration(t *testing.T) {
	commandExecutionDuration.Reset()

	RecordCommandDuration("whisper", "local", 5.5)
	RecordCommandDuration("whisper", "local", 10.0)

	metric := &dto.Metric{}
	observer := commandExecutionDuration.WithLabelValues("whisper", "local")
	if err := observer.(prometheus.Metric).Write(metric); err != nil {
		t.Fatalf("Failed to write metric: %v", err)
	}
	if metric.Histogram.GetSampleCount() != 2 {
		t.Errorf("Expected 2 samples, got %d", metric.Histogram.GetSampleCount())
	}
	if metric.Histogram.GetSampleSum() != 15.5 {
		t.Errorf("Expected sample sum 15.5, got %f", metric.Histogram.GetSampleSum())
	}
}

func TestRecordDegradationEvent(t *testing.T) {
	degradationEventsTotal.Reset()

	RecordDegradationEvent("go-whisper", "local-whisper")

	metric := &dto.Metric{}
	if err := degradationEventsTotal.WithLabelValues("go-whisper", "local-whisper").Write(metric); err != nil {
		t.Fatalf("Failed to write metric: %v", err)
	}
	if metric.Counter.GetValue() != 1 {
		t.Errorf("Expected counter value 1, got %f", metric.Counter.GetValue())
	}
}

func TestMetricsLabels(t *testing.T) {
	tests := []struct {
		name    string
		command string
		mode    string
		status  string
	}{
		{name: "ffmpeg success", command: "ffmpeg", mode: "local", status: StatusSuccess},
		{name: "whisper failed", command: "whisper", mode: "local", status: StatusFailed},
		{name: "ffmpeg timeout", command: "ffmpeg", mode: "local", status: StatusTimeout},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			commandExecutionTotal.Reset()

			RecordCommandExecution(tt.command, tt.mode, tt.status)

			metric := &dto.Metric{}
			if err := commandExecutionTotal.WithLabelValues(tt.command, tt.mode, tt.status).Write(metric); err != nil {
				t.Fatalf("Write() error = %v", err)
			}
			if metric.Counter.GetValue() != 1 {
				t.Errorf("Expected counter value 1, got %f", metric.Counter.GetValue())
			}
		})
	}
}

func TestWriteTextfile(t *testing.T) {
	commandExecutionTotal.Reset()
	RecordCommandExecution("ffmpeg", "local", StatusSuccess)

	path := filepath.Join(t.TempDir(), "transcribe.prom")
	if err := WriteTextfile(path); err != nil {
		t.Fatalf("WriteTextfile() error = %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read textfile: %v", err)
	}
	if !strings.Contains(string(data), `dependency_command_executions_total{command="ffmpeg",mode="local",status="success"} 1`) {
		t.Errorf("textfile missing counter sample:\n%s", string(data))
	}
}

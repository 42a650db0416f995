package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// ChunksTotal 切片转写总数计数器
	// Labels: mode (chunked/sequential), status (success/error)
	ChunksTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "aidg_transcribe_chunks_total",
			Help: "Total number of chunks transcribed by mode and outcome",
		},
		[]string{"mode", "status"},
	)

	// ErrorsTotal 错误总数计数器
	// Labels: component (pool/sequential/aggregator/orchestrator), error_code (CHUNK_TRANSCRIPTION_ERROR/...)
	ErrorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "aidg_transcribe_errors_total",
			Help: "Total number of transcription errors by component and error code",
		},
		[]string{"component", "error_code"},
	)

	// ProcessingDuration 处理耗时直方图（秒）
	// Labels: component (chunk/sequential/job)
	// Buckets: 0.1s, 0.5s, 1s, 2s, 5s, 10s, 30s, 60s, 120s, 300s, 900s, 3600s
	ProcessingDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "aidg_transcribe_processing_duration_seconds",
			Help:    "Transcription processing duration in seconds by component",
			Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60, 120, 300, 900, 3600},
		},
		[]string{"component"},
	)

	// ActiveWorkers 当前持有模型实例的 worker 数量
	ActiveWorkers = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "aidg_transcribe_active_workers",
			Help: "Number of workers currently holding an initialized model instance",
		},
	)

	// WorkerInitTotal worker 初始化次数
	// Labels: status (success/error)
	WorkerInitTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "aidg_transcribe_worker_init_total",
			Help: "Total number of worker model initializations by outcome",
		},
		[]string{"status"},
	)

	// JobsTotal 任务终态计数器
	// Labels: strategy (sequential/chunked), state (completed/failed/cancelled)
	JobsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "aidg_transcribe_jobs_total",
			Help: "Total number of finished jobs by strategy and terminal state",
		},
		[]string{"strategy", "state"},
	)
)

func status(success bool) string {
	if success {
		return "success"
	}
	return "error"
}

// RecordChunkProcessed 记录切片转写完成
func RecordChunkProcessed(mode string, success bool) {
	ChunksTotal.WithLabelValues(mode, status(success)).Inc()
}

// RecordError 记录错误
func RecordError(component, errorCode string) {
	ErrorsTotal.WithLabelValues(component, errorCode).Inc()
}

// RecordDuration 记录处理耗时（秒）
func RecordDuration(component string, durationSeconds float64) {
	ProcessingDuration.WithLabelValues(component).Observe(durationSeconds)
}

// RecordWorkerInit 记录 worker 初始化结果
func RecordWorkerInit(success bool) {
	WorkerInitTotal.WithLabelValues(status(success)).Inc()
}

// WorkerStarted / WorkerStopped 维护活跃 worker 量规
func WorkerStarted() { ActiveWorkers.Inc() }
func WorkerStopped() { ActiveWorkers.Dec() }

// RecordJob 记录任务终态
func RecordJob(strategy, state string) {
	JobsTotal.WithLabelValues(strategy, state).Inc()
}

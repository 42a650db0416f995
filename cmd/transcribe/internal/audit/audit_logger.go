// Package audit appends one JSON line per finished transcription job to a
// rotated log file.
package audit

import (
	"encoding/json"
	"io"
	"log"
	"time"

	"github.com/houzhh15/aidg-transcribe/cmd/transcribe/internal/orchestrator"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Logger records job outcomes.
type Logger struct {
	logger *log.Logger
	closer io.Closer
}

// NewLogger creates a Logger backed by a lumberjack rotating file.
func NewLogger(logPath string) *Logger {
	writer := &lumberjack.Logger{
		Filename:   logPath,
		MaxSize:    100, // MB
		MaxBackups: 10,
		MaxAge:     30, // days
		Compress:   true,
	}
	return &Logger{
		logger: log.New(writer, "", 0), // 时间戳写在记录里
		closer: writer,
	}
}

// LogJob writes the outcome of one job. Transcript text is not recorded.
func (a *Logger) LogJob(res *orchestrator.JobResult) {
	if a == nil || res == nil {
		return
	}

	record := map[string]interface{}{
		"timestamp":        time.Now().UTC().Format(time.RFC3339),
		"job_id":           res.JobID,
		"source":           res.SourcePath,
		"strategy":         res.Strategy,
		"backend":          res.Backend,
		"state":            res.State,
		"result":           "success",
		"success_count":    res.SuccessCount,
		"total":            res.Total,
		"duration_seconds": res.DurationSeconds,
		"elapsed_ms":       res.Elapsed.Milliseconds(),
		"text_chars":       len([]rune(res.Text)),
	}

	if !res.Success {
		record["result"] = "failed"
		if res.Err != nil {
			record["error_code"] = orchestrator.CodeOf(res.Err)
			record["error_message"] = res.Err.Error()
		}
	}
	if failed := res.FailedIndices(); len(failed) > 0 {
		record["failed_chunks"] = failed
	}
	if len(res.WorkerErrors) > 0 {
		record["worker_init_failures"] = len(res.WorkerErrors)
	}
	if len(res.RepeatedChunks) > 0 {
		record["repeated_chunks"] = res.RepeatedChunks
	}

	data, _ := json.Marshal(record)
	a.logger.Println(string(data))
}

// Close releases the underlying file.
func (a *Logger) Close() error {
	if a == nil || a.closer == nil {
		return nil
	}
	return a.closer.Close()
}

package orchestrator

import (
	"errors"
	"fmt"
	"time"
)

// ErrorCode 表示转写任务错误类型代码
type ErrorCode string

const (
	// CONFIGURATION_ERROR 任务配置非法（切片时长、worker 数、源文件缺失）
	CONFIGURATION_ERROR ErrorCode = "CONFIGURATION_ERROR"

	// SOURCE_LOAD_ERROR 音频无法解码
	SOURCE_LOAD_ERROR ErrorCode = "SOURCE_LOAD_ERROR"

	// WORKER_INIT_ERROR worker 模型加载失败（单个 worker 隔离，全部失败时任务失败）
	WORKER_INIT_ERROR ErrorCode = "WORKER_INIT_ERROR"

	// CHUNK_TRANSCRIPTION_ERROR 单个切片转写失败（隔离，不影响其他切片）
	CHUNK_TRANSCRIPTION_ERROR ErrorCode = "CHUNK_TRANSCRIPTION_ERROR"

	// SEQUENTIAL_TRANSCRIPTION_ERROR 顺序模式整段转写失败
	SEQUENTIAL_TRANSCRIPTION_ERROR ErrorCode = "SEQUENTIAL_TRANSCRIPTION_ERROR"

	// JOB_CANCELLED 任务被取消或超时
	JOB_CANCELLED ErrorCode = "JOB_CANCELLED"

	// INTERNAL_ERROR 内部不变量被破坏（如重复切片结果）
	INTERNAL_ERROR ErrorCode = "INTERNAL_ERROR"
)

// OrchError 表示转写任务错误
type OrchError struct {
	Code      ErrorCode `json:"code"`
	Message   string    `json:"message"`
	Index     int       `json:"index"` // 切片或 worker 序号，不适用时为 -1
	Cause     error     `json:"-"`
	Timestamp time.Time `json:"timestamp"`
}

// Error 实现 error 接口
func (e *OrchError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap 实现错误链支持
func (e *OrchError) Unwrap() error {
	return e.Cause
}

// NewOrchError 创建新的 Orchestrator 错误
func NewOrchError(code ErrorCode, message string, cause error) *OrchError {
	return &OrchError{
		Code:      code,
		Message:   message,
		Index:     -1,
		Cause:     cause,
		Timestamp: time.Now(),
	}
}

// CodeOf 返回错误链中第一个 OrchError 的代码，没有时返回空串
func CodeOf(err error) ErrorCode {
	var oe *OrchError
	if errors.As(err, &oe) {
		return oe.Code
	}
	return ""
}

// NewConfigurationError 创建配置错误
func NewConfigurationError(message string, cause error) *OrchError {
	return NewOrchError(CONFIGURATION_ERROR, message, cause)
}

// NewSourceLoadError 创建音频加载错误
func NewSourceLoadError(path string, cause error) *OrchError {
	return NewOrchError(SOURCE_LOAD_ERROR, fmt.Sprintf("无法解码音频: %s", path), cause)
}

// NewWorkerInitError 创建 worker 初始化错误；workerID < 0 表示整个 pool
func NewWorkerInitError(workerID int, cause error) *OrchError {
	e := NewOrchError(WORKER_INIT_ERROR, "模型实例加载失败", cause)
	if workerID >= 0 {
		e.Message = fmt.Sprintf("worker %d 模型实例加载失败", workerID)
		e.Index = workerID
	}
	return e
}

// NewChunkTranscriptionError 创建切片转写错误
func NewChunkTranscriptionError(index int, cause error) *OrchError {
	e := NewOrchError(CHUNK_TRANSCRIPTION_ERROR, fmt.Sprintf("切片 %d 转写失败", index), cause)
	e.Index = index
	return e
}

// NewSequentialTranscriptionError 创建顺序模式转写错误
func NewSequentialTranscriptionError(cause error) *OrchError {
	return NewOrchError(SEQUENTIAL_TRANSCRIPTION_ERROR, "整段转写失败", cause)
}

// NewCancelledError 创建任务取消错误
func NewCancelledError(cause error) *OrchError {
	return NewOrchError(JOB_CANCELLED, "任务已取消", cause)
}

// NewInternalError 创建内部错误
func NewInternalError(message string, cause error) *OrchError {
	return NewOrchError(INTERNAL_ERROR, message, cause)
}

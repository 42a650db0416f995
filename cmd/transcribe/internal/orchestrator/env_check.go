package orchestrator

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/houzhh15/aidg-transcribe/cmd/transcribe/internal/whisper"
)

// Requirements lists the external programs and files a configuration needs.
type Requirements struct {
	FFmpegBinary   string // 解码非 WAV 输入
	WhisperProgram string // 仅 local-whisper 后端需要
	ModelDir       string // 仅 local-whisper 后端需要
	Model          string
}

// DependencyError conveys missing runtime dependencies and friendly recovery guidance.
type DependencyError struct {
	Missing []string // 不可用依赖列表（如 ["FFmpeg (ffmpeg)"]）
	Details []string // 可操作的配置指导
}

func (e DependencyError) Error() string {
	core := fmt.Sprintf("缺少必需依赖: %s", strings.Join(e.Missing, ", "))
	if len(e.Details) == 0 {
		return core
	}
	return core + "。\n" + strings.Join(e.Details, "\n")
}

// ValidateCriticalDependencies verifies the external binaries and model files
// the configured pipeline needs before a job starts. It returns a
// ConfigurationError wrapping a DependencyError describing everything missing.
func ValidateCriticalDependencies(req Requirements) error {
	var (
		missing []string
		details []string
	)

	if bin := strings.TrimSpace(req.FFmpegBinary); bin != "" {
		if _, err := exec.LookPath(bin); err != nil {
			missing = append(missing, fmt.Sprintf("FFmpeg (%s)", bin))
			details = append(details, "未找到 FFmpeg，请安装后加入 PATH，或通过 ffmpeg.binary 指定路径（16 kHz PCM WAV 输入可不依赖 FFmpeg）")
		}
	}

	if prog := strings.TrimSpace(req.WhisperProgram); prog != "" {
		if _, err := exec.LookPath(prog); err != nil {
			missing = append(missing, fmt.Sprintf("whisper program (%s)", prog))
			details = append(details, "未找到 whisper 可执行文件，请通过 backend.local_program 指定路径或切换到 go-whisper 后端")
		}
		if req.ModelDir != "" {
			modelFile := filepath.Join(req.ModelDir, whisper.NormalizeModel(req.Model)+".bin")
			if _, err := os.Stat(modelFile); err != nil {
				missing = append(missing, fmt.Sprintf("model file %s", modelFile))
				details = append(details, "模型文件不存在，请下载对应的 ggml 模型到 backend.model_dir")
			}
		}
	}

	if len(missing) == 0 {
		return nil
	}
	return NewConfigurationError("dependency check failed", DependencyError{Missing: missing, Details: details})
}

// ToolStatus 表示命令行工具状态
type ToolStatus struct {
	Available bool   `json:"available"`
	Version   string `json:"version,omitempty"`
	Error     string `json:"error,omitempty"`
}

// BackendStatus 表示转写后端状态
type BackendStatus struct {
	Name    string `json:"name"`
	Healthy bool   `json:"healthy"`
	Latency string `json:"latency,omitempty"`
	Error   string `json:"error,omitempty"`
}

// EnvironmentStatus 表示整体环境状态
type EnvironmentStatus struct {
	Ready    bool            `json:"ready"`
	Issues   []string        `json:"issues"`
	FFmpeg   ToolStatus      `json:"ffmpeg"`
	Backends []BackendStatus `json:"backends"`
}

// CheckEnvironment probes ffmpeg and every backend. The environment is
// ready when ffmpeg runs and at least one backend is healthy.
func CheckEnvironment(ctx context.Context, ffmpegBinary string, backends ...whisper.Backend) *EnvironmentStatus {
	status := &EnvironmentStatus{Issues: []string{}}

	status.FFmpeg = checkFFmpeg(ctx, ffmpegBinary)
	if !status.FFmpeg.Available {
		status.Issues = append(status.Issues, fmt.Sprintf("FFmpeg 不可用: %s", status.FFmpeg.Error))
	}

	anyHealthy := false
	for _, b := range backends {
		bs := checkBackend(ctx, b)
		status.Backends = append(status.Backends, bs)
		if bs.Healthy {
			anyHealthy = true
		} else {
			status.Issues = append(status.Issues, fmt.Sprintf("后端 %s 不可用: %s", bs.Name, bs.Error))
		}
	}

	status.Ready = status.FFmpeg.Available && anyHealthy
	return status
}

func checkBackend(ctx context.Context, b whisper.Backend) BackendStatus {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	start := time.Now()
	healthy, err := b.HealthCheck(ctx)
	bs := BackendStatus{
		Name:    b.Name(),
		Healthy: healthy && err == nil,
		Latency: fmt.Sprintf("%dms", time.Since(start).Milliseconds()),
	}
	if err != nil {
		bs.Error = err.Error()
	} else if !healthy {
		bs.Error = "reported unhealthy"
	}
	return bs
}

// checkFFmpeg 检查 FFmpeg 可用性
func checkFFmpeg(ctx context.Context, bin string) ToolStatus {
	if strings.TrimSpace(bin) == "" {
		bin = "ffmpeg"
	}
	if _, err := exec.LookPath(bin); err != nil {
		return ToolStatus{Available: false, Error: err.Error()}
	}

	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	output, err := exec.CommandContext(ctx, bin, "-version").CombinedOutput()
	if err != nil {
		return ToolStatus{Available: false, Error: err.Error()}
	}

	// 第一行通常为 "ffmpeg version 6.1.1 Copyright ..."
	version := "unknown"
	lines := strings.Split(string(output), "\n")
	if parts := strings.Fields(lines[0]); len(parts) >= 3 {
		version = parts[2]
	}
	return ToolStatus{Available: true, Version: version}
}

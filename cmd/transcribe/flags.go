package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/houzhh15/aidg-transcribe/cmd/transcribe/internal/config"
	"github.com/houzhh15/aidg-transcribe/pkg/logger"
)

// addGlobalFlags registers flags shared by every command.
func addGlobalFlags(cmd *cobra.Command) {
	f := cmd.PersistentFlags()
	f.String("config", "", "YAML 配置文件路径")
	f.String("log-level", "", "日志级别 debug/info/warn/error")
	f.String("log-file", "", "额外写入滚动日志文件")
	f.BoolP("quiet", "q", false, "只输出最终 [STATUS] DONE 行")
}

// addJobFlags registers the flags that tune a transcription job.
func addJobFlags(cmd *cobra.Command) {
	f := cmd.Flags()
	f.StringP("language", "l", "", "音频语言（ISO 639-1），空字符串表示自动检测")
	f.StringP("model", "m", "", "whisper 模型（tiny/base/small/medium/large）")
	f.StringP("strategy", "s", "", "sequential 或 chunked")
	f.Float64("chunk-seconds", 0, "切片时长（秒）")
	f.IntP("workers", "w", 0, "并行 worker 数")
	f.String("separator", "", "切片文本连接符")
	f.String("prompt", "", "转写提示词")
	f.Duration("task-timeout", 0, "单个切片超时，0 表示不限")
	f.Duration("job-timeout", 0, "整个任务超时，0 表示不限")
	f.Int("init-concurrency", 0, "同时加载模型的 worker 上限，0 表示不限")
	f.String("backend", "", "主后端 go-whisper/local-whisper/mock")
	f.String("fallback", "", "降级后端，空表示不降级")
	f.String("go-whisper-url", "", "go-whisper 服务地址")
	f.String("local-program", "", "本地 whisper 可执行文件")
	f.String("model-dir", "", "本地 ggml 模型目录")
	f.String("ffmpeg", "", "ffmpeg 可执行文件")
	f.String("work-dir", "", "临时文件目录")
	f.String("audit-log", "", "审计日志路径")
	f.String("metrics-textfile", "", "结束时写出 Prometheus 文本文件")
}

// loadConfig resolves the configuration: file, then AIDG_TRANSCRIBE_* env,
// then explicitly set flags. The result is validated.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	path, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}
	if err := cfg.ApplyEnv(os.LookupEnv); err != nil {
		return nil, fmt.Errorf("invalid environment: %w", err)
	}
	applyFlags(cmd.Flags(), cfg)
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// applyFlags copies every flag the user set onto cfg. Unset flags keep the
// file and env values, so a flag can still select an empty language.
func applyFlags(fs *pflag.FlagSet, cfg *config.Config) {
	str := func(name string, dst *string) {
		if fs.Lookup(name) != nil && fs.Changed(name) {
			*dst, _ = fs.GetString(name)
		}
	}
	integer := func(name string, dst *int) {
		if fs.Lookup(name) != nil && fs.Changed(name) {
			*dst, _ = fs.GetInt(name)
		}
	}

	str("log-level", &cfg.Log.Level)
	str("log-file", &cfg.Log.File)

	str("language", &cfg.Language)
	str("model", &cfg.Model)
	str("strategy", &cfg.Strategy)
	if fs.Lookup("chunk-seconds") != nil && fs.Changed("chunk-seconds") {
		cfg.ChunkSeconds, _ = fs.GetFloat64("chunk-seconds")
	}
	integer("workers", &cfg.Workers)
	str("separator", &cfg.Separator)
	str("prompt", &cfg.Prompt)
	if fs.Lookup("task-timeout") != nil && fs.Changed("task-timeout") {
		cfg.TaskTimeout, _ = fs.GetDuration("task-timeout")
	}
	if fs.Lookup("job-timeout") != nil && fs.Changed("job-timeout") {
		cfg.JobTimeout, _ = fs.GetDuration("job-timeout")
	}
	integer("init-concurrency", &cfg.InitConcurrency)
	str("backend", &cfg.Backend.Primary)
	str("fallback", &cfg.Backend.Fallback)
	str("go-whisper-url", &cfg.Backend.GoWhisperURL)
	str("local-program", &cfg.Backend.LocalProgram)
	str("model-dir", &cfg.Backend.ModelDir)
	str("ffmpeg", &cfg.FFmpeg.Binary)
	str("work-dir", &cfg.WorkDir)
	str("audit-log", &cfg.Audit.Path)
	str("metrics-textfile", &cfg.Metrics.Textfile)
}

// newLogger builds the process logger. stdout carries the progress
// protocol, so logs go to stderr.
func newLogger(cmd *cobra.Command, cfg *config.Config) (*slog.Logger, error) {
	return logger.New(logger.Config{
		Level:       cfg.Log.Level,
		Environment: cfg.Log.Environment,
		File:        cfg.Log.File,
		Output:      cmd.ErrOrStderr(),
	})
}

// Package config loads the transcriber settings from a YAML file, then
// applies AIDG_TRANSCRIBE_* environment overrides on top.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "AIDG_TRANSCRIBE_"

// Backend names understood by the CLI.
const (
	BackendGoWhisper = "go-whisper"
	BackendLocal     = "local-whisper"
	BackendMock      = "mock"
)

// Strategy names.
const (
	StrategyChunked    = "chunked"
	StrategySequential = "sequential"
)

// Config is the full CLI configuration.
type Config struct {
	Language        string        `yaml:"language"`
	Model           string        `yaml:"model"`
	Strategy        string        `yaml:"strategy"`
	ChunkSeconds    float64       `yaml:"chunk_seconds"`
	Workers         int           `yaml:"workers"`
	Separator       string        `yaml:"separator"`
	Prompt          string        `yaml:"prompt"`
	Temperature     float64       `yaml:"temperature"`
	TaskTimeout     time.Duration `yaml:"task_timeout"`
	JobTimeout      time.Duration `yaml:"job_timeout"`
	InitConcurrency int           `yaml:"init_concurrency"`
	RepeatThreshold int           `yaml:"repeat_threshold"`
	WorkDir         string        `yaml:"work_dir"`

	FFmpeg  FFmpegConfig  `yaml:"ffmpeg"`
	Backend BackendConfig `yaml:"backend"`
	Log     LogConfig     `yaml:"log"`
	Audit   AuditConfig   `yaml:"audit"`
	Metrics MetricsConfig `yaml:"metrics"`
}

// FFmpegConfig 控制音频解码
type FFmpegConfig struct {
	Binary  string        `yaml:"binary"`
	Timeout time.Duration `yaml:"timeout"`
}

// BackendConfig selects the primary and optional fallback backend.
type BackendConfig struct {
	Primary        string        `yaml:"primary"`
	Fallback       string        `yaml:"fallback"`
	GoWhisperURL   string        `yaml:"go_whisper_url"`
	LocalProgram   string        `yaml:"local_program"`
	ModelDir       string        `yaml:"model_dir"`
	HealthInterval time.Duration `yaml:"health_interval"`
	FailThreshold  int           `yaml:"fail_threshold"`
}

// LogConfig mirrors pkg/logger.Config.
type LogConfig struct {
	Level       string `yaml:"level"`
	Environment string `yaml:"environment"`
	File        string `yaml:"file"`
}

// AuditConfig 审计日志配置；Path 为空表示关闭
type AuditConfig struct {
	Path string `yaml:"path"`
}

// MetricsConfig 指标文本文件输出；Textfile 为空表示关闭
type MetricsConfig struct {
	Textfile string `yaml:"textfile"`
}

// Default returns the built-in defaults.
func Default() *Config {
	return &Config{
		Language:     "ru",
		Model:        "small",
		Strategy:     StrategyChunked,
		ChunkSeconds: 30,
		Workers:      2,
		Separator:    " ",
		JobTimeout:   120 * time.Minute,
		WorkDir:      filepath.Join(os.TempDir(), "aidg-transcribe"),
		FFmpeg: FFmpegConfig{
			Binary:  "ffmpeg",
			Timeout: 10 * time.Minute,
		},
		Backend: BackendConfig{
			Primary:        BackendGoWhisper,
			GoWhisperURL:   "http://localhost:8082",
			LocalProgram:   "whisper",
			HealthInterval: 5 * time.Minute,
			FailThreshold:  3,
		},
		Log: LogConfig{
			Level:       "info",
			Environment: "dev",
		},
	}
}

// Load reads path over the defaults. An empty path returns the defaults.
// Validation is left to the caller so flags and env can still be applied.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	return cfg, nil
}

// ApplyEnv overrides fields from the environment. lookup is usually
// os.LookupEnv. Malformed values are reported together.
func (c *Config) ApplyEnv(lookup func(string) (string, bool)) error {
	var errs []error

	str := func(key string, dst *string) {
		if v, ok := lookup(EnvPrefix + key); ok {
			*dst = v
		}
	}
	integer := func(key string, dst *int) {
		if v, ok := lookup(EnvPrefix + key); ok {
			n, err := strconv.Atoi(strings.TrimSpace(v))
			if err != nil {
				errs = append(errs, fmt.Errorf("%s%s: %w", EnvPrefix, key, err))
				return
			}
			*dst = n
		}
	}
	float := func(key string, dst *float64) {
		if v, ok := lookup(EnvPrefix + key); ok {
			f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s%s: %w", EnvPrefix, key, err))
				return
			}
			*dst = f
		}
	}
	duration := func(key string, dst *time.Duration) {
		if v, ok := lookup(EnvPrefix + key); ok {
			d, err := time.ParseDuration(strings.TrimSpace(v))
			if err != nil {
				errs = append(errs, fmt.Errorf("%s%s: %w", EnvPrefix, key, err))
				return
			}
			*dst = d
		}
	}

	str("LANGUAGE", &c.Language)
	str("MODEL", &c.Model)
	str("STRATEGY", &c.Strategy)
	float("CHUNK_SECONDS", &c.ChunkSeconds)
	integer("WORKERS", &c.Workers)
	str("SEPARATOR", &c.Separator)
	str("PROMPT", &c.Prompt)
	duration("TASK_TIMEOUT", &c.TaskTimeout)
	duration("JOB_TIMEOUT", &c.JobTimeout)
	integer("INIT_CONCURRENCY", &c.InitConcurrency)
	str("WORK_DIR", &c.WorkDir)

	str("FFMPEG_BINARY", &c.FFmpeg.Binary)
	duration("FFMPEG_TIMEOUT", &c.FFmpeg.Timeout)

	str("BACKEND_PRIMARY", &c.Backend.Primary)
	str("BACKEND_FALLBACK", &c.Backend.Fallback)
	str("GO_WHISPER_URL", &c.Backend.GoWhisperURL)
	str("LOCAL_PROGRAM", &c.Backend.LocalProgram)
	str("MODEL_DIR", &c.Backend.ModelDir)
	duration("HEALTH_INTERVAL", &c.Backend.HealthInterval)
	integer("FAIL_THRESHOLD", &c.Backend.FailThreshold)

	str("LOG_LEVEL", &c.Log.Level)
	str("LOG_ENV", &c.Log.Environment)
	str("LOG_FILE", &c.Log.File)
	str("AUDIT_PATH", &c.Audit.Path)
	str("METRICS_TEXTFILE", &c.Metrics.Textfile)

	return errors.Join(errs...)
}

// Validate reports every invalid setting at once.
func (c *Config) Validate() error {
	var errs []error

	switch c.Strategy {
	case StrategyChunked:
		if c.ChunkSeconds <= 0 {
			errs = append(errs, fmt.Errorf("chunk_seconds must be greater than 0, got %v", c.ChunkSeconds))
		}
		if c.Workers <= 0 {
			errs = append(errs, fmt.Errorf("workers must be greater than 0, got %d", c.Workers))
		}
	case StrategySequential:
	default:
		errs = append(errs, fmt.Errorf("unknown strategy %q (must be %s or %s)", c.Strategy, StrategyChunked, StrategySequential))
	}

	if !knownBackend(c.Backend.Primary) {
		errs = append(errs, fmt.Errorf("backend.primary: unknown backend %q", c.Backend.Primary))
	}
	if c.Backend.Fallback != "" {
		if !knownBackend(c.Backend.Fallback) {
			errs = append(errs, fmt.Errorf("backend.fallback: unknown backend %q", c.Backend.Fallback))
		} else if c.Backend.Fallback == c.Backend.Primary {
			errs = append(errs, fmt.Errorf("backend.fallback must differ from backend.primary"))
		}
	}
	if usesBackend(c, BackendGoWhisper) && strings.TrimSpace(c.Backend.GoWhisperURL) == "" {
		errs = append(errs, fmt.Errorf("backend.go_whisper_url cannot be empty"))
	}
	if usesBackend(c, BackendLocal) && strings.TrimSpace(c.Backend.LocalProgram) == "" {
		errs = append(errs, fmt.Errorf("backend.local_program cannot be empty"))
	}

	for name, d := range map[string]time.Duration{
		"task_timeout":            c.TaskTimeout,
		"job_timeout":             c.JobTimeout,
		"ffmpeg.timeout":          c.FFmpeg.Timeout,
		"backend.health_interval": c.Backend.HealthInterval,
	} {
		if d < 0 {
			errs = append(errs, fmt.Errorf("%s cannot be negative", name))
		}
	}
	if c.InitConcurrency < 0 {
		errs = append(errs, fmt.Errorf("init_concurrency cannot be negative"))
	}
	if c.Backend.Fallback != "" && c.Backend.FailThreshold <= 0 {
		errs = append(errs, fmt.Errorf("backend.fail_threshold must be greater than 0"))
	}
	if c.RepeatThreshold < 0 || c.RepeatThreshold > 64 {
		errs = append(errs, fmt.Errorf("repeat_threshold must be between 0 and 64"))
	}
	if strings.TrimSpace(c.WorkDir) == "" {
		errs = append(errs, fmt.Errorf("work_dir cannot be empty"))
	}

	return errors.Join(errs...)
}

// UsesLocalWhisper reports whether either backend slot is the local CLI.
func (c *Config) UsesLocalWhisper() bool {
	return usesBackend(c, BackendLocal)
}

func usesBackend(c *Config, name string) bool {
	return c.Backend.Primary == name || c.Backend.Fallback == name
}

func knownBackend(name string) bool {
	switch name {
	case BackendGoWhisper, BackendLocal, BackendMock:
		return true
	}
	return false
}

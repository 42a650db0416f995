package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func envMap(m map[string]string) func(string) (string, bool) {
	return func(key string) (string, bool) {
		v, ok := m[key]
		return v, ok
	}
}

func TestDefault(t *testing.T) {
	cfg := Default()

	assert.Equal(t, "ru", cfg.Language)
	assert.Equal(t, "small", cfg.Model)
	assert.Equal(t, StrategyChunked, cfg.Strategy)
	assert.Equal(t, 30.0, cfg.ChunkSeconds)
	assert.Equal(t, 2, cfg.Workers)
	assert.Equal(t, " ", cfg.Separator)
	assert.Equal(t, 120*time.Minute, cfg.JobTimeout)
	assert.Equal(t, "ffmpeg", cfg.FFmpeg.Binary)
	assert.Equal(t, BackendGoWhisper, cfg.Backend.Primary)
	assert.Equal(t, "http://localhost:8082", cfg.Backend.GoWhisperURL)
	assert.Equal(t, 3, cfg.Backend.FailThreshold)
	assert.NoError(t, cfg.Validate())
}

func TestLoad(t *testing.T) {
	t.Run("empty path returns defaults", func(t *testing.T) {
		cfg, err := Load("")
		require.NoError(t, err)
		assert.Equal(t, Default(), cfg)
	})

	t.Run("file overrides defaults", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "transcribe.yaml")
		content := `
language: en
strategy: sequential
workers: 4
job_timeout: 30m
backend:
  primary: local-whisper
  fallback: go-whisper
  model_dir: /models
audit:
  path: /var/log/transcribe/audit.log
`
		require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

		cfg, err := Load(path)
		require.NoError(t, err)
		assert.Equal(t, "en", cfg.Language)
		assert.Equal(t, StrategySequential, cfg.Strategy)
		assert.Equal(t, 4, cfg.Workers)
		assert.Equal(t, 30*time.Minute, cfg.JobTimeout)
		assert.Equal(t, BackendLocal, cfg.Backend.Primary)
		assert.Equal(t, "/models", cfg.Backend.ModelDir)
		assert.Equal(t, "/var/log/transcribe/audit.log", cfg.Audit.Path)
		// untouched keys keep their defaults
		assert.Equal(t, "small", cfg.Model)
		assert.Equal(t, "whisper", cfg.Backend.LocalProgram)
		assert.True(t, cfg.UsesLocalWhisper())
	})

	t.Run("missing file", func(t *testing.T) {
		_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
		require.Error(t, err)
		assert.Contains(t, err.Error(), "failed to read config file")
	})

	t.Run("malformed yaml", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "bad.yaml")
		require.NoError(t, os.WriteFile(path, []byte("workers: [1, 2"), 0o644))
		_, err := Load(path)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "failed to parse config")
	})
}

func TestApplyEnv(t *testing.T) {
	t.Run("overrides", func(t *testing.T) {
		cfg := Default()
		err := cfg.ApplyEnv(envMap(map[string]string{
			"AIDG_TRANSCRIBE_LANGUAGE":         "",
			"AIDG_TRANSCRIBE_WORKERS":          "6",
			"AIDG_TRANSCRIBE_CHUNK_SECONDS":    "45.5",
			"AIDG_TRANSCRIBE_TASK_TIMEOUT":     "90s",
			"AIDG_TRANSCRIBE_BACKEND_FALLBACK": "mock",
			"AIDG_TRANSCRIBE_LOG_LEVEL":        "debug",
		}))
		require.NoError(t, err)
		assert.Equal(t, "", cfg.Language, "an empty value selects auto-detect")
		assert.Equal(t, 6, cfg.Workers)
		assert.Equal(t, 45.5, cfg.ChunkSeconds)
		assert.Equal(t, 90*time.Second, cfg.TaskTimeout)
		assert.Equal(t, BackendMock, cfg.Backend.Fallback)
		assert.Equal(t, "debug", cfg.Log.Level)
	})

	t.Run("malformed values are joined", func(t *testing.T) {
		cfg := Default()
		err := cfg.ApplyEnv(envMap(map[string]string{
			"AIDG_TRANSCRIBE_WORKERS":     "many",
			"AIDG_TRANSCRIBE_JOB_TIMEOUT": "soon",
			"AIDG_TRANSCRIBE_MODEL":       "base",
		}))
		require.Error(t, err)
		assert.Contains(t, err.Error(), "AIDG_TRANSCRIBE_WORKERS")
		assert.Contains(t, err.Error(), "AIDG_TRANSCRIBE_JOB_TIMEOUT")
		assert.Equal(t, 2, cfg.Workers, "bad value leaves the field alone")
		assert.Equal(t, "base", cfg.Model)
	})
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr []string
	}{
		{
			name:   "sequential ignores chunk settings",
			mutate: func(c *Config) { c.Strategy = StrategySequential; c.ChunkSeconds = 0; c.Workers = 0 },
		},
		{
			name:    "chunked needs positive chunk and workers",
			mutate:  func(c *Config) { c.ChunkSeconds = 0; c.Workers = -1 },
			wantErr: []string{"chunk_seconds must be greater than 0", "workers must be greater than 0"},
		},
		{
			name:    "unknown strategy",
			mutate:  func(c *Config) { c.Strategy = "parallel" },
			wantErr: []string{`unknown strategy "parallel"`},
		},
		{
			name:    "unknown backends",
			mutate:  func(c *Config) { c.Backend.Primary = "openai"; c.Backend.Fallback = "azure" },
			wantErr: []string{`backend.primary: unknown backend "openai"`, `backend.fallback: unknown backend "azure"`},
		},
		{
			name:    "fallback equals primary",
			mutate:  func(c *Config) { c.Backend.Fallback = BackendGoWhisper },
			wantErr: []string{"must differ"},
		},
		{
			name:    "negative timeouts",
			mutate:  func(c *Config) { c.TaskTimeout = -time.Second; c.JobTimeout = -time.Minute },
			wantErr: []string{"task_timeout cannot be negative", "job_timeout cannot be negative"},
		},
		{
			name:    "local backend needs a program",
			mutate:  func(c *Config) { c.Backend.Primary = BackendLocal; c.Backend.LocalProgram = " " },
			wantErr: []string{"backend.local_program cannot be empty"},
		},
		{
			name:    "empty work dir",
			mutate:  func(c *Config) { c.WorkDir = "" },
			wantErr: []string{"work_dir cannot be empty"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			err := cfg.Validate()
			if len(tt.wantErr) == 0 {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			for _, want := range tt.wantErr {
				assert.Contains(t, err.Error(), want)
			}
		})
	}
}

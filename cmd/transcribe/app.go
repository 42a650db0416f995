package main

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"

	"github.com/houzhh15/aidg-transcribe/cmd/transcribe/internal/audio"
	"github.com/houzhh15/aidg-transcribe/cmd/transcribe/internal/audit"
	"github.com/houzhh15/aidg-transcribe/cmd/transcribe/internal/config"
	"github.com/houzhh15/aidg-transcribe/cmd/transcribe/internal/degradation"
	"github.com/houzhh15/aidg-transcribe/cmd/transcribe/internal/dependency"
	"github.com/houzhh15/aidg-transcribe/cmd/transcribe/internal/health"
	"github.com/houzhh15/aidg-transcribe/cmd/transcribe/internal/orchestrator"
	"github.com/houzhh15/aidg-transcribe/cmd/transcribe/internal/whisper"
	"github.com/houzhh15/aidg-transcribe/pkg/metrics"
)

// app bundles the collaborators one CLI invocation needs.
type app struct {
	cfg      *config.Config
	logger   *slog.Logger
	client   *dependency.DependencyClient
	primary  whisper.Backend
	fallback whisper.Backend
	selector orchestrator.BackendSelector
	checker  *health.HealthChecker
	orch     *orchestrator.Orchestrator
	audit    *audit.Logger
}

// newDependencyClient maps the configured programs onto dependency aliases.
func newDependencyClient(cfg *config.Config) (*dependency.DependencyClient, error) {
	return dependency.NewClient(dependency.ExecutorConfig{
		Mode:    dependency.ModeLocal,
		WorkDir: cfg.WorkDir,
		LocalBinaryPaths: map[string]string{
			"ffmpeg":            cfg.FFmpeg.Binary,
			whisper.CommandName: cfg.Backend.LocalProgram,
		},
		DefaultTimeout:  cfg.FFmpeg.Timeout,
		AllowedCommands: []string{"ffmpeg", whisper.CommandName},
	})
}

// newBackend constructs a backend by its configured name.
func newBackend(name string, cfg *config.Config, client *dependency.DependencyClient, l *slog.Logger) (whisper.Backend, error) {
	switch name {
	case config.BackendGoWhisper:
		return whisper.NewGoWhisperImpl(cfg.Backend.GoWhisperURL, l), nil
	case config.BackendLocal:
		return whisper.NewLocalWhisperImpl(client, cfg.Backend.ModelDir, l)
	case config.BackendMock:
		m := whisper.NewMockBackend()
		m.Logger = l
		return m, nil
	default:
		return nil, fmt.Errorf("unknown backend %q", name)
	}
}

// requirements lists what must be installed for the given inputs. ffmpeg is
// only needed when some input is not a WAV file; WAV files at 16 kHz are
// decoded in-process.
func requirements(cfg *config.Config, inputs []string) orchestrator.Requirements {
	req := orchestrator.Requirements{Model: cfg.Model}
	for _, in := range inputs {
		if !strings.EqualFold(filepath.Ext(in), ".wav") {
			req.FFmpegBinary = cfg.FFmpeg.Binary
			break
		}
	}
	if cfg.UsesLocalWhisper() {
		req.WhisperProgram = cfg.Backend.LocalProgram
		req.ModelDir = cfg.Backend.ModelDir
	}
	return req
}

// newApp runs the dependency preflight and wires the pipeline. The returned
// app must be closed.
func newApp(ctx context.Context, cfg *config.Config, l *slog.Logger, inputs []string) (*app, error) {
	if err := orchestrator.ValidateCriticalDependencies(requirements(cfg, inputs)); err != nil {
		return nil, err
	}

	client, err := newDependencyClient(cfg)
	if err != nil {
		return nil, orchestrator.NewConfigurationError("dependency client", err)
	}

	a := &app{cfg: cfg, logger: l, client: client}

	a.primary, err = newBackend(cfg.Backend.Primary, cfg, client, l)
	if err != nil {
		return nil, orchestrator.NewConfigurationError("primary backend", err)
	}
	a.selector = orchestrator.StaticBackend{Backend: a.primary}

	if cfg.Backend.Fallback != "" {
		a.fallback, err = newBackend(cfg.Backend.Fallback, cfg, client, l)
		if err != nil {
			return nil, orchestrator.NewConfigurationError("fallback backend", err)
		}
		a.checker = health.NewHealthChecker(a.primary, cfg.Backend.HealthInterval, cfg.Backend.FailThreshold, l)

		// 单次运行等不到周期探测，启动时连续探测到阈值为止
		for i := 0; i < max(cfg.Backend.FailThreshold, 1); i++ {
			if st := a.checker.CheckNow(ctx); st.ConsecutiveFails == 0 {
				break
			}
		}
		if cfg.Backend.HealthInterval > 0 {
			go a.checker.Start(ctx)
		}
		a.selector = degradation.NewDegradationController(a.primary, a.fallback, a.checker, l)
	}

	a.orch = orchestrator.New(orchestrator.Config{
		Separator:       cfg.Separator,
		TaskTimeout:     cfg.TaskTimeout,
		JobTimeout:      cfg.JobTimeout,
		InitConcurrency: cfg.InitConcurrency,
		Temperature:     cfg.Temperature,
		Prompt:          cfg.Prompt,
		RepeatThreshold: cfg.RepeatThreshold,
	}, orchestrator.Deps{
		Source:   audio.NewFFmpegSource(client, audio.DefaultSampleRate, l),
		Backends: a.selector,
		Logger:   l,
	})

	if cfg.Audit.Path != "" {
		a.audit = audit.NewLogger(cfg.Audit.Path)
	}
	return a, nil
}

// strategy builds the job strategy from the config.
func (a *app) strategy() (orchestrator.Strategy, error) {
	return orchestrator.ParseStrategy(a.cfg.Strategy, a.cfg.ChunkSeconds, a.cfg.Workers)
}

// transcribe runs one file through the orchestrator and records the outcome.
func (a *app) transcribe(ctx context.Context, path string, progress orchestrator.ProgressFunc) (*orchestrator.JobResult, error) {
	strategy, err := a.strategy()
	if err != nil {
		return nil, err
	}
	job := orchestrator.NewJob(path, a.cfg.Language, a.cfg.Model, strategy)
	res, err := a.orch.Run(ctx, job, progress)
	a.audit.LogJob(res)
	return res, err
}

// Close stops background work and flushes metrics.
func (a *app) Close() {
	if a.checker != nil {
		a.checker.Stop()
	}
	if err := a.audit.Close(); err != nil {
		a.logger.Warn("close audit log", "error", err)
	}
	if a.cfg.Metrics.Textfile != "" {
		if err := metrics.WriteTextfile(a.cfg.Metrics.Textfile); err != nil {
			a.logger.Warn("write metrics textfile", "path", a.cfg.Metrics.Textfile, "error", err)
		}
	}
}

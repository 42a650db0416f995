// Package orchestrator runs transcription jobs: it validates the job, loads
// the audio, and either transcribes it in one pass or splits it into chunks
// for the worker pool, reporting progress events along the way.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/houzhh15/aidg-transcribe/cmd/transcribe/internal/aggregator"
	"github.com/houzhh15/aidg-transcribe/cmd/transcribe/internal/audio"
	"github.com/houzhh15/aidg-transcribe/cmd/transcribe/internal/chunk"
	"github.com/houzhh15/aidg-transcribe/cmd/transcribe/internal/metrics"
	"github.com/houzhh15/aidg-transcribe/cmd/transcribe/internal/pool"
	"github.com/houzhh15/aidg-transcribe/cmd/transcribe/internal/simhash"
	"github.com/houzhh15/aidg-transcribe/cmd/transcribe/internal/whisper"
	"github.com/houzhh15/aidg-transcribe/pkg/logger"
)

// State values
type State string

const (
	StateIdle      State = "idle"
	StatePlanning  State = "planning"
	StateRunning   State = "running"
	StateCompleted State = "completed"
	StateFailed    State = "failed"
	StateCancelled State = "cancelled"
)

// Terminal reports whether s ends a job.
func (s State) Terminal() bool {
	return s == StateCompleted || s == StateFailed || s == StateCancelled
}

// BackendSelector supplies the backend a job initializes its workers from.
// *degradation.DegradationController satisfies it.
type BackendSelector interface {
	GetBackend() whisper.Backend
}

// StaticBackend always selects the same backend.
type StaticBackend struct {
	whisper.Backend
}

func (s StaticBackend) GetBackend() whisper.Backend { return s.Backend }

// Config holds runtime parameters shared by every job.
type Config struct {
	Separator       string        // joins chunk texts; default " "
	TaskTimeout     time.Duration // per chunk, 0 = none
	JobTimeout      time.Duration // whole job, 0 = none
	InitConcurrency int           // concurrent model loads, 0 = unbounded
	Temperature     float64
	Prompt          string
	RepeatThreshold int // simhash distance for repetition warnings, 0 = default
}

// Deps are the collaborators of an Orchestrator.
type Deps struct {
	Source   audio.Source
	Backends BackendSelector
	Logger   *slog.Logger
}

// JobResult is the outcome of Run. Text is set only for Completed jobs;
// ChunkErrors lists every failed chunk in index order.
type JobResult struct {
	JobID           string        `json:"job_id"`
	SourcePath      string        `json:"source_path"`
	Strategy        string        `json:"strategy"`
	Backend         string        `json:"backend,omitempty"`
	State           State         `json:"state"`
	Success         bool          `json:"success"`
	Text            string        `json:"text"`
	SuccessCount    int           `json:"success_count"`
	Total           int           `json:"total"`
	ChunkErrors     []*OrchError  `json:"chunk_errors,omitempty"`
	WorkerErrors    []*OrchError  `json:"worker_errors,omitempty"`
	RepeatedChunks  []int         `json:"repeated_chunks,omitempty"`
	DurationSeconds float64       `json:"duration_seconds"`
	Elapsed         time.Duration `json:"elapsed"`
	Err             error         `json:"-"`
}

// FailedIndices returns the indices of failed chunks, ascending.
func (r *JobResult) FailedIndices() []int {
	indices := make([]int, 0, len(r.ChunkErrors))
	for _, e := range r.ChunkErrors {
		indices = append(indices, e.Index)
	}
	return indices
}

// Orchestrator runs one job at a time; concurrent Run calls queue up.
type Orchestrator struct {
	cfg      Config
	source   audio.Source
	backends BackendSelector
	logger   *slog.Logger

	runMu sync.Mutex

	mu    sync.RWMutex
	state State
}

// New creates an Orchestrator in state Idle.
func New(cfg Config, deps Deps) *Orchestrator {
	if cfg.Separator == "" {
		cfg.Separator = aggregator.DefaultSeparator
	}
	return &Orchestrator{
		cfg:      cfg,
		source:   deps.Source,
		backends: deps.Backends,
		logger:   logger.OrDefault(deps.Logger).With("component", "orchestrator"),
		state:    StateIdle,
	}
}

// State returns the state of the current or last job.
func (o *Orchestrator) State() State {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.state
}

func (o *Orchestrator) setState(s State) {
	o.mu.Lock()
	o.state = s
	o.mu.Unlock()
}

// Run executes job and always returns a non-nil JobResult. The error is nil
// exactly when the job ends Completed; it is an *OrchError otherwise.
// A chunked job with some failed chunks still completes with partial text.
func (o *Orchestrator) Run(ctx context.Context, job Job, progress ProgressFunc) (*JobResult, error) {
	o.runMu.Lock()
	defer o.runMu.Unlock()

	if progress == nil {
		progress = func(Event) {}
	}
	start := time.Now()
	log := o.logger.With("job_id", job.ID)
	res := &JobResult{
		JobID:      job.ID,
		SourcePath: job.SourcePath,
		Strategy:   string(job.Strategy.Kind()),
		State:      StatePlanning,
	}
	o.setState(StatePlanning)

	finish := func(state State, err error) (*JobResult, error) {
		res.State = state
		res.Success = state == StateCompleted
		res.Elapsed = time.Since(start)
		res.Err = err
		o.setState(state)

		metrics.RecordJob(res.Strategy, string(state))
		metrics.RecordDuration("job", res.Elapsed.Seconds())
		if err != nil {
			metrics.RecordError("orchestrator", string(CodeOf(err)))
			log.Error("job finished", "state", state, "success", res.SuccessCount, "total", res.Total, "error", err)
			return res, err
		}
		log.Info("job finished",
			"state", state,
			"success", res.SuccessCount,
			"total", res.Total,
			"elapsed", res.Elapsed)
		return res, nil
	}

	if err := job.Validate(); err != nil {
		return finish(StateFailed, err)
	}

	if o.cfg.JobTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, o.cfg.JobTimeout)
		defer cancel()
	}

	log.Info("job started", "source", job.SourcePath, "strategy", job.Strategy.String(), "model", job.Model)

	buf, err := o.source.Load(ctx, job.SourcePath)
	if err != nil {
		if ctx.Err() != nil {
			return finish(StateCancelled, NewCancelledError(ctx.Err()))
		}
		return finish(StateFailed, NewSourceLoadError(job.SourcePath, err))
	}
	res.DurationSeconds = buf.Duration()
	progress(durationKnown(job.ID, res.DurationSeconds))

	backend := o.backends.GetBackend()
	res.Backend = backend.Name()

	if job.Strategy.IsChunked() {
		state, err := o.runChunked(ctx, job, buf, backend, res, progress, log)
		return finish(state, err)
	}
	state, err := o.runSequential(ctx, job, buf, backend, res, progress, log)
	return finish(state, err)
}

func (o *Orchestrator) options(job Job) whisper.TranscribeOptions {
	return whisper.TranscribeOptions{
		Language:    job.Language,
		Prompt:      o.cfg.Prompt,
		Temperature: o.cfg.Temperature,
	}
}

func (o *Orchestrator) runSequential(ctx context.Context, job Job, buf audio.Buffer, backend whisper.Backend, res *JobResult, progress ProgressFunc, log *slog.Logger) (State, error) {
	res.Total = 1
	o.setState(StateRunning)

	t, err := backend.Initialize(ctx, job.Model)
	if err != nil {
		progress(done(job.ID, 0, 1))
		if ctx.Err() != nil {
			return StateCancelled, NewCancelledError(ctx.Err())
		}
		initErr := NewWorkerInitError(0, err)
		res.WorkerErrors = append(res.WorkerErrors, initErr)
		return StateFailed, initErr
	}
	defer func() {
		if err := t.Close(); err != nil {
			log.Warn("failed to release model instance", "error", err)
		}
	}()

	opts := o.options(job)
	if o.cfg.TaskTimeout > 0 {
		opts.Timeout = o.cfg.TaskTimeout
	}
	text, err := NewSequentialEngine(t, opts, o.logger).TranscribeWhole(ctx, buf)
	if err != nil {
		progress(done(job.ID, 0, 1))
		if ctx.Err() != nil {
			return StateCancelled, NewCancelledError(ctx.Err())
		}
		return StateFailed, NewSequentialTranscriptionError(err)
	}

	res.Text = text
	res.SuccessCount = 1
	progress(done(job.ID, 1, 1))
	return StateCompleted, nil
}

func (o *Orchestrator) runChunked(ctx context.Context, job Job, buf audio.Buffer, backend whisper.Backend, res *JobResult, progress ProgressFunc, log *slog.Logger) (State, error) {
	chunks, err := chunk.Plan(buf, job.Strategy.ChunkSeconds())
	if err != nil {
		return StateFailed, NewConfigurationError("cannot plan chunks", err)
	}
	res.Total = len(chunks)
	progress(chunkCountKnown(job.ID, len(chunks)))
	log.Info("chunks planned", "chunks", len(chunks), "duration_seconds", res.DurationSeconds)

	o.setState(StateRunning)

	p := pool.New(pool.BackendFactory(backend, job.Model), pool.Config{
		Workers:         job.Strategy.Workers(),
		TaskTimeout:     o.cfg.TaskTimeout,
		InitConcurrency: o.cfg.InitConcurrency,
		Options:         o.options(job),
	}, o.logger)
	agg := aggregator.New(len(chunks), aggregator.WithSeparator(o.cfg.Separator))

	results := make(chan chunk.Result)
	var (
		out      aggregator.Output
		poolErr  error
		drainErr error
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		poolErr = p.Process(gctx, chunks, results)
		return poolErr
	})
	g.Go(func() error {
		out, drainErr = agg.Drain(gctx, results, func(r chunk.Result, fraction float64) {
			progress(chunkCompleted(job.ID, r.Index, r.OK(), fraction))
		})
		// 返回错误会取消 gctx，worker 不会阻塞在发送上
		return drainErr
	})
	_ = g.Wait()

	for _, we := range p.InitErrors() {
		res.WorkerErrors = append(res.WorkerErrors, NewWorkerInitError(we.WorkerID, we.Err))
	}

	// 按优先级判定终态：取消 > 全部 worker 初始化失败 > 内部错误
	switch {
	case ctx.Err() != nil:
		res.SuccessCount = agg.Succeeded()
		progress(done(job.ID, res.SuccessCount, res.Total))
		return StateCancelled, NewCancelledError(ctx.Err())
	case errors.Is(poolErr, pool.ErrAllWorkersFailed):
		progress(done(job.ID, 0, res.Total))
		return StateFailed, NewWorkerInitError(-1, poolErr)
	case drainErr != nil:
		res.SuccessCount = agg.Succeeded()
		progress(done(job.ID, res.SuccessCount, res.Total))
		return StateFailed, NewInternalError("chunk aggregation failed", errors.Join(drainErr, poolErr))
	case poolErr != nil:
		progress(done(job.ID, agg.Succeeded(), res.Total))
		return StateFailed, NewInternalError("worker pool failed", poolErr)
	}

	for _, ce := range out.Errors {
		res.ChunkErrors = append(res.ChunkErrors, NewChunkTranscriptionError(ce.Index, ce.Err))
	}
	res.SuccessCount = out.SuccessCount
	res.RepeatedChunks = simhash.FindRepeats(out.Texts, o.cfg.RepeatThreshold)
	if len(res.RepeatedChunks) > 0 {
		log.Warn("adjacent chunks repeat each other", "chunks", res.RepeatedChunks)
	}
	progress(done(job.ID, out.SuccessCount, out.Total))

	if out.SuccessCount == 0 {
		causes := make([]error, 0, len(res.ChunkErrors))
		for _, ce := range res.ChunkErrors {
			causes = append(causes, ce)
		}
		return StateFailed, NewOrchError(CHUNK_TRANSCRIPTION_ERROR,
			fmt.Sprintf("all %d chunks failed", out.Total), errors.Join(causes...))
	}

	res.Text = out.Text
	return StateCompleted, nil
}

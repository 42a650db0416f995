// Package pool runs chunk transcription on a fixed set of workers. Each
// worker lazily loads its own model instance, serves chunks one at a time
// and releases the instance when the work (or the job) ends.
package pool

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/houzhh15/aidg-transcribe/cmd/transcribe/internal/chunk"
	"github.com/houzhh15/aidg-transcribe/cmd/transcribe/internal/metrics"
	"github.com/houzhh15/aidg-transcribe/cmd/transcribe/internal/whisper"
	"github.com/houzhh15/aidg-transcribe/pkg/logger"
)

// Error codes used in logs and metrics; they match the orchestrator taxonomy.
const (
	codeWorkerInit = "WORKER_INIT_ERROR"
	codeChunk      = "CHUNK_TRANSCRIPTION_ERROR"
)

var (
	// ErrAllWorkersFailed is returned when no worker managed to initialize.
	ErrAllWorkersFailed = errors.New("all workers failed to initialize")

	// ErrNoChunks is returned when Process is called without work.
	ErrNoChunks = errors.New("no chunks to process")

	// ErrInvalidWorkers is returned for a worker count below one.
	ErrInvalidWorkers = errors.New("worker count must be positive")
)

// Factory produces the model instance for one worker. It is called once per
// worker, from that worker's goroutine.
type Factory func(ctx context.Context, workerID int) (whisper.Transcriber, error)

// BackendFactory adapts a Backend into a Factory for the given model.
func BackendFactory(backend whisper.Backend, model string) Factory {
	return func(ctx context.Context, _ int) (whisper.Transcriber, error) {
		return backend.Initialize(ctx, model)
	}
}

// Config controls a Pool.
type Config struct {
	// Workers is the requested worker count; Process clamps it to the number of chunks.
	Workers int

	// TaskTimeout bounds each chunk when > 0. Expiry fails that chunk only.
	TaskTimeout time.Duration

	// InitConcurrency bounds simultaneous model loads when > 0.
	InitConcurrency int

	// Options are passed to every Transcribe call.
	Options whisper.TranscribeOptions

	// Mode labels the chunk metrics ("chunked" unless set).
	Mode string
}

// WorkerError records a worker that never served a task.
type WorkerError struct {
	WorkerID int
	Err      error
}

func (e WorkerError) Error() string {
	return fmt.Sprintf("worker %d: %v", e.WorkerID, e.Err)
}

func (e WorkerError) Unwrap() error { return e.Err }

// Stats is a snapshot of worker lifecycle counters for the last Process call.
type Stats struct {
	Started     int // worker goroutines launched
	Initialized int // workers whose model loaded
	InitFailed  int // workers whose model failed to load
	Active      int // workers currently holding a model instance
	Completed   int // chunk results delivered
}

// Pool is not reusable concurrently: one Process call at a time.
type Pool struct {
	factory Factory
	cfg     Config
	logger  *slog.Logger

	started     atomic.Int64
	initialized atomic.Int64
	initFailed  atomic.Int64
	active      atomic.Int64
	completed   atomic.Int64

	mu         sync.Mutex
	initErrors []WorkerError
}

// New creates a Pool. A nil logger falls back to slog.Default().
func New(factory Factory, cfg Config, l *slog.Logger) *Pool {
	if cfg.Mode == "" {
		cfg.Mode = "chunked"
	}
	return &Pool{
		factory: factory,
		cfg:     cfg,
		logger:  logger.OrDefault(l).With("component", "pool"),
	}
}

// EffectiveWorkers clamps the requested worker count to the amount of work.
func EffectiveWorkers(requested, chunks int) int {
	return max(min(requested, chunks), 0)
}

// Stats returns the current lifecycle counters.
func (p *Pool) Stats() Stats {
	return Stats{
		Started:     int(p.started.Load()),
		Initialized: int(p.initialized.Load()),
		InitFailed:  int(p.initFailed.Load()),
		Active:      int(p.active.Load()),
		Completed:   int(p.completed.Load()),
	}
}

// InitErrors returns the workers that failed to initialize, by worker ID order
// of failure.
func (p *Pool) InitErrors() []WorkerError {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]WorkerError(nil), p.initErrors...)
}

// Process transcribes chunks and sends exactly one Result per chunk to
// results, in completion order. results is closed when Process returns, and
// by then every worker has released its model instance.
//
// Cancelling ctx stops dispatch; results for chunks in flight may be dropped
// and Process returns ctx.Err(). If every worker fails to initialize, Process
// returns ErrAllWorkersFailed joined with the individual causes.
func (p *Pool) Process(ctx context.Context, chunks []chunk.Chunk, results chan<- chunk.Result) error {
	defer close(results)

	if len(chunks) == 0 {
		return ErrNoChunks
	}
	if p.cfg.Workers <= 0 {
		return fmt.Errorf("%w: got %d", ErrInvalidWorkers, p.cfg.Workers)
	}

	p.reset()

	// All work is queued up front; idle workers pull the next chunk.
	tasks := make(chan chunk.Chunk, len(chunks))
	for _, c := range chunks {
		tasks <- c
	}
	close(tasks)

	var sem *semaphore.Weighted
	if p.cfg.InitConcurrency > 0 {
		sem = semaphore.NewWeighted(int64(p.cfg.InitConcurrency))
	}

	workers := EffectiveWorkers(p.cfg.Workers, len(chunks))
	p.logger.Info("starting workers", "requested", p.cfg.Workers, "workers", workers, "chunks", len(chunks))

	var wg sync.WaitGroup
	for id := 0; id < workers; id++ {
		wg.Add(1)
		p.started.Add(1)
		go func(workerID int) {
			defer wg.Done()
			p.runWorker(ctx, workerID, sem, tasks, results)
		}(id)
	}
	wg.Wait()

	if err := ctx.Err(); err != nil {
		return err
	}
	if p.initialized.Load() == 0 {
		causes := make([]error, 0, workers)
		for _, we := range p.InitErrors() {
			causes = append(causes, we)
		}
		return fmt.Errorf("%w: %w", ErrAllWorkersFailed, errors.Join(causes...))
	}
	return nil
}

func (p *Pool) reset() {
	p.started.Store(0)
	p.initialized.Store(0)
	p.initFailed.Store(0)
	p.completed.Store(0)
	p.mu.Lock()
	p.initErrors = nil
	p.mu.Unlock()
}

func (p *Pool) runWorker(ctx context.Context, workerID int, sem *semaphore.Weighted, tasks <-chan chunk.Chunk, results chan<- chunk.Result) {
	log := p.logger.With("worker_id", workerID)

	t, err := p.initWorker(ctx, workerID, sem)
	if err != nil {
		if ctx.Err() != nil {
			return
		}
		p.initFailed.Add(1)
		p.mu.Lock()
		p.initErrors = append(p.initErrors, WorkerError{WorkerID: workerID, Err: err})
		p.mu.Unlock()
		metrics.RecordWorkerInit(false)
		metrics.RecordError("pool", codeWorkerInit)
		log.Error("worker initialization failed", "error", err)
		return
	}

	p.initialized.Add(1)
	p.active.Add(1)
	metrics.RecordWorkerInit(true)
	metrics.WorkerStarted()
	defer func() {
		if err := t.Close(); err != nil {
			log.Warn("failed to release model instance", "error", err)
		}
		p.active.Add(-1)
		metrics.WorkerStopped()
	}()

	for {
		// 已取消时不再领取新切片
		if ctx.Err() != nil {
			return
		}
		var c chunk.Chunk
		var ok bool
		select {
		case <-ctx.Done():
			return
		case c, ok = <-tasks:
			if !ok {
				return
			}
		}

		res := p.transcribe(ctx, t, c)

		select {
		case results <- res:
			p.completed.Add(1)
		case <-ctx.Done():
			return
		}
	}
}

func (p *Pool) initWorker(ctx context.Context, workerID int, sem *semaphore.Weighted) (whisper.Transcriber, error) {
	if sem != nil {
		if err := sem.Acquire(ctx, 1); err != nil {
			return nil, err
		}
		defer sem.Release(1)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return p.factory(ctx, workerID)
}

// transcribe runs one chunk. Errors and panics of the model instance become
// a failed Result; they never take the worker down.
func (p *Pool) transcribe(ctx context.Context, t whisper.Transcriber, c chunk.Chunk) (res chunk.Result) {
	start := time.Now()
	res.Index = c.Index

	defer func() {
		if r := recover(); r != nil {
			res.Text = ""
			res.Err = fmt.Errorf("chunk %d: transcriber panic: %v", c.Index, r)
		}

		elapsed := time.Since(start)
		metrics.RecordDuration("chunk", elapsed.Seconds())
		metrics.RecordChunkProcessed(p.cfg.Mode, res.Err == nil)
		if res.Err != nil {
			metrics.RecordError("pool", codeChunk)
			logger.LogChunkProcessing(p.logger, "pool", "error", c.Index, elapsed.Milliseconds(), codeChunk)
			p.logger.Debug("chunk failed", "chunk_index", c.Index, "error", res.Err)
			return
		}
		logger.LogChunkProcessing(p.logger, "pool", "success", c.Index, elapsed.Milliseconds(), "")
	}()

	taskCtx := ctx
	if p.cfg.TaskTimeout > 0 {
		var cancel context.CancelFunc
		taskCtx, cancel = context.WithTimeout(ctx, p.cfg.TaskTimeout)
		defer cancel()
	}

	opts := p.cfg.Options
	out, err := t.Transcribe(taskCtx, c.Samples.Samples, c.Samples.SampleRate, &opts)
	if err != nil {
		res.Err = fmt.Errorf("chunk %d: %w", c.Index, err)
		return res
	}
	res.Text = out.FullText()
	return res
}

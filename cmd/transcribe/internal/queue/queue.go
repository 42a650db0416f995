// Package queue runs submitted jobs strictly one at a time and tracks the
// status of every entry.
package queue

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/houzhh15/aidg-transcribe/pkg/logger"
)

// Status 队列条目状态
type Status string

const (
	StatusQueued     Status = "queued"
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusError      Status = "error"
	StatusCancelled  Status = "cancelled"
)

// Terminal reports whether the entry will not change any more.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusError || s == StatusCancelled
}

var (
	// ErrClosed is returned by Submit after Close.
	ErrClosed = errors.New("queue is closed")
	// ErrAlreadyRunning is returned when Run is called twice concurrently.
	ErrAlreadyRunning = errors.New("queue is already running")
)

// Entry is a snapshot of one submitted job.
type Entry[T any] struct {
	ID          string
	Payload     T
	Status      Status
	Err         error
	SubmittedAt time.Time
	StartedAt   time.Time
	FinishedAt  time.Time
}

// Handler processes one entry. The context is cancelled when the entry is
// cancelled or Run's context ends.
type Handler[T any] func(ctx context.Context, e Entry[T]) error

type entry[T any] struct {
	Entry[T]
	cancel context.CancelFunc
}

// Queue is a FIFO of jobs drained by a single Run loop.
type Queue[T any] struct {
	mu      sync.Mutex
	order   []string // 提交顺序
	entries map[string]*entry[T]
	notify  chan struct{}
	closed  bool
	running bool
	logger  *slog.Logger
}

// New creates an empty queue.
func New[T any](l *slog.Logger) *Queue[T] {
	return &Queue[T]{
		entries: make(map[string]*entry[T]),
		notify:  make(chan struct{}, 1),
		logger:  logger.OrDefault(l).With("component", "queue"),
	}
}

// Submit enqueues payload and returns its entry ID.
func (q *Queue[T]) Submit(payload T) (string, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return "", ErrClosed
	}

	id := uuid.NewString()
	q.entries[id] = &entry[T]{Entry: Entry[T]{
		ID:          id,
		Payload:     payload,
		Status:      StatusQueued,
		SubmittedAt: time.Now(),
	}}
	q.order = append(q.order, id)
	q.wake()
	q.logger.Debug("job queued", "entry_id", id, "position", q.pendingLocked())
	return id, nil
}

// Close stops accepting submissions. Run returns once the queued entries are done.
func (q *Queue[T]) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()
	if !q.closed {
		q.closed = true
		q.wake()
	}
}

// Cancel cancels a queued or processing entry. It returns false when the
// entry is unknown or already finished.
func (q *Queue[T]) Cancel(id string) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	e, ok := q.entries[id]
	if !ok || e.Status.Terminal() {
		return false
	}
	switch e.Status {
	case StatusQueued:
		e.Status = StatusCancelled
		e.FinishedAt = time.Now()
	case StatusProcessing:
		// Run 负责写入最终状态
		e.cancel()
	}
	q.logger.Info("job cancel requested", "entry_id", id)
	return true
}

// Status returns a snapshot of one entry.
func (q *Queue[T]) Status(id string) (Entry[T], bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	e, ok := q.entries[id]
	if !ok {
		return Entry[T]{}, false
	}
	return e.Entry, true
}

// Entries returns snapshots of all entries in submission order.
func (q *Queue[T]) Entries() []Entry[T] {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := make([]Entry[T], 0, len(q.order))
	for _, id := range q.order {
		out = append(out, q.entries[id].Entry)
	}
	return out
}

// Pending returns the number of entries waiting to start.
func (q *Queue[T]) Pending() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.pendingLocked()
}

// Run processes entries one at a time until the queue is closed and empty,
// or ctx ends. On ctx end the remaining queued entries are cancelled and
// ctx.Err() is returned.
func (q *Queue[T]) Run(ctx context.Context, handler Handler[T]) error {
	q.mu.Lock()
	if q.running {
		q.mu.Unlock()
		return ErrAlreadyRunning
	}
	q.running = true
	q.mu.Unlock()

	defer func() {
		q.mu.Lock()
		q.running = false
		q.mu.Unlock()
	}()

	for {
		if err := ctx.Err(); err != nil {
			q.cancelQueued()
			return err
		}

		e, entryCtx, done := q.next(ctx)
		if e == nil {
			if done {
				return nil
			}
			select {
			case <-q.notify:
			case <-ctx.Done():
			}
			continue
		}

		q.process(entryCtx, e, handler)
	}
}

// next marks the oldest queued entry as processing. done is true when the
// queue is closed and nothing is left.
func (q *Queue[T]) next(ctx context.Context) (*entry[T], context.Context, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	for _, id := range q.order {
		e := q.entries[id]
		if e.Status != StatusQueued {
			continue
		}
		entryCtx, cancel := context.WithCancel(ctx)
		e.Status = StatusProcessing
		e.StartedAt = time.Now()
		e.cancel = cancel
		return e, entryCtx, false
	}
	return nil, nil, q.closed
}

func (q *Queue[T]) process(ctx context.Context, e *entry[T], handler Handler[T]) {
	q.mu.Lock()
	snapshot := e.Entry
	q.mu.Unlock()

	q.logger.Info("job started", "entry_id", e.ID)
	err := q.invoke(ctx, snapshot, handler)

	// 先记录取消状态，再释放 entry ctx
	cancelled := ctx.Err() != nil

	q.mu.Lock()
	defer q.mu.Unlock()
	e.cancel()
	e.FinishedAt = time.Now()
	e.Err = err
	switch {
	case cancelled:
		e.Status = StatusCancelled
	case err != nil:
		e.Status = StatusError
	default:
		e.Status = StatusCompleted
	}
	q.logger.Info("job finished", "entry_id", e.ID, "status", e.Status,
		"duration_ms", e.FinishedAt.Sub(e.StartedAt).Milliseconds())
}

func (q *Queue[T]) invoke(ctx context.Context, e Entry[T], handler Handler[T]) (err error) {
	defer func() {
		if r := recover(); r != nil {
			q.logger.Error("job handler panicked", "entry_id", e.ID, "panic", r)
			err = errors.New("job handler panicked")
		}
	}()
	return handler(ctx, e)
}

func (q *Queue[T]) cancelQueued() {
	q.mu.Lock()
	defer q.mu.Unlock()
	now := time.Now()
	for _, id := range q.order {
		if e := q.entries[id]; e.Status == StatusQueued {
			e.Status = StatusCancelled
			e.FinishedAt = now
		}
	}
}

func (q *Queue[T]) pendingLocked() int {
	n := 0
	for _, id := range q.order {
		if q.entries[id].Status == StatusQueued {
			n++
		}
	}
	return n
}

// wake 非阻塞通知 Run 循环
func (q *Queue[T]) wake() {
	select {
	case q.notify <- struct{}{}:
	default:
	}
}

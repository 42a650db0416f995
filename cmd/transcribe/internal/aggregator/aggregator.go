// Package aggregator reassembles chunk results that arrive in any order into
// one transcript ordered by chunk index.
package aggregator

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/houzhh15/aidg-transcribe/cmd/transcribe/internal/chunk"
)

var (
	// ErrDuplicateIndex means a chunk was delivered twice; the pool
	// guarantees exactly-once delivery, so this is an internal fault.
	ErrDuplicateIndex = errors.New("duplicate chunk result")

	// ErrIndexOutOfRange means a result index outside [0, expected).
	ErrIndexOutOfRange = errors.New("chunk index out of range")

	// ErrIncomplete is returned by Output before every slot is filled.
	ErrIncomplete = errors.New("aggregation incomplete")
)

// DefaultSeparator joins chunk texts.
const DefaultSeparator = " "

// ChunkError names a failed chunk.
type ChunkError struct {
	Index int
	Err   error
}

func (e ChunkError) Error() string {
	return fmt.Sprintf("chunk %d: %v", e.Index, e.Err)
}

func (e ChunkError) Unwrap() error { return e.Err }

// Output is the assembled transcript.
type Output struct {
	Text         string
	Texts        []string     // per-chunk text by index; "" for failed chunks
	Errors       []ChunkError // sorted by index
	SuccessCount int
	Total        int
}

// Option configures an Aggregator.
type Option func(*Aggregator)

// WithSeparator overrides DefaultSeparator.
func WithSeparator(sep string) Option {
	return func(a *Aggregator) { a.separator = sep }
}

// Aggregator holds one slot per chunk. Add is safe for concurrent use.
type Aggregator struct {
	separator string

	mu     sync.Mutex
	slots  []*chunk.Result
	filled int
}

// New creates an Aggregator expecting results for indices 0..expected-1.
func New(expected int, opts ...Option) *Aggregator {
	a := &Aggregator{
		separator: DefaultSeparator,
		slots:     make([]*chunk.Result, max(expected, 0)),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Expected returns the number of slots.
func (a *Aggregator) Expected() int {
	return len(a.slots)
}

// Add stores r in its slot. A second result for the same index returns
// ErrDuplicateIndex and leaves the first one in place.
func (a *Aggregator) Add(r chunk.Result) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if r.Index < 0 || r.Index >= len(a.slots) {
		return fmt.Errorf("%w: index %d, expected %d chunks", ErrIndexOutOfRange, r.Index, len(a.slots))
	}
	if a.slots[r.Index] != nil {
		return fmt.Errorf("%w: index %d", ErrDuplicateIndex, r.Index)
	}
	a.slots[r.Index] = &r
	a.filled++
	return nil
}

// Filled returns how many slots hold a result.
func (a *Aggregator) Filled() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.filled
}

// Succeeded returns how many filled slots hold a successful result.
func (a *Aggregator) Succeeded() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	n := 0
	for _, s := range a.slots {
		if s != nil && s.Err == nil {
			n++
		}
	}
	return n
}

// Progress returns filled/expected in [0, 1]. An aggregator with no slots
// reports 1.
func (a *Aggregator) Progress() float64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	if len(a.slots) == 0 {
		return 1
	}
	return float64(a.filled) / float64(len(a.slots))
}

// Complete reports whether every slot is filled.
func (a *Aggregator) Complete() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.filled == len(a.slots)
}

// Missing returns the indices without a result, ascending.
func (a *Aggregator) Missing() []int {
	a.mu.Lock()
	defer a.mu.Unlock()
	var missing []int
	for i, s := range a.slots {
		if s == nil {
			missing = append(missing, i)
		}
	}
	return missing
}

// Output assembles the transcript. It fails with ErrIncomplete until every
// slot is filled; partial text is never returned as final.
func (a *Aggregator) Output() (Output, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.filled != len(a.slots) {
		return Output{}, fmt.Errorf("%w: %d of %d chunks", ErrIncomplete, a.filled, len(a.slots))
	}

	out := Output{
		Texts: make([]string, len(a.slots)),
		Total: len(a.slots),
	}
	for i, s := range a.slots {
		if s.Err != nil {
			out.Errors = append(out.Errors, ChunkError{Index: i, Err: s.Err})
			continue
		}
		out.Texts[i] = strings.TrimSpace(s.Text)
		out.SuccessCount++
	}

	// 失败切片保留空占位，维持前后文本的相对位置
	if out.SuccessCount > 0 {
		out.Text = strings.Join(out.Texts, a.separator)
	}
	return out, nil
}

// Drain consumes results until the channel closes or ctx ends, calling
// onResult after each accepted result. It stops at the first Add error.
// The returned Output is only valid when the error is nil.
func (a *Aggregator) Drain(ctx context.Context, results <-chan chunk.Result, onResult func(r chunk.Result, progress float64)) (Output, error) {
	for {
		select {
		case <-ctx.Done():
			return Output{}, ctx.Err()
		case r, ok := <-results:
			if !ok {
				return a.Output()
			}
			if err := a.Add(r); err != nil {
				return Output{}, err
			}
			if onResult != nil {
				onResult(r, a.Progress())
			}
		}
	}
}

package orchestrator

import (
	"errors"
	"fmt"
	"math"
	"os"
	"strings"

	"github.com/google/uuid"
)

// StrategyKind names a transcription strategy.
type StrategyKind string

const (
	StrategySequential StrategyKind = "sequential"
	StrategyChunked    StrategyKind = "chunked"
)

// Strategy is either Sequential or Chunked(chunkSeconds, workers). The zero
// value is invalid; build one with Sequential, Chunked or ParseStrategy.
type Strategy struct {
	kind         StrategyKind
	chunkSeconds float64
	workers      int
}

// Sequential transcribes the whole recording in one call.
func Sequential() Strategy {
	return Strategy{kind: StrategySequential}
}

// Chunked splits the recording into chunkSeconds windows transcribed by
// workers in parallel.
func Chunked(chunkSeconds float64, workers int) Strategy {
	return Strategy{kind: StrategyChunked, chunkSeconds: chunkSeconds, workers: workers}
}

// ParseStrategy builds a Strategy from its name; chunk settings are ignored
// for "sequential".
func ParseStrategy(name string, chunkSeconds float64, workers int) (Strategy, error) {
	switch StrategyKind(strings.ToLower(strings.TrimSpace(name))) {
	case StrategySequential:
		return Sequential(), nil
	case StrategyChunked, "":
		return Chunked(chunkSeconds, workers), nil
	default:
		return Strategy{}, fmt.Errorf("unknown strategy %q (want sequential or chunked)", name)
	}
}

func (s Strategy) Kind() StrategyKind    { return s.kind }
func (s Strategy) IsChunked() bool       { return s.kind == StrategyChunked }
func (s Strategy) ChunkSeconds() float64 { return s.chunkSeconds }
func (s Strategy) Workers() int          { return s.workers }

func (s Strategy) String() string {
	if s.IsChunked() {
		return fmt.Sprintf("chunked(%gs, %d workers)", s.chunkSeconds, s.workers)
	}
	return string(s.kind)
}

func (s Strategy) validate() error {
	switch s.kind {
	case StrategySequential:
		return nil
	case StrategyChunked:
		var errs []error
		if s.chunkSeconds <= 0 || math.IsNaN(s.chunkSeconds) || math.IsInf(s.chunkSeconds, 0) {
			errs = append(errs, fmt.Errorf("chunk duration must be positive, got %v", s.chunkSeconds))
		}
		if s.workers <= 0 {
			errs = append(errs, fmt.Errorf("worker count must be positive, got %d", s.workers))
		}
		return errors.Join(errs...)
	default:
		return errors.New("strategy is not set")
	}
}

// Job describes one transcription. It is not modified while it runs.
type Job struct {
	ID         string
	SourcePath string
	Language   string // empty means auto-detect
	Model      string
	Strategy   Strategy
}

// NewJob creates a Job with a fresh ID.
func NewJob(sourcePath, language, model string, strategy Strategy) Job {
	return Job{
		ID:         uuid.NewString(),
		SourcePath: sourcePath,
		Language:   language,
		Model:      model,
		Strategy:   strategy,
	}
}

// Validate checks the job before any audio is decoded: the source must be an
// existing regular file and the strategy parameters must be usable. All
// problems are reported together as one ConfigurationError.
func (j Job) Validate() error {
	var errs []error
	if err := j.Strategy.validate(); err != nil {
		errs = append(errs, err)
	}

	if strings.TrimSpace(j.SourcePath) == "" {
		errs = append(errs, errors.New("source path is empty"))
	} else if info, err := os.Stat(j.SourcePath); err != nil {
		errs = append(errs, fmt.Errorf("source %s: %w", j.SourcePath, err))
	} else if !info.Mode().IsRegular() {
		errs = append(errs, fmt.Errorf("source %s is not a regular file", j.SourcePath))
	}

	if len(errs) == 0 {
		return nil
	}
	return NewConfigurationError("invalid job", errors.Join(errs...))
}

// Package chunk splits a decoded recording into index-tagged windows and
// defines the result each window produces.
package chunk

import (
	"errors"
	"fmt"
	"math"

	"github.com/houzhh15/aidg-transcribe/cmd/transcribe/internal/audio"
)

var (
	// ErrInvalidChunkDuration is returned for a chunk duration that is not a
	// positive finite number of seconds.
	ErrInvalidChunkDuration = errors.New("chunk duration must be positive")

	// ErrInvalidSampleRate is returned when the buffer carries no usable rate.
	ErrInvalidSampleRate = errors.New("sample rate must be positive")
)

// Chunk is one contiguous window of the source recording.
// Index order equals temporal order equals submission order.
type Chunk struct {
	Index              int
	Samples            audio.Buffer
	StartOffsetSeconds float64
}

// Duration returns the chunk length in seconds.
func (c Chunk) Duration() float64 {
	return c.Samples.Duration()
}

// Result is the outcome of transcribing one chunk. Exactly one Result is
// produced per chunk; Text is empty whenever Err is set.
type Result struct {
	Index int
	Text  string
	Err   error
}

// OK reports whether the chunk was transcribed.
func (r Result) OK() bool {
	return r.Err == nil
}

// WindowSamples returns the number of samples in a full window:
// chunkSeconds*sampleRate rounded to the nearest sample, at least 1.
func WindowSamples(chunkSeconds float64, sampleRate int) int {
	return max(int(math.Round(chunkSeconds*float64(sampleRate))), 1)
}

// Plan partitions buf into windows of chunkSeconds, rounded to whole samples
// (see WindowSamples). A recording shorter than one window yields a single
// chunk covering all of it; otherwise the last window holds the remainder. Windows never overlap and together cover every
// sample exactly once.
func Plan(buf audio.Buffer, chunkSeconds float64) ([]Chunk, error) {
	if chunkSeconds <= 0 || math.IsNaN(chunkSeconds) || math.IsInf(chunkSeconds, 0) {
		return nil, fmt.Errorf("%w: got %v", ErrInvalidChunkDuration, chunkSeconds)
	}
	if buf.SampleRate <= 0 {
		return nil, fmt.Errorf("%w: got %d", ErrInvalidSampleRate, buf.SampleRate)
	}

	if buf.Duration() < chunkSeconds {
		return []Chunk{{Index: 0, Samples: buf}}, nil
	}

	window := WindowSamples(chunkSeconds, buf.SampleRate)
	total := buf.Len()
	chunks := make([]Chunk, 0, (total+window-1)/window)
	for start := 0; start < total; start += window {
		chunks = append(chunks, Chunk{
			Index:              len(chunks),
			Samples:            buf.Slice(start, start+window),
			StartOffsetSeconds: audio.DurationSeconds(start, buf.SampleRate),
		})
	}
	return chunks, nil
}

// Package audio holds the in-memory audio representation the transcription
// pipeline works on, plus WAV codec helpers and the ffmpeg-backed source.
package audio

// DefaultSampleRate is the rate whisper models expect.
const DefaultSampleRate = 16000

// Buffer is an immutable run of mono samples normalised to [-1, 1].
// Slices share the backing array with their parent; nothing writes to it
// after decoding.
type Buffer struct {
	Samples    []float32
	SampleRate int
}

// Len returns the number of samples.
func (b Buffer) Len() int {
	return len(b.Samples)
}

// Duration returns the buffer length in seconds.
func (b Buffer) Duration() float64 {
	return DurationSeconds(len(b.Samples), b.SampleRate)
}

// Slice returns samples [start, end) as a Buffer with the same rate.
// Bounds are clamped to the buffer.
func (b Buffer) Slice(start, end int) Buffer {
	if start < 0 {
		start = 0
	}
	if end > len(b.Samples) {
		end = len(b.Samples)
	}
	if start > end {
		start = end
	}
	return Buffer{Samples: b.Samples[start:end:end], SampleRate: b.SampleRate}
}

// DurationSeconds converts a sample count to seconds.
func DurationSeconds(samples, sampleRate int) float64 {
	if sampleRate <= 0 {
		return 0
	}
	return float64(samples) / float64(sampleRate)
}

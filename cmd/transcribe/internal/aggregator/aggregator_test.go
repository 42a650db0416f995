package aggregator

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/houzhh15/aidg-transcribe/cmd/transcribe/internal/chunk"
)

func results(texts ...string) []chunk.Result {
	out := make([]chunk.Result, len(texts))
	for i, text := range texts {
		out[i] = chunk.Result{Index: i, Text: text}
	}
	return out
}

func TestOutputJoinsInIndexOrder(t *testing.T) {
	a := New(3)
	require.NoError(t, a.Add(chunk.Result{Index: 2, Text: "three"}))
	require.NoError(t, a.Add(chunk.Result{Index: 0, Text: " one "}))
	require.NoError(t, a.Add(chunk.Result{Index: 1, Text: "two\n"}))

	out, err := a.Output()
	require.NoError(t, err)
	assert.Equal(t, "one two three", out.Text)
	assert.Equal(t, 3, out.SuccessCount)
	assert.Equal(t, 3, out.Total)
	assert.Empty(t, out.Errors)
}

func TestOutputIsOrderInvariant(t *testing.T) {
	base := results("alpha", "beta", "gamma", "delta", "epsilon", "zeta", "eta")
	base[3] = chunk.Result{Index: 3, Err: errors.New("boom")}

	reference := New(len(base))
	for _, r := range base {
		require.NoError(t, reference.Add(r))
	}
	want, err := reference.Output()
	require.NoError(t, err)

	rng := rand.New(rand.NewSource(42))
	for trial := 0; trial < 50; trial++ {
		perm := rng.Perm(len(base))
		a := New(len(base))
		for _, i := range perm {
			require.NoError(t, a.Add(base[i]))
		}
		got, err := a.Output()
		require.NoError(t, err)
		assert.Equal(t, want.Text, got.Text, "permutation %v", perm)
	}
}

func TestFailedChunkKeepsPlaceholder(t *testing.T) {
	for k := 0; k < 4; k++ {
		t.Run(fmt.Sprintf("chunk_%d_fails", k), func(t *testing.T) {
			in := results("a", "b", "c", "d")
			in[k] = chunk.Result{Index: k, Err: errors.New("transcription failed")}

			a := New(len(in))
			for _, r := range in {
				require.NoError(t, a.Add(r))
			}
			out, err := a.Output()
			require.NoError(t, err)

			assert.Equal(t, 3, out.SuccessCount)
			require.Len(t, out.Errors, 1)
			assert.Equal(t, k, out.Errors[0].Index)
			assert.Equal(t, "", out.Texts[k])

			expected := []string{"a", "b", "c", "d"}
			expected[k] = ""
			assert.Equal(t, fmt.Sprintf("%s %s %s %s", expected[0], expected[1], expected[2], expected[3]), out.Text)
		})
	}
}

func TestAllChunksFailedGivesEmptyText(t *testing.T) {
	a := New(3)
	for i := 0; i < 3; i++ {
		require.NoError(t, a.Add(chunk.Result{Index: i, Err: fmt.Errorf("fail %d", i)}))
	}
	out, err := a.Output()
	require.NoError(t, err)
	assert.Equal(t, "", out.Text)
	assert.Equal(t, 0, out.SuccessCount)
	require.Len(t, out.Errors, 3)
	for i, ce := range out.Errors {
		assert.Equal(t, i, ce.Index)
		assert.ErrorContains(t, ce, fmt.Sprintf("chunk %d: fail %d", i, i))
	}
}

func TestCustomSeparator(t *testing.T) {
	a := New(2, WithSeparator("\n"))
	for _, r := range results("first line", "second line") {
		require.NoError(t, a.Add(r))
	}
	out, err := a.Output()
	require.NoError(t, err)
	assert.Equal(t, "first line\nsecond line", out.Text)
}

func TestAddRejectsInvalidResults(t *testing.T) {
	a := New(2)
	require.NoError(t, a.Add(chunk.Result{Index: 0, Text: "kept"}))

	err := a.Add(chunk.Result{Index: 0, Text: "replacement"})
	assert.ErrorIs(t, err, ErrDuplicateIndex)

	assert.ErrorIs(t, a.Add(chunk.Result{Index: 2}), ErrIndexOutOfRange)
	assert.ErrorIs(t, a.Add(chunk.Result{Index: -1}), ErrIndexOutOfRange)
	assert.Equal(t, 1, a.Filled())

	require.NoError(t, a.Add(chunk.Result{Index: 1, Text: "second"}))
	out, err := a.Output()
	require.NoError(t, err)
	assert.Equal(t, "kept second", out.Text)
}

func TestProgressAndCompletion(t *testing.T) {
	a := New(4)
	assert.Equal(t, 0.0, a.Progress())
	assert.False(t, a.Complete())
	assert.Equal(t, []int{0, 1, 2, 3}, a.Missing())

	require.NoError(t, a.Add(chunk.Result{Index: 2, Text: "x"}))
	assert.Equal(t, 0.25, a.Progress())

	_, err := a.Output()
	assert.ErrorIs(t, err, ErrIncomplete, "partial text is never final")

	require.NoError(t, a.Add(chunk.Result{Index: 0, Text: "x"}))
	require.NoError(t, a.Add(chunk.Result{Index: 1, Err: errors.New("x")}))
	assert.Equal(t, []int{3}, a.Missing())
	assert.Equal(t, 2, a.Succeeded())
	require.NoError(t, a.Add(chunk.Result{Index: 3, Text: "x"}))
	assert.Equal(t, 1.0, a.Progress())
	assert.True(t, a.Complete())
	assert.Equal(t, 4, a.Expected())

	assert.Equal(t, 1.0, New(0).Progress())
}

func TestConcurrentAdds(t *testing.T) {
	const n = 200
	a := New(n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			assert.NoError(t, a.Add(chunk.Result{Index: i, Text: fmt.Sprint(i)}))
		}(i)
	}
	wg.Wait()

	out, err := a.Output()
	require.NoError(t, err)
	assert.Equal(t, n, out.SuccessCount)
	for i, text := range out.Texts {
		assert.Equal(t, fmt.Sprint(i), text)
	}
}

func TestDrain(t *testing.T) {
	t.Run("reports progress per result", func(t *testing.T) {
		ch := make(chan chunk.Result, 3)
		ch <- chunk.Result{Index: 1, Text: "b"}
		ch <- chunk.Result{Index: 0, Text: "a"}
		ch <- chunk.Result{Index: 2, Text: "c"}
		close(ch)

		var seen []int
		var fractions []float64
		out, err := New(3).Drain(context.Background(), ch, func(r chunk.Result, progress float64) {
			seen = append(seen, r.Index)
			fractions = append(fractions, progress)
		})
		require.NoError(t, err)
		assert.Equal(t, "a b c", out.Text)
		assert.Equal(t, []int{1, 0, 2}, seen)
		assert.InDeltaSlice(t, []float64{1.0 / 3, 2.0 / 3, 1}, fractions, 1e-9)
	})

	t.Run("closed early is incomplete", func(t *testing.T) {
		ch := make(chan chunk.Result, 1)
		ch <- chunk.Result{Index: 0, Text: "a"}
		close(ch)

		_, err := New(2).Drain(context.Background(), ch, nil)
		assert.ErrorIs(t, err, ErrIncomplete)
	})

	t.Run("duplicate is fatal", func(t *testing.T) {
		ch := make(chan chunk.Result, 2)
		ch <- chunk.Result{Index: 0, Text: "a"}
		ch <- chunk.Result{Index: 0, Text: "again"}
		close(ch)

		_, err := New(2).Drain(context.Background(), ch, nil)
		assert.ErrorIs(t, err, ErrDuplicateIndex)
	})

	t.Run("context cancelled", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		_, err := New(1).Drain(ctx, make(chan chunk.Result), nil)
		assert.ErrorIs(t, err, context.Canceled)
	})
}

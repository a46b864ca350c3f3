package utils

import (
	"log/slog"
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestWorkerPool_RangeOverResults(t *testing.T) {
	wp := NewWorkerPool[int, int](3, 0, 0)
	wp.StartWorkers(func(n int) int { return n * n })

	go func() {
		for i := 1; i <= 20; i++ {
			wp.SubmitJob(i)
		}
		wp.Close()
	}()

	var sum int
	for r := range wp.Results {
		sum += r
	}
	assert.Equal(t, 2870, sum)
}

func TestWorkerPool_CloseIsIdempotent(t *testing.T) {
	wp := NewWorkerPool[int, int](1, 1, 1)
	wp.StartWorkers(func(n int) int { return n })
	wp.Close()
	wp.Close()

	_, open := <-wp.Results
	assert.False(t, open)
}

func TestNewWorkerPool_DefaultsToCPUCount(t *testing.T) {
	wp := NewWorkerPool[int, int](0, 0, 0)
	assert.Positive(t, wp.NumWorkers)
}

func TestProcessBatch(t *testing.T) {
	pp := NewParallelProcessor(4, slog.Default())

	results := ProcessBatch(pp, []string{"a", "bb", "ccc"}, func(s string) int { return len(s) }, "measuring")
	sort.Ints(results)
	assert.Equal(t, []int{1, 2, 3}, results)

	assert.Empty(t, ProcessBatch(pp, []string{}, func(s string) int { return 0 }, "nothing"))
}

func TestProgressTracker(t *testing.T) {
	tracker := NewProgressTracker(4, "files", 2, slog.Default())
	for range 3 {
		tracker.Increment("file", "x.txt")
	}

	processed, total, pct := tracker.GetProgress()
	assert.Equal(t, int64(3), processed)
	assert.Equal(t, int64(4), total)
	assert.InDelta(t, 75.0, pct, 1e-9)

	empty := NewProgressTracker(0, "nothing", 0, nil)
	_, _, pct = empty.GetProgress()
	assert.Zero(t, pct)
}

package utils

import (
	"log/slog"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"github.com/tj/go-spin"
)

// WorkerPool manages a pool of goroutines for parallel processing
type WorkerPool[J, R any] struct {
	NumWorkers int
	JobQueue   chan J
	Results    chan R
	wg         sync.WaitGroup
	started    bool
	closed     bool
	mu         sync.Mutex
}

// NewWorkerPool creates a new worker pool with specified number of workers
func NewWorkerPool[J, R any](numWorkers int, jobBufferSize int, resultBufferSize int) *WorkerPool[J, R] {
	if numWorkers <= 0 {
		numWorkers = runtime.NumCPU()
	}

	return &WorkerPool[J, R]{
		NumWorkers: numWorkers,
		JobQueue:   make(chan J, jobBufferSize),
		Results:    make(chan R, resultBufferSize),
	}
}

// StartWorkers starts the worker goroutines with the given work function
func (wp *WorkerPool[J, R]) StartWorkers(workFunc func(J) R) {
	wp.mu.Lock()
	defer wp.mu.Unlock()

	if wp.started {
		return
	}

	wp.started = true
	wp.wg.Add(wp.NumWorkers)

	for i := 0; i < wp.NumWorkers; i++ {
		go wp.worker(workFunc)
	}
}

func (wp *WorkerPool[J, R]) worker(workFunc func(J) R) {
	defer wp.wg.Done()

	for job := range wp.JobQueue {
		wp.Results <- workFunc(job)
	}
}

// SubmitJob adds a job to the job queue
func (wp *WorkerPool[J, R]) SubmitJob(job J) {
	wp.JobQueue <- job
}

// Close stops accepting jobs. Results is closed once every worker has
// finished, so consumers can range over it.
func (wp *WorkerPool[J, R]) Close() {
	wp.mu.Lock()
	defer wp.mu.Unlock()

	if wp.closed {
		return
	}
	wp.closed = true
	close(wp.JobQueue)

	go func() {
		wp.wg.Wait()
		close(wp.Results)
	}()
}

// ProgressTracker tracks progress of concurrent operations
type ProgressTracker struct {
	Total     int64
	Processed int64
	StartTime time.Time
	Name      string
	Every     int64

	logger  *slog.Logger
	spinner *spin.Spinner
	mu      sync.Mutex
}

// NewProgressTracker creates a new progress tracker that logs every `every`
// items and on completion.
func NewProgressTracker(total int64, name string, every int64, logger *slog.Logger) *ProgressTracker {
	if every <= 0 {
		every = 1
	}
	if logger == nil {
		logger = slog.Default()
	}
	spinner := spin.New()
	spinner.Set(spin.Box1)

	return &ProgressTracker{
		Total:     total,
		StartTime: time.Now(),
		Name:      name,
		Every:     every,
		logger:    logger,
		spinner:   spinner,
	}
}

// Increment counts one finished item and logs progress. attrs are appended
// to the log record.
func (pt *ProgressTracker) Increment(attrs ...any) {
	processed := atomic.AddInt64(&pt.Processed, 1)

	if processed%pt.Every != 0 && processed != pt.Total {
		return
	}

	pt.mu.Lock()
	frame := pt.spinner.Next()
	pt.mu.Unlock()

	elapsed := time.Since(pt.StartTime).Seconds()
	rate := 0.0
	if elapsed > 0 {
		rate = float64(processed) / elapsed
	}

	args := []any{
		"processed", processed,
		"total", pt.Total,
		"percent", percentage(processed, pt.Total),
		"rate", rate,
	}
	pt.logger.Info(frame+" "+pt.Name, append(args, attrs...)...)
}

// GetProgress returns the current progress
func (pt *ProgressTracker) GetProgress() (int64, int64, float64) {
	processed := atomic.LoadInt64(&pt.Processed)
	return processed, pt.Total, percentage(processed, pt.Total)
}

func percentage(processed, total int64) float64 {
	if total <= 0 {
		return 0
	}
	return float64(processed) / float64(total) * 100
}

// ParallelProcessor provides utilities for parallel processing
type ParallelProcessor struct {
	NumWorkers int
	Logger     *slog.Logger
}

// NewParallelProcessor creates a new parallel processor
func NewParallelProcessor(numWorkers int, logger *slog.Logger) *ParallelProcessor {
	if numWorkers <= 0 {
		numWorkers = runtime.NumCPU()
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &ParallelProcessor{
		NumWorkers: numWorkers,
		Logger:     logger,
	}
}

// ProcessBatch runs workFunc over items in parallel. Results arrive in
// completion order.
func ProcessBatch[J, R any](pp *ParallelProcessor, items []J, workFunc func(J) R, progressName string) []R {
	if len(items) == 0 {
		return []R{}
	}

	tracker := NewProgressTracker(int64(len(items)), progressName, progressEvery(len(items)), pp.Logger)

	wp := NewWorkerPool[J, R](pp.NumWorkers, len(items), len(items))
	wp.StartWorkers(func(job J) R {
		result := workFunc(job)
		tracker.Increment()
		return result
	})

	for _, item := range items {
		wp.SubmitJob(item)
	}
	wp.Close()

	results := make([]R, 0, len(items))
	for result := range wp.Results {
		results = append(results, result)
	}

	pp.Logger.Debug("parallel batch complete", "name", progressName, "items", len(results))
	return results
}

// progressEvery logs roughly ten progress lines per batch.
func progressEvery(n int) int64 {
	if n < 10 {
		return 1
	}
	return int64(n / 10)
}

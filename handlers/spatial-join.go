package handlers

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/bsaid97/go-spatial-join/aggregate"
	"github.com/bsaid97/go-spatial-join/ingest"
	"github.com/bsaid97/go-spatial-join/observability"
	"github.com/bsaid97/go-spatial-join/utils"
)

// Summary describes a finished aggregation run.
type Summary struct {
	Files        int
	Processed    int
	Failed       int
	LinesSkipped int
	aggregate.Stats
}

type unitResult struct {
	Name     string
	Batch    ingest.Batch
	Stats    aggregate.Stats
	Err      error
	Duration time.Duration
}

// SpatialJoin feeds every unit of source through the engine. A unit that
// cannot be read or reprojected is logged and skipped; it contributes
// nothing. Only cancellation of ctx or a failing source stops the run.
func SpatialJoin(ctx context.Context, source ingest.LineSource, total int, engine *aggregate.Engine, workers int, logger *slog.Logger, metrics *observability.Metrics) (Summary, error) {
	tracker := utils.NewProgressTracker(int64(total), "processing point files", 1, logger)
	var summary Summary

	record := func(r unitResult) {
		summary.Files++
		metrics.BatchDuration.Observe(r.Duration.Seconds())
		metrics.LinesSkipped.Add(float64(r.Batch.Skipped))
		summary.LinesSkipped += r.Batch.Skipped

		if r.Err != nil {
			summary.Failed++
			metrics.FilesProcessed.WithLabelValues(observability.OutcomeFailed).Inc()
			logger.Warn("skipping point file", "file", r.Name, "error", r.Err)
			tracker.Increment("file", r.Name, "failed", true)
			return
		}

		summary.Processed++
		summary.Stats.Add(r.Stats)
		metrics.FilesProcessed.WithLabelValues(observability.OutcomeProcessed).Inc()
		metrics.PointsParsed.Add(float64(r.Stats.Points))
		metrics.PointsAssigned.Add(float64(r.Stats.Assigned))
		metrics.PointsUnassigned.Add(float64(r.Stats.Unassigned))
		metrics.RegionMatches.Add(float64(r.Stats.Matches))
		tracker.Increment("file", r.Name, "points", r.Stats.Points, "assigned", r.Stats.Assigned)
	}

	var err error
	if workers <= 1 {
		err = joinSequential(ctx, source, engine, record)
	} else {
		err = joinParallel(ctx, source, engine, workers, record)
	}
	return summary, err
}

func processUnit(engine *aggregate.Engine, u ingest.Unit) unitResult {
	start := time.Now()
	result := unitResult{Name: u.Name}

	batch, err := ingest.ReadUnit(u)
	result.Batch = batch
	if err == nil {
		result.Stats, err = engine.Process(batch)
	}
	result.Err = err
	result.Duration = time.Since(start)
	return result
}

func joinSequential(ctx context.Context, source ingest.LineSource, engine *aggregate.Engine, record func(unitResult)) error {
	for {
		u, err := source.Next(ctx)
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("next point file: %w", err)
		}
		record(processUnit(engine, u))
	}
}

// joinParallel reads units on one goroutine and processes them on the pool.
// Results are recorded on the calling goroutine only.
func joinParallel(ctx context.Context, source ingest.LineSource, engine *aggregate.Engine, workers int, record func(unitResult)) error {
	pool := utils.NewWorkerPool[ingest.Unit, unitResult](workers, workers, workers)
	pool.StartWorkers(func(u ingest.Unit) unitResult {
		return processUnit(engine, u)
	})

	sourceErr := make(chan error, 1)
	go func() {
		defer pool.Close()
		for {
			u, err := source.Next(ctx)
			if errors.Is(err, io.EOF) {
				sourceErr <- nil
				return
			}
			if err != nil {
				sourceErr <- fmt.Errorf("next point file: %w", err)
				return
			}
			pool.SubmitJob(u)
		}
	}()

	for result := range pool.Results {
		record(result)
	}
	return <-sourceErr
}

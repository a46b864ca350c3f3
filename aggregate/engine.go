package aggregate

import (
	"fmt"

	"github.com/golang/geo/r2"

	"github.com/bsaid97/go-spatial-join/ingest"
)

// Index finds the regions that strictly contain a point in the polygon CRS.
type Index interface {
	Query(p r2.Point) []int
}

// Normalizer moves longitude/latitude points into the polygon CRS.
type Normalizer interface {
	Normalize(points []r2.Point) ([]r2.Point, error)
}

// Stats describes what a batch contributed. Matches counts point/region
// pairs, so it exceeds Assigned when regions overlap.
type Stats struct {
	Points     int
	Assigned   int
	Unassigned int
	Matches    int
}

func (s *Stats) Add(other Stats) {
	s.Points += other.Points
	s.Assigned += other.Assigned
	s.Unassigned += other.Unassigned
	s.Matches += other.Matches
}

type Engine struct {
	index      Index
	normalizer Normalizer
	acc        *Accumulator
}

func NewEngine(index Index, normalizer Normalizer, acc *Accumulator) *Engine {
	return &Engine{index: index, normalizer: normalizer, acc: acc}
}

// Aggregate joins one batch against the index without touching the
// accumulator. A point inside several regions counts for each of them.
func (e *Engine) Aggregate(batch ingest.Batch) (Partial, Stats, error) {
	stats := Stats{Points: len(batch.Points)}
	partial := make(Partial)
	if len(batch.Points) == 0 {
		return partial, stats, nil
	}

	lonLat := make([]r2.Point, len(batch.Points))
	for i, p := range batch.Points {
		lonLat[i] = r2.Point{X: p.Longitude, Y: p.Latitude}
	}

	projected, err := e.normalizer.Normalize(lonLat)
	if err != nil {
		return nil, Stats{}, fmt.Errorf("batch %s: %w", batch.Name, err)
	}
	if len(projected) != len(batch.Points) {
		return nil, Stats{}, fmt.Errorf("batch %s: normalizer returned %d of %d points", batch.Name, len(projected), len(batch.Points))
	}

	for i, p := range projected {
		matches := e.index.Query(p)
		if len(matches) == 0 {
			stats.Unassigned++
			continue
		}
		stats.Assigned++
		stats.Matches += len(matches)

		for _, region := range matches {
			c := partial[region]
			c.add(batch.Points[i].Prediction)
			partial[region] = c
		}
	}
	return partial, stats, nil
}

// Process aggregates the batch and merges it. A failed batch leaves the
// accumulator unchanged.
func (e *Engine) Process(batch ingest.Batch) (Stats, error) {
	partial, stats, err := e.Aggregate(batch)
	if err != nil {
		return Stats{}, err
	}
	e.acc.Merge(partial)
	return stats, nil
}

func (e *Engine) Accumulator() *Accumulator {
	return e.acc
}

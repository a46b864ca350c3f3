package observability

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "spatial_join"

// File outcomes for the FilesProcessed counter.
const (
	OutcomeProcessed = "processed"
	OutcomeFailed    = "failed"
)

// Metrics holds the counters and histograms for one aggregation run.
type Metrics struct {
	FilesProcessed   *prometheus.CounterVec // labels: outcome={processed,failed}
	PointsParsed     prometheus.Counter
	PointsAssigned   prometheus.Counter
	PointsUnassigned prometheus.Counter
	LinesSkipped     prometheus.Counter
	RegionMatches    prometheus.Counter
	BatchDuration    prometheus.Histogram

	registry *prometheus.Registry
}

// NewMetrics creates the run metrics and registers them with a dedicated
// registry, which is what WriteTextfile exports.
func NewMetrics() *Metrics {
	m := &Metrics{
		FilesProcessed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "files_total",
			Help:      "Point files handled, by outcome.",
		}, []string{"outcome"}),
		PointsParsed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "points_parsed_total",
			Help:      "Points read from input files.",
		}),
		PointsAssigned: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "points_assigned_total",
			Help:      "Points inside at least one region.",
		}),
		PointsUnassigned: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "points_unassigned_total",
			Help:      "Points outside every region.",
		}),
		LinesSkipped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "lines_skipped_total",
			Help:      "Malformed input lines that were ignored.",
		}),
		RegionMatches: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "region_matches_total",
			Help:      "Point and region pairs counted.",
		}),
		BatchDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "batch_duration_seconds",
			Help:      "Time to read, reproject and join one point file.",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.5, 1, 2.5, 5, 10, 30},
		}),
		registry: prometheus.NewRegistry(),
	}

	m.registry.MustRegister(
		m.FilesProcessed,
		m.PointsParsed,
		m.PointsAssigned,
		m.PointsUnassigned,
		m.LinesSkipped,
		m.RegionMatches,
		m.BatchDuration,
	)
	return m
}

// NewMetricsForTesting returns unregistered metrics.
func NewMetricsForTesting() *Metrics {
	return &Metrics{
		FilesProcessed:   prometheus.NewCounterVec(prometheus.CounterOpts{Namespace: namespace, Name: "files_total"}, []string{"outcome"}),
		PointsParsed:     prometheus.NewCounter(prometheus.CounterOpts{Namespace: namespace, Name: "points_parsed_total"}),
		PointsAssigned:   prometheus.NewCounter(prometheus.CounterOpts{Namespace: namespace, Name: "points_assigned_total"}),
		PointsUnassigned: prometheus.NewCounter(prometheus.CounterOpts{Namespace: namespace, Name: "points_unassigned_total"}),
		LinesSkipped:     prometheus.NewCounter(prometheus.CounterOpts{Namespace: namespace, Name: "lines_skipped_total"}),
		RegionMatches:    prometheus.NewCounter(prometheus.CounterOpts{Namespace: namespace, Name: "region_matches_total"}),
		BatchDuration:    prometheus.NewHistogram(prometheus.HistogramOpts{Namespace: namespace, Name: "batch_duration_seconds"}),
	}
}

// WriteTextfile writes the metrics in the node exporter textfile format.
func (m *Metrics) WriteTextfile(path string) error {
	if m.registry == nil {
		return fmt.Errorf("metrics are not registered")
	}
	if err := prometheus.WriteToTextfile(path, m.registry); err != nil {
		return fmt.Errorf("write metrics textfile: %w", err)
	}
	return nil
}

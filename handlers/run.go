package handlers

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/bsaid97/go-spatial-join/aggregate"
	"github.com/bsaid97/go-spatial-join/config"
	"github.com/bsaid97/go-spatial-join/ingest"
	"github.com/bsaid97/go-spatial-join/observability"
	"github.com/bsaid97/go-spatial-join/regions"
	"github.com/bsaid97/go-spatial-join/reproject"
)

// Run performs one complete aggregation: load the polygons, join every point
// file, and write the polygons back with their counts. Any returned error
// means no output was written.
func Run(ctx context.Context, cfg *config.Config, logger *slog.Logger, metrics *observability.Metrics) (Summary, error) {
	ds, err := regions.Load(cfg.PolygonPath)
	if err != nil {
		return Summary{}, fmt.Errorf("load polygons: %w", err)
	}
	logger.Info("loaded polygons", "path", cfg.PolygonPath, "format", ds.Format, "regions", ds.Len(), "crs", ds.CRS)

	normalizer, err := reproject.NewNormalizer(ds.CRS)
	if err != nil {
		return Summary{}, fmt.Errorf("polygon CRS of %s: %w", cfg.PolygonPath, err)
	}
	defer normalizer.Close()

	problems := CheckRegions(ds)
	for _, problem := range problems {
		logger.Debug("invalid polygon", "ref", problem.Ref, "reason", problem.ErrorMessage)
	}
	if len(problems) > 0 {
		logger.Warn("found invalid polygons", "count", len(problems))
	}

	index, err := BuildIndex(RepairRegions(ds, cfg.Workers, logger), cfg.GridCellSize, logger)
	if err != nil {
		return Summary{}, err
	}

	source, err := ingest.NewDirectorySource(cfg.PointsDir, cfg.InputExtension)
	if err != nil {
		return Summary{}, fmt.Errorf("point files: %w", err)
	}
	logger.Info("found point files", "dir", cfg.PointsDir, "files", source.Len(), "extension", cfg.InputExtension)

	acc := aggregate.NewAccumulator(ds.Len())
	engine := aggregate.NewEngine(index, normalizer, acc)

	summary, err := SpatialJoin(ctx, source, source.Len(), engine, cfg.Workers, logger, metrics)
	if err != nil {
		return summary, err
	}
	logger.Info("processed point files",
		"files", summary.Files,
		"processed", summary.Processed,
		"failed", summary.Failed,
		"points", summary.Points,
		"assigned", summary.Assigned,
		"unassigned", summary.Unassigned,
		"lines_skipped", summary.LinesSkipped,
	)

	logger.Info("calculating ratios", "regions", ds.Len())
	if err := aggregate.FinalizeAndWrite(ds, acc, regions.Save, cfg.OutputPath); err != nil {
		return summary, err
	}

	if cfg.MetricsFile != "" {
		if err := metrics.WriteTextfile(cfg.MetricsFile); err != nil {
			logger.Warn("could not write metrics", "path", cfg.MetricsFile, "error", err)
		}
	}

	logger.Info("completed", "output", cfg.OutputPath)
	return summary, nil
}

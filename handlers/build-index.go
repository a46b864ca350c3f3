package handlers

import (
	"fmt"
	"log/slog"

	"github.com/golang/geo/r2"
	"github.com/twpayne/go-geos"

	"github.com/bsaid97/go-spatial-join/utils"
)

// BuildIndex loads geometries into a grid index keyed by their position in
// the slice. Nil entries are skipped. A cellSize of 0 is derived from the
// combined extent.
func BuildIndex(geometries []*geos.Geom, cellSize float64, logger *slog.Logger) (*utils.SpatialIndex, error) {
	if cellSize <= 0 {
		extent := r2.EmptyRect()
		var count int
		for _, g := range geometries {
			if g == nil {
				continue
			}
			extent = extent.Union(utils.GeometryBounds(g))
			count++
		}
		cellSize = utils.SuggestCellSize(extent, count)
	}

	index := utils.NewSpatialIndex(cellSize)
	for i, g := range geometries {
		if g == nil {
			continue
		}
		if err := index.AddGeometry(g, i); err != nil {
			return nil, fmt.Errorf("index region %d: %w", i, err)
		}
	}

	logger.Info("built spatial index", "regions", index.Len(), "cell_size", index.CellSize())
	return index, nil
}

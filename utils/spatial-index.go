package utils

import (
	"fmt"
	"math"
	"sort"

	"github.com/golang/geo/r2"
	"github.com/twpayne/go-geos"
)

// Geometries whose envelope covers more cells than this are kept in an
// overflow list instead of being copied into every cell.
const maxCellsPerGeometry = 4096

// maxCellCoord bounds cell coordinates so tiny cell sizes or huge
// coordinates cannot overflow int. Clamped cells only widen the candidate
// set; the envelope and containment checks still decide.
const maxCellCoord = 1 << 30

type SpatialIndex struct {
	geometries []*IndexedGeometry
	cellSize   float64
	grid       map[cellKey][]*IndexedGeometry
	overflow   []*IndexedGeometry
	extent     r2.Rect
}

type IndexedGeometry struct {
	Geom     *geos.Geom
	Prepared *geos.PrepGeom
	Bounds   r2.Rect
	Index    int
}

type cellKey struct {
	x, y int
}

func NewSpatialIndex(cellSize float64) *SpatialIndex {
	if cellSize <= 0 || math.IsNaN(cellSize) || math.IsInf(cellSize, 0) {
		cellSize = 1
	}
	return &SpatialIndex{
		geometries: make([]*IndexedGeometry, 0),
		cellSize:   cellSize,
		grid:       make(map[cellKey][]*IndexedGeometry),
		extent:     r2.EmptyRect(),
	}
}

// AddGeometry prepares geom for containment tests and registers it under
// index. Nil and empty geometries are rejected.
func (si *SpatialIndex) AddGeometry(geom *geos.Geom, index int) error {
	if geom == nil {
		return fmt.Errorf("nil geometry at index %d", index)
	}
	if geom.IsEmpty() {
		return fmt.Errorf("empty geometry at index %d", index)
	}

	indexedGeom := &IndexedGeometry{
		Geom:     geom,
		Prepared: geom.Prepare(),
		Bounds:   GeometryBounds(geom),
		Index:    index,
	}

	si.geometries = append(si.geometries, indexedGeom)
	si.extent = si.extent.Union(indexedGeom.Bounds)
	si.addToGrid(indexedGeom)
	return nil
}

func (si *SpatialIndex) addToGrid(indexedGeom *IndexedGeometry) {
	lo, hi := indexedGeom.Bounds.Lo(), indexedGeom.Bounds.Hi()

	minCellX, minCellY := si.cellOf(lo)
	maxCellX, maxCellY := si.cellOf(hi)

	cells := (int64(maxCellX) - int64(minCellX) + 1) * (int64(maxCellY) - int64(minCellY) + 1)
	if cells > maxCellsPerGeometry {
		si.overflow = append(si.overflow, indexedGeom)
		return
	}

	for x := minCellX; x <= maxCellX; x++ {
		for y := minCellY; y <= maxCellY; y++ {
			key := cellKey{x, y}
			si.grid[key] = append(si.grid[key], indexedGeom)
		}
	}
}

// Query returns the indices of every geometry that contains p, in ascending
// order. Points on a boundary are not contained.
func (si *SpatialIndex) Query(p r2.Point) []int {
	if !isFinite(p) {
		return nil
	}

	x, y := si.cellOf(p)
	cell := si.grid[cellKey{x, y}]
	if len(cell) == 0 && len(si.overflow) == 0 {
		return nil
	}

	var point *geos.Geom
	var matches []int
	check := func(candidate *IndexedGeometry) {
		if !candidate.Bounds.ContainsPoint(p) {
			return
		}
		if point == nil {
			point = geos.NewPoint([]float64{p.X, p.Y})
		}
		if candidate.Prepared.Contains(point) {
			matches = append(matches, candidate.Index)
		}
	}

	for _, candidate := range cell {
		check(candidate)
	}
	for _, candidate := range si.overflow {
		check(candidate)
	}

	if point != nil {
		point.Destroy()
	}
	sort.Ints(matches)
	return matches
}

func (si *SpatialIndex) Len() int {
	return len(si.geometries)
}

func (si *SpatialIndex) CellSize() float64 {
	return si.cellSize
}

func (si *SpatialIndex) Extent() r2.Rect {
	return si.extent
}

func (si *SpatialIndex) cellOf(p r2.Point) (int, int) {
	return cellCoord(p.X / si.cellSize), cellCoord(p.Y / si.cellSize)
}

func cellCoord(v float64) int {
	q := math.Floor(v)
	switch {
	case q > maxCellCoord:
		return maxCellCoord
	case q < -maxCellCoord:
		return -maxCellCoord
	}
	return int(q)
}

// GeometryBounds returns the envelope of geom, or an empty rect for nil or
// empty geometries.
func GeometryBounds(geom *geos.Geom) r2.Rect {
	if geom == nil || geom.IsEmpty() {
		return r2.EmptyRect()
	}
	bounds := geom.Bounds()
	return r2.RectFromPoints(
		r2.Point{X: bounds.MinX, Y: bounds.MinY},
		r2.Point{X: bounds.MaxX, Y: bounds.MaxY},
	)
}

// SuggestCellSize picks a cell edge that gives roughly one grid cell per
// geometry over extent.
func SuggestCellSize(extent r2.Rect, count int) float64 {
	if count <= 0 || extent.IsEmpty() {
		return 1
	}
	size := extent.Size()
	area := size.X * size.Y
	if area <= 0 {
		edge := math.Max(size.X, size.Y)
		if edge <= 0 {
			return 1
		}
		return edge / float64(count)
	}
	return math.Sqrt(area / float64(count))
}

func isFinite(p r2.Point) bool {
	return !math.IsNaN(p.X) && !math.IsNaN(p.Y) && !math.IsInf(p.X, 0) && !math.IsInf(p.Y, 0)
}

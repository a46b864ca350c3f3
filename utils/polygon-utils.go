package utils

import (
	"fmt"

	"github.com/jonas-p/go-shp"
	"github.com/twpayne/go-geom"
	"github.com/twpayne/go-geom/encoding/wkb"
	"github.com/twpayne/go-geom/xy"
	"github.com/twpayne/go-geos"
)

// minRingPoints is the smallest closed ring: a triangle plus the closing
// vertex.
const minRingPoints = 4

// RingsFromParts splits the flat point list of a shapefile polygon into
// closed rings. Rings that are too short to enclose an area are dropped.
func RingsFromParts(parts []int32, points []shp.Point) [][]geom.Coord {
	rings := make([][]geom.Coord, 0, len(parts))
	for i := range parts {
		start := int(parts[i])
		end := len(points)
		if i+1 < len(parts) {
			end = int(parts[i+1])
		}
		if start < 0 || end > len(points) || start >= end {
			continue
		}

		ring := make([]geom.Coord, 0, end-start+1)
		for _, p := range points[start:end] {
			ring = append(ring, geom.Coord{p.X, p.Y})
		}
		first, last := ring[0], ring[len(ring)-1]
		if first[0] != last[0] || first[1] != last[1] {
			ring = append(ring, geom.Coord{first[0], first[1]})
		}
		if len(ring) < minRingPoints {
			continue
		}
		rings = append(rings, ring)
	}
	return rings
}

// PolygonFromParts builds a GEOS geometry from shapefile polygon parts.
// Clockwise rings are shells and counter-clockwise rings are holes of the
// shell that contains them. A hole with no enclosing shell is kept as a shell.
func PolygonFromParts(parts []int32, points []shp.Point) (*geos.Geom, error) {
	rings := RingsFromParts(parts, points)
	if len(rings) == 0 {
		return nil, fmt.Errorf("polygon has no usable rings")
	}

	var shells [][][]geom.Coord
	var holes [][]geom.Coord
	for _, ring := range rings {
		if xy.IsRingCounterClockwise(geom.XY, flatten(ring)) {
			holes = append(holes, ring)
		} else {
			shells = append(shells, [][]geom.Coord{ring})
		}
	}

	for _, hole := range holes {
		owner := -1
		for i, shell := range shells {
			if xy.IsPointInRing(geom.XY, hole[0], flatten(shell[0])) {
				owner = i
				break
			}
		}
		if owner < 0 {
			shells = append(shells, [][]geom.Coord{hole})
			continue
		}
		shells[owner] = append(shells[owner], hole)
	}

	var g geom.T
	if len(shells) == 1 {
		polygon, err := geom.NewPolygon(geom.XY).SetCoords(shells[0])
		if err != nil {
			return nil, fmt.Errorf("failed to build polygon: %v", err)
		}
		g = polygon
	} else {
		multiPolygon, err := geom.NewMultiPolygon(geom.XY).SetCoords(shells)
		if err != nil {
			return nil, fmt.Errorf("failed to build multipolygon: %v", err)
		}
		g = multiPolygon
	}

	data, err := wkb.Marshal(g, wkb.NDR)
	if err != nil {
		return nil, fmt.Errorf("failed to encode polygon: %v", err)
	}
	return geos.NewGeomFromWKB(data)
}

// PartsFromGeometry converts a polygonal GEOS geometry into shapefile parts,
// writing shells clockwise and holes counter-clockwise.
func PartsFromGeometry(g *geos.Geom) ([]int32, []shp.Point, error) {
	if g == nil || g.IsEmpty() {
		return nil, nil, nil
	}

	t, err := wkb.Unmarshal(g.ToWKB())
	if err != nil {
		return nil, nil, fmt.Errorf("failed to decode geometry: %v", err)
	}

	var polygons []*geom.Polygon
	switch t := t.(type) {
	case *geom.Polygon:
		polygons = append(polygons, t)
	case *geom.MultiPolygon:
		for i := range t.NumPolygons() {
			polygons = append(polygons, t.Polygon(i))
		}
	default:
		return nil, nil, fmt.Errorf("unsupported geometry type: %T", t)
	}

	var parts []int32
	var points []shp.Point
	for _, polygon := range polygons {
		for i := range polygon.NumLinearRings() {
			ring := polygon.LinearRing(i).Coords()
			if len(ring) < minRingPoints {
				continue
			}
			wantCCW := i > 0
			if xy.IsRingCounterClockwise(geom.XY, flatten(ring)) != wantCCW {
				reverse(ring)
			}

			parts = append(parts, int32(len(points)))
			for _, c := range ring {
				points = append(points, shp.Point{X: c.X(), Y: c.Y()})
			}
		}
	}
	return parts, points, nil
}

// NewShapePolygon wraps parts and points into a shapefile polygon record.
func NewShapePolygon(parts []int32, points []shp.Point) *shp.Polygon {
	polygon := &shp.Polygon{
		NumParts:  int32(len(parts)),
		NumPoints: int32(len(points)),
		Parts:     parts,
		Points:    points,
	}
	if polygon.Parts == nil {
		polygon.Parts = []int32{}
	}
	if polygon.Points == nil {
		polygon.Points = []shp.Point{}
	}
	polygon.Box = shp.BBoxFromPoints(polygon.Points)
	return polygon
}

func flatten(ring []geom.Coord) []float64 {
	flat := make([]float64, 0, 2*len(ring))
	for _, c := range ring {
		flat = append(flat, c.X(), c.Y())
	}
	return flat
}

func reverse(ring []geom.Coord) {
	for i, j := 0, len(ring)-1; i < j; i, j = i+1, j-1 {
		ring[i], ring[j] = ring[j], ring[i]
	}
}

package reproject

import (
	"errors"
	"fmt"
	"math"
	"strings"
	"sync"

	"github.com/golang/geo/r2"
	"github.com/twpayne/go-proj/v10"
)

// SourceCRS is the system every input point is assumed to be in.
const SourceCRS = "EPSG:4326"

// ErrUndeterminedCRS is returned when the polygon source carries no
// coordinate reference system.
var ErrUndeterminedCRS = errors.New("target coordinate reference system is undetermined")

var errClosed = errors.New("normalizer is closed")

// Normalizer reprojects WGS84 longitude/latitude points into the polygon
// dataset's coordinate reference system.
type Normalizer struct {
	mu sync.Mutex
	pj *proj.PJ
}

// NewNormalizer builds the WGS84 -> targetCRS transformation. Axis order is
// normalized on both ends so x is longitude/easting and y is
// latitude/northing.
func NewNormalizer(targetCRS string) (*Normalizer, error) {
	if strings.TrimSpace(targetCRS) == "" {
		return nil, ErrUndeterminedCRS
	}

	pj, err := proj.NewCRSToCRS(SourceCRS, targetCRS, nil)
	if err != nil {
		return nil, fmt.Errorf("create transformation to target CRS: %w", err)
	}
	defer pj.Destroy()

	normalized, err := pj.NormalizeForVisualization()
	if err != nil {
		return nil, fmt.Errorf("normalize axis order: %w", err)
	}

	return &Normalizer{pj: normalized}, nil
}

// Normalize returns the points transformed into the target system. The input
// slice is not modified. Points PROJ cannot transform come back as NaN; it is
// an error only when no point of the slice can be transformed.
func (n *Normalizer) Normalize(points []r2.Point) ([]r2.Point, error) {
	if len(points) == 0 {
		return nil, nil
	}

	coords := make([]proj.Coord, len(points))
	for i, p := range points {
		coords[i] = proj.NewCoord(p.X, p.Y, 0, 0)
	}

	n.mu.Lock()
	defer n.mu.Unlock()
	if n.pj == nil {
		return nil, errClosed
	}

	if err := n.pj.ForwardArray(coords); err != nil {
		// PROJ reports one errno for the whole array. Redo the points one at
		// a time so only those that cannot be transformed are lost; they
		// become NaN and match no region.
		var failed int
		for i, p := range points {
			c, err := n.pj.Forward(proj.NewCoord(p.X, p.Y, 0, 0))
			if err != nil {
				c = proj.NewCoord(math.NaN(), math.NaN(), 0, 0)
				failed++
			}
			coords[i] = c
		}
		if failed == len(points) {
			return nil, fmt.Errorf("reproject %d points: %w", len(points), err)
		}
	}

	out := make([]r2.Point, len(coords))
	for i, c := range coords {
		out[i] = r2.Point{X: c.X(), Y: c.Y()}
	}
	return out, nil
}

func (n *Normalizer) Close() {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.pj != nil {
		n.pj.Destroy()
		n.pj = nil
	}
}

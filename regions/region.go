// Package regions holds the polygon dataset the points are aggregated into,
// and reads and writes it as shapefiles or GeoJSON.
package regions

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/golang/geo/r2"
	"github.com/jonas-p/go-shp"
	"github.com/twpayne/go-geos"

	"github.com/bsaid97/go-spatial-join/utils"
)

// Names of the attributes added to every region on output.
const (
	FieldTotal     = "total_img"
	FieldZeros     = "zeros"
	FieldOnes      = "ones"
	FieldOnesRatio = "ones_ratio"
)

// DefaultGeoJSONCRS applies to GeoJSON files without a crs member (RFC 7946).
const DefaultGeoJSONCRS = "OGC:CRS84"

var ErrUnsupportedFormat = errors.New("unsupported polygon file format")

type Format int

const (
	FormatShapefile Format = iota
	FormatGeoJSON
)

func (f Format) String() string {
	switch f {
	case FormatShapefile:
		return "shapefile"
	case FormatGeoJSON:
		return "geojson"
	default:
		return fmt.Sprintf("Format(%d)", int(f))
	}
}

// Region is one polygon of the reference dataset and its running counts.
// Index is its position in the source file and never changes.
type Region struct {
	Index      int
	Geom       *geos.Geom
	Properties map[string]interface{}

	// Err is set when the source geometry could not be converted. Such
	// regions keep their attributes and are written back with zero counts.
	Err error

	Total     int64
	Zeros     int64
	Ones      int64
	OnesRatio float64
}

// Dataset is the ordered region collection plus what is needed to write it
// back in its original shape.
type Dataset struct {
	Regions []*Region
	CRS     string
	Format  Format

	// Fields is the DBF schema of a shapefile source, nil otherwise.
	Fields []shp.Field
	// Extra holds GeoJSON foreign members such as "crs".
	Extra map[string]interface{}
}

func (d *Dataset) Len() int {
	return len(d.Regions)
}

// Bounds is the envelope of every region geometry.
func (d *Dataset) Bounds() r2.Rect {
	bounds := r2.EmptyRect()
	for _, region := range d.Regions {
		bounds = bounds.Union(utils.GeometryBounds(region.Geom))
	}
	return bounds
}

// IsWKT reports whether the dataset CRS is a WKT definition, which is what a
// .prj file holds.
func (d *Dataset) IsWKT() bool {
	crs := strings.TrimSpace(d.CRS)
	return crs != "" && strings.Contains(crs, "[")
}

// Load reads a polygon dataset, choosing the reader by file extension.
func Load(path string) (*Dataset, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".shp":
		return LoadShapefile(path)
	case ".geojson", ".json":
		return LoadGeoJSON(path)
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedFormat, path)
	}
}

// Save writes the dataset with its counts, choosing the writer by file
// extension. A .zip path receives a zipped shapefile.
func Save(path string, ds *Dataset) error {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".shp":
		return SaveShapefile(path, ds)
	case ".zip":
		return SaveShapefileZip(path, ds)
	case ".geojson", ".json":
		return SaveGeoJSON(path, ds)
	default:
		return fmt.Errorf("%w: %s", ErrUnsupportedFormat, path)
	}
}

func isCountField(name string) bool {
	switch strings.ToLower(name) {
	case FieldTotal, FieldZeros, FieldOnes, FieldOnesRatio:
		return true
	}
	return false
}

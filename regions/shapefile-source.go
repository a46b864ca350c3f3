package regions

import (
	"fmt"
	"os"
	"strings"

	"github.com/jonas-p/go-shp"
	"github.com/twpayne/go-geos"

	"github.com/bsaid97/go-spatial-join/utils"
)

// LoadShapefile reads every record of a polygon shapefile. The CRS comes from
// the sibling .prj file; when there is none, Dataset.CRS is empty.
func LoadShapefile(path string) (*Dataset, error) {
	if !strings.HasSuffix(strings.ToLower(path), ".shp") {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedFormat, path)
	}
	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("open shapefile: %w", err)
	}

	reader, err := shp.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open shapefile: %w", err)
	}
	defer reader.Close()

	switch reader.GeometryType {
	case shp.POLYGON, shp.POLYGONZ, shp.POLYGONM:
	default:
		return nil, fmt.Errorf("shapefile %s holds shape type %d, not polygons", path, reader.GeometryType)
	}

	fields := reader.Fields()
	ds := &Dataset{
		Format: FormatShapefile,
		Fields: fields,
	}

	for reader.Next() {
		row, shape := reader.Shape()

		properties := make(map[string]interface{}, len(fields))
		for i, field := range fields {
			properties[field.String()] = strings.TrimSpace(strings.TrimRight(reader.ReadAttribute(row, i), "\x00"))
		}

		region := &Region{Index: len(ds.Regions), Properties: properties}
		region.Geom, region.Err = geometryFromShape(shape)
		ds.Regions = append(ds.Regions, region)
	}
	if err := reader.Err(); err != nil {
		return nil, fmt.Errorf("read shapefile: %w", err)
	}

	crs, err := readProjection(path)
	if err != nil {
		return nil, err
	}
	ds.CRS = crs

	return ds, nil
}

func geometryFromShape(shape shp.Shape) (*geos.Geom, error) {
	switch s := shape.(type) {
	case *shp.Polygon:
		return utils.PolygonFromParts(s.Parts, s.Points)
	case *shp.PolygonZ:
		return utils.PolygonFromParts(s.Parts, s.Points)
	case *shp.PolygonM:
		return utils.PolygonFromParts(s.Parts, s.Points)
	case *shp.Null:
		return nil, nil
	default:
		return nil, fmt.Errorf("unsupported shape %T", shape)
	}
}

// readProjection returns the WKT of the .prj next to path, or "" if there is
// none.
func readProjection(path string) (string, error) {
	base := path[:len(path)-len(".shp")]
	for _, ext := range []string{".prj", ".PRJ"} {
		data, err := os.ReadFile(base + ext)
		if os.IsNotExist(err) {
			continue
		}
		if err != nil {
			return "", fmt.Errorf("read projection: %w", err)
		}
		return strings.TrimSpace(string(data)), nil
	}
	return "", nil
}

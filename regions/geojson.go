package regions

import (
	"fmt"
	"os"
	"strconv"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/encoding/wkb"
	"github.com/paulmach/orb/geojson"
	"github.com/twpayne/go-geos"
)

// LoadGeoJSON reads a FeatureCollection of polygons. The CRS is taken from a
// legacy "crs" member when present, else it is CRS84.
func LoadGeoJSON(path string) (*Dataset, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("open geojson: %w", err)
	}

	fc, err := geojson.UnmarshalFeatureCollection(data)
	if err != nil {
		return nil, fmt.Errorf("decode geojson: %w", err)
	}

	ds := &Dataset{
		Format: FormatGeoJSON,
		CRS:    crsFromMembers(fc.ExtraMembers),
		Extra:  fc.ExtraMembers,
	}
	if ds.CRS == "" {
		ds.CRS = DefaultGeoJSONCRS
	}

	for i, feature := range fc.Features {
		properties := make(map[string]interface{}, len(feature.Properties))
		for key, value := range feature.Properties {
			properties[key] = value
		}

		region := &Region{Index: i, Properties: properties}
		region.Geom, region.Err = geometryFromOrb(feature.Geometry)
		ds.Regions = append(ds.Regions, region)
	}
	return ds, nil
}

// SaveGeoJSON writes the dataset as a FeatureCollection, keeping foreign
// members of the source.
func SaveGeoJSON(path string, ds *Dataset) error {
	fc := geojson.NewFeatureCollection()
	if ds.Extra != nil {
		fc.ExtraMembers = geojson.Properties(ds.Extra).Clone()
	}

	for _, region := range ds.Regions {
		var geometry orb.Geometry
		if region.Geom != nil && !region.Geom.IsEmpty() {
			g, err := wkb.Unmarshal(region.Geom.ToWKB())
			if err != nil {
				return fmt.Errorf("region %d: encode geometry: %w", region.Index, err)
			}
			geometry = g
		}

		feature := geojson.NewFeature(geometry)
		for key, value := range typedProperties(ds, region) {
			feature.Properties[key] = value
		}
		feature.Properties[FieldTotal] = region.Total
		feature.Properties[FieldZeros] = region.Zeros
		feature.Properties[FieldOnes] = region.Ones
		feature.Properties[FieldOnesRatio] = region.OnesRatio
		fc.Append(feature)
	}

	data, err := fc.MarshalJSON()
	if err != nil {
		return fmt.Errorf("encode geojson: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write geojson: %w", err)
	}
	return nil
}

func geometryFromOrb(g orb.Geometry) (*geos.Geom, error) {
	if g == nil {
		return nil, nil
	}
	switch g.(type) {
	case orb.Polygon, orb.MultiPolygon:
	default:
		return nil, fmt.Errorf("unsupported geometry type %s", g.GeoJSONType())
	}

	data, err := wkb.Marshal(g)
	if err != nil {
		return nil, fmt.Errorf("encode geometry: %w", err)
	}
	return geos.NewGeomFromWKB(data)
}

func crsFromMembers(extra geojson.Properties) string {
	crs, ok := extra["crs"].(map[string]interface{})
	if !ok {
		return ""
	}
	properties, ok := crs["properties"].(map[string]interface{})
	if !ok {
		return ""
	}
	name, _ := properties["name"].(string)
	return name
}

// typedProperties converts shapefile attribute text into numbers where the
// DBF field type says so. GeoJSON properties are returned as they are.
func typedProperties(ds *Dataset, region *Region) map[string]interface{} {
	if ds.Fields == nil {
		return region.Properties
	}

	out := make(map[string]interface{}, len(region.Properties))
	for key, value := range region.Properties {
		out[key] = value
	}
	for _, field := range ds.Fields {
		key := field.String()
		text, ok := out[key].(string)
		if !ok {
			continue
		}
		if isCountField(key) {
			delete(out, key)
			continue
		}

		switch field.Fieldtype {
		case 'N', 'F':
			if text == "" {
				out[key] = nil
				continue
			}
			if field.Fieldtype == 'N' && field.Precision == 0 {
				if n, err := strconv.ParseInt(text, 10, 64); err == nil {
					out[key] = n
					continue
				}
			}
			if f, err := strconv.ParseFloat(text, 64); err == nil {
				out[key] = f
			}
		}
	}
	return out
}

package regions

import (
	"fmt"
	"sort"

	"github.com/jonas-p/go-shp"

	"github.com/bsaid97/go-spatial-join/utils"
)

// SaveShapefile writes the dataset as a polygon shapefile with the original
// attributes followed by the four count fields.
func SaveShapefile(path string, ds *Dataset) error {
	fields, features, err := shapefileRecords(ds)
	if err != nil {
		return err
	}
	return utils.GenerateShapefile(path, shp.POLYGON, fields, features, projection(ds))
}

// SaveShapefileZip is SaveShapefile into a single zip archive.
func SaveShapefileZip(path string, ds *Dataset) error {
	fields, features, err := shapefileRecords(ds)
	if err != nil {
		return err
	}
	return utils.GenerateShapefileZip(path, shp.POLYGON, fields, features, projection(ds))
}

func projection(ds *Dataset) string {
	if ds.IsWKT() {
		return ds.CRS
	}
	return ""
}

func shapefileRecords(ds *Dataset) ([]shp.Field, []utils.ShapefileFeature, error) {
	base, keys := sourceFields(ds)

	var fields []shp.Field
	var propertyKeys []string
	for i, field := range base {
		if isCountField(field.String()) {
			continue
		}
		fields = append(fields, field)
		propertyKeys = append(propertyKeys, keys[i])
	}
	fields = append(fields,
		shp.NumberField(FieldTotal, 18),
		shp.NumberField(FieldZeros, 18),
		shp.NumberField(FieldOnes, 18),
		shp.FloatField(FieldOnesRatio, 24, 15),
	)

	features := make([]utils.ShapefileFeature, 0, len(ds.Regions))
	for _, region := range ds.Regions {
		var shape shp.Shape = &shp.Null{}
		if region.Geom != nil && !region.Geom.IsEmpty() {
			parts, points, err := utils.PartsFromGeometry(region.Geom)
			if err != nil {
				return nil, nil, fmt.Errorf("region %d: %w", region.Index, err)
			}
			shape = utils.NewShapePolygon(parts, points)
		}

		attributes := make([]interface{}, 0, len(fields))
		for _, key := range propertyKeys {
			attributes = append(attributes, region.Properties[key])
		}
		attributes = append(attributes, region.Total, region.Zeros, region.Ones, region.OnesRatio)

		features = append(features, utils.ShapefileFeature{
			Shape:      shape,
			Attributes: attributes,
		})
	}
	return fields, features, nil
}

// sourceFields returns the DBF schema to write and, for each field, the
// property key holding its value. Non-shapefile sources get fields inferred
// from the first non-null value of every property.
func sourceFields(ds *Dataset) ([]shp.Field, []string) {
	if ds.Fields != nil {
		keys := make([]string, len(ds.Fields))
		for i, field := range ds.Fields {
			keys[i] = field.String()
		}
		return ds.Fields, keys
	}

	merged := make(map[string]interface{})
	for _, region := range ds.Regions {
		for key, value := range region.Properties {
			existing, ok := merged[key]
			if !ok || existing == nil {
				merged[key] = value
				continue
			}
			// Size text fields for the longest value.
			if s, isText := value.(string); isText {
				if e, wasText := existing.(string); wasText && len(s) > len(e) {
					merged[key] = s
				}
			}
		}
	}

	keys := make([]string, 0, len(merged))
	for key := range merged {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	return utils.CreateFieldsFromProperties(merged), keys
}

package utils

import (
	"archive/zip"
	"os"
	"path/filepath"
	"testing"

	"github.com/jonas-p/go-shp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func squareFeature(attrs ...interface{}) ShapefileFeature {
	parts, points := joinParts(shellCW)
	return ShapefileFeature{Shape: NewShapePolygon(parts, points), Attributes: attrs}
}

func TestGenerateShapefile_WritesFieldsAndProjection(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.shp")
	fields := []shp.Field{
		shp.StringField("NAME", 20),
		shp.NumberField("total_img", 18),
		shp.FloatField("ones_ratio", 24, 15),
	}
	features := []ShapefileFeature{
		squareFeature("tract-a", int64(2), 0.5),
		squareFeature("tract-b", int64(0), 0.0),
	}

	require.NoError(t, GenerateShapefile(path, shp.POLYGON, fields, features, "GEOGCS[]"))

	prj, err := os.ReadFile(filepath.Join(filepath.Dir(path), "out.prj"))
	require.NoError(t, err)
	assert.Equal(t, "GEOGCS[]", string(prj))

	reader, err := shp.Open(path)
	require.NoError(t, err)
	defer reader.Close()

	require.Len(t, reader.Fields(), 3)
	assert.Equal(t, "total_img", reader.Fields()[1].String())

	var rows int
	for reader.Next() {
		row, shape := reader.Shape()
		polygon, ok := shape.(*shp.Polygon)
		require.True(t, ok)
		assert.Equal(t, int32(5), polygon.NumPoints)
		if row == 0 {
			assert.Equal(t, "tract-a", reader.Attribute(0))
			assert.Equal(t, "2", reader.Attribute(1))
			assert.Equal(t, "0.500000000000000", reader.Attribute(2))
		}
		rows++
	}
	require.NoError(t, reader.Err())
	assert.Equal(t, 2, rows)
}

func TestGenerateShapefile_NullShapes(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nulls.shp")
	far := func(x float64) ShapefileFeature {
		ring := []shp.Point{{X: x, Y: 20}, {X: x, Y: 30}, {X: x + 10, Y: 30}, {X: x + 10, Y: 20}, {X: x, Y: 20}}
		parts, points := joinParts(ring)
		return ShapefileFeature{Shape: NewShapePolygon(parts, points), Attributes: []interface{}{"poly"}}
	}
	features := []ShapefileFeature{
		far(20),
		{Shape: &shp.Null{}, Attributes: []interface{}{"none"}},
		far(40),
	}

	require.NoError(t, GenerateShapefile(path, shp.POLYGON, []shp.Field{shp.StringField("NAME", 10)}, features, ""))

	reader, err := shp.Open(path)
	require.NoError(t, err)
	defer reader.Close()

	assert.Equal(t, shp.Box{MinX: 20, MinY: 20, MaxX: 50, MaxY: 30}, reader.BBox())

	var types []shp.ShapeType
	var names []string
	for reader.Next() {
		_, shape := reader.Shape()
		switch shape.(type) {
		case *shp.Null:
			types = append(types, shp.NULL)
		case *shp.Polygon:
			types = append(types, shp.POLYGON)
		}
		names = append(names, reader.Attribute(0))
	}
	require.NoError(t, reader.Err())
	assert.Equal(t, []shp.ShapeType{shp.POLYGON, shp.NULL, shp.POLYGON}, types)
	assert.Equal(t, []string{"poly", "none", "poly"}, names)
}

func TestGenerateShapefile_NoProjectionWhenEmpty(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "out.shp")

	require.NoError(t, GenerateShapefile(path, shp.POLYGON, nil, []ShapefileFeature{squareFeature()}, ""))

	_, err := os.Stat(filepath.Join(dir, "out.prj"))
	assert.True(t, os.IsNotExist(err))
}

func TestGenerateShapefile_TextIsCutToFieldSize(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.shp")
	fields := []shp.Field{shp.StringField("NAME", 3)}

	require.NoError(t, GenerateShapefile(path, shp.POLYGON, fields, []ShapefileFeature{squareFeature("too long")}, ""))

	reader, err := shp.Open(path)
	require.NoError(t, err)
	defer reader.Close()

	require.True(t, reader.Next())
	assert.Equal(t, "too", reader.Attribute(0))
}

func TestGenerateShapefile_NumberTooWide(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.shp")
	fields := []shp.Field{shp.NumberField("POP", 3)}

	err := GenerateShapefile(path, shp.POLYGON, fields, []ShapefileFeature{squareFeature(123456)}, "")
	assert.Error(t, err)
}

func TestGenerateShapefileZip(t *testing.T) {
	zipPath := filepath.Join(t.TempDir(), "result.zip")
	fields := []shp.Field{shp.NumberField("ones", 18)}

	require.NoError(t, GenerateShapefileZip(zipPath, shp.POLYGON, fields, []ShapefileFeature{squareFeature(int64(3))}, "PROJCS[]"))

	archive, err := zip.OpenReader(zipPath)
	require.NoError(t, err)
	defer archive.Close()

	var names []string
	for _, f := range archive.File {
		names = append(names, f.Name)
	}
	assert.ElementsMatch(t, []string{"result.shp", "result.shx", "result.dbf", "result.prj"}, names)
}

func TestCreateFieldsFromProperties(t *testing.T) {
	fields := CreateFieldsFromProperties(map[string]interface{}{
		"name":              "x",
		"area":              1.5,
		"count":             int64(4),
		"a_very_long_field": true,
		"other":             []int{1},
	})

	require.Len(t, fields, 5)
	assert.Equal(t, "a_very_lon", fields[0].String())
	assert.Equal(t, byte('C'), fields[0].Fieldtype)
	assert.Equal(t, "area", fields[1].String())
	assert.Equal(t, byte('F'), fields[1].Fieldtype)
	assert.Equal(t, byte('N'), fields[2].Fieldtype)
	assert.Equal(t, "name", fields[3].String())
	assert.Equal(t, uint8(50), fields[3].Size)
	assert.Equal(t, uint8(100), fields[4].Size)
}

func TestAttributeValue(t *testing.T) {
	number := shp.NumberField("n", 10)
	float := shp.FloatField("f", 24, 15)
	text := shp.StringField("s", 10)

	assert.Equal(t, 7, AttributeValue(number, int64(7)))
	assert.Equal(t, 3, AttributeValue(number, 3.9))
	assert.Equal(t, 0, AttributeValue(number, nil))
	assert.Equal(t, "0042", AttributeValue(number, "0042"))
	assert.Equal(t, 2.0, AttributeValue(float, 2))
	assert.Equal(t, 0.0, AttributeValue(float, nil))
	assert.Equal(t, "true", AttributeValue(text, true))
	assert.Equal(t, "", AttributeValue(text, nil))
}

package regions

import (
	"archive/zip"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/jonas-p/go-shp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/twpayne/go-geos"

	"github.com/bsaid97/go-spatial-join/utils"
)

const nad83WKT = `GEOGCS["GCS_North_American_1983",DATUM["D_North_American_1983",SPHEROID["GRS_1980",6378137.0,298.257222101]],PRIMEM["Greenwich",0.0],UNIT["Degree",0.0174532925199433]]`

func mustWKT(t *testing.T, wkt string) *geos.Geom {
	t.Helper()
	g, err := geos.NewGeomFromWKT(wkt)
	require.NoError(t, err)
	return g
}

// writeTracts creates a two-record polygon shapefile with a NAME and a POP
// column.
func writeTracts(t *testing.T, dir, prj string) string {
	t.Helper()
	path := filepath.Join(dir, "tracts.shp")

	fields := []shp.Field{
		shp.StringField("NAME", 20),
		shp.NumberField("POP", 10),
	}
	var features []utils.ShapefileFeature
	for i, wkt := range []string{
		"POLYGON ((0 0, 10 0, 10 10, 0 10, 0 0))",
		"POLYGON ((20 20, 30 20, 30 30, 20 30, 20 20), (24 24, 26 24, 26 26, 24 26, 24 24))",
	} {
		parts, points, err := utils.PartsFromGeometry(mustWKT(t, wkt))
		require.NoError(t, err)
		features = append(features, utils.ShapefileFeature{
			Shape:      utils.NewShapePolygon(parts, points),
			Attributes: []interface{}{[]string{"north", "south"}[i], 100 * (i + 1)},
		})
	}

	require.NoError(t, utils.GenerateShapefile(path, shp.POLYGON, fields, features, prj))
	return path
}

func TestLoadShapefile(t *testing.T) {
	path := writeTracts(t, t.TempDir(), nad83WKT)

	ds, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, FormatShapefile, ds.Format)
	assert.Equal(t, nad83WKT, ds.CRS)
	assert.True(t, ds.IsWKT())
	require.Equal(t, 2, ds.Len())

	first := ds.Regions[0]
	assert.Equal(t, 0, first.Index)
	assert.Equal(t, "north", first.Properties["NAME"])
	assert.Equal(t, "100", first.Properties["POP"])
	assert.InDelta(t, 100.0, first.Geom.Area(), 1e-9)

	second := ds.Regions[1]
	assert.Equal(t, 1, second.Index)
	assert.InDelta(t, 96.0, second.Geom.Area(), 1e-9)

	bounds := ds.Bounds()
	assert.Equal(t, 0.0, bounds.X.Lo)
	assert.Equal(t, 30.0, bounds.Y.Hi)
}

func TestLoadShapefile_WithoutProjection(t *testing.T) {
	path := writeTracts(t, t.TempDir(), "")

	ds, err := LoadShapefile(path)
	require.NoError(t, err)
	assert.Empty(t, ds.CRS)
	assert.False(t, ds.IsWKT())
}

func TestLoadShapefile_Missing(t *testing.T) {
	_, err := LoadShapefile(filepath.Join(t.TempDir(), "nope.shp"))
	require.Error(t, err)
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestLoad_UnsupportedExtension(t *testing.T) {
	_, err := Load("regions.kml")
	assert.ErrorIs(t, err, ErrUnsupportedFormat)

	err = Save("regions.csv", &Dataset{})
	assert.ErrorIs(t, err, ErrUnsupportedFormat)
}

const tractsGeoJSON = `{
  "type": "FeatureCollection",
  "name": "tracts",
  "crs": {"type": "name", "properties": {"name": "urn:ogc:def:crs:EPSG::3857"}},
  "features": [
    {"type": "Feature", "properties": {"NAME": "a", "POP": 12},
     "geometry": {"type": "Polygon", "coordinates": [[[0,0],[4,0],[4,4],[0,4],[0,0]]]}},
    {"type": "Feature", "properties": {"NAME": "b"},
     "geometry": {"type": "MultiPolygon", "coordinates": [[[[10,10],[11,10],[11,11],[10,11],[10,10]]],[[[20,20],[22,20],[22,22],[20,22],[20,20]]]]}},
    {"type": "Feature", "properties": {"NAME": "c"},
     "geometry": {"type": "Point", "coordinates": [1, 1]}},
    {"type": "Feature", "properties": {"NAME": "d"}, "geometry": null}
  ]
}`

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadGeoJSON(t *testing.T) {
	ds, err := Load(writeFile(t, "tracts.geojson", tractsGeoJSON))
	require.NoError(t, err)

	assert.Equal(t, FormatGeoJSON, ds.Format)
	assert.Equal(t, "urn:ogc:def:crs:EPSG::3857", ds.CRS)
	assert.False(t, ds.IsWKT())
	assert.Equal(t, "tracts", ds.Extra["name"])
	require.Equal(t, 4, ds.Len())

	assert.NoError(t, ds.Regions[0].Err)
	assert.InDelta(t, 16.0, ds.Regions[0].Geom.Area(), 1e-9)
	assert.Equal(t, 12.0, ds.Regions[0].Properties["POP"])

	assert.Equal(t, geos.TypeIDMultiPolygon, ds.Regions[1].Geom.TypeID())
	assert.InDelta(t, 5.0, ds.Regions[1].Geom.Area(), 1e-9)

	assert.Error(t, ds.Regions[2].Err)
	assert.Nil(t, ds.Regions[2].Geom)

	assert.NoError(t, ds.Regions[3].Err)
	assert.Nil(t, ds.Regions[3].Geom)
}

func TestLoadGeoJSON_DefaultCRS(t *testing.T) {
	ds, err := LoadGeoJSON(writeFile(t, "plain.json", `{"type":"FeatureCollection","features":[]}`))
	require.NoError(t, err)
	assert.Equal(t, DefaultGeoJSONCRS, ds.CRS)
	assert.Zero(t, ds.Len())
}

func TestLoadGeoJSON_Malformed(t *testing.T) {
	_, err := LoadGeoJSON(writeFile(t, "bad.geojson", `{"type":`))
	assert.Error(t, err)
}

func TestSaveShapefile_AppendsCountFields(t *testing.T) {
	dir := t.TempDir()
	ds, err := Load(writeTracts(t, dir, nad83WKT))
	require.NoError(t, err)

	ds.Regions[0].Total, ds.Regions[0].Zeros, ds.Regions[0].Ones, ds.Regions[0].OnesRatio = 2, 1, 1, 0.5

	out := filepath.Join(dir, "out.shp")
	require.NoError(t, Save(out, ds))

	written, err := Load(out)
	require.NoError(t, err)
	assert.Equal(t, nad83WKT, written.CRS)

	var names []string
	for _, field := range written.Fields {
		names = append(names, field.String())
	}
	assert.Equal(t, []string{"NAME", "POP", FieldTotal, FieldZeros, FieldOnes, FieldOnesRatio}, names)

	first := written.Regions[0].Properties
	assert.Equal(t, "north", first["NAME"])
	assert.Equal(t, "100", first["POP"])
	assert.Equal(t, "2", first[FieldTotal])
	assert.Equal(t, "1", first[FieldZeros])
	assert.Equal(t, "1", first[FieldOnes])
	assert.Equal(t, "0.500000000000000", first[FieldOnesRatio])

	second := written.Regions[1].Properties
	assert.Equal(t, "0", second[FieldTotal])
	assert.Equal(t, "0.000000000000000", second[FieldOnesRatio])

	assert.True(t, written.Regions[1].Geom.Equals(ds.Regions[1].Geom))
}

func TestSaveShapefile_NullGeometryRoundTrips(t *testing.T) {
	dir := t.TempDir()
	ds, err := Load(writeTracts(t, dir, nad83WKT))
	require.NoError(t, err)

	ds.Regions[0].Geom = nil
	ds.Regions[0].Err = errors.New("unsupported shape")

	out := filepath.Join(dir, "out.shp")
	require.NoError(t, Save(out, ds))

	written, err := Load(out)
	require.NoError(t, err)
	require.Equal(t, 2, written.Len())

	assert.Nil(t, written.Regions[0].Geom)
	assert.NoError(t, written.Regions[0].Err)
	assert.Equal(t, "north", written.Regions[0].Properties["NAME"])
	assert.Equal(t, "0", written.Regions[0].Properties[FieldTotal])

	assert.True(t, written.Regions[1].Geom.Equals(ds.Regions[1].Geom))
}

func TestSaveShapefile_ReplacesExistingCountFields(t *testing.T) {
	dir := t.TempDir()
	ds, err := Load(writeTracts(t, dir, ""))
	require.NoError(t, err)

	first := filepath.Join(dir, "first.shp")
	require.NoError(t, Save(first, ds))

	again, err := Load(first)
	require.NoError(t, err)
	again.Regions[0].Total = 7

	second := filepath.Join(dir, "second.shp")
	require.NoError(t, Save(second, again))

	written, err := Load(second)
	require.NoError(t, err)
	assert.Len(t, written.Fields, 6)
	assert.Equal(t, "7", written.Regions[0].Properties[FieldTotal])

	_, err = os.Stat(filepath.Join(dir, "second.prj"))
	assert.True(t, os.IsNotExist(err))
}

func TestSaveShapefile_FromGeoJSONInfersFields(t *testing.T) {
	ds, err := Load(writeFile(t, "tracts.geojson", tractsGeoJSON))
	require.NoError(t, err)
	ds.Regions = ds.Regions[:2]
	ds.Regions[1].Total, ds.Regions[1].Ones, ds.Regions[1].OnesRatio = 4, 1, 0.25

	out := filepath.Join(t.TempDir(), "out.shp")
	require.NoError(t, Save(out, ds))

	written, err := Load(out)
	require.NoError(t, err)

	var names []string
	for _, field := range written.Fields {
		names = append(names, field.String())
	}
	assert.Equal(t, []string{"NAME", "POP", FieldTotal, FieldZeros, FieldOnes, FieldOnesRatio}, names)
	assert.Equal(t, "b", written.Regions[1].Properties["NAME"])
	assert.Equal(t, "4", written.Regions[1].Properties[FieldTotal])
	assert.InDelta(t, 5.0, written.Regions[1].Geom.Area(), 1e-9)
}

func TestSaveShapefileZip(t *testing.T) {
	ds, err := Load(writeTracts(t, t.TempDir(), nad83WKT))
	require.NoError(t, err)

	out := filepath.Join(t.TempDir(), "counts.zip")
	require.NoError(t, Save(out, ds))

	archive, err := zip.OpenReader(out)
	require.NoError(t, err)
	defer archive.Close()

	var names []string
	for _, f := range archive.File {
		names = append(names, f.Name)
	}
	assert.ElementsMatch(t, []string{"counts.shp", "counts.shx", "counts.dbf", "counts.prj"}, names)
}

func TestSaveGeoJSON_TypesShapefileAttributes(t *testing.T) {
	dir := t.TempDir()
	ds, err := Load(writeTracts(t, dir, ""))
	require.NoError(t, err)
	ds.Regions[0].Total, ds.Regions[0].Zeros, ds.Regions[0].Ones, ds.Regions[0].OnesRatio = 3, 1, 2, 2.0/3.0

	out := filepath.Join(dir, "out.geojson")
	require.NoError(t, Save(out, ds))

	data, err := os.ReadFile(out)
	require.NoError(t, err)

	var doc struct {
		Features []struct {
			Properties map[string]interface{} `json:"properties"`
			Geometry   struct {
				Type string `json:"type"`
			} `json:"geometry"`
		} `json:"features"`
	}
	require.NoError(t, json.Unmarshal(data, &doc))
	require.Len(t, doc.Features, 2)

	props := doc.Features[0].Properties
	assert.Equal(t, "north", props["NAME"])
	assert.Equal(t, 100.0, props["POP"])
	assert.Equal(t, 3.0, props[FieldTotal])
	assert.Equal(t, 1.0, props[FieldZeros])
	assert.Equal(t, 2.0, props[FieldOnes])
	assert.InDelta(t, 2.0/3.0, props[FieldOnesRatio], 1e-12)
	assert.Equal(t, "Polygon", doc.Features[0].Geometry.Type)
}

func TestSaveGeoJSON_KeepsForeignMembers(t *testing.T) {
	ds, err := Load(writeFile(t, "tracts.geojson", tractsGeoJSON))
	require.NoError(t, err)

	out := filepath.Join(t.TempDir(), "out.geojson")
	require.NoError(t, SaveGeoJSON(out, ds))

	written, err := LoadGeoJSON(out)
	require.NoError(t, err)
	assert.Equal(t, ds.CRS, written.CRS)
	assert.Equal(t, "tracts", written.Extra["name"])
	require.Equal(t, 4, written.Len())
	assert.Nil(t, written.Regions[2].Geom)
	assert.Equal(t, 0.0, written.Regions[3].Properties[FieldOnesRatio])
}

func TestFormatString(t *testing.T) {
	assert.Equal(t, "shapefile", FormatShapefile.String())
	assert.Equal(t, "geojson", FormatGeoJSON.String())
}

package utils

import (
	"archive/zip"
	"bytes"
	"encoding/binary"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/jonas-p/go-shp"
)

// ShapefileFeature is one record to write: a shape plus attribute values in
// the same order as the field list.
type ShapefileFeature struct {
	Shape      shp.Shape
	Attributes []interface{}
}

// GenerateShapefile writes the .shp, .shx and .dbf files at path, plus a .prj
// when prj is not empty.
func GenerateShapefile(path string, shapeType shp.ShapeType, fields []shp.Field, features []ShapefileFeature, prj string) error {
	shape, err := shp.Create(path, shapeType)
	if err != nil {
		return fmt.Errorf("failed to create shapefile: %w", err)
	}

	if len(fields) == 0 {
		fields = []shp.Field{shp.NumberField("ID", 10)}
	}
	if err := shape.SetFields(fields); err != nil {
		shape.Close()
		return fmt.Errorf("failed to set fields: %w", err)
	}

	var nullRows []int
	var bbox shp.Box
	var hasBBox bool
	for i, feature := range features {
		row := int(shape.Write(feature.Shape))
		if _, isNull := feature.Shape.(*shp.Null); isNull {
			nullRows = append(nullRows, row)
		} else if !hasBBox {
			bbox, hasBBox = feature.Shape.BBox(), true
		} else {
			bbox.Extend(feature.Shape.BBox())
		}
		if err := writeAttributesToShapefile(shape, fields, feature.Attributes, row); err != nil {
			shape.Close()
			return fmt.Errorf("failed to write attributes for feature %d: %w", i, err)
		}
	}
	shape.Close()

	if len(nullRows) > 0 {
		if err := markNullRecords(path, nullRows, bbox); err != nil {
			return fmt.Errorf("failed to write null shapes: %w", err)
		}
	}

	if prj != "" {
		if err := os.WriteFile(basePath(path)+".prj", []byte(prj), 0o644); err != nil {
			return fmt.Errorf("failed to write projection file: %w", err)
		}
	}
	return nil
}

// GenerateShapefileZip writes the shapefile components into a single zip
// archive at zipPath. Entries are named after the archive.
func GenerateShapefileZip(zipPath string, shapeType shp.ShapeType, fields []shp.Field, features []ShapefileFeature, prj string) error {
	tempDir, err := os.MkdirTemp("", "shapefile_")
	if err != nil {
		return fmt.Errorf("failed to create temp directory: %w", err)
	}
	defer os.RemoveAll(tempDir)

	name := strings.TrimSuffix(filepath.Base(zipPath), filepath.Ext(zipPath))
	shapefilePath := filepath.Join(tempDir, name+".shp")
	if err := GenerateShapefile(shapefilePath, shapeType, fields, features, prj); err != nil {
		return err
	}

	out, err := os.Create(zipPath)
	if err != nil {
		return fmt.Errorf("failed to create zip file: %w", err)
	}
	defer out.Close()

	zipWriter := zip.NewWriter(out)
	for _, ext := range []string{".shp", ".shx", ".dbf", ".prj"} {
		filePath := filepath.Join(tempDir, name+ext)
		if _, err := os.Stat(filePath); os.IsNotExist(err) {
			continue
		}

		fileContent, err := os.ReadFile(filePath)
		if err != nil {
			return fmt.Errorf("failed to read shapefile component %s: %w", ext, err)
		}

		zipFile, err := zipWriter.Create(name + ext)
		if err != nil {
			return fmt.Errorf("failed to create %s file in zip: %w", ext, err)
		}
		if _, err := zipFile.Write(fileContent); err != nil {
			return fmt.Errorf("failed to write %s data to zip: %w", ext, err)
		}
	}

	if err := zipWriter.Close(); err != nil {
		return fmt.Errorf("failed to close zip writer: %w", err)
	}
	return out.Close()
}

// CreateFieldsFromProperties infers DBF fields from a property map. Keys are
// sorted so the column order is stable.
func CreateFieldsFromProperties(properties map[string]interface{}) []shp.Field {
	keys := make([]string, 0, len(properties))
	for key := range properties {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	fields := []shp.Field{}
	for _, key := range keys {
		// Limit field name to 10 characters (DBF limitation)
		fieldName := key
		if len(fieldName) > 10 {
			fieldName = fieldName[:10]
		}

		switch v := properties[key].(type) {
		case string:
			length := len(v)
			if length < 50 {
				length = 50
			}
			if length > 254 {
				length = 254
			}
			fields = append(fields, shp.StringField(fieldName, uint8(length)))
		case float64:
			fields = append(fields, shp.FloatField(fieldName, 24, 15))
		case int, int32, int64:
			fields = append(fields, shp.NumberField(fieldName, 18))
		case bool:
			fields = append(fields, shp.StringField(fieldName, 5))
		default:
			fields = append(fields, shp.StringField(fieldName, 100))
		}
	}
	return fields
}

// writeAttributesToShapefile converts each value to the representation its
// field type expects and pads it to the field width, numbers right-aligned.
// Text longer than its field is cut; numbers that do not fit are an error.
func writeAttributesToShapefile(shape *shp.Writer, fields []shp.Field, values []interface{}, row int) error {
	for i, field := range fields {
		var value interface{}
		if i < len(values) {
			value = values[i]
		}

		var text string
		switch v := AttributeValue(field, value).(type) {
		case int:
			text = strconv.Itoa(v)
		case float64:
			text = strconv.FormatFloat(v, 'f', int(field.Precision), 64)
		case string:
			text = v
		}
		width := int(field.Size)
		if field.Fieldtype == 'C' && len(text) > width {
			text = text[:width]
		}
		if len(text) < width {
			padding := strings.Repeat(" ", width-len(text))
			if field.Fieldtype == 'N' || field.Fieldtype == 'F' {
				text = padding + text
			} else {
				text += padding
			}
		}

		if err := shape.WriteAttribute(row, i, text); err != nil {
			return fmt.Errorf("field %s: %w", field.String(), err)
		}
	}
	return nil
}

// AttributeValue coerces value into an int, float64 or string suitable for
// field. Strings are passed through unchanged so original DBF text survives.
func AttributeValue(field shp.Field, value interface{}) interface{} {
	switch v := value.(type) {
	case nil:
		switch field.Fieldtype {
		case 'N':
			return 0
		case 'F':
			return 0.0
		default:
			return ""
		}
	case string:
		return v
	}

	switch field.Fieldtype {
	case 'N':
		switch v := value.(type) {
		case int:
			return v
		case int32:
			return int(v)
		case int64:
			return int(v)
		case float64:
			if field.Precision > 0 {
				return v
			}
			return int(v)
		}
	case 'F':
		switch v := value.(type) {
		case float64:
			return v
		case int:
			return float64(v)
		case int64:
			return float64(v)
		}
	}

	switch v := value.(type) {
	case bool:
		return strconv.FormatBool(v)
	default:
		return fmt.Sprintf("%v", v)
	}
}

// markNullRecords sets the shape type of the given rows to Null. The writer
// stamps every record with the file's shape type, so without this a Null
// shape reads back as an empty polygon. The header box, which the writer
// stretched to the origin for each Null, is replaced by bbox.
func markNullRecords(path string, rows []int, bbox shp.Box) error {
	base := basePath(path)

	index, err := os.OpenFile(base+".shx", os.O_RDWR, 0)
	if err != nil {
		return err
	}
	defer index.Close()

	shapes, err := os.OpenFile(base+".shp", os.O_RDWR, 0)
	if err != nil {
		return err
	}
	defer shapes.Close()

	nullType := make([]byte, 4)
	binary.LittleEndian.PutUint32(nullType, uint32(shp.NULL))

	entry := make([]byte, 4)
	for _, row := range rows {
		// Each index entry is the record offset then length, big-endian,
		// in 16-bit words. The shape type follows the 8-byte record header.
		if _, err := index.ReadAt(entry, int64(100+8*row)); err != nil {
			return fmt.Errorf("index entry %d: %w", row, err)
		}
		offset := int64(binary.BigEndian.Uint32(entry))*2 + 8
		if _, err := shapes.WriteAt(nullType, offset); err != nil {
			return fmt.Errorf("record %d: %w", row, err)
		}
	}

	var box bytes.Buffer
	if err := binary.Write(&box, binary.LittleEndian, bbox); err != nil {
		return err
	}
	for _, f := range []*os.File{shapes, index} {
		if _, err := f.WriteAt(box.Bytes(), 36); err != nil {
			return fmt.Errorf("header box of %s: %w", f.Name(), err)
		}
	}

	if err := index.Close(); err != nil {
		return err
	}
	return shapes.Close()
}

func basePath(path string) string {
	if strings.HasSuffix(strings.ToLower(path), ".shp") {
		return path[:len(path)-4]
	}
	return path
}

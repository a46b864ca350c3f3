package ingest

import (
	"bufio"
	"bytes"
	"fmt"
	"io"
	"regexp"
	"strconv"
	"strings"
)

// recordPattern matches "<lat>,<lon> ... <digit>" where anything may sit
// between the coordinate pair and the whitespace before the trailing digit.
var recordPattern = regexp.MustCompile(`(-?\d+\.\d+),(-?\d+\.\d+).*?\s(\d)\s*$`)

const maxLineSize = 1024 * 1024

// Point is one parsed observation in WGS84 degrees.
type Point struct {
	Latitude   float64
	Longitude  float64
	Prediction uint8
}

// Batch holds the points of one source unit.
type Batch struct {
	Name    string
	Points  []Point
	Lines   int
	Skipped int
}

// ParseLine extracts a point from a single record line. ok is false for
// lines that do not match the record pattern or carry a label other than 0/1.
func ParseLine(line string) (Point, bool) {
	m := recordPattern.FindStringSubmatch(strings.TrimSpace(line))
	if m == nil {
		return Point{}, false
	}

	lat, err := strconv.ParseFloat(m[1], 64)
	if err != nil {
		return Point{}, false
	}
	lon, err := strconv.ParseFloat(m[2], 64)
	if err != nil {
		return Point{}, false
	}

	switch m[3] {
	case "0":
		return Point{Latitude: lat, Longitude: lon, Prediction: 0}, true
	case "1":
		return Point{Latitude: lat, Longitude: lon, Prediction: 1}, true
	default:
		return Point{}, false
	}
}

// ParseBatch reads every line of r after the header and collects the points
// that match the record pattern. Non-matching lines are counted, not
// reported. Any read error discards the whole batch.
func ParseBatch(name string, r io.Reader) (Batch, error) {
	batch := Batch{Name: name}

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineSize)
	scanner.Split(scanLines)

	header := true
	for scanner.Scan() {
		if header {
			header = false
			continue
		}
		batch.Lines++

		point, ok := ParseLine(scanner.Text())
		if !ok {
			batch.Skipped++
			continue
		}
		batch.Points = append(batch.Points, point)
	}
	if err := scanner.Err(); err != nil {
		return Batch{Name: name}, fmt.Errorf("read %s: %w", name, err)
	}

	return batch, nil
}

// scanLines is bufio.ScanLines that also ends a line at a lone \r, so files
// written with old Mac line endings are not read as a single line.
func scanLines(data []byte, atEOF bool) (advance int, token []byte, err error) {
	if atEOF && len(data) == 0 {
		return 0, nil, nil
	}
	if i := bytes.IndexAny(data, "\r\n"); i >= 0 {
		if data[i] == '\n' {
			return i + 1, data[:i], nil
		}
		if i+1 < len(data) {
			if data[i+1] == '\n' {
				return i + 2, data[:i], nil
			}
			return i + 1, data[:i], nil
		}
		// A trailing \r may be the first half of \r\n.
		if atEOF {
			return i + 1, data[:i], nil
		}
		return 0, nil, nil
	}
	if atEOF {
		return len(data), data, nil
	}
	return 0, nil, nil
}

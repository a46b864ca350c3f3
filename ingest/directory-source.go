package ingest

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// Unit is one named source of record lines, typically a file.
type Unit struct {
	Name string
	Open func() (io.ReadCloser, error)
}

// LineSource yields units until it returns io.EOF.
type LineSource interface {
	Next(ctx context.Context) (Unit, error)
}

// DirectorySource lists the files of a single directory that end with the
// configured extension. Subdirectories are not traversed.
type DirectorySource struct {
	dir   string
	names []string
	pos   int
}

// NewDirectorySource scans dir once. Files are yielded sorted by name.
func NewDirectorySource(dir, extension string) (*DirectorySource, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", dir, err)
	}

	names := make([]string, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), extension) {
			continue
		}
		names = append(names, entry.Name())
	}
	sort.Strings(names)

	return &DirectorySource{dir: dir, names: names}, nil
}

// Len returns the number of files discovered.
func (s *DirectorySource) Len() int {
	return len(s.names)
}

func (s *DirectorySource) Next(ctx context.Context) (Unit, error) {
	if err := ctx.Err(); err != nil {
		return Unit{}, err
	}
	if s.pos >= len(s.names) {
		return Unit{}, io.EOF
	}

	name := s.names[s.pos]
	s.pos++
	path := filepath.Join(s.dir, name)

	return Unit{
		Name: name,
		Open: func() (io.ReadCloser, error) {
			return os.Open(path)
		},
	}, nil
}

// ReadUnit opens u and parses it into a batch.
func ReadUnit(u Unit) (Batch, error) {
	rc, err := u.Open()
	if err != nil {
		return Batch{Name: u.Name}, fmt.Errorf("open %s: %w", u.Name, err)
	}
	defer rc.Close()

	return ParseBatch(u.Name, rc)
}

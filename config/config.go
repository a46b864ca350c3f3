package config

import (
	"errors"
	"fmt"
	"math"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

const Usage = "usage: go-spatial-join <polygons.shp|polygons.geojson> <points-dir> <output.shp|output.zip|output.geojson>"

// Config holds the run settings: three positional paths plus environment
// variables.
type Config struct {
	PolygonPath string
	PointsDir   string
	OutputPath  string

	LogLevel       string
	LogFormat      string
	Workers        int
	InputExtension string
	// GridCellSize of 0 lets the index derive a size from the polygon extent.
	GridCellSize float64
	MetricsFile  string
}

// Load reads the positional arguments (without the program name) and the
// environment, after merging a .env file from the working directory if one
// exists.
func Load(args []string) (*Config, error) {
	return load(args, ".env")
}

func load(args []string, envFile string) (*Config, error) {
	if err := godotenv.Load(envFile); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("load %s: %w", envFile, err)
	}

	if len(args) != 3 {
		return nil, errors.New(Usage)
	}

	workers, err := strconv.Atoi(envOrDefault("WORKERS", "1"))
	if err != nil || workers < 1 {
		return nil, errors.New("invalid WORKERS: must be a positive integer")
	}

	cellSize, err := strconv.ParseFloat(envOrDefault("GRID_CELL_SIZE", "0"), 64)
	if err != nil || cellSize < 0 || math.IsNaN(cellSize) || math.IsInf(cellSize, 0) {
		return nil, errors.New("invalid GRID_CELL_SIZE: must be a finite non-negative number")
	}

	cfg := &Config{
		PolygonPath:    args[0],
		PointsDir:      args[1],
		OutputPath:     args[2],
		LogLevel:       envOrDefault("LOG_LEVEL", "info"),
		LogFormat:      strings.ToLower(envOrDefault("LOG_FORMAT", "text")),
		Workers:        workers,
		InputExtension: envOrDefault("INPUT_EXTENSION", ".txt"),
		GridCellSize:   cellSize,
		MetricsFile:    os.Getenv("METRICS_FILE"),
	}

	if cfg.PolygonPath == "" || cfg.PointsDir == "" || cfg.OutputPath == "" {
		return nil, errors.New(Usage)
	}
	if cfg.LogFormat != "text" && cfg.LogFormat != "json" {
		return nil, fmt.Errorf("invalid LOG_FORMAT %q: must be text or json", cfg.LogFormat)
	}
	if !strings.HasPrefix(cfg.InputExtension, ".") {
		cfg.InputExtension = "." + cfg.InputExtension
	}

	return cfg, nil
}

func envOrDefault(key, fallback string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return fallback
}

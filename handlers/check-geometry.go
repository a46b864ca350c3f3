package handlers

import (
	"log/slog"

	"github.com/twpayne/go-geos"

	"github.com/bsaid97/go-spatial-join/regions"
	"github.com/bsaid97/go-spatial-join/utils"
)

type Error struct {
	Ref          int    `json:"ref"`
	ErrorMessage string `json:"errorMessage"`
}

// CheckRegions reports every region that cannot be indexed as it is: missing
// or unreadable geometry, or a geometry GEOS considers invalid.
func CheckRegions(ds *regions.Dataset) []Error {
	var errors []Error

	for _, region := range ds.Regions {
		switch {
		case region.Err != nil:
			errors = append(errors, Error{Ref: region.Index, ErrorMessage: region.Err.Error()})
		case region.Geom == nil || region.Geom.IsEmpty():
			errors = append(errors, Error{Ref: region.Index, ErrorMessage: "empty geometry"})
		case !region.Geom.IsValid():
			errors = append(errors, Error{Ref: region.Index, ErrorMessage: region.Geom.IsValidReason()})
		}
	}
	return errors
}

type repairJob struct {
	Index int
	Geom  *geos.Geom
}

type repairResult struct {
	Index    int
	Geom     *geos.Geom
	Repaired bool
}

// RepairRegions returns, per region index, the geometry to index. Invalid
// polygons are run through MakeValid; the dataset's own geometries are not
// modified. Regions with nothing polygonal left map to nil.
func RepairRegions(ds *regions.Dataset, workers int, logger *slog.Logger) []*geos.Geom {
	out := make([]*geos.Geom, ds.Len())

	var jobs []repairJob
	for _, region := range ds.Regions {
		if region.Geom == nil || region.Geom.IsEmpty() {
			continue
		}
		jobs = append(jobs, repairJob{Index: region.Index, Geom: region.Geom})
	}

	processor := utils.NewParallelProcessor(workers, logger)
	results := utils.ProcessBatch(processor, jobs, repairGeometry, "validating polygons")

	var repaired int
	for _, result := range results {
		if result.Index < 0 || result.Index >= len(out) {
			continue
		}
		out[result.Index] = result.Geom
		if result.Repaired {
			repaired++
		}
	}
	if repaired > 0 {
		logger.Warn("repaired invalid polygons for indexing", "count", repaired)
	}
	return out
}

func repairGeometry(job repairJob) repairResult {
	if job.Geom.IsValid() {
		return repairResult{Index: job.Index, Geom: job.Geom}
	}

	fixed := job.Geom.MakeValidWithParams(geos.MakeValidStructure, geos.MakeValidDiscardCollapsed)
	if fixed == nil || fixed.IsEmpty() {
		return repairResult{Index: job.Index}
	}
	switch fixed.TypeID() {
	case geos.TypeIDPolygon, geos.TypeIDMultiPolygon:
		return repairResult{Index: job.Index, Geom: fixed, Repaired: true}
	default:
		return repairResult{Index: job.Index}
	}
}

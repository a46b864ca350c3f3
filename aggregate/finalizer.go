package aggregate

import (
	"fmt"

	"github.com/bsaid97/go-spatial-join/regions"
)

// Sink writes a finalized dataset to path.
type Sink func(path string, ds *regions.Dataset) error

// Finalize copies the accumulated counts onto the regions and computes
// OnesRatio, which is 0 for regions without points.
func Finalize(ds *regions.Dataset, acc *Accumulator) {
	counts := acc.Snapshot()
	for _, region := range ds.Regions {
		var c Counts
		if region.Index >= 0 && region.Index < len(counts) {
			c = counts[region.Index]
		}

		region.Total = c.Total
		region.Zeros = c.Zeros
		region.Ones = c.Ones
		region.OnesRatio = 0
		if c.Total > 0 {
			region.OnesRatio = float64(c.Ones) / float64(c.Total)
		}
	}
}

// FinalizeAndWrite finalizes ds and hands it to sink.
func FinalizeAndWrite(ds *regions.Dataset, acc *Accumulator, sink Sink, path string) error {
	Finalize(ds, acc)
	if err := sink(path, ds); err != nil {
		return fmt.Errorf("write output %s: %w", path, err)
	}
	return nil
}

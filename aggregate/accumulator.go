// Package aggregate joins point batches to regions and keeps the per-region
// prediction counts.
package aggregate

import "sync"

// Counts is the tally for one region. Total always equals Zeros + Ones.
type Counts struct {
	Total int64
	Zeros int64
	Ones  int64
}

func (c *Counts) add(prediction uint8) {
	c.Total++
	if prediction == 1 {
		c.Ones++
	} else {
		c.Zeros++
	}
}

// Partial is the contribution of one batch, keyed by region index.
type Partial map[int]Counts

// Accumulator holds the running counts of every region. It is safe for
// concurrent use.
type Accumulator struct {
	mu     sync.Mutex
	counts []Counts
	merged int
}

// NewAccumulator returns an accumulator for n regions, all zero.
func NewAccumulator(n int) *Accumulator {
	return &Accumulator{counts: make([]Counts, n)}
}

// Merge adds a batch partial. Indexes outside the region range are ignored.
func (a *Accumulator) Merge(p Partial) {
	a.mu.Lock()
	defer a.mu.Unlock()

	for index, c := range p {
		if index < 0 || index >= len(a.counts) {
			continue
		}
		a.counts[index].Total += c.Total
		a.counts[index].Zeros += c.Zeros
		a.counts[index].Ones += c.Ones
	}
	a.merged++
}

// Snapshot returns a copy of the counts in region order.
func (a *Accumulator) Snapshot() []Counts {
	a.mu.Lock()
	defer a.mu.Unlock()

	out := make([]Counts, len(a.counts))
	copy(out, a.counts)
	return out
}

// Batches is the number of partials merged so far.
func (a *Accumulator) Batches() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.merged
}

func (a *Accumulator) Len() int {
	return len(a.counts)
}

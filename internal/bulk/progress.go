package bulk

import (
	"time"
)

// Progress is reported after every chunk.
type Progress struct {
	Done   int `json:"done"`
	Total  int `json:"total"`
	Chunk  int `json:"chunk"`
	Chunks int `json:"chunks"`

	Elapsed time.Duration `json:"elapsed"`
	// Remaining never increases from one report to the next.
	Remaining time.Duration `json:"remaining"`
	// PerChunk is the mean time spent per chunk so far.
	PerChunk time.Duration `json:"per_chunk"`
}

// Percent returns completion in the range 0..100.
func (p Progress) Percent() float64 {
	if p.Total == 0 {
		return 100
	}
	return float64(p.Done) / float64(p.Total) * 100
}

// eta estimates remaining time from the mean time per item so far and
// clamps the estimate so it never grows.
type eta struct {
	last time.Duration
	set  bool
}

func (e *eta) next(done, total int, elapsed time.Duration) time.Duration {
	var remaining time.Duration
	if done > 0 && total > done {
		remaining = time.Duration(float64(elapsed) / float64(done) * float64(total-done))
	}
	if e.set && remaining > e.last {
		remaining = e.last
	}
	e.last, e.set = remaining, true
	return remaining
}

// chunk splits ids into consecutive slices of at most size, preserving order.
func chunk(ids []int64, size int) [][]int64 {
	if size <= 0 {
		size = len(ids)
	}
	var out [][]int64
	for start := 0; start < len(ids); start += size {
		end := min(start+size, len(ids))
		out = append(out, ids[start:end])
	}
	return out
}

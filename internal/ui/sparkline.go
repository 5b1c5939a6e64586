package ui

import "strings"

// SparklineChars are the eight bar heights, lowest first.
var SparklineChars = []rune{'▁', '▂', '▃', '▄', '▅', '▆', '▇', '█'}

// Sparkline keeps the last N samples in a ring and renders them as bars
// scaled to the largest retained sample.
type Sparkline struct {
	samples []float64
	head    int
	count   int
}

// NewSparkline creates a sparkline retaining capacity samples.
func NewSparkline(capacity int) *Sparkline {
	if capacity <= 0 {
		capacity = 60
	}
	return &Sparkline{samples: make([]float64, capacity)}
}

// Add appends a sample, evicting the oldest when full.
func (s *Sparkline) Add(v float64) {
	s.samples[s.head] = v
	s.head = (s.head + 1) % len(s.samples)
	s.count = min(s.count+1, len(s.samples))
}

// Len returns the number of retained samples.
func (s *Sparkline) Len() int {
	return s.count
}

// Clear drops every sample.
func (s *Sparkline) Clear() {
	clear(s.samples)
	s.head, s.count = 0, 0
}

// recent returns up to n retained samples, oldest first.
func (s *Sparkline) recent(n int) []float64 {
	n = min(n, s.count)
	out := make([]float64, n)
	start := (s.head - n + len(s.samples)) % len(s.samples)
	for i := range n {
		out[i] = s.samples[(start+i)%len(s.samples)]
	}
	return out
}

// Render returns exactly width runes: the newest samples right-aligned,
// padded on the left with spaces.
func (s *Sparkline) Render(width int) string {
	if width <= 0 {
		width = len(s.samples)
	}
	vals := s.recent(width)
	peak := 0.0
	for _, v := range vals {
		peak = max(peak, v)
	}

	var sb strings.Builder
	sb.WriteString(strings.Repeat(" ", width-len(vals)))
	top := len(SparklineChars) - 1
	for _, v := range vals {
		idx := 0
		if peak > 0 {
			idx = min(max(int(v/peak*float64(top)), 0), top)
		}
		sb.WriteRune(SparklineChars[idx])
	}
	return sb.String()
}

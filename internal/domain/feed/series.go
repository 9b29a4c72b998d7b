package feed

import (
	"slices"
	"time"
)

// Point is one sample of a time series.
type Point struct {
	At    time.Time `json:"at"`
	Value float64   `json:"value"`
}

// Series is a fixed-length history, oldest first. Appending past the limit
// drops the oldest point.
type Series struct {
	limit  int
	points []Point
}

// NewSeries creates a series holding at most limit points.
func NewSeries(limit int) *Series {
	if limit < 1 {
		limit = 1
	}
	return &Series{limit: limit}
}

// Append records a sample.
func (s *Series) Append(p Point) {
	s.points = append(s.points, p)
	if over := len(s.points) - s.limit; over > 0 {
		s.points = slices.Delete(s.points, 0, over)
	}
}

// Points returns a copy of the series, oldest first.
func (s *Series) Points() []Point {
	return slices.Clone(s.points)
}

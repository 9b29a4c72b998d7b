package service

import (
	"math/rand/v2"
	"time"

	"github.com/target/cqrs-monitor/internal/domain/feed"
)

// syntheticMetrics produces placeholder cpu and memory series for the
// overview charts. The upstream exposes no host metrics, so every value it
// reports is flagged synthetic.
type syntheticMetrics struct {
	rng    *rand.Rand
	cpu    *feed.Series
	memory *feed.Series
	last   [2]float64
}

func newSyntheticMetrics(rng *rand.Rand, points int) *syntheticMetrics {
	return &syntheticMetrics{
		rng:    rng,
		cpu:    feed.NewSeries(points),
		memory: feed.NewSeries(points),
		last:   [2]float64{20 + rng.Float64()*30, 40 + rng.Float64()*30},
	}
}

// tick advances both series by one bounded random-walk step.
func (m *syntheticMetrics) tick(at time.Time) {
	m.last[0] = walk(m.rng, m.last[0], 8)
	m.last[1] = walk(m.rng, m.last[1], 4)
	m.cpu.Append(feed.Point{At: at, Value: m.last[0]})
	m.memory.Append(feed.Point{At: at, Value: m.last[1]})
}

func (m *syntheticMetrics) snapshot() map[string]any {
	return map[string]any{
		"synthetic": true,
		"cpu":       m.cpu.Points(),
		"memory":    m.memory.Points(),
	}
}

func walk(rng *rand.Rand, v, step float64) float64 {
	v += (rng.Float64()*2 - 1) * step
	return min(max(v, 1), 99)
}

// Package planner decides where the highlight clips of a source video start.
// Everything here is pure: the same inputs always produce the same plan.
package planner

import "math"

const (
	minEffectiveLength = 5
	minSegments        = 3
	maxSegments        = 6
)

// Plan is the ordered list of segment start offsets computed before rendering begins.
type Plan struct {
	Offsets       []int
	SegmentLength int
}

func (p Plan) Len() int {
	return len(p.Offsets)
}

// EffectiveLength is the clip length actually used for a source of the given duration.
func EffectiveLength(duration, requested int) int {
	return min(requested, max(minEffectiveLength, duration))
}

// New computes the plan for a source of duration seconds and the requested clip length.
func New(duration, requested int) Plan {
	eff := EffectiveLength(duration, requested)
	if duration <= eff {
		return Plan{Offsets: []int{0}, SegmentLength: max(duration, 1)}
	}

	count := clamp(duration/eff, minSegments, maxSegments)
	last := duration - eff
	spacing := float64(last) / float64(count-1)

	offsets := make([]int, count)
	for i := range offsets {
		offsets[i] = clamp(int(math.Floor(float64(i)*spacing)), 0, last)
	}
	return Plan{Offsets: offsets, SegmentLength: eff}
}

// ViralScore is the synthetic, position-derived ranking of segment i out of total.
func ViralScore(i, total int) int {
	return min(99, 70+roundRatio(i+1, total, 25))
}

// SegmentProgress is the job progress once segment i out of total has been persisted.
func SegmentProgress(i, total int) int {
	return 20 + roundRatio(i+1, total, 70)
}

// roundRatio returns round(n/d * scale), halves away from zero.
func roundRatio(n, d, scale int) int {
	if d <= 0 {
		return 0
	}
	return int(math.Round(float64(n) / float64(d) * float64(scale)))
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

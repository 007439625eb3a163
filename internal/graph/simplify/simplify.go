// Package simplify thins raw road polylines before graph construction.
package simplify

import (
	"github.com/ctessum/geom"

	"roadsim.ai/internal/geo"
)

// RDP runs Ramer–Douglas–Peucker with the given tolerance in map units.
// The first and last points are always kept; tolerance <= 0 returns pts unchanged.
func RDP(pts []geom.Point, tolerance float64) []geom.Point {
	if tolerance <= 0 || len(pts) < 3 {
		return pts
	}
	keep := make([]bool, len(pts))
	keep[0] = true
	keep[len(pts)-1] = true

	type span struct{ lo, hi int }
	stack := []span{{0, len(pts) - 1}}
	for len(stack) > 0 {
		s := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if s.hi-s.lo < 2 {
			continue
		}
		maxD := -1.0
		idx := -1
		for i := s.lo + 1; i < s.hi; i++ {
			q, _ := geo.ClosestOnSegment(pts[i], pts[s.lo], pts[s.hi])
			if d := geo.Dist(pts[i], q); d > maxD {
				maxD = d
				idx = i
			}
		}
		if maxD > tolerance {
			keep[idx] = true
			stack = append(stack, span{s.lo, idx}, span{idx, s.hi})
		}
	}

	out := make([]geom.Point, 0, len(pts))
	for i, k := range keep {
		if k {
			out = append(out, pts[i])
		}
	}
	return out
}

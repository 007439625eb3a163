package geo

import (
	"math"

	"github.com/ctessum/geom"
)

// WorldSize is the side of the square map space in units.
const WorldSize = 1 << 32

// UnitsPerMeter converts metre-valued options (ranges, radii) into map units.
// It is a fixed approximation, not a latitude-aware scale.
const UnitsPerMeter = 100

// ProjectGeoToMap converts lon/lat degrees into map space (Web-Mercator-like, y grows north).
func ProjectGeoToMap(lon, lat float64) geom.Point {
	half := float64(WorldSize) / 2
	sin := math.Sin(lat * math.Pi / 180)

	x := lon * WorldSize / 360
	y := math.Log((1+sin)/(1-sin)) * WorldSize / (4 * math.Pi)

	return geom.Point{X: clamp(x, -half, half), Y: clamp(y, -half, half)}
}

// ProjectMapToGeo is the inverse of ProjectGeoToMap.
func ProjectMapToGeo(p geom.Point) (lon, lat float64) {
	lon = p.X * 360 / WorldSize
	lat = (2*math.Atan(math.Exp(p.Y*2*math.Pi/WorldSize)) - math.Pi/2) * 180 / math.Pi
	return lon, lat
}

func MetersToUnits(m float64) float64 { return m * UnitsPerMeter }

func Dist(a, b geom.Point) float64 {
	return math.Hypot(a.X-b.X, a.Y-b.Y)
}

func Lerp(a, b geom.Point, t float64) geom.Point {
	return geom.Point{X: a.X + t*(b.X-a.X), Y: a.Y + t*(b.Y-a.Y)}
}

func Clamp(v, lo, hi float64) float64 { return clamp(v, lo, hi) }

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// ClosestOnSegment projects p onto segment ab and returns the projected point and
// the segment parameter t in [0,1].
func ClosestOnSegment(p, a, b geom.Point) (geom.Point, float64) {
	dx := b.X - a.X
	dy := b.Y - a.Y
	l2 := dx*dx + dy*dy
	if l2 == 0 {
		return a, 0
	}
	t := clamp(((p.X-a.X)*dx+(p.Y-a.Y)*dy)/l2, 0, 1)
	return geom.Point{X: a.X + t*dx, Y: a.Y + t*dy}, t
}

// PolylineLength sums segment lengths.
func PolylineLength(pts []geom.Point) float64 {
	var n float64
	for i := 0; i+1 < len(pts); i++ {
		n += Dist(pts[i], pts[i+1])
	}
	return n
}

// Package spatial provides static two-dimensional point indexes answering
// within-radius queries. Query results are entity indices sorted ascending so
// callers iterating them stay deterministic.
package spatial

// Index is a point index over entities addressed by their position in the
// slice the index was built from.
type Index interface {
	Within(x, y, r float64) []int
	Len() int
}

// Brute is a linear-scan Index, used for tiny inputs and as a test oracle.
type Brute struct {
	xs, ys []float64
}

func NewBrute(n int, xy func(i int) (float64, float64)) *Brute {
	b := &Brute{xs: make([]float64, n), ys: make([]float64, n)}
	for i := 0; i < n; i++ {
		b.xs[i], b.ys[i] = xy(i)
	}
	return b
}

func (b *Brute) Len() int { return len(b.xs) }

func (b *Brute) Within(x, y, r float64) []int {
	var out []int
	r2 := r * r
	for i := range b.xs {
		if sqDist(b.xs[i], b.ys[i], x, y) <= r2 {
			out = append(out, i)
		}
	}
	return out
}

func sqDist(ax, ay, bx, by float64) float64 {
	dx := ax - bx
	dy := ay - by
	return dx*dx + dy*dy
}

package spatial

import (
	"sort"

	"github.com/ctessum/geom"
	"github.com/ctessum/geom/index/rtree"
)

type rtreeItem struct {
	geom.Point
	id int
}

// RTree is an Index that also accepts inserts, backed by ctessum/geom's R-tree.
// The graph builder uses it because vertices keep arriving while buildings
// are attached.
type RTree struct {
	tree *rtree.Rtree
	n    int
}

func NewRTree(n int, xy func(i int) (float64, float64)) *RTree {
	t := &RTree{tree: rtree.NewTree(25, 50)}
	for i := 0; i < n; i++ {
		x, y := xy(i)
		t.Insert(i, x, y)
	}
	return t
}

// Insert adds entity id at (x, y). Ids are expected to be unique.
func (t *RTree) Insert(id int, x, y float64) {
	t.tree.Insert(&rtreeItem{Point: geom.Point{X: x, Y: y}, id: id})
	t.n++
}

func (t *RTree) Len() int { return t.n }

func (t *RTree) Within(x, y, r float64) []int {
	box := &geom.Bounds{
		Min: geom.Point{X: x - r, Y: y - r},
		Max: geom.Point{X: x + r, Y: y + r},
	}
	r2 := r * r
	var out []int
	for _, g := range t.tree.SearchIntersect(box) {
		it, ok := g.(*rtreeItem)
		if !ok {
			continue
		}
		if sqDist(it.X, it.Y, x, y) <= r2 {
			out = append(out, it.id)
		}
	}
	sort.Ints(out)
	return out
}

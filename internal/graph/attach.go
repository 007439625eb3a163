package graph

import (
	"fmt"
	"math"

	"github.com/ctessum/geom"

	"roadsim.ai/internal/geo"
	"roadsim.ai/internal/spatial"
)

// snapCandidate is the closest point found on a road edge for one building.
type snapCandidate struct {
	edge    int
	segment int // index of the segment's first point in the edge geometry
	point   geom.Point
	dist    float64
}

// AttachBuildings connects building points to the road network. Each
// attached building gets a House vertex and a 2-point House edge; the host
// edge is split when the snap point falls strictly inside it.
func (g *Graph) AttachBuildings(buildings []geom.Point, opts BuildOptions) (BuildReport, error) {
	opts.normalize()
	var rep BuildReport
	b := &builder{g: g, opts: opts, rep: &rep}
	err := b.attachBuildings(buildings)
	g.UpdateBounds()
	return rep, err
}

func (b *builder) attachBuildings(buildings []geom.Point) error {
	if len(buildings) == 0 {
		return nil
	}
	idx := spatial.NewRTree(len(b.g.Vertices), func(i int) (float64, float64) {
		p := b.g.Vertices[i].Coords
		return p.X, p.Y
	})

	for bi, p := range buildings {
		if !b.opts.inRange(p) {
			continue
		}
		b.rep.BuildingsInRange++

		c, ok := b.closestRoadPoint(idx, p)
		if !ok {
			b.rep.BuildingsSkipped++
			b.opts.Logger.Debug("building not attached", "building", bi, "x", p.X, "y", p.Y)
			continue
		}

		before := len(b.g.Vertices)
		attach, err := b.attachVertexFor(c)
		if err != nil {
			return err
		}
		house := b.g.addVertex(p, House)
		he := b.g.addEdge(Edge{
			Geometry: []geom.Point{b.g.Vertices[attach].Coords, p},
			A:        attach,
			B:        house,
			Kind:     House,
		})
		b.g.Vertices[attach].Edges = append(b.g.Vertices[attach].Edges, he)
		b.g.Vertices[house].Edges = append(b.g.Vertices[house].Edges, he)
		b.rep.BuildingsAttached++

		// Keep the index in step with the vertex arena before the next building.
		for vi := before; vi < len(b.g.Vertices); vi++ {
			q := b.g.Vertices[vi].Coords
			idx.Insert(vi, q.X, q.Y)
		}
	}
	return nil
}

// closestRoadPoint searches road edges incident to vertices near p.
func (b *builder) closestRoadPoint(idx spatial.Index, p geom.Point) (snapCandidate, bool) {
	best := snapCandidate{edge: -1, dist: math.Inf(1)}
	seen := map[int]struct{}{}

	for _, vi := range idx.Within(p.X, p.Y, b.opts.BuildingSearchRadius) {
		for _, ei := range b.g.Vertices[vi].Edges {
			if _, dup := seen[ei]; dup {
				continue
			}
			seen[ei] = struct{}{}
			e := b.g.Edges[ei]
			if e.Kind != Road {
				continue
			}
			for s := 0; s+1 < len(e.Geometry); s++ {
				q, _ := geo.ClosestOnSegment(p, e.Geometry[s], e.Geometry[s+1])
				d := geo.Dist(p, q)
				if d < best.dist {
					best = snapCandidate{edge: ei, segment: s, point: q, dist: d}
				}
			}
		}
	}
	if best.edge < 0 || best.dist > b.opts.BuildingSnapDistance {
		return snapCandidate{}, false
	}
	return best, true
}

// attachVertexFor returns the vertex a building should hang from, splitting
// the host edge when the snap point is not one of its endpoints.
func (b *builder) attachVertexFor(c snapCandidate) (int, error) {
	e := b.g.Edges[c.edge]
	tol := b.opts.EqualityTolerance
	if geo.Dist(c.point, e.Geometry[0]) <= tol {
		return e.A, nil
	}
	if geo.Dist(c.point, e.Geometry[len(e.Geometry)-1]) <= tol {
		return e.B, nil
	}
	return b.splitEdge(c)
}

// splitEdge cuts edge c.edge at c.point. The left half (A → mid) keeps the
// edge's index; the right half (mid → B) is appended. Returns the mid vertex.
func (b *builder) splitEdge(c snapCandidate) (int, error) {
	old := b.g.Edges[c.edge]
	tol := b.opts.EqualityTolerance
	geometry := old.Geometry

	left := make([]geom.Point, 0, c.segment+2)
	left = append(left, geometry[:c.segment+1]...)
	if geo.Dist(left[len(left)-1], c.point) > tol || len(left) == 1 {
		left = append(left, c.point)
	} else {
		left[len(left)-1] = c.point
	}

	right := make([]geom.Point, 0, len(geometry)-c.segment+1)
	right = append(right, c.point)
	rest := geometry[c.segment+1:]
	if len(rest) > 0 && geo.Dist(rest[0], c.point) <= tol && len(rest) > 1 {
		rest = rest[1:]
	}
	right = append(right, rest...)

	mid := b.g.addVertex(c.point, Road)
	b.g.Edges[c.edge] = Edge{Geometry: left, A: old.A, B: mid, Kind: old.Kind}
	rightIdx := b.g.addEdge(Edge{Geometry: right, A: mid, B: old.B, Kind: old.Kind})

	if old.A == old.B {
		// A loop: vertex A keeps the left half and gains the right one.
		b.g.Vertices[old.A].Edges = append(b.g.Vertices[old.A].Edges, rightIdx)
	} else {
		refs := b.g.Vertices[old.B].Edges
		found := false
		for i, ei := range refs {
			if ei == c.edge {
				refs[i] = rightIdx
				found = true
				break
			}
		}
		if !found {
			return -1, fmt.Errorf("%w: vertex %d does not reference edge %d being split", ErrCorruptGraph, old.B, c.edge)
		}
	}
	b.g.Vertices[mid].Edges = append(b.g.Vertices[mid].Edges, c.edge, rightIdx)
	b.rep.Splits++
	return mid, nil
}

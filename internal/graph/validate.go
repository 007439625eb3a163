package graph

import (
	"fmt"

	"roadsim.ai/internal/geo"
)

// Validate checks the structural invariants of g. tol bounds how far an edge
// endpoint may sit from its vertex (0 demands exact equality).
func (g *Graph) Validate(tol float64) error {
	for vi, v := range g.Vertices {
		if v.ID != vi {
			return fmt.Errorf("%w: vertex %d has id %d", ErrCorruptGraph, vi, v.ID)
		}
		for _, ei := range v.Edges {
			if ei < 0 || ei >= len(g.Edges) {
				return fmt.Errorf("%w: vertex %d references edge %d of %d", ErrCorruptGraph, vi, ei, len(g.Edges))
			}
			e := g.Edges[ei]
			if e.A != vi && e.B != vi {
				return fmt.Errorf("%w: vertex %d references edge %d (%d-%d)", ErrCorruptGraph, vi, ei, e.A, e.B)
			}
		}
	}
	for ei, e := range g.Edges {
		if len(e.Geometry) < 2 {
			return fmt.Errorf("%w: edge %d has %d points", ErrCorruptGraph, ei, len(e.Geometry))
		}
		if e.A < 0 || e.A >= len(g.Vertices) || e.B < 0 || e.B >= len(g.Vertices) {
			return fmt.Errorf("%w: edge %d endpoints %d-%d out of range", ErrCorruptGraph, ei, e.A, e.B)
		}
		if e.Kind == House && len(e.Geometry) != 2 {
			return fmt.Errorf("%w: house edge %d has %d points", ErrCorruptGraph, ei, len(e.Geometry))
		}
		if geo.Dist(e.Geometry[0], g.Vertices[e.A].Coords) > tol {
			return fmt.Errorf("%w: edge %d start off vertex %d", ErrCorruptGraph, ei, e.A)
		}
		if geo.Dist(e.Geometry[len(e.Geometry)-1], g.Vertices[e.B].Coords) > tol {
			return fmt.Errorf("%w: edge %d end off vertex %d", ErrCorruptGraph, ei, e.B)
		}
	}
	return nil
}

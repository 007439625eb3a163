package graph

import (
	"fmt"
	"log/slog"
	"math"

	"github.com/ctessum/geom"

	"roadsim.ai/internal/geo"
	"roadsim.ai/internal/graph/simplify"
)

// RawEdge is one source polyline, already in map space.
type RawEdge struct {
	ID       string
	Class    int
	In       []string
	Out      []string
	Vertices []geom.Point
}

type BuildOptions struct {
	Center      geom.Point
	RangeMeters float64

	// SnapRadius merges endpoints and decides whether two edges are duplicates.
	SnapRadius float64
	// BuildingSearchRadius bounds the vertex query around each building.
	BuildingSearchRadius float64
	// BuildingSnapDistance is the furthest a building may sit from a road segment.
	BuildingSnapDistance float64
	// EqualityTolerance decides whether a projected point coincides with an edge endpoint.
	EqualityTolerance float64
	// SimplifyTolerance enables RDP thinning of input polylines when > 0.
	SimplifyTolerance float64

	Logger *slog.Logger
}

func DefaultBuildOptions() BuildOptions {
	return BuildOptions{
		RangeMeters:          25000,
		SnapRadius:           100,
		BuildingSearchRadius: 500000,
		BuildingSnapDistance: 7000,
		EqualityTolerance:    1e-4,
	}
}

func (o *BuildOptions) normalize() {
	d := DefaultBuildOptions()
	if o.SnapRadius <= 0 {
		o.SnapRadius = d.SnapRadius
	}
	if o.BuildingSearchRadius <= 0 {
		o.BuildingSearchRadius = d.BuildingSearchRadius
	}
	if o.BuildingSnapDistance <= 0 {
		o.BuildingSnapDistance = d.BuildingSnapDistance
	}
	if o.EqualityTolerance <= 0 {
		o.EqualityTolerance = d.EqualityTolerance
	}
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
}

func (o BuildOptions) inRange(p geom.Point) bool {
	if o.RangeMeters <= 0 {
		return true
	}
	return geo.Dist(p, o.Center) <= geo.MetersToUnits(o.RangeMeters)
}

type BuildReport struct {
	InputEdges        int `json:"input_edges"`
	RetainedEdges     int `json:"retained_edges"`
	DuplicateEdges    int `json:"duplicate_edges"`
	SimplifiedPoints  int `json:"simplified_points"`
	Vertices          int `json:"vertices"`
	Edges             int `json:"edges"`
	BuildingsInRange  int `json:"buildings_in_range"`
	BuildingsAttached int `json:"buildings_attached"`
	BuildingsSkipped  int `json:"buildings_skipped"`
	Splits            int `json:"splits"`
}

// Build constructs a graph from raw edges and attaches buildings to it.
func Build(edges []RawEdge, buildings []geom.Point, opts BuildOptions) (*Graph, error) {
	g, _, err := BuildWithReport(edges, buildings, opts)
	return g, err
}

func BuildWithReport(edges []RawEdge, buildings []geom.Point, opts BuildOptions) (*Graph, BuildReport, error) {
	opts.normalize()
	var rep BuildReport
	rep.InputEdges = len(edges)

	for i, e := range edges {
		if len(e.Vertices) < 2 {
			return nil, rep, fmt.Errorf("%w: edge %d (id=%q) has %d points", ErrMalformedEdge, i, e.ID, len(e.Vertices))
		}
	}

	b := &builder{
		g:    &Graph{Center: opts.Center},
		opts: opts,
		rep:  &rep,
	}
	for _, e := range edges {
		if !anyInRange(e.Vertices, opts) {
			continue
		}
		pts := e.Vertices
		if opts.SimplifyTolerance > 0 {
			pts = simplify.RDP(pts, opts.SimplifyTolerance)
			rep.SimplifiedPoints += len(e.Vertices) - len(pts)
		}
		rep.RetainedEdges++
		b.addEdge(pts)
	}

	if err := b.attachBuildings(buildings); err != nil {
		return nil, rep, err
	}

	b.g.UpdateBounds()
	if err := b.g.Validate(0); err != nil {
		return nil, rep, err
	}
	rep.Vertices = len(b.g.Vertices)
	rep.Edges = len(b.g.Edges)

	opts.Logger.Info("graph built",
		"input_edges", rep.InputEdges,
		"retained_edges", rep.RetainedEdges,
		"duplicates", rep.DuplicateEdges,
		"vertices", rep.Vertices,
		"edges", rep.Edges,
		"buildings_attached", rep.BuildingsAttached,
		"buildings_skipped", rep.BuildingsSkipped,
	)
	return b.g, rep, nil
}

func anyInRange(pts []geom.Point, opts BuildOptions) bool {
	for _, p := range pts {
		if opts.inRange(p) {
			return true
		}
	}
	return false
}

type builder struct {
	g    *Graph
	opts BuildOptions
	rep  *BuildReport
}

// findVertex returns the nearest vertex strictly within SnapRadius, by linear scan.
func (b *builder) findVertex(p geom.Point) (int, bool) {
	best := -1
	bestD := math.Inf(1)
	for i := range b.g.Vertices {
		if d := geo.Dist(b.g.Vertices[i].Coords, p); d < bestD {
			bestD = d
			best = i
		}
	}
	if best >= 0 && bestD < b.opts.SnapRadius {
		return best, true
	}
	return -1, false
}

func (b *builder) resolveVertex(p geom.Point) int {
	if vi, ok := b.findVertex(p); ok {
		return vi
	}
	return b.g.addVertex(p, Road)
}

func (b *builder) equalPoints(p, q geom.Point) bool {
	return geo.Dist(p, q) < b.opts.SnapRadius
}

// hasSameEdge reports whether vertex vi already holds an edge joining the same
// two coordinates as (a, b), in either orientation.
func (b *builder) hasSameEdge(vi int, a, bb geom.Point) bool {
	for _, ei := range b.g.Vertices[vi].Edges {
		e := b.g.Edges[ei]
		ea := b.g.Vertices[e.A].Coords
		eb := b.g.Vertices[e.B].Coords
		if (b.equalPoints(ea, a) && b.equalPoints(eb, bb)) ||
			(b.equalPoints(ea, bb) && b.equalPoints(eb, a)) {
			return true
		}
	}
	return false
}

func (b *builder) addEdge(pts []geom.Point) {
	start := b.resolveVertex(pts[0])
	end := b.resolveVertex(pts[len(pts)-1])

	a := b.g.Vertices[start].Coords
	z := b.g.Vertices[end].Coords

	geometry := make([]geom.Point, len(pts))
	copy(geometry, pts)
	// Pin the ends to the snapped vertices so endpoint consistency is exact.
	geometry[0] = a
	geometry[len(geometry)-1] = z

	edgeIndex := len(b.g.Edges)
	pushed := false
	if !b.hasSameEdge(start, a, z) {
		b.g.addEdge(Edge{Geometry: geometry, A: start, B: end, Kind: Road})
		b.g.Vertices[start].Edges = append(b.g.Vertices[start].Edges, edgeIndex)
		pushed = true
	}
	if !b.hasSameEdge(end, a, z) {
		if !pushed {
			b.g.addEdge(Edge{Geometry: geometry, A: start, B: end, Kind: Road})
			pushed = true
		}
		b.g.Vertices[end].Edges = append(b.g.Vertices[end].Edges, edgeIndex)
	}
	if !pushed {
		b.rep.DuplicateEdges++
	}
}

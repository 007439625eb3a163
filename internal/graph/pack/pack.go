// Package pack is the compact wire form of a road graph: coordinates are
// quantized by RoundFactor relative to the graph center and delta-encoded in
// traversal order, and straight 2-point edges drop their geometry.
package pack

import (
	"errors"
	"fmt"
	"math"

	"github.com/ctessum/geom"

	"roadsim.ai/internal/graph"
)

const (
	Version            = 1
	DefaultRoundFactor = 100
)

var (
	ErrVersion     = errors.New("pack: unsupported version")
	ErrUnknownKind = errors.New("pack: unknown type enum")
	ErrMalformed   = errors.New("pack: malformed record")
)

// Wire values of graph.Kind. 2 is unassigned.
const (
	kindRoad  = 0
	kindHouse = 1
	kindNull  = 3
)

type Packed struct {
	Version     int            `json:"version"`
	RoundFactor int64          `json:"round_factor"`
	Center      [2]int64       `json:"center"`
	Min         [2]int64       `json:"min"`
	Max         [2]int64       `json:"max"`
	Vertices    []PackedVertex `json:"vertices"`
	Edges       []PackedEdge   `json:"edges"`
}

type PackedVertex struct {
	C [2]int64 `json:"c"`
	E []int64  `json:"e"`
	T int      `json:"t"`
}

// PackedEdge omits G for edges that are a straight line between their vertices.
type PackedEdge struct {
	G [][2]int64 `json:"g,omitempty"`
	A int64      `json:"a"`
	B int64      `json:"b"`
	T int        `json:"t"`
}

func kindToWire(k graph.Kind) (int, error) {
	switch k {
	case graph.Road:
		return kindRoad, nil
	case graph.House:
		return kindHouse, nil
	case graph.Null:
		return kindNull, nil
	}
	return 0, fmt.Errorf("%w: %v", ErrUnknownKind, k)
}

func kindFromWire(v int) (graph.Kind, error) {
	switch v {
	case kindRoad:
		return graph.Road, nil
	case kindHouse:
		return graph.House, nil
	case kindNull:
		return graph.Null, nil
	}
	return 0, fmt.Errorf("%w: %d", ErrUnknownKind, v)
}

// quantizer maps map-space coordinates onto the round-factor grid around center.
type quantizer struct {
	rf     float64
	center geom.Point
}

func newQuantizer(rf int64, center geom.Point) quantizer {
	r := float64(rf)
	// Snap the center itself to the grid so grid-aligned graphs round-trip exactly.
	return quantizer{rf: r, center: geom.Point{
		X: math.Round(center.X/r) * r,
		Y: math.Round(center.Y/r) * r,
	}}
}

func (q quantizer) quantize(p geom.Point) [2]int64 {
	return [2]int64{
		int64(math.Round((p.X - q.center.X) / q.rf)),
		int64(math.Round((p.Y - q.center.Y) / q.rf)),
	}
}

func (q quantizer) restore(v [2]int64) geom.Point {
	return geom.Point{
		X: float64(v[0])*q.rf + q.center.X,
		Y: float64(v[1])*q.rf + q.center.Y,
	}
}

// deltaState is one running "previous value" per axis.
type deltaState struct{ prev [2]int64 }

func (d *deltaState) encode(v [2]int64) [2]int64 {
	out := [2]int64{v[0] - d.prev[0], v[1] - d.prev[1]}
	d.prev = v
	return out
}

func (d *deltaState) decode(v [2]int64) [2]int64 {
	out := [2]int64{v[0] + d.prev[0], v[1] + d.prev[1]}
	d.prev = out
	return out
}

type indexDelta struct{ last int64 }

func (d *indexDelta) encode(i int) int64 {
	v := int64(i) - d.last
	d.last = int64(i)
	return v
}

func (d *indexDelta) decode(v int64) int64 {
	d.last += v
	return d.last
}

func roundPoint(p geom.Point) [2]int64 {
	return [2]int64{int64(math.Round(p.X)), int64(math.Round(p.Y))}
}

// Encode packs g with the default round factor.
func Encode(g *graph.Graph) (*Packed, error) {
	return EncodeWithRoundFactor(g, DefaultRoundFactor)
}

func EncodeWithRoundFactor(g *graph.Graph, rf int64) (*Packed, error) {
	if rf <= 0 {
		return nil, fmt.Errorf("%w: round factor %d", ErrMalformed, rf)
	}
	q := newQuantizer(rf, g.Center)
	p := &Packed{
		Version:     Version,
		RoundFactor: rf,
		Center:      roundPoint(q.center),
		Min:         roundPoint(g.Min),
		Max:         roundPoint(g.Max),
		Vertices:    make([]PackedVertex, 0, len(g.Vertices)),
		Edges:       make([]PackedEdge, 0, len(g.Edges)),
	}

	var coords deltaState
	var refs indexDelta
	for _, v := range g.Vertices {
		t, err := kindToWire(v.Kind)
		if err != nil {
			return nil, fmt.Errorf("vertex %d: %w", v.ID, err)
		}
		pv := PackedVertex{
			C: coords.encode(q.quantize(v.Coords)),
			E: make([]int64, len(v.Edges)),
			T: t,
		}
		for i, ei := range v.Edges {
			pv.E[i] = refs.encode(ei)
		}
		p.Vertices = append(p.Vertices, pv)
	}

	coords = deltaState{}
	refs = indexDelta{}
	for ei, e := range g.Edges {
		t, err := kindToWire(e.Kind)
		if err != nil {
			return nil, fmt.Errorf("edge %d: %w", ei, err)
		}
		pe := PackedEdge{T: t}
		if len(e.Geometry) != 2 {
			pe.G = make([][2]int64, len(e.Geometry))
			for i, pt := range e.Geometry {
				pe.G[i] = coords.encode(q.quantize(pt))
			}
		}
		pe.A = refs.encode(e.A)
		pe.B = refs.encode(e.B)
		p.Edges = append(p.Edges, pe)
	}
	return p, nil
}

// Decode reverses Encode: delta-decode, multiply by the round factor, add the center.
func Decode(p *Packed) (*graph.Graph, error) {
	if p == nil {
		return nil, fmt.Errorf("%w: nil record", ErrMalformed)
	}
	if p.Version != Version {
		return nil, fmt.Errorf("%w: %d", ErrVersion, p.Version)
	}
	if p.RoundFactor <= 0 {
		return nil, fmt.Errorf("%w: round factor %d", ErrMalformed, p.RoundFactor)
	}
	center := geom.Point{X: float64(p.Center[0]), Y: float64(p.Center[1])}
	q := newQuantizer(p.RoundFactor, center)

	g := &graph.Graph{
		Vertices: make([]graph.Vertex, 0, len(p.Vertices)),
		Edges:    make([]graph.Edge, 0, len(p.Edges)),
		Center:   q.center,
		Min:      geom.Point{X: float64(p.Min[0]), Y: float64(p.Min[1])},
		Max:      geom.Point{X: float64(p.Max[0]), Y: float64(p.Max[1])},
	}

	var coords deltaState
	var refs indexDelta
	for vi, pv := range p.Vertices {
		kind, err := kindFromWire(pv.T)
		if err != nil {
			return nil, fmt.Errorf("vertex %d: %w", vi, err)
		}
		v := graph.Vertex{
			ID:     vi,
			Coords: q.restore(coords.decode(pv.C)),
			Edges:  make([]int, len(pv.E)),
			Kind:   kind,
		}
		for i, d := range pv.E {
			ei := refs.decode(d)
			if ei < 0 || ei >= int64(len(p.Edges)) {
				return nil, fmt.Errorf("%w: vertex %d references edge %d", ErrMalformed, vi, ei)
			}
			v.Edges[i] = int(ei)
		}
		g.Vertices = append(g.Vertices, v)
	}

	coords = deltaState{}
	refs = indexDelta{}
	for ei, pe := range p.Edges {
		kind, err := kindFromWire(pe.T)
		if err != nil {
			return nil, fmt.Errorf("edge %d: %w", ei, err)
		}
		var geometry []geom.Point
		if pe.G != nil {
			if len(pe.G) < 2 {
				return nil, fmt.Errorf("%w: edge %d has %d points", ErrMalformed, ei, len(pe.G))
			}
			geometry = make([]geom.Point, len(pe.G))
			for i, d := range pe.G {
				geometry[i] = q.restore(coords.decode(d))
			}
		}
		a := refs.decode(pe.A)
		b := refs.decode(pe.B)
		if a < 0 || a >= int64(len(g.Vertices)) || b < 0 || b >= int64(len(g.Vertices)) {
			return nil, fmt.Errorf("%w: edge %d endpoints %d-%d", ErrMalformed, ei, a, b)
		}
		if geometry == nil {
			geometry = []geom.Point{g.Vertices[a].Coords, g.Vertices[b].Coords}
		}
		g.Edges = append(g.Edges, graph.Edge{Geometry: geometry, A: int(a), B: int(b), Kind: kind})
	}

	if err := g.Validate(0); err != nil {
		return nil, err
	}
	return g, nil
}

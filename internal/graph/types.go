package graph

import (
	"errors"
	"fmt"

	"github.com/ctessum/geom"
)

var (
	// ErrMalformedEdge marks input geometry the builder cannot use (fewer than 2 points).
	ErrMalformedEdge = errors.New("graph: malformed edge geometry")
	// ErrCorruptGraph marks a broken internal invariant; the graph must not be used.
	ErrCorruptGraph = errors.New("graph: corrupt graph")
)

type Kind uint8

const (
	Road Kind = iota
	House
	Null
)

func (k Kind) String() string {
	switch k {
	case Road:
		return "road"
	case House:
		return "house"
	case Null:
		return "null"
	default:
		return fmt.Sprintf("kind(%d)", uint8(k))
	}
}

type Vertex struct {
	ID     int
	Coords geom.Point
	Edges  []int
	Kind   Kind
}

type Edge struct {
	Geometry []geom.Point
	A        int
	B        int
	Kind     Kind
}

// Graph is an append-only arena: vertex and edge indices, once assigned, stay
// valid for the lifetime of the graph. Splits replace an edge in place.
type Graph struct {
	Vertices []Vertex
	Edges    []Edge
	Center   geom.Point
	Min      geom.Point
	Max      geom.Point
}

func (g *Graph) addVertex(p geom.Point, kind Kind) int {
	id := len(g.Vertices)
	g.Vertices = append(g.Vertices, Vertex{ID: id, Coords: p, Kind: kind})
	return id
}

func (g *Graph) addEdge(e Edge) int {
	g.Edges = append(g.Edges, e)
	return len(g.Edges) - 1
}

// Other returns the endpoint of edge ei opposite to vertex v.
func (g *Graph) Other(ei, v int) int {
	e := g.Edges[ei]
	if e.A == v {
		return e.B
	}
	return e.A
}

// HouseEdge returns the first House edge incident to v.
func (g *Graph) HouseEdge(v int) (int, bool) {
	for _, ei := range g.Vertices[v].Edges {
		if g.Edges[ei].Kind == House {
			return ei, true
		}
	}
	return -1, false
}

// UpdateBounds recomputes Min/Max from vertex coordinates.
func (g *Graph) UpdateBounds() {
	if len(g.Vertices) == 0 {
		g.Min, g.Max = g.Center, g.Center
		return
	}
	g.Min = g.Vertices[0].Coords
	g.Max = g.Vertices[0].Coords
	for _, v := range g.Vertices[1:] {
		if v.Coords.X < g.Min.X {
			g.Min.X = v.Coords.X
		}
		if v.Coords.Y < g.Min.Y {
			g.Min.Y = v.Coords.Y
		}
		if v.Coords.X > g.Max.X {
			g.Max.X = v.Coords.X
		}
		if v.Coords.Y > g.Max.Y {
			g.Max.Y = v.Coords.Y
		}
	}
}

// CountKinds returns vertex and edge counts per Kind.
func (g *Graph) CountKinds() (vertices, edges map[Kind]int) {
	vertices = map[Kind]int{}
	edges = map[Kind]int{}
	for _, v := range g.Vertices {
		vertices[v.Kind]++
	}
	for _, e := range g.Edges {
		edges[e.Kind]++
	}
	return vertices, edges
}

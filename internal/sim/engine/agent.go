package engine

import (
	"fmt"

	"github.com/ctessum/geom"

	"roadsim.ai/internal/geo"
	"roadsim.ai/internal/graph"
	"roadsim.ai/internal/sim/rng"
)

type State uint8

const (
	Virgin State = iota
	Disease
	Immune
)

func (s State) String() string {
	switch s {
	case Virgin:
		return "virgin"
	case Disease:
		return "disease"
	case Immune:
		return "immune"
	default:
		return fmt.Sprintf("state(%d)", uint8(s))
	}
}

// Agent is one walker. All times are simulated milliseconds.
type Agent struct {
	Coords        geom.Point
	Edge          int
	Forward       bool
	StartTime     float64
	State         State
	DiseaseStart  float64
	Stopped       bool
	HomeTimeStart float64

	ImmunityAfter float64
	WaitAtHome    float64
	TimeOutside   float64
}

type AgentView struct {
	X     float64 `json:"x"`
	Y     float64 `json:"y"`
	State State   `json:"state"`
}

func (a *Agent) atHome(now float64) bool {
	return now-a.HomeTimeStart < a.WaitAtHome
}

func deviate(base, deviation float64, r *rng.Rand) float64 {
	return base * 1000 * (1 + (r.Next()-0.5)*deviation)
}

// newAgent draws, in order: spawn vertex, incident edge, the three per-agent
// durations, then the home phase offset.
func newAgent(g *graph.Graph, r *rng.Rand, spawn []int, o Options, disease, stopped bool) Agent {
	vi := spawn[r.Intn(len(spawn))]
	v := g.Vertices[vi]
	ei := v.Edges[r.Intn(len(v.Edges))]

	a := Agent{
		Coords:  v.Coords,
		Edge:    ei,
		Forward: g.Edges[ei].A == vi,
		Stopped: stopped,
	}
	if disease {
		a.State = Disease
	}
	a.ImmunityAfter = deviate(o.ImmunityAfter, o.HumanDeviation, r)
	a.WaitAtHome = deviate(o.WaitAtHome, o.HumanDeviation, r)
	a.TimeOutside = deviate(o.TimeOutside, o.HumanDeviation, r)

	if v.Kind == graph.House {
		a.HomeTimeStart = -r.Next() * a.WaitAtHome
	} else {
		a.HomeTimeStart = -a.WaitAtHome - r.Next()*a.TimeOutside
	}
	return a
}

// update advances one agent to now: state transition first, then movement.
func update(g *graph.Graph, r *rng.Rand, o *Options, a *Agent, now float64) {
	if a.State == Disease && now-a.DiseaseStart > a.ImmunityAfter {
		a.State = Immune
	}
	if a.Stopped || a.atHome(now) {
		return
	}

	e := g.Edges[a.Edge]
	distance := o.HumanSpeed * (now - a.StartTime)
	if pos, ok := walk(e.Geometry, a.Forward, distance); ok {
		a.Coords = pos
		return
	}

	end := e.B
	if !a.Forward {
		end = e.A
	}
	v := g.Vertices[end]
	if v.Kind == graph.House {
		a.HomeTimeStart = now
		a.Coords = v.Coords
	}

	next, ok := chooseNextEdge(g, r, a, end, now)
	if !ok {
		// Dead end with no edges at all: park here for good.
		a.Stopped = true
		return
	}
	a.Edge = next
	a.StartTime = now
	a.Forward = g.Edges[next].A == end
}

// walk returns the point distance along the polyline in the given direction,
// or false once distance reaches past the last point.
func walk(geometry []geom.Point, forward bool, distance float64) (geom.Point, bool) {
	n := len(geometry)
	passed := 0.0
	for i := 0; i < n-1; i++ {
		var p0, p1 geom.Point
		if forward {
			p0, p1 = geometry[i], geometry[i+1]
		} else {
			p0, p1 = geometry[n-1-i], geometry[n-2-i]
		}
		l := geo.Dist(p0, p1)
		if distance < passed+l {
			t := geo.Clamp((distance-passed)/l, 0, 1)
			return geo.Lerp(p0, p1, t), true
		}
		passed += l
	}
	return geom.Point{}, false
}

// chooseNextEdge picks the edge to take from vertex vi after arriving on
// a.Edge. A house edge is forced when it is the only way on or the agent has
// been out longer than TimeOutside. Otherwise a non-house edge is drawn; a
// draw of the arrival edge advances once to its neighbour.
func chooseNextEdge(g *graph.Graph, r *rng.Rand, a *Agent, vi int, now float64) (int, bool) {
	edges := g.Vertices[vi].Edges
	if len(edges) == 0 {
		return 0, false
	}

	house := -1
	others := make([]int, 0, len(edges))
	for _, ei := range edges {
		if g.Edges[ei].Kind == graph.House {
			if house < 0 {
				house = ei
			}
			continue
		}
		others = append(others, ei)
	}

	if house >= 0 && (len(others) == 0 || now-(a.HomeTimeStart+a.WaitAtHome) > a.TimeOutside) {
		return house, true
	}

	i := r.Intn(len(others))
	if others[i] == a.Edge && len(others) > 1 {
		i = (i + 1) % len(others)
	}
	return others[i], true
}

package engine

import (
	"time"

	"github.com/ctessum/geom"

	"roadsim.ai/internal/geo"
	"roadsim.ai/internal/graph"
)

// Options is the start contract of a run. Durations given in seconds are
// converted to simulated milliseconds per agent at spawn time.
type Options struct {
	RandomSeed        int64   `json:"random_seed" yaml:"random_seed"`
	DiseaseRange      float64 `json:"disease_range" yaml:"disease_range"`   // meters
	ImmunityAfter     float64 `json:"immunity_after" yaml:"immunity_after"` // seconds
	WaitAtHome        float64 `json:"wait_at_home" yaml:"wait_at_home"`     // seconds
	TimeOutside       float64 `json:"time_outside" yaml:"time_outside"`     // seconds
	HumanDeviation    float64 `json:"human_deviation" yaml:"human_deviation"`
	HumansCount       int     `json:"humans_count" yaml:"humans_count"`
	HumansStop        float64 `json:"humans_stop" yaml:"humans_stop"`
	DiseaseStartCount int     `json:"disease_start_count" yaml:"disease_start_count"`
	HumanSpeed        float64 `json:"human_speed" yaml:"human_speed"` // map units per ms
	DataURL           string  `json:"data_url" yaml:"data_url"`

	// MaxStep bounds a single tick; longer steps (host suspended) become NominalStep.
	MaxStep     time.Duration `json:"-" yaml:"-"`
	NominalStep time.Duration `json:"-" yaml:"-"`
	// SpreadInterval throttles infection checks; 0 runs them every tick.
	SpreadInterval time.Duration `json:"-" yaml:"-"`
}

func DefaultOptions() Options {
	return Options{
		RandomSeed:        15,
		DiseaseRange:      30,
		ImmunityAfter:     15,
		WaitAtHome:        2,
		TimeOutside:       5,
		HumansCount:       4000,
		DiseaseStartCount: 50,
		HumanSpeed:        100,

		MaxStep:        200 * time.Millisecond,
		NominalStep:    16 * time.Millisecond,
		SpreadInterval: 100 * time.Millisecond,
	}
}

func (o *Options) normalize() {
	d := DefaultOptions()
	if o.MaxStep <= 0 {
		o.MaxStep = d.MaxStep
	}
	if o.NominalStep <= 0 {
		o.NominalStep = d.NominalStep
	}
	if o.SpreadInterval < 0 {
		o.SpreadInterval = 0
	}
	if o.HumansCount < 0 {
		o.HumansCount = 0
	}
}

// Filter restricts spawning to vertices within Radius meters of Center (lon, lat).
type Filter struct {
	Center [2]float64 `json:"center" yaml:"center"`
	Radius float64    `json:"radius" yaml:"radius"`
}

// spawnSet returns the vertices agents may start on: every vertex with at
// least one edge, narrowed by f when set.
func spawnSet(g *graph.Graph, f *Filter) []int {
	var center geom.Point
	var limit float64
	if f != nil {
		center = geo.ProjectGeoToMap(f.Center[0], f.Center[1])
		limit = geo.MetersToUnits(f.Radius)
	}
	out := make([]int, 0, len(g.Vertices))
	for _, v := range g.Vertices {
		if len(v.Edges) == 0 {
			continue
		}
		if f != nil && geo.Dist(v.Coords, center) >= limit {
			continue
		}
		out = append(out, v.ID)
	}
	return out
}

func houseVertices(g *graph.Graph, set []int) []int {
	var out []int
	for _, vi := range set {
		if g.Vertices[vi].Kind == graph.House {
			out = append(out, vi)
		}
	}
	return out
}

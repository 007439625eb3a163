package tuning

import (
	"fmt"
	"os"
	"time"

	"github.com/ctessum/geom"
	"gopkg.in/yaml.v3"

	"roadsim.ai/internal/geo"
	"roadsim.ai/internal/graph"
	"roadsim.ai/internal/sim/engine"
	"roadsim.ai/internal/sim/stats"
)

type Tuning struct {
	Builder    Builder        `yaml:"builder"`
	Simulation Simulation     `yaml:"simulation"`
	Filter     *engine.Filter `yaml:"filter"`
	Stats      Stats          `yaml:"stats"`
}

type Builder struct {
	// Center is (lon, lat); nil leaves the map origin. RangeMeters keeps
	// edges near it (0 keeps all).
	Center               *[2]float64 `yaml:"center"`
	RangeMeters          float64     `yaml:"range_meters"`
	SnapRadius           float64     `yaml:"snap_radius"`
	BuildingSearchRadius float64     `yaml:"building_search_radius"`
	BuildingSnapDistance float64     `yaml:"building_snap_distance"`
	EqualityTolerance    float64     `yaml:"equality_tolerance"`
	SimplifyTolerance    float64     `yaml:"simplify_tolerance"`
	RoundFactor          int64       `yaml:"round_factor"`
}

type Simulation struct {
	engine.Options `yaml:",inline"`

	MaxStepMs        int `yaml:"max_step_ms"`
	NominalStepMs    int `yaml:"nominal_step_ms"`
	SpreadIntervalMs int `yaml:"spread_interval_ms"`
	TickRateHz       int `yaml:"tick_rate_hz"`
}

type Stats struct {
	WindowBucketMs int `yaml:"window_bucket_ms"`
	WindowBuckets  int `yaml:"window_buckets"`
}

func Defaults() Tuning {
	b := graph.DefaultBuildOptions()
	o := engine.DefaultOptions()
	return Tuning{
		Builder: Builder{
			RangeMeters:          b.RangeMeters,
			SnapRadius:           b.SnapRadius,
			BuildingSearchRadius: b.BuildingSearchRadius,
			BuildingSnapDistance: b.BuildingSnapDistance,
			EqualityTolerance:    b.EqualityTolerance,
			RoundFactor:          100,
		},
		Simulation: Simulation{
			Options:          o,
			MaxStepMs:        int(o.MaxStep / time.Millisecond),
			NominalStepMs:    int(o.NominalStep / time.Millisecond),
			SpreadIntervalMs: int(o.SpreadInterval / time.Millisecond),
			TickRateHz:       60,
		},
		Stats: Stats{
			WindowBucketMs: stats.DefaultBucketMS,
			WindowBuckets:  stats.DefaultWindowBuckets,
		},
	}
}

// Load reads path over Defaults(): keys absent from the file keep their
// default value.
func Load(path string) (Tuning, error) {
	t := Defaults()
	raw, err := os.ReadFile(path)
	if err != nil {
		return t, err
	}
	if err := yaml.Unmarshal(raw, &t); err != nil {
		return t, fmt.Errorf("tuning.yaml: %w", err)
	}
	if err := t.Validate(); err != nil {
		return t, fmt.Errorf("tuning.yaml: %w", err)
	}
	return t, nil
}

func (t Tuning) Validate() error {
	s := t.Simulation
	switch {
	case s.HumansCount < 0:
		return fmt.Errorf("simulation.humans_count must be >= 0")
	case s.HumansStop < 0 || s.HumansStop > 1:
		return fmt.Errorf("simulation.humans_stop must be in [0,1]")
	case s.HumanDeviation < 0 || s.HumanDeviation > 1:
		return fmt.Errorf("simulation.human_deviation must be in [0,1]")
	case s.HumanSpeed < 0:
		return fmt.Errorf("simulation.human_speed must be >= 0")
	case s.TickRateHz <= 0:
		return fmt.Errorf("simulation.tick_rate_hz must be > 0")
	case s.SpreadIntervalMs < 0:
		return fmt.Errorf("simulation.spread_interval_ms must be >= 0")
	case t.Builder.RoundFactor <= 0:
		return fmt.Errorf("builder.round_factor must be > 0")
	case t.Filter != nil && t.Filter.Radius <= 0:
		return fmt.Errorf("filter.radius must be > 0")
	}
	return nil
}

// BuildOptions converts the builder section; the center is projected to map space.
func (t Tuning) BuildOptions() graph.BuildOptions {
	b := t.Builder
	var center geom.Point
	if b.Center != nil {
		center = geo.ProjectGeoToMap(b.Center[0], b.Center[1])
	}
	return graph.BuildOptions{
		Center:               center,
		RangeMeters:          b.RangeMeters,
		SnapRadius:           b.SnapRadius,
		BuildingSearchRadius: b.BuildingSearchRadius,
		BuildingSnapDistance: b.BuildingSnapDistance,
		EqualityTolerance:    b.EqualityTolerance,
		SimplifyTolerance:    b.SimplifyTolerance,
	}
}

func (t Tuning) EngineOptions() engine.Options {
	o := t.Simulation.Options
	o.MaxStep = time.Duration(t.Simulation.MaxStepMs) * time.Millisecond
	o.NominalStep = time.Duration(t.Simulation.NominalStepMs) * time.Millisecond
	o.SpreadInterval = time.Duration(t.Simulation.SpreadIntervalMs) * time.Millisecond
	return o
}

func (t Tuning) TickInterval() time.Duration {
	hz := t.Simulation.TickRateHz
	if hz <= 0 {
		hz = 60
	}
	return time.Second / time.Duration(hz)
}

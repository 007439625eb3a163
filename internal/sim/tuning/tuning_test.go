package tuning

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/ctessum/geom"

	"roadsim.ai/internal/geo"
)

func writeYAML(t *testing.T, body string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), "tuning.yaml")
	if err := os.WriteFile(p, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
	return p
}

func TestLoad_OverridesOnlyGivenKeys(t *testing.T) {
	p := writeYAML(t, `
builder:
  center: [37.62, 55.75]
  snap_radius: 250
  simplify_tolerance: 300
simulation:
  random_seed: 7
  humans_count: 1200
  human_speed: 0.5
  data_url: s3://maps/city.json.zst
  spread_interval_ms: 0
filter:
  center: [37.62, 55.75]
  radius: 1500
`)
	tu, err := Load(p)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if tu.Builder.SnapRadius != 250 || tu.Builder.BuildingSnapDistance != 7000 {
		t.Fatalf("builder: %+v", tu.Builder)
	}
	o := tu.EngineOptions()
	if o.RandomSeed != 7 || o.HumansCount != 1200 || o.HumanSpeed != 0.5 || o.DataURL != "s3://maps/city.json.zst" {
		t.Fatalf("options: %+v", o)
	}
	// Untouched keys keep their defaults.
	if o.DiseaseRange != 30 || o.DiseaseStartCount != 50 || o.MaxStep != 200*time.Millisecond {
		t.Fatalf("defaults lost: %+v", o)
	}
	// An explicit zero is honoured.
	if o.SpreadInterval != 0 {
		t.Fatalf("spread interval %v", o.SpreadInterval)
	}
	if tu.Filter == nil || tu.Filter.Radius != 1500 || tu.Filter.Center[1] != 55.75 {
		t.Fatalf("filter: %+v", tu.Filter)
	}
	if tu.TickInterval() != time.Second/60 {
		t.Fatalf("tick interval %v", tu.TickInterval())
	}
	if bo := tu.BuildOptions(); bo.SimplifyTolerance != 300 || bo.Center.X == 0 {
		t.Fatalf("build options: %+v", bo)
	}
}

func TestLoad_RejectsBadValues(t *testing.T) {
	for name, body := range map[string]string{
		"stop fraction": "simulation:\n  humans_stop: 1.5\n",
		"tick rate":     "simulation:\n  tick_rate_hz: 0\n",
		"filter radius": "filter:\n  center: [0, 0]\n",
		"syntax":        "simulation: [\n",
	} {
		t.Run(name, func(t *testing.T) {
			if _, err := Load(writeYAML(t, body)); err == nil {
				t.Fatalf("expected error")
			}
		})
	}
}

func TestDefaults_Validate(t *testing.T) {
	if err := Defaults().Validate(); err != nil {
		t.Fatalf("defaults invalid: %v", err)
	}
}

func TestLoad_ShippedConfig(t *testing.T) {
	got, err := Load(filepath.Join("..", "..", "..", "configs", "tuning.yaml"))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	def := Defaults()
	if got.Simulation.Options != def.Simulation.Options {
		t.Fatalf("simulation drifted from defaults:\n got %+v\nwant %+v", got.Simulation.Options, def.Simulation.Options)
	}
	if got.Builder.Center == nil || got.Builder.SimplifyTolerance != 300 || got.Builder.RoundFactor != 100 {
		t.Fatalf("builder: %+v", got.Builder)
	}
	if got.TickInterval() != time.Second/60 {
		t.Fatalf("tick interval: %v", got.TickInterval())
	}
}

func TestBuildOptions_CenterPresence(t *testing.T) {
	tu, err := Load(writeYAML(t, "builder:\n  center: [0, 0]\n"))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if tu.Builder.Center == nil {
		t.Fatalf("explicit (0,0) center read as unset")
	}
	if got, want := tu.BuildOptions().Center, geo.ProjectGeoToMap(0, 0); got != want {
		t.Fatalf("center %v want %v", got, want)
	}

	tu, err = Load(writeYAML(t, "builder:\n  snap_radius: 5\n"))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if tu.Builder.Center != nil || tu.BuildOptions().Center != (geom.Point{}) {
		t.Fatalf("absent center: %v", tu.BuildOptions().Center)
	}
}

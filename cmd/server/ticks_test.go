package main

import (
	"testing"
	"time"

	"github.com/ctessum/geom"

	"roadsim.ai/internal/graph"
	"roadsim.ai/internal/persistence/indexdb"
	persistlog "roadsim.ai/internal/persistence/log"
	"roadsim.ai/internal/sim/engine"
)

type memSink struct{ entries []persistlog.TickEntry }

func (m *memSink) WriteTick(e persistlog.TickEntry) error {
	m.entries = append(m.entries, e)
	return nil
}

type memRuns struct{ rows []indexdb.RunRow }

func (m *memRuns) RecordRun(r indexdb.RunRow) { m.rows = append(m.rows, r) }

func lineGraph() *graph.Graph {
	g := &graph.Graph{
		Vertices: []graph.Vertex{
			{ID: 0, Coords: geom.Point{X: 0, Y: 0}, Edges: []int{0}, Kind: graph.Road},
			{ID: 1, Coords: geom.Point{X: 1000, Y: 0}, Edges: []int{0}, Kind: graph.Road},
		},
		Edges: []graph.Edge{
			{Geometry: []geom.Point{{X: 0, Y: 0}, {X: 1000, Y: 0}}, A: 0, B: 1, Kind: graph.Road},
		},
	}
	g.UpdateBounds()
	return g
}

func TestTickRecorder_NumbersTicksPerGeneration(t *testing.T) {
	o := engine.DefaultOptions()
	o.HumansCount = 4
	o.DiseaseStartCount = 2
	e := engine.New(o, nil, nil)

	sink, runs := &memSink{}, &memRuns{}
	var published []uint64
	fixed := time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC)
	r := &tickRecorder{
		runID:       "run-x",
		digestEvery: 2,
		sink:        sink,
		runs:        runs,
		publish:     func(tick uint64, _ *engine.Engine) { published = append(published, tick) },
		now:         func() time.Time { return fixed },
	}

	gen1 := e.StartWithGraph(o, nil, lineGraph())
	for i := 0; i < 3; i++ {
		if e.Tick(16 * time.Millisecond) {
			r.onTick(e)
		}
	}
	gen2 := e.StartWithGraph(o, nil, lineGraph())
	if e.Tick(16 * time.Millisecond) {
		r.onTick(e)
	}

	if len(sink.entries) != 4 {
		t.Fatalf("entries: %d", len(sink.entries))
	}
	first, last := sink.entries[0], sink.entries[3]
	if first.Generation != gen1 || first.Tick != 1 || first.Digest != "" || first.Disease != 2 || first.RunID != "run-x" {
		t.Fatalf("first: %+v", first)
	}
	if sink.entries[1].Digest == "" {
		t.Fatalf("tick 2 should carry a digest")
	}
	if last.Generation != gen2 || last.Tick != 1 || last.Time != 16 {
		t.Fatalf("last: %+v", last)
	}

	if len(runs.rows) != 2 || runs.rows[0].Generation != gen1 || runs.rows[0].Agents != 4 || runs.rows[0].Vertices != 2 || !runs.rows[1].StartedAt.Equal(fixed) {
		t.Fatalf("runs: %+v", runs.rows)
	}
	if len(published) != 4 || published[2] != 3 || published[3] != 1 {
		t.Fatalf("published: %v", published)
	}
}

func TestMultiTickSink_SkipsNil(t *testing.T) {
	a := &memSink{}
	m := multiTickSink{nil, a}
	_ = m.WriteTick(persistlog.TickEntry{Tick: 9})
	if len(a.entries) != 1 || a.entries[0].Tick != 9 {
		t.Fatalf("entries: %+v", a.entries)
	}
}

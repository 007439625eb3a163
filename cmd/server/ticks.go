package main

import (
	"time"

	"roadsim.ai/internal/metrics"
	"roadsim.ai/internal/persistence/indexdb"
	persistlog "roadsim.ai/internal/persistence/log"
	"roadsim.ai/internal/sim/engine"
)

type runRecorder interface {
	RecordRun(r indexdb.RunRow)
}

// tickRecorder turns advancing engine ticks into tick log entries, run rows,
// metrics and observer messages. It runs on the engine goroutine.
type tickRecorder struct {
	runID       string
	digestEvery uint64
	sink        tickSink
	runs        runRecorder
	publish     func(tick uint64, e *engine.Engine)
	now         func() time.Time

	gen  uint64
	tick uint64
}

func (r *tickRecorder) onTick(e *engine.Engine) {
	if g := e.Generation(); g != r.gen {
		r.gen = g
		r.tick = 0
		r.recordRun(e)
	}
	r.tick++

	c := e.Counts()
	entry := persistlog.TickEntry{
		RunID:      r.runID,
		Generation: r.gen,
		Tick:       r.tick,
		Time:       e.Time(),
		Virgin:     c.Virgin,
		Disease:    c.Disease,
		Immune:     c.Immune,
	}
	if r.digestEvery > 0 && r.tick%r.digestEvery == 0 {
		entry.Digest = e.StateDigest()
	}
	if r.sink != nil {
		_ = r.sink.WriteTick(entry)
	}
	metrics.ObserveTick(e.StepDuration(), c, e.Time(), r.gen)
	if r.publish != nil {
		r.publish(r.tick, e)
	}
}

func (r *tickRecorder) recordRun(e *engine.Engine) {
	if r.runs == nil {
		return
	}
	o := e.Options()
	row := indexdb.RunRow{
		RunID:      r.runID,
		Generation: r.gen,
		Seed:       o.RandomSeed,
		DataURL:    o.DataURL,
		Agents:     len(e.Agents()),
		Options:    o,
		StartedAt:  r.now(),
	}
	if g := e.Graph(); g != nil {
		row.Vertices = len(g.Vertices)
		row.Edges = len(g.Edges)
	}
	r.runs.RecordRun(row)
}

package indexdb

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	simlog "roadsim.ai/internal/persistence/log"
)

func TestSQLiteIndex_TicksAndRuns(t *testing.T) {
	path := filepath.Join(t.TempDir(), "index", "roadsim.sqlite")
	idx, err := OpenSQLite(path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}

	idx.RecordRun(RunRow{
		RunID:      "r1",
		Generation: 1,
		Seed:       15,
		DataURL:    "city.json",
		Agents:     100,
		Vertices:   12,
		Edges:      14,
		Options:    map[string]any{"humans_count": 100},
		StartedAt:  time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
	})
	disease := []int{2, 5, 9, 7}
	for i, d := range disease {
		_ = idx.WriteTick(simlog.TickEntry{
			RunID: "r1", Generation: 1, Tick: uint64(i + 1), Time: float64((i + 1) * 16),
			Virgin: 100 - d, Disease: d, Digest: "x",
		})
	}
	// A replaced row keeps one entry per tick.
	_ = idx.WriteTick(simlog.TickEntry{RunID: "r1", Generation: 1, Tick: 4, Time: 64, Virgin: 93, Disease: 7, Digest: "y"})
	idx.RecordGraph(GraphRow{Path: "city.json", Vertices: 12, Edges: 14, Report: map[string]int{"dropped": 0}, BuiltAt: time.Now()})

	if err := idx.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	idx, err = OpenSQLite(path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer idx.Close()

	ctx := context.Background()
	ticks, err := idx.Ticks(ctx, "r1")
	if err != nil {
		t.Fatalf("ticks: %v", err)
	}
	if len(ticks) != 4 {
		t.Fatalf("want 4 ticks, got %d", len(ticks))
	}
	if ticks[0].Tick != 1 || ticks[0].Disease != 2 || ticks[3].Digest != "y" {
		t.Fatalf("ticks: %+v", ticks)
	}

	peak, at, err := idx.PeakDisease(ctx, "r1")
	if err != nil || peak != 9 || at != 3 {
		t.Fatalf("peak=%d at=%d err=%v", peak, at, err)
	}
	if peak, at, err := idx.PeakDisease(ctx, "missing"); err != nil || peak != 0 || at != 0 {
		t.Fatalf("missing run: peak=%d at=%d err=%v", peak, at, err)
	}

	n, err := idx.RunCount(ctx)
	if err != nil || n != 1 {
		t.Fatalf("runs=%d err=%v", n, err)
	}
	if n, err := idx.GraphCount(ctx); err != nil || n != 1 {
		t.Fatalf("graphs=%d err=%v", n, err)
	}
}

func TestSQLiteIndex_StatsAndClosedWrites(t *testing.T) {
	idx, err := OpenSQLite(filepath.Join(t.TempDir(), "i.sqlite"))
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	st := idx.Stats()
	if st.QueueCapacity != 65536 {
		t.Fatalf("capacity: %d", st.QueueCapacity)
	}
	if err := idx.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	// Writes after close are ignored, not counted as drops.
	_ = idx.WriteTick(simlog.TickEntry{RunID: "r", Tick: 1})
	idx.RecordRun(RunRow{RunID: "r"})
	st = idx.Stats()
	if st.DropTickTotal != 0 || st.DropRunTotal != 0 {
		t.Fatalf("stats: %+v", st)
	}
	if err := idx.Close(); err != nil {
		t.Fatalf("second close: %v", err)
	}

	var nilIdx *SQLiteIndex
	if nilIdx.Stats() != (Stats{}) {
		t.Fatalf("nil stats")
	}
	_ = nilIdx.WriteTick(simlog.TickEntry{})
}

func TestOpenSQLite_EmptyPath(t *testing.T) {
	if _, err := OpenSQLite(""); err == nil {
		t.Fatalf("expected error")
	}
}

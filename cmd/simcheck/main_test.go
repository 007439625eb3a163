package main

import (
	"bytes"
	"path/filepath"
	"strings"
	"testing"

	"github.com/ctessum/geom"

	"roadsim.ai/internal/graph"
	"roadsim.ai/internal/graph/pack"
	persistlog "roadsim.ai/internal/persistence/log"
)

func writeCity(t *testing.T, dir string) string {
	t.Helper()
	var edges []graph.RawEdge
	for i := 0; i < 3; i++ {
		y := float64(i * 1000)
		edges = append(edges,
			graph.RawEdge{ID: "h", Vertices: []geom.Point{{X: 0, Y: y}, {X: 2000, Y: y}}},
			graph.RawEdge{ID: "v", Vertices: []geom.Point{{X: y, Y: 0}, {X: y, Y: 2000}}},
		)
	}
	opts := graph.DefaultBuildOptions()
	opts.RangeMeters = 0
	g, err := graph.Build(edges, []geom.Point{{X: 500, Y: 150}, {X: 1500, Y: 1850}}, opts)
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	p, err := pack.Encode(g)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	path := filepath.Join(dir, "city.graph.zst")
	if err := pack.WriteFile(path, p); err != nil {
		t.Fatalf("write: %v", err)
	}
	return path
}

func TestRun_WriteThenVerify(t *testing.T) {
	dir := t.TempDir()
	city := writeCity(t, dir)
	logDir := filepath.Join(dir, "run")

	base := []string{"-graph", city, "-ticks", "40", "-agents", "30", "-seed", "7", "-step_ms", "50", "-log_level", "error"}
	var out bytes.Buffer
	if err := run(append(base, "-out", logDir), &out); err != nil {
		t.Fatalf("write run: %v", err)
	}
	entries, err := persistlog.ReadTickDir(filepath.Join(logDir, "ticks"))
	if err != nil {
		t.Fatalf("read log: %v", err)
	}
	if len(entries) != 40 || entries[39].Tick != 40 || entries[39].Time != 2000 || entries[0].Digest == "" {
		t.Fatalf("log: %d entries, last %+v", len(entries), entries[len(entries)-1])
	}
	if entries[0].Virgin+entries[0].Disease+entries[0].Immune != 30 {
		t.Fatalf("census: %+v", entries[0])
	}

	out.Reset()
	if err := run(append(base, "-verify", logDir), &out); err != nil {
		t.Fatalf("verify: %v", err)
	}
	if !strings.Contains(out.String(), "verify ok: checked=40 ticks digests=40") {
		t.Fatalf("output: %s", out.String())
	}
}

func TestRun_VerifyDetectsDivergence(t *testing.T) {
	dir := t.TempDir()
	city := writeCity(t, dir)
	logDir := filepath.Join(dir, "run")

	args := []string{"-graph", city, "-ticks", "10", "-agents", "30", "-log_level", "error"}
	if err := run(append(args, "-seed", "7", "-out", logDir), &bytes.Buffer{}); err != nil {
		t.Fatalf("write run: %v", err)
	}
	err := run(append(args, "-seed", "8", "-verify", logDir), &bytes.Buffer{})
	if err == nil || !strings.Contains(err.Error(), "mismatch") {
		t.Fatalf("expected mismatch, got %v", err)
	}
}

func TestRun_ShortLogIsRejected(t *testing.T) {
	dir := t.TempDir()
	city := writeCity(t, dir)
	logDir := filepath.Join(dir, "run")
	if err := run([]string{"-graph", city, "-ticks", "5", "-out", logDir, "-log_level", "error"}, &bytes.Buffer{}); err != nil {
		t.Fatalf("write run: %v", err)
	}
	if err := run([]string{"-graph", city, "-ticks", "6", "-verify", logDir, "-log_level", "error"}, &bytes.Buffer{}); err == nil {
		t.Fatalf("expected short log error")
	}
}

func TestCompare(t *testing.T) {
	a := persistlog.TickEntry{Tick: 3, Time: 48, Virgin: 5, Digest: "x"}
	b := a
	if err := compare(a, b); err != nil {
		t.Fatalf("equal: %v", err)
	}
	b.Digest = ""
	if err := compare(a, b); err != nil {
		t.Fatalf("missing digest is not compared: %v", err)
	}
	b.Disease = 1
	if err := compare(a, b); err == nil {
		t.Fatalf("expected state mismatch")
	}
}

package main

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"roadsim.ai/internal/graph/pack"
	"roadsim.ai/internal/persistence/indexdb"
)

const cityDoc = `{
  "coord_space": "map",
  "range_meters": 0,
  "edges": [
    {"id": "a", "vertices": [[0, 0], [1000, 0]]},
    {"id": "b", "vertices": [[1000, 0], [1000, 1000]]},
    {"id": "a-dup", "vertices": [[1000, 0], [0, 0]]}
  ],
  "buildings": [[500, 200], [900000, 900000]]
}`

func TestRun_BuildsPacksAndIndexes(t *testing.T) {
	dir := t.TempDir()
	in := filepath.Join(dir, "city.json")
	if err := os.WriteFile(in, []byte(cityDoc), 0o644); err != nil {
		t.Fatalf("write input: %v", err)
	}
	out := filepath.Join(dir, "out", "city.graph.zst")
	idxPath := filepath.Join(dir, "index.sqlite")

	var stdout bytes.Buffer
	if err := run([]string{"-in", in, "-out", out, "-index", idxPath, "-log_level", "error"}, &stdout); err != nil {
		t.Fatalf("run: %v", err)
	}

	var res result
	if err := json.Unmarshal(stdout.Bytes(), &res); err != nil {
		t.Fatalf("stdout: %v\n%s", err, stdout.String())
	}
	if res.Report.DuplicateEdges != 1 || res.Report.BuildingsAttached != 1 || res.Report.BuildingsSkipped != 1 {
		t.Fatalf("report: %+v", res.Report)
	}
	if res.Header.Vertices != 5 || res.Kinds["house"] != 1 {
		t.Fatalf("header %+v kinds %v", res.Header, res.Kinds)
	}

	g, err := pack.NewLoader(nil).Load(context.Background(), out)
	if err != nil {
		t.Fatalf("load packed: %v", err)
	}
	if len(g.Vertices) != 5 || len(g.Edges) != 4 {
		t.Fatalf("graph: %d vertices %d edges", len(g.Vertices), len(g.Edges))
	}

	idx, err := indexdb.OpenSQLite(idxPath)
	if err != nil {
		t.Fatalf("open index: %v", err)
	}
	defer idx.Close()
	n, err := idx.GraphCount(context.Background())
	if err != nil || n != 1 {
		t.Fatalf("graphs=%d err=%v", n, err)
	}
}

func TestRun_RequiresInput(t *testing.T) {
	if err := run([]string{"-out", filepath.Join(t.TempDir(), "x")}, &bytes.Buffer{}); err == nil {
		t.Fatalf("expected error without -in")
	}
}

func TestRun_PublishNeedsObjectStore(t *testing.T) {
	t.Setenv("ROADSIM_S3_ENDPOINT", "")
	t.Setenv("ROADSIM_S3_BUCKET", "")
	dir := t.TempDir()
	in := filepath.Join(dir, "city.json")
	_ = os.WriteFile(in, []byte(cityDoc), 0o644)
	err := run([]string{"-in", in, "-out", filepath.Join(dir, "g.json"), "-publish", "maps/g.json", "-log_level", "error"}, &bytes.Buffer{})
	if err == nil {
		t.Fatalf("expected publish error")
	}
}

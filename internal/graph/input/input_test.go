package input

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/klauspost/compress/zstd"

	"roadsim.ai/internal/geo"
	"roadsim.ai/internal/graph"
)

const mapDoc = `{
  "coord_space": "map",
  "center": [500, 0],
  "range_meters": 0,
  "edges": [
    {"id": 17, "class": 2, "in": [3, "x"], "vertices": [[0, 0], [1000, 0]]},
    {"vertices": [[1000, 0], [1000, 1000]]}
  ],
  "buildings": [[500, 200]]
}`

func TestParse_MapDocumentBuilds(t *testing.T) {
	d, err := Parse([]byte(mapDoc))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	edges := d.RawEdges()
	if len(edges) != 2 {
		t.Fatalf("edges: %d", len(edges))
	}
	if edges[0].ID != "17" || edges[0].Class != 2 || len(edges[0].In) != 2 || edges[0].In[0] != "3" || edges[0].In[1] != "x" {
		t.Fatalf("edge 0: %+v", edges[0])
	}
	if edges[1].ID != "1" || edges[1].In != nil {
		t.Fatalf("edge 1: %+v", edges[1])
	}
	if edges[1].Vertices[1].X != 1000 || edges[1].Vertices[1].Y != 1000 {
		t.Fatalf("map coords changed: %+v", edges[1].Vertices)
	}

	opts := graph.DefaultBuildOptions()
	d.Apply(&opts)
	if opts.Center.X != 500 || opts.RangeMeters != 0 {
		t.Fatalf("opts: center=%v range=%v", opts.Center, opts.RangeMeters)
	}
	g, rep, err := graph.BuildWithReport(edges, d.BuildingPoints(), opts)
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	if rep.BuildingsAttached != 1 || rep.Splits != 1 {
		t.Fatalf("report: %+v", rep)
	}
	if len(g.Vertices) != 5 {
		t.Fatalf("vertices: %d", len(g.Vertices))
	}
}

func TestParse_GeoCoordinatesAreProjected(t *testing.T) {
	d, err := Parse([]byte(`{"center":[37.6,55.75],"edges":[{"id":"a","vertices":[[37.6,55.75],[37.61,55.75]]}],"buildings":[[37.605,55.7501]]}`))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	want := geo.ProjectGeoToMap(37.61, 55.75)
	if got := d.RawEdges()[0].Vertices[1]; got != want {
		t.Fatalf("projected %v want %v", got, want)
	}
	if got, want := d.BuildingPoints()[0], geo.ProjectGeoToMap(37.605, 55.7501); got != want {
		t.Fatalf("building %v want %v", got, want)
	}
	opts := graph.DefaultBuildOptions()
	d.Apply(&opts)
	if opts.Center != geo.ProjectGeoToMap(37.6, 55.75) || opts.RangeMeters != graph.DefaultBuildOptions().RangeMeters {
		t.Fatalf("opts: %+v", opts)
	}
}

func TestParse_Rejections(t *testing.T) {
	cases := []struct {
		name string
		doc  string
		want error
	}{
		{"not json", `{"edges":`, ErrMalformed},
		{"missing edges", `{"buildings":[]}`, ErrSchema},
		{"bad space", `{"coord_space":"utm","edges":[]}`, ErrSchema},
		{"triple point", `{"edges":[{"vertices":[[1,2,3],[4,5]]}]}`, ErrSchema},
		{"negative range", `{"range_meters":-1,"edges":[]}`, ErrSchema},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := Parse([]byte(tc.doc)); !errors.Is(err, tc.want) {
				t.Fatalf("want %v, got %v", tc.want, err)
			}
		})
	}
}

func TestParse_ShortEdgeReachesBuilder(t *testing.T) {
	d, err := Parse([]byte(`{"coord_space":"map","edges":[{"vertices":[[1,1]]}]}`))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if _, err := graph.Build(d.RawEdges(), nil, graph.DefaultBuildOptions()); !errors.Is(err, graph.ErrMalformedEdge) {
		t.Fatalf("want ErrMalformedEdge, got %v", err)
	}
}

func TestReadFile_Zstd(t *testing.T) {
	enc, err := zstd.NewWriter(nil)
	if err != nil {
		t.Fatalf("zstd: %v", err)
	}
	b := enc.EncodeAll([]byte(mapDoc), nil)
	_ = enc.Close()

	path := filepath.Join(t.TempDir(), "city.json.zst")
	if err := os.WriteFile(path, b, 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	d, err := ReadFile(path)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if d.CoordSpace != Map || len(d.Edges) != 2 {
		t.Fatalf("doc: %+v", d)
	}
}

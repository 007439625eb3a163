// Package input reads the JSON document the build tool turns into a graph:
// raw road polylines plus building points, in geographic or map coordinates.
package input

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"sync"

	"github.com/ctessum/geom"
	"github.com/klauspost/compress/zstd"
	"github.com/santhosh-tekuri/jsonschema/v5"

	"roadsim.ai/internal/geo"
	"roadsim.ai/internal/graph"
)

type CoordSpace string

const (
	// Geo coordinates are [lon, lat] degrees and get projected to map space.
	Geo CoordSpace = "geo"
	// Map coordinates are used as is.
	Map CoordSpace = "map"
)

var (
	ErrSchema    = errors.New("input: schema validation failed")
	ErrMalformed = errors.New("input: malformed document")
)

//go:embed input.schema.json
var schemaJSON string

var (
	schemaOnce sync.Once
	schema     *jsonschema.Schema
	schemaErr  error
)

func compiledSchema() (*jsonschema.Schema, error) {
	schemaOnce.Do(func() {
		schema, schemaErr = jsonschema.CompileString("input.schema.json", schemaJSON)
	})
	return schema, schemaErr
}

// Ref is an edge identifier. Sources use both numbers and strings.
type Ref string

func (r *Ref) UnmarshalJSON(b []byte) error {
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*r = Ref(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return err
	}
	*r = Ref(n.String())
	return nil
}

type Edge struct {
	ID       Ref          `json:"id"`
	Class    int          `json:"class"`
	In       []Ref        `json:"in,omitempty"`
	Out      []Ref        `json:"out,omitempty"`
	Vertices [][2]float64 `json:"vertices"`
}

type Document struct {
	CoordSpace  CoordSpace   `json:"coord_space,omitempty"`
	Center      *[2]float64  `json:"center,omitempty"`
	RangeMeters *float64     `json:"range_meters,omitempty"`
	Edges       []Edge       `json:"edges"`
	Buildings   [][2]float64 `json:"buildings,omitempty"`
}

func (d *Document) space() CoordSpace {
	if d.CoordSpace == "" {
		return Geo
	}
	return d.CoordSpace
}

func (d *Document) point(c [2]float64) geom.Point {
	if d.space() == Geo {
		return geo.ProjectGeoToMap(c[0], c[1])
	}
	return geom.Point{X: c[0], Y: c[1]}
}

// RawEdges converts the edges to map space. Edges without an id get their
// position in the document.
func (d *Document) RawEdges() []graph.RawEdge {
	out := make([]graph.RawEdge, len(d.Edges))
	for i, e := range d.Edges {
		id := string(e.ID)
		if id == "" {
			id = strconv.Itoa(i)
		}
		pts := make([]geom.Point, len(e.Vertices))
		for j, c := range e.Vertices {
			pts[j] = d.point(c)
		}
		out[i] = graph.RawEdge{
			ID:       id,
			Class:    e.Class,
			In:       refs(e.In),
			Out:      refs(e.Out),
			Vertices: pts,
		}
	}
	return out
}

func refs(rs []Ref) []string {
	if len(rs) == 0 {
		return nil
	}
	out := make([]string, len(rs))
	for i, r := range rs {
		out[i] = string(r)
	}
	return out
}

func (d *Document) BuildingPoints() []geom.Point {
	out := make([]geom.Point, len(d.Buildings))
	for i, c := range d.Buildings {
		out[i] = d.point(c)
	}
	return out
}

// Apply copies the document's center and range into opts when present. The
// center is projected like every other coordinate.
func (d *Document) Apply(opts *graph.BuildOptions) {
	if d.Center != nil {
		opts.Center = d.point(*d.Center)
	}
	if d.RangeMeters != nil {
		opts.RangeMeters = *d.RangeMeters
	}
}

// Parse validates b (plain or zstd-compressed JSON) against the input schema
// and decodes it.
func Parse(b []byte) (*Document, error) {
	if bytes.HasPrefix(b, []byte{0x28, 0xB5, 0x2F, 0xFD}) {
		dec, err := zstd.NewReader(nil)
		if err != nil {
			return nil, err
		}
		defer dec.Close()
		if b, err = dec.DecodeAll(b, nil); err != nil {
			return nil, fmt.Errorf("zstd: %w", err)
		}
	}

	s, err := compiledSchema()
	if err != nil {
		return nil, fmt.Errorf("compile schema: %w", err)
	}
	var raw any
	if err := json.Unmarshal(b, &raw); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if err := s.Validate(raw); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSchema, err)
	}

	var d Document
	if err := json.Unmarshal(b, &d); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	return &d, nil
}

func ReadFile(path string) (*Document, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	d, err := Parse(b)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", filepath.Base(path), err)
	}
	return d, nil
}

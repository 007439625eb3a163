package pack

import (
	"bufio"
	"bytes"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/klauspost/compress/zstd"
	"github.com/santhosh-tekuri/jsonschema/v5"
)

// FormatName tags the header line of packed graph files.
const FormatName = "roadsim.graphpack"

var ErrSchema = errors.New("pack: schema validation failed")

//go:embed graphpack.schema.json
var schemaJSON string

var (
	schemaOnce sync.Once
	schema     *jsonschema.Schema
	schemaErr  error
)

func compiledSchema() (*jsonschema.Schema, error) {
	schemaOnce.Do(func() {
		schema, schemaErr = jsonschema.CompileString("graphpack.schema.json", schemaJSON)
	})
	return schema, schemaErr
}

// Header is the first line of a packed graph file. It lets tools report on a
// file without decoding the body.
type Header struct {
	Format      string `json:"format"`
	Version     int    `json:"version"`
	RoundFactor int64  `json:"round_factor"`
	Vertices    int    `json:"vertices"`
	Edges       int    `json:"edges"`
}

func HeaderOf(p *Packed) Header {
	return Header{
		Format:      FormatName,
		Version:     p.Version,
		RoundFactor: p.RoundFactor,
		Vertices:    len(p.Vertices),
		Edges:       len(p.Edges),
	}
}

// Marshal renders the header line followed by the JSON body.
func Marshal(p *Packed) ([]byte, error) {
	var buf bytes.Buffer
	if err := write(&buf, p); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func write(w io.Writer, p *Packed) error {
	hb, err := json.Marshal(HeaderOf(p))
	if err != nil {
		return err
	}
	body, err := json.Marshal(p)
	if err != nil {
		return err
	}
	if _, err := w.Write(hb); err != nil {
		return err
	}
	if _, err := w.Write([]byte{'\n'}); err != nil {
		return err
	}
	_, err = w.Write(body)
	return err
}

// Unmarshal parses a packed graph. It accepts zstd-compressed or plain
// content, with or without the header line, and validates the body against
// the embedded JSON schema before typed decoding.
func Unmarshal(b []byte) (*Packed, error) {
	raw, err := maybeDecompress(b)
	if err != nil {
		return nil, err
	}

	var hdr *Header
	if i := bytes.IndexByte(raw, '\n'); i >= 0 {
		var h Header
		if err := json.Unmarshal(raw[:i], &h); err == nil && h.Format == FormatName {
			hdr = &h
			raw = raw[i+1:]
		}
	}

	s, err := compiledSchema()
	if err != nil {
		return nil, fmt.Errorf("compile schema: %w", err)
	}
	var doc any
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if err := s.Validate(doc); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSchema, err)
	}

	var p Packed
	if err := json.Unmarshal(raw, &p); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if hdr != nil && (hdr.Version != p.Version || hdr.Vertices != len(p.Vertices) || hdr.Edges != len(p.Edges)) {
		return nil, fmt.Errorf("%w: header %+v disagrees with body", ErrMalformed, *hdr)
	}
	return &p, nil
}

var zstdMagic = []byte{0x28, 0xB5, 0x2F, 0xFD}

func maybeDecompress(b []byte) ([]byte, error) {
	if !bytes.HasPrefix(b, zstdMagic) {
		return b, nil
	}
	dec, err := zstd.NewReader(nil)
	if err != nil {
		return nil, err
	}
	defer dec.Close()
	out, err := dec.DecodeAll(b, nil)
	if err != nil {
		return nil, fmt.Errorf("zstd: %w", err)
	}
	return out, nil
}

// WriteFile stores p at path, zstd-compressed when the path ends in ".zst".
func WriteFile(path string, p *Packed) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()

	if !strings.HasSuffix(path, ".zst") {
		bw := bufio.NewWriterSize(f, 256*1024)
		if err := write(bw, p); err != nil {
			return err
		}
		if err := bw.Flush(); err != nil {
			return err
		}
		return f.Close()
	}

	enc, err := zstd.NewWriter(f, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		return err
	}
	bw := bufio.NewWriterSize(enc, 256*1024)
	if err := write(bw, p); err != nil {
		_ = enc.Close()
		return err
	}
	if err := bw.Flush(); err != nil {
		_ = enc.Close()
		return err
	}
	if err := enc.Close(); err != nil {
		return err
	}
	return f.Close()
}

func ReadFile(path string) (*Packed, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	p, err := Unmarshal(b)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", filepath.Base(path), err)
	}
	return p, nil
}

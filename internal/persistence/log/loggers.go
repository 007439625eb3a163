package log

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/klauspost/compress/zstd"
)

// JSONLZstdWriter appends JSON lines to zstd-compressed segment files named
// <prefix>-<segment>.jsonl.zst, starting a new segment whenever the wall
// clock formatted with layout changes.
type JSONLZstdWriter struct {
	baseDir string
	prefix  string
	layout  string
	now     func() time.Time

	// OnRotate, if set, receives the path of each segment after it is closed.
	OnRotate func(path string)

	mu     sync.Mutex
	curSeg string
	f      *os.File
	enc    *zstd.Encoder
	w      *bufio.Writer
}

const HourlyLayout = "2006-01-02-15"

func NewJSONLZstdWriter(baseDir, prefix, layout string) *JSONLZstdWriter {
	if layout == "" {
		layout = HourlyLayout
	}
	return &JSONLZstdWriter{
		baseDir: baseDir,
		prefix:  prefix,
		layout:  layout,
		now:     time.Now,
	}
}

func (w *JSONLZstdWriter) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.closeLocked()
}

func (w *JSONLZstdWriter) Write(v any) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	seg := w.now().UTC().Format(w.layout)
	if seg != w.curSeg || w.w == nil {
		if err := w.rotateLocked(seg); err != nil {
			return err
		}
	}

	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	if _, err := w.w.Write(b); err != nil {
		return err
	}
	if err := w.w.WriteByte('\n'); err != nil {
		return err
	}
	return w.w.Flush()
}

func (w *JSONLZstdWriter) rotateLocked(seg string) error {
	if err := w.closeLocked(); err != nil {
		return err
	}
	path := w.pathFor(seg)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return err
	}
	enc, err := zstd.NewWriter(f, zstd.WithEncoderLevel(zstd.SpeedFastest))
	if err != nil {
		_ = f.Close()
		return err
	}
	w.f = f
	w.enc = enc
	w.w = bufio.NewWriterSize(enc, 128*1024)
	w.curSeg = seg
	return nil
}

func (w *JSONLZstdWriter) closeLocked() error {
	if w.f == nil {
		return nil
	}
	var err1 error
	if w.w != nil {
		_ = w.w.Flush()
	}
	if w.enc != nil {
		err1 = w.enc.Close()
		w.enc = nil
	}
	path := w.f.Name()
	_ = w.f.Close()
	w.f = nil
	w.w = nil
	if w.OnRotate != nil {
		w.OnRotate(path)
	}
	return err1
}

func (w *JSONLZstdWriter) pathFor(seg string) string {
	return filepath.Join(w.baseDir, fmt.Sprintf("%s-%s.jsonl.zst", w.prefix, seg))
}

// TickEntry is one line of the tick log: the census and state digest after a tick.
type TickEntry struct {
	RunID      string  `json:"run_id,omitempty"`
	Generation uint64  `json:"generation"`
	Tick       uint64  `json:"tick"`
	Time       float64 `json:"time"`
	Virgin     int     `json:"virgin"`
	Disease    int     `json:"disease"`
	Immune     int     `json:"immune"`
	Digest     string  `json:"digest,omitempty"`
}

// TickLogger writes one JSONL entry per tick (compressed) under runDir/ticks.
type TickLogger struct{ w *JSONLZstdWriter }

func NewTickLogger(runDir, layout string) *TickLogger {
	return &TickLogger{w: NewJSONLZstdWriter(filepath.Join(runDir, "ticks"), "ticks", layout)}
}

// OnRotate registers fn to receive closed segment paths.
func (l *TickLogger) OnRotate(fn func(path string)) { l.w.OnRotate = fn }

func (l *TickLogger) WriteTick(v TickEntry) error { return l.w.Write(v) }
func (l *TickLogger) Close() error                { return l.w.Close() }

// ReadTicks decodes every entry of one segment file (plain or .zst).
func ReadTicks(path string) ([]TickEntry, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var r io.Reader = f
	if strings.HasSuffix(path, ".zst") {
		dec, err := zstd.NewReader(f)
		if err != nil {
			return nil, err
		}
		defer dec.Close()
		r = dec
	}

	var out []TickEntry
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	for sc.Scan() {
		line := sc.Bytes()
		if len(line) == 0 {
			continue
		}
		var e TickEntry
		if err := json.Unmarshal(line, &e); err != nil {
			return nil, fmt.Errorf("%s: %w", filepath.Base(path), err)
		}
		out = append(out, e)
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

// ReadTickDir reads every ticks-*.jsonl[.zst] segment under dir in name order.
func ReadTickDir(dir string) ([]TickEntry, error) {
	var paths []string
	for _, pat := range []string{"ticks-*.jsonl.zst", "ticks-*.jsonl"} {
		m, err := filepath.Glob(filepath.Join(dir, pat))
		if err != nil {
			return nil, err
		}
		paths = append(paths, m...)
	}
	sort.Strings(paths)
	var out []TickEntry
	for _, p := range paths {
		es, err := ReadTicks(p)
		if err != nil {
			return nil, err
		}
		out = append(out, es...)
	}
	return out, nil
}

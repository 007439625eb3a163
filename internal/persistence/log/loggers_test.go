package log

import (
	"path/filepath"
	"testing"
	"time"
)

func TestTickLogger_RotatesAndReadsBack(t *testing.T) {
	dir := t.TempDir()
	l := NewTickLogger(dir, "2006-01-02-15-04")

	clock := time.Date(2026, 3, 1, 10, 0, 30, 0, time.UTC)
	l.w.now = func() time.Time { return clock }

	var rotated []string
	l.OnRotate(func(p string) { rotated = append(rotated, p) })

	for i := uint64(1); i <= 3; i++ {
		if err := l.WriteTick(TickEntry{Generation: 1, Tick: i, Time: float64(i * 16), Virgin: 10 - int(i), Disease: int(i), Digest: "d"}); err != nil {
			t.Fatalf("write: %v", err)
		}
	}
	clock = clock.Add(time.Minute)
	if err := l.WriteTick(TickEntry{Generation: 1, Tick: 4, Time: 64}); err != nil {
		t.Fatalf("write: %v", err)
	}
	if len(rotated) != 1 || filepath.Base(rotated[0]) != "ticks-2026-03-01-10-00.jsonl.zst" {
		t.Fatalf("rotated: %v", rotated)
	}
	if err := l.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if len(rotated) != 2 {
		t.Fatalf("close should hand off the open segment: %v", rotated)
	}

	first, err := ReadTicks(rotated[0])
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if len(first) != 3 || first[2].Tick != 3 || first[2].Disease != 3 || first[2].Digest != "d" {
		t.Fatalf("segment 1: %+v", first)
	}

	all, err := ReadTickDir(filepath.Join(dir, "ticks"))
	if err != nil {
		t.Fatalf("read dir: %v", err)
	}
	if len(all) != 4 || all[3].Tick != 4 {
		t.Fatalf("all: %+v", all)
	}
}

func TestJSONLZstdWriter_CloseWithoutWrites(t *testing.T) {
	w := NewJSONLZstdWriter(t.TempDir(), "x", "")
	called := false
	w.OnRotate = func(string) { called = true }
	if err := w.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if called {
		t.Fatalf("no segment was open")
	}
}

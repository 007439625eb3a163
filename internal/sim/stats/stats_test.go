package stats

import "testing"

func TestCollector_SeriesIsAppendOnly(t *testing.T) {
	c := NewCollector(1000, 4)
	if _, ok := c.Last(); ok {
		t.Fatalf("empty collector reported a last sample")
	}
	c.Observe(16, Counts{Virgin: 9, Disease: 1})
	c.Observe(32, Counts{Virgin: 8, Disease: 2})

	if c.Len() != 2 {
		t.Fatalf("len: %d", c.Len())
	}
	last, ok := c.Last()
	if !ok || last.Time != 32 || last.Disease != 2 || last.Total() != 10 {
		t.Fatalf("last: %+v", last)
	}
	if got := c.Samples()[0]; got.Time != 16 || got.Virgin != 9 {
		t.Fatalf("first: %+v", got)
	}

	c.Reset()
	if c.Len() != 0 || c.Window() != nil {
		t.Fatalf("reset left state: len=%d window=%v", c.Len(), c.Window())
	}
}

func TestCollector_WindowTracksPeaks(t *testing.T) {
	c := NewCollector(1000, 3)
	c.Observe(100, Counts{Disease: 3})
	c.Observe(900, Counts{Disease: 7})
	c.Observe(1500, Counts{Disease: 4, Immune: 1})

	w := c.Window()
	if len(w) != 2 {
		t.Fatalf("window: %+v", w)
	}
	if w[0].Start != 0 || w[0].PeakDisease != 7 || w[0].Samples != 2 {
		t.Fatalf("bucket 0: %+v", w[0])
	}
	if w[1].Start != 1000 || w[1].PeakDisease != 4 || w[1].LastImmune != 1 {
		t.Fatalf("bucket 1: %+v", w[1])
	}

	// Jump past the whole window; only the newest buckets survive.
	c.Observe(5200, Counts{Disease: 1})
	w = c.Window()
	if len(w) != 3 {
		t.Fatalf("window after wrap: %+v", w)
	}
	if w[2].Start != 5000 || w[2].PeakDisease != 1 {
		t.Fatalf("newest bucket: %+v", w[2])
	}
	if w[0].Start != 3000 || w[0].Samples != 0 {
		t.Fatalf("oldest bucket: %+v", w[0])
	}
}

func TestCollector_NilSafe(t *testing.T) {
	var c *Collector
	c.Observe(1, Counts{})
	if c.Len() != 0 || c.Samples() != nil {
		t.Fatalf("nil collector should be empty")
	}
}

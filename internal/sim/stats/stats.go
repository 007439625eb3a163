// Package stats records per-tick population counts of a simulation run.
package stats

type Counts struct {
	Virgin  int `json:"virgin"`
	Disease int `json:"disease"`
	Immune  int `json:"immune"`
}

func (c Counts) Total() int { return c.Virgin + c.Disease + c.Immune }

// Sample is the population census at one tick. Time is simulated milliseconds.
type Sample struct {
	Time float64 `json:"time"`
	Counts
}

// Bucket aggregates samples whose time falls in [Start, Start+bucket width).
type Bucket struct {
	Start       float64 `json:"start"`
	Samples     int     `json:"samples"`
	PeakDisease int     `json:"peak_disease"`
	LastImmune  int     `json:"last_immune"`
}

const (
	DefaultBucketMS      = 1000
	DefaultWindowBuckets = 60
)

// Collector is the append-only sample series plus a rolling window of
// fixed-width buckets over simulated time.
type Collector struct {
	samples []Sample

	bucketMS float64
	buckets  []Bucket
	curIdx   int
	curBase  float64
	started  bool
}

func NewCollector(bucketMS float64, windowBuckets int) *Collector {
	if bucketMS <= 0 {
		bucketMS = DefaultBucketMS
	}
	if windowBuckets <= 0 {
		windowBuckets = DefaultWindowBuckets
	}
	return &Collector{
		bucketMS: bucketMS,
		buckets:  make([]Bucket, windowBuckets),
	}
}

func (c *Collector) Observe(time float64, counts Counts) {
	if c == nil {
		return
	}
	c.samples = append(c.samples, Sample{Time: time, Counts: counts})

	c.rotate(time)
	b := &c.buckets[c.curIdx]
	b.Samples++
	if counts.Disease > b.PeakDisease {
		b.PeakDisease = counts.Disease
	}
	b.LastImmune = counts.Immune
}

func (c *Collector) rotate(time float64) {
	if !c.started {
		c.started = true
		c.curBase = float64(int64(time/c.bucketMS)) * c.bucketMS
		c.buckets[c.curIdx] = Bucket{Start: c.curBase}
		return
	}
	// Move forward until time is in [curBase, curBase+bucketMS).
	for time >= c.curBase+c.bucketMS {
		c.curIdx = (c.curIdx + 1) % len(c.buckets)
		c.curBase += c.bucketMS
		c.buckets[c.curIdx] = Bucket{Start: c.curBase}
	}
}

// Samples returns the series. The slice is shared; callers must not modify it.
func (c *Collector) Samples() []Sample {
	if c == nil {
		return nil
	}
	return c.samples
}

func (c *Collector) Last() (Sample, bool) {
	if c == nil || len(c.samples) == 0 {
		return Sample{}, false
	}
	return c.samples[len(c.samples)-1], true
}

func (c *Collector) Len() int {
	if c == nil {
		return 0
	}
	return len(c.samples)
}

func (c *Collector) Reset() {
	if c == nil {
		return
	}
	c.samples = nil
	for i := range c.buckets {
		c.buckets[i] = Bucket{}
	}
	c.curIdx = 0
	c.curBase = 0
	c.started = false
}

// Window returns the buckets touched so far, oldest first.
func (c *Collector) Window() []Bucket {
	if c == nil || !c.started {
		return nil
	}
	n := len(c.buckets)
	out := make([]Bucket, 0, n)
	for i := 1; i <= n; i++ {
		b := c.buckets[(c.curIdx+i)%n]
		if b.Samples == 0 && b.Start == 0 && (c.curIdx+i)%n != c.curIdx {
			continue
		}
		out = append(out, b)
	}
	return out
}

func (c *Collector) BucketMS() float64 {
	if c == nil {
		return 0
	}
	return c.bucketMS
}

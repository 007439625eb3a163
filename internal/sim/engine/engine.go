// Package engine runs the agent simulation over a loaded road graph.
//
// All mutation happens on the goroutine that calls Tick (or Run). Graph
// loads started by Start run on their own goroutine and hand the result back
// through a channel; a result is applied only if no later Start or Stop has
// happened since.
package engine

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"log/slog"
	"math"
	"time"

	"roadsim.ai/internal/graph"
	"roadsim.ai/internal/sim/rng"
	"roadsim.ai/internal/sim/stats"
)

// Loader resolves a data locator to a graph.
type Loader interface {
	Load(ctx context.Context, locator string) (*graph.Graph, error)
}

type loadResult struct {
	gen   uint64
	graph *graph.Graph
	err   error
}

type Engine struct {
	opts   Options
	filter *Filter
	loader Loader
	logger *slog.Logger

	graph      *graph.Graph
	agents     []Agent
	stats      *stats.Collector
	rng        *rng.Rand
	now        float64 // simulated ms
	lastSpread float64
	generation uint64
	paused     bool
	lastStep   time.Duration

	loads      chan loadResult
	cancelLoad context.CancelFunc
	control    chan Request
	onLoad     func(generation uint64, err error)
}

func New(opts Options, loader Loader, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	opts.normalize()
	return &Engine{
		opts:    opts,
		loader:  loader,
		logger:  logger,
		stats:   stats.NewCollector(stats.DefaultBucketMS, stats.DefaultWindowBuckets),
		rng:     rng.New(opts.RandomSeed),
		loads:   make(chan loadResult, 4),
		control: make(chan Request, 16),
	}
}

// OnLoad registers fn to be called on the tick goroutine with the outcome of
// every load that belongs to the current generation.
func (e *Engine) OnLoad(fn func(generation uint64, err error)) { e.onLoad = fn }

// SetStatsWindow replaces the stats collector with one using the given window.
func (e *Engine) SetStatsWindow(bucketMS float64, buckets int) {
	e.stats = stats.NewCollector(bucketMS, buckets)
}

// Start supersedes any current run and loads opts.DataURL in the background.
// The returned generation identifies this run.
func (e *Engine) Start(opts Options, filter *Filter) uint64 {
	gen := e.reset(opts, filter)
	if e.loader == nil {
		e.logger.Error("graph load failed", "generation", gen, "err", "no loader configured")
		return gen
	}

	ctx, cancel := context.WithCancel(context.Background())
	e.cancelLoad = cancel
	locator := e.opts.DataURL
	go func() {
		g, err := e.loader.Load(ctx, locator)
		res := loadResult{gen: gen, graph: g, err: err}
		select {
		case e.loads <- res:
		case <-ctx.Done():
			e.logger.Info("graph load superseded", "generation", gen, "data_url", locator)
		}
	}()
	e.logger.Info("run started", "generation", gen, "data_url", locator, "seed", e.opts.RandomSeed)
	return gen
}

// StartWithGraph is Start with an already loaded graph.
func (e *Engine) StartWithGraph(opts Options, filter *Filter, g *graph.Graph) uint64 {
	gen := e.reset(opts, filter)
	e.install(g)
	return gen
}

// Stop drops the graph, agents and stats and invalidates in-flight loads.
// It also clears a pause.
func (e *Engine) Stop() {
	e.cancel()
	e.generation++
	e.paused = false
	e.graph = nil
	e.agents = nil
	e.stats.Reset()
	e.rng.Reset(e.opts.RandomSeed)
	e.now = 0
	e.lastSpread = 0
	e.logger.Info("run stopped", "generation", e.generation)
}

func (e *Engine) Pause(paused bool) { e.paused = paused }

func (e *Engine) Paused() bool { return e.paused }

func (e *Engine) reset(opts Options, filter *Filter) uint64 {
	e.cancel()
	opts.normalize()
	e.opts = opts
	if filter != nil {
		f := *filter
		e.filter = &f
	} else {
		e.filter = nil
	}
	e.generation++
	e.paused = false
	e.graph = nil
	e.agents = nil
	e.stats.Reset()
	e.rng.Reset(opts.RandomSeed)
	e.now = 0
	e.lastSpread = 0
	return e.generation
}

func (e *Engine) cancel() {
	if e.cancelLoad != nil {
		e.cancelLoad()
		e.cancelLoad = nil
	}
}

func (e *Engine) install(g *graph.Graph) {
	e.graph = g
	spawn := spawnSet(g, e.filter)
	if len(spawn) == 0 {
		e.logger.Warn("empty spawn set", "generation", e.generation, "vertices", len(g.Vertices))
		return
	}
	stationary := spawn
	if hv := houseVertices(g, spawn); len(hv) > 0 {
		stationary = hv
	}
	stopCount := int(math.Floor(float64(e.opts.HumansCount) * e.opts.HumansStop))

	e.agents = make([]Agent, 0, e.opts.HumansCount)
	for i := 0; i < e.opts.HumansCount; i++ {
		stopped := i < stopCount
		set := spawn
		if stopped {
			set = stationary
		}
		e.agents = append(e.agents, newAgent(g, e.rng, set, e.opts, i < e.opts.DiseaseStartCount, stopped))
	}
	e.logger.Info("agents spawned",
		"generation", e.generation,
		"agents", len(e.agents),
		"spawn_vertices", len(spawn),
		"stopped", min(stopCount, len(e.agents)),
	)
}

func (e *Engine) applyLoads() {
	for {
		select {
		case res := <-e.loads:
			if res.gen != e.generation {
				e.logger.Info("graph load superseded", "generation", res.gen, "current", e.generation)
				continue
			}
			e.cancelLoad = nil
			if e.onLoad != nil {
				e.onLoad(res.gen, res.err)
			}
			if res.err != nil {
				e.logger.Error("graph load failed", "generation", res.gen, "err", res.err)
				continue
			}
			e.install(res.graph)
		default:
			return
		}
	}
}

// Tick advances the simulation by dt. It reports whether simulated time moved.
func (e *Engine) Tick(dt time.Duration) bool {
	e.applyLoads()
	if e.graph == nil || e.paused {
		return false
	}
	if dt > e.opts.MaxStep {
		dt = e.opts.NominalStep
	}
	if dt < 0 {
		dt = 0
	}
	began := time.Now()
	e.now += float64(dt) / float64(time.Millisecond)
	now := e.now

	for i := range e.agents {
		update(e.graph, e.rng, &e.opts, &e.agents[i], now)
	}
	if now-e.lastSpread >= float64(e.opts.SpreadInterval)/float64(time.Millisecond) {
		e.spread(now)
		e.lastSpread = now
	}
	e.stats.Observe(now, e.Counts())
	e.lastStep = time.Since(began)
	return true
}

// StepDuration is the wall-clock time the last advancing Tick took.
func (e *Engine) StepDuration() time.Duration { return e.lastStep }

func (e *Engine) Counts() stats.Counts {
	var c stats.Counts
	for i := range e.agents {
		switch e.agents[i].State {
		case Virgin:
			c.Virgin++
		case Disease:
			c.Disease++
		case Immune:
			c.Immune++
		}
	}
	return c
}

func (e *Engine) Agents() []AgentView {
	out := make([]AgentView, len(e.agents))
	for i, a := range e.agents {
		out[i] = AgentView{X: a.Coords.X, Y: a.Coords.Y, State: a.State}
	}
	return out
}

// Agent returns a copy of agent i.
func (e *Engine) Agent(i int) (Agent, bool) {
	if i < 0 || i >= len(e.agents) {
		return Agent{}, false
	}
	return e.agents[i], true
}

func (e *Engine) Stats() []stats.Sample { return e.stats.Samples() }

func (e *Engine) StatsWindow() []stats.Bucket { return e.stats.Window() }

// Time is the simulated time in milliseconds.
func (e *Engine) Time() float64 { return e.now }

func (e *Engine) Generation() uint64 { return e.generation }

func (e *Engine) Graph() *graph.Graph { return e.graph }

func (e *Engine) Options() Options { return e.opts }

// StateDigest hashes simulated time, the generator state and every agent.
func (e *Engine) StateDigest() string {
	h := sha256.New()
	var tmp [8]byte
	writeF := func(f float64) {
		binary.LittleEndian.PutUint64(tmp[:], math.Float64bits(f))
		h.Write(tmp[:])
	}
	writeI := func(v int64) {
		binary.LittleEndian.PutUint64(tmp[:], uint64(v))
		h.Write(tmp[:])
	}
	writeF(e.now)
	writeI(e.rng.State())
	writeI(int64(len(e.agents)))
	for i := range e.agents {
		a := &e.agents[i]
		writeF(a.Coords.X)
		writeF(a.Coords.Y)
		writeI(int64(a.Edge))
		writeF(a.StartTime)
		writeF(a.DiseaseStart)
		writeF(a.HomeTimeStart)
		flags := int64(a.State)
		if a.Forward {
			flags |= 1 << 8
		}
		if a.Stopped {
			flags |= 1 << 9
		}
		writeI(flags)
	}
	return hex.EncodeToString(h.Sum(nil))
}

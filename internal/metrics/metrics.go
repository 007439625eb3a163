package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"roadsim.ai/internal/sim/stats"
)

var (
	TicksTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "roadsim_ticks_total",
		Help: "Total number of engine ticks that advanced simulation time",
	})
	TickDurationMs = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "roadsim_tick_duration_ms",
		Help:    "Wall-clock time spent in one engine tick in milliseconds",
		Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 20, 50, 100},
	})
	Agents = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "roadsim_agents",
		Help: "Agents by infection state after the last tick",
	}, []string{"state"})
	SimTimeMs = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "roadsim_sim_time_ms",
		Help: "Simulation clock of the current run in milliseconds",
	})
	Generation = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "roadsim_generation",
		Help: "Start generation of the current run",
	})
	GraphLoadsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "roadsim_graph_loads_total",
		Help: "Graph loads by result (ok, error)",
	}, []string{"result"})
	Observers = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "roadsim_observers",
		Help: "Connected observer websockets",
	})
	SinkDropped = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "roadsim_sink_dropped_records",
		Help: "Records dropped by an output sink because its queue was full",
	}, []string{"sink"})
)

func init() {
	prometheus.MustRegister(TicksTotal)
	prometheus.MustRegister(TickDurationMs)
	prometheus.MustRegister(Agents)
	prometheus.MustRegister(SimTimeMs)
	prometheus.MustRegister(Generation)
	prometheus.MustRegister(GraphLoadsTotal)
	prometheus.MustRegister(Observers)
	prometheus.MustRegister(SinkDropped)
}

// ObserveTick records one advancing tick.
func ObserveTick(d time.Duration, c stats.Counts, simTime float64, generation uint64) {
	TicksTotal.Inc()
	TickDurationMs.Observe(float64(d) / float64(time.Millisecond))
	Agents.WithLabelValues("virgin").Set(float64(c.Virgin))
	Agents.WithLabelValues("disease").Set(float64(c.Disease))
	Agents.WithLabelValues("immune").Set(float64(c.Immune))
	SimTimeMs.Set(simTime)
	Generation.Set(float64(generation))
}

func SetSinkDropped(sink string, total uint64) {
	SinkDropped.WithLabelValues(sink).Set(float64(total))
}

// Handler serves the default registry for /metrics.
func Handler() http.Handler { return promhttp.Handler() }

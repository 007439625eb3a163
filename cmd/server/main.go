package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"net/http"
	"net/http/pprof"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/joho/godotenv"

	"roadsim.ai/internal/graph/pack"
	"roadsim.ai/internal/logging"
	"roadsim.ai/internal/metrics"
	persistlog "roadsim.ai/internal/persistence/log"
	"roadsim.ai/internal/sim/engine"
	"roadsim.ai/internal/sim/tuning"
	"roadsim.ai/internal/transport/observer"
)

func main() {
	_ = godotenv.Load(".env")

	var (
		addr        = flag.String("addr", ":8080", "http listen address")
		dataDir     = flag.String("data", "./data", "runtime data directory")
		tuningPath  = flag.String("tuning", "./configs/tuning.yaml", "path to tuning.yaml (defaults are used when missing)")
		dataURL     = flag.String("data_url", "", "packed graph to start with (path, file://, http(s)://, s3://); overrides simulation.data_url")
		seed        = flag.Int64("seed", 0, "override simulation.random_seed (0 keeps the tuning value)")
		runID       = flag.String("run_id", "", "run id (default: random uuid)")
		disableDB   = flag.Bool("disable_db", false, "disable the sqlite run index")
		noTickLog   = flag.Bool("disable_tick_log", false, "disable the JSONL tick log")
		digestEvery = flag.Uint64("digest_every", 60, "write a state digest every N ticks (0 disables)")
		logLevel    = flag.String("log_level", "", "debug|info|warn|error (or LOG_LEVEL)")
		logFormat   = flag.String("log_format", "", "text|json (or LOG_FORMAT)")
	)
	flag.Parse()

	logger := logging.FromEnv(*logLevel, *logFormat, "server")
	fatal := func(msg string, args ...any) {
		logger.Error(msg, args...)
		os.Exit(1)
	}

	tune, err := tuning.Load(*tuningPath)
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			fatal("load tuning", "path", *tuningPath, "err", err)
		}
		logger.Info("tuning not found; using defaults", "path", *tuningPath)
		tune = tuning.Defaults()
	}
	opts := tune.EngineOptions()
	if *dataURL != "" {
		opts.DataURL = *dataURL
	}
	if *seed != 0 {
		opts.RandomSeed = *seed
	}

	id := strings.TrimSpace(*runID)
	if id == "" {
		id = uuid.NewString()
	}
	runDir := filepath.Join(*dataDir, "runs", id)
	if err := os.MkdirAll(runDir, 0o755); err != nil {
		fatal("create run dir", "dir", runDir, "err", err)
	}
	logger = logger.With("run_id", id)

	objects, err := openObjectClient()
	if err != nil {
		fatal("object client", "err", err)
	}
	mirror, err := buildMirror(*dataDir, objects, logger)
	if err != nil {
		fatal("init mirror", "err", err)
	}
	defer mirror.Close()

	// Optional: read-model index backend (does not affect sim determinism).
	idx, err := openRuntimeIndex(*dataDir, *disableDB)
	if err != nil {
		fatal("open index backend", "err", err)
	}
	if idx != nil {
		defer idx.Close()
	}

	pub := openStream(logger)
	if pub != nil {
		defer pub.Close()
	}

	sinks := multiTickSink{}
	if !*noTickLog {
		layout := persistlog.HourlyLayout
		if mirror != nil {
			// Minute segments keep the mirrored copy close behind.
			layout = "2006-01-02-15-04"
		}
		tickLog := persistlog.NewTickLogger(runDir, layout)
		if mirror != nil {
			tickLog.OnRotate(mirror.Enqueue)
		}
		defer tickLog.Close()
		sinks = append(sinks, tickLog)
	}
	if idx != nil {
		sinks = append(sinks, idx)
	}
	if pub != nil {
		sinks = append(sinks, pub)
	}

	eng := engine.New(opts, pack.NewLoader(objects), logger.With("component", "engine"))
	eng.SetStatsWindow(float64(tune.Stats.WindowBucketMs), tune.Stats.WindowBuckets)
	eng.OnLoad(func(gen uint64, err error) {
		metrics.GraphLoadsTotal.WithLabelValues(loadResultLabel(err)).Inc()
	})

	obsSrv := observer.NewServer(id, tune.Simulation.TickRateHz, eng.Control(), logger.With("component", "observer"))
	obsSrv.AllowRemote = envBool("ROADSIM_OBSERVER_ALLOW_REMOTE", false)
	obsSrv.OnCount = func(n int) { metrics.Observers.Set(float64(n)) }
	obsSrv.StartOptions = opts
	obsSrv.StartFilter = tune.Filter

	rec := &tickRecorder{
		runID:       id,
		digestEvery: *digestEvery,
		sink:        sinks,
		publish:     obsSrv.Publish,
		now:         time.Now,
	}
	if idx != nil {
		rec.runs = idx
	}

	ctx, cancel := signalContext()
	defer cancel()

	set := sinkSet{index: idx, stream: pub, mirror: mirror, observer: obsSrv}
	go set.reportDrops(ctx, 5*time.Second)

	if opts.DataURL != "" {
		eng.Control() <- startRequest(opts, tune.Filter)
	} else {
		logger.Info("no data_url configured; waiting for a start request on /observer/control")
	}

	engineDone := make(chan struct{})
	go func() {
		defer close(engineDone)
		if err := eng.Run(ctx, tune.TickInterval(), rec.onTick); err != nil && !errors.Is(err, context.Canceled) {
			logger.Error("engine stopped", "err", err)
		}
	}()

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(rw http.ResponseWriter, r *http.Request) {
		rw.WriteHeader(200)
		_, _ = rw.Write([]byte("ok"))
	})
	mux.Handle("/metrics", metrics.Handler())
	mux.HandleFunc("/observer/bootstrap", obsSrv.BootstrapHandler())
	mux.HandleFunc("/observer/control", obsSrv.ControlHandler())
	mux.HandleFunc("/observer/ws", obsSrv.WSHandler())
	mux.HandleFunc("/runs/current", func(rw http.ResponseWriter, r *http.Request) {
		if idx == nil {
			http.Error(rw, "index disabled", http.StatusNotFound)
			return
		}
		ticks, err := idx.Ticks(r.Context(), id)
		if err != nil {
			http.Error(rw, err.Error(), http.StatusInternalServerError)
			return
		}
		peak, peakTick, _ := idx.PeakDisease(r.Context(), id)
		rw.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(rw).Encode(map[string]any{
			"run_id":        id,
			"indexed_ticks": len(ticks),
			"peak_disease":  peak,
			"peak_tick":     peakTick,
			"index_queue":   idx.Stats(),
		})
	})
	if envBool("ROADSIM_ENABLE_PPROF_HTTP", false) {
		mux.HandleFunc("/debug/pprof/", pprof.Index)
		mux.HandleFunc("/debug/pprof/cmdline", pprof.Cmdline)
		mux.HandleFunc("/debug/pprof/profile", pprof.Profile)
		mux.HandleFunc("/debug/pprof/symbol", pprof.Symbol)
		mux.HandleFunc("/debug/pprof/trace", pprof.Trace)
	}

	srv := &http.Server{
		Addr:              *addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		<-ctx.Done()
		ctx2, cancel2 := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel2()
		_ = srv.Shutdown(ctx2)
	}()

	logger.Info("listening", "addr", *addr, "tick_rate_hz", tune.Simulation.TickRateHz, "data_url", opts.DataURL)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		fatal("ListenAndServe", "err", err)
	}
	<-engineDone
	set.publishDrops()
}

func signalContext() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())
	ch := make(chan os.Signal, 2)
	signal.Notify(ch, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-ch
		cancel()
	}()
	return ctx, cancel
}

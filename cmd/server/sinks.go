package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"roadsim.ai/internal/metrics"
	"roadsim.ai/internal/persistence/indexdb"
	persistlog "roadsim.ai/internal/persistence/log"
	"roadsim.ai/internal/persistence/object"
	"roadsim.ai/internal/persistence/stream"
	"roadsim.ai/internal/sim/engine"
	"roadsim.ai/internal/transport/observer"
)

type tickSink interface {
	WriteTick(entry persistlog.TickEntry) error
}

type multiTickSink []tickSink

func (m multiTickSink) WriteTick(entry persistlog.TickEntry) error {
	for _, s := range m {
		if s != nil {
			_ = s.WriteTick(entry)
		}
	}
	return nil
}

// openRuntimeIndex opens the optional read model. It never affects the run.
func openRuntimeIndex(dataDir string, disableDB bool) (*indexdb.SQLiteIndex, error) {
	if disableDB {
		return nil, nil
	}
	backend := strings.ToLower(strings.TrimSpace(os.Getenv("ROADSIM_INDEX_BACKEND")))
	if backend == "" {
		backend = "sqlite"
	}
	switch backend {
	case "none", "off", "disabled":
		return nil, nil
	case "sqlite":
		return indexdb.OpenSQLite(filepath.Join(dataDir, "index", "roadsim.sqlite"))
	default:
		return nil, fmt.Errorf("unsupported ROADSIM_INDEX_BACKEND: %s", backend)
	}
}

func openStream(logger *slog.Logger) *stream.Publisher {
	rdb := stream.OpenFromEnv()
	if rdb == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		logger.Warn("redis unavailable; stream publishing disabled", "addr", rdb.Options().Addr, "err", err)
		_ = rdb.Close()
		return nil
	}
	name := strings.TrimSpace(os.Getenv("ROADSIM_REDIS_STREAM"))
	maxLen := int64(envInt("ROADSIM_REDIS_STREAM_MAXLEN", 100000))
	logger.Info("redis stream enabled", "addr", rdb.Options().Addr, "stream", name)
	return stream.NewPublisher(rdb, name, maxLen, 4096, logger)
}

// buildMirror uploads closed tick log segments when ROADSIM_MIRROR is set.
func buildMirror(dataDir string, client *object.Client, logger *slog.Logger) (*object.Mirror, error) {
	if !envBool("ROADSIM_MIRROR", false) {
		return nil, nil
	}
	if client == nil {
		return nil, fmt.Errorf("ROADSIM_MIRROR=true but ROADSIM_S3_ENDPOINT/ROADSIM_S3_BUCKET/credentials are not fully set")
	}
	workers := envInt("ROADSIM_MIRROR_WORKERS", 2)
	prefix := strings.TrimSpace(os.Getenv("ROADSIM_MIRROR_PREFIX"))
	return object.NewMirror(client, dataDir, prefix, workers, 256, logger), nil
}

func openObjectClient() (*object.Client, error) {
	cfg := object.ConfigFromEnv()
	if !cfg.Enabled() {
		return nil, nil
	}
	return object.New(cfg)
}

type sinkSet struct {
	index    *indexdb.SQLiteIndex
	stream   *stream.Publisher
	mirror   *object.Mirror
	observer *observer.Server
}

// reportDrops copies sink drop counters into the metrics registry until ctx ends.
func (s sinkSet) reportDrops(ctx context.Context, every time.Duration) {
	t := time.NewTicker(every)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			s.publishDrops()
		}
	}
}

func (s sinkSet) publishDrops() {
	if s.index != nil {
		st := s.index.Stats()
		metrics.SetSinkDropped("sqlite", st.DropTickTotal+st.DropRunTotal+st.DropGraphTotal)
	}
	if s.stream != nil {
		metrics.SetSinkDropped("redis", s.stream.Stats().Dropped)
	}
	if s.mirror != nil {
		metrics.SetSinkDropped("mirror", s.mirror.Stats().DroppedTotal)
	}
	if s.observer != nil {
		metrics.SetSinkDropped("observer", s.observer.Dropped())
	}
}

func loadResultLabel(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}

func startRequest(opts engine.Options, filter *engine.Filter) engine.Request {
	return engine.Request{Kind: engine.ReqStart, Options: opts, Filter: filter, Reply: make(chan uint64, 1)}
}

func envBool(key string, def bool) bool {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return def
	}
	return b
}

func envInt(key string, def int) int {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		return def
	}
	return n
}

// Package stream publishes the per-tick census to a Redis stream so that
// dashboards outside the process can follow a run.
package stream

import (
	"context"
	"log/slog"
	"os"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"

	simlog "roadsim.ai/internal/persistence/log"
)

const DefaultStream = "roadsim:ticks"

// OpenFromEnv returns a client for REDIS_ADDR (or REDIS_HOST:REDIS_PORT),
// REDIS_PASS and REDIS_DB. It returns nil when no address is configured.
func OpenFromEnv() *redis.Client {
	addr := os.Getenv("REDIS_ADDR")
	if addr == "" {
		host := os.Getenv("REDIS_HOST")
		if host == "" {
			return nil
		}
		port := os.Getenv("REDIS_PORT")
		if port == "" {
			port = "6379"
		}
		addr = host + ":" + port
	}
	db := 0
	if v := os.Getenv("REDIS_DB"); v != "" {
		if n, _ := strconv.Atoi(v); n >= 0 {
			db = n
		}
	}
	return redis.NewClient(&redis.Options{Addr: addr, Password: os.Getenv("REDIS_PASS"), DB: db})
}

// Adder is the part of *redis.Client the publisher needs.
type Adder interface {
	XAdd(ctx context.Context, a *redis.XAddArgs) *redis.StringCmd
}

type Stats struct {
	QueueDepth    int
	QueueCapacity int
	Published     uint64
	Dropped       uint64
	Failed        uint64
}

// Publisher appends TickEntry records to a capped stream from a background
// goroutine. WriteTick never blocks; a full queue drops the entry.
type Publisher struct {
	rdb    Adder
	stream string
	maxLen int64
	logger *slog.Logger

	ch   chan simlog.TickEntry
	wg   sync.WaitGroup
	once sync.Once

	closed    atomic.Bool
	published atomic.Uint64
	dropped   atomic.Uint64
	failed    atomic.Uint64
}

func NewPublisher(rdb Adder, stream string, maxLen int64, queueCapacity int, logger *slog.Logger) *Publisher {
	if stream == "" {
		stream = DefaultStream
	}
	if maxLen <= 0 {
		maxLen = 100000
	}
	if queueCapacity <= 0 {
		queueCapacity = 4096
	}
	if logger == nil {
		logger = slog.Default()
	}
	p := &Publisher{
		rdb:    rdb,
		stream: stream,
		maxLen: maxLen,
		logger: logger,
		ch:     make(chan simlog.TickEntry, queueCapacity),
	}
	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		p.loop()
	}()
	return p
}

func (p *Publisher) WriteTick(e simlog.TickEntry) error {
	if p == nil || p.closed.Load() {
		return nil
	}
	select {
	case p.ch <- e:
	default:
		p.dropped.Add(1)
	}
	return nil
}

func (p *Publisher) Close() error {
	if p == nil {
		return nil
	}
	p.once.Do(func() {
		p.closed.Store(true)
		close(p.ch)
		p.wg.Wait()
	})
	return nil
}

func (p *Publisher) Stats() Stats {
	if p == nil {
		return Stats{}
	}
	return Stats{
		QueueDepth:    len(p.ch),
		QueueCapacity: cap(p.ch),
		Published:     p.published.Load(),
		Dropped:       p.dropped.Load(),
		Failed:        p.failed.Load(),
	}
}

func (p *Publisher) loop() {
	for e := range p.ch {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		err := p.rdb.XAdd(ctx, &redis.XAddArgs{
			Stream: p.stream,
			MaxLen: p.maxLen,
			Approx: true,
			Values: Fields(e),
		}).Err()
		cancel()
		if err != nil {
			if p.failed.Add(1) == 1 {
				p.logger.Warn("redis stream publish failed", "stream", p.stream, "err", err)
			}
			continue
		}
		p.published.Add(1)
	}
}

// Fields flattens a tick entry into stream field/value pairs.
func Fields(e simlog.TickEntry) map[string]any {
	return map[string]any{
		"run_id":     e.RunID,
		"generation": strconv.FormatUint(e.Generation, 10),
		"tick":       strconv.FormatUint(e.Tick, 10),
		"time":       strconv.FormatFloat(e.Time, 'f', -1, 64),
		"virgin":     strconv.Itoa(e.Virgin),
		"disease":    strconv.Itoa(e.Disease),
		"immune":     strconv.Itoa(e.Immune),
		"digest":     e.Digest,
	}
}

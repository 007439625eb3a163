package indexdb

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	_ "modernc.org/sqlite"

	simlog "roadsim.ai/internal/persistence/log"
)

// SQLiteIndex is a queryable read model of runs and their per-tick census.
// Writes are queued to a single writer goroutine; the JSONL tick log stays
// the source of truth, so a full queue drops records.
type SQLiteIndex struct {
	db *sql.DB

	ch   chan req
	wg   sync.WaitGroup
	once sync.Once

	closed atomic.Bool

	dropTick  atomic.Uint64
	dropRun   atomic.Uint64
	dropGraph atomic.Uint64
}

type reqKind int

const (
	reqTick reqKind = iota + 1
	reqRun
	reqGraph
)

type req struct {
	kind reqKind

	tick  simlog.TickEntry
	run   RunRow
	graph GraphRow
}

// RunRow describes one simulation start.
type RunRow struct {
	RunID      string
	Generation uint64
	Seed       int64
	DataURL    string
	Agents     int
	Vertices   int
	Edges      int
	Options    any
	StartedAt  time.Time
}

// GraphRow describes one packed graph produced by the build tool.
type GraphRow struct {
	Path     string
	Vertices int
	Edges    int
	Report   any
	BuiltAt  time.Time
}

type Stats struct {
	QueueDepth     int
	QueueCapacity  int
	DropTickTotal  uint64
	DropRunTotal   uint64
	DropGraphTotal uint64
}

func OpenSQLite(path string) (*SQLiteIndex, error) {
	if path == "" {
		return nil, fmt.Errorf("empty db path")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if err := initPragmas(db); err != nil {
		_ = db.Close()
		return nil, err
	}
	if err := initSchema(db); err != nil {
		_ = db.Close()
		return nil, err
	}

	s := &SQLiteIndex{
		db: db,
		ch: make(chan req, 65536),
	}
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.loop()
	}()
	return s, nil
}

func initPragmas(db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA synchronous=NORMAL;",
		"PRAGMA busy_timeout=5000;",
		"PRAGMA temp_store=MEMORY;",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			return err
		}
	}
	return nil
}

func initSchema(db *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS meta (
			key TEXT PRIMARY KEY,
			value TEXT NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS runs (
			run_id TEXT NOT NULL,
			generation INTEGER NOT NULL,
			seed INTEGER NOT NULL,
			data_url TEXT NOT NULL,
			agents INTEGER NOT NULL,
			vertices INTEGER NOT NULL,
			edges INTEGER NOT NULL,
			options_json TEXT NOT NULL,
			started_at TEXT NOT NULL,
			PRIMARY KEY (run_id, generation)
		);`,
		`CREATE TABLE IF NOT EXISTS ticks (
			run_id TEXT NOT NULL,
			generation INTEGER NOT NULL,
			tick INTEGER NOT NULL,
			sim_time REAL NOT NULL,
			virgin INTEGER NOT NULL,
			disease INTEGER NOT NULL,
			immune INTEGER NOT NULL,
			digest TEXT NOT NULL,
			PRIMARY KEY (run_id, generation, tick)
		);`,
		`CREATE INDEX IF NOT EXISTS idx_ticks_disease ON ticks(run_id, disease);`,
		`CREATE TABLE IF NOT EXISTS graphs (
			path TEXT PRIMARY KEY,
			vertices INTEGER NOT NULL,
			edges INTEGER NOT NULL,
			report_json TEXT NOT NULL,
			built_at TEXT NOT NULL
		);`,
		`INSERT OR REPLACE INTO meta(key,value) VALUES('schema_version','1');`,
	}
	for _, s := range stmts {
		if _, err := db.Exec(s); err != nil {
			return err
		}
	}
	return nil
}

func (s *SQLiteIndex) Close() error {
	var err error
	s.once.Do(func() {
		s.closed.Store(true)
		close(s.ch)
		s.wg.Wait()
		err = s.db.Close()
	})
	return err
}

func (s *SQLiteIndex) Stats() Stats {
	if s == nil {
		return Stats{}
	}
	return Stats{
		QueueDepth:     len(s.ch),
		QueueCapacity:  cap(s.ch),
		DropTickTotal:  s.dropTick.Load(),
		DropRunTotal:   s.dropRun.Load(),
		DropGraphTotal: s.dropGraph.Load(),
	}
}

func (s *SQLiteIndex) WriteTick(entry simlog.TickEntry) error {
	if s == nil || s.closed.Load() {
		return nil
	}
	select {
	case s.ch <- req{kind: reqTick, tick: entry}:
	default:
		s.dropTick.Add(1)
	}
	return nil
}

func (s *SQLiteIndex) RecordRun(r RunRow) {
	if s == nil || s.closed.Load() {
		return
	}
	select {
	case s.ch <- req{kind: reqRun, run: r}:
	default:
		s.dropRun.Add(1)
	}
}

func (s *SQLiteIndex) RecordGraph(r GraphRow) {
	if s == nil || s.closed.Load() {
		return
	}
	select {
	case s.ch <- req{kind: reqGraph, graph: r}:
	default:
		s.dropGraph.Add(1)
	}
}

// TickSummary is one row of the ticks table.
type TickSummary struct {
	Generation uint64
	Tick       uint64
	Time       float64
	Virgin     int
	Disease    int
	Immune     int
	Digest     string
}

// Ticks returns the indexed census of runID in (generation, tick) order.
func (s *SQLiteIndex) Ticks(ctx context.Context, runID string) ([]TickSummary, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT generation,tick,sim_time,virgin,disease,immune,digest FROM ticks WHERE run_id=? ORDER BY generation,tick`, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []TickSummary
	for rows.Next() {
		var t TickSummary
		var gen, tick int64
		if err := rows.Scan(&gen, &tick, &t.Time, &t.Virgin, &t.Disease, &t.Immune, &t.Digest); err != nil {
			return nil, err
		}
		t.Generation, t.Tick = uint64(gen), uint64(tick)
		out = append(out, t)
	}
	return out, rows.Err()
}

// PeakDisease returns the highest infected count indexed for runID and the tick it occurred at.
func (s *SQLiteIndex) PeakDisease(ctx context.Context, runID string) (peak int, tick uint64, err error) {
	var t int64
	err = s.db.QueryRowContext(ctx,
		`SELECT disease,tick FROM ticks WHERE run_id=? ORDER BY disease DESC, generation, tick LIMIT 1`, runID).Scan(&peak, &t)
	if err == sql.ErrNoRows {
		return 0, 0, nil
	}
	return peak, uint64(t), err
}

func (s *SQLiteIndex) RunCount(ctx context.Context) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM runs`).Scan(&n)
	return n, err
}

func (s *SQLiteIndex) GraphCount(ctx context.Context) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM graphs`).Scan(&n)
	return n, err
}

func (s *SQLiteIndex) loop() {
	ctx := context.Background()

	insertTick, _ := s.db.Prepare(`INSERT OR REPLACE INTO ticks(run_id,generation,tick,sim_time,virgin,disease,immune,digest) VALUES(?,?,?,?,?,?,?,?)`)
	insertRun, _ := s.db.Prepare(`INSERT OR REPLACE INTO runs(run_id,generation,seed,data_url,agents,vertices,edges,options_json,started_at) VALUES(?,?,?,?,?,?,?,?,?)`)
	insertGraph, _ := s.db.Prepare(`INSERT OR REPLACE INTO graphs(path,vertices,edges,report_json,built_at) VALUES(?,?,?,?,?)`)
	defer func() {
		for _, st := range []*sql.Stmt{insertTick, insertRun, insertGraph} {
			if st != nil {
				_ = st.Close()
			}
		}
	}()

	var (
		tx            *sql.Tx
		opCount       int
		lastCommit    = time.Now()
		commitEvery   = 2000
		commitMaxWait = 2 * time.Second
	)

	begin := func() {
		if tx != nil {
			return
		}
		txx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			time.Sleep(50 * time.Millisecond)
			return
		}
		tx = txx
		opCount = 0
		lastCommit = time.Now()
	}
	commit := func() {
		if tx == nil {
			return
		}
		_ = tx.Commit()
		tx = nil
		opCount = 0
		lastCommit = time.Now()
	}
	rollback := func() {
		if tx == nil {
			return
		}
		_ = tx.Rollback()
		tx = nil
		opCount = 0
		lastCommit = time.Now()
	}
	exec := func(st *sql.Stmt, args ...any) {
		if st == nil || tx == nil {
			return
		}
		if _, err := tx.Stmt(st).Exec(args...); err != nil {
			rollback()
			return
		}
		opCount++
	}

	for r := range s.ch {
		begin()
		if tx == nil {
			continue
		}
		switch r.kind {
		case reqTick:
			t := r.tick
			exec(insertTick, t.RunID, int64(t.Generation), int64(t.Tick), t.Time, t.Virgin, t.Disease, t.Immune, t.Digest)
		case reqRun:
			ru := r.run
			opts, _ := json.Marshal(ru.Options)
			exec(insertRun, ru.RunID, int64(ru.Generation), ru.Seed, ru.DataURL, ru.Agents, ru.Vertices, ru.Edges,
				string(opts), ru.StartedAt.UTC().Format(time.RFC3339Nano))
		case reqGraph:
			g := r.graph
			rep, _ := json.Marshal(g.Report)
			exec(insertGraph, g.Path, g.Vertices, g.Edges, string(rep), g.BuiltAt.UTC().Format(time.RFC3339Nano))
		}
		if tx != nil && (opCount >= commitEvery || time.Since(lastCommit) >= commitMaxWait || len(s.ch) == 0) {
			commit()
		}
	}

	commit()
}

package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"roadsim.ai/internal/graph"
	"roadsim.ai/internal/graph/input"
	"roadsim.ai/internal/graph/pack"
	"roadsim.ai/internal/logging"
	"roadsim.ai/internal/persistence/indexdb"
	"roadsim.ai/internal/persistence/object"
	"roadsim.ai/internal/sim/tuning"
)

func main() {
	_ = godotenv.Load(".env")
	if err := run(os.Args[1:], os.Stdout); err != nil {
		fmt.Fprintln(os.Stderr, "graphbuild:", err)
		os.Exit(1)
	}
}

type result struct {
	Out       string            `json:"out"`
	Published string            `json:"published,omitempty"`
	Header    pack.Header       `json:"header"`
	Report    graph.BuildReport `json:"report"`
	Kinds     map[string]int    `json:"vertex_kinds"`
}

func run(args []string, stdout io.Writer) error {
	fs := flag.NewFlagSet("graphbuild", flag.ContinueOnError)
	var (
		inPath      = fs.String("in", "", "input document (edges + buildings JSON, optionally .zst)")
		outPath     = fs.String("out", "graph.json.zst", "packed graph output path (.zst compresses)")
		tuningPath  = fs.String("tuning", "", "path to tuning.yaml (default: built-in defaults)")
		roundFactor = fs.Int64("round_factor", 0, "override builder.round_factor")
		publish     = fs.String("publish", "", "object key to upload the packed file to (uses ROADSIM_S3_*)")
		indexPath   = fs.String("index", "", "sqlite index to record the build in (optional)")
		logLevel    = fs.String("log_level", "", "debug|info|warn|error (or LOG_LEVEL)")
		logFormat   = fs.String("log_format", "", "text|json (or LOG_FORMAT)")
	)
	if err := fs.Parse(args); err != nil {
		return err
	}
	if strings.TrimSpace(*inPath) == "" {
		return errors.New("-in is required")
	}
	logger := logging.FromEnv(*logLevel, *logFormat, "graphbuild")

	tune := tuning.Defaults()
	if tp := strings.TrimSpace(*tuningPath); tp != "" {
		t, err := tuning.Load(tp)
		if err != nil {
			return fmt.Errorf("load tuning: %w", err)
		}
		tune = t
	}
	rf := tune.Builder.RoundFactor
	if *roundFactor > 0 {
		rf = *roundFactor
	}

	doc, err := input.ReadFile(*inPath)
	if err != nil {
		return fmt.Errorf("read input: %w", err)
	}
	opts := tune.BuildOptions()
	doc.Apply(&opts)
	opts.Logger = logger

	start := time.Now()
	g, rep, err := graph.BuildWithReport(doc.RawEdges(), doc.BuildingPoints(), opts)
	if err != nil {
		return fmt.Errorf("build: %w", err)
	}
	logger.Info("graph built",
		"vertices", rep.Vertices,
		"edges", rep.Edges,
		"buildings_attached", rep.BuildingsAttached,
		"buildings_skipped", rep.BuildingsSkipped,
		"elapsed", time.Since(start),
	)

	p, err := pack.EncodeWithRoundFactor(g, rf)
	if err != nil {
		return fmt.Errorf("encode: %w", err)
	}
	if err := pack.WriteFile(*outPath, p); err != nil {
		return fmt.Errorf("write %s: %w", *outPath, err)
	}

	res := result{Out: *outPath, Header: pack.HeaderOf(p), Report: rep, Kinds: map[string]int{}}
	vk, _ := g.CountKinds()
	for k, n := range vk {
		res.Kinds[k.String()] = n
	}

	if key := strings.TrimSpace(*publish); key != "" {
		cfg := object.ConfigFromEnv()
		if !cfg.Enabled() {
			return errors.New("-publish needs ROADSIM_S3_ENDPOINT and ROADSIM_S3_BUCKET")
		}
		client, err := object.New(cfg)
		if err != nil {
			return fmt.Errorf("object client: %w", err)
		}
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
		defer cancel()
		if err := client.PutFile(ctx, key, *outPath); err != nil {
			return fmt.Errorf("publish: %w", err)
		}
		res.Published = fmt.Sprintf("s3://%s/%s", client.Bucket(), strings.TrimLeft(key, "/"))
		logger.Info("graph published", "locator", res.Published)
	}

	if ip := strings.TrimSpace(*indexPath); ip != "" {
		idx, err := indexdb.OpenSQLite(ip)
		if err != nil {
			return fmt.Errorf("open index: %w", err)
		}
		idx.RecordGraph(indexdb.GraphRow{
			Path:     *outPath,
			Vertices: rep.Vertices,
			Edges:    rep.Edges,
			Report:   rep,
			BuiltAt:  time.Now(),
		})
		if err := idx.Close(); err != nil {
			logger.Warn("close index", "err", err)
		}
	}

	enc := json.NewEncoder(stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(res)
}

package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"roadsim.ai/internal/graph/pack"
	"roadsim.ai/internal/logging"
	persistlog "roadsim.ai/internal/persistence/log"
	"roadsim.ai/internal/persistence/object"
	"roadsim.ai/internal/sim/engine"
	"roadsim.ai/internal/sim/tuning"
)

// segmentLayout has no time tokens, so a check run writes a single segment.
const segmentLayout = "check"

func main() {
	_ = godotenv.Load(".env")
	if err := run(os.Args[1:], os.Stdout); err != nil {
		fmt.Fprintln(os.Stderr, "simcheck:", err)
		os.Exit(1)
	}
}

func run(args []string, stdout io.Writer) error {
	fs := flag.NewFlagSet("simcheck", flag.ContinueOnError)
	var (
		graphLoc    = fs.String("graph", "", "packed graph locator (path, file://, http(s)://, s3://)")
		tuningPath  = fs.String("tuning", "", "path to tuning.yaml (default: built-in defaults)")
		seed        = fs.Int64("seed", 0, "override simulation.random_seed")
		agents      = fs.Int("agents", 0, "override simulation.humans_count")
		ticks       = fs.Uint64("ticks", 600, "number of ticks to run")
		stepMS      = fs.Int("step_ms", 0, "fixed tick length in ms (default: nominal step)")
		digestEvery = fs.Uint64("digest_every", 1, "digest every N ticks (0 disables)")
		outDir      = fs.String("out", "", "write the tick log under <out>/ticks")
		verifyDir   = fs.String("verify", "", "compare against the tick log under <verify>/ticks")
		logLevel    = fs.String("log_level", "warn", "debug|info|warn|error")
	)
	if err := fs.Parse(args); err != nil {
		return err
	}
	if strings.TrimSpace(*graphLoc) == "" {
		return errors.New("missing -graph")
	}
	logger := logging.FromEnv(*logLevel, "", "simcheck")

	tune := tuning.Defaults()
	if tp := strings.TrimSpace(*tuningPath); tp != "" {
		t, err := tuning.Load(tp)
		if err != nil {
			return fmt.Errorf("load tuning: %w", err)
		}
		tune = t
	}
	opts := tune.EngineOptions()
	opts.DataURL = *graphLoc
	if *seed != 0 {
		opts.RandomSeed = *seed
	}
	if *agents > 0 {
		opts.HumansCount = *agents
	}
	step := opts.NominalStep
	if *stepMS > 0 {
		step = time.Duration(*stepMS) * time.Millisecond
	}

	var objects *object.Client
	if cfg := object.ConfigFromEnv(); cfg.Enabled() {
		c, err := object.New(cfg)
		if err != nil {
			return fmt.Errorf("object client: %w", err)
		}
		objects = c
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()
	g, err := pack.NewLoader(objects).Load(ctx, *graphLoc)
	if err != nil {
		return fmt.Errorf("load graph: %w", err)
	}

	var want []persistlog.TickEntry
	if *verifyDir != "" {
		want, err = persistlog.ReadTickDir(*verifyDir + "/ticks")
		if err != nil {
			return fmt.Errorf("read tick log: %w", err)
		}
		if uint64(len(want)) < *ticks {
			return fmt.Errorf("tick log has %d entries, need %d", len(want), *ticks)
		}
	}
	var out *persistlog.TickLogger
	if *outDir != "" {
		out = persistlog.NewTickLogger(*outDir, segmentLayout)
		defer out.Close()
	}

	e := engine.New(opts, nil, logger)
	e.SetStatsWindow(float64(tune.Stats.WindowBucketMs), tune.Stats.WindowBuckets)
	gen := e.StartWithGraph(opts, tune.Filter, g)

	fmt.Fprintf(stdout, "graph vertices=%d edges=%d agents=%d seed=%d step=%s\n",
		len(g.Vertices), len(g.Edges), len(e.Agents()), opts.RandomSeed, step)

	var checked, digests uint64
	for tick := uint64(1); tick <= *ticks; tick++ {
		if !e.Tick(step) {
			return fmt.Errorf("engine did not advance at tick %d", tick)
		}
		c := e.Counts()
		entry := persistlog.TickEntry{
			Generation: gen,
			Tick:       tick,
			Time:       e.Time(),
			Virgin:     c.Virgin,
			Disease:    c.Disease,
			Immune:     c.Immune,
		}
		if *digestEvery > 0 && tick%*digestEvery == 0 {
			entry.Digest = e.StateDigest()
		}
		if out != nil {
			if err := out.WriteTick(entry); err != nil {
				return fmt.Errorf("write tick log: %w", err)
			}
		}
		if want != nil {
			if err := compare(want[tick-1], entry); err != nil {
				return err
			}
			checked++
			if want[tick-1].Digest != "" && entry.Digest != "" {
				digests++
			}
		}
	}

	c := e.Counts()
	fmt.Fprintf(stdout, "ran %d ticks: time=%.0fms virgin=%d disease=%d immune=%d digest=%s\n",
		*ticks, e.Time(), c.Virgin, c.Disease, c.Immune, e.StateDigest())
	if want != nil {
		fmt.Fprintf(stdout, "verify ok: checked=%d ticks digests=%d\n", checked, digests)
	}
	return nil
}

func compare(want, got persistlog.TickEntry) error {
	if want.Tick != got.Tick {
		return fmt.Errorf("tick mismatch: want=%d got=%d", want.Tick, got.Tick)
	}
	if want.Time != got.Time || want.Virgin != got.Virgin || want.Disease != got.Disease || want.Immune != got.Immune {
		return fmt.Errorf("state mismatch at tick %d: want=%+v got=%+v", got.Tick, want, got)
	}
	if want.Digest != "" && got.Digest != "" && want.Digest != got.Digest {
		return fmt.Errorf("digest mismatch at tick %d: got=%s want=%s", got.Tick, got.Digest, want.Digest)
	}
	return nil
}

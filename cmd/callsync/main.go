package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"callsync/internal/config"
	"callsync/internal/ingest"
	"callsync/internal/metrics"
	"callsync/internal/metrics/datadog"
	"callsync/internal/metrics/prompush"
	"callsync/internal/reconcile"
	"callsync/internal/schema"
	"callsync/internal/source"
	"callsync/internal/storage"
	chstore "callsync/internal/storage/clickhouse"
	pgstore "callsync/internal/storage/postgres"
	"callsync/internal/syncer"
)

// main is the entry point for the callsync binary. It loads and validates the
// config, optionally initializes a metrics backend, and dispatches to the
// requested command.
func main() {
	var (
		cmd               string
		cfgPath           string
		inputPath         string
		batchSize         int
		metricsBackendFlg string
		pushGatewayURLFlg string
		dogstatsdAddrFlg  string
	)

	flag.StringVar(&cmd, "cmd", "sync", "command: init-schema | ingest | sync | validate | run-full")
	flag.StringVar(&cfgPath, "config", "configs/callsync.json", "config JSON path")
	flag.StringVar(&inputPath, "input", "", "JSONL input file (ingest, run-full)")
	flag.IntVar(&batchSize, "batch", 0, "sync batch size (overrides config)")
	flag.StringVar(&metricsBackendFlg, "metrics-backend", "", "metrics backend (prompush, datadog, none; overrides config)")
	flag.StringVar(&pushGatewayURLFlg, "pushgateway-url", "", "Pushgateway base URL (overrides config, env PUSHGATEWAY_URL)")
	flag.StringVar(&dogstatsdAddrFlg, "dogstatsd-addr", "", "DogStatsD address (overrides config, env DOGSTATSD_ADDR)")
	verbose := flag.Bool("v", false, "enable verbose logs")

	flag.Parse()

	cfg, err := config.Load(cfgPath)
	if err != nil {
		fatalf("%v", err)
	}

	issues := config.ValidateConfig(cfg)
	for _, iss := range issues {
		fmt.Fprintf(os.Stderr, "%s: %s: %s\n", iss.Severity, iss.Path, iss.Message)
	}
	if config.HasErrors(issues) {
		fatalf("configuration is invalid: %v", cfgPath)
	}

	cfg.Runtime = cfg.Runtime.Normalize()
	if batchSize > 0 {
		cfg.Runtime.BatchSize = batchSize
	}

	setupMetrics(cfg, metricsBackendFlg, pushGatewayURLFlg, dogstatsdAddrFlg, *verbose)
	defer func() {
		if err := metrics.Flush(); err != nil {
			log.Printf("metrics: flush error: %v", err)
		}
	}()

	ctx := context.Background()
	start := time.Now()

	var runErr error
	switch cmd {
	case "init-schema":
		runErr = runInitSchema(ctx, cfg)
	case "ingest":
		runErr = runIngest(ctx, cfg, inputPath)
	case "sync":
		runErr = runSync(ctx, cfg)
	case "validate":
		runErr = runValidate(ctx, cfg)
	case "run-full":
		runErr = runFull(ctx, cfg, inputPath)
	default:
		fatalf("unknown command %q", cmd)
	}

	if *verbose {
		log.Printf("completed cmd=%s in %s", cmd, time.Since(start).Truncate(time.Millisecond))
	}
	if runErr != nil {
		log.Fatalf("%v", runErr)
	}
}

// setupMetrics installs the selected backend: flag, then config, then env.
// Failure to reach a metrics system never blocks the pipelines; the nop
// backend stays in place.
func setupMetrics(cfg config.Config, backendFlg, gwFlg, ddFlg string, verbose bool) {
	backendName := backendFlg
	if backendName == "" {
		backendName = cfg.Metrics.Backend
	}

	switch backendName {
	case "prompush", "pushgateway":
		gwURL := gwFlg
		if gwURL == "" {
			gwURL = cfg.Metrics.Options.String("push_url", "")
		}
		if gwURL == "" {
			gwURL = os.Getenv("PUSHGATEWAY_URL")
		}
		b, err := prompush.NewBackend(cfg.Job, gwURL)
		if err != nil {
			log.Printf("metrics: failed to init prompush backend: %v; using nop", err)
			return
		}
		log.Printf("metrics: backend=prompush url=%s job=%s", gwURL, cfg.Job)
		metrics.SetBackend(b)

	case "datadog":
		addr := ddFlg
		if addr == "" {
			addr = cfg.Metrics.Options.String("statsd_addr", "")
		}
		if addr == "" {
			addr = os.Getenv("DOGSTATSD_ADDR")
		}
		b, err := datadog.NewBackend(datadog.Config{
			Addr:       addr,
			Namespace:  cfg.Metrics.Options.String("namespace", ""),
			GlobalTags: []string{"service:" + cfg.Job},
		})
		if err != nil {
			log.Printf("metrics: failed to init datadog backend: %v; using nop", err)
			return
		}
		log.Printf("metrics: backend=datadog addr=%s job=%s", addr, cfg.Job)
		metrics.SetBackend(b)

	case "", "nop", "none":
		if verbose {
			log.Printf("metrics: disabled (backend=%q)", backendName)
		}

	default:
		log.Printf("metrics: unknown backend %q; metrics disabled", backendName)
	}
}

func openDetailed(ctx context.Context, cfg config.Config) (*pgstore.Repository, func(), error) {
	return pgstore.NewRepository(ctx, pgstore.Config{DSN: cfg.Stores.Postgres.DSN})
}

func openAnalytic(ctx context.Context, cfg config.Config) (*chstore.Repository, func(), error) {
	return chstore.NewRepository(ctx, chstore.Config{DSN: cfg.Stores.ClickHouse.DSN}, schema.Default())
}

func runInitSchema(ctx context.Context, cfg config.Config) error {
	start := time.Now()
	err := func() error {
		pg, closePg, err := openDetailed(ctx, cfg)
		if err != nil {
			return err
		}
		defer closePg()
		if err := storage.EnsureSchema(ctx, "postgres", pg); err != nil {
			return err
		}

		ch, closeCh, err := openAnalytic(ctx, cfg)
		if err != nil {
			return err
		}
		defer closeCh()
		return storage.EnsureSchema(ctx, "clickhouse", ch)
	}()
	metrics.RecordStep(cfg.Job, "init-schema", err, time.Since(start))
	if err == nil {
		log.Printf("level=info step=init-schema msg=\"both stores ready\"")
	}
	return err
}

func runIngest(ctx context.Context, cfg config.Config, inputPath string) error {
	if inputPath == "" {
		return fmt.Errorf("ingest requires -input")
	}

	start := time.Now()
	rep, err := ingestFile(ctx, cfg, inputPath)
	metrics.RecordStep(cfg.Job, "ingest", err, time.Since(start))

	// Partial counts are printed even on failure.
	log.Printf("level=info step=ingest input=%s ingested=%d rejected=%d", inputPath, rep.Ingested, rep.Rejected)
	for _, rej := range rep.Rejections {
		log.Printf("level=warn step=ingest call_id=%s reason=%q", rej.CallID, rej.Reason)
	}
	return err
}

func ingestFile(ctx context.Context, cfg config.Config, inputPath string) (ingest.Report, error) {
	f, err := os.Open(inputPath)
	if err != nil {
		return ingest.Report{}, fmt.Errorf("open input: %w", err)
	}
	defer f.Close()

	recs, err := source.ReadJSONL(f, inputPath, func(line int, err error) {
		log.Printf("level=warn step=ingest input=%s line=%d err=%q", inputPath, line, err.Error())
	})
	if err != nil {
		return ingest.Report{}, err
	}

	pg, closePg, err := openDetailed(ctx, cfg)
	if err != nil {
		return ingest.Report{}, err
	}
	defer closePg()

	p := &ingest.Pipeline{Job: cfg.Job, Store: pg}
	return p.Batch(ctx, recs, cfg.Runtime.IngestWorkers)
}

func runSync(ctx context.Context, cfg config.Config) error {
	start := time.Now()
	err := func() error {
		pg, closePg, err := openDetailed(ctx, cfg)
		if err != nil {
			return err
		}
		defer closePg()

		ch, closeCh, err := openAnalytic(ctx, cfg)
		if err != nil {
			return err
		}
		defer closeCh()

		return syncUntilDrained(ctx, cfg, pg, ch)
	}()
	metrics.RecordStep(cfg.Job, "sync", err, time.Since(start))
	return err
}

// syncUntilDrained recomputes the watermark from the analytic store, then
// runs batches until a run reads nothing or stops making progress.
func syncUntilDrained(ctx context.Context, cfg config.Config, pg storage.Detailed, ch storage.Analytic) error {
	s := &syncer.Syncer{Job: cfg.Job, Detailed: pg, Analytic: ch}

	wm, err := s.InitialWatermark(ctx)
	if err != nil {
		return err
	}
	log.Printf("level=info step=sync watermark=%s msg=\"starting\"", wm)

	var totalSynced, totalSkipped int
	for {
		rep, next, err := s.Run(ctx, wm, cfg.Runtime.BatchSize)
		totalSynced += rep.Synced
		totalSkipped += rep.Skipped
		if err != nil {
			log.Printf("level=error step=sync synced=%d skipped=%d err=%q", totalSynced, totalSkipped, err.Error())
			return err
		}
		if rep.Read == 0 {
			break
		}
		if next == wm {
			// No progress: the leading record keeps failing. Stop rather
			// than spin; the held watermark makes the retry safe.
			log.Printf("level=error step=sync watermark=%s msg=\"stalled on failing record\"", wm)
			return fmt.Errorf("sync stalled at watermark %s: %d record(s) failing; run -cmd validate to locate the stranded calls", wm, rep.Skipped)
		}
		wm = next
	}

	log.Printf("level=info step=sync synced=%d skipped=%d watermark=%s msg=\"drained\"", totalSynced, totalSkipped, wm)
	return nil
}

func runValidate(ctx context.Context, cfg config.Config) error {
	start := time.Now()
	err := func() error {
		pg, closePg, err := openDetailed(ctx, cfg)
		if err != nil {
			return err
		}
		defer closePg()

		ch, closeCh, err := openAnalytic(ctx, cfg)
		if err != nil {
			return err
		}
		defer closeCh()

		return reconcileStores(ctx, cfg, pg, ch)
	}()
	metrics.RecordStep(cfg.Job, "reconcile", err, time.Since(start))
	return err
}

func reconcileStores(ctx context.Context, cfg config.Config, pg storage.Detailed, ch storage.Analytic) error {
	r := &reconcile.Reconciler{Detailed: pg, Analytic: ch, Registry: schema.Default()}
	rep, err := r.Reconcile(ctx, cfg.Runtime.ReconcileSample)
	if err != nil {
		return err
	}

	log.Printf("level=info step=reconcile detailed=%d analytic=%d counts_match=%t ranges_match=%t missing_sample=%d",
		rep.DetailedCalls, rep.AnalyticCalls, rep.CountsMatch, rep.RangesMatch, len(rep.MissingSample))
	for _, id := range rep.MissingSample {
		log.Printf("level=warn step=reconcile missing_call_id=%s", id)
	}
	for _, cc := range rep.Categories {
		log.Printf("level=info step=reconcile category=%q calls=%d", cc.Category, cc.Calls)
	}
	if rep.InSync() {
		log.Printf("level=info step=reconcile msg=\"stores are level\"")
	} else {
		log.Printf("level=warn step=reconcile msg=\"stores diverge; re-run sync or investigate the sample above\"")
	}
	return nil
}

func runFull(ctx context.Context, cfg config.Config, inputPath string) error {
	if err := runIngest(ctx, cfg, inputPath); err != nil {
		return err
	}
	if err := runSync(ctx, cfg); err != nil {
		return err
	}
	return runValidate(ctx, cfg)
}

func fatalf(format string, a ...any) {
	fmt.Fprintf(os.Stderr, format+"\n", a...)
	os.Exit(1)
}

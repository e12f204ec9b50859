package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"runtime/debug"
	"strings"
	"syscall"
	"time"

	"github.com/alecthomas/kong"

	"github.com/swscloud/reviewd/internal/ai"
	"github.com/swscloud/reviewd/internal/api"
	"github.com/swscloud/reviewd/internal/auth"
	"github.com/swscloud/reviewd/internal/config"
	"github.com/swscloud/reviewd/internal/convert"
	"github.com/swscloud/reviewd/internal/docmodel"
	"github.com/swscloud/reviewd/internal/kb"
	"github.com/swscloud/reviewd/internal/metrics"
	"github.com/swscloud/reviewd/internal/norms"
	"github.com/swscloud/reviewd/internal/objstore"
	"github.com/swscloud/reviewd/internal/observability"
	"github.com/swscloud/reviewd/internal/pipeline"
	"github.com/swscloud/reviewd/internal/runs"
	"github.com/swscloud/reviewd/internal/scheduler"
	"github.com/swscloud/reviewd/internal/store"
)

var CLI struct {
	Serve struct{} `cmd:"" help:"Run the API server, pipeline workers and janitor"`

	Process struct {
		VersionID int64 `arg:"" help:"Version to run the ingestion pipeline on"`
	} `cmd:"" help:"Process a single uploaded version and exit"`

	Review struct {
		VersionID int64  `arg:"" help:"Version to review"`
		Type      string `default:"RULE" help:"Run type: RULE, AI or MIXED"`
	} `cmd:"" help:"Run a review against a processed version and exit"`

	Migrate struct{} `cmd:"" help:"Create or update the database schema and exit"`

	SeedCheckpoints struct {
		File string `arg:"" help:"YAML file with checkpoint definitions"`
	} `cmd:"" help:"Load checkpoint definitions into the database"`

	Version struct{} `cmd:"" help:"Print version information"`
}

func main() {
	kctx := kong.Parse(&CLI)

	if kctx.Command() == "version" {
		fmt.Println(versionString())
		return
	}

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	observability.SetupLogger(cfg.LogFormat, cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	switch kctx.Command() {
	case "serve":
		err = runServe(ctx, cfg)
	case "process <version-id>":
		err = runProcess(ctx, cfg, CLI.Process.VersionID)
	case "review <version-id>":
		err = runReview(ctx, cfg, CLI.Review.VersionID, CLI.Review.Type)
	case "migrate":
		err = runMigrate(ctx, cfg)
	case "seed-checkpoints <file>":
		err = runSeedCheckpoints(ctx, cfg, CLI.SeedCheckpoints.File)
	}
	if err != nil {
		slog.Error("command failed", "error", err)
		os.Exit(1)
	}
}

// app holds the dependency graph shared by the commands.
type app struct {
	cfg     *config.Config
	st      *store.Store
	obj     objstore.Store
	signer  *objstore.Signer
	rec     metrics.Recorder
	conv    *convert.Converter
	normLib *norms.Library
	runsvc  *runs.Service
	pub     runs.Publisher
	pipe    *pipeline.Pipeline
	pool    *pipeline.Pool
}

func buildApp(ctx context.Context, cfg *config.Config, rec metrics.Recorder) (*app, error) {
	st, err := store.Open(ctx, cfg.DatabasePath)
	if err != nil {
		return nil, err
	}

	var obj objstore.Store
	if cfg.StorageType == "memory" {
		obj = objstore.NewMemStore()
	} else {
		obj, err = objstore.NewFSStore(cfg.LocalStorageDir)
		if err != nil {
			_ = st.Close()
			return nil, err
		}
	}

	a := &app{
		cfg:    cfg,
		st:     st,
		obj:    obj,
		signer: objstore.NewSigner(cfg.SigningSecret, cfg.SignedURLTTL),
		rec:    rec,
		conv:   convert.New(cfg.SofficePath, int(cfg.ConvertTimeout.Seconds())),
	}

	a.normLib, err = norms.NewLibrary(cfg.NormLibraryPath)
	if err != nil {
		a.close()
		return nil, err
	}

	var chat ai.ChatClient
	if cfg.AIAPIKey != "" {
		client, err := ai.NewClient(cfg)
		if err != nil {
			a.close()
			return nil, err
		}
		chat = client
	} else {
		slog.Warn("AI_API_KEY is not set, AI review is disabled")
	}

	if cfg.NATSURL != "" {
		pub, err := runs.NewNATSPublisher(cfg.NATSURL)
		if err != nil {
			a.close()
			return nil, err
		}
		a.pub = pub
	}

	a.runsvc = runs.NewService(st, runs.NewHub(), rec, chat, cfg.AIConcurrency, a.pub, a.normLib)
	a.pipe = pipeline.New(st, obj, a.conv, rec, cfg.ParseDedupWindow, a.runsvc, cfg.AutoTriggerReview)
	a.pool = pipeline.NewPool(a.pipe, cfg.WorkerCount)
	return a, nil
}

func (a *app) close() {
	if a.pub != nil {
		a.pub.Close()
	}
	if a.st != nil {
		_ = a.st.Close()
	}
}

func runServe(ctx context.Context, cfg *config.Config) error {
	rec := metrics.NewPrometheusRecorder()
	a, err := buildApp(ctx, cfg, rec)
	if err != nil {
		return err
	}
	defer a.close()

	a.pool.Start(ctx)
	defer a.pool.Wait()

	go func() {
		if err := a.normLib.Watch(ctx); err != nil {
			slog.Warn("norm library watcher stopped", "error", err)
		}
	}()

	sched, err := scheduler.New(a.st, int(cfg.StaleProcessing.Minutes()))
	if err != nil {
		return err
	}
	sched.Start()
	defer func() {
		if err := sched.Shutdown(); err != nil {
			slog.Warn("scheduler shutdown failed", "error", err)
		}
	}()

	if cfg.MetricsAddr != "" {
		go func() {
			mux := http.NewServeMux()
			mux.Handle("/metrics", rec.Handler())
			srv := &http.Server{Addr: cfg.MetricsAddr, Handler: mux, ReadHeaderTimeout: 10 * time.Second}
			slog.Info("metrics server listening", "addr", cfg.MetricsAddr)
			if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				slog.Warn("metrics server failed", "error", err)
			}
		}()
	}

	issuer := auth.NewTokenIssuer(cfg.JWTSecret,
		int(cfg.JWTAccessExpire.Minutes()),
		int(cfg.JWTRefreshExpire.Hours()/24))
	indexer := kb.NewIndexer(a.st, a.obj)
	srv := api.NewServer(cfg, a.st, a.obj, a.signer, issuer, a.runsvc, a.pool, indexer)
	return srv.Serve(ctx)
}

func runProcess(ctx context.Context, cfg *config.Config, versionID int64) error {
	a, err := buildApp(ctx, cfg, metrics.NoopRecorder{})
	if err != nil {
		return err
	}
	defer a.close()
	return a.pipe.Process(ctx, versionID)
}

func runReview(ctx context.Context, cfg *config.Config, versionID int64, runType string) error {
	a, err := buildApp(ctx, cfg, metrics.NoopRecorder{})
	if err != nil {
		return err
	}
	defer a.close()

	run, err := a.runsvc.Start(ctx, versionID, docmodel.RunType(strings.ToUpper(runType)))
	if err != nil {
		return err
	}
	slog.Info("review started", "run_id", run.ID)

	// Poll until the background execution reaches a terminal state.
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			r, err := a.st.GetRun(ctx, run.ID)
			if err != nil {
				return err
			}
			switch r.Status {
			case docmodel.RunDone:
				slog.Info("review finished", "run_id", r.ID)
				return nil
			case docmodel.RunFailed:
				return fmt.Errorf("run %d failed: %s", r.ID, r.ErrorMessage)
			case docmodel.RunCanceled:
				return fmt.Errorf("run %d canceled", r.ID)
			}
		}
	}
}

func runMigrate(ctx context.Context, cfg *config.Config) error {
	st, err := store.Open(ctx, cfg.DatabasePath)
	if err != nil {
		return err
	}
	defer st.Close()
	slog.Info("schema up to date", "path", cfg.DatabasePath)
	return nil
}

func runSeedCheckpoints(ctx context.Context, cfg *config.Config, file string) error {
	st, err := store.Open(ctx, cfg.DatabasePath)
	if err != nil {
		return err
	}
	defer st.Close()

	seeds, err := norms.LoadCheckpointSeeds(file)
	if err != nil {
		return err
	}
	for i := range seeds {
		if err := st.UpsertCheckpoint(ctx, &seeds[i]); err != nil {
			return err
		}
	}
	slog.Info("checkpoints seeded", "count", len(seeds), "file", file)
	return nil
}

func versionString() string {
	if info, ok := debug.ReadBuildInfo(); ok && info.Main.Version != "" {
		return "reviewd " + info.Main.Version
	}
	return "reviewd (devel)"
}

// Package main provides the entry point for the shoal mirror service.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	gormlogger "gorm.io/gorm/logger"

	"github.com/journeylabs/shoal/internal/config"
	"github.com/journeylabs/shoal/internal/embedding"
	"github.com/journeylabs/shoal/internal/jobs"
	"github.com/journeylabs/shoal/internal/store"
	"github.com/journeylabs/shoal/internal/upstream"
)

var Version = "dev"

// Steady-state schedule once the backfill has run.
const (
	zenithInterval = 240 * time.Second
	forgeInterval  = 120 * time.Second
	pruneInterval  = 3600 * time.Second
	traceInterval  = 120 * time.Second
)

var jobOrder = []string{"init", "forge", "prune", "zenith", "trace", "reform"}

func main() {
	runJobs := flag.String("jobs", "", "comma-separated jobs to run once, in order, then exit")
	disable := flag.String("disable", "", "comma-separated jobs to skip (adds to DISABLE_JOBS)")
	list := flag.Bool("list", false, "print the job catalog and exit")
	flag.Parse()

	if *list {
		for _, name := range jobOrder {
			fmt.Println(name)
		}
		return
	}

	_ = godotenv.Load()

	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("Invalid configuration")
	}
	if lvl, err := zerolog.ParseLevel(cfg.LogLevel); err == nil {
		zerolog.SetGlobalLevel(lvl)
	}
	for _, name := range splitCSV(*disable) {
		cfg.DisabledJobs = append(cfg.DisabledJobs, name)
	}

	log.Info().Str("version", Version).Msg("Starting shoal")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	st, err := store.Shared(store.Config{
		DSN:      cfg.DatabaseURL,
		MaxConns: cfg.MaxDBConnections,
		LogLevel: gormLogLevel(cfg.LogLevel),
	})
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to database")
	}
	defer st.Close()

	if err := st.Migrate(); err != nil {
		log.Fatal().Err(err).Msg("Migration failed")
	}
	if cfg.MigrateOnly {
		log.Info().Msg("Migrations applied, exiting")
		return
	}

	cacheTTL := embedding.DefaultCacheTTL
	if cfg.ForceEmbeddingRegen {
		cacheTTL = 0
	}
	embedder, err := embedding.NewService(cfg.EmbedModelPath, cfg.EmbedTokenizerPath, cfg.ResolvedEmbedConcurrency(), cacheTTL)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load embedding model")
	}
	defer embedder.Close()

	client := upstream.NewClient(cfg.JourneyBaseURL, cfg.LeaderboardURL, cfg.UserStatsBaseURL, cfg.JourneySessionCookie)

	deps := jobs.Deps{Store: st, Client: client, Embedder: embedder, Cfg: cfg}
	catalog := map[string]jobs.Job{
		"init":   jobs.NewInitJob(deps),
		"forge":  jobs.NewForgeJob(deps),
		"prune":  jobs.NewPruneJob(deps),
		"zenith": jobs.NewZenithJob(deps),
		"trace":  jobs.NewTraceJob(deps),
		"reform": jobs.NewReformJob(deps),
	}

	sched := jobs.NewScheduler()

	// One-shot modes run their jobs sequentially and exit.
	switch {
	case *runJobs != "":
		runOnce(ctx, sched, catalog, splitCSV(*runJobs))
		return
	case cfg.Wipe:
		// InitJob wipes first when the flag is set.
		runOnce(ctx, sched, catalog, []string{"init"})
		return
	case cfg.RunReform:
		runOnce(ctx, sched, catalog, []string{"reform"})
		return
	}

	populated, err := st.HasUsers(ctx)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to inspect database state")
	}
	if !populated && !cfg.JobDisabled("init") {
		log.Info().Msg("Empty mirror, running full backfill")
		sched.Register(catalog["init"])
		if err := sched.RunAllSequential(ctx); err != nil {
			log.Fatal().Err(err).Msg("Backfill failed")
		}
	}

	// Zenith and prune run against dedicated connections so their long
	// scans never starve the shared pool.
	zenithDeps, zenithClose := dedicatedDeps(deps, cfg)
	defer zenithClose()
	pruneDeps, pruneClose := dedicatedDeps(deps, cfg)
	defer pruneClose()

	var wg sync.WaitGroup
	start := func(name string, run func()) {
		if cfg.JobDisabled(name) {
			log.Warn().Str("job", name).Msg("job disabled")
			return
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			run()
		}()
	}

	start("zenith", func() { sched.RunRecurring(ctx, jobs.NewZenithJob(zenithDeps), zenithInterval) })
	start("forge", func() { sched.RunRecurring(ctx, catalog["forge"], forgeInterval) })
	start("prune", func() { sched.RunRecurring(ctx, jobs.NewPruneJob(pruneDeps), pruneInterval) })
	start("trace", func() { sched.RunContinuous(ctx, catalog["trace"], traceInterval) })

	<-ctx.Done()
	log.Info().Msg("Received shutdown signal")
	wg.Wait()
	log.Info().Msg("Shutdown complete")
}

// runOnce executes the named jobs sequentially and exits non-zero on the
// first failure.
func runOnce(ctx context.Context, sched *jobs.Scheduler, catalog map[string]jobs.Job, names []string) {
	for _, name := range names {
		j, ok := catalog[name]
		if !ok {
			log.Fatal().Str("job", name).Msg("Unknown job")
		}
		sched.Register(j)
	}
	if err := sched.RunAllSequential(ctx); err != nil {
		log.Fatal().Err(err).Msg("Job run failed")
	}
}

// dedicatedDeps clones deps with its own database connection. Falls back
// to the shared store when the extra connection cannot be opened.
func dedicatedDeps(deps jobs.Deps, cfg config.Config) (jobs.Deps, func()) {
	st, err := store.NewDedicated(store.Config{
		DSN:      cfg.DatabaseURL,
		MaxConns: cfg.MaxDBConnections,
		LogLevel: gormLogLevel(cfg.LogLevel),
	})
	if err != nil {
		log.Warn().Err(err).Msg("Dedicated connection failed, using shared pool")
		return deps, func() {}
	}
	out := deps
	out.Store = st
	return out, func() { st.Close() }
}

// gormLogLevel maps the application log level onto GORM's. SQL is only
// echoed at debug/trace.
func gormLogLevel(level string) gormlogger.LogLevel {
	switch strings.ToLower(level) {
	case "debug", "trace":
		return gormlogger.Info
	case "warn", "error":
		return gormlogger.Error
	default:
		return gormlogger.Warn
	}
}

func splitCSV(s string) []string {
	if s == "" {
		return nil
	}
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, strings.ToLower(p))
		}
	}
	return out
}

package main

import (
	"context"
	"errors"
	"log" // Use standard log only for initial fatal errors before logger is set up
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"fvgTrader/config"
	"fvgTrader/internal/adapters/logger"
	"fvgTrader/internal/adapters/membus"
	"fvgTrader/internal/adapters/metrics"
	"fvgTrader/internal/adapters/redisbus"
	"fvgTrader/internal/adapters/sqlstore"
	"fvgTrader/internal/ports"
	"fvgTrader/internal/stage"
)

func main() {
	// 1. Load Configuration
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("FATAL: Failed to load configuration: %v", err) // Use standard log before logger is ready
	}

	// 2. Initialize Logger
	appLogger := logger.NewStdLogger(cfg.LogLevel)
	appLogger.Info(context.Background(), "Logger initialized", map[string]interface{}{"level": cfg.LogLevel.String(), "stage": cfg.Stage})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 3. Initialize Store (Database Adapter)
	store, err := sqlstore.Open(sqlstore.Config{
		Driver: cfg.DBDriver,
		DBPath: cfg.DBPath,
		DSN:    cfg.DBDSN,
		Logger: appLogger.With(map[string]interface{}{"component": "sqlstore"}),
	})
	if err != nil {
		appLogger.Error(ctx, err, "FATAL: Failed to initialize store")
		log.Fatalf("FATAL: Failed to initialize store: %v", err)
	}
	defer func() {
		if err := store.Close(); err != nil {
			appLogger.Error(context.Background(), err, "Error closing store")
		}
	}()
	appLogger.Info(ctx, "Store initialized", map[string]interface{}{"driver": cfg.DBDriver})

	// 4. Initialize Event Bus
	bus, err := openBus(ctx, cfg)
	if err != nil {
		appLogger.Error(ctx, err, "FATAL: Failed to initialize event bus")
		log.Fatalf("FATAL: Failed to initialize event bus: %v", err)
	}
	defer bus.Close()
	appLogger.Info(ctx, "Event bus initialized", map[string]interface{}{"bus": cfg.Bus})

	// 5. Initialize Metrics
	sink := metrics.NewPrometheus()
	if cfg.MetricsAddr != "" {
		go serveMetrics(ctx, cfg.MetricsAddr, sink.Handler(), appLogger)
	}

	// 6. Build Stages
	d := &deps{
		cfg:       cfg,
		logger:    appLogger,
		store:     store,
		bus:       bus,
		metrics:   sink,
		scheduler: stage.NewScheduler("main"),
	}
	g, gctx := errgroup.WithContext(ctx)
	for _, name := range cfg.StagesToRun() {
		st, err := buildStage(name, d)
		if err != nil {
			appLogger.Error(ctx, err, "FATAL: Failed to initialize stage", map[string]interface{}{"stage": name})
			log.Fatalf("FATAL: Failed to initialize stage %s: %v", name, err)
		}
		stageLogger := appLogger.With(map[string]interface{}{"stage": name})
		runner := stage.NewRunner(bus, d.scheduler, d.scheduler.NewLimiter(int64(cfg.StageConcurrency)), stageLogger, sink, stage.RunnerConfig{
			Group:    name,
			Consumer: cfg.ConsumerName + "-" + name,
		})
		st.Register(runner)
		if len(runner.Streams()) > 0 {
			g.Go(func() error { return runner.Run(gctx) })
		}
		g.Go(func() error { return st.Run(gctx) })
		appLogger.Info(ctx, "Stage started", map[string]interface{}{"stage": name, "streams": runner.Streams()})
	}

	// 7. Run until a signal arrives or a stage fails
	if err := g.Wait(); err != nil {
		var mismatch *stage.SchedulerMismatchError
		if errors.As(err, &mismatch) {
			appLogger.Error(context.Background(), err, "FATAL: Limiter used outside its scheduler")
			log.Fatalf("FATAL: %v", err)
		}
		appLogger.Error(context.Background(), err, "Stage exited with error")
		log.Fatalf("FATAL: Stage exited with error: %v", err)
	}

	appLogger.Info(context.Background(), "Application finished gracefully.")
}

func openBus(ctx context.Context, cfg *config.Config) (ports.EventBus, error) {
	if cfg.Bus == config.BusMemory {
		return membus.New(), nil
	}
	return redisbus.New(ctx, redisbus.Config{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
		MaxLen:   cfg.StreamMaxLen,
	})
}

// serveMetrics exposes the Prometheus registry on /metrics until ctx ends.
func serveMetrics(ctx context.Context, addr string, handler http.Handler, appLogger ports.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", handler)
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	appLogger.Info(ctx, "Metrics endpoint listening", map[string]interface{}{"addr": addr})
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		appLogger.Error(ctx, err, "Metrics endpoint failed")
	}
}

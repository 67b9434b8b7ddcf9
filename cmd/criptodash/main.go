package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"criptodash/internal/cache"
	"criptodash/internal/config"
	"criptodash/internal/db"
	"criptodash/internal/job"
	"criptodash/internal/provider"
	"criptodash/internal/service"
	"criptodash/internal/store"
	"criptodash/internal/tui"
	"criptodash/pkg/tracing"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/log"
	"github.com/joho/godotenv"
	"go.opentelemetry.io/otel/trace"
)

var version = "dev"

var (
	loadEnvFunc      = godotenv.Load
	loadConfigFunc   = config.Load
	initTracerFunc   = tracing.InitTracer
	initPostgresFunc = db.InitPostgres
	initRedisFunc    = cache.InitRedis
	openSQLiteFunc   = func(path string, tracer trace.Tracer) (store.Store, error) {
		return store.OpenSQLite(path, tracer)
	}
	newProviderFunc = func(tracer trace.Tracer, cfg *config.Config) service.PriceProvider {
		return provider.NewCoinGeckoProvider(tracer, cfg.API.BaseURL, cfg.RequestTimeout(), cfg.API.RateLimitPerMin)
	}
	runProgramFunc = func(p *tea.Program) error {
		_, err := p.Run()
		return err
	}
)

func main() {
	loadEnvFunc()
	if err := run(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(ctx context.Context) error {
	cfg, err := loadConfigFunc()
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	logFile, err := setupLogging(cfg)
	if err != nil {
		return err
	}
	defer logFile.Close()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	tp, tracer, err := initTracerFunc(ctx, cfg.TracingEnabled, version)
	if err != nil {
		return fmt.Errorf("init tracer: %w", err)
	}
	defer func() {
		if err := tp.Shutdown(context.Background()); err != nil {
			log.Errorf("error shutting down tracer provider: %v", err)
		}
	}()

	st, err := openStore(ctx, cfg, tracer)
	if err != nil {
		return err
	}
	defer func() {
		if err := st.Close(); err != nil {
			log.Errorf("error closing store: %v", err)
		}
	}()

	// A nil *redis.Client must not end up in the interface.
	var rc service.RedisClient
	if cfg.RedisURL != "" {
		client, err := initRedisFunc(ctx, cfg.RedisURL)
		if err != nil {
			log.Warnf("redis unavailable, continuing without cache: %v", err)
		} else {
			defer client.Close()
			rc = client
		}
	}

	svc := service.NewPriceService(tracer, newProviderFunc(tracer, cfg), st, rc, service.Config{
		Coins:          cfg.Coins,
		Fiats:          cfg.Fiats,
		MaxHistoryRows: cfg.Storage.MaxHistoryRows,
		MirrorPath:     cfg.Storage.MirrorPath,
	})

	loop := job.NewLoop(job.RealClock)
	defer loop.Stop()

	bridge := tui.NewBridge()
	model := tui.New(ctx, svc, loop, bridge, tui.Options{
		RefreshInterval: cfg.AutoRefreshInterval(),
		ChartInterval:   cfg.ChartPollInterval(),
		ExportPath:      filepath.Join(cfg.Storage.DataDir, "export.json"),
	})
	p := tea.NewProgram(model, tea.WithAltScreen(), tea.WithContext(ctx))
	bridge.Attach(p)

	log.Infof("criptodash %s started with %d coins", version, len(cfg.Coins))
	if err := runProgramFunc(p); err != nil {
		return fmt.Errorf("run ui: %w", err)
	}
	log.Info("criptodash exited")
	return nil
}

// openStore prefers Postgres when DATABASE_URL is set and falls back to
// the local SQLite file otherwise.
func openStore(ctx context.Context, cfg *config.Config, tracer trace.Tracer) (store.Store, error) {
	if cfg.DatabaseURL == "" {
		st, err := openSQLiteFunc(cfg.Storage.SQLitePath, tracer)
		if err != nil {
			return nil, fmt.Errorf("open sqlite store: %w", err)
		}
		log.Infof("using sqlite store at %s", cfg.Storage.SQLitePath)
		return st, nil
	}

	pool, err := initPostgresFunc(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	st := store.NewPostgresStore(pool, tracer)
	if err := st.EnsureSchema(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	log.Info("using postgres store")
	return st, nil
}

// setupLogging sends logs to the configured file. The terminal belongs to
// the UI.
func setupLogging(cfg *config.Config) (io.Closer, error) {
	level, err := log.ParseLevel(cfg.Log.Level)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(filepath.Dir(cfg.Log.File), 0o755); err != nil {
		return nil, fmt.Errorf("create log dir: %w", err)
	}
	f, err := os.OpenFile(cfg.Log.File, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open log file: %w", err)
	}
	log.SetOutput(f)
	log.SetLevel(level)
	log.SetReportTimestamp(true)
	return f, nil
}

package main

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"criptodash/internal/config"
	"criptodash/internal/domain"
	"criptodash/internal/service"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/log"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
)

type nopProvider struct{}

func (nopProvider) GetPrices(ctx context.Context, coinIDs, vsCurrencies []string, include24hChange bool) (map[string]map[string]float64, error) {
	return nil, errors.New("offline")
}

func (nopProvider) GetCoinDetail(ctx context.Context, coinID string) (*domain.CoinDetail, error) {
	return nil, errors.New("offline")
}

func (nopProvider) GetMarketChart(ctx context.Context, coinID, vsCurrency string, days int) ([]domain.MarketPoint, error) {
	return nil, errors.New("offline")
}

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	dir := t.TempDir()
	cfg := &config.Config{}
	cfg.Coins = []string{"bitcoin"}
	cfg.Fiats = []string{"usd", "brl"}
	cfg.Storage.DataDir = dir
	cfg.Storage.SQLitePath = filepath.Join(dir, "db", "test.db")
	cfg.Storage.MirrorPath = filepath.Join(dir, "prices.json")
	cfg.Storage.MaxHistoryRows = 100
	cfg.Log.File = filepath.Join(dir, "logs", "app.log")
	cfg.Log.Level = "debug"
	return cfg
}

// stubDeps swaps the injectable constructors for offline versions and
// returns a restore func.
func stubDeps(t *testing.T, cfg *config.Config) (ran *bool, restore func()) {
	t.Helper()
	origLoadEnv := loadEnvFunc
	origLoadConfig := loadConfigFunc
	origInitTracer := initTracerFunc
	origInitPostgres := initPostgresFunc
	origInitRedis := initRedisFunc
	origOpenSQLite := openSQLiteFunc
	origNewProvider := newProviderFunc
	origRunProgram := runProgramFunc

	ran = new(bool)
	loadEnvFunc = func(...string) error { return nil }
	loadConfigFunc = func() (*config.Config, error) { return cfg, nil }
	initTracerFunc = func(ctx context.Context, enabled bool, version string) (*sdktrace.TracerProvider, trace.Tracer, error) {
		tp := sdktrace.NewTracerProvider()
		return tp, tp.Tracer("test"), nil
	}
	newProviderFunc = func(trace.Tracer, *config.Config) service.PriceProvider { return nopProvider{} }
	runProgramFunc = func(p *tea.Program) error {
		*ran = true
		return nil
	}

	return ran, func() {
		loadEnvFunc = origLoadEnv
		loadConfigFunc = origLoadConfig
		initTracerFunc = origInitTracer
		initPostgresFunc = origInitPostgres
		initRedisFunc = origInitRedis
		openSQLiteFunc = origOpenSQLite
		newProviderFunc = origNewProvider
		runProgramFunc = origRunProgram
		log.SetOutput(os.Stderr)
	}
}

func TestRunWithSQLiteStore(t *testing.T) {
	cfg := testConfig(t)
	ran, restore := stubDeps(t, cfg)
	defer restore()

	if err := run(context.Background()); err != nil {
		t.Fatalf("run failed: %v", err)
	}
	if !*ran {
		t.Fatal("program was not started")
	}
	if _, err := os.Stat(cfg.Storage.SQLitePath); err != nil {
		t.Fatalf("expected sqlite file: %v", err)
	}
	data, err := os.ReadFile(cfg.Log.File)
	if err != nil {
		t.Fatalf("expected log file: %v", err)
	}
	if !strings.Contains(string(data), "using sqlite store") {
		t.Fatalf("unexpected log contents: %s", data)
	}
}

func TestRunContinuesWithoutRedis(t *testing.T) {
	cfg := testConfig(t)
	cfg.RedisURL = "redis://localhost:1"
	ran, restore := stubDeps(t, cfg)
	defer restore()

	initRedisFunc = func(context.Context, string) (*redis.Client, error) {
		return nil, errors.New("connection refused")
	}

	if err := run(context.Background()); err != nil {
		t.Fatalf("run failed: %v", err)
	}
	if !*ran {
		t.Fatal("program should start without redis")
	}
}

func TestRunPostgresFailure(t *testing.T) {
	cfg := testConfig(t)
	cfg.DatabaseURL = "postgres://localhost:1/none"
	ran, restore := stubDeps(t, cfg)
	defer restore()

	initPostgresFunc = func(context.Context, string) (*pgxpool.Pool, error) {
		return nil, errors.New("dial failed")
	}

	err := run(context.Background())
	if err == nil || !strings.Contains(err.Error(), "connect postgres") {
		t.Fatalf("expected postgres error, got %v", err)
	}
	if *ran {
		t.Fatal("program should not start")
	}
}

func TestRunInvalidConfig(t *testing.T) {
	cfg := testConfig(t)
	cfg.Fiats = []string{"brl"}
	ran, restore := stubDeps(t, cfg)
	defer restore()

	if err := run(context.Background()); err == nil {
		t.Fatal("expected validation error")
	}
	if *ran {
		t.Fatal("program should not start")
	}
}

func TestRunProgramError(t *testing.T) {
	cfg := testConfig(t)
	_, restore := stubDeps(t, cfg)
	defer restore()

	runProgramFunc = func(*tea.Program) error { return errors.New("no tty") }

	err := run(context.Background())
	if err == nil || !strings.Contains(err.Error(), "run ui") {
		t.Fatalf("expected ui error, got %v", err)
	}
}

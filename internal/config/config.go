package config

import (
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"gopkg.in/yaml.v3"
)

const defaultConfigPath = "config.yaml"

type Config struct {
	API struct {
		BaseURL            string `yaml:"base_url"`
		RequestTimeoutSecs int    `yaml:"request_timeout_secs"`
		RateLimitPerMin    int    `yaml:"rate_limit_per_min"`
	} `yaml:"api"`

	Coins []string `yaml:"coins"`
	Fiats []string `yaml:"fiats"`

	Refresh struct {
		AutoRefreshSecs int `yaml:"auto_refresh_secs"`
		ChartPollSecs   int `yaml:"chart_poll_secs"`
	} `yaml:"refresh"`

	Storage struct {
		DataDir        string `yaml:"data_dir"`
		SQLitePath     string `yaml:"sqlite_path"`
		MirrorPath     string `yaml:"mirror_path"`
		MaxHistoryRows int    `yaml:"max_history_rows"`
	} `yaml:"storage"`

	DatabaseURL string `yaml:"database_url"`
	RedisURL    string `yaml:"redis_url"`

	Log struct {
		File  string `yaml:"file"`
		Level string `yaml:"level"`
	} `yaml:"log"`

	TracingEnabled bool `yaml:"tracing_enabled"`
}

// Load reads the optional YAML file named by CRIPTODASH_CONFIG (default
// config.yaml), then applies environment overrides and defaults.
func Load() (*Config, error) {
	path := strings.TrimSpace(os.Getenv("CRIPTODASH_CONFIG"))
	if path == "" {
		path = defaultConfigPath
	}

	cfg := &Config{}
	data, err := os.ReadFile(path)
	if err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("read config: %w", err)
	}
	if len(data) > 0 {
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	cfg.applyEnv()
	cfg.applyDefaults()
	return cfg, nil
}

func (c *Config) applyEnv() {
	envString("API_BASE_URL", &c.API.BaseURL)
	envInt("REQUEST_TIMEOUT_SECS", &c.API.RequestTimeoutSecs)
	envInt("RATE_LIMIT_PER_MIN", &c.API.RateLimitPerMin)
	envList("COINS", &c.Coins)
	envList("FIATS", &c.Fiats)
	envInt("AUTO_REFRESH_SECS", &c.Refresh.AutoRefreshSecs)
	envInt("CHART_POLL_SECS", &c.Refresh.ChartPollSecs)
	envString("DATA_DIR", &c.Storage.DataDir)
	envString("SQLITE_PATH", &c.Storage.SQLitePath)
	envString("MIRROR_PATH", &c.Storage.MirrorPath)
	envInt("MAX_HISTORY_ROWS", &c.Storage.MaxHistoryRows)
	envString("DATABASE_URL", &c.DatabaseURL)
	envString("REDIS_URL", &c.RedisURL)
	envString("LOG_FILE", &c.Log.File)
	envString("LOG_LEVEL", &c.Log.Level)
	if v := strings.TrimSpace(os.Getenv("TRACING_ENABLED")); v != "" {
		c.TracingEnabled = strings.EqualFold(v, "true")
	}
}

func (c *Config) applyDefaults() {
	if c.API.BaseURL == "" {
		c.API.BaseURL = "https://api.coingecko.com/api/v3"
	}
	if c.API.RequestTimeoutSecs <= 0 {
		c.API.RequestTimeoutSecs = 10
	}
	if c.API.RateLimitPerMin <= 0 {
		c.API.RateLimitPerMin = 10
	}
	if len(c.Coins) == 0 {
		c.Coins = []string{"bitcoin", "ethereum", "dogecoin", "litecoin", "ripple"}
	}
	if len(c.Fiats) == 0 {
		c.Fiats = []string{"usd", "brl"}
	}
	if c.Refresh.AutoRefreshSecs <= 0 {
		c.Refresh.AutoRefreshSecs = 10
	}
	if c.Refresh.ChartPollSecs <= 0 {
		c.Refresh.ChartPollSecs = 10
	}
	if c.Storage.DataDir == "" {
		c.Storage.DataDir = "data"
	}
	if c.Storage.SQLitePath == "" {
		c.Storage.SQLitePath = filepath.Join(c.Storage.DataDir, "cryptodash.db")
	}
	if c.Storage.MirrorPath == "" {
		c.Storage.MirrorPath = filepath.Join(c.Storage.DataDir, "prices.json")
	}
	if c.Storage.MaxHistoryRows <= 0 {
		c.Storage.MaxHistoryRows = 5000
	}
	if c.Log.File == "" {
		c.Log.File = filepath.Join(c.Storage.DataDir, "app.log")
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.DatabaseURL == "" {
		log.Debug("DATABASE_URL not set, using local sqlite store")
	}
}

// Validate checks the values the dashboard cannot run without.
func (c *Config) Validate() error {
	if !slices.Contains(c.Fiats, "usd") {
		return fmt.Errorf("fiats must include usd, got %v", c.Fiats)
	}
	if _, err := log.ParseLevel(c.Log.Level); err != nil {
		return fmt.Errorf("log level: %w", err)
	}
	return nil
}

func (c *Config) RequestTimeout() time.Duration {
	return time.Duration(c.API.RequestTimeoutSecs) * time.Second
}

func (c *Config) AutoRefreshInterval() time.Duration {
	return time.Duration(c.Refresh.AutoRefreshSecs) * time.Second
}

func (c *Config) ChartPollInterval() time.Duration {
	return time.Duration(c.Refresh.ChartPollSecs) * time.Second
}

func envString(key string, dst *string) {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		*dst = v
	}
}

// envInt keeps dst when the variable is unset or not a positive integer.
func envInt(key string, dst *int) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		log.Warnf("ignoring %s=%q", key, v)
		return
	}
	*dst = n
}

func envList(key string, dst *[]string) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return
	}
	var out []string
	for _, part := range strings.Split(v, ",") {
		if part = strings.ToLower(strings.TrimSpace(part)); part != "" {
			out = append(out, part)
		}
	}
	if len(out) > 0 {
		*dst = out
	}
}

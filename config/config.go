package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"fvgTrader/internal/adapters/logger"
	"fvgTrader/internal/domain"
)

// Stage names accepted in STAGE.
const (
	StageAll         = "all"
	StageScreener    = "screener"
	StageCollector   = "collector"
	StageAnalysis    = "analysis"
	StagePortfolio   = "portfolio"
	StageExecution   = "execution"
	StageTracker     = "tracker"
	StageJournal     = "journal"
	StagePerformance = "performance"
)

// Stages lists every single stage in pipeline order.
var Stages = []string{
	StageScreener, StageCollector, StageAnalysis, StagePortfolio,
	StageExecution, StageTracker, StageJournal, StagePerformance,
}

// Event bus backends accepted in BUS.
const (
	BusRedis  = "redis"
	BusMemory = "memory"
)

// Config holds all application configuration.
type Config struct {
	Stage    string
	LogLevel logger.LogLevel

	// Database
	DBDriver string // sqlite3 or postgres
	DBPath   string
	DBDSN    string

	// Event bus
	Bus              string
	RedisAddr        string
	RedisPassword    string
	RedisDB          int
	StreamMaxLen     int64
	ConsumerName     string
	StageConcurrency int

	// Timeframes
	HTFTimeframe string
	LTFTimeframe string
	HTFLookback  time.Duration
	LTFLookback  time.Duration

	// Loop intervals
	FetchInterval       time.Duration
	ScreenInterval      time.Duration
	MonitorInterval     time.Duration
	ExpirySweepInterval time.Duration
	FVGExpiry           time.Duration
	PerformanceInterval time.Duration

	// Retries around candle fetches
	RetryMaxAttempts int
	RetryMinDelay    time.Duration
	RetryMaxDelay    time.Duration

	// Sizing
	SizingMode          domain.SizingMode
	FixedNotionalUSD    float64
	AccountBalance      float64
	MaxRiskPct          float64
	QtyPrecision        int
	MinQtyCrypto        float64
	MinQtyEquity        float64
	CryptoQuoteSuffixes []string

	// Binance API
	APIKey    string
	SecretKey string
	IsTestnet bool

	// Screening
	ScreenQuoteAsset      string
	ScreenMinQuoteVolume  float64
	ScreenMinAbsChangePct float64
	ScreenMaxSymbols      int
	StaticSymbols         []string

	MetricsAddr string // "off" disables the /metrics endpoint

	StrategyParamsFile string
	Strategy           StrategyParams
}

// LoadConfig loads configuration from environment variables (.env file).
func LoadConfig() (*Config, error) {
	// Load .env file, but don't fail if it doesn't exist (allow pure env vars)
	_ = godotenv.Load()

	cfg := &Config{}
	var err error
	var errs []string // Collect validation errors

	cfg.Stage = strings.ToLower(getEnv("STAGE", StageAll))
	if !validStage(cfg.Stage) {
		errs = append(errs, fmt.Sprintf("STAGE must be one of %s or %s, got %q", strings.Join(Stages, ", "), StageAll, cfg.Stage))
	}
	cfg.LogLevel = logger.ParseLevel(getEnv("LOG_LEVEL", "INFO"))

	// Database
	cfg.DBDriver = getEnv("DB_DRIVER", "sqlite3")
	cfg.DBPath = getEnv("DB_PATH", "./data/fvg_trader.db")
	cfg.DBDSN = getEnv("DB_DSN", "")
	switch cfg.DBDriver {
	case "sqlite3":
		if cfg.DBPath == "" {
			errs = append(errs, "DB_PATH must be set for sqlite3")
		}
	case "postgres":
		if cfg.DBDSN == "" {
			errs = append(errs, "DB_DSN must be set for postgres")
		}
	default:
		errs = append(errs, fmt.Sprintf("DB_DRIVER must be sqlite3 or postgres, got %q", cfg.DBDriver))
	}

	// Event bus. A single process can share an in-memory bus; separate
	// stage processes need Redis.
	defaultBus := BusRedis
	if cfg.Stage == StageAll {
		defaultBus = BusMemory
	}
	cfg.Bus = strings.ToLower(getEnv("BUS", defaultBus))
	switch cfg.Bus {
	case BusRedis:
	case BusMemory:
		if cfg.Stage != StageAll {
			errs = append(errs, "BUS=memory only works with STAGE=all")
		}
	default:
		errs = append(errs, fmt.Sprintf("BUS must be redis or memory, got %q", cfg.Bus))
	}
	cfg.RedisAddr = getEnv("REDIS_ADDR", "localhost:6379")
	cfg.RedisPassword = getEnv("REDIS_PASSWORD", "")
	cfg.RedisDB, err = getEnvAsIntRequired("REDIS_DB", 0)
	if err != nil {
		errs = append(errs, fmt.Sprintf("invalid REDIS_DB: %v", err))
	}
	maxLen, err := getEnvAsIntRequired("STREAM_MAX_LEN", 100000)
	if err != nil {
		errs = append(errs, fmt.Sprintf("invalid STREAM_MAX_LEN: %v", err))
	} else if maxLen < 0 {
		errs = append(errs, "STREAM_MAX_LEN cannot be negative")
	}
	cfg.StreamMaxLen = int64(maxLen)
	cfg.ConsumerName = getEnv("CONSUMER_NAME", defaultConsumerName())
	cfg.StageConcurrency, err = getEnvAsIntRequired("STAGE_CONCURRENCY", 4)
	if err != nil {
		errs = append(errs, fmt.Sprintf("invalid STAGE_CONCURRENCY: %v", err))
	} else if cfg.StageConcurrency <= 0 {
		errs = append(errs, "STAGE_CONCURRENCY must be positive")
	}

	// Timeframes
	cfg.HTFTimeframe = getEnv("HTF_TIMEFRAME", "1h")
	cfg.LTFTimeframe = getEnv("LTF_TIMEFRAME", "5m")
	if cfg.HTFTimeframe == cfg.LTFTimeframe {
		errs = append(errs, "HTF_TIMEFRAME and LTF_TIMEFRAME must differ")
	}
	htfDays, err := getEnvAsIntRequired("HTF_LOOKBACK_DAYS", 30)
	if err != nil {
		errs = append(errs, fmt.Sprintf("invalid HTF_LOOKBACK_DAYS: %v", err))
	} else if htfDays <= 0 {
		errs = append(errs, "HTF_LOOKBACK_DAYS must be positive")
	}
	cfg.HTFLookback = time.Duration(htfDays) * 24 * time.Hour
	ltfDays, err := getEnvAsIntRequired("LTF_LOOKBACK_DAYS", 3)
	if err != nil {
		errs = append(errs, fmt.Sprintf("invalid LTF_LOOKBACK_DAYS: %v", err))
	} else if ltfDays <= 0 {
		errs = append(errs, "LTF_LOOKBACK_DAYS must be positive")
	}
	cfg.LTFLookback = time.Duration(ltfDays) * 24 * time.Hour

	// Loop intervals
	durations := []struct {
		key  string
		def  time.Duration
		dest *time.Duration
	}{
		{"FETCH_INTERVAL", 5 * time.Minute, &cfg.FetchInterval},
		{"SCREEN_INTERVAL", 4 * time.Hour, &cfg.ScreenInterval},
		{"MONITOR_INTERVAL", 30 * time.Second, &cfg.MonitorInterval},
		{"EXPIRY_SWEEP_INTERVAL", time.Hour, &cfg.ExpirySweepInterval},
		{"FVG_EXPIRY", 120 * time.Hour, &cfg.FVGExpiry},
		{"PERFORMANCE_INTERVAL", time.Hour, &cfg.PerformanceInterval},
		{"RETRY_MIN_DELAY", 2 * time.Second, &cfg.RetryMinDelay},
		{"RETRY_MAX_DELAY", 10 * time.Second, &cfg.RetryMaxDelay},
	}
	for _, d := range durations {
		v, err := getEnvAsDurationRequired(d.key, d.def)
		if err != nil {
			errs = append(errs, fmt.Sprintf("invalid %s: %v", d.key, err))
			continue
		}
		if v <= 0 {
			errs = append(errs, d.key+" must be positive")
		}
		*d.dest = v
	}
	if cfg.RetryMinDelay > cfg.RetryMaxDelay {
		errs = append(errs, "RETRY_MIN_DELAY must not exceed RETRY_MAX_DELAY")
	}
	cfg.RetryMaxAttempts, err = getEnvAsIntRequired("RETRY_MAX_ATTEMPTS", 3)
	if err != nil {
		errs = append(errs, fmt.Sprintf("invalid RETRY_MAX_ATTEMPTS: %v", err))
	} else if cfg.RetryMaxAttempts <= 0 {
		errs = append(errs, "RETRY_MAX_ATTEMPTS must be positive")
	}

	// Sizing
	cfg.SizingMode = domain.SizingMode(strings.ToLower(getEnv("SIZING_MODE", string(domain.ModeDevelopment))))
	if cfg.SizingMode != domain.ModeDevelopment && cfg.SizingMode != domain.ModeProduction {
		errs = append(errs, fmt.Sprintf("SIZING_MODE must be development or production, got %q", cfg.SizingMode))
	}
	cfg.FixedNotionalUSD, err = getEnvAsFloatRequired("FIXED_NOTIONAL_USD", 100)
	if err != nil {
		errs = append(errs, fmt.Sprintf("invalid FIXED_NOTIONAL_USD: %v", err))
	} else if cfg.FixedNotionalUSD <= 0 {
		errs = append(errs, "FIXED_NOTIONAL_USD must be positive")
	}
	cfg.AccountBalance, err = getEnvAsFloatRequired("ACCOUNT_BALANCE", 10000)
	if err != nil {
		errs = append(errs, fmt.Sprintf("invalid ACCOUNT_BALANCE: %v", err))
	} else if cfg.AccountBalance <= 0 {
		errs = append(errs, "ACCOUNT_BALANCE must be positive")
	}
	cfg.MaxRiskPct, err = getEnvAsFloatRequired("MAX_RISK_PCT", 0.01)
	if err != nil {
		errs = append(errs, fmt.Sprintf("invalid MAX_RISK_PCT: %v", err))
	} else if cfg.MaxRiskPct <= 0 || cfg.MaxRiskPct >= 1.0 {
		errs = append(errs, "MAX_RISK_PCT must be between 0.0 and 1.0 (exclusive)")
	}
	cfg.QtyPrecision, err = getEnvAsIntRequired("QTY_PRECISION", 3)
	if err != nil {
		errs = append(errs, fmt.Sprintf("invalid QTY_PRECISION: %v", err))
	} else if cfg.QtyPrecision < 0 {
		errs = append(errs, "QTY_PRECISION cannot be negative")
	}
	cfg.MinQtyCrypto, err = getEnvAsFloatRequired("MIN_QTY_CRYPTO", 0.001)
	if err != nil {
		errs = append(errs, fmt.Sprintf("invalid MIN_QTY_CRYPTO: %v", err))
	} else if cfg.MinQtyCrypto < 0 {
		errs = append(errs, "MIN_QTY_CRYPTO cannot be negative")
	}
	cfg.MinQtyEquity, err = getEnvAsFloatRequired("MIN_QTY_EQUITY", 1)
	if err != nil {
		errs = append(errs, fmt.Sprintf("invalid MIN_QTY_EQUITY: %v", err))
	} else if cfg.MinQtyEquity < 0 {
		errs = append(errs, "MIN_QTY_EQUITY cannot be negative")
	}
	cfg.CryptoQuoteSuffixes = getEnvAsList("CRYPTO_QUOTE_SUFFIXES", []string{"USDT", "USDC"})

	// Binance API. Candles and screening use public endpoints, so keys are optional.
	cfg.APIKey = getEnv("BINANCE_API_KEY", "")
	cfg.SecretKey = getEnv("BINANCE_API_SECRET", "")
	cfg.IsTestnet = getEnvAsBool("IS_TESTNET", false)

	// Screening
	cfg.ScreenQuoteAsset = strings.ToUpper(getEnv("SCREEN_QUOTE_ASSET", "USDT"))
	cfg.ScreenMinQuoteVolume, err = getEnvAsFloatRequired("SCREEN_MIN_QUOTE_VOLUME", 50_000_000)
	if err != nil {
		errs = append(errs, fmt.Sprintf("invalid SCREEN_MIN_QUOTE_VOLUME: %v", err))
	} else if cfg.ScreenMinQuoteVolume < 0 {
		errs = append(errs, "SCREEN_MIN_QUOTE_VOLUME cannot be negative")
	}
	cfg.ScreenMinAbsChangePct, err = getEnvAsFloatRequired("SCREEN_MIN_ABS_CHANGE_PCT", 1.0)
	if err != nil {
		errs = append(errs, fmt.Sprintf("invalid SCREEN_MIN_ABS_CHANGE_PCT: %v", err))
	} else if cfg.ScreenMinAbsChangePct < 0 {
		errs = append(errs, "SCREEN_MIN_ABS_CHANGE_PCT cannot be negative")
	}
	cfg.ScreenMaxSymbols, err = getEnvAsIntRequired("SCREEN_MAX_SYMBOLS", 20)
	if err != nil {
		errs = append(errs, fmt.Sprintf("invalid SCREEN_MAX_SYMBOLS: %v", err))
	} else if cfg.ScreenMaxSymbols < 0 {
		errs = append(errs, "SCREEN_MAX_SYMBOLS cannot be negative")
	}
	cfg.StaticSymbols = getEnvAsList("STATIC_SYMBOLS", nil)
	for i, s := range cfg.StaticSymbols {
		cfg.StaticSymbols[i] = strings.ToUpper(s)
	}

	cfg.MetricsAddr = getEnv("METRICS_ADDR", ":9090")
	if strings.EqualFold(cfg.MetricsAddr, "off") {
		cfg.MetricsAddr = ""
	}

	// Strategy parameters
	cfg.StrategyParamsFile = getEnv("STRATEGY_PARAMS_FILE", "")
	cfg.Strategy = DefaultStrategyParams()
	if cfg.StrategyParamsFile != "" {
		params, err := LoadStrategyParams(cfg.StrategyParamsFile)
		if err != nil {
			errs = append(errs, err.Error())
		} else {
			cfg.Strategy = params
		}
	}

	// Combine validation errors
	if len(errs) > 0 {
		return nil, fmt.Errorf("configuration validation failed: %s", strings.Join(errs, "; "))
	}

	return cfg, nil
}

// StagesToRun expands STAGE into the stages this process runs.
func (c *Config) StagesToRun() []string {
	if c.Stage == StageAll {
		return append([]string(nil), Stages...)
	}
	return []string{c.Stage}
}

func validStage(s string) bool {
	if s == StageAll {
		return true
	}
	for _, name := range Stages {
		if s == name {
			return true
		}
	}
	return false
}

func defaultConsumerName() string {
	host, err := os.Hostname()
	if err != nil || host == "" {
		return fmt.Sprintf("consumer-%d", os.Getpid())
	}
	return host
}

// --- Env Var Helpers ---

func getEnv(key, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}

func getEnvAsIntRequired(key string, defaultValue int) (int, error) {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		// Use default if env var is not set at all
		return defaultValue, nil
	}
	value, err := strconv.Atoi(valueStr)
	if err != nil {
		// Return error if env var is set but invalid
		return 0, fmt.Errorf("invalid integer value '%s' for key %s: %w", valueStr, key, err)
	}
	return value, nil
}

func getEnvAsFloatRequired(key string, defaultValue float64) (float64, error) {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue, nil
	}
	value, err := strconv.ParseFloat(valueStr, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid float value '%s' for key %s: %w", valueStr, key, err)
	}
	return value, nil
}

func getEnvAsDurationRequired(key string, defaultValue time.Duration) (time.Duration, error) {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue, nil
	}
	value, err := time.ParseDuration(valueStr)
	if err != nil {
		return 0, fmt.Errorf("invalid duration value '%s' for key %s: %w", valueStr, key, err)
	}
	return value, nil
}

func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.ParseBool(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

// getEnvAsList splits a comma-separated value, dropping empty items.
func getEnvAsList(key string, defaultValue []string) []string {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	var out []string
	for _, part := range strings.Split(valueStr, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

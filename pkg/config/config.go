package config

import (
    "flag"
    "fmt"
    "os"
    "strconv"
    "strings"
    "time"

    "github.com/joho/godotenv"
)

// Config is built once in main() and passed into every component
// explicitly; nothing below pkg/config reads the process environment.
type Config struct {
    Environment string
    Debug       bool

    // Upstream market-data provider.
    AlphaVantageAPIKey  string
    AlphaVantageBaseURL string
    APITimeout          time.Duration

    // Collector service listen address and the base URL the scheduler
    // uses to reach it.
    CollectorHost string
    CollectorPort int
    CollectorURL  string

    RefreshInterval time.Duration

    DatabaseURL string
    RedisURL    string

    JWTSecret   string
    WebPort     int
    MetricsPort int

    VersionFile string
    LogFile     string
}

// Load reads a .env file (if present), environment variables and
// application flags (via a local FlagSet), strips out any -test.* flags,
// and fills in defaults. Per-process required fields are checked by the
// Validate* helpers so one Config type can serve all three binaries.
func Load() (*Config, error) {
    // .env is optional; real env vars win over file entries.
    _ = godotenv.Load()

    // Build a fresh FlagSet so we don't collide with `go test` flags
    fs := flag.NewFlagSet("config", flag.ContinueOnError)

    var collectorPort int
    var collectorURL string
    var redisURL string
    var interval time.Duration
    fs.IntVar(&collectorPort, "port", getEnvIntOrDefault("COLLECTOR_PORT", 5001), "collector service listen port")
    fs.StringVar(&collectorURL, "collector", getEnvOrDefault("COLLECTOR_URL", "http://127.0.0.1:5001"), "collector service base URL")
    fs.StringVar(&redisURL, "redis", os.Getenv("REDIS_URL"), "Redis connection URL")
    fs.DurationVar(&interval, "interval", getDurationEnvOrDefault("REFRESH_INTERVAL", 12*time.Hour), "symbol refresh interval")

    // Filter out any -test.* args before parsing
    var appArgs []string
    for _, arg := range os.Args[1:] {
        if strings.HasPrefix(arg, "-test.") {
            continue
        }
        appArgs = append(appArgs, arg)
    }
    if err := fs.Parse(appArgs); err != nil {
        return nil, err
    }

    cfg := &Config{
        Environment: getEnvOrDefault("ENVIRONMENT", "development"),
        Debug:       getBoolEnv("DEBUG", false),

        AlphaVantageAPIKey:  os.Getenv("ALPHAVANTAGE_API_KEY"),
        AlphaVantageBaseURL: getEnvOrDefault("ALPHAVANTAGE_BASE_URL", "https://www.alphavantage.co/query"),
        APITimeout:          time.Duration(getEnvIntOrDefault("API_TIMEOUT", 10)) * time.Second,

        CollectorHost: getEnvOrDefault("COLLECTOR_HOST", "0.0.0.0"),
        CollectorPort: collectorPort,
        CollectorURL:  strings.TrimRight(collectorURL, "/"),

        RefreshInterval: interval,

        DatabaseURL: os.Getenv("DATABASE_URL"),
        RedisURL:    redisURL,

        JWTSecret:   os.Getenv("JWT_SECRET"),
        WebPort:     getEnvIntOrDefault("WEB_PORT", 8080),
        MetricsPort: getEnvIntOrDefault("METRICS_PORT", 8082),

        VersionFile: getEnvOrDefault("VERSION_FILE", "version.txt"),
        LogFile:     getEnvOrDefault("LOG_FILE", "log.txt"),
    }

    if cfg.RefreshInterval <= 0 {
        return nil, fmt.Errorf("refresh interval must be positive, got %s", cfg.RefreshInterval)
    }

    return cfg, nil
}

// ValidateCollector checks the fields the collector binary cannot run without.
func (c *Config) ValidateCollector() error {
    if c.AlphaVantageAPIKey == "" {
        return fmt.Errorf("missing required config: ALPHAVANTAGE_API_KEY")
    }
    return nil
}

// ValidateScheduler checks the fields the scheduler binary cannot run without.
func (c *Config) ValidateScheduler() error {
    if c.CollectorURL == "" {
        return fmt.Errorf("missing required config: COLLECTOR_URL or -collector")
    }
    return nil
}

// ValidateWeb checks the fields the web binary cannot run without.
func (c *Config) ValidateWeb() error {
    if c.JWTSecret == "" {
        return fmt.Errorf("missing required config: JWT_SECRET")
    }
    return nil
}

// getEnvOrDefault returns environment variable value or default
func getEnvOrDefault(key, defaultValue string) string {
    if value := os.Getenv(key); value != "" {
        return value
    }
    return defaultValue
}

// getEnvIntOrDefault returns environment variable as int or default
func getEnvIntOrDefault(key string, defaultValue int) int {
    if value := os.Getenv(key); value != "" {
        if parsed, err := strconv.Atoi(value); err == nil {
            return parsed
        }
    }
    return defaultValue
}

// getDurationEnvOrDefault returns environment variable as duration or default
func getDurationEnvOrDefault(key string, defaultValue time.Duration) time.Duration {
    if value := os.Getenv(key); value != "" {
        if duration, err := time.ParseDuration(value); err == nil {
            return duration
        }
    }
    return defaultValue
}

// getBoolEnv mirrors the truthy/falsy strings the shell scripts use.
func getBoolEnv(key string, defaultValue bool) bool {
    switch strings.ToLower(os.Getenv(key)) {
    case "true", "1", "yes", "on":
        return true
    case "false", "0", "no", "off":
        return false
    }
    return defaultValue
}

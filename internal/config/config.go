package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/robfig/cron/v3"

	"flusso/internal/log"
)

// EnvConfigPath names the variable holding the config file path when no
// explicit path is given.
const EnvConfigPath = "FLUSSO_CONFIG"

var validBackends = []string{"memory", "sqlite"}

type Config struct {
	// HTTP server
	Port string `toml:"port"`

	// Ledger source
	DataBackend  string `toml:"data_backend"`
	SQLiteDBPath string `toml:"sqlite_db_path"`
	LedgerFile   string `toml:"ledger_file"`

	// AMQP
	AMQPURL      string `toml:"amqp_url"`
	AMQPExchange string `toml:"amqp_exchange"`
	AMQPQueue    string `toml:"amqp_queue"`

	// Projection
	HorizonDays int    `toml:"horizon_days"`
	Timezone    string `toml:"timezone"`
	RefreshCron string `toml:"refresh_cron"`

	// Cache
	CacheSize int      `toml:"cache_size"`
	CacheTTL  Duration `toml:"cache_ttl"`

	LogLevel string `toml:"log_level"`
}

// Duration lets TOML files write durations as strings ("5m").
type Duration struct {
	time.Duration
}

func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	d.Duration = v
	return nil
}

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// Default returns the configuration used when nothing is set.
func Default() *Config {
	return &Config{
		Port:         "8081",
		DataBackend:  "sqlite",
		SQLiteDBPath: "./data/flusso.db",
		AMQPExchange: "flusso",
		AMQPQueue:    "forecast_requests",
		HorizonDays:  90,
		Timezone:     "UTC",
		RefreshCron:  "0 0 5 * * *",
		CacheSize:    128,
		CacheTTL:     Duration{5 * time.Minute},
		LogLevel:     "info",
	}
}

// Load builds the configuration from defaults, then the TOML file at path
// (or $FLUSSO_CONFIG), then environment variables.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path == "" {
		path = os.Getenv(EnvConfigPath)
	}
	if path != "" {
		if _, err := toml.DecodeFile(path, cfg); err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	cfg.applyEnv()
	return cfg, nil
}

func (c *Config) applyEnv() {
	c.Port = getEnv("PORT", c.Port)
	c.SQLiteDBPath = getEnv("SQLITE_DB_PATH", c.SQLiteDBPath)
	c.DataBackend = getEnv("DATA_BACKEND", c.DataBackend)
	c.LedgerFile = getEnv("LEDGER_FILE", c.LedgerFile)

	c.AMQPURL = getEnv("AMQP_URL", c.AMQPURL)
	c.AMQPExchange = getEnv("AMQP_EXCHANGE", c.AMQPExchange)
	c.AMQPQueue = getEnv("AMQP_QUEUE", c.AMQPQueue)

	c.HorizonDays = getEnvInt("HORIZON_DAYS", c.HorizonDays)
	c.Timezone = getEnv("TIMEZONE", c.Timezone)
	c.RefreshCron = getEnv("REFRESH_CRON", c.RefreshCron)

	c.CacheSize = getEnvInt("CACHE_SIZE", c.CacheSize)
	c.CacheTTL.Duration = getEnvDuration("CACHE_TTL", c.CacheTTL.Duration)

	c.LogLevel = getEnv("LOG_LEVEL", c.LogLevel)
}

// Location resolves Timezone. Validate reports a bad name; here it falls
// back to UTC.
func (c *Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// Validate validates the configuration and returns an error if invalid
func (c *Config) Validate() error {
	var errs []string

	if port, err := strconv.Atoi(c.Port); err != nil {
		errs = append(errs, fmt.Sprintf("invalid port '%s': must be a number", c.Port))
	} else if port < 1 || port > 65535 {
		errs = append(errs, fmt.Sprintf("invalid port %d: must be between 1 and 65535", port))
	}

	if !slices.Contains(validBackends, c.DataBackend) {
		errs = append(errs, fmt.Sprintf("invalid data backend '%s': must be one of %v", c.DataBackend, validBackends))
	}

	switch c.DataBackend {
	case "sqlite":
		if c.SQLiteDBPath == "" {
			errs = append(errs, "SQLite database path cannot be empty when using sqlite backend")
		} else if dir := filepath.Dir(c.SQLiteDBPath); dir != "." && dir != "" {
			if _, err := os.Stat(dir); os.IsNotExist(err) {
				if err := os.MkdirAll(dir, 0755); err != nil {
					errs = append(errs, fmt.Sprintf("cannot create SQLite database directory '%s': %v", dir, err))
				}
			}
		}
	case "memory":
		if c.LedgerFile != "" {
			if _, err := os.Stat(c.LedgerFile); err != nil {
				errs = append(errs, fmt.Sprintf("ledger file does not exist: %s", c.LedgerFile))
			}
		}
	}

	if c.AMQPURL != "" {
		if parsedURL, err := url.Parse(c.AMQPURL); err != nil {
			errs = append(errs, fmt.Sprintf("invalid AMQP URL '%s': %v", c.AMQPURL, err))
		} else if parsedURL.Scheme != "amqp" && parsedURL.Scheme != "amqps" {
			errs = append(errs, fmt.Sprintf("invalid AMQP URL scheme '%s': must be 'amqp' or 'amqps'", parsedURL.Scheme))
		}
		if c.AMQPExchange == "" {
			errs = append(errs, "AMQP exchange name cannot be empty when AMQP URL is provided")
		}
		if c.AMQPQueue == "" {
			errs = append(errs, "AMQP queue name cannot be empty when AMQP URL is provided")
		}
	}

	if c.HorizonDays < 0 {
		errs = append(errs, fmt.Sprintf("invalid horizon %d: must not be negative", c.HorizonDays))
	} else if c.HorizonDays > 3660 {
		errs = append(errs, fmt.Sprintf("invalid horizon %d: must be at most 3660 days", c.HorizonDays))
	}

	if _, err := time.LoadLocation(c.Timezone); err != nil {
		errs = append(errs, fmt.Sprintf("invalid timezone '%s': %v", c.Timezone, err))
	}

	if c.RefreshCron != "" {
		if _, err := CronParser.Parse(c.RefreshCron); err != nil {
			errs = append(errs, fmt.Sprintf("invalid refresh cron '%s': %v", c.RefreshCron, err))
		}
	}

	if c.CacheSize < 1 {
		errs = append(errs, fmt.Sprintf("invalid cache size %d: must be at least 1", c.CacheSize))
	}
	if c.CacheTTL.Duration < time.Second {
		errs = append(errs, fmt.Sprintf("invalid cache ttl %v: must be at least 1 second", c.CacheTTL.Duration))
	}

	if _, err := log.ParseLevel(c.LogLevel); err != nil {
		errs = append(errs, err.Error())
	}

	if len(errs) > 0 {
		return errors.New("configuration validation failed:\n- " + strings.Join(errs, "\n- "))
	}
	return nil
}

// CronParser accepts six-field specs with a leading seconds field.
var CronParser = cron.NewParser(cron.Second | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}

// Package config loads and validates app config from env, an optional .env file and CLI flags
// using Viper.
package config

import (
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"
	_ "time/tzdata"

	"github.com/lmittmann/tint"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/shadayguerrero/sedatu/internal/od"
)

// Ping sources.
const (
	SourceParquet  = "parquet"
	SourcePostgres = "postgres"
)

// Config holds application configuration.
type Config struct {
	// Date is the first date to build (YYYY-MM-DD).
	Date string `mapstructure:"DATE"`
	// DateEnd is the last date, inclusive. Empty means Date only.
	DateEnd string `mapstructure:"DATE_END"`
	// Variant selects the network variant (od_cvegeo, od_municipio_all, red_municipal).
	Variant string `mapstructure:"VARIANT"`
	// TimeWindow is an explicit HH:MM-HH:MM window replacing the fixed bands.
	TimeWindow string `mapstructure:"TIME_WINDOW"`
	// DwellSeconds is the minimum stay; a transition must exceed it.
	DwellSeconds int64 `mapstructure:"DWELL_SECONDS"`

	// PingSource is parquet or postgres.
	PingSource string `mapstructure:"PING_SOURCE"`
	// DatasetRoot is the root of the Hive-partitioned parquet dataset.
	DatasetRoot string `mapstructure:"DATASET_ROOT"`
	// DatabaseURL is the Postgres DSN for the postgres source and the run ledger.
	DatabaseURL string `mapstructure:"DATABASE_URL"`
	// LocationFile is the CSV zone allowlist.
	LocationFile string `mapstructure:"LOCATION_FILE"`
	// LocationColumn is the allowlist column holding zone codes.
	LocationColumn string `mapstructure:"LOCATION_COLUMN"`

	OutputDir    string `mapstructure:"OUTPUT_DIR"`
	OutputSuffix string `mapstructure:"OUTPUT_SUFFIX"`

	// Timezone anchors the bands on each calendar day (IANA name).
	Timezone     string `mapstructure:"TIMEZONE"`
	Workers      int    `mapstructure:"WORKERS"`
	BandWorkers  int    `mapstructure:"BAND_WORKERS"`
	FetchTimeout string `mapstructure:"FETCH_TIMEOUT"`
	WriteTimeout string `mapstructure:"WRITE_TIMEOUT"`

	// KafkaBrokers is a comma-separated list of brokers. When set, unit summaries are published.
	KafkaBrokers      string `mapstructure:"KAFKA_BROKERS"`
	NetworkKafkaTopic string `mapstructure:"NETWORK_KAFKA_TOPIC"`
	// Worker-only.
	KafkaGroupID string `mapstructure:"KAFKA_GROUP_ID"`
	LokiURL      string `mapstructure:"LOKI_URL"`

	OTLPEndpoint       string `mapstructure:"OTEL_EXPORTER_OTLP_ENDPOINT"`
	OTLPInsecure       bool   `mapstructure:"OTEL_EXPORTER_OTLP_INSECURE"`
	PromPushgatewayURL string `mapstructure:"PROM_PUSHGATEWAY_URL"`

	LogLevel  string `mapstructure:"LOG_LEVEL"`
	LogFormat string `mapstructure:"LOG_FORMAT"`

	dwellSet bool
}

// flagKeys maps CLI flag names to config keys.
var flagKeys = map[string]string{
	"date":            "DATE",
	"date-end":        "DATE_END",
	"variant":         "VARIANT",
	"time":            "TIME_WINDOW",
	"dwell":           "DWELL_SECONDS",
	"source":          "PING_SOURCE",
	"dataset":         "DATASET_ROOT",
	"location":        "LOCATION_FILE",
	"location-column": "LOCATION_COLUMN",
	"output":          "OUTPUT_DIR",
	"suffix":          "OUTPUT_SUFFIX",
	"timezone":        "TIMEZONE",
	"workers":         "WORKERS",
	"band-workers":    "BAND_WORKERS",
	"log-level":       "LOG_LEVEL",
}

// RegisterFlags adds the network run flags to fs. Defaults live in Load, so flags only
// override when set.
func RegisterFlags(fs *pflag.FlagSet) {
	fs.StringP("date", "d", "", "first date to build (YYYY-MM-DD)")
	fs.StringP("date-end", "D", "", "last date to build, inclusive (YYYY-MM-DD)")
	fs.String("variant", "", "network variant: od_cvegeo, od_municipio_all or red_municipal")
	fs.StringP("time", "t", "", "single window HH:MM-HH:MM instead of the fixed bands")
	fs.Int64P("dwell", "w", 0, "minimum stay in seconds; transitions must exceed it")
	fs.String("source", "", "ping source: parquet or postgres")
	fs.StringP("dataset", "b", "", "root of the partitioned parquet dataset")
	fs.StringP("location", "l", "", "CSV allowlist of zone codes")
	fs.String("location-column", "", "allowlist column holding zone codes")
	fs.StringP("output", "o", "", "output directory")
	fs.StringP("suffix", "s", "", "output file name prefix")
	fs.String("timezone", "", "IANA time zone the bands are anchored in")
	fs.Int("workers", 0, "dates built concurrently")
	fs.Int("band-workers", 0, "bands of one date built concurrently")
	fs.String("log-level", "", "debug, info, warn or error")
}

// Load reads .env (if present), the environment, and then any flags of fs that were set.
// fs may be nil. Missing .env is ignored. Returns an error if a field is invalid; run-specific
// requirements are checked by ValidateRun.
func Load(fs *pflag.FlagSet) (*Config, error) {
	v := viper.New()

	v.SetConfigFile(".env")
	v.SetConfigType("env")
	_ = v.ReadInConfig() // ignore ErrConfigFileNotFound

	v.AutomaticEnv()

	v.SetDefault("DATE", "")
	v.SetDefault("DATE_END", "")
	v.SetDefault("VARIANT", "od_cvegeo")
	v.SetDefault("TIME_WINDOW", "")
	// No default: the dwell threshold must be chosen explicitly.
	_ = v.BindEnv("DWELL_SECONDS")
	v.SetDefault("PING_SOURCE", SourceParquet)
	v.SetDefault("DATASET_ROOT", "")
	v.SetDefault("DATABASE_URL", "")
	v.SetDefault("LOCATION_FILE", "")
	v.SetDefault("LOCATION_COLUMN", "CVEGEO")
	v.SetDefault("OUTPUT_DIR", "")
	v.SetDefault("OUTPUT_SUFFIX", "")
	v.SetDefault("TIMEZONE", "America/Mexico_City")
	v.SetDefault("WORKERS", 1)
	v.SetDefault("BAND_WORKERS", 1)
	v.SetDefault("FETCH_TIMEOUT", "10m")
	v.SetDefault("WRITE_TIMEOUT", "1m")
	v.SetDefault("KAFKA_BROKERS", "")
	v.SetDefault("NETWORK_KAFKA_TOPIC", "sedatu-units")
	v.SetDefault("KAFKA_GROUP_ID", "sedatu-units-worker")
	v.SetDefault("LOKI_URL", "")
	v.SetDefault("OTEL_EXPORTER_OTLP_ENDPOINT", "")
	v.SetDefault("OTEL_EXPORTER_OTLP_INSECURE", false)
	v.SetDefault("PROM_PUSHGATEWAY_URL", "")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_FORMAT", "text")

	if fs != nil {
		for name, key := range flagKeys {
			f := fs.Lookup(name)
			if f == nil {
				continue
			}
			if err := v.BindPFlag(key, f); err != nil {
				return nil, fmt.Errorf("config: bind flag %s: %w", name, err)
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}
	cfg.dwellSet = v.IsSet("DWELL_SECONDS")

	switch cfg.PingSource {
	case SourceParquet, SourcePostgres:
	default:
		return nil, od.NewConfigurationError("PING_SOURCE", "must be %s or %s, got %q", SourceParquet, SourcePostgres, cfg.PingSource)
	}
	if _, err := cfg.Location(); err != nil {
		return nil, err
	}
	if _, err := parseLevel(cfg.LogLevel); err != nil {
		return nil, err
	}
	if cfg.Workers < 1 {
		cfg.Workers = 1
	}
	if cfg.BandWorkers < 1 {
		cfg.BandWorkers = 1
	}
	return &cfg, nil
}

// ValidateRun checks the fields a network run needs.
func (c *Config) ValidateRun() error {
	if c.Date == "" {
		return od.NewConfigurationError("DATE", "must be set (--date)")
	}
	if !c.dwellSet {
		return od.NewConfigurationError("DWELL_SECONDS", "must be set (--dwell)")
	}
	if c.DwellSeconds < 0 {
		return od.NewConfigurationError("DWELL_SECONDS", "must be >= 0, got %d", c.DwellSeconds)
	}
	if c.OutputDir == "" {
		return od.NewConfigurationError("OUTPUT_DIR", "must be set (--output)")
	}
	switch c.PingSource {
	case SourceParquet:
		if c.DatasetRoot == "" {
			return od.NewConfigurationError("DATASET_ROOT", "must be set for the parquet source (--dataset)")
		}
	case SourcePostgres:
		if c.DatabaseURL == "" {
			return od.NewConfigurationError("DATABASE_URL", "must be set for the postgres source")
		}
	}
	if _, _, err := c.DateRange(); err != nil {
		return err
	}
	return nil
}

// Location loads Timezone. Empty means UTC.
func (c *Config) Location() (*time.Location, error) {
	if c.Timezone == "" {
		return time.UTC, nil
	}
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return nil, od.NewConfigurationError("TIMEZONE", "%q: %v", c.Timezone, err)
	}
	return loc, nil
}

// DateRange parses Date and DateEnd as calendar days in Location. DateEnd defaults to Date.
func (c *Config) DateRange() (time.Time, time.Time, error) {
	loc, err := c.Location()
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	start, err := time.ParseInLocation(time.DateOnly, c.Date, loc)
	if err != nil {
		return time.Time{}, time.Time{}, od.NewConfigurationError("DATE", "%q: want YYYY-MM-DD", c.Date)
	}
	if c.DateEnd == "" {
		return start, start, nil
	}
	end, err := time.ParseInLocation(time.DateOnly, c.DateEnd, loc)
	if err != nil {
		return time.Time{}, time.Time{}, od.NewConfigurationError("DATE_END", "%q: want YYYY-MM-DD", c.DateEnd)
	}
	return start, end, nil
}

// SingleDate reports whether the run covers one date only.
func (c *Config) SingleDate() bool {
	return c.DateEnd == "" || c.DateEnd == c.Date
}

// FetchTimeoutDuration parses FetchTimeout. Returns 0 (no timeout) if unset or invalid.
func (c *Config) FetchTimeoutDuration() time.Duration {
	return parseTimeout(c.FetchTimeout)
}

// WriteTimeoutDuration parses WriteTimeout. Returns 0 (no timeout) if unset or invalid.
func (c *Config) WriteTimeoutDuration() time.Duration {
	return parseTimeout(c.WriteTimeout)
}

func parseTimeout(s string) time.Duration {
	d, err := time.ParseDuration(s)
	if err != nil || d <= 0 {
		return 0
	}
	return d
}

// KafkaBrokersList returns Kafka broker addresses from the comma-separated config.
// An empty list disables publishing.
func (c *Config) KafkaBrokersList() []string {
	if c == nil || c.KafkaBrokers == "" {
		return nil
	}
	parts := strings.Split(c.KafkaBrokers, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if s := strings.TrimSpace(p); s != "" {
			out = append(out, s)
		}
	}
	return out
}

func parseLevel(s string) (slog.Level, error) {
	var l slog.Level
	if err := l.UnmarshalText([]byte(strings.TrimSpace(s))); err != nil {
		return 0, od.NewConfigurationError("LOG_LEVEL", "%q: %v", s, err)
	}
	return l, nil
}

// Logger returns a slog logger writing to w: JSON when LogFormat is "json", colored text
// otherwise.
func (c *Config) Logger(w io.Writer) *slog.Logger {
	level, err := parseLevel(c.LogLevel)
	if err != nil {
		level = slog.LevelInfo
	}
	if strings.EqualFold(c.LogFormat, "json") {
		return slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{Level: level}))
	}
	return slog.New(tint.NewHandler(w, &tint.Options{Level: level, TimeFormat: time.DateTime}))
}

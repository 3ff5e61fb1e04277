// Package config loads service configuration.
//
// Values are layered: built-in defaults, then an optional YAML file
// (unknown keys are errors), then TABLESIDE_* environment variables. The
// result is checked against an embedded CUE schema.
package config

import (
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	cueerrors "cuelang.org/go/cue/errors"
	"github.com/kelseyhightower/envconfig"
	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"
)

// EnvPrefix prefixes every environment override, e.g. TABLESIDE_LISTEN.
const EnvPrefix = "tableside"

//go:embed schema.cue
var schemaCUE string

// Config is the service configuration.
type Config struct {
	Database    string      `yaml:"database" json:"database" envconfig:"database"`
	Listen      string      `yaml:"listen" json:"listen" envconfig:"listen"`
	Log         Log         `yaml:"log" json:"log" envconfig:"log"`
	Idempotency Idempotency `yaml:"idempotency" json:"idempotency" envconfig:"idempotency"`
	Closing     Closing     `yaml:"closing" json:"closing" envconfig:"closing"`
	Auth        Auth        `yaml:"auth" json:"auth" envconfig:"auth"`
	RateLimit   RateLimit   `yaml:"rate_limit" json:"rate_limit" envconfig:"rate_limit"`
	Relay       Relay       `yaml:"relay" json:"relay" envconfig:"relay"`
	Telemetry   Telemetry   `yaml:"telemetry" json:"telemetry" envconfig:"telemetry"`
}

type Log struct {
	Level  string `yaml:"level" json:"level" envconfig:"level"`
	Format string `yaml:"format" json:"format" envconfig:"format"`
}

type Idempotency struct {
	Retention     time.Duration `yaml:"retention" json:"retention" envconfig:"retention"`
	SweepInterval time.Duration `yaml:"sweep_interval" json:"sweep_interval" envconfig:"sweep_interval"`
}

type Closing struct {
	Tolerance decimal.Decimal `yaml:"tolerance" json:"tolerance" envconfig:"tolerance"`
}

type Auth struct {
	CacheTTL time.Duration `yaml:"cache_ttl" json:"cache_ttl" envconfig:"cache_ttl"`
}

type RateLimit struct {
	PerSecond float64 `yaml:"per_second" json:"per_second" envconfig:"per_second"`
	Burst     int     `yaml:"burst" json:"burst" envconfig:"burst"`
}

// Relay configures the event relay. No brokers means events are relayed
// to the log only.
type Relay struct {
	Brokers   []string      `yaml:"brokers" json:"brokers" envconfig:"brokers"`
	Topic     string        `yaml:"topic" json:"topic" envconfig:"topic"`
	Interval  time.Duration `yaml:"interval" json:"interval" envconfig:"interval"`
	BatchSize int           `yaml:"batch_size" json:"batch_size" envconfig:"batch_size"`
}

// Telemetry configures tracing. No endpoint disables export.
type Telemetry struct {
	OTLPEndpoint string `yaml:"otlp_endpoint" json:"otlp_endpoint" envconfig:"otlp_endpoint"`
	ServiceName  string `yaml:"service_name" json:"service_name" envconfig:"service_name"`
	Insecure     bool   `yaml:"insecure" json:"insecure" envconfig:"insecure"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Database: "tableside.db",
		Listen:   ":8080",
		Log:      Log{Level: "info", Format: "text"},
		Idempotency: Idempotency{
			Retention:     30 * 24 * time.Hour,
			SweepInterval: time.Hour,
		},
		Closing:   Closing{Tolerance: decimal.New(1, -2)},
		Auth:      Auth{CacheTTL: 30 * time.Second},
		RateLimit: RateLimit{PerSecond: 20, Burst: 40},
		Relay: Relay{
			Brokers:   []string{},
			Topic:     "session-events",
			Interval:  2 * time.Second,
			BatchSize: 100,
		},
		Telemetry: Telemetry{ServiceName: "tableside"},
	}
}

// Load builds the configuration. An empty path skips the file layer.
func Load(path string) (Config, error) {
	cfg := Default()
	if path != "" {
		f, err := os.Open(path)
		if err != nil {
			return Config{}, fmt.Errorf("open config: %w", err)
		}
		defer f.Close()
		if err := Decode(f, &cfg); err != nil {
			return Config{}, fmt.Errorf("%s: %w", path, err)
		}
	}

	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return Config{}, fmt.Errorf("environment: %w", err)
	}
	if cfg.Relay.Brokers == nil {
		cfg.Relay.Brokers = []string{}
	}

	if err := Validate(cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Decode reads YAML from r over cfg. Keys absent from the document keep
// their current values. Unknown keys are errors.
func Decode(r io.Reader, cfg *Config) error {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("decode config: %w", err)
	}
	return nil
}

// Validate checks cfg against the embedded schema.
func Validate(cfg Config) error {
	ctx := cuecontext.New()
	schema := ctx.CompileString(schemaCUE, cue.Filename("schema.cue"))
	if err := schema.Err(); err != nil {
		return fmt.Errorf("config schema: %w", err)
	}

	data, err := json.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("encode config: %w", err)
	}
	v := ctx.CompileBytes(data, cue.Filename("config"))
	if err := v.Err(); err != nil {
		return fmt.Errorf("encode config: %w", err)
	}

	unified := schema.LookupPath(cue.ParsePath("#Config")).Unify(v)
	if err := unified.Validate(cue.Concrete(true)); err != nil {
		return fmt.Errorf("invalid config: %s", cueerrors.Details(err, nil))
	}
	return nil
}

// SlogLevel returns the configured log level.
func (c Config) SlogLevel() slog.Level {
	var level slog.Level
	if err := level.UnmarshalText([]byte(c.Log.Level)); err != nil {
		return slog.LevelInfo
	}
	return level
}

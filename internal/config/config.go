// Package config loads the process's static configuration and decodes
// the dynamic config-delta stream described in SPEC_FULL.md §6.
package config

import (
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
	"github.com/twmb/franz-go/pkg/sasl"
	"github.com/twmb/franz-go/pkg/sasl/plain"
)

// Config is the process's static configuration, loaded once at
// startup from a YAML file overlaid with environment variables.
type Config struct {
	Service   ServiceConfig                `koanf:"service"`
	Bus       BusConfig                    `koanf:"bus"`
	Postgres  PostgresConfig               `koanf:"postgres"`
	Scheduler SchedulerConfig              `koanf:"scheduler"`
	Retention RetentionConfig              `koanf:"retention"`
	Instances map[string]InstanceDefaults  `koanf:"instances"`
}

// ServiceConfig holds the process-level identity and listener settings.
type ServiceConfig struct {
	InstanceID             string `koanf:"instance_id"`
	LocalASN               uint32 `koanf:"local_asn"`
	HTTPListen             string `koanf:"http_listen"`
	LogLevel               string `koanf:"log_level"`
	ShutdownTimeoutSeconds int    `koanf:"shutdown_timeout_seconds"`
	ConfigDeltaPath        string `koanf:"config_delta_path"`
	XMPPFixturePath        string `koanf:"xmpp_fixture_path"`
}

// BusConfig configures the telemetry-export producer of internal/bus.
type BusConfig struct {
	Brokers  []string   `koanf:"brokers"`
	ClientID string     `koanf:"client_id"`
	Topic    string     `koanf:"topic"`
	TLS      TLSConfig  `koanf:"tls"`
	SASL     SASLConfig `koanf:"sasl"`
}

// TLSConfig holds the bus producer's TLS settings (BusConfig.TLS).
type TLSConfig struct {
	Enabled  bool   `koanf:"enabled"`
	CAFile   string `koanf:"ca_file"`
	CertFile string `koanf:"cert_file"`
	KeyFile  string `koanf:"key_file"`
}

// SASLConfig authenticates the bus producer.
type SASLConfig struct {
	Enabled   bool   `koanf:"enabled"`
	Mechanism string `koanf:"mechanism"`
	Username  string `koanf:"username"`
	Password  string `koanf:"password"`
}

// PostgresConfig points the optional config-delta/peer-counter journal
// at its database.
type PostgresConfig struct {
	DSN      string `koanf:"dsn"`
	MaxConns int32  `koanf:"max_conns"`
	MinConns int32  `koanf:"min_conns"`
}

// SchedulerConfig sizes internal/sched's worker pool.
type SchedulerConfig struct {
	Workers int `koanf:"workers"`
}

// RetentionConfig sizes internal/store's daily-partition maintenance
// for the config-delta journal and peer-snapshot tables.
type RetentionConfig struct {
	Days     int    `koanf:"days"`
	Timezone string `koanf:"timezone"`
}

// InstanceDefaults is one entry of the static config's instances map:
// the RD, import/export route targets and policy names that
// cmd/ctlplane applies to that routing instance at startup. An
// instance config-delta is applied through the same shape.
type InstanceDefaults struct {
	RouteDistinguisher string   `koanf:"route_distinguisher"`
	ImportTargets      []string `koanf:"import_targets"`
	ExportTargets      []string `koanf:"export_targets"`
	Policies           []string `koanf:"policies"`
}

// Load reads path (if non-empty) as YAML, overlays CTLPLANE_-prefixed
// environment variables, applies defaults and validates the result.
func Load(path string) (*Config, error) {
	k := koanf.New(".")

	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("loading config file %s: %w", path, err)
		}
	}

	if err := k.Load(env.Provider("CTLPLANE_", ".", func(s string) string {
		s = strings.TrimPrefix(s, "CTLPLANE_")
		s = strings.ToLower(s)
		s = strings.ReplaceAll(s, "__", ".")
		return s
	}), nil); err != nil {
		return nil, fmt.Errorf("loading env config: %w", err)
	}

	cfg := &Config{
		Service: ServiceConfig{
			InstanceID:             "ctlplane-1",
			HTTPListen:             ":8080",
			LogLevel:               "info",
			ShutdownTimeoutSeconds: 30,
		},
		Bus: BusConfig{
			ClientID: "ctlplane",
			Topic:    "ctlplane.route-events",
		},
		Postgres: PostgresConfig{
			MaxConns: 20,
			MinConns: 2,
		},
		Scheduler: SchedulerConfig{
			Workers: 8,
		},
		Retention: RetentionConfig{
			Days:     30,
			Timezone: "UTC",
		},
	}

	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	if len(cfg.Bus.Brokers) == 1 && strings.Contains(cfg.Bus.Brokers[0], ",") {
		cfg.Bus.Brokers = strings.Split(cfg.Bus.Brokers[0], ",")
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the invariants main() relies on before wiring
// anything up.
func (c *Config) Validate() error {
	if c.Service.InstanceID == "" {
		return fmt.Errorf("config: service.instance_id is required")
	}
	if c.Service.LocalASN == 0 {
		return fmt.Errorf("config: service.local_asn is required")
	}
	if c.Service.ShutdownTimeoutSeconds <= 0 {
		return fmt.Errorf("config: service.shutdown_timeout_seconds must be > 0 (got %d)", c.Service.ShutdownTimeoutSeconds)
	}
	if c.Scheduler.Workers <= 0 {
		return fmt.Errorf("config: scheduler.workers must be > 0 (got %d)", c.Scheduler.Workers)
	}
	if c.Postgres.DSN != "" {
		if c.Postgres.MaxConns <= 0 {
			return fmt.Errorf("config: postgres.max_conns must be > 0 (got %d)", c.Postgres.MaxConns)
		}
		if c.Postgres.MinConns < 0 {
			return fmt.Errorf("config: postgres.min_conns must be >= 0 (got %d)", c.Postgres.MinConns)
		}
	}
	if len(c.Bus.Brokers) > 0 && c.Bus.Topic == "" {
		return fmt.Errorf("config: bus.topic is required when bus.brokers is set")
	}
	if _, err := time.ParseDuration(fmt.Sprintf("%ds", c.Service.ShutdownTimeoutSeconds)); err != nil {
		return fmt.Errorf("config: service.shutdown_timeout_seconds is invalid: %w", err)
	}
	return nil
}

// BuildTLSConfig creates a *tls.Config from the bus TLS settings.
// Returns nil if TLS is disabled.
func (b *BusConfig) BuildTLSConfig() (*tls.Config, error) {
	if !b.TLS.Enabled {
		return nil, nil
	}
	tlsCfg := &tls.Config{}
	if b.TLS.CAFile != "" {
		caPEM, err := os.ReadFile(b.TLS.CAFile)
		if err != nil {
			return nil, fmt.Errorf("reading CA file: %w", err)
		}
		pool := x509.NewCertPool()
		if !pool.AppendCertsFromPEM(caPEM) {
			return nil, fmt.Errorf("failed to parse CA certificate")
		}
		tlsCfg.RootCAs = pool
	}
	if b.TLS.CertFile != "" && b.TLS.KeyFile != "" {
		cert, err := tls.LoadX509KeyPair(b.TLS.CertFile, b.TLS.KeyFile)
		if err != nil {
			return nil, fmt.Errorf("loading client certificate: %w", err)
		}
		tlsCfg.Certificates = []tls.Certificate{cert}
	}
	return tlsCfg, nil
}

// BuildSASLMechanism creates a SASL mechanism from the bus SASL
// settings. Returns nil if SASL is disabled.
func (b *BusConfig) BuildSASLMechanism() sasl.Mechanism {
	if !b.SASL.Enabled {
		return nil
	}
	switch strings.ToUpper(b.SASL.Mechanism) {
	case "PLAIN":
		return plain.Auth{User: b.SASL.Username, Pass: b.SASL.Password}.AsMechanism()
	default:
		return nil
	}
}

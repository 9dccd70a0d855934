package config

import (
	"os"
	"path/filepath"
	"testing"
)

func validConfig() *Config {
	return &Config{
		Service: ServiceConfig{
			InstanceID:             "test",
			LocalASN:               64496,
			HTTPListen:             ":8080",
			LogLevel:               "info",
			ShutdownTimeoutSeconds: 30,
		},
		Bus: BusConfig{
			Brokers: []string{"localhost:9092"},
			Topic:   "ctlplane.route-events",
		},
		Postgres: PostgresConfig{
			DSN:      "postgres://localhost/test",
			MaxConns: 10,
			MinConns: 2,
		},
		Scheduler: SchedulerConfig{
			Workers: 8,
		},
	}
}

func TestValidate_ValidConfig(t *testing.T) {
	cfg := validConfig()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("expected valid config, got error: %v", err)
	}
}

func TestValidate_NoInstanceID(t *testing.T) {
	cfg := validConfig()
	cfg.Service.InstanceID = ""
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for empty instance_id")
	}
}

func TestValidate_NoLocalASN(t *testing.T) {
	cfg := validConfig()
	cfg.Service.LocalASN = 0
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for local_asn = 0")
	}
}

func TestValidate_ShutdownTimeoutZero(t *testing.T) {
	cfg := validConfig()
	cfg.Service.ShutdownTimeoutSeconds = 0
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for shutdown_timeout_seconds = 0")
	}
}

func TestValidate_SchedulerWorkersZero(t *testing.T) {
	cfg := validConfig()
	cfg.Scheduler.Workers = 0
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for scheduler.workers = 0")
	}
}

func TestValidate_PostgresDSNEmptyIsOK(t *testing.T) {
	cfg := validConfig()
	cfg.Postgres.DSN = ""
	if err := cfg.Validate(); err != nil {
		t.Fatalf("expected empty DSN to be valid (journal is optional), got %v", err)
	}
}

func TestValidate_PostgresMaxConnsZeroWithDSN(t *testing.T) {
	cfg := validConfig()
	cfg.Postgres.MaxConns = 0
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for max_conns = 0 when dsn is set")
	}
}

func TestValidate_BusTopicMissingWithBrokers(t *testing.T) {
	cfg := validConfig()
	cfg.Bus.Topic = ""
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for empty bus.topic when brokers is set")
	}
}

func writeMinimalYAML(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	p := filepath.Join(dir, "config.yaml")
	data := `
service:
  instance_id: "ctlplane-test"
  local_asn: 64496
postgres:
  dsn: "postgres://localhost/test"
`
	if err := os.WriteFile(p, []byte(data), 0644); err != nil {
		t.Fatal(err)
	}
	return p
}

func TestLoad_EnvOverrideDSN(t *testing.T) {
	p := writeMinimalYAML(t)
	t.Setenv("CTLPLANE_POSTGRES__DSN", "postgres://envhost/envdb")

	cfg, err := Load(p)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Postgres.DSN != "postgres://envhost/envdb" {
		t.Errorf("expected DSN from env, got %q", cfg.Postgres.DSN)
	}
}

func TestLoad_EnvOverrideLogLevel(t *testing.T) {
	p := writeMinimalYAML(t)
	t.Setenv("CTLPLANE_SERVICE__LOG_LEVEL", "debug")

	cfg, err := Load(p)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Service.LogLevel != "debug" {
		t.Errorf("expected log_level 'debug' from env, got %q", cfg.Service.LogLevel)
	}
}

func TestLoad_EnvEmptyInstanceIDFailsValidation(t *testing.T) {
	p := writeMinimalYAML(t)
	t.Setenv("CTLPLANE_SERVICE__INSTANCE_ID", "")

	_, err := Load(p)
	if err == nil {
		t.Fatal("expected validation error for empty instance_id via env")
	}
}

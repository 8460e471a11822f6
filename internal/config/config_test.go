package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/oriys/tasklet/internal/domain"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	if cfg.Backend != BackendLocal || cfg.Serializer != "json" {
		t.Fatalf("unexpected defaults: %+v", cfg)
	}
	if cfg.RedisReplyTimeout() != 30*time.Second {
		t.Fatalf("RedisReplyTimeout = %v", cfg.RedisReplyTimeout())
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("defaults invalid: %v", err)
	}
}

func TestLoadFromFileYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tasklet.yaml")
	data := "instance: demo\nbackend: http\nserializer: cbor\nhttp:\n  base_url: http://exec:9000\n"
	if err := os.WriteFile(path, []byte(data), 0o644); err != nil {
		t.Fatal(err)
	}
	cfg, err := LoadFromFile(path)
	if err != nil {
		t.Fatalf("LoadFromFile: %v", err)
	}
	if cfg.Instance != "demo" || cfg.Backend != BackendHTTP || cfg.Serializer != "cbor" {
		t.Fatalf("unexpected config %+v", cfg)
	}
	if cfg.HTTP.BaseURL != "http://exec:9000" {
		t.Fatalf("BaseURL = %q", cfg.HTTP.BaseURL)
	}
	// Untouched sections keep defaults.
	if cfg.Redis.Prefix != "tasklet:" {
		t.Fatalf("Redis.Prefix = %q", cfg.Redis.Prefix)
	}
}

func TestLoadFromFileJSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tasklet.json")
	if err := os.WriteFile(path, []byte(`{"backend":"grpc","grpc":{"target":"exec:9001"}}`), 0o644); err != nil {
		t.Fatal(err)
	}
	cfg, err := LoadFromFile(path)
	if err != nil {
		t.Fatalf("LoadFromFile: %v", err)
	}
	if cfg.Backend != BackendGRPC || cfg.GRPC.Target != "exec:9001" {
		t.Fatalf("unexpected config %+v", cfg)
	}
}

func TestLoadResolvesSide(t *testing.T) {
	t.Setenv(InCloudEnv, "")
	cfg, err := Load("")
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Side != domain.SideDispatch {
		t.Fatalf("Side = %v", cfg.Side)
	}

	t.Setenv(InCloudEnv, "1")
	t.Setenv("TASKLET_BACKEND", "redis")
	cfg, err = Load("")
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Side != domain.SideExecution || cfg.Backend != BackendRedis {
		t.Fatalf("unexpected config %+v", cfg)
	}
}

func TestValidateRejectsUnknownBackend(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Backend = "carrier-pigeon"
	if err := cfg.Validate(); !errors.Is(err, domain.ErrConfiguration) {
		t.Fatalf("Validate = %v", err)
	}
}

func TestValidateReportsFileKeys(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"serializer", func(c *Config) { c.Serializer = "pickle" }, "serializer"},
		{"sample rate", func(c *Config) { c.Observability.TracingSample = 2 }, "tracing_sample_rate"},
		{"breaker", func(c *Config) { c.Breaker.FailurePct = 150 }, "failure_pct"},
		{"instance", func(c *Config) { c.Instance = "" }, "instance"},
		{"grpc target", func(c *Config) { c.Backend = BackendGRPC; c.GRPC.Target = "" }, "grpc.target"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if !errors.Is(err, domain.ErrConfiguration) || !strings.Contains(err.Error(), tt.want) {
				t.Fatalf("Validate = %v, want mention of %q", err, tt.want)
			}
		})
	}
}

func TestBreakerSettings(t *testing.T) {
	t.Setenv("TASKLET_BREAKER_FAILURE_PCT", "40")
	cfg := DefaultConfig()
	LoadFromEnv(cfg)

	if cfg.Breaker.FailurePct != 40 {
		t.Fatalf("FailurePct = %v", cfg.Breaker.FailurePct)
	}
	if cfg.BreakerWindow() != time.Minute || cfg.BreakerOpen() != 30*time.Second {
		t.Fatalf("window %v, open %v", cfg.BreakerWindow(), cfg.BreakerOpen())
	}
}

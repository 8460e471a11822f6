package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/oriys/tasklet/internal/domain"
	"gopkg.in/yaml.v3"
)

var validate = newValidator()

// newValidator reports fields by their json key.
func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// Backends a dispatch-side App can be bound to.
const (
	BackendLocal  = "local"
	BackendHTTP   = "http"
	BackendGRPC   = "grpc"
	BackendLambda = "lambda"
	BackendRedis  = "redis"
)

// InCloudEnv is set to "1" in every deployed execution-side process.
const InCloudEnv = "TASKLET_IN_CLOUD"

// HTTPConfig holds the HTTP transport settings
type HTTPConfig struct {
	BaseURL  string `json:"base_url" yaml:"base_url"`
	TimeoutS int    `json:"timeout_s" yaml:"timeout_s"`
}

// GRPCConfig holds the gRPC transport settings
type GRPCConfig struct {
	Target   string `json:"target" yaml:"target"`
	TimeoutS int    `json:"timeout_s" yaml:"timeout_s"`
}

// LambdaConfig holds the AWS Lambda transport settings
type LambdaConfig struct {
	Region          string `json:"region" yaml:"region"`
	Profile         string `json:"profile" yaml:"profile"`
	Endpoint        string `json:"endpoint" yaml:"endpoint"`
	AccessKeyID     string `json:"access_key_id" yaml:"access_key_id"`
	SecretAccessKey string `json:"secret_access_key" yaml:"secret_access_key"`
}

// RedisConfig holds Redis connection settings
type RedisConfig struct {
	Addr     string `json:"addr" yaml:"addr"`
	Password string `json:"password" yaml:"password"`
	DB       int    `json:"db" yaml:"db"`
	Prefix   string `json:"prefix" yaml:"prefix"`
	// ReplyTimeoutS bounds how long a synchronous invoke waits for its reply.
	ReplyTimeoutS int `json:"reply_timeout_s" yaml:"reply_timeout_s"`
}

// BreakerConfig holds the remote executor's circuit breaker. A zero
// FailurePct leaves it off.
type BreakerConfig struct {
	FailurePct     float64 `json:"failure_pct" yaml:"failure_pct" validate:"gte=0,lte=100"`
	MinRequests    int     `json:"min_requests" yaml:"min_requests" validate:"gte=0"`
	WindowS        int     `json:"window_s" yaml:"window_s" validate:"gte=0"`
	OpenS          int     `json:"open_s" yaml:"open_s" validate:"gte=0"`
	HalfOpenProbes int     `json:"half_open_probes" yaml:"half_open_probes" validate:"gte=0"`
}

// ServerConfig holds execution-side listener settings. Listen addresses accept
// host:port, unix:///path and vsock://port.
type ServerConfig struct {
	HTTPAddr       string `json:"http_addr" yaml:"http_addr"`
	GRPCAddr       string `json:"grpc_addr" yaml:"grpc_addr"`
	RedisWorker    bool   `json:"redis_worker" yaml:"redis_worker"`
	RequestLogFile string `json:"request_log_file" yaml:"request_log_file"`
}

// ObservabilityConfig holds logging, tracing and metrics settings
type ObservabilityConfig struct {
	LogFormat        string  `json:"log_format" yaml:"log_format" validate:"omitempty,oneof=text json"`
	LogLevel         string  `json:"log_level" yaml:"log_level"`
	TracingEnabled   bool    `json:"tracing_enabled" yaml:"tracing_enabled"`
	TracingExporter  string  `json:"tracing_exporter" yaml:"tracing_exporter" validate:"omitempty,oneof=otlp-http otlp none"`
	TracingEndpoint  string  `json:"tracing_endpoint" yaml:"tracing_endpoint"`
	TracingSample    float64 `json:"tracing_sample_rate" yaml:"tracing_sample_rate" validate:"gte=0,lte=1"`
	MetricsNamespace string  `json:"metrics_namespace" yaml:"metrics_namespace"`
}

// PostgresConfig holds the failure journal settings. An empty DSN disables it.
type PostgresConfig struct {
	DSN string `json:"dsn" yaml:"dsn"`
}

// Config is the central configuration struct embedding all component configs
type Config struct {
	Instance      string              `json:"instance" yaml:"instance" validate:"required,max=40"`
	Backend       string              `json:"backend" yaml:"backend" validate:"oneof=local http grpc lambda redis"`
	Serializer    string              `json:"serializer" yaml:"serializer" validate:"omitempty,oneof=json cbor gob"`
	HTTP          HTTPConfig          `json:"http" yaml:"http"`
	GRPC          GRPCConfig          `json:"grpc" yaml:"grpc"`
	Lambda        LambdaConfig        `json:"lambda" yaml:"lambda"`
	Redis         RedisConfig         `json:"redis" yaml:"redis"`
	Breaker       BreakerConfig       `json:"breaker" yaml:"breaker"`
	Server        ServerConfig        `json:"server" yaml:"server"`
	Observability ObservabilityConfig `json:"observability" yaml:"observability"`
	Postgres      PostgresConfig      `json:"postgres" yaml:"postgres"`

	// Side is resolved from TASKLET_IN_CLOUD by Load, never read from a file.
	Side domain.Side `json:"-" yaml:"-"`
}

// DefaultConfig returns a Config with sensible defaults
func DefaultConfig() *Config {
	return &Config{
		Instance:   "tasklet",
		Backend:    BackendLocal,
		Serializer: "json",
		HTTP: HTTPConfig{
			BaseURL:  "http://localhost:9000",
			TimeoutS: 30,
		},
		GRPC: GRPCConfig{
			Target:   "localhost:9001",
			TimeoutS: 30,
		},
		Lambda: LambdaConfig{
			Region: "us-east-1",
		},
		Redis: RedisConfig{
			Addr:          "localhost:6379",
			Prefix:        "tasklet:",
			ReplyTimeoutS: 30,
		},
		Breaker: BreakerConfig{
			MinRequests:    5,
			WindowS:        60,
			OpenS:          30,
			HalfOpenProbes: 1,
		},
		Server: ServerConfig{
			HTTPAddr: ":9000",
		},
		Observability: ObservabilityConfig{
			LogFormat:        "text",
			LogLevel:         "info",
			TracingExporter:  "otlp-http",
			TracingEndpoint:  "localhost:4318",
			TracingSample:    1.0,
			MetricsNamespace: "tasklet",
		},
	}
}

// LoadFromFile loads configuration from a JSON or YAML file, chosen by
// extension.
func LoadFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	cfg := DefaultConfig()
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, cfg)
	default:
		err = json.Unmarshal(data, cfg)
	}
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}

	return cfg, nil
}

// LoadFromEnv applies environment variable overrides to the config
func LoadFromEnv(cfg *Config) {
	if v := os.Getenv("TASKLET_INSTANCE"); v != "" {
		cfg.Instance = v
	}
	if v := os.Getenv("TASKLET_BACKEND"); v != "" {
		cfg.Backend = v
	}
	if v := os.Getenv("TASKLET_SERIALIZER"); v != "" {
		cfg.Serializer = v
	}
	if v := os.Getenv("TASKLET_HTTP_BASE_URL"); v != "" {
		cfg.HTTP.BaseURL = v
	}
	if v := os.Getenv("TASKLET_GRPC_TARGET"); v != "" {
		cfg.GRPC.Target = v
	}
	if v := os.Getenv("TASKLET_LAMBDA_REGION"); v != "" {
		cfg.Lambda.Region = v
	}
	if v := os.Getenv("TASKLET_LAMBDA_PROFILE"); v != "" {
		cfg.Lambda.Profile = v
	}
	if v := os.Getenv("TASKLET_LAMBDA_ENDPOINT"); v != "" {
		cfg.Lambda.Endpoint = v
	}
	if v := os.Getenv("TASKLET_REDIS_ADDR"); v != "" {
		cfg.Redis.Addr = v
	}
	if v := os.Getenv("TASKLET_REDIS_PASSWORD"); v != "" {
		cfg.Redis.Password = v
	}
	if v := os.Getenv("TASKLET_REDIS_DB"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Redis.DB = n
		}
	}
	if v := os.Getenv("TASKLET_HTTP_ADDR"); v != "" {
		cfg.Server.HTTPAddr = v
	}
	if v := os.Getenv("TASKLET_GRPC_ADDR"); v != "" {
		cfg.Server.GRPCAddr = v
	}
	if v := os.Getenv("TASKLET_LOG_LEVEL"); v != "" {
		cfg.Observability.LogLevel = v
	}
	if v := os.Getenv("TASKLET_LOG_FORMAT"); v != "" {
		cfg.Observability.LogFormat = v
	}
	if v := os.Getenv("TASKLET_TRACING_ENDPOINT"); v != "" {
		cfg.Observability.TracingEnabled = true
		cfg.Observability.TracingEndpoint = v
	}
	if v := os.Getenv("TASKLET_BREAKER_FAILURE_PCT"); v != "" {
		if pct, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.Breaker.FailurePct = pct
		}
	}
	if v := os.Getenv("TASKLET_POSTGRES_DSN"); v != "" {
		cfg.Postgres.DSN = v
	}
}

// Load builds the process configuration: defaults, then the file at path if
// non-empty, then environment overrides. The Side is resolved here and only
// here.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()
	if path != "" {
		var err error
		if cfg, err = LoadFromFile(path); err != nil {
			return nil, err
		}
	}
	LoadFromEnv(cfg)
	cfg.Side = domain.SideFromFlag(os.Getenv(InCloudEnv))

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects settings no component can run with. Errors name the
// offending field by its file key.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			first := verrs[0]
			return fmt.Errorf("%w: %s: failed %q (value %v)", domain.ErrConfiguration, first.Namespace(), first.Tag(), first.Value())
		}
		return fmt.Errorf("%w: %v", domain.ErrConfiguration, err)
	}

	switch c.Backend {
	case BackendHTTP:
		if c.HTTP.BaseURL == "" {
			return fmt.Errorf("%w: http.base_url is required for the http backend", domain.ErrConfiguration)
		}
	case BackendGRPC:
		if c.GRPC.Target == "" {
			return fmt.Errorf("%w: grpc.target is required for the grpc backend", domain.ErrConfiguration)
		}
	case BackendRedis:
		if c.Redis.Addr == "" {
			return fmt.Errorf("%w: redis.addr is required for the redis backend", domain.ErrConfiguration)
		}
	}
	return nil
}

// HTTPTimeout returns the HTTP transport timeout.
func (c *Config) HTTPTimeout() time.Duration {
	return seconds(c.HTTP.TimeoutS)
}

// GRPCTimeout returns the gRPC transport timeout.
func (c *Config) GRPCTimeout() time.Duration {
	return seconds(c.GRPC.TimeoutS)
}

// BreakerWindow returns the circuit breaker's sliding window.
func (c *Config) BreakerWindow() time.Duration {
	return seconds(c.Breaker.WindowS)
}

// BreakerOpen returns how long a tripped breaker rejects sends.
func (c *Config) BreakerOpen() time.Duration {
	return seconds(c.Breaker.OpenS)
}

// RedisReplyTimeout returns how long a synchronous Redis invoke waits.
func (c *Config) RedisReplyTimeout() time.Duration {
	return seconds(c.Redis.ReplyTimeoutS)
}

func seconds(n int) time.Duration {
	if n <= 0 {
		return 0
	}
	return time.Duration(n) * time.Second
}

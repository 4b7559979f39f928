package cli

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/malbeclabs/ados/agent/pkg/engine"
	"gopkg.in/yaml.v3"
)

// Config is the CLI configuration. It is read from an optional YAML file; environment
// variables override the file.
type Config struct {
	// Paths are local directories, globs or files holding parquet and csv datasets.
	Paths      []string         `yaml:"paths"`
	S3         S3Config         `yaml:"s3"`
	ClickHouse ClickHouseConfig `yaml:"clickhouse"`
	Neo4j      Neo4jConfig      `yaml:"neo4j"`

	// Engine is duckdb or clickhouse.
	Engine  string `yaml:"engine"`
	MaxRows int    `yaml:"max_rows"`

	SampleSize             int           `yaml:"sample_size"`
	OverlapThreshold       float64       `yaml:"overlap_threshold"`
	RefreshInterval        time.Duration `yaml:"refresh_interval"`
	DiscoveryTimeout       time.Duration `yaml:"discovery_timeout"`
	PlanningTimeout        time.Duration `yaml:"planning_timeout"`
	ExecutionTimeout       time.Duration `yaml:"execution_timeout"`
	AnthropicModel         string        `yaml:"anthropic_model"`
	AnthropicMaxTokens     int64         `yaml:"anthropic_max_tokens"`
	CachePrompts           bool          `yaml:"cache_prompts"`
	AsyncWorkers           int           `yaml:"async_workers"`
	AsyncRetention         time.Duration `yaml:"async_retention"`
	ListenAddr             string        `yaml:"listen_addr"`
	AllowedOrigins         []string      `yaml:"allowed_origins"`
	DisableMCP             bool          `yaml:"disable_mcp"`
	CompileRatePerMin      int           `yaml:"compile_rate_per_min"`
	CompileBurst           int           `yaml:"compile_burst"`
	SentryEnvironment      string        `yaml:"sentry_environment"`
	SentryTracesSampleRate float64       `yaml:"sentry_traces_sample_rate"`
}

type S3Config struct {
	URI             string `yaml:"uri"`
	Region          string `yaml:"region"`
	Endpoint        string `yaml:"endpoint"`
	AccessKeyID     string `yaml:"access_key_id"`
	SecretAccessKey string `yaml:"secret_access_key"`
}

type ClickHouseConfig struct {
	Addr     string   `yaml:"addr"`
	Database string   `yaml:"database"`
	Username string   `yaml:"username"`
	Password string   `yaml:"password"`
	Secure   bool     `yaml:"secure"`
	Tables   []string `yaml:"tables"`
}

type Neo4jConfig struct {
	URI      string `yaml:"uri"`
	Database string `yaml:"database"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
}

// LoadConfig reads path when it is non-empty, then applies environment overrides.
func LoadConfig(path string) (Config, error) {
	var cfg Config
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("failed to parse config file: %w", err)
		}
	}
	if err := cfg.applyEnv(); err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (cfg *Config) applyEnv() error {
	if v := os.Getenv("ADOS_PATHS"); v != "" {
		cfg.Paths = splitList(v)
	}
	envString(&cfg.S3.URI, "ADOS_S3_URI")
	envString(&cfg.S3.Region, "AWS_REGION")
	envString(&cfg.S3.Endpoint, "ADOS_S3_ENDPOINT")
	envString(&cfg.S3.AccessKeyID, "AWS_ACCESS_KEY_ID")
	envString(&cfg.S3.SecretAccessKey, "AWS_SECRET_ACCESS_KEY")

	envString(&cfg.ClickHouse.Addr, "CLICKHOUSE_ADDR_TCP")
	envString(&cfg.ClickHouse.Database, "CLICKHOUSE_DATABASE")
	envString(&cfg.ClickHouse.Username, "CLICKHOUSE_USERNAME")
	envString(&cfg.ClickHouse.Password, "CLICKHOUSE_PASSWORD")
	if os.Getenv("CLICKHOUSE_SECURE") == "true" {
		cfg.ClickHouse.Secure = true
	}

	envString(&cfg.Neo4j.URI, "NEO4J_URI")
	envString(&cfg.Neo4j.Database, "NEO4J_DATABASE")
	envString(&cfg.Neo4j.Username, "NEO4J_USERNAME")
	envString(&cfg.Neo4j.Password, "NEO4J_PASSWORD")

	envString(&cfg.Engine, "ADOS_ENGINE")
	envString(&cfg.AnthropicModel, "ANTHROPIC_MODEL")
	envString(&cfg.ListenAddr, "ADOS_LISTEN_ADDR")
	envString(&cfg.SentryEnvironment, "SENTRY_ENVIRONMENT")
	if v := os.Getenv("ADOS_ALLOWED_ORIGINS"); v != "" {
		cfg.AllowedOrigins = splitList(v)
	}
	if v := os.Getenv("ADOS_REFRESH_INTERVAL"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("invalid ADOS_REFRESH_INTERVAL: %w", err)
		}
		cfg.RefreshInterval = d
	}
	if v := os.Getenv("ADOS_MAX_ROWS"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid ADOS_MAX_ROWS: %w", err)
		}
		cfg.MaxRows = n
	}
	return nil
}

func (cfg *Config) Validate() error {
	if len(cfg.Paths) == 0 && cfg.S3.URI == "" && cfg.ClickHouse.Addr == "" {
		return errors.New("no dataset source configured: set paths, s3.uri or clickhouse.addr")
	}
	switch cfg.Engine {
	case "":
		cfg.Engine = engine.DialectDuckDB
	case engine.DialectDuckDB:
	case engine.DialectClickHouse:
		if cfg.ClickHouse.Addr == "" {
			return errors.New("clickhouse engine requires clickhouse.addr")
		}
	default:
		return fmt.Errorf("unknown engine %q: must be %s or %s", cfg.Engine, engine.DialectDuckDB, engine.DialectClickHouse)
	}
	if cfg.MaxRows < 0 {
		return errors.New("max_rows must not be negative")
	}
	if cfg.MaxRows == 0 {
		cfg.MaxRows = 10000
	}
	if cfg.RefreshInterval < 0 {
		return errors.New("refresh_interval must not be negative")
	}
	if cfg.CompileRatePerMin < 0 || cfg.CompileBurst < 0 {
		return errors.New("compile rate limits must not be negative")
	}
	return nil
}

func envString(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func splitList(s string) []string {
	var out []string
	for part := range strings.SplitSeq(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

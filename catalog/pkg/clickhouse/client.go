package clickhouse

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2"
	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"
	"github.com/malbeclabs/ados/utils/pkg/retry"
)

const (
	DefaultDatabase          = "default"
	DefaultMaxExecutionTime  = 60
	DefaultDialTimeout       = 5 * time.Second
	readOnlyAllowingSettings = 2
)

// Config configures a ClickHouse client.
type Config struct {
	Logger   *slog.Logger
	Addr     string
	Database string
	Username string
	Password string

	// Secure enables TLS (ClickHouse Cloud, port 9440).
	Secure bool

	// ReadOnly opens the session with readonly=2 so only SELECT-like statements run.
	ReadOnly bool

	MaxExecutionTime int
	DialTimeout      time.Duration
	Retry            retry.Config
}

func (cfg *Config) Validate() error {
	if cfg.Logger == nil {
		return errors.New("logger is required")
	}
	if cfg.Addr == "" {
		return errors.New("addr is required")
	}
	if cfg.Database == "" {
		cfg.Database = DefaultDatabase
	}
	if cfg.Username == "" {
		cfg.Username = "default"
	}
	if cfg.MaxExecutionTime <= 0 {
		cfg.MaxExecutionTime = DefaultMaxExecutionTime
	}
	if cfg.DialTimeout <= 0 {
		cfg.DialTimeout = DefaultDialTimeout
	}
	if cfg.Retry.MaxAttempts == 0 {
		cfg.Retry = retry.DefaultConfig()
	}
	return nil
}

// Client represents a ClickHouse database connection
type Client interface {
	Conn(ctx context.Context) (Connection, error)
	Database() string
	Close() error
}

// Connection represents a ClickHouse connection
type Connection interface {
	Exec(ctx context.Context, query string, args ...any) error
	Query(ctx context.Context, query string, args ...any) (driver.Rows, error)
	Close() error
}

type client struct {
	conn     driver.Conn
	database string
	log      *slog.Logger
}

type connection struct {
	conn driver.Conn
}

// NewClient opens and pings a ClickHouse connection, retrying transient dial errors.
func NewClient(ctx context.Context, cfg Config) (Client, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid clickhouse config: %w", err)
	}

	settings := clickhouse.Settings{
		"max_execution_time": cfg.MaxExecutionTime,
	}
	if cfg.ReadOnly {
		settings["readonly"] = readOnlyAllowingSettings
	}

	options := &clickhouse.Options{
		Addr: []string{cfg.Addr},
		Auth: clickhouse.Auth{
			Database: cfg.Database,
			Username: cfg.Username,
			Password: cfg.Password,
		},
		Settings:    settings,
		DialTimeout: cfg.DialTimeout,
	}
	if cfg.Secure {
		options.TLS = &tls.Config{}
	}

	conn, err := clickhouse.Open(options)
	if err != nil {
		return nil, fmt.Errorf("failed to open ClickHouse connection: %w", err)
	}

	pingCfg := cfg.Retry
	pingCfg.OnRetry = func(attempt int, err error) {
		cfg.Logger.Debug("clickhouse: ping failed, retrying", "attempt", attempt, "error", err)
	}
	if err := retry.Do(ctx, pingCfg, func() error { return conn.Ping(ctx) }); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to ping ClickHouse: %w", err)
	}

	cfg.Logger.Info("clickhouse: client initialized", "addr", cfg.Addr, "database", cfg.Database, "secure", cfg.Secure, "readonly", cfg.ReadOnly)

	return &client{
		conn:     conn,
		database: cfg.Database,
		log:      cfg.Logger,
	}, nil
}

func (c *client) Conn(ctx context.Context) (Connection, error) {
	return &connection{conn: c.conn}, nil
}

func (c *client) Database() string {
	return c.database
}

func (c *client) Close() error {
	return c.conn.Close()
}

func (c *connection) Exec(ctx context.Context, query string, args ...any) error {
	return c.conn.Exec(ctx, query, args...)
}

func (c *connection) Query(ctx context.Context, query string, args ...any) (driver.Rows, error) {
	return c.conn.Query(ctx, query, args...)
}

func (c *connection) Close() error {
	// Connection is shared, don't close it
	return nil
}

package neo4jtesting

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/malbeclabs/ados/graph/pkg/neo4j"
	"github.com/malbeclabs/ados/utils/pkg/retry"
	tcneo4j "github.com/testcontainers/testcontainers-go/modules/neo4j"
)

type DBConfig struct {
	Password       string
	ContainerImage string
}

func (cfg *DBConfig) Validate() error {
	if cfg.Password == "" {
		cfg.Password = "password"
	}
	if cfg.ContainerImage == "" {
		cfg.ContainerImage = "neo4j:5-community"
	}
	return nil
}

// DB is a Neo4j container shared by a test package.
type DB struct {
	log       *slog.Logger
	cfg       *DBConfig
	boltURL   string
	container *tcneo4j.Neo4jContainer
}

func (db *DB) BoltURL() string {
	return db.boltURL
}

func (db *DB) Password() string {
	return db.cfg.Password
}

func (db *DB) Close() {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := db.container.Terminate(ctx); err != nil {
		db.log.Error("failed to terminate Neo4j container", "error", err)
	}
}

func NewDB(ctx context.Context, log *slog.Logger, cfg *DBConfig) (*DB, error) {
	if cfg == nil {
		cfg = &DBConfig{}
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("failed to validate DB config: %w", err)
	}

	startCfg := retry.Config{
		MaxAttempts: 3,
		BaseBackoff: 750 * time.Millisecond,
		MaxBackoff:  3 * time.Second,
		Retryable: func(err error) bool {
			s := err.Error()
			return strings.Contains(s, "wait until ready") || strings.Contains(s, "mapped port") || strings.Contains(s, "timeout")
		},
	}
	container, err := retry.DoValue(ctx, startCfg, func() (*tcneo4j.Neo4jContainer, error) {
		return tcneo4j.Run(ctx, cfg.ContainerImage, tcneo4j.WithAdminPassword(cfg.Password))
	})
	if err != nil {
		return nil, fmt.Errorf("failed to start Neo4j container: %w", err)
	}

	boltURL, err := container.BoltUrl(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get Neo4j bolt url: %w", err)
	}

	return &DB{log: log, cfg: cfg, boltURL: boltURL, container: container}, nil
}

// NewTestClient returns a read-write client. The database is wiped on cleanup, so tests
// sharing a container must not run in parallel.
func NewTestClient(t *testing.T, db *DB) (neo4j.Client, error) {
	client, err := neo4j.NewClient(t.Context(), db.log, db.boltURL, neo4j.DefaultDatabase, "neo4j", db.cfg.Password)
	if err != nil {
		return nil, err
	}
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if session, err := client.Session(ctx); err == nil {
			if res, err := session.Run(ctx, "MATCH (n) DETACH DELETE n", nil); err == nil {
				_, _ = res.Consume(ctx)
			}
			_ = session.Close(ctx)
		}
		_ = client.Close(ctx)
	})
	return client, nil
}

func NewReadOnlyTestClient(t *testing.T, db *DB) (neo4j.Client, error) {
	client, err := neo4j.NewReadOnlyClient(t.Context(), db.log, db.boltURL, neo4j.DefaultDatabase, "neo4j", db.cfg.Password)
	if err != nil {
		return nil, err
	}
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = client.Close(ctx)
	})
	return client, nil
}

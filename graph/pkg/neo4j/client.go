package neo4j

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
)

const DefaultDatabase = "neo4j"

type (
	Result          = neo4j.ResultWithContext
	Transaction     = neo4j.ManagedTransaction
	TransactionWork = func(tx Transaction) (any, error)
)

// Client represents a Neo4j driver bound to one database.
type Client interface {
	Session(ctx context.Context) (Session, error)
	Close(ctx context.Context) error
}

// Session represents a Neo4j session.
type Session interface {
	Run(ctx context.Context, cypher string, params map[string]any) (Result, error)
	ExecuteRead(ctx context.Context, work TransactionWork) (any, error)
	ExecuteWrite(ctx context.Context, work TransactionWork) (any, error)
	Close(ctx context.Context) error
}

type client struct {
	driver     neo4j.DriverWithContext
	database   string
	accessMode neo4j.AccessMode
	log        *slog.Logger
}

type session struct {
	session neo4j.SessionWithContext
}

// NewClient creates a read-write client and verifies connectivity.
func NewClient(ctx context.Context, log *slog.Logger, uri, database, username, password string) (Client, error) {
	return newClient(ctx, log, uri, database, username, password, neo4j.AccessModeWrite)
}

// NewReadOnlyClient creates a client whose sessions run in read access mode.
func NewReadOnlyClient(ctx context.Context, log *slog.Logger, uri, database, username, password string) (Client, error) {
	return newClient(ctx, log, uri, database, username, password, neo4j.AccessModeRead)
}

func newClient(ctx context.Context, log *slog.Logger, uri, database, username, password string, mode neo4j.AccessMode) (Client, error) {
	if database == "" {
		database = DefaultDatabase
	}
	driver, err := neo4j.NewDriverWithContext(uri, neo4j.BasicAuth(username, password, ""))
	if err != nil {
		return nil, fmt.Errorf("failed to create Neo4j driver: %w", err)
	}
	if err := driver.VerifyConnectivity(ctx); err != nil {
		driver.Close(ctx)
		return nil, fmt.Errorf("failed to verify Neo4j connectivity: %w", err)
	}

	log.Info("neo4j: client initialized", "uri", uri, "database", database, "read_only", mode == neo4j.AccessModeRead)

	return &client{
		driver:     driver,
		database:   database,
		accessMode: mode,
		log:        log,
	}, nil
}

func (c *client) Session(ctx context.Context) (Session, error) {
	s := c.driver.NewSession(ctx, neo4j.SessionConfig{
		DatabaseName: c.database,
		AccessMode:   c.accessMode,
	})
	return &session{session: s}, nil
}

func (c *client) Close(ctx context.Context) error {
	return c.driver.Close(ctx)
}

func (s *session) Run(ctx context.Context, cypher string, params map[string]any) (Result, error) {
	return s.session.Run(ctx, cypher, params)
}

func (s *session) ExecuteRead(ctx context.Context, work TransactionWork) (any, error) {
	return s.session.ExecuteRead(ctx, work)
}

func (s *session) ExecuteWrite(ctx context.Context, work TransactionWork) (any, error) {
	return s.session.ExecuteWrite(ctx, work)
}

func (s *session) Close(ctx context.Context) error {
	return s.session.Close(ctx)
}

package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	flag "github.com/spf13/pflag"

	"github.com/malbeclabs/ados/admin/internal/admin"
	"github.com/malbeclabs/ados/api/audit"
	"github.com/malbeclabs/ados/api/config"
	"github.com/malbeclabs/ados/utils/pkg/logger"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	_ = godotenv.Load()

	verboseFlag := flag.Bool("verbose", false, "enable verbose (debug) logging")

	// PostgreSQL configuration
	pgHostFlag := flag.String("postgres-host", "localhost", "PostgreSQL host (or set POSTGRES_HOST env var)")
	pgPortFlag := flag.String("postgres-port", "5432", "PostgreSQL port (or set POSTGRES_PORT env var)")
	pgDatabaseFlag := flag.String("postgres-db", "", "PostgreSQL database (or set POSTGRES_DB env var)")
	pgUserFlag := flag.String("postgres-user", "", "PostgreSQL username (or set POSTGRES_USER env var)")
	pgPasswordFlag := flag.String("postgres-password", "", "PostgreSQL password (or set POSTGRES_PASSWORD env var)")
	pgSSLModeFlag := flag.String("postgres-sslmode", "disable", "PostgreSQL sslmode (or set POSTGRES_SSLMODE env var)")

	// Commands
	migrateFlag := flag.Bool("migrate", false, "Run audit store migrations using goose")
	migrateDownFlag := flag.Bool("migrate-down", false, "Roll back the most recent audit store migration")
	migrateStatusFlag := flag.Bool("migrate-status", false, "Show audit store migration status")
	resetDBFlag := flag.Bool("reset-db", false, "Roll back every migration, dropping all recorded runs")
	pruneRunsFlag := flag.Bool("prune-runs", false, "Delete recorded runs older than --older-than")
	dryRunFlag := flag.Bool("dry-run", false, "Dry run mode - show what would be done without actually executing")
	yesFlag := flag.Bool("yes", false, "Skip confirmation prompt (use with caution)")

	olderThanFlag := flag.Duration("older-than", 30*24*time.Hour, "Age cutoff for --prune-runs")

	flag.Parse()

	log := logger.New(*verboseFlag)

	// Override flags with environment variables if set
	for _, o := range []struct {
		env  string
		flag *string
	}{
		{"POSTGRES_HOST", pgHostFlag},
		{"POSTGRES_PORT", pgPortFlag},
		{"POSTGRES_DB", pgDatabaseFlag},
		{"POSTGRES_USER", pgUserFlag},
		{"POSTGRES_PASSWORD", pgPasswordFlag},
		{"POSTGRES_SSLMODE", pgSSLModeFlag},
	} {
		if v := os.Getenv(o.env); v != "" {
			*o.flag = v
		}
	}

	pgCfg := config.PgConfig{
		Host:     *pgHostFlag,
		Port:     *pgPortFlag,
		Database: *pgDatabaseFlag,
		Username: *pgUserFlag,
		Password: *pgPasswordFlag,
		SSLMode:  *pgSSLModeFlag,
	}
	prompt := admin.Prompt{In: os.Stdin, Out: os.Stdout, DryRun: *dryRunFlag, SkipConfirm: *yesFlag}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	switch {
	case *migrateFlag:
		return admin.MigrateUp(ctx, log, pgCfg)
	case *migrateDownFlag:
		return admin.MigrateDown(ctx, log, pgCfg)
	case *migrateStatusFlag:
		return admin.MigrateStatus(ctx, pgCfg)
	case *resetDBFlag:
		return admin.ResetDB(ctx, log, pgCfg, prompt)
	case *pruneRunsFlag:
		if *olderThanFlag <= 0 {
			return errors.New("--older-than must be positive")
		}
		pool, err := config.OpenPostgres(ctx, log, pgCfg)
		if err != nil {
			return err
		}
		defer pool.Close()
		store, err := audit.NewStore(audit.StoreConfig{Logger: log, Pool: pool})
		if err != nil {
			return err
		}
		return admin.PruneRuns(ctx, store, time.Now().Add(-*olderThanFlag), prompt)
	}

	flag.Usage()
	return nil
}

package admin

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/malbeclabs/ados/api/config"
)

// ResetDB rolls back every audit store migration, dropping all recorded runs.
func ResetDB(ctx context.Context, log *slog.Logger, cfg config.PgConfig, p Prompt) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	version, err := config.MigrationVersion(ctx, cfg.ConnStr())
	if err != nil {
		return err
	}
	if version == 0 {
		fmt.Fprintln(p.Out, "No migrations applied")
		return nil
	}

	fmt.Fprintf(p.Out, "WARNING: This will roll back %s to version 0 and drop every recorded run (current version %d)\n",
		cfg.Database, version)
	if p.DryRun {
		fmt.Fprintln(p.Out, "\n[DRY RUN] Would reset the audit store")
		return nil
	}
	ok, err := p.confirm()
	if err != nil || !ok {
		return err
	}

	if err := config.Reset(ctx, log, cfg.ConnStr()); err != nil {
		return err
	}
	fmt.Fprintln(p.Out, "Audit store reset")
	return nil
}

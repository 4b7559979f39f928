package admin

import (
	"context"
	"fmt"
	"time"
)

// RunPruner is the slice of the audit store that pruning needs.
type RunPruner interface {
	CountBefore(ctx context.Context, cutoff time.Time) (int, error)
	Prune(ctx context.Context, cutoff time.Time) (int64, error)
}

// PruneRuns deletes audit records that started before cutoff after confirmation.
func PruneRuns(ctx context.Context, store RunPruner, cutoff time.Time, p Prompt) error {
	n, err := store.CountBefore(ctx, cutoff)
	if err != nil {
		return err
	}
	if n == 0 {
		fmt.Fprintf(p.Out, "No runs started before %s\n", cutoff.Format(time.RFC3339))
		return nil
	}

	fmt.Fprintf(p.Out, "WARNING: This will DELETE %d run(s) started before %s\n", n, cutoff.Format(time.RFC3339))
	if p.DryRun {
		fmt.Fprintln(p.Out, "\n[DRY RUN] Would delete the above runs")
		return nil
	}
	ok, err := p.confirm()
	if err != nil || !ok {
		return err
	}

	deleted, err := store.Prune(ctx, cutoff)
	if err != nil {
		return err
	}
	fmt.Fprintf(p.Out, "Deleted %d run(s)\n", deleted)
	return nil
}

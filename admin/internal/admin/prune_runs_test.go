package admin

import (
	"bytes"
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type fakePruner struct {
	count  int
	pruned []time.Time
}

func (f *fakePruner) CountBefore(context.Context, time.Time) (int, error) { return f.count, nil }

func (f *fakePruner) Prune(_ context.Context, cutoff time.Time) (int64, error) {
	f.pruned = append(f.pruned, cutoff)
	return int64(f.count), nil
}

func TestADOS_Admin_PruneRuns(t *testing.T) {
	t.Parallel()
	cutoff := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)

	tests := []struct {
		name       string
		count      int
		prompt     Prompt
		input      string
		wantPruned bool
		wantOut    string
	}{
		{name: "nothing to prune", count: 0, wantOut: "No runs started before"},
		{name: "dry run", count: 3, prompt: Prompt{DryRun: true}, wantOut: "[DRY RUN]"},
		{name: "confirmed", count: 3, input: "YES\n", wantPruned: true, wantOut: "Deleted 3 run(s)"},
		{name: "declined", count: 3, input: "no\n", wantOut: "Operation cancelled"},
		{name: "closed stdin", count: 3, input: "", wantOut: "Operation cancelled"},
		{name: "skip confirm", count: 2, prompt: Prompt{SkipConfirm: true}, wantPruned: true, wantOut: "Deleted 2 run(s)"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			store := &fakePruner{count: tt.count}
			var out bytes.Buffer
			p := tt.prompt
			p.In = strings.NewReader(tt.input)
			p.Out = &out

			require.NoError(t, PruneRuns(t.Context(), store, cutoff, p))
			require.Contains(t, out.String(), tt.wantOut)
			if tt.wantPruned {
				require.Equal(t, []time.Time{cutoff}, store.pruned)
			} else {
				require.Empty(t, store.pruned)
			}
		})
	}
}

package compiler_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/malbeclabs/ados/agent/pkg/compiler"
	"github.com/malbeclabs/ados/agent/pkg/reasoning"
	adostesting "github.com/malbeclabs/ados/utils/pkg/testing"
	"github.com/stretchr/testify/require"
)

func newAsync(t *testing.T, c *compiler.Compiler, retention time.Duration) *compiler.Async {
	t.Helper()
	a, err := compiler.NewAsync(compiler.AsyncConfig{
		Logger:    adostesting.NewLogger(),
		Compiler:  c,
		Workers:   2,
		Retention: retention,
	})
	require.NoError(t, err)
	t.Cleanup(a.Close)
	return a
}

func TestADOS_Compiler_Async_RetrieveByID(t *testing.T) {
	t.Parallel()

	g := customerSales(t)
	release := make(chan struct{})
	r := &fakeReasoning{
		discover: func(ctx context.Context, intent string) (reasoning.Discovery, error) {
			if intent == "blocked" {
				<-release
			}
			return reasoning.Discovery{Datasets: []string{"customer", "sales"}}, nil
		},
		plan: plans(customerSalesQuery),
	}
	a := newAsync(t, newCompiler(t, g, r, duckDB(t, g)), time.Minute)

	ctx, cancel := context.WithCancel(t.Context())
	id, err := a.Submit(ctx, "blocked")
	require.NoError(t, err)
	// Cancelling the submitting request does not cancel the run.
	cancel()

	status, ok := a.Get(id)
	require.True(t, ok)
	require.Equal(t, "blocked", status.Intent)
	require.False(t, status.Done)
	require.Nil(t, status.Run)

	close(release)
	run, err := a.Wait(t.Context(), id)
	require.NoError(t, err)
	require.Equal(t, id, run.ID)
	require.Equal(t, compiler.StageDone, run.Stage)

	status, ok = a.Get(id)
	require.True(t, ok)
	require.True(t, status.Done)
	require.Same(t, run, status.Run)

	_, ok = a.Get("missing")
	require.False(t, ok)
	_, err = a.Wait(t.Context(), "missing")
	require.ErrorIs(t, err, compiler.ErrUnknownRun)
}

func TestADOS_Compiler_Async_Concurrent(t *testing.T) {
	t.Parallel()

	g := customerSales(t)
	r := &fakeReasoning{discover: discovers("customer", "sales"), plan: plans(customerSalesQuery)}
	a := newAsync(t, newCompiler(t, g, r, duckDB(t, g)), time.Minute)

	const n = 8
	ids := make([]string, n)
	for i := range ids {
		id, err := a.Submit(t.Context(), "total sales per customer")
		require.NoError(t, err)
		ids[i] = id
	}

	var wg sync.WaitGroup
	runs := make([]*compiler.Run, n)
	for i, id := range ids {
		wg.Add(1)
		go func() {
			defer wg.Done()
			run, err := a.Wait(t.Context(), id)
			if err == nil {
				runs[i] = run
			}
		}()
	}
	wg.Wait()

	seen := map[string]bool{}
	for i, run := range runs {
		require.NotNil(t, run)
		require.Equal(t, ids[i], run.ID)
		require.Equal(t, compiler.StageDone, run.Stage)
		seen[run.ID] = true
	}
	require.Len(t, seen, n)
	require.EqualValues(t, n, r.discoverCalls.Load())
}

func TestADOS_Compiler_Async_Expiry(t *testing.T) {
	t.Parallel()

	g := customerSales(t)
	r := &fakeReasoning{discover: discovers("ghost"), plan: plans("SELECT 1")}
	a := newAsync(t, newCompiler(t, g, r, duckDB(t, g)), 50*time.Millisecond)

	id, err := a.Submit(t.Context(), "anything")
	require.NoError(t, err)
	run, err := a.Wait(t.Context(), id)
	require.NoError(t, err)
	require.Equal(t, compiler.KindNotFound, run.Failure.Kind)

	require.Eventually(t, func() bool {
		_, ok := a.Get(id)
		return !ok
	}, 2*time.Second, 10*time.Millisecond)
}

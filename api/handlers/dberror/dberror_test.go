package dberror_test

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/malbeclabs/ados/api/handlers/dberror"
	"github.com/stretchr/testify/require"
)

func TestADOS_DBError_Classify(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		err  error
		want dberror.ErrorType
	}{
		{"nil", nil, dberror.ErrorTypeUnknown},
		{"connection exception", &pgconn.PgError{Code: "08006"}, dberror.ErrorTypeConnectivity},
		{"too many connections", &pgconn.PgError{Code: "53300"}, dberror.ErrorTypeConnectivity},
		{"query canceled", &pgconn.PgError{Code: "57014"}, dberror.ErrorTypeTimeout},
		{"invalid password", &pgconn.PgError{Code: "28P01"}, dberror.ErrorTypeAuth},
		{"unique violation", fmt.Errorf("failed to insert: %w", &pgconn.PgError{Code: "23505"}), dberror.ErrorTypeConflict},
		{"undefined table", &pgconn.PgError{Code: "42P01"}, dberror.ErrorTypeQuery},
		{"refused", errors.New("dial tcp 127.0.0.1:5432: connect: connection refused"), dberror.ErrorTypeConnectivity},
		{"timeout text", errors.New("i/o timed out"), dberror.ErrorTypeTimeout},
		{"other", errors.New("something"), dberror.ErrorTypeUnknown},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			require.Equal(t, tt.want, dberror.Classify(tt.err))
		})
	}
}

func TestADOS_DBError_IsTransient(t *testing.T) {
	t.Parallel()

	require.True(t, dberror.IsTransient(&pgconn.PgError{Code: "08006"}))
	require.True(t, dberror.IsTransient(errors.New("connection reset by peer")))
	require.False(t, dberror.IsTransient(&pgconn.PgError{Code: "23505"}))
	require.False(t, dberror.IsTransient(context.DeadlineExceeded))
	require.False(t, dberror.IsTransient(nil))
	require.Equal(t, "Record already exists.", dberror.UserMessage(&pgconn.PgError{Code: "23505"}))
}

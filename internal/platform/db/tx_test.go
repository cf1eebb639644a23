package db

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/require"
)

func TestWithSavepointWithoutTransactionRunsInline(t *testing.T) {
	called := false
	err := WithSavepoint(context.Background(), func(ctx context.Context) error {
		called = true
		return nil
	})
	require.NoError(t, err)
	require.True(t, called)
}

func TestWithSavepointPropagatesCallbackError(t *testing.T) {
	sentinel := errors.New("supplier lookup failed")
	err := WithSavepoint(context.Background(), func(ctx context.Context) error {
		return sentinel
	})
	require.ErrorIs(t, err, sentinel)
}

func TestIsSerializationFailure(t *testing.T) {
	for _, code := range []string{"40001", "40P01", "55P03"} {
		err := fmt.Errorf("query: %w", &pgconn.PgError{Code: code})
		require.True(t, IsSerializationFailure(err), "code %s must be retryable", code)
	}
	require.False(t, IsSerializationFailure(&pgconn.PgError{Code: "23505"}))
	require.False(t, IsSerializationFailure(errors.New("not a pg error")))
	require.False(t, IsSerializationFailure(nil))
}

func TestIsUniqueViolation(t *testing.T) {
	require.True(t, IsUniqueViolation(fmt.Errorf("insert: %w", &pgconn.PgError{Code: "23505"})))
	require.False(t, IsUniqueViolation(&pgconn.PgError{Code: "40001"}))
	require.False(t, IsUniqueViolation(errors.New("not a pg error")))
	require.False(t, IsUniqueViolation(nil))
}

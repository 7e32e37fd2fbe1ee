package repository

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWrapStoreErrNil(t *testing.T) {
	assert.NoError(t, wrapStoreErr("op", nil))
}

func TestWrapStoreErrConstraint(t *testing.T) {
	err := wrapStoreErr("upsert document", &pgconn.PgError{Code: "23505", Message: "duplicate key"})
	var se *StoreError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, StoreConstraint, se.Kind)
	assert.Equal(t, "upsert document", se.Op)
	assert.False(t, IsStoreConnectivity(err))
}

func TestWrapStoreErrQuery(t *testing.T) {
	err := wrapStoreErr("filter search", &pgconn.PgError{Code: "42703", Message: "undefined column"})
	var se *StoreError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, StoreQuery, se.Kind)
}

func TestWrapStoreErrConnectivity(t *testing.T) {
	err := wrapStoreErr("stats", context.DeadlineExceeded)
	assert.True(t, IsStoreConnectivity(err))
}

func TestWrapStoreErrUnwrap(t *testing.T) {
	cause := fmt.Errorf("boom")
	err := wrapStoreErr("clear", cause)
	assert.True(t, errors.Is(err, cause))
}

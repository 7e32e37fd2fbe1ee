package repository

import (
	"context"
	"errors"
	"fmt"
	"net"

	"github.com/jackc/pgx/v5/pgconn"
)

type StoreErrorKind string

const (
	// StoreConnectivity covers unreachable or timed-out backends. These
	// abort the current operation and surface to the caller.
	StoreConnectivity StoreErrorKind = "connectivity"
	// StoreConstraint covers integrity violations (duplicate keys,
	// broken foreign keys).
	StoreConstraint StoreErrorKind = "constraint"
	StoreQuery      StoreErrorKind = "query"
)

type StoreError struct {
	Kind StoreErrorKind
	Op   string
	Err  error
}

func (e *StoreError) Error() string {
	return fmt.Sprintf("store %s failed (%s): %v", e.Op, e.Kind, e.Err)
}

func (e *StoreError) Unwrap() error { return e.Err }

// IsStoreConnectivity reports whether err is a backend-availability
// failure, as opposed to a valid zero-result outcome.
func IsStoreConnectivity(err error) bool {
	var se *StoreError
	return errors.As(err, &se) && se.Kind == StoreConnectivity
}

func wrapStoreErr(op string, err error) error {
	if err == nil {
		return nil
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		// Class 23 = integrity constraint violation
		if len(pgErr.Code) >= 2 && pgErr.Code[:2] == "23" {
			return &StoreError{Kind: StoreConstraint, Op: op, Err: err}
		}
		return &StoreError{Kind: StoreQuery, Op: op, Err: err}
	}

	var connErr *pgconn.ConnectError
	var netErr net.Error
	if errors.As(err, &connErr) || errors.As(err, &netErr) ||
		errors.Is(err, context.DeadlineExceeded) {
		return &StoreError{Kind: StoreConnectivity, Op: op, Err: err}
	}

	return &StoreError{Kind: StoreQuery, Op: op, Err: err}
}

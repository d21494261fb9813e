package resilience

import (
	"errors"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
)

func TestIsTransient_Nil(t *testing.T) {
	if IsTransient(nil) {
		t.Error("nil should not be transient")
	}
}

func TestIsTransient_WrappedTransientError(t *testing.T) {
	err := fmt.Errorf("store: insert: %w", NewTransientError(errors.New("unavailable")))
	if !IsTransient(err) {
		t.Error("wrapped TransientError should be transient")
	}
}

func TestIsTransient_PostgresSerializationFailure(t *testing.T) {
	err := &pgconn.PgError{Code: "40001"}
	if !IsTransient(err) {
		t.Error("serialization_failure should be transient")
	}
}

func TestIsTransient_PostgresDeadlock(t *testing.T) {
	err := fmt.Errorf("store: update: %w", &pgconn.PgError{Code: "40P01"})
	if !IsTransient(err) {
		t.Error("deadlock_detected should be transient")
	}
}

func TestIsTransient_PostgresConstraintViolation(t *testing.T) {
	err := &pgconn.PgError{Code: "23505"}
	if IsTransient(err) {
		t.Error("unique_violation should not be transient")
	}
}

func TestIsTransient_SQLiteBusy(t *testing.T) {
	if !IsTransient(errors.New("database is locked (5) (SQLITE_BUSY)")) {
		t.Error("sqlite busy should be transient")
	}
}

func TestIsTransient_PermanentError(t *testing.T) {
	if IsTransient(errors.New("no rows in result set")) {
		t.Error("permanent error should not be transient")
	}
}

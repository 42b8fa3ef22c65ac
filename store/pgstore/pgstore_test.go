package pgstore

import (
	"errors"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

func TestParseIsolation(t *testing.T) {
	tests := map[string]pgx.TxIsoLevel{
		"":                pgx.ReadCommitted,
		"read committed":  pgx.ReadCommitted,
		"READ_COMMITTED":  pgx.ReadCommitted,
		"repeatable read": pgx.RepeatableRead,
		" Serializable ":  pgx.Serializable,
	}
	for in, want := range tests {
		got, err := ParseIsolation(in)
		if err != nil || got != want {
			t.Errorf("ParseIsolation(%q) = %q, %v; want %q", in, got, err, want)
		}
	}
	if _, err := ParseIsolation("read uncommitted"); err == nil {
		t.Error("unsupported level should error")
	}
}

func TestErrorClassification(t *testing.T) {
	serial := fmt.Errorf("commit: %w", &pgconn.PgError{Code: "40001"})
	deadlock := &pgconn.PgError{Code: "40P01"}
	unique := &pgconn.PgError{Code: "23505"}
	if !isRetryable(serial) || !isRetryable(deadlock) {
		t.Error("serialization failures and deadlocks should retry")
	}
	if isRetryable(unique) || isRetryable(errors.New("boom")) {
		t.Error("other errors must not retry")
	}
	if !isUniqueViolation(unique) || isUniqueViolation(serial) {
		t.Error("unique violation misclassified")
	}
}

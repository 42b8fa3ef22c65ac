// Package pgstore is the Postgres implementation of the engine's store.
// Accounts are locked with SELECT ... FOR UPDATE for the whole purchase, and
// serialization failures are retried with backoff.
package pgstore

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/Ashenafi-pixel/gamecrafter-case-server/ledger"
	"github.com/Ashenafi-pixel/gamecrafter-case-server/store"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

//go:embed schema.sql
var schema string

var _ store.Store = (*Store)(nil)

type Store struct {
	pool       *pgxpool.Pool
	iso        pgx.TxIsoLevel
	maxRetries int
}

func New(pool *pgxpool.Pool, iso pgx.TxIsoLevel, maxRetries int) *Store {
	if maxRetries < 1 {
		maxRetries = 1
	}
	return &Store{pool: pool, iso: iso, maxRetries: maxRetries}
}

// Migrate creates the tables if they do not exist.
func (s *Store) Migrate(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	return nil
}

// ParseIsolation maps a config value such as "read committed" to a pgx level.
func ParseIsolation(v string) (pgx.TxIsoLevel, error) {
	switch strings.ToLower(strings.TrimSpace(strings.ReplaceAll(v, "_", " "))) {
	case "", "read committed":
		return pgx.ReadCommitted, nil
	case "repeatable read":
		return pgx.RepeatableRead, nil
	case "serializable":
		return pgx.Serializable, nil
	}
	return "", fmt.Errorf("unknown isolation level %q", v)
}

func (s *Store) WithTx(ctx context.Context, fn func(ctx context.Context, tx store.Tx) error) error {
	retryDelay := 75 * time.Millisecond
	for attempt := 0; attempt < s.maxRetries; attempt++ {
		err := s.runTx(ctx, fn)
		if err == nil || !isRetryable(err) {
			return err
		}
		if attempt == s.maxRetries-1 {
			break
		}
		if err := sleepWithContext(ctx, retryDelay); err != nil {
			return err
		}
		if retryDelay < 1200*time.Millisecond {
			retryDelay *= 2
		}
	}
	return store.ErrTxConflict
}

func (s *Store) runTx(ctx context.Context, fn func(ctx context.Context, tx store.Tx) error) error {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: s.iso})
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)
	if err := fn(ctx, &pgTx{tx: tx}); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

func (s *Store) Purchase(ctx context.Context, key string) (*ledger.PurchaseRecord, error) {
	return getPurchase(ctx, s.pool, key)
}

func (s *Store) RecordFailure(ctx context.Context, rec *ledger.PurchaseRecord) error {
	tag, err := s.pool.Exec(ctx, `
		INSERT INTO purchase_records (idempotency_key, id, account_id, case_id, quantity, total_price, total_paid, status, error, created_at)
		VALUES ($1, $2, $3, $4, $5, $6::numeric, $7::numeric, 'failed', $8, $9)
		ON CONFLICT (idempotency_key) DO UPDATE
		SET id = EXCLUDED.id, error = EXCLUDED.error, created_at = EXCLUDED.created_at
		WHERE purchase_records.status = 'failed'
	`, rec.IdempotencyKey, rec.ID, rec.AccountID, rec.CaseID, rec.Quantity,
		rec.TotalPrice.String(), rec.TotalPaid.String(), rec.Error, rec.CreatedAt)
	if err != nil {
		return fmt.Errorf("record failure: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return store.ErrDuplicateKey
	}
	return nil
}

type querier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

func getPurchase(ctx context.Context, q querier, key string) (*ledger.PurchaseRecord, error) {
	var (
		rec         ledger.PurchaseRecord
		total, paid string
		status      string
		receipt     []byte
		errText     *string
	)
	err := q.QueryRow(ctx, `
		SELECT idempotency_key, id, account_id, case_id, quantity, total_price::text, total_paid::text,
		       status, receipt, error, created_at
		FROM purchase_records
		WHERE idempotency_key = $1
	`, key).Scan(&rec.IdempotencyKey, &rec.ID, &rec.AccountID, &rec.CaseID, &rec.Quantity, &total, &paid,
		&status, &receipt, &errText, &rec.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	if rec.TotalPrice, err = decimal.NewFromString(total); err != nil {
		return nil, err
	}
	if rec.TotalPaid, err = decimal.NewFromString(paid); err != nil {
		return nil, err
	}
	rec.Status = ledger.PurchaseStatus(status)
	rec.Receipt = receipt
	if errText != nil {
		rec.Error = *errText
	}
	return &rec, nil
}

// isRetryable matches serialization failures and deadlocks.
func isRetryable(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && (pgErr.Code == "40001" || pgErr.Code == "40P01")
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

func sleepWithContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Package store defines the persistence contract of the purchase engine.
// Everything a purchase touches goes through one Tx, so the debit, the
// credits, the session counters and every record commit or vanish together.
package store

import (
	"context"
	"errors"

	"github.com/Ashenafi-pixel/gamecrafter-case-server/cases"
	"github.com/Ashenafi-pixel/gamecrafter-case-server/ledger"
	"github.com/Ashenafi-pixel/gamecrafter-case-server/session"
	"github.com/shopspring/decimal"
)

var (
	ErrNotFound = errors.New("not found")
	// ErrDuplicateKey means a completed purchase already holds the idempotency key.
	ErrDuplicateKey = errors.New("idempotency key already completed")
	// ErrTxConflict means the transaction kept losing serialization races.
	// Retrying with the same idempotency key is safe.
	ErrTxConflict = errors.New("transaction conflict, retry")
)

type Store interface {
	// WithTx runs fn in one transaction and commits if it returns nil.
	// Implementations may run fn more than once.
	WithTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error
	// Purchase reads a purchase record outside any transaction.
	Purchase(ctx context.Context, key string) (*ledger.PurchaseRecord, error)
	// RecordFailure writes a failed record for key unless a completed one exists.
	RecordFailure(ctx context.Context, rec *ledger.PurchaseRecord) error
}

type Tx interface {
	cases.Reader

	Purchase(ctx context.Context, key string) (*ledger.PurchaseRecord, error)
	// LockAccount reads the account and holds it until the transaction ends.
	LockAccount(ctx context.Context, id string) (*ledger.Account, error)
	UpdateBalance(ctx context.Context, accountID string, field ledger.BalanceField, balance decimal.Decimal) error

	// ActiveSession returns the account's open session, locked.
	ActiveSession(ctx context.Context, accountID string) (*session.PlaySession, error)
	Session(ctx context.Context, id string) (*session.PlaySession, error)
	CreateSession(ctx context.Context, s *session.PlaySession) error
	UpdateSession(ctx context.Context, s *session.PlaySession) error

	AppendLedger(ctx context.Context, entries []ledger.Entry) error
	AppendAudit(ctx context.Context, records []ledger.AuditRecord) error
	// SavePurchase stores a completed record. It returns ErrDuplicateKey if
	// the key is already completed and replaces a failed record otherwise.
	SavePurchase(ctx context.Context, rec *ledger.PurchaseRecord) error
}

package pgstore

import (
	"context"
	"errors"
	"fmt"

	"github.com/Ashenafi-pixel/gamecrafter-case-server/cases"
	"github.com/Ashenafi-pixel/gamecrafter-case-server/ledger"
	"github.com/Ashenafi-pixel/gamecrafter-case-server/session"
	"github.com/Ashenafi-pixel/gamecrafter-case-server/store"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"
)

var _ store.Tx = (*pgTx)(nil)

type pgTx struct {
	tx pgx.Tx
}

func (t *pgTx) GetCase(ctx context.Context, id string) (*cases.Case, error) {
	return loadCase(ctx, t.tx, id)
}

type rowsQuerier interface {
	querier
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

func loadCase(ctx context.Context, q rowsQuerier, id string) (*cases.Case, error) {
	var c cases.Case
	var price string
	err := q.QueryRow(ctx, `SELECT id, name, price::text, active FROM cases WHERE id = $1`, id).
		Scan(&c.ID, &c.Name, &price, &c.Active)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, cases.ErrCaseNotFound
	}
	if err != nil {
		return nil, err
	}
	if c.Price, err = decimal.NewFromString(price); err != nil {
		return nil, err
	}
	rows, err := q.Query(ctx, `
		SELECT id, name, value::text, weight::text, payable, active
		FROM prizes
		WHERE case_id = $1
		ORDER BY position, id
	`, id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var p cases.Prize
		var value, weight string
		if err := rows.Scan(&p.ID, &p.Name, &value, &weight, &p.Payable, &p.Active); err != nil {
			return nil, err
		}
		if p.Value, err = decimal.NewFromString(value); err != nil {
			return nil, err
		}
		if p.Weight, err = decimal.NewFromString(weight); err != nil {
			return nil, err
		}
		c.Prizes = append(c.Prizes, p)
	}
	return &c, rows.Err()
}

func (t *pgTx) Purchase(ctx context.Context, key string) (*ledger.PurchaseRecord, error) {
	return getPurchase(ctx, t.tx, key)
}

func (t *pgTx) LockAccount(ctx context.Context, id string) (*ledger.Account, error) {
	var a ledger.Account
	var class, realBal, demoBal string
	err := t.tx.QueryRow(ctx, `
		SELECT id, class, balance_real::text, balance_demo::text, active, banned
		FROM accounts
		WHERE id = $1
		FOR UPDATE
	`, id).Scan(&a.ID, &class, &realBal, &demoBal, &a.Active, &a.Banned)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	a.Class = ledger.AccountClass(class)
	if a.BalanceReal, err = decimal.NewFromString(realBal); err != nil {
		return nil, err
	}
	if a.BalanceDemo, err = decimal.NewFromString(demoBal); err != nil {
		return nil, err
	}
	return &a, nil
}

func (t *pgTx) UpdateBalance(ctx context.Context, accountID string, field ledger.BalanceField, balance decimal.Decimal) error {
	column := "balance_real"
	if field == ledger.BalanceDemo {
		column = "balance_demo"
	}
	tag, err := t.tx.Exec(ctx, `
		UPDATE accounts SET `+column+` = $1::numeric, updated_at = now() WHERE id = $2
	`, balance.String(), accountID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return store.ErrNotFound
	}
	return nil
}

const sessionColumns = `id, account_id, spent::text, paid_out::text, payout_ceiling::text, active, started_at, last_activity_at`

func scanSession(row pgx.Row) (*session.PlaySession, error) {
	var ps session.PlaySession
	var spent, paid, ceiling string
	err := row.Scan(&ps.ID, &ps.AccountID, &spent, &paid, &ceiling, &ps.Active, &ps.StartedAt, &ps.LastActivityAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	for _, f := range []struct {
		dst *decimal.Decimal
		src string
	}{{&ps.Spent, spent}, {&ps.PaidOut, paid}, {&ps.PayoutCeiling, ceiling}} {
		if *f.dst, err = decimal.NewFromString(f.src); err != nil {
			return nil, err
		}
	}
	return &ps, nil
}

func (t *pgTx) ActiveSession(ctx context.Context, accountID string) (*session.PlaySession, error) {
	return scanSession(t.tx.QueryRow(ctx, `
		SELECT `+sessionColumns+`
		FROM play_sessions
		WHERE account_id = $1 AND active
		FOR UPDATE
	`, accountID))
}

func (t *pgTx) Session(ctx context.Context, id string) (*session.PlaySession, error) {
	return scanSession(t.tx.QueryRow(ctx, `SELECT `+sessionColumns+` FROM play_sessions WHERE id = $1`, id))
}

func (t *pgTx) CreateSession(ctx context.Context, s *session.PlaySession) error {
	_, err := t.tx.Exec(ctx, `
		INSERT INTO play_sessions (id, account_id, spent, paid_out, payout_ceiling, active, started_at, last_activity_at)
		VALUES ($1, $2, $3::numeric, $4::numeric, $5::numeric, $6, $7, $8)
	`, s.ID, s.AccountID, s.Spent.String(), s.PaidOut.String(), s.PayoutCeiling.String(), s.Active, s.StartedAt, s.LastActivityAt)
	if isUniqueViolation(err) {
		return fmt.Errorf("%w: account %s already has an open session", store.ErrTxConflict, s.AccountID)
	}
	return err
}

func (t *pgTx) UpdateSession(ctx context.Context, s *session.PlaySession) error {
	tag, err := t.tx.Exec(ctx, `
		UPDATE play_sessions
		SET spent = $2::numeric, paid_out = $3::numeric, payout_ceiling = $4::numeric,
		    active = $5, last_activity_at = $6
		WHERE id = $1
	`, s.ID, s.Spent.String(), s.PaidOut.String(), s.PayoutCeiling.String(), s.Active, s.LastActivityAt)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (t *pgTx) AppendLedger(ctx context.Context, entries []ledger.Entry) error {
	if len(entries) == 0 {
		return nil
	}
	batch := &pgx.Batch{}
	for _, e := range entries {
		batch.Queue(`
			INSERT INTO ledger_entries (id, account_id, session_id, purchase_id, kind, field, amount, case_id, prize_id, created_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7::numeric, $8, NULLIF($9, ''), $10)
		`, e.ID, e.AccountID, e.SessionID, e.PurchaseID, string(e.Kind), string(e.Field), e.Amount.String(), e.CaseID, e.PrizeID, e.CreatedAt)
	}
	return t.tx.SendBatch(ctx, batch).Close()
}

func (t *pgTx) AppendAudit(ctx context.Context, records []ledger.AuditRecord) error {
	if len(records) == 0 {
		return nil
	}
	batch := &pgx.Batch{}
	for _, r := range records {
		batch.Queue(`
			INSERT INTO draw_audit (id, purchase_id, account_id, session_id, case_id, unit, verdict, reason, prize_id, value,
			                        rtp, expected, scale, sample, remaining_before, remaining_after, trace, duration_us, created_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, NULLIF($8, ''), NULLIF($9, ''), $10::numeric,
			        $11, $12, $13, $14, $15::numeric, $16::numeric, $17::jsonb, $18, $19)
		`, r.ID, r.PurchaseID, r.AccountID, r.SessionID, r.CaseID, r.Unit, r.Verdict, r.Reason, r.PrizeID, r.Value.String(),
			r.RTP, r.Expected, r.Scale, r.Sample, r.RemainingBefore.String(), r.RemainingAfter.String(),
			string(r.Trace), r.Duration.Microseconds(), r.CreatedAt)
	}
	return t.tx.SendBatch(ctx, batch).Close()
}

func (t *pgTx) SavePurchase(ctx context.Context, rec *ledger.PurchaseRecord) error {
	tag, err := t.tx.Exec(ctx, `
		INSERT INTO purchase_records (idempotency_key, id, account_id, case_id, quantity, total_price, total_paid, status, receipt, error, created_at)
		VALUES ($1, $2, $3, $4, $5, $6::numeric, $7::numeric, $8, $9::jsonb, NULLIF($10, ''), $11)
		ON CONFLICT (idempotency_key) DO UPDATE
		SET id = EXCLUDED.id, account_id = EXCLUDED.account_id, case_id = EXCLUDED.case_id,
		    quantity = EXCLUDED.quantity, total_price = EXCLUDED.total_price, total_paid = EXCLUDED.total_paid,
		    status = EXCLUDED.status, receipt = EXCLUDED.receipt, error = EXCLUDED.error, created_at = EXCLUDED.created_at
		WHERE purchase_records.status = 'failed'
	`, rec.IdempotencyKey, rec.ID, rec.AccountID, rec.CaseID, rec.Quantity, rec.TotalPrice.String(), rec.TotalPaid.String(),
		string(rec.Status), string(rec.Receipt), rec.Error, rec.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return store.ErrDuplicateKey
		}
		return fmt.Errorf("save purchase: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return store.ErrDuplicateKey
	}
	return nil
}

// UpsertCase writes a case and its prize table. Prizes missing from c are
// deactivated rather than deleted so old audit rows keep their reference.
func (s *Store) UpsertCase(ctx context.Context, c *cases.Case) error {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `
		INSERT INTO cases (id, name, price, active)
		VALUES ($1, $2, $3::numeric, $4)
		ON CONFLICT (id) DO UPDATE
		SET name = EXCLUDED.name, price = EXCLUDED.price, active = EXCLUDED.active, updated_at = now()
	`, c.ID, c.Name, c.Price.String(), c.Active); err != nil {
		return fmt.Errorf("upsert case: %w", err)
	}
	if _, err := tx.Exec(ctx, `UPDATE prizes SET active = false WHERE case_id = $1`, c.ID); err != nil {
		return fmt.Errorf("deactivate prizes: %w", err)
	}
	for i, p := range c.Prizes {
		if _, err := tx.Exec(ctx, `
			INSERT INTO prizes (case_id, id, name, value, weight, payable, active, position)
			VALUES ($1, $2, $3, $4::numeric, $5::numeric, $6, $7, $8)
			ON CONFLICT (case_id, id) DO UPDATE
			SET name = EXCLUDED.name, value = EXCLUDED.value, weight = EXCLUDED.weight,
			    payable = EXCLUDED.payable, active = EXCLUDED.active, position = EXCLUDED.position
		`, c.ID, p.ID, p.Name, p.Value.String(), p.Weight.String(), p.Payable, p.Active, i); err != nil {
			return fmt.Errorf("upsert prize %s: %w", p.ID, err)
		}
	}
	return tx.Commit(ctx)
}

// GetCase reads a case outside any transaction.
func (s *Store) GetCase(ctx context.Context, id string) (*cases.Case, error) {
	return loadCase(ctx, s.pool, id)
}

// UpsertAccount creates or replaces an account. Used for seeding.
func (s *Store) UpsertAccount(ctx context.Context, a ledger.Account) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO accounts (id, class, balance_real, balance_demo, active, banned)
		VALUES ($1, $2, $3::numeric, $4::numeric, $5, $6)
		ON CONFLICT (id) DO UPDATE
		SET class = EXCLUDED.class, balance_real = EXCLUDED.balance_real, balance_demo = EXCLUDED.balance_demo,
		    active = EXCLUDED.active, banned = EXCLUDED.banned, updated_at = now()
	`, a.ID, string(a.Class), a.BalanceReal.String(), a.BalanceDemo.String(), a.Active, a.Banned)
	return err
}

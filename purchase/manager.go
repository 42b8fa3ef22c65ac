package purchase

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/Ashenafi-pixel/gamecrafter-case-server/cases"
	"github.com/Ashenafi-pixel/gamecrafter-case-server/draw"
	"github.com/Ashenafi-pixel/gamecrafter-case-server/gamemath"
	"github.com/Ashenafi-pixel/gamecrafter-case-server/ledger"
	"github.com/Ashenafi-pixel/gamecrafter-case-server/metrics"
	"github.com/Ashenafi-pixel/gamecrafter-case-server/session"
	"github.com/Ashenafi-pixel/gamecrafter-case-server/store"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// ReplayCache is an optional fast path for repeated idempotency keys. The
// store stays authoritative.
type ReplayCache interface {
	Load(ctx context.Context, key string) ([]byte, bool, error)
	Store(ctx context.Context, key string, receipt []byte) error
}

type Settings struct {
	Profiles    ledger.Profiles
	Policy      session.Policy
	MaxQuantity int
}

type Manager struct {
	store    store.Store
	settings Settings
	log      *zap.Logger
	rand     func() gamemath.Source
	cache    ReplayCache
	now      func() time.Time
}

type Option func(*Manager)

// WithRand sets the source factory. It is called once per purchase.
func WithRand(fn func() gamemath.Source) Option {
	return func(m *Manager) { m.rand = fn }
}

func WithReplayCache(c ReplayCache) Option {
	return func(m *Manager) { m.cache = c }
}

func WithClock(fn func() time.Time) Option {
	return func(m *Manager) { m.now = fn }
}

func NewManager(st store.Store, settings Settings, log *zap.Logger, opts ...Option) *Manager {
	if log == nil {
		log = zap.NewNop()
	}
	if settings.MaxQuantity <= 0 {
		settings.MaxQuantity = 1
	}
	m := &Manager{
		store:    st,
		settings: settings,
		log:      log,
		rand:     func() gamemath.Source { return gamemath.CryptoSource{} },
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

var errReplay = errors.New("purchase already completed")

// Purchase debits the account once for the whole quantity, opens each unit
// and credits the paid ones, all in one transaction. A key that already
// completed returns its stored receipt without touching any balance.
func (m *Manager) Purchase(ctx context.Context, req Request) (*Result, error) {
	start := time.Now()
	if req.IdempotencyKey == "" {
		return nil, ErrIdempotencyKeyRequired
	}
	if req.Quantity < 1 || req.Quantity > m.settings.MaxQuantity {
		return nil, fmt.Errorf("%w: %d (allowed 1..%d)", ErrInvalidQuantity, req.Quantity, m.settings.MaxQuantity)
	}
	log := m.log.With(zap.String("idempotency_key", req.IdempotencyKey), zap.String("account_id", req.AccountID))

	if res, ok, err := m.replayCached(ctx, log, req); ok || err != nil {
		return res, err
	}
	rec, err := m.store.Purchase(ctx, req.IdempotencyKey)
	switch {
	case err == nil && rec.Completed():
		return m.replay(log, rec, req.AccountID)
	case err != nil && !errors.Is(err, store.ErrNotFound):
		return nil, fmt.Errorf("read purchase: %w", err)
	}

	var receipt *Receipt
	var stored *ledger.PurchaseRecord
	err = m.store.WithTx(ctx, func(ctx context.Context, tx store.Tx) error {
		receipt, stored = nil, nil
		r, prior, err := m.execute(ctx, tx, req)
		receipt, stored = r, prior
		return err
	})
	switch {
	case errors.Is(err, errReplay):
		return m.replay(log, stored, req.AccountID)
	case errors.Is(err, store.ErrDuplicateKey):
		// Lost a race against a concurrent request with the same key.
		rec, rerr := m.store.Purchase(ctx, req.IdempotencyKey)
		if rerr != nil {
			return nil, fmt.Errorf("read purchase after conflict: %w", rerr)
		}
		return m.replay(log, rec, req.AccountID)
	case err != nil:
		m.recordFailure(ctx, log, req, err)
		metrics.ObservePurchase("failed", time.Since(start))
		return nil, err
	}

	if m.cache != nil {
		if b, err := json.Marshal(receipt); err == nil {
			if err := m.cache.Store(ctx, req.IdempotencyKey, b); err != nil {
				log.Warn("replay cache store failed", zap.Error(err))
			}
		}
	}
	for _, u := range receipt.Units {
		metrics.ObserveDraw(u.Verdict, u.Reason, u.Value.InexactFloat64())
	}
	metrics.ObservePurchase("completed", time.Since(start))
	log.Info("purchase completed",
		zap.String("purchase_id", receipt.PurchaseID),
		zap.String("case_id", receipt.CaseID),
		zap.Int("quantity", receipt.Quantity),
		zap.String("total_price", receipt.TotalPrice.String()),
		zap.String("total_paid", receipt.TotalPaid.String()),
		zap.Duration("duration", time.Since(start)),
	)
	return &Result{Receipt: *receipt}, nil
}

func (m *Manager) execute(ctx context.Context, tx store.Tx, req Request) (*Receipt, *ledger.PurchaseRecord, error) {
	// Checked again under the transaction: a retry may have committed since
	// the optimistic read.
	if prior, err := completed(ctx, tx, req.IdempotencyKey); prior != nil || err != nil {
		return nil, prior, err
	}

	acct, err := tx.LockAccount(ctx, req.AccountID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, nil, fmt.Errorf("%w: %s", ErrAccountNotFound, req.AccountID)
	}
	if err != nil {
		return nil, nil, fmt.Errorf("lock account: %w", err)
	}
	// A concurrent request with the same key may have held the lock we just
	// waited for.
	if prior, err := completed(ctx, tx, req.IdempotencyKey); prior != nil || err != nil {
		return nil, prior, err
	}
	if acct.Banned {
		return nil, nil, fmt.Errorf("%w: %s", ErrAccountBanned, acct.ID)
	}
	if !acct.Active {
		return nil, nil, fmt.Errorf("%w: %s is inactive", ErrAccountBanned, acct.ID)
	}
	target := m.settings.Profiles.Resolve(acct)

	memo := cases.NewMemo(tx)
	pool, err := cases.Resolve(ctx, memo, req.CaseID)
	if err != nil {
		return nil, nil, err
	}
	price := pool.Case.Price
	total := price.Mul(decimal.NewFromInt(int64(req.Quantity)))
	balance := acct.Balance(target.Field)
	if balance.LessThan(total) {
		return nil, nil, fmt.Errorf("%w: need %s, have %s", ErrInsufficientBalance, total, balance)
	}

	now := m.now()
	sess, err := m.openSession(ctx, tx, acct.ID, now)
	if err != nil {
		return nil, nil, err
	}
	balance = balance.Sub(total)
	m.settings.Policy.RecordSpend(sess, total, now)
	if err := tx.UpdateSession(ctx, sess); err != nil {
		return nil, nil, fmt.Errorf("update session: %w", err)
	}

	receipt := &Receipt{
		PurchaseID:     uuid.NewString(),
		IdempotencyKey: req.IdempotencyKey,
		AccountID:      acct.ID,
		CaseID:         pool.Case.ID,
		SessionID:      sess.ID,
		Class:          target.Class,
		Quantity:       req.Quantity,
		UnitPrice:      price,
		TotalPrice:     total,
		TotalPaid:      decimal.Zero,
		CreatedAt:      now.UTC(),
	}
	entries := []ledger.Entry{{
		ID:         uuid.NewString(),
		AccountID:  acct.ID,
		SessionID:  sess.ID,
		PurchaseID: receipt.PurchaseID,
		Kind:       ledger.KindCasePurchase,
		Field:      target.Field,
		Amount:     total.Neg(),
		CaseID:     pool.Case.ID,
		CreatedAt:  now,
	}}
	audits := make([]ledger.AuditRecord, 0, req.Quantity)

	rng := m.rand()
	reread := func(ctx context.Context) (session.State, error) {
		ps, err := tx.Session(ctx, sess.ID)
		if err != nil {
			return session.State{}, err
		}
		return ps.State(), nil
	}
	for i := 0; i < req.Quantity; i++ {
		unitStart := time.Now()
		out, err := draw.Run(ctx, draw.Request{
			CaseID:  pool.Case.ID,
			Cases:   memo,
			Profile: target.Profile,
			Session: sess.State(),
			Reread:  reread,
			Rand:    rng,
		})
		if err != nil {
			return nil, nil, fmt.Errorf("unit %d: %w", i, err)
		}
		unit := Unit{Index: i, Verdict: string(out.Verdict), Reason: out.Reason, Value: out.Value}
		if out.Label != nil {
			unit.LabelID, unit.LabelName = out.Label.ID, out.Label.Name
		}
		if out.Verdict == draw.VerdictPaid {
			unit.PrizeID, unit.PrizeName = out.Prize.ID, out.Prize.Name
			balance = balance.Add(out.Value)
			receipt.TotalPaid = receipt.TotalPaid.Add(out.Value)
			sess.RecordPayout(out.Value, now)
			if err := tx.UpdateSession(ctx, sess); err != nil {
				return nil, nil, fmt.Errorf("update session: %w", err)
			}
			entries = append(entries, ledger.Entry{
				ID:         uuid.NewString(),
				AccountID:  acct.ID,
				SessionID:  sess.ID,
				PurchaseID: receipt.PurchaseID,
				Kind:       ledger.KindPrizeCredit,
				Field:      target.Field,
				Amount:     out.Value,
				CaseID:     pool.Case.ID,
				PrizeID:    out.Prize.ID,
				CreatedAt:  now,
			})
		}
		trace, _ := json.Marshal(out.Trace)
		audits = append(audits, ledger.AuditRecord{
			ID:              uuid.NewString(),
			PurchaseID:      receipt.PurchaseID,
			AccountID:       acct.ID,
			SessionID:       sess.ID,
			CaseID:          pool.Case.ID,
			Unit:            i,
			Verdict:         string(out.Verdict),
			Reason:          out.Reason,
			PrizeID:         unit.PrizeID,
			Value:           out.Value,
			RTP:             out.Trace.RTP,
			Expected:        out.Trace.Expected,
			Scale:           out.Trace.Scale,
			Sample:          out.Trace.Gate,
			RemainingBefore: out.Trace.RemainingBefore,
			RemainingAfter:  out.Trace.RemainingAfter,
			Trace:           trace,
			Duration:        time.Since(unitStart),
			CreatedAt:       now,
		})
		receipt.Units = append(receipt.Units, unit)
	}

	if err := tx.UpdateBalance(ctx, acct.ID, target.Field, balance); err != nil {
		return nil, nil, fmt.Errorf("update balance: %w", err)
	}
	receipt.Balance = balance
	if err := tx.AppendLedger(ctx, entries); err != nil {
		return nil, nil, fmt.Errorf("append ledger: %w", err)
	}
	if err := tx.AppendAudit(ctx, audits); err != nil {
		return nil, nil, fmt.Errorf("append audit: %w", err)
	}
	body, err := json.Marshal(receipt)
	if err != nil {
		return nil, nil, fmt.Errorf("encode receipt: %w", err)
	}
	if err := tx.SavePurchase(ctx, &ledger.PurchaseRecord{
		IdempotencyKey: req.IdempotencyKey,
		ID:             receipt.PurchaseID,
		AccountID:      acct.ID,
		CaseID:         pool.Case.ID,
		Quantity:       req.Quantity,
		TotalPrice:     total,
		TotalPaid:      receipt.TotalPaid,
		Status:         ledger.StatusCompleted,
		Receipt:        body,
		CreatedAt:      now,
	}); err != nil {
		return nil, nil, err
	}
	return receipt, nil, nil
}

// completed returns the stored record and errReplay when key already
// completed, and nothing when the purchase still has to run.
func completed(ctx context.Context, tx store.Tx, key string) (*ledger.PurchaseRecord, error) {
	prior, err := tx.Purchase(ctx, key)
	switch {
	case err == nil && prior.Completed():
		return prior, errReplay
	case err != nil && !errors.Is(err, store.ErrNotFound):
		return nil, fmt.Errorf("read purchase: %w", err)
	}
	return nil, nil
}

// openSession continues the account's open session or starts a new one,
// closing it first if it has gone idle.
func (m *Manager) openSession(ctx context.Context, tx store.Tx, accountID string, now time.Time) (*session.PlaySession, error) {
	ps, err := tx.ActiveSession(ctx, accountID)
	switch {
	case err == nil && !m.settings.Policy.Expired(ps, now):
		return ps, nil
	case err == nil:
		ps.Active = false
		if err := tx.UpdateSession(ctx, ps); err != nil {
			return nil, fmt.Errorf("close session: %w", err)
		}
	case !errors.Is(err, store.ErrNotFound):
		return nil, fmt.Errorf("load session: %w", err)
	}
	ps = session.New(accountID, now)
	if err := tx.CreateSession(ctx, ps); err != nil {
		return nil, fmt.Errorf("create session: %w", err)
	}
	return ps, nil
}

// replay returns the stored receipt, but only to the account that made the
// purchase.
func (m *Manager) replay(log *zap.Logger, rec *ledger.PurchaseRecord, accountID string) (*Result, error) {
	var r Receipt
	if err := json.Unmarshal(rec.Receipt, &r); err != nil {
		return nil, fmt.Errorf("decode stored receipt: %w", err)
	}
	if r.AccountID != accountID || (rec.AccountID != "" && rec.AccountID != accountID) {
		log.Warn("idempotency key reused by another account", zap.String("owner", r.AccountID))
		return nil, fmt.Errorf("%w: %s", ErrIdempotencyKeyConflict, rec.IdempotencyKey)
	}
	log.Debug("purchase replayed", zap.String("purchase_id", r.PurchaseID))
	metrics.ObservePurchase("replayed", 0)
	return &Result{Receipt: r, Idempotent: true}, nil
}

// replayCached answers from the receipt cache. A miss or an unreadable
// entry falls through to the store; a key owned by another account is an error.
func (m *Manager) replayCached(ctx context.Context, log *zap.Logger, req Request) (*Result, bool, error) {
	if m.cache == nil {
		return nil, false, nil
	}
	b, ok, err := m.cache.Load(ctx, req.IdempotencyKey)
	if err != nil {
		log.Warn("replay cache load failed", zap.Error(err))
		return nil, false, nil
	}
	if !ok {
		return nil, false, nil
	}
	res, err := m.replay(log, &ledger.PurchaseRecord{IdempotencyKey: req.IdempotencyKey, Receipt: b}, req.AccountID)
	if errors.Is(err, ErrIdempotencyKeyConflict) {
		return nil, false, err
	}
	if err != nil {
		log.Warn("replay cache entry unreadable", zap.Error(err))
		return nil, false, nil
	}
	return res, true, nil
}

// recordFailure leaves a diagnostic record of an aborted purchase. It runs
// outside the rolled back transaction and never changes the error returned.
func (m *Manager) recordFailure(ctx context.Context, log *zap.Logger, req Request, cause error) {
	if IsRejection(cause) {
		log.Warn("purchase rejected", zap.Error(cause))
	} else {
		log.Error("purchase failed", zap.Error(cause))
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	err := m.store.RecordFailure(ctx, &ledger.PurchaseRecord{
		IdempotencyKey: req.IdempotencyKey,
		ID:             uuid.NewString(),
		AccountID:      req.AccountID,
		CaseID:         req.CaseID,
		Quantity:       req.Quantity,
		TotalPrice:     decimal.Zero,
		TotalPaid:      decimal.Zero,
		Status:         ledger.StatusFailed,
		Error:          cause.Error(),
		CreatedAt:      m.now(),
	})
	if err != nil && !errors.Is(err, store.ErrDuplicateKey) {
		log.Error("record failed purchase", zap.Error(err))
	}
}

// Lookup returns the receipt of a completed purchase.
func (m *Manager) Lookup(ctx context.Context, key string) (*Receipt, error) {
	rec, err := m.store.Purchase(ctx, key)
	if err != nil {
		return nil, err
	}
	if !rec.Completed() {
		return nil, store.ErrNotFound
	}
	var r Receipt
	if err := json.Unmarshal(rec.Receipt, &r); err != nil {
		return nil, fmt.Errorf("decode stored receipt: %w", err)
	}
	return &r, nil
}

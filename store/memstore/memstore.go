// Package memstore keeps the whole engine state in memory. Transactions
// run one at a time against a private copy that replaces the live state
// only on success.
package memstore

import (
	"context"
	"sync"

	"github.com/Ashenafi-pixel/gamecrafter-case-server/cases"
	"github.com/Ashenafi-pixel/gamecrafter-case-server/ledger"
	"github.com/Ashenafi-pixel/gamecrafter-case-server/session"
	"github.com/Ashenafi-pixel/gamecrafter-case-server/store"
	"github.com/shopspring/decimal"
)

var _ store.Store = (*Store)(nil)
var _ store.Tx = (*tx)(nil)

type state struct {
	accounts  map[string]ledger.Account
	cases     map[string]*cases.Case
	sessions  map[string]session.PlaySession
	purchases map[string]ledger.PurchaseRecord
	entries   []ledger.Entry
	audits    []ledger.AuditRecord
}

func newState() *state {
	return &state{
		accounts:  make(map[string]ledger.Account),
		cases:     make(map[string]*cases.Case),
		sessions:  make(map[string]session.PlaySession),
		purchases: make(map[string]ledger.PurchaseRecord),
	}
}

func (s *state) clone() *state {
	out := newState()
	for k, v := range s.accounts {
		out.accounts[k] = v
	}
	for k, v := range s.cases {
		out.cases[k] = v
	}
	for k, v := range s.sessions {
		out.sessions[k] = v
	}
	for k, v := range s.purchases {
		out.purchases[k] = v
	}
	// Capacity is clipped so appends in the copy never write into the
	// live backing arrays.
	out.entries = s.entries[:len(s.entries):len(s.entries)]
	out.audits = s.audits[:len(s.audits):len(s.audits)]
	return out
}

type Store struct {
	mu    sync.Mutex
	data  *state
	fault func(op string) error
}

func New() *Store {
	return &Store{data: newState()}
}

// SetFault installs a hook consulted before every transactional write.
// A non-nil error from it fails that write. Tests use it to abort purchases.
func (s *Store) SetFault(fn func(op string) error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fault = fn
}

func (s *Store) WithTx(ctx context.Context, fn func(ctx context.Context, tx store.Tx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := ctx.Err(); err != nil {
		return err
	}
	work := s.data.clone()
	if err := fn(ctx, &tx{st: work, fault: s.fault}); err != nil {
		return err
	}
	s.data = work
	return nil
}

func (s *Store) Purchase(_ context.Context, key string) (*ledger.PurchaseRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return getPurchase(s.data, key)
}

func (s *Store) RecordFailure(_ context.Context, rec *ledger.PurchaseRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if cur, ok := s.data.purchases[rec.IdempotencyKey]; ok && cur.Completed() {
		return store.ErrDuplicateKey
	}
	s.data.purchases[rec.IdempotencyKey] = *rec
	return nil
}

// PutAccount inserts or replaces an account.
func (s *Store) PutAccount(a ledger.Account) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data.accounts[a.ID] = a
}

// PutCase inserts or replaces a case.
func (s *Store) PutCase(c *cases.Case) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data.cases[c.ID] = c.Clone()
}

// PutSession inserts or replaces a session.
func (s *Store) PutSession(ps session.PlaySession) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data.sessions[ps.ID] = ps
}

func (s *Store) Account(id string) (ledger.Account, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.data.accounts[id]
	return a, ok
}

// Sessions returns every session of an account, open or closed.
func (s *Store) Sessions(accountID string) []session.PlaySession {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []session.PlaySession
	for _, ps := range s.data.sessions {
		if ps.AccountID == accountID {
			out = append(out, ps)
		}
	}
	return out
}

func (s *Store) Ledger() []ledger.Entry {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]ledger.Entry(nil), s.data.entries...)
}

func (s *Store) Audits() []ledger.AuditRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]ledger.AuditRecord(nil), s.data.audits...)
}

func getPurchase(st *state, key string) (*ledger.PurchaseRecord, error) {
	rec, ok := st.purchases[key]
	if !ok {
		return nil, store.ErrNotFound
	}
	return &rec, nil
}

type tx struct {
	st    *state
	fault func(op string) error
}

func (t *tx) check(op string) error {
	if t.fault == nil {
		return nil
	}
	return t.fault(op)
}

func (t *tx) GetCase(_ context.Context, id string) (*cases.Case, error) {
	c, ok := t.st.cases[id]
	if !ok {
		return nil, cases.ErrCaseNotFound
	}
	return c.Clone(), nil
}

func (t *tx) Purchase(_ context.Context, key string) (*ledger.PurchaseRecord, error) {
	return getPurchase(t.st, key)
}

func (t *tx) LockAccount(_ context.Context, id string) (*ledger.Account, error) {
	a, ok := t.st.accounts[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return &a, nil
}

func (t *tx) UpdateBalance(_ context.Context, accountID string, field ledger.BalanceField, balance decimal.Decimal) error {
	if err := t.check("update_balance"); err != nil {
		return err
	}
	a, ok := t.st.accounts[accountID]
	if !ok {
		return store.ErrNotFound
	}
	a.SetBalance(field, balance)
	t.st.accounts[accountID] = a
	return nil
}

func (t *tx) ActiveSession(_ context.Context, accountID string) (*session.PlaySession, error) {
	for _, ps := range t.st.sessions {
		if ps.AccountID == accountID && ps.Active {
			return &ps, nil
		}
	}
	return nil, store.ErrNotFound
}

func (t *tx) Session(_ context.Context, id string) (*session.PlaySession, error) {
	ps, ok := t.st.sessions[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return &ps, nil
}

func (t *tx) CreateSession(_ context.Context, s *session.PlaySession) error {
	if err := t.check("create_session"); err != nil {
		return err
	}
	t.st.sessions[s.ID] = *s
	return nil
}

func (t *tx) UpdateSession(_ context.Context, s *session.PlaySession) error {
	if err := t.check("update_session"); err != nil {
		return err
	}
	if _, ok := t.st.sessions[s.ID]; !ok {
		return store.ErrNotFound
	}
	t.st.sessions[s.ID] = *s
	return nil
}

func (t *tx) AppendLedger(_ context.Context, entries []ledger.Entry) error {
	if err := t.check("append_ledger"); err != nil {
		return err
	}
	t.st.entries = append(t.st.entries, entries...)
	return nil
}

func (t *tx) AppendAudit(_ context.Context, records []ledger.AuditRecord) error {
	if err := t.check("append_audit"); err != nil {
		return err
	}
	t.st.audits = append(t.st.audits, records...)
	return nil
}

func (t *tx) SavePurchase(_ context.Context, rec *ledger.PurchaseRecord) error {
	if err := t.check("save_purchase"); err != nil {
		return err
	}
	if cur, ok := t.st.purchases[rec.IdempotencyKey]; ok && cur.Completed() {
		return store.ErrDuplicateKey
	}
	t.st.purchases[rec.IdempotencyKey] = *rec
	return nil
}

package memstore

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/Ashenafi-pixel/gamecrafter-case-server/ledger"
	"github.com/Ashenafi-pixel/gamecrafter-case-server/session"
	"github.com/Ashenafi-pixel/gamecrafter-case-server/store"
	"github.com/shopspring/decimal"
)

func TestWithTx_RollbackDiscardsWrites(t *testing.T) {
	s := New()
	s.PutAccount(ledger.Account{ID: "a1", BalanceReal: decimal.NewFromInt(10), Active: true})
	boom := errors.New("boom")
	err := s.WithTx(context.Background(), func(ctx context.Context, tx store.Tx) error {
		if err := tx.UpdateBalance(ctx, "a1", ledger.BalanceReal, decimal.NewFromInt(1)); err != nil {
			return err
		}
		if err := tx.AppendLedger(ctx, []ledger.Entry{{ID: "e1"}}); err != nil {
			return err
		}
		if err := tx.CreateSession(ctx, session.New("a1", time.Now())); err != nil {
			return err
		}
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("expected boom, got %v", err)
	}
	a, _ := s.Account("a1")
	if !a.BalanceReal.Equal(decimal.NewFromInt(10)) {
		t.Errorf("balance %s after rollback", a.BalanceReal)
	}
	if len(s.Ledger()) != 0 || len(s.Sessions("a1")) != 0 {
		t.Error("rolled back writes are visible")
	}
}

func TestWithTx_CommitAndReadYourWrites(t *testing.T) {
	s := New()
	s.PutAccount(ledger.Account{ID: "a1", BalanceReal: decimal.NewFromInt(10), Active: true})
	ps := session.New("a1", time.Now())
	err := s.WithTx(context.Background(), func(ctx context.Context, tx store.Tx) error {
		if err := tx.CreateSession(ctx, ps); err != nil {
			return err
		}
		ps.PaidOut = decimal.NewFromInt(3)
		if err := tx.UpdateSession(ctx, ps); err != nil {
			return err
		}
		got, err := tx.Session(ctx, ps.ID)
		if err != nil {
			return err
		}
		if !got.PaidOut.Equal(decimal.NewFromInt(3)) {
			t.Errorf("in-tx read saw %s", got.PaidOut)
		}
		active, err := tx.ActiveSession(ctx, "a1")
		if err != nil || active.ID != ps.ID {
			t.Errorf("active session %v %v", active, err)
		}
		return tx.AppendLedger(ctx, []ledger.Entry{{ID: "e1"}})
	})
	if err != nil {
		t.Fatal(err)
	}
	if len(s.Ledger()) != 1 || len(s.Sessions("a1")) != 1 {
		t.Error("committed writes missing")
	}
}

func TestSavePurchase_CompletedIsFinal(t *testing.T) {
	s := New()
	ctx := context.Background()
	if err := s.RecordFailure(ctx, &ledger.PurchaseRecord{IdempotencyKey: "k", Status: ledger.StatusFailed}); err != nil {
		t.Fatal(err)
	}
	save := func() error {
		return s.WithTx(ctx, func(ctx context.Context, tx store.Tx) error {
			return tx.SavePurchase(ctx, &ledger.PurchaseRecord{IdempotencyKey: "k", Status: ledger.StatusCompleted})
		})
	}
	if err := save(); err != nil {
		t.Fatalf("completed should replace failed: %v", err)
	}
	if err := save(); !errors.Is(err, store.ErrDuplicateKey) {
		t.Errorf("second completion should be rejected, got %v", err)
	}
	if err := s.RecordFailure(ctx, &ledger.PurchaseRecord{IdempotencyKey: "k", Status: ledger.StatusFailed}); !errors.Is(err, store.ErrDuplicateKey) {
		t.Errorf("failure must not overwrite completion, got %v", err)
	}
	rec, err := s.Purchase(ctx, "k")
	if err != nil || !rec.Completed() {
		t.Errorf("record %+v %v", rec, err)
	}
}

func TestFaultHook(t *testing.T) {
	s := New()
	s.PutAccount(ledger.Account{ID: "a1", Active: true})
	boom := errors.New("disk full")
	s.SetFault(func(op string) error {
		if op == "append_audit" {
			return boom
		}
		return nil
	})
	err := s.WithTx(context.Background(), func(ctx context.Context, tx store.Tx) error {
		return tx.AppendAudit(ctx, []ledger.AuditRecord{{ID: "r"}})
	})
	if !errors.Is(err, boom) {
		t.Errorf("expected injected fault, got %v", err)
	}
}

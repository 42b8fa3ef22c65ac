package session

import (
	"testing"
	"time"

	"github.com/Ashenafi-pixel/gamecrafter-case-server/cases"
	"github.com/shopspring/decimal"
)

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func TestAdmit_DowngradesNearCeiling(t *testing.T) {
	// spent 10, paid 9.50, ceiling 10: a 1.00 prize would cross it
	st := State{Spent: d("10"), PaidOut: d("9.50"), Ceiling: d("10")}
	if Admit(st, d("1.00")) {
		t.Error("1.00 on top of 9.50 must not be admitted under a 10 ceiling")
	}
	if !Admit(st, d("0.50")) {
		t.Error("0.50 lands exactly on the ceiling and must be admitted")
	}
}

func TestFilter(t *testing.T) {
	prizes := []cases.Prize{
		{ID: "small", Value: d("0.25")},
		{ID: "big", Value: d("1.00")},
		{ID: "exact", Value: d("0.50")},
	}
	got := Filter(prizes, State{PaidOut: d("9.50"), Ceiling: d("10")})
	if len(got) != 2 || got[0].ID != "small" || got[1].ID != "exact" {
		t.Errorf("filtered %+v", got)
	}
	if got := Filter(prizes, State{PaidOut: d("10"), Ceiling: d("10")}); got != nil {
		t.Errorf("exhausted session should filter everything, got %+v", got)
	}
}

func TestPolicy_Ceiling(t *testing.T) {
	p := Policy{Multiplier: d("2")}
	if c := p.Ceiling(d("7.5")); !c.Equal(d("15")) {
		t.Errorf("ceiling %s want 15", c)
	}
	p.Limit = d("10")
	if c := p.Ceiling(d("7.5")); !c.Equal(d("10")) {
		t.Errorf("capped ceiling %s want 10", c)
	}
}

func TestPolicy_RecordSpendIsMonotonic(t *testing.T) {
	now := time.Now()
	s := New("acc", now)
	Policy{Multiplier: d("2")}.RecordSpend(s, d("5"), now)
	if !s.PayoutCeiling.Equal(d("10")) {
		t.Fatalf("ceiling %s want 10", s.PayoutCeiling)
	}
	// A later, stricter policy must not shrink the open session's ceiling.
	Policy{Multiplier: d("0.5")}.RecordSpend(s, d("5"), now)
	if !s.Spent.Equal(d("10")) || !s.PayoutCeiling.Equal(d("10")) {
		t.Errorf("spent %s ceiling %s", s.Spent, s.PayoutCeiling)
	}
}

func TestPolicy_Expired(t *testing.T) {
	now := time.Now()
	s := New("acc", now.Add(-time.Hour))
	p := Policy{IdleTimeout: 30 * time.Minute}
	if !p.Expired(s, now) {
		t.Error("idle session should be expired")
	}
	s.LastActivityAt = now.Add(-time.Minute)
	if p.Expired(s, now) {
		t.Error("recent session should stay open")
	}
	if (Policy{}).Expired(New("acc", now.Add(-72*time.Hour)), now) {
		t.Error("zero idle timeout never expires")
	}
	s.Active = false
	if !p.Expired(s, now) {
		t.Error("inactive session is always expired")
	}
}

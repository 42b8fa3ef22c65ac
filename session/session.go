package session

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// PlaySession tracks money in and out of one continuous play period of an
// account. PaidOut never exceeds PayoutCeiling.
type PlaySession struct {
	ID             string          `json:"id"`
	AccountID      string          `json:"account_id"`
	Spent          decimal.Decimal `json:"spent"`
	PaidOut        decimal.Decimal `json:"paid_out"`
	PayoutCeiling  decimal.Decimal `json:"payout_ceiling"`
	Active         bool            `json:"active"`
	StartedAt      time.Time       `json:"started_at"`
	LastActivityAt time.Time       `json:"last_activity_at"`
}

func New(accountID string, now time.Time) *PlaySession {
	return &PlaySession{
		ID:             uuid.NewString(),
		AccountID:      accountID,
		Spent:          decimal.Zero,
		PaidOut:        decimal.Zero,
		PayoutCeiling:  decimal.Zero,
		Active:         true,
		StartedAt:      now,
		LastActivityAt: now,
	}
}

func (s *PlaySession) State() State {
	return State{Spent: s.Spent, PaidOut: s.PaidOut, Ceiling: s.PayoutCeiling}
}

// RecordPayout adds a credited prize to the running total.
func (s *PlaySession) RecordPayout(value decimal.Decimal, now time.Time) {
	s.PaidOut = s.PaidOut.Add(value)
	s.LastActivityAt = now
}

// Policy derives payout ceilings and decides when a session has gone idle.
type Policy struct {
	// Multiplier scales total spend into the ceiling.
	Multiplier decimal.Decimal
	// Limit caps the ceiling when positive.
	Limit decimal.Decimal
	// IdleTimeout ends a session after this much inactivity. Zero keeps
	// sessions open forever.
	IdleTimeout time.Duration
}

// Ceiling returns the payout ceiling for a session that has spent spent.
func (p Policy) Ceiling(spent decimal.Decimal) decimal.Decimal {
	c := spent.Mul(p.Multiplier)
	if p.Limit.IsPositive() && c.GreaterThan(p.Limit) {
		c = p.Limit
	}
	if c.IsNegative() {
		return decimal.Zero
	}
	return c
}

// Expired reports whether s should be closed instead of continued at now.
func (p Policy) Expired(s *PlaySession, now time.Time) bool {
	if !s.Active {
		return true
	}
	return p.IdleTimeout > 0 && now.Sub(s.LastActivityAt) > p.IdleTimeout
}

// RecordSpend adds amount to the session's spend and raises the ceiling.
// The ceiling only ever grows, so a lowered multiplier cannot put an open
// session under water.
func (p Policy) RecordSpend(s *PlaySession, amount decimal.Decimal, now time.Time) {
	s.Spent = s.Spent.Add(amount)
	if c := p.Ceiling(s.Spent); c.GreaterThan(s.PayoutCeiling) {
		s.PayoutCeiling = c
	}
	s.LastActivityAt = now
}

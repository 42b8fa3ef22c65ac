package ledger

import (
	"encoding/json"
	"time"

	"github.com/Ashenafi-pixel/gamecrafter-case-server/gamemath"
	"github.com/shopspring/decimal"
)

type AccountClass string

const (
	ClassStandard AccountClass = "standard"
	ClassDemo     AccountClass = "demo"
)

// BalanceField names which of an account's balances a ledger entry moves.
type BalanceField string

const (
	BalanceReal BalanceField = "real"
	BalanceDemo BalanceField = "demo"
)

type Account struct {
	ID          string          `json:"id"`
	Class       AccountClass    `json:"class"`
	BalanceReal decimal.Decimal `json:"balance_real"`
	BalanceDemo decimal.Decimal `json:"balance_demo"`
	Active      bool            `json:"active"`
	Banned      bool            `json:"banned"`
}

func (a *Account) Balance(f BalanceField) decimal.Decimal {
	if f == BalanceDemo {
		return a.BalanceDemo
	}
	return a.BalanceReal
}

func (a *Account) SetBalance(f BalanceField, v decimal.Decimal) {
	if f == BalanceDemo {
		a.BalanceDemo = v
		return
	}
	a.BalanceReal = v
}

// Target is the single decision, made once per purchase, of which balance
// pays and which math applies.
type Target struct {
	Class   AccountClass     `json:"class"`
	Field   BalanceField     `json:"field"`
	Profile gamemath.Profile `json:"profile"`
}

// Profiles holds the math for each account class.
type Profiles struct {
	Standard gamemath.Profile
	Demo     gamemath.Profile
}

// Resolve picks the ledger target for an account. Unknown classes play as
// standard accounts.
func (p Profiles) Resolve(a *Account) Target {
	if a.Class == ClassDemo {
		return Target{Class: ClassDemo, Field: BalanceDemo, Profile: p.Demo}
	}
	return Target{Class: ClassStandard, Field: BalanceReal, Profile: p.Standard}
}

type EntryKind string

const (
	KindCasePurchase EntryKind = "case_purchase"
	KindPrizeCredit  EntryKind = "prize_credit"
)

// Entry is an append-only balance movement. Debits are negative.
type Entry struct {
	ID         string          `json:"id"`
	AccountID  string          `json:"account_id"`
	SessionID  string          `json:"session_id"`
	PurchaseID string          `json:"purchase_id"`
	Kind       EntryKind       `json:"kind"`
	Field      BalanceField    `json:"field"`
	Amount     decimal.Decimal `json:"amount"`
	CaseID     string          `json:"case_id"`
	PrizeID    string          `json:"prize_id,omitempty"`
	CreatedAt  time.Time       `json:"created_at"`
}

// AuditRecord explains one unit's draw.
type AuditRecord struct {
	ID              string          `json:"id"`
	PurchaseID      string          `json:"purchase_id"`
	AccountID       string          `json:"account_id"`
	SessionID       string          `json:"session_id"`
	CaseID          string          `json:"case_id"`
	Unit            int             `json:"unit"`
	Verdict         string          `json:"verdict"`
	Reason          string          `json:"reason,omitempty"`
	PrizeID         string          `json:"prize_id,omitempty"`
	Value           decimal.Decimal `json:"value"`
	RTP             float64         `json:"rtp"`
	Expected        float64         `json:"expected"`
	Scale           float64         `json:"scale"`
	Sample          float64         `json:"sample"`
	RemainingBefore decimal.Decimal `json:"remaining_before"`
	RemainingAfter  decimal.Decimal `json:"remaining_after"`
	Trace           json.RawMessage `json:"trace"`
	Duration        time.Duration   `json:"duration"`
	CreatedAt       time.Time       `json:"created_at"`
}

type PurchaseStatus string

const (
	StatusCompleted PurchaseStatus = "completed"
	StatusFailed    PurchaseStatus = "failed"
)

// PurchaseRecord is the idempotency record of a purchase. A completed
// record is final; a failed one only documents an attempt.
type PurchaseRecord struct {
	IdempotencyKey string          `json:"idempotency_key"`
	ID             string          `json:"id"`
	AccountID      string          `json:"account_id"`
	CaseID         string          `json:"case_id"`
	Quantity       int             `json:"quantity"`
	TotalPrice     decimal.Decimal `json:"total_price"`
	TotalPaid      decimal.Decimal `json:"total_paid"`
	Status         PurchaseStatus  `json:"status"`
	Receipt        json.RawMessage `json:"receipt,omitempty"`
	Error          string          `json:"error,omitempty"`
	CreatedAt      time.Time       `json:"created_at"`
}

func (r *PurchaseRecord) Completed() bool {
	return r != nil && r.Status == StatusCompleted
}

package purchase

import (
	"time"

	"github.com/Ashenafi-pixel/gamecrafter-case-server/ledger"
	"github.com/shopspring/decimal"
)

type Request struct {
	AccountID      string `json:"account_id"`
	CaseID         string `json:"case_id"`
	Quantity       int    `json:"quantity"`
	IdempotencyKey string `json:"idempotency_key"`
}

// Unit is the outcome of one opened case.
type Unit struct {
	Index     int             `json:"index"`
	Verdict   string          `json:"verdict"`
	Reason    string          `json:"reason,omitempty"`
	PrizeID   string          `json:"prize_id,omitempty"`
	PrizeName string          `json:"prize_name,omitempty"`
	Value     decimal.Decimal `json:"value"`
	LabelID   string          `json:"label_id,omitempty"`
	LabelName string          `json:"label_name,omitempty"`
}

// Receipt is the stored, replayable result of a completed purchase.
type Receipt struct {
	PurchaseID     string              `json:"purchase_id"`
	IdempotencyKey string              `json:"idempotency_key"`
	AccountID      string              `json:"account_id"`
	CaseID         string              `json:"case_id"`
	SessionID      string              `json:"session_id"`
	Class          ledger.AccountClass `json:"class"`
	Quantity       int                 `json:"quantity"`
	UnitPrice      decimal.Decimal     `json:"unit_price"`
	TotalPrice     decimal.Decimal     `json:"total_price"`
	TotalPaid      decimal.Decimal     `json:"total_paid"`
	Balance        decimal.Decimal     `json:"balance"`
	Units          []Unit              `json:"units"`
	CreatedAt      time.Time           `json:"created_at"`
}

type Result struct {
	Receipt
	// Idempotent is set when the receipt was replayed instead of executed.
	Idempotent bool `json:"idempotent"`
}

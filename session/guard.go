package session

import (
	"github.com/Ashenafi-pixel/gamecrafter-case-server/cases"
	"github.com/shopspring/decimal"
)

// State is the part of a session the ceiling checks read.
type State struct {
	Spent   decimal.Decimal `json:"spent"`
	PaidOut decimal.Decimal `json:"paid_out"`
	Ceiling decimal.Decimal `json:"ceiling"`
}

// Remaining is the headroom left under the ceiling.
func (s State) Remaining() decimal.Decimal {
	return s.Ceiling.Sub(s.PaidOut)
}

func (s State) Exhausted() bool {
	return !s.Remaining().IsPositive()
}

// Filter drops every prize that could not be paid without crossing the
// ceiling. Order is preserved.
func Filter(prizes []cases.Prize, st State) []cases.Prize {
	if st.Exhausted() {
		return nil
	}
	room := st.Remaining()
	out := make([]cases.Prize, 0, len(prizes))
	for _, p := range prizes {
		if p.Value.LessThanOrEqual(room) {
			out = append(out, p)
		}
	}
	return out
}

// Admit is the commit-time check: value may be credited only if the
// session stays at or under its ceiling afterwards.
func Admit(st State, value decimal.Decimal) bool {
	return st.PaidOut.Add(value).LessThanOrEqual(st.Ceiling)
}

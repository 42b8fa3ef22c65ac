// Package draw runs a single bounded draw: load the pool, calibrate it to
// the account's return target, gate on the pay probability, pick a prize
// and confirm it against the live session before it may be credited.
package draw

import (
	"context"
	"fmt"
	"math"

	"github.com/Ashenafi-pixel/gamecrafter-case-server/cases"
	"github.com/Ashenafi-pixel/gamecrafter-case-server/gamemath"
	"github.com/Ashenafi-pixel/gamecrafter-case-server/session"
	"github.com/shopspring/decimal"
)

type State string

const (
	StateStart             State = "START"
	StatePoolLoaded        State = "POOL_LOADED"
	StateCalibrated        State = "CALIBRATED"
	StateCandidateSelected State = "CANDIDATE_SELECTED"
	StateIllustrative      State = "ILLUSTRATIVE"
	StatePaid              State = "PAID"
	StateDone              State = "DONE"
)

var transitions = map[State][]State{
	StateStart:             {StatePoolLoaded},
	StatePoolLoaded:        {StateCalibrated, StateIllustrative},
	StateCalibrated:        {StateIllustrative, StateCandidateSelected},
	StateCandidateSelected: {StateIllustrative, StatePaid},
	StateIllustrative:      {StateDone},
	StatePaid:              {StateDone},
}

type Verdict string

const (
	VerdictPaid         Verdict = "PAID"
	VerdictIllustrative Verdict = "ILLUSTRATIVE"
)

// Reasons attached to illustrative outcomes.
const (
	ReasonRTPGate          = "rtp_gate"
	ReasonCeilingExhausted = "ceiling_exhausted"
	ReasonCeilingFiltered  = "ceiling_filtered"
	ReasonCeilingRecheck   = "ceiling_recheck"
	ReasonDegeneratePool   = "degenerate_pool"
	ReasonDrawError        = "draw_error"
)

// Request carries everything one draw needs. Nothing is read from globals.
type Request struct {
	CaseID  string
	Cases   cases.Reader
	Profile gamemath.Profile
	// Session is the state the pool is pre-filtered against.
	Session session.State
	// Reread returns the session as it stands at commit time. When nil the
	// Session snapshot is trusted.
	Reread func(ctx context.Context) (session.State, error)
	Rand   gamemath.Source
}

// Trace is what the audit trail records about a draw.
type Trace struct {
	States          []State         `json:"states"`
	PoolSize        int             `json:"pool_size"`
	RTP             float64         `json:"rtp"`
	Expected        float64         `json:"expected"`
	Desired         float64         `json:"desired"`
	Scale           float64         `json:"scale"`
	Gate            float64         `json:"gate"`
	Pick            float64         `json:"pick"`
	RemainingBefore decimal.Decimal `json:"remaining_before"`
	RemainingAfter  decimal.Decimal `json:"remaining_after"`
}

type Outcome struct {
	Verdict Verdict         `json:"verdict"`
	Reason  string          `json:"reason,omitempty"`
	Price   decimal.Decimal `json:"price"`
	// Prize is set for PAID draws.
	Prize *cases.Prize    `json:"prize,omitempty"`
	Value decimal.Decimal `json:"value"`
	// Label is a cosmetic prize shown for an ILLUSTRATIVE draw, if the case has one.
	Label *cases.Prize `json:"label,omitempty"`
	Trace Trace        `json:"trace"`
}

type machine struct {
	state State
	trace *Trace
}

func (m *machine) to(next State) {
	for _, s := range transitions[m.state] {
		if s == next {
			m.state = next
			m.trace.States = append(m.trace.States, next)
			return
		}
	}
	panic(fmt.Sprintf("draw: illegal transition %s -> %s", m.state, next))
}

// Run executes one draw. The only errors are an unavailable case and a
// failed session re-read; every other path ends in a verdict.
func Run(ctx context.Context, req Request) (*Outcome, error) {
	out := &Outcome{Verdict: VerdictIllustrative, Value: decimal.Zero}
	out.Trace.States = []State{StateStart}
	out.Trace.RTP = req.Profile.RTP
	out.Trace.RemainingBefore = req.Session.Remaining()
	out.Trace.RemainingAfter = out.Trace.RemainingBefore
	m := &machine{state: StateStart, trace: &out.Trace}

	pool, err := cases.Resolve(ctx, req.Cases, req.CaseID)
	if err != nil {
		return nil, err
	}
	out.Price = pool.Case.Price
	m.to(StatePoolLoaded)

	illustrative := func(reason string) (*Outcome, error) {
		m.to(StateIllustrative)
		out.Reason = reason
		if n := len(pool.Labels); n > 0 {
			i := int(req.Rand.Float64() * float64(n))
			if i < 0 || i >= n {
				i = n - 1
			}
			l := pool.Labels[i]
			out.Label = &l
		}
		m.to(StateDone)
		return out, nil
	}

	if req.Session.Exhausted() {
		return illustrative(ReasonCeilingExhausted)
	}
	eligible := session.Filter(pool.Prizes, req.Session)
	if len(eligible) == 0 {
		return illustrative(ReasonCeilingFiltered)
	}
	out.Trace.PoolSize = len(eligible)

	sub := &cases.Pool{Case: pool.Case, Prizes: eligible}
	price := pool.Case.Price.InexactFloat64()
	cal := gamemath.Calibrate(price, req.Profile.RTP, req.Profile.Entries(price, sub.Values(), sub.Weights()))
	out.Trace.Expected = cal.Expected
	out.Trace.Desired = cal.Desired
	out.Trace.Scale = cal.Scale
	m.to(StateCalibrated)

	if cal.Degenerate() {
		return illustrative(ReasonDegeneratePool)
	}
	u := req.Rand.Float64()
	out.Trace.Gate = u
	if !validSample(u) {
		return illustrative(ReasonDrawError)
	}
	if u > cal.Scale {
		return illustrative(ReasonRTPGate)
	}
	v := req.Rand.Float64()
	out.Trace.Pick = v
	if !validSample(v) {
		return illustrative(ReasonDrawError)
	}
	idx := gamemath.Pick(cal.Probabilities, v)
	if idx < 0 {
		return illustrative(ReasonDegeneratePool)
	}
	candidate := eligible[idx]
	m.to(StateCandidateSelected)

	fresh := req.Session
	if req.Reread != nil {
		if fresh, err = req.Reread(ctx); err != nil {
			return nil, fmt.Errorf("reread session: %w", err)
		}
	}
	out.Trace.RemainingAfter = fresh.Remaining()
	if !session.Admit(fresh, candidate.Value) {
		return illustrative(ReasonCeilingRecheck)
	}

	m.to(StatePaid)
	out.Verdict = VerdictPaid
	out.Prize = &candidate
	out.Value = candidate.Value
	out.Trace.RemainingAfter = fresh.Remaining().Sub(candidate.Value)
	m.to(StateDone)
	return out, nil
}

func validSample(u float64) bool {
	return !math.IsNaN(u) && u >= 0 && u < 1
}

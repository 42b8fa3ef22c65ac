package draw

import (
	"context"
	"errors"
	"math"
	"math/rand"
	"testing"

	"github.com/Ashenafi-pixel/gamecrafter-case-server/cases"
	"github.com/Ashenafi-pixel/gamecrafter-case-server/gamemath"
	"github.com/Ashenafi-pixel/gamecrafter-case-server/session"
	"github.com/shopspring/decimal"
)

type catalog map[string]*cases.Case

func (c catalog) GetCase(_ context.Context, id string) (*cases.Case, error) {
	cs, ok := c[id]
	if !ok {
		return nil, cases.ErrCaseNotFound
	}
	return cs, nil
}

// seq replays fixed samples, then repeats the last one.
type seq []float64

func (s *seq) Float64() float64 {
	v := (*s)[0]
	if len(*s) > 1 {
		*s = (*s)[1:]
	}
	return v
}

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func openSession() session.State {
	return session.State{Spent: d("1000000"), PaidOut: decimal.Zero, Ceiling: d("1000000")}
}

func singlePrizeCase(price, value string) catalog {
	return catalog{"c1": {ID: "c1", Price: d(price), Active: true, Prizes: []cases.Prize{
		{ID: "p1", Name: "Prize", Value: d(value), Weight: d("1"), Payable: true, Active: true},
		{ID: "dud", Name: "Better luck", Value: decimal.Zero, Weight: d("1"), Payable: false, Active: true},
	}}}
}

func TestRun_SinglePrizePayRate(t *testing.T) {
	// price 3, rtp 0.10, one 30 prize: s = 0.01, so ~1% of draws pay
	req := Request{
		CaseID:  "c1",
		Cases:   singlePrizeCase("3", "30"),
		Profile: gamemath.Profile{Name: "standard", RTP: 0.10},
		Session: openSession(),
		Rand:    rand.New(rand.NewSource(7)),
	}
	const n = 100_000
	paid := 0
	for i := 0; i < n; i++ {
		out, err := Run(context.Background(), req)
		if err != nil {
			t.Fatal(err)
		}
		if i == 0 && math.Abs(out.Trace.Scale-0.01) > 1e-12 {
			t.Fatalf("scale %v want 0.01", out.Trace.Scale)
		}
		if out.Verdict == VerdictPaid {
			paid++
			if !out.Value.Equal(d("30")) {
				t.Fatalf("paid value %s", out.Value)
			}
		}
	}
	if rate := float64(paid) / n; rate < 0.008 || rate > 0.012 {
		t.Errorf("pay rate %.4f want ~0.01", rate)
	}
}

func TestRun_CalibrationConverges(t *testing.T) {
	c := catalog{"c1": {ID: "c1", Price: d("10"), Active: true, Prizes: []cases.Prize{
		{ID: "a", Value: d("1"), Weight: d("50"), Payable: true, Active: true},
		{ID: "b", Value: d("5"), Weight: d("30"), Payable: true, Active: true},
		{ID: "c", Value: d("20"), Weight: d("15"), Payable: true, Active: true},
		{ID: "e", Value: d("100"), Weight: d("5"), Payable: true, Active: true},
	}}}
	const rtp = 0.5
	req := Request{CaseID: "c1", Cases: c, Profile: gamemath.Profile{Name: "standard", RTP: rtp},
		Session: openSession(), Rand: rand.New(rand.NewSource(99))}
	const n = 200_000
	total := decimal.Zero
	for i := 0; i < n; i++ {
		out, err := Run(context.Background(), req)
		if err != nil {
			t.Fatal(err)
		}
		total = total.Add(out.Value)
	}
	realized := total.InexactFloat64() / (n * 10)
	if math.Abs(realized-rtp) > 0.02 {
		t.Errorf("realized rtp %.4f want ~%.2f", realized, rtp)
	}
}

func TestRun_DegeneratePool(t *testing.T) {
	c := catalog{"c1": {ID: "c1", Price: d("5"), Active: true, Prizes: []cases.Prize{
		{ID: "a", Value: d("10"), Weight: d("0"), Payable: true, Active: true},
		{ID: "b", Value: d("20"), Weight: d("0"), Payable: true, Active: true},
	}}}
	rng := rand.New(rand.NewSource(1))
	for i := 0; i < 100; i++ {
		out, err := Run(context.Background(), Request{CaseID: "c1", Cases: c,
			Profile: gamemath.Profile{RTP: 1}, Session: openSession(), Rand: rng})
		if err != nil {
			t.Fatal(err)
		}
		if out.Verdict != VerdictIllustrative || out.Reason != ReasonDegeneratePool {
			t.Fatalf("got %s/%s", out.Verdict, out.Reason)
		}
	}
}

func TestRun_RecheckDowngrades(t *testing.T) {
	// The snapshot has room, but by commit time the session holds 9.50 of a
	// 10 ceiling, so the 1.00 candidate must be downgraded.
	src := seq{0.0, 0.0, 0.0}
	out, err := Run(context.Background(), Request{
		CaseID:  "c1",
		Cases:   singlePrizeCase("1", "1.00"),
		Profile: gamemath.Profile{RTP: 1},
		Session: openSession(),
		Reread: func(context.Context) (session.State, error) {
			return session.State{Spent: d("10"), PaidOut: d("9.50"), Ceiling: d("10")}, nil
		},
		Rand: &src,
	})
	if err != nil {
		t.Fatal(err)
	}
	if out.Verdict != VerdictIllustrative || out.Reason != ReasonCeilingRecheck {
		t.Fatalf("got %s/%s", out.Verdict, out.Reason)
	}
	if !out.Value.IsZero() || out.Prize != nil {
		t.Errorf("illustrative draw carries value %s prize %+v", out.Value, out.Prize)
	}
	if out.Label == nil || out.Label.ID != "dud" {
		t.Errorf("expected cosmetic label, got %+v", out.Label)
	}
	want := []State{StateStart, StatePoolLoaded, StateCalibrated, StateCandidateSelected, StateIllustrative, StateDone}
	if !equalStates(out.Trace.States, want) {
		t.Errorf("states %v want %v", out.Trace.States, want)
	}
}

func TestRun_PaidPath(t *testing.T) {
	src := seq{0.5, 0.5}
	st := session.State{Spent: d("10"), PaidOut: d("2"), Ceiling: d("20")}
	out, err := Run(context.Background(), Request{
		CaseID: "c1", Cases: singlePrizeCase("10", "5"),
		Profile: gamemath.Profile{RTP: 1}, Session: st, Rand: &src,
	})
	if err != nil {
		t.Fatal(err)
	}
	if out.Verdict != VerdictPaid || out.Prize == nil || out.Prize.ID != "p1" {
		t.Fatalf("got %+v", out)
	}
	if !out.Trace.RemainingBefore.Equal(d("18")) || !out.Trace.RemainingAfter.Equal(d("13")) {
		t.Errorf("remaining %s -> %s", out.Trace.RemainingBefore, out.Trace.RemainingAfter)
	}
	want := []State{StateStart, StatePoolLoaded, StateCalibrated, StateCandidateSelected, StatePaid, StateDone}
	if !equalStates(out.Trace.States, want) {
		t.Errorf("states %v", out.Trace.States)
	}
}

func TestRun_GateMiss(t *testing.T) {
	// s = 0.5*1/5 = 0.1; a gate sample of 0.2 misses
	src := seq{0.2, 0.0}
	out, err := Run(context.Background(), Request{CaseID: "c1", Cases: singlePrizeCase("1", "5"),
		Profile: gamemath.Profile{RTP: 0.5}, Session: openSession(), Rand: &src})
	if err != nil {
		t.Fatal(err)
	}
	if out.Reason != ReasonRTPGate {
		t.Errorf("reason %q", out.Reason)
	}
}

func TestRun_CeilingPreFilter(t *testing.T) {
	src := seq{0.0}
	exhausted := session.State{Spent: d("5"), PaidOut: d("5"), Ceiling: d("5")}
	out, err := Run(context.Background(), Request{CaseID: "c1", Cases: singlePrizeCase("1", "1"),
		Profile: gamemath.Profile{RTP: 1}, Session: exhausted, Rand: &src})
	if err != nil {
		t.Fatal(err)
	}
	if out.Reason != ReasonCeilingExhausted {
		t.Errorf("reason %q", out.Reason)
	}

	tight := session.State{Spent: d("5"), PaidOut: d("4"), Ceiling: d("5")}
	out, err = Run(context.Background(), Request{CaseID: "c1", Cases: singlePrizeCase("1", "2"),
		Profile: gamemath.Profile{RTP: 1}, Session: tight, Rand: &src})
	if err != nil {
		t.Fatal(err)
	}
	if out.Reason != ReasonCeilingFiltered {
		t.Errorf("reason %q", out.Reason)
	}
}

func TestRun_BrokenSource(t *testing.T) {
	src := seq{math.NaN()}
	out, err := Run(context.Background(), Request{CaseID: "c1", Cases: singlePrizeCase("1", "1"),
		Profile: gamemath.Profile{RTP: 1}, Session: openSession(), Rand: &src})
	if err != nil {
		t.Fatal(err)
	}
	if out.Verdict != VerdictIllustrative || out.Reason != ReasonDrawError {
		t.Errorf("got %s/%s", out.Verdict, out.Reason)
	}
}

func TestRun_Errors(t *testing.T) {
	src := seq{0.0}
	_, err := Run(context.Background(), Request{CaseID: "missing", Cases: catalog{},
		Profile: gamemath.Profile{RTP: 1}, Session: openSession(), Rand: &src})
	if !errors.Is(err, cases.ErrCaseUnavailable) {
		t.Errorf("expected ErrCaseUnavailable, got %v", err)
	}

	boom := errors.New("lost connection")
	_, err = Run(context.Background(), Request{CaseID: "c1", Cases: singlePrizeCase("1", "1"),
		Profile: gamemath.Profile{RTP: 1}, Session: openSession(), Rand: &src,
		Reread: func(context.Context) (session.State, error) { return session.State{}, boom }})
	if !errors.Is(err, boom) {
		t.Errorf("expected reread error, got %v", err)
	}
}

func equalStates(a, b []State) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

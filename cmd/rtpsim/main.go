package main

import (
	"context"
	"flag"
	"fmt"
	"math/rand/v2"
	"os"

	"github.com/Ashenafi-pixel/gamecrafter-case-server/cases"
	"github.com/Ashenafi-pixel/gamecrafter-case-server/draw"
	"github.com/Ashenafi-pixel/gamecrafter-case-server/gamemath"
	"github.com/Ashenafi-pixel/gamecrafter-case-server/session"
	"github.com/shopspring/decimal"
)

// rtpsim runs draws against a case with no session ceiling and reports the
// realized return next to the target.
func main() {
	file := flag.String("file", "data/cases.json", "Path to a cases JSON file")
	caseID := flag.String("case", "", "Case id to simulate")
	draws := flag.Int("draws", 100000, "Number of draws")
	rtp := flag.Float64("rtp", 0.92, "Target RTP")
	seed := flag.Uint64("seed", 1, "PRNG seed")
	flag.Parse()

	if *caseID == "" {
		fmt.Fprintln(os.Stderr, "missing required -case argument")
		os.Exit(1)
	}
	res, err := simulate(context.Background(), *file, *caseID, *draws, *rtp, *seed)
	if err != nil {
		fmt.Fprintf(os.Stderr, "simulation failed: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("case=%s draws=%d paid=%d target_rtp=%.4f realized_rtp=%.4f\n",
		*caseID, res.Draws, res.Paid, *rtp, res.RTP())
}

type fileCases map[string]*cases.Case

func (f fileCases) GetCase(_ context.Context, id string) (*cases.Case, error) {
	c, ok := f[id]
	if !ok {
		return nil, cases.ErrCaseNotFound
	}
	return c, nil
}

type result struct {
	Draws  int
	Paid   int
	Spent  decimal.Decimal
	Payout decimal.Decimal
}

func (r result) RTP() float64 {
	if r.Spent.IsZero() {
		return 0
	}
	return r.Payout.Div(r.Spent).InexactFloat64()
}

func simulate(ctx context.Context, file, caseID string, n int, rtp float64, seed uint64) (result, error) {
	list, err := cases.LoadFile(file)
	if err != nil {
		return result{}, err
	}
	catalog := make(fileCases, len(list))
	for _, c := range list {
		catalog[c.ID] = c
	}
	profile := gamemath.Profile{Name: "sim", RTP: rtp}
	if err := profile.Validate(); err != nil {
		return result{}, err
	}
	src := rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
	open := session.State{Ceiling: decimal.New(1, 18)}

	res := result{Spent: decimal.Zero, Payout: decimal.Zero}
	for i := 0; i < n; i++ {
		out, err := draw.Run(ctx, draw.Request{
			CaseID:  caseID,
			Cases:   catalog,
			Profile: profile,
			Session: open,
			Rand:    src,
		})
		if err != nil {
			return result{}, err
		}
		res.Draws++
		res.Spent = res.Spent.Add(out.Price)
		if out.Verdict == draw.VerdictPaid {
			res.Paid++
			res.Payout = res.Payout.Add(out.Value)
		}
	}
	return res, nil
}

package cases

import (
	"context"
	"errors"
	"fmt"
	"sync"
)

var (
	ErrCaseNotFound    = errors.New("case not found")
	ErrCaseUnavailable = errors.New("case unavailable")
)

// Reader loads a case with its full prize table. Implementations return
// ErrCaseNotFound for unknown ids.
type Reader interface {
	GetCase(ctx context.Context, id string) (*Case, error)
}

// Pool is the resolved, draw-ready view of a case.
type Pool struct {
	Case *Case
	// Prizes are the active payable prizes with a positive value, in table order.
	// Weights may be zero; such prizes are never drawn.
	Prizes []Prize
	// Labels are the active prizes that can only decorate a no-win draw.
	Labels []Prize
}

func (p *Pool) Values() []float64 {
	out := make([]float64, len(p.Prizes))
	for i, pr := range p.Prizes {
		out[i] = pr.Value.InexactFloat64()
	}
	return out
}

func (p *Pool) Weights() []float64 {
	out := make([]float64, len(p.Prizes))
	for i, pr := range p.Prizes {
		out[i] = pr.Weight.InexactFloat64()
	}
	return out
}

// Resolve loads caseID and splits its table into the payable pool and the
// cosmetic labels. A missing or inactive case, or one without a single
// active payable prize, is unavailable.
func Resolve(ctx context.Context, r Reader, caseID string) (*Pool, error) {
	c, err := r.GetCase(ctx, caseID)
	if errors.Is(err, ErrCaseNotFound) {
		return nil, fmt.Errorf("%w: %s not found", ErrCaseUnavailable, caseID)
	}
	if err != nil {
		return nil, fmt.Errorf("load case %s: %w", caseID, err)
	}
	if !c.Active {
		return nil, fmt.Errorf("%w: %s is inactive", ErrCaseUnavailable, caseID)
	}
	pool := &Pool{Case: c}
	for _, pr := range c.Prizes {
		if !pr.Active {
			continue
		}
		if pr.Payable && pr.Value.IsPositive() && !pr.Weight.IsNegative() {
			pool.Prizes = append(pool.Prizes, pr)
			continue
		}
		pool.Labels = append(pool.Labels, pr)
	}
	if len(pool.Prizes) == 0 {
		return nil, fmt.Errorf("%w: %s has no payable prizes", ErrCaseUnavailable, caseID)
	}
	return pool, nil
}

// Memo caches successful reads of an underlying Reader. A purchase wraps its
// transaction in one so every unit sees the same immutable table.
type Memo struct {
	r     Reader
	mu    sync.Mutex
	cases map[string]*Case
}

func NewMemo(r Reader) *Memo {
	return &Memo{r: r, cases: make(map[string]*Case)}
}

func (m *Memo) GetCase(ctx context.Context, id string) (*Case, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if c, ok := m.cases[id]; ok {
		return c, nil
	}
	c, err := m.r.GetCase(ctx, id)
	if err != nil {
		return nil, err
	}
	m.cases[id] = c
	return c, nil
}

package cases

import (
	"context"
	"errors"
	"testing"

	"github.com/shopspring/decimal"
)

type mapReader map[string]*Case

func (m mapReader) GetCase(_ context.Context, id string) (*Case, error) {
	c, ok := m[id]
	if !ok {
		return nil, ErrCaseNotFound
	}
	return c, nil
}

func prize(id string, value, weight string, payable, active bool) Prize {
	return Prize{
		ID:      id,
		Name:    id,
		Value:   decimal.RequireFromString(value),
		Weight:  decimal.RequireFromString(weight),
		Payable: payable,
		Active:  active,
	}
}

func TestResolve_SplitsPool(t *testing.T) {
	r := mapReader{"c1": {
		ID: "c1", Price: decimal.NewFromInt(3), Active: true,
		Prizes: []Prize{
			prize("knife", "30", "1", true, true),
			prize("sticker", "0", "5", false, true),
			prize("retired", "100", "1", true, false),
			prize("zero", "0", "1", true, true),
			prize("gloves", "12.50", "0", true, true),
		},
	}}
	pool, err := Resolve(context.Background(), r, "c1")
	if err != nil {
		t.Fatal(err)
	}
	if len(pool.Prizes) != 2 || pool.Prizes[0].ID != "knife" || pool.Prizes[1].ID != "gloves" {
		t.Errorf("payable pool %+v", pool.Prizes)
	}
	if len(pool.Labels) != 2 || pool.Labels[0].ID != "sticker" || pool.Labels[1].ID != "zero" {
		t.Errorf("labels %+v", pool.Labels)
	}
	if v := pool.Values(); v[0] != 30 || v[1] != 12.5 {
		t.Errorf("values %v", v)
	}
	if w := pool.Weights(); w[0] != 1 || w[1] != 0 {
		t.Errorf("weights %v", w)
	}
}

func TestResolve_Unavailable(t *testing.T) {
	r := mapReader{
		"inactive": {ID: "inactive", Price: decimal.NewFromInt(1), Active: false,
			Prizes: []Prize{prize("a", "1", "1", true, true)}},
		"cosmetic": {ID: "cosmetic", Price: decimal.NewFromInt(1), Active: true,
			Prizes: []Prize{prize("a", "0", "1", false, true)}},
	}
	for _, id := range []string{"inactive", "cosmetic", "missing"} {
		_, err := Resolve(context.Background(), r, id)
		if !errors.Is(err, ErrCaseUnavailable) {
			t.Errorf("%s: expected ErrCaseUnavailable, got %v", id, err)
		}
	}
}

type failingReader struct{ err error }

func (f failingReader) GetCase(context.Context, string) (*Case, error) { return nil, f.err }

func TestResolve_StorageErrorIsNotUnavailable(t *testing.T) {
	boom := errors.New("connection reset")
	_, err := Resolve(context.Background(), failingReader{boom}, "c1")
	if !errors.Is(err, boom) || errors.Is(err, ErrCaseUnavailable) {
		t.Errorf("storage error should pass through, got %v", err)
	}
}

type countingReader struct {
	mapReader
	calls int
}

func (c *countingReader) GetCase(ctx context.Context, id string) (*Case, error) {
	c.calls++
	return c.mapReader.GetCase(ctx, id)
}

func TestMemo_ReadsOnce(t *testing.T) {
	inner := &countingReader{mapReader: mapReader{"c1": {ID: "c1", Active: true}}}
	m := NewMemo(inner)
	for i := 0; i < 5; i++ {
		if _, err := m.GetCase(context.Background(), "c1"); err != nil {
			t.Fatal(err)
		}
	}
	if inner.calls != 1 {
		t.Errorf("underlying reader called %d times, want 1", inner.calls)
	}
	if _, err := m.GetCase(context.Background(), "nope"); !errors.Is(err, ErrCaseNotFound) {
		t.Errorf("expected ErrCaseNotFound, got %v", err)
	}
}

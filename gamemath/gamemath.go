package gamemath

import (
	"crypto/rand"
	"encoding/binary"
	"errors"
	"fmt"
)

// Source yields uniform samples in [0, 1). *math/rand.Rand satisfies it,
// which is how tests seed draws.
type Source interface {
	Float64() float64
}

// CryptoSource draws from crypto/rand. It holds no state, so every draw is
// independent and it is safe for concurrent use.
type CryptoSource struct{}

func (CryptoSource) Float64() float64 {
	var b [8]byte
	_, _ = rand.Read(b[:])
	return float64(binary.BigEndian.Uint64(b[:])>>11) / (1 << 53)
}

// Entry is one prize as seen by the math: its credited value and raw weight.
type Entry struct {
	Value  float64 `json:"value"`
	Weight float64 `json:"weight"`
}

// Calibration is the result of scaling a pool to a target return.
type Calibration struct {
	Probabilities []float64 `json:"probabilities"`
	Expected      float64   `json:"expected"`
	Desired       float64   `json:"desired"`
	Scale         float64   `json:"scale"`
}

// Degenerate reports whether the pool carries no expected value at all.
// Draws against a degenerate pool never pay.
func (c Calibration) Degenerate() bool {
	return c.Expected <= 0
}

// Calibrate normalizes the entry weights into probabilities, computes the
// expected payout E of an unconditional draw and the pay probability
// s = min(1, price*rtp/E). Entries with non-positive weight get probability 0.
func Calibrate(price, rtp float64, entries []Entry) Calibration {
	c := Calibration{
		Probabilities: make([]float64, len(entries)),
		Desired:       price * rtp,
	}
	var total float64
	for _, e := range entries {
		if e.Weight > 0 {
			total += e.Weight
		}
	}
	if total <= 0 {
		return c
	}
	for i, e := range entries {
		if e.Weight <= 0 {
			continue
		}
		p := e.Weight / total
		c.Probabilities[i] = p
		c.Expected += p * e.Value
	}
	if c.Expected <= 0 {
		c.Expected = 0
		return c
	}
	c.Scale = c.Desired / c.Expected
	if c.Scale > 1 {
		c.Scale = 1
	}
	if c.Scale < 0 {
		c.Scale = 0
	}
	return c
}

// Pick walks the cumulative distribution and returns the first index whose
// running sum reaches u. Floating point drift that leaves the sum short of u
// falls back to the last index with positive probability. Returns -1 when no
// index has positive probability.
func Pick(probs []float64, u float64) int {
	var cum float64
	last := -1
	for i, p := range probs {
		if p <= 0 {
			continue
		}
		last = i
		cum += p
		if cum >= u {
			return i
		}
	}
	return last
}

var ErrInvalidRTP = errors.New("rtp must be in (0, 1]")

// TierBias reweights a pool by value tier. Prizes worth at most
// Threshold*price have their weight multiplied by Low, the rest by High.
type TierBias struct {
	Threshold float64 `json:"threshold"`
	Low       float64 `json:"low"`
	High      float64 `json:"high"`
}

// Profile is the math a class of accounts plays under.
type Profile struct {
	Name string    `json:"name"`
	RTP  float64   `json:"rtp"`
	Bias *TierBias `json:"bias,omitempty"`
}

func (p Profile) Validate() error {
	if !(p.RTP > 0 && p.RTP <= 1) {
		return fmt.Errorf("profile %q: %w (got %v)", p.Name, ErrInvalidRTP, p.RTP)
	}
	if b := p.Bias; b != nil && (b.Low < 0 || b.High < 0 || b.Threshold < 0) {
		return fmt.Errorf("profile %q: bias factors must be non-negative", p.Name)
	}
	return nil
}

// Weight returns the effective weight of a prize under the profile.
func (p Profile) Weight(value, weight, price float64) float64 {
	if p.Bias == nil || weight <= 0 {
		return weight
	}
	if value <= p.Bias.Threshold*price {
		return weight * p.Bias.Low
	}
	return weight * p.Bias.High
}

// Entries builds calibration entries from parallel value/weight slices with
// the profile's bias applied.
func (p Profile) Entries(price float64, values, weights []float64) []Entry {
	out := make([]Entry, len(values))
	for i := range values {
		out[i] = Entry{Value: values[i], Weight: p.Weight(values[i], weights[i], price)}
	}
	return out
}

package cases

import (
	"encoding/json"

	"github.com/shopspring/decimal"
)

// Prize is one entry of a case's prize table. Only active payable prizes
// can be credited; the rest are cosmetic and may label a no-win draw.
type Prize struct {
	ID      string          `json:"id"`
	Name    string          `json:"name"`
	Value   decimal.Decimal `json:"value"`
	Weight  decimal.Decimal `json:"weight"`
	Payable bool            `json:"payable"`
	Active  bool            `json:"active"`
}

// UnmarshalJSON defaults a missing weight to 1 so unweighted tables draw
// uniformly.
func (p *Prize) UnmarshalJSON(data []byte) error {
	type alias Prize
	var raw struct {
		alias
		Weight *decimal.Decimal `json:"weight"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*p = Prize(raw.alias)
	if raw.Weight != nil {
		p.Weight = *raw.Weight
	} else {
		p.Weight = decimal.NewFromInt(1)
	}
	return nil
}

// Case is a purchasable loot box.
type Case struct {
	ID     string          `json:"id"`
	Name   string          `json:"name"`
	Price  decimal.Decimal `json:"price"`
	Active bool            `json:"active"`
	Prizes []Prize         `json:"prizes"`
}

// Clone returns a deep copy so stores can hand out cases without sharing
// the prize slice.
func (c *Case) Clone() *Case {
	if c == nil {
		return nil
	}
	out := *c
	out.Prizes = append([]Prize(nil), c.Prizes...)
	return &out
}

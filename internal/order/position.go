package order

import "time"

// Position is an open holding. AvgPrice is the weighted-average entry over
// all fills; PartialDone flags that the one-shot partial-profit exit ran.
type Position struct {
	Symbol      string    `json:"symbol"`
	Name        string    `json:"name"`
	Quantity    int       `json:"quantity"`
	AvgPrice    float64   `json:"avg_price"`
	OpenedAt    time.Time `json:"opened_at"`
	PartialDone bool      `json:"partial_done"`
}

// extend folds a new fill into the weighted-average entry price.
func (p *Position) extend(qty int, price float64) {
	total := float64(p.Quantity)*p.AvgPrice + float64(qty)*price
	p.Quantity += qty
	p.AvgPrice = total / float64(p.Quantity)
}

// unrealizedReturn is the fractional return at the given price.
func (p *Position) unrealizedReturn(price float64) float64 {
	if p.AvgPrice <= 0 {
		return 0
	}
	return price/p.AvgPrice - 1
}

// age is the holding time at now, measured from the first fill.
func (p *Position) age(now time.Time) time.Duration {
	return now.Sub(p.OpenedAt)
}

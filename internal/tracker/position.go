// internal/tracker/position.go
package tracker

import "time"

// DefaultHistorySize caps the in-memory price history per token. The oldest
// point is evicted first when the cap is reached.
const DefaultHistorySize = 100

// PricePoint is one observed trade in a position's bounded history.
type PricePoint struct {
	Price       float64   `json:"price"`
	Timestamp   time.Time `json:"timestamp"`
	TxType      string    `json:"tx_type"`
	TokenAmount float64   `json:"token_amount"`
	SolAmount   float64   `json:"sol_amount"`
}

// Position is a snapshot of the running statistics for one tracked token.
// Snapshots are copies; mutating one has no effect on the tracker.
type Position struct {
	Mint         string
	InitialPrice float64
	CurrentPrice float64
	HighestPrice float64
	LowestPrice  float64
	MarketCapSol float64
	BuyCount     int
	SellCount    int
	VolumeSol    float64
	History      []PricePoint
	FirstTradeAt time.Time
	LastUpdated  time.Time
}

// Priced reports whether the position has seen at least one trade with a
// positive token amount, i.e. whether the price statistics are meaningful.
func (p *Position) Priced() bool {
	return !p.FirstTradeAt.IsZero() && p.InitialPrice > 0
}

// TradeCount returns the total number of observed trades.
func (p *Position) TradeCount() int {
	return p.BuyCount + p.SellCount
}

// ProfitPercent is the percent change of the current price against the
// initial price. Zero when no initial price is known, never NaN.
func (p *Position) ProfitPercent() float64 {
	if p.InitialPrice <= 0 {
		return 0
	}
	return (p.CurrentPrice - p.InitialPrice) / p.InitialPrice * 100
}

// DrawdownPercent is the percent decline of the current price from the
// highest price observed so far. Zero when no high is known.
func (p *Position) DrawdownPercent() float64 {
	if p.HighestPrice <= 0 {
		return 0
	}
	return (p.HighestPrice - p.CurrentPrice) / p.HighestPrice * 100
}

// VolatilityPercent is the spread between the highest and lowest observed
// prices relative to the low. Diagnostic only, not used by the sell rules.
func (p *Position) VolatilityPercent() float64 {
	if p.LowestPrice <= 0 {
		return 0
	}
	return (p.HighestPrice - p.LowestPrice) / p.LowestPrice * 100
}

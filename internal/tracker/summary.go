// internal/tracker/summary.go
package tracker

import (
	"time"

	"go.uber.org/zap"
)

// Summary condenses a finished monitoring session for the final log line and
// the trading history record.
type Summary struct {
	Mint             string    `json:"mint"`
	DurationSec      float64   `json:"duration_sec"`
	Trades           int       `json:"trades"`
	Buys             int       `json:"buys"`
	Sells            int       `json:"sells"`
	VolumeSol        float64   `json:"volume_sol"`
	InitialPrice     float64   `json:"initial_price"`
	FinalPrice       float64   `json:"final_price"`
	HighestPrice     float64   `json:"highest_price"`
	LowestPrice      float64   `json:"lowest_price"`
	ProfitPercent    float64   `json:"profit_percent"`
	DrawdownPercent  float64   `json:"drawdown_percent"`
	VolatilityPct    float64   `json:"volatility_percent"`
	FinalMarketCap   float64   `json:"final_market_cap_sol"`
	LastTradeApplied time.Time `json:"last_trade_applied"`
}

// Summarize builds a summary from a position snapshot and the wall-clock
// monitoring duration.
func Summarize(pos Position, elapsed time.Duration) Summary {
	return Summary{
		Mint:             pos.Mint,
		DurationSec:      elapsed.Seconds(),
		Trades:           pos.TradeCount(),
		Buys:             pos.BuyCount,
		Sells:            pos.SellCount,
		VolumeSol:        pos.VolumeSol,
		InitialPrice:     pos.InitialPrice,
		FinalPrice:       pos.CurrentPrice,
		HighestPrice:     pos.HighestPrice,
		LowestPrice:      pos.LowestPrice,
		ProfitPercent:    pos.ProfitPercent(),
		DrawdownPercent:  pos.DrawdownPercent(),
		VolatilityPct:    pos.VolatilityPercent(),
		FinalMarketCap:   pos.MarketCapSol,
		LastTradeApplied: pos.LastUpdated,
	}
}

// Log writes the session summary at info level.
func (s Summary) Log(logger *zap.Logger) {
	logger.Info("Monitoring session summary",
		zap.String("mint", s.Mint),
		zap.Float64("duration_sec", s.DurationSec),
		zap.Int("trades", s.Trades),
		zap.Int("buys", s.Buys),
		zap.Int("sells", s.Sells),
		zap.Float64("volume_sol", s.VolumeSol),
		zap.Float64("initial_price", s.InitialPrice),
		zap.Float64("final_price", s.FinalPrice),
		zap.Float64("highest_price", s.HighestPrice),
		zap.Float64("lowest_price", s.LowestPrice),
		zap.Float64("profit_percent", s.ProfitPercent),
		zap.Float64("drawdown_percent", s.DrawdownPercent),
		zap.Float64("volatility_percent", s.VolatilityPct))
}

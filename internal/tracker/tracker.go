// internal/tracker/tracker.go
package tracker

import (
	"sync"

	"go.uber.org/zap"

	"github.com/arturvolkov/pumpsell-bot/internal/feed"
)

// Tracker maintains per-token running statistics from the trade feed. The
// feed reader is the single writer; monitoring loops read through copy
// snapshots, so different tokens never contend beyond the map lock.
type Tracker struct {
	mu          sync.RWMutex
	positions   map[string]*position
	historySize int
	logger      *zap.Logger
}

// position is the mutable tracker-owned state; Position is the exported copy.
type position struct {
	Position
	initialSet bool
}

// New creates a tracker with the given history cap per token.
func New(historySize int, logger *zap.Logger) *Tracker {
	if historySize <= 0 {
		historySize = DefaultHistorySize
	}
	return &Tracker{
		positions:   make(map[string]*position),
		historySize: historySize,
		logger:      logger.Named("tracker"),
	}
}

// OnTrade applies one trade event to the token's state. Events with a zero
// token amount update counters and volume but are excluded from all price
// statistics: a bogus zero must never become the initial or lowest price.
func (t *Tracker) OnTrade(event feed.TradeEvent) {
	t.mu.Lock()
	defer t.mu.Unlock()

	pos, ok := t.positions[event.Mint]
	if !ok {
		pos = &position{Position: Position{Mint: event.Mint}}
		t.positions[event.Mint] = pos
		t.logger.Info("Tracking new token", zap.String("mint", event.Mint))
	}

	price := event.UnitPrice()

	switch event.TxType {
	case feed.TxTypeBuy:
		pos.BuyCount++
	case feed.TxTypeSell:
		pos.SellCount++
	}
	pos.VolumeSol += event.SolAmount
	pos.MarketCapSol = event.MarketCapSol
	pos.LastUpdated = event.ReceivedAt

	if price > 0 {
		if !pos.initialSet {
			pos.initialSet = true
			pos.InitialPrice = price
			pos.HighestPrice = price
			pos.LowestPrice = price
			pos.FirstTradeAt = event.ReceivedAt
			t.logger.Info("Initial price recorded",
				zap.String("mint", event.Mint),
				zap.Float64("price", price))
		}

		old := pos.CurrentPrice
		pos.CurrentPrice = price
		if price > pos.HighestPrice {
			t.logger.Debug("New price high",
				zap.String("mint", event.Mint),
				zap.Float64("previous", pos.HighestPrice),
				zap.Float64("price", price))
			pos.HighestPrice = price
		}
		if price < pos.LowestPrice {
			pos.LowestPrice = price
		}

		pos.History = append(pos.History, PricePoint{
			Price:       price,
			Timestamp:   event.ReceivedAt,
			TxType:      event.TxType,
			TokenAmount: event.TokenAmount,
			SolAmount:   event.SolAmount,
		})
		if len(pos.History) > t.historySize {
			pos.History = pos.History[1:]
		}

		t.logger.Debug("Trade applied",
			zap.String("mint", event.Mint),
			zap.String("tx_type", event.TxType),
			zap.Float64("price", price),
			zap.Float64("previous_price", old),
			zap.Float64("sol_amount", event.SolAmount),
			zap.Float64("market_cap_sol", event.MarketCapSol))
	} else {
		t.logger.Debug("Zero-amount trade counted without price update",
			zap.String("mint", event.Mint),
			zap.String("tx_type", event.TxType))
	}
}

// Snapshot returns a copy of a token's position. The second return value is
// false when the token has not produced any trade event yet.
func (t *Tracker) Snapshot(mint string) (Position, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	pos, ok := t.positions[mint]
	if !ok {
		return Position{}, false
	}

	snap := pos.Position
	snap.History = make([]PricePoint, len(pos.History))
	copy(snap.History, pos.History)
	return snap, true
}

// Forget drops a token's state after its monitoring loop terminates.
func (t *Tracker) Forget(mint string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.positions, mint)
}

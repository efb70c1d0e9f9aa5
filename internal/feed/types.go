// internal/feed/types.go
package feed

import "time"

// Transaction types reported by the trade feed.
const (
	TxTypeBuy  = "buy"
	TxTypeSell = "sell"
)

// TradeEvent is a single trade reported by the feed for a subscribed token.
// Events are immutable once received.
type TradeEvent struct {
	Mint         string    `json:"mint"`
	TxType       string    `json:"txType"`
	TokenAmount  float64   `json:"tokenAmount"`
	SolAmount    float64   `json:"solAmount"`
	MarketCapSol float64   `json:"marketCapSol"`
	ReceivedAt   time.Time `json:"-"`
}

// UnitPrice returns the SOL price per token for this trade, or 0 when the
// token amount is zero and no meaningful price can be derived.
func (e *TradeEvent) UnitPrice() float64 {
	if e.TokenAmount <= 0 {
		return 0
	}
	return e.SolAmount / e.TokenAmount
}

// Handler consumes trade events from the feed reader.
type Handler interface {
	OnTrade(event TradeEvent)
}

// HandlerFunc allows using a function as a Handler.
type HandlerFunc func(event TradeEvent)

func (f HandlerFunc) OnTrade(event TradeEvent) { f(event) }

// subscribeRequest is the wire format for trade subscriptions.
type subscribeRequest struct {
	Method string   `json:"method"`
	Keys   []string `json:"keys"`
}

// inboundMessage is a superset of everything the feed can send. Trade
// messages carry a txType; everything else (subscription acks, notices) only
// carries a message string.
type inboundMessage struct {
	Message      string  `json:"message"`
	Mint         string  `json:"mint"`
	TxType       string  `json:"txType"`
	TokenAmount  float64 `json:"tokenAmount"`
	SolAmount    float64 `json:"solAmount"`
	MarketCapSol float64 `json:"marketCapSol"`
}

func (m *inboundMessage) isTrade() bool {
	return m.TxType != "" && m.Mint != ""
}

// internal/executor/executor.go
package executor

import (
	"context"
	"fmt"
)

// Request describes one sell order. Percent is relative to the wallet's
// current holding of the token.
type Request struct {
	Mint            string
	Percent         float64
	SlippagePercent float64
	PriorityFeeSol  float64
	Pool            string
}

// Result is the gateway's answer to a sell request. A failed call still
// produces a Result so the orchestrator can record it in the trading
// history.
type Result struct {
	Success   bool
	Signature string
	Err       string
}

// Executor is the trade execution gateway. Implementations must issue
// exactly one logical trade per call; the caller owns idempotency (issuing
// the same percentage sell twice is a caller error).
type Executor interface {
	Sell(ctx context.Context, req Request) (*Result, error)
}

// Validate checks a request before it reaches the wire.
func (r *Request) Validate() error {
	if r.Mint == "" {
		return fmt.Errorf("mint is empty")
	}
	if r.Percent <= 0 || r.Percent > 100 {
		return fmt.Errorf("percent must be in (0, 100], got %v", r.Percent)
	}
	if r.SlippagePercent < 0 || r.SlippagePercent > 100 {
		return fmt.Errorf("slippage must be in [0, 100], got %v", r.SlippagePercent)
	}
	return nil
}

// AmountString renders the percentage in the API's "<p>%" holdings format.
func (r *Request) AmountString() string {
	if r.Percent == float64(int64(r.Percent)) {
		return fmt.Sprintf("%d%%", int64(r.Percent))
	}
	return fmt.Sprintf("%g%%", r.Percent)
}

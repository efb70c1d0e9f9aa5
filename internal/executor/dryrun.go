// internal/executor/dryrun.go
package executor

import (
	"context"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// DryRun simulates the execution gateway: the full strategy state machine
// runs and every intended sell is logged, but nothing is sent. Each call
// returns a synthetic signature so downstream bookkeeping behaves exactly
// as in live mode.
type DryRun struct {
	logger *zap.Logger

	mu    sync.Mutex
	calls []Request
}

// NewDryRun creates a simulated executor.
func NewDryRun(logger *zap.Logger) *DryRun {
	return &DryRun{logger: logger.Named("executor_dryrun")}
}

// Sell records the intended order and reports success without touching the
// network.
func (d *DryRun) Sell(ctx context.Context, req Request) (*Result, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	d.mu.Lock()
	d.calls = append(d.calls, req)
	d.mu.Unlock()

	signature := "dry-run-" + uuid.NewString()
	d.logger.Info("DRY RUN: sell suppressed",
		zap.String("mint", req.Mint),
		zap.String("amount", req.AmountString()),
		zap.Float64("slippage", req.SlippagePercent),
		zap.Float64("priority_fee", req.PriorityFeeSol),
		zap.String("signature", signature))

	return &Result{Success: true, Signature: signature}, nil
}

// Calls returns the sells that would have been executed, in order.
func (d *DryRun) Calls() []Request {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]Request, len(d.calls))
	copy(out, d.calls)
	return out
}

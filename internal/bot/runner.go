// internal/bot/runner.go
package bot

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/mr-tron/base58"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/arturvolkov/pumpsell-bot/internal/config"
	"github.com/arturvolkov/pumpsell-bot/internal/executor"
	"github.com/arturvolkov/pumpsell-bot/internal/feed"
	"github.com/arturvolkov/pumpsell-bot/internal/history"
	"github.com/arturvolkov/pumpsell-bot/internal/tracker"
)

// TokenTask describes one token the runner should monitor and auto-sell.
type TokenTask struct {
	Mint              string
	InitialInvestment float64
	MaxDuration       time.Duration
}

// Runner owns the shared feed, tracker, executor and history store, and
// fans out one monitoring session per token.
type Runner struct {
	cfg    *config.Config
	logger *zap.Logger

	feed    *feed.Client
	tracker *tracker.Tracker
	exec    executor.Executor
	history *history.Store
}

func NewRunner(cfg *config.Config, logger *zap.Logger) (*Runner, error) {
	hs, err := history.Open(cfg.HistoryPath, logger)
	if err != nil {
		return nil, fmt.Errorf("open trading history: %w", err)
	}

	tr := tracker.New(tracker.DefaultHistorySize, logger)
	fc := feed.NewClient(cfg.FeedURL, cfg.FeedAlternateURL, tr, logger)

	var exec executor.Executor
	if cfg.DryRun {
		logger.Warn("Dry-run mode: sell orders will be simulated, not sent")
		exec = executor.NewDryRun(logger)
	} else {
		exec = executor.NewPumpPortal(cfg.TradeAPIURL, cfg.APIKey, logger)
	}

	return &Runner{
		cfg:     cfg,
		logger:  logger.Named("runner"),
		feed:    fc,
		tracker: tr,
		exec:    exec,
		history: hs,
	}, nil
}

// Run monitors every task until all sessions terminate or ctx is
// cancelled. A failed session is logged and does not stop the others.
func (r *Runner) Run(ctx context.Context, tasks []TokenTask) error {
	if len(tasks) == 0 {
		return fmt.Errorf("no tokens to monitor")
	}
	for _, t := range tasks {
		if err := validateMint(t.Mint); err != nil {
			return err
		}
	}

	if err := r.feed.Connect(ctx); err != nil {
		return fmt.Errorf("connect trade feed: %w", err)
	}
	defer func() {
		if err := r.feed.Close(); err != nil {
			r.logger.Warn("Feed close failed", zap.Error(err))
		}
	}()

	runCtx, cancel := context.WithCancelCause(ctx)
	defer cancel(nil)

	// The feed is shared: if it dies past its reconnect attempt, every
	// session is torn down together, carrying the feed error as the
	// cancellation cause so sessions record it instead of a clean finish.
	// The watcher lives outside the session group: it must not keep Run
	// from returning once the last session terminates on its own.
	var feedErr error
	watcherDone := make(chan struct{})
	go func() {
		defer close(watcherDone)
		select {
		case err := <-r.feed.Err():
			r.logger.Error("Trade feed lost", zap.Error(err))
			feedErr = err
			cancel(err)
		case <-runCtx.Done():
		}
	}()

	g, gCtx := errgroup.WithContext(runCtx)

	var failed atomic.Int32
	for _, t := range tasks {
		sess := NewSession(SessionConfig{
			Mint:              t.Mint,
			InitialInvestment: t.InitialInvestment,
			MaxDuration:       t.MaxDuration,
			PollInterval:      r.cfg.PollInterval(),
			SlippagePercent:   r.cfg.SlippagePercent,
			PriorityFeeSol:    r.cfg.PriorityFeeSol,
			Pool:              r.cfg.Pool,
			Feed:              r.feed,
			Tracker:           r.tracker,
			Executor:          r.exec,
			History:           r.history,
			Logger:            r.logger,
		})
		g.Go(func() error {
			if err := sess.Run(gCtx); err != nil {
				r.logger.Error("Session failed",
					zap.String("mint", sess.cfg.Mint),
					zap.Error(err))
				failed.Add(1)
			}
			return nil
		})
	}

	// Session goroutines always return nil; Wait is purely a join here.
	_ = g.Wait()
	cancel(nil)
	<-watcherDone

	if feedErr != nil && ctx.Err() == nil {
		return fmt.Errorf("trade feed lost: %w", feedErr)
	}
	if n := failed.Load(); n > 0 {
		return fmt.Errorf("%d of %d sessions failed", n, len(tasks))
	}
	return nil
}

// validateMint checks that the mint looks like a Solana address: base58,
// 32 bytes decoded.
func validateMint(mint string) error {
	raw, err := base58.Decode(mint)
	if err != nil {
		return fmt.Errorf("invalid mint address %q: %w", mint, err)
	}
	if len(raw) != 32 {
		return fmt.Errorf("invalid mint address %q: decoded to %d bytes, want 32", mint, len(raw))
	}
	return nil
}

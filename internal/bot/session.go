// internal/bot/session.go
package bot

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/arturvolkov/pumpsell-bot/internal/executor"
	"github.com/arturvolkov/pumpsell-bot/internal/history"
	"github.com/arturvolkov/pumpsell-bot/internal/strategy"
	"github.com/arturvolkov/pumpsell-bot/internal/tracker"
)

// State is the lifecycle phase of one monitoring session.
type State int

const (
	StateIdle State = iota
	StateSubscribed
	StateMonitoring
	StateExecuting
	StateTimedOut
	StateTerminated
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateSubscribed:
		return "subscribed"
	case StateMonitoring:
		return "monitoring"
	case StateExecuting:
		return "executing"
	case StateTimedOut:
		return "timed_out"
	case StateTerminated:
		return "terminated"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Subscriber is the slice of the feed client a session needs: refcounted
// interest in one token's trade stream.
type Subscriber interface {
	Subscribe(mint string) error
	Unsubscribe(mint string) error
}

// SessionConfig carries everything one token session needs.
type SessionConfig struct {
	Mint              string
	InitialInvestment float64
	MaxDuration       time.Duration
	PollInterval      time.Duration

	SlippagePercent float64
	PriorityFeeSol  float64
	Pool            string

	Feed     Subscriber
	Tracker  *tracker.Tracker
	Executor executor.Executor
	History  *history.Store
	Logger   *zap.Logger
}

// Session drives the sell-rule loop for a single token: subscribe to its
// trade stream, poll the tracked position, and liquidate when a rule fires.
// A Session is run by exactly one goroutine.
type Session struct {
	cfg    SessionConfig
	logger *zap.Logger

	state   State
	staged  bool // staged take-profit ladder already triggered
	started time.Time
}

func NewSession(cfg SessionConfig) *Session {
	return &Session{
		cfg:    cfg,
		logger: cfg.Logger.Named("session").With(zap.String("mint", cfg.Mint)),
	}
}

// State returns the session's lifecycle phase. Only meaningful from the
// goroutine running the session, or after Run has returned.
func (s *Session) State() State {
	return s.state
}

// Run executes the session until a rule fully liquidates the position, the
// monitoring window elapses, or ctx is cancelled. A trading failure is
// returned as an error; timeout and cancellation are not.
func (s *Session) Run(ctx context.Context) error {
	if err := s.cfg.History.Begin(s.cfg.Mint, s.cfg.InitialInvestment, s.cfg.MaxDuration); err != nil {
		return err
	}

	if err := s.cfg.Feed.Subscribe(s.cfg.Mint); err != nil {
		s.fail(fmt.Sprintf("subscribe: %v", err))
		return fmt.Errorf("subscribe %s: %w", s.cfg.Mint, err)
	}
	s.state = StateSubscribed
	defer func() {
		if err := s.cfg.Feed.Unsubscribe(s.cfg.Mint); err != nil {
			s.logger.Warn("Unsubscribe failed", zap.Error(err))
		}
	}()

	s.state = StateMonitoring
	s.started = time.Now()
	s.logger.Info("Monitoring started",
		zap.Duration("max_duration", s.cfg.MaxDuration),
		zap.Float64("initial_investment_sol", s.cfg.InitialInvestment))

	ticker := time.NewTicker(s.cfg.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.terminateCancelled(ctx)
			return nil

		case <-ticker.C:
			done, err := s.tick(ctx)
			if err != nil {
				return err
			}
			if done {
				return nil
			}
		}
	}
}

// tick runs one evaluation pass. It reports done=true when the session has
// reached a terminal state.
func (s *Session) tick(ctx context.Context) (bool, error) {
	pos, ok := s.cfg.Tracker.Snapshot(s.cfg.Mint)
	if !ok {
		pos = tracker.Position{Mint: s.cfg.Mint}
	}
	elapsed := time.Since(s.started)

	d := strategy.Evaluate(pos, elapsed, s.cfg.MaxDuration, s.staged)
	if d.NoAction() {
		return false, nil
	}

	s.logger.Info("Sell rule triggered",
		zap.String("rule", string(d.Rule)),
		zap.Float64("profit_pct", d.ProfitPercent),
		zap.Float64("drawdown_pct", d.DrawdownPercent),
		zap.Duration("elapsed", elapsed.Round(time.Second)))

	if d.Rule == strategy.RuleTimeout {
		s.state = StateTimedOut
	} else {
		s.state = StateExecuting
	}
	// The ladder arms exactly once per token, even if a step fails.
	if d.Rule == strategy.RuleStagedProfit {
		s.staged = true
	}

	for i, step := range d.Steps {
		if err := s.executeStep(ctx, d.Rule, step); err != nil {
			s.fail(err.Error())
			return true, err
		}
		if step.PauseAfter > 0 && i < len(d.Steps)-1 {
			select {
			case <-ctx.Done():
				s.logger.Info("Sell sequence interrupted by shutdown")
				s.terminateCancelled(ctx)
				return true, nil
			case <-time.After(step.PauseAfter):
			}
		}
	}

	s.summarize(elapsed)
	s.finish(history.StatusCompleted)
	return true, nil
}

// executeStep issues exactly one sell call and records the outcome. A call
// that the gateway reports as failed terminates the session.
func (s *Session) executeStep(ctx context.Context, rule strategy.Rule, step strategy.Step) error {
	s.logger.Info("Executing sell step",
		zap.Float64("percent", step.Percent),
		zap.String("rule", string(rule)))

	res, err := s.cfg.Executor.Sell(ctx, executor.Request{
		Mint:            s.cfg.Mint,
		Percent:         step.Percent,
		SlippagePercent: s.cfg.SlippagePercent,
		PriorityFeeSol:  s.cfg.PriorityFeeSol,
		Pool:            s.cfg.Pool,
	})
	if err != nil {
		return fmt.Errorf("sell %g%% of %s: %w", step.Percent, s.cfg.Mint, err)
	}

	rec := history.SaleRecord{
		Percent:   step.Percent,
		Rule:      string(rule),
		Signature: res.Signature,
		Success:   res.Success,
		Error:     res.Err,
	}
	if err := s.cfg.History.RecordSale(s.cfg.Mint, rec); err != nil {
		s.logger.Error("Failed to record sale", zap.Error(err))
	}

	if !res.Success {
		return fmt.Errorf("sell %g%% of %s rejected: %s", step.Percent, s.cfg.Mint, res.Err)
	}

	s.logger.Info("Sell step confirmed",
		zap.Float64("percent", step.Percent),
		zap.String("signature", res.Signature))
	return nil
}

// terminateCancelled closes the session after its context was cancelled. A
// plain shutdown finishes the entry cleanly; a cancellation caused by a
// transport failure (lost feed) is recorded as an error so the token can be
// monitored again later.
func (s *Session) terminateCancelled(ctx context.Context) {
	cause := context.Cause(ctx)
	if cause != nil && !errors.Is(cause, context.Canceled) {
		s.logger.Warn("Monitoring aborted", zap.Error(cause))
		s.fail(cause.Error())
		return
	}
	s.logger.Info("Monitoring cancelled")
	s.finish(history.StatusCompleted)
}

func (s *Session) summarize(elapsed time.Duration) {
	if pos, ok := s.cfg.Tracker.Snapshot(s.cfg.Mint); ok {
		tracker.Summarize(pos, elapsed).Log(s.logger)
	}
}

func (s *Session) finish(status history.Status) {
	s.state = StateTerminated
	if err := s.cfg.History.SetStatus(s.cfg.Mint, status, ""); err != nil {
		s.logger.Error("Failed to update trading status", zap.Error(err))
	}
	s.cfg.Tracker.Forget(s.cfg.Mint)
}

func (s *Session) fail(msg string) {
	s.state = StateTerminated
	if err := s.cfg.History.SetStatus(s.cfg.Mint, history.StatusError, msg); err != nil {
		s.logger.Error("Failed to update trading status", zap.Error(err))
	}
	s.cfg.Tracker.Forget(s.cfg.Mint)
}

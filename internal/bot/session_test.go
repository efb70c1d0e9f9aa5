package bot

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/arturvolkov/pumpsell-bot/internal/executor"
	"github.com/arturvolkov/pumpsell-bot/internal/feed"
	"github.com/arturvolkov/pumpsell-bot/internal/history"
	"github.com/arturvolkov/pumpsell-bot/internal/strategy"
	"github.com/arturvolkov/pumpsell-bot/internal/tracker"
)

const testMint = "So11111111111111111111111111111111111111112"

type fakeSubscriber struct {
	mu           sync.Mutex
	subscribed   []string
	unsubscribed []string
}

func (f *fakeSubscriber) Subscribe(mint string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.subscribed = append(f.subscribed, mint)
	return nil
}

func (f *fakeSubscriber) Unsubscribe(mint string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.unsubscribed = append(f.unsubscribed, mint)
	return nil
}

// failAfter succeeds for the first n calls and rejects everything after.
type failAfter struct {
	mu    sync.Mutex
	ok    int
	calls []executor.Request
}

func (f *failAfter) Sell(ctx context.Context, req executor.Request) (*executor.Result, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, req)
	if len(f.calls) <= f.ok {
		return &executor.Result{Success: true, Signature: fmt.Sprintf("sig-%d", len(f.calls))}, nil
	}
	return &executor.Result{Success: false, Err: "slippage exceeded"}, nil
}

type sessionEnv struct {
	tracker *tracker.Tracker
	history *history.Store
	feed    *fakeSubscriber
	exec    executor.Executor
}

func newSessionEnv(t *testing.T) *sessionEnv {
	t.Helper()
	hs, err := history.Open(filepath.Join(t.TempDir(), "history.json"), zap.NewNop())
	require.NoError(t, err)
	return &sessionEnv{
		tracker: tracker.New(tracker.DefaultHistorySize, zap.NewNop()),
		history: hs,
		feed:    &fakeSubscriber{},
		exec:    executor.NewDryRun(zap.NewNop()),
	}
}

func (env *sessionEnv) session(maxDuration time.Duration) *Session {
	return NewSession(SessionConfig{
		Mint:              testMint,
		InitialInvestment: 0.5,
		MaxDuration:       maxDuration,
		PollInterval:      10 * time.Millisecond,
		SlippagePercent:   50,
		PriorityFeeSol:    0.001,
		Pool:              "pump",
		Feed:              env.feed,
		Tracker:           env.tracker,
		Executor:          env.exec,
		History:           env.history,
		Logger:            zap.NewNop(),
	})
}

func (env *sessionEnv) trade(tokens, sol float64) {
	env.tracker.OnTrade(feed.TradeEvent{
		Mint:        testMint,
		TxType:      feed.TxTypeBuy,
		TokenAmount: tokens,
		SolAmount:   sol,
		ReceivedAt:  time.Now(),
	})
}

func TestSessionTimeoutSellsExactlyOnce(t *testing.T) {
	env := newSessionEnv(t)
	sess := env.session(50 * time.Millisecond)

	require.NoError(t, sess.Run(context.Background()))

	calls := env.exec.(*executor.DryRun).Calls()
	require.Len(t, calls, 1, "timeout must liquidate with a single order")
	assert.Equal(t, 100.0, calls[0].Percent)

	e, ok := env.history.Get(testMint)
	require.True(t, ok)
	assert.Equal(t, history.StatusSold, e.Status)
	require.Len(t, e.Sales, 1)
	assert.Equal(t, string(strategy.RuleTimeout), e.Sales[0].Rule)

	assert.Equal(t, []string{testMint}, env.feed.subscribed)
	assert.Equal(t, []string{testMint}, env.feed.unsubscribed)
	assert.Equal(t, StateTerminated, sess.State())
}

func TestSessionStagedLadderRunsInOrder(t *testing.T) {
	if testing.Short() {
		t.Skip("ladder pauses take several seconds")
	}

	env := newSessionEnv(t)
	env.trade(1000, 1)   // initial price 0.001
	env.trade(1000, 2.5) // +150%: arms the staged ladder

	sess := env.session(time.Minute)
	require.NoError(t, sess.Run(context.Background()))

	calls := env.exec.(*executor.DryRun).Calls()
	require.Len(t, calls, 3)
	for i, want := range []float64{25, 50, 100} {
		assert.Equal(t, want, calls[i].Percent, "step %d", i)
	}

	e, _ := env.history.Get(testMint)
	assert.Equal(t, history.StatusSold, e.Status)
	require.Len(t, e.Sales, 3)
	for _, s := range e.Sales {
		assert.Equal(t, string(strategy.RuleStagedProfit), s.Rule)
		assert.True(t, s.Success)
	}
}

func TestSessionTrailingStopLiquidates(t *testing.T) {
	env := newSessionEnv(t)
	env.trade(1000, 1)    // initial 0.001
	env.trade(1000, 1.5)  // +50%, new high
	env.trade(1000, 1.2)  // 20% off the high

	sess := env.session(time.Minute)
	require.NoError(t, sess.Run(context.Background()))

	calls := env.exec.(*executor.DryRun).Calls()
	require.Len(t, calls, 1)
	assert.Equal(t, 100.0, calls[0].Percent)

	e, _ := env.history.Get(testMint)
	require.Len(t, e.Sales, 1)
	assert.Equal(t, string(strategy.RuleTrailingStop), e.Sales[0].Rule)
}

func TestSessionFailedStepAbortsSequence(t *testing.T) {
	if testing.Short() {
		t.Skip("ladder pauses take several seconds")
	}

	env := newSessionEnv(t)
	fail := &failAfter{ok: 1}
	env.exec = fail

	env.trade(1000, 1)
	env.trade(1000, 2.5)

	sess := env.session(time.Minute)
	err := sess.Run(context.Background())
	require.Error(t, err, "a rejected step must terminate the session")

	require.Len(t, fail.calls, 2, "remaining ladder steps must not run after a failure")
	assert.Equal(t, 25.0, fail.calls[0].Percent)
	assert.Equal(t, 50.0, fail.calls[1].Percent)

	e, _ := env.history.Get(testMint)
	assert.Equal(t, history.StatusError, e.Status)
	require.Len(t, e.Sales, 2)
	assert.True(t, e.Sales[0].Success)
	assert.False(t, e.Sales[1].Success)

	assert.Equal(t, []string{testMint}, env.feed.unsubscribed)
}

func TestSessionFeedLossRecordsError(t *testing.T) {
	env := newSessionEnv(t)
	env.trade(1000, 1)

	ctx, cancel := context.WithCancelCause(context.Background())
	done := make(chan error, 1)
	sess := env.session(time.Minute)
	go func() { done <- sess.Run(ctx) }()

	time.Sleep(50 * time.Millisecond)
	cancel(fmt.Errorf("feed disconnected: connection reset"))

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("session did not stop after feed loss")
	}

	e, _ := env.history.Get(testMint)
	assert.Equal(t, history.StatusError, e.Status)
	assert.Contains(t, e.Error, "feed disconnected")
}

func TestSessionRefusesAlreadyTradedToken(t *testing.T) {
	env := newSessionEnv(t)
	require.NoError(t, env.history.Begin(testMint, 0.5, time.Minute))
	require.NoError(t, env.history.SetStatus(testMint, history.StatusSold, ""))

	sess := env.session(time.Minute)
	err := sess.Run(context.Background())
	require.Error(t, err)
	assert.Empty(t, env.feed.subscribed, "a refused token must not be subscribed")
}

func TestSessionCancellationIsClean(t *testing.T) {
	env := newSessionEnv(t)
	env.trade(1000, 1) // priced but no rule matches

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	sess := env.session(time.Minute)
	go func() { done <- sess.Run(ctx) }()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		require.NoError(t, err, "cancellation is not a trading failure")
	case <-time.After(2 * time.Second):
		t.Fatal("session did not stop after cancellation")
	}

	calls := env.exec.(*executor.DryRun).Calls()
	assert.Empty(t, calls, "no sells without a matching rule")

	e, _ := env.history.Get(testMint)
	assert.Equal(t, history.StatusCompleted, e.Status)
	assert.Equal(t, []string{testMint}, env.feed.unsubscribed)
}

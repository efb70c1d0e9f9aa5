package executor

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const testMint = "So11111111111111111111111111111111111111112"

func sellRequest() Request {
	return Request{
		Mint:            testMint,
		Percent:         25,
		SlippagePercent: 50,
		PriorityFeeSol:  0.001,
		Pool:            "pump",
	}
}

func TestSellSuccess(t *testing.T) {
	var got tradeRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "secret", r.URL.Query().Get("api-key"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		json.NewEncoder(w).Encode(map[string]string{"signature": "abc123"})
	}))
	defer srv.Close()

	exec := NewPumpPortal(srv.URL, "secret", zap.NewNop())
	res, err := exec.Sell(context.Background(), sellRequest())
	require.NoError(t, err)

	assert.True(t, res.Success)
	assert.Equal(t, "abc123", res.Signature)

	assert.Equal(t, "sell", got.Action)
	assert.Equal(t, testMint, got.Mint)
	assert.Equal(t, "25%", got.Amount)
	assert.Equal(t, "false", got.DenominatedInSol)
	assert.Equal(t, 50.0, got.Slippage)
	assert.Equal(t, 0.001, got.PriorityFee)
	assert.Equal(t, "pump", got.Pool)
}

func TestSellAPIErrorIsNotRetried(t *testing.T) {
	var calls int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		json.NewEncoder(w).Encode(map[string]any{"errors": []string{"insufficient balance"}})
	}))
	defer srv.Close()

	exec := NewPumpPortal(srv.URL, "secret", zap.NewNop())
	res, err := exec.Sell(context.Background(), sellRequest())
	require.NoError(t, err)

	assert.False(t, res.Success)
	assert.Contains(t, res.Err, "insufficient balance")
	assert.Equal(t, 1, calls, "a declined trade must not be re-sent")
}

func TestSellClientErrorIsPermanent(t *testing.T) {
	var calls int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		http.Error(w, "bad api key", http.StatusForbidden)
	}))
	defer srv.Close()

	exec := NewPumpPortal(srv.URL, "wrong", zap.NewNop())
	res, err := exec.Sell(context.Background(), sellRequest())
	require.NoError(t, err)

	assert.False(t, res.Success)
	assert.Equal(t, 1, calls, "4xx responses must not be retried")
}

func TestSellServerErrorIsRetried(t *testing.T) {
	var calls int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		if calls < 3 {
			http.Error(w, "upstream unavailable", http.StatusBadGateway)
			return
		}
		json.NewEncoder(w).Encode(map[string]string{"signature": "late-but-fine"})
	}))
	defer srv.Close()

	exec := NewPumpPortal(srv.URL, "secret", zap.NewNop())
	res, err := exec.Sell(context.Background(), sellRequest())
	require.NoError(t, err)

	assert.True(t, res.Success)
	assert.Equal(t, "late-but-fine", res.Signature)
	assert.Equal(t, 3, calls)
}

func TestSellRetriesAreBounded(t *testing.T) {
	var calls int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		http.Error(w, "down", http.StatusInternalServerError)
	}))
	defer srv.Close()

	exec := NewPumpPortal(srv.URL, "secret", zap.NewNop())
	res, err := exec.Sell(context.Background(), sellRequest())
	require.NoError(t, err)

	assert.False(t, res.Success)
	assert.NotEmpty(t, res.Err)
	assert.Equal(t, maxAttempts, calls)
}

func TestSellMissingSignatureFails(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{}`))
	}))
	defer srv.Close()

	exec := NewPumpPortal(srv.URL, "secret", zap.NewNop())
	res, err := exec.Sell(context.Background(), sellRequest())
	require.NoError(t, err)

	assert.False(t, res.Success)
	assert.Contains(t, res.Err, "no signature")
}

func TestSellRejectsInvalidRequest(t *testing.T) {
	exec := NewPumpPortal("http://unused", "secret", zap.NewNop())

	for _, req := range []Request{
		{Mint: "", Percent: 50, SlippagePercent: 50},
		{Mint: testMint, Percent: 0, SlippagePercent: 50},
		{Mint: testMint, Percent: 120, SlippagePercent: 50},
		{Mint: testMint, Percent: 50, SlippagePercent: 150},
	} {
		_, err := exec.Sell(context.Background(), req)
		require.Error(t, err, "request %+v should be rejected before the wire", req)
	}
}

func TestAmountStringFormats(t *testing.T) {
	tests := []struct {
		percent float64
		want    string
	}{
		{25, "25%"},
		{50, "50%"},
		{100, "100%"},
		{12.5, "12.5%"},
	}
	for _, tt := range tests {
		r := Request{Percent: tt.percent}
		if got := r.AmountString(); got != tt.want {
			t.Errorf("AmountString(%g) = %q, want %q", tt.percent, got, tt.want)
		}
	}
}

func TestDryRunRecordsCallsWithoutNetwork(t *testing.T) {
	exec := NewDryRun(zap.NewNop())

	res, err := exec.Sell(context.Background(), sellRequest())
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.True(t, strings.HasPrefix(res.Signature, "dry-run-"))

	calls := exec.Calls()
	require.Len(t, calls, 1)
	assert.Equal(t, 25.0, calls[0].Percent)
}

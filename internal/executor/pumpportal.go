// internal/executor/pumpportal.go
package executor

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/cenkalti/backoff/v5"
	"go.uber.org/zap"
)

const (
	requestTimeout = 30 * time.Second
	maxAttempts    = 3
)

// PumpPortal executes sells through the PumpPortal Lightning trade API.
// The API signs and submits the transaction server-side, so the gateway is
// a plain HTTPS call.
type PumpPortal struct {
	endpoint string
	apiKey   string
	client   *http.Client
	logger   *zap.Logger
}

// tradeRequest is the Lightning API wire format. denominatedInSol is the
// string "false" because the amount is a percentage of the token holding,
// not a SOL amount.
type tradeRequest struct {
	Action           string  `json:"action"`
	Mint             string  `json:"mint"`
	Amount           string  `json:"amount"`
	DenominatedInSol string  `json:"denominatedInSol"`
	Slippage         float64 `json:"slippage"`
	PriorityFee      float64 `json:"priorityFee"`
	Pool             string  `json:"pool"`
}

type tradeResponse struct {
	Signature string   `json:"signature"`
	Errors    []string `json:"errors"`
	Error     string   `json:"error"`
}

// NewPumpPortal creates the Lightning API gateway.
func NewPumpPortal(endpoint, apiKey string, logger *zap.Logger) *PumpPortal {
	return &PumpPortal{
		endpoint: endpoint,
		apiKey:   apiKey,
		client:   &http.Client{Timeout: requestTimeout},
		logger:   logger.Named("executor"),
	}
}

// Sell issues one sell order. Transport failures and server errors are
// retried with exponential backoff up to three attempts; client errors are
// permanent. The returned Result carries the API's error string when the
// trade was rejected.
func (p *PumpPortal) Sell(ctx context.Context, req Request) (*Result, error) {
	if err := req.Validate(); err != nil {
		return nil, fmt.Errorf("invalid sell request: %w", err)
	}

	p.logger.Info("Submitting sell order",
		zap.String("mint", req.Mint),
		zap.String("amount", req.AmountString()),
		zap.Float64("slippage", req.SlippagePercent),
		zap.Float64("priority_fee", req.PriorityFeeSol))

	op := func() (*Result, error) {
		return p.submit(ctx, req)
	}

	result, err := backoff.Retry(
		ctx,
		op,
		backoff.WithBackOff(backoff.NewExponentialBackOff()),
		backoff.WithMaxTries(maxAttempts),
	)
	if err != nil {
		p.logger.Error("Sell order failed",
			zap.String("mint", req.Mint),
			zap.String("amount", req.AmountString()),
			zap.Error(err))
		return &Result{Success: false, Err: err.Error()}, nil
	}

	if result.Success {
		p.logger.Info("Sell order confirmed",
			zap.String("mint", req.Mint),
			zap.String("amount", req.AmountString()),
			zap.String("signature", result.Signature))
	} else {
		p.logger.Error("Sell order rejected",
			zap.String("mint", req.Mint),
			zap.String("amount", req.AmountString()),
			zap.String("error", result.Err))
	}

	return result, nil
}

func (p *PumpPortal) submit(ctx context.Context, req Request) (*Result, error) {
	body, err := json.Marshal(tradeRequest{
		Action:           "sell",
		Mint:             req.Mint,
		Amount:           req.AmountString(),
		DenominatedInSol: "false",
		Slippage:         req.SlippagePercent,
		PriorityFee:      req.PriorityFeeSol,
		Pool:             req.Pool,
	})
	if err != nil {
		return nil, backoff.Permanent(fmt.Errorf("marshal trade request: %w", err))
	}

	endpoint := p.endpoint
	if p.apiKey != "" {
		endpoint += "?api-key=" + url.QueryEscape(p.apiKey)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, backoff.Permanent(fmt.Errorf("build trade request: %w", err))
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := p.client.Do(httpReq)
	if err != nil {
		// Transport error, worth retrying.
		return nil, fmt.Errorf("trade request failed: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read trade response: %w", err)
	}

	if resp.StatusCode >= 500 {
		return nil, fmt.Errorf("trade API returned %d", resp.StatusCode)
	}
	if resp.StatusCode >= 400 {
		return nil, backoff.Permanent(fmt.Errorf("trade API rejected request: %d: %s", resp.StatusCode, truncateBody(data)))
	}

	var tr tradeResponse
	if err := json.Unmarshal(data, &tr); err != nil {
		return nil, backoff.Permanent(fmt.Errorf("parse trade response: %w", err))
	}

	if apiErr := tr.firstError(); apiErr != "" {
		// The API accepted the call but declined the trade; retrying the
		// same order would risk a duplicate sell if the first one landed.
		return &Result{Success: false, Err: apiErr}, nil
	}
	if tr.Signature == "" {
		return &Result{Success: false, Err: "no signature in trade response"}, nil
	}

	return &Result{Success: true, Signature: tr.Signature}, nil
}

func (tr *tradeResponse) firstError() string {
	if tr.Error != "" {
		return tr.Error
	}
	if len(tr.Errors) > 0 {
		return tr.Errors[0]
	}
	return ""
}

func truncateBody(data []byte) string {
	const max = 200
	if len(data) > max {
		data = data[:max]
	}
	return string(data)
}

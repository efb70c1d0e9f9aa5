// internal/feed/client.go
package feed

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	methodSubscribe   = "subscribeTokenTrade"
	methodUnsubscribe = "unsubscribeTokenTrade"

	readLimit          = 2 << 20
	defaultDialTimeout = 10 * time.Second
)

// Client maintains a persistent websocket subscription to the PumpPortal
// trade feed. A single reader goroutine demultiplexes trade messages to the
// handler; subscriptions are refcounted per mint so independent monitoring
// loops can share one connection.
type Client struct {
	url          string
	alternateURL string
	handler      Handler
	logger       *zap.Logger
	dialTimeout  time.Duration

	connMu sync.Mutex
	conn   *websocket.Conn

	subsMu sync.Mutex
	subs   map[string]int

	errCh     chan error
	done      chan struct{}
	closeOnce sync.Once
	wg        sync.WaitGroup
}

// NewClient creates a feed client. alternateURL may be empty; it is used for
// the single reconnect attempt after the primary connection drops.
func NewClient(url, alternateURL string, handler Handler, logger *zap.Logger) *Client {
	return &Client{
		url:          url,
		alternateURL: alternateURL,
		handler:      handler,
		logger:       logger.Named("feed"),
		dialTimeout:  defaultDialTimeout,
		subs:         make(map[string]int),
		errCh:        make(chan error, 1),
		done:         make(chan struct{}),
	}
}

// Connect dials the feed and starts the reader goroutine. Dial attempts use
// bounded exponential backoff; if the primary endpoint never comes up the
// alternate endpoint is tried before giving up.
func (c *Client) Connect(ctx context.Context) error {
	dialedURL := c.url
	conn, err := c.dial(ctx, c.url)
	if err != nil {
		if c.alternateURL == "" {
			return fmt.Errorf("connect feed: %w", err)
		}
		c.logger.Warn("Primary feed endpoint unreachable, trying alternate",
			zap.String("url", c.alternateURL),
			zap.Error(err))
		dialedURL = c.alternateURL
		conn, err = c.dial(ctx, c.alternateURL)
		if err != nil {
			return fmt.Errorf("connect feed (alternate): %w", err)
		}
	}

	c.connMu.Lock()
	c.conn = conn
	c.connMu.Unlock()

	c.logger.Info("Feed connection established", zap.String("url", dialedURL))

	c.wg.Add(1)
	go c.readLoop()

	return nil
}

func (c *Client) dial(ctx context.Context, url string) (*websocket.Conn, error) {
	dialCtx, cancel := context.WithTimeout(ctx, c.dialTimeout)
	defer cancel()

	op := func() (*websocket.Conn, error) {
		conn, _, err := websocket.DefaultDialer.DialContext(dialCtx, url, nil)
		if err != nil {
			return nil, err
		}
		conn.SetReadLimit(readLimit)
		return conn, nil
	}

	return backoff.Retry(
		dialCtx,
		op,
		backoff.WithBackOff(backoff.NewExponentialBackOff()),
		backoff.WithMaxElapsedTime(c.dialTimeout),
	)
}

// Subscribe registers interest in a token's trades. Re-subscribing an
// already-subscribed mint only bumps the refcount; the wire message is sent
// once per distinct mint.
func (c *Client) Subscribe(mint string) error {
	c.subsMu.Lock()
	defer c.subsMu.Unlock()

	c.subs[mint]++
	if c.subs[mint] > 1 {
		c.logger.Debug("Already subscribed", zap.String("mint", mint))
		return nil
	}

	if err := c.writeJSON(subscribeRequest{Method: methodSubscribe, Keys: []string{mint}}); err != nil {
		c.subs[mint]--
		return fmt.Errorf("subscribe %s: %w", mint, err)
	}

	c.logger.Info("Subscribed to token trades", zap.String("mint", mint))
	return nil
}

// Unsubscribe drops one reference to a token's trades, sending the wire
// unsubscribe only when the last subscriber is gone.
func (c *Client) Unsubscribe(mint string) error {
	c.subsMu.Lock()
	defer c.subsMu.Unlock()

	count, ok := c.subs[mint]
	if !ok {
		return nil
	}
	if count > 1 {
		c.subs[mint]--
		return nil
	}
	delete(c.subs, mint)

	select {
	case <-c.done:
		// Connection is going away anyway.
		return nil
	default:
	}

	if err := c.writeJSON(subscribeRequest{Method: methodUnsubscribe, Keys: []string{mint}}); err != nil {
		return fmt.Errorf("unsubscribe %s: %w", mint, err)
	}

	c.logger.Info("Unsubscribed from token trades", zap.String("mint", mint))
	return nil
}

// Err reports a fatal transport failure (disconnect after the reconnect
// attempt was exhausted). At most one error is delivered.
func (c *Client) Err() <-chan error {
	return c.errCh
}

// Close tears down the connection and stops the reader.
func (c *Client) Close() error {
	var err error
	c.closeOnce.Do(func() {
		close(c.done)
		c.connMu.Lock()
		if c.conn != nil {
			err = c.conn.Close()
		}
		c.connMu.Unlock()
		c.wg.Wait()
	})
	return err
}

func (c *Client) writeJSON(v interface{}) error {
	c.connMu.Lock()
	defer c.connMu.Unlock()
	if c.conn == nil {
		return fmt.Errorf("feed not connected")
	}
	return c.conn.WriteJSON(v)
}

// readLoop is the single reader for the connection. Malformed messages are
// logged and skipped; a read failure triggers exactly one reconnect attempt
// against the alternate endpoint before the loop gives up.
func (c *Client) readLoop() {
	defer c.wg.Done()

	for {
		c.connMu.Lock()
		conn := c.conn
		c.connMu.Unlock()

		_, data, err := conn.ReadMessage()
		if err != nil {
			select {
			case <-c.done:
				return
			default:
			}

			c.logger.Warn("Feed read failed", zap.Error(err))
			if !c.reconnect() {
				select {
				case c.errCh <- fmt.Errorf("feed disconnected: %w", err):
				default:
				}
				return
			}
			continue
		}

		c.dispatch(data)
	}
}

func (c *Client) dispatch(data []byte) {
	var msg inboundMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		c.logger.Warn("Dropping non-JSON feed message", zap.Error(err))
		return
	}

	if !msg.isTrade() {
		if msg.Message != "" {
			c.logger.Debug("Feed notice", zap.String("message", msg.Message))
		} else {
			c.logger.Debug("Unrecognized feed message", zap.ByteString("payload", truncate(data, 200)))
		}
		return
	}

	c.handler.OnTrade(TradeEvent{
		Mint:         msg.Mint,
		TxType:       msg.TxType,
		TokenAmount:  msg.TokenAmount,
		SolAmount:    msg.SolAmount,
		MarketCapSol: msg.MarketCapSol,
		ReceivedAt:   time.Now(),
	})
}

// reconnect makes a single attempt against the alternate endpoint and
// restores active subscriptions. Returns false when the client should stop.
func (c *Client) reconnect() bool {
	if c.alternateURL == "" {
		return false
	}

	select {
	case <-c.done:
		return false
	default:
	}

	c.logger.Info("Attempting feed reconnect", zap.String("url", c.alternateURL))

	conn, err := c.dial(context.Background(), c.alternateURL)
	if err != nil {
		c.logger.Error("Feed reconnect failed", zap.Error(err))
		return false
	}

	c.connMu.Lock()
	if c.conn != nil {
		_ = c.conn.Close()
	}
	c.conn = conn
	c.connMu.Unlock()

	if err := c.resubscribeAll(); err != nil {
		c.logger.Error("Failed to restore subscriptions after reconnect", zap.Error(err))
		return false
	}

	c.logger.Info("Feed reconnected, subscriptions restored")
	return true
}

func (c *Client) resubscribeAll() error {
	c.subsMu.Lock()
	keys := make([]string, 0, len(c.subs))
	for mint := range c.subs {
		keys = append(keys, mint)
	}
	c.subsMu.Unlock()

	if len(keys) == 0 {
		return nil
	}
	return c.writeJSON(subscribeRequest{Method: methodSubscribe, Keys: keys})
}

func truncate(data []byte, n int) []byte {
	if len(data) <= n {
		return data
	}
	return data[:n]
}

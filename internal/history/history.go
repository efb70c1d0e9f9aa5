// internal/history/history.go
package history

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Status is the lifecycle state of one monitored token.
type Status string

const (
	StatusMonitoring Status = "monitoring"
	StatusSold       Status = "sold"      // fully liquidated by a rule
	StatusCompleted  Status = "completed" // monitoring ended without full liquidation
	StatusError      Status = "error"
)

// SaleRecord is one executed (or attempted) sell step.
type SaleRecord struct {
	ID        string    `json:"id"`
	Percent   float64   `json:"percent"`
	Rule      string    `json:"rule,omitempty"`
	Signature string    `json:"signature,omitempty"`
	Timestamp time.Time `json:"timestamp"`
	Success   bool      `json:"success"`
	Error     string    `json:"error,omitempty"`
}

// Entry is the audit record for one monitored token. Entries are created
// when monitoring begins and only ever appended to.
type Entry struct {
	Mint              string       `json:"mint"`
	TokenName         string       `json:"token_name,omitempty"`
	TokenSymbol       string       `json:"token_symbol,omitempty"`
	InitialInvestment float64      `json:"initial_investment"`
	MaxDurationSec    int          `json:"max_duration_sec"`
	MonitoringStarted time.Time    `json:"monitoring_started"`
	Status            Status       `json:"trading_status"`
	Error             string       `json:"error,omitempty"`
	Sales             []SaleRecord `json:"sales"`
}

// fileFormat is the on-disk layout.
type fileFormat struct {
	TradingHistory []*Entry  `json:"trading_history"`
	LastUpdated    time.Time `json:"last_updated"`
}

// Store persists the trading history as a JSON file. It survives restarts
// and is used to refuse double-monitoring of a token that is already being
// traded or has been traded before.
type Store struct {
	mu      sync.RWMutex
	path    string
	entries []*Entry
	logger  *zap.Logger
}

// Open loads the history file, creating an empty store when none exists.
func Open(path string, logger *zap.Logger) (*Store, error) {
	s := &Store{path: path, logger: logger.Named("history")}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			s.logger.Info("No trading history found, starting fresh", zap.String("path", path))
			return s, nil
		}
		return nil, fmt.Errorf("read history: %w", err)
	}

	var ff fileFormat
	if err := json.Unmarshal(data, &ff); err != nil {
		return nil, fmt.Errorf("parse history %s: %w", path, err)
	}
	s.entries = ff.TradingHistory

	s.logger.Info("Trading history loaded",
		zap.String("path", path),
		zap.Int("entries", len(s.entries)))
	return s, nil
}

// Begin creates (or revives) the entry for a token and marks it monitoring.
// A token that is already monitoring, sold or completed is refused; an
// entry left in the error state is reset and monitored again.
func (s *Store) Begin(mint string, initialInvestment float64, maxDuration time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if e := s.find(mint); e != nil {
		switch e.Status {
		case StatusMonitoring, StatusSold, StatusCompleted:
			return fmt.Errorf("token %s already has trading status %q", mint, e.Status)
		}
		e.Status = StatusMonitoring
		e.Error = ""
		e.MonitoringStarted = time.Now()
		e.InitialInvestment = initialInvestment
		e.MaxDurationSec = int(maxDuration.Seconds())
		return s.save()
	}

	s.entries = append(s.entries, &Entry{
		Mint:              mint,
		InitialInvestment: initialInvestment,
		MaxDurationSec:    int(maxDuration.Seconds()),
		MonitoringStarted: time.Now(),
		Status:            StatusMonitoring,
		Sales:             []SaleRecord{},
	})
	return s.save()
}

// RecordSale appends a sale attempt to the token's entry. A successful 100%
// sale moves the entry to the sold state.
func (s *Store) RecordSale(mint string, rec SaleRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	e := s.find(mint)
	if e == nil {
		return fmt.Errorf("no history entry for token %s", mint)
	}

	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	if rec.Timestamp.IsZero() {
		rec.Timestamp = time.Now()
	}
	e.Sales = append(e.Sales, rec)

	if rec.Success && rec.Percent >= 100 {
		e.Status = StatusSold
	}

	s.logger.Info("Sale recorded",
		zap.String("mint", mint),
		zap.Float64("percent", rec.Percent),
		zap.String("rule", rec.Rule),
		zap.Bool("success", rec.Success))

	return s.save()
}

// SetStatus moves the token's entry to a terminal state. errMsg is only
// stored for the error status.
func (s *Store) SetStatus(mint string, status Status, errMsg string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	e := s.find(mint)
	if e == nil {
		return fmt.Errorf("no history entry for token %s", mint)
	}

	// A sold position stays sold; completing the monitoring loop must not
	// demote it.
	if e.Status == StatusSold && status == StatusCompleted {
		return s.save()
	}

	e.Status = status
	if status == StatusError {
		e.Error = errMsg
	}
	return s.save()
}

// Get returns a copy of the token's entry.
func (s *Store) Get(mint string) (Entry, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	e := s.find(mint)
	if e == nil {
		return Entry{}, false
	}
	out := *e
	out.Sales = make([]SaleRecord, len(e.Sales))
	copy(out.Sales, e.Sales)
	return out, true
}

// Entries returns a copy of all history entries.
func (s *Store) Entries() []Entry {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]Entry, 0, len(s.entries))
	for _, e := range s.entries {
		c := *e
		c.Sales = make([]SaleRecord, len(e.Sales))
		copy(c.Sales, e.Sales)
		out = append(out, c)
	}
	return out
}

func (s *Store) find(mint string) *Entry {
	for _, e := range s.entries {
		if e.Mint == mint {
			return e
		}
	}
	return nil
}

// save writes the file atomically: marshal to a temp file in the same
// directory, then rename over the old one.
func (s *Store) save() error {
	data, err := json.MarshalIndent(fileFormat{
		TradingHistory: s.entries,
		LastUpdated:    time.Now(),
	}, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal history: %w", err)
	}

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("create history directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".history-*.json")
	if err != nil {
		return fmt.Errorf("create temp history file: %w", err)
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("write history: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("close history file: %w", err)
	}
	if err := os.Rename(tmp.Name(), s.path); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("replace history file: %w", err)
	}
	return nil
}

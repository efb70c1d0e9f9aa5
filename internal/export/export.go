package export

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/arturvolkov/pumpsell-bot/internal/history"
)

// Format represents the export file format
type Format string

const (
	FormatCSV  Format = "csv"
	FormatJSON Format = "json"
)

// Options configures the export behavior
type Options struct {
	Format      Format
	TokenFilter string // Filter by token mint
	OnlySuccess bool   // Only export successful sales
	OutputDir   string
}

// row is one sale flattened together with its token's entry fields.
type row struct {
	Mint              string    `json:"mint"`
	Status            string    `json:"trading_status"`
	InitialInvestment float64   `json:"initial_investment"`
	SaleID            string    `json:"sale_id"`
	Percent           float64   `json:"percent"`
	Rule              string    `json:"rule"`
	Signature         string    `json:"signature"`
	Timestamp         time.Time `json:"timestamp"`
	Success           bool      `json:"success"`
	Error             string    `json:"error,omitempty"`
}

// Exporter writes the trading history to disk in a tabular form, one row
// per executed sale.
type Exporter struct {
	logger *zap.Logger
}

// New creates a history exporter
func New(logger *zap.Logger) *Exporter {
	return &Exporter{
		logger: logger.Named("export"),
	}
}

// Export writes the matching sales based on the provided options and
// returns the path of the written file.
func (e *Exporter) Export(entries []history.Entry, options Options) (string, error) {
	rows := e.flatten(entries, options)

	if len(rows) == 0 {
		return "", fmt.Errorf("no sales match the export criteria")
	}

	// Sort by timestamp
	sort.Slice(rows, func(i, j int) bool {
		return rows[i].Timestamp.Before(rows[j].Timestamp)
	})

	filename := e.generateFilename(options)
	outputPath := filepath.Join(options.OutputDir, filename)

	if err := os.MkdirAll(options.OutputDir, 0755); err != nil {
		return "", fmt.Errorf("failed to create output directory: %w", err)
	}

	var err error
	switch options.Format {
	case FormatCSV:
		err = e.exportToCSV(rows, outputPath)
	case FormatJSON:
		err = e.exportToJSON(rows, outputPath)
	default:
		err = fmt.Errorf("unsupported format: %s", options.Format)
	}

	if err != nil {
		return "", err
	}

	e.logger.Info("Trading history exported",
		zap.String("file", outputPath),
		zap.Int("sales", len(rows)),
		zap.String("format", string(options.Format)))

	return outputPath, nil
}

// flatten applies filters and turns entries into one row per sale.
func (e *Exporter) flatten(entries []history.Entry, options Options) []row {
	var rows []row

	for _, entry := range entries {
		if options.TokenFilter != "" && entry.Mint != options.TokenFilter {
			continue
		}
		for _, sale := range entry.Sales {
			if options.OnlySuccess && !sale.Success {
				continue
			}
			rows = append(rows, row{
				Mint:              entry.Mint,
				Status:            string(entry.Status),
				InitialInvestment: entry.InitialInvestment,
				SaleID:            sale.ID,
				Percent:           sale.Percent,
				Rule:              sale.Rule,
				Signature:         sale.Signature,
				Timestamp:         sale.Timestamp,
				Success:           sale.Success,
				Error:             sale.Error,
			})
		}
	}

	return rows
}

// generateFilename creates a filename based on export options
func (e *Exporter) generateFilename(options Options) string {
	timestamp := time.Now().Format("20060102_150405")

	prefix := "sales_all"
	if options.OnlySuccess {
		prefix = "sales_successful"
	}
	if options.TokenFilter != "" && len(options.TokenFilter) >= 8 {
		prefix += "_" + options.TokenFilter[:8]
	}

	return fmt.Sprintf("%s_%s.%s", prefix, timestamp, options.Format)
}

func (e *Exporter) exportToCSV(rows []row, path string) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create export file: %w", err)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	defer w.Flush()

	header := []string{
		"mint", "trading_status", "initial_investment_sol", "sale_id",
		"percent", "rule", "signature", "timestamp", "success", "error",
	}
	if err := w.Write(header); err != nil {
		return fmt.Errorf("failed to write CSV header: %w", err)
	}

	for _, r := range rows {
		record := []string{
			r.Mint,
			r.Status,
			strconv.FormatFloat(r.InitialInvestment, 'f', -1, 64),
			r.SaleID,
			strconv.FormatFloat(r.Percent, 'f', -1, 64),
			r.Rule,
			r.Signature,
			r.Timestamp.Format(time.RFC3339),
			strconv.FormatBool(r.Success),
			r.Error,
		}
		if err := w.Write(record); err != nil {
			return fmt.Errorf("failed to write CSV record: %w", err)
		}
	}

	return w.Error()
}

func (e *Exporter) exportToJSON(rows []row, path string) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create export file: %w", err)
	}
	defer f.Close()

	enc := json.NewEncoder(f)
	enc.SetIndent("", "  ")
	return enc.Encode(rows)
}

// internal/journal/csv.go
package journal

import (
	"fmt"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/rovshanmuradov/solana-testlab/internal/logger"
)

var csvHeader = []string{
	"timestamp", "record_id", "campaign_id", "alert_id", "price_type", "direction",
	"target_value", "target_price", "price", "price_usd", "outcomes",
}

// CSVSink archives records to a CSV file.
type CSVSink struct {
	writer *logger.SafeCSVWriter
}

// NewCSVSink creates triggers_<timestamp>.csv inside dir.
func NewCSVSink(dir string, flushInterval time.Duration, zapLogger *zap.Logger) (*CSVSink, error) {
	path := filepath.Join(dir, fmt.Sprintf("triggers_%s.csv", time.Now().Format("20060102_150405")))
	w, err := logger.NewSafeCSVWriter(path, csvHeader, flushInterval, zapLogger)
	if err != nil {
		return nil, fmt.Errorf("failed to create trigger archive: %w", err)
	}
	return &CSVSink{writer: w}, nil
}

// Path returns the archive file path.
func (s *CSVSink) Path() string { return s.writer.Path() }

// Write appends one row.
func (s *CSVSink) Write(rec Record) error {
	return s.writer.WriteRecord(csvRow(rec))
}

// Flush forces buffered rows to disk.
func (s *CSVSink) Flush() error { return s.writer.Flush() }

// Close flushes and closes the file.
func (s *CSVSink) Close() error { return s.writer.Close() }

func csvRow(rec Record) []string {
	outcomes := make([]string, 0, len(rec.Outcomes))
	for _, o := range rec.Outcomes {
		item := string(o.ActionType) + ":" + string(o.Status)
		if o.Error != "" {
			item += "(" + o.Error + ")"
		}
		outcomes = append(outcomes, item)
	}
	return []string{
		rec.Timestamp.UTC().Format(time.RFC3339Nano),
		rec.ID,
		rec.CampaignID,
		rec.AlertID,
		string(rec.PriceType),
		string(rec.Direction),
		strconv.FormatFloat(rec.TargetValue, 'f', -1, 64),
		strconv.FormatFloat(rec.TargetPrice, 'f', -1, 64),
		strconv.FormatFloat(rec.TriggeredAtPrice, 'f', -1, 64),
		strconv.FormatFloat(rec.TriggeredAtPriceUSD, 'f', -1, 64),
		strings.Join(outcomes, ";"),
	}
}

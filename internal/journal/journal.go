// internal/journal/journal.go
package journal

import (
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/rovshanmuradov/solana-testlab/internal/alert"
	"github.com/rovshanmuradov/solana-testlab/internal/dispatch"
)

// DefaultCapacity is the number of records kept in memory.
const DefaultCapacity = 100

// Record is the immutable history entry of one alert firing. Target fields
// are copied from the alert so the record stays meaningful after the alert
// is deleted.
type Record struct {
	ID                  string             `json:"id"`
	CampaignID          string             `json:"campaign_id"`
	AlertID             string             `json:"alert_id"`
	PriceType           alert.PriceType    `json:"price_type"`
	Direction           alert.Direction    `json:"direction"`
	TargetValue         float64            `json:"target_value"`
	TargetPrice         float64            `json:"target_price"`
	TriggeredAtPrice    float64            `json:"triggered_at_price"`
	TriggeredAtPriceUSD float64            `json:"triggered_at_price_usd"`
	Timestamp           time.Time          `json:"timestamp"`
	Outcomes            []dispatch.Outcome `json:"outcomes"`
}

// RecordID derives the record id from the alert and the firing time.
func RecordID(alertID string, firedAt time.Time) string {
	return fmt.Sprintf("%s-%d", alertID, firedAt.UnixNano())
}

// Failed counts the failed outcomes.
func (r Record) Failed() int {
	n := 0
	for _, o := range r.Outcomes {
		if o.Status == dispatch.StatusFailed {
			n++
		}
	}
	return n
}

// Sink receives every appended record, e.g. to archive it.
type Sink interface {
	Write(rec Record) error
}

// Journal is a fixed-capacity ring of trigger records shared by all
// campaigns. When full, appending evicts the oldest record.
type Journal struct {
	mu       sync.RWMutex
	ring     []Record
	next     int
	size     int
	sinks    []Sink
	logger   *zap.Logger
	appended uint64
}

// New creates a journal. A non-positive capacity falls back to DefaultCapacity.
func New(capacity int, logger *zap.Logger, sinks ...Sink) *Journal {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Journal{
		ring:   make([]Record, capacity),
		sinks:  sinks,
		logger: logger.Named("journal"),
	}
}

// AddSink registers an additional sink.
func (j *Journal) AddSink(s Sink) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.sinks = append(j.sinks, s)
}

// Append stores a record. Sink failures are logged and never affect the
// in-memory history.
func (j *Journal) Append(rec Record) {
	rec.Outcomes = append([]dispatch.Outcome(nil), rec.Outcomes...)

	j.mu.Lock()
	j.ring[j.next] = rec
	j.next = (j.next + 1) % len(j.ring)
	if j.size < len(j.ring) {
		j.size++
	}
	j.appended++
	sinks := j.sinks
	j.mu.Unlock()

	for _, s := range sinks {
		if err := s.Write(rec); err != nil {
			j.logger.Error("Failed to write record to sink",
				zap.String("record_id", rec.ID),
				zap.Error(err))
		}
	}
}

// Preload fills the ring with records restored from storage, oldest first.
// Sinks are not called.
func (j *Journal) Preload(recs []Record) {
	j.mu.Lock()
	defer j.mu.Unlock()
	for _, rec := range recs {
		rec.Outcomes = append([]dispatch.Outcome(nil), rec.Outcomes...)
		j.ring[j.next] = rec
		j.next = (j.next + 1) % len(j.ring)
		if j.size < len(j.ring) {
			j.size++
		}
	}
}

// List returns up to limit records, newest first. An empty campaignID
// matches every campaign; a non-positive limit returns everything kept.
func (j *Journal) List(limit int, campaignID string) []Record {
	j.mu.RLock()
	defer j.mu.RUnlock()

	if limit <= 0 || limit > j.size {
		limit = j.size
	}
	out := make([]Record, 0, limit)
	for i := 1; i <= j.size && len(out) < limit; i++ {
		idx := (j.next - i + len(j.ring)) % len(j.ring)
		rec := j.ring[idx]
		if campaignID != "" && rec.CampaignID != campaignID {
			continue
		}
		rec.Outcomes = append([]dispatch.Outcome(nil), rec.Outcomes...)
		out = append(out, rec)
	}
	return out
}

// Len returns the number of records currently kept.
func (j *Journal) Len() int {
	j.mu.RLock()
	defer j.mu.RUnlock()
	return j.size
}

// Capacity returns the ring size.
func (j *Journal) Capacity() int {
	return len(j.ring)
}

// Appended returns how many records were ever appended, evicted ones included.
func (j *Journal) Appended() uint64 {
	j.mu.RLock()
	defer j.mu.RUnlock()
	return j.appended
}

package journal

import (
	"encoding/csv"
	"errors"
	"fmt"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/rovshanmuradov/solana-testlab/internal/alert"
	"github.com/rovshanmuradov/solana-testlab/internal/dispatch"
)

var base = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

func record(i int, campaignID string) Record {
	ts := base.Add(time.Duration(i) * time.Second)
	alertID := fmt.Sprintf("a%d", i)
	return Record{
		ID:               RecordID(alertID, ts),
		CampaignID:       campaignID,
		AlertID:          alertID,
		PriceType:        alert.PriceTypePercentage,
		Direction:        alert.DirectionAbove,
		TargetValue:      50,
		TargetPrice:      1.5,
		TriggeredAtPrice: 1.5,
		Timestamp:        ts,
		Outcomes: []dispatch.Outcome{
			{ActionType: alert.ActionNotify, Status: dispatch.StatusSuccess},
		},
	}
}

type recordingSink struct {
	mu   sync.Mutex
	recs []Record
	err  error
}

func (s *recordingSink) Write(rec Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.recs = append(s.recs, rec)
	return s.err
}

func TestRecordID(t *testing.T) {
	assert.Equal(t, fmt.Sprintf("a1-%d", base.UnixNano()), RecordID("a1", base))
}

func TestJournalBoundedEvictsOldest(t *testing.T) {
	j := New(3, zap.NewNop())
	for i := 0; i < 4; i++ {
		j.Append(record(i, "c1"))
	}

	assert.Equal(t, 3, j.Len())
	assert.Equal(t, 3, j.Capacity())
	assert.Equal(t, uint64(4), j.Appended())

	recs := j.List(0, "")
	require.Len(t, recs, 3)
	assert.Equal(t, "a3", recs[0].AlertID, "newest first")
	assert.Equal(t, "a1", recs[2].AlertID, "a0 was evicted")
}

func TestJournalListFiltersAndLimits(t *testing.T) {
	j := New(10, nil)
	for i := 0; i < 6; i++ {
		cid := "c1"
		if i%2 == 1 {
			cid = "c2"
		}
		j.Append(record(i, cid))
	}

	c2 := j.List(0, "c2")
	require.Len(t, c2, 3)
	assert.Equal(t, []string{"a5", "a3", "a1"}, []string{c2[0].AlertID, c2[1].AlertID, c2[2].AlertID})

	limited := j.List(2, "")
	require.Len(t, limited, 2)
	assert.Equal(t, "a5", limited[0].AlertID)
	assert.Equal(t, "a4", limited[1].AlertID)

	assert.Empty(t, j.List(5, "missing"))
}

func TestJournalDefaultCapacity(t *testing.T) {
	assert.Equal(t, DefaultCapacity, New(0, nil).Capacity())
}

func TestJournalRecordsAreImmutable(t *testing.T) {
	j := New(5, nil)
	rec := record(1, "c1")
	j.Append(rec)
	rec.Outcomes[0].Status = dispatch.StatusFailed

	got := j.List(1, "")
	require.Len(t, got, 1)
	assert.Equal(t, dispatch.StatusSuccess, got[0].Outcomes[0].Status)

	got[0].Outcomes[0].Status = dispatch.StatusPending
	assert.Equal(t, dispatch.StatusSuccess, j.List(1, "")[0].Outcomes[0].Status)
}

func TestJournalConcurrentAppends(t *testing.T) {
	j := New(50, nil)
	sink := &recordingSink{}
	j.AddSink(sink)

	var wg sync.WaitGroup
	for g := 0; g < 8; g++ {
		wg.Add(1)
		go func(g int) {
			defer wg.Done()
			for i := 0; i < 25; i++ {
				j.Append(record(g*100+i, fmt.Sprintf("c%d", g)))
				_ = j.List(5, "")
			}
		}(g)
	}
	wg.Wait()

	assert.Equal(t, 50, j.Len())
	assert.Equal(t, uint64(200), j.Appended())
	assert.Len(t, sink.recs, 200)
}

func TestJournalSinkErrorDoesNotDropRecord(t *testing.T) {
	sink := &recordingSink{err: errors.New("disk full")}
	j := New(5, zap.NewNop(), sink)
	j.Append(record(1, "c1"))

	assert.Equal(t, 1, j.Len())
	assert.Len(t, sink.recs, 1)
}

func TestCSVSink(t *testing.T) {
	sink, err := NewCSVSink(t.TempDir(), time.Second, zap.NewNop())
	require.NoError(t, err)

	rec := record(1, "c1")
	rec.Outcomes = append(rec.Outcomes, dispatch.Outcome{ActionType: alert.ActionBuy, Status: dispatch.StatusFailed, Error: "no funds"})
	j := New(5, nil, sink)
	j.Append(rec)
	require.NoError(t, sink.Close())

	f, err := os.Open(sink.Path())
	require.NoError(t, err)
	defer f.Close()
	rows, err := csv.NewReader(f).ReadAll()
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, csvHeader, rows[0])
	assert.Equal(t, rec.ID, rows[1][1])
	assert.Equal(t, "notify:success;buy:failed(no funds)", rows[1][10])
	assert.Equal(t, 1, rec.Failed())
}

func TestJournalPreloadSkipsSinks(t *testing.T) {
	sink := &recordingSink{}
	j := New(2, nil, sink)
	j.Preload([]Record{record(1, "c1"), record(2, "c1"), record(3, "c1")})

	assert.Empty(t, sink.recs)
	recs := j.List(0, "")
	require.Len(t, recs, 2)
	assert.Equal(t, "a3", recs[0].AlertID)
	assert.Equal(t, "a2", recs[1].AlertID)
}

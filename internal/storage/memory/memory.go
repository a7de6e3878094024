// internal/storage/memory/memory.go
package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/rovshanmuradov/solana-testlab/internal/alert"
	"github.com/rovshanmuradov/solana-testlab/internal/campaign"
	"github.com/rovshanmuradov/solana-testlab/internal/dispatch"
	"github.com/rovshanmuradov/solana-testlab/internal/journal"
	"github.com/rovshanmuradov/solana-testlab/internal/storage"
)

// Store keeps everything in maps. It is used when no database is configured
// and in tests.
type Store struct {
	mu        sync.RWMutex
	campaigns map[string]campaign.Campaign
	alerts    map[string]alert.Alert
	records   []journal.Record
}

var _ storage.Store = (*Store)(nil)

// New creates an empty store.
func New() *Store {
	return &Store{
		campaigns: make(map[string]campaign.Campaign),
		alerts:    make(map[string]alert.Alert),
	}
}

func (s *Store) SaveCampaign(_ context.Context, c campaign.Campaign) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.campaigns[c.ID] = c
	return nil
}

func (s *Store) DeleteCampaign(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.campaigns[id]; !ok {
		return storage.ErrNotFound
	}
	delete(s.campaigns, id)
	for aid, a := range s.alerts {
		if a.CampaignID == id {
			delete(s.alerts, aid)
		}
	}
	return nil
}

func (s *Store) LoadCampaigns(_ context.Context) ([]campaign.Campaign, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]campaign.Campaign, 0, len(s.campaigns))
	for _, c := range s.campaigns {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].StartedAt.Equal(out[j].StartedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].StartedAt.Before(out[j].StartedAt)
	})
	return out, nil
}

func (s *Store) SaveAlert(_ context.Context, a alert.Alert) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.alerts[a.ID] = *a.Clone()
	return nil
}

func (s *Store) DeleteAlert(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.alerts[id]; !ok {
		return storage.ErrNotFound
	}
	delete(s.alerts, id)
	return nil
}

func (s *Store) LoadAlerts(_ context.Context) ([]alert.Alert, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]alert.Alert, 0, len(s.alerts))
	for _, a := range s.alerts {
		out = append(out, *a.Clone())
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}

func (s *Store) SaveRecord(_ context.Context, rec journal.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec.Outcomes = append([]dispatch.Outcome(nil), rec.Outcomes...)
	s.records = append(s.records, rec)
	return nil
}

func (s *Store) LoadRecords(_ context.Context, limit int) ([]journal.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	recs := s.records
	if limit > 0 && len(recs) > limit {
		recs = recs[len(recs)-limit:]
	}
	return append([]journal.Record(nil), recs...), nil
}

func (s *Store) Close() error { return nil }

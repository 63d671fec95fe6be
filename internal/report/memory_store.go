package report

import (
	"context"
	"strings"
	"sync"
)

// MemoryStore implements Store in memory.
type MemoryStore struct {
	mu      sync.RWMutex
	runs    map[string]*Run
	order   []string // run IDs in save order
	wallets map[string][]WalletScore
}

// NewMemoryStore creates an in-memory run store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		runs:    make(map[string]*Run),
		wallets: make(map[string][]WalletScore),
	}
}

func (m *MemoryStore) SaveRun(_ context.Context, run *Run, wallets []WalletScore) error {
	sorted := append([]WalletScore(nil), wallets...)
	SortByRisk(sorted)
	stored := *run

	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.runs[run.ID]; !exists {
		m.order = append(m.order, run.ID)
	}
	m.runs[run.ID] = &stored
	m.wallets[run.ID] = sorted
	return nil
}

func (m *MemoryStore) LatestRun(_ context.Context) (*Run, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	latest := m.latestLocked(func(*Run) bool { return true })
	if latest == nil {
		return nil, ErrNotFound
	}
	out := *latest
	return &out, nil
}

func (m *MemoryStore) GetRun(_ context.Context, id string) (*Run, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	run, ok := m.runs[id]
	if !ok {
		return nil, ErrNotFound
	}
	out := *run
	return &out, nil
}

func (m *MemoryStore) ListWallets(_ context.Context, runID string, limit int) ([]WalletScore, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if _, ok := m.runs[runID]; !ok {
		return nil, ErrNotFound
	}
	wallets := m.wallets[runID]
	limit = ClampLimit(limit)
	if len(wallets) > limit {
		wallets = wallets[:limit]
	}
	return append([]WalletScore(nil), wallets...), nil
}

func (m *MemoryStore) LatestScore(_ context.Context, address string) (*WalletScore, error) {
	addr := strings.ToLower(strings.TrimSpace(address))

	m.mu.RLock()
	defer m.mu.RUnlock()

	var found *WalletScore
	m.latestLocked(func(r *Run) bool {
		for i := range m.wallets[r.ID] {
			if m.wallets[r.ID][i].Address == addr {
				found = &m.wallets[r.ID][i]
				return true
			}
		}
		return false
	})
	if found == nil {
		return nil, ErrNotFound
	}
	out := *found
	return &out, nil
}

// latestLocked returns the most recently completed run accepted by match.
// Later saves win ties on completion time.
func (m *MemoryStore) latestLocked(match func(*Run) bool) *Run {
	var latest *Run
	for _, id := range m.order {
		r := m.runs[id]
		if latest != nil && r.CompletedAt.Before(latest.CompletedAt) {
			continue
		}
		if match(r) {
			latest = r
		}
	}
	return latest
}

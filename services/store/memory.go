package store

import (
	"context"
	"slices"
	"strings"
	"sync"

	"github.com/dealmungchi/dealcrawler/internal/deal"
)

// Memory is an in-process Gateway
type Memory struct {
	mu    sync.RWMutex
	deals map[deal.DedupKey]deal.Deal
	byID  map[string]deal.DedupKey
}

// NewMemory creates an empty store
func NewMemory() *Memory {
	return &Memory{
		deals: make(map[deal.DedupKey]deal.Deal),
		byID:  make(map[string]deal.DedupKey),
	}
}

func (m *Memory) ExistsByKey(ctx context.Context, source, nativeID string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.deals[deal.DedupKey{Source: source, NativeID: nativeID}]
	return ok, nil
}

func (m *Memory) SaveIfNew(ctx context.Context, d deal.Deal) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	key := d.Key()
	if _, ok := m.deals[key]; ok {
		return false, nil
	}
	if d.ID == "" {
		d.ID = deal.NewID(d.Source, d.NativeID)
	}
	m.deals[key] = d
	m.byID[d.ID] = key
	return true, nil
}

func (m *Memory) MarkEnded(ctx context.Context, source, nativeID string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	key := deal.DedupKey{Source: source, NativeID: nativeID}
	d, ok := m.deals[key]
	if !ok || d.Status == deal.StatusEnded {
		return false, nil
	}
	d.Status = deal.StatusEnded
	m.deals[key] = d
	return true, nil
}

func (m *Memory) FindAll(ctx context.Context, f Filter) ([]deal.Deal, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	matched := make([]deal.Deal, 0, len(m.deals))
	for _, d := range m.deals {
		if f.matches(d) {
			matched = append(matched, d)
		}
	}
	m.mu.RUnlock()

	slices.SortFunc(matched, func(a, b deal.Deal) int {
		if c := b.PostedAt.Compare(a.PostedAt); c != 0 {
			return c
		}
		return strings.Compare(a.ID, b.ID)
	})

	if f.Offset >= len(matched) {
		return []deal.Deal{}, nil
	}
	matched = matched[max(f.Offset, 0):]
	if len(matched) > f.limit() {
		matched = matched[:f.limit()]
	}
	return matched, nil
}

func (m *Memory) FindByID(ctx context.Context, id string) (deal.Deal, error) {
	if err := ctx.Err(); err != nil {
		return deal.Deal{}, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	key, ok := m.byID[id]
	if !ok {
		return deal.Deal{}, ErrNotFound
	}
	return m.deals[key], nil
}

// Len returns the number of stored deals
func (m *Memory) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.deals)
}

func (m *Memory) Close() error { return nil }


// Package dedup answers "have we seen this listing before" for one crawl job.
package dedup

import (
	"context"
	"sync"

	"github.com/dealmungchi/dealcrawler/internal/deal"
)

// Checker reports whether a listing is already persisted
type Checker interface {
	ExistsByKey(ctx context.Context, source, nativeID string) (bool, error)
}

// Index combines the persisted state with an in-memory overlay of keys
// claimed during the current job. An Index is meant to live for one job and
// is safe for concurrent use by that job's workers.
type Index struct {
	checker Checker

	mu   sync.RWMutex
	seen map[deal.DedupKey]struct{}
}

// NewIndex creates an empty job-scoped index. checker may be nil, in which
// case only the overlay is consulted.
func NewIndex(checker Checker) *Index {
	return &Index{
		checker: checker,
		seen:    make(map[deal.DedupKey]struct{}),
	}
}

// Has reports whether key was marked during this job or is already persisted
func (i *Index) Has(ctx context.Context, key deal.DedupKey) (bool, error) {
	i.mu.RLock()
	_, ok := i.seen[key]
	i.mu.RUnlock()
	if ok {
		return true, nil
	}
	if i.checker == nil {
		return false, nil
	}
	return i.checker.ExistsByKey(ctx, key.Source, key.NativeID)
}

// MarkSeen records key in the overlay. It returns true only for the caller
// that marked it first, so check-then-persist sequences stay race free.
func (i *Index) MarkSeen(key deal.DedupKey) bool {
	i.mu.Lock()
	defer i.mu.Unlock()

	if _, ok := i.seen[key]; ok {
		return false
	}
	i.seen[key] = struct{}{}
	return true
}

// Len returns the number of keys marked during this job
func (i *Index) Len() int {
	i.mu.RLock()
	defer i.mu.RUnlock()
	return len(i.seen)
}

// Package store persists deals.
package store

import (
	"context"
	"errors"

	"github.com/dealmungchi/dealcrawler/internal/deal"
)

// ErrNotFound is returned by FindByID for unknown ids
var ErrNotFound = errors.New("deal not found")

// DefaultLimit caps FindAll when the filter sets no limit
const DefaultLimit = 100

// Filter narrows FindAll. Zero values match everything.
type Filter struct {
	Source   string
	Category string
	Status   deal.Status
	Limit    int
	Offset   int
}

func (f Filter) limit() int {
	if f.Limit <= 0 {
		return DefaultLimit
	}
	return f.Limit
}

func (f Filter) matches(d deal.Deal) bool {
	return (f.Source == "" || d.Source == f.Source) &&
		(f.Category == "" || d.Category == f.Category) &&
		(f.Status == "" || d.Status == f.Status)
}

// Gateway is the deal persistence contract
type Gateway interface {
	ExistsByKey(ctx context.Context, source, nativeID string) (bool, error)
	// SaveIfNew inserts d unless a deal with the same key exists
	SaveIfNew(ctx context.Context, d deal.Deal) (bool, error)
	// MarkEnded sets a stored deal to ended. updated is false when the deal
	// is unknown or already ended.
	MarkEnded(ctx context.Context, source, nativeID string) (updated bool, err error)
	// FindAll returns matching deals, newest first
	FindAll(ctx context.Context, f Filter) ([]deal.Deal, error)
	FindByID(ctx context.Context, id string) (deal.Deal, error)
	Close() error
}

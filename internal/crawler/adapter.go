package crawler

import (
	"context"
	"fmt"
	"slices"
	"sync"

	"github.com/samber/lo"

	"github.com/dealmungchi/dealcrawler/internal/deal"
)

// Page is one list page worth of records
type Page struct {
	Records []deal.RawRecord
	// HasMore is false when the source has no page after this one
	HasMore bool
}

// Adapter fetches list pages from one source. Pages are numbered from 1.
//
// Errors must be tagged through pkg/errors: anything not explicitly marked
// permanent is treated as transient and retried.
type Adapter interface {
	FetchPage(ctx context.Context, page int) (Page, error)
}

// DetailFetcher is implemented by sources that need a second request per
// listing to complete a record.
type DetailFetcher interface {
	FetchDetail(ctx context.Context, raw deal.RawRecord) (deal.RawRecord, error)
}

// AdapterFunc adapts a plain function to Adapter
type AdapterFunc func(ctx context.Context, page int) (Page, error)

// FetchPage calls f
func (f AdapterFunc) FetchPage(ctx context.Context, page int) (Page, error) {
	return f(ctx, page)
}

// Source is a registered crawl target
type Source struct {
	Name    string
	Adapter Adapter
	// Detail is nil when listings are complete on the list page
	Detail DetailFetcher
	// NewestFirst sources list recent posts first, so a page of already seen
	// records means everything after it was seen too.
	NewestFirst bool
}

// Registry holds the sources a crawl job may name
type Registry struct {
	mu      sync.RWMutex
	sources map[string]Source
}

// NewRegistry creates a registry with the given sources
func NewRegistry(sources ...Source) (*Registry, error) {
	r := &Registry{sources: make(map[string]Source)}
	for _, src := range sources {
		if err := r.Register(src); err != nil {
			return nil, err
		}
	}
	return r, nil
}

// Register adds src. Names must be unique and non-empty.
func (r *Registry) Register(src Source) error {
	if src.Name == "" {
		return fmt.Errorf("register source: empty name")
	}
	if src.Adapter == nil {
		return fmt.Errorf("register source %s: nil adapter", src.Name)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.sources[src.Name]; exists {
		return fmt.Errorf("register source %s: already registered", src.Name)
	}
	r.sources[src.Name] = src
	return nil
}

// Lookup returns the source registered under name
func (r *Registry) Lookup(name string) (Source, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	src, ok := r.sources[name]
	return src, ok
}

// Names returns the registered source names in sorted order
func (r *Registry) Names() []string {
	r.mu.RLock()
	names := lo.Keys(r.sources)
	r.mu.RUnlock()

	slices.Sort(names)
	return names
}

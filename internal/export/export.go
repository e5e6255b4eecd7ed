// Package export moves deals in and out of the store as JSON files.
package export

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"slices"
	"strings"
	"time"

	"github.com/samber/lo"

	"github.com/dealmungchi/dealcrawler/internal/deal"
	"github.com/dealmungchi/dealcrawler/services/store"
)

// FormatVersion is written to every export
const FormatVersion = "1.0.0"

// ErrInvalidFile is returned by Read for files that are not exports
var ErrInvalidFile = errors.New("invalid export file")

// Metadata is the export header
type Metadata struct {
	ExportedAt time.Time `json:"exportedAt"`
	Count      int       `json:"count"`
	Source     string    `json:"source"`
	Version    string    `json:"version"`
}

// File is the on-disk export layout
type File struct {
	Metadata Metadata    `json:"metadata"`
	Deals    []deal.Deal `json:"deals"`
}

// Finder is the store read path Collect needs
type Finder interface {
	FindAll(ctx context.Context, f store.Filter) ([]deal.Deal, error)
}

// Saver is the store write path Import needs
type Saver interface {
	SaveIfNew(ctx context.Context, d deal.Deal) (bool, error)
}

// Collect pages through every deal matching f. f.Limit sets the page size.
func Collect(ctx context.Context, finder Finder, f store.Filter) ([]deal.Deal, error) {
	if f.Limit <= 0 {
		f.Limit = store.DefaultLimit
	}

	var all []deal.Deal
	for {
		page, err := finder.FindAll(ctx, f)
		if err != nil {
			return nil, fmt.Errorf("find deals at offset %d: %w", f.Offset, err)
		}
		all = append(all, page...)
		if len(page) < f.Limit {
			return all, nil
		}
		f.Offset += len(page)
	}
}

// NewFile wraps deals with a header. An empty source tag lists the sources
// present in deals.
func NewFile(deals []deal.Deal, source string, now time.Time) File {
	if source == "" {
		names := lo.Uniq(lo.Map(deals, func(d deal.Deal, _ int) string { return d.Source }))
		slices.Sort(names)
		source = strings.Join(names, ",")
	}
	if deals == nil {
		deals = []deal.Deal{}
	}
	return File{
		Metadata: Metadata{
			ExportedAt: now.UTC(),
			Count:      len(deals),
			Source:     source,
			Version:    FormatVersion,
		},
		Deals: deals,
	}
}

// Write encodes f as indented JSON
func Write(w io.Writer, f File) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(f); err != nil {
		return fmt.Errorf("encode export: %w", err)
	}
	return nil
}

// Read decodes an export and checks its header against its body
func Read(r io.Reader) (File, error) {
	var raw struct {
		Metadata *Metadata   `json:"metadata"`
		Deals    []deal.Deal `json:"deals"`
	}
	if err := json.NewDecoder(r).Decode(&raw); err != nil {
		return File{}, fmt.Errorf("%w: %v", ErrInvalidFile, err)
	}
	if raw.Deals == nil {
		return File{}, fmt.Errorf("%w: deals array not found", ErrInvalidFile)
	}
	f := File{Deals: raw.Deals}
	if raw.Metadata != nil {
		f.Metadata = *raw.Metadata
		if f.Metadata.Count != len(f.Deals) {
			return File{}, fmt.Errorf("%w: header counts %d deals, file has %d",
				ErrInvalidFile, f.Metadata.Count, len(f.Deals))
		}
	}
	return f, nil
}

// ImportResult counts what Import did with each deal
type ImportResult struct {
	Imported int `json:"imported"`
	Skipped  int `json:"skipped"`
	Invalid  int `json:"invalid"`
}

// Import saves every deal of f that is not stored yet. Deals without a
// source or native id are counted as invalid. A store error aborts the
// import and returns the counts so far.
func Import(ctx context.Context, saver Saver, f File) (ImportResult, error) {
	var res ImportResult
	for _, d := range f.Deals {
		if d.Source == "" || d.NativeID == "" {
			res.Invalid++
			continue
		}
		if d.ID == "" {
			d.ID = deal.NewID(d.Source, d.NativeID)
		}
		saved, err := saver.SaveIfNew(ctx, d)
		if err != nil {
			return res, fmt.Errorf("save %s: %w", d.ID, err)
		}
		if saved {
			res.Imported++
		} else {
			res.Skipped++
		}
	}
	return res, nil
}

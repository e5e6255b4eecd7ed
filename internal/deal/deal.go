// Package deal holds the data model shared by the crawl engine, the source
// adapters and the persistence gateways.
package deal

import (
	"fmt"
	"math"
	"time"
)

// Status is the lifecycle state of a deal
type Status string

const (
	StatusActive Status = "active"
	StatusEnded  Status = "ended"
)

// DefaultCategory is assigned when no classification rule matches
const DefaultCategory = "기타"

// RawRecord is an unnormalized listing as extracted from a source page.
// Fields holds site-native values keyed by the names the normalizer knows
// (title, salePrice, originalUrl, ...).
type RawRecord struct {
	Source   string         `json:"source"`
	NativeID string         `json:"nativeId"`
	Fields   map[string]any `json:"fields"`
}

// Key returns the dedup key of the record
func (r RawRecord) Key() DedupKey {
	return DedupKey{Source: r.Source, NativeID: r.NativeID}
}

// Clone returns a copy whose Fields map can be modified independently
func (r RawRecord) Clone() RawRecord {
	fields := make(map[string]any, len(r.Fields))
	for k, v := range r.Fields {
		fields[k] = v
	}
	r.Fields = fields
	return r
}

// DedupKey identifies a listing across crawls
type DedupKey struct {
	Source   string
	NativeID string
}

// String renders the key in the same form as a Deal ID
func (k DedupKey) String() string {
	return NewID(k.Source, k.NativeID)
}

// NewID derives the stable deal identifier for a source listing
func NewID(source, nativeID string) string {
	return fmt.Sprintf("%s:%s", source, nativeID)
}

// Deal is a normalized listing ready to be persisted
type Deal struct {
	ID             string    `json:"id" db:"id"`
	Source         string    `json:"source" db:"source"`
	NativeID       string    `json:"nativeId" db:"native_id"`
	Title          string    `json:"title" db:"title"`
	Category       string    `json:"category" db:"category"`
	OriginalPrice  float64   `json:"originalPrice" db:"original_price"`
	SalePrice      float64   `json:"salePrice" db:"sale_price"`
	DiscountRate   float64   `json:"discountRate" db:"discount_rate"`
	ImageURL       string    `json:"imageUrl,omitempty" db:"image_url"`
	OriginalURL    string    `json:"originalUrl,omitempty" db:"original_url"`
	Seller         string    `json:"seller,omitempty" db:"seller"`
	IsFreeShipping bool      `json:"isFreeShipping" db:"is_free_shipping"`
	PostedAt       time.Time `json:"postedAt" db:"posted_at"`
	Status         Status    `json:"status" db:"status"`
	ViewCount      int       `json:"viewCount" db:"view_count"`
	LikeCount      int       `json:"likeCount" db:"like_count"`
	CommentCount   int       `json:"commentCount" db:"comment_count"`
	CrawledAt      time.Time `json:"crawledAt" db:"crawled_at"`
}

// Key returns the dedup key of the deal
func (d Deal) Key() DedupKey {
	return DedupKey{Source: d.Source, NativeID: d.NativeID}
}

// DiscountRate computes clamp(1 - sale/original, 0, 1). A non-positive
// original price or a rate that is not a number yields 0.
func DiscountRate(original, sale float64) float64 {
	if original <= 0 {
		return 0
	}
	rate := 1 - sale/original
	switch {
	case math.IsNaN(rate), rate < 0:
		return 0
	case rate > 1:
		return 1
	}
	return rate
}

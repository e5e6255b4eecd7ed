// Package normalize turns site-native RawRecords into validated Deals.
package normalize

import (
	"fmt"
	"math"
	"reflect"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/mitchellh/mapstructure"

	"github.com/dealmungchi/dealcrawler/internal/deal"
	"github.com/dealmungchi/dealcrawler/pkg/errors"
)

var (
	storePattern        = regexp.MustCompile(`^\s*\[([^\]]+)\]`)
	freeShippingPattern = regexp.MustCompile(`(?i)무료|free|무배`)
	whitespacePattern   = regexp.MustCompile(`\s+`)

	endedStatuses = map[string]bool{
		"ended": true, "end": true, "expired": true, "closed": true,
		"soldout": true, "sold_out": true, "sold out": true,
		"종료": true, "품절": true, "마감": true,
	}

	kst = time.FixedZone("KST", 9*60*60)
)

// price is a decoded price field. ok is false when the field was absent or
// held no number.
type price struct {
	amount float64
	ok     bool
}

var priceType = reflect.TypeOf(price{})

// fields is the subset of RawRecord.Fields the normalizer understands
type fields struct {
	Title          string `mapstructure:"title"`
	Category       string `mapstructure:"category"`
	Content        string `mapstructure:"content"`
	Price          price  `mapstructure:"price"`
	OriginalPrice  price  `mapstructure:"originalPrice"`
	SalePrice      price  `mapstructure:"salePrice"`
	ImageURL       string `mapstructure:"imageUrl"`
	OriginalURL    string `mapstructure:"originalUrl"`
	Seller         string `mapstructure:"seller"`
	Shipping       string `mapstructure:"shipping"`
	IsFreeShipping *bool  `mapstructure:"isFreeShipping"`
	PostedAt       any    `mapstructure:"postedAt"`
	Status         string `mapstructure:"status"`
	SoldOut        bool   `mapstructure:"soldOut"`
	ViewCount      int    `mapstructure:"viewCount"`
	LikeCount      int    `mapstructure:"likeCount"`
	CommentCount   int    `mapstructure:"commentCount"`
}

// Option configures a Normalizer
type Option func(*Normalizer)

// WithClock sets the time source used for crawl timestamps and relative dates
func WithClock(now func() time.Time) Option {
	return func(n *Normalizer) {
		n.now = now
	}
}

// WithClassifier replaces the default category classifier
func WithClassifier(c *Classifier) Option {
	return func(n *Normalizer) {
		n.classifier = c
	}
}

// Normalizer validates raw records and converts them into deals.
// It is safe for concurrent use.
type Normalizer struct {
	classifier *Classifier
	now        func() time.Time
}

// New creates a Normalizer
func New(opts ...Option) *Normalizer {
	n := &Normalizer{
		classifier: NewClassifier(),
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(n)
	}
	return n
}

// Normalize validates raw and returns the resulting deal. Records without a
// title, source, native id or any price are rejected with a validation error.
func (n *Normalizer) Normalize(raw deal.RawRecord) (deal.Deal, error) {
	source := strings.TrimSpace(raw.Source)
	nativeID := strings.TrimSpace(raw.NativeID)
	if source == "" {
		return deal.Deal{}, errors.NewValidation(source, "missing source")
	}
	if nativeID == "" {
		return deal.Deal{}, errors.NewValidation(source, "missing native id")
	}

	var f fields
	if err := decode(raw.Fields, &f); err != nil {
		return deal.Deal{}, errors.NewPermanent(errors.ErrorTypeValidation, source, "undecodable fields", err)
	}

	title := cleanText(f.Title)
	if title == "" {
		return deal.Deal{}, errors.NewValidation(source, fmt.Sprintf("record %s: missing title", nativeID))
	}

	original, sale, ok := resolvePrices(f, title)
	if !ok {
		return deal.Deal{}, errors.NewValidation(source, fmt.Sprintf("record %s: missing price", nativeID))
	}

	now := n.now()
	d := deal.Deal{
		ID:             deal.NewID(source, nativeID),
		Source:         source,
		NativeID:       nativeID,
		Title:          title,
		Category:       n.category(f, title),
		OriginalPrice:  original,
		SalePrice:      sale,
		DiscountRate:   deal.DiscountRate(original, sale),
		ImageURL:       strings.TrimSpace(f.ImageURL),
		OriginalURL:    strings.TrimSpace(f.OriginalURL),
		Seller:         seller(f, title),
		IsFreeShipping: freeShipping(f, title),
		PostedAt:       postedAt(f.PostedAt, now),
		Status:         status(f),
		ViewCount:      max(f.ViewCount, 0),
		LikeCount:      max(f.LikeCount, 0),
		CommentCount:   max(f.CommentCount, 0),
		CrawledAt:      now,
	}
	return d, nil
}

func decode(input map[string]any, out *fields) error {
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		DecodeHook:       mapstructure.DecodeHookFuncType(decodeHook),
		WeaklyTypedInput: true,
		Result:           out,
	})
	if err != nil {
		return err
	}
	if input == nil {
		return nil
	}
	return dec.Decode(input)
}

// decodeHook parses prices and counts from the loose text sites show
// ("13,900원", "1,024").
func decodeHook(from, to reflect.Type, data any) (any, error) {
	if to == priceType {
		return toPrice(data), nil
	}
	if from.Kind() == reflect.String && to.Kind() == reflect.Int {
		digits := strings.Map(func(r rune) rune {
			if r >= '0' && r <= '9' {
				return r
			}
			return -1
		}, data.(string))
		if digits == "" {
			return 0, nil
		}
		v, err := strconv.Atoi(digits)
		if err != nil {
			return 0, nil
		}
		return v, nil
	}
	return data, nil
}

func toPrice(data any) price {
	switch v := data.(type) {
	case string:
		amount, ok := ParsePrice(v)
		return price{amount: amount, ok: ok}
	case float64:
		return finitePrice(v)
	case float32:
		return finitePrice(float64(v))
	case int:
		return price{amount: float64(v), ok: true}
	case int64:
		return price{amount: float64(v), ok: true}
	case price:
		return v
	}
	return price{}
}

func finitePrice(v float64) price {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return price{}
	}
	return price{amount: v, ok: true}
}

// resolvePrices fills whichever price is missing from the other, clamps
// negatives to zero and keeps sale <= original.
func resolvePrices(f fields, title string) (original, sale float64, ok bool) {
	o, s := f.OriginalPrice, f.SalePrice
	if !s.ok && f.Price.ok {
		s = f.Price
	}
	if !o.ok && !s.ok {
		if amount, found := PriceFromTitle(title); found {
			s = price{amount: amount, ok: true}
		}
	}

	switch {
	case o.ok && s.ok:
		original, sale = o.amount, s.amount
	case s.ok:
		original, sale = s.amount, s.amount
	case o.ok:
		original, sale = o.amount, o.amount
	default:
		return 0, 0, false
	}

	original = math.Max(original, 0)
	sale = math.Max(sale, 0)
	if sale > original {
		original = sale
	}
	return original, sale, true
}

func (n *Normalizer) category(f fields, title string) string {
	result := n.classifier.Classify(title + " " + f.Category + " " + f.Content)
	if result.Category != deal.DefaultCategory {
		return result.Category
	}
	if c := strings.Trim(strings.TrimSpace(f.Category), "[]"); c != "" {
		return c
	}
	return deal.DefaultCategory
}

func seller(f fields, title string) string {
	if s := strings.TrimSpace(f.Seller); s != "" {
		return s
	}
	if m := storePattern.FindStringSubmatch(title); m != nil {
		return strings.TrimSpace(m[1])
	}
	return ""
}

func freeShipping(f fields, title string) bool {
	if f.IsFreeShipping != nil {
		return *f.IsFreeShipping
	}
	if f.Shipping != "" {
		return freeShippingPattern.MatchString(f.Shipping)
	}
	return freeShippingPattern.MatchString(title)
}

func status(f fields) deal.Status {
	if f.SoldOut || endedStatuses[strings.ToLower(strings.TrimSpace(f.Status))] {
		return deal.StatusEnded
	}
	return deal.StatusActive
}

func cleanText(s string) string {
	return strings.TrimSpace(whitespacePattern.ReplaceAllString(s, " "))
}

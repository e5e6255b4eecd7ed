package dealtesting

import (
	"math/rand"
	"time"

	"github.com/go-faker/faker/v4"

	"github.com/dealmungchi/dealcrawler/internal/deal"
)

// FakeRawRecord returns a well-formed deal.RawRecord for source with fake data.
func FakeRawRecord(source string, ops ...func(r *deal.RawRecord)) deal.RawRecord {
	original := float64(10000 + rand.Intn(90000))
	raw := deal.RawRecord{
		Source:   source,
		NativeID: faker.UUIDDigit(),
		Fields: map[string]any{
			"title":         faker.Sentence(),
			"originalPrice": original,
			"salePrice":     original * 0.8,
			"imageUrl":      faker.URL(),
			"originalUrl":   faker.URL(),
			"postedAt":      time.Now().Add(-time.Duration(rand.Intn(60)) * time.Minute).Format(time.RFC3339),
			"viewCount":     rand.Intn(1000),
		},
	}

	for _, op := range ops {
		op(&raw)
	}

	return raw
}

// FakeRawRecords returns n fake records for source.
func FakeRawRecords(source string, n int) []deal.RawRecord {
	records := make([]deal.RawRecord, 0, n)
	for i := 0; i < n; i++ {
		records = append(records, FakeRawRecord(source))
	}
	return records
}

// FakeDeal returns a normalized deal.Deal with fake data.
func FakeDeal(ops ...func(d *deal.Deal)) deal.Deal {
	source := faker.Word()
	nativeID := faker.UUIDDigit()
	original := float64(10000 + rand.Intn(90000))
	sale := original * 0.7

	d := deal.Deal{
		ID:            deal.NewID(source, nativeID),
		Source:        source,
		NativeID:      nativeID,
		Title:         faker.Sentence(),
		Category:      deal.DefaultCategory,
		OriginalPrice: original,
		SalePrice:     sale,
		DiscountRate:  deal.DiscountRate(original, sale),
		ImageURL:      faker.URL(),
		OriginalURL:   faker.URL(),
		Seller:        faker.Word(),
		PostedAt:      time.Now().UTC().Truncate(time.Second),
		Status:        deal.StatusActive,
		ViewCount:     rand.Intn(1000),
		CrawledAt:     time.Now().UTC().Truncate(time.Second),
	}

	for _, op := range ops {
		op(&d)
	}

	return d
}

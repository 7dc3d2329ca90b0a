// Package pipeline aggregates product references into ranked records and writes them out.
package pipeline

import "github.com/aluiziolira/go-shop-reviews/models"

// Aggregator groups references by product URL. It is not safe for concurrent use;
// references must be added in page order for the first-seen rules to hold.
type Aggregator struct {
	index   map[string]int
	records []models.ShopReviewRecord
	total   int
}

// NewAggregator returns an empty aggregator.
func NewAggregator() *Aggregator {
	return &Aggregator{index: make(map[string]int)}
}

// Add counts one reference. References without a URL are ignored and reported false.
func (a *Aggregator) Add(ref models.ProductReference) bool {
	if ref.ProductURL == "" {
		return false
	}
	a.total++
	if i, ok := a.index[ref.ProductURL]; ok {
		a.records[i].OccurrenceCount++
		return true
	}

	name := ref.ProductName
	if name == "" {
		name = models.UnknownProductName
	}
	a.index[ref.ProductURL] = len(a.records)
	a.records = append(a.records, models.ShopReviewRecord{
		ProductURL:      ref.ProductURL,
		ProductName:     name,
		OccurrenceCount: 1,
		Status:          models.StatusPending,
	})
	return true
}

// AddAll counts every reference of a page.
func (a *Aggregator) AddAll(refs []models.ProductReference) {
	for _, ref := range refs {
		a.Add(ref)
	}
}

// Total is the number of references counted.
func (a *Aggregator) Total() int {
	return a.total
}

// Len is the number of distinct products.
func (a *Aggregator) Len() int {
	return len(a.records)
}

// Records returns a copy of the records in first-seen order.
func (a *Aggregator) Records() []models.ShopReviewRecord {
	out := make([]models.ShopReviewRecord, len(a.records))
	copy(out, a.records)
	return out
}

// Aggregate collapses refs into one record per product URL, in first-seen order.
func Aggregate(refs []models.ProductReference) []models.ShopReviewRecord {
	agg := NewAggregator()
	agg.AddAll(refs)
	return agg.Records()
}

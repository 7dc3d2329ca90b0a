package pipeline

import (
	"cmp"
	"slices"

	"github.com/aluiziolira/go-shop-reviews/models"
)

// Rank orders a copy of records by occurrence count, highest first.
// Equal counts keep their aggregation order.
func Rank(records []models.ShopReviewRecord) []models.ShopReviewRecord {
	ranked := slices.Clone(records)
	slices.SortStableFunc(ranked, func(a, b models.ShopReviewRecord) int {
		return cmp.Compare(b.OccurrenceCount, a.OccurrenceCount)
	})
	return ranked
}

// Top returns the n best-selling records.
func Top(records []models.ShopReviewRecord, n int) []models.ShopReviewRecord {
	ranked := Rank(records)
	if n < 0 {
		n = 0
	}
	if n < len(ranked) {
		ranked = ranked[:n]
	}
	return ranked
}

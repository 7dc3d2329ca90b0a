package parser

import (
	"fmt"
	"net/url"
	"regexp"
	"strings"

	"github.com/aluiziolira/go-shop-reviews/models"
)

var shopPathPattern = regexp.MustCompile(`^/(?:[a-z]{2}/)?shop/([^/?#]+)`)

// ShopIDFromURL extracts the shop identifier from a storefront URL.
// A bare identifier without a scheme or slash is accepted as is.
func ShopIDFromURL(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", fmt.Errorf("shop url is empty")
	}
	if !strings.Contains(raw, "/") {
		return raw, nil
	}
	if !strings.Contains(raw, "://") {
		raw = "https://" + raw
	}

	parsed, err := url.Parse(raw)
	if err != nil {
		return "", fmt.Errorf("parse shop url: %w", err)
	}
	m := shopPathPattern.FindStringSubmatch(parsed.Path)
	if m == nil {
		return "", fmt.Errorf("not a shop url: %s", raw)
	}
	return m[1], nil
}

// ValidateReference ensures a listing entry carries its identity key.
func ValidateReference(r *models.ProductReference) error {
	if r == nil {
		return fmt.Errorf("reference is nil")
	}
	if strings.TrimSpace(r.ProductURL) == "" {
		return fmt.Errorf("reference missing product url")
	}
	return nil
}

// ValidateRecord ensures an aggregated record is writable.
func ValidateRecord(r *models.ShopReviewRecord) error {
	if r == nil {
		return fmt.Errorf("record is nil")
	}
	if strings.TrimSpace(r.ProductURL) == "" {
		return fmt.Errorf("record missing product url")
	}
	if r.OccurrenceCount <= 0 {
		return fmt.Errorf("record %s has non-positive count %d", r.ProductURL, r.OccurrenceCount)
	}
	if (r.Currency == nil) != (r.PriceAmount == nil) {
		return fmt.Errorf("record %s has a partial price", r.ProductURL)
	}
	return nil
}

// TruncateName shortens a product name for tabular display.
func TruncateName(name string, max int) string {
	runes := []rune(name)
	if max <= 3 || len(runes) <= max {
		return name
	}
	return string(runes[:max-3]) + "..."
}

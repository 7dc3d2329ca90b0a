// Package models defines data structures for the scraper.
package models

import "time"

// UnknownProductName is used when a review entry carries no product label.
const UnknownProductName = "Unknown Product"

// EnrichmentStatus tracks what happened to a record during the detail stage.
type EnrichmentStatus string

const (
	StatusPending  EnrichmentStatus = "pending"
	StatusEnriched EnrichmentStatus = "enriched"
	StatusFailed   EnrichmentStatus = "failed"
	StatusSkipped  EnrichmentStatus = "skipped"
)

// ProductReference is a product link found inside one review entry.
type ProductReference struct {
	ProductURL  string
	ProductName string
	Page        int
}

// ShopReviewRecord aggregates every reference to one product URL.
// Currency, PriceAmount and ImageURL stay nil until enrichment fills them.
type ShopReviewRecord struct {
	ProductURL      string           `csv:"product_url" json:"product_url"`
	ProductName     string           `csv:"product_name" json:"product_name"`
	OccurrenceCount int              `csv:"sales_count" json:"sales_count"`
	Currency        *string          `csv:"currency" json:"currency,omitempty"`
	PriceAmount     *string          `csv:"price" json:"price,omitempty"`
	ImageURL        *string          `csv:"image_url" json:"image_url,omitempty"`
	Status          EnrichmentStatus `csv:"status" json:"status"`
	EnrichError     string           `csv:"enrich_error" json:"enrich_error,omitempty"`
}

// Enrichment is the outcome of fetching one product detail page.
// Err is set when the fetch or parse failed; the value fields are then nil.
type Enrichment struct {
	ProductURL  string
	Currency    *string
	PriceAmount *string
	ImageURL    *string
	Err         error
}

// Failed reports whether the enrichment attempt failed.
func (e Enrichment) Failed() bool {
	return e.Err != nil
}

// Apply returns a copy of r carrying the enrichment outcome. Key and count are never touched.
func (e Enrichment) Apply(r ShopReviewRecord) ShopReviewRecord {
	if e.Err != nil {
		r.Currency, r.PriceAmount, r.ImageURL = nil, nil, nil
		r.Status = StatusFailed
		r.EnrichError = e.Err.Error()
		return r
	}
	r.Currency = e.Currency
	r.PriceAmount = e.PriceAmount
	r.ImageURL = e.ImageURL
	r.Status = StatusEnriched
	r.EnrichError = ""
	return r
}

// StringValue dereferences an optional field, returning "" when absent.
func StringValue(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

// StringPtr returns a pointer to a copy of s.
func StringPtr(s string) *string {
	return &s
}

// RunResult holds the overall result of one shop crawl.
type RunResult struct {
	ShopID         string
	Records        []ShopReviewRecord
	References     int
	MaxPages       int
	PagesRequested int
	PagesFetched   int
	FailedPages    []int
	StartTime      time.Time
	EndTime        time.Time

	// Incomplete is set when the run was cancelled before all work finished.
	Incomplete bool
	// LowerBound is set when failed listing pages were skipped, so counts may be low.
	LowerBound bool

	EnrichFailed   int
	EnrichSkipped  int
	FailedProducts []string
	Warnings       int
	ErrorsByType   map[string]int
	RequestCount   int
}

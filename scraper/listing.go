package scraper

import (
	"context"
	"log/slog"

	"github.com/aluiziolira/go-shop-reviews/models"
	"github.com/aluiziolira/go-shop-reviews/parser"
)

// FetchListingPage fetches one review listing page and extracts its product references
// in document order.
func (s *Scraper) FetchListingPage(ctx context.Context, sess *Session, shopID string, page int) ([]models.ProductReference, error) {
	listingURL := s.cfg.ListingURL(shopID, page)

	fetched, err := fetchWithRetry(ctx, sess, s.cfg, s.Metrics, phaseListing, listingURL, s.cfg.ListingRetries)
	if err != nil {
		if fetched == nil {
			return nil, err
		}
		return nil, &ListingFetchError{Page: page, URL: listingURL, StatusCode: fetched.StatusCode, Err: err}
	}

	doc, err := parser.Parse(fetched.Body)
	if err != nil {
		return nil, &ListingFetchError{Page: page, URL: listingURL, StatusCode: fetched.StatusCode, Err: err}
	}
	extracted, err := parser.ExtractReferences(doc, s.cfg.Origin(), page)
	if err != nil {
		return nil, &ListingFetchError{Page: page, URL: listingURL, StatusCode: fetched.StatusCode, Err: err}
	}

	if extracted.Containers == 0 {
		sess.warn(&ExtractionWarning{Stage: phaseListing, URL: listingURL, Detail: "no review items found"})
	}
	if extracted.Dropped > 0 {
		slog.Debug("dropped review items without product link",
			slog.Int("page", page),
			slog.Int("dropped", extracted.Dropped),
		)
	}

	s.Metrics.IncPages()
	s.Metrics.AddReferences(len(extracted.References))
	slog.Debug("listing page fetched",
		slog.Int("page", page),
		slog.Int("references", len(extracted.References)),
	)
	return extracted.References, nil
}

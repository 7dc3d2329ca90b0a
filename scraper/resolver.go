package scraper

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"strconv"
)

// ResolveMaxPages asks the storefront for a page far beyond the last one and reads
// the page number it redirects to.
func (s *Scraper) ResolveMaxPages(ctx context.Context, sess *Session, shopID string) (int, error) {
	probeURL := s.cfg.ListingURL(shopID, s.cfg.ProbePage)

	page, err := fetchWithRetry(ctx, sess, s.cfg, s.Metrics, phaseResolve, probeURL, s.cfg.ResolveRetries)
	if err != nil {
		status := 0
		if page != nil {
			status = page.StatusCode
		}
		return 0, &ResolutionError{ShopID: shopID, URL: probeURL, StatusCode: status, Err: err}
	}

	n, err := pageNumber(page.FinalURL)
	if err != nil {
		return 0, &ResolutionError{ShopID: shopID, URL: page.FinalURL, StatusCode: page.StatusCode, Err: err}
	}
	if n == s.cfg.ProbePage {
		slog.Warn("page count probe was not redirected",
			slog.String("shop", shopID),
			slog.String("url", page.FinalURL),
		)
	}

	slog.Info("resolved page count",
		slog.String("shop", shopID),
		slog.Int("max_pages", n),
	)
	return n, nil
}

func pageNumber(rawURL string) (int, error) {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return 0, fmt.Errorf("parse final url: %w", err)
	}
	value := parsed.Query().Get("page")
	if value == "" {
		return 0, fmt.Errorf("final url %s has no page parameter", rawURL)
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		return 0, fmt.Errorf("final url page %q: %w", value, err)
	}
	if n < 1 {
		return 0, fmt.Errorf("final url page %d is not positive", n)
	}
	return n, nil
}

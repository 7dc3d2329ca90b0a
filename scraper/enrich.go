package scraper

import (
	"context"
	"log/slog"
	"sync"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"golang.org/x/sync/errgroup"

	"github.com/aluiziolira/go-shop-reviews/models"
	"github.com/aluiziolira/go-shop-reviews/parser"
)

// EnrichStats summarises one EnrichAll call.
type EnrichStats struct {
	Enriched       int
	Failed         int
	Skipped        int
	CacheHits      int
	FailedProducts []string
}

// Enricher fetches product detail pages. Failures stay with their record.
type Enricher struct {
	sess    *Session
	cache   *expirable.LRU[string, models.Enrichment]
	metrics *Metrics
	workers int

	mu        sync.Mutex
	cacheHits int
}

// NewEnricher builds an enricher over sess. cache may be nil.
func NewEnricher(sess *Session, cache *expirable.LRU[string, models.Enrichment], metrics *Metrics, workers int) *Enricher {
	if workers <= 0 {
		workers = 1
	}
	return &Enricher{
		sess:    sess,
		cache:   cache,
		metrics: metrics,
		workers: workers,
	}
}

// Enrich fetches and parses one product page. Every failure, including a ctx that
// ended before the request went out, is reported as a *DetailFetchError or
// *DetailParseError in the result.
func (e *Enricher) Enrich(ctx context.Context, productURL string) models.Enrichment {
	result, issued := e.enrich(ctx, productURL)
	if !issued {
		result.Err = &DetailFetchError{URL: productURL, Err: result.Err}
	}
	return result
}

// enrich reports false when ctx was done before a request could be issued.
func (e *Enricher) enrich(ctx context.Context, productURL string) (models.Enrichment, bool) {
	if e.cache != nil {
		if cached, ok := e.cache.Get(productURL); ok {
			e.mu.Lock()
			e.cacheHits++
			e.mu.Unlock()
			e.metrics.IncCacheHit()
			return cached, true
		}
	}

	page, err := e.sess.Get(ctx, phaseDetail, productURL)
	if page == nil {
		return models.Enrichment{ProductURL: productURL, Err: err}, false
	}
	if err != nil {
		return models.Enrichment{
			ProductURL: productURL,
			Err:        &DetailFetchError{URL: productURL, StatusCode: page.StatusCode, Err: err},
		}, true
	}

	doc, err := parser.Parse(page.Body)
	if err != nil {
		return models.Enrichment{
			ProductURL: productURL,
			Err:        &DetailParseError{URL: productURL, Err: err},
		}, true
	}

	data := parser.ExtractDetail(doc, page.FinalURL)
	if data.Empty() {
		e.sess.warn(&ExtractionWarning{Stage: phaseDetail, URL: productURL, Detail: "neither price nor image found"})
	} else if data.PriceText != "" && data.Currency == nil {
		slog.Debug("price text did not match pattern",
			slog.String("url", productURL),
			slog.String("text", data.PriceText),
		)
	}

	result := models.Enrichment{
		ProductURL:  productURL,
		Currency:    data.Currency,
		PriceAmount: data.PriceAmount,
		ImageURL:    data.ImageURL,
	}
	if e.cache != nil {
		e.cache.Add(productURL, result)
	}
	return result, true
}

// EnrichAll enriches every record through a bounded worker pool and returns new
// records in the same order. A failure never cancels sibling work; records whose
// request was never issued because ctx ended are marked skipped.
func (e *Enricher) EnrichAll(ctx context.Context, records []models.ShopReviewRecord) ([]models.ShopReviewRecord, EnrichStats) {
	out := make([]models.ShopReviewRecord, len(records))
	copy(out, records)
	issued := make([]bool, len(records))

	var g errgroup.Group
	g.SetLimit(e.workers)
	for i := range out {
		i := i
		if ctx.Err() != nil {
			break
		}
		g.Go(func() error {
			if ctx.Err() != nil {
				return nil
			}
			result, ok := e.enrich(ctx, out[i].ProductURL)
			if !ok {
				return nil
			}
			issued[i] = true
			out[i] = result.Apply(out[i])
			if result.Failed() {
				slog.Warn("product enrichment failed",
					slog.String("url", out[i].ProductURL),
					slog.Any("error", result.Err),
				)
			}
			return nil
		})
	}
	_ = g.Wait()

	var stats EnrichStats
	for i := range out {
		switch {
		case !issued[i]:
			out[i].Status = models.StatusSkipped
			stats.Skipped++
		case out[i].Status == models.StatusFailed:
			stats.Failed++
			stats.FailedProducts = append(stats.FailedProducts, out[i].ProductURL)
		default:
			stats.Enriched++
		}
		e.metrics.IncEnrichment(string(out[i].Status))
	}

	e.mu.Lock()
	stats.CacheHits = e.cacheHits
	e.mu.Unlock()

	slog.Info("enrichment complete",
		slog.Int("records", len(out)),
		slog.Int("enriched", stats.Enriched),
		slog.Int("failed", stats.Failed),
		slog.Int("skipped", stats.Skipped),
		slog.Int("cache_hits", stats.CacheHits),
	)
	return out, stats
}

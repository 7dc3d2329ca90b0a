package scraper

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"slices"
	"sync"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"golang.org/x/sync/errgroup"

	"github.com/aluiziolira/go-shop-reviews/config"
	"github.com/aluiziolira/go-shop-reviews/models"
	"github.com/aluiziolira/go-shop-reviews/pipeline"
)

// Scraper crawls a shop's review listing and enriches the referenced products.
type Scraper struct {
	cfg       *config.Config
	transport http.RoundTripper
	cache     *expirable.LRU[string, models.Enrichment]
	Metrics   *Metrics
}

// NewScraper builds a scraper instance configured from cfg.
func NewScraper(cfg *config.Config) (*Scraper, error) {
	parsed, err := url.Parse(cfg.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse base url: %w", err)
	}
	if parsed.Host == "" {
		return nil, fmt.Errorf("base url must include a host")
	}

	s := &Scraper{
		cfg: cfg,
		transport: &http.Transport{
			Proxy: http.ProxyFromEnvironment,
			DialContext: (&net.Dialer{
				Timeout:   cfg.Timeout,
				KeepAlive: 30 * time.Second,
			}).DialContext,
			MaxIdleConns:        100,
			IdleConnTimeout:     90 * time.Second,
			TLSHandshakeTimeout: 10 * time.Second,
		},
		Metrics: NewMetrics(),
	}
	if cfg.DetailCacheSize > 0 {
		s.cache = expirable.NewLRU[string, models.Enrichment](cfg.DetailCacheSize, nil, cfg.DetailCacheTTL)
	}
	return s, nil
}

// NewSession opens a fresh HTTP session with its own cookie jar.
func (s *Scraper) NewSession() (*Session, error) {
	return newSession(s.cfg, s.transport, s.Metrics)
}

// Crawl resolves the page count of a shop and runs the pipeline over the requested
// pages. pages == 0 selects every page. The returned records are ranked.
func (s *Scraper) Crawl(ctx context.Context, shopID string, pages int) (*models.RunResult, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	if pages < 0 {
		return nil, fmt.Errorf("pages must not be negative, got %d", pages)
	}

	sess, err := s.NewSession()
	if err != nil {
		return nil, err
	}

	maxPages, err := s.ResolveMaxPages(ctx, sess, shopID)
	if err != nil {
		return nil, err
	}
	if pages == 0 {
		pages = maxPages
	}
	if pages > maxPages {
		return nil, fmt.Errorf("requested %d pages but shop %s has %d", pages, shopID, maxPages)
	}

	result, err := s.run(ctx, sess, shopID, pages)
	if err != nil {
		return nil, err
	}
	result.MaxPages = maxPages
	result.Records = pipeline.Rank(result.Records)
	return result, nil
}

// Run fetches listing pages 1..pages, aggregates them in page order and enriches
// every unique product. Records are returned in first-seen order.
//
// Cancelling ctx is not an error: the result covers the completed pages, records
// that were never requested are marked skipped, and Incomplete is set when some
// page or product was left undone.
func (s *Scraper) Run(ctx context.Context, shopID string, pages int) (*models.RunResult, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	sess, err := s.NewSession()
	if err != nil {
		return nil, err
	}
	return s.run(ctx, sess, shopID, pages)
}

func (s *Scraper) run(ctx context.Context, sess *Session, shopID string, pages int) (*models.RunResult, error) {
	if pages < 1 {
		return nil, fmt.Errorf("pages must be at least 1, got %d", pages)
	}

	result := &models.RunResult{
		ShopID:         shopID,
		PagesRequested: pages,
		StartTime:      time.Now(),
	}

	perPage, failed, err := s.fetchListingPages(ctx, sess, shopID, pages)
	if err != nil {
		return nil, err
	}

	agg := pipeline.NewAggregator()
	for _, refs := range perPage {
		if refs == nil {
			continue
		}
		result.PagesFetched++
		agg.AddAll(refs)
	}
	result.References = agg.Total()
	result.FailedPages = failed
	result.LowerBound = len(failed) > 0

	slog.Info("listing stage complete",
		slog.String("shop", shopID),
		slog.Int("pages_fetched", result.PagesFetched),
		slog.Int("references", result.References),
		slog.Int("products", agg.Len()),
	)

	enricher := NewEnricher(sess, s.cache, s.Metrics, s.cfg.DetailWorkers)
	records, stats := enricher.EnrichAll(ctx, agg.Records())

	result.Records = records
	result.EnrichFailed = stats.Failed
	result.EnrichSkipped = stats.Skipped
	result.FailedProducts = stats.FailedProducts
	result.Incomplete = result.EnrichSkipped > 0 || result.PagesFetched+len(failed) < pages
	result.Warnings = sess.Warnings()
	result.ErrorsByType = sess.ErrorsByType()
	result.RequestCount = sess.RequestCount()
	result.EndTime = time.Now()

	if result.Incomplete {
		slog.Warn("run cancelled, result is partial",
			slog.String("shop", shopID),
			slog.Int("pages_fetched", result.PagesFetched),
			slog.Int("skipped", result.EnrichSkipped),
		)
	}
	return result, nil
}

// fetchListingPages returns the references of each page indexed by page-1; a nil
// entry is a page that was not fetched. The first fatal failure cancels the rest.
func (s *Scraper) fetchListingPages(ctx context.Context, sess *Session, shopID string, pages int) ([][]models.ProductReference, []int, error) {
	perPage := make([][]models.ProductReference, pages)

	var (
		mu     sync.Mutex
		failed []int
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.cfg.ListingWorkers)
	for page := 1; page <= pages; page++ {
		page := page
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			if gctx.Err() != nil {
				return nil
			}
			refs, err := s.FetchListingPage(gctx, sess, shopID, page)
			if err == nil {
				if refs == nil {
					refs = []models.ProductReference{}
				}
				perPage[page-1] = refs
				return nil
			}

			var listingErr *ListingFetchError
			if !errors.As(err, &listingErr) || (gctx.Err() != nil && !s.cfg.SkipFailedPages) {
				// Not issued, or a sibling already failed the run.
				return nil
			}
			if s.cfg.SkipFailedPages {
				slog.Warn("skipping failed listing page",
					slog.Int("page", page),
					slog.Any("error", err),
				)
				mu.Lock()
				failed = append(failed, page)
				mu.Unlock()
				return nil
			}
			return fmt.Errorf("fetch listing pages for shop %s: %w", shopID, err)
		})
	}
	if err := g.Wait(); err != nil {
		return nil, nil, err
	}

	slices.Sort(failed)
	return perPage, failed, nil
}

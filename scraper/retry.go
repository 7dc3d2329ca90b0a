package scraper

import (
	"context"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/aluiziolira/go-shop-reviews/config"
)

// fetchWithRetry fetches url, retrying transient failures up to retries times with
// exponential backoff. With retries == 0 it is a single attempt.
func fetchWithRetry(ctx context.Context, sess *Session, cfg *config.Config, metrics *Metrics, phase, url string, retries int) (*Page, error) {
	if retries <= 0 {
		return sess.Get(ctx, phase, url)
	}

	var last *Page
	op := func() (*Page, error) {
		page, err := sess.Get(ctx, phase, url)
		if page != nil {
			last = page
		}
		if err == nil {
			return page, nil
		}
		if page == nil || !retryable(err) {
			return page, backoff.Permanent(err)
		}
		return page, err
	}
	notify := func(err error, wait time.Duration) {
		metrics.IncRetries()
		slog.Debug("retrying request",
			slog.String("phase", phase),
			slog.String("url", url),
			slog.Duration("wait", wait),
			slog.Any("error", err),
		)
	}

	page, err := backoff.RetryNotifyWithData[*Page](op, newBackOff(ctx, cfg, retries), notify)
	if page == nil {
		page = last
	}
	return page, err
}

func newBackOff(ctx context.Context, cfg *config.Config, retries int) backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	if cfg.RetryBackoff > 0 {
		b.InitialInterval = cfg.RetryBackoff
	}
	if cfg.RetryBackoffMax > 0 {
		b.MaxInterval = cfg.RetryBackoffMax
	}
	b.MaxElapsedTime = 0
	return backoff.WithContext(backoff.WithMaxRetries(b, uint64(retries)), ctx)
}

package scraper

import (
	"bufio"
	"compress/flate"
	"compress/gzip"
	"compress/zlib"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/cookiejar"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/andybalholm/brotli"
	"github.com/gocolly/colly/v2"
	"golang.org/x/net/publicsuffix"

	"github.com/aluiziolira/go-shop-reviews/config"
)

const (
	phaseResolve = "resolve"
	phaseListing = "listing"
	phaseDetail  = "detail"

	acceptHeader   = "text/html,application/xhtml+xml,application/xml;q=0.9,image/webp,*/*;q=0.8"
	acceptEncoding = "gzip, deflate, br"
	maxBodySize    = 32 << 20

	ctxPhase    = "phase"
	ctxStart    = "start"
	ctxBody     = "body"
	ctxStatus   = "status"
	ctxFinalURL = "final_url"
)

// Page is a fetched document.
type Page struct {
	URL        string
	FinalURL   string
	StatusCode int
	Body       []byte
}

// Session is the HTTP session of one run: a synchronous colly collector with its
// own cookie jar, browser-like headers and transparent body decoding.
type Session struct {
	cfg       *config.Config
	collector *colly.Collector
	metrics   *Metrics

	requestCount int64
	warningCount int64

	mu           sync.Mutex
	errorsByType map[string]int
}

func newSession(cfg *config.Config, base http.RoundTripper, metrics *Metrics) (*Session, error) {
	jar, err := cookiejar.New(&cookiejar.Options{PublicSuffixList: publicsuffix.List})
	if err != nil {
		return nil, fmt.Errorf("create cookie jar: %w", err)
	}

	collector := colly.NewCollector(
		colly.UserAgent(cfg.UserAgent),
		colly.AllowURLRevisit(),
		colly.MaxBodySize(maxBodySize),
	)
	collector.IgnoreRobotsTxt = !cfg.RespectRobotsTxt
	// Status handling happens in Get; colly would reject every 2xx above 202.
	collector.ParseHTTPErrorResponse = true
	collector.SetRequestTimeout(cfg.Timeout)
	collector.SetCookieJar(jar)
	collector.WithTransport(&decodingTransport{base: base})

	if err := collector.Limit(&colly.LimitRule{
		DomainGlob:  "*",
		Parallelism: max(cfg.ListingWorkers, cfg.DetailWorkers),
		Delay:       cfg.Delay,
		RandomDelay: cfg.RandomDelay,
	}); err != nil {
		return nil, fmt.Errorf("configure rate limits: %w", err)
	}

	s := &Session{
		cfg:          cfg,
		collector:    collector,
		metrics:      metrics,
		errorsByType: make(map[string]int),
	}
	s.configureHandlers()
	return s, nil
}

func (s *Session) configureHandlers() {
	s.collector.OnRequest(func(r *colly.Request) {
		r.Ctx.Put(ctxStart, time.Now())
		atomic.AddInt64(&s.requestCount, 1)
		s.metrics.IncRequest(r.Ctx.Get(ctxPhase))
	})

	s.collector.OnResponse(func(r *colly.Response) {
		r.Ctx.Put(ctxBody, r.Body)
		r.Ctx.Put(ctxStatus, r.StatusCode)
		r.Ctx.Put(ctxFinalURL, r.Request.URL.String())
		s.observe(r.Ctx)
	})

	s.collector.OnError(func(r *colly.Response, err error) {
		if r == nil || r.Ctx == nil {
			return
		}
		r.Ctx.Put(ctxStatus, r.StatusCode)
		if r.Request != nil && r.Request.URL != nil {
			r.Ctx.Put(ctxFinalURL, r.Request.URL.String())
		}
		s.observe(r.Ctx)
	})
}

func (s *Session) observe(cctx *colly.Context) {
	if start, ok := cctx.GetAny(ctxStart).(time.Time); ok {
		s.metrics.ObserveDuration(cctx.Get(ctxPhase), time.Since(start))
	}
}

// Get issues a GET request. A nil page means no request was issued because ctx
// was already done; otherwise the page carries the status and final URL even on error.
func (s *Session) Get(ctx context.Context, phase, rawURL string) (*Page, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	cctx := colly.NewContext()
	cctx.Put(ctxPhase, phase)
	err := s.collector.Request(http.MethodGet, rawURL, nil, cctx, s.headers())

	page := &Page{URL: rawURL, FinalURL: rawURL}
	if finalURL, ok := cctx.GetAny(ctxFinalURL).(string); ok && finalURL != "" {
		page.FinalURL = finalURL
	}
	if status, ok := cctx.GetAny(ctxStatus).(int); ok {
		page.StatusCode = status
	}
	if body, ok := cctx.GetAny(ctxBody).([]byte); ok {
		page.Body = body
	}

	if err == nil && !successStatus(page.StatusCode) {
		err = fmt.Errorf("%s", http.StatusText(page.StatusCode))
	}
	if err != nil {
		classified := classifyError(err, page.StatusCode)
		s.recordError(phase, rawURL, page.StatusCode, classified)
		return page, classified
	}
	return page, nil
}

func successStatus(code int) bool {
	return code >= http.StatusOK && code < http.StatusMultipleChoices
}

func (s *Session) headers() http.Header {
	h := http.Header{}
	h.Set("User-Agent", s.cfg.UserAgent)
	h.Set("Accept", acceptHeader)
	if s.cfg.AcceptLanguage != "" {
		h.Set("Accept-Language", s.cfg.AcceptLanguage)
	}
	h.Set("Accept-Encoding", acceptEncoding)
	return h
}

func (s *Session) recordError(phase, url string, status int, err error) {
	category := errorTypeLabel(err)

	s.mu.Lock()
	s.errorsByType[category]++
	s.mu.Unlock()

	s.metrics.IncError(category)
	slog.Warn("request error",
		slog.String("phase", phase),
		slog.String("url", url),
		slog.Int("status", status),
		slog.String("category", category),
		slog.Any("error", err),
	)
}

// warn logs and counts a non-fatal extraction problem.
func (s *Session) warn(w *ExtractionWarning) {
	atomic.AddInt64(&s.warningCount, 1)
	slog.Info("extraction warning",
		slog.String("stage", w.Stage),
		slog.String("url", w.URL),
		slog.String("detail", w.Detail),
	)
}

// RequestCount is the number of requests issued so far.
func (s *Session) RequestCount() int {
	return int(atomic.LoadInt64(&s.requestCount))
}

// Warnings is the number of extraction warnings recorded so far.
func (s *Session) Warnings() int {
	return int(atomic.LoadInt64(&s.warningCount))
}

// ErrorsByType returns a snapshot of request errors by category.
func (s *Session) ErrorsByType() map[string]int {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]int, len(s.errorsByType))
	for k, v := range s.errorsByType {
		out[k] = v
	}
	return out
}

// decodingTransport decompresses gzip, deflate and brotli bodies.
type decodingTransport struct {
	base http.RoundTripper
}

func (t *decodingTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	res, err := t.base.RoundTrip(req)
	if err != nil {
		return nil, err
	}
	if res.Request == nil {
		res.Request = req
	}

	encoding := strings.ToLower(strings.TrimSpace(res.Header.Get("Content-Encoding")))
	var decoded io.Reader
	switch encoding {
	case "gzip", "x-gzip":
		gz, err := gzip.NewReader(res.Body)
		if err != nil {
			res.Body.Close()
			return nil, fmt.Errorf("decode gzip body: %w", err)
		}
		decoded = gz
	case "deflate":
		decoded, err = newDeflateReader(res.Body)
		if err != nil {
			res.Body.Close()
			return nil, fmt.Errorf("decode deflate body: %w", err)
		}
	case "br":
		decoded = brotli.NewReader(res.Body)
	default:
		return res, nil
	}

	res.Body = &decodedBody{Reader: decoded, raw: res.Body}
	res.Header.Del("Content-Encoding")
	res.Header.Del("Content-Length")
	res.ContentLength = -1
	res.Uncompressed = true
	return res, nil
}

// newDeflateReader accepts both zlib-wrapped and raw deflate streams.
func newDeflateReader(r io.Reader) (io.Reader, error) {
	br := bufio.NewReader(r)
	header, err := br.Peek(2)
	if err == nil && header[0]&0x0f == 8 && (uint16(header[0])<<8|uint16(header[1]))%31 == 0 {
		return zlib.NewReader(br)
	}
	return flate.NewReader(br), nil
}

type decodedBody struct {
	io.Reader
	raw io.Closer
}

func (b *decodedBody) Close() error {
	if c, ok := b.Reader.(io.Closer); ok {
		c.Close()
	}
	return b.raw.Close()
}

package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sort"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/aluiziolira/go-shop-reviews/config"
	"github.com/aluiziolira/go-shop-reviews/models"
	"github.com/aluiziolira/go-shop-reviews/parser"
	"github.com/aluiziolira/go-shop-reviews/pipeline"
	"github.com/aluiziolira/go-shop-reviews/scraper"
)

const (
	topN         = 10
	nameColWidth = 48
)

type cliFlags struct {
	configPath     string
	pages          int
	listingWorkers int
	detailWorkers  int
	delay          time.Duration
	randomDelay    time.Duration
	timeout        time.Duration
	resolveRetries int
	listingRetries int
	skipFailed     bool
	output         string
	format         string
	verbose        bool
	baseURL        string
	locale         string
	metricsAddr    string
	respectRobots  bool
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var f cliFlags

	cmd := &cobra.Command{
		Use:   "shopreviews [shop-url...]",
		Short: "Rank a shop's products by how often they appear in its reviews",
		Long: `shopreviews walks every review page of a shop, counts how many reviews
reference each product, fetches price and image from each product page and
writes the ranked list to CSV, a JSON array, or both.`,
		Args:          cobra.MinimumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(f.configPath)
			if err != nil {
				fmt.Fprintf(os.Stderr, "load config: %v\n", err)
				return err
			}
			applyFlags(cmd, &f, cfg)

			logger, level := newLogger(cfg.Verbose)
			slog.SetDefault(logger)
			slog.SetLogLoggerLevel(level.Level())

			if err := cfg.Validate(); err != nil {
				slog.Error("invalid configuration", slog.Any("error", err))
				return err
			}
			if f.pages < 0 {
				err := fmt.Errorf("pages must not be negative, got %d", f.pages)
				slog.Error("invalid configuration", slog.Any("error", err))
				return err
			}

			if err := run(cmd.Context(), cfg, args, f.pages); err != nil {
				slog.Error("crawl failed", slog.Any("error", err))
				return err
			}
			return nil
		},
	}

	fl := cmd.Flags()
	fl.StringVar(&f.configPath, "config", "", "Path to a YAML config file (default ./shopreviews.yaml if present)")
	fl.IntVar(&f.pages, "pages", 0, "Number of review pages to crawl (0 = all)")
	fl.IntVar(&f.listingWorkers, "listing-workers", 0, "Concurrent review page fetches")
	fl.IntVar(&f.detailWorkers, "detail-workers", 0, "Concurrent product page fetches")
	fl.DurationVar(&f.delay, "delay", 0, "Delay between requests")
	fl.DurationVar(&f.randomDelay, "random-delay", 0, "Random jitter added to delay")
	fl.DurationVar(&f.timeout, "timeout", 0, "Per-request timeout")
	fl.IntVar(&f.resolveRetries, "resolve-retries", 0, "Retries for the page count probe")
	fl.IntVar(&f.listingRetries, "listing-retries", 0, "Retries per review page")
	fl.BoolVar(&f.skipFailed, "skip-failed-pages", false, "Skip review pages that fail instead of aborting")
	fl.StringVarP(&f.output, "output", "o", "", "Output file path")
	fl.StringVar(&f.format, "format", "", "Output format: csv, json, or dual")
	fl.BoolVarP(&f.verbose, "verbose", "v", false, "Enable verbose logging")
	fl.StringVar(&f.baseURL, "base-url", "", "Storefront base URL")
	fl.StringVar(&f.locale, "locale", "", "Locale path segment, empty for none")
	fl.StringVar(&f.metricsAddr, "metrics-addr", "", "Prometheus metrics listen address (e.g. :9090)")
	fl.BoolVar(&f.respectRobots, "respect-robots", false, "Respect robots.txt directives")

	return cmd
}

// applyFlags overrides cfg with the flags set on the command line.
func applyFlags(cmd *cobra.Command, f *cliFlags, cfg *config.Config) {
	changed := cmd.Flags().Changed
	if changed("listing-workers") {
		cfg.ListingWorkers = f.listingWorkers
	}
	if changed("detail-workers") {
		cfg.DetailWorkers = f.detailWorkers
	}
	if changed("delay") {
		cfg.Delay = f.delay
	}
	if changed("random-delay") {
		cfg.RandomDelay = f.randomDelay
	}
	if changed("timeout") {
		cfg.Timeout = f.timeout
	}
	if changed("resolve-retries") {
		cfg.ResolveRetries = f.resolveRetries
	}
	if changed("listing-retries") {
		cfg.ListingRetries = f.listingRetries
	}
	if changed("skip-failed-pages") {
		cfg.SkipFailedPages = f.skipFailed
	}
	if changed("output") {
		cfg.OutputFile = f.output
	}
	if changed("format") {
		cfg.OutputFormat = strings.ToLower(f.format)
	}
	if changed("verbose") {
		cfg.Verbose = f.verbose
	}
	if changed("base-url") {
		cfg.BaseURL = f.baseURL
	}
	if changed("locale") {
		cfg.Locale = f.locale
	}
	if changed("metrics-addr") {
		cfg.MetricsAddr = f.metricsAddr
	}
	if changed("respect-robots") {
		cfg.RespectRobotsTxt = f.respectRobots
	}
}

func run(parent context.Context, cfg *config.Config, shopURLs []string, pages int) error {
	if parent == nil {
		parent = context.Background()
	}

	shopIDs := make([]string, 0, len(shopURLs))
	for _, raw := range shopURLs {
		id, err := parser.ShopIDFromURL(raw)
		if err != nil {
			return err
		}
		shopIDs = append(shopIDs, id)
	}

	s, err := scraper.NewScraper(cfg)
	if err != nil {
		return fmt.Errorf("initialise scraper: %w", err)
	}

	writer, err := createWriter(cfg.OutputFormat, cfg.OutputFile)
	if err != nil {
		return fmt.Errorf("create writer: %w", err)
	}
	defer func() {
		if err := writer.Close(); err != nil {
			slog.Error("close writer", slog.Any("error", err))
		}
	}()

	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()
	go func() {
		<-ctx.Done()
		slog.Info("shutdown signal received, finishing in-flight requests")
	}()

	var metricsServer *http.Server
	if cfg.MetricsAddr != "" && s.Metrics != nil {
		metricsServer = &http.Server{
			Addr:    cfg.MetricsAddr,
			Handler: promhttp.HandlerFor(s.Metrics.Registry, promhttp.HandlerOpts{}),
		}
		go func() {
			if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				slog.Error("metrics server failed", slog.Any("error", err))
			}
		}()
		slog.Info("metrics server enabled", slog.String("addr", cfg.MetricsAddr))
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := metricsServer.Shutdown(shutdownCtx); err != nil {
				slog.Error("metrics server shutdown failed", slog.Any("error", err))
			}
		}()
	}

	// The output pipeline outlives ctx so a cancelled crawl still writes its partial result.
	p := pipeline.NewPipeline(context.Background(), writer, cfg)
	p.Start()
	if cfg.Verbose {
		p.StartMetricsReporting(10 * time.Second)
	}

	startTime := time.Now()
	var results []*models.RunResult
	var crawlErr error
	for _, shopID := range shopIDs {
		if ctx.Err() != nil {
			break
		}
		slog.Info("starting crawl",
			slog.String("shop", shopID),
			slog.Int("pages", pages),
			slog.Int("listing_workers", cfg.ListingWorkers),
			slog.Int("detail_workers", cfg.DetailWorkers),
		)
		result, err := s.Crawl(ctx, shopID, pages)
		if err != nil {
			crawlErr = fmt.Errorf("shop %s: %w", shopID, err)
			break
		}
		if err := p.Process(result.Records...); err != nil {
			crawlErr = fmt.Errorf("write shop %s: %w", shopID, err)
			break
		}
		results = append(results, result)
	}

	if err := p.Close(); err != nil {
		return fmt.Errorf("pipeline shutdown: %w", err)
	}
	if crawlErr != nil {
		return crawlErr
	}
	if err := writer.Validate(); err != nil {
		return fmt.Errorf("output validation: %w", err)
	}

	metrics := p.GetMetrics()
	duration := time.Since(startTime)
	for _, result := range results {
		printSummary(result, cfg.OutputFile, metrics, duration)
		printTop(result.Records, topN)
	}
	return nil
}

func createWriter(format, filename string) (pipeline.OutputWriter, error) {
	switch format {
	case "json":
		return pipeline.NewJSONWriter(filename)
	case "csv":
		return pipeline.NewCSVWriter(filename)
	case "dual":
		return pipeline.NewDualWriter(filename)
	default:
		return nil, fmt.Errorf("unsupported format: %s", format)
	}
}

func printSummary(result *models.RunResult, outputFile string, metrics map[string]interface{}, duration time.Duration) {
	separator := "--------------------------------------------------"
	fmt.Println("\n" + separator)
	switch {
	case result.Incomplete:
		fmt.Printf("Crawl of %s interrupted, results are partial\n", result.ShopID)
	case result.LowerBound:
		fmt.Printf("Crawl of %s complete, counts are lower bounds\n", result.ShopID)
	default:
		fmt.Printf("Crawl of %s complete\n", result.ShopID)
	}

	fmt.Printf("  Pages:         %d/%d fetched (shop has %d)\n", result.PagesFetched, result.PagesRequested, result.MaxPages)
	if len(result.FailedPages) > 0 {
		fmt.Printf("  Failed pages:  %v\n", result.FailedPages)
	}
	fmt.Printf("  References:    %d\n", result.References)
	fmt.Printf("  Products:      %d\n", len(result.Records))
	fmt.Printf("  Enrich failed: %d\n", result.EnrichFailed)
	fmt.Printf("  Skipped:       %d\n", result.EnrichSkipped)
	fmt.Printf("  Warnings:      %d\n", result.Warnings)
	fmt.Printf("  Requests:      %d\n", result.RequestCount)
	if len(result.ErrorsByType) > 0 {
		fmt.Printf("  Error types:   %s\n", formatCounts(result.ErrorsByType))
	}
	if processed, ok := metrics["processed_records"].(int64); ok {
		fmt.Printf("  Written:       %d\n", processed)
	}
	if valErrors, ok := metrics["validation_errors"].(map[string]int); ok && len(valErrors) > 0 {
		fmt.Printf("  Validation:    %s\n", formatCounts(valErrors))
	}
	fmt.Printf("  Crawl time:    %v\n", result.EndTime.Sub(result.StartTime).Round(time.Millisecond))
	fmt.Printf("  Total time:    %v\n", duration.Round(time.Millisecond))
	fmt.Printf("  Output file:   %s\n", outputFile)
	fmt.Println(separator)
}

// printTop renders the most referenced products as a text table.
func printTop(records []models.ShopReviewRecord, n int) {
	top := pipeline.Top(records, n)
	if len(top) == 0 {
		return
	}
	fmt.Printf("%-4s %-*s %6s %12s\n", "#", nameColWidth, "Product", "Sales", "Price")
	for i, r := range top {
		price := "-"
		if r.Currency != nil && r.PriceAmount != nil {
			price = *r.Currency + " " + *r.PriceAmount
		}
		fmt.Printf("%-4d %-*s %6d %12s\n", i+1, nameColWidth, parser.TruncateName(r.ProductName, nameColWidth), r.OccurrenceCount, price)
	}
}

func formatCounts(counts map[string]int) string {
	keys := make([]string, 0, len(counts))
	for k := range counts {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s=%d", k, counts[k]))
	}
	return strings.Join(parts, " ")
}

func newLogger(verbose bool) (*slog.Logger, *slog.LevelVar) {
	level := &slog.LevelVar{}
	if verbose {
		level.Set(slog.LevelDebug)
	} else {
		level.Set(slog.LevelInfo)
	}

	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	if isTerminal(os.Stderr) {
		handler = slog.NewTextHandler(os.Stderr, opts)
	} else {
		handler = slog.NewJSONHandler(os.Stderr, opts)
	}

	return slog.New(handler), level
}

func isTerminal(f *os.File) bool {
	info, err := f.Stat()
	if err != nil {
		return false
	}
	return (info.Mode() & os.ModeCharDevice) != 0
}

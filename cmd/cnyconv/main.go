package main

import (
	"bytes"
	"context"
	"flag"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/go-shiori/go-readability"
	"github.com/japaniel/cnyconv/pkg/annotate"
	"github.com/japaniel/cnyconv/pkg/cnyconv"
	"github.com/japaniel/cnyconv/pkg/config"
	"github.com/japaniel/cnyconv/pkg/db"
	"github.com/japaniel/cnyconv/pkg/logger"
	"github.com/japaniel/cnyconv/pkg/page"
	"github.com/japaniel/cnyconv/pkg/prefs"
	"github.com/japaniel/cnyconv/pkg/rates"
)

// Read content with size limit to prevent OOM from untrusted URLs
const maxBodySize = 10 * 1024 * 1024 // 10 MB limit for HTML content

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Invalid configuration: %v\n", err)
		os.Exit(1)
	}

	urlFlag := flag.String("url", "", "URL of the page to annotate")
	fileFlag := flag.String("file", "", "Path of a local HTML file to annotate")
	outFlag := flag.String("out", "", "Write the annotated HTML here instead of stdout")
	dbFlag := flag.String("db", cfg.DBPath, "Path to SQLite database")
	currencyFlag := flag.String("currency", "", "Target currency for this run only (not saved)")
	setCurrencyFlag := flag.String("set-currency", "", "Save the target currency and exit")
	flag.Parse()

	log := logger.New(logger.Config{Level: cfg.LogLevel, Pretty: cfg.LogPretty})
	logger.SetGlobalLogger(log)

	// Setup context for graceful shutdown
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	conn, err := db.Open(*dbFlag)
	if err != nil {
		log.Fatal().Err(err).Str("path", *dbFlag).Msg("Failed to open database")
	}
	defer conn.Close()

	if *setCurrencyFlag != "" {
		code := prefs.Normalize(*setCurrencyFlag)
		if !cfg.Supports(code) {
			log.Fatal().Str("currency", code).Strs("supported", cfg.Currencies).Msg("Unsupported currency")
		}
		if err := prefs.NewSQLStore(conn).Set(ctx, prefs.CurrencyKey, code); err != nil {
			log.Fatal().Err(err).Msg("Failed to save currency")
		}
		fmt.Fprintf(os.Stderr, "Target currency set to %s\n", code)
		return
	}

	var (
		body    []byte
		pageURL *url.URL
	)
	switch {
	case *urlFlag != "":
		fmt.Fprintf(os.Stderr, "Fetching %s...\n", *urlFlag)
		body, err = fetchPage(ctx, *urlFlag, cfg.HTTPTimeout)
		if err != nil {
			log.Fatal().Err(err).Str("url", *urlFlag).Msg("Failed to fetch page")
		}
		pageURL, _ = url.Parse(*urlFlag)
	case *fileFlag != "":
		body, err = os.ReadFile(*fileFlag)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to read file")
		}
		abs, _ := filepath.Abs(*fileFlag)
		pageURL = &url.URL{Scheme: "file", Path: filepath.ToSlash(abs)}
	default:
		log.Fatal().Msg("Please provide a -url or -file")
	}

	if article, err := readability.FromReader(bytes.NewReader(body), pageURL); err != nil {
		log.Debug().Err(err).Msg("No readable article found")
	} else {
		fmt.Fprintf(os.Stderr, "Title: %s\n", article.Title)
		if article.SiteName != "" {
			fmt.Fprintf(os.Stderr, "Site: %s\n", article.SiteName)
		}
	}

	doc, err := page.Parse(bytes.NewReader(body))
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to parse page")
	}

	opts := cnyconv.Options{
		Document:        doc,
		Fetcher:         rates.NewHTTPFetcher(cfg.RateAPIURL, cfg.HTTPTimeout, log),
		DB:              conn,
		DefaultCurrency: cfg.DefaultCurrency,
		Currencies:      cfg.Currencies,
		Locale:          cfg.Locale,
		Schedule:        cfg.RefreshSchedule,
		RateMaxAge:      cfg.RateMaxAge,
		DisableSchedule: true,
		Logger:          log,
	}
	if *currencyFlag != "" {
		opts.DefaultCurrency = prefs.Normalize(*currencyFlag)
		opts.Store = prefs.NewMemoryStore()
	}

	engine, err := cnyconv.New(opts)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create engine")
	}
	defer engine.Close()

	if err := engine.Start(ctx); err != nil {
		log.Fatal().Err(err).Msg("Failed to annotate page")
	}

	var count int
	if err := engine.Do(ctx, func(d *page.Document) {
		count = len(annotate.ConversionElements(d.Root()))
	}); err != nil {
		log.Fatal().Err(err).Msg("Failed to inspect page")
	}

	html, err := engine.Render(ctx)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to render page")
	}
	if err := writeOutput(*outFlag, html); err != nil {
		log.Fatal().Err(err).Msg("Failed to write output")
	}

	fmt.Fprintf(os.Stderr, "Annotated %d prices in %s.\n", count, engine.Currency())
}

func fetchPage(ctx context.Context, pageURL string, timeout time.Duration) ([]byte, error) {
	// Create a custom request with a User-Agent to avoid being blocked (e.g. 403 Forbidden or Cloudflare)
	req, err := http.NewRequestWithContext(ctx, "GET", pageURL, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("User-Agent", "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36")
	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,image/avif,image/webp,image/apng,*/*;q=0.8")
	req.Header.Set("Accept-Language", "zh-CN,zh;q=0.9,en;q=0.8")
	req.Header.Set("Sec-Fetch-Dest", "document")
	req.Header.Set("Sec-Fetch-Mode", "navigate")
	req.Header.Set("Upgrade-Insecure-Requests", "1")

	client := &http.Client{Timeout: timeout}
	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("got status code %d", resp.StatusCode)
	}
	if resp.ContentLength > int64(maxBodySize) {
		return nil, fmt.Errorf("content-length %d exceeds limit of %d bytes", resp.ContentLength, maxBodySize)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}
	// A full buffer is treated as truncated.
	if len(body) >= maxBodySize {
		return nil, fmt.Errorf("response body exceeded maximum size limit of %d bytes", maxBodySize)
	}
	return body, nil
}

func writeOutput(path, html string) error {
	if path == "" {
		_, err := io.WriteString(os.Stdout, html)
		return err
	}
	return os.WriteFile(path, []byte(html), 0644)
}

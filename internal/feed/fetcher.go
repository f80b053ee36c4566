// Package feed downloads a news source (RSS, Atom or JSON Feed) and turns
// its entries into plain-text items.
package feed

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/mmcdole/gofeed"
	"golang.org/x/time/rate"

	logx "newsbot/pkg/logx"
)

// httpPrefix is the scheme prefix used to decide whether a GUID is a link.
const httpPrefix = "http"

const (
	defaultTimeout   = 20 * time.Second
	defaultUserAgent = "newsbot/1.0 (+feed fetcher)"
	defaultMaxBody   = 8 << 20
	defaultMaxChars  = 6000
)

// Item is one normalized feed entry.
type Item struct {
	Title         string
	Content       string
	Source        string
	URL           string
	PublishedDate *time.Time
}

// Config tunes outbound feed requests.
type Config struct {
	Timeout         time.Duration
	UserAgent       string
	RatePerSec      float64 // 0 disables the limiter
	Burst           int
	MaxBodyBytes    int64
	MaxContentChars int
}

// Fetcher downloads and parses feeds.
type Fetcher struct {
	client   *http.Client
	limiter  *rate.Limiter
	ua       string
	maxBody  int64
	maxChars int
	log      logx.Logger
}

// New builds a Fetcher. A nil client gets one with cfg.Timeout.
func New(cfg Config, client *http.Client, log logx.Logger) *Fetcher {
	if log.IsZero() {
		log = logx.Nop()
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	if client == nil {
		client = &http.Client{Timeout: cfg.Timeout}
	}
	if strings.TrimSpace(cfg.UserAgent) == "" {
		cfg.UserAgent = defaultUserAgent
	}
	if cfg.MaxBodyBytes <= 0 {
		cfg.MaxBodyBytes = defaultMaxBody
	}
	if cfg.MaxContentChars <= 0 {
		cfg.MaxContentChars = defaultMaxChars
	}
	f := &Fetcher{
		client:   client,
		ua:       cfg.UserAgent,
		maxBody:  cfg.MaxBodyBytes,
		maxChars: cfg.MaxContentChars,
		log:      log,
	}
	if cfg.RatePerSec > 0 {
		burst := cfg.Burst
		if burst <= 0 {
			burst = 1
		}
		f.limiter = rate.NewLimiter(rate.Limit(cfg.RatePerSec), burst)
	}
	return f
}

// Fetch downloads feedURL and returns its entries in feed order. Entries
// without a usable link or title are skipped.
func (f *Fetcher) Fetch(ctx context.Context, feedURL string) ([]Item, error) {
	feedURL = strings.TrimSpace(feedURL)
	if feedURL == "" {
		return nil, errors.New("feed url is empty")
	}
	if f.limiter != nil {
		if err := f.limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("feed rate limit: %w", err)
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, feedURL, http.NoBody)
	if err != nil {
		return nil, fmt.Errorf("feed new request: %w", err)
	}
	req.Header.Set("User-Agent", f.ua)
	req.Header.Set("Accept", "application/rss+xml, application/atom+xml, application/feed+json, application/xml;q=0.9, */*;q=0.8")

	start := time.Now()
	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("feed request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("feed request: unexpected status %d", resp.StatusCode)
	}
	raw, err := io.ReadAll(io.LimitReader(resp.Body, f.maxBody))
	if err != nil {
		return nil, fmt.Errorf("feed read body: %w", err)
	}

	items, err := f.parse(ctx, string(raw), feedURL)
	if err != nil {
		return nil, err
	}
	f.log.Debug("feed fetched",
		logx.String("url", feedURL),
		logx.Int("items", len(items)),
		logx.Duration("took", time.Since(start)),
	)
	return items, nil
}

func (f *Fetcher) parse(ctx context.Context, body, feedURL string) ([]Item, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("parse feed: %w", err)
	}
	parsed, err := gofeed.NewParser().ParseString(body)
	if err != nil {
		return nil, fmt.Errorf("parse feed: %w", err)
	}

	source := strings.TrimSpace(parsed.Title)
	if source == "" {
		source = hostOf(feedURL)
	}

	items := make([]Item, 0, len(parsed.Items))
	for _, entry := range parsed.Items {
		link := extractLink(entry)
		title := strings.TrimSpace(entry.Title)
		if link == "" || title == "" {
			continue
		}
		body := entry.Content
		if strings.TrimSpace(body) == "" {
			body = entry.Description
		}
		items = append(items, Item{
			Title:         HTMLToText(title, 0),
			Content:       HTMLToText(body, f.maxChars),
			Source:        source,
			URL:           link,
			PublishedDate: publishedAt(entry),
		})
	}
	return items, nil
}

// extractLink prefers the explicit Link, falling back to the GUID when it
// looks like an HTTP URL.
func extractLink(entry *gofeed.Item) string {
	if entry.Link != "" {
		return entry.Link
	}
	if strings.HasPrefix(entry.GUID, httpPrefix) {
		return entry.GUID
	}
	return ""
}

func publishedAt(entry *gofeed.Item) *time.Time {
	if entry.PublishedParsed != nil {
		t := *entry.PublishedParsed
		return &t
	}
	if entry.UpdatedParsed != nil {
		t := *entry.UpdatedParsed
		return &t
	}
	return nil
}

func hostOf(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return raw
	}
	return strings.TrimPrefix(u.Host, "www.")
}

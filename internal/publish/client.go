// Package publish pushes an approved newsletter to the external newsletter
// platform (a Beehiiv-style REST API).
package publish

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"golang.org/x/time/rate"

	logx "newsbot/pkg/logx"
)

const (
	DefaultBaseURL = "https://api.beehiiv.com/v2"
	defaultTimeout = 30 * time.Second
	maxErrorBody   = 4 << 10
)

var (
	ErrNotConfigured = errors.New("publishing is not configured")
	ErrRejected      = errors.New("platform rejected the post")
)

// Config is the process-level client configuration. Credentials come from
// the settings row.
type Config struct {
	BaseURL    string
	Timeout    time.Duration
	RatePerSec float64
}

// Post is one publish request.
type Post struct {
	APIKey        string
	PublicationID string
	Title         string
	Subtitle      string
	Content       string // Markdown or HTML
	Draft         bool
}

// Published describes the platform-side record.
type Published struct {
	ExternalID string
	WebURL     string
	Status     string
}

type Client struct {
	baseURL string
	http    *http.Client
	limiter *rate.Limiter
	log     logx.Logger
}

func New(cfg Config, httpClient *http.Client, log logx.Logger) *Client {
	if log.IsZero() {
		log = logx.Nop()
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: cfg.Timeout}
	}
	base := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if base == "" {
		base = DefaultBaseURL
	}
	c := &Client{baseURL: base, http: httpClient, log: log}
	if cfg.RatePerSec > 0 {
		c.limiter = rate.NewLimiter(rate.Limit(cfg.RatePerSec), 1)
	}
	return c
}

type postPayload struct {
	Title       string `json:"title"`
	Subtitle    string `json:"subtitle,omitempty"`
	BodyContent string `json:"body_content"`
	Status      string `json:"status"`
}

type postResponse struct {
	Data struct {
		ID     string `json:"id"`
		WebURL string `json:"web_url"`
		Status string `json:"status"`
	} `json:"data"`
}

type errorResponse struct {
	Errors []struct {
		Message string `json:"message"`
	} `json:"errors"`
}

// Publish creates the post on the platform.
func (c *Client) Publish(ctx context.Context, p Post) (Published, error) {
	if strings.TrimSpace(p.APIKey) == "" || strings.TrimSpace(p.PublicationID) == "" {
		return Published{}, ErrNotConfigured
	}
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return Published{}, fmt.Errorf("publish rate limit: %w", err)
		}
	}

	status := "confirmed"
	if p.Draft {
		status = "draft"
	}
	payload, err := json.Marshal(postPayload{
		Title:       p.Title,
		Subtitle:    p.Subtitle,
		BodyContent: p.Content,
		Status:      status,
	})
	if err != nil {
		return Published{}, fmt.Errorf("marshal payload: %w", err)
	}

	endpoint := fmt.Sprintf("%s/publications/%s/posts", c.baseURL, p.PublicationID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return Published{}, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Authorization", "Bearer "+p.APIKey)

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		return Published{}, fmt.Errorf("http request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		msg := strings.TrimSpace(string(body))
		var er errorResponse
		if json.Unmarshal(body, &er) == nil && len(er.Errors) > 0 {
			parts := make([]string, 0, len(er.Errors))
			for _, e := range er.Errors {
				parts = append(parts, e.Message)
			}
			msg = strings.Join(parts, "; ")
		}
		c.log.Warn("publish rejected",
			logx.Int("status", resp.StatusCode),
			logx.String("error", msg),
			logx.Duration("took", time.Since(start)),
		)
		return Published{}, fmt.Errorf("%w: status %d: %s", ErrRejected, resp.StatusCode, msg)
	}

	var out postResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return Published{}, fmt.Errorf("decode response: %w", err)
	}
	c.log.Info("newsletter published",
		logx.String("external_id", out.Data.ID),
		logx.Duration("took", time.Since(start)),
	)
	return Published{ExternalID: out.Data.ID, WebURL: out.Data.WebURL, Status: out.Data.Status}, nil
}

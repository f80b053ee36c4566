// Package generate produces newsletter drafts and social posts through a
// hosted language model (Anthropic or OpenAI).
package generate

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	logx "newsbot/pkg/logx"
)

const (
	ProviderAnthropic = "anthropic"
	ProviderOpenAI    = "openai"

	DefaultAnthropicModel = "claude-sonnet-4-20250514"
	DefaultOpenAIModel    = "gpt-4o-mini"

	defaultTimeout = 2 * time.Minute
)

var (
	ErrNoAPIKey        = errors.New("generation api key is not set")
	ErrUnknownProvider = errors.New("unknown generation provider")
	ErrEmptyResponse   = errors.New("model returned no text")
)

// Article is the subset of a stored article the prompt needs.
type Article struct {
	Title   string
	Content string
	Source  string
	URL     string
}

// Request describes one newsletter generation.
type Request struct {
	Articles    []Article
	IssueNumber int
	Date        time.Time
	Title       string
	Frequency   string
	Model       string
	Temperature *float64 // nil leaves the provider default
	MaxTokens   int
}

// SocialRequest describes one social post generation.
type SocialRequest struct {
	Platform        string
	NewsletterTitle string
	IssueNumber     int
	Content         string
	Link            string
	Model           string
	Temperature     *float64
}

// Generator is the content generation port.
type Generator interface {
	Generate(ctx context.Context, req Request) (string, error)
	SocialPost(ctx context.Context, req SocialRequest) (string, error)
}

// completion is a single system+user exchange with a provider.
type completion struct {
	System      string
	Prompt      string
	Model       string
	Temperature *float64
	MaxTokens   int
}

type completer interface {
	complete(ctx context.Context, c completion) (string, error)
	defaultModel() string
}

// Config holds process-level generation knobs. API keys come from the
// settings row, not from here.
type Config struct {
	Timeout          time.Duration
	AnthropicBaseURL string
	OpenAIBaseURL    string
	MaxRetries       int
}

// Factory builds a Generator for the provider and key of a settings
// snapshot.
type Factory struct {
	cfg Config
	log logx.Logger
}

func NewFactory(cfg Config, log logx.Logger) *Factory {
	if log.IsZero() {
		log = logx.Nop()
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	return &Factory{cfg: cfg, log: log}
}

// For returns a Generator bound to provider and apiKey.
func (f *Factory) For(provider, apiKey string) (Generator, error) {
	apiKey = strings.TrimSpace(apiKey)
	if apiKey == "" {
		return nil, ErrNoAPIKey
	}
	var c completer
	switch strings.ToLower(strings.TrimSpace(provider)) {
	case "", ProviderAnthropic:
		c = newAnthropic(apiKey, f.cfg)
	case ProviderOpenAI:
		c = newOpenAI(apiKey, f.cfg)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownProvider, provider)
	}
	return &client{c: c, timeout: f.cfg.Timeout, log: f.log.With(logx.String("provider", providerName(provider)))}, nil
}

func providerName(p string) string {
	p = strings.ToLower(strings.TrimSpace(p))
	if p == "" {
		return ProviderAnthropic
	}
	return p
}

type client struct {
	c       completer
	timeout time.Duration
	log     logx.Logger
}

func (g *client) Generate(ctx context.Context, req Request) (string, error) {
	system, prompt := NewsletterPrompt(req)
	comp := completion{
		System:      system,
		Prompt:      prompt,
		Model:       req.Model,
		Temperature: req.Temperature,
		MaxTokens:   req.MaxTokens,
	}
	return g.run(ctx, "newsletter", comp)
}

func (g *client) SocialPost(ctx context.Context, req SocialRequest) (string, error) {
	system, prompt := SocialPrompt(req)
	comp := completion{
		System:      system,
		Prompt:      prompt,
		Model:       req.Model,
		Temperature: req.Temperature,
		MaxTokens:   600,
	}
	out, err := g.run(ctx, "social", comp)
	if err != nil {
		return "", err
	}
	return FitPlatform(req.Platform, out), nil
}

func (g *client) run(ctx context.Context, kind string, comp completion) (string, error) {
	if strings.TrimSpace(comp.Model) == "" {
		comp.Model = g.c.defaultModel()
	}
	if comp.MaxTokens <= 0 {
		comp.MaxTokens = 4000
	}
	if g.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, g.timeout)
		defer cancel()
	}

	start := time.Now()
	out, err := g.c.complete(ctx, comp)
	if err != nil {
		return "", fmt.Errorf("generate %s: %w", kind, err)
	}
	out = strings.TrimSpace(out)
	if out == "" {
		return "", fmt.Errorf("generate %s: %w", kind, ErrEmptyResponse)
	}
	g.log.Debug("generation done",
		logx.String("kind", kind),
		logx.String("model", comp.Model),
		logx.Int("chars", len(out)),
		logx.Duration("took", time.Since(start)),
	)
	return out, nil
}

// Package oracle talks to an OpenAI-compatible chat completion endpoint to
// categorize bundle names and suggest category lists.
package oracle

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"

	"github.com/sashabaranov/go-openai"
	"golang.org/x/time/rate"

	"github.com/luinbytes/iconic/bundle"
	"github.com/luinbytes/iconic/classify"
	"github.com/luinbytes/iconic/logbook"
)

// DefaultModel is used when the config names none.
const DefaultModel = "gpt-4o-mini"

// MaxSuggestionSamples caps the names sent to SuggestCategories.
const MaxSuggestionSamples = 50

// Config configures a Client.
type Config struct {
	APIKey            string
	BaseURL           string // empty means the OpenAI default
	Model             string
	RequestsPerMinute int // 0 disables client-side throttling
}

// Usage is the cumulative token usage reported by the endpoint.
type Usage struct {
	Requests         int
	PromptTokens     int
	CompletionTokens int
}

// Client implements classify.Oracle and classify.Suggester.
type Client struct {
	api     *openai.Client
	model   string
	limiter *rate.Limiter
	log     logbook.Logger

	mu    sync.Mutex
	usage Usage
}

// New creates a client. An empty API key is rejected.
func New(cfg Config, log logbook.Logger) (*Client, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, errors.New("oracle: API key not set")
	}
	if log == nil {
		log = logbook.Discard
	}
	oc := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		oc.BaseURL = cfg.BaseURL
	}
	model := cfg.Model
	if model == "" {
		model = DefaultModel
	}
	limiter := rate.NewLimiter(rate.Inf, 1)
	if cfg.RequestsPerMinute > 0 {
		limiter = rate.NewLimiter(rate.Limit(float64(cfg.RequestsPerMinute)/60.0), 1)
	}
	return &Client{
		api:     openai.NewClientWithConfig(oc),
		model:   model,
		limiter: limiter,
		log:     log,
	}, nil
}

// Usage returns the token totals so far.
func (c *Client) Usage() Usage {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.usage
}

// CategorizeBatch implements classify.Oracle. Only names with at least one
// category from the list are present in the result.
func (c *Client) CategorizeBatch(ctx context.Context, req classify.Request) (map[string][]string, error) {
	if len(req.Categories) == 0 || len(req.Names) == 0 {
		return map[string][]string{}, nil
	}

	text, err := c.complete(ctx, categorizePrompt(req))
	if err != nil {
		return nil, err
	}

	var raw map[string]any
	if err := json.Unmarshal([]byte(cleanJSON(text)), &raw); err != nil {
		return nil, fmt.Errorf("%w: %v", classify.ErrMalformedResponse, err)
	}

	out := make(map[string][]string, len(req.Names))
	for _, name := range req.Names {
		tags := validCategories(raw[name], req.Categories)
		if len(tags) == 0 {
			continue
		}
		if !req.MultiTag {
			tags = tags[:1]
		}
		out[name] = tags
	}
	return out, nil
}

// SuggestCategories implements classify.Suggester. On any failure it
// returns current together with the error.
func (c *Client) SuggestCategories(ctx context.Context, samples, current []string) ([]string, error) {
	if len(samples) > MaxSuggestionSamples {
		samples = samples[:MaxSuggestionSamples]
	}
	text, err := c.complete(ctx, suggestPrompt(samples, current))
	if err != nil {
		return current, err
	}

	var resp struct {
		Categories []string `json:"categories"`
	}
	if err := json.Unmarshal([]byte(cleanJSON(text)), &resp); err != nil {
		return current, fmt.Errorf("%w: %v", classify.ErrMalformedResponse, err)
	}
	if len(resp.Categories) == 0 {
		return current, nil
	}
	list, err := bundle.ValidateCategories(resp.Categories)
	if err != nil {
		return current, err
	}
	return list, nil
}

func (c *Client) complete(ctx context.Context, prompt string) (string, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return "", err
	}

	resp, err := c.api.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: c.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: systemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: prompt},
		},
		ResponseFormat: &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		},
	})
	if err != nil {
		return "", mapError(err)
	}

	c.mu.Lock()
	c.usage.Requests++
	c.usage.PromptTokens += resp.Usage.PromptTokens
	c.usage.CompletionTokens += resp.Usage.CompletionTokens
	c.mu.Unlock()

	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("%w: no choices", classify.ErrMalformedResponse)
	}
	return resp.Choices[0].Message.Content, nil
}

// mapError turns HTTP 429 into classify.ErrRateLimited.
func mapError(err error) error {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) && apiErr.HTTPStatusCode == http.StatusTooManyRequests {
		return fmt.Errorf("%w: %v", classify.ErrRateLimited, err)
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) && reqErr.HTTPStatusCode == http.StatusTooManyRequests {
		return fmt.Errorf("%w: %v", classify.ErrRateLimited, err)
	}
	return err
}

// validCategories keeps the entries of v that name a category in list,
// in list casing. v may be an array or a single string.
func validCategories(v any, list []string) []string {
	var candidates []string
	switch t := v.(type) {
	case string:
		candidates = []string{t}
	case []any:
		for _, item := range t {
			if s, ok := item.(string); ok {
				candidates = append(candidates, s)
			}
		}
	}
	out := make([]string, 0, len(candidates))
	for _, s := range candidates {
		if c, ok := bundle.Canonical(list, strings.TrimSpace(s)); ok {
			out = append(out, c)
		}
	}
	return bundle.DedupeTags(out)
}

var (
	_ classify.Oracle    = (*Client)(nil)
	_ classify.Suggester = (*Client)(nil)
)

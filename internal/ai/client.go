// Package ai talks to an OpenAI compatible chat completion endpoint to
// classify inbound emails and draft replies.
package ai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"sort"
	"strings"

	openai "github.com/sashabaranov/go-openai"

	"github.com/welldanyogia/webrana-crm-mail/internal/categorizer"
	apperrors "github.com/welldanyogia/webrana-crm-mail/internal/errors"
)

var (
	// ErrEmptyResponse is returned when the completion has no choices
	ErrEmptyResponse = errors.New("ai: empty completion")
	// ErrInvalidResponse is returned when the completion holds no usable JSON
	ErrInvalidResponse = errors.New("ai: invalid classification response")
)

// DefaultModel is used when no model is configured
const DefaultModel = "gpt-4o-mini"

const (
	classifyBodyLimit = 2000
	replyBodyLimit    = 1500
)

var jsonObject = regexp.MustCompile(`\{[\s\S]*\}`)

// Client wraps the chat completion API
type Client struct {
	api   *openai.Client
	model string
}

// New creates a Client. baseURL may point at any OpenAI compatible endpoint.
func New(apiKey, model, baseURL string) (*Client, error) {
	if apiKey == "" {
		return nil, apperrors.ErrNotConfigured
	}
	cfg := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = strings.TrimSuffix(baseURL, "/")
	}
	if model == "" {
		model = DefaultModel
	}
	return &Client{api: openai.NewClientWithConfig(cfg), model: model}, nil
}

// Classify asks the model for a category and a sentiment label
func (c *Client) Classify(ctx context.Context, subject, body string) (categorizer.Label, error) {
	prompt := "Categorize this email into one of: Lead, Deal, Customer Support, Complaint, Promotional, Social, Other. " +
		"Also provide sentiment (Positive, Neutral, Negative). Return JSON with keys category and sentiment.\n" +
		"Subject: " + subject + "\nBody: " + clip(body, classifyBodyLimit)

	content, err := c.complete(ctx, prompt, 0.2)
	if err != nil {
		return categorizer.Label{}, err
	}

	raw := jsonObject.FindString(content)
	if raw == "" {
		return categorizer.Label{}, ErrInvalidResponse
	}
	var out struct {
		Category  string `json:"category"`
		Sentiment string `json:"sentiment"`
	}
	if err := json.Unmarshal([]byte(raw), &out); err != nil {
		return categorizer.Label{}, fmt.Errorf("%w: %v", ErrInvalidResponse, err)
	}
	return categorizer.Label{Category: out.Category, Sentiment: out.Sentiment}, nil
}

// SuggestReply drafts a professional reply to an email
func (c *Client) SuggestReply(ctx context.Context, subject, body string, hints map[string]string) (string, error) {
	var b strings.Builder
	b.WriteString("Draft a professional reply.")
	if len(hints) > 0 {
		keys := make([]string, 0, len(hints))
		for k := range hints {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		b.WriteString(" Context:")
		for _, k := range keys {
			fmt.Fprintf(&b, " %s=%s;", k, hints[k])
		}
	}
	b.WriteString("\nOriginal Subject: " + subject)
	b.WriteString("\nOriginal Body: " + clip(body, replyBodyLimit))

	return c.complete(ctx, b.String(), 0.5)
}

func (c *Client) complete(ctx context.Context, prompt string, temperature float32) (string, error) {
	resp, err := c.api.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       c.model,
		Temperature: temperature,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleUser, Content: prompt},
		},
	})
	if err != nil {
		return "", fmt.Errorf("chat completion failed: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", ErrEmptyResponse
	}
	return strings.TrimSpace(resp.Choices[0].Message.Content), nil
}

func clip(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}

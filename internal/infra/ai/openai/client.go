package openai

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/sashabaranov/go-openai"

	domai "github.com/snapworth/snapworth/internal/domain/ai"
	"github.com/snapworth/snapworth/internal/infra/ai/prompt"
)

const (
	maxTokens   = 2048
	maxAttempts = 2
)

type Client struct {
	*openai.Client
	Model string
	// AttemptTimeout bounds each individual call; a deadline hit counts as a
	// retryable transport error.
	AttemptTimeout time.Duration
	// RetryDelay is the fixed pause before the second attempt.
	RetryDelay time.Duration
}

func NewClient(apiKey, model string) *Client {
	return &Client{
		Client:         openai.NewClient(apiKey),
		Model:          model,
		AttemptTimeout: 60 * time.Second,
		RetryDelay:     2 * time.Second,
	}
}

var _ domai.Client = (*Client)(nil)

// Invoke calls the vision model with up to maxAttempts attempts. Empty
// content, timeouts, connection failures and rate limits are retried once
// after RetryDelay; credential errors fail immediately. Exhaustion returns
// ErrExhausted wrapping the last cause.
func (c *Client) Invoke(ctx context.Context, img domai.Image, category string) (string, error) {
	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if attempt > 1 {
			select {
			case <-ctx.Done():
				return "", fmt.Errorf("%w: %w", domai.ErrTransport, ctx.Err())
			case <-time.After(c.RetryDelay):
			}
		}

		content, err := c.attempt(ctx, img, category)
		if err == nil {
			return content, nil
		}
		lastErr = err
		if !retryable(err) {
			return "", err
		}
	}
	return "", fmt.Errorf("%w: %w", domai.ErrExhausted, lastErr)
}

func (c *Client) attempt(ctx context.Context, img domai.Image, category string) (string, error) {
	model := c.Model
	if model == "" {
		model = openai.GPT4o
	}

	dataURL := fmt.Sprintf("data:%s;base64,%s", img.MIME, base64.StdEncoding.EncodeToString(img.Data))

	req := openai.ChatCompletionRequest{
		Model: model,
		ResponseFormat: &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		},
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: prompt.GetSystemPrompt()},
			{
				Role: openai.ChatMessageRoleUser,
				MultiContent: []openai.ChatMessagePart{
					{Type: openai.ChatMessagePartTypeText, Text: prompt.GetUserPrompt(category)},
					{
						Type: openai.ChatMessagePartTypeImageURL,
						ImageURL: &openai.ChatMessageImageURL{
							URL:    dataURL,
							Detail: openai.ImageURLDetailAuto,
						},
					},
				},
			},
		},
	}
	// For reasoning models (o1/o3/o4/gpt-5*) use MaxCompletionTokens instead of MaxTokens
	if strings.HasPrefix(model, "o1") || strings.HasPrefix(model, "o3") || strings.HasPrefix(model, "o4") || strings.HasPrefix(model, "gpt-5") {
		req.MaxCompletionTokens = maxTokens
	} else {
		req.MaxTokens = maxTokens
	}

	attemptCtx := ctx
	if c.AttemptTimeout > 0 {
		var cancel context.CancelFunc
		attemptCtx, cancel = context.WithTimeout(ctx, c.AttemptTimeout)
		defer cancel()
	}

	resp, err := c.CreateChatCompletion(attemptCtx, req)
	if err != nil {
		return "", classify(err)
	}
	if len(resp.Choices) == 0 || strings.TrimSpace(resp.Choices[0].Message.Content) == "" {
		return "", domai.ErrEmptyResponse
	}
	return resp.Choices[0].Message.Content, nil
}

// classify maps provider failures onto the domain error taxonomy.
func classify(err error) error {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		switch {
		case apiErr.HTTPStatusCode == 401 || apiErr.HTTPStatusCode == 403:
			return fmt.Errorf("%w: %v", domai.ErrUnauthorized, err)
		case apiErr.HTTPStatusCode == 429:
			return fmt.Errorf("%w: %w", domai.ErrQuotaExceeded, domai.ErrTransport)
		case apiErr.HTTPStatusCode >= 500:
			return fmt.Errorf("%w: %v", domai.ErrTransport, err)
		default:
			return fmt.Errorf("chat completion failed: %w", err)
		}
	}
	// timeouts, connection resets, DNS failures
	return fmt.Errorf("%w: %v", domai.ErrTransport, err)
}

func retryable(err error) bool {
	return errors.Is(err, domai.ErrTransport) || errors.Is(err, domai.ErrEmptyResponse)
}

package promptassist

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"regexp"
	"strings"
	"time"
)

// ErrMissingAPIKey indicates that the assistant was configured without
// credentials.
var ErrMissingAPIKey = errors.New("promptassist: api key is required")

const (
	defaultTimeout = 60 * time.Second
	defaultModel   = "deepseek-chat"
	maxRetries     = 3
	retryDelay     = 2 * time.Second
)

const systemPrompt = "You are an assistant that writes prompts for an AI " +
	"image generation model. The user describes the desired result and you " +
	"compose a detailed, effective prompt adapted for the model. Return the " +
	"prompt in the format: ```prompt\n[your prompt here]\n```"

// Options configures the prompt assistant client.
type Options struct {
	APIKey     string
	BaseURL    string
	Model      string
	HTTPClient *http.Client
	Sleep      func(time.Duration)
}

// Client talks to a chat-completions compatible endpoint to turn free-form
// user intent into a ready generation prompt.
type Client struct {
	apiKey     string
	baseURL    string
	model      string
	httpClient *http.Client
	sleep      func(time.Duration)
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature float64       `json:"temperature"`
	MaxTokens   int           `json:"max_tokens"`
	Stream      bool          `json:"stream"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

// NewClient constructs a client with sane defaults.
func NewClient(opts Options) (*Client, error) {
	if strings.TrimSpace(opts.APIKey) == "" {
		return nil, ErrMissingAPIKey
	}
	baseURL := strings.TrimRight(opts.BaseURL, "/")
	if baseURL == "" {
		baseURL = "https://api.deepseek.com"
	}
	model := strings.TrimSpace(opts.Model)
	if model == "" {
		model = defaultModel
	}
	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: defaultTimeout}
	}
	sleep := opts.Sleep
	if sleep == nil {
		sleep = time.Sleep
	}
	return &Client{
		apiKey:     strings.TrimSpace(opts.APIKey),
		baseURL:    baseURL,
		model:      model,
		httpClient: httpClient,
		sleep:      sleep,
	}, nil
}

// GeneratePrompt asks the assistant for a generation prompt based on the
// user's description and returns the extracted prompt text. Transport errors
// are retried with a growing delay before giving up.
func (c *Client) GeneratePrompt(ctx context.Context, description string) (string, error) {
	payload := chatRequest{
		Model: c.model,
		Messages: []chatMessage{
			{Role: "system", Content: systemPrompt},
			{Role: "user", Content: fmt.Sprintf("The user wants: %s\n\nCompose a generation prompt based on this description.", description)},
		},
		Temperature: 0.7,
		MaxTokens:   1000,
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("promptassist: encode request: %w", err)
	}

	var lastErr error
	for attempt := 1; attempt <= maxRetries; attempt++ {
		text, err := c.complete(ctx, body)
		if err == nil {
			return ExtractPrompt(text), nil
		}
		lastErr = err
		if !retryable(err) || attempt == maxRetries {
			break
		}
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		default:
		}
		c.sleep(retryDelay * time.Duration(attempt))
	}
	return "", fmt.Errorf("promptassist: %w", lastErr)
}

func (c *Client) complete(ctx context.Context, body []byte) (string, error) {
	endpoint := c.baseURL + "/chat/completions"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", &transportError{err: err}
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		if resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests {
			return "", &transportError{err: fmt.Errorf("status %d", resp.StatusCode)}
		}
		return "", fmt.Errorf("status %d", resp.StatusCode)
	}
	var decoded chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return "", fmt.Errorf("decode response: %w", err)
	}
	if len(decoded.Choices) == 0 {
		return "", errors.New("response carried no choices")
	}
	text := strings.TrimSpace(decoded.Choices[0].Message.Content)
	if text == "" {
		return "", errors.New("empty completion")
	}
	return text, nil
}

type transportError struct {
	err error
}

func (e *transportError) Error() string { return e.err.Error() }
func (e *transportError) Unwrap() error { return e.err }

func retryable(err error) bool {
	var te *transportError
	return errors.As(err, &te)
}

var (
	promptBlockRe = regexp.MustCompile("(?is)```prompt\\s*\\n(.*?)\\n```")
	codeBlockRe   = regexp.MustCompile("(?s)```[^\\n]*\\n(.*?)\\n```")
)

// ExtractPrompt pulls the prompt text out of the assistant's reply. It
// prefers a ```prompt``` block, falls back to any fenced block, and finally
// to the whole reply.
func ExtractPrompt(text string) string {
	if m := promptBlockRe.FindStringSubmatch(text); m != nil {
		return strings.TrimSpace(m[1])
	}
	if m := codeBlockRe.FindStringSubmatch(text); m != nil {
		return strings.TrimSpace(m[1])
	}
	return strings.TrimSpace(text)
}

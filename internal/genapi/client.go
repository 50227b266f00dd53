package genapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"genbot/internal/domain"
	"genbot/internal/infra"
	"genbot/internal/uploadcache"
)

// ErrMissingAPIKey indicates that the client was configured without credentials.
var ErrMissingAPIKey = errors.New("genapi: api key is required")

// Uploader pushes a local file to the platform and returns its external URL.
type Uploader interface {
	Upload(ctx context.Context, path string) (string, error)
}

// Options configures the generation platform client.
type Options struct {
	BaseURL       string
	APIKey        string
	APISecret     string
	PublicBaseURL string
	StorageRoot   string
	PollInterval  time.Duration
	MaxWait       time.Duration
	HTTPClient    *http.Client
	Uploader      Uploader
	Cache         *uploadcache.Cache
	Logger        *infra.Logger
}

// Client submits generation jobs to the platform over either route and polls
// them to a terminal outcome.
type Client struct {
	baseURL       string
	apiKey        string
	apiSecret     string
	publicBaseURL string
	storageRoot   string
	pollInterval  time.Duration
	maxWait       time.Duration
	httpClient    *http.Client
	uploader      Uploader
	cache         *uploadcache.Cache
	logger        *infra.Logger
}

// Job is the pollable handle returned by Submit. A submit response carrying
// no job identifier is already final; its payload lives in Final.
type Job struct {
	ID    string
	Final map[string]any
}

// NewClient constructs a client with sane defaults and injected dependencies.
func NewClient(opts Options) (*Client, error) {
	if strings.TrimSpace(opts.APIKey) == "" {
		return nil, ErrMissingAPIKey
	}
	baseURL := strings.TrimRight(opts.BaseURL, "/")
	if baseURL == "" {
		baseURL = "https://platform.higgsfield.ai"
	}
	pollInterval := opts.PollInterval
	if pollInterval <= 0 {
		pollInterval = 5 * time.Second
	}
	maxWait := opts.MaxWait
	if maxWait <= 0 {
		maxWait = 5 * time.Minute
	}
	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 60 * time.Second}
	}
	var logger *infra.Logger
	if opts.Logger != nil {
		logger = opts.Logger
	} else {
		discard := zerolog.New(io.Discard)
		l := infra.Logger(discard)
		logger = &l
	}
	return &Client{
		baseURL:       baseURL,
		apiKey:        strings.TrimSpace(opts.APIKey),
		apiSecret:     strings.TrimSpace(opts.APISecret),
		publicBaseURL: strings.TrimRight(opts.PublicBaseURL, "/"),
		storageRoot:   opts.StorageRoot,
		pollInterval:  pollInterval,
		maxWait:       maxWait,
		httpClient:    httpClient,
		uploader:      opts.Uploader,
		cache:         opts.Cache,
		logger:        logger,
	}, nil
}

func (c *Client) headers(req *http.Request) {
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("hf-api-key", c.apiKey)
	if c.apiSecret != "" {
		req.Header.Set("hf-secret", c.apiSecret)
	}
}

// Submit resolves the reference images to external URLs, builds the
// route-specific payload, and posts it. The reference-image limit of the
// route is enforced here as a final guard.
func (c *Client) Submit(ctx context.Context, userID int64, route domain.Route, prompt, aspectRatio string, imagePaths []string) (*Job, error) {
	if len(imagePaths) > route.MaxReferenceImages() {
		return nil, fmt.Errorf("%w: %d images, route %s allows %d",
			domain.ErrPhotoLimitExceeded, len(imagePaths), route, route.MaxReferenceImages())
	}

	imageURLs := make([]string, 0, len(imagePaths))
	for _, path := range imagePaths {
		imageURLs = append(imageURLs, c.resolveImageURL(ctx, userID, path))
	}

	endpoint, payload := submitRequest(route, c.baseURL, prompt, aspectRatio, imageURLs)
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("genapi: encode request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("genapi: build request: %w", err)
	}
	c.headers(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("genapi: submit: %w", err)
	}
	defer resp.Body.Close()
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("genapi: read submit response: %w", err)
	}
	if resp.StatusCode >= 300 {
		return nil, fmt.Errorf("genapi: submit status %d: %s", resp.StatusCode, strings.TrimSpace(string(raw)))
	}

	var decoded map[string]any
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return nil, fmt.Errorf("genapi: decode submit response: %w", err)
	}

	jobID, ok := ExtractJobID(decoded)
	if !ok {
		// No identifier to poll; the submit response is the final result.
		c.logger.Debug().Str("route", string(route)).Msg("genapi: immediate result, nothing to poll")
		return &Job{Final: decoded}, nil
	}
	c.logger.Debug().Str("route", string(route)).Str("job_id", jobID).Msg("genapi: job submitted")
	return &Job{ID: jobID}, nil
}

// AwaitCompletion polls the job to a terminal status. Transport and parse
// errors are logged and retried on the same interval; only the deadline ends
// the loop without a verdict.
func (c *Client) AwaitCompletion(ctx context.Context, job *Job) Outcome {
	if job.ID == "" {
		return completedOutcome(job.Final)
	}

	deadline := time.Now().Add(c.maxWait)
	ticker := time.NewTicker(c.pollInterval)
	defer ticker.Stop()

	for {
		payload, err := c.fetchStatus(ctx, job.ID)
		if err != nil {
			c.logger.Warn().Err(err).Str("job_id", job.ID).Msg("genapi: poll failed, retrying")
		} else {
			switch status := extractStatus(payload); status {
			case "completed":
				return completedOutcome(payload)
			case "nsfw":
				return Outcome{Kind: OutcomeBlocked, Payload: payload, Err: domain.ErrContentBlocked}
			case "failed", "error":
				err := domain.ErrGenerationFailed
				if text := extractErrorText(payload); text != "" {
					err = fmt.Errorf("%w: %s", domain.ErrGenerationFailed, text)
				}
				return Outcome{Kind: OutcomeFailed, Payload: payload, Err: err}
			case "canceled", "cancelled":
				return Outcome{Kind: OutcomeCanceled, Payload: payload, Err: domain.ErrJobCanceled}
			default:
				c.logger.Debug().Str("job_id", job.ID).Str("status", status).Msg("genapi: job pending")
			}
		}

		if time.Now().After(deadline) {
			return Outcome{Kind: OutcomeTimedOut, Err: domain.ErrPollTimeout}
		}
		select {
		case <-ctx.Done():
			return Outcome{Kind: OutcomeTimedOut, Err: ctx.Err()}
		case <-ticker.C:
		}
	}
}

func (c *Client) fetchStatus(ctx context.Context, jobID string) (map[string]any, error) {
	endpoint := fmt.Sprintf("%s/requests/%s/status", c.baseURL, jobID)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("genapi: build status request: %w", err)
	}
	c.headers(req)
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("genapi: status request: %w", err)
	}
	defer resp.Body.Close()
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("genapi: read status response: %w", err)
	}
	if resp.StatusCode >= 300 {
		return nil, fmt.Errorf("genapi: status %d: %s", resp.StatusCode, strings.TrimSpace(string(raw)))
	}
	var decoded map[string]any
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return nil, fmt.Errorf("genapi: decode status response: %w", err)
	}
	return decoded, nil
}

// Download fetches the generated image bytes from the platform URL.
func (c *Client) Download(ctx context.Context, imageURL string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, imageURL, nil)
	if err != nil {
		return nil, fmt.Errorf("genapi: build download request: %w", err)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("genapi: download image: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return nil, fmt.Errorf("genapi: download status %d", resp.StatusCode)
	}
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("genapi: read image: %w", err)
	}
	return data, nil
}

// resolveImageURL turns a local file into an external reference. Cache hits
// skip the upload entirely. Upload failures fall back to the locally-served
// public URL, which is never written to the cache.
func (c *Client) resolveImageURL(ctx context.Context, userID int64, path string) string {
	var hash string
	if c.cache != nil {
		var url string
		var ok bool
		hash, url, ok = c.cache.Lookup(ctx, path)
		if ok {
			return url
		}
	}
	if c.uploader != nil {
		url, err := c.uploader.Upload(ctx, path)
		if err == nil && url != "" {
			if c.cache != nil {
				c.cache.Store(ctx, hash, url)
			}
			return url
		}
		if err != nil {
			c.logger.Warn().Err(fmt.Errorf("%w: %v", domain.ErrUploadFailed, err)).Str("path", path).
				Msg("genapi: serving local fallback url")
		}
	}
	return c.localFallbackURL(userID, path)
}

func (c *Client) localFallbackURL(userID int64, path string) string {
	userRoot := filepath.Join(c.storageRoot, strconv.FormatInt(userID, 10))
	rel, err := filepath.Rel(userRoot, path)
	if err != nil || strings.HasPrefix(rel, "..") {
		rel = filepath.Base(path)
	}
	return fmt.Sprintf("%s/files/%d/%s", c.publicBaseURL, userID, filepath.ToSlash(rel))
}

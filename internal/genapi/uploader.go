package genapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// PlatformUploader posts files to the platform's upload endpoint and returns
// the hosted URL.
type PlatformUploader struct {
	baseURL    string
	apiKey     string
	apiSecret  string
	httpClient *http.Client
}

// NewPlatformUploader constructs the production uploader.
func NewPlatformUploader(baseURL, apiKey, apiSecret string, httpClient *http.Client) *PlatformUploader {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 60 * time.Second}
	}
	return &PlatformUploader{
		baseURL:    strings.TrimRight(baseURL, "/"),
		apiKey:     apiKey,
		apiSecret:  apiSecret,
		httpClient: httpClient,
	}
}

// Upload sends the file as multipart form data.
func (u *PlatformUploader) Upload(ctx context.Context, path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("genapi: open upload file: %w", err)
	}
	defer f.Close()

	var body bytes.Buffer
	writer := multipart.NewWriter(&body)
	part, err := writer.CreateFormFile("file", filepath.Base(path))
	if err != nil {
		return "", fmt.Errorf("genapi: build multipart: %w", err)
	}
	if _, err := io.Copy(part, f); err != nil {
		return "", fmt.Errorf("genapi: copy upload body: %w", err)
	}
	if err := writer.Close(); err != nil {
		return "", fmt.Errorf("genapi: finish multipart: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u.baseURL+"/v1/files/upload", &body)
	if err != nil {
		return "", fmt.Errorf("genapi: build upload request: %w", err)
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())
	req.Header.Set("hf-api-key", u.apiKey)
	if u.apiSecret != "" {
		req.Header.Set("hf-secret", u.apiSecret)
	}

	resp, err := u.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("genapi: upload: %w", err)
	}
	defer resp.Body.Close()
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("genapi: read upload response: %w", err)
	}
	if resp.StatusCode >= 300 {
		return "", fmt.Errorf("genapi: upload status %d: %s", resp.StatusCode, strings.TrimSpace(string(raw)))
	}

	var decoded struct {
		URL  string `json:"url"`
		File struct {
			URL string `json:"url"`
		} `json:"file"`
	}
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return "", fmt.Errorf("genapi: decode upload response: %w", err)
	}
	if decoded.URL != "" {
		return decoded.URL, nil
	}
	if decoded.File.URL != "" {
		return decoded.File.URL, nil
	}
	return "", errors.New("genapi: upload response carried no url")
}

package genapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"genbot/internal/domain"
	"genbot/internal/storage"
	"genbot/internal/uploadcache"
)

type countingUploader struct {
	calls int32
	url   string
	err   error
}

func (u *countingUploader) Upload(_ context.Context, _ string) (string, error) {
	atomic.AddInt32(&u.calls, 1)
	return u.url, u.err
}

type memCacheRepo struct {
	urls    map[string]string
	expires map[string]time.Time
}

func newMemCacheRepo() *memCacheRepo {
	return &memCacheRepo{urls: map[string]string{}, expires: map[string]time.Time{}}
}

func (m *memCacheRepo) Get(_ context.Context, hash string, now time.Time) (string, bool, error) {
	url, ok := m.urls[hash]
	if !ok || now.After(m.expires[hash]) {
		return "", false, nil
	}
	return url, true, nil
}

func (m *memCacheRepo) Put(_ context.Context, hash, url string, expiresAt time.Time) error {
	m.urls[hash] = url
	m.expires[hash] = expiresAt
	return nil
}

func newTestClient(t *testing.T, base string, opts Options) *Client {
	t.Helper()
	opts.BaseURL = base
	if opts.APIKey == "" {
		opts.APIKey = "key"
	}
	if opts.PollInterval <= 0 {
		opts.PollInterval = 5 * time.Millisecond
	}
	if opts.MaxWait <= 0 {
		opts.MaxWait = time.Second
	}
	client, err := NewClient(opts)
	if err != nil {
		t.Fatalf("NewClient error: %v", err)
	}
	return client
}

func tempImage(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "ref.jpg")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestSubmitSeedreamPayload(t *testing.T) {
	var gotPath, gotKey string
	var gotBody map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotKey = r.Header.Get("hf-api-key")
		raw, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(raw, &gotBody)
		fmt.Fprint(w, `{"id":"job-7"}`)
	}))
	defer srv.Close()

	client := newTestClient(t, srv.URL, Options{APISecret: "sec"})
	job, err := client.Submit(context.Background(), 1, domain.RouteSeedream, "a cat", "16:9", nil)
	if err != nil {
		t.Fatalf("Submit error: %v", err)
	}
	if job.ID != "job-7" {
		t.Fatalf("unexpected job id %q", job.ID)
	}
	if gotPath != "/seedream/v4.5" {
		t.Fatalf("unexpected endpoint %q", gotPath)
	}
	if gotKey != "key" {
		t.Fatalf("missing auth header, got %q", gotKey)
	}
	if gotBody["resolution"] != "2k" {
		t.Fatalf("resolution not pinned: %v", gotBody["resolution"])
	}
	if gotBody["aspect_ratio"] != "16:9" {
		t.Fatalf("aspect ratio missing: %v", gotBody["aspect_ratio"])
	}
	if _, ok := gotBody["image_urls"]; !ok {
		t.Fatal("image_urls field missing")
	}
}

func TestSubmitNanoBananaTextWrapsParams(t *testing.T) {
	var gotPath string
	var gotBody map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		raw, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(raw, &gotBody)
		fmt.Fprint(w, `{"request_id":"rq-1"}`)
	}))
	defer srv.Close()

	client := newTestClient(t, srv.URL, Options{})
	job, err := client.Submit(context.Background(), 1, domain.RouteNanoBanana, "a dog", "1:1", nil)
	if err != nil {
		t.Fatalf("Submit error: %v", err)
	}
	if job.ID != "rq-1" {
		t.Fatalf("unexpected job id %q", job.ID)
	}
	if gotPath != "/v1/text2image/nano-banana" {
		t.Fatalf("unexpected endpoint %q", gotPath)
	}
	params, ok := gotBody["params"].(map[string]any)
	if !ok {
		t.Fatalf("payload not wrapped in params: %v", gotBody)
	}
	if params["prompt"] != "a dog" || params["output_format"] != "png" {
		t.Fatalf("unexpected params: %v", params)
	}
}

func TestSubmitNanoBananaImageFlatPayload(t *testing.T) {
	var gotPath string
	var gotBody map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		raw, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(raw, &gotBody)
		fmt.Fprint(w, `{"id":"j1"}`)
	}))
	defer srv.Close()

	uploader := &countingUploader{url: "https://cdn.example/u1"}
	client := newTestClient(t, srv.URL, Options{Uploader: uploader})
	path := tempImage(t, "img")

	if _, err := client.Submit(context.Background(), 1, domain.RouteNanoBanana, "p", "4:3", []string{path}); err != nil {
		t.Fatalf("Submit error: %v", err)
	}
	if gotPath != "/nano-banana" {
		t.Fatalf("unexpected endpoint %q", gotPath)
	}
	if _, wrapped := gotBody["params"]; wrapped {
		t.Fatal("image payload must not be wrapped in params")
	}
	inputs, ok := gotBody["input_images"].([]any)
	if !ok || len(inputs) != 1 {
		t.Fatalf("input_images malformed: %v", gotBody["input_images"])
	}
	first := inputs[0].(map[string]any)
	if first["type"] != "image_url" || first["image_url"] != "https://cdn.example/u1" {
		t.Fatalf("unexpected input image: %v", first)
	}
}

func TestSubmitRejectsTooManyImages(t *testing.T) {
	client := newTestClient(t, "http://unused", Options{})
	paths := []string{"a", "b", "c", "d"}
	_, err := client.Submit(context.Background(), 1, domain.RouteNanoBanana, "p", "1:1", paths)
	if !errors.Is(err, domain.ErrPhotoLimitExceeded) {
		t.Fatalf("expected photo limit error, got %v", err)
	}
}

func TestSubmitCachedImageSkipsUpload(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"id":"j1"}`)
	}))
	defer srv.Close()

	repo := newMemCacheRepo()
	cache := uploadcache.New(repo, time.Hour, zerolog.Nop())
	uploader := &countingUploader{url: "https://cdn.example/fresh"}
	client := newTestClient(t, srv.URL, Options{Uploader: uploader, Cache: cache})
	path := tempImage(t, "cached-content")

	hash, err := storage.HashFile(path)
	if err != nil {
		t.Fatal(err)
	}
	cache.Store(context.Background(), hash, "https://cdn.example/cached")

	if _, err := client.Submit(context.Background(), 3, domain.RouteNanoBanana, "p", "1:1", []string{path}); err != nil {
		t.Fatalf("Submit error: %v", err)
	}
	if n := atomic.LoadInt32(&uploader.calls); n != 0 {
		t.Fatalf("cache hit must skip upload, got %d calls", n)
	}
}

func TestSubmitUploadFailureFallsBackUncached(t *testing.T) {
	var gotBody map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(raw, &gotBody)
		fmt.Fprint(w, `{"id":"j1"}`)
	}))
	defer srv.Close()

	repo := newMemCacheRepo()
	cache := uploadcache.New(repo, time.Hour, zerolog.Nop())
	uploader := &countingUploader{err: errors.New("boom")}
	dir := t.TempDir()
	path := filepath.Join(dir, "9", "last_uploads", "pic.jpg")
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	client := newTestClient(t, srv.URL, Options{
		Uploader:      uploader,
		Cache:         cache,
		PublicBaseURL: "http://localhost:5000",
		StorageRoot:   dir,
	})

	if _, err := client.Submit(context.Background(), 9, domain.RouteNanoBanana, "p", "1:1", []string{path}); err != nil {
		t.Fatalf("Submit error: %v", err)
	}
	inputs := gotBody["input_images"].([]any)
	url := inputs[0].(map[string]any)["image_url"].(string)
	if url != "http://localhost:5000/files/9/last_uploads/pic.jpg" {
		t.Fatalf("unexpected fallback url %q", url)
	}
	if len(repo.urls) != 0 {
		t.Fatal("local fallback url must never be cached")
	}
}

func TestAwaitCompletionImmediateResult(t *testing.T) {
	client := newTestClient(t, "http://unused", Options{})
	job := &Job{Final: map[string]any{"url": "https://cdn.example/final.png"}}

	outcome := client.AwaitCompletion(context.Background(), job)
	if outcome.Kind != OutcomeCompleted {
		t.Fatalf("expected completed, got %v", outcome.Kind)
	}
	url, err := outcome.ResultURL()
	if err != nil || url != "https://cdn.example/final.png" {
		t.Fatalf("unexpected result: %q %v", url, err)
	}
}

func TestAwaitCompletionRetriesThroughErrors(t *testing.T) {
	var polls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch atomic.AddInt32(&polls, 1) {
		case 1:
			http.Error(w, "upstream hiccup", http.StatusBadGateway)
		case 2:
			fmt.Fprint(w, `{"status":"in_progress"}`)
		default:
			fmt.Fprint(w, `{"status":"completed","jobs":[{"results":[{"url":"X"}]}]}`)
		}
	}))
	defer srv.Close()

	client := newTestClient(t, srv.URL, Options{})
	outcome := client.AwaitCompletion(context.Background(), &Job{ID: "j1"})
	if outcome.Kind != OutcomeCompleted {
		t.Fatalf("expected completed, got %v (%v)", outcome.Kind, outcome.Err)
	}
	url, err := outcome.ResultURL()
	if err != nil || url != "X" {
		t.Fatalf("unexpected result url %q, err %v", url, err)
	}
}

func TestAwaitCompletionTerminalStatuses(t *testing.T) {
	cases := []struct {
		body string
		kind OutcomeKind
		err  error
	}{
		{`{"status":"nsfw"}`, OutcomeBlocked, domain.ErrContentBlocked},
		{`{"status":"failed","error":"gpu on fire"}`, OutcomeFailed, domain.ErrGenerationFailed},
		{`{"status":"error"}`, OutcomeFailed, domain.ErrGenerationFailed},
		{`{"status":"cancelled"}`, OutcomeCanceled, domain.ErrJobCanceled},
		{`{"status":"queued","jobs":[{"status":"canceled"}]}`, OutcomeCanceled, domain.ErrJobCanceled},
	}
	for _, tc := range cases {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			fmt.Fprint(w, tc.body)
		}))
		client := newTestClient(t, srv.URL, Options{})
		outcome := client.AwaitCompletion(context.Background(), &Job{ID: "j1"})
		srv.Close()
		if outcome.Kind != tc.kind {
			t.Fatalf("%s: expected %v, got %v", tc.body, tc.kind, outcome.Kind)
		}
		if !errors.Is(outcome.Err, tc.err) {
			t.Fatalf("%s: expected %v, got %v", tc.body, tc.err, outcome.Err)
		}
	}
}

func TestAwaitCompletionTimesOut(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"status":"in_progress"}`)
	}))
	defer srv.Close()

	client := newTestClient(t, srv.URL, Options{MaxWait: 30 * time.Millisecond})
	outcome := client.AwaitCompletion(context.Background(), &Job{ID: "j1"})
	if outcome.Kind != OutcomeTimedOut {
		t.Fatalf("expected timeout, got %v", outcome.Kind)
	}
	if !errors.Is(outcome.Err, domain.ErrPollTimeout) {
		t.Fatalf("expected poll timeout error, got %v", outcome.Err)
	}
}

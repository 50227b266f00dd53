package promptassist

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"
)

func TestExtractPrompt(t *testing.T) {
	cases := []struct {
		name string
		in   string
		want string
	}{
		{
			"prompt block",
			"Here you go:\n```prompt\na castle at dawn, volumetric light\n```\nEnjoy!",
			"a castle at dawn, volumetric light",
		},
		{
			"plain code block fallback",
			"```\nmisty forest\n```",
			"misty forest",
		},
		{
			"no block uses whole reply",
			"  just a bare prompt  ",
			"just a bare prompt",
		},
		{
			"prefers prompt block over code block",
			"```\nwrong\n```\n```prompt\nright\n```",
			"right",
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := ExtractPrompt(tc.in); got != tc.want {
				t.Fatalf("got %q, want %q", got, tc.want)
			}
		})
	}
}

func TestGeneratePromptHitsChatCompletions(t *testing.T) {
	var gotPath, gotAuth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotAuth = r.Header.Get("Authorization")
		content := "```prompt\nneon city\n```"
		_ = json.NewEncoder(w).Encode(map[string]any{
			"choices": []map[string]any{{"message": map[string]string{"content": content}}},
		})
	}))
	defer srv.Close()

	client, err := NewClient(Options{APIKey: "sk-test", BaseURL: srv.URL})
	if err != nil {
		t.Fatalf("NewClient error: %v", err)
	}
	prompt, err := client.GeneratePrompt(context.Background(), "a neon city")
	if err != nil {
		t.Fatalf("GeneratePrompt error: %v", err)
	}
	if prompt != "neon city" {
		t.Fatalf("unexpected prompt %q", prompt)
	}
	if gotPath != "/chat/completions" {
		t.Fatalf("unexpected path %q", gotPath)
	}
	if gotAuth != "Bearer sk-test" {
		t.Fatalf("unexpected auth header %q", gotAuth)
	}
}

func TestGeneratePromptRetriesTransportErrors(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) < 3 {
			http.Error(w, "bad gateway", http.StatusBadGateway)
			return
		}
		fmt.Fprint(w, `{"choices":[{"message":{"content":"steady result"}}]}`)
	}))
	defer srv.Close()

	var slept []time.Duration
	client, err := NewClient(Options{
		APIKey:  "sk-test",
		BaseURL: srv.URL,
		Sleep:   func(d time.Duration) { slept = append(slept, d) },
	})
	if err != nil {
		t.Fatal(err)
	}
	prompt, err := client.GeneratePrompt(context.Background(), "anything")
	if err != nil {
		t.Fatalf("expected recovery, got %v", err)
	}
	if prompt != "steady result" {
		t.Fatalf("unexpected prompt %q", prompt)
	}
	if len(slept) != 2 || slept[0] != 2*time.Second || slept[1] != 4*time.Second {
		t.Fatalf("unexpected backoff schedule %v", slept)
	}
}

func TestGeneratePromptDoesNotRetryAuthErrors(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		http.Error(w, "unauthorized", http.StatusUnauthorized)
	}))
	defer srv.Close()

	client, err := NewClient(Options{APIKey: "bad", BaseURL: srv.URL, Sleep: func(time.Duration) {}})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := client.GeneratePrompt(context.Background(), "x"); err == nil {
		t.Fatal("expected error")
	}
	if n := atomic.LoadInt32(&calls); n != 1 {
		t.Fatalf("auth failure must not retry, got %d calls", n)
	}
}

func TestNewClientRequiresKey(t *testing.T) {
	if _, err := NewClient(Options{}); err != ErrMissingAPIKey {
		t.Fatalf("expected ErrMissingAPIKey, got %v", err)
	}
}

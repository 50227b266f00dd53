package handlers

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"genbot/internal/infra"
	"genbot/internal/storage"
)

func newFileApp(t *testing.T) (*App, string) {
	t.Helper()
	root := t.TempDir()
	logger := zerolog.Nop()
	store, err := storage.NewZoneStore(root, 10<<20, logger)
	if err != nil {
		t.Fatalf("NewZoneStore: %v", err)
	}
	var l infra.Logger = logger
	return &App{Store: store, Logger: &l}, root
}

func serveFileRequest(app *App, userID, rel string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, "/files/"+userID+"/"+rel, nil)
	rctx := chi.NewRouteContext()
	rctx.URLParams.Add("userID", userID)
	rctx.URLParams.Add("*", rel)
	req = req.WithContext(context.WithValue(req.Context(), chi.RouteCtxKey, rctx))

	rec := httptest.NewRecorder()
	app.ServeFile(rec, req)
	return rec
}

func TestServeFileInsideUserRoot(t *testing.T) {
	app, root := newFileApp(t)

	dir := filepath.Join(root, "7", "last_uploads")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatalf("MkdirAll: %v", err)
	}
	if err := os.WriteFile(filepath.Join(dir, "pic.jpg"), []byte("jpeg-bytes"), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	rec := serveFileRequest(app, "7", "last_uploads/pic.jpg")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if got := rec.Body.String(); got != "jpeg-bytes" {
		t.Fatalf("body = %q", got)
	}
}

func TestServeFileRejectsTraversal(t *testing.T) {
	app, root := newFileApp(t)

	// A file outside the user's root must stay unreachable.
	secret := filepath.Join(root, "secret.txt")
	if err := os.WriteFile(secret, []byte("top secret"), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	for _, rel := range []string{
		"../secret.txt",
		"..\\secret.txt",
		"last_uploads/../../secret.txt",
		"/etc/passwd",
	} {
		rec := serveFileRequest(app, "7", rel)
		if rec.Code != http.StatusNotFound {
			t.Errorf("path %q: status = %d, want 404", rel, rec.Code)
		}
	}
}

func TestServeFileUnknownUserIsNotFound(t *testing.T) {
	app, _ := newFileApp(t)

	rec := serveFileRequest(app, "notanumber", "pic.jpg")
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rec.Code)
	}
}

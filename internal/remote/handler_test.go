package remote

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/atinyakov/FitVault/internal/models"
	"github.com/atinyakov/FitVault/internal/syncqueue"
)

func newTestServer(t *testing.T) (*httptest.Server, *MemoryRepository) {
	t.Helper()
	repo := NewMemoryRepository()
	handler := &Handler{Service: NewUploadService(repo)}
	srv := httptest.NewServer(NewRouter(handler, zap.NewNop()))
	t.Cleanup(srv.Close)
	return srv, repo
}

func testEntry(id string) syncqueue.Entry {
	return syncqueue.Entry{
		ID:         id,
		Kind:       "upsert",
		Collection: models.Logs,
		Payload:    json.RawMessage(`{"workout_id":"wk_001"}`),
		EnqueuedAt: time.Now().UTC(),
		Status:     syncqueue.StatusPending,
	}
}

func TestUpload_StoresEntry(t *testing.T) {
	srv, repo := newTestServer(t)

	uploader := &HTTPUploader{Client: srv.Client(), BaseURL: srv.URL}
	if err := uploader.Upload(context.Background(), testEntry("e1")); err != nil {
		t.Fatalf("upload failed: %v", err)
	}

	uploads, err := repo.ListUploads(context.Background())
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	if len(uploads) != 1 || uploads[0].ID != "e1" {
		t.Fatalf("unexpected uploads: %+v", uploads)
	}
}

func TestUpload_InvalidBodyRejected(t *testing.T) {
	srv, _ := newTestServer(t)

	resp, err := srv.Client().Post(srv.URL+"/api/upload", "application/json", strings.NewReader("{no"))
	if err != nil {
		t.Fatalf("post failed: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", resp.StatusCode)
	}
}

func TestUpload_NonJSONContentTypeRejected(t *testing.T) {
	srv, _ := newTestServer(t)

	resp, err := srv.Client().Post(srv.URL+"/api/upload", "text/plain", strings.NewReader("hi"))
	if err != nil {
		t.Fatalf("post failed: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusUnsupportedMediaType {
		t.Errorf("expected 415, got %d", resp.StatusCode)
	}
}

func TestList_ReturnsUploadsInOrder(t *testing.T) {
	srv, _ := newTestServer(t)

	uploader := &HTTPUploader{Client: srv.Client(), BaseURL: srv.URL}
	for _, id := range []string{"e1", "e2", "e3"} {
		if err := uploader.Upload(context.Background(), testEntry(id)); err != nil {
			t.Fatalf("upload failed: %v", err)
		}
	}

	resp, err := srv.Client().Get(srv.URL + "/api/uploads")
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	defer resp.Body.Close()

	var uploads []syncqueue.Entry
	if err := json.NewDecoder(resp.Body).Decode(&uploads); err != nil {
		t.Fatalf("decode failed: %v", err)
	}
	if len(uploads) != 3 {
		t.Fatalf("expected 3 uploads, got %d", len(uploads))
	}
	for i, want := range []string{"e1", "e2", "e3"} {
		if uploads[i].ID != want {
			t.Errorf("upload %d: got %s want %s", i, uploads[i].ID, want)
		}
	}
}

func TestHTTPUploader_ServerErrorSurfaced(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer srv.Close()

	uploader := &HTTPUploader{Client: srv.Client(), BaseURL: srv.URL}
	if err := uploader.Upload(context.Background(), testEntry("e1")); err == nil {
		t.Fatal("expected error on 500 response")
	}
}

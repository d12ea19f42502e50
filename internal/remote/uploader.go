package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/atinyakov/FitVault/internal/syncqueue"
)

const apiUpload = "/api/upload"

// HTTPUploader delivers queue entries to the uploader service over HTTP. It
// satisfies syncqueue.Uploader; the injected http.Client owns timeouts.
type HTTPUploader struct {
	Client  *http.Client
	BaseURL string
}

// Upload posts one entry to the remote service.
func (u *HTTPUploader) Upload(ctx context.Context, entry syncqueue.Entry) error {
	body, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("serialize entry: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u.BaseURL+apiUpload, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build upload request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := u.Client.Do(req)
	if err != nil {
		return fmt.Errorf("upload failed: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return fmt.Errorf("upload rejected: %s", resp.Status)
	}
	return nil
}

// Package remote implements the stub remote uploader service used for
// development and end-to-end testing. The client core only ever talks to it
// through the syncqueue.Uploader collaborator interface.
package remote

import (
	"context"

	"github.com/atinyakov/FitVault/internal/syncqueue"
)

// UploadRepository defines the persistence operations needed by the
// UploadService.
type UploadRepository interface {
	// SaveUpload stores one received queue entry.
	SaveUpload(ctx context.Context, entry syncqueue.Entry) error
	// ListUploads returns every received entry in arrival order.
	ListUploads(ctx context.Context) ([]syncqueue.Entry, error)
}

// UploadService implements the upload business logic over a repository.
type UploadService struct {
	// repo is the underlying persistence repository.
	repo UploadRepository
}

// NewUploadService constructs an UploadService with the provided repository.
func NewUploadService(repo UploadRepository) *UploadService {
	return &UploadService{repo: repo}
}

// Accept stores one uploaded queue entry.
func (s *UploadService) Accept(ctx context.Context, entry syncqueue.Entry) error {
	return s.repo.SaveUpload(ctx, entry)
}

// Uploads returns all entries received so far.
func (s *UploadService) Uploads(ctx context.Context) ([]syncqueue.Entry, error) {
	return s.repo.ListUploads(ctx)
}

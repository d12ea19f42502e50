package remote

import (
	"context"
	"sync"

	"github.com/atinyakov/FitVault/internal/syncqueue"
)

// MemoryRepository keeps received uploads in memory. The real remote service
// is out of scope; this repository backs the development stub only.
type MemoryRepository struct {
	mu      sync.Mutex
	uploads []syncqueue.Entry
}

// NewMemoryRepository creates an empty MemoryRepository.
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{}
}

// SaveUpload appends an entry to the upload log.
func (r *MemoryRepository) SaveUpload(_ context.Context, entry syncqueue.Entry) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.uploads = append(r.uploads, entry)
	return nil
}

// ListUploads returns a copy of the upload log in arrival order.
func (r *MemoryRepository) ListUploads(_ context.Context) ([]syncqueue.Entry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]syncqueue.Entry, len(r.uploads))
	copy(out, r.uploads)
	return out, nil
}

// Package syncqueue keeps an append-only log of pending mutations and
// drains it against a remote uploader collaborator when connectivity is
// available, with bounded retry.
package syncqueue

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/atinyakov/FitVault/internal/events"
	"github.com/atinyakov/FitVault/internal/models"
)

// queueKey is the store state key holding the queue log.
const queueKey = "syncqueue"

// Status is the lifecycle state of a queue entry. Entries transition
// pending → processing → completed | pending (retry) | failed; failed is
// terminal only once the retry budget is exhausted.
type Status string

const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
)

// Entry is one pending mutation awaiting upload.
type Entry struct {
	ID         string            `json:"id"`
	Kind       string            `json:"kind"`
	Collection models.Collection `json:"collection"`
	Payload    json.RawMessage   `json:"payload"`
	EnqueuedAt time.Time         `json:"enqueued_at"`
	RetryCount int               `json:"retry_count"`
	LastError  string            `json:"last_error,omitempty"`
	Status     Status            `json:"status"`
}

// Uploader is the remote collaborator the queue drains against. The queue
// has no opinion on transport; the uploader owns its own timeouts.
type Uploader interface {
	Upload(ctx context.Context, entry Entry) error
}

// Store is the slice of the local store the queue persists its log through.
type Store interface {
	GetState(key string) ([]byte, error)
	PutState(key string, value []byte) error
}

// Queue is the persistent sync queue.
type Queue struct {
	store      Store
	uploader   Uploader
	bus        *events.Bus
	log        *zap.Logger
	maxRetries int
	interval   time.Duration

	mu       sync.Mutex
	online   bool
	draining bool

	wake chan struct{}
}

// New constructs a Queue. maxRetries bounds upload attempts per entry;
// interval is the periodic drain interval while online.
func New(st Store, up Uploader, bus *events.Bus, maxRetries int, interval time.Duration, log *zap.Logger) *Queue {
	return &Queue{
		store:      st,
		uploader:   up,
		bus:        bus,
		log:        log,
		maxRetries: maxRetries,
		interval:   interval,
		wake:       make(chan struct{}, 1),
	}
}

// Enqueue appends a pending entry to the log. If the queue is online it also
// signals the drain loop to run immediately.
func (q *Queue) Enqueue(kind string, col models.Collection, payload json.RawMessage) (Entry, error) {
	entry := Entry{
		ID:         uuid.NewString(),
		Kind:       kind,
		Collection: col,
		Payload:    payload,
		EnqueuedAt: time.Now().UTC(),
		Status:     StatusPending,
	}

	q.mu.Lock()
	entries, err := q.loadLocked()
	if err != nil {
		q.mu.Unlock()
		return Entry{}, err
	}
	entries = append(entries, entry)
	err = q.saveLocked(entries)
	online := q.online
	q.mu.Unlock()
	if err != nil {
		return Entry{}, err
	}

	q.bus.Publish("sync.queueLength", len(entries))
	if online {
		q.signal()
	}
	return entry, nil
}

// SetOnline records the connectivity state. Regaining connectivity triggers
// an immediate drain.
func (q *Queue) SetOnline(online bool) {
	q.mu.Lock()
	was := q.online
	q.online = online
	q.mu.Unlock()
	q.bus.Publish("sync.isOnline", online)
	if online && !was {
		q.signal()
	}
}

// signal wakes the drain loop without blocking.
func (q *Queue) signal() {
	select {
	case q.wake <- struct{}{}:
	default:
	}
}

// Run drains periodically while online until ctx is cancelled. Consecutive
// failed passes stretch the interval with exponential backoff; a clean pass
// resets it.
func (q *Queue) Run(ctx context.Context) {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = q.interval
	bo.MaxInterval = 10 * q.interval
	bo.MaxElapsedTime = 0
	bo.Reset()

	next := q.interval
	timer := time.NewTimer(next)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-q.wake:
		case <-timer.C:
		}

		q.mu.Lock()
		online := q.online
		q.mu.Unlock()

		if online {
			faults, err := q.Drain(ctx)
			if err != nil {
				q.log.Warn("drain pass failed", zap.Error(err))
			}
			if faults > 0 || err != nil {
				next = bo.NextBackOff()
			} else {
				bo.Reset()
				next = q.interval
			}
		}

		if !timer.Stop() {
			select {
			case <-timer.C:
			default:
			}
		}
		timer.Reset(next)
	}
}

// Drain attempts to deliver every pending entry, in enqueue order. Drains
// are mutually exclusive; a concurrent call returns immediately. A failed
// entry is retried on the next drain, not within the same pass. Returns the
// number of upload attempts that errored during the pass, whether the entry
// still has retry budget or failed permanently; Run keys its backoff on it.
func (q *Queue) Drain(ctx context.Context) (int, error) {
	q.mu.Lock()
	if q.draining {
		q.mu.Unlock()
		return 0, nil
	}
	q.draining = true
	q.mu.Unlock()
	defer func() {
		q.mu.Lock()
		q.draining = false
		q.mu.Unlock()
	}()

	q.mu.Lock()
	entries, err := q.loadLocked()
	q.mu.Unlock()
	if err != nil {
		return 0, err
	}

	var completed, failed, faults int
	// done holds the post-attempt state of each processed entry; a nil
	// value marks a completed entry for removal.
	done := make(map[string]*Entry, len(entries))
	for _, entry := range entries {
		if entry.Status != StatusPending {
			continue
		}

		entry.Status = StatusProcessing
		if err := q.uploader.Upload(ctx, entry); err != nil {
			faults++
			entry.RetryCount++
			entry.LastError = err.Error()
			if entry.RetryCount > q.maxRetries {
				entry.Status = StatusFailed
				failed++
				q.log.Warn("queue entry failed permanently",
					zap.String("id", entry.ID),
					zap.Int("retries", entry.RetryCount),
					zap.Error(err))
			} else {
				entry.Status = StatusPending
			}
			updated := entry
			done[entry.ID] = &updated
			continue
		}
		// Completed entries are removed from the log.
		done[entry.ID] = nil
		completed++
	}

	// Reconcile against the current log so entries enqueued during the
	// pass survive the save.
	q.mu.Lock()
	current, err := q.loadLocked()
	if err != nil {
		q.mu.Unlock()
		return faults, err
	}
	kept := make([]Entry, 0, len(current))
	for _, entry := range current {
		updated, processed := done[entry.ID]
		if !processed {
			kept = append(kept, entry)
			continue
		}
		if updated != nil {
			kept = append(kept, *updated)
		}
	}
	err = q.saveLocked(kept)
	q.mu.Unlock()
	if err != nil {
		return faults, err
	}

	q.bus.Publish("sync.queueLength", len(kept))
	if completed > 0 || failed > 0 {
		q.bus.Publish("sync.drained", map[string]int{
			"completed": completed,
			"failed":    failed,
		})
	}
	return faults, nil
}

// RetryFailed resets every failed entry back to pending with a zeroed retry
// count, then drains.
func (q *Queue) RetryFailed(ctx context.Context) error {
	q.mu.Lock()
	entries, err := q.loadLocked()
	if err != nil {
		q.mu.Unlock()
		return err
	}
	for i := range entries {
		if entries[i].Status != StatusFailed {
			continue
		}
		entries[i].Status = StatusPending
		entries[i].RetryCount = 0
		entries[i].LastError = ""
	}
	err = q.saveLocked(entries)
	q.mu.Unlock()
	if err != nil {
		return err
	}
	_, err = q.Drain(ctx)
	return err
}

// Entries returns a copy of the queue log for status reporting.
func (q *Queue) Entries() ([]Entry, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.loadLocked()
}

func (q *Queue) loadLocked() ([]Entry, error) {
	data, err := q.store.GetState(queueKey)
	if err != nil {
		return nil, fmt.Errorf("load sync queue: %w", err)
	}
	if len(data) == 0 {
		return []Entry{}, nil
	}
	var entries []Entry
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, fmt.Errorf("parse sync queue: %w", err)
	}
	return entries, nil
}

func (q *Queue) saveLocked(entries []Entry) error {
	data, err := json.Marshal(entries)
	if err != nil {
		return fmt.Errorf("serialize sync queue: %w", err)
	}
	if err := q.store.PutState(queueKey, data); err != nil {
		return fmt.Errorf("save sync queue: %w", err)
	}
	return nil
}

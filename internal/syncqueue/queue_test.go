package syncqueue_test

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/atinyakov/FitVault/internal/events"
	"github.com/atinyakov/FitVault/internal/models"
	"github.com/atinyakov/FitVault/internal/store"
	"github.com/atinyakov/FitVault/internal/syncqueue"
)

// mockUploader records uploads and delegates to UploadFunc.
type mockUploader struct {
	UploadFunc func(ctx context.Context, entry syncqueue.Entry) error
	uploaded   []syncqueue.Entry
}

func (m *mockUploader) Upload(ctx context.Context, entry syncqueue.Entry) error {
	if err := m.UploadFunc(ctx, entry); err != nil {
		return err
	}
	m.uploaded = append(m.uploaded, entry)
	return nil
}

func newTestStore(t *testing.T) *store.LocalStore {
	t.Helper()
	kv, err := store.OpenKV(store.KVConfig{InMemory: true})
	if err != nil {
		t.Fatalf("open kv: %v", err)
	}
	t.Cleanup(func() { _ = kv.Close() })
	st, err := store.New(kv, store.Options{}, zap.NewNop())
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	return st
}

func newQueue(t *testing.T, up syncqueue.Uploader, maxRetries int) *syncqueue.Queue {
	t.Helper()
	return syncqueue.New(newTestStore(t), up, events.NewBus(), maxRetries, time.Minute, zap.NewNop())
}

func enqueueN(t *testing.T, q *syncqueue.Queue, n int) []string {
	t.Helper()
	ids := make([]string, 0, n)
	for i := 0; i < n; i++ {
		payload, _ := json.Marshal(map[string]int{"seq": i})
		entry, err := q.Enqueue("upsert", models.Logs, payload)
		if err != nil {
			t.Fatalf("enqueue failed: %v", err)
		}
		ids = append(ids, entry.ID)
	}
	return ids
}

func TestDrain_DeliversInEnqueueOrder(t *testing.T) {
	up := &mockUploader{UploadFunc: func(context.Context, syncqueue.Entry) error { return nil }}
	q := newQueue(t, up, 3)

	// Enqueued while offline, drained after going online.
	ids := enqueueN(t, q, 5)
	q.SetOnline(true)

	failed, err := q.Drain(context.Background())
	if err != nil {
		t.Fatalf("drain failed: %v", err)
	}
	if failed != 0 {
		t.Errorf("expected no failures, got %d", failed)
	}
	if len(up.uploaded) != 5 {
		t.Fatalf("expected 5 uploads, got %d", len(up.uploaded))
	}
	for i, entry := range up.uploaded {
		if entry.ID != ids[i] {
			t.Errorf("upload %d out of order: got %s want %s", i, entry.ID, ids[i])
		}
	}

	entries, err := q.Entries()
	if err != nil {
		t.Fatalf("entries failed: %v", err)
	}
	if len(entries) != 0 {
		t.Errorf("completed entries must be removed, %d left", len(entries))
	}
}

func TestDrain_FailureRetriedOnNextDrainNotSamePass(t *testing.T) {
	attempts := 0
	up := &mockUploader{UploadFunc: func(context.Context, syncqueue.Entry) error {
		attempts++
		return errors.New("remote down")
	}}
	q := newQueue(t, up, 3)
	enqueueN(t, q, 1)

	if _, err := q.Drain(context.Background()); err != nil {
		t.Fatalf("drain failed: %v", err)
	}
	if attempts != 1 {
		t.Errorf("a failed entry must not be retried within the same pass, got %d attempts", attempts)
	}

	entries, _ := q.Entries()
	if len(entries) != 1 || entries[0].Status != syncqueue.StatusPending {
		t.Fatalf("expected retained pending entry, got %+v", entries)
	}
	if entries[0].RetryCount != 1 || entries[0].LastError == "" {
		t.Errorf("retry context not recorded: %+v", entries[0])
	}
}

func TestDrain_ReportsRetryableFailures(t *testing.T) {
	up := &mockUploader{UploadFunc: func(context.Context, syncqueue.Entry) error {
		return errors.New("remote down")
	}}
	q := newQueue(t, up, 3)
	enqueueN(t, q, 2)

	// The entries keep retry budget, but the pass must not read as clean:
	// the periodic drain loop stretches its interval on this count.
	faults, err := q.Drain(context.Background())
	if err != nil {
		t.Fatalf("drain failed: %v", err)
	}
	if faults != 2 {
		t.Errorf("expected 2 reported faults, got %d", faults)
	}

	entries, _ := q.Entries()
	if len(entries) != 2 {
		t.Fatalf("expected both entries retained, got %d", len(entries))
	}
	for _, entry := range entries {
		if entry.Status != syncqueue.StatusPending || entry.RetryCount != 1 {
			t.Errorf("expected pending entry with one recorded retry, got %+v", entry)
		}
	}
}

func TestDrain_SucceedsAfterExactlyMaxRetriesFailures(t *testing.T) {
	const maxRetries = 3
	attempts := 0
	up := &mockUploader{UploadFunc: func(context.Context, syncqueue.Entry) error {
		attempts++
		if attempts <= maxRetries {
			return errors.New("remote down")
		}
		return nil
	}}
	q := newQueue(t, up, maxRetries)
	enqueueN(t, q, 1)

	for i := 0; i < maxRetries+1; i++ {
		if _, err := q.Drain(context.Background()); err != nil {
			t.Fatalf("drain %d failed: %v", i, err)
		}
	}

	entries, _ := q.Entries()
	if len(entries) != 0 {
		t.Errorf("entry must complete after %d failures then success, got %+v", maxRetries, entries)
	}
}

func TestDrain_FailsPastRetryBudgetAndIsRetained(t *testing.T) {
	const maxRetries = 2
	up := &mockUploader{UploadFunc: func(context.Context, syncqueue.Entry) error {
		return errors.New("remote down")
	}}
	q := newQueue(t, up, maxRetries)
	enqueueN(t, q, 1)

	for i := 0; i < maxRetries+2; i++ {
		if _, err := q.Drain(context.Background()); err != nil {
			t.Fatalf("drain failed: %v", err)
		}
	}

	entries, _ := q.Entries()
	if len(entries) != 1 {
		t.Fatalf("failed entry must be retained, got %d entries", len(entries))
	}
	if entries[0].Status != syncqueue.StatusFailed {
		t.Errorf("expected failed status, got %s", entries[0].Status)
	}
	if entries[0].RetryCount != maxRetries+1 {
		t.Errorf("expected %d retries, got %d", maxRetries+1, entries[0].RetryCount)
	}
}

func TestRetryFailed_ResetsAndDrains(t *testing.T) {
	healthy := false
	up := &mockUploader{UploadFunc: func(context.Context, syncqueue.Entry) error {
		if !healthy {
			return errors.New("remote down")
		}
		return nil
	}}
	q := newQueue(t, up, 0)
	enqueueN(t, q, 2)

	if _, err := q.Drain(context.Background()); err != nil {
		t.Fatalf("drain failed: %v", err)
	}
	entries, _ := q.Entries()
	for _, e := range entries {
		if e.Status != syncqueue.StatusFailed {
			t.Fatalf("expected failed entries, got %+v", e)
		}
	}

	healthy = true
	if err := q.RetryFailed(context.Background()); err != nil {
		t.Fatalf("retry failed: %v", err)
	}
	entries, _ = q.Entries()
	if len(entries) != 0 {
		t.Errorf("expected empty queue after successful retry, got %+v", entries)
	}
}

func TestDrainedNotification_AggregatesCounts(t *testing.T) {
	calls := 0
	up := &mockUploader{UploadFunc: func(context.Context, syncqueue.Entry) error {
		calls++
		if calls == 1 {
			return errors.New("remote down")
		}
		return nil
	}}

	bus := events.NewBus()
	var drained map[string]int
	bus.Subscribe(func(ev events.Event) {
		if ev.Path == "sync.drained" {
			drained = ev.Value.(map[string]int)
		}
	})

	q := syncqueue.New(newTestStore(t), up, bus, 0, time.Minute, zap.NewNop())
	enqueueN(t, q, 2)
	if _, err := q.Drain(context.Background()); err != nil {
		t.Fatalf("drain failed: %v", err)
	}

	if drained == nil {
		t.Fatal("expected a sync.drained notification")
	}
	if drained["completed"] != 1 || drained["failed"] != 1 {
		t.Errorf("unexpected aggregate counts: %+v", drained)
	}
}

func TestRun_DrainsOnRegainingConnectivity(t *testing.T) {
	up := &mockUploader{UploadFunc: func(context.Context, syncqueue.Entry) error { return nil }}
	q := syncqueue.New(newTestStore(t), up, events.NewBus(), 3, time.Hour, zap.NewNop())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go q.Run(ctx)

	// Enqueued while offline; nothing may be delivered yet.
	enqueueN(t, q, 3)
	q.SetOnline(true)

	deadline := time.Now().Add(5 * time.Second)
	for {
		entries, err := q.Entries()
		if err != nil {
			t.Fatalf("entries failed: %v", err)
		}
		if len(entries) == 0 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("queue not drained after going online: %d entries left", len(entries))
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestQueue_PersistsAcrossInstances(t *testing.T) {
	st := newTestStore(t)
	up := &mockUploader{UploadFunc: func(context.Context, syncqueue.Entry) error { return nil }}

	first := syncqueue.New(st, up, events.NewBus(), 3, time.Minute, zap.NewNop())
	payload, _ := json.Marshal(map[string]string{"k": "v"})
	if _, err := first.Enqueue("upsert", models.Logs, payload); err != nil {
		t.Fatalf("enqueue failed: %v", err)
	}

	second := syncqueue.New(st, up, events.NewBus(), 3, time.Minute, zap.NewNop())
	entries, err := second.Entries()
	if err != nil {
		t.Fatalf("entries failed: %v", err)
	}
	if len(entries) != 1 || entries[0].Status != syncqueue.StatusPending {
		t.Fatalf("queue log not persisted: %+v", entries)
	}
}

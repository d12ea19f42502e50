// Package store implements the local persistence layer: named record
// collections over a badger key-value area, with schema validation,
// quota-aware writes and legacy-key migration.
package store

import (
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/atinyakov/FitVault/internal/models"
)

const (
	collectionPrefix = "fitvault/collection/"
	statePrefix      = "fitvault/state/"
	// legacyPrefix is the key prefix used by earlier releases.
	legacyPrefix = "fittrack/"
)

// Options configures a LocalStore.
type Options struct {
	// QuotaBytes is the soft serialized-size limit per collection.
	// Zero disables the quota.
	QuotaBytes int64
	// LogRetention is how far back pruning keeps log records.
	LogRetention time.Duration
}

// LocalStore provides CRUD over named record collections.
type LocalStore struct {
	kv   KV
	log  *zap.Logger
	opts Options

	mu sync.Mutex
}

// New constructs a LocalStore over the given key-value area, migrates any
// legacy keys and seeds empty collections with their defaults.
func New(kv KV, opts Options, log *zap.Logger) (*LocalStore, error) {
	s := &LocalStore{kv: kv, log: log, opts: opts}
	if err := s.migrate(); err != nil {
		return nil, fmt.Errorf("migrate legacy keys: %w", err)
	}
	if err := s.seed(); err != nil {
		return nil, fmt.Errorf("seed defaults: %w", err)
	}
	return s, nil
}

// migrate copies data found under previously-used key names to the current
// key names and removes the old keys. Safe to run on every start.
func (s *LocalStore) migrate() error {
	for _, col := range models.Collections {
		legacy := legacyPrefix + string(col)
		data, err := s.kv.Get(legacy)
		if err != nil {
			return err
		}
		if data == nil {
			continue
		}
		current, err := s.kv.Get(collectionKey(col))
		if err != nil {
			return err
		}
		if current == nil {
			if err := s.kv.Set(collectionKey(col), data); err != nil {
				return err
			}
			s.log.Info("migrated legacy collection key",
				zap.String("collection", string(col)))
		}
		if err := s.kv.Delete(legacy); err != nil {
			return err
		}
	}
	return nil
}

// seed writes default content into collections that have never been written.
func (s *LocalStore) seed() error {
	for col, schema := range schemas {
		if schema.Seed == nil {
			continue
		}
		data, err := s.kv.Get(collectionKey(col))
		if err != nil {
			return err
		}
		if data != nil {
			continue
		}
		if err := s.putLocked(col, schema.Seed()); err != nil {
			return err
		}
	}
	return nil
}

// Get returns all records of a collection. It never fails: an absent or
// undecodable collection reads as empty, with corruption logged.
func (s *LocalStore) Get(col models.Collection) []models.Record {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.getLocked(col)
}

func (s *LocalStore) getLocked(col models.Collection) []models.Record {
	schema, err := schemaFor(col)
	if err != nil {
		s.log.Warn("read from unknown collection", zap.String("collection", string(col)))
		return []models.Record{}
	}
	data, err := s.kv.Get(collectionKey(col))
	if err != nil {
		s.log.Error("collection read failed",
			zap.String("collection", string(col)), zap.Error(err))
		return []models.Record{}
	}
	if data == nil {
		return []models.Record{}
	}
	records, err := schema.Decode(data)
	if err != nil {
		s.log.Error("collection payload corrupted",
			zap.String("collection", string(col)), zap.Error(err))
		return []models.Record{}
	}
	return records
}

// Put validates and replaces the full contents of a collection. A write
// exceeding the quota fails with ErrQuotaExceeded without touching the
// previous value, after a best-effort prune of old log records.
func (s *LocalStore) Put(col models.Collection, records []models.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.putLocked(col, records)
}

func (s *LocalStore) putLocked(col models.Collection, records []models.Record) error {
	schema, err := schemaFor(col)
	if err != nil {
		return err
	}
	for _, rec := range records {
		if err := schema.Check(rec); err != nil {
			return err
		}
	}

	data, err := json.Marshal(records)
	if err != nil {
		return fmt.Errorf("marshal %q: %w", col, err)
	}
	if s.opts.QuotaBytes > 0 && int64(len(data)) > s.opts.QuotaBytes {
		if pruned, err := s.pruneLogsLocked(); err != nil {
			s.log.Warn("log pruning failed", zap.Error(err))
		} else if pruned > 0 {
			s.log.Info("pruned old log records", zap.Int("pruned", pruned))
		}
		return fmt.Errorf("%w: %q needs %d bytes, quota %d",
			ErrQuotaExceeded, col, len(data), s.opts.QuotaBytes)
	}
	return s.kv.Set(collectionKey(col), data)
}

// UpsertRecord inserts or replaces a single record. Append-only collections
// reject duplicate IDs; log entries get a generated ID and timestamp when
// absent. Every other collection requires a caller-supplied ID.
func (s *LocalStore) UpsertRecord(col models.Collection, rec models.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	schema, err := schemaFor(col)
	if err != nil {
		return err
	}
	if schema.AutoID {
		if rec.RecordID() == "" {
			rec.SetRecordID(uuid.NewString())
		}
		if rec.Created().IsZero() {
			rec.SetCreated(time.Now().UTC())
		}
	} else if rec.RecordID() == "" {
		return fmt.Errorf("%w: record in %q has no id", ErrValidation, col)
	}
	if err := schema.Check(rec); err != nil {
		return err
	}

	records := s.getLocked(col)
	replaced := false
	for i, existing := range records {
		if existing.RecordID() != rec.RecordID() {
			continue
		}
		if schema.AppendOnly {
			return fmt.Errorf("%w: %q in %q", ErrDuplicateID, rec.RecordID(), col)
		}
		records[i] = rec
		replaced = true
		break
	}
	if !replaced {
		records = append(records, rec)
	}
	return s.putLocked(col, records)
}

// Reset clears a collection back to its seeded defaults.
func (s *LocalStore) Reset(col models.Collection) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	schema, err := schemaFor(col)
	if err != nil {
		return err
	}
	if err := s.kv.Delete(collectionKey(col)); err != nil {
		return err
	}
	if schema.Seed == nil {
		return nil
	}
	return s.putLocked(col, schema.Seed())
}

// PruneLogs drops log records older than the retention window and reports
// how many were removed.
func (s *LocalStore) PruneLogs() (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pruneLogsLocked()
}

func (s *LocalStore) pruneLogsLocked() (int, error) {
	if s.opts.LogRetention <= 0 {
		return 0, nil
	}
	records := s.getLocked(models.Logs)
	cutoff := time.Now().UTC().Add(-s.opts.LogRetention)
	kept := make([]models.Record, 0, len(records))
	for _, rec := range records {
		if rec.Created().Before(cutoff) {
			continue
		}
		kept = append(kept, rec)
	}
	pruned := len(records) - len(kept)
	if pruned == 0 {
		return 0, nil
	}
	data, err := json.Marshal(kept)
	if err != nil {
		return 0, fmt.Errorf("marshal pruned logs: %w", err)
	}
	if err := s.kv.Set(collectionKey(models.Logs), data); err != nil {
		return 0, err
	}
	return pruned, nil
}

// GetState reads an auxiliary state key (bundle set, sync queue log,
// preferences). A missing key reads as (nil, nil).
func (s *LocalStore) GetState(key string) ([]byte, error) {
	return s.kv.Get(statePrefix + key)
}

// PutState writes an auxiliary state key.
func (s *LocalStore) PutState(key string, value []byte) error {
	return s.kv.Set(statePrefix+key, value)
}

// PutStateTTL writes an auxiliary state key that expires after ttl.
func (s *LocalStore) PutStateTTL(key string, value []byte, ttl time.Duration) error {
	return s.kv.SetTTL(statePrefix+key, value, ttl)
}

// DeleteState removes an auxiliary state key.
func (s *LocalStore) DeleteState(key string) error {
	return s.kv.Delete(statePrefix + key)
}

// Close closes the underlying key-value area.
func (s *LocalStore) Close() error {
	return s.kv.Close()
}

func collectionKey(col models.Collection) string {
	return collectionPrefix + string(col)
}

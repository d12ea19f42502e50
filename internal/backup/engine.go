// Package backup builds, verifies and restores point-in-time bundles of the
// local collections, with optional gzip compression and authenticated
// encryption.
package backup

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/atinyakov/FitVault/internal/events"
	"github.com/atinyakov/FitVault/internal/keys"
	"github.com/atinyakov/FitVault/internal/models"
	"github.com/atinyakov/FitVault/internal/store"
)

var (
	// ErrNotFound indicates the requested bundle does not exist.
	ErrNotFound = errors.New("bundle not found")

	// ErrIntegrity indicates the stored payload does not match its
	// checksum. Always fatal to the restore attempt.
	ErrIntegrity = errors.New("bundle integrity check failed")

	// ErrBusy indicates a create or restore is already in flight.
	ErrBusy = errors.New("backup operation in progress")
)

// bundleSetKey is the store state key holding the rotating bundle set.
const bundleSetKey = "backups"

// Store is the slice of the local store the engine needs.
type Store interface {
	Get(col models.Collection) []models.Record
	Put(col models.Collection, records []models.Record) error
	GetState(key string) ([]byte, error)
	PutState(key string, value []byte) error
}

// Passphraser supplies the user passphrase for encrypted bundles.
type Passphraser interface {
	Passphrase(reason string) (string, error)
}

// CreateOptions selects what goes into a bundle.
type CreateOptions struct {
	// Domains to include; empty means all collections.
	Domains []models.Collection
	// Compress runs the payload through gzip. Best effort: a codec failure
	// falls back to uncompressed, recorded in metadata.
	Compress bool
	// Encrypt seals the payload with a passphrase-derived key.
	Encrypt bool
}

// RestoreMode selects how restored domains are applied.
type RestoreMode string

const (
	// Overwrite replaces each domain's contents wholesale.
	Overwrite RestoreMode = "overwrite"
	// Merge unions restored records with existing ones, de-duplicated by
	// record ID preferring the newer created_at.
	Merge RestoreMode = "merge"
)

// RestoreOptions selects how and what to restore.
type RestoreOptions struct {
	Mode RestoreMode
	// Domains to apply; empty means every domain the bundle carries.
	Domains []models.Collection
}

// Engine creates and restores bundles. Create and restore are mutually
// exclusive; overlapping calls fail with ErrBusy.
type Engine struct {
	store      Store
	keys       Passphraser
	bus        *events.Bus
	log        *zap.Logger
	maxBundles int

	mu   sync.Mutex
	busy bool
}

// NewEngine constructs an Engine. maxBundles caps the rotating local bundle
// set; zero or negative disables rotation.
func NewEngine(st Store, km Passphraser, bus *events.Bus, maxBundles int, log *zap.Logger) *Engine {
	return &Engine{store: st, keys: km, bus: bus, log: log, maxBundles: maxBundles}
}

// acquire flips the busy guard, publishing the state change under path.
func (e *Engine) acquire(path string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.busy {
		return ErrBusy
	}
	e.busy = true
	e.bus.Publish(path, true)
	return nil
}

func (e *Engine) release(path string) {
	e.mu.Lock()
	e.busy = false
	e.mu.Unlock()
	e.bus.Publish(path, false)
}

// Create builds a bundle from the requested collections and persists it into
// the rotating bundle set.
func (e *Engine) Create(opts CreateOptions) (*Bundle, error) {
	if err := e.acquire("backup.isCreating"); err != nil {
		return nil, err
	}
	defer e.release("backup.isCreating")

	domains := opts.Domains
	if len(domains) == 0 {
		domains = models.Collections
	}
	for _, col := range domains {
		if !models.Known(col) {
			return nil, fmt.Errorf("%w: %q", store.ErrUnknownCollection, col)
		}
	}

	body := make(payload, len(domains))
	for _, col := range domains {
		records := e.store.Get(col)
		raw, err := json.Marshal(records)
		if err != nil {
			return nil, fmt.Errorf("serialize %q: %w", col, err)
		}
		body[col] = raw
	}
	data, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("serialize bundle payload: %w", err)
	}

	meta := Metadata{
		ID:        uuid.NewString(),
		Timestamp: time.Now().UTC(),
		Domains:   domains,
	}

	if opts.Compress {
		compressed, err := compress(data)
		if err != nil {
			// Compression is an optimization, never a correctness
			// requirement.
			e.log.Warn("compression failed, storing uncompressed", zap.Error(err))
		} else {
			data = compressed
			meta.Compressed = true
			meta.CompressionFormat = CompressionGzip
		}
	}

	if opts.Encrypt {
		pass, err := e.keys.Passphrase("encrypt backup bundle")
		if err != nil {
			return nil, err
		}
		salt, err := keys.NewSalt()
		if err != nil {
			return nil, err
		}
		sealed, err := keys.Seal(keys.DeriveKey(pass, salt), data)
		if err != nil {
			return nil, err
		}
		data = sealed
		meta.Encrypted = true
		meta.CipherAlgorithm = keys.Algorithm
		meta.KDF = keys.KDF
		meta.Salt = base64.StdEncoding.EncodeToString(salt)
	}

	meta.ChecksumAlgo = ChecksumSHA256
	meta.Checksum, err = checksum(meta.ChecksumAlgo, data)
	if err != nil {
		return nil, err
	}

	bundle := &Bundle{Metadata: meta, Data: data}
	if err := e.saveBundle(bundle); err != nil {
		return nil, err
	}

	e.log.Info("backup bundle created",
		zap.String("id", meta.ID),
		zap.Bool("compressed", meta.Compressed),
		zap.Bool("encrypted", meta.Encrypted),
		zap.Int("size", len(data)))
	e.bus.Publish("backup.lastCreated", meta.ID)
	return bundle, nil
}

// Restore applies a stored bundle back into the local store. The checksum is
// verified before decryption or decompression is attempted; any step failure
// aborts the whole restore. Domains already applied at the point of a later
// failure keep the restored data; domains not yet touched keep their prior
// state, and the operation as a whole reports failure.
func (e *Engine) Restore(bundleID string, opts RestoreOptions) error {
	if err := e.acquire("backup.isRestoring"); err != nil {
		return err
	}
	defer e.release("backup.isRestoring")

	set, err := e.loadSet()
	if err != nil {
		return err
	}
	bundle, ok := set[bundleID]
	if !ok {
		return fmt.Errorf("%w: %q", ErrNotFound, bundleID)
	}

	body, err := e.openPayload(&bundle)
	if err != nil {
		return err
	}

	domains := opts.Domains
	if len(domains) == 0 {
		domains = bundle.Metadata.Domains
	}
	for _, col := range domains {
		raw, ok := body[col]
		if !ok {
			return fmt.Errorf("%w: domain %q not in bundle %q", ErrNotFound, col, bundleID)
		}
		incoming, err := store.DecodeRecords(col, raw)
		if err != nil {
			return fmt.Errorf("decode %q from bundle: %w", col, err)
		}

		records := incoming
		if opts.Mode == Merge {
			records = mergeRecords(e.store.Get(col), incoming)
		}
		if err := e.store.Put(col, records); err != nil {
			return fmt.Errorf("apply %q: %w", col, err)
		}
	}

	e.log.Info("backup bundle restored",
		zap.String("id", bundleID), zap.String("mode", string(opts.Mode)))
	return nil
}

// openPayload verifies a bundle's checksum and unwinds encryption and
// compression, returning the plaintext domain payload. The checksum is
// always checked first; a mismatch fails before any decrypt attempt.
func (e *Engine) openPayload(b *Bundle) (payload, error) {
	if err := verifyChecksum(b); err != nil {
		return nil, err
	}

	data := b.Data
	if b.Metadata.Encrypted {
		pass, err := e.keys.Passphrase("decrypt backup bundle")
		if err != nil {
			return nil, err
		}
		salt, err := base64.StdEncoding.DecodeString(b.Metadata.Salt)
		if err != nil {
			return nil, fmt.Errorf("decode bundle salt: %w", err)
		}
		data, err = keys.Open(keys.DeriveKey(pass, salt), data)
		if err != nil {
			return nil, err
		}
	}
	if b.Metadata.Compressed {
		var err error
		data, err = decompress(data)
		if err != nil {
			return nil, err
		}
	}

	var body payload
	if err := json.Unmarshal(data, &body); err != nil {
		return nil, fmt.Errorf("parse bundle payload: %w", err)
	}
	return body, nil
}

// mergeRecords unions existing and incoming records, de-duplicating by ID.
// On an ID collision the record with the newer created_at wins; ties go to
// the incoming record (last write wins).
func mergeRecords(existing, incoming []models.Record) []models.Record {
	out := make([]models.Record, 0, len(existing)+len(incoming))
	index := make(map[string]int, len(existing))
	for _, rec := range existing {
		index[rec.RecordID()] = len(out)
		out = append(out, rec)
	}
	for _, rec := range incoming {
		i, ok := index[rec.RecordID()]
		if !ok {
			index[rec.RecordID()] = len(out)
			out = append(out, rec)
			continue
		}
		if !rec.Created().Before(out[i].Created()) {
			out[i] = rec
		}
	}
	return out
}

// List returns metadata of all stored bundles, newest first.
func (e *Engine) List() ([]Metadata, error) {
	set, err := e.loadSet()
	if err != nil {
		return nil, err
	}
	metas := make([]Metadata, 0, len(set))
	for _, b := range set {
		metas = append(metas, b.Metadata)
	}
	sort.Slice(metas, func(i, j int) bool {
		return metas[i].Timestamp.After(metas[j].Timestamp)
	})
	return metas, nil
}

// Delete removes a bundle from the set.
func (e *Engine) Delete(bundleID string) error {
	set, err := e.loadSet()
	if err != nil {
		return err
	}
	if _, ok := set[bundleID]; !ok {
		return fmt.Errorf("%w: %q", ErrNotFound, bundleID)
	}
	delete(set, bundleID)
	return e.saveSet(set)
}

// saveBundle persists a bundle into the rotating set, evicting the oldest
// bundles beyond the cap. Eviction orders by creation time, not insertion
// order, since imported bundles can predate exported ones.
func (e *Engine) saveBundle(b *Bundle) error {
	set, err := e.loadSet()
	if err != nil {
		return err
	}
	set[b.Metadata.ID] = *b

	if e.maxBundles > 0 && len(set) > e.maxBundles {
		metas := make([]Metadata, 0, len(set))
		for _, stored := range set {
			metas = append(metas, stored.Metadata)
		}
		sort.Slice(metas, func(i, j int) bool {
			return metas[i].Timestamp.Before(metas[j].Timestamp)
		})
		for _, meta := range metas[:len(set)-e.maxBundles] {
			delete(set, meta.ID)
			e.log.Info("evicted old backup bundle", zap.String("id", meta.ID))
		}
	}
	return e.saveSet(set)
}

func (e *Engine) loadSet() (map[string]Bundle, error) {
	data, err := e.store.GetState(bundleSetKey)
	if err != nil {
		return nil, fmt.Errorf("load bundle set: %w", err)
	}
	set := make(map[string]Bundle)
	if len(data) == 0 {
		return set, nil
	}
	if err := json.Unmarshal(data, &set); err != nil {
		return nil, fmt.Errorf("parse bundle set: %w", err)
	}
	return set, nil
}

func (e *Engine) saveSet(set map[string]Bundle) error {
	data, err := json.Marshal(set)
	if err != nil {
		return fmt.Errorf("serialize bundle set: %w", err)
	}
	if err := e.store.PutState(bundleSetKey, data); err != nil {
		return fmt.Errorf("save bundle set: %w", err)
	}
	return nil
}

// Package keys manages passphrase-derived key material: PBKDF2 derivation,
// a session-scoped passphrase cache and AES-GCM seal/open helpers.
package keys

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/crypto/pbkdf2"
)

const (
	// Iterations is the fixed PBKDF2-SHA256 iteration count.
	Iterations = 310000
	// KeyLength is the derived key size in bytes (AES-256).
	KeyLength = 32
	// SaltLength is the random salt size in bytes.
	SaltLength = 16

	// Algorithm identifies the cipher recorded in bundle metadata.
	Algorithm = "aes-256-gcm"
	// KDF identifies the key derivation function recorded in bundle metadata.
	KDF = "pbkdf2-sha256"

	rememberKey   = "prefs/remember-passphrase"
	sessionKey    = "session/passphrase"
	sessionExpiry = 12 * time.Hour
)

var (
	// ErrPassphraseMissing indicates the user declined or failed to provide
	// a passphrase when one was required.
	ErrPassphraseMissing = errors.New("passphrase missing")

	// ErrCryptoUnavailable indicates the cipher primitives could not be set
	// up; callers must fail loudly, never degrade to plaintext.
	ErrCryptoUnavailable = errors.New("crypto unavailable")

	// ErrDecryption indicates authenticated decryption failed (wrong
	// passphrase or corrupted ciphertext).
	ErrDecryption = errors.New("decryption failed")
)

// PromptFunc asks the user for a passphrase, with a human-readable reason.
// An empty passphrase with a nil error is treated as declined.
type PromptFunc func(reason string) (string, error)

// SessionStore persists the remember preference and the session-scoped
// passphrase cache. *store.LocalStore satisfies it.
type SessionStore interface {
	GetState(key string) ([]byte, error)
	PutState(key string, value []byte) error
	PutStateTTL(key string, value []byte, ttl time.Duration) error
	DeleteState(key string) error
}

// Manager derives and caches symmetric key material from a user passphrase.
type Manager struct {
	prompt PromptFunc
	store  SessionStore
	log    *zap.Logger

	mu     sync.Mutex
	cached string
}

// NewManager constructs a Manager. prompt is invoked whenever no cached
// passphrase is available.
func NewManager(prompt PromptFunc, store SessionStore, log *zap.Logger) *Manager {
	return &Manager{prompt: prompt, store: store, log: log}
}

// Passphrase returns the passphrase for the current session, prompting the
// user if none is cached. With the remember preference enabled the
// passphrase is also kept under a TTL-scoped storage key, never durably.
func (m *Manager) Passphrase(reason string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.cached != "" {
		return m.cached, nil
	}

	if m.rememberEnabled() {
		if data, err := m.store.GetState(sessionKey); err == nil && len(data) > 0 {
			m.cached = string(data)
			return m.cached, nil
		}
	}

	if m.prompt == nil {
		return "", ErrPassphraseMissing
	}
	pass, err := m.prompt(reason)
	if err != nil {
		return "", fmt.Errorf("passphrase prompt: %w", err)
	}
	if pass == "" {
		return "", ErrPassphraseMissing
	}
	m.cached = pass

	if m.rememberEnabled() {
		if err := m.store.PutStateTTL(sessionKey, []byte(pass), sessionExpiry); err != nil {
			m.log.Warn("failed to cache session passphrase", zap.Error(err))
		}
	}
	return pass, nil
}

// SetRemember toggles the remember preference. Disabling it also drops any
// cached session passphrase from storage.
func (m *Manager) SetRemember(remember bool) error {
	val := []byte("0")
	if remember {
		val = []byte("1")
	}
	if err := m.store.PutState(rememberKey, val); err != nil {
		return fmt.Errorf("persist remember preference: %w", err)
	}
	if !remember {
		if err := m.store.DeleteState(sessionKey); err != nil {
			return fmt.Errorf("drop session passphrase: %w", err)
		}
	}
	return nil
}

// Forget drops the in-memory and session-scoped passphrase cache.
func (m *Manager) Forget() {
	m.mu.Lock()
	m.cached = ""
	m.mu.Unlock()
	if err := m.store.DeleteState(sessionKey); err != nil {
		m.log.Warn("failed to drop session passphrase", zap.Error(err))
	}
}

func (m *Manager) rememberEnabled() bool {
	data, err := m.store.GetState(rememberKey)
	return err == nil && string(data) == "1"
}

// DeriveKey derives key material from a passphrase and salt. Deterministic
// for identical inputs.
func DeriveKey(passphrase string, salt []byte) []byte {
	return pbkdf2.Key([]byte(passphrase), salt, Iterations, KeyLength, sha256.New)
}

// NewSalt returns a fresh random salt.
func NewSalt() ([]byte, error) {
	salt := make([]byte, SaltLength)
	if _, err := io.ReadFull(rand.Reader, salt); err != nil {
		return nil, fmt.Errorf("%w: generate salt: %v", ErrCryptoUnavailable, err)
	}
	return salt, nil
}

// Seal encrypts plaintext with AES-256-GCM under key. The returned
// ciphertext is nonce||ct.
func Seal(key, plaintext []byte) ([]byte, error) {
	aead, err := newAEAD(key)
	if err != nil {
		return nil, err
	}
	nonce := make([]byte, aead.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, fmt.Errorf("%w: generate nonce: %v", ErrCryptoUnavailable, err)
	}
	return aead.Seal(nonce, nonce, plaintext, nil), nil
}

// Open decrypts a nonce||ct ciphertext produced by Seal.
func Open(key, ciphertext []byte) ([]byte, error) {
	aead, err := newAEAD(key)
	if err != nil {
		return nil, err
	}
	if len(ciphertext) < aead.NonceSize() {
		return nil, ErrDecryption
	}
	nonce := ciphertext[:aead.NonceSize()]
	plain, err := aead.Open(nil, nonce, ciphertext[aead.NonceSize():], nil)
	if err != nil {
		return nil, ErrDecryption
	}
	return plain, nil
}

func newAEAD(key []byte) (cipher.AEAD, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("%w: create cipher: %v", ErrCryptoUnavailable, err)
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("%w: create AEAD: %v", ErrCryptoUnavailable, err)
	}
	return aead, nil
}

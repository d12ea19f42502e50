package keys

import (
	"bytes"
	"errors"
	"testing"
	"time"

	"go.uber.org/zap"
)

// memStore is an in-memory SessionStore for tests.
type memStore struct {
	data map[string][]byte
}

func newMemStore() *memStore {
	return &memStore{data: map[string][]byte{}}
}

func (m *memStore) GetState(key string) ([]byte, error) {
	return m.data[key], nil
}
func (m *memStore) PutState(key string, value []byte) error {
	m.data[key] = value
	return nil
}
func (m *memStore) PutStateTTL(key string, value []byte, _ time.Duration) error {
	m.data[key] = value
	return nil
}
func (m *memStore) DeleteState(key string) error {
	delete(m.data, key)
	return nil
}

func TestDeriveKey_Deterministic(t *testing.T) {
	salt := []byte("0123456789abcdef")
	k1 := DeriveKey("correct horse", salt)
	k2 := DeriveKey("correct horse", salt)
	if !bytes.Equal(k1, k2) {
		t.Error("same passphrase and salt must derive the same key")
	}
	if len(k1) != KeyLength {
		t.Errorf("expected %d-byte key, got %d", KeyLength, len(k1))
	}

	other, err := NewSalt()
	if err != nil {
		t.Fatalf("NewSalt failed: %v", err)
	}
	if bytes.Equal(k1, DeriveKey("correct horse", other)) {
		t.Error("different salt must derive a different key")
	}
	if bytes.Equal(k1, DeriveKey("wrong horse", salt)) {
		t.Error("different passphrase must derive a different key")
	}
}

func TestSealOpen_RoundTrip(t *testing.T) {
	salt, _ := NewSalt()
	key := DeriveKey("pass", salt)
	plain := []byte("workout data")

	ct, err := Seal(key, plain)
	if err != nil {
		t.Fatalf("Seal failed: %v", err)
	}
	if bytes.Contains(ct, plain) {
		t.Error("ciphertext contains plaintext")
	}

	got, err := Open(key, ct)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	if !bytes.Equal(got, plain) {
		t.Errorf("round trip changed data: %q", got)
	}
}

func TestOpen_WrongKeyFails(t *testing.T) {
	salt, _ := NewSalt()
	ct, err := Seal(DeriveKey("right", salt), []byte("data"))
	if err != nil {
		t.Fatalf("Seal failed: %v", err)
	}
	if _, err := Open(DeriveKey("wrong", salt), ct); !errors.Is(err, ErrDecryption) {
		t.Fatalf("expected ErrDecryption, got %v", err)
	}
}

func TestOpen_TruncatedCiphertext(t *testing.T) {
	salt, _ := NewSalt()
	if _, err := Open(DeriveKey("p", salt), []byte("short")); !errors.Is(err, ErrDecryption) {
		t.Fatalf("expected ErrDecryption, got %v", err)
	}
}

func TestPassphrase_PromptedOnceThenCached(t *testing.T) {
	prompts := 0
	m := NewManager(func(string) (string, error) {
		prompts++
		return "hunter2", nil
	}, newMemStore(), zap.NewNop())

	for i := 0; i < 3; i++ {
		pass, err := m.Passphrase("test")
		if err != nil {
			t.Fatalf("Passphrase failed: %v", err)
		}
		if pass != "hunter2" {
			t.Errorf("unexpected passphrase %q", pass)
		}
	}
	if prompts != 1 {
		t.Errorf("expected one prompt, got %d", prompts)
	}
}

func TestPassphrase_DeclinedIsMissing(t *testing.T) {
	m := NewManager(func(string) (string, error) {
		return "", nil
	}, newMemStore(), zap.NewNop())

	if _, err := m.Passphrase("test"); !errors.Is(err, ErrPassphraseMissing) {
		t.Fatalf("expected ErrPassphraseMissing, got %v", err)
	}
}

func TestPassphrase_RememberedAcrossManagers(t *testing.T) {
	st := newMemStore()

	first := NewManager(func(string) (string, error) { return "hunter2", nil }, st, zap.NewNop())
	if err := first.SetRemember(true); err != nil {
		t.Fatalf("SetRemember failed: %v", err)
	}
	if _, err := first.Passphrase("test"); err != nil {
		t.Fatalf("Passphrase failed: %v", err)
	}

	// A second manager with no prompt must find the session-scoped copy.
	second := NewManager(nil, st, zap.NewNop())
	pass, err := second.Passphrase("test")
	if err != nil {
		t.Fatalf("Passphrase failed: %v", err)
	}
	if pass != "hunter2" {
		t.Errorf("unexpected passphrase %q", pass)
	}

	// Disabling remember drops the stored copy.
	if err := second.SetRemember(false); err != nil {
		t.Fatalf("SetRemember failed: %v", err)
	}
	third := NewManager(nil, st, zap.NewNop())
	if _, err := third.Passphrase("test"); !errors.Is(err, ErrPassphraseMissing) {
		t.Fatalf("expected ErrPassphraseMissing after forget, got %v", err)
	}
}

func TestForget_DropsCache(t *testing.T) {
	prompts := 0
	m := NewManager(func(string) (string, error) {
		prompts++
		return "hunter2", nil
	}, newMemStore(), zap.NewNop())

	if _, err := m.Passphrase("test"); err != nil {
		t.Fatalf("Passphrase failed: %v", err)
	}
	m.Forget()
	if _, err := m.Passphrase("test"); err != nil {
		t.Fatalf("Passphrase failed: %v", err)
	}
	if prompts != 2 {
		t.Errorf("expected re-prompt after Forget, got %d prompts", prompts)
	}
}

package credential

import (
	"context"
	"errors"
	"testing"

	"github.com/yegors/co-translate/pkg/logger"
)

type memoryStore struct {
	values map[string]string
	reads  int
	writes int
}

func newMemoryStore() *memoryStore {
	return &memoryStore{values: map[string]string{}}
}

func (m *memoryStore) GetSetting(_ context.Context, key string) (string, bool, error) {
	m.reads++
	v, ok := m.values[key]
	return v, ok, nil
}

func (m *memoryStore) PutSetting(_ context.Context, key, value string) error {
	m.writes++
	m.values[key] = value
	return nil
}

// TestCredentialSeedsEmptyStore writes the configured default on first access.
func TestCredentialSeedsEmptyStore(t *testing.T) {
	store := newMemoryStore()
	p := NewProvider(store, "gsk_default", logger.NewNop())

	got, err := p.Credential(context.Background())
	if err != nil {
		t.Fatalf("Credential() error = %v", err)
	}
	if got != "gsk_default" {
		t.Fatalf("Credential() = %q, want gsk_default", got)
	}
	if store.values[Key] != "gsk_default" {
		t.Fatalf("stored = %q, want gsk_default", store.values[Key])
	}

	// Memoised: no more store traffic
	if _, err := p.Credential(context.Background()); err != nil {
		t.Fatalf("second Credential() error = %v", err)
	}
	if store.reads != 1 || store.writes != 1 {
		t.Fatalf("reads/writes = %d/%d, want 1/1", store.reads, store.writes)
	}
}

// TestCredentialPrefersStoredValue keeps a previously stored token over the default.
func TestCredentialPrefersStoredValue(t *testing.T) {
	store := newMemoryStore()
	store.values[Key] = "gsk_stored"
	p := NewProvider(store, "gsk_default", logger.NewNop())

	got, err := p.Credential(context.Background())
	if err != nil || got != "gsk_stored" {
		t.Fatalf("Credential() = %q, %v, want gsk_stored", got, err)
	}
	if store.writes != 0 {
		t.Fatalf("writes = %d, want 0", store.writes)
	}
}

// TestCredentialMissing reports ErrNoCredential without writing.
func TestCredentialMissing(t *testing.T) {
	store := newMemoryStore()
	p := NewProvider(store, "  ", logger.NewNop())

	if _, err := p.Credential(context.Background()); !errors.Is(err, ErrNoCredential) {
		t.Fatalf("Credential() error = %v, want ErrNoCredential", err)
	}
	if store.writes != 0 {
		t.Fatalf("writes = %d, want 0", store.writes)
	}
}

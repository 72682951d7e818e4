package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"time"

	"parss/internal/domain"
)

// Storage keys of the persisted session.
const (
	KeyAccessToken  = "parss.access_token"
	KeyRefreshToken = "parss.refresh_token"
	KeyUser         = "parss.user"
	KeyExpiresAt    = "parss.expires_at"
)

// Store is a small key/value store for session data, standing in for browser
// storage or a mobile keychain.
type Store interface {
	Get(key string) (string, bool, error)
	Set(values map[string]string) error
	Delete(keys ...string) error
}

// MemoryStore keeps values in process memory.
type MemoryStore struct {
	mu     sync.Mutex
	values map[string]string
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{values: make(map[string]string)}
}

func (m *MemoryStore) Get(key string) (string, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.values[key]
	return v, ok, nil
}

func (m *MemoryStore) Set(values map[string]string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for k, v := range values {
		m.values[k] = v
	}
	return nil
}

func (m *MemoryStore) Delete(keys ...string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, k := range keys {
		delete(m.values, k)
	}
	return nil
}

// FileStore persists values as a JSON object in a file readable only by the
// owner. Writes replace the file atomically.
type FileStore struct {
	mu   sync.Mutex
	path string
}

// NewFileStore returns a store backed by path. The file is created on first write.
func NewFileStore(path string) *FileStore {
	return &FileStore{path: path}
}

// DefaultCredentialsPath is the per-user credentials file location.
func DefaultCredentialsPath() (string, error) {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("locating config dir: %w", err)
	}
	return filepath.Join(dir, "parss", "credentials.json"), nil
}

func (f *FileStore) Get(key string) (string, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	values, err := f.read()
	if err != nil {
		return "", false, err
	}
	v, ok := values[key]
	return v, ok, nil
}

func (f *FileStore) Set(values map[string]string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	current, err := f.read()
	if err != nil {
		return err
	}
	for k, v := range values {
		current[k] = v
	}
	return f.write(current)
}

func (f *FileStore) Delete(keys ...string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	current, err := f.read()
	if err != nil {
		return err
	}
	for _, k := range keys {
		delete(current, k)
	}
	if len(current) == 0 {
		if err := os.Remove(f.path); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("removing credentials file: %w", err)
		}
		return nil
	}
	return f.write(current)
}

func (f *FileStore) read() (map[string]string, error) {
	data, err := os.ReadFile(f.path)
	if errors.Is(err, fs.ErrNotExist) {
		return make(map[string]string), nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading credentials file: %w", err)
	}
	values := make(map[string]string)
	if len(data) == 0 {
		return values, nil
	}
	if err := json.Unmarshal(data, &values); err != nil {
		return nil, fmt.Errorf("decoding credentials file: %w", err)
	}
	return values, nil
}

func (f *FileStore) write(values map[string]string) error {
	data, err := json.MarshalIndent(values, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding credentials: %w", err)
	}
	dir := filepath.Dir(f.path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("creating credentials dir: %w", err)
	}
	tmp, err := os.CreateTemp(dir, ".credentials-*")
	if err != nil {
		return fmt.Errorf("creating temp credentials file: %w", err)
	}
	defer os.Remove(tmp.Name())
	if err := tmp.Chmod(0o600); err != nil {
		tmp.Close()
		return fmt.Errorf("restricting credentials file: %w", err)
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("writing credentials: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("writing credentials: %w", err)
	}
	if err := os.Rename(tmp.Name(), f.path); err != nil {
		return fmt.Errorf("replacing credentials file: %w", err)
	}
	return nil
}

func saveCredentials(store Store, cred domain.Credential, p domain.Principal) error {
	user, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("encoding user: %w", err)
	}
	values := map[string]string{
		KeyAccessToken:  cred.AccessToken,
		KeyRefreshToken: cred.RefreshToken,
		KeyUser:         string(user),
	}
	if cred.ExpiresAt.IsZero() {
		if err := store.Delete(KeyExpiresAt); err != nil {
			return err
		}
	} else {
		values[KeyExpiresAt] = cred.ExpiresAt.UTC().Format(time.RFC3339)
	}
	return store.Set(values)
}

func clearCredentials(store Store) error {
	return store.Delete(KeyAccessToken, KeyRefreshToken, KeyUser, KeyExpiresAt)
}

func loadCredentials(_ context.Context, store Store) (domain.Credential, domain.Principal, error) {
	access, ok, err := store.Get(KeyAccessToken)
	if err != nil {
		return domain.Credential{}, domain.Principal{}, err
	}
	if !ok || access == "" {
		return domain.Credential{}, domain.Principal{}, ErrNoStoredSession
	}
	refresh, _, err := store.Get(KeyRefreshToken)
	if err != nil {
		return domain.Credential{}, domain.Principal{}, err
	}
	raw, ok, err := store.Get(KeyUser)
	if err != nil {
		return domain.Credential{}, domain.Principal{}, err
	}
	if !ok {
		return domain.Credential{}, domain.Principal{}, ErrNoStoredSession
	}
	var p domain.Principal
	if err := json.Unmarshal([]byte(raw), &p); err != nil || p.ID == "" {
		return domain.Credential{}, domain.Principal{}, fmt.Errorf("%w: stored user is unreadable", ErrNoStoredSession)
	}
	cred := domain.Credential{
		AccessToken:  access,
		RefreshToken: refresh,
		TokenType:    "Bearer",
	}
	// A missing or unreadable expiry leaves the credential undated.
	if rawExp, ok, err := store.Get(KeyExpiresAt); err != nil {
		return domain.Credential{}, domain.Principal{}, err
	} else if ok {
		if exp, perr := time.Parse(time.RFC3339, rawExp); perr == nil {
			cred.ExpiresAt = exp
			cred.ExpiresIn = max(int(time.Until(exp).Seconds()), 0)
		}
	}
	return cred, p, nil
}

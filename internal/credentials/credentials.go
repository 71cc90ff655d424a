// Package credentials stores rewrite API keys, keyed by LLM model id.
package credentials

import (
	"errors"
	"fmt"
	"sync"

	"github.com/zalando/go-keyring"
)

// ErrNotFound is returned by Get when no key is stored.
var ErrNotFound = errors.New("credentials: not found")

// Store gets, sets and deletes secrets by key.
type Store interface {
	Get(key string) (string, error)
	Set(key, secret string) error
	Delete(key string) error
}

// Keyring stores secrets in the OS keyring under Service.
type Keyring struct {
	Service string
}

// Get implements Store.
func (k Keyring) Get(key string) (string, error) {
	secret, err := keyring.Get(k.Service, key)
	if errors.Is(err, keyring.ErrNotFound) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("credentials: read %s: %w", key, err)
	}
	return secret, nil
}

// Set implements Store.
func (k Keyring) Set(key, secret string) error {
	if err := keyring.Set(k.Service, key, secret); err != nil {
		return fmt.Errorf("credentials: store %s: %w", key, err)
	}
	return nil
}

// Delete implements Store. Deleting a missing key is not an error.
func (k Keyring) Delete(key string) error {
	err := keyring.Delete(k.Service, key)
	if err != nil && !errors.Is(err, keyring.ErrNotFound) {
		return fmt.Errorf("credentials: delete %s: %w", key, err)
	}
	return nil
}

// Memory is an in-process Store.
type Memory struct {
	mu      sync.Mutex
	secrets map[string]string
}

// NewMemory returns an empty Memory store.
func NewMemory() *Memory {
	return &Memory{secrets: make(map[string]string)}
}

func (m *Memory) Get(key string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.secrets[key]
	if !ok {
		return "", ErrNotFound
	}
	return s, nil
}

func (m *Memory) Set(key, secret string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.secrets[key] = secret
	return nil
}

func (m *Memory) Delete(key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.secrets, key)
	return nil
}

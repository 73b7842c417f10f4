// Package kvtest provides an in-memory kv.KV for tests.
package kvtest

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/colonyops/triage/internal/core/kv"
)

type entry struct {
	data      []byte
	expiresAt time.Time
}

// Store is an in-memory kv.KV. The zero value is not usable; call New.
type Store struct {
	mu   sync.Mutex
	data map[string]entry

	// FailAll makes every call return an error, for default-on-failure tests.
	FailAll bool
}

var _ kv.KV = (*Store)(nil)

// New creates an empty in-memory store.
func New() *Store {
	return &Store{data: make(map[string]entry)}
}

func (s *Store) Get(_ context.Context, key string, dest any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.FailAll {
		return fmt.Errorf("kvtest: forced failure")
	}
	e, ok := s.data[key]
	if !ok || (!e.expiresAt.IsZero() && time.Now().After(e.expiresAt)) {
		return fmt.Errorf("kvtest get %q: %w", key, sql.ErrNoRows)
	}
	return json.Unmarshal(e.data, dest)
}

func (s *Store) Set(_ context.Context, key string, value any) error {
	return s.put(key, value, time.Time{})
}

func (s *Store) SetTTL(_ context.Context, key string, value any, ttl time.Duration) error {
	return s.put(key, value, time.Now().Add(ttl))
}

func (s *Store) put(key string, value any, expiresAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.FailAll {
		return fmt.Errorf("kvtest: forced failure")
	}
	data, err := json.Marshal(value)
	if err != nil {
		return err
	}
	s.data[key] = entry{data: data, expiresAt: expiresAt}
	return nil
}

func (s *Store) Delete(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.FailAll {
		return fmt.Errorf("kvtest: forced failure")
	}
	delete(s.data, key)
	return nil
}

func (s *Store) Has(_ context.Context, key string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.FailAll {
		return false, fmt.Errorf("kvtest: forced failure")
	}
	e, ok := s.data[key]
	if !ok || (!e.expiresAt.IsZero() && time.Now().After(e.expiresAt)) {
		return false, nil
	}
	return true, nil
}

// Package token persists the service credential. Every store replaces the
// whole credential in a single write, so a concurrent reader observes either
// the previous or the new value.
package token

import (
	"context"
	"encoding/json"
	"fmt"
	"sync/atomic"
	"time"

	"idPhoto/client/models"
)

type Store interface {
	// Load returns nil, nil when no credential is stored.
	Load(ctx context.Context) (*models.Credential, error)
	Save(ctx context.Context, cred models.Credential) error
	Clear(ctx context.Context) error
}

// record is the persisted shape; expiry is epoch milliseconds.
type record struct {
	Token  string `json:"token"`
	Expiry int64  `json:"expiry"`
}

func encode(cred models.Credential) ([]byte, error) {
	data, err := json.Marshal(record{Token: cred.Token, Expiry: cred.ExpiresAt.UnixMilli()})
	if err != nil {
		return nil, fmt.Errorf("encode credential: %w", err)
	}
	return data, nil
}

func decode(data []byte) (*models.Credential, error) {
	var rec record
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("decode credential: %w", err)
	}
	if rec.Token == "" {
		return nil, fmt.Errorf("decode credential: empty token")
	}
	return &models.Credential{Token: rec.Token, ExpiresAt: time.UnixMilli(rec.Expiry)}, nil
}

type MemoryStore struct {
	current atomic.Pointer[models.Credential]
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

func (s *MemoryStore) Load(_ context.Context) (*models.Credential, error) {
	cred := s.current.Load()
	if cred == nil {
		return nil, nil
	}
	c := *cred
	return &c, nil
}

func (s *MemoryStore) Save(_ context.Context, cred models.Credential) error {
	s.current.Store(&cred)
	return nil
}

func (s *MemoryStore) Clear(_ context.Context) error {
	s.current.Store(nil)
	return nil
}

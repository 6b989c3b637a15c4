package blob

import (
	"context"
	"fmt"
	"sync"
)

// MemStore is an in-memory Store for tests.
type MemStore struct {
	mu    sync.RWMutex
	blobs map[string]Object
}

// NewMemStore creates an empty in-memory store.
func NewMemStore() *MemStore {
	return &MemStore{blobs: make(map[string]Object)}
}

// Put stores data under the ref's key.
func (s *MemStore) Put(ref Ref, data []byte, mimeType string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.blobs[ref.key()] = Object{Data: data, Path: ref.key(), MIMEType: mimeType}
}

// Fetch returns a stored blob.
func (s *MemStore) Fetch(ctx context.Context, ref Ref) (*Object, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	obj, ok := s.blobs[ref.key()]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, ref.key())
	}
	out := obj
	out.Data = append([]byte(nil), obj.Data...)
	return &out, nil
}

var _ Store = (*MemStore)(nil)

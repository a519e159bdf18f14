// Package storagetest provides a storage.Store whose operations can be
// made to fail, for tests of code built on the storage adapter.
package storagetest

import (
	"context"
	"errors"
	"sync"

	"github.com/KretovDmitry/nairabulk-orders/internal/storage"
	"github.com/KretovDmitry/nairabulk-orders/internal/storage/memory"
)

// Operation names accepted by Fail.
const (
	OpGet      = "get"
	OpPut      = "put"
	OpDelete   = "delete"
	OpList     = "list"
	OpUpload   = "upload"
	OpDownload = "download"
)

// ErrInjected is returned by operations made to fail without an explicit error.
var ErrInjected = errors.New("injected storage failure")

// Store wraps a memory store, failing selected operations and recording calls.
type Store struct {
	*memory.Store

	mu       sync.Mutex
	failures map[string]map[string]error // op -> key ("" = any) -> error
	calls    []Call
}

// Call is one recorded operation.
type Call struct {
	Op  string
	Key string
}

func New() *Store {
	return &Store{Store: memory.New(), failures: make(map[string]map[string]error)}
}

var _ storage.Store = (*Store)(nil)

// Fail makes op fail for key, or for every key when key is empty.
// A nil err means ErrInjected.
func (s *Store) Fail(op, key string, err error) {
	if err == nil {
		err = ErrInjected
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failures[op] == nil {
		s.failures[op] = make(map[string]error)
	}
	s.failures[op][key] = err
}

// Heal removes every injected failure.
func (s *Store) Heal() {
	s.mu.Lock()
	s.failures = make(map[string]map[string]error)
	s.mu.Unlock()
}

// Calls returns the recorded operations with the given name.
func (s *Store) Calls(op string) []Call {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Call, 0)
	for _, c := range s.calls {
		if c.Op == op {
			out = append(out, c)
		}
	}
	return out
}

func (s *Store) check(op, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, Call{Op: op, Key: key})
	if err, ok := s.failures[op][key]; ok {
		return err
	}
	if err, ok := s.failures[op][""]; ok {
		return err
	}
	return nil
}

func (s *Store) Get(ctx context.Context, key string) ([]byte, error) {
	if err := s.check(OpGet, key); err != nil {
		return nil, err
	}
	return s.Store.Get(ctx, key)
}

func (s *Store) Put(ctx context.Context, key string, value []byte) error {
	if err := s.check(OpPut, key); err != nil {
		return err
	}
	return s.Store.Put(ctx, key, value)
}

func (s *Store) Delete(ctx context.Context, key string) error {
	if err := s.check(OpDelete, key); err != nil {
		return err
	}
	return s.Store.Delete(ctx, key)
}

func (s *Store) List(ctx context.Context, prefix string) ([]string, error) {
	if err := s.check(OpList, prefix); err != nil {
		return nil, err
	}
	return s.Store.List(ctx, prefix)
}

func (s *Store) Upload(ctx context.Context, key string, a *storage.Attachment) (string, error) {
	if err := s.check(OpUpload, key); err != nil {
		return "", err
	}
	return s.Store.Upload(ctx, key, a)
}

// UploadNew shares the "upload" failure switch with Upload.
func (s *Store) UploadNew(ctx context.Context, key string, a *storage.Attachment) (string, error) {
	if err := s.check(OpUpload, key); err != nil {
		return "", err
	}
	return s.Store.UploadNew(ctx, key, a)
}

func (s *Store) Download(ctx context.Context, key string) (*storage.Attachment, error) {
	if err := s.check(OpDownload, key); err != nil {
		return nil, err
	}
	return s.Store.Download(ctx, key)
}

// Package memory keeps records and attachments in process memory.
// Attachment locators are data URIs embedding the bytes.
package memory

import (
	"context"
	"encoding/base64"
	"sort"
	"strings"
	"sync"

	"github.com/KretovDmitry/nairabulk-orders/internal/models/errs"
	"github.com/KretovDmitry/nairabulk-orders/internal/storage"
)

type Store struct {
	mu          sync.RWMutex
	records     map[string][]byte
	attachments map[string]storage.Attachment
}

func New() *Store {
	return &Store{
		records:     make(map[string][]byte),
		attachments: make(map[string]storage.Attachment),
	}
}

var _ storage.Store = (*Store)(nil)

func (s *Store) Get(_ context.Context, key string) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	v, ok := s.records[key]
	if !ok {
		return nil, errs.ErrNotFound
	}

	return clone(v), nil
}

func (s *Store) Put(_ context.Context, key string, value []byte) error {
	s.mu.Lock()
	s.records[key] = clone(value)
	s.mu.Unlock()

	return nil
}

func (s *Store) Delete(_ context.Context, key string) error {
	s.mu.Lock()
	delete(s.records, key)
	delete(s.attachments, key)
	s.mu.Unlock()

	return nil
}

func (s *Store) List(_ context.Context, prefix string) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	keys := make([]string, 0, len(s.records))
	for k := range s.records {
		if strings.HasPrefix(k, prefix) {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)

	return keys, nil
}

func (s *Store) Upload(_ context.Context, key string, a *storage.Attachment) (string, error) {
	s.mu.Lock()
	s.attachments[key] = storage.Attachment{
		Name:        a.Name,
		ContentType: a.ContentType,
		Data:        clone(a.Data),
	}
	s.mu.Unlock()

	return dataURI(a), nil
}

func (s *Store) UploadNew(_ context.Context, key string, a *storage.Attachment) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.attachments[key]; ok {
		return "", errs.ErrAlreadyExists
	}
	s.attachments[key] = storage.Attachment{
		Name:        a.Name,
		ContentType: a.ContentType,
		Data:        clone(a.Data),
	}

	return dataURI(a), nil
}

func dataURI(a *storage.Attachment) string {
	return "data:" + a.ContentType + ";base64," + base64.StdEncoding.EncodeToString(a.Data)
}

func (s *Store) Download(_ context.Context, key string) (*storage.Attachment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	a, ok := s.attachments[key]
	if !ok {
		return nil, errs.ErrNotFound
	}
	a.Data = clone(a.Data)

	return &a, nil
}

// Len returns the number of stored records and attachments.
func (s *Store) Len() (records, attachments int) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.records), len(s.attachments)
}

func clone(b []byte) []byte {
	return append([]byte(nil), b...)
}

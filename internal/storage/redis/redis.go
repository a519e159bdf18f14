// Package redis keeps records as strings and attachments as hashes
// under a common key namespace.
package redis

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/KretovDmitry/nairabulk-orders/internal/models/errs"
	"github.com/KretovDmitry/nairabulk-orders/internal/storage"
	"github.com/redis/go-redis/v9"
)

const scanCount = 100

// Hash fields of an attachment.
const (
	fieldName        = "name"
	fieldContentType = "content_type"
	fieldData        = "data"
)

type Store struct {
	client    redis.UniversalClient
	namespace string
}

func New(client redis.UniversalClient, namespace string) (*Store, error) {
	if client == nil {
		return nil, errors.New("nil dependency: redis client")
	}
	return &Store{client: client, namespace: strings.TrimSuffix(namespace, ":")}, nil
}

var _ storage.Store = (*Store)(nil)

func (s *Store) key(k string) string {
	if s.namespace == "" {
		return k
	}
	return s.namespace + ":" + k
}

func (s *Store) Get(ctx context.Context, key string) ([]byte, error) {
	v, err := s.client.Get(ctx, s.key(key)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, errs.ErrNotFound
		}
		return nil, err
	}
	return v, nil
}

func (s *Store) Put(ctx context.Context, key string, value []byte) error {
	return s.client.Set(ctx, s.key(key), value, 0).Err()
}

func (s *Store) Delete(ctx context.Context, key string) error {
	return s.client.Del(ctx, s.key(key)).Err()
}

// List walks the key space with SCAN, so it never blocks the server,
// and keeps string keys only.
func (s *Store) List(ctx context.Context, prefix string) ([]string, error) {
	pattern := s.key(escapeGlob(prefix)) + "*"
	keys := make([]string, 0)

	iter := s.client.Scan(ctx, 0, pattern, scanCount).Iterator()
	for iter.Next(ctx) {
		full := iter.Val()

		kind, err := s.client.Type(ctx, full).Result()
		if err != nil {
			return nil, err
		}
		if kind != "string" {
			continue
		}

		keys = append(keys, strings.TrimPrefix(full, s.key("")))
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("scan %q: %w", pattern, err)
	}

	return keys, nil
}

func (s *Store) Upload(ctx context.Context, key string, a *storage.Attachment) (string, error) {
	k := s.key(key)

	// Replace as a whole so stale fields never survive.
	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, k)
		pipe.HSet(ctx, k,
			fieldName, a.Name,
			fieldContentType, a.ContentType,
			fieldData, a.Data,
		)
		return nil
	})
	if err != nil {
		return "", err
	}

	return storage.AttachmentPath(key), nil
}

// UploadNew watches the key so a concurrent writer makes the
// transaction fail instead of being overwritten.
func (s *Store) UploadNew(ctx context.Context, key string, a *storage.Attachment) (string, error) {
	k := s.key(key)

	err := s.client.Watch(ctx, func(tx *redis.Tx) error {
		n, err := tx.Exists(ctx, k).Result()
		if err != nil {
			return err
		}
		if n > 0 {
			return errs.ErrAlreadyExists
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.HSet(ctx, k,
				fieldName, a.Name,
				fieldContentType, a.ContentType,
				fieldData, a.Data,
			)
			return nil
		})
		return err
	}, k)
	if errors.Is(err, redis.TxFailedErr) {
		return "", errs.ErrAlreadyExists
	}
	if err != nil {
		return "", err
	}

	return storage.AttachmentPath(key), nil
}

func (s *Store) Download(ctx context.Context, key string) (*storage.Attachment, error) {
	values, err := s.client.HGetAll(ctx, s.key(key)).Result()
	if err != nil {
		return nil, err
	}
	if len(values) == 0 {
		return nil, errs.ErrNotFound
	}

	return &storage.Attachment{
		Name:        values[fieldName],
		ContentType: values[fieldContentType],
		Data:        []byte(values[fieldData]),
	}, nil
}

func escapeGlob(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `*`, `\*`, `?`, `\?`, `[`, `\[`, `]`, `\]`)
	return r.Replace(s)
}

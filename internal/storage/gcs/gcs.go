// Package gcs keeps records and attachments as Cloud Storage objects.
// Attachment locators are public object URLs, so the bucket (or the
// attachment prefix) is expected to be publicly readable.
package gcs

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	gcs "cloud.google.com/go/storage"
	"github.com/KretovDmitry/nairabulk-orders/internal/models/errs"
	"github.com/KretovDmitry/nairabulk-orders/internal/storage"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/iterator"
)

const (
	metaKind       = "kind"
	kindRecord     = "record"
	kindAttachment = "attachment"
	metaName       = "name"
)

type Store struct {
	client        *gcs.Client
	bucket        string
	prefix        string
	publicBaseURL string
}

func New(client *gcs.Client, bucket, prefix, publicBaseURL string) (*Store, error) {
	if client == nil {
		return nil, errors.New("nil dependency: storage client")
	}
	bucket = strings.TrimSpace(bucket)
	if bucket == "" {
		return nil, errors.New("gcs: bucket name is required")
	}

	prefix = strings.Trim(prefix, "/")
	if prefix != "" {
		prefix += "/"
	}

	return &Store{
		client:        client,
		bucket:        bucket,
		prefix:        prefix,
		publicBaseURL: strings.TrimSuffix(publicBaseURL, "/"),
	}, nil
}

var _ storage.Store = (*Store)(nil)

func (s *Store) object(key string) *gcs.ObjectHandle {
	return s.client.Bucket(s.bucket).Object(s.prefix + key)
}

func (s *Store) Get(ctx context.Context, key string) ([]byte, error) {
	r, err := s.object(key).NewReader(ctx)
	if err != nil {
		if errors.Is(err, gcs.ErrObjectNotExist) {
			return nil, errs.ErrNotFound
		}
		return nil, err
	}
	defer r.Close()

	return io.ReadAll(r)
}

func (s *Store) Put(ctx context.Context, key string, value []byte) error {
	return s.write(ctx, s.object(key), value, "application/json", map[string]string{metaKind: kindRecord})
}

func (s *Store) Delete(ctx context.Context, key string) error {
	err := s.object(key).Delete(ctx)
	if err != nil && !errors.Is(err, gcs.ErrObjectNotExist) {
		return err
	}
	return nil
}

func (s *Store) List(ctx context.Context, prefix string) ([]string, error) {
	query := &gcs.Query{Prefix: s.prefix + prefix}
	if err := query.SetAttrSelection([]string{"Name", "Metadata"}); err != nil {
		return nil, err
	}

	keys := make([]string, 0)

	it := s.client.Bucket(s.bucket).Objects(ctx, query)
	for {
		attrs, err := it.Next()
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("list %q: %w", prefix, err)
		}
		if attrs.Metadata[metaKind] != kindRecord {
			continue
		}
		keys = append(keys, strings.TrimPrefix(attrs.Name, s.prefix))
	}

	return keys, nil
}

func (s *Store) Upload(ctx context.Context, key string, a *storage.Attachment) (string, error) {
	meta := map[string]string{metaKind: kindAttachment, metaName: a.Name}
	if err := s.write(ctx, s.object(key), a.Data, a.ContentType, meta); err != nil {
		return "", err
	}
	return s.publicURL(key), nil
}

// UploadNew writes with a does-not-exist precondition; Cloud Storage
// answers 412 when the object is already there.
func (s *Store) UploadNew(ctx context.Context, key string, a *storage.Attachment) (string, error) {
	obj := s.object(key).If(gcs.Conditions{DoesNotExist: true})
	meta := map[string]string{metaKind: kindAttachment, metaName: a.Name}

	if err := s.write(ctx, obj, a.Data, a.ContentType, meta); err != nil {
		if isPreconditionFailed(err) {
			return "", errs.ErrAlreadyExists
		}
		return "", err
	}
	return s.publicURL(key), nil
}

func isPreconditionFailed(err error) bool {
	var apiErr *googleapi.Error
	return errors.As(err, &apiErr) && apiErr.Code == http.StatusPreconditionFailed
}

func (s *Store) Download(ctx context.Context, key string) (*storage.Attachment, error) {
	obj := s.object(key)

	attrs, err := obj.Attrs(ctx)
	if err != nil {
		if errors.Is(err, gcs.ErrObjectNotExist) {
			return nil, errs.ErrNotFound
		}
		return nil, err
	}

	r, err := obj.NewReader(ctx)
	if err != nil {
		return nil, err
	}
	defer r.Close()

	data, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}

	return &storage.Attachment{
		Name:        attrs.Metadata[metaName],
		ContentType: attrs.ContentType,
		Data:        data,
	}, nil
}

func (s *Store) write(ctx context.Context, obj *gcs.ObjectHandle, data []byte, contentType string, meta map[string]string) error {
	w := obj.NewWriter(ctx)
	w.ContentType = contentType
	w.Metadata = meta
	// Objects are overwritten in place; caches must revalidate.
	w.CacheControl = "no-cache"

	if _, err := w.Write(data); err != nil {
		_ = w.Close()
		return err
	}
	return w.Close()
}

func (s *Store) publicURL(key string) string {
	segments := strings.Split(s.prefix+key, "/")
	for i, seg := range segments {
		segments[i] = url.PathEscape(seg)
	}
	return s.publicBaseURL + "/" + url.PathEscape(s.bucket) + "/" + strings.Join(segments, "/")
}

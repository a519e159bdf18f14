// Package storage defines the key/blob capability every backend provides.
// Records and attachments share one key space; callers pick the keys.
package storage

import (
	"context"
	"fmt"
	"path"
	"strings"

	"github.com/KretovDmitry/nairabulk-orders/internal/models/errs"
	"github.com/gabriel-vasile/mimetype"
)

// Store is implemented by every storage backend.
//
// Get and Download return errs.ErrNotFound for missing keys.
// Delete of a missing key is not an error.
type Store interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Put(ctx context.Context, key string, value []byte) error
	Delete(ctx context.Context, key string) error
	// List returns the keys of records starting with prefix.
	List(ctx context.Context, prefix string) ([]string, error)
	// Upload stores the attachment under key, replacing any previous one,
	// and returns a locator the front-end can load it from.
	Upload(ctx context.Context, key string, a *Attachment) (string, error)
	// UploadNew is Upload that never replaces: when key is taken it
	// stores nothing and returns errs.ErrAlreadyExists. The check and the
	// write are one atomic step.
	UploadNew(ctx context.Context, key string, a *Attachment) (string, error)
	Download(ctx context.Context, key string) (*Attachment, error)
}

// Attachment is an uploaded image.
type Attachment struct {
	Name        string
	ContentType string
	Data        []byte
}

// AttachmentRoute is served by the admin API for backends that keep
// attachments away from the public internet.
const AttachmentRoute = "/api/admin/attachments/"

// AttachmentPath returns the server route locator for key.
func AttachmentPath(key string) string {
	return AttachmentRoute + strings.TrimPrefix(key, "/")
}

// Limits restricts uploaded attachments.
type Limits struct {
	MaxSizeBytes int64
	AllowedTypes []string
}

// DefaultLimits mirror the order form: 4 MiB of PNG, JPEG or WEBP.
var DefaultLimits = Limits{
	MaxSizeBytes: 4 << 20,
	AllowedTypes: []string{"image/png", "image/jpeg", "image/webp"},
}

// ValidateAttachment checks size and detected content type of a.
// The content type is sniffed from the bytes and replaces the one
// declared by the client.
func ValidateAttachment(field string, a *Attachment, limits Limits) error {
	if a == nil || len(a.Data) == 0 {
		return &errs.RequiredFieldError{FieldName: field}
	}
	if limits.MaxSizeBytes > 0 && int64(len(a.Data)) > limits.MaxSizeBytes {
		return &errs.InvalidFieldError{
			FieldName: field,
			Reason:    fmt.Sprintf("must not exceed %d bytes", limits.MaxSizeBytes),
		}
	}

	detected := mimetype.Detect(a.Data)
	allowed := len(limits.AllowedTypes) == 0
	for _, t := range limits.AllowedTypes {
		if detected.Is(t) {
			allowed = true
			break
		}
	}
	if !allowed {
		return &errs.InvalidFieldError{
			FieldName: field,
			Reason: fmt.Sprintf("has type %s, allowed: %s",
				detected.String(), strings.Join(limits.AllowedTypes, ", ")),
		}
	}

	a.ContentType = detected.String()
	if a.Name != "" {
		a.Name = path.Base(strings.ReplaceAll(a.Name, "\\", "/"))
	}

	return nil
}

// Package status persists whether the shop accepts new orders.
//
// Reads fail open: an outage must never block customers from ordering.
package status

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/KretovDmitry/nairabulk-orders/internal/models/errs"
	"github.com/KretovDmitry/nairabulk-orders/internal/storage"
	"github.com/KretovDmitry/nairabulk-orders/pkg/logger"
)

// Key is the well-known storage key of the status record.
const Key = "config/service-status"

// DefaultOpen is assumed whenever the record cannot be read.
const DefaultOpen = true

type record struct {
	IsServiceOpen *bool `json:"isServiceOpen"`
}

type Store struct {
	storage storage.Store
	logger  logger.Logger
}

func NewStore(s storage.Store, logger logger.Logger) (*Store, error) {
	if s == nil {
		return nil, errors.New("nil dependency: storage")
	}
	return &Store{storage: s, logger: logger}, nil
}

// GetStatus returns the persisted flag. It never fails: on a missing,
// malformed or unreadable record it returns DefaultOpen and tries to
// repair the record through EnsureDefault.
func (s *Store) GetStatus(ctx context.Context) bool {
	open, err := s.read(ctx)
	if err == nil {
		return open
	}

	s.logger.With(ctx).Warnf("service status unavailable, defaulting to open: %s", err)

	if err = s.EnsureDefault(ctx); err != nil {
		s.logger.With(ctx).Errorf("restore default service status: %s", err)
	}

	return DefaultOpen
}

// SetStatus overwrites the record. Errors are returned to the caller.
func (s *Store) SetStatus(ctx context.Context, open bool) error {
	data, err := json.Marshal(record{IsServiceOpen: &open})
	if err != nil {
		return err
	}

	if err = s.storage.Put(ctx, Key, data); err != nil {
		return fmt.Errorf("%w: set service status: %w", errs.ErrStorage, err)
	}

	return nil
}

// EnsureDefault writes the default record when none is stored or the
// stored one is malformed. A valid record is left alone, so calling it
// any number of times is safe. When the record cannot be read at all
// nothing is written, a valid "closed" record must not be clobbered by
// a transient read error.
func (s *Store) EnsureDefault(ctx context.Context) error {
	_, err := s.read(ctx)

	var malformed *malformedError
	switch {
	case err == nil:
		return nil
	case errors.Is(err, errs.ErrNotFound), errors.As(err, &malformed):
		s.logger.With(ctx).Infof("writing default service status (open): %s", err)
		return s.SetStatus(ctx, DefaultOpen)
	default:
		return err
	}
}

func (s *Store) read(ctx context.Context) (bool, error) {
	data, err := s.storage.Get(ctx, Key)
	if err != nil {
		if errors.Is(err, errs.ErrNotFound) {
			return false, fmt.Errorf("service status: %w", errs.ErrNotFound)
		}
		return false, fmt.Errorf("%w: get service status: %w", errs.ErrStorage, err)
	}

	var rec record
	if err = json.Unmarshal(data, &rec); err != nil {
		return false, &malformedError{reason: err.Error()}
	}
	if rec.IsServiceOpen == nil {
		return false, &malformedError{reason: "isServiceOpen is missing"}
	}

	return *rec.IsServiceOpen, nil
}

type malformedError struct {
	reason string
}

func (e *malformedError) Error() string {
	return "malformed service status record: " + e.reason
}

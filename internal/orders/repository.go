package orders

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/KretovDmitry/nairabulk-orders/internal/models/errs"
	"github.com/KretovDmitry/nairabulk-orders/internal/models/order"
	"github.com/KretovDmitry/nairabulk-orders/internal/storage"
	"github.com/KretovDmitry/nairabulk-orders/pkg/logger"
)

// Storage key layout.
const (
	recordPrefix     = "orders/"
	attachmentPrefix = "attachments/"
)

func recordKey(orderID string) string { return recordPrefix + orderID }

func screenshotKey(orderID string) string {
	return attachmentPrefix + "orders/" + orderID + "/screenshot"
}

// The proof path is fixed per order, a re-submission replaces the object.
func paymentProofKey(orderID string) string {
	return attachmentPrefix + "orders/" + orderID + "/payment-proof"
}

// maxIDAttempts bounds how many taken order IDs Create skips.
const maxIDAttempts = 5

type Repository interface {
	Create(ctx context.Context, details *order.Details, screenshot *storage.Attachment) (*order.Order, error)
	GetAll(ctx context.Context) ([]*order.Order, error)
	GetOne(ctx context.Context, orderID string) (*order.Order, error)
	AddPaymentProof(ctx context.Context, orderID string, proof *storage.Attachment) (*order.Order, error)
	MarkProcessed(ctx context.Context, orderID string) (*order.Order, error)
	GetAttachment(ctx context.Context, key string) (*storage.Attachment, error)
}

type Repo struct {
	store  storage.Store
	ids    *order.IDGenerator
	logger logger.Logger
}

func NewRepository(store storage.Store, ids *order.IDGenerator, logger logger.Logger) (*Repo, error) {
	if store == nil {
		return nil, errors.New("nil dependency: storage")
	}
	if ids == nil {
		return nil, errors.New("nil dependency: id generator")
	}

	return &Repo{store: store, ids: ids, logger: logger}, nil
}

var _ Repository = (*Repo)(nil)

// Create uploads the screenshot first and writes the record after it.
// When the record cannot be written the screenshot is removed again.
// The create-only screenshot upload claims the order ID; when another
// process already holds it the next ID is tried.
func (r *Repo) Create(ctx context.Context, details *order.Details, screenshot *storage.Attachment) (*order.Order, error) {
	var (
		id        string
		createdAt int64
		locator   string
		err       error
	)

	for attempt := 1; ; attempt++ {
		id, createdAt = r.ids.Next()

		locator, err = r.store.UploadNew(ctx, screenshotKey(id), screenshot)
		if err == nil {
			break
		}
		if !errors.Is(err, errs.ErrAlreadyExists) {
			return nil, fmt.Errorf("%w: screenshot of order %s: %w", errs.ErrUpload, id, err)
		}

		r.logger.With(ctx, "order_id", id).Warn("order id already taken, trying the next one")
		if attempt == maxIDAttempts {
			return nil, fmt.Errorf("%w: no free order id after %d attempts", errs.ErrStorage, attempt)
		}
	}

	o := &order.Order{
		OrderID:    id,
		CreatedAt:  createdAt,
		FullName:   details.FullName,
		Phone:      details.Phone,
		Email:      details.Email,
		Address:    details.Address,
		Store:      details.Store,
		Notes:      details.Notes,
		Screenshot: locator,
	}

	if err = r.put(ctx, o); err != nil {
		if delErr := r.store.Delete(ctx, screenshotKey(id)); delErr != nil {
			r.logger.With(ctx, "order_id", id).Errorf("remove orphaned screenshot: %s", delErr)
		}
		return nil, err
	}

	return o, nil
}

// GetAll returns every stored order in no particular order.
// Unreadable records are skipped and counted in a warning.
func (r *Repo) GetAll(ctx context.Context) ([]*order.Order, error) {
	keys, err := r.store.List(ctx, recordPrefix)
	if err != nil {
		return nil, fmt.Errorf("%w: list orders: %w", errs.ErrStorage, err)
	}

	orders := make([]*order.Order, 0, len(keys))
	skipped := 0

	for _, key := range keys {
		o, err := r.get(ctx, key)
		if err != nil {
			skipped++
			r.logger.With(ctx, "key", key).Debugf("skip order record: %s", err)
			continue
		}
		orders = append(orders, o)
	}

	if skipped > 0 {
		r.logger.With(ctx).Warnf("skipped %d unreadable order records", skipped)
	}

	return orders, nil
}

func (r *Repo) GetOne(ctx context.Context, orderID string) (*order.Order, error) {
	return r.get(ctx, recordKey(orderID))
}

// AddPaymentProof stores the proof and points the order at it. Only
// the paymentProof field of the record changes.
func (r *Repo) AddPaymentProof(ctx context.Context, orderID string, proof *storage.Attachment) (*order.Order, error) {
	if _, err := r.GetOne(ctx, orderID); err != nil {
		return nil, err
	}

	locator, err := r.store.Upload(ctx, paymentProofKey(orderID), proof)
	if err != nil {
		return nil, fmt.Errorf("%w: payment proof of order %s: %w", errs.ErrUpload, orderID, err)
	}

	// Read again so a concurrent processed flag is not lost.
	o, err := r.GetOne(ctx, orderID)
	if err != nil {
		return nil, err
	}
	o.PaymentProof = locator

	if err = r.put(ctx, o); err != nil {
		return nil, err
	}

	return o, nil
}

// MarkProcessed sets the processed flag. Marking twice is not an error.
func (r *Repo) MarkProcessed(ctx context.Context, orderID string) (*order.Order, error) {
	o, err := r.GetOne(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if o.IsProcessed {
		return o, nil
	}

	o.IsProcessed = true
	if err = r.put(ctx, o); err != nil {
		return nil, err
	}

	return o, nil
}

// GetAttachment downloads an order attachment. Keys outside the
// attachment namespace are reported as missing.
func (r *Repo) GetAttachment(ctx context.Context, key string) (*storage.Attachment, error) {
	if !strings.HasPrefix(key, attachmentPrefix) || strings.Contains(key, "..") {
		return nil, fmt.Errorf("attachment %q: %w", key, errs.ErrNotFound)
	}

	a, err := r.store.Download(ctx, key)
	if err != nil {
		if errors.Is(err, errs.ErrNotFound) {
			return nil, fmt.Errorf("attachment %q: %w", key, errs.ErrNotFound)
		}
		return nil, fmt.Errorf("%w: download %q: %w", errs.ErrStorage, key, err)
	}

	return a, nil
}

func (r *Repo) get(ctx context.Context, key string) (*order.Order, error) {
	data, err := r.store.Get(ctx, key)
	if err != nil {
		if errors.Is(err, errs.ErrNotFound) {
			return nil, fmt.Errorf("order %s: %w", strings.TrimPrefix(key, recordPrefix), errs.ErrNotFound)
		}
		return nil, fmt.Errorf("%w: get %q: %w", errs.ErrStorage, key, err)
	}

	o := new(order.Order)
	if err = json.Unmarshal(data, o); err != nil {
		return nil, fmt.Errorf("%w: decode %q: %w", errs.ErrStorage, key, err)
	}
	if o.OrderID == "" {
		return nil, fmt.Errorf("%w: decode %q: order id is missing", errs.ErrStorage, key)
	}

	return o, nil
}

func (r *Repo) put(ctx context.Context, o *order.Order) error {
	data, err := json.Marshal(o)
	if err != nil {
		return fmt.Errorf("encode order %s: %w", o.OrderID, err)
	}

	if err = r.store.Put(ctx, recordKey(o.OrderID), data); err != nil {
		return fmt.Errorf("%w: save order %s: %w", errs.ErrStorage, o.OrderID, err)
	}

	return nil
}

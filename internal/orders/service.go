package orders

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/KretovDmitry/nairabulk-orders/internal/config"
	"github.com/KretovDmitry/nairabulk-orders/internal/events"
	"github.com/KretovDmitry/nairabulk-orders/internal/models/errs"
	"github.com/KretovDmitry/nairabulk-orders/internal/models/order"
	"github.com/KretovDmitry/nairabulk-orders/internal/storage"
	"github.com/KretovDmitry/nairabulk-orders/pkg/logger"
)

// Authorizer grants access to admin operations.
type Authorizer interface {
	// Authorize returns errs.ErrUnauthorized when ctx carries no admin.
	Authorize(ctx context.Context) error
}

// ServiceStatus is the shop open/closed switch.
type ServiceStatus interface {
	Load(ctx context.Context) bool
	Set(ctx context.Context, open bool) error
}

// Service drives orders through their lifecycle:
//
//	created -> proof_submitted -> processed
//
// Customer operations are public, the rest require an admin.
type Service struct {
	repo      Repository
	status    ServiceStatus
	authz     Authorizer
	publisher events.Publisher
	logger    logger.Logger
	limits    storage.Limits
	now       func() time.Time
}

func NewService(
	repo Repository,
	status ServiceStatus,
	authz Authorizer,
	publisher events.Publisher,
	logger logger.Logger,
	config *config.Config,
) (*Service, error) {
	if repo == nil {
		return nil, errors.New("nil dependency: repository")
	}
	if status == nil {
		return nil, errors.New("nil dependency: service status")
	}
	if authz == nil {
		return nil, errors.New("nil dependency: authorizer")
	}
	if config == nil {
		return nil, errors.New("nil dependency: config")
	}
	if publisher == nil {
		publisher = events.Nop{}
	}

	limits := storage.DefaultLimits
	if config.Attachments.MaxSizeBytes > 0 {
		limits.MaxSizeBytes = config.Attachments.MaxSizeBytes
	}
	if len(config.Attachments.AllowedTypes) > 0 {
		limits.AllowedTypes = config.Attachments.AllowedTypes
	}

	return &Service{
		repo:      repo,
		status:    status,
		authz:     authz,
		publisher: publisher,
		logger:    logger,
		limits:    limits,
		now:       time.Now,
	}, nil
}

// Limits returns the attachment limits in force.
func (s *Service) Limits() storage.Limits { return s.limits }

// SubmitOrder validates and stores a new order, returning its ID.
// Nothing is written when validation fails or the shop is closed.
func (s *Service) SubmitOrder(ctx context.Context, details *order.Details, screenshot *storage.Attachment) (string, error) {
	if details == nil {
		return "", fmt.Errorf("%w: order details are missing", errs.ErrValidation)
	}
	if err := details.Validate(); err != nil {
		return "", err
	}
	if err := storage.ValidateAttachment("screenshot", screenshot, s.limits); err != nil {
		return "", err
	}

	if !s.status.Load(ctx) {
		return "", errs.ErrServiceClosed
	}

	o, err := s.repo.Create(ctx, details, screenshot)
	if err != nil {
		return "", err
	}

	s.logger.With(ctx, "order_id", o.OrderID).Infof("order created for %s", o.Store)
	s.publish(ctx, events.Event{Type: events.OrderCreated, OrderID: o.OrderID})

	return o.OrderID, nil
}

// SubmitPaymentProof attaches proof to an order. A later proof replaces
// the earlier one until the order is processed.
func (s *Service) SubmitPaymentProof(ctx context.Context, orderID string, proof *storage.Attachment) error {
	if !order.IsValidID(orderID) {
		return fmt.Errorf("order %q: %w", orderID, errs.ErrNotFound)
	}
	if err := storage.ValidateAttachment("paymentProof", proof, s.limits); err != nil {
		return err
	}

	o, err := s.repo.GetOne(ctx, orderID)
	if err != nil {
		return err
	}
	if err = o.CanAcceptProof(); err != nil {
		return err
	}

	if _, err = s.repo.AddPaymentProof(ctx, orderID, proof); err != nil {
		return err
	}

	s.logger.With(ctx, "order_id", orderID).Info("payment proof submitted")
	s.publish(ctx, events.Event{Type: events.OrderPaymentProofSubmitted, OrderID: orderID})

	return nil
}

// ListOrders returns orders newest first, optionally only those in
// the given states.
func (s *Service) ListOrders(ctx context.Context, states ...order.State) ([]*order.Order, error) {
	if err := s.authz.Authorize(ctx); err != nil {
		return nil, err
	}

	all, err := s.repo.GetAll(ctx)
	if err != nil {
		return nil, err
	}

	orders := all
	if len(states) > 0 {
		orders = make([]*order.Order, 0, len(all))
		for _, o := range all {
			if hasState(states, o.State()) {
				orders = append(orders, o)
			}
		}
	}

	order.SortNewestFirst(orders)

	return orders, nil
}

func (s *Service) GetOrder(ctx context.Context, orderID string) (*order.Order, error) {
	if err := s.authz.Authorize(ctx); err != nil {
		return nil, err
	}
	if !order.IsValidID(orderID) {
		return nil, fmt.Errorf("order %q: %w", orderID, errs.ErrNotFound)
	}
	return s.repo.GetOne(ctx, orderID)
}

// MarkOrderProcessed completes an order. The order must carry a payment
// proof; completing it again changes nothing.
func (s *Service) MarkOrderProcessed(ctx context.Context, orderID string) error {
	if err := s.authz.Authorize(ctx); err != nil {
		return err
	}
	if !order.IsValidID(orderID) {
		return fmt.Errorf("order %q: %w", orderID, errs.ErrNotFound)
	}

	o, err := s.repo.GetOne(ctx, orderID)
	if err != nil {
		return err
	}
	if o.State() == order.Processed {
		return nil
	}
	if err = o.CanProcess(); err != nil {
		return err
	}

	if _, err = s.repo.MarkProcessed(ctx, orderID); err != nil {
		return err
	}

	s.logger.With(ctx, "order_id", orderID).Info("order processed")
	s.publish(ctx, events.Event{Type: events.OrderProcessed, OrderID: orderID})

	return nil
}

// GetServiceOpen reports whether new orders are accepted. It never fails.
func (s *Service) GetServiceOpen(ctx context.Context) bool {
	return s.status.Load(ctx)
}

// SetServiceOpen opens or closes the shop.
func (s *Service) SetServiceOpen(ctx context.Context, open bool) error {
	if err := s.authz.Authorize(ctx); err != nil {
		return err
	}
	if err := s.status.Set(ctx, open); err != nil {
		return err
	}

	s.logger.With(ctx).Infof("service open set to %t", open)
	s.publish(ctx, events.Event{Type: events.ServiceStatusChanged, IsServiceOpen: &open})

	return nil
}

// Attachment returns a stored screenshot or payment proof.
func (s *Service) Attachment(ctx context.Context, key string) (*storage.Attachment, error) {
	if err := s.authz.Authorize(ctx); err != nil {
		return nil, err
	}
	return s.repo.GetAttachment(ctx, key)
}

// publish never fails the operation that triggered it.
func (s *Service) publish(ctx context.Context, e events.Event) {
	e.OccurredAt = s.now().UTC()
	if err := s.publisher.Publish(ctx, e); err != nil {
		s.logger.With(ctx, "event", e.Type).Warnf("publish event: %s", err)
	}
}

func hasState(states []order.State, st order.State) bool {
	for _, s := range states {
		if s == st {
			return true
		}
	}
	return false
}

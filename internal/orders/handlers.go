package orders

import (
	"encoding/json"
	"mime"
	"net/http"
	"strconv"

	"github.com/KretovDmitry/nairabulk-orders/pkg/logger"
)

// CreateOrderResponse is returned for a new order.
type CreateOrderResponse struct {
	OrderID string `json:"orderId"`
}

// ServiceStatusResponse reports shop availability.
type ServiceStatusResponse struct {
	IsServiceOpen bool `json:"isServiceOpen"`
}

// API serves the order service over HTTP.
type API struct {
	service *Service
	logger  logger.Logger
}

func NewAPI(service *Service, logger logger.Logger) *API {
	return &API{service: service, logger: logger}
}

var _ ServerInterface = (*API)(nil)

// Order submission (POST /api/orders).
func (a *API) CreateOrder(w http.ResponseWriter, r *http.Request, params CreateOrderParams) {
	orderID, err := a.service.SubmitOrder(r.Context(), &params.Details, params.Screenshot)
	if err != nil {
		a.fail(w, r, err)
		return
	}

	a.writeJSON(w, r, http.StatusCreated, CreateOrderResponse{OrderID: orderID})
}

// Payment proof upload (POST /api/orders/{orderId}/payment-proof).
func (a *API) SubmitPaymentProof(w http.ResponseWriter, r *http.Request, orderID string, params SubmitPaymentProofParams) {
	if err := a.service.SubmitPaymentProof(r.Context(), orderID, params.PaymentProof); err != nil {
		a.fail(w, r, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// Shop availability (GET /api/service-status).
func (a *API) GetServiceStatus(w http.ResponseWriter, r *http.Request) {
	open := a.service.GetServiceOpen(r.Context())

	w.Header().Set("Cache-Control", "no-store")
	a.writeJSON(w, r, http.StatusOK, ServiceStatusResponse{IsServiceOpen: open})
}

// Orders list (GET /api/admin/orders).
func (a *API) ListOrders(w http.ResponseWriter, r *http.Request, params ListOrdersParams) {
	orders, err := a.service.ListOrders(r.Context(), params.States...)
	if err != nil {
		a.fail(w, r, err)
		return
	}

	a.writeJSON(w, r, http.StatusOK, orders)
}

// Single order (GET /api/admin/orders/{orderId}).
func (a *API) GetOrder(w http.ResponseWriter, r *http.Request, orderID string) {
	o, err := a.service.GetOrder(r.Context(), orderID)
	if err != nil {
		a.fail(w, r, err)
		return
	}

	a.writeJSON(w, r, http.StatusOK, o)
}

// Order completion (POST /api/admin/orders/{orderId}/processed).
func (a *API) MarkOrderProcessed(w http.ResponseWriter, r *http.Request, orderID string) {
	if err := a.service.MarkOrderProcessed(r.Context(), orderID); err != nil {
		a.fail(w, r, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// Shop availability toggle (PUT /api/admin/service-status).
func (a *API) SetServiceStatus(w http.ResponseWriter, r *http.Request, params SetServiceStatusParams) {
	open := *params.IsServiceOpen

	if err := a.service.SetServiceOpen(r.Context(), open); err != nil {
		a.fail(w, r, err)
		return
	}

	a.writeJSON(w, r, http.StatusOK, ServiceStatusResponse{IsServiceOpen: open})
}

// Attachment download (GET /api/admin/attachments/*).
func (a *API) GetAttachment(w http.ResponseWriter, r *http.Request, key string) {
	att, err := a.service.Attachment(r.Context(), key)
	if err != nil {
		a.fail(w, r, err)
		return
	}

	contentType := att.ContentType
	if contentType == "" {
		contentType = "application/octet-stream"
	}

	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Length", strconv.Itoa(len(att.Data)))
	w.Header().Set("Cache-Control", "private, no-cache")
	w.Header().Set("X-Content-Type-Options", "nosniff")
	if att.Name != "" {
		w.Header().Set("Content-Disposition",
			mime.FormatMediaType("inline", map[string]string{"filename": att.Name}))
	}

	w.WriteHeader(http.StatusOK)
	if _, err = w.Write(att.Data); err != nil {
		a.logger.With(r.Context()).Errorf("write attachment %q: %s", key, err)
	}
}

// fail logs server-side failures and writes the error response.
func (a *API) fail(w http.ResponseWriter, r *http.Request, err error) {
	if isUnexpected(err) {
		a.logger.With(r.Context()).Error(err)
	}
	ErrorHandlerFunc(w, r, err)
}

func (a *API) writeJSON(w http.ResponseWriter, r *http.Request, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)

	if err := json.NewEncoder(w).Encode(v); err != nil {
		a.logger.With(r.Context()).Errorf("encode response: %s", err)
	}
}

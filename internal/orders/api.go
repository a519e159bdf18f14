package orders

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"

	"github.com/KretovDmitry/nairabulk-orders/internal/models/errs"
	"github.com/KretovDmitry/nairabulk-orders/internal/models/order"
	"github.com/KretovDmitry/nairabulk-orders/internal/storage"
	"github.com/go-chi/chi/v5"
)

// Multipart overhead allowed on top of the attachment size limit.
const formOverheadBytes = 1 << 20

// CreateOrderParams defines parameters for CreateOrder.
type CreateOrderParams struct {
	Details    order.Details
	Screenshot *storage.Attachment
}

// SubmitPaymentProofParams defines parameters for SubmitPaymentProof.
type SubmitPaymentProofParams struct {
	PaymentProof *storage.Attachment
}

// ListOrdersParams defines parameters for ListOrders.
type ListOrdersParams struct {
	States []order.State
}

// SetServiceStatusParams defines parameters for SetServiceStatus.
type SetServiceStatusParams struct {
	IsServiceOpen *bool `json:"isServiceOpen"`
}

// ServerInterface represents all server handlers.
type ServerInterface interface {
	// Order submission (POST /api/orders).
	CreateOrder(w http.ResponseWriter, r *http.Request, params CreateOrderParams)
	// Payment proof upload (POST /api/orders/{orderId}/payment-proof).
	SubmitPaymentProof(w http.ResponseWriter, r *http.Request, orderID string, params SubmitPaymentProofParams)
	// Shop availability (GET /api/service-status).
	GetServiceStatus(w http.ResponseWriter, r *http.Request)
	// Orders list (GET /api/admin/orders).
	ListOrders(w http.ResponseWriter, r *http.Request, params ListOrdersParams)
	// Single order (GET /api/admin/orders/{orderId}).
	GetOrder(w http.ResponseWriter, r *http.Request, orderID string)
	// Order completion (POST /api/admin/orders/{orderId}/processed).
	MarkOrderProcessed(w http.ResponseWriter, r *http.Request, orderID string)
	// Shop availability toggle (PUT /api/admin/service-status).
	SetServiceStatus(w http.ResponseWriter, r *http.Request, params SetServiceStatusParams)
	// Attachment download (GET /api/admin/attachments/*).
	GetAttachment(w http.ResponseWriter, r *http.Request, key string)
}

// ServerInterfaceWrapper converts payloads to parameters.
type ServerInterfaceWrapper struct {
	Handler          ServerInterface
	ErrorHandlerFunc func(w http.ResponseWriter, r *http.Request, err error)
	// MaxAttachmentBytes bounds uploaded files. Zero means the default limit.
	MaxAttachmentBytes int64
}

type MiddlewareFunc func(http.Handler) http.Handler

// Create order operation middleware.
func (siw *ServerInterfaceWrapper) CreateOrder(w http.ResponseWriter, r *http.Request) {
	if err := siw.parseMultipart(w, r); err != nil {
		siw.ErrorHandlerFunc(w, r, err)
		return
	}
	defer r.MultipartForm.RemoveAll()

	var params CreateOrderParams

	// ------------- Form fields, validated by the service ------------

	params.Details = order.Details{
		FullName: r.FormValue("fullName"),
		Phone:    r.FormValue("phone"),
		Email:    r.FormValue("email"),
		Address:  r.FormValue("address"),
		Store:    order.Store(r.FormValue("store")),
		Notes:    r.FormValue("notes"),
	}

	// ------------- Required file "screenshot" -----------------------

	screenshot, err := formFile(r, "screenshot")
	if err != nil {
		siw.ErrorHandlerFunc(w, r, err)
		return
	}
	params.Screenshot = screenshot

	siw.Handler.CreateOrder(w, r, params)
}

// Submit payment proof operation middleware.
func (siw *ServerInterfaceWrapper) SubmitPaymentProof(w http.ResponseWriter, r *http.Request) {
	orderID := chi.URLParam(r, "orderId")

	if err := siw.parseMultipart(w, r); err != nil {
		siw.ErrorHandlerFunc(w, r, err)
		return
	}
	defer r.MultipartForm.RemoveAll()

	// ------------- Required file "paymentProof" ---------------------

	proof, err := formFile(r, "paymentProof")
	if err != nil {
		siw.ErrorHandlerFunc(w, r, err)
		return
	}

	siw.Handler.SubmitPaymentProof(w, r, orderID, SubmitPaymentProofParams{PaymentProof: proof})
}

// List orders operation middleware.
func (siw *ServerInterfaceWrapper) ListOrders(w http.ResponseWriter, r *http.Request) {
	var params ListOrdersParams

	// ------------- Optional query parameter "state" -----------------

	for _, value := range r.URL.Query()["state"] {
		for _, s := range strings.Split(value, ",") {
			if strings.TrimSpace(s) == "" {
				continue
			}
			st, err := order.ParseState(s)
			if err != nil {
				siw.ErrorHandlerFunc(w, r, err)
				return
			}
			params.States = append(params.States, st)
		}
	}

	siw.Handler.ListOrders(w, r, params)
}

// Set service status operation middleware.
func (siw *ServerInterfaceWrapper) SetServiceStatus(w http.ResponseWriter, r *http.Request) {
	var params SetServiceStatusParams

	defer r.Body.Close()
	if err := json.NewDecoder(r.Body).Decode(&params); err != nil {
		if errors.Is(err, io.EOF) {
			siw.ErrorHandlerFunc(w, r, fmt.Errorf("%w: empty body", errs.ErrValidation))
			return
		}
		siw.ErrorHandlerFunc(w, r, fmt.Errorf("%w: %w", errs.ErrValidation, err))
		return
	}

	// ------------- Required JSON body parameter "isServiceOpen" -----

	if params.IsServiceOpen == nil {
		siw.ErrorHandlerFunc(w, r, &errs.RequiredFieldError{FieldName: "isServiceOpen"})
		return
	}

	siw.Handler.SetServiceStatus(w, r, params)
}

func (siw *ServerInterfaceWrapper) GetOrder(w http.ResponseWriter, r *http.Request) {
	siw.Handler.GetOrder(w, r, chi.URLParam(r, "orderId"))
}

func (siw *ServerInterfaceWrapper) MarkOrderProcessed(w http.ResponseWriter, r *http.Request) {
	siw.Handler.MarkOrderProcessed(w, r, chi.URLParam(r, "orderId"))
}

func (siw *ServerInterfaceWrapper) GetAttachment(w http.ResponseWriter, r *http.Request) {
	siw.Handler.GetAttachment(w, r, chi.URLParam(r, "*"))
}

// parseMultipart reads a multipart/form-data body no larger than the
// attachment limit plus form overhead.
func (siw *ServerInterfaceWrapper) parseMultipart(w http.ResponseWriter, r *http.Request) error {
	limit := siw.MaxAttachmentBytes
	if limit <= 0 {
		limit = storage.DefaultLimits.MaxSizeBytes
	}

	r.Body = http.MaxBytesReader(w, r.Body, limit+formOverheadBytes)

	err := r.ParseMultipartForm(limit)
	if err == nil {
		return nil
	}

	var tooLarge *http.MaxBytesError
	switch {
	case errors.As(err, &tooLarge):
		return fmt.Errorf("%w: request body exceeds %d bytes", errs.ErrValidation, tooLarge.Limit)
	case errors.Is(err, http.ErrNotMultipart):
		return fmt.Errorf("%w: multipart/form-data body expected", errs.ErrValidation)
	default:
		return fmt.Errorf("%w: malformed form: %w", errs.ErrValidation, err)
	}
}

func formFile(r *http.Request, field string) (*storage.Attachment, error) {
	file, header, err := r.FormFile(field)
	if err != nil {
		if errors.Is(err, http.ErrMissingFile) {
			return nil, &errs.RequiredFieldError{FieldName: field}
		}
		return nil, fmt.Errorf("%w: read file %q: %w", errs.ErrValidation, field, err)
	}
	defer file.Close()

	return readAttachment(file, header)
}

func readAttachment(file multipart.File, header *multipart.FileHeader) (*storage.Attachment, error) {
	data, err := io.ReadAll(file)
	if err != nil {
		return nil, fmt.Errorf("read %q: %w", header.Filename, err)
	}

	return &storage.Attachment{
		Name:        header.Filename,
		ContentType: header.Header.Get("Content-Type"),
		Data:        data,
	}, nil
}

type ChiServerOptions struct {
	ErrorHandlerFunc func(w http.ResponseWriter, r *http.Request, err error)
	BaseRouter       chi.Router
	BaseURL          string
	Middlewares      []MiddlewareFunc
	// SubmitMiddlewares wrap the public order and payment proof submissions.
	SubmitMiddlewares []MiddlewareFunc
	// AdminMiddlewares wrap every admin route, authentication goes here.
	AdminMiddlewares   []MiddlewareFunc
	MaxAttachmentBytes int64
}

// HandlerWithOptions creates http.Handler with additional options.
func HandlerWithOptions(si ServerInterface, options ChiServerOptions) http.Handler {
	r := options.BaseRouter

	if r == nil {
		r = chi.NewRouter()
	}
	if options.ErrorHandlerFunc == nil {
		options.ErrorHandlerFunc = func(w http.ResponseWriter, _ *http.Request, err error) {
			http.Error(w, err.Error(), http.StatusBadRequest)
		}
	}
	wrapper := ServerInterfaceWrapper{
		Handler:            si,
		ErrorHandlerFunc:   options.ErrorHandlerFunc,
		MaxAttachmentBytes: options.MaxAttachmentBytes,
	}

	base := options.BaseURL

	r.Group(func(r chi.Router) {
		for _, middleware := range options.Middlewares {
			r.Use(middleware)
		}

		r.Group(func(r chi.Router) {
			for _, middleware := range options.SubmitMiddlewares {
				r.Use(middleware)
			}
			r.Post(base+"/orders", wrapper.CreateOrder)
			r.Post(base+"/orders/{orderId}/payment-proof", wrapper.SubmitPaymentProof)
		})
		r.Get(base+"/service-status", si.GetServiceStatus)

		r.Group(func(r chi.Router) {
			for _, middleware := range options.AdminMiddlewares {
				r.Use(middleware)
			}
			r.Get(base+"/admin/orders", wrapper.ListOrders)
			r.Get(base+"/admin/orders/{orderId}", wrapper.GetOrder)
			r.Post(base+"/admin/orders/{orderId}/processed", wrapper.MarkOrderProcessed)
			r.Put(base+"/admin/service-status", wrapper.SetServiceStatus)
			r.Get(base+"/admin/attachments/*", wrapper.GetAttachment)
		})
	})

	return r
}

// ErrorHandlerFunc handles sending of an error in the JSON format,
// writing appropriate status code and handling the failure to marshal that.
func ErrorHandlerFunc(w http.ResponseWriter, _ *http.Request, err error) {
	errJSON := errs.JSON{Error: err.Error()}
	code := http.StatusInternalServerError

	switch {
	// Status Bad Request.
	case errors.Is(err, errs.ErrValidation):
		code = http.StatusBadRequest

	// Status Unauthorized.
	case errors.Is(err, errs.ErrUnauthorized) ||
		errors.Is(err, errs.ErrInvalidCredentials):
		code = http.StatusUnauthorized

	// Status Not Found.
	case errors.Is(err, errs.ErrNotFound):
		code = http.StatusNotFound

	// Status Conflict.
	case errors.Is(err, errs.ErrPreconditionFailed):
		code = http.StatusConflict

	// Status Service Unavailable.
	case errors.Is(err, errs.ErrServiceClosed):
		code = http.StatusServiceUnavailable

	// Status Bad Gateway.
	case errors.Is(err, errs.ErrUpload):
		code = http.StatusBadGateway
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)

	if err = json.NewEncoder(w).Encode(errJSON); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

// isUnexpected reports whether err is a failure worth an error log.
// Rejections of bad input and a closed shop are expected outcomes.
func isUnexpected(err error) bool {
	for _, clientErr := range []error{
		errs.ErrValidation,
		errs.ErrUnauthorized,
		errs.ErrInvalidCredentials,
		errs.ErrNotFound,
		errs.ErrPreconditionFailed,
		errs.ErrServiceClosed,
	} {
		if errors.Is(err, clientErr) {
			return false
		}
	}
	return true
}

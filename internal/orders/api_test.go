package orders

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"strings"
	"testing"
	"time"

	"github.com/KretovDmitry/nairabulk-orders/internal/models/errs"
	"github.com/KretovDmitry/nairabulk-orders/internal/models/order"
	"github.com/KretovDmitry/nairabulk-orders/internal/storage/storagetest"
	"github.com/KretovDmitry/nairabulk-orders/pkg/limiter"
	"github.com/KretovDmitry/nairabulk-orders/pkg/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

type formFileSpec struct {
	field       string
	name        string
	contentType string
	data        []byte
}

func multipartBody(t *testing.T, fields map[string]string, files ...formFileSpec) (io.Reader, string) {
	t.Helper()

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)

	for k, v := range fields {
		require.NoError(t, mw.WriteField(k, v))
	}
	for _, f := range files {
		h := make(textproto.MIMEHeader)
		h.Set("Content-Disposition", fmt.Sprintf(`form-data; name=%q; filename=%q`, f.field, f.name))
		h.Set("Content-Type", f.contentType)
		part, err := mw.CreatePart(h)
		require.NoError(t, err)
		_, err = part.Write(f.data)
		require.NoError(t, err)
	}
	require.NoError(t, mw.Close())

	return &buf, mw.FormDataContentType()
}

func orderFields() map[string]string {
	return map[string]string{
		"fullName": "Ada Obi",
		"phone":    "+2348012345678",
		"email":    "ada@example.com",
		"address":  "12 Marina Rd, Lagos",
		"store":    "AliExpress",
		"notes":    "",
	}
}

func newTestRouter(f *fixture) http.Handler {
	return HandlerWithOptions(NewAPI(f.service, logger.NewForTest()), ChiServerOptions{
		BaseURL:            "/api",
		ErrorHandlerFunc:   ErrorHandlerFunc,
		MaxAttachmentBytes: 1024,
	})
}

type want struct {
	statusCode int
	response   string
}

func decodeError(t *testing.T, res *http.Response) string {
	t.Helper()
	errorResponse := new(errs.JSON)
	require.NoError(t, json.NewDecoder(res.Body).Decode(errorResponse), "failed to decode JSON response")
	return errorResponse.Error
}

func TestCreateOrderOperation(t *testing.T) {
	screenshot := formFileSpec{field: "screenshot", name: "cart.png", contentType: "image/png", data: pngData}

	tests := []struct {
		name    string
		body    func(t *testing.T) (io.Reader, string)
		closed  bool
		want    want
		wantErr bool
	}{
		{
			name: "OK",
			body: func(t *testing.T) (io.Reader, string) {
				return multipartBody(t, orderFields(), screenshot)
			},
			want: want{statusCode: http.StatusCreated},
		},
		{
			name: "missing screenshot",
			body: func(t *testing.T) (io.Reader, string) {
				return multipartBody(t, orderFields())
			},
			want:    want{statusCode: http.StatusBadRequest, response: `validation failed: field "screenshot" is required`},
			wantErr: true,
		},
		{
			name: "missing email",
			body: func(t *testing.T) (io.Reader, string) {
				fields := orderFields()
				delete(fields, "email")
				return multipartBody(t, fields, screenshot)
			},
			want:    want{statusCode: http.StatusBadRequest, response: `validation failed: field "email" is required`},
			wantErr: true,
		},
		{
			name: "not multipart",
			body: func(*testing.T) (io.Reader, string) {
				return strings.NewReader(`{"fullName":"Ada"}`), "application/json"
			},
			want:    want{statusCode: http.StatusBadRequest, response: "validation failed: multipart/form-data body expected"},
			wantErr: true,
		},
		{
			name: "screenshot is not an image",
			body: func(t *testing.T) (io.Reader, string) {
				return multipartBody(t, orderFields(), formFileSpec{
					field: "screenshot", name: "cart.png", contentType: "image/png", data: []byte("%PDF-1.4 not an image"),
				})
			},
			want: want{
				statusCode: http.StatusBadRequest,
				response:   `validation failed: field "screenshot" has type application/pdf, allowed: image/png, image/jpeg, image/webp`,
			},
			wantErr: true,
		},
		{
			name: "body too large",
			body: func(t *testing.T) (io.Reader, string) {
				return multipartBody(t, orderFields(), formFileSpec{
					field: "screenshot", name: "cart.png", contentType: "image/png", data: make([]byte, 2<<20),
				})
			},
			want:    want{statusCode: http.StatusBadRequest},
			wantErr: true,
		},
		{
			name: "service closed",
			body: func(t *testing.T) (io.Reader, string) {
				return multipartBody(t, orderFields(), screenshot)
			},
			closed:  true,
			want:    want{statusCode: http.StatusServiceUnavailable, response: errs.ErrServiceClosed.Error()},
			wantErr: true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, true)
			if tt.closed {
				require.NoError(t, f.service.SetServiceOpen(context.Background(), false))
			}

			body, contentType := tt.body(t)
			r := httptest.NewRequest(http.MethodPost, "/api/orders", body)
			r.Header.Set("Content-Type", contentType)
			w := httptest.NewRecorder()

			newTestRouter(f).ServeHTTP(w, r)

			res := w.Result()
			defer res.Body.Close()

			assert.Equal(t, tt.want.statusCode, res.StatusCode, "status mismatch")
			assert.Equal(t, "application/json", res.Header.Get("Content-Type"))

			if tt.wantErr {
				msg := decodeError(t, res)
				if tt.want.response != "" {
					assert.Equal(t, tt.want.response, msg, "error message mismatch")
				}
				return
			}

			var created CreateOrderResponse
			require.NoError(t, json.NewDecoder(res.Body).Decode(&created))
			assert.Regexp(t, idRe, created.OrderID)

			o, err := f.repo.GetOne(context.Background(), created.OrderID)
			require.NoError(t, err)
			assert.Equal(t, order.AliExpress, o.Store)
			assert.Empty(t, o.Notes)
		})
	}
}

func TestSubmitPaymentProofOperation(t *testing.T) {
	proof := formFileSpec{field: "paymentProof", name: "receipt.jpg", contentType: "image/jpeg", data: jpegData}

	f := newFixture(t, true)
	orderID, err := f.service.SubmitOrder(context.Background(), validDetails(), png("cart.png"))
	require.NoError(t, err)

	tests := []struct {
		name    string
		orderID string
		files   []formFileSpec
		want    want
		wantErr bool
	}{
		{
			name:    "OK",
			orderID: orderID,
			files:   []formFileSpec{proof},
			want:    want{statusCode: http.StatusNoContent},
		},
		{
			name:    "unknown order",
			orderID: "NB-1",
			files:   []formFileSpec{proof},
			want:    want{statusCode: http.StatusNotFound, response: "order NB-1: not found"},
			wantErr: true,
		},
		{
			name:    "missing file",
			orderID: orderID,
			want:    want{statusCode: http.StatusBadRequest, response: `validation failed: field "paymentProof" is required`},
			wantErr: true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			body, contentType := multipartBody(t, nil, tt.files...)
			r := httptest.NewRequest(http.MethodPost, "/api/orders/"+tt.orderID+"/payment-proof", body)
			r.Header.Set("Content-Type", contentType)
			w := httptest.NewRecorder()

			newTestRouter(f).ServeHTTP(w, r)

			res := w.Result()
			defer res.Body.Close()

			assert.Equal(t, tt.want.statusCode, res.StatusCode, "status mismatch")
			if tt.wantErr {
				assert.Equal(t, tt.want.response, decodeError(t, res), "error message mismatch")
			}
		})
	}

	o, err := f.repo.GetOne(context.Background(), orderID)
	require.NoError(t, err)
	assert.Equal(t, order.ProofSubmitted, o.State())
}

func TestServiceStatusOperations(t *testing.T) {
	f := newFixture(t, true)
	router := newTestRouter(f)

	get := func() ServiceStatusResponse {
		w := httptest.NewRecorder()
		router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/service-status", nil))
		res := w.Result()
		defer res.Body.Close()
		require.Equal(t, http.StatusOK, res.StatusCode)
		assert.Equal(t, "no-store", res.Header.Get("Cache-Control"))
		var got ServiceStatusResponse
		require.NoError(t, json.NewDecoder(res.Body).Decode(&got))
		return got
	}

	assert.True(t, get().IsServiceOpen)

	tests := []struct {
		name    string
		payload string
		want    want
	}{
		{name: "close", payload: `{"isServiceOpen":false}`, want: want{statusCode: http.StatusOK, response: `{"isServiceOpen":false}`}},
		{name: "empty body", payload: ``, want: want{statusCode: http.StatusBadRequest, response: `{"error":"validation failed: empty body"}`}},
		{name: "missing field", payload: `{}`, want: want{statusCode: http.StatusBadRequest, response: `{"error":"validation failed: field \"isServiceOpen\" is required"}`}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest(http.MethodPut, "/api/admin/service-status", strings.NewReader(tt.payload))
			r.Header.Set("Content-Type", "application/json")
			w := httptest.NewRecorder()

			router.ServeHTTP(w, r)

			res := w.Result()
			defer res.Body.Close()
			body, err := io.ReadAll(res.Body)
			require.NoError(t, err)

			assert.Equal(t, tt.want.statusCode, res.StatusCode)
			assert.JSONEq(t, tt.want.response, string(body))
		})
	}

	assert.False(t, get().IsServiceOpen)
}

func TestAdminOrderOperations(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, true)
	router := newTestRouter(f)

	pending, err := f.service.SubmitOrder(ctx, validDetails(), png("cart.png"))
	require.NoError(t, err)
	paid, err := f.service.SubmitOrder(ctx, validDetails(), png("cart.png"))
	require.NoError(t, err)
	require.NoError(t, f.service.SubmitPaymentProof(ctx, paid, jpeg("receipt.jpg")))

	do := func(method, target string) *http.Response {
		w := httptest.NewRecorder()
		router.ServeHTTP(w, httptest.NewRequest(method, target, nil))
		return w.Result()
	}

	t.Run("mark processed without proof", func(t *testing.T) {
		res := do(http.MethodPost, "/api/admin/orders/"+pending+"/processed")
		defer res.Body.Close()
		assert.Equal(t, http.StatusConflict, res.StatusCode)
		assert.Contains(t, decodeError(t, res), "without payment proof")
	})

	t.Run("mark processed", func(t *testing.T) {
		for i := 0; i < 2; i++ {
			res := do(http.MethodPost, "/api/admin/orders/"+paid+"/processed")
			res.Body.Close()
			assert.Equal(t, http.StatusNoContent, res.StatusCode)
		}
	})

	t.Run("list", func(t *testing.T) {
		tests := []struct {
			query string
			want  []string
			code  int
		}{
			{query: "", want: []string{paid, pending}, code: http.StatusOK},
			{query: "?state=created", want: []string{pending}, code: http.StatusOK},
			{query: "?state=created,processed", want: []string{paid, pending}, code: http.StatusOK},
			{query: "?state=proof_submitted", want: []string{}, code: http.StatusOK},
			{query: "?state=shipped", code: http.StatusBadRequest},
		}
		for _, tt := range tests {
			res := do(http.MethodGet, "/api/admin/orders"+tt.query)
			assert.Equal(t, tt.code, res.StatusCode, tt.query)
			if tt.code == http.StatusOK {
				var orders []*order.Order
				require.NoError(t, json.NewDecoder(res.Body).Decode(&orders))
				got := make([]string, 0, len(orders))
				for _, o := range orders {
					got = append(got, o.OrderID)
				}
				assert.Equal(t, tt.want, got, tt.query)
			}
			res.Body.Close()
		}
	})

	t.Run("get one", func(t *testing.T) {
		res := do(http.MethodGet, "/api/admin/orders/"+paid)
		defer res.Body.Close()
		require.Equal(t, http.StatusOK, res.StatusCode)

		var o order.Order
		require.NoError(t, json.NewDecoder(res.Body).Decode(&o))
		assert.Equal(t, paid, o.OrderID)
		assert.True(t, o.IsProcessed)
		assert.NotEmpty(t, o.PaymentProof)

		missing := do(http.MethodGet, "/api/admin/orders/NB-9")
		defer missing.Body.Close()
		assert.Equal(t, http.StatusNotFound, missing.StatusCode)
	})

	t.Run("attachment", func(t *testing.T) {
		res := do(http.MethodGet, "/api/admin/attachments/"+paymentProofKey(paid))
		defer res.Body.Close()
		require.Equal(t, http.StatusOK, res.StatusCode)
		assert.Equal(t, "image/jpeg", res.Header.Get("Content-Type"))
		assert.Equal(t, `inline; filename=receipt.jpg`, res.Header.Get("Content-Disposition"))

		data, err := io.ReadAll(res.Body)
		require.NoError(t, err)
		assert.Equal(t, jpegData, data)

		missing := do(http.MethodGet, "/api/admin/attachments/"+paymentProofKey(pending))
		defer missing.Body.Close()
		assert.Equal(t, http.StatusNotFound, missing.StatusCode)
	})
}

func TestAdminRoutesUnauthorized(t *testing.T) {
	f := newFixture(t, false)
	router := newTestRouter(f)

	tests := []struct {
		method string
		target string
		body   string
	}{
		{method: http.MethodGet, target: "/api/admin/orders"},
		{method: http.MethodGet, target: "/api/admin/orders/NB-1"},
		{method: http.MethodPost, target: "/api/admin/orders/NB-1/processed"},
		{method: http.MethodPut, target: "/api/admin/service-status", body: `{"isServiceOpen":false}`},
		{method: http.MethodGet, target: "/api/admin/attachments/attachments/orders/NB-1/screenshot"},
	}
	for _, tt := range tests {
		t.Run(tt.method+" "+tt.target, func(t *testing.T) {
			w := httptest.NewRecorder()
			router.ServeHTTP(w, httptest.NewRequest(tt.method, tt.target, strings.NewReader(tt.body)))

			res := w.Result()
			defer res.Body.Close()

			assert.Equal(t, http.StatusUnauthorized, res.StatusCode)
			assert.Equal(t, errs.ErrUnauthorized.Error(), decodeError(t, res))
		})
	}

	assert.True(t, f.status.IsOpen())
}

func TestSubmitMiddlewaresApplied(t *testing.T) {
	f := newFixture(t, true)

	// One request per client, then 429.
	submitLimiter := limiter.New(time.Hour, 1)

	router := HandlerWithOptions(NewAPI(f.service, logger.NewForTest()), ChiServerOptions{
		BaseURL:           "/api",
		ErrorHandlerFunc:  ErrorHandlerFunc,
		SubmitMiddlewares: []MiddlewareFunc{submitLimiter.Middleware},
	})

	tests := []struct {
		name   string
		method string
		path   string
		want   int
	}{
		{name: "order", method: http.MethodPost, path: "/api/orders", want: http.StatusTooManyRequests},
		{name: "payment proof", method: http.MethodPost, path: "/api/orders/NB-1/payment-proof", want: http.StatusTooManyRequests},
		{name: "service status", method: http.MethodGet, path: "/api/service-status", want: http.StatusOK},
	}

	// Spend the only token of the client.
	require.True(t, submitLimiter.Allow("192.0.2.1"))

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest(tt.method, tt.path, nil)
			r.RemoteAddr = "192.0.2.1:5000"
			w := httptest.NewRecorder()

			router.ServeHTTP(w, r)

			assert.Equal(t, tt.want, w.Code)
		})
	}
}

func TestAdminMiddlewaresApplied(t *testing.T) {
	f := newFixture(t, true)

	blocked := func(http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ErrorHandlerFunc(w, r, errs.ErrUnauthorized)
		})
	}

	router := HandlerWithOptions(NewAPI(f.service, logger.NewForTest()), ChiServerOptions{
		BaseURL:          "/api",
		ErrorHandlerFunc: ErrorHandlerFunc,
		AdminMiddlewares: []MiddlewareFunc{blocked},
	})

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/admin/orders", nil))
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/service-status", nil))
	assert.Equal(t, http.StatusOK, w.Code, "public routes bypass admin middlewares")
}

func TestErrorHandlerFunc(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		code       int
		unexpected bool
	}{
		{name: "validation", err: &errs.RequiredFieldError{FieldName: "phone"}, code: http.StatusBadRequest},
		{name: "unauthorized", err: errs.ErrUnauthorized, code: http.StatusUnauthorized},
		{name: "invalid credentials", err: errs.ErrInvalidCredentials, code: http.StatusUnauthorized},
		{name: "not found", err: fmt.Errorf("order NB-1: %w", errs.ErrNotFound), code: http.StatusNotFound},
		{name: "precondition", err: fmt.Errorf("%w: no proof", errs.ErrPreconditionFailed), code: http.StatusConflict},
		{name: "closed", err: errs.ErrServiceClosed, code: http.StatusServiceUnavailable},
		{name: "upload", err: fmt.Errorf("%w: %w", errs.ErrUpload, storagetest.ErrInjected), code: http.StatusBadGateway, unexpected: true},
		{name: "storage", err: fmt.Errorf("%w: %w", errs.ErrStorage, storagetest.ErrInjected), code: http.StatusInternalServerError, unexpected: true},
		{name: "unknown", err: errors.New("boom"), code: http.StatusInternalServerError, unexpected: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			ErrorHandlerFunc(w, httptest.NewRequest(http.MethodGet, "/", nil), tt.err)

			res := w.Result()
			defer res.Body.Close()

			assert.Equal(t, tt.code, res.StatusCode)
			assert.Equal(t, tt.err.Error(), decodeError(t, res))
			assert.Equal(t, tt.unexpected, isUnexpected(tt.err))

			core, logs := observer.New(zapcore.ErrorLevel)
			api := NewAPI(nil, logger.NewWithZap(zap.New(core)))
			api.fail(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil), tt.err)
			assert.Equal(t, tt.unexpected, logs.Len() == 1, "error logged")
		})
	}
}

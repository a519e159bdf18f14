package auth

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"

	"github.com/KretovDmitry/nairabulk-orders/internal/models/errs"
	"github.com/go-chi/chi/v5"
)

// bcrypt ignores everything past 72 bytes.
const maxPasswordBytes = 72

// Login bodies are tiny; anything bigger is not a login attempt.
const maxLoginBodyBytes = 4 << 10

// LoginParams defines parameters for Login.
type LoginParams struct {
	Login    string `json:"login"`
	Password string `json:"password"`
}

// ServerInterface represents all server handlers.
type ServerInterface interface {
	// Admin sign in (POST /api/admin/login)
	Login(w http.ResponseWriter, r *http.Request, params LoginParams)
	// Admin sign out (POST /api/admin/logout)
	Logout(w http.ResponseWriter, r *http.Request)
}

// ServerInterfaceWrapper converts payloads to parameters.
type ServerInterfaceWrapper struct {
	Handler            ServerInterface
	ErrorHandlerFunc   func(w http.ResponseWriter, r *http.Request, err error)
	HandlerMiddlewares []MiddlewareFunc
}

type MiddlewareFunc func(http.Handler) http.Handler

// Login operation middleware.
func (siw *ServerInterfaceWrapper) Login(w http.ResponseWriter, r *http.Request) {
	params, err := decodeLoginParams(r)
	if err != nil {
		siw.ErrorHandlerFunc(w, r, err)
		return
	}

	siw.serve(w, r, func(w http.ResponseWriter, r *http.Request) {
		siw.Handler.Login(w, r, params)
	})
}

// Logout operation middleware.
func (siw *ServerInterfaceWrapper) Logout(w http.ResponseWriter, r *http.Request) {
	siw.serve(w, r, siw.Handler.Logout)
}

func (siw *ServerInterfaceWrapper) serve(w http.ResponseWriter, r *http.Request, h http.HandlerFunc) {
	handler := http.Handler(h)
	for _, middleware := range siw.HandlerMiddlewares {
		handler = middleware(handler)
	}
	handler.ServeHTTP(w, r)
}

func decodeLoginParams(r *http.Request) (LoginParams, error) {
	var params LoginParams

	contentType := r.Header.Get("Content-Type")
	if mediaType, _, err := mime.ParseMediaType(contentType); err != nil || mediaType != "application/json" {
		return params, &errs.InvalidFieldError{
			FieldName: "Content-Type",
			Reason:    fmt.Sprintf("must be application/json, got %q", contentType),
		}
	}

	data, err := io.ReadAll(io.LimitReader(r.Body, maxLoginBodyBytes+1))
	r.Body.Close()
	switch {
	case err != nil:
		return params, fmt.Errorf("read login body: %w", err)
	case len(data) == 0:
		return params, fmt.Errorf("%w: empty body", errs.ErrValidation)
	case len(data) > maxLoginBodyBytes:
		return params, fmt.Errorf("%w: body exceeds %d bytes", errs.ErrValidation, maxLoginBodyBytes)
	}

	if err = json.Unmarshal(data, &params); err != nil {
		var typeErr *json.UnmarshalTypeError
		if errors.As(err, &typeErr) {
			return params, &errs.InvalidFieldError{
				FieldName: typeErr.Field,
				Reason:    "must be of type string, got " + typeErr.Value,
			}
		}
		return params, fmt.Errorf("%w: %w", errs.ErrValidation, err)
	}

	switch {
	case params.Login == "":
		return params, &errs.RequiredFieldError{FieldName: "login"}
	case params.Password == "":
		return params, &errs.RequiredFieldError{FieldName: "password"}
	case len(params.Password) > maxPasswordBytes:
		return params, &errs.InvalidFieldError{
			FieldName: "password",
			Reason:    fmt.Sprintf("must not exceed %d bytes", maxPasswordBytes),
		}
	}

	return params, nil
}

type ChiServerOptions struct {
	ErrorHandlerFunc func(w http.ResponseWriter, r *http.Request, err error)
	BaseRouter       chi.Router
	BaseURL          string
	Middlewares      []MiddlewareFunc
}

// HandlerWithOptions mounts the admin session routes.
func HandlerWithOptions(si ServerInterface, options ChiServerOptions) http.Handler {
	r := options.BaseRouter
	if r == nil {
		r = chi.NewRouter()
	}
	if options.ErrorHandlerFunc == nil {
		options.ErrorHandlerFunc = ErrorHandlerFunc
	}

	wrapper := ServerInterfaceWrapper{
		Handler:            si,
		HandlerMiddlewares: options.Middlewares,
		ErrorHandlerFunc:   options.ErrorHandlerFunc,
	}

	r.Post(options.BaseURL+"/login", wrapper.Login)
	r.Post(options.BaseURL+"/logout", wrapper.Logout)

	return r
}

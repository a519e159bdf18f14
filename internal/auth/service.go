package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/KretovDmitry/nairabulk-orders/internal/config"
	"github.com/KretovDmitry/nairabulk-orders/internal/jwt"
	"github.com/KretovDmitry/nairabulk-orders/internal/models/admin"
	"github.com/KretovDmitry/nairabulk-orders/internal/models/errs"
	"github.com/KretovDmitry/nairabulk-orders/pkg/logger"
	"golang.org/x/crypto/bcrypt"
)

// CookieName carries the session token.
const CookieName = "Authorization"

type Service struct {
	repo   Repository
	logger logger.Logger
	config *config.Config
}

func NewService(repo Repository, logger logger.Logger, config *config.Config) (*Service, error) {
	if repo == nil {
		return nil, errors.New("nil dependency: repository")
	}
	if config == nil {
		return nil, errors.New("nil dependency: config")
	}
	return &Service{repo: repo, logger: logger, config: config}, nil
}

var _ ServerInterface = (*Service)(nil)

// Authentication (POST /api/admin/login).
func (s *Service) Login(w http.ResponseWriter, r *http.Request, params LoginParams) {
	a, err := s.authenticate(r.Context(), params)
	if err != nil {
		if errors.Is(err, errs.ErrInvalidCredentials) {
			s.logger.With(r.Context(), "login", params.Login).Infof("admin login rejected: %s", err)
			ErrorHandlerFunc(w, r, errs.ErrInvalidCredentials)
			return
		}
		ErrorHandlerFunc(w, r, err)
		return
	}

	authToken, err := jwt.BuildString(a.Login, s.config.JWT.SigningKey, s.config.JWT.Expiration)
	if err != nil {
		ErrorHandlerFunc(w, r, fmt.Errorf("build token: %w", err))
		return
	}

	http.SetCookie(w, &http.Cookie{
		Name:     CookieName,
		Value:    authToken,
		Path:     "/",
		Expires:  time.Now().Add(s.config.JWT.Expiration),
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})

	s.logger.With(r.Context(), "admin", a.Login).Info("admin logged in")

	w.WriteHeader(http.StatusOK)
}

// dummyHash is compared against when the login is unknown, so both
// rejections cost one bcrypt comparison.
var dummyHash = sync.OnceValue(func() []byte {
	h, err := bcrypt.GenerateFromPassword([]byte("nairabulk"), bcrypt.DefaultCost)
	if err != nil {
		panic(err)
	}
	return h
})

func (s *Service) authenticate(ctx context.Context, params LoginParams) (*admin.Account, error) {
	a, err := s.repo.GetAccount(ctx, params.Login)
	if err != nil {
		if !errors.Is(err, errs.ErrNotFound) {
			return nil, fmt.Errorf("get admin %q: %w", params.Login, err)
		}
		_ = bcrypt.CompareHashAndPassword(dummyHash(), []byte(params.Password))
		return nil, fmt.Errorf("%w: unknown admin", errs.ErrInvalidCredentials)
	}

	err = bcrypt.CompareHashAndPassword([]byte(a.PasswordHash), []byte(params.Password))
	switch {
	case errors.Is(err, bcrypt.ErrMismatchedHashAndPassword):
		return nil, fmt.Errorf("%w: password mismatch", errs.ErrInvalidCredentials)
	case err != nil:
		return nil, fmt.Errorf("compare passwords: %w", err)
	}

	return a, nil
}

// Session end (POST /api/admin/logout).
func (s *Service) Logout(w http.ResponseWriter, _ *http.Request) {
	http.SetCookie(w, &http.Cookie{
		Name:     CookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})

	w.WriteHeader(http.StatusNoContent)
}

// Authorization middleware.
func (s *Service) Middleware(next http.Handler) http.Handler {
	f := func(w http.ResponseWriter, r *http.Request) {
		authCookie, err := r.Cookie(CookieName)
		if err != nil {
			if errors.Is(err, http.ErrNoCookie) {
				ErrorHandlerFunc(w, r, fmt.Errorf("%w: authorization token not found", errs.ErrUnauthorized))
				return
			}
			ErrorHandlerFunc(w, r, fmt.Errorf("%w: authorization token: %w", errs.ErrUnauthorized, err))
			return
		}

		login, err := jwt.GetLogin(authCookie.Value, s.config.JWT.SigningKey)
		if err != nil {
			ErrorHandlerFunc(w, r, fmt.Errorf("%w: %w", errs.ErrUnauthorized, err))
			return
		}

		// The account may have been removed since the token was issued.
		a, err := s.repo.GetAccount(r.Context(), login)
		if err != nil {
			if errors.Is(err, errs.ErrNotFound) {
				ErrorHandlerFunc(w, r, fmt.Errorf("%w: admin %q not found", errs.ErrUnauthorized, login))
				return
			}
			ErrorHandlerFunc(w, r, fmt.Errorf("get admin %q: %w", login, err))
			return
		}

		r = r.WithContext(admin.NewContext(r.Context(), a))

		next.ServeHTTP(w, r)
	}

	return http.HandlerFunc(f)
}

// Authorize reports whether ctx belongs to an authenticated admin.
func (s *Service) Authorize(ctx context.Context) error {
	if _, ok := admin.FromContext(ctx); !ok {
		return errs.ErrUnauthorized
	}
	return nil
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
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)

	if err = json.NewEncoder(w).Encode(errJSON); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

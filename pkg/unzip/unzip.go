// Package unzip decompresses gzip-encoded request bodies.
package unzip

import (
	"compress/gzip"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/KretovDmitry/nairabulk-orders/pkg/logger"
)

// DefaultMaxDecodedBytes bounds a decoded body when no limit is given.
const DefaultMaxDecodedBytes int64 = 32 << 20

// ErrTooLarge is returned by Read once the decoded body passes the limit.
var ErrTooLarge = errors.New("decoded body too large")

type gzipBody struct {
	src  io.ReadCloser
	zr   *gzip.Reader
	left int64
}

func (b *gzipBody) Read(p []byte) (int, error) {
	if b.left <= 0 {
		var extra [1]byte
		if n, err := b.zr.Read(extra[:]); n == 0 && err != nil {
			return 0, err
		}
		return 0, ErrTooLarge
	}
	if int64(len(p)) > b.left {
		p = p[:b.left]
	}
	n, err := b.zr.Read(p)
	b.left -= int64(n)
	return n, err
}

func (b *gzipBody) Close() error {
	return errors.Join(b.zr.Close(), b.src.Close())
}

// Middleware is MiddlewareWithLimit with DefaultMaxDecodedBytes.
func Middleware(logger logger.Logger) func(next http.Handler) http.Handler {
	return MiddlewareWithLimit(logger, DefaultMaxDecodedBytes)
}

// MiddlewareWithLimit swaps a gzip request body for its decoded stream.
// Bodies that claim gzip but are not are rejected with 400. Reading more
// than limit decoded bytes fails with ErrTooLarge.
func MiddlewareWithLimit(logger logger.Logger, limit int64) func(next http.Handler) http.Handler {
	if limit <= 0 {
		limit = DefaultMaxDecodedBytes
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !isGzip(r.Header.Get("Content-Encoding")) {
				next.ServeHTTP(w, r)
				return
			}

			zr, err := gzip.NewReader(r.Body)
			if err != nil {
				logger.With(r.Context()).Warnf("unzip request body: %s", err)
				badRequest(w)
				return
			}

			body := &gzipBody{src: r.Body, zr: zr, left: limit}
			defer body.Close()

			r.Body = body
			r.Header.Del("Content-Encoding")
			r.Header.Del("Content-Length")
			r.ContentLength = -1

			next.ServeHTTP(w, r)
		})
	}
}

func isGzip(contentEncoding string) bool {
	for _, enc := range strings.Split(contentEncoding, ",") {
		if strings.EqualFold(strings.TrimSpace(enc), "gzip") {
			return true
		}
	}
	return false
}

func badRequest(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusBadRequest)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": "malformed gzip body"})
}

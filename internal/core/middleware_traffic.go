package core

import (
	"context"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/klauspost/compress/gzhttp"

	"collegeplan/internal/types"
)

// ContextTimeoutMiddleware sets a deadline on the request context. Handlers
// observe it through ctx cancellation of their store and upstream calls.
func ContextTimeoutMiddleware(duration time.Duration) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx, cancel := context.WithTimeout(r.Context(), duration)
			defer cancel()
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// maxRequestIDLength bounds a client-supplied X-Request-Id.
const maxRequestIDLength = 128

// RequestIDMiddleware propagates the caller's X-Request-Id or generates a
// new UUID, stores it via types.WithRequestID and echoes it in the response.
func RequestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := r.Header.Get("X-Request-Id")
		if requestID == "" || len(requestID) > maxRequestIDLength {
			requestID = uuid.NewString()
		}

		ctx := types.WithRequestID(r.Context(), requestID)
		w.Header().Set("X-Request-Id", requestID)

		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// CompressionMiddleware gzips responses for clients that accept it. Bodies
// below gzhttp's minimum size are written uncompressed.
func CompressionMiddleware(next http.Handler) http.Handler {
	return gzhttp.GzipHandler(next)
}

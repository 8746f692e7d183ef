package server

import (
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/nicktill/moldwatch/pkg/logging"
)

const requestIDHeader = "X-Request-ID"

// requestLogger logs one line per request with its status, size and
// duration. An incoming X-Request-ID is kept, otherwise one is generated,
// and it is echoed back on the response.
func requestLogger() func(http.Handler) http.Handler {
	log := logging.Component("http")

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			id := r.Header.Get(requestIDHeader)
			if id == "" {
				id = uuid.NewString()
			}
			w.Header().Set(requestIDHeader, id)

			wrapper := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}
			next.ServeHTTP(wrapper, r)

			attrs := []any{
				"request_id", id,
				"method", r.Method,
				"path", r.URL.Path,
				"status", wrapper.statusCode,
				"bytes", wrapper.bytesWritten,
				"duration", time.Since(start),
			}
			switch {
			case r.Context().Err() != nil:
				log.Debug("request abandoned by client", attrs...)
			case wrapper.statusCode >= 500:
				log.Error("request failed", attrs...)
			default:
				log.Info("request", attrs...)
			}
		})
	}
}

// responseWriter captures the status code and response size.
type responseWriter struct {
	http.ResponseWriter
	statusCode   int
	bytesWritten int64
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

func (rw *responseWriter) Write(b []byte) (int, error) {
	n, err := rw.ResponseWriter.Write(b)
	rw.bytesWritten += int64(n)
	return n, err
}

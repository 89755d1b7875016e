// Package handler provides HTTP request handling for the MCP server.
package handler

import (
	"net/http"
	"time"

	"github.com/brizzai/fhir-chart/internal/auth/middleware"
	"github.com/brizzai/fhir-chart/internal/config"
	"github.com/brizzai/fhir-chart/internal/logger"
	"go.uber.org/zap"
)

// Handler manages HTTP request handling and middleware configuration.
type Handler struct {
	authToken    string
	allowOrigins []string
}

// NewHandler creates a new HTTP handler.
func NewHandler(cfg *config.ServerConfig) *Handler {
	return &Handler{
		authToken:    cfg.AuthToken,
		allowOrigins: cfg.AllowOrigins,
	}
}

// CreateHTTPHandler wraps the MCP transport with logging, CORS and, when a
// token is configured, bearer authentication.
func (h *Handler) CreateHTTPHandler(mcpHandler http.Handler) http.Handler {
	mux := http.NewServeMux()
	if h.authToken != "" {
		mux.Handle("/", middleware.RequireBearer(h.authToken)(mcpHandler))
		logger.Info("Enabled bearer authentication for all routes")
	} else {
		mux.Handle("/", mcpHandler)
		logger.Info("Running without authentication")
	}
	return LoggingMiddleware(middleware.CORSWithOrigins(h.allowOrigins)(mux))
}

// LoggingMiddleware logs information about each incoming request
func LoggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		rw := &responseWriter{
			ResponseWriter: w,
			statusCode:     http.StatusOK,
		}
		next.ServeHTTP(rw, r)

		logger.Info("HTTP Request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.String("remote_addr", r.RemoteAddr),
			zap.Int("status", rw.statusCode),
			zap.Duration("duration", time.Since(start)),
			zap.String("user_agent", r.UserAgent()),
		)
	})
}

// responseWriter is a custom ResponseWriter that captures the status code
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

// WriteHeader captures the status code and passes it to the underlying ResponseWriter
func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

// Flush keeps SSE streaming working through the wrapper
func (rw *responseWriter) Flush() {
	if f, ok := rw.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

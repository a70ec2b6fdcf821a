package server

import (
	"bufio"
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/google/uuid"

	"wabridge/pkg/config"
	"wabridge/pkg/logger"
	"wabridge/pkg/whatsapp"
)

// Messenger is the adapter surface the gateway forwards to.
type Messenger interface {
	SendText(ctx context.Context, address, body string) (string, error)
	SendMedia(ctx context.Context, address string, payload []byte, mimeType, filename, caption string) (string, error)
	Session() (whatsapp.SessionInfo, bool)
	Status() whatsapp.StatusUpdate
	Subscribe() (<-chan whatsapp.StatusUpdate, func())
}

type Server struct {
	cfg       *config.Config
	messenger Messenger
	version   string
	server    *http.Server
}

func NewServer(cfg *config.Config, messenger Messenger, version string) *Server {
	return &Server{
		cfg:       cfg,
		messenger: messenger,
		version:   version,
	}
}

// Handler builds the route table with the middleware chain applied.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /{$}", s.handle(s.handleRoot))
	mux.HandleFunc("GET /status", s.handle(s.handleStatus))
	mux.HandleFunc("GET /qr", s.handle(s.handleQR))
	mux.HandleFunc("GET /events", s.handleEvents)
	mux.HandleFunc("POST /send-message", s.handle(s.handleSendMessage))
	mux.HandleFunc("POST /send-image", s.handle(s.handleSendImage))

	return s.withRecovery(s.withRequestLog(s.withCORS(mux)))
}

// Run serves until ctx is canceled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	s.server = &http.Server{
		Addr:              s.cfg.ListenAddr(),
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		MaxHeaderBytes:    1 << 20,
	}

	logger.InfoCF("server", "HTTP gateway listening", map[string]interface{}{
		"addr": s.server.Addr,
	})

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.server.Shutdown(shutdownCtx); err != nil {
			logger.WarnCF("server", "HTTP shutdown error", map[string]interface{}{
				logger.FieldError: err.Error(),
			})
		}
	}()

	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// handlerFunc is the explicit result/error shape each route returns;
// errors are mapped to JSON once, here.
type handlerFunc func(w http.ResponseWriter, r *http.Request) error

func (s *Server) handle(fn handlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := fn(w, r); err != nil {
			writeError(w, err)
		}
	}
}

func (s *Server) withCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := s.cfg.Server.AllowOrigin
		if origin == "" {
			origin = "*"
		}
		w.Header().Set("Access-Control-Allow-Origin", origin)
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization, X-Requested-With")
		w.Header().Set("Access-Control-Max-Age", "86400")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}

		next.ServeHTTP(w, r)
	})
}

func (s *Server) withRequestLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := uuid.NewString()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		start := time.Now()

		next.ServeHTTP(rec, r)

		logger.DebugCF("server", "Request handled", map[string]interface{}{
			logger.FieldRequestID: requestID,
			logger.FieldMethod:    r.Method,
			logger.FieldPath:      r.URL.Path,
			logger.FieldStatus:    rec.status,
			"duration_ms":         time.Since(start).Milliseconds(),
		})
	})
}

func (s *Server) withRecovery(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				logger.ErrorCF("server", "Handler panic recovered", map[string]interface{}{
					logger.FieldPath: r.URL.Path,
					"panic":          rec,
				})
				writeJSON(w, http.StatusInternalServerError, errorResponse{
					Success: false,
					Message: "Internal server error",
					Error:   "unexpected failure",
				})
			}
		}()
		next.ServeHTTP(w, r)
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

// Hijack keeps the websocket upgrade working through the logging wrapper.
func (r *statusRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	hijacker, ok := r.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, errors.New("response writer does not support hijacking")
	}
	return hijacker.Hijack()
}

// Package api provides the HTTP surface of the order intake service.
//
// It exposes a health endpoint, inbound webhooks for the platforms that are
// webhook driven, and read-only order lookups for staff tooling.
package api

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/sweetline/confectioner/internal/models"
	"github.com/sweetline/confectioner/internal/store"
)

// DefaultAddr is the default listen address for the API server.
const DefaultAddr = ":8080"

// Opts holds configuration options for the API server.
type Opts struct {
	Addr          string
	VKWebhook     http.HandlerFunc
	TwilioWebhook http.HandlerFunc
}

// Option defines a configuration option for the API server.
type Option func(*Opts)

// WithAddr sets the listen address.
func WithAddr(addr string) Option {
	return func(o *Opts) { o.Addr = addr }
}

// WithVKWebhook mounts the VK callback handler at /webhook/vk.
func WithVKWebhook(h http.HandlerFunc) Option {
	return func(o *Opts) { o.VKWebhook = h }
}

// WithTwilioWebhook mounts the Twilio inbound handler at /webhook/twilio.
func WithTwilioWebhook(h http.HandlerFunc) Option {
	return func(o *Opts) { o.TwilioWebhook = h }
}

// Server serves the HTTP API.
type Server struct {
	addr       string
	st         store.Store
	httpServer *http.Server
}

// NewServer creates an API server backed by the given store.
func NewServer(st store.Store, opts ...Option) *Server {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.Addr == "" {
		cfg.Addr = DefaultAddr
	}

	s := &Server{addr: cfg.Addr, st: st}

	mux := http.NewServeMux()
	mux.HandleFunc("/health", s.healthHandler)
	mux.HandleFunc("/orders", s.ordersHandler)
	mux.HandleFunc("/orders/", s.orderHandler)
	if cfg.VKWebhook != nil {
		mux.HandleFunc("/webhook/vk", cfg.VKWebhook)
	}
	if cfg.TwilioWebhook != nil {
		mux.HandleFunc("/webhook/twilio", cfg.TwilioWebhook)
	}

	s.httpServer = &http.Server{
		Addr:              cfg.Addr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

// Run starts the HTTP server and blocks until the context is cancelled or
// the listener fails.
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		slog.Info("Server listening", "addr", s.addr)
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
			slog.Error("Server shutdown error", "error", err)
			return err
		}
		slog.Info("Server stopped")
		return nil
	}
}

// healthHandler reports service liveness.
func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.Header().Set("Allow", http.MethodGet)
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	writeJSONResponse(w, http.StatusOK, models.SuccessWithMessage("healthy", nil))
}

// ordersHandler lists orders for a user.
func (s *Server) ordersHandler(w http.ResponseWriter, r *http.Request) {
	if r.Body != nil {
		defer r.Body.Close()
	}
	if r.Method != http.MethodGet {
		w.Header().Set("Allow", http.MethodGet)
		slog.Warn("Server.ordersHandler: method not allowed", "method", r.Method)
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	userID := r.URL.Query().Get("user_id")
	if userID == "" {
		writeJSONResponse(w, http.StatusBadRequest, models.Error("user_id query parameter is required"))
		return
	}

	orders, err := s.st.ListOrdersByUser(userID)
	if err != nil {
		slog.Error("Server.ordersHandler: failed to list orders", "error", err, "user_id", userID)
		writeJSONResponse(w, http.StatusInternalServerError, models.Error("Failed to list orders"))
		return
	}
	writeJSONResponse(w, http.StatusOK, models.Success(orders))
}

// orderHandler fetches a single order by ID.
func (s *Server) orderHandler(w http.ResponseWriter, r *http.Request) {
	if r.Body != nil {
		defer r.Body.Close()
	}
	if r.Method != http.MethodGet {
		w.Header().Set("Allow", http.MethodGet)
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	orderID := strings.TrimPrefix(r.URL.Path, "/orders/")
	if orderID == "" || strings.Contains(orderID, "/") {
		writeJSONResponse(w, http.StatusBadRequest, models.Error("Invalid order ID"))
		return
	}

	order, err := s.st.GetOrder(orderID)
	if err != nil {
		slog.Error("Server.orderHandler: failed to fetch order", "error", err, "order_id", orderID)
		writeJSONResponse(w, http.StatusInternalServerError, models.Error("Failed to fetch order"))
		return
	}
	if order == nil {
		writeJSONResponse(w, http.StatusNotFound, models.Error("Order not found"))
		return
	}
	writeJSONResponse(w, http.StatusOK, models.Success(order))
}

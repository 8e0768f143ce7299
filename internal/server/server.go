// internal/server/server.go
package server

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/erarta/api.neucor.ai/pkg/logger"
)

type Server struct {
	server *http.Server
	logger *logger.Logger
}

// NewServer wires the HTTP facade: registration, analysis proxying,
// credit purchase endpoints, the Stripe webhook, and a health check.
func NewServer(port string, h *Handler, l *logger.Logger) *Server {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})

	r.Post("/register", h.Register)
	r.Post("/analyze", h.Analyze)
	r.Post("/credits/buy", h.BuyCredits)
	r.Post("/credits/add", h.AddCredits)
	r.Post("/webhook/stripe", h.StripeWebhook)

	httpServer := &http.Server{
		Addr:         ":" + port,
		Handler:      r,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	return &Server{
		server: httpServer,
		logger: l,
	}
}

func (s *Server) Start() error {
	s.logger.Infow("Starting HTTP server", "addr", s.server.Addr)
	return s.server.ListenAndServe()
}

func (s *Server) Stop(ctx context.Context) error {
	s.logger.Info("Stopping HTTP server")
	return s.server.Shutdown(ctx)
}

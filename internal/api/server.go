package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/opensource-finance/quantra/internal/domain"
	"github.com/opensource-finance/quantra/internal/metrics"
)

// Server represents the HTTP API server.
type Server struct {
	router  *chi.Mux
	handler *Handler
	server  *http.Server
	config  domain.ServerConfig
}

// NewServer creates the API server and its routes.
func NewServer(cfg *domain.Config, svc Services, deps Deps, version string) *Server {
	handler := NewHandler(cfg, svc, deps, version)
	router := chi.NewRouter()

	router.Use(CORSMiddleware)
	router.Use(RecoverMiddleware)
	router.Use(TracingMiddleware)
	router.Use(LoggingMiddleware)
	router.Use(middleware.RealIP)
	router.Use(middleware.Compress(5))

	// Health and scrape endpoints (no tenant required)
	router.Get("/health", handler.Health)
	router.Get("/ready", handler.Ready)
	router.Method(http.MethodGet, "/metrics", metrics.Handler())

	router.Group(func(r chi.Router) {
		r.Use(TenantMiddleware)
		if cfg.RateLimit.Enabled {
			r.Use(newTenantLimiter(cfg.RateLimit).Middleware)
		}

		r.Route("/fraud", func(r chi.Router) {
			r.Post("/detect", handler.DetectFraud)
			r.Post("/explain", handler.ExplainFraud)
			r.Post("/anomaly", handler.DetectAnomaly)
			r.Post("/submit", handler.SubmitTransaction)
		})

		r.Route("/forecast", func(r chi.Router) {
			r.Post("/generate", handler.GenerateForecast)
			r.Post("/default-risk", handler.DefaultRisk)
		})

		r.Route("/kyc", func(r chi.Router) {
			r.Post("/verify", handler.VerifyKYC)
			r.Post("/document", handler.VerifyDocument)
			r.Post("/ocr", handler.ExtractText)
			r.Post("/face-match", handler.MatchFace)
		})

		r.Route("/chat", func(r chi.Router) {
			r.Post("/message", handler.ChatMessage)
			r.Post("/complete", handler.ChatComplete)
			r.Post("/sentiment", handler.ChatSentiment)
		})

		r.Get("/assessments/{id}", handler.GetAssessment)
	})

	return &Server{
		router:  router,
		handler: handler,
		config:  cfg.Server,
	}
}

// Start starts the HTTP server.
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)

	s.server = &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadTimeout:       time.Duration(s.config.ReadTimeout) * time.Second,
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      time.Duration(s.config.WriteTimeout) * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	return s.server.ListenAndServe()
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}

// Router returns the Chi router for testing.
func (s *Server) Router() *chi.Mux {
	return s.router
}

// Handler returns the handler for testing.
func (s *Server) Handler() *Handler {
	return s.handler
}

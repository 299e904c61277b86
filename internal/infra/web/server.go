package web

import (
	"context"
	"net/http"
	"time"

	"render-orchestrator/internal/domain/model"
	"render-orchestrator/internal/domain/ports/adapter"
	"render-orchestrator/internal/infra/progress"
	"render-orchestrator/internal/usecase"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
)

// ReplenishmentControl is the runtime toggle surface of the
// replenishment worker.
type ReplenishmentControl interface {
	SetEnabled(on bool)
	Enabled() bool
	Tick(ctx context.Context) error
}

// PerformanceReporter serves the aggregated throughput report.
type PerformanceReporter interface {
	Report(ctx context.Context, window time.Duration) (model.PerformanceReport, error)
}

// CacheInspector exposes cache occupancy for the readiness report.
type CacheInspector interface {
	Stats() model.CacheStats
}

// Server is the operator API: submit and watch generations, inspect
// readiness, manage subjects and the replenishment loop.
type Server struct {
	submitUC  usecase.SubmissionUseCase
	readiness usecase.ReadinessUseCase
	events    *progress.Channel
	backend   adapter.RenderBackendAdapter
	cache     CacheInspector
	perf      PerformanceReporter
	replenish ReplenishmentControl
	auth      *AuthManager
	apiKey    string
	log       *zerolog.Logger
}

func NewServer(
	submitUC usecase.SubmissionUseCase,
	readiness usecase.ReadinessUseCase,
	events *progress.Channel,
	backend adapter.RenderBackendAdapter,
	cache CacheInspector,
	perf PerformanceReporter,
	replenish ReplenishmentControl,
	auth *AuthManager,
	apiKey string,
	logger *zerolog.Logger,
) *Server {
	l := logger.With().Str("component", "WebServer").Logger()
	return &Server{
		submitUC:  submitUC,
		readiness: readiness,
		events:    events,
		backend:   backend,
		cache:     cache,
		perf:      perf,
		replenish: replenish,
		auth:      auth,
		apiKey:    apiKey,
		log:       &l,
	}
}

// Router builds the chi mux with all operator routes.
func (s *Server) Router() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	})
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		r.Post("/session", s.handleMintSession)

		r.Group(func(r chi.Router) {
			r.Use(s.authMiddleware)

			r.Post("/generations", s.handleSubmit)
			r.Get("/generations/{id}", s.handleGetJob)
			r.Get("/generations/{id}/events", s.handleJobEvents)

			r.Get("/readiness", s.handleReadiness)
			r.Get("/performance", s.handlePerformance)

			r.Put("/subjects/{id}/target", s.handleSetTarget)
			r.Post("/subjects/{id}/reset", s.handleResetBreaker)

			r.Post("/replenishment", s.handleReplenishEnable)
			r.Delete("/replenishment", s.handleReplenishDisable)
			r.Post("/replenishment/tick", s.handleReplenishTick)
		})
	})
	return r
}

// authMiddleware accepts either a minted session JWT or the bootstrap
// API key as a bearer token.
func (s *Server) authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, err := s.auth.ParseFromRequest(r); err == nil {
			next.ServeHTTP(w, r)
			return
		}
		if s.apiKey != "" && bearerToken(r) == s.apiKey {
			next.ServeHTTP(w, r)
			return
		}
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
	})
}

// Serve runs the HTTP server until ctx is cancelled.
func (s *Server) Serve(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe() }()
	s.log.Info().Str("addr", addr).Msg("operator API listening")

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	case err := <-errCh:
		return err
	}
}

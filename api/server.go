package api

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"

	"warroom/config"
	"warroom/core/auth"
	"warroom/core/incidents"
	"warroom/core/metrics"
	"warroom/core/participants"
	"warroom/core/rbac"
	"warroom/core/store"
	"warroom/core/utils"
)

// BackgroundWorker is started with the server and stopped on shutdown.
type BackgroundWorker interface {
	StartWithContext(ctx context.Context) error
	StopWithContext(ctx context.Context) error
}

type ServerDeps struct {
	DB           *store.DB
	IncidentsSvc *incidents.Service
	Participants *participants.Service
	Policy       *rbac.Policy
	Tokens       *auth.TokenAuthenticator
	Metrics      *metrics.Metrics
}

type Server struct {
	cfg          *config.AppConfig
	db           *store.DB
	logger       *utils.Logger
	metrics      *metrics.Metrics
	policy       *rbac.Policy
	tokens       *auth.TokenAuthenticator
	incidentsSvc *incidents.Service
	participants *participants.Service
	authLimiter  *requestLimiter
	router       chi.Router
}

func NewServer(cfg *config.AppConfig, deps ServerDeps, logger *utils.Logger) *Server {
	s := &Server{
		cfg:          cfg,
		db:           deps.DB,
		logger:       logger,
		metrics:      deps.Metrics,
		policy:       deps.Policy,
		tokens:       deps.Tokens,
		incidentsSvc: deps.IncidentsSvc,
		participants: deps.Participants,
		authLimiter:  newLimiter(authFailureBurst, authFailureRefill),
	}
	s.routes()
	return s
}

func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) routes() {
	r := chi.NewRouter()
	r.Use(s.recoverMiddleware, s.requestIDMiddleware, s.securityHeadersMiddleware, s.loggingMiddleware)
	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusNotFound, map[string]any{"error": map[string]string{"code": "common.notFound", "message": "no such route"}})
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]any{"error": map[string]string{"code": "common.methodNotAllowed", "message": r.Method + " not allowed"}})
	})
	h := s.newRouteHandlers()
	r.MethodFunc("GET", "/healthz", h.system.Health)
	r.Method("GET", "/metrics", s.metrics.Handler())
	r.Route("/api", func(apiRouter chi.Router) {
		s.registerIncidentRoutes(apiRouter, h)
		s.registerParticipantRoutes(apiRouter, h)
	})
	s.router = r
}

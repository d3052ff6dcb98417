package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"warroom/api/routegroups"
	"warroom/core/rbac"
)

func (s *Server) guards() routegroups.Guards {
	return routegroups.Guards{
		WithToken:         s.withToken,
		RequirePermission: func(p string) func(http.HandlerFunc) http.HandlerFunc { return s.requirePermission(rbac.Permission(p)) },
	}
}

func (s *Server) registerIncidentRoutes(apiRouter chi.Router, h routeHandlers) {
	routegroups.RegisterIncidents(apiRouter, s.guards(), h.incidents)
}

func (s *Server) registerParticipantRoutes(apiRouter chi.Router, h routeHandlers) {
	routegroups.RegisterParticipants(apiRouter, s.guards(), h.participants)
}

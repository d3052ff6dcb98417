package api

import "warroom/api/handlers"

type routeHandlers struct {
	incidents    *handlers.IncidentsHandler
	participants *handlers.ParticipantsHandler
	system       *handlers.SystemHandler
}

func (s *Server) newRouteHandlers() routeHandlers {
	return routeHandlers{
		incidents:    handlers.NewIncidentsHandler(s.incidentsSvc, s.logger),
		participants: handlers.NewParticipantsHandler(s.participants, s.logger),
		system:       handlers.NewSystemHandler(s.db, s.logger),
	}
}

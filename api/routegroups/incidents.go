package routegroups

import (
	"github.com/go-chi/chi/v5"

	"warroom/api/handlers"
)

// Routes are registered flat on apiRouter: the subject-generic participant
// patterns share a prefix with /incidents and /cases and a mounted sub-router
// would swallow them.
func RegisterIncidents(apiRouter chi.Router, g Guards, incidents *handlers.IncidentsHandler) {
	apiRouter.MethodFunc("GET", "/incidents", g.TokenPerm("incidents.view", incidents.List))
	apiRouter.MethodFunc("POST", "/incidents", g.TokenPerm("incidents.manage", incidents.Create))
	apiRouter.MethodFunc("GET", "/incidents/{id:[0-9]+}", g.TokenPerm("incidents.view", incidents.Get))
	apiRouter.MethodFunc("DELETE", "/incidents/{id:[0-9]+}", g.TokenPerm("incidents.manage", incidents.Delete))
	apiRouter.MethodFunc("POST", "/incidents/{id:[0-9]+}/status", g.TokenPerm("incidents.manage", incidents.UpdateStatus))
	apiRouter.MethodFunc("POST", "/incidents/{id:[0-9]+}/assign-role", g.TokenPerm("participants.manage", incidents.AssignRole))

	apiRouter.MethodFunc("GET", "/cases", g.TokenPerm("incidents.view", incidents.ListCases))
	apiRouter.MethodFunc("POST", "/cases", g.TokenPerm("incidents.manage", incidents.CreateCase))
	apiRouter.MethodFunc("GET", "/cases/{id:[0-9]+}", g.TokenPerm("incidents.view", incidents.GetCase))
	apiRouter.MethodFunc("DELETE", "/cases/{id:[0-9]+}", g.TokenPerm("incidents.manage", incidents.DeleteCase))
}

func RegisterParticipants(apiRouter chi.Router, g Guards, participants *handlers.ParticipantsHandler) {
	const base = "/{subject:incidents|cases}/{id:[0-9]+}"
	apiRouter.MethodFunc("GET", base+"/participants", g.TokenPerm("participants.view", participants.List))
	apiRouter.MethodFunc("POST", base+"/participants", g.TokenPerm("participants.manage", participants.Assign))
	apiRouter.MethodFunc("GET", base+"/participants/{email}", g.TokenPerm("participants.view", participants.Get))
	apiRouter.MethodFunc("POST", base+"/participants/inactivate", g.TokenPerm("participants.manage", participants.Inactivate))
	apiRouter.MethodFunc("POST", base+"/participants/reactivate", g.TokenPerm("participants.manage", participants.Reactivate))
	apiRouter.MethodFunc("POST", base+"/participants/remove", g.TokenPerm("participants.manage", participants.Remove))
	apiRouter.MethodFunc("POST", base+"/roles/{assignment_id:[0-9]+}/renounce", g.TokenPerm("participants.manage", participants.Renounce))
	apiRouter.MethodFunc("GET", base+"/holders/{role}", g.TokenPerm("participants.view", participants.Holder))
	apiRouter.MethodFunc("GET", base+"/pointers", g.TokenPerm("participants.view", participants.Pointers))
	apiRouter.MethodFunc("GET", base+"/events", g.TokenPerm("events.view", participants.Events))
	apiRouter.MethodFunc("POST", base+"/events", g.TokenPerm("participants.manage", participants.LogEvent))
}

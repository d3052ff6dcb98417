package handlers

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"warroom/core/incidents"
	"warroom/core/participants"
	"warroom/core/roles"
	"warroom/core/store"
	"warroom/core/utils"
)

type IncidentsHandler struct {
	svc    *incidents.Service
	logger *utils.Logger
}

func NewIncidentsHandler(svc *incidents.Service, logger *utils.Logger) *IncidentsHandler {
	return &IncidentsHandler{svc: svc, logger: logger}
}

func (h *IncidentsHandler) Create(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		incidents.CreateInput
		ReporterName     string `json:"reporter_name"`
		ReporterLocation string `json:"reporter_location"`
		ReporterTeam     string `json:"reporter_team"`
		ReporterWeblink  string `json:"reporter_weblink"`
	}
	if err := decodeJSON(r, &payload); err != nil {
		writeErrorCode(w, http.StatusBadRequest, "common.badRequest", "bad request")
		return
	}
	in := payload.CreateInput
	in.Reporter = store.IndividualProfile{
		Name:     payload.ReporterName,
		Location: payload.ReporterLocation,
		Team:     payload.ReporterTeam,
		Weblink:  payload.ReporterWeblink,
	}
	inc, err := h.svc.Create(r.Context(), in)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"incident": inc})
}

func (h *IncidentsHandler) List(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := store.IncidentFilter{
		Search:       strings.TrimSpace(q.Get("q")),
		Status:       strings.TrimSpace(q.Get("status")),
		IncidentType: strings.TrimSpace(q.Get("type")),
	}
	filter.Limit, _ = strconv.Atoi(q.Get("limit"))
	filter.Offset, _ = strconv.Atoi(q.Get("offset"))
	if filter.Limit <= 0 || filter.Limit > 500 {
		filter.Limit = 100
	}
	items, err := h.svc.List(r.Context(), filter)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	if items == nil {
		items = []store.Incident{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": items})
}

func (h *IncidentsHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, err := pathInt64(r, "id")
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	inc, err := h.svc.Get(r.Context(), id)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"incident": inc})
}

func (h *IncidentsHandler) UpdateStatus(w http.ResponseWriter, r *http.Request) {
	id, err := pathInt64(r, "id")
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	var payload struct {
		Status string `json:"status"`
	}
	if err := decodeJSON(r, &payload); err != nil || strings.TrimSpace(payload.Status) == "" {
		writeErrorCode(w, http.StatusBadRequest, "incidents.statusRequired", "status is required")
		return
	}
	inc, err := h.svc.UpdateStatus(r.Context(), id, payload.Status)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"incident": inc})
}

// AssignRole staffs role through the oncall lookup of the incident type,
// falling back to the given email.
func (h *IncidentsHandler) AssignRole(w http.ResponseWriter, r *http.Request) {
	id, err := pathInt64(r, "id")
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	var payload struct {
		Role  string `json:"role"`
		Email string `json:"email"`
	}
	if err := decodeJSON(r, &payload); err != nil {
		writeErrorCode(w, http.StatusBadRequest, "common.badRequest", "bad request")
		return
	}
	role, err := roles.Parse(payload.Role)
	if err != nil {
		writeError(w, h.logger, fmt.Errorf("%w: %v", participants.ErrInvalidArgument, err))
		return
	}
	inc, err := h.svc.Get(r.Context(), id)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	res, err := h.svc.AssignRole(r.Context(), inc, payload.Email, role, store.IndividualProfile{})
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (h *IncidentsHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id, err := pathInt64(r, "id")
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	if err := h.svc.Delete(r.Context(), id); err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

func (h *IncidentsHandler) CreateCase(w http.ResponseWriter, r *http.Request) {
	var payload incidents.CaseInput
	if err := decodeJSON(r, &payload); err != nil {
		writeErrorCode(w, http.StatusBadRequest, "common.badRequest", "bad request")
		return
	}
	c, err := h.svc.CreateCase(r.Context(), payload)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"case": c})
}

func (h *IncidentsHandler) ListCases(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	items, err := h.svc.ListCases(r.Context(), limit)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	if items == nil {
		items = []store.Case{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": items})
}

func (h *IncidentsHandler) GetCase(w http.ResponseWriter, r *http.Request) {
	id, err := pathInt64(r, "id")
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	c, err := h.svc.GetCase(r.Context(), id)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"case": c})
}

func (h *IncidentsHandler) DeleteCase(w http.ResponseWriter, r *http.Request) {
	id, err := pathInt64(r, "id")
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	if err := h.svc.DeleteCase(r.Context(), id); err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

package handlers

import (
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"warroom/core/auth"
	"warroom/core/participants"
	"warroom/core/roles"
	"warroom/core/store"
	"warroom/core/utils"
)

// ParticipantsHandler serves the participant routes shared by incidents and
// cases.
type ParticipantsHandler struct {
	svc    *participants.Service
	logger *utils.Logger
}

func NewParticipantsHandler(svc *participants.Service, logger *utils.Logger) *ParticipantsHandler {
	return &ParticipantsHandler{svc: svc, logger: logger}
}

type assignPayload struct {
	Email      string  `json:"email"`
	Role       string  `json:"role"`
	ServiceRef *string `json:"service_ref"`
	Name       string  `json:"name"`
	Location   string  `json:"location"`
	Team       string  `json:"team"`
	Weblink    string  `json:"weblink"`
}

type emailPayload struct {
	Email      string  `json:"email"`
	ServiceRef *string `json:"service_ref"`
}

func (h *ParticipantsHandler) List(w http.ResponseWriter, r *http.Request) {
	ref, err := h.existingSubject(r)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	items, err := h.svc.ListParticipants(r.Context(), ref)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	if items == nil {
		items = []store.Participant{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": items})
}

func (h *ParticipantsHandler) Get(w http.ResponseWriter, r *http.Request) {
	ref, err := subjectRef(r)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	email, _ := url.PathUnescape(pathParams(r)["email"])
	p, err := h.svc.GetParticipant(r.Context(), ref, email)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	if p == nil {
		writeErrorCode(w, http.StatusNotFound, "participants.notFound", "participant not found")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"participant": p})
}

// Assign adds the participant or gives them a role. Without a role the
// participant joins with the default role.
func (h *ParticipantsHandler) Assign(w http.ResponseWriter, r *http.Request) {
	ref, err := subjectRef(r)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	var payload assignPayload
	if err := decodeJSON(r, &payload); err != nil {
		writeErrorCode(w, http.StatusBadRequest, "common.badRequest", "bad request")
		return
	}
	opts := participants.Options{
		ServiceRef: payload.ServiceRef,
		Profile: store.IndividualProfile{
			Name:     payload.Name,
			Location: payload.Location,
			Team:     payload.Team,
			Weblink:  payload.Weblink,
		},
	}
	var res *participants.AssignResult
	if strings.TrimSpace(payload.Role) == "" {
		res, err = h.svc.AddParticipant(r.Context(), ref, payload.Email, opts)
	} else {
		role, perr := roles.Parse(payload.Role)
		if perr != nil {
			writeError(w, h.logger, fmt.Errorf("%w: %v", participants.ErrInvalidArgument, perr))
			return
		}
		res, err = h.svc.Assign(r.Context(), ref, payload.Email, role, opts)
	}
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	status := http.StatusOK
	if res.Created {
		status = http.StatusCreated
	}
	writeJSON(w, status, res)
}

func (h *ParticipantsHandler) Inactivate(w http.ResponseWriter, r *http.Request) {
	h.emailAction(w, r, func(ref store.SubjectRef, p emailPayload) (bool, error) {
		return h.svc.InactivateParticipant(r.Context(), ref, p.Email)
	})
}

func (h *ParticipantsHandler) Reactivate(w http.ResponseWriter, r *http.Request) {
	h.emailAction(w, r, func(ref store.SubjectRef, p emailPayload) (bool, error) {
		return h.svc.Reactivate(r.Context(), ref, p.Email, p.ServiceRef)
	})
}

func (h *ParticipantsHandler) Remove(w http.ResponseWriter, r *http.Request) {
	h.emailAction(w, r, func(ref store.SubjectRef, p emailPayload) (bool, error) {
		return h.svc.RemoveParticipant(r.Context(), ref, p.Email)
	})
}

func (h *ParticipantsHandler) emailAction(w http.ResponseWriter, r *http.Request, fn func(store.SubjectRef, emailPayload) (bool, error)) {
	ref, err := subjectRef(r)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	var payload emailPayload
	if err := decodeJSON(r, &payload); err != nil || strings.TrimSpace(payload.Email) == "" {
		writeErrorCode(w, http.StatusBadRequest, "participants.emailRequired", "email is required")
		return
	}
	ok, err := fn(ref, payload)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	if !ok {
		writeErrorCode(w, http.StatusNotFound, "participants.notFound", "participant not found or nothing to do")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

func (h *ParticipantsHandler) Renounce(w http.ResponseWriter, r *http.Request) {
	ref, err := subjectRef(r)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	id, err := pathInt64(r, "assignment_id")
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	a, err := h.svc.Renounce(r.Context(), ref, id)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"assignment": a})
}

// Holder derives the current holder of a privileged role from assignment
// history; Pointers returns the cached columns.
func (h *ParticipantsHandler) Holder(w http.ResponseWriter, r *http.Request) {
	ref, err := h.existingSubject(r)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	role, err := roles.Parse(pathParams(r)["role"])
	if err != nil {
		writeError(w, h.logger, fmt.Errorf("%w: %v", participants.ErrInvalidArgument, err))
		return
	}
	p, err := h.svc.CurrentHolder(r.Context(), ref, role)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"role": role, "participant": p})
}

func (h *ParticipantsHandler) Pointers(w http.ResponseWriter, r *http.Request) {
	ref, err := subjectRef(r)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	ptrs, err := h.svc.SubjectPointers(r.Context(), ref)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, ptrs)
}

func (h *ParticipantsHandler) Events(w http.ResponseWriter, r *http.Request) {
	ref, err := h.existingSubject(r)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	items, err := h.svc.ListEvents(r.Context(), ref, limit)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	if items == nil {
		items = []store.Event{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": items})
}

// LogEvent records a free-form timeline entry. The source defaults to the
// calling token's name.
func (h *ParticipantsHandler) LogEvent(w http.ResponseWriter, r *http.Request) {
	ref, err := h.existingSubject(r)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	var payload struct {
		Description string `json:"description"`
		Source      string `json:"source"`
	}
	if err := decodeJSON(r, &payload); err != nil || strings.TrimSpace(payload.Description) == "" {
		writeErrorCode(w, http.StatusBadRequest, "events.descriptionRequired", "description is required")
		return
	}
	source := strings.TrimSpace(payload.Source)
	if p, ok := auth.PrincipalFrom(r.Context()); ok && source == "" {
		source = p.Name
	}
	h.svc.LogEvent(r.Context(), ref, strings.TrimSpace(payload.Description), source)
	writeJSON(w, http.StatusAccepted, map[string]any{"ok": true})
}

func (h *ParticipantsHandler) existingSubject(r *http.Request) (store.SubjectRef, error) {
	ref, err := subjectRef(r)
	if err != nil {
		return ref, err
	}
	if _, err := h.svc.SubjectPointers(r.Context(), ref); err != nil {
		return ref, err
	}
	return ref, nil
}

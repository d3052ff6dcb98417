package handlers

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"warroom/core/participants"
	"warroom/core/store"
)

func pathParams(r *http.Request) map[string]string {
	out := map[string]string{}
	rc := chi.RouteContext(r.Context())
	if rc != nil {
		for i, key := range rc.URLParams.Keys {
			if i < len(rc.URLParams.Values) {
				out[key] = rc.URLParams.Values[i]
			}
		}
	}
	if len(out) > 0 {
		return out
	}
	// Fallback for direct handler tests without chi route context.
	segments := strings.Split(strings.Trim(strings.TrimSpace(r.URL.Path), "/"), "/")
	addParamAfter(segments, "api", "subject", out)
	if subject, ok := out["subject"]; ok {
		addParamAfter(segments, subject, "id", out)
	}
	addParamAfter(segments, "participants", "email", out)
	addParamAfter(segments, "roles", "assignment_id", out)
	addParamAfter(segments, "holders", "role", out)
	return out
}

func addParamAfter(segments []string, marker, key string, out map[string]string) {
	if _, exists := out[key]; exists {
		return
	}
	for i := 0; i < len(segments)-1; i++ {
		if segments[i] == marker && strings.TrimSpace(segments[i+1]) != "" {
			out[key] = segments[i+1]
			return
		}
	}
}

func pathInt64(r *http.Request, key string) (int64, error) {
	raw := pathParams(r)[key]
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("%w: bad %s %q", participants.ErrInvalidArgument, key, raw)
	}
	return id, nil
}

// subjectRef reads the {subject}/{id} pair shared by the participant routes.
func subjectRef(r *http.Request) (store.SubjectRef, error) {
	typ, err := store.ParseSubjectType(pathParams(r)["subject"])
	if err != nil {
		return store.SubjectRef{}, fmt.Errorf("%w: %v", participants.ErrInvalidArgument, err)
	}
	id, err := pathInt64(r, "id")
	if err != nil {
		return store.SubjectRef{}, err
	}
	return store.SubjectRef{Type: typ, ID: id}, nil
}

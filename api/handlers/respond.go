package handlers

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"warroom/core/participants"
	"warroom/core/store"
	"warroom/core/utils"
)

const maxPayloadBytes = 1 << 20

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func decodeJSON(r *http.Request, out any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxPayloadBytes))
	if err := dec.Decode(out); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}

func writeErrorCode(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, map[string]any{
		"error": map[string]string{"code": code, "message": message},
	})
}

// writeError maps engine and store errors onto HTTP statuses.
func writeError(w http.ResponseWriter, logger *utils.Logger, err error) {
	switch {
	case errors.Is(err, participants.ErrNotFound):
		writeErrorCode(w, http.StatusNotFound, "common.notFound", err.Error())
	case errors.Is(err, participants.ErrInvalidState), errors.Is(err, store.ErrConflict):
		writeErrorCode(w, http.StatusConflict, "common.conflict", err.Error())
	case errors.Is(err, participants.ErrConfiguration):
		writeErrorCode(w, http.StatusUnprocessableEntity, "common.configuration", err.Error())
	case errors.Is(err, participants.ErrInvalidArgument):
		writeErrorCode(w, http.StatusBadRequest, "common.badRequest", err.Error())
	default:
		logger.Errorf("api: %v", err)
		writeErrorCode(w, http.StatusInternalServerError, "common.internal", "internal server error")
	}
}

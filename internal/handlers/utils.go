package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/SunSc05/siyuantao-backend-sub001/internal/dal"
	"github.com/google/uuid"
)

type contextKey string

const contextSubjectKey contextKey = "sub"

// ErrorResponse is the JSON body returned for failed requests.
type ErrorResponse struct {
	Error string `json:"error"`
}

// Healthz reports liveness.
func Healthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func userIDFromContext(ctx context.Context) (uuid.UUID, error) {
	subject, ok := ctx.Value(contextSubjectKey).(string)
	if !ok || strings.TrimSpace(subject) == "" {
		return uuid.Nil, errors.New("missing subject")
	}
	id, err := uuid.Parse(strings.TrimSpace(subject))
	if err != nil {
		return uuid.Nil, errors.New("invalid subject")
	}
	return id, nil
}

func writeJSON(w http.ResponseWriter, status int, value any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(value)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, ErrorResponse{Error: message})
}

// writeDALError maps the DAL taxonomy onto HTTP statuses: not-found becomes
// 404, integrity conflicts become 409 with the classifier's message, and
// everything else is a 500 without internal detail.
func writeDALError(w http.ResponseWriter, err error) {
	switch {
	case dal.IsNotFound(err):
		writeError(w, http.StatusNotFound, err.Error())
	case dal.IsIntegrity(err):
		writeError(w, http.StatusConflict, err.Error())
	default:
		writeError(w, http.StatusInternalServerError, "internal server error")
	}
}

package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"medops-bknd/internal/apperr"
	"medops-bknd/internal/services"
	"medops-bknd/internal/workflow"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if data == nil {
		return
	}

	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	_ = enc.Encode(data)
}

type errorBody struct {
	Error string `json:"error"`
	Field string `json:"field,omitempty"`
}

// statusOf maps service errors onto HTTP statuses.
func statusOf(err error) int {
	var (
		validation *apperr.ValidationError
		fetch      *apperr.FetchError
		write      *apperr.WriteError
	)
	switch {
	case errors.As(err, &validation):
		return http.StatusBadRequest
	case errors.Is(err, apperr.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, services.ErrInvalidCredentials):
		return http.StatusUnauthorized
	case errors.Is(err, workflow.ErrInvalidTransition), errors.Is(err, services.ErrNoDestination):
		return http.StatusConflict
	case errors.As(err, &fetch), errors.As(err, &write):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// writeError logs server-side failures and replies with a JSON error. Store
// errors are reported generically so driver messages do not leak.
func writeError(w http.ResponseWriter, logr *zap.Logger, msg string, err error) {
	status := statusOf(err)
	body := errorBody{Error: err.Error()}

	var validation *apperr.ValidationError
	if errors.As(err, &validation) {
		body.Field = validation.Field
	}
	if status >= http.StatusInternalServerError {
		logr.Error(msg, zap.Error(err))
		body.Error = msg
	}
	writeJSON(w, status, body)
}

func decodeJSON(r *http.Request, dst any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return apperr.Invalid("", "invalid payload: "+err.Error())
	}
	return nil
}

func urlID(r *http.Request) (uuid.UUID, error) {
	return services.ParseID("id", chi.URLParam(r, "id"))
}

func queryInt(r *http.Request, key string) int {
	n, err := strconv.Atoi(r.URL.Query().Get(key))
	if err != nil {
		return 0
	}
	return n
}

func queryBool(r *http.Request, key string) bool {
	b, _ := strconv.ParseBool(r.URL.Query().Get(key))
	return b
}

// queryFloat parses a required float query parameter.
func queryFloat(r *http.Request, key string) (float64, error) {
	v, err := strconv.ParseFloat(r.URL.Query().Get(key), 64)
	if err != nil {
		return 0, apperr.Invalid(key, "must be a number")
	}
	return v, nil
}

func queryUUID(r *http.Request, key string) (*uuid.UUID, error) {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return nil, nil
	}
	id, err := services.ParseID(key, raw)
	if err != nil {
		return nil, err
	}
	return &id, nil
}

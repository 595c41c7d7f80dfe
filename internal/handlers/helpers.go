package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/goccy/go-json"

	"github.com/ternarybob/dartseries/internal/models"
)

// WriteJSON writes a JSON response with the specified status code and data.
func WriteJSON(w http.ResponseWriter, statusCode int, data interface{}) error {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	return json.NewEncoder(w).Encode(data)
}

// ErrorResponse is the body of every failed API call.
type ErrorResponse struct {
	Status     string   `json:"status"`
	Error      string   `json:"error"`
	Kind       string   `json:"kind,omitempty"`
	Candidates []string `json:"candidates,omitempty"`
}

// WriteError writes a standard error JSON response.
func WriteError(w http.ResponseWriter, statusCode int, message string) error {
	return WriteJSON(w, statusCode, ErrorResponse{Status: "error", Error: message})
}

// WritePipelineError maps a pipeline error onto its HTTP status and writes it.
func WritePipelineError(w http.ResponseWriter, err error) error {
	resp := ErrorResponse{
		Status: "error",
		Error:  err.Error(),
		Kind:   string(models.KindOf(err)),
	}
	var pe *models.PipelineError
	if errors.As(err, &pe) {
		resp.Candidates = pe.Candidates
	}
	return WriteJSON(w, StatusForError(err), resp)
}

// StatusForError returns the HTTP status for an error kind.
func StatusForError(err error) int {
	switch models.KindOf(err) {
	case models.ErrorInvalidInput:
		return http.StatusBadRequest
	case models.ErrorNotFound:
		return http.StatusNotFound
	case models.ErrorAmbiguous:
		return http.StatusConflict
	case models.ErrorInternal:
		return http.StatusInternalServerError
	default:
		return http.StatusBadGateway
	}
}

// QueryInt reads an integer query parameter, returning fallback when absent or malformed.
func QueryInt(r *http.Request, name string, fallback int) int {
	if v := r.URL.Query().Get(name); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

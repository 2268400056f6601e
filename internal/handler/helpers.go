package handler

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/estatedesk/internal/chat"
	"github.com/estatedesk/internal/logger"
	"github.com/estatedesk/internal/repository"
)

type errorResponse struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		logger.Errorf("writeJSON encode: %v", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Error: msg})
}

// writeServiceError maps service-layer errors onto HTTP statuses.
func writeServiceError(w http.ResponseWriter, err error) {
	switch {
	case chat.IsValidation(err):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, repository.ErrNotFound):
		writeError(w, http.StatusNotFound, "not found")
	case errors.Is(err, chat.ErrForbidden):
		writeError(w, http.StatusForbidden, "forbidden")
	default:
		logger.Errorf("handler: %v", err)
		writeError(w, http.StatusInternalServerError, "internal server error")
	}
}

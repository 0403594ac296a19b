package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/rs/zerolog"
	"github.com/safar/go-storefront/internal/auth"
	"github.com/safar/go-storefront/internal/database"
)

type response struct {
	Success bool        `json:"success"`
	Message string      `json:"message,omitempty"`
	Data    interface{} `json:"data,omitempty"`
}

func respondJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func respondOK(w http.ResponseWriter, status int, message string, data interface{}) {
	respondJSON(w, status, response{Success: true, Message: message, Data: data})
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, response{Success: false, Message: message})
}

var notFound = []error{
	database.ErrAccountNotFound,
	database.ErrProductNotFound,
	database.ErrOrderNotFound,
	database.ErrContactNotFound,
	database.ErrCartItemNotFound,
}

var conflicts = []error{
	database.ErrInsufficientStock,
	database.ErrInvalidTransition,
	database.ErrOrderNotCancellable,
	database.ErrDuplicateSKU,
	database.ErrEmailTaken,
	database.ErrAlreadySubscribed,
}

// errorStatus maps a domain error to its HTTP status and client message.
// Anything unrecognised is a 500 with a generic message.
func errorStatus(err error) (int, string) {
	var verr *database.ValidationError
	if errors.As(err, &verr) {
		return http.StatusBadRequest, verr.Error()
	}

	switch {
	case errors.Is(err, database.ErrCartEmpty):
		return http.StatusBadRequest, err.Error()
	case errors.Is(err, database.ErrInvalidCredentials), errors.Is(err, auth.ErrInvalidToken):
		return http.StatusUnauthorized, err.Error()
	case errors.Is(err, database.ErrSelfModification):
		return http.StatusForbidden, err.Error()
	case errors.Is(err, database.ErrOrderNumberExhaust):
		return http.StatusServiceUnavailable, "Could not place order, please retry"
	}
	for _, target := range notFound {
		if errors.Is(err, target) {
			return http.StatusNotFound, err.Error()
		}
	}
	for _, target := range conflicts {
		if errors.Is(err, target) {
			return http.StatusConflict, err.Error()
		}
	}
	return http.StatusInternalServerError, "Internal server error"
}

// fail writes err as a response. Server errors are logged with the request id;
// their details never reach the client.
func (s *Server) fail(w http.ResponseWriter, r *http.Request, err error) {
	status, message := errorStatus(err)
	if status >= http.StatusInternalServerError {
		s.requestLogger(r).Error().Err(err).Msg("request failed")
	}
	respondError(w, status, message)
}

func (s *Server) requestLogger(r *http.Request) *zerolog.Logger {
	l := s.logger.With().Str("request_id", RequestIDFrom(r.Context())).Logger()
	return &l
}

package server

import (
	"errors"
	"net/http"

	json "github.com/goccy/go-json"
	"github.com/rs/zerolog/log"

	"github.com/thebtf/lishe/internal/recommend"
	"github.com/thebtf/lishe/internal/validation"
	"github.com/thebtf/lishe/pkg/models"
)

// errorBody is the JSON shape of every error response.
type errorBody struct {
	Error  string                  `json:"error"`
	Code   string                  `json:"code"`
	Fields []validation.FieldError `json:"fields,omitempty"`
}

func writeJSON(w http.ResponseWriter, data interface{}) {
	writeJSONStatus(w, http.StatusOK, data)
}

func writeJSONStatus(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		log.Error().Err(err).Msg("Failed to encode JSON response")
	}
}

func writeErrorMessage(w http.ResponseWriter, status int, code, msg string) {
	writeJSONStatus(w, status, errorBody{Error: msg, Code: code})
}

// errorStatus maps domain errors to an HTTP status and a stable code.
func errorStatus(err error) (int, string) {
	var verr *validation.Error
	var maxBytes *http.MaxBytesError
	switch {
	case errors.As(err, &verr):
		return http.StatusBadRequest, "validation_failed"
	case errors.As(err, &maxBytes):
		return http.StatusRequestEntityTooLarge, "body_too_large"
	case errors.Is(err, recommend.ErrInvalidRequest):
		return http.StatusBadRequest, "invalid_request"
	case errors.Is(err, models.ErrRecordNotFound):
		return http.StatusNotFound, "not_found"
	case errors.Is(err, models.ErrFeedbackClosed):
		return http.StatusConflict, "feedback_closed"
	case errors.Is(err, models.ErrFeedbackTooEarly):
		return http.StatusConflict, "feedback_too_early"
	case errors.Is(err, models.ErrNoEatenFoods):
		return http.StatusUnprocessableEntity, "no_eaten_foods"
	case errors.Is(err, recommend.ErrUnknownFood):
		return http.StatusUnprocessableEntity, "unknown_food"
	case errors.Is(err, models.ErrUserExists):
		return http.StatusConflict, "user_exists"
	case errors.Is(err, models.ErrInvalidCredentials):
		return http.StatusUnauthorized, "invalid_credentials"
	}
	return http.StatusInternalServerError, "internal"
}

// writeError renders err. Internal errors are logged and hidden from the client.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	status, code := errorStatus(err)
	body := errorBody{Error: err.Error(), Code: code}

	var verr *validation.Error
	if errors.As(err, &verr) {
		body.Fields = verr.Fields
	}
	if status == http.StatusInternalServerError {
		log.Error().
			Err(err).
			Str("request_id", GetRequestID(r.Context())).
			Str("path", r.URL.Path).
			Msg("Request failed")
		body.Error = "internal server error"
	}
	writeJSONStatus(w, status, body)
}

// decodeJSON reads a JSON request body into dst.
func decodeJSON(r *http.Request, dst interface{}) error {
	dec := json.NewDecoder(r.Body)
	if err := dec.Decode(dst); err != nil {
		var maxBytes *http.MaxBytesError
		if errors.As(err, &maxBytes) {
			return err
		}
		return &badBodyError{err: err}
	}
	return nil
}

type badBodyError struct{ err error }

func (e *badBodyError) Error() string { return "invalid JSON body: " + e.err.Error() }

func (e *badBodyError) Unwrap() error { return recommend.ErrInvalidRequest }

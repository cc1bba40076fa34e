package http

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"childminder/internal/core"
	applog "childminder/internal/log"
	"childminder/internal/middleware/trace"
)

const maxBodyBytes = 1 << 20

type errorResponse struct {
	Error     string `json:"error"`
	RequestID string `json:"requestId,omitempty"`
}

// outcomeResponse reports the result of a lenient state change.
type outcomeResponse struct {
	Outcome string `json:"outcome"`
	Data    any    `json:"data,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, r *http.Request, status int, msg string) {
	writeJSON(w, status, errorResponse{Error: msg, RequestID: trace.GetRequestID(r.Context())})
}

// writeOutcome maps an Outcome to a status code: OK to okStatus, NoOp to 200
// and NotFound to 404.
func writeOutcome(w http.ResponseWriter, r *http.Request, outcome core.Outcome, okStatus int, data any) {
	switch outcome {
	case core.OutcomeOK:
		writeJSON(w, okStatus, outcomeResponse{Outcome: outcome.String(), Data: data})
	case core.OutcomeNoOp:
		writeJSON(w, http.StatusOK, outcomeResponse{Outcome: outcome.String()})
	default:
		writeError(w, r, http.StatusNotFound, "not found")
	}
}

// writeServiceError answers 422 for validation errors and 500 for everything else.
func writeServiceError(w http.ResponseWriter, r *http.Request, err error, msg string) {
	if core.IsValidation(err) {
		writeError(w, r, http.StatusUnprocessableEntity, err.Error())
		return
	}
	fields := applog.NewFields().WithError(err).WithComponent(applog.ComponentHTTP)
	applog.FromContext(r.Context()).Logger.ErrorContext(r.Context(), msg, fields.ToSlice()...)
	writeError(w, r, http.StatusInternalServerError, msg)
}

var errEmptyBody = errors.New("request body is empty")

// decodeJSON reads a single JSON document into v. allowEmpty accepts an
// empty body and leaves v untouched.
func decodeJSON(w http.ResponseWriter, r *http.Request, v any, allowEmpty bool) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	dec := json.NewDecoder(r.Body)
	if err := dec.Decode(v); err != nil {
		if errors.Is(err, io.EOF) {
			if allowEmpty {
				return nil
			}
			return errEmptyBody
		}
		return fmt.Errorf("malformed JSON: %w", err)
	}
	if dec.More() {
		return errors.New("malformed JSON: trailing data")
	}
	return nil
}

// Package responder writes the JSON envelope used by every endpoint.
package responder

import (
	"net/http"

	"github.com/leeforge/billing/errors"
	"github.com/leeforge/billing/json"
)

func writeJSON(w http.ResponseWriter, status int, payload any) {
	raw, err := json.Marshal(payload)
	if err != nil {
		fallback := []byte("{\"error\":{\"code\":5000,\"message\":\"encode failed\"},\"meta\":{}}")
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusInternalServerError)
		w.Write(fallback)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	w.Write(raw)
}

// Write sends a success response with data.
func Write(w http.ResponseWriter, r *http.Request, status int, data any, opts ...Option) {
	writeJSON(w, status, &Response{Data: data, Meta: *NewMeta(r, opts...)})
}

// OK responds with 200 and data.
func OK(w http.ResponseWriter, r *http.Request, data any, opts ...Option) {
	Write(w, r, http.StatusOK, data, opts...)
}

// Created responds with 201 and data.
func Created(w http.ResponseWriter, r *http.Request, data any, opts ...Option) {
	Write(w, r, http.StatusCreated, data, opts...)
}

// NoContent responds with 204.
func NoContent(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusNoContent)
}

// WriteErrorPayload sends a prepared error envelope.
func WriteErrorPayload(w http.ResponseWriter, r *http.Request, status int, e Error, opts ...Option) {
	writeJSON(w, status, &Response{Error: &e, Meta: *NewMeta(r, opts...)})
}

// WriteError maps err to a status and envelope. AppErrors keep their type,
// message and details; anything else is reported as an internal error
// without leaking its text.
func WriteError(w http.ResponseWriter, r *http.Request, err error, opts ...Option) {
	var app *errors.AppError
	if !errors.As(err, &app) {
		WriteErrorPayload(w, r, http.StatusInternalServerError, NewError(ErrCodeInternalServer, ""), opts...)
		return
	}

	payload := NewErrorWithDetails(CodeFor(app.Type), app.Message, nil)
	payload.Type = string(app.Type)
	if len(app.Details) > 0 {
		payload.Details = app.Details
	}
	if app.Type == errors.ErrorTypeInternal || app.Type == errors.ErrorTypeDatabase {
		payload.Message = GetErrorMessage(payload.Code)
		payload.Details = nil
	}
	WriteErrorPayload(w, r, errors.HTTPStatus(err), payload, opts...)
}

// RouteNotFound responds with 404 for unmatched paths.
func RouteNotFound(w http.ResponseWriter, r *http.Request) {
	WriteErrorPayload(w, r, http.StatusNotFound, NewError(ErrCodeRouteNotFound, ""))
}

// MethodNotAllowed responds with 405 for a known path and wrong method.
func MethodNotAllowed(w http.ResponseWriter, r *http.Request) {
	WriteErrorPayload(w, r, http.StatusMethodNotAllowed, NewError(ErrCodeBadRequest, "Method Not Allowed"))
}

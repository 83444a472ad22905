// Package api holds the JSON envelope shared by the REST handlers and the
// single mapping from domain error kinds to HTTP status codes.
package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/vedesh-padal/tal-chat-app/internal/platform/appctx"
	"github.com/vedesh-padal/tal-chat-app/internal/platform/apperr"
	"github.com/vedesh-padal/tal-chat-app/internal/platform/validation"
)

// maxJSONBody caps decoded request bodies.
const maxJSONBody = 1 << 20

// msgInternal replaces the message of every internal failure.
const msgInternal = "Internal server error"

// Envelope wraps every successful response.
type Envelope struct {
	StatusCode int    `json:"statusCode"`
	Data       any    `json:"data"`
	Message    string `json:"message"`
	Success    bool   `json:"success"`
}

// ErrorEnvelope wraps every error response.
type ErrorEnvelope struct {
	StatusCode int                 `json:"statusCode"`
	Message    string              `json:"message"`
	Errors     []apperr.FieldError `json:"errors"`
	Success    bool                `json:"success"`
}

// WriteJSON writes v with the given status.
func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// WriteSuccess writes data in the success envelope.
func WriteSuccess(w http.ResponseWriter, status int, data any, message string) {
	WriteJSON(w, status, Envelope{StatusCode: status, Data: data, Message: message, Success: true})
}

// WriteStatus writes an error envelope with an explicit status, for failures
// raised by middleware rather than by components.
func WriteStatus(w http.ResponseWriter, status int, message string) {
	WriteJSON(w, status, ErrorEnvelope{
		StatusCode: status,
		Message:    message,
		Errors:     []apperr.FieldError{},
	})
}

// StatusOf maps an error kind to its HTTP status.
func StatusOf(kind apperr.Kind) int {
	switch kind {
	case apperr.KindNotFound:
		return http.StatusNotFound
	case apperr.KindForbidden:
		return http.StatusForbidden
	case apperr.KindConflict:
		return http.StatusConflict
	case apperr.KindInvalidArgument:
		return http.StatusBadRequest
	case apperr.KindUnauthenticated:
		return http.StatusUnauthorized
	default:
		return http.StatusInternalServerError
	}
}

// WriteError writes err in the error envelope. Validation failures carrying
// field errors become 422. Internal errors are logged with the request logger
// and reach the client only as a generic message.
func WriteError(w http.ResponseWriter, r *http.Request, err error) {
	kind := apperr.KindOf(err)
	status := StatusOf(kind)
	message := apperr.MessageOf(err)
	fields := apperr.FieldsOf(err)

	if kind == apperr.KindInvalidArgument && len(fields) > 0 {
		status = http.StatusUnprocessableEntity
	}
	if kind == apperr.KindInternal {
		appctx.GetLogger(r.Context()).Error("request failed", "error", err)
		message = msgInternal
	}
	if fields == nil {
		fields = []apperr.FieldError{}
	}
	WriteJSON(w, status, ErrorEnvelope{StatusCode: status, Message: message, Errors: fields})
}

// ReadJSON reads a JSON body into dst. An empty body leaves dst untouched.
func ReadJSON(r *http.Request, dst any) error {
	if r.Body == nil {
		return nil
	}
	dec := json.NewDecoder(io.LimitReader(r.Body, maxJSONBody))
	if err := dec.Decode(dst); err != nil && !errors.Is(err, io.EOF) {
		return apperr.InvalidArgument("request body is not valid JSON")
	}
	return nil
}

// DecodeJSON is ReadJSON followed by validation of dst's validate tags.
func DecodeJSON(r *http.Request, dst any) error {
	if err := ReadJSON(r, dst); err != nil {
		return err
	}
	return validation.Struct(dst)
}

// IsMultipart reports whether the request carries a multipart form.
func IsMultipart(r *http.Request) bool {
	return strings.HasPrefix(r.Header.Get("Content-Type"), "multipart/form-data")
}

// HealthHandler handles GET /healthz.
func HealthHandler(w http.ResponseWriter, _ *http.Request) {
	WriteSuccess(w, http.StatusOK, map[string]string{"status": "ok"}, "Server is healthy")
}

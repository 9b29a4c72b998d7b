package httpx

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"

	apperrors "github.com/target/cqrs-monitor/internal/errors"
)

// maxJSONBody bounds request bodies decoded by DecodeJSON.
const maxJSONBody = 1 << 20

// DecodeJSON decodes JSON from the request body into the destination and handles errors.
// Returns true if successful, false if there was an error (error response already written).
func DecodeJSON(w http.ResponseWriter, r *http.Request, dst any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxJSONBody))
	dec.DisallowUnknownFields()

	if err := dec.Decode(dst); err != nil {
		WriteError(w, ErrorParams{Code: http.StatusBadRequest, ErrCode: "invalid_json", Err: err})
		return false
	}

	return true
}

// WriteJSON writes a JSON response with the given status code and data.
func WriteJSON(w http.ResponseWriter, code int, v any) {
	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(v); err != nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if _, err := buf.WriteTo(w); err != nil {
		// Response writer errors (e.g., client disconnect) can't be recovered from here.
		return
	}
}

// ErrorParams groups parameters for WriteError.
type ErrorParams struct {
	Code    int
	ErrCode string
	Err     error
}

// errorBody is the JSON shape of every error response. Success is always
// false so clients written against the admin endpoints can branch on it.
type errorBody struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
	Message string `json:"message"`
	Field   string `json:"field,omitempty"`
}

// WriteError writes a JSON error response using ErrorParams.
func WriteError(w http.ResponseWriter, p ErrorParams) {
	WriteJSON(w, p.Code, errorBody{
		Error:   p.ErrCode,
		Message: p.Err.Error(),
		Field:   apperrors.GetField(p.Err),
	})
}

// WriteAppError maps an application error onto its HTTP status. Internal
// causes are not echoed to the client.
func WriteAppError(w http.ResponseWriter, err error) {
	status, code := StatusForError(err)
	msg := err.Error()
	var appErr *apperrors.AppError
	if errors.As(err, &appErr) {
		msg = appErr.Message
	}
	if status == http.StatusInternalServerError && code != string(apperrors.ErrCodeMisconfigured) {
		msg = "Internal server error"
	}
	WriteJSON(w, status, errorBody{Error: code, Message: msg, Field: apperrors.GetField(err)})
}

// StatusForError returns the HTTP status and wire code for err.
func StatusForError(err error) (int, string) {
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout, string(apperrors.ErrCodeTimeout)
	case errors.Is(err, context.Canceled):
		return http.StatusServiceUnavailable, string(apperrors.ErrCodeCanceled)
	}

	code := apperrors.GetCode(err)
	switch code {
	case apperrors.ErrCodeUnauthenticated:
		return http.StatusUnauthorized, string(code)
	case apperrors.ErrCodeForbidden, apperrors.ErrCodeNotAuthorizedEmail:
		return http.StatusForbidden, string(code)
	case apperrors.ErrCodeAdminExists, apperrors.ErrCodeConflict:
		return http.StatusConflict, string(code)
	case apperrors.ErrCodeValidation:
		return http.StatusBadRequest, string(code)
	case apperrors.ErrCodeNotFound:
		return http.StatusNotFound, string(code)
	case apperrors.ErrCodeUpstreamUnavailable:
		return http.StatusBadGateway, string(code)
	case apperrors.ErrCodeTimeout:
		return http.StatusGatewayTimeout, string(code)
	case apperrors.ErrCodeCanceled:
		return http.StatusServiceUnavailable, string(code)
	case apperrors.ErrCodeMisconfigured:
		return http.StatusInternalServerError, string(code)
	default:
		return http.StatusInternalServerError, string(apperrors.ErrCodeInternal)
	}
}

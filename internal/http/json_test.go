package httpx

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"

	apperrors "github.com/target/cqrs-monitor/internal/errors"
)

func TestStatusForError(t *testing.T) {
	tests := []struct {
		err    error
		status int
		code   string
	}{
		{apperrors.Unauthenticated("x"), http.StatusUnauthorized, "unauthenticated"},
		{apperrors.Forbidden("x"), http.StatusForbidden, "forbidden"},
		{apperrors.AdminExists(), http.StatusConflict, "admin_exists"},
		{apperrors.NotAuthorizedEmail(), http.StatusForbidden, "not_authorized_email"},
		{apperrors.Misconfigured("x"), http.StatusInternalServerError, "misconfigured"},
		{apperrors.UpstreamUnavailable(errors.New("dial"), "x"), http.StatusBadGateway, "upstream_unavailable"},
		{apperrors.Validation("x"), http.StatusBadRequest, "validation"},
		{apperrors.NotFound("x"), http.StatusNotFound, "not_found"},
		{apperrors.Conflict("x"), http.StatusConflict, "conflict"},
		{fmt.Errorf("wrapped: %w", apperrors.Forbidden("x")), http.StatusForbidden, "forbidden"},
		{context.DeadlineExceeded, http.StatusGatewayTimeout, "timeout"},
		{errors.New("boom"), http.StatusInternalServerError, "internal"},
	}
	for _, tt := range tests {
		t.Run(tt.code, func(t *testing.T) {
			status, code := StatusForError(tt.err)
			assert.Equal(t, tt.status, status)
			assert.Equal(t, tt.code, code)
		})
	}
}

func TestWriteAppError_HidesInternalCauses(t *testing.T) {
	rec := httptest.NewRecorder()
	WriteAppError(rec, apperrors.Wrap(errors.New("pq: password authentication failed"), apperrors.ErrCodeInternal, "db"))

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	body := decodeBody(t, rec)
	assert.Equal(t, "Internal server error", body["message"])
	assert.Equal(t, false, body["success"])
	assert.NotContains(t, rec.Body.String(), "password")
}

func TestWriteAppError_KeepsFieldForValidation(t *testing.T) {
	rec := httptest.NewRecorder()
	WriteAppError(rec, apperrors.ValidationField("role", "role must be one of: viewer writer admin"))

	body := decodeBody(t, rec)
	assert.Equal(t, "role", body["field"])
	assert.Equal(t, "role must be one of: viewer writer admin", body["message"])
}

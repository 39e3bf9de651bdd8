package api

import (
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/warp/leave-engine/generic"
	"go.uber.org/zap"
)

func TestStatusFor(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		status int
		code   string
	}{
		{"validation", generic.NewValidationError("reason", "required"), http.StatusBadRequest, CodeValidation},
		{"unauthenticated", fmt.Errorf("%w: expired", generic.ErrUnauthenticated), http.StatusUnauthorized, CodeUnauthenticated},
		{"forbidden", &generic.ForbiddenError{ActorID: "a", Operation: "decide"}, http.StatusForbidden, CodeForbidden},
		{"balance not found", generic.ErrBalanceNotFound, http.StatusNotFound, CodeBalanceNotFound},
		{"not found", &generic.NotFoundError{Kind: "application", ID: "x"}, http.StatusNotFound, CodeNotFound},
		{"transition", &generic.InvalidTransitionError{From: "approved", To: "cancelled"}, http.StatusConflict, CodeInvalidTransition},
		{"concurrent", generic.ErrConcurrentModification, http.StatusConflict, CodeConcurrentModification},
		{"duplicate posting", generic.ErrDuplicateIdempotencyKey, http.StatusConflict, CodeConflict},
		{"insufficient", &generic.InsufficientBalanceError{Available: generic.Days(1), Requested: generic.Days(2)}, http.StatusUnprocessableEntity, CodeInsufficientBalance},
		{"internal", generic.Internal("load", errors.New("disk I/O error")), http.StatusInternalServerError, CodeInternal},
		{"unknown", errors.New("boom"), http.StatusInternalServerError, CodeInternal},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			status, code := statusFor(tt.err)
			assert.Equal(t, tt.status, status)
			assert.Equal(t, tt.code, code)
		})
	}
}

func TestHumanField(t *testing.T) {
	assert.Equal(t, "Leave Type Id", humanField("leave_type_id"))
	assert.Equal(t, "Reason", humanField("reason"))
}

func TestWriteDomainError_RetryAfterOnlyForLostUpdates(t *testing.T) {
	rec := httptest.NewRecorder()
	writeDomainError(rec, zap.NewNop(), generic.ErrConcurrentModification)

	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, retryAfterSeconds, rec.Header().Get("Retry-After"))

	rec = httptest.NewRecorder()
	writeDomainError(rec, zap.NewNop(), generic.ErrConflict)

	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Empty(t, rec.Header().Get("Retry-After"))
}

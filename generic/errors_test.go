package generic_test

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/warp/leave-engine/generic"
)

func TestErrorClassification(t *testing.T) {
	tests := []struct {
		name      string
		err       error
		retryable bool
		client    bool
		notFound  bool
	}{
		{"lost update", fmt.Errorf("decide: %w", generic.ErrConcurrentModification), true, false, false},
		{"validation", generic.NewValidationError("reason", "required"), false, true, false},
		{"forbidden", &generic.ForbiddenError{ActorID: "bob", Operation: "decide"}, false, true, false},
		{"insufficient", &generic.InsufficientBalanceError{Available: generic.Days(1), Requested: generic.Days(3)}, false, true, false},
		{"duplicate posting", generic.ErrDuplicateIdempotencyKey, false, true, false},
		{"missing application", &generic.NotFoundError{Kind: "application", ID: "x"}, false, false, true},
		{"missing bucket", generic.ErrBalanceNotFound, false, false, true},
		{"storage", generic.Internal("load", errors.New("disk I/O error")), false, false, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.retryable, generic.IsRetryable(tt.err))
			assert.Equal(t, tt.client, generic.IsClientError(tt.err))
			assert.Equal(t, tt.notFound, generic.IsNotFound(tt.err))
		})
	}
}

package api

import (
	"errors"
	"net/http"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/warp/leave-engine/generic"
	"go.uber.org/zap"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// Error codes carried in the "error" field of every error body.
const (
	CodeBadRequest             = "BAD_REQUEST"
	CodeValidation             = "VALIDATION_ERROR"
	CodeUnauthenticated        = "UNAUTHENTICATED"
	CodeForbidden              = "FORBIDDEN"
	CodeNotFound               = "NOT_FOUND"
	CodeBalanceNotFound        = "BALANCE_NOT_FOUND"
	CodeInvalidTransition      = "INVALID_STATE_TRANSITION"
	CodeConflict               = "CONFLICT"
	CodeConcurrentModification = "CONCURRENT_MODIFICATION"
	CodeInsufficientBalance    = "INSUFFICIENT_BALANCE"
	CodeRateLimited            = "RATE_LIMITED"
	CodeProcessing             = "PROCESSING"
	CodeInternal               = "INTERNAL_ERROR"
)

// retryAfterSeconds is sent with errors a client may simply retry.
const retryAfterSeconds = "1"

// ErrorResponse is the standard error body.
type ErrorResponse struct {
	Error   string         `json:"error"`
	Message string         `json:"message"`
	Details map[string]any `json:"details,omitempty"`
}

// statusFor maps a domain error to its HTTP status and code.
// Order matters: BalanceNotFound is checked before NotFound, and
// idempotency duplicates fall through to Conflict.
func statusFor(err error) (int, string) {
	switch {
	case errors.Is(err, generic.ErrValidation):
		return http.StatusBadRequest, CodeValidation
	case errors.Is(err, generic.ErrUnauthenticated):
		return http.StatusUnauthorized, CodeUnauthenticated
	case errors.Is(err, generic.ErrForbidden):
		return http.StatusForbidden, CodeForbidden
	case errors.Is(err, generic.ErrBalanceNotFound):
		return http.StatusNotFound, CodeBalanceNotFound
	case errors.Is(err, generic.ErrNotFound):
		return http.StatusNotFound, CodeNotFound
	case errors.Is(err, generic.ErrInvalidStateTransition):
		return http.StatusConflict, CodeInvalidTransition
	case errors.Is(err, generic.ErrConcurrentModification):
		return http.StatusConflict, CodeConcurrentModification
	case errors.Is(err, generic.ErrConflict):
		return http.StatusConflict, CodeConflict
	case errors.Is(err, generic.ErrInsufficientBalance):
		return http.StatusUnprocessableEntity, CodeInsufficientBalance
	default:
		return http.StatusInternalServerError, CodeInternal
	}
}

// writeDomainError renders err. Internal errors are logged and replaced by a
// generic message so storage details never reach the client.
func writeDomainError(w http.ResponseWriter, logger *zap.Logger, err error) {
	status, code := statusFor(err)
	resp := ErrorResponse{Error: code, Message: err.Error()}

	var ve *generic.ValidationError
	var ie *generic.InsufficientBalanceError
	var te *generic.InvalidTransitionError
	switch {
	case errors.As(err, &ve):
		resp.Message = ve.Message
		resp.Details = map[string]any{"field": ve.Field}
	case errors.As(err, &ie):
		resp.Details = map[string]any{
			"available": ie.Available.Float64(),
			"requested": ie.Requested.Float64(),
		}
	case errors.As(err, &te):
		resp.Details = map[string]any{"from": te.From, "to": te.To}
	}

	if generic.IsRetryable(err) {
		w.Header().Set("Retry-After", retryAfterSeconds)
	}
	if status == http.StatusInternalServerError {
		logger.Error("request failed", zap.Error(err))
		resp.Message = "An internal error occurred"
		resp.Details = nil
	}
	writeJSON(w, status, resp)
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, ErrorResponse{Error: code, Message: message})
}

// =============================================================================
// REQUEST VALIDATION
// =============================================================================

func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// humanField turns "leave_type_id" into "Leave Type Id".
func humanField(s string) string {
	return cases.Title(language.English).String(strings.ReplaceAll(s, "_", " "))
}

// validationError converts the first validator failure into a domain
// ValidationError keyed by the JSON field name.
func validationError(err error) error {
	var errs validator.ValidationErrors
	if !errors.As(err, &errs) || len(errs) == 0 {
		return generic.NewValidationError("", "invalid input")
	}
	e := errs[0]
	field := e.Field()
	label := humanField(field)
	switch e.Tag() {
	case "required", "required_if":
		return generic.NewValidationError(field, label+" is required")
	case "datetime":
		return generic.NewValidationError(field, label+" must be a date (YYYY-MM-DD)")
	case "oneof":
		return generic.NewValidationError(field, label+" must be one of: "+e.Param())
	case "max":
		return generic.NewValidationError(field, label+" is too long")
	default:
		return generic.NewValidationError(field, label+" is invalid")
	}
}

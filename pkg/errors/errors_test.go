package errors

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestError_IsMatchesDerivedCopies(t *testing.T) {
	derived := ErrCommitRace.WithDetail("resource_id", "sub_A").WithCause(fmt.Errorf("lost"))

	assert.ErrorIs(t, derived, ErrCommitRace)
	assert.NotErrorIs(t, derived, ErrHandlerFailed)
	assert.True(t, IsCommitRace(fmt.Errorf("wrapped: %w", derived)))
	assert.Empty(t, ErrCommitRace.Details)
}

func TestError_Retryability(t *testing.T) {
	tests := []struct {
		name string
		err  *Error
		want bool
	}{
		{"rate limited", ErrRateLimited, true},
		{"unavailable", ErrServiceUnavailable, true},
		{"handler failed", ErrHandlerFailed, false},
		{"forced retryable", ErrHandlerFailed.AsRetryable(), true},
		{"forced fatal", ErrRateLimited.AsFatal(), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.err.IsRetryable())
			assert.Equal(t, !tt.want, tt.err.IsFatal())
			assert.Equal(t, tt.want, IsRetryable(fmt.Errorf("ctx: %w", tt.err)))
		})
	}
}

func TestToHTTPStatus(t *testing.T) {
	assert.Equal(t, http.StatusTooManyRequests, ToHTTPStatus(ErrRateLimited.WithCause(errors.New("429"))))
	assert.Equal(t, http.StatusUnauthorized, ToHTTPStatus(ErrInvalidSignature))
	assert.Equal(t, http.StatusInternalServerError, ToHTTPStatus(errors.New("plain")))
}

func TestToErrorResponse(t *testing.T) {
	resp := ToErrorResponse(ErrHandlerFailed.WithDetail("event_id", "evt_1").WithDetail("stack_trace", "..."))

	assert.Equal(t, false, resp["success"])
	assert.Equal(t, "HANDLER_FAILED", resp["error_code"])
	assert.Equal(t, map[string]interface{}{"event_id": "evt_1"}, resp["details"])

	plain := ToErrorResponse(errors.New("boom"))
	assert.Equal(t, "INTERNAL_ERROR", plain["error_code"])
	assert.NotContains(t, plain, "details")
}

func TestRecoverPanic(t *testing.T) {
	assert.Nil(t, RecoverPanic(nil))

	err := RecoverPanic("boom")
	assert.ErrorIs(t, err, ErrHandlerFailed)

	var appErr *Error
	if assert.True(t, errors.As(err, &appErr)) {
		assert.True(t, appErr.IsFatal())
		assert.Contains(t, appErr.Details, "stack_trace")
	}

	wrapped := RecoverPanic(errors.New("bad"))
	assert.ErrorContains(t, wrapped, "bad")
}

package domain

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func ptrTime() *time.Time {
	t := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	return &t
}

func TestError_Format(t *testing.T) {
	err := Conflict("idempotency key reused with a different request")
	assert.Equal(t, "CONFLICT: idempotency key reused with a different request", err.Error())

	cause := errors.New("disk full")
	wrapped := Internal(cause)
	assert.Contains(t, wrapped.Error(), "disk full")
	assert.ErrorIs(t, wrapped, cause)
}

func TestKindOf_Wrapped(t *testing.T) {
	err := fmt.Errorf("handler: %w", Validation("quantity must be positive, got %d", 0))
	assert.Equal(t, KindValidation, KindOf(err))
	assert.True(t, IsValidation(err))
	assert.False(t, IsConflict(err))

	assert.Equal(t, KindInternal, KindOf(errors.New("plain")))
	assert.True(t, IsConflict(fmt.Errorf("x: %w", Conflict("reused"))))
}

func TestReason_KindAndMessage(t *testing.T) {
	tests := []struct {
		reason Reason
		kind   Kind
	}{
		{ReasonBadRequest, KindValidation},
		{ReasonSessionNotFound, KindNotFound},
		{ReasonNotStaff, KindAuthorization},
		{ReasonItemNotReady, KindStateConflict},
		{ReasonUnpaidBalance, KindBusinessRule},
		{Reason("mystery"), KindInternal},
	}
	for _, tt := range tests {
		t.Run(string(tt.reason), func(t *testing.T) {
			assert.Equal(t, tt.kind, tt.reason.Kind())
			assert.NotEmpty(t, tt.reason.Message())
		})
	}
	assert.Equal(t, "You are not staff at this location", ReasonNotStaff.Message())
}

func TestResult_Outcome(t *testing.T) {
	type reply struct {
		Result
		SessionID string
	}
	r := reply{Result: Fail(ReasonSessionNotOpen), SessionID: "s"}
	assert.False(t, r.Outcome().OK)
	assert.Equal(t, ReasonSessionNotOpen, r.Outcome().Reason)
	assert.True(t, Success().Outcome().OK)
}

package errors

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAppErrorWrapping(t *testing.T) {
	cause := errors.New("connection refused")
	err := Transport("generate pairing", cause)

	assert.Equal(t, ErrCodeTransport, err.Code)
	assert.ErrorIs(t, err, cause)
	assert.Contains(t, err.Error(), "TRANSPORT_ERROR")
	assert.Contains(t, err.Error(), "connection refused")
}

func TestAsAppErrorThroughChain(t *testing.T) {
	inner := SessionExpired()
	wrapped := fmt.Errorf("poll: %w", inner)

	appErr, ok := AsAppError(wrapped)
	require.True(t, ok)
	assert.Equal(t, ErrCodeSessionExpired, appErr.Code)
	assert.Equal(t, "Session expired or invalid.", appErr.Message)

	assert.True(t, HasCode(wrapped, ErrCodeSessionExpired))
	assert.False(t, HasCode(wrapped, ErrCodeTransport))
}

func TestGetCode(t *testing.T) {
	assert.Equal(t, ErrCodeNoActiveSession, GetCode(NoActiveSession()))
	assert.Equal(t, ErrCodeInternal, GetCode(errors.New("plain")))
}

func TestWithDetails(t *testing.T) {
	err := ValidationError("Message text is required").WithDetails(map[string]string{"field": "text"})
	assert.Equal(t, map[string]string{"field": "text"}, err.Details)
	assert.False(t, IsAppError(errors.New("plain")))
	assert.True(t, IsAppError(err))
}

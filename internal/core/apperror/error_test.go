package apperror

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAsAppError_ThroughWrapping(t *testing.T) {
	base := NewInsufficientStock("p-1", 6, 4)
	wrapped := fmt.Errorf("apply movement: %w", base)

	appErr, ok := AsAppError(wrapped)
	assert.True(t, ok)
	assert.Equal(t, CodeInsufficientStock, appErr.Code)
	assert.Equal(t, int64(6), appErr.Details["requested"])
	assert.Equal(t, int64(4), appErr.Details["available"])
	assert.True(t, IsInsufficientStock(wrapped))
	assert.Equal(t, http.StatusUnprocessableEntity, GetHTTPStatus(wrapped))
}

func TestGetHTTPStatus_UnknownError(t *testing.T) {
	assert.Equal(t, http.StatusInternalServerError, GetHTTPStatus(errors.New("boom")))
}

func TestHasCode(t *testing.T) {
	assert.True(t, HasCode(NewLineItemNotFound("o", "i"), CodeLineItemNotFound))
	assert.False(t, HasCode(NewLineItemNotFound("o", "i"), CodeNotFound))
	assert.True(t, IsNotFound(NewNotFound("product", "p")))
	assert.False(t, IsNotFound(nil))
}

func TestAppError_UnwrapAndMessage(t *testing.T) {
	cause := errors.New("connection reset")
	err := NewInternal(cause)

	assert.ErrorIs(t, err, cause)
	assert.Contains(t, err.Error(), "connection reset")
	assert.Equal(t, "INVALID_QUANTITY: Quantity must be a positive integer", NewInvalidQuantity(0).Error())
}

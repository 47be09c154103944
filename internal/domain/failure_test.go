package domain

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFailure_IsMatchesByCode(t *testing.T) {
	err := fmt.Errorf("lock balance: %w", Wrap(ErrInsufficientFunds, errors.New("available 10 < 20")))

	assert.ErrorIs(t, err, ErrInsufficientFunds)
	assert.NotErrorIs(t, err, ErrNotFound)

	f := AsFailure(err)
	require.NotNil(t, f)
	assert.Equal(t, CodeInsufficientFunds, f.Code)
	assert.Contains(t, f.Error(), "available 10 < 20")
}

func TestAsFailure_PlainErrorIsUnknown(t *testing.T) {
	f := AsFailure(errors.New("boom"))

	assert.Equal(t, CodeUnknown, f.Code)
	assert.True(t, f.Retryable())
	assert.Equal(t, http.StatusInternalServerError, f.HTTPStatus())
	assert.Nil(t, AsFailure(nil))
}

func TestFailure_RetryableFlags(t *testing.T) {
	assert.True(t, Retryable(ErrNoAvailableRate))
	assert.True(t, Retryable(ErrUnknown))
	assert.False(t, Retryable(ErrInsufficientFunds))
	assert.False(t, Retryable(ErrOldFxRate))
	assert.False(t, Retryable(nil))
}

func TestFailure_HTTPStatus(t *testing.T) {
	assert.Equal(t, http.StatusNotFound, ErrInvalidSenderAccount.HTTPStatus())
	assert.Equal(t, http.StatusConflict, ErrDuplicate.HTTPStatus())
	assert.Equal(t, http.StatusUnprocessableEntity, ErrUnsupportedCurrencyPair.HTTPStatus())
	assert.Equal(t, http.StatusServiceUnavailable, ErrNoAvailableRate.HTTPStatus())
}

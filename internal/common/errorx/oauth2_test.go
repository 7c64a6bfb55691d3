package errorx

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestOAuth2Error_Error(t *testing.T) {
	assert.JSONEq(t, `{"error":"invalid_grant"}`, ErrInvalidGrant.Error())
	assert.JSONEq(t, `{"error":"invalid_request","error_code":"client_already_exists"}`, ErrClientAlreadyExists.Error())
}

func TestConvertToOAuth2Error_Passthrough(t *testing.T) {
	got := ConvertToOAuth2Error(ErrInvalidClient)
	assert.Same(t, ErrInvalidClient, got)

	// wrapped sentinels still unwrap to the protocol error
	wrapped := fmt.Errorf("token endpoint: %w", ErrInvalidGrant)
	assert.Same(t, ErrInvalidGrant, ConvertToOAuth2Error(wrapped))
}

func TestConvertToOAuth2Error_StoreFault(t *testing.T) {
	got := ConvertToOAuth2Error(errors.New("driver: connection reset"))
	assert.Equal(t, "server_error", got.ErrorType)
	assert.Equal(t, http.StatusInternalServerError, got.HTTPStatus)
	// internal detail must not leak into the response body
	assert.Empty(t, got.ErrorDescription)
}

func TestSentinelStatuses(t *testing.T) {
	assert.Equal(t, http.StatusUnauthorized, ErrInvalidClient.HTTPStatus)
	assert.Equal(t, http.StatusUnauthorized, ErrInvalidToken.HTTPStatus)
	assert.Equal(t, http.StatusBadRequest, ErrInvalidGrant.HTTPStatus)
}

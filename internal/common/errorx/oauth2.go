package errorx

import (
	"encoding/json"
	"errors"
	"net/http"
)

// OAuth2Error is an RFC 6749 protocol error. Sentinel values below are
// compared with errors.Is, so callers must return them as-is rather than
// constructing copies.
type OAuth2Error struct {
	ErrorType        string `json:"error"`
	ErrorDescription string `json:"error_description,omitempty"`
	ErrorCode        string `json:"error_code,omitempty"`
	HTTPStatus       int    `json:"-"`
}

func (e *OAuth2Error) Error() string {
	out, _ := json.Marshal(e)
	return string(out)
}

var (
	ErrInvalidRequest = &OAuth2Error{
		ErrorType:  "invalid_request",
		HTTPStatus: http.StatusBadRequest,
	}

	// ErrInvalidClient covers every client-authentication failure: unknown
	// client_id, wrong secret, malformed credentials. The distinctions are
	// deliberately not surfaced.
	ErrInvalidClient = &OAuth2Error{
		ErrorType:  "invalid_client",
		HTTPStatus: http.StatusUnauthorized,
	}

	// ErrInvalidGrant covers authorization codes and refresh tokens that are
	// unknown, expired, or already consumed.
	ErrInvalidGrant = &OAuth2Error{
		ErrorType:  "invalid_grant",
		HTTPStatus: http.StatusBadRequest,
	}

	ErrUnauthorizedClient = &OAuth2Error{
		ErrorType:  "unauthorized_client",
		HTTPStatus: http.StatusBadRequest,
	}

	ErrUnsupportedGrantType = &OAuth2Error{
		ErrorType:  "unsupported_grant_type",
		HTTPStatus: http.StatusBadRequest,
	}

	ErrInvalidScope = &OAuth2Error{
		ErrorType:  "invalid_scope",
		HTTPStatus: http.StatusBadRequest,
	}

	// ErrInvalidToken is the bearer-token failure: unknown, expired, or
	// issued to a different client.
	ErrInvalidToken = &OAuth2Error{
		ErrorType:  "invalid_token",
		HTTPStatus: http.StatusUnauthorized,
	}

	ErrClientAlreadyExists = &OAuth2Error{
		ErrorType:  "invalid_request",
		ErrorCode:  "client_already_exists",
		HTTPStatus: http.StatusBadRequest,
	}
)

// ConvertToOAuth2Error normalizes an error for the HTTP edge. Protocol
// errors pass through; anything else (store faults, driver errors) becomes
// an opaque server_error so internals never leak to the client.
func ConvertToOAuth2Error(err error) *OAuth2Error {
	var oauthErr *OAuth2Error
	if errors.As(err, &oauthErr) {
		return oauthErr
	}

	return &OAuth2Error{
		ErrorType:  "server_error",
		HTTPStatus: http.StatusInternalServerError,
	}
}

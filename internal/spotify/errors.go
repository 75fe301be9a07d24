package spotify

import (
	"errors"
	"fmt"
)

var (
	// ErrUnauthorized is returned when no usable access token could be
	// obtained, or the provider rejected the token again after a refresh.
	ErrUnauthorized = errors.New("spotify: unauthorized")
	// ErrTokenRefresh wraps failures of the refresh-token exchange.
	ErrTokenRefresh = errors.New("spotify: token refresh failed")
	// ErrMalformedPayload is returned when a response body cannot be used.
	ErrMalformedPayload = errors.New("spotify: malformed payload")
)

// StatusError reports an unexpected HTTP status from the Web API.
type StatusError struct {
	Endpoint string
	Code     int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("spotify: %s returned status %d", e.Endpoint, e.Code)
}

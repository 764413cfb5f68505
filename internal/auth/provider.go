// Package auth obtains the bearer token the digest API expects and injects
// it into outgoing requests.
package auth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
)

// ErrNoToken is returned when a provider has no token to hand out, either
// because login has not succeeded yet or because none was configured.
var ErrNoToken = errors.New("auth: no token available")

// Provider defines the interface for authentication providers that can
// obtain tokens and inject them into HTTP requests.
type Provider interface {
	// Token returns the current bearer token.
	Token(ctx context.Context) (string, error)

	// InjectHeader injects the authentication token into the Authorization
	// header of the provided HTTP request.
	InjectHeader(ctx context.Context, req *http.Request) error

	// Close releases any resources held by the provider.
	Close() error
}

// Credentials are the login and password sent to the token endpoint.
type Credentials struct {
	Login    string
	Password string
}

// Error reports a failed login. StatusCode is zero when the token endpoint
// was never reached.
type Error struct {
	StatusCode int
	Body       string
	Err        error
}

func (e *Error) Error() string {
	msg := "authentication failed"
	if e.StatusCode != 0 {
		msg += fmt.Sprintf(": status %d", e.StatusCode)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	if e.Body != "" {
		msg += ": " + e.Body
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Err }

func setBearer(req *http.Request, token string) {
	req.Header.Set("Authorization", "Bearer "+token)
}

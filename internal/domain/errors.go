package domain

import (
	"errors"
	"fmt"
)

var (
	ErrConnectionFailed  = errors.New("connection failed")
	ErrUnsupportedClient = errors.New("unsupported client")
	ErrConnectionClosed  = errors.New("connection closed")
	ErrLoginFailed       = errors.New("login failed")
	ErrNotAuthenticated  = errors.New("not authenticated")
	ErrSessionClosed     = errors.New("session closed")
	ErrNotFound          = errors.New("not found")
)

// RemoteError is the failure a remote procedure reported for a single call.
// URI is the error URI supplied by the server, Description the human-readable
// reason. RemoteError never triggers an automatic retry; the caller decides.
type RemoteError struct {
	URI         string
	Description string
}

func (e *RemoteError) Error() string {
	if e.Description == "" {
		return fmt.Sprintf("remote call failed: %s", e.URI)
	}
	return fmt.Sprintf("remote call failed: %s (%s)", e.URI, e.Description)
}

// internal/domain/session/entity.go
package session

import (
	"errors"
	"time"
)

// State is where a browsing context stands in the login lifecycle
type State int

const (
	Anonymous State = iota
	AuthPending
	Authenticated
	AuthExpired
	LoggedOut
)

// String returns the state name used in logs and API responses
func (s State) String() string {
	switch s {
	case Anonymous:
		return "anonymous"
	case AuthPending:
		return "auth_pending"
	case Authenticated:
		return "authenticated"
	case AuthExpired:
		return "auth_expired"
	case LoggedOut:
		return "logged_out"
	default:
		return "unknown"
	}
}

// IsAuthenticated reports whether s grants access to the server cart
func (s State) IsAuthenticated() bool {
	return s == Authenticated
}

var (
	// ErrProtocol covers every way the redirect round trip can fail: provider
	// errors, state mismatch, and failed code exchange.
	ErrProtocol = errors.New("login protocol error")
	// ErrNoSession means there is nothing to renew or log out
	ErrNoSession = errors.New("no active session")
)

// Claims are the user facts taken from the ID token
type Claims struct {
	Subject string `json:"sub"`
	Email   string `json:"email"`
	Name    string `json:"name,omitempty"`
}

// PendingState is carried through the provider redirect and must come back
// unchanged
type PendingState struct {
	ReturnURL string `json:"returnUrl"`
}

// Session is the authenticated identity of one browsing context. It lives
// in process memory only.
type Session struct {
	AccessToken  string
	RefreshToken string
	IDToken      string
	Expiry       time.Time
	Claims       Claims
	PendingState PendingState
}

// Expired reports whether the access token is no longer usable at now
func (s *Session) Expired(now time.Time) bool {
	return !s.Expiry.IsZero() && !now.Before(s.Expiry)
}

// pendingLogin is what the ephemeral area holds between Login and the
// callback
type pendingLogin struct {
	Verifier  string       `json:"verifier"`
	State     PendingState `json:"state"`
	CreatedAt time.Time    `json:"created_at"`
}

// LoginRedirect tells the caller where to send the browser
type LoginRedirect struct {
	URL string
	// Forwarded is true when the request was handed to the canonical secure
	// origin instead of starting the protocol here.
	Forwarded bool
}

package auth

import (
	"context"
	"fmt"
	"time"
)

// Identity is an authenticated end-user account. ID and Email are always
// populated; DisplayName is optional profile metadata.
type Identity struct {
	ID          string `json:"id"`
	Email       string `json:"email"`
	DisplayName string `json:"display_name,omitempty"`
}

// Session is an active sign-in: a bearer token bound to an identity until
// it expires or is signed out.
type Session struct {
	Token     string    `json:"token"`
	Identity  Identity  `json:"identity"`
	ExpiresAt time.Time `json:"expires_at"`
}

// AuthError is returned when the identity provider rejects credentials or
// input. Its message is safe to surface to the user.
type AuthError struct {
	Message string
	Err     error
}

func (e *AuthError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("auth: %s: %v", e.Message, e.Err)
	}
	return "auth: " + e.Message
}

func (e *AuthError) Unwrap() error { return e.Err }

// Providers accepted by SignInWithProvider.
const (
	ProviderGoogle   = "google"
	ProviderTwitter  = "twitter"
	ProviderFacebook = "facebook"
)

// Authenticator is the session store accessor: sign-up, sign-in, sign-out
// and current-session lookup against the identity backend. All operations
// hit external or durable state; none are pure.
type Authenticator interface {
	// SignUp creates an identity. It does not establish a session: the
	// account may still require a confirmation step before sign-in.
	SignUp(ctx context.Context, email, password, displayName string) (Identity, error)

	// SignIn establishes a session for matching credentials.
	SignIn(ctx context.Context, email, password string) (Session, error)

	// SignInWithProvider returns the third-party authorize URL to redirect
	// the browser to. Completion happens out of process.
	SignInWithProvider(ctx context.Context, provider, redirectTo string) (string, error)

	// SignOut invalidates the session for token. Idempotent: signing out a
	// token that has no session is not an error.
	SignOut(ctx context.Context, token string) error

	// Current resolves token to its active identity.
	Current(ctx context.Context, token string) (Identity, error)
}

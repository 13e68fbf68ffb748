package auth

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/mizuhq/konichiwa/stores"
)

const (
	// DefaultSessionTTL is how long a sign-in stays valid without sign-out.
	DefaultSessionTTL = 24 * time.Hour

	minPasswordLength = 6
)

// LocalAuthenticator implements Authenticator on top of the record store,
// with bcrypt password hashes and uuid session tokens.
type LocalAuthenticator struct {
	store      stores.RecordStore
	sessionTTL time.Duration

	// oauthBase is the external authorize endpoint OAuth sign-ins are
	// redirected through, e.g. "https://auth.example.com/authorize".
	oauthBase string
}

// NewLocalAuthenticator creates an authenticator backed by store.
func NewLocalAuthenticator(store stores.RecordStore) *LocalAuthenticator {
	return &LocalAuthenticator{
		store:      store,
		sessionTTL: DefaultSessionTTL,
	}
}

// WithSessionTTL sets how long sessions stay valid
func (a *LocalAuthenticator) WithSessionTTL(ttl time.Duration) *LocalAuthenticator {
	a.sessionTTL = ttl
	return a
}

// WithOAuthBase sets the external authorize endpoint for provider sign-in
func (a *LocalAuthenticator) WithOAuthBase(base string) *LocalAuthenticator {
	a.oauthBase = base
	return a
}

// SignUp creates a new identity. No session is established; the caller
// signs in separately once the account is confirmed.
func (a *LocalAuthenticator) SignUp(ctx context.Context, email, password, displayName string) (Identity, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if _, err := mail.ParseAddress(email); err != nil {
		return Identity{}, &AuthError{Message: "invalid email address"}
	}
	if len(password) < minPasswordLength {
		return Identity{}, &AuthError{Message: fmt.Sprintf("password must be at least %d characters", minPasswordLength)}
	}

	if _, err := a.store.FindUserByEmail(email); err == nil {
		return Identity{}, &AuthError{Message: "an account with this email already exists"}
	} else if !errors.Is(err, stores.ErrNotFound) {
		return Identity{}, err
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return Identity{}, &AuthError{Message: "failed to process password", Err: err}
	}

	user := &stores.User{
		ID:           uuid.NewString(),
		Email:        email,
		DisplayName:  strings.TrimSpace(displayName),
		PasswordHash: string(hash),
	}
	if err := a.store.CreateUser(user); err != nil {
		return Identity{}, &AuthError{Message: "failed to create account", Err: err}
	}

	return identityOf(user), nil
}

// SignIn checks credentials and opens a new session. Unknown email and
// wrong password produce the same message.
func (a *LocalAuthenticator) SignIn(ctx context.Context, email, password string) (Session, error) {
	email = strings.ToLower(strings.TrimSpace(email))

	user, err := a.store.FindUserByEmail(email)
	if errors.Is(err, stores.ErrNotFound) {
		return Session{}, &AuthError{Message: "invalid email or password"}
	}
	if err != nil {
		return Session{}, err
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return Session{}, &AuthError{Message: "invalid email or password"}
	}

	session := &stores.AuthSession{
		Token:     uuid.NewString(),
		UserID:    user.ID,
		ExpiresAt: time.Now().Add(a.sessionTTL),
	}
	if err := a.store.CreateAuthSession(session); err != nil {
		return Session{}, err
	}

	return Session{
		Token:     session.Token,
		Identity:  identityOf(user),
		ExpiresAt: session.ExpiresAt,
	}, nil
}

// SignInWithProvider builds the authorize URL for a third-party OAuth
// sign-in. The flow completes via browser redirect, outside this process.
func (a *LocalAuthenticator) SignInWithProvider(ctx context.Context, provider, redirectTo string) (string, error) {
	switch provider {
	case ProviderGoogle, ProviderTwitter, ProviderFacebook:
	default:
		return "", &AuthError{Message: "unsupported sign-in provider: " + provider}
	}

	if a.oauthBase == "" {
		return "", &AuthError{Message: "OAuth sign-in is not configured"}
	}

	q := url.Values{}
	q.Set("provider", provider)
	if redirectTo != "" {
		q.Set("redirect_to", redirectTo)
	}
	return a.oauthBase + "?" + q.Encode(), nil
}

// SignOut deletes the session for token, if any.
func (a *LocalAuthenticator) SignOut(ctx context.Context, token string) error {
	if token == "" {
		return nil
	}
	return a.store.DeleteAuthSession(token)
}

// Current resolves a token to its identity. Expired sessions are removed
// on lookup.
func (a *LocalAuthenticator) Current(ctx context.Context, token string) (Identity, error) {
	if token == "" {
		return Identity{}, &AuthError{Message: "not signed in"}
	}

	session, err := a.store.FindAuthSession(token)
	if errors.Is(err, stores.ErrNotFound) {
		return Identity{}, &AuthError{Message: "not signed in"}
	}
	if err != nil {
		return Identity{}, err
	}

	if time.Now().After(session.ExpiresAt) {
		// Lazily drop the stale record; the janitor catches the rest.
		if err := a.store.DeleteAuthSession(token); err != nil {
			return Identity{}, err
		}
		return Identity{}, &AuthError{Message: "session expired"}
	}

	user, err := a.store.FindUserByID(session.UserID)
	if errors.Is(err, stores.ErrNotFound) {
		return Identity{}, &AuthError{Message: "not signed in"}
	}
	if err != nil {
		return Identity{}, err
	}

	return identityOf(user), nil
}

func identityOf(user *stores.User) Identity {
	return Identity{
		ID:          user.ID,
		Email:       user.Email,
		DisplayName: user.DisplayName,
	}
}

// Package auth authenticates requests with login tokens issued to users.
package auth

import (
	"errors"
	"log/slog"
	"time"
)

// ErrInvalidCredentials is returned when a token is unknown, expired or
// does not match the credentials it was presented with.
var ErrInvalidCredentials = errors.New("auth: invalid token credentials")

// SkipRefresh is a credentials attribute that suppresses the expiration
// reset of a successful login.
const SkipRefresh = ".token.skip-refresh"

// Credentials carry a login token and request attributes.
type Credentials struct {
	Token      string
	Attributes map[string]string
}

// TokenInfo is a token issued to a user.
type TokenInfo interface {
	Token() string
	UserID() string
	IsExpired(now time.Time) bool
	// Matches reports whether the credentials carry every mandatory
	// attribute of the token with an equal value.
	Matches(creds Credentials) bool
	// ResetExpiration extends the token's lifetime if it is due for a
	// refresh and reports whether it did.
	ResetExpiration(now time.Time) (bool, error)
	Remove() error
}

// TokenProvider resolves tokens. GetTokenInfo returns a nil TokenInfo and
// a nil error for an unknown token.
type TokenProvider interface {
	GetTokenInfo(token string) (TokenInfo, error)
}

// Monitor observes failed logins.
type Monitor interface {
	LoginFailed(err error, creds Credentials)
}

// MonitorFunc adapts a function to a Monitor.
type MonitorFunc func(err error, creds Credentials)

func (f MonitorFunc) LoginFailed(err error, creds Credentials) { f(err, creds) }

// Authenticator validates token credentials against a TokenProvider.
type Authenticator struct {
	provider TokenProvider
	log      *slog.Logger
	now      func() time.Time
}

// NewAuthenticator returns an Authenticator. A nil logger uses
// slog.Default().
func NewAuthenticator(provider TokenProvider, logger *slog.Logger) *Authenticator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Authenticator{provider: provider, log: logger, now: time.Now}
}

// Authenticate validates creds. An expired token is removed. A matching
// token has its expiration reset unless creds carry SkipRefresh. Every
// failure is reported to m when m is non-nil and returns an error wrapping
// ErrInvalidCredentials.
func (a *Authenticator) Authenticate(creds Credentials, m Monitor) (TokenInfo, error) {
	info, err := a.validate(creds)
	if err != nil {
		if m != nil {
			m.LoginFailed(err, creds)
		}
		return nil, err
	}
	return info, nil
}

func (a *Authenticator) validate(creds Credentials) (TokenInfo, error) {
	info, err := a.provider.GetTokenInfo(creds.Token)
	if err != nil {
		return nil, errors.Join(ErrInvalidCredentials, err)
	}
	if info == nil {
		a.log.Debug("no valid token info for token")
		return nil, ErrInvalidCredentials
	}

	now := a.now()
	if info.IsExpired(now) {
		a.log.Debug("token is expired", "user", info.UserID())
		if err := info.Remove(); err != nil {
			a.log.Warn("failed to remove expired token", "user", info.UserID(), "error", err)
		}
		return nil, ErrInvalidCredentials
	}
	if !info.Matches(creds) {
		return nil, ErrInvalidCredentials
	}

	if _, skip := creds.Attributes[SkipRefresh]; skip {
		a.log.Debug("token reset skipped", "user", info.UserID())
		return info, nil
	}
	reset, err := info.ResetExpiration(now)
	if err != nil {
		a.log.Warn("failed to reset token expiration", "user", info.UserID(), "error", err)
	}
	a.log.Debug("token validated", "user", info.UserID(), "reset", reset)
	return info, nil
}

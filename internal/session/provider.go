package session

import (
	"context"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/tOgg1/parley/internal/chat"
)

// Identity is what a successful sign-in yields.
type Identity struct {
	Principal  chat.Principal
	Credential chat.Credential
}

// Provider is the external authentication boundary. Implementations return
// errors wrapping chat.ErrInvalidCredentials or chat.ErrProvider; Refresh may
// also return chat.ErrNetwork for transient failures.
type Provider interface {
	SignIn(ctx context.Context, email, password string) (Identity, error)
	SignUp(ctx context.Context, email, password string) (Identity, error)
	SignInFederated(ctx context.Context) (Identity, error)
	Refresh(ctx context.Context, cred chat.Credential) (chat.Credential, error)
	SignOut(ctx context.Context, cred chat.Credential) error
}

// Registrar records a principal with the messaging service after sign-in.
type Registrar interface {
	Register(ctx context.Context, principal chat.Principal) error
}

// ExpiryFromToken reads the exp claim of a JWT without verifying it; the
// messaging service does the verification. Non-JWT tokens return zero.
func ExpiryFromToken(token string) time.Time {
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return time.Time{}
	}
	exp, err := claims.GetExpirationTime()
	if err != nil || exp == nil {
		return time.Time{}
	}
	return exp.Time
}

// SubjectFromToken returns the sub claim of a JWT, or "".
func SubjectFromToken(token string) string {
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return ""
	}
	sub, _ := claims.GetSubject()
	return sub
}

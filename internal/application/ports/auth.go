package ports

import (
	"context"
	"errors"
)

// ErrUnauthenticated is returned when a request carries no usable identity.
var ErrUnauthenticated = errors.New("unauthenticated")

// User is the identity established by the auth collaborator for one request.
// ID doubles as the root of the user's storage namespace.
type User struct {
	ID       string `json:"id"`
	Email    string `json:"email"`
	Fullname string `json:"fullname,omitempty"`
	Role     string `json:"role"`
}

// Authenticator resolves the user behind the current request. The storage
// layer trusts the returned ID and performs no credential checks of its own.
type Authenticator interface {
	CurrentUser(ctx context.Context) (*User, error)
}

type userContextKey struct{}

// WithUser attaches an authenticated user to ctx.
func WithUser(ctx context.Context, user *User) context.Context {
	return context.WithValue(ctx, userContextKey{}, user)
}

// UserFromContext returns the user attached by WithUser, if any.
func UserFromContext(ctx context.Context) (*User, bool) {
	user, ok := ctx.Value(userContextKey{}).(*User)
	return user, ok && user != nil
}

package billingsync

import "context"

// Directory is the identity store mapping emails to user ids and custom claims.
type Directory interface {
	// GetUserByEmail returns ErrUserNotFound when no user has the email.
	GetUserByEmail(ctx context.Context, email string) (*User, error)

	CreateUser(ctx context.Context, user *UserToCreate) (*User, error)

	UpdateUser(ctx context.Context, uid string, update *UserUpdate) (*User, error)

	// SetCustomClaims replaces the user's custom claims.
	SetCustomClaims(ctx context.Context, uid string, claims map[string]interface{}) error
}

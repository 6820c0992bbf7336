// Package firebase provides a Firebase Authentication implementation of the
// billingsync.Directory interface.
package firebase

import (
	"context"
	"fmt"

	firebase "firebase.google.com/go/v4"
	"firebase.google.com/go/v4/auth"

	"github.com/mihaimyh/billingsync/pkg/billingsync"
)

// AuthClient is the subset of *auth.Client used by Directory
type AuthClient interface {
	GetUserByEmail(ctx context.Context, email string) (*auth.UserRecord, error)
	CreateUser(ctx context.Context, user *auth.UserToCreate) (*auth.UserRecord, error)
	UpdateUser(ctx context.Context, uid string, user *auth.UserToUpdate) (*auth.UserRecord, error)
	SetCustomUserClaims(ctx context.Context, uid string, customClaims map[string]interface{}) error
}

// Directory implements billingsync.Directory on top of Firebase Authentication
type Directory struct {
	client     AuthClient
	isNotFound func(error) bool
}

// New creates a Directory from an auth client
func New(client AuthClient) (*Directory, error) {
	if client == nil {
		return nil, fmt.Errorf("auth client is required")
	}
	return &Directory{
		client:     client,
		isNotFound: auth.IsUserNotFound,
	}, nil
}

// NewFromApp creates a Directory using the app's auth client
func NewFromApp(ctx context.Context, app *firebase.App) (*Directory, error) {
	if app == nil {
		return nil, fmt.Errorf("firebase app is required")
	}
	client, err := app.Auth(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to create auth client: %w", err)
	}
	return New(client)
}

// GetUserByEmail implements billingsync.Directory
func (d *Directory) GetUserByEmail(ctx context.Context, email string) (*billingsync.User, error) {
	rec, err := d.client.GetUserByEmail(ctx, email)
	if err != nil {
		if d.isNotFound(err) {
			return nil, fmt.Errorf("%w: %s", billingsync.ErrUserNotFound, email)
		}
		return nil, fmt.Errorf("failed to get user by email: %w", err)
	}
	return toUser(rec), nil
}

// CreateUser implements billingsync.Directory
func (d *Directory) CreateUser(ctx context.Context, user *billingsync.UserToCreate) (*billingsync.User, error) {
	if user == nil || user.Email == "" {
		return nil, fmt.Errorf("email is required")
	}

	params := (&auth.UserToCreate{}).Email(user.Email)
	if user.DisplayName != "" {
		params = params.DisplayName(user.DisplayName)
	}
	if user.PhoneNumber != "" {
		params = params.PhoneNumber(user.PhoneNumber)
	}

	rec, err := d.client.CreateUser(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("failed to create user: %w", err)
	}
	return toUser(rec), nil
}

// UpdateUser implements billingsync.Directory
func (d *Directory) UpdateUser(
	ctx context.Context, uid string, update *billingsync.UserUpdate,
) (*billingsync.User, error) {
	params := &auth.UserToUpdate{}
	if update != nil {
		if update.DisplayName != "" {
			params = params.DisplayName(update.DisplayName)
		}
		if update.PhoneNumber != "" {
			params = params.PhoneNumber(update.PhoneNumber)
		}
	}

	rec, err := d.client.UpdateUser(ctx, uid, params)
	if err != nil {
		if d.isNotFound(err) {
			return nil, fmt.Errorf("%w: uid %s", billingsync.ErrUserNotFound, uid)
		}
		return nil, fmt.Errorf("failed to update user: %w", err)
	}
	return toUser(rec), nil
}

// SetCustomClaims implements billingsync.Directory
func (d *Directory) SetCustomClaims(ctx context.Context, uid string, claims map[string]interface{}) error {
	if err := d.client.SetCustomUserClaims(ctx, uid, claims); err != nil {
		if d.isNotFound(err) {
			return fmt.Errorf("%w: uid %s", billingsync.ErrUserNotFound, uid)
		}
		return fmt.Errorf("failed to set custom claims: %w", err)
	}
	return nil
}

func toUser(rec *auth.UserRecord) *billingsync.User {
	user := &billingsync.User{CustomClaims: rec.CustomClaims}
	if rec.UserInfo != nil {
		user.UID = rec.UID
		user.Email = rec.Email
		user.DisplayName = rec.DisplayName
		user.PhoneNumber = rec.PhoneNumber
	}
	return user
}

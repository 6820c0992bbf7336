// Package memory provides an in-memory implementation of the billingsync.Directory interface.
// This implementation is primarily intended for testing and local development.
package memory

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/mihaimyh/billingsync/pkg/billingsync"
)

// Directory implements billingsync.Directory using in-memory maps
type Directory struct {
	mu      sync.RWMutex
	users   map[string]*billingsync.User // uid -> user
	byEmail map[string]string            // lower-cased email -> uid
}

// New creates a new in-memory directory
func New() *Directory {
	return &Directory{
		users:   make(map[string]*billingsync.User),
		byEmail: make(map[string]string),
	}
}

// AddUser seeds a user with a fixed uid (useful for testing)
func (d *Directory) AddUser(uid, email string) *billingsync.User {
	d.mu.Lock()
	defer d.mu.Unlock()

	user := &billingsync.User{UID: uid, Email: email}
	d.users[uid] = user
	d.byEmail[normalizeEmail(email)] = uid
	return copyUser(user)
}

// GetUserByEmail implements billingsync.Directory
func (d *Directory) GetUserByEmail(_ context.Context, email string) (*billingsync.User, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	uid, ok := d.byEmail[normalizeEmail(email)]
	if !ok {
		return nil, fmt.Errorf("%w: %s", billingsync.ErrUserNotFound, email)
	}
	return copyUser(d.users[uid]), nil
}

// GetUser returns a user by uid (useful for testing)
func (d *Directory) GetUser(uid string) (*billingsync.User, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	user, ok := d.users[uid]
	if !ok {
		return nil, false
	}
	return copyUser(user), true
}

// CreateUser implements billingsync.Directory
func (d *Directory) CreateUser(_ context.Context, user *billingsync.UserToCreate) (*billingsync.User, error) {
	if user == nil || user.Email == "" {
		return nil, fmt.Errorf("email is required")
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	key := normalizeEmail(user.Email)
	if _, exists := d.byEmail[key]; exists {
		return nil, fmt.Errorf("user with email %s already exists", user.Email)
	}

	created := &billingsync.User{
		UID:         uuid.NewString(),
		Email:       user.Email,
		DisplayName: user.DisplayName,
		PhoneNumber: user.PhoneNumber,
	}
	d.users[created.UID] = created
	d.byEmail[key] = created.UID
	return copyUser(created), nil
}

// UpdateUser implements billingsync.Directory
func (d *Directory) UpdateUser(
	_ context.Context, uid string, update *billingsync.UserUpdate,
) (*billingsync.User, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	user, ok := d.users[uid]
	if !ok {
		return nil, fmt.Errorf("%w: uid %s", billingsync.ErrUserNotFound, uid)
	}
	if update != nil {
		if update.DisplayName != "" {
			user.DisplayName = update.DisplayName
		}
		if update.PhoneNumber != "" {
			user.PhoneNumber = update.PhoneNumber
		}
	}
	return copyUser(user), nil
}

// SetCustomClaims implements billingsync.Directory
func (d *Directory) SetCustomClaims(_ context.Context, uid string, claims map[string]interface{}) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	user, ok := d.users[uid]
	if !ok {
		return fmt.Errorf("%w: uid %s", billingsync.ErrUserNotFound, uid)
	}
	user.CustomClaims = copyClaims(claims)
	return nil
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func copyUser(u *billingsync.User) *billingsync.User {
	out := *u
	out.CustomClaims = copyClaims(u.CustomClaims)
	return &out
}

func copyClaims(claims map[string]interface{}) map[string]interface{} {
	if claims == nil {
		return nil
	}
	out := make(map[string]interface{}, len(claims))
	for k, v := range claims {
		out[k] = v
	}
	return out
}

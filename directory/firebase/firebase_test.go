package firebase

import (
	"context"
	"errors"
	"testing"

	"firebase.google.com/go/v4/auth"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mihaimyh/billingsync/pkg/billingsync"
)

var errNotFound = errors.New("no user record found")

// fakeAuth records calls made through the AuthClient interface
type fakeAuth struct {
	users    map[string]*auth.UserRecord // email -> record
	claims   map[string]map[string]interface{}
	created  []*auth.UserToCreate
	updated  map[string]*auth.UserToUpdate
	failWith error
}

func newFakeAuth() *fakeAuth {
	return &fakeAuth{
		users:   make(map[string]*auth.UserRecord),
		claims:  make(map[string]map[string]interface{}),
		updated: make(map[string]*auth.UserToUpdate),
	}
}

func (f *fakeAuth) GetUserByEmail(_ context.Context, email string) (*auth.UserRecord, error) {
	if f.failWith != nil {
		return nil, f.failWith
	}
	rec, ok := f.users[email]
	if !ok {
		return nil, errNotFound
	}
	return rec, nil
}

func (f *fakeAuth) CreateUser(_ context.Context, user *auth.UserToCreate) (*auth.UserRecord, error) {
	f.created = append(f.created, user)
	return &auth.UserRecord{UserInfo: &auth.UserInfo{UID: "new-uid"}}, nil
}

func (f *fakeAuth) UpdateUser(_ context.Context, uid string, user *auth.UserToUpdate) (*auth.UserRecord, error) {
	if f.failWith != nil {
		return nil, f.failWith
	}
	f.updated[uid] = user
	return &auth.UserRecord{UserInfo: &auth.UserInfo{UID: uid, DisplayName: "updated"}}, nil
}

func (f *fakeAuth) SetCustomUserClaims(_ context.Context, uid string, claims map[string]interface{}) error {
	if f.failWith != nil {
		return f.failWith
	}
	f.claims[uid] = claims
	return nil
}

func newTestDirectory(t *testing.T, fake *fakeAuth) *Directory {
	t.Helper()
	dir, err := New(fake)
	require.NoError(t, err)
	dir.isNotFound = func(err error) bool { return errors.Is(err, errNotFound) }
	return dir
}

func TestNew_NilClient(t *testing.T) {
	_, err := New(nil)
	assert.Error(t, err)
}

func TestDirectory_GetUserByEmail(t *testing.T) {
	fake := newFakeAuth()
	fake.users["a@x.com"] = &auth.UserRecord{
		UserInfo:     &auth.UserInfo{UID: "U1", Email: "a@x.com", DisplayName: "Ada"},
		CustomClaims: map[string]interface{}{"role": "basic"},
	}
	dir := newTestDirectory(t, fake)
	ctx := context.Background()

	user, err := dir.GetUserByEmail(ctx, "a@x.com")
	require.NoError(t, err)
	assert.Equal(t, "U1", user.UID)
	assert.Equal(t, "Ada", user.DisplayName)
	assert.Equal(t, "basic", user.CustomClaims["role"])

	_, err = dir.GetUserByEmail(ctx, "b@x.com")
	assert.True(t, errors.Is(err, billingsync.ErrUserNotFound))
}

func TestDirectory_GetUserByEmail_OtherError(t *testing.T) {
	fake := newFakeAuth()
	fake.failWith = errors.New("backend unavailable")
	dir := newTestDirectory(t, fake)

	_, err := dir.GetUserByEmail(context.Background(), "a@x.com")
	require.Error(t, err)
	assert.False(t, errors.Is(err, billingsync.ErrUserNotFound))
}

func TestDirectory_CreateUser(t *testing.T) {
	fake := newFakeAuth()
	dir := newTestDirectory(t, fake)

	user, err := dir.CreateUser(context.Background(), &billingsync.UserToCreate{Email: "n@x.com", DisplayName: "New"})
	require.NoError(t, err)
	assert.Equal(t, "new-uid", user.UID)
	assert.Len(t, fake.created, 1)

	_, err = dir.CreateUser(context.Background(), &billingsync.UserToCreate{})
	assert.Error(t, err)
}

func TestDirectory_UpdateUserAndClaims(t *testing.T) {
	fake := newFakeAuth()
	dir := newTestDirectory(t, fake)
	ctx := context.Background()

	_, err := dir.UpdateUser(ctx, "U1", &billingsync.UserUpdate{DisplayName: "Ada"})
	require.NoError(t, err)
	assert.NotNil(t, fake.updated["U1"])

	require.NoError(t, dir.SetCustomClaims(ctx, "U1", map[string]interface{}{"role": "premium"}))
	assert.Equal(t, "premium", fake.claims["U1"]["role"])

	fake.failWith = errNotFound
	err = dir.SetCustomClaims(ctx, "U2", map[string]interface{}{"role": "premium"})
	assert.True(t, errors.Is(err, billingsync.ErrUserNotFound))
}

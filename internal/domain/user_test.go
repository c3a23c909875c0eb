package domain

import (
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type upperEncoder struct{ err error }

func (e upperEncoder) Encode(clear string) (string, error) {
	if e.err != nil {
		return "", e.err
	}
	return strings.ToUpper(clear), nil
}

func TestRoleEqualityIsIdentityBased(t *testing.T) {
	assert.True(t, Role{ID: 1, Name: "admin"}.Equal(Role{ID: 1, Name: "renamed"}))
	assert.False(t, Role{ID: 1, Name: "admin"}.Equal(Role{ID: 2, Name: "admin"}))
}

func TestUserRoleSet(t *testing.T) {
	u := NewUser("bond", "X")

	u.AddRole(Role{ID: 1, Name: "agent"})
	u.AddRole(Role{ID: 1, Name: "double-o"})
	u.AddRole(Role{ID: 2, Name: "admin"})
	require.Len(t, u.Roles, 2)
	assert.Equal(t, "agent", u.Roles[0].Name)

	assert.True(t, u.IsMemberOfRole(Role{ID: 2}))
	u.RemoveRole(Role{ID: 2, Name: "whatever"})
	assert.False(t, u.IsMemberOfRole(Role{ID: 2}))
	assert.Len(t, u.Roles, 1)

	u.RemoveRole(Role{ID: 42})
	assert.Len(t, u.Roles, 1)
}

func TestUserPasswordWithEncoder(t *testing.T) {
	u := NewUser("bond", "")
	enc := upperEncoder{}

	require.NoError(t, u.SetPassword(enc, "007"))
	assert.Equal(t, "007", u.PasswordHash)

	require.NoError(t, u.SetPassword(enc, "secret"))
	same, err := u.IsSamePassword(enc, "secret")
	require.NoError(t, err)
	assert.True(t, same)

	same, err = u.IsSamePassword(enc, "other")
	require.NoError(t, err)
	assert.False(t, same)

	boom := errors.New("boom")
	_, err = u.IsSamePassword(upperEncoder{err: boom}, "secret")
	assert.ErrorIs(t, err, boom)
	assert.ErrorIs(t, u.SetPassword(upperEncoder{err: boom}, "x"), boom)
	assert.Equal(t, "SECRET", u.PasswordHash)
}

func TestUserFullName(t *testing.T) {
	u := &User{FirstName: "James", LastName: "Bond"}
	assert.Equal(t, "James Bond", u.FullName())
	assert.Equal(t, "", (&User{}).FullName())
	assert.True(t, u.CanAuthenticate())
	u.Disabled = true
	assert.False(t, u.CanAuthenticate())
}

func TestErrorKinds(t *testing.T) {
	assert.ErrorIs(t, ErrUserNotFound, ErrNotFound)
	assert.ErrorIs(t, ErrRoleNotFound, ErrNotFound)
	assert.ErrorIs(t, ErrUserAlreadyExists, ErrAlreadyRegistered)
	assert.ErrorIs(t, ErrRoleAlreadyExists, ErrAlreadyRegistered)

	err := WithSubject(ErrRoleAlreadyExists, "duplicate name", "admin")
	assert.ErrorIs(t, err, ErrAlreadyRegistered)
	assert.Equal(t, "role already registered: duplicate name (admin)", err.Error())

	var subjectErr *SubjectError
	require.ErrorAs(t, err, &subjectErr)
	assert.Equal(t, "admin", subjectErr.Subject)

	assert.Equal(t, "not found", WithSubject(ErrNotFound, "", "").Error())
}

package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCreateUser(t *testing.T) {
	user, err := CreateUser("alice", "alice@example.com", "s3cret-pw")
	require.NoError(t, err)

	assert.Equal(t, "alice", user.Name)
	assert.Equal(t, "alice@example.com", user.Email)
	assert.Equal(t, ROLE_USER, user.Role)
	assert.NotEqual(t, "s3cret-pw", user.Password)
	assert.True(t, user.CheckPassword("s3cret-pw"))
	assert.False(t, user.CheckPassword("wrong"))
}

func TestCreateUserValidation(t *testing.T) {
	tests := []struct {
		name     string
		username string
		email    string
		password string
	}{
		{"Name too short", "ab", "a@example.com", "s3cret-pw"},
		{"Invalid email", "alice", "not-an-email", "s3cret-pw"},
		{"Password too short", "alice", "alice@example.com", "short"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := CreateUser(tt.username, tt.email, tt.password)
			assert.Error(t, err)
		})
	}
}

func TestSetPassword(t *testing.T) {
	user, err := CreateUser("alice", "alice@example.com", "initial-pw")
	require.NoError(t, err)

	require.NoError(t, user.SetPassword("next-pw"))
	assert.True(t, user.CheckPassword("next-pw"))
	assert.False(t, user.CheckPassword("initial-pw"))
}

func TestIsAdmin(t *testing.T) {
	user := &User{Role: ROLE_USER}
	assert.False(t, user.IsAdmin())
	user.Role = ROLE_ADMIN
	assert.True(t, user.IsAdmin())
}

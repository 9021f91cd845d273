package user

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMakeVerifyToken(t *testing.T) {
	timeout := 3 * 24 * time.Hour
	gen := newTokenGenerator("secret", timeout)

	now := time.Date(2025, 10, 6, 8, 0, 0, 0, time.UTC)
	NowFunc = func() time.Time { return now }
	t.Cleanup(func() { NowFunc = time.Now })

	usr := User{
		ID:        "u1",
		Name:      "T",
		Email:     "t@test.test",
		Role:      RoleParent,
		IsActive:  true,
		CreatedAt: now,
		UpdatedAt: now,
		LastLogin: now.Add(-time.Hour),
	}
	require.NoError(t, usr.SetPassword("pwd"))

	validToken, err := gen.makeToken(usr)
	require.NoError(t, err)

	NowFunc = func() time.Time { return now.Add(-timeout - time.Minute) }
	expiredToken, err := gen.makeToken(usr)
	require.NoError(t, err)
	NowFunc = func() time.Time { return now }

	pwdChanged := usr
	require.NoError(t, pwdChanged.SetPassword("new-pwd"))
	loggedIn := usr
	loggedIn.LastLogin = now
	emailChanged := usr
	emailChanged.Email = "other@test.test"
	deactivated := usr
	deactivated.IsActive = false

	tests := []struct {
		name    string
		gen     tokenGenerator
		usr     User
		token   string
		wantErr error
	}{
		{name: "no token", gen: gen, usr: usr, wantErr: errInvalidToken},
		{name: "no separator", gen: gen, usr: usr, token: "lmaooolol", wantErr: errInvalidToken},
		{name: "bad stamp", gen: gen, usr: usr, token: "!!-sigsig", wantErr: errInvalidToken},
		{name: "forged signature", gen: gen, usr: usr, token: "1a2b3c-sigsig", wantErr: errInvalidToken},
		{name: "expired", gen: gen, usr: usr, token: expiredToken, wantErr: errTokenExpired},
		{name: "password changed", gen: gen, usr: pwdChanged, token: validToken, wantErr: errInvalidToken},
		{name: "logged in since", gen: gen, usr: loggedIn, token: validToken, wantErr: errInvalidToken},
		{name: "email changed", gen: gen, usr: emailChanged, token: validToken, wantErr: errInvalidToken},
		{name: "deactivated", gen: gen, usr: deactivated, token: validToken, wantErr: errInvalidToken},
		{name: "other secret", gen: newTokenGenerator("other-secret", timeout), usr: usr, token: validToken, wantErr: errInvalidToken},
		{name: "valid", gen: gen, usr: usr, token: validToken},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.wantErr, tt.gen.verifyToken(tt.usr, tt.token))
		})
	}
}

func TestEncodeDecodeUID(t *testing.T) {
	usr := User{ID: "8d0f-parent_1"}
	id, err := decodeUID(encodeUID(usr))
	require.NoError(t, err)
	assert.Equal(t, usr.ID, id)

	_, err = decodeUID("%%%")
	assert.Error(t, err)
}

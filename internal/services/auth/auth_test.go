package services

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/magabrotheeeer/credential-broker/internal/lib/jwt"
	"github.com/magabrotheeeer/credential-broker/internal/lib/password"
)

func TestAuthService_Login(t *testing.T) {
	hash, err := password.GetHash("correct-password")
	require.NoError(t, err)

	maker := jwt.NewJWTMaker("test-secret", time.Hour)
	svc := NewAuthService("operator", hash, maker)

	tests := []struct {
		name     string
		username string
		password string
		wantErr  error
	}{
		{
			name:     "success",
			username: "operator",
			password: "correct-password",
		},
		{
			name:     "wrong username",
			username: "intruder",
			password: "correct-password",
			wantErr:  ErrInvalidCredentials,
		},
		{
			name:     "wrong password",
			username: "operator",
			password: "guess",
			wantErr:  ErrInvalidCredentials,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			token, err := svc.Login(tt.username, tt.password)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				assert.Empty(t, token)
				return
			}

			require.NoError(t, err)
			claims, err := maker.ParseToken(token)
			require.NoError(t, err)
			assert.Equal(t, "operator", claims.Username)
			assert.Equal(t, RoleAdmin, claims.Role)
		})
	}
}

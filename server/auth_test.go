package server

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/shaharia-lab/chatsvc"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "0123456789abcdef0123456789abcdef"

func signToken(t *testing.T, method jwt.SigningMethod, key interface{}, claims jwt.RegisteredClaims) string {
	t.Helper()
	token, err := jwt.NewWithClaims(method, claims).SignedString(key)
	require.NoError(t, err)
	return token
}

func validClaims(subject string) jwt.RegisteredClaims {
	return jwt.RegisteredClaims{
		Subject:   subject,
		Issuer:    "chatsvc-test",
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		IssuedAt:  jwt.NewNumericDate(time.Now()),
	}
}

func TestAuthenticator_Authenticate(t *testing.T) {
	expired := validClaims("42")
	expired.ExpiresAt = jwt.NewNumericDate(time.Now().Add(-time.Minute))

	wrongIssuer := validClaims("42")
	wrongIssuer.Issuer = "someone-else"

	tests := []struct {
		name     string
		header   string
		wantID   int64
		wantKind chatsvc.ErrorKind
	}{
		{
			name:   "valid token",
			header: "Bearer " + signToken(t, jwt.SigningMethodHS256, []byte(testSecret), validClaims("42")),
			wantID: 42,
		},
		{
			name:   "lowercase scheme",
			header: "bearer " + signToken(t, jwt.SigningMethodHS256, []byte(testSecret), validClaims("7")),
			wantID: 7,
		},
		{
			name:     "missing header",
			wantKind: chatsvc.KindTokenMissing,
		},
		{
			name:     "wrong scheme",
			header:   "Basic dXNlcjpwYXNz",
			wantKind: chatsvc.KindTokenInvalid,
		},
		{
			name:     "garbage token",
			header:   "Bearer not-a-jwt",
			wantKind: chatsvc.KindTokenInvalid,
		},
		{
			name:     "wrong secret",
			header:   "Bearer " + signToken(t, jwt.SigningMethodHS256, []byte("another-secret-another-secret-xx"), validClaims("42")),
			wantKind: chatsvc.KindTokenInvalid,
		},
		{
			name:     "wrong algorithm",
			header:   "Bearer " + signToken(t, jwt.SigningMethodHS512, []byte(testSecret), validClaims("42")),
			wantKind: chatsvc.KindTokenInvalid,
		},
		{
			name:     "expired",
			header:   "Bearer " + signToken(t, jwt.SigningMethodHS256, []byte(testSecret), expired),
			wantKind: chatsvc.KindTokenExpired,
		},
		{
			name:     "wrong issuer",
			header:   "Bearer " + signToken(t, jwt.SigningMethodHS256, []byte(testSecret), wrongIssuer),
			wantKind: chatsvc.KindTokenInvalid,
		},
		{
			name:     "non numeric subject",
			header:   "Bearer " + signToken(t, jwt.SigningMethodHS256, []byte(testSecret), validClaims("alice")),
			wantKind: chatsvc.KindTokenInvalid,
		},
		{
			name:     "missing subject",
			header:   "Bearer " + signToken(t, jwt.SigningMethodHS256, []byte(testSecret), validClaims("")),
			wantKind: chatsvc.KindTokenInvalid,
		},
	}

	auth := NewAuthenticator(testSecret, "chatsvc-test")
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/api/v1/chat/history", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}

			userID, err := auth.Authenticate(req)
			if tt.wantKind != "" {
				require.Error(t, err)
				assert.ErrorIs(t, err, chatsvc.ErrToken)
				chatErr, ok := chatsvc.AsChatError(err)
				require.True(t, ok)
				assert.Equal(t, tt.wantKind, chatErr.Kind)
				assert.Equal(t, http.StatusUnauthorized, chatErr.StatusCode)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantID, userID)
		})
	}
}

func TestAuthenticator_NoIssuerConfigured(t *testing.T) {
	claims := validClaims("5")
	claims.Issuer = ""
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer "+signToken(t, jwt.SigningMethodHS256, []byte(testSecret), claims))

	userID, err := NewAuthenticator(testSecret, "").Authenticate(req)
	require.NoError(t, err)
	assert.Equal(t, int64(5), userID)
}

func TestStaticAuthenticator(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer whatever")

	userID, err := NewStaticAuthenticator(1).Authenticate(req)
	require.NoError(t, err)
	assert.Equal(t, int64(1), userID)
}

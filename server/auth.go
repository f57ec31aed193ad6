package server

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/golang-jwt/jwt/v5"
	"github.com/shaharia-lab/chatsvc"
)

type contextKey int

const (
	userIDKey contextKey = iota
	requestIDKey
)

// Authenticator turns a bearer token into a user id.
type Authenticator struct {
	enabled       bool
	secret        []byte
	issuer        string
	defaultUserID int64
}

// NewAuthenticator verifies HS256 tokens signed with secret. The token's subject must be
// the numeric user id. A non-empty issuer is enforced.
func NewAuthenticator(secret, issuer string) *Authenticator {
	return &Authenticator{enabled: true, secret: []byte(secret), issuer: issuer}
}

// NewStaticAuthenticator skips token checks and treats every caller as userID.
func NewStaticAuthenticator(userID int64) *Authenticator {
	return &Authenticator{defaultUserID: userID}
}

// Authenticate returns the user id carried by r.
func (a *Authenticator) Authenticate(r *http.Request) (int64, error) {
	if !a.enabled {
		return a.defaultUserID, nil
	}

	header := r.Header.Get("Authorization")
	if header == "" {
		return 0, chatsvc.NewTokenError(chatsvc.KindTokenMissing, "authorization token is missing")
	}
	scheme, raw, found := strings.Cut(header, " ")
	if !found || !strings.EqualFold(scheme, "Bearer") || strings.TrimSpace(raw) == "" {
		return 0, chatsvc.NewTokenError(chatsvc.KindTokenInvalid, "authorization header must be 'Bearer <token>'")
	}

	opts := []jwt.ParserOption{jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()})}
	if a.issuer != "" {
		opts = append(opts, jwt.WithIssuer(a.issuer))
	}

	token, err := jwt.ParseWithClaims(strings.TrimSpace(raw), &jwt.RegisteredClaims{}, func(t *jwt.Token) (interface{}, error) {
		return a.secret, nil
	}, opts...)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return 0, chatsvc.NewTokenError(chatsvc.KindTokenExpired, "token has expired")
		}
		return 0, chatsvc.NewTokenError(chatsvc.KindTokenInvalid, "token is invalid")
	}

	subject, err := token.Claims.GetSubject()
	if err != nil || subject == "" {
		return 0, chatsvc.NewTokenError(chatsvc.KindTokenInvalid, "token has no subject")
	}
	userID, err := strconv.ParseInt(subject, 10, 64)
	if err != nil || userID <= 0 {
		return 0, chatsvc.NewTokenError(chatsvc.KindTokenInvalid, "token subject is not a user id")
	}

	return userID, nil
}

// Middleware rejects unauthenticated requests and stores the user id in the request context.
func (a *Authenticator) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		userID, err := a.Authenticate(r)
		if err != nil {
			writeError(w, err)
			return
		}
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), userIDKey, userID)))
	})
}

// UserIDFromContext returns the authenticated user id.
func UserIDFromContext(ctx context.Context) (int64, bool) {
	userID, ok := ctx.Value(userIDKey).(int64)
	return userID, ok
}

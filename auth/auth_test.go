package auth

import (
	"channel-chat/domain"
	"channel-chat/errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestHashAndCompare(t *testing.T) {
	req := require.New(t)
	password := "correct horse battery staple"

	hash, err := HashPassword(password)
	req.NoError(err)
	req.True(strings.HasPrefix(hash, "$argon2id$"))

	match, err := ComparePassword(password, hash)
	req.NoError(err)
	req.True(match)

	match, err = ComparePassword("wrong password", hash)
	req.NoError(err)
	req.False(match)

	_, err = ComparePassword(password, "not-a-hash")
	req.Error(err)
}

func TestSignupValidation(t *testing.T) {
	tests := []struct {
		name    string
		req     SignupRequest
		wantErr bool
	}{
		{"Valid request", SignupRequest{"Alice", "alice@example.com", "password1"}, false},
		{"Missing name", SignupRequest{"  ", "alice@example.com", "password1"}, true},
		{"Invalid email", SignupRequest{"Alice", "notanemail", "password1"}, true},
		{"Password too short", SignupRequest{"Alice", "alice@example.com", "short"}, true},
		{"Password too long", SignupRequest{"Alice", "alice@example.com", strings.Repeat("a", 73)}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := require.New(t)
			err := ValidateSignup(tt.req)
			if tt.wantErr {
				req.ErrorIs(err, errors.ErrValidation)
			} else {
				req.NoError(err)
			}
		})
	}
}

func TestCreateChannelValidation(t *testing.T) {
	req := require.New(t)
	req.NoError(ValidateCreateChannel(CreateChannelRequest{Name: "general"}))
	req.ErrorIs(ValidateCreateChannel(CreateChannelRequest{Name: " "}), errors.ErrInvalidRequest)
	req.ErrorIs(ValidateCreateChannel(CreateChannelRequest{Name: strings.Repeat("x", 65)}), errors.ErrInvalidRequest)
}

func TestTokenRoundTrip(t *testing.T) {
	req := require.New(t)
	issuer := NewTokenIssuer("test-secret", time.Hour)
	identity := domain.Identity{UserID: "user-1", Name: "Alice"}

	token, err := issuer.GenerateToken(identity)
	req.NoError(err)

	got, err := issuer.Verify(token)
	req.NoError(err)
	req.Equal(identity, got)
}

func TestTokenRejected(t *testing.T) {
	identity := domain.Identity{UserID: "user-1", Name: "Alice"}
	issuer := NewTokenIssuer("test-secret", time.Hour)
	valid, err := issuer.GenerateToken(identity)
	require.NoError(t, err)

	expiredIssuer := NewTokenIssuer("test-secret", time.Hour)
	expiredIssuer.now = func() time.Time { return time.Now().Add(-2 * time.Hour) }
	expired, err := expiredIssuer.GenerateToken(identity)
	require.NoError(t, err)

	otherSecret, err := NewTokenIssuer("other-secret", time.Hour).GenerateToken(identity)
	require.NoError(t, err)

	tests := []struct {
		name  string
		token string
		want  error
	}{
		{"empty", "", errors.ErrMissingToken},
		{"garbage", "abc.def.ghi", errors.ErrInvalidToken},
		{"expired", expired, errors.ErrInvalidToken},
		{"wrong secret", otherSecret, errors.ErrInvalidToken},
		{"truncated", valid[:len(valid)-4], errors.ErrInvalidToken},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := issuer.Verify(tt.token)
			require.ErrorIs(t, err, tt.want)
		})
	}
}

func TestMiddleware(t *testing.T) {
	req := require.New(t)
	issuer := NewTokenIssuer("test-secret", time.Hour)
	token, err := issuer.GenerateToken(domain.Identity{UserID: "user-1", Name: "Alice"})
	req.NoError(err)

	var seen domain.Identity
	handler := Middleware(issuer, func(w http.ResponseWriter, _ *http.Request, err error) {
		w.WriteHeader(errors.Status(err))
	})(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen, _ = IdentityFrom(r.Context())
		w.WriteHeader(http.StatusNoContent)
	}))

	// Given no token
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/channels", nil))
	req.Equal(http.StatusUnauthorized, rec.Code)

	// Given an invalid token
	rec = httptest.NewRecorder()
	r := httptest.NewRequest(http.MethodGet, "/channels", nil)
	r.Header.Set("Authorization", "Bearer nope")
	handler.ServeHTTP(rec, r)
	req.Equal(http.StatusForbidden, rec.Code)

	// Given a valid bearer token
	rec = httptest.NewRecorder()
	r = httptest.NewRequest(http.MethodGet, "/channels", nil)
	r.Header.Set("Authorization", "Bearer "+token)
	handler.ServeHTTP(rec, r)
	req.Equal(http.StatusNoContent, rec.Code)
	req.Equal(domain.UserID("user-1"), seen.UserID)

	// Given a token in the query string
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/ws?token="+token, nil))
	req.Equal(http.StatusNoContent, rec.Code)
}

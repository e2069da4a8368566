package auth

import (
	"channel-chat/domain"
	"channel-chat/errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const issuer = "channel-chat"

// CustomClaims defines the structure of the data stored inside the JWT.
type CustomClaims struct {
	UserID string `json:"user_id"`
	Name   string `json:"name"`
	jwt.RegisteredClaims
}

// TokenIssuer signs and verifies session tokens with an injected secret.
type TokenIssuer struct {
	secret   []byte
	duration time.Duration
	now      func() time.Time
}

func NewTokenIssuer(secret string, duration time.Duration) *TokenIssuer {
	return &TokenIssuer{secret: []byte(secret), duration: duration, now: time.Now}
}

// GenerateToken creates a signed HS256 JWT for a user.
func (t *TokenIssuer) GenerateToken(identity domain.Identity) (string, error) {
	now := t.now()
	claims := &CustomClaims{
		UserID: string(identity.UserID),
		Name:   identity.Name,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   string(identity.UserID),
			ExpiresAt: jwt.NewNumericDate(now.Add(t.duration)),
			IssuedAt:  jwt.NewNumericDate(now),
			Issuer:    issuer,
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(t.secret)
	if err != nil {
		return "", fmt.Errorf("%w: %v", errors.ErrTokenGeneration, err)
	}
	return signed, nil
}

// ValidateToken parses and validates the signature, algorithm and expiration of a JWT string.
func (t *TokenIssuer) ValidateToken(tokenString string) (*CustomClaims, error) {
	if tokenString == "" {
		return nil, errors.ErrMissingToken
	}
	token, err := jwt.ParseWithClaims(tokenString, &CustomClaims{}, func(token *jwt.Token) (interface{}, error) {
		return t.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(issuer),
		jwt.WithTimeFunc(t.now),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", errors.ErrInvalidToken, err)
	}
	claims, ok := token.Claims.(*CustomClaims)
	if !ok || !token.Valid || claims.UserID == "" {
		return nil, errors.ErrInvalidToken
	}
	return claims, nil
}

// Verify resolves a token to the identity it was issued for.
func (t *TokenIssuer) Verify(tokenString string) (domain.Identity, error) {
	claims, err := t.ValidateToken(tokenString)
	if err != nil {
		return domain.Identity{}, err
	}
	return domain.Identity{UserID: domain.UserID(claims.UserID), Name: claims.Name}, nil
}

package services

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const tokenIssuer = "watchpost"

// ErrSecretTooShort is returned for HMAC secrets under 32 bytes
var ErrSecretTooShort = errors.New("auth secret must be at least 32 bytes")

// AuthService manages JWT token generation and validation
type AuthService struct {
	secretKey   []byte
	tokenExpiry time.Duration
	now         func() time.Time
}

// CustomClaims represents the JWT claims structure
type CustomClaims struct {
	ClientName string `json:"client_name"`
	jwt.RegisteredClaims
}

// NewAuthService creates a service signing with secret. A zero expiry means 90 days.
func NewAuthService(secret string, tokenExpiry time.Duration) (*AuthService, error) {
	if len(secret) < 32 {
		return nil, ErrSecretTooShort
	}
	if tokenExpiry == 0 {
		tokenExpiry = 90 * 24 * time.Hour
	}
	return &AuthService{
		secretKey:   []byte(secret),
		tokenExpiry: tokenExpiry,
		now:         time.Now,
	}, nil
}

// GenerateToken creates a token for the named API client
func (a *AuthService) GenerateToken(clientName string) (string, time.Time, error) {
	if clientName == "" {
		return "", time.Time{}, errors.New("client name is required")
	}

	now := a.now()
	expiresAt := now.Add(a.tokenExpiry)
	claims := CustomClaims{
		ClientName: clientName,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   clientName,
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			Issuer:    tokenIssuer,
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(a.secretKey)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("failed to sign token: %w", err)
	}
	return signed, expiresAt, nil
}

// ValidateToken verifies and parses a JWT token
func (a *AuthService) ValidateToken(tokenString string) (*CustomClaims, error) {
	claims := &CustomClaims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return a.secretKey, nil
	},
		jwt.WithIssuer(tokenIssuer),
		jwt.WithTimeFunc(a.now),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		return nil, err
	}
	if !token.Valid {
		return nil, errors.New("invalid token")
	}
	return claims, nil
}

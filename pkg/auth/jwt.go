package authentication

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// TokenClaims are the claims carried by an issued access token.
type TokenClaims struct {
	ClientID string `json:"client_id"`
	Scope    string `json:"scp,omitempty"`
	jwt.RegisteredClaims
}

// ITokenService issues and validates bearer access tokens.
type ITokenService interface {
	IssueToken(clientID string, scope string) (token string, expiresIn int64, err error)
	ValidateToken(token string) (*TokenClaims, error)
}

type TokenConfig struct {
	// SigningKey is the HMAC secret used for HS256.
	SigningKey string

	Issuer string

	// TTL defaults to one hour.
	TTL time.Duration
}

type tokenService struct {
	key    []byte
	issuer string
	ttl    time.Duration
}

func NewTokenService(config *TokenConfig) (ITokenService, error) {
	if config.SigningKey == "" {
		return nil, errors.New("signing key is required")
	}
	ttl := config.TTL
	if ttl == 0 {
		ttl = time.Hour
	}
	return &tokenService{
		key:    []byte(config.SigningKey),
		issuer: config.Issuer,
		ttl:    ttl,
	}, nil
}

func (s *tokenService) IssueToken(clientID string, scope string) (string, int64, error) {
	now := time.Now()
	claims := TokenClaims{
		ClientID: clientID,
		Scope:    scope,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    s.issuer,
			Subject:   clientID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.ttl)),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(s.key)
	if err != nil {
		return "", 0, fmt.Errorf("failed to sign token: %w", err)
	}
	return signed, int64(s.ttl.Seconds()), nil
}

func (s *tokenService) ValidateToken(tokenStr string) (*TokenClaims, error) {
	claims := &TokenClaims{}
	token, err := jwt.ParseWithClaims(tokenStr, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return s.key, nil
	}, jwt.WithExpirationRequired())
	if err != nil {
		return nil, err
	}
	if !token.Valid {
		return nil, errors.New("invalid token")
	}
	return claims, nil
}

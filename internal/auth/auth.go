// Package auth verifies externally issued access tokens at the messaging
// boundary. Token issuance belongs to the identity side of the application;
// this service only checks the HS256 signature and resolves the subject to a
// known user, caching the result for the token cache TTL.
package auth

import (
	"context"
	"errors"
	"time"

	"github.com/c-pro/geche"
	"github.com/golang-jwt/jwt/v5"

	"github.com/AzuraDev202/Task-Report-ManagementSystem-sub000/internal/apperr"
	"github.com/AzuraDev202/Task-Report-ManagementSystem-sub000/internal/models"
)

const DefaultCacheTTL = 5 * time.Minute

type Config struct {
	Secret   string
	CacheTTL time.Duration
}

func (c *Config) Validate() error {
	if c.Secret == "" {
		return errors.New("secret is required")
	}
	if c.CacheTTL == 0 {
		c.CacheTTL = DefaultCacheTTL
	}
	return nil
}

// UserSource resolves a token subject to a user record.
type UserSource interface {
	GetUser(id string) (models.User, error)
}

type Service struct {
	Config
	users UserSource
	cache geche.Geche[string, string]
}

func NewService(ctx context.Context, config Config, users UserSource) (*Service, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	return &Service{
		Config: config,
		users:  users,
		cache:  geche.NewMapTTLCache[string, string](ctx, config.CacheTTL, time.Minute),
	}, nil
}

// VerifyToken returns the user id the token was issued for, or an
// authentication error. Verified tokens are cached so hot paths skip the
// signature check.
func (s *Service) VerifyToken(token string) (string, error) {
	if token == "" {
		return "", apperr.Authentication("missing token")
	}

	if userID, err := s.cache.Get(token); err == nil {
		return userID, nil
	}

	parsed, err := jwt.Parse(token, func(t *jwt.Token) (any, error) {
		return []byte(s.Secret), nil
	}, jwt.WithValidMethods([]string{"HS256"}))
	if err != nil || !parsed.Valid {
		return "", apperr.Authentication("invalid token")
	}

	userID, err := parsed.Claims.GetSubject()
	if err != nil || userID == "" {
		return "", apperr.Authentication("token has no subject")
	}

	if _, err := s.users.GetUser(userID); err != nil {
		return "", apperr.Authentication("unknown user")
	}

	s.cache.Set(token, userID)
	return userID, nil
}

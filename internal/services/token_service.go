package services

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"log/slog"
	"orion/internal/ports"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var ErrInvalidToken = errors.New("invalid or revoked token")

// TokenService validates the access tokens issued by the account
// service. Account management itself lives outside this process; the
// realtime and key endpoints only need to resolve a token to a user id
// and honor revocations.
type TokenService struct {
	tokenRepo ports.TokenRepository
	jwtKey    []byte
	logger    *slog.Logger
}

func NewTokenService(tokenRepo ports.TokenRepository, jwtKey []byte, logger *slog.Logger) *TokenService {
	return &TokenService{tokenRepo: tokenRepo, jwtKey: jwtKey, logger: logger}
}

func (s *TokenService) ValidateToken(ctx context.Context, tokenString string) (string, error) {
	if tokenString == "" {
		return "", ErrInvalidToken
	}

	token, err := jwt.Parse(tokenString, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, ErrInvalidToken
		}
		return s.jwtKey, nil
	})
	if err != nil || !token.Valid {
		return "", ErrInvalidToken
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return "", ErrInvalidToken
	}
	userID, _ := claims["sub"].(string)
	if userID == "" {
		return "", ErrInvalidToken
	}

	revoked, err := s.tokenRepo.IsRevoked(ctx, hashToken(tokenString))
	if err != nil {
		s.logger.Error("revocation check failed", "error", err)
		return "", err
	}
	if revoked {
		return "", ErrInvalidToken
	}

	return userID, nil
}

func (s *TokenService) RevokeToken(ctx context.Context, tokenString string, expiration time.Duration) error {
	return s.tokenRepo.Revoke(ctx, hashToken(tokenString), expiration)
}

func hashToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}

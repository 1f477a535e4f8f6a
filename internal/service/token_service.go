package service

import (
	"fmt"

	"github.com/golang-jwt/jwt/v5"

	"github.com/sahabatquran/classgen-api/internal/models"
	"github.com/sahabatquran/classgen-api/pkg/config"
	appErrors "github.com/sahabatquran/classgen-api/pkg/errors"
)

// TokenService verifies access tokens issued by the platform identity
// service. This gateway never issues tokens.
type TokenService struct {
	secret []byte
}

// NewTokenService constructs the verifier.
func NewTokenService(cfg config.JWTConfig) *TokenService {
	return &TokenService{secret: []byte(cfg.Secret)}
}

// ValidateToken parses and verifies a signed access token.
func (s *TokenService) ValidateToken(tokenString string) (*models.JWTClaims, error) {
	claims := &models.JWTClaims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return s.secret, nil
	})
	if err != nil || !token.Valid {
		return nil, appErrors.Clone(appErrors.ErrUnauthorized, "invalid or expired token")
	}
	if claims.UserID == "" {
		return nil, appErrors.Clone(appErrors.ErrUnauthorized, "token missing subject")
	}
	return claims, nil
}

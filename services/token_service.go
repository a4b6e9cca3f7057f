package services

import (
	"errors"
	"fmt"
	"time"

	"storefront/apperrors"
	"storefront/models"

	"github.com/golang-jwt/jwt/v4"
	"github.com/google/uuid"
)

// Claims is the payload of an access token.
type Claims struct {
	UserID   string `json:"id"`
	Username string `json:"username"`
	Role     string `json:"role"`
	jwt.RegisteredClaims
}

// TokenService is responsible for creating and validating JWTs.
type TokenService struct {
	secretKey []byte
	ttl       time.Duration
	now       func() time.Time
}

func NewTokenService(secret string, ttl time.Duration) *TokenService {
	return &TokenService{secretKey: []byte(secret), ttl: ttl, now: time.Now}
}

// Generate signs a token for user and returns it with its expiry.
func (s *TokenService) Generate(user *models.User) (string, time.Time, error) {
	now := s.now()
	expiresAt := now.Add(s.ttl)
	claims := Claims{
		UserID:   user.ID.Hex(),
		Username: user.Username,
		Role:     user.Role,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Subject:   user.ID.Hex(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(s.secretKey)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("sign token: %w", err)
	}
	return signed, expiresAt, nil
}

// Validate parses tokenStr. Any parse, signature or expiry failure is a
// forbidden error.
func (s *TokenService) Validate(tokenStr string) (*Claims, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenStr, claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", token.Header["alg"])
		}
		return s.secretKey, nil
	})
	if err != nil || !token.Valid {
		var ve *jwt.ValidationError
		if errors.As(err, &ve) && ve.Errors&jwt.ValidationErrorExpired != 0 {
			return nil, apperrors.New(apperrors.KindForbidden, "Token expired", err)
		}
		return nil, apperrors.New(apperrors.KindForbidden, "Invalid token", err)
	}
	if claims.UserID == "" || claims.ID == "" {
		return nil, apperrors.Forbidden("Invalid token claims")
	}
	return claims, nil
}

package utils

import (
	"fmt"
	"time"

	"github.com/Chromeox/hobbyist-web-partner-sub014/core/errors"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

type TokenData struct {
	UserID   uuid.UUID  `json:"user_id"`
	Role     string     `json:"role"`
	StudioID *uuid.UUID `json:"studio_id,omitempty"`
}

type Claims struct {
	TokenData
	jwt.RegisteredClaims
}

// GenerateToken signs an HS256 access token. The partner portal's auth
// service issues these in production; the API and tests only need to agree
// on the claim shape.
func GenerateToken(data TokenData, secret, issuer string, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := Claims{
		TokenData: data,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   data.UserID.String(),
			Issuer:    issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
}

func ValidateAndParseToken(tokenString, secret string) (*TokenData, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return []byte(secret), nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, errors.NewAppError(errors.ErrTokenExpired, "Token expired", err)
		}
		return nil, errors.NewAppError(errors.ErrInvalidTokenFormat, "Invalid token", err)
	}
	if !token.Valid || claims.UserID == uuid.Nil {
		return nil, errors.NewAppError(errors.ErrInvalidTokenFormat, "Invalid token", nil)
	}
	return &claims.TokenData, nil
}

package emulator

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// AudienceAccess marks tokens minted for API access
const AudienceAccess = "session:access"

// accessClaims combines standard claims with the id of the refresh token
// the access token is tied to
type accessClaims struct {
	jwt.RegisteredClaims
	RefreshID string `json:"rid"`
}

// tokenMinter issues and checks the emulator's HS256 token pairs
type tokenMinter struct {
	secret    []byte
	accessTTL time.Duration
}

// mint issues an access token for the subject together with an opaque
// refresh token id
func (m *tokenMinter) mint(subject string, now time.Time) (accessToken, refreshID string, err error) {
	refreshID = uuid.New().String()

	claims := accessClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			ID:        uuid.New().String(),
			Audience:  jwt.ClaimStrings{AudienceAccess},
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(m.accessTTL)),
		},
		RefreshID: refreshID,
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)

	accessToken, err = token.SignedString(m.secret)
	if err != nil {
		return "", "", fmt.Errorf("failed to sign access token: %w", err)
	}

	return accessToken, refreshID, nil
}

// parse checks an access token's signature, audience and expiry, returning
// its subject and the refresh id it is tied to
func (m *tokenMinter) parse(tokenStr string) (subject, refreshID string, err error) {
	token, err := jwt.ParseWithClaims(tokenStr, &accessClaims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return m.secret, nil
	}, jwt.WithAudience(AudienceAccess))
	if err != nil {
		return "", "", fmt.Errorf("failed to parse token: %w", err)
	}

	claims, ok := token.Claims.(*accessClaims)
	if !ok || !token.Valid {
		return "", "", fmt.Errorf("invalid claims")
	}

	return claims.Subject, claims.RefreshID, nil
}

package auth

import (
	"errors"
	"fmt"
	"strings"

	"github.com/golang-jwt/jwt/v5"
)

// TokenClaims is the payload the database api embeds in issued bearer
// tokens. The scan api reads it without verifying the signature; signature
// checks are the database api's job at CanAuthenticate.
type TokenClaims struct {
	OwnerID             int64  `json:"ownerId"`
	IsAPIToken          bool   `json:"isApiToken"`
	APITokenMachineGUID string `json:"apiTokenMachineGuid"`
	ProjectID           int64  `json:"projectId"`
	jwt.RegisteredClaims
}

// ParseClaims decodes the claims from an Authorization header value. A
// missing "Bearer " prefix is tolerated.
func ParseClaims(authorization string) (*TokenClaims, error) {
	raw := strings.TrimSpace(strings.TrimPrefix(authorization, "Bearer "))
	if raw == "" {
		return nil, errors.New("auth: empty bearer token")
	}

	claims := &TokenClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(raw, claims); err != nil {
		return nil, fmt.Errorf("auth: decode token claims: %w", err)
	}
	return claims, nil
}

// Package auth provides JWT-based authentication for trainwell-engine.
// It validates tokens issued by the identity service using JWKS endpoints.
package auth

import (
	"context"
	"fmt"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// contextKey is a custom type for context keys to avoid collisions.
type contextKey string

const (
	// ClaimsKey is the context key for storing JWT claims.
	ClaimsKey contextKey = "claims"
	// TokenKey is the context key for storing the raw JWT token string.
	TokenKey contextKey = "token"
)

// Claims represents the JWT claims structure from the identity service.
// It embeds RegisteredClaims for standard JWT fields (sub, iss, exp, etc.)
// and adds custom claims for account context.
type Claims struct {
	jwt.RegisteredClaims
	Email       string `json:"email,omitempty"` // User email address
	AccountType string `json:"act,omitempty"`   // "client" or "trainer"
	DisplayName string `json:"name,omitempty"`  // Display name
}

// GetClaims retrieves JWT claims from the request context.
// Returns nil and false if claims are not present.
func GetClaims(ctx context.Context) (*Claims, bool) {
	claims, ok := ctx.Value(ClaimsKey).(*Claims)
	return claims, ok
}

// GetToken retrieves the raw JWT token string from the request context.
// Returns empty string and false if token is not present.
func GetToken(ctx context.Context) (string, bool) {
	token, ok := ctx.Value(TokenKey).(string)
	return token, ok
}

// ExtractUserFromContext extracts the user ID and account type from JWT
// claims in context. Returns an error if not authenticated or the subject is
// not a valid UUID.
func ExtractUserFromContext(ctx context.Context) (uuid.UUID, string, error) {
	claims, ok := GetClaims(ctx)
	if !ok || claims == nil {
		return uuid.Nil, "", fmt.Errorf("authentication required: no claims in context")
	}

	if claims.Subject == "" {
		return uuid.Nil, "", fmt.Errorf("missing user ID in JWT claims")
	}

	userID, err := uuid.Parse(claims.Subject)
	if err != nil {
		return uuid.Nil, "", fmt.Errorf("invalid user ID format: %w", err)
	}

	return userID, claims.AccountType, nil
}

package auth

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"

	"github.com/trainwell-app/trainwell-engine/pkg/models"
)

// mockJWKSClient is a mock implementation of JWKSClientInterface for testing.
type mockJWKSClient struct {
	claims      *Claims
	validateErr error
	lastToken   string
}

func (m *mockJWKSClient) ValidateToken(tokenString string) (*Claims, error) {
	m.lastToken = tokenString
	if m.validateErr != nil {
		return nil, m.validateErr
	}
	return m.claims, nil
}

func (m *mockJWKSClient) Close() {}

func TestAuthService_ValidateRequest_CookieTakesPrecedence(t *testing.T) {
	jwks := &mockJWKSClient{claims: &Claims{AccountType: models.AccountTypeClient}}
	service := NewAuthService(jwks, zap.NewNop())

	req := httptest.NewRequest(http.MethodGet, "/api/trainers", nil)
	req.AddCookie(&http.Cookie{Name: JWTCookieName, Value: "cookie-token"})
	req.Header.Set("Authorization", "Bearer header-token")

	_, token, err := service.ValidateRequest(req)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if token != "cookie-token" {
		t.Errorf("expected cookie token, got %q", token)
	}
	if jwks.lastToken != "cookie-token" {
		t.Errorf("expected cookie token to be validated, got %q", jwks.lastToken)
	}
}

func TestAuthService_ValidateRequest_BearerFallback(t *testing.T) {
	jwks := &mockJWKSClient{claims: &Claims{}}
	service := NewAuthService(jwks, zap.NewNop())

	req := httptest.NewRequest(http.MethodGet, "/api/trainers", nil)
	req.Header.Set("Authorization", "Bearer header-token")

	_, token, err := service.ValidateRequest(req)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if token != "header-token" {
		t.Errorf("expected header token, got %q", token)
	}
}

func TestAuthService_ValidateRequest_MissingAuthorization(t *testing.T) {
	service := NewAuthService(&mockJWKSClient{}, zap.NewNop())

	req := httptest.NewRequest(http.MethodGet, "/api/trainers", nil)

	_, _, err := service.ValidateRequest(req)
	if err != ErrMissingAuthorization {
		t.Errorf("expected ErrMissingAuthorization, got %v", err)
	}
}

func TestAuthService_ValidateRequest_MalformedHeader(t *testing.T) {
	service := NewAuthService(&mockJWKSClient{}, zap.NewNop())

	req := httptest.NewRequest(http.MethodGet, "/api/trainers", nil)
	req.Header.Set("Authorization", "token-without-scheme")

	_, _, err := service.ValidateRequest(req)
	if err != ErrInvalidAuthFormat {
		t.Errorf("expected ErrInvalidAuthFormat, got %v", err)
	}
}

func TestAuthService_RequireClientAccount(t *testing.T) {
	service := NewAuthService(&mockJWKSClient{}, zap.NewNop())

	if err := service.RequireClientAccount(&Claims{AccountType: models.AccountTypeClient}); err != nil {
		t.Errorf("expected client account to pass, got %v", err)
	}

	if err := service.RequireClientAccount(&Claims{AccountType: models.AccountTypeTrainer}); err != ErrNotClientAccount {
		t.Errorf("expected ErrNotClientAccount, got %v", err)
	}
}

func TestExtractUserFromContext_MissingClaims(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/api/trainers", nil)

	_, _, err := ExtractUserFromContext(req.Context())
	if err == nil {
		t.Error("expected error for missing claims")
	}
}

func TestExtractUserFromContext_InvalidSubject(t *testing.T) {
	claims := &Claims{
		RegisteredClaims: jwt.RegisteredClaims{Subject: "not-a-uuid"},
		AccountType:      models.AccountTypeClient,
	}
	req := httptest.NewRequest(http.MethodGet, "/api/trainers", nil)
	ctx := context.WithValue(req.Context(), ClaimsKey, claims)

	_, _, err := ExtractUserFromContext(ctx)
	if err == nil {
		t.Error("expected error for invalid subject")
	}
}

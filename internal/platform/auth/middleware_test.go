package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
)

var testSigningKey = []byte("test-secret-key-for-unit-tests-only")

func createTestToken(t *testing.T, claims Claims, key []byte) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	tokenStr, err := token.SignedString(key)
	if err != nil {
		t.Fatalf("failed to sign test token: %v", err)
	}
	return tokenStr
}

func validClaims(sub uuid.UUID, role string) Claims {
	return Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   sub.String(),
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
		Role: role,
	}
}

// serve runs mw around a handler that records the identity it sees.
func serve(t *testing.T, mw echo.MiddlewareFunc, req *http.Request) (Identity, bool, error) {
	t.Helper()
	e := echo.New()
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	var got Identity
	var ok bool
	err := mw(func(c echo.Context) error {
		got, ok = IdentityFromContext(c.Request().Context())
		return c.String(http.StatusOK, "ok")
	})(c)
	return got, ok, err
}

func assertHTTPCode(t *testing.T, err error, code int) {
	t.Helper()
	if err == nil {
		t.Fatalf("expected error with status %d", code)
	}
	httpErr, ok := err.(*echo.HTTPError)
	if !ok {
		t.Fatalf("expected echo.HTTPError, got %T", err)
	}
	if httpErr.Code != code {
		t.Errorf("expected %d, got %d", code, httpErr.Code)
	}
}

func TestJWTMiddleware_MissingHeader(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	_, _, err := serve(t, JWTMiddleware(JWTConfig{SigningKey: testSigningKey}), req)
	assertHTTPCode(t, err, http.StatusUnauthorized)
}

func TestJWTMiddleware_InvalidFormat(t *testing.T) {
	tests := []struct {
		name   string
		header string
	}{
		{"no bearer prefix", "Token abc123"},
		{"missing token", "Bearer"},
		{"empty value", "Bearer "},
		{"basic auth", "Basic dXNlcjpwYXNz"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			req.Header.Set("Authorization", tt.header)
			_, _, err := serve(t, JWTMiddleware(JWTConfig{SigningKey: testSigningKey}), req)
			assertHTTPCode(t, err, http.StatusUnauthorized)
		})
	}
}

func TestJWTMiddleware_ValidToken(t *testing.T) {
	uid := uuid.New()
	tok := createTestToken(t, validClaims(uid, RoleDoctor), testSigningKey)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer "+tok)
	got, ok, err := serve(t, JWTMiddleware(JWTConfig{SigningKey: testSigningKey}), req)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !ok {
		t.Fatal("expected identity in context")
	}
	if got.UserID != uid || got.Role != RoleDoctor {
		t.Errorf("unexpected identity %+v", got)
	}
}

func TestJWTMiddleware_QueryToken(t *testing.T) {
	uid := uuid.New()
	tok := createTestToken(t, validClaims(uid, RolePatient), testSigningKey)

	req := httptest.NewRequest(http.MethodGet, "/ws?access_token="+tok, nil)
	got, _, err := serve(t, JWTMiddleware(JWTConfig{SigningKey: testSigningKey}), req)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.UserID != uid {
		t.Errorf("expected %s, got %s", uid, got.UserID)
	}
}

func TestJWTMiddleware_Rejects(t *testing.T) {
	uid := uuid.New()
	expired := validClaims(uid, RolePatient)
	expired.ExpiresAt = jwt.NewNumericDate(time.Now().Add(-time.Minute))
	noExpiry := validClaims(uid, RolePatient)
	noExpiry.ExpiresAt = nil
	badSubject := validClaims(uid, RolePatient)
	badSubject.Subject = "not-a-uuid"

	tests := []struct {
		name  string
		token string
	}{
		{"wrong key", createTestToken(t, validClaims(uid, RolePatient), []byte("other-key"))},
		{"expired", createTestToken(t, expired, testSigningKey)},
		{"no expiry", createTestToken(t, noExpiry, testSigningKey)},
		{"unknown role", createTestToken(t, validClaims(uid, "nurse"), testSigningKey)},
		{"bad subject", createTestToken(t, badSubject, testSigningKey)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			req.Header.Set("Authorization", "Bearer "+tt.token)
			_, _, err := serve(t, JWTMiddleware(JWTConfig{SigningKey: testSigningKey}), req)
			assertHTTPCode(t, err, http.StatusUnauthorized)
		})
	}
}

func TestJWTMiddleware_IssuerAudience(t *testing.T) {
	cfg := JWTConfig{SigningKey: testSigningKey, Issuer: "docbook", Audience: "docbook-api"}
	tok, err := IssueToken(cfg, uuid.New(), RoleAdmin, time.Hour)
	if err != nil {
		t.Fatalf("IssueToken: %v", err)
	}

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer "+tok)
	if _, _, err := serve(t, JWTMiddleware(cfg), req); err != nil {
		t.Fatalf("expected token to validate, got %v", err)
	}

	other := cfg
	other.Audience = "someone-else"
	req = httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer "+tok)
	_, _, err = serve(t, JWTMiddleware(other), req)
	assertHTTPCode(t, err, http.StatusUnauthorized)
}

func TestJWTMiddleware_Skipper(t *testing.T) {
	cfg := JWTConfig{SigningKey: testSigningKey, Skipper: func(echo.Context) bool { return true }}
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	_, ok, err := serve(t, JWTMiddleware(cfg), req)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ok {
		t.Error("skipped request should carry no identity")
	}
}

func TestDevAuthMiddleware_Defaults(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	got, ok, err := serve(t, DevAuthMiddleware(JWTConfig{SigningKey: testSigningKey}), req)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !ok || got.UserID != DevUserID || got.Role != RoleAdmin {
		t.Errorf("unexpected dev identity %+v", got)
	}
}

func TestDevAuthMiddleware_Headers(t *testing.T) {
	uid := uuid.New()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("X-Dev-User-ID", uid.String())
	req.Header.Set("X-Dev-Role", RolePatient)

	got, _, err := serve(t, DevAuthMiddleware(JWTConfig{SigningKey: testSigningKey}), req)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.UserID != uid || got.Role != RolePatient {
		t.Errorf("unexpected identity %+v", got)
	}
}

func TestDevAuthMiddleware_BadHeaders(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("X-Dev-User-ID", "nope")
	_, _, err := serve(t, DevAuthMiddleware(JWTConfig{}), req)
	assertHTTPCode(t, err, http.StatusBadRequest)

	req = httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("X-Dev-Role", "superuser")
	_, _, err = serve(t, DevAuthMiddleware(JWTConfig{}), req)
	assertHTTPCode(t, err, http.StatusBadRequest)
}

func TestDevAuthMiddleware_StillValidatesTokens(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer garbage")
	_, _, err := serve(t, DevAuthMiddleware(JWTConfig{SigningKey: testSigningKey}), req)
	assertHTTPCode(t, err, http.StatusUnauthorized)
}

package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

func TestTokenRoundTrip(t *testing.T) {
	token, err := IssueToken("secret", "user-1", "alice@example.com")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	claims, err := VerifyToken("secret", token)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if claims.Subject != "user-1" {
		t.Fatalf("expected subject user-1, got %s", claims.Subject)
	}
	if claims.Email != "alice@example.com" {
		t.Fatalf("expected email claim, got %s", claims.Email)
	}
}

func TestVerifyToken_WrongSecret(t *testing.T) {
	token, _ := IssueToken("secret", "user-1", "alice@example.com")
	if _, err := VerifyToken("other-secret", token); err == nil {
		t.Fatal("expected verification to fail with wrong secret")
	}
}

func TestVerifyToken_Expired(t *testing.T) {
	expired := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		Email: "alice@example.com",
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "user-1",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(-time.Hour)),
		},
	})
	token, err := expired.SignedString([]byte("secret"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if _, err := VerifyToken("secret", token); err == nil {
		t.Fatal("expected expired token to be rejected")
	}
}

func TestVerifyToken_RejectsUnsignedAlgorithm(t *testing.T) {
	unsigned := jwt.NewWithClaims(jwt.SigningMethodNone, Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "user-1",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	})
	token, err := unsigned.SignedString(jwt.UnsafeAllowNoneSignatureType)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if _, err := VerifyToken("secret", token); err == nil {
		t.Fatal("expected alg=none token to be rejected")
	}
}

func identityEcho(t *testing.T, gotUser *string) http.Handler {
	t.Helper()
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		*gotUser = UserID(r)
		w.WriteHeader(http.StatusOK)
	})
}

func TestMiddleware_AnonymousMode(t *testing.T) {
	var gotUser string
	handler := Middleware("")(identityEcho(t, &gotUser))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 in anonymous mode, got %d", rec.Code)
	}
	if gotUser != "" {
		t.Fatalf("expected empty identity, got %q", gotUser)
	}
}

func TestMiddleware_MissingCookie(t *testing.T) {
	var gotUser string
	handler := Middleware("secret")(identityEcho(t, &gotUser))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without cookie, got %d", rec.Code)
	}
}

func TestMiddleware_InvalidToken(t *testing.T) {
	var gotUser string
	handler := Middleware("secret")(identityEcho(t, &gotUser))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(&http.Cookie{Name: cookieName, Value: "garbage"})
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 for invalid token, got %d", rec.Code)
	}
}

func TestMiddleware_ValidToken(t *testing.T) {
	var gotUser string
	handler := Middleware("secret")(identityEcho(t, &gotUser))

	token, _ := IssueToken("secret", "user-1", "alice@example.com")
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(&http.Cookie{Name: cookieName, Value: token})
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 with valid token, got %d", rec.Code)
	}
	if gotUser != "user-1" {
		t.Fatalf("expected identity user-1, got %q", gotUser)
	}
}

package middleware

import (
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/driveline/platform/pkg/logger"
)

var testSecret = []byte("test-secret")

func signToken(t *testing.T, claims jwt.MapClaims, secret []byte) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(secret)
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return signed
}

func resolveCaller(t *testing.T, authHeader string) string {
	t.Helper()
	log := logger.NewDefault("auth-test")
	log.SetOutput(io.Discard)

	var caller string
	handler := Auth(testSecret, log)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		caller = CallerFrom(r.Context())
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	if authHeader != "" {
		req.Header.Set("Authorization", authHeader)
	}
	handler.ServeHTTP(httptest.NewRecorder(), req)
	return caller
}

func TestAuthResolvesSubject(t *testing.T) {
	token := signToken(t, jwt.MapClaims{
		"sub": "student-1",
		"exp": time.Now().Add(time.Hour).Unix(),
	}, testSecret)

	if got := resolveCaller(t, "Bearer "+token); got != "student-1" {
		t.Fatalf("expected student-1, got %q", got)
	}
}

func TestAuthLeavesAnonymousOnMissingToken(t *testing.T) {
	if got := resolveCaller(t, ""); got != "" {
		t.Fatalf("expected anonymous, got %q", got)
	}
}

func TestAuthLeavesAnonymousOnBadSignature(t *testing.T) {
	token := signToken(t, jwt.MapClaims{
		"sub": "student-1",
		"exp": time.Now().Add(time.Hour).Unix(),
	}, []byte("wrong-secret"))

	if got := resolveCaller(t, "Bearer "+token); got != "" {
		t.Fatalf("bad signature must stay anonymous, got %q", got)
	}
}

func TestAuthLeavesAnonymousOnExpiredToken(t *testing.T) {
	token := signToken(t, jwt.MapClaims{
		"sub": "student-1",
		"exp": time.Now().Add(-time.Hour).Unix(),
	}, testSecret)

	if got := resolveCaller(t, "Bearer "+token); got != "" {
		t.Fatalf("expired token must stay anonymous, got %q", got)
	}
}

func TestRateLimitRejectsBurstOverflow(t *testing.T) {
	handler := RateLimit(1, 2)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	statuses := make([]int, 0, 3)
	for i := 0; i < 3; i++ {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.RemoteAddr = "10.0.0.1:1234"
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		statuses = append(statuses, rec.Code)
	}
	if statuses[0] != http.StatusOK || statuses[1] != http.StatusOK {
		t.Fatalf("burst requests must pass, got %v", statuses)
	}
	if statuses[2] != http.StatusTooManyRequests {
		t.Fatalf("third request must be limited, got %v", statuses)
	}

	// A different client has its own bucket.
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "10.0.0.2:1234"
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("other client must not share the bucket, got %d", rec.Code)
	}
}

package chi

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/kailas-cloud/selectd/internal/domain"
)

const testSecret = "test-secret"

// principalHandler echoes the resolved principal.
func principalHandler(got *domain.RequestContext) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		*got = domain.RequestFromContext(r.Context())
		w.WriteHeader(http.StatusOK)
	})
}

func signToken(t *testing.T, claims Claims, method jwt.SigningMethod, key any) string {
	t.Helper()
	tok, err := jwt.NewWithClaims(method, claims).SignedString(key)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	return tok
}

func testAuthConfig() AuthConfig {
	return AuthConfig{
		APIKeys: []APIKey{
			{Key: "k-alice", User: "alice", Groups: []string{"staff"}},
			{Key: "k-root", User: "root", Superuser: true},
			{Key: ""},
		},
		JWTSecret: testSecret,
		JWTIssuer: "selectd-test",
	}
}

func serveAuth(t *testing.T, cfg AuthConfig, path, authHeader string) (*httptest.ResponseRecorder, domain.RequestContext) {
	t.Helper()
	var got domain.RequestContext
	handler := AuthMiddleware(cfg)(principalHandler(&got))

	req := httptest.NewRequest("GET", path, http.NoBody)
	if authHeader != "" {
		req.Header.Set("Authorization", authHeader)
	}
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)
	return rr, got
}

func TestAuthMiddleware_NoCredentials_Anonymous(t *testing.T) {
	rr, rc := serveAuth(t, testAuthConfig(), "/search/products", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("got %d, want %d", rr.Code, http.StatusOK)
	}
	if !rc.Principal.Anonymous {
		t.Errorf("expected anonymous principal, got %+v", rc.Principal)
	}
}

func TestAuthMiddleware_APIKey(t *testing.T) {
	rr, rc := serveAuth(t, testAuthConfig(), "/search/products", "Bearer k-alice")
	if rr.Code != http.StatusOK {
		t.Fatalf("got %d", rr.Code)
	}
	if rc.Principal.ID != "alice" || !rc.Principal.InGroup("staff") || rc.Principal.Anonymous {
		t.Errorf("unexpected principal %+v", rc.Principal)
	}

	_, rc = serveAuth(t, testAuthConfig(), "/search/products", "Bearer k-root")
	if !rc.Principal.Superuser {
		t.Error("expected superuser from api key")
	}
}

func TestAuthMiddleware_InvalidKey_401(t *testing.T) {
	rr, _ := serveAuth(t, AuthConfig{APIKeys: []APIKey{{Key: "secret", User: "u"}}}, "/search/products", "Bearer wrong")
	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("got %d, want %d", rr.Code, http.StatusUnauthorized)
	}

	var errResp ErrorResponse
	if err := json.NewDecoder(rr.Body).Decode(&errResp); err != nil {
		t.Fatalf("decode error response: %v", err)
	}
	if errResp.Code != codeUnauthenticated {
		t.Errorf("code = %q", errResp.Code)
	}
}

func TestAuthMiddleware_WrongScheme_401(t *testing.T) {
	rr, _ := serveAuth(t, testAuthConfig(), "/search/products", "Basic dXNlcjpwYXNz")
	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("got %d, want %d", rr.Code, http.StatusUnauthorized)
	}
}

func TestAuthMiddleware_ExemptPaths(t *testing.T) {
	for _, path := range []string{"/health", "/metrics"} {
		rr, _ := serveAuth(t, testAuthConfig(), path, "Bearer garbage")
		if rr.Code != http.StatusOK {
			t.Errorf("%s: got %d, want %d", path, rr.Code, http.StatusOK)
		}
	}
}

func TestAuthMiddleware_JWT(t *testing.T) {
	now := time.Now()
	valid := Claims{
		Groups: []string{"sales"},
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "bob",
			Issuer:    "selectd-test",
			ExpiresAt: jwt.NewNumericDate(now.Add(time.Hour)),
		},
	}

	tok := signToken(t, valid, jwt.SigningMethodHS256, []byte(testSecret))
	rr, rc := serveAuth(t, testAuthConfig(), "/search/orders", "Bearer "+tok)
	if rr.Code != http.StatusOK {
		t.Fatalf("valid token: got %d", rr.Code)
	}
	if rc.Principal.ID != "bob" || !rc.Principal.InGroup("sales") {
		t.Errorf("unexpected principal %+v", rc.Principal)
	}

	expired := valid
	expired.ExpiresAt = jwt.NewNumericDate(now.Add(-time.Hour))
	wrongIssuer := valid
	wrongIssuer.Issuer = "someone-else"
	noSubject := valid
	noSubject.Subject = ""

	tests := map[string]string{
		"expired":      signToken(t, expired, jwt.SigningMethodHS256, []byte(testSecret)),
		"wrong issuer": signToken(t, wrongIssuer, jwt.SigningMethodHS256, []byte(testSecret)),
		"no subject":   signToken(t, noSubject, jwt.SigningMethodHS256, []byte(testSecret)),
		"wrong secret": signToken(t, valid, jwt.SigningMethodHS256, []byte("other")),
		"wrong alg":    signToken(t, valid, jwt.SigningMethodHS512, []byte(testSecret)),
		"garbage":      "not.a.token",
	}
	for name, tok := range tests {
		t.Run(name, func(t *testing.T) {
			rr, _ := serveAuth(t, testAuthConfig(), "/search/orders", "Bearer "+tok)
			if rr.Code != http.StatusUnauthorized {
				t.Fatalf("got %d, want %d", rr.Code, http.StatusUnauthorized)
			}
		})
	}
}

func TestAuthMiddleware_JWTDisabled(t *testing.T) {
	tok := signToken(t, Claims{RegisteredClaims: jwt.RegisteredClaims{Subject: "bob"}},
		jwt.SigningMethodHS256, []byte(testSecret))
	rr, _ := serveAuth(t, AuthConfig{}, "/search/orders", "Bearer "+tok)
	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("got %d, want %d", rr.Code, http.StatusUnauthorized)
	}
}

package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"

	"github.com/yoockh/rehearse/config"
	"github.com/yoockh/rehearse/internal/logger"
)

const testSecret = "test-secret"

func sign(t *testing.T, claims supabaseClaims, secret string) string {
	t.Helper()
	tok, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	if err != nil {
		t.Fatal(err)
	}
	return tok
}

func validClaims(sub string) supabaseClaims {
	return supabaseClaims{RegisteredClaims: jwt.RegisteredClaims{
		Subject:   sub,
		Issuer:    "https://auth.example",
		Audience:  jwt.ClaimStrings{"authenticated"},
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
	}}
}

func newRouter(cfg config.Auth) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(RequestLogger(logger.Discard(), nil))
	auth := r.Group("/", JWTAuth(cfg))
	auth.GET("/me", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"user_id": c.GetString("user_id"), "role": c.GetString("role")})
	})
	auth.GET("/admin", RequireAdmin(), func(c *gin.Context) { c.Status(http.StatusNoContent) })
	return r
}

func do(r http.Handler, path, bearer string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, path, nil)
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestJWTAuth(t *testing.T) {
	cfg := config.Auth{JWTSecret: testSecret, JWTIssuer: "https://auth.example", JWTAudience: "authenticated"}
	r := newRouter(cfg)

	good := sign(t, validClaims("user-1"), testSecret)
	expired := validClaims("user-1")
	expired.ExpiresAt = jwt.NewNumericDate(time.Now().Add(-time.Minute))
	wrongAud := validClaims("user-1")
	wrongAud.Audience = jwt.ClaimStrings{"other"}

	cases := []struct {
		name   string
		path   string
		bearer string
		want   int
	}{
		{"valid header", "/me", good, http.StatusOK},
		{"valid query token", "/me?token=" + good, "", http.StatusOK},
		{"missing", "/me", "", http.StatusUnauthorized},
		{"bad signature", "/me", sign(t, validClaims("user-1"), "nope"), http.StatusUnauthorized},
		{"expired", "/me", sign(t, expired, testSecret), http.StatusUnauthorized},
		{"wrong audience", "/me", sign(t, wrongAud, testSecret), http.StatusUnauthorized},
		{"no subject", "/me", sign(t, validClaims(""), testSecret), http.StatusUnauthorized},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			w := do(r, tc.path, tc.bearer)
			if w.Code != tc.want {
				t.Fatalf("status = %d, want %d: %s", w.Code, tc.want, w.Body)
			}
			if w.Header().Get("X-Request-Id") == "" {
				t.Fatal("missing X-Request-Id")
			}
		})
	}
}

func TestJWTAuthMissingSecret(t *testing.T) {
	w := do(newRouter(config.Auth{}), "/me", "anything")
	if w.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d", w.Code)
	}
}

func TestRequireAdmin(t *testing.T) {
	r := newRouter(config.Auth{JWTSecret: testSecret})

	if w := do(r, "/admin", sign(t, validClaims("user-1"), testSecret)); w.Code != http.StatusForbidden {
		t.Fatalf("user status = %d", w.Code)
	}
	admin := validClaims("admin-1")
	admin.AppMetadata = map[string]any{"role": "admin"}
	if w := do(r, "/admin", sign(t, admin, testSecret)); w.Code != http.StatusNoContent {
		t.Fatalf("admin status = %d", w.Code)
	}
}

package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const secret = "test-secret-0123456789"

func sign(t *testing.T, method jwt.SigningMethod, key interface{}, claims jwt.MapClaims) string {
	t.Helper()
	s, err := jwt.NewWithClaims(method, claims).SignedString(key)
	require.NoError(t, err)
	return s
}

func adminRouter(secret string) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(CORS([]string{"https://shop.example.test"}), RequestLogger())
	r.GET("/admin", AdminAuth(secret), func(c *gin.Context) {
		c.String(http.StatusOK, c.GetString(ContextSubject))
	})
	return r
}

func TestAdminAuth(t *testing.T) {
	exp := time.Now().Add(time.Hour).Unix()
	tests := []struct {
		name   string
		secret string
		header string
		status int
	}{
		{"valid", secret, "Bearer " + sign(t, jwt.SigningMethodHS256, []byte(secret),
			jwt.MapClaims{"sub": "ops@shop", "role": "admin", "exp": exp}), http.StatusOK},
		{"missing header", secret, "", http.StatusUnauthorized},
		{"wrong scheme", secret, "Basic abc", http.StatusUnauthorized},
		{"wrong key", secret, "Bearer " + sign(t, jwt.SigningMethodHS256, []byte("other"),
			jwt.MapClaims{"role": "admin", "exp": exp}), http.StatusUnauthorized},
		{"expired", secret, "Bearer " + sign(t, jwt.SigningMethodHS256, []byte(secret),
			jwt.MapClaims{"role": "admin", "exp": time.Now().Add(-time.Minute).Unix()}), http.StatusUnauthorized},
		{"no expiry", secret, "Bearer " + sign(t, jwt.SigningMethodHS256, []byte(secret),
			jwt.MapClaims{"role": "admin"}), http.StatusUnauthorized},
		{"other alg", secret, "Bearer " + sign(t, jwt.SigningMethodHS512, []byte(secret),
			jwt.MapClaims{"role": "admin", "exp": exp}), http.StatusUnauthorized},
		{"not admin", secret, "Bearer " + sign(t, jwt.SigningMethodHS256, []byte(secret),
			jwt.MapClaims{"role": "customer", "exp": exp}), http.StatusForbidden},
		{"unconfigured", "", "Bearer x", http.StatusUnauthorized},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			req := httptest.NewRequest(http.MethodGet, "/admin", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			adminRouter(tt.secret).ServeHTTP(w, req)
			assert.Equal(t, tt.status, w.Code)
			if tt.status == http.StatusOK {
				assert.Equal(t, "ops@shop", w.Body.String())
			}
		})
	}
}

func TestCORS(t *testing.T) {
	r := adminRouter(secret)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodOptions, "/admin", nil)
	req.Header.Set("Origin", "https://shop.example.test")
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, "https://shop.example.test", w.Header().Get("Access-Control-Allow-Origin"))

	w = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodOptions, "/admin", nil)
	req.Header.Set("Origin", "https://evil.example.test")
	r.ServeHTTP(w, req)
	assert.Empty(t, w.Header().Get("Access-Control-Allow-Origin"))
}

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

	"charterops/internal/utils"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func serve(r *gin.Engine, req *http.Request) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestRequestIDReachesRequestContext(t *testing.T) {
	r := gin.New()
	r.Use(RequestID())
	var seen string
	r.GET("/", func(c *gin.Context) {
		seen = utils.RequestIDFrom(c.Request.Context())
		c.Status(http.StatusOK)
	})

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("X-Request-ID", "abc-123")
	w := serve(r, req)
	assert.Equal(t, "abc-123", seen)
	assert.Equal(t, "abc-123", w.Header().Get("X-Request-ID"))

	w = serve(r, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Len(t, w.Header().Get("X-Request-ID"), 36)
	assert.Equal(t, w.Header().Get("X-Request-ID"), seen)
}

func TestRateLimitRejectsBurst(t *testing.T) {
	r := gin.New()
	r.Use(RateLimit(1))
	r.GET("/", func(c *gin.Context) { c.Status(http.StatusOK) })

	assert.Equal(t, http.StatusOK, serve(r, httptest.NewRequest(http.MethodGet, "/", nil)).Code)
	w := serve(r, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Equal(t, "1", w.Header().Get("Retry-After"))
}

func TestRateLimitDisabled(t *testing.T) {
	r := gin.New()
	r.Use(RateLimit(0))
	r.GET("/", func(c *gin.Context) { c.Status(http.StatusOK) })
	for i := 0; i < 5; i++ {
		assert.Equal(t, http.StatusOK, serve(r, httptest.NewRequest(http.MethodGet, "/", nil)).Code)
	}
}

func token(t *testing.T, secret string, method jwt.SigningMethod, claims jwt.MapClaims) string {
	t.Helper()
	s, err := jwt.NewWithClaims(method, claims).SignedString([]byte(secret))
	require.NoError(t, err)
	return s
}

func TestAuth(t *testing.T) {
	const secret = "s3cret"
	exp := time.Now().Add(time.Hour).Unix()

	newRouter := func(required bool) *gin.Engine {
		r := gin.New()
		r.Use(Auth(secret, required))
		r.GET("/", func(c *gin.Context) {
			c.JSON(http.StatusOK, gin.H{"actor": ActorID(c), "role": c.GetString(userRoleKey)})
		})
		return r
	}

	cases := []struct {
		name     string
		required bool
		header   string
		status   int
	}{
		{name: "anonymous optional", status: http.StatusOK},
		{name: "anonymous required", required: true, status: http.StatusUnauthorized},
		{name: "not bearer", header: "Basic abc", status: http.StatusUnauthorized},
		{name: "valid", required: true, header: "Bearer " + token(t, secret, jwt.SigningMethodHS256, jwt.MapClaims{"sub": "12", "role": "Admin", "exp": exp}), status: http.StatusOK},
		{name: "wrong secret", header: "Bearer " + token(t, "other", jwt.SigningMethodHS256, jwt.MapClaims{"sub": "12", "exp": exp}), status: http.StatusUnauthorized},
		{name: "wrong algorithm", header: "Bearer " + token(t, secret, jwt.SigningMethodHS512, jwt.MapClaims{"sub": "12", "exp": exp}), status: http.StatusUnauthorized},
		{name: "expired", header: "Bearer " + token(t, secret, jwt.SigningMethodHS256, jwt.MapClaims{"sub": "12", "exp": time.Now().Add(-time.Minute).Unix()}), status: http.StatusUnauthorized},
		{name: "non numeric subject", header: "Bearer " + token(t, secret, jwt.SigningMethodHS256, jwt.MapClaims{"sub": "rina", "exp": exp}), status: http.StatusUnauthorized},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			if tc.header != "" {
				req.Header.Set("Authorization", tc.header)
			}
			w := serve(newRouter(tc.required), req)
			assert.Equal(t, tc.status, w.Code, w.Body.String())
		})
	}

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer "+token(t, secret, jwt.SigningMethodHS256, jwt.MapClaims{"sub": "12", "role": "Admin", "exp": exp}))
	w := serve(newRouter(true), req)
	assert.JSONEq(t, `{"actor":12,"role":"admin"}`, w.Body.String())
}

func TestRequireRoles(t *testing.T) {
	newRouter := func(role string) *gin.Engine {
		r := gin.New()
		r.Use(func(c *gin.Context) {
			if role != "" {
				c.Set(userRoleKey, role)
			}
		})
		r.GET("/", RequireRoles(" Admin ", "dispatcher"), func(c *gin.Context) { c.Status(http.StatusOK) })
		return r
	}

	assert.Equal(t, http.StatusUnauthorized, serve(newRouter(""), httptest.NewRequest(http.MethodGet, "/", nil)).Code)
	assert.Equal(t, http.StatusForbidden, serve(newRouter("driver"), httptest.NewRequest(http.MethodGet, "/", nil)).Code)
	assert.Equal(t, http.StatusOK, serve(newRouter("ADMIN"), httptest.NewRequest(http.MethodGet, "/", nil)).Code)
	assert.Equal(t, http.StatusOK, serve(newRouter("dispatcher"), httptest.NewRequest(http.MethodGet, "/", nil)).Code)
}

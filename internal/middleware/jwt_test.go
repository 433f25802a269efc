package middleware_test

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/require"

	"github.com/unicampus/credits-api/internal/middleware"
	"github.com/unicampus/credits-api/internal/models"
)

const testSecret = "test-secret"

func signToken(t *testing.T, claims models.JWTClaims) string {
	t.Helper()
	if claims.ExpiresAt == nil {
		claims.ExpiresAt = jwt.NewNumericDate(time.Now().Add(time.Hour))
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(testSecret))
	require.NoError(t, err)
	return signed
}

func buildProtectedRouter() *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.GET("/admin-only", middleware.JWT(testSecret), middleware.RBAC("ADMIN"), func(c *gin.Context) {
		c.Status(http.StatusOK)
	})
	r.GET("/students/:id/credits", middleware.JWT(testSecret), middleware.RBAC("ADMIN", "SELF"), func(c *gin.Context) {
		c.Status(http.StatusOK)
	})
	return r
}

func performRequest(r *gin.Engine, req *http.Request) *httptest.ResponseRecorder {
	resp := httptest.NewRecorder()
	r.ServeHTTP(resp, req)
	return resp
}

func TestProtectedRoutes(t *testing.T) {
	router := buildProtectedRouter()

	adminToken := signToken(t, models.JWTClaims{UserID: "1", Role: models.RoleAdmin})
	studentToken := signToken(t, models.JWTClaims{UserID: "2", Role: models.RoleStudent, StudentID: 7})

	t.Run("missing token", func(t *testing.T) {
		req, _ := http.NewRequest(http.MethodGet, "/admin-only", nil)
		resp := performRequest(router, req)
		require.Equal(t, http.StatusUnauthorized, resp.Code)
	})

	t.Run("malformed header", func(t *testing.T) {
		req, _ := http.NewRequest(http.MethodGet, "/admin-only", nil)
		req.Header.Set("Authorization", adminToken)
		resp := performRequest(router, req)
		require.Equal(t, http.StatusUnauthorized, resp.Code)
	})

	t.Run("bad signature", func(t *testing.T) {
		token := jwt.NewWithClaims(jwt.SigningMethodHS256, models.JWTClaims{
			UserID: "1", Role: models.RoleAdmin,
			RegisteredClaims: jwt.RegisteredClaims{ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour))},
		})
		signed, err := token.SignedString([]byte("other-secret"))
		require.NoError(t, err)
		req, _ := http.NewRequest(http.MethodGet, "/admin-only", nil)
		req.Header.Set("Authorization", "Bearer "+signed)
		resp := performRequest(router, req)
		require.Equal(t, http.StatusUnauthorized, resp.Code)
	})

	t.Run("expired token", func(t *testing.T) {
		expired := signToken(t, models.JWTClaims{
			UserID: "1", Role: models.RoleAdmin,
			RegisteredClaims: jwt.RegisteredClaims{ExpiresAt: jwt.NewNumericDate(time.Now().Add(-time.Hour))},
		})
		req, _ := http.NewRequest(http.MethodGet, "/admin-only", nil)
		req.Header.Set("Authorization", "Bearer "+expired)
		resp := performRequest(router, req)
		require.Equal(t, http.StatusUnauthorized, resp.Code)
	})

	t.Run("admin allowed", func(t *testing.T) {
		req, _ := http.NewRequest(http.MethodGet, "/admin-only", nil)
		req.Header.Set("Authorization", "Bearer "+adminToken)
		resp := performRequest(router, req)
		require.Equal(t, http.StatusOK, resp.Code)
	})

	t.Run("student forbidden on admin route", func(t *testing.T) {
		req, _ := http.NewRequest(http.MethodGet, "/admin-only", nil)
		req.Header.Set("Authorization", "Bearer "+studentToken)
		resp := performRequest(router, req)
		require.Equal(t, http.StatusForbidden, resp.Code)
	})

	t.Run("student reads own credits", func(t *testing.T) {
		req, _ := http.NewRequest(http.MethodGet, "/students/7/credits", nil)
		req.Header.Set("Authorization", "Bearer "+studentToken)
		resp := performRequest(router, req)
		require.Equal(t, http.StatusOK, resp.Code)
	})

	t.Run("student blocked from another account", func(t *testing.T) {
		req, _ := http.NewRequest(http.MethodGet, "/students/8/credits", nil)
		req.Header.Set("Authorization", "Bearer "+studentToken)
		resp := performRequest(router, req)
		require.Equal(t, http.StatusForbidden, resp.Code)
	})
}

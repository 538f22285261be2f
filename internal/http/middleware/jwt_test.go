package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/dgrijalva/jwt-go"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newRouter(secret string) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.GET("/secure", JWTMiddleware(secret), func(c *gin.Context) {
		sub, _ := GetSubject(c)
		c.String(http.StatusOK, sub)
	})
	return r
}

func call(r http.Handler, header string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, "/secure", nil)
	if header != "" {
		req.Header.Set("Authorization", header)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestJWTMiddleware(t *testing.T) {
	r := newRouter("secret")

	token, err := GenerateJWT("ops-console", "secret", time.Hour)
	require.NoError(t, err)
	w := call(r, "Bearer "+token)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "ops-console", w.Body.String())

	other, err := GenerateJWT("ops-console", "other", time.Hour)
	require.NoError(t, err)
	expired, err := GenerateJWT("ops-console", "secret", -time.Minute)
	require.NoError(t, err)
	none := jwt.NewWithClaims(jwt.SigningMethodNone, jwt.MapClaims{"sub": "ops-console"})
	unsigned, err := none.SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)

	tests := map[string]string{
		"missing":       "",
		"not bearer":    "Basic " + token,
		"wrong secret":  "Bearer " + other,
		"expired":       "Bearer " + expired,
		"alg none":      "Bearer " + unsigned,
		"garbage token": "Bearer abc.def.ghi",
	}
	for name, header := range tests {
		t.Run(name, func(t *testing.T) {
			assert.Equal(t, http.StatusUnauthorized, call(r, header).Code)
		})
	}
}

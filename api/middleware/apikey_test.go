package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"

	"github.com/customeros/mailsync/internal/utils"
)

func newRouter(apiKey string) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	g := r.Group("/v1")
	g.Use(APIKeyMiddleware(APIKeyConfig{ValidAPIKey: apiKey}))
	g.Use(CustomContextMiddleware("mailsync"))
	g.GET("/accounts/:id", func(c *gin.Context) {
		ctx := c.Request.Context()
		c.JSON(http.StatusOK, gin.H{
			"accountId": utils.GetAccountIdFromContext(ctx),
			"appSource": utils.GetAppSourceFromContext(ctx),
		})
	})
	return r
}

func TestAPIKeyMiddleware(t *testing.T) {
	r := newRouter("secret")

	cases := []struct {
		name   string
		key    string
		status int
	}{
		{"missing", "", http.StatusUnauthorized},
		{"wrong", "nope", http.StatusUnauthorized},
		{"valid", "secret", http.StatusOK},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/v1/accounts/acct_1", nil)
			if tc.key != "" {
				req.Header.Set(APIKeyHeader, tc.key)
			}
			w := httptest.NewRecorder()
			r.ServeHTTP(w, req)
			assert.Equal(t, tc.status, w.Code)
		})
	}
}

func TestAPIKeyMiddleware_EmptyConfiguredKeyRejectsAll(t *testing.T) {
	r := newRouter("")
	req := httptest.NewRequest(http.MethodGet, "/v1/accounts/acct_1", nil)
	req.Header.Set(APIKeyHeader, "anything")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestCustomContextMiddleware(t *testing.T) {
	r := newRouter("secret")
	req := httptest.NewRequest(http.MethodGet, "/v1/accounts/acct_9", nil)
	req.Header.Set(APIKeyHeader, "secret")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"accountId":"acct_9","appSource":"mailsync"}`, w.Body.String())
}

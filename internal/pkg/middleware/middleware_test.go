package middleware

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/kollektive-hackathon/walletrelay-backend/internal/auth"
	"github.com/kollektive-hackathon/walletrelay-backend/internal/pkg/utils"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubVerifier struct {
	identity *auth.Identity
	err      error
}

func (s stubVerifier) Verify(context.Context, string) (*auth.Identity, error) {
	return s.identity, s.err
}

func newRouter(verifier auth.Verifier, reached *bool) *gin.Engine {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.GET("/guarded", VerifyAuthToken(auth.NewGate(verifier)), func(c *gin.Context) {
		*reached = true
		c.JSON(http.StatusOK, gin.H{"subject": utils.GetIdentity(c).Subject})
	})
	return router
}

func TestVerifyAuthTokenStoresIdentity(t *testing.T) {
	reached := false
	router := newRouter(stubVerifier{identity: &auth.Identity{Subject: "did:privy:1"}}, &reached)

	req := httptest.NewRequest(http.MethodGet, "/guarded", nil)
	req.Header.Set("Authorization", "Bearer abc")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, reached)
	assert.JSONEq(t, `{"subject":"did:privy:1"}`, rec.Body.String())
}

func TestVerifyAuthTokenRejects(t *testing.T) {
	cases := map[string]struct {
		header   string
		verifier stubVerifier
	}{
		"missing header":  {header: "", verifier: stubVerifier{identity: &auth.Identity{Subject: "x"}}},
		"wrong scheme":    {header: "Basic abc", verifier: stubVerifier{identity: &auth.Identity{Subject: "x"}}},
		"verifier failed": {header: "Bearer abc", verifier: stubVerifier{err: errors.New("expired")}},
	}

	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			reached := false
			router := newRouter(tc.verifier, &reached)

			req := httptest.NewRequest(http.MethodGet, "/guarded", nil)
			if tc.header != "" {
				req.Header.Set("Authorization", tc.header)
			}
			rec := httptest.NewRecorder()
			router.ServeHTTP(rec, req)

			assert.Equal(t, http.StatusUnauthorized, rec.Code)
			assert.False(t, reached)
			assert.Contains(t, rec.Body.String(), `"code":"error.token.invalid"`)
		})
	}
}

func TestCORSAllowsConfiguredOrigin(t *testing.T) {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	RegisterGlobalMiddleware(router, []string{"https://app.example"})
	router.GET("/health", func(c *gin.Context) { c.Status(http.StatusOK) })

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set("Origin", "https://app.example")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "https://app.example", rec.Header().Get("Access-Control-Allow-Origin"))
}

package wallet

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/kollektive-hackathon/walletrelay-backend/internal/auth"
	"github.com/kollektive-hackathon/walletrelay-backend/internal/pkg/model"
	"github.com/kollektive-hackathon/walletrelay-backend/internal/pkg/utils"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newRouter(f *fixture, identity *auth.Identity) *gin.Engine {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	RegisterRoutes(router.Group("/api"), f.service, func(c *gin.Context) {
		utils.SetIdentityCtx(identity, c)
		c.Next()
	})
	return router
}

func serve(router *gin.Engine, method string, path string, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func TestCreateWalletMappingRoute(t *testing.T) {
	f := newFixture()
	router := newRouter(f, &auth.Identity{Subject: "did:privy:1", Email: "a@x.com", EmbeddedWallet: embeddedAddress})

	rec := serve(router, http.MethodPost, "/api/wallets", `{}`)

	require.Equal(t, http.StatusCreated, rec.Code)
	var record model.UserWallet
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &record))
	assert.Equal(t, "a@x.com", *record.Email)

	rec = serve(router, http.MethodPost, "/api/wallets", `{"embeddedWalletAddress":"`+embeddedAddress+`"}`)
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestCreateWalletMappingRouteRejectsBadAddress(t *testing.T) {
	f := newFixture()
	router := newRouter(f, &auth.Identity{Subject: "did:privy:1"})

	rec := serve(router, http.MethodPost, "/api/wallets", `{"embeddedWalletAddress":"0x12"}`)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "Invalid embedded wallet address")
	assert.Zero(t, f.provider.callCount())
}

func TestLookupRoutes(t *testing.T) {
	f := newFixture()
	router := newRouter(f, &auth.Identity{Subject: "did:privy:1", EmbeddedWallet: embeddedAddress})

	rec := serve(router, http.MethodGet, "/api/wallets/"+embeddedAddress+"/server", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"serverWalletAddress":null}`, rec.Body.String())

	rec = serve(router, http.MethodGet, "/api/wallets/"+embeddedAddress, "")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	record, err := f.service.CreateWalletMapping(context.Background(), embeddedAddress, "")
	require.NoError(t, err)

	rec = serve(router, http.MethodGet, "/api/wallets/"+embeddedAddress+"/server", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"serverWalletAddress":"`+record.ServerWalletAddress+`"}`, rec.Body.String())

	rec = serve(router, http.MethodGet, "/api/wallets/"+record.ServerWalletAddress+"/embedded", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"embeddedWalletAddress":"`+record.EmbeddedWalletAddress+`"}`, rec.Body.String())

	rec = serve(router, http.MethodGet, "/api/wallets/"+record.ServerWalletAddress, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), record.Id)

	rec = serve(router, http.MethodGet, "/api/wallets/not-an-address/server", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestBalanceRoute(t *testing.T) {
	f := newFixture()
	router := newRouter(f, &auth.Identity{Subject: "did:privy:1", EmbeddedWallet: embeddedAddress})

	rec := serve(router, http.MethodGet, "/api/wallets/"+embeddedAddress+"/balance", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	record, err := f.service.CreateWalletMapping(context.Background(), embeddedAddress, "")
	require.NoError(t, err)

	rec = serve(router, http.MethodGet, "/api/wallets/"+embeddedAddress+"/balance", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"address":"`+record.ServerWalletAddress+`","balance":"500000000000000"}`, rec.Body.String())
}

func TestUpdateProfileRoute(t *testing.T) {
	f := newFixture()
	router := newRouter(f, &auth.Identity{Subject: "did:privy:1", EmbeddedWallet: embeddedAddress})
	_, err := f.service.CreateWalletMapping(context.Background(), embeddedAddress, "")
	require.NoError(t, err)

	rec := serve(router, http.MethodPatch, "/api/wallets/"+embeddedAddress+"/profile", `{"username":"alice"}`)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"username":"alice"`)

	rec = serve(router, http.MethodPatch, "/api/wallets/"+embeddedAddress+"/profile", `not json`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestWalletRoutesRejectForeignCaller(t *testing.T) {
	f := newFixture()
	victim, err := f.service.CreateWalletMapping(context.Background(), embeddedAddress, "victim@x.com")
	require.NoError(t, err)

	callers := map[string]*auth.Identity{
		"own wallet":  {Subject: "did:privy:2", Email: "attacker@x.com", EmbeddedWallet: otherAddress},
		"email only":  {Subject: "uid-2", Email: "attacker@x.com"},
		"no contacts": {Subject: "uid-3"},
	}
	routes := []struct {
		method string
		path   string
		body   string
	}{
		{http.MethodGet, "/api/wallets/" + victim.EmbeddedWalletAddress, ""},
		{http.MethodGet, "/api/wallets/" + victim.ServerWalletAddress, ""},
		{http.MethodGet, "/api/wallets/" + victim.EmbeddedWalletAddress + "/server", ""},
		{http.MethodGet, "/api/wallets/" + victim.ServerWalletAddress + "/embedded", ""},
		{http.MethodGet, "/api/wallets/" + victim.EmbeddedWalletAddress + "/balance", ""},
		{http.MethodPatch, "/api/wallets/" + victim.EmbeddedWalletAddress + "/profile", `{"email":"attacker@x.com"}`},
		{http.MethodPatch, "/api/wallets/" + victim.ServerWalletAddress + "/profile", `{"username":"owned"}`},
	}

	for name, identity := range callers {
		router := newRouter(f, identity)
		for _, route := range routes {
			rec := serve(router, route.method, route.path, route.body)
			assert.Equal(t, http.StatusForbidden, rec.Code, "%s %s %s", name, route.method, route.path)
			assert.NotContains(t, rec.Body.String(), "victim@x.com")
		}
	}

	stored, err := f.store.FindByEmbedded(context.Background(), victim.EmbeddedWalletAddress)
	require.NoError(t, err)
	assert.Equal(t, "victim@x.com", *stored.Email)
	assert.Nil(t, stored.Username)
	assert.Empty(t, f.balances.addresses)
}

func TestEmailOnlyCallerReachesLinkedWallet(t *testing.T) {
	f := newFixture()
	record, err := f.service.CreateWalletMapping(context.Background(), embeddedAddress, "a@x.com")
	require.NoError(t, err)
	router := newRouter(f, &auth.Identity{Subject: "uid-1", Email: "A@x.com"})

	rec := serve(router, http.MethodGet, "/api/wallets/"+record.ServerWalletAddress, "")

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), record.Id)
}

func TestCreateWalletMappingRouteRejectsForeignRequest(t *testing.T) {
	cases := map[string]struct {
		identity *auth.Identity
		body     string
	}{
		"another wallet": {
			identity: &auth.Identity{Subject: "did:privy:2", Email: "a@x.com", EmbeddedWallet: otherAddress},
			body:     `{"embeddedWalletAddress":"` + embeddedAddress + `"}`,
		},
		"another email": {
			identity: &auth.Identity{Subject: "did:privy:2", Email: "a@x.com", EmbeddedWallet: otherAddress},
			body:     `{"email":"victim@x.com"}`,
		},
		"no verified wallet": {
			identity: &auth.Identity{Subject: "uid-2", Email: "a@x.com"},
			body:     `{"embeddedWalletAddress":"` + embeddedAddress + `"}`,
		},
	}

	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			f := newFixture()
			router := newRouter(f, tc.identity)

			rec := serve(router, http.MethodPost, "/api/wallets", tc.body)

			assert.Equal(t, http.StatusForbidden, rec.Code)
			assert.Zero(t, f.provider.callCount())
			assert.Zero(t, f.store.Len())
		})
	}
}

func TestUpdateProfileRouteOnlyLinksVerifiedEmail(t *testing.T) {
	f := newFixture()
	_, err := f.service.CreateWalletMapping(context.Background(), embeddedAddress, "")
	require.NoError(t, err)
	router := newRouter(f, &auth.Identity{Subject: "did:privy:1", Email: "Alice@x.com", EmbeddedWallet: embeddedAddress})

	rec := serve(router, http.MethodPatch, "/api/wallets/"+embeddedAddress+"/profile", `{"email":"victim@x.com"}`)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = serve(router, http.MethodPatch, "/api/wallets/"+embeddedAddress+"/profile", `{"email":"alice@X.com"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"email":"alice@x.com"`)
}

package custody

import (
	"context"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/sha256"
	"crypto/x509"
	"encoding/base64"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/kollektive-hackathon/walletrelay-backend/internal/pkg/reject"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T, handler http.HandlerFunc, signer AuthorizationSigner) *Client {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	client, err := NewClient(Config{
		BaseUrl:   server.URL,
		AppId:     "app-id",
		AppSecret: "app-secret",
		Signer:    signer,
	})
	require.NoError(t, err)
	return client
}

func newTestSigner(t *testing.T) *LocalSigner {
	t.Helper()
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)
	der, err := x509.MarshalPKCS8PrivateKey(key)
	require.NoError(t, err)

	signer, err := NewLocalSigner(authorizationKeyPrefix + base64.StdEncoding.EncodeToString(der))
	require.NoError(t, err)
	return signer
}

func TestNewClientRequiresCredentials(t *testing.T) {
	_, err := NewClient(Config{AppSecret: "secret"})
	assert.Error(t, err)
	_, err = NewClient(Config{AppId: "app"})
	assert.Error(t, err)
}

func TestCreateWallet(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/v1/wallets", r.URL.Path)
		assert.Equal(t, "app-id", r.Header.Get("privy-app-id"))
		user, pass, ok := r.BasicAuth()
		assert.True(t, ok)
		assert.Equal(t, "app-id", user)
		assert.Equal(t, "app-secret", pass)

		var body map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "ethereum", body["chain_type"])

		json.NewEncoder(w).Encode(Wallet{
			Id:        "huuwyoknfb1tdxgrx118c0uk",
			Address:   "0xfEfE12bf26A2802ABEe59393B19b0704Fb274844",
			ChainType: "ethereum",
		})
	}, nil)

	wallet, err := client.CreateWallet(context.Background(), "ethereum")
	require.NoError(t, err)
	assert.Equal(t, "huuwyoknfb1tdxgrx118c0uk", wallet.Id)
	assert.Equal(t, "0xfEfE12bf26A2802ABEe59393B19b0704Fb274844", wallet.Address)
}

func TestSendTransaction(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/wallets/wallet-1/rpc", r.URL.Path)

		var body rpcRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "eth_sendTransaction", body.Method)
		assert.Equal(t, "eip155:11155111", body.Caip2)
		assert.Equal(t, "0xBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBB2", body.Params.Transaction.To)
		assert.Equal(t, "0x5208", body.Params.Transaction.Value)
		assert.Equal(t, int64(11155111), body.Params.Transaction.ChainId)

		w.Write([]byte(`{"method":"eth_sendTransaction","data":{"hash":"0xdeadbeef","caip2":"eip155:11155111"}}`))
	}, nil)

	result, err := client.SendTransaction(context.Background(), "wallet-1", "eip155:11155111", Transaction{
		To:      "0xBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBB2",
		Value:   "0x5208",
		ChainId: 11155111,
	})
	require.NoError(t, err)
	assert.Equal(t, "0xdeadbeef", result.Hash)
	assert.Equal(t, "eip155:11155111", result.Caip2)
}

func TestProviderRejectionIsAPIError(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"error":"insufficient funds for gas * price + value"}`))
	}, nil)

	_, err := client.SendTransaction(context.Background(), "wallet-1", "eip155:1", Transaction{To: "0x0"})

	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusBadRequest, apiErr.Status)
	assert.Equal(t, "insufficient funds for gas * price + value", apiErr.Message)
}

func TestServerErrorIsTransport(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
		w.Write([]byte("upstream down"))
	}, nil)

	_, err := client.CreateWallet(context.Background(), "ethereum")

	assert.True(t, errors.Is(err, reject.ErrTransport))
	var e *reject.Error
	require.True(t, errors.As(err, &e))
	assert.Equal(t, "upstream down", e.Detail)
}

func TestTimeoutIsTransport(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
	}, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := client.CreateWallet(ctx, "ethereum")
	assert.True(t, errors.Is(err, reject.ErrTransport))
}

func TestMissingHashIsTransport(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"method":"eth_sendTransaction","data":{}}`))
	}, nil)

	_, err := client.SendTransaction(context.Background(), "wallet-1", "eip155:1", Transaction{To: "0x0"})
	assert.True(t, errors.Is(err, reject.ErrTransport))
}

func TestGetUser(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		assert.Equal(t, "/v1/users/did:privy:abc", r.URL.Path)
		w.Write([]byte(`{
			"id": "did:privy:abc",
			"linked_accounts": [
				{"type": "email", "address": "a@x.com"},
				{"type": "wallet", "address": "0x1111111111111111111111111111111111111111", "wallet_client_type": "metamask"},
				{"type": "wallet", "address": "0xAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAA1", "wallet_client_type": "privy"}
			]
		}`))
	}, nil)

	user, err := client.GetUser(context.Background(), "did:privy:abc")
	require.NoError(t, err)
	assert.Equal(t, "a@x.com", user.Email())
	assert.Equal(t, "0xAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAA1", user.EmbeddedWallet())
}

func TestEmbeddedWalletFallsBackToFirstWallet(t *testing.T) {
	user := User{LinkedAccounts: []LinkedAccount{
		{Type: "email", Address: "a@x.com"},
		{Type: "wallet", Address: "0x1111111111111111111111111111111111111111", WalletClientType: "metamask"},
	}}
	assert.Equal(t, "0x1111111111111111111111111111111111111111", user.EmbeddedWallet())
	assert.Equal(t, "", (&User{}).EmbeddedWallet())
}

func TestPostRequestsCarryVerifiableSignature(t *testing.T) {
	signer := newTestSigner(t)
	var serverUrl string

	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		body, err := io.ReadAll(r.Body)
		require.NoError(t, err)

		signature, err := base64.StdEncoding.DecodeString(r.Header.Get("privy-authorization-signature"))
		require.NoError(t, err)

		payload, err := authorizationPayload(r.Method, serverUrl+r.URL.Path, body, map[string]string{"privy-app-id": "app-id"})
		require.NoError(t, err)
		digest := sha256.Sum256(payload)
		assert.True(t, ecdsa.VerifyASN1(signer.Public(), digest[:], signature))

		json.NewEncoder(w).Encode(Wallet{Id: "w", Address: "0x1111111111111111111111111111111111111111"})
	}, signer)
	serverUrl = client.baseUrl

	_, err := client.CreateWallet(context.Background(), "ethereum")
	require.NoError(t, err)
}

func TestGetRequestsAreNotSigned(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Empty(t, r.Header.Get("privy-authorization-signature"))
		assert.Equal(t, "/v1/users/did:privy:1", r.URL.Path)
		json.NewEncoder(w).Encode(map[string]any{"id": "did:privy:1"})
	}, newTestSigner(t))

	_, err := client.GetUser(context.Background(), "did:privy:1")
	require.NoError(t, err)
}

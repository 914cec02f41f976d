package custody

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/kollektive-hackathon/walletrelay-backend/internal/pkg/reject"
	"github.com/rs/zerolog/log"
)

const (
	DefaultBaseUrl = "https://api.privy.io"

	appIdHeader                  = "privy-app-id"
	authorizationSignatureHeader = "privy-authorization-signature"
)

type Config struct {
	BaseUrl    string
	AppId      string
	AppSecret  string
	Signer     AuthorizationSigner
	Timeout    time.Duration
	HTTPClient *http.Client
}

// Client talks to the Privy wallet and user API. It keeps no state between
// calls besides its credentials.
type Client struct {
	baseUrl    string
	appId      string
	appSecret  string
	signer     AuthorizationSigner
	httpClient *http.Client
}

func NewClient(cfg Config) (*Client, error) {
	if cfg.AppId == "" {
		return nil, fmt.Errorf("custody app id is required")
	}
	if cfg.AppSecret == "" {
		return nil, fmt.Errorf("custody app secret is required")
	}

	baseUrl := cfg.BaseUrl
	if baseUrl == "" {
		baseUrl = DefaultBaseUrl
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		timeout := cfg.Timeout
		if timeout == 0 {
			timeout = 30 * time.Second
		}
		httpClient = &http.Client{Timeout: timeout}
	}

	return &Client{
		baseUrl:    strings.TrimSuffix(baseUrl, "/"),
		appId:      cfg.AppId,
		appSecret:  cfg.AppSecret,
		signer:     cfg.Signer,
		httpClient: httpClient,
	}, nil
}

// APIError is a non-retryable rejection returned by the provider (4xx).
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("custody provider rejected request (%d): %s", e.Status, e.Message)
}

type Wallet struct {
	Id        string `json:"id"`
	Address   string `json:"address"`
	ChainType string `json:"chain_type"`
	CreatedAt int64  `json:"created_at,omitempty"`
}

type createWalletRequest struct {
	ChainType string `json:"chain_type"`
}

func (c *Client) CreateWallet(ctx context.Context, chainType string) (*Wallet, error) {
	var wallet Wallet
	err := c.do(ctx, http.MethodPost, "/v1/wallets", createWalletRequest{ChainType: chainType}, &wallet)
	if err != nil {
		return nil, err
	}
	return &wallet, nil
}

type Transaction struct {
	To      string `json:"to"`
	Value   string `json:"value,omitempty"`
	Data    string `json:"data,omitempty"`
	Gas     string `json:"gas,omitempty"`
	ChainId int64  `json:"chain_id,omitempty"`
}

type rpcRequest struct {
	Method    string    `json:"method"`
	Caip2     string    `json:"caip2"`
	ChainType string    `json:"chain_type"`
	Params    rpcParams `json:"params"`
}

type rpcParams struct {
	Transaction Transaction `json:"transaction"`
}

type rpcResponse struct {
	Method string          `json:"method"`
	Data   json.RawMessage `json:"data"`
}

type SendTransactionResult struct {
	Hash  string `json:"hash"`
	Caip2 string `json:"caip2"`
}

// SendTransaction signs and broadcasts tx from the given wallet on the chain
// identified by caip2.
func (c *Client) SendTransaction(ctx context.Context, walletId string, caip2 string, tx Transaction) (*SendTransactionResult, error) {
	req := rpcRequest{
		Method:    "eth_sendTransaction",
		Caip2:     caip2,
		ChainType: "ethereum",
		Params:    rpcParams{Transaction: tx},
	}

	var res rpcResponse
	err := c.do(ctx, http.MethodPost, "/v1/wallets/"+url.PathEscape(walletId)+"/rpc", req, &res)
	if err != nil {
		return nil, err
	}

	var result SendTransactionResult
	if err := json.Unmarshal(res.Data, &result); err != nil {
		return nil, reject.Transport("malformed transaction response", err)
	}
	if result.Hash == "" {
		return nil, reject.Transport("transaction response carries no hash", nil)
	}
	return &result, nil
}

type LinkedAccount struct {
	Type             string `json:"type"`
	Address          string `json:"address,omitempty"`
	ChainType        string `json:"chain_type,omitempty"`
	WalletClientType string `json:"wallet_client_type,omitempty"`
	Verified         bool   `json:"verified,omitempty"`
}

type User struct {
	Id             string          `json:"id"`
	LinkedAccounts []LinkedAccount `json:"linked_accounts"`
}

// EmbeddedWallet returns the address of the user's provider-managed wallet,
// falling back to the first linked wallet of any client.
func (u *User) EmbeddedWallet() string {
	fallback := ""
	for _, a := range u.LinkedAccounts {
		if a.Type != "wallet" || a.Address == "" {
			continue
		}
		if a.WalletClientType == "privy" {
			return a.Address
		}
		if fallback == "" {
			fallback = a.Address
		}
	}
	return fallback
}

func (u *User) Email() string {
	for _, a := range u.LinkedAccounts {
		if a.Type == "email" {
			return a.Address
		}
	}
	return ""
}

func (c *Client) GetUser(ctx context.Context, userId string) (*User, error) {
	var user User
	err := c.do(ctx, http.MethodGet, "/v1/users/"+url.PathEscape(userId), nil, &user)
	if err != nil {
		return nil, err
	}
	return &user, nil
}

func (c *Client) do(ctx context.Context, method string, path string, body any, out any) error {
	endpoint := c.baseUrl + path

	var payload []byte
	if body != nil {
		var err error
		payload, err = json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.SetBasicAuth(c.appId, c.appSecret)
	req.Header.Set(appIdHeader, c.appId)
	req.Header.Set("Content-Type", "application/json")

	if c.signer != nil && method == http.MethodPost {
		signature, err := c.authorizationSignature(ctx, method, endpoint, payload)
		if err != nil {
			return fmt.Errorf("sign request: %w", err)
		}
		req.Header.Set(authorizationSignatureHeader, signature)
	}

	res, err := c.httpClient.Do(req)
	if err != nil {
		log.Warn().Err(err).Str("path", path).Msg("Custody provider request failed")
		return reject.Transport("custody provider unreachable", err)
	}
	defer res.Body.Close()

	resBody, err := io.ReadAll(res.Body)
	if err != nil {
		return reject.Transport("reading custody provider response", err)
	}

	if res.StatusCode >= 300 {
		message := errorMessage(resBody)
		log.Warn().
			Int("status", res.StatusCode).
			Str("path", path).
			Str("response", message).
			Msg("Custody provider returned an error")

		if res.StatusCode >= 500 || res.StatusCode == http.StatusTooManyRequests || res.StatusCode == http.StatusRequestTimeout {
			return reject.Transport(fmt.Sprintf("custody provider status %d", res.StatusCode), errors.New(message))
		}
		return &APIError{Status: res.StatusCode, Message: message}
	}

	if out == nil {
		return nil
	}
	if err := json.Unmarshal(resBody, out); err != nil {
		return reject.Transport("malformed custody provider response", err)
	}
	return nil
}

func (c *Client) authorizationSignature(ctx context.Context, method string, endpoint string, body []byte) (string, error) {
	payload, err := authorizationPayload(method, endpoint, body, map[string]string{appIdHeader: c.appId})
	if err != nil {
		return "", err
	}
	signature, err := c.signer.Sign(ctx, payload)
	if err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(signature), nil
}

func errorMessage(body []byte) string {
	var parsed struct {
		Error   string `json:"error"`
		Message string `json:"message"`
	}
	if err := json.Unmarshal(body, &parsed); err == nil {
		if parsed.Error != "" {
			return parsed.Error
		}
		if parsed.Message != "" {
			return parsed.Message
		}
	}
	return strings.TrimSpace(string(body))
}

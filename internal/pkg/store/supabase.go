package store

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/kollektive-hackathon/walletrelay-backend/internal/pkg/model"
	"github.com/kollektive-hackathon/walletrelay-backend/internal/pkg/reject"
	"github.com/rs/zerolog/log"
)

const userWalletsTable = "user_wallets"

type SupabaseConfig struct {
	Url        string
	ApiKey     string
	Timeout    time.Duration
	HTTPClient *http.Client
}

// SupabaseStore keeps user wallets in a Supabase project through its
// PostgREST endpoint. Uniqueness is enforced by the table's unique indexes.
type SupabaseStore struct {
	baseUrl    string
	apiKey     string
	httpClient *http.Client
	now        func() time.Time
}

func NewSupabaseStore(cfg SupabaseConfig) (*SupabaseStore, error) {
	if cfg.Url == "" {
		return nil, fmt.Errorf("supabase url is required")
	}
	if cfg.ApiKey == "" {
		return nil, fmt.Errorf("supabase api key is required")
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		timeout := cfg.Timeout
		if timeout == 0 {
			timeout = 30 * time.Second
		}
		httpClient = &http.Client{Timeout: timeout}
	}

	return &SupabaseStore{
		baseUrl:    strings.TrimSuffix(cfg.Url, "/"),
		apiKey:     cfg.ApiKey,
		httpClient: httpClient,
		now:        time.Now,
	}, nil
}

type supabaseRow struct {
	Id                    string    `json:"id"`
	Email                 *string   `json:"email"`
	Username              *string   `json:"username"`
	EmbeddedWalletAddress string    `json:"embedded_wallet_address"`
	ServerWalletAddress   string    `json:"server_wallet_address"`
	ServerWalletId        string    `json:"server_wallet_id"`
	ChainType             string    `json:"chain_type"`
	CreatedAt             time.Time `json:"created_at"`
	UpdatedAt             time.Time `json:"updated_at"`
}

func (r supabaseRow) toModel() *model.UserWallet {
	return &model.UserWallet{
		Id:                    r.Id,
		Email:                 r.Email,
		Username:              r.Username,
		EmbeddedWalletAddress: r.EmbeddedWalletAddress,
		ServerWalletAddress:   r.ServerWalletAddress,
		ServerWalletId:        r.ServerWalletId,
		ChainType:             r.ChainType,
		CreatedAt:             r.CreatedAt,
		UpdatedAt:             r.UpdatedAt,
	}
}

type postgrestError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details string `json:"details"`
}

func (s *SupabaseStore) FindByEmbedded(ctx context.Context, address string) (*model.UserWallet, error) {
	return s.selectOne(ctx, url.Values{columnEmbedded: {"eq." + address}})
}

func (s *SupabaseStore) FindByServer(ctx context.Context, address string) (*model.UserWallet, error) {
	return s.selectOne(ctx, url.Values{columnServer: {"eq." + address}})
}

func (s *SupabaseStore) FindByEither(ctx context.Context, address string) (*model.UserWallet, error) {
	filter := fmt.Sprintf("(%s.eq.%s,%s.eq.%s)", columnEmbedded, address, columnServer, address)
	return s.selectOne(ctx, url.Values{"or": {filter}})
}

func (s *SupabaseStore) FindByEmail(ctx context.Context, email string) (*model.UserWallet, error) {
	return s.selectOne(ctx, url.Values{columnEmail: {"eq." + email}})
}

func (s *SupabaseStore) selectOne(ctx context.Context, filters url.Values) (*model.UserWallet, error) {
	filters.Set("select", "*")
	filters.Set("limit", "1")

	var rows []supabaseRow
	if err := s.do(ctx, http.MethodGet, filters, nil, &rows); err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, nil
	}
	return rows[0].toModel(), nil
}

func (s *SupabaseStore) Insert(ctx context.Context, wallet *model.UserWallet) (*model.UserWallet, error) {
	now := s.now().UTC()
	row := supabaseRow{
		Id:                    wallet.Id,
		Email:                 wallet.Email,
		Username:              wallet.Username,
		EmbeddedWalletAddress: wallet.EmbeddedWalletAddress,
		ServerWalletAddress:   wallet.ServerWalletAddress,
		ServerWalletId:        wallet.ServerWalletId,
		ChainType:             wallet.ChainType,
		CreatedAt:             now,
		UpdatedAt:             now,
	}

	var rows []supabaseRow
	if err := s.do(ctx, http.MethodPost, nil, row, &rows); err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, reject.Transport("insert returned no representation", nil)
	}
	return rows[0].toModel(), nil
}

func (s *SupabaseStore) UpdateProfile(ctx context.Context, id string, update model.ProfileUpdate) (*model.UserWallet, error) {
	if update.IsEmpty() {
		return s.selectOne(ctx, url.Values{columnId: {"eq." + id}})
	}

	columns := profileColumns(update)
	columns["updated_at"] = s.now().UTC()

	var rows []supabaseRow
	if err := s.do(ctx, http.MethodPatch, url.Values{columnId: {"eq." + id}}, columns, &rows); err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, nil
	}
	return rows[0].toModel(), nil
}

func (s *SupabaseStore) do(ctx context.Context, method string, query url.Values, body any, out any) error {
	endpoint := fmt.Sprintf("%s/rest/v1/%s", s.baseUrl, userWalletsTable)
	if len(query) > 0 {
		endpoint += "?" + query.Encode()
	}

	var payload io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		payload = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, payload)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("apikey", s.apiKey)
	req.Header.Set("Authorization", "Bearer "+s.apiKey)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if method != http.MethodGet {
		req.Header.Set("Prefer", "return=representation")
	}

	res, err := s.httpClient.Do(req)
	if err != nil {
		log.Warn().Err(err).Str("method", method).Msg("Supabase request failed")
		return reject.Transport("identity store unreachable", err)
	}
	defer res.Body.Close()

	resBody, err := io.ReadAll(res.Body)
	if err != nil {
		return reject.Transport("reading identity store response", err)
	}

	if res.StatusCode >= 300 {
		var pgErr postgrestError
		_ = json.Unmarshal(resBody, &pgErr)
		cause := errors.New(strings.TrimSpace(pgErr.Message + " " + pgErr.Details))
		if pgErr.Message == "" {
			cause = errors.New(strings.TrimSpace(string(resBody)))
		}

		switch {
		case res.StatusCode == http.StatusConflict || pgErr.Code == uniqueViolation:
			return reject.Conflict("wallet mapping already exists", cause)
		case res.StatusCode >= 500 || res.StatusCode == http.StatusTooManyRequests || res.StatusCode == http.StatusRequestTimeout:
			log.Warn().Err(cause).Int("status", res.StatusCode).Msg("Identity store returned an error")
			return reject.Transport(fmt.Sprintf("identity store status %d", res.StatusCode), cause)
		default:
			return fmt.Errorf("identity store rejected request (%d): %w", res.StatusCode, cause)
		}
	}

	if out == nil {
		return nil
	}
	if err := json.Unmarshal(resBody, out); err != nil {
		return reject.Transport("malformed identity store response", err)
	}
	return nil
}

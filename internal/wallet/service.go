package wallet

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"strings"

	"github.com/google/uuid"
	"github.com/kollektive-hackathon/walletrelay-backend/internal/pkg/chain"
	"github.com/kollektive-hackathon/walletrelay-backend/internal/pkg/custody"
	"github.com/kollektive-hackathon/walletrelay-backend/internal/pkg/model"
	"github.com/kollektive-hackathon/walletrelay-backend/internal/pkg/pubsub"
	"github.com/kollektive-hackathon/walletrelay-backend/internal/pkg/reject"
	"github.com/kollektive-hackathon/walletrelay-backend/internal/pkg/store"
	"github.com/rs/zerolog/log"
)

const walletProvisionedEvent = "WALLET_PROVISIONED"

type walletProvider interface {
	CreateWallet(ctx context.Context, chainType string) (*custody.Wallet, error)
}

type balanceReader interface {
	BalanceAt(ctx context.Context, address string) (*big.Int, error)
}

type notifier interface {
	Publish(topic string, event any)
}

// Service provisions server wallets for embedded wallets and reads the
// resulting mappings. It holds no copy of any record between calls.
type Service struct {
	store     store.Store
	provider  walletProvider
	balances  balanceReader
	publisher pubsub.Publisher
	notifier  notifier
}

func NewService(s store.Store, provider walletProvider, balances balanceReader, publisher pubsub.Publisher, hub notifier) *Service {
	if publisher == nil {
		publisher = pubsub.NoopPublisher{}
	}
	return &Service{
		store:     s,
		provider:  provider,
		balances:  balances,
		publisher: publisher,
		notifier:  hub,
	}
}

func NotificationTopic(embeddedAddress string) string {
	return fmt.Sprintf("wallets/%s", chain.NormalizeAddress(embeddedAddress))
}

// CreateWalletMapping creates a custodial wallet at the provider and records it
// against embeddedAddress. A concurrent call for the same address makes one of
// the two fail with a conflict, and the provider wallet it created stays
// unused.
func (s *Service) CreateWalletMapping(ctx context.Context, embeddedAddress string, email string) (*model.UserWallet, error) {
	if !chain.IsAddress(embeddedAddress) {
		return nil, reject.InvalidRequest("Invalid embedded wallet address")
	}
	embedded := chain.NormalizeAddress(embeddedAddress)

	created, err := s.provider.CreateWallet(ctx, model.ChainTypeEthereum)
	if err != nil {
		if errors.Is(err, reject.ErrTransport) {
			return nil, err
		}
		return nil, reject.Provisioning("server wallet creation failed", err)
	}
	if !chain.IsAddress(created.Address) || created.Id == "" {
		return nil, reject.Provisioning(
			"server wallet creation failed",
			fmt.Errorf("provider returned wallet %q with address %q", created.Id, created.Address),
		)
	}

	chainType := created.ChainType
	if chainType == "" {
		chainType = model.ChainTypeEthereum
	}
	record := &model.UserWallet{
		Id:                    uuid.New().String(),
		Email:                 optionalEmail(email),
		EmbeddedWalletAddress: embedded,
		ServerWalletAddress:   chain.NormalizeAddress(created.Address),
		ServerWalletId:        created.Id,
		ChainType:             chainType,
	}

	inserted, err := s.store.Insert(ctx, record)
	if err != nil {
		log.Warn().
			Err(err).
			Str("embeddedWalletAddress", embedded).
			Str("serverWalletId", created.Id).
			Msg("Server wallet created but mapping was not stored")
		return nil, err
	}

	log.Info().
		Str("userWalletId", inserted.Id).
		Str("embeddedWalletAddress", inserted.EmbeddedWalletAddress).
		Str("serverWalletAddress", inserted.ServerWalletAddress).
		Msg("Server wallet provisioned")

	event := pubsub.NewWalletProvisioned(inserted.Id, inserted.EmbeddedWalletAddress, inserted.ServerWalletAddress)
	if err := s.publisher.Publish(ctx, event); err != nil {
		log.Warn().Err(err).Str("userWalletId", inserted.Id).Msg("Error publishing wallet provisioned event")
	}
	if s.notifier != nil {
		s.notifier.Publish(NotificationTopic(inserted.EmbeddedWalletAddress), map[string]any{
			"type":    walletProvisionedEvent,
			"payload": inserted,
		})
	}

	return inserted, nil
}

// GetServerWallet returns "" when embeddedAddress has no mapping.
func (s *Service) GetServerWallet(ctx context.Context, embeddedAddress string) (string, error) {
	if !chain.IsAddress(embeddedAddress) {
		return "", reject.InvalidRequest("Invalid wallet address")
	}
	record, err := s.store.FindByEmbedded(ctx, chain.NormalizeAddress(embeddedAddress))
	if err != nil || record == nil {
		return "", err
	}
	return record.ServerWalletAddress, nil
}

// GetEmbeddedWallet returns "" when serverAddress has no mapping.
func (s *Service) GetEmbeddedWallet(ctx context.Context, serverAddress string) (string, error) {
	if !chain.IsAddress(serverAddress) {
		return "", reject.InvalidRequest("Invalid wallet address")
	}
	record, err := s.store.FindByServer(ctx, chain.NormalizeAddress(serverAddress))
	if err != nil || record == nil {
		return "", err
	}
	return record.EmbeddedWalletAddress, nil
}

func (s *Service) GetUserByEitherAddress(ctx context.Context, address string) (*model.UserWallet, error) {
	if !chain.IsAddress(address) {
		return nil, reject.InvalidRequest("Invalid wallet address")
	}
	return s.store.FindByEither(ctx, chain.NormalizeAddress(address))
}

func (s *Service) GetUserByEmail(ctx context.Context, email string) (*model.UserWallet, error) {
	email = model.NormalizeEmail(email)
	if email == "" {
		return nil, nil
	}
	return s.store.FindByEmail(ctx, email)
}

type Balance struct {
	ServerWalletAddress string
	Wei                 *big.Int
}

// GetWalletBalance reads the on-chain balance of a mapped server wallet.
// Either address of the mapping may be passed.
func (s *Service) GetWalletBalance(ctx context.Context, address string) (*Balance, error) {
	record, err := s.GetUserByEitherAddress(ctx, address)
	if err != nil {
		return nil, err
	}
	if record == nil {
		return nil, reject.WalletNotProvisioned("No server wallet is mapped to this address")
	}
	if s.balances == nil {
		return nil, reject.Transport("balance reads are not configured", nil)
	}

	balance, err := s.balances.BalanceAt(ctx, record.ServerWalletAddress)
	if err != nil {
		return nil, reject.Transport("balance query failed", err)
	}
	return &Balance{ServerWalletAddress: record.ServerWalletAddress, Wei: balance}, nil
}

// UpdateProfile changes email or username of a mapping. Wallet addresses are
// never touched.
func (s *Service) UpdateProfile(ctx context.Context, address string, update model.ProfileUpdate) (*model.UserWallet, error) {
	if update.IsEmpty() {
		return nil, reject.InvalidRequest("Nothing to update")
	}
	if update.Username != nil {
		username := strings.TrimSpace(*update.Username)
		if username == "" || len(username) > 32 {
			return nil, reject.InvalidRequest("Username must be between 1 and 32 characters")
		}
		update.Username = &username
	}
	if update.Email != nil {
		email := model.NormalizeEmail(*update.Email)
		update.Email = &email
	}

	record, err := s.GetUserByEitherAddress(ctx, address)
	if err != nil {
		return nil, err
	}
	if record == nil {
		return nil, reject.WalletNotProvisioned("No server wallet is mapped to this address")
	}

	updated, err := s.store.UpdateProfile(ctx, record.Id, update)
	if err != nil {
		return nil, err
	}
	if updated == nil {
		return nil, reject.WalletNotProvisioned("No server wallet is mapped to this address")
	}
	return updated, nil
}

func optionalEmail(email string) *string {
	email = model.NormalizeEmail(email)
	if email == "" {
		return nil
	}
	return &email
}

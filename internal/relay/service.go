package relay

import (
	"context"
	"errors"
	"math/big"
	"time"

	"github.com/google/uuid"
	"github.com/kollektive-hackathon/walletrelay-backend/internal/auth"
	"github.com/kollektive-hackathon/walletrelay-backend/internal/pkg/chain"
	"github.com/kollektive-hackathon/walletrelay-backend/internal/pkg/custody"
	"github.com/kollektive-hackathon/walletrelay-backend/internal/pkg/model"
	"github.com/kollektive-hackathon/walletrelay-backend/internal/pkg/pubsub"
	"github.com/kollektive-hackathon/walletrelay-backend/internal/pkg/reject"
	"github.com/rs/zerolog/log"
)

type walletResolver interface {
	FindByEmbedded(ctx context.Context, address string) (*model.UserWallet, error)
	FindByEmail(ctx context.Context, email string) (*model.UserWallet, error)
}

type transactionSender interface {
	SendTransaction(ctx context.Context, walletId string, caip2 string, tx custody.Transaction) (*custody.SendTransactionResult, error)
}

// Intent is what the caller wants sent. Value is a 0x quantity or a base 10
// integer in wei. Data is optional 0x calldata.
type Intent struct {
	To    string
	Value string
	Data  string
	Gas   string
}

type TransactionHandle struct {
	Hash     string `json:"hash"`
	Caip2    string `json:"caip2"`
	WalletId string `json:"walletId"`
	From     string `json:"from"`
}

// Service submits transactions from a caller's server wallet through the
// custody provider. It never provisions wallets and never retries.
type Service struct {
	wallets   walletResolver
	sender    transactionSender
	publisher pubsub.Publisher
	chainId   int64
}

func NewService(wallets walletResolver, sender transactionSender, publisher pubsub.Publisher, chainId int64) *Service {
	if publisher == nil {
		publisher = pubsub.NoopPublisher{}
	}
	return &Service{
		wallets:   wallets,
		sender:    sender,
		publisher: publisher,
		chainId:   chainId,
	}
}

func (s *Service) ChainId() int64 {
	return s.chainId
}

func (s *Service) Relay(ctx context.Context, identity *auth.Identity, intent Intent) (*TransactionHandle, error) {
	if identity == nil || identity.Subject == "" {
		return nil, reject.Authentication("no verified identity", nil)
	}

	tx, err := s.buildTransaction(intent)
	if err != nil {
		return nil, err
	}

	record, err := s.resolve(ctx, identity)
	if err != nil {
		return nil, err
	}

	caip2 := chain.Caip2(s.chainId)
	result, err := s.sender.SendTransaction(ctx, record.ServerWalletId, caip2, tx)
	if err != nil {
		log.Warn().
			Err(err).
			Str("userWalletId", record.Id).
			Str("serverWalletId", record.ServerWalletId).
			Str("caip2", caip2).
			Msg("Transaction submission failed")
		return nil, classifySubmissionError(err)
	}

	if result.Caip2 != "" {
		if reported, err := chain.ParseCaip2(result.Caip2); err != nil || reported != s.chainId {
			log.Error().
				Err(err).
				Str("hash", result.Hash).
				Str("requested", caip2).
				Str("reported", result.Caip2).
				Msg("Provider reported the transaction on another chain")
		}
	}

	handle := &TransactionHandle{
		Hash:     result.Hash,
		Caip2:    caip2,
		WalletId: record.ServerWalletId,
		From:     record.ServerWalletAddress,
	}

	log.Info().
		Str("userWalletId", record.Id).
		Str("hash", handle.Hash).
		Str("caip2", caip2).
		Msg("Transaction submitted")

	event := pubsub.TransactionSubmitted{
		Id:                  uuid.New().String(),
		UserWalletId:        record.Id,
		ServerWalletAddress: record.ServerWalletAddress,
		To:                  tx.To,
		Value:               tx.Value,
		Hash:                handle.Hash,
		Caip2:               caip2,
		OccurredAt:          time.Now().UTC(),
	}
	if err := s.publisher.Publish(ctx, event); err != nil {
		log.Warn().Err(err).Str("hash", handle.Hash).Msg("Error publishing transaction submitted event")
	}

	return handle, nil
}

func (s *Service) buildTransaction(intent Intent) (custody.Transaction, error) {
	if !chain.IsAddress(intent.To) {
		return custody.Transaction{}, reject.InvalidRequest("Invalid recipient address")
	}

	value := big.NewInt(0)
	if intent.Value != "" {
		parsed, err := chain.ParseQuantity(intent.Value)
		if err != nil || parsed.Sign() < 0 {
			return custody.Transaction{}, reject.InvalidRequest("Invalid amount")
		}
		value = parsed
	}

	tx := custody.Transaction{
		To:      chain.NormalizeAddress(intent.To),
		Value:   chain.EncodeQuantity(value),
		Gas:     intent.Gas,
		ChainId: s.chainId,
	}
	if intent.Data != "" {
		data, err := chain.ParseData(intent.Data)
		if err != nil {
			return custody.Transaction{}, reject.InvalidRequest("Invalid calldata")
		}
		tx.Data = chain.EncodeData(data)
	}
	return tx, nil
}

// resolve finds the caller's mapping by embedded wallet, or by email when the
// identity carries no wallet.
func (s *Service) resolve(ctx context.Context, identity *auth.Identity) (*model.UserWallet, error) {
	var (
		record *model.UserWallet
		err    error
	)
	switch {
	case chain.IsAddress(identity.EmbeddedWallet):
		record, err = s.wallets.FindByEmbedded(ctx, chain.NormalizeAddress(identity.EmbeddedWallet))
	case model.NormalizeEmail(identity.Email) != "":
		record, err = s.wallets.FindByEmail(ctx, model.NormalizeEmail(identity.Email))
	}
	if err != nil {
		return nil, err
	}
	if record == nil {
		return nil, reject.WalletNotProvisioned("No server wallet is provisioned for this user")
	}
	return record, nil
}

func classifySubmissionError(err error) error {
	if errors.Is(err, reject.ErrTransport) {
		return err
	}
	var apiErr *custody.APIError
	if errors.As(err, &apiErr) {
		return reject.TransactionFailed(apiErr.Message, err)
	}
	return reject.TransactionFailed(err.Error(), err)
}

package pubsub

import (
	"time"

	"github.com/google/uuid"
)

const (
	walletProvisionedTopic    = "walletrelay.wallets.provisioned"
	transactionSubmittedTopic = "walletrelay.transactions.submitted"
)

type WalletProvisioned struct {
	Id                    string    `json:"id"`
	UserWalletId          string    `json:"userWalletId"`
	EmbeddedWalletAddress string    `json:"embeddedWalletAddress"`
	ServerWalletAddress   string    `json:"serverWalletAddress"`
	OccurredAt            time.Time `json:"occurredAt"`
}

func (WalletProvisioned) GetEventTopicName() string {
	return walletProvisionedTopic
}

func NewWalletProvisioned(userWalletId string, embedded string, server string) WalletProvisioned {
	return WalletProvisioned{
		Id:                    uuid.New().String(),
		UserWalletId:          userWalletId,
		EmbeddedWalletAddress: embedded,
		ServerWalletAddress:   server,
		OccurredAt:            time.Now().UTC(),
	}
}

type TransactionSubmitted struct {
	Id                  string    `json:"id"`
	UserWalletId        string    `json:"userWalletId"`
	ServerWalletAddress string    `json:"serverWalletAddress"`
	To                  string    `json:"to"`
	Value               string    `json:"value"`
	Hash                string    `json:"hash"`
	Caip2               string    `json:"caip2"`
	OccurredAt          time.Time `json:"occurredAt"`
}

func (TransactionSubmitted) GetEventTopicName() string {
	return transactionSubmittedTopic
}

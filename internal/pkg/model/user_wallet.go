package model

import (
	"strings"
	"time"
)

const ChainTypeEthereum = "ethereum"

// UserWallet pairs an embedded wallet with the custodial server wallet
// provisioned for it. Both addresses and the provider wallet id never change
// after the row is created.
type UserWallet struct {
	Id                    string    `gorm:"primaryKey;type:uuid" json:"id"`
	Email                 *string   `gorm:"type:varchar(320);uniqueIndex" json:"email,omitempty"`
	Username              *string   `gorm:"type:varchar(64)" json:"username,omitempty"`
	EmbeddedWalletAddress string    `gorm:"type:varchar(42);not null;uniqueIndex" json:"embeddedWalletAddress"`
	ServerWalletAddress   string    `gorm:"type:varchar(42);not null;uniqueIndex" json:"serverWalletAddress"`
	ServerWalletId        string    `gorm:"type:varchar(64);not null;uniqueIndex" json:"serverWalletId"`
	ChainType             string    `gorm:"type:varchar(16);not null" json:"chainType"`
	CreatedAt             time.Time `gorm:"not null;autoCreateTime" json:"createdAt"`
	UpdatedAt             time.Time `gorm:"not null;autoUpdateTime" json:"updatedAt"`
}

func (UserWallet) TableName() string {
	return "user_wallets"
}

// ProfileUpdate carries the mutable profile fields. Nil fields are left as is.
type ProfileUpdate struct {
	Email    *string `json:"email,omitempty"`
	Username *string `json:"username,omitempty"`
}

func (u ProfileUpdate) IsEmpty() bool {
	return u.Email == nil && u.Username == nil
}

// NormalizeEmail returns the form emails are stored and compared in.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

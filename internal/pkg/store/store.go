package store

import (
	"context"

	"github.com/kollektive-hackathon/walletrelay-backend/internal/pkg/model"
)

// Store persists user wallet mappings. Lookups return (nil, nil) when no row
// matches. Insert fails with a reject.ErrConflict error when the embedded
// address, server address, server wallet id or email is already taken, and
// with reject.ErrTransport when the backend cannot be reached.
type Store interface {
	FindByEmbedded(ctx context.Context, address string) (*model.UserWallet, error)
	FindByServer(ctx context.Context, address string) (*model.UserWallet, error)
	FindByEither(ctx context.Context, address string) (*model.UserWallet, error)
	FindByEmail(ctx context.Context, email string) (*model.UserWallet, error)
	Insert(ctx context.Context, wallet *model.UserWallet) (*model.UserWallet, error)
	UpdateProfile(ctx context.Context, id string, update model.ProfileUpdate) (*model.UserWallet, error)
}

const (
	columnId       = "id"
	columnEmail    = "email"
	columnUsername = "username"
	columnEmbedded = "embedded_wallet_address"
	columnServer   = "server_wallet_address"
)

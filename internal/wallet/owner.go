package wallet

import (
	"context"

	"github.com/kollektive-hackathon/walletrelay-backend/internal/auth"
	"github.com/kollektive-hackathon/walletrelay-backend/internal/pkg/chain"
	"github.com/kollektive-hackathon/walletrelay-backend/internal/pkg/model"
	"github.com/kollektive-hackathon/walletrelay-backend/internal/pkg/reject"
)

// CallerWallet returns the mapping that belongs to identity: the one for its
// verified embedded wallet, or the one linked to its verified email when the
// identity carries no wallet. It returns nil when the caller has none.
func (s *Service) CallerWallet(ctx context.Context, identity *auth.Identity) (*model.UserWallet, error) {
	if identity == nil || identity.Subject == "" {
		return nil, reject.Authentication("no verified identity", nil)
	}
	if chain.IsAddress(identity.EmbeddedWallet) {
		return s.store.FindByEmbedded(ctx, chain.NormalizeAddress(identity.EmbeddedWallet))
	}
	return s.GetUserByEmail(ctx, identity.Email)
}

// Authorize succeeds when address is the caller's own embedded wallet or an
// address of the mapping the caller owns.
func (s *Service) Authorize(ctx context.Context, identity *auth.Identity, address string) error {
	if identity == nil || identity.Subject == "" {
		return reject.Authentication("no verified identity", nil)
	}
	if !chain.IsAddress(address) {
		return reject.InvalidRequest("Invalid wallet address")
	}
	target := chain.NormalizeAddress(address)
	if chain.IsAddress(identity.EmbeddedWallet) && chain.NormalizeAddress(identity.EmbeddedWallet) == target {
		return nil
	}

	own, err := s.CallerWallet(ctx, identity)
	if err != nil {
		return err
	}
	if own != nil && (own.EmbeddedWalletAddress == target || own.ServerWalletAddress == target) {
		return nil
	}
	return reject.Forbidden("Wallet belongs to another user")
}

// ProvisionForCaller creates the mapping for the caller's verified embedded
// wallet and links the verified email. A requested address or email that
// differs from the identity is refused.
func (s *Service) ProvisionForCaller(ctx context.Context, identity *auth.Identity, embeddedAddress string, email string) (*model.UserWallet, error) {
	if identity == nil || identity.Subject == "" {
		return nil, reject.Authentication("no verified identity", nil)
	}
	if embeddedAddress != "" && !chain.IsAddress(embeddedAddress) {
		return nil, reject.InvalidRequest("Invalid embedded wallet address")
	}
	if !chain.IsAddress(identity.EmbeddedWallet) {
		return nil, reject.Forbidden("Provisioning requires a verified embedded wallet")
	}
	if embeddedAddress != "" && chain.NormalizeAddress(embeddedAddress) != chain.NormalizeAddress(identity.EmbeddedWallet) {
		return nil, reject.Forbidden("Cannot provision a wallet for another user")
	}
	if err := checkVerifiedEmail(identity, email); err != nil {
		return nil, err
	}

	return s.CreateWalletMapping(ctx, identity.EmbeddedWallet, identity.Email)
}

// UpdateCallerProfile updates the caller's own mapping. Only the caller's
// verified email can be linked; an empty email unlinks it.
func (s *Service) UpdateCallerProfile(ctx context.Context, identity *auth.Identity, address string, update model.ProfileUpdate) (*model.UserWallet, error) {
	if err := s.Authorize(ctx, identity, address); err != nil {
		return nil, err
	}
	if update.Email != nil {
		if err := checkVerifiedEmail(identity, *update.Email); err != nil {
			return nil, err
		}
	}
	return s.UpdateProfile(ctx, address, update)
}

func checkVerifiedEmail(identity *auth.Identity, email string) error {
	email = model.NormalizeEmail(email)
	if email != "" && email != model.NormalizeEmail(identity.Email) {
		return reject.Forbidden("Email does not match the verified account")
	}
	return nil
}

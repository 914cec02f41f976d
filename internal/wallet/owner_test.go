package wallet

import (
	"context"
	"strings"
	"testing"

	"github.com/kollektive-hackathon/walletrelay-backend/internal/auth"
	"github.com/kollektive-hackathon/walletrelay-backend/internal/pkg/model"
	"github.com/kollektive-hackathon/walletrelay-backend/internal/pkg/reject"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCallerWallet(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	record, err := f.service.CreateWalletMapping(ctx, embeddedAddress, "a@x.com")
	require.NoError(t, err)

	byWallet, err := f.service.CallerWallet(ctx, &auth.Identity{Subject: "s", EmbeddedWallet: strings.ToLower(embeddedAddress)})
	require.NoError(t, err)
	assert.Equal(t, record.Id, byWallet.Id)

	byEmail, err := f.service.CallerWallet(ctx, &auth.Identity{Subject: "s", Email: " A@X.com"})
	require.NoError(t, err)
	assert.Equal(t, record.Id, byEmail.Id)

	// a verified wallet wins over a matching email
	other, err := f.service.CallerWallet(ctx, &auth.Identity{Subject: "s", Email: "a@x.com", EmbeddedWallet: otherAddress})
	require.NoError(t, err)
	assert.Nil(t, other)

	_, err = f.service.CallerWallet(ctx, nil)
	assert.ErrorIs(t, err, reject.ErrAuthentication)
}

func TestAuthorize(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	record, err := f.service.CreateWalletMapping(ctx, embeddedAddress, "a@x.com")
	require.NoError(t, err)
	owner := &auth.Identity{Subject: "s", EmbeddedWallet: embeddedAddress}

	assert.NoError(t, f.service.Authorize(ctx, owner, strings.ToLower(record.EmbeddedWalletAddress)))
	assert.NoError(t, f.service.Authorize(ctx, owner, record.ServerWalletAddress))
	assert.NoError(t, f.service.Authorize(ctx, &auth.Identity{Subject: "s", EmbeddedWallet: otherAddress}, otherAddress))

	stranger := &auth.Identity{Subject: "x", Email: "b@x.com", EmbeddedWallet: otherAddress}
	assert.ErrorIs(t, f.service.Authorize(ctx, stranger, record.EmbeddedWalletAddress), reject.ErrForbidden)
	assert.ErrorIs(t, f.service.Authorize(ctx, stranger, record.ServerWalletAddress), reject.ErrForbidden)
	assert.ErrorIs(t, f.service.Authorize(ctx, owner, "0x12"), reject.ErrInvalidRequest)
	assert.ErrorIs(t, f.service.Authorize(ctx, nil, record.EmbeddedWalletAddress), reject.ErrAuthentication)
}

func TestProvisionForCaller(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	identity := &auth.Identity{Subject: "s", Email: "Alice@X.com", EmbeddedWallet: embeddedAddress}

	_, err := f.service.ProvisionForCaller(ctx, identity, otherAddress, "")
	assert.ErrorIs(t, err, reject.ErrForbidden)
	_, err = f.service.ProvisionForCaller(ctx, identity, "", "mallory@x.com")
	assert.ErrorIs(t, err, reject.ErrForbidden)
	_, err = f.service.ProvisionForCaller(ctx, &auth.Identity{Subject: "s", Email: "alice@x.com"}, embeddedAddress, "")
	assert.ErrorIs(t, err, reject.ErrForbidden)
	assert.Zero(t, f.provider.callCount())

	record, err := f.service.ProvisionForCaller(ctx, identity, strings.ToLower(embeddedAddress), "alice@x.com")
	require.NoError(t, err)
	assert.Equal(t, "alice@x.com", *record.Email)
}

func TestUpdateCallerProfile(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	record, err := f.service.CreateWalletMapping(ctx, embeddedAddress, "victim@x.com")
	require.NoError(t, err)
	attackerEmail := "attacker@x.com"
	attacker := &auth.Identity{Subject: "attacker", Email: attackerEmail}

	_, err = f.service.UpdateCallerProfile(ctx, attacker, record.EmbeddedWalletAddress, model.ProfileUpdate{Email: &attackerEmail})
	assert.ErrorIs(t, err, reject.ErrForbidden)

	linked, err := f.service.CallerWallet(ctx, attacker)
	require.NoError(t, err)
	assert.Nil(t, linked)

	cleared := ""
	owner := &auth.Identity{Subject: "victim", Email: "victim@x.com", EmbeddedWallet: embeddedAddress}
	updated, err := f.service.UpdateCallerProfile(ctx, owner, record.ServerWalletAddress, model.ProfileUpdate{Email: &cleared})
	require.NoError(t, err)
	assert.Nil(t, updated.Email)
}

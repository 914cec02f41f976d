package auth

import (
	"context"
	"crypto/ecdsa"
	"fmt"

	"github.com/golang-jwt/jwt/v5"
	"github.com/kollektive-hackathon/walletrelay-backend/internal/pkg/custody"
)

const privyIssuer = "privy.io"

type userFetcher interface {
	GetUser(ctx context.Context, userId string) (*custody.User, error)
}

// PrivyVerifier checks ES256 access tokens issued by Privy for this app and
// looks up the caller's linked embedded wallet and email.
type PrivyVerifier struct {
	appId string
	key   *ecdsa.PublicKey
	users userFetcher
}

func NewPrivyVerifier(appId string, verificationKeyPem string, users userFetcher) (*PrivyVerifier, error) {
	key, err := jwt.ParseECPublicKeyFromPEM([]byte(verificationKeyPem))
	if err != nil {
		return nil, fmt.Errorf("parse verification key: %w", err)
	}
	return &PrivyVerifier{appId: appId, key: key, users: users}, nil
}

func (v *PrivyVerifier) Verify(ctx context.Context, token string) (*Identity, error) {
	var claims jwt.RegisteredClaims
	_, err := jwt.ParseWithClaims(
		token,
		&claims,
		func(*jwt.Token) (any, error) { return v.key, nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodES256.Alg()}),
		jwt.WithIssuer(privyIssuer),
		jwt.WithAudience(v.appId),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		return nil, err
	}

	identity := &Identity{Subject: claims.Subject}
	if v.users == nil || claims.Subject == "" {
		return identity, nil
	}

	user, err := v.users.GetUser(ctx, claims.Subject)
	if err != nil {
		return nil, err
	}
	identity.EmbeddedWallet = user.EmbeddedWallet()
	identity.Email = user.Email()

	return identity, nil
}

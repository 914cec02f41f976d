package auth

import (
	"context"
	"errors"
	"strings"

	"github.com/kollektive-hackathon/walletrelay-backend/internal/pkg/reject"
	"github.com/rs/zerolog/log"
)

// Identity is the verified caller. Subject is always set; EmbeddedWallet and
// Email are filled when the identity provider knows them.
type Identity struct {
	Subject        string `json:"subject"`
	Email          string `json:"email,omitempty"`
	EmbeddedWallet string `json:"embeddedWallet,omitempty"`
}

type Verifier interface {
	Verify(ctx context.Context, token string) (*Identity, error)
}

type Gate struct {
	verifier Verifier
}

func NewGate(verifier Verifier) *Gate {
	return &Gate{verifier: verifier}
}

// Verify checks an Authorization header value. Every failure to establish an
// identity is an authentication error, except transport failures while
// enriching an already valid token.
func (g *Gate) Verify(ctx context.Context, authorizationHeader string) (*Identity, error) {
	token, ok := BearerToken(authorizationHeader)
	if !ok {
		log.Warn().Msg("Token missing: 401")
		return nil, reject.Authentication("missing access token", nil)
	}

	identity, err := g.verifier.Verify(ctx, token)
	if err != nil {
		if errors.Is(err, reject.ErrTransport) {
			return nil, err
		}
		log.Warn().Err(err).Msg("Error verifying token")
		return nil, reject.Authentication("cannot verify access token", err)
	}
	if identity == nil || identity.Subject == "" {
		return nil, reject.Authentication("token carries no subject", nil)
	}

	return identity, nil
}

// BearerToken extracts the token from "Bearer <token>".
func BearerToken(header string) (string, bool) {
	fields := strings.Fields(header)
	if len(fields) != 2 || !strings.EqualFold(fields[0], "Bearer") {
		return "", false
	}
	return fields[1], true
}

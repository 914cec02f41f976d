package utils

import (
	"github.com/gin-gonic/gin"
	"github.com/kollektive-hackathon/walletrelay-backend/internal/auth"
)

const identityCtxKey string = "identity"

// GetIdentity returns the caller verified by the auth middleware, or nil on
// routes it does not guard.
func GetIdentity(ctx *gin.Context) *auth.Identity {
	value, exists := ctx.Get(identityCtxKey)
	if !exists {
		return nil
	}
	identity, _ := value.(*auth.Identity)
	return identity
}

func SetIdentityCtx(identity *auth.Identity, ctx *gin.Context) {
	ctx.Set(identityCtxKey, identity)
}

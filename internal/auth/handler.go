package auth

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/kollektive-hackathon/walletrelay-backend/internal/pkg/model"
)

const (
	DefaultSignInEndpoint  = "https://identitytoolkit.googleapis.com/v1/accounts:signInWithIdp"
	DefaultRefreshEndpoint = "https://securetoken.googleapis.com/v1/token"
)

// IdentityPlatformConfig points the token exchange routes at Google Identity
// Platform. They are only mounted when callers authenticate with Firebase.
type IdentityPlatformConfig struct {
	ApiKey          string
	SignInEndpoint  string
	RefreshEndpoint string
	Timeout         time.Duration
}

type walletFinder interface {
	GetUserByEmail(ctx context.Context, email string) (*model.UserWallet, error)
}

type authHandler struct {
	config     IdentityPlatformConfig
	wallets    walletFinder
	httpClient *http.Client
}

func RegisterRoutes(rg *gin.RouterGroup, config IdentityPlatformConfig, wallets walletFinder) {
	if config.SignInEndpoint == "" {
		config.SignInEndpoint = DefaultSignInEndpoint
	}
	if config.RefreshEndpoint == "" {
		config.RefreshEndpoint = DefaultRefreshEndpoint
	}
	timeout := config.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	handler := &authHandler{
		config:     config,
		wallets:    wallets,
		httpClient: &http.Client{Timeout: timeout},
	}

	routes := rg.Group("/auth")
	routes.POST("/google", handler.getIdentityPlatformTokenFromGoogleIdToken)
	routes.POST("/apple", handler.getIdentityPlatformTokenFromAppleIdToken)
	routes.POST("/refresh", handler.refreshToken)
}

package session

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/kollektive-hackathon/walletrelay-backend/internal/auth"
	"github.com/kollektive-hackathon/walletrelay-backend/internal/pkg/chain"
	"github.com/kollektive-hackathon/walletrelay-backend/internal/pkg/reject"
	"github.com/kollektive-hackathon/walletrelay-backend/internal/pkg/utils"
)

type sessionHandler struct {
	sessions *Adapter
}

func RegisterRoutes(rg *gin.RouterGroup, sessions *Adapter, verifyAuthToken gin.HandlerFunc) {
	handler := sessionHandler{sessions: sessions}

	routes := rg.Group("/wallets/setup", verifyAuthToken)
	routes.POST("", handler.setup)
	routes.GET("", handler.status)
}

type SetupRequest struct {
	EmbeddedWalletAddress string `json:"embeddedWalletAddress"`
}

func (h sessionHandler) setup(c *gin.Context) {
	body := SetupRequest{}
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&body); err != nil {
			c.JSON(http.StatusBadRequest, reject.BodyParseProblem())
			return
		}
	}

	identity, err := callerIdentity(c, body.EmbeddedWalletAddress)
	if err != nil {
		problem := reject.FromError(err)
		c.JSON(problem.Status, problem)
		return
	}

	state := h.sessions.Setup(c.Request.Context(), identity)
	c.JSON(statusOf(state), state)
}

func (h sessionHandler) status(c *gin.Context) {
	identity, err := callerIdentity(c, c.Query("embeddedWalletAddress"))
	if err != nil {
		problem := reject.FromError(err)
		c.JSON(problem.Status, problem)
		return
	}

	state := h.sessions.Status(c.Request.Context(), identity)
	c.JSON(statusOf(state), state)
}

// callerIdentity returns the verified identity. A wallet named in the request
// must be the identity's own embedded wallet; it never stands in for one.
func callerIdentity(c *gin.Context, requested string) (*auth.Identity, error) {
	identity := utils.GetIdentity(c)
	if requested == "" {
		return identity, nil
	}
	if !chain.IsAddress(requested) {
		return nil, reject.InvalidRequest("Invalid embedded wallet address")
	}
	if identity == nil || !chain.IsAddress(identity.EmbeddedWallet) ||
		chain.NormalizeAddress(identity.EmbeddedWallet) != chain.NormalizeAddress(requested) {
		return nil, reject.Forbidden("Wallet belongs to another user")
	}
	return identity, nil
}

func statusOf(state State) int {
	if state.Error == nil {
		return http.StatusOK
	}
	if state.Error.Code == ErrorNoWallet {
		return http.StatusUnprocessableEntity
	}
	return http.StatusInternalServerError
}

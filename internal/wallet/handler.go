package wallet

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/kollektive-hackathon/walletrelay-backend/internal/pkg/model"
	"github.com/kollektive-hackathon/walletrelay-backend/internal/pkg/reject"
	"github.com/kollektive-hackathon/walletrelay-backend/internal/pkg/utils"
	"github.com/rs/zerolog/log"
)

type walletHandler struct {
	wallets *Service
}

func RegisterRoutes(rg *gin.RouterGroup, wallets *Service, verifyAuthToken gin.HandlerFunc) {
	handler := walletHandler{wallets: wallets}

	routes := rg.Group("/wallets", verifyAuthToken)
	routes.POST("", handler.createWalletMapping)

	owned := routes.Group("/:address", handler.requireOwner)
	owned.GET("", handler.getUserByEitherAddress)
	owned.GET("/server", handler.getServerWallet)
	owned.GET("/embedded", handler.getEmbeddedWallet)
	owned.GET("/balance", handler.getWalletBalance)
	owned.PATCH("/profile", handler.updateProfile)
}

// requireOwner stops requests for addresses that are not the caller's.
func (h walletHandler) requireOwner(c *gin.Context) {
	err := h.wallets.Authorize(c.Request.Context(), utils.GetIdentity(c), c.Param("address"))
	if err != nil {
		problem := reject.FromError(err)
		c.AbortWithStatusJSON(problem.Status, problem)
		return
	}
	c.Next()
}

type CreateWalletMappingRequest struct {
	EmbeddedWalletAddress string `json:"embeddedWalletAddress"`
	Email                 string `json:"email"`
}

type BalanceResponse struct {
	Address string `json:"address"`
	Balance string `json:"balance"`
}

func (h walletHandler) createWalletMapping(c *gin.Context) {
	body := CreateWalletMappingRequest{}
	if err := c.ShouldBindJSON(&body); err != nil {
		log.Info().Err(err).Msg("Error parsing wallet mapping request body")
		c.JSON(http.StatusBadRequest, reject.BodyParseProblem())
		return
	}

	created, err := h.wallets.ProvisionForCaller(c.Request.Context(), utils.GetIdentity(c), body.EmbeddedWalletAddress, body.Email)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, created)
}

func (h walletHandler) getUserByEitherAddress(c *gin.Context) {
	record, err := h.wallets.GetUserByEitherAddress(c.Request.Context(), c.Param("address"))
	if err != nil {
		respondError(c, err)
		return
	}
	if record == nil {
		c.JSON(http.StatusNotFound, reject.NotFoundProblem())
		return
	}

	c.JSON(http.StatusOK, record)
}

func (h walletHandler) getServerWallet(c *gin.Context) {
	address, err := h.wallets.GetServerWallet(c.Request.Context(), c.Param("address"))
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"serverWalletAddress": nullable(address)})
}

func (h walletHandler) getEmbeddedWallet(c *gin.Context) {
	address, err := h.wallets.GetEmbeddedWallet(c.Request.Context(), c.Param("address"))
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"embeddedWalletAddress": nullable(address)})
}

func (h walletHandler) getWalletBalance(c *gin.Context) {
	balance, err := h.wallets.GetWalletBalance(c.Request.Context(), c.Param("address"))
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, BalanceResponse{
		Address: balance.ServerWalletAddress,
		Balance: balance.Wei.String(),
	})
}

func (h walletHandler) updateProfile(c *gin.Context) {
	body := model.ProfileUpdate{}
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, reject.BodyParseProblem())
		return
	}

	updated, err := h.wallets.UpdateCallerProfile(c.Request.Context(), utils.GetIdentity(c), c.Param("address"), body)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, updated)
}

func respondError(c *gin.Context, err error) {
	problem := reject.FromError(err)
	c.JSON(problem.Status, problem)
}

func nullable(address string) *string {
	if address == "" {
		return nil
	}
	return &address
}

package ws

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/kollektive-hackathon/walletrelay-backend/internal/auth"
	"github.com/kollektive-hackathon/walletrelay-backend/internal/pkg/chain"
	"github.com/kollektive-hackathon/walletrelay-backend/internal/pkg/reject"
	"github.com/kollektive-hackathon/walletrelay-backend/internal/pkg/utils"
	"github.com/kollektive-hackathon/walletrelay-backend/internal/pkg/ws"
	"github.com/kollektive-hackathon/walletrelay-backend/internal/wallet"
	"github.com/rs/zerolog/log"
)

const accessTokenQueryKey = "access_token"

type walletAuthorizer interface {
	Authorize(ctx context.Context, identity *auth.Identity, address string) error
}

type wsHandler struct {
	notificationHub *ws.WebSocketNotificationHub
	wallets         walletAuthorizer
	upgrader        websocket.Upgrader
}

func RegisterRoutes(rg *gin.RouterGroup, hub *ws.WebSocketNotificationHub, wallets walletAuthorizer, verifyAuthToken gin.HandlerFunc) {
	handler := &wsHandler{
		notificationHub: hub,
		wallets:         wallets,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
	}

	routes := rg.Group("/ws")
	routes.GET("/wallets/:address", accessTokenFromQuery, verifyAuthToken, handler.serveWs)
}

// accessTokenFromQuery lets browsers, which cannot set headers on a
// websocket handshake, pass the token as a query parameter.
func accessTokenFromQuery(c *gin.Context) {
	if c.GetHeader("Authorization") != "" {
		return
	}
	if token := c.Query(accessTokenQueryKey); token != "" {
		c.Request.Header.Set("Authorization", "Bearer "+token)
	}
}

func (wsh *wsHandler) serveWs(c *gin.Context) {
	address := c.Param("address")
	if !chain.IsAddress(address) {
		c.JSON(http.StatusBadRequest, reject.RequestParamsProblem())
		return
	}
	if err := wsh.wallets.Authorize(c.Request.Context(), utils.GetIdentity(c), address); err != nil {
		problem := reject.FromError(err)
		c.JSON(problem.Status, problem)
		return
	}

	conn, err := wsh.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Warn().Err(err).Msg("Error upgrading ws connection")
		return
	}
	defer conn.Close()

	topic := wallet.NotificationTopic(address)
	wsh.notificationHub.RegisterListener(topic, conn)
	defer wsh.notificationHub.UnregisterListener(topic, conn)

	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Warn().Err(err).Msg("Error reading ws message")
			}
			return
		}
	}
}

package relay

import (
	"bytes"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/kollektive-hackathon/walletrelay-backend/internal/pkg/chain"
	"github.com/kollektive-hackathon/walletrelay-backend/internal/pkg/reject"
	"github.com/kollektive-hackathon/walletrelay-backend/internal/pkg/utils"
	"github.com/rs/zerolog/log"
)

const (
	actionTransfer = "transfer"
	actionApprove  = "approve"

	nativeTransferGas = "0x5208"
)

type relayHandler struct {
	relay *Service
}

func RegisterRoutes(rg *gin.RouterGroup, relay *Service, verifyAuthToken gin.HandlerFunc) {
	handler := relayHandler{relay: relay}

	rg.POST("/wallet-actions", verifyAuthToken, handler.walletAction)
}

// Amount accepts a JSON string or number.
type Amount string

func (a *Amount) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*a = Amount(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return err
	}
	*a = Amount(n.String())
	return nil
}

type WalletActionRequest struct {
	Action       string `json:"action"`
	Amount       Amount `json:"amount"`
	Recipient    string `json:"recipient"`
	TokenAddress string `json:"tokenAddress"`
}

type WalletActionResponse struct {
	Success         bool   `json:"success"`
	TransactionHash string `json:"transactionHash"`
}

func (h relayHandler) walletAction(c *gin.Context) {
	body := WalletActionRequest{}
	if err := c.ShouldBindJSON(&body); err != nil {
		log.Info().Err(err).Msg("Error parsing wallet action request body")
		c.JSON(http.StatusBadRequest, reject.BodyParseProblem())
		return
	}

	intent, err := toIntent(body)
	if err != nil {
		problem := reject.FromError(err)
		c.JSON(problem.Status, problem)
		return
	}
	if intent == nil {
		c.JSON(http.StatusBadRequest, reject.UnsupportedActionProblem(body.Action))
		return
	}

	handle, err := h.relay.Relay(c.Request.Context(), utils.GetIdentity(c), *intent)
	if err != nil {
		problem := reject.FromError(err)
		c.JSON(problem.Status, problem)
		return
	}

	c.JSON(http.StatusOK, WalletActionResponse{
		Success:         true,
		TransactionHash: handle.Hash,
	})
}

// toIntent maps a wallet action onto a transaction. It returns nil for
// actions the relay does not support.
func toIntent(body WalletActionRequest) (*Intent, error) {
	amount := strings.TrimSpace(string(body.Amount))
	if amount == "" {
		return nil, reject.InvalidRequest("Amount is required")
	}
	if !chain.IsAddress(body.Recipient) {
		return nil, reject.InvalidRequest("Invalid recipient address")
	}
	tokenAddress := strings.TrimSpace(body.TokenAddress)

	switch strings.ToLower(strings.TrimSpace(body.Action)) {
	case actionTransfer:
		if tokenAddress == "" {
			return &Intent{To: body.Recipient, Value: amount, Gas: nativeTransferGas}, nil
		}
		return tokenCall(tokenAddress, amount, func(value string) ([]byte, error) {
			v, err := chain.ParseQuantity(value)
			if err != nil {
				return nil, err
			}
			return chain.TransferCalldata(body.Recipient, v)
		})
	case actionApprove:
		if tokenAddress == "" {
			return nil, reject.InvalidRequest("Token address is required for approve")
		}
		return tokenCall(tokenAddress, amount, func(value string) ([]byte, error) {
			v, err := chain.ParseQuantity(value)
			if err != nil {
				return nil, err
			}
			return chain.ApproveCalldata(body.Recipient, v)
		})
	default:
		return nil, nil
	}
}

func tokenCall(tokenAddress string, amount string, calldata func(string) ([]byte, error)) (*Intent, error) {
	if !chain.IsAddress(tokenAddress) {
		return nil, reject.InvalidRequest("Invalid token address")
	}
	data, err := calldata(amount)
	if err != nil {
		return nil, reject.InvalidRequest("Invalid amount")
	}
	return &Intent{To: tokenAddress, Value: "0x0", Data: chain.EncodeData(data)}, nil
}

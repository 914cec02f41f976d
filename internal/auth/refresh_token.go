package auth

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/kollektive-hackathon/walletrelay-backend/internal/pkg/reject"
	"github.com/rs/zerolog/log"
)

const (
	errorTokenEmpty        string = "error.google-identity-platform-token-provider.token.empty"
	errorTokenRequestError string = "error.google-identity-platform-token-provider.token.google-request-error"
)

type RefreshTokenRequest struct {
	RefreshToken string `json:"refreshToken"`
}

type RefreshTokenResponse struct {
	IDToken      string `json:"idToken"`
	RefreshToken string `json:"refreshToken"`
	TokenType    string `json:"tokenType"`
	ExpiresIn    string `json:"expiresIn"`
}

type IdentityPlatformRefreshTokenRequest struct {
	RefreshToken string `json:"refreshToken"`
	GrantType    string `json:"grant_type"`
}

type IdentityPlatformRefreshTokenResponse struct {
	IDToken      string `json:"id_token"`
	RefreshToken string `json:"refresh_token"`
	TokenType    string `json:"token_type"`
	ExpiresIn    string `json:"expires_in"`
}

func (ah authHandler) refreshToken(c *gin.Context) {
	inboundReqBody := RefreshTokenRequest{}
	if err := c.ShouldBindJSON(&inboundReqBody); err != nil {
		log.Info().
			Err(err).
			Msg("Error parsing refresh token request body")

		c.JSON(http.StatusBadRequest, reject.BodyParseProblem())
		return
	}

	if strings.TrimSpace(inboundReqBody.RefreshToken) == "" {
		log.Info().
			Msg("Empty refresh token in provider token request")

		c.JSON(http.StatusBadRequest, reject.NewProblem().
			WithTitle("Empty refresh token in provider token request").
			WithStatus(http.StatusBadRequest).
			WithCode(errorTokenEmpty).
			Build())
		return
	}

	outboundReqBody := IdentityPlatformRefreshTokenRequest{
		RefreshToken: inboundReqBody.RefreshToken,
		GrantType:    "refresh_token",
	}

	res, err := ah.post(c, ah.config.RefreshEndpoint, outboundReqBody)
	if err != nil {
		log.Error().
			Err(err).
			Msg("Error calling Google Identity Platform token refresh endpoint")

		c.JSON(http.StatusInternalServerError, reject.NewProblem().
			WithTitle("Failed to exchange refresh token for a new token pair").
			WithStatus(http.StatusInternalServerError).
			WithCode(errorTokenRequestError).
			Build())
		return
	}
	defer res.Body.Close()

	if res.StatusCode != http.StatusOK {
		ah.forwardError(c, res, "Failed to exchange refresh token for a new token pair")
		return
	}

	log.Debug().
		Msg("Successfully exchanged refresh token for a new Google Identity Platform token pair")

	var resBody IdentityPlatformRefreshTokenResponse
	if err := json.NewDecoder(res.Body).Decode(&resBody); err != nil {
		c.JSON(http.StatusInternalServerError, reject.UnexpectedProblem(err))
		return
	}
	c.JSON(http.StatusOK, adaptIdentityPlatformRefreshTokenResponse(resBody))
}

func adaptIdentityPlatformRefreshTokenResponse(response IdentityPlatformRefreshTokenResponse) RefreshTokenResponse {
	return RefreshTokenResponse{
		IDToken:      response.IDToken,
		RefreshToken: response.RefreshToken,
		TokenType:    response.TokenType,
		ExpiresIn:    response.ExpiresIn,
	}
}

package auth

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/kollektive-hackathon/walletrelay-backend/internal/pkg/model"
	"github.com/kollektive-hackathon/walletrelay-backend/internal/pkg/reject"
	"github.com/rs/zerolog/log"
)

type IDTokenRequest struct {
	IDToken     string `json:"idToken"`
	AccessToken string `json:"accessToken"`
}

type IdentityPlatformTokenRequest struct {
	PostBody            string `json:"postBody"`
	RequestURI          string `json:"requestUri"`
	ReturnIDPCredential bool   `json:"returnIdpCredential"`
	ReturnSecureToken   bool   `json:"returnSecureToken"`
}

type IdentityPlatformTokenResponse struct {
	Email         string            `json:"email"`
	EmailVerified bool              `json:"emailVerified"`
	LocalID       string            `json:"localId"`
	IDToken       string            `json:"idToken"`
	RefreshToken  string            `json:"refreshToken"`
	ExpiresIn     string            `json:"expiresIn"`
	Wallet        *model.UserWallet `json:"wallet,omitempty"`
}

func (ah authHandler) getIdentityPlatformTokenFromGoogleIdToken(c *gin.Context) {
	ah.getIdentityPlatformTokenFromProviderIDToken(c, "google.com")
}

func (ah authHandler) getIdentityPlatformTokenFromAppleIdToken(c *gin.Context) {
	ah.getIdentityPlatformTokenFromProviderIDToken(c, "apple.com")
}

func (ah authHandler) getIdentityPlatformTokenFromProviderIDToken(c *gin.Context, provider string) {
	inboundReqBody := IDTokenRequest{}
	if err := c.ShouldBindJSON(&inboundReqBody); err != nil {
		log.Info().
			Err(err).
			Msg("Error parsing ID token request body")

		c.JSON(http.StatusBadRequest, reject.BodyParseProblem())
		return
	}

	isIDTokenEmpty := strings.TrimSpace(inboundReqBody.IDToken) == ""
	isAccessTokenEmpty := strings.TrimSpace(inboundReqBody.AccessToken) == ""

	if isIDTokenEmpty && isAccessTokenEmpty {
		log.Info().
			Msg("Empty ID and access token in provider token request")

		c.JSON(http.StatusBadRequest, reject.NewProblem().
			WithTitle("Either idToken or accessToken must be passed").
			WithStatus(http.StatusBadRequest).
			WithCode(errorTokenEmpty).
			Build())
		return
	}

	postBody := url.Values{"providerId": {provider}}
	if isIDTokenEmpty {
		postBody.Set("access_token", inboundReqBody.AccessToken)
	} else {
		postBody.Set("id_token", inboundReqBody.IDToken)
	}

	outboundReqBody := IdentityPlatformTokenRequest{
		PostBody:            postBody.Encode(),
		RequestURI:          "http://internal", // ignored for ID token sign in
		ReturnIDPCredential: true,
		ReturnSecureToken:   true,
	}

	res, err := ah.post(c, ah.config.SignInEndpoint, outboundReqBody)
	if err != nil {
		log.Error().
			Err(err).
			Msg("Error calling Google Identity Platform idp sign in endpoint")

		c.JSON(http.StatusInternalServerError, reject.NewProblem().
			WithTitle("Failed to exchange provider ID token for an internal token pair").
			WithStatus(http.StatusInternalServerError).
			WithCode(errorTokenRequestError).
			Build())
		return
	}
	defer res.Body.Close()

	if res.StatusCode != http.StatusOK {
		ah.forwardError(c, res, "Failed to exchange provider ID token for an internal token pair")
		return
	}

	log.Debug().
		Msgf("Successfully exchanged %s ID token for a Google Identity Platform token pair", provider)

	var resBody IdentityPlatformTokenResponse
	if err := json.NewDecoder(res.Body).Decode(&resBody); err != nil {
		c.JSON(http.StatusInternalServerError, reject.UnexpectedProblem(err))
		return
	}

	if resBody.Email != "" {
		wallet, err := ah.wallets.GetUserByEmail(c.Request.Context(), resBody.Email)
		if err != nil {
			log.Warn().Err(err).Msg("Wallet mapping lookup failed after sign in")
		}
		resBody.Wallet = wallet
	}

	c.JSON(http.StatusOK, resBody)
}

func (ah authHandler) post(c *gin.Context, endpoint string, body any) (*http.Response, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, err
	}
	uri := fmt.Sprintf("%s?key=%s", endpoint, url.QueryEscape(ah.config.ApiKey))
	req, err := http.NewRequestWithContext(c.Request.Context(), http.MethodPost, uri, bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	return ah.httpClient.Do(req)
}

func (ah authHandler) forwardError(c *gin.Context, res *http.Response, title string) {
	var errResBody identityPlatformErrorResponse
	_ = json.NewDecoder(res.Body).Decode(&errResBody)

	log.Info().
		Interface("response", errResBody).
		Msg(title)

	problem := reject.NewProblem().
		WithTitle(title).
		WithStatus(res.StatusCode).
		WithDetail(errResBody.detail()).
		WithCode(errorTokenRequestError).
		Build()

	c.JSON(res.StatusCode, problem)
}

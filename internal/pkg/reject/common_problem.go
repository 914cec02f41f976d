package reject

import (
	"errors"
	"net/http"

	"github.com/rs/zerolog/log"
)

const (
	genericUnexpectedError string = "error.generic.unexpected"
	cannotParseParams      string = "error.generic.cannot-parse-params"
	invalidRequest         string = "error.generic.invalid-request-payload"
	cannotParseBody        string = "error.generic.cannot-parse-payload"
	genericNotFound        string = "error.generic.not-found"
	unsupportedAction      string = "error.wallet-action.unsupported"
	authenticationFailed   string = "error.token.invalid"
	walletForbidden        string = "error.wallet.forbidden"
	mappingConflict        string = "error.wallet.mapping-conflict"
	provisioningFailed     string = "error.wallet.provisioning-failed"
	walletNotProvisioned   string = "error.wallet.not-provisioned"
	transactionFailed      string = "error.transaction.failed"
	upstreamUnavailable    string = "error.generic.upstream-unavailable"
)

func RequestParamsProblem() Problem {
	return NewProblem().
		WithTitle("Invalid request parameters").
		WithStatus(http.StatusBadRequest).
		WithCode(cannotParseParams).
		Build()
}

func BodyParseProblem() Problem {
	return NewProblem().
		WithTitle("Cannot read payload").
		WithStatus(http.StatusBadRequest).
		WithCode(cannotParseBody).
		Build()
}

func NotFoundProblem() Problem {
	return NewProblem().
		WithTitle("Record not found").
		WithStatus(http.StatusNotFound).
		WithCode(genericNotFound).
		Build()
}

func UnsupportedActionProblem(action string) Problem {
	return NewProblem().
		WithTitle("Invalid action type").
		WithStatus(http.StatusBadRequest).
		WithCode(unsupportedAction).
		WithParam("action", action).
		Build()
}

func UnexpectedProblem(err error) Problem {
	log.Warn().Err(err).Msg("Unexpected error while handling request: " + err.Error())
	return NewProblem().
		WithTitle("Unexpected error").
		WithStatus(http.StatusInternalServerError).
		WithCode(genericUnexpectedError).
		Build()
}

// FromError renders a taxonomy error as a problem document. Anything else is
// reported as an unexpected error.
func FromError(err error) Problem {
	var e *Error
	if !errors.As(err, &e) {
		return UnexpectedProblem(err)
	}

	p := NewProblem().WithDetail(e.Detail)
	switch e.Kind {
	case KindAuthentication:
		p.WithTitle("Unauthorized").
			WithStatus(http.StatusUnauthorized).
			WithCode(authenticationFailed)
	case KindForbidden:
		p.WithTitle(e.Message).
			WithStatus(http.StatusForbidden).
			WithCode(walletForbidden)
	case KindInvalidRequest:
		p.WithTitle(e.Message).
			WithStatus(http.StatusBadRequest).
			WithCode(invalidRequest)
	case KindConflict:
		p.WithTitle("Wallet mapping already exists").
			WithStatus(http.StatusConflict).
			WithCode(mappingConflict)
	case KindWalletNotProvisioned:
		p.WithTitle("Server wallet not provisioned").
			WithStatus(http.StatusNotFound).
			WithCode(walletNotProvisioned)
	case KindProvisioning:
		p.WithTitle("Failed to provision server wallet").
			WithStatus(http.StatusInternalServerError).
			WithCode(provisioningFailed)
	case KindTransactionFailed:
		p.WithTitle(e.Message).
			WithStatus(http.StatusInternalServerError).
			WithCode(transactionFailed).
			WithParam("reason", string(e.Reason))
	case KindTransport:
		p.WithTitle("Upstream service unavailable").
			WithStatus(http.StatusInternalServerError).
			WithCode(upstreamUnavailable)
	default:
		return UnexpectedProblem(err)
	}

	if e.Kind != KindAuthentication && e.Kind != KindForbidden && e.Kind != KindInvalidRequest {
		log.Warn().Err(err).Str("kind", string(e.Kind)).Msg("Wallet request failed")
	}

	return p.Build()
}

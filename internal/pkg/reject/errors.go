package reject

import (
	"errors"
	"strings"
)

type Kind string

const (
	KindAuthentication       Kind = "authentication"
	KindForbidden            Kind = "forbidden"
	KindConflict             Kind = "conflict"
	KindProvisioning         Kind = "provisioning"
	KindWalletNotProvisioned Kind = "wallet_not_provisioned"
	KindTransactionFailed    Kind = "transaction_failed"
	KindTransport            Kind = "transport"
	KindInvalidRequest       Kind = "invalid_request"
)

// Reason narrows KindTransactionFailed for caller-facing messages.
type Reason string

const (
	ReasonInsufficientFunds Reason = "insufficient_funds"
	ReasonNonce             Reason = "nonce"
	ReasonUnknown           Reason = "unknown"
)

// Error is the structured failure returned by the wallet services. Detail
// carries the raw provider or store message when there is one.
type Error struct {
	Kind    Kind
	Reason  Reason
	Message string
	Detail  string
	Cause   error
}

func (e *Error) Error() string {
	msg := string(e.Kind)
	if e.Reason != "" {
		msg += "(" + string(e.Reason) + ")"
	}
	if e.Message != "" {
		msg += ": " + e.Message
	}
	if e.Cause != nil {
		msg += ": " + e.Cause.Error()
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// Is matches on Kind, and on Reason when the target sets one, so callers can
// use errors.Is(err, reject.ErrConflict).
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	if t.Kind != e.Kind {
		return false
	}
	return t.Reason == "" || t.Reason == e.Reason
}

var (
	ErrAuthentication       = &Error{Kind: KindAuthentication}
	ErrForbidden            = &Error{Kind: KindForbidden}
	ErrConflict             = &Error{Kind: KindConflict}
	ErrProvisioning         = &Error{Kind: KindProvisioning}
	ErrWalletNotProvisioned = &Error{Kind: KindWalletNotProvisioned}
	ErrTransactionFailed    = &Error{Kind: KindTransactionFailed}
	ErrTransport            = &Error{Kind: KindTransport}
	ErrInvalidRequest       = &Error{Kind: KindInvalidRequest}
)

func Authentication(message string, cause error) *Error {
	return &Error{Kind: KindAuthentication, Message: message, Cause: cause}
}

// Forbidden rejects a verified caller acting on a wallet or email that is not
// theirs.
func Forbidden(message string) *Error {
	return &Error{Kind: KindForbidden, Message: message}
}

func Conflict(message string, cause error) *Error {
	return &Error{Kind: KindConflict, Message: message, Cause: cause, Detail: causeDetail(cause)}
}

func Provisioning(message string, cause error) *Error {
	return &Error{Kind: KindProvisioning, Message: message, Cause: cause, Detail: causeDetail(cause)}
}

func WalletNotProvisioned(message string) *Error {
	return &Error{Kind: KindWalletNotProvisioned, Message: message}
}

func Transport(message string, cause error) *Error {
	return &Error{Kind: KindTransport, Message: message, Cause: cause, Detail: causeDetail(cause)}
}

func InvalidRequest(message string) *Error {
	return &Error{Kind: KindInvalidRequest, Message: message}
}

// TransactionFailed builds a terminal transaction failure from the provider's
// raw message, classifying it into a Reason.
func TransactionFailed(raw string, cause error) *Error {
	reason := ClassifyTransactionFailure(raw)
	return &Error{
		Kind:    KindTransactionFailed,
		Reason:  reason,
		Message: transactionFailureMessage(reason, raw),
		Detail:  raw,
		Cause:   cause,
	}
}

func ClassifyTransactionFailure(raw string) Reason {
	lower := strings.ToLower(raw)
	switch {
	case strings.Contains(lower, "insufficient funds"):
		return ReasonInsufficientFunds
	case strings.Contains(lower, "nonce"):
		return ReasonNonce
	default:
		return ReasonUnknown
	}
}

func transactionFailureMessage(reason Reason, raw string) string {
	switch reason {
	case ReasonInsufficientFunds:
		return "Insufficient funds for transaction"
	case ReasonNonce:
		return "Transaction nonce error"
	default:
		if raw == "" {
			return "An unknown error occurred"
		}
		return raw
	}
}

// KindOf returns the taxonomy kind of err, or "" for foreign errors.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

func causeDetail(cause error) string {
	if cause == nil {
		return ""
	}
	return cause.Error()
}

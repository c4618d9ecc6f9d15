package connect

import (
	"context"
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/rpc"
)

// Kind classifies façade errors
type Kind string

const (
	KindInvalid      Kind = "invalid_connection_parameters"
	KindUnsupported  Kind = "unsupported_provider"
	KindRejected     Kind = "connection_rejected"
	KindTimeout      Kind = "connection_timeout"
	KindSignRejected Kind = "signing_rejected"
	KindUnavailable  Kind = "backend_unavailable"
	KindSubmission   Kind = "transaction_submission_failed"
	KindNotSupported Kind = "not_supported"
	KindInProgress   Kind = "connect_in_progress"
)

// Sentinels for errors.Is. Any *Error with the same Kind matches.
var (
	ErrInvalidConnectionParameters = &Error{Kind: KindInvalid}
	ErrUnsupportedProvider         = &Error{Kind: KindUnsupported}
	ErrConnectionRejected          = &Error{Kind: KindRejected}
	ErrConnectionTimeout           = &Error{Kind: KindTimeout}
	ErrSigningRejected             = &Error{Kind: KindSignRejected}
	ErrBackendUnavailable          = &Error{Kind: KindUnavailable}
	ErrTransactionSubmissionFailed = &Error{Kind: KindSubmission}
	ErrNotSupported                = &Error{Kind: KindNotSupported}
	ErrConnectInProgress           = &Error{Kind: KindInProgress}
)

// Error is the concrete error returned by the façade
type Error struct {
	Kind     Kind
	Provider ProviderID
	Op       string
	Err      error
}

func (e *Error) Error() string {
	msg := string(e.Kind)
	if e.Op != "" {
		msg = e.Op + ": " + msg
	}
	if e.Provider != "" {
		msg = string(e.Provider) + " " + msg
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches on Kind so wrapped errors compare equal to the sentinels
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind
}

// KindOf returns the Kind of err, or "" when err is not a façade error
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

func newError(kind Kind, provider ProviderID, op string, err error) *Error {
	return &Error{Kind: kind, Provider: provider, Op: op, Err: err}
}

func invalidf(provider ProviderID, format string, args ...any) *Error {
	return newError(KindInvalid, provider, "", fmt.Errorf(format, args...))
}

// EIP-1193 provider error codes, plus JSON-RPC method not found
const (
	codeUserRejected      = 4001
	codeUnauthorized      = 4100
	codeUnsupportedMethod = 4200
	codeDisconnected      = 4900
	codeChainDisconnected = 4901
	codeUnrecognizedChain = 4902
	codeMethodNotFound    = -32601
)

// classify maps a backend error to a façade error. fallback is used for
// errors that carry no recognizable signal.
func classify(err error, provider ProviderID, op string, connecting bool, fallback Kind) error {
	if err == nil {
		return nil
	}
	var fe *Error
	if errors.As(err, &fe) {
		return err
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return newError(KindTimeout, provider, op, err)
	}
	// the caller gave up; a user who declines answers through the wallet
	// or the approver instead
	if errors.Is(err, context.Canceled) {
		return newError(KindUnavailable, provider, op, err)
	}

	var rpcErr rpc.Error
	if errors.As(err, &rpcErr) {
		switch rpcErr.ErrorCode() {
		case codeUserRejected:
			if connecting {
				return newError(KindRejected, provider, op, err)
			}
			return newError(KindSignRejected, provider, op, err)
		case codeUnauthorized, codeDisconnected, codeChainDisconnected:
			return newError(KindUnavailable, provider, op, err)
		case codeUnsupportedMethod, codeMethodNotFound:
			return newError(KindNotSupported, provider, op, err)
		}
	}
	return newError(fallback, provider, op, err)
}

package wallet

import (
	"errors"
	"fmt"
)

// Kind classifies wallet errors.
type Kind string

const (
	KindInvalidInput     Kind = "invalid_input"
	KindInternal         Kind = "internal"
	KindUnimplemented    Kind = "unimplemented"
	KindForbidden        Kind = "forbidden"
	KindPaused           Kind = "paused"
	KindBroadcastUnknown Kind = "broadcast_unknown"
)

// Error is the error type returned by the wallet service and adapters.
type Error struct {
	Kind    Kind   `json:"kind"`
	Message string `json:"message,omitempty"`

	// Set for KindUnimplemented.
	Network   string `json:"network,omitempty"`
	Operation string `json:"operation,omitempty"`

	// Set for KindBroadcastUnknown: the transaction was signed and may
	// have reached the network.
	TxID     string `json:"tx_id,omitempty"`
	SignedTx string `json:"signed_tx,omitempty"`

	cause error
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	switch e.Kind {
	case KindForbidden:
		return "forbidden"
	case KindPaused:
		return "wallet is paused"
	case KindUnimplemented:
		return fmt.Sprintf("%s is not implemented for %s", e.Operation, e.Network)
	case KindBroadcastUnknown:
		return fmt.Sprintf("broadcast outcome unknown for %s tx %s: %s", e.Network, e.TxID, e.Message)
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.cause }

// InvalidInput reports a malformed request.
func InvalidInput(format string, args ...any) *Error {
	return &Error{Kind: KindInvalidInput, Message: fmt.Sprintf(format, args...)}
}

// Internal reports an upstream, codec or signer failure.
func Internal(format string, args ...any) *Error {
	return &Error{Kind: KindInternal, Message: fmt.Sprintf(format, args...)}
}

// Wrap classifies err as Internal with a message prefix, keeping it as the cause.
func Wrap(err error, format string, args ...any) *Error {
	var we *Error
	if errors.As(err, &we) {
		return we
	}
	return &Error{Kind: KindInternal, Message: fmt.Sprintf(format, args...) + ": " + err.Error(), cause: err}
}

// Unimplemented reports a network/operation pair that is not wired up.
func Unimplemented(network, operation string) *Error {
	return &Error{Kind: KindUnimplemented, Network: network, Operation: operation}
}

// Forbidden reports a caller that is not the owner.
func Forbidden() *Error { return &Error{Kind: KindForbidden} }

// Paused reports that wallet operations are paused.
func Paused() *Error { return &Error{Kind: KindPaused} }

// BroadcastUnknown reports a signed transaction whose broadcast outcome is
// unknown. Callers should look up txID before retrying.
func BroadcastUnknown(network, txID, signedTx string, cause error) *Error {
	return &Error{
		Kind:     KindBroadcastUnknown,
		Message:  cause.Error(),
		Network:  network,
		TxID:     txID,
		SignedTx: signedTx,
		cause:    cause,
	}
}

// KindOf returns the Kind of err, or KindInternal for foreign errors.
func KindOf(err error) Kind {
	var we *Error
	if errors.As(err, &we) {
		return we.Kind
	}
	return KindInternal
}

// IsKind reports whether err is a wallet error of the given kind.
func IsKind(err error, kind Kind) bool {
	var we *Error
	return errors.As(err, &we) && we.Kind == kind
}

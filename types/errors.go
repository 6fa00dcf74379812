package types

import "errors"

// Error is the module-wide tagged error. Code identifies the failure class,
// Data carries optional structured detail for error-shaped HTTP bodies.
type Error struct {
	Code    string      `json:"code"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

func (e *Error) Error() string {
	return e.Message
}

// Error codes.
const (
	// ErrConfig: missing or malformed startup configuration (e.g. signing
	// key). Fatal at boot, never recoverable per request.
	ErrConfig = "CONFIG_ERROR"

	// ErrProtocol: malformed challenge or proof. The request is aborted and
	// not retried.
	ErrProtocol = "PROTOCOL_ERROR"

	// ErrPaymentRejected: the verifier rejected the proof, or the retried
	// request came back 402 again. Terminal for the flow.
	ErrPaymentRejected = "PAYMENT_REJECTED"

	// ErrStorageUnavailable: the storage network failed. Distinguishable
	// from payment failure; retry policy belongs to the caller.
	ErrStorageUnavailable = "STORAGE_UNAVAILABLE"
)

func NewConfigError(msg string) *Error {
	return &Error{Code: ErrConfig, Message: msg}
}

func NewProtocolError(msg string) *Error {
	return &Error{Code: ErrProtocol, Message: msg}
}

func NewPaymentRejected(msg string, data interface{}) *Error {
	return &Error{Code: ErrPaymentRejected, Message: msg, Data: data}
}

func NewStorageUnavailable(msg string) *Error {
	return &Error{Code: ErrStorageUnavailable, Message: msg}
}

// CodeOf returns the databox error code of err, or "" if err is not ours.
func CodeOf(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}

package apperror

import (
	"errors"
	"fmt"
	"net/http"
)

// NotFoundError marks a missing entity. It maps to 404 on the admin surface
// and to a typed null on internal paths.
type NotFoundError string

func (err NotFoundError) Error() string   { return string(err) }
func (err NotFoundError) ErrCode() string { return "NOT_FOUND_ERROR" }
func (err NotFoundError) StatusCode() int { return http.StatusNotFound }

// ValidationError marks bad input rejected before any side effect.
type ValidationError string

func (err ValidationError) Error() string   { return string(err) }
func (err ValidationError) ErrCode() string { return "VALIDATION_ERROR" }
func (err ValidationError) StatusCode() int { return http.StatusBadRequest }

// InvalidCiphertextError is raised by pkg/crypto on any tamper, wrong key or
// malformed token. Callers surface it as corrupt configuration, never retry.
type InvalidCiphertextError string

func (err InvalidCiphertextError) Error() string   { return string(err) }
func (err InvalidCiphertextError) ErrCode() string { return "INVALID_CIPHERTEXT" }
func (err InvalidCiphertextError) StatusCode() int { return http.StatusInternalServerError }

// BridgeConnectionError is a transport failure talking to the WhatsApp Bridge.
// Retriable by callers; the worker path treats it as a retry trigger.
type BridgeConnectionError struct {
	Msg string
	Err error
}

func (e *BridgeConnectionError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Msg, e.Err)
	}
	return e.Msg
}

func (e *BridgeConnectionError) Unwrap() error   { return e.Err }
func (e *BridgeConnectionError) ErrCode() string { return "BRIDGE_CONNECTION_ERROR" }
func (e *BridgeConnectionError) StatusCode() int { return http.StatusBadGateway }

// BridgeSessionError is a bridge-level logical error (session missing, not
// connected, already exists). Not retried by the worker.
type BridgeSessionError struct {
	Msg string
	Err error
}

func (e *BridgeSessionError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Msg, e.Err)
	}
	return e.Msg
}

func (e *BridgeSessionError) Unwrap() error   { return e.Err }
func (e *BridgeSessionError) ErrCode() string { return "BRIDGE_SESSION_ERROR" }
func (e *BridgeSessionError) StatusCode() int { return http.StatusBadGateway }

// IsNotFound reports whether err is (or wraps) a NotFoundError.
func IsNotFound(err error) bool {
	var nf NotFoundError
	return errors.As(err, &nf)
}

// IsBridgeConnection reports whether err is (or wraps) a BridgeConnectionError.
func IsBridgeConnection(err error) bool {
	var bc *BridgeConnectionError
	return errors.As(err, &bc)
}

// IsInvalidCiphertext reports whether err is (or wraps) an InvalidCiphertextError.
func IsInvalidCiphertext(err error) bool {
	var ic InvalidCiphertextError
	return errors.As(err, &ic)
}

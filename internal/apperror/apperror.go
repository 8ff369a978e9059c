// Package apperror defines the closed error taxonomy every control-plane
// component returns, per the error handling contract: handlers, the
// media-engine adapter, and the state store all produce one of these kinds
// rather than raw errors, so the signaling transport can map any failure to
// a wire-level {type:"error", error:{code,message}} frame without knowing
// which component produced it.
package apperror

import (
	"errors"
	"fmt"
)

// Kind is a closed taxonomy of control-plane failure categories.
type Kind string

const (
	InvalidRequest    Kind = "invalidRequest"
	Unauthorized      Kind = "unauthorized"
	NotFound          Kind = "notFound"
	RoomFull          Kind = "roomFull"
	CallAlreadyExists Kind = "callAlreadyExists"
	InvalidCallState  Kind = "invalidCallState"
	PermissionDenied  Kind = "permissionDenied"
	MediaError        Kind = "mediaError"
	Timeout           Kind = "timeout"
	CircuitOpen       Kind = "circuitOpen"
	StateStoreError   Kind = "stateStoreError"
	Unknown           Kind = "unknown"
)

// code is the numeric error code surfaced on the wire. Codes form the
// ranges the signaling contract documents: 100-199 general, 200-299
// room, 300-399 participant, 400-499 track, 500-599 transport/infra.
var code = map[Kind]int{
	InvalidRequest:    100,
	Unauthorized:      101,
	NotFound:          102,
	RoomFull:          201,
	CallAlreadyExists: 202,
	InvalidCallState:  203,
	PermissionDenied:  301,
	MediaError:        401,
	Timeout:           501,
	CircuitOpen:       502,
	StateStoreError:   503,
	Unknown:           599,
}

// Error is the concrete error type every internal package returns.
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

// Code returns the numeric wire code for this error's kind.
func (e *Error) Code() int { return code[e.Kind] }

// New builds a new Error of the given kind with no wrapped cause.
func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Wrap builds a new Error of the given kind wrapping an underlying cause.
func Wrap(kind Kind, message string, err error) *Error {
	return &Error{Kind: kind, Message: message, Err: err}
}

// KindOf extracts the Kind of err if it is (or wraps) an *Error, defaulting
// to Unknown otherwise.
func KindOf(err error) Kind {
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr.Kind
	}
	return Unknown
}

// Is reports whether err is an *Error of the given kind.
func Is(err error, kind Kind) bool {
	return KindOf(err) == kind
}

// CodeOf returns the wire code for err, defaulting to the Unknown code.
func CodeOf(err error) int {
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr.Code()
	}
	return code[Unknown]
}

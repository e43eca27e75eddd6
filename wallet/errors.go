// Copyright (c) 2020 The JaxNetwork developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package wallet

import (
	"fmt"

	"github.com/pkg/errors"
)

// ErrorCode identifies the kind of a wallet failure. Codes travel over the
// wire unchanged.
type ErrorCode string

const (
	CodeInsufficientFunds  ErrorCode = "insufficient_funds"
	CodeInvalidParents     ErrorCode = "invalid_parents"
	CodeUnauthorizedLock   ErrorCode = "unauthorized_lock"
	CodeStaleParents       ErrorCode = "stale_parents"
	CodeDoubleSpendAttempt ErrorCode = "double_spend_attempt"
	CodeAlreadyOpen        ErrorCode = "already_open"
	CodeNotOpen            ErrorCode = "not_open"
	CodeTransportError     ErrorCode = "transport_error"
	CodeInvalidDraft       ErrorCode = "invalid_draft"
	CodeBackingDeclined    ErrorCode = "backing_declined"
	CodeInternal           ErrorCode = "internal"
)

var (
	ErrInsufficientFunds  = &Error{Code: CodeInsufficientFunds, Message: "purse can not cover the draft"}
	ErrInvalidParents     = &Error{Code: CodeInvalidParents, Message: "parents don't resolve every input"}
	ErrUnauthorizedLock   = &Error{Code: CodeUnauthorizedLock, Message: "lock is not controlled by the owner"}
	ErrStaleParents       = &Error{Code: CodeStaleParents, Message: "parents don't match the inputs"}
	ErrDoubleSpendAttempt = &Error{Code: CodeDoubleSpendAttempt, Message: "outputs are claimed by another payment"}
	ErrAlreadyOpen        = &Error{Code: CodeAlreadyOpen, Message: "batch is already open"}
	ErrNotOpen            = &Error{Code: CodeNotOpen, Message: "batch is not open"}
	ErrTransport          = &Error{Code: CodeTransportError, Message: "wallet is unreachable"}
	ErrInvalidDraft       = &Error{Code: CodeInvalidDraft, Message: "draft is malformed"}
	ErrBackingDeclined    = &Error{Code: CodeBackingDeclined, Message: "purse doesn't back outputs above dust"}
)

// Error is a business failure of a capability.
type Error struct {
	Code    ErrorCode
	Message string
}

func NewError(code ErrorCode, format string, args ...interface{}) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

func (e *Error) Error() string {
	if e.Message == "" {
		return string(e.Code)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Is matches errors by code, so errors.Is(err, ErrStaleParents) holds for any
// stale_parents failure regardless of the message.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Code == e.Code
}

// TransportError reports that the wallet couldn't be reached or answered with
// something that isn't a valid response. It is never a business failure.
type TransportError struct {
	Op  string
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("%s: %s: %v", CodeTransportError, e.Op, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

func (e *TransportError) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Code == CodeTransportError
}

// CodeOf extracts the code of a wallet error, or CodeInternal.
func CodeOf(err error) ErrorCode {
	var te *TransportError
	if errors.As(err, &te) {
		return CodeTransportError
	}
	var we *Error
	if errors.As(err, &we) {
		return we.Code
	}
	return CodeInternal
}

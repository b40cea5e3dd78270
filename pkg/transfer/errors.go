package transfer

import (
	stdErrors "errors"
	"fmt"
	"net/http"
)

// Code classifies a transfer failure.
type Code string

const (
	CodeInvalidAmount      Code = "INVALID_AMOUNT"
	CodeSameAccount        Code = "SAME_ACCOUNT"
	CodeInvalidRequest     Code = "INVALID_REQUEST"
	CodeAccountNotFound    Code = "ACCOUNT_NOT_FOUND"
	CodeAccountInactive    Code = "ACCOUNT_INACTIVE"
	CodeInsufficientFunds  Code = "INSUFFICIENT_FUNDS"
	CodeTimeout            Code = "TIMEOUT"
	CodeStorageUnavailable Code = "STORAGE_UNAVAILABLE"
)

type Metadata struct {
	HTTPStatus    int
	Retryable     bool
	PublicMessage string
}

var metadataByCode = map[Code]Metadata{
	CodeInvalidAmount: {
		HTTPStatus:    http.StatusBadRequest,
		PublicMessage: "amount must be positive",
	},
	CodeSameAccount: {
		HTTPStatus:    http.StatusBadRequest,
		PublicMessage: "cannot transfer to the same account",
	},
	CodeInvalidRequest: {
		HTTPStatus:    http.StatusBadRequest,
		PublicMessage: "invalid transfer request",
	},
	CodeAccountNotFound: {
		HTTPStatus:    http.StatusNotFound,
		PublicMessage: "account not found",
	},
	CodeAccountInactive: {
		HTTPStatus:    http.StatusConflict,
		PublicMessage: "account is inactive",
	},
	CodeInsufficientFunds: {
		HTTPStatus:    http.StatusUnprocessableEntity,
		PublicMessage: "insufficient funds",
	},
	CodeTimeout: {
		HTTPStatus:    http.StatusServiceUnavailable,
		Retryable:     true,
		PublicMessage: "timed out waiting for account",
	},
	CodeStorageUnavailable: {
		HTTPStatus:    http.StatusServiceUnavailable,
		Retryable:     true,
		PublicMessage: "storage unavailable",
	},
}

func MetadataFor(code Code) Metadata {
	if meta, ok := metadataByCode[code]; ok {
		return meta
	}
	return metadataByCode[CodeStorageUnavailable]
}

// Sentinels for errors.Is. Any *Error with the same code matches.
var (
	ErrInvalidAmount      = New(CodeInvalidAmount, "amount must be positive")
	ErrSameAccount        = New(CodeSameAccount, "cannot transfer to the same account")
	ErrInvalidRequest     = New(CodeInvalidRequest, "invalid transfer request")
	ErrAccountNotFound    = New(CodeAccountNotFound, "account not found")
	ErrAccountInactive    = New(CodeAccountInactive, "account is inactive")
	ErrInsufficientFunds  = New(CodeInsufficientFunds, "insufficient funds")
	ErrTimeout            = New(CodeTimeout, "timed out waiting for account lock")
	ErrStorageUnavailable = New(CodeStorageUnavailable, "storage unavailable")
)

type Error struct {
	code    Code
	message string
	cause   error
}

func New(code Code, message string) *Error {
	return &Error{code: code, message: message}
}

func Wrap(code Code, err error, message string) *Error {
	if err == nil {
		return New(code, message)
	}
	return &Error{code: code, message: message, cause: err}
}

func (e *Error) Code() Code {
	if e == nil {
		return CodeStorageUnavailable
	}
	return e.code
}

func (e *Error) Message() string {
	if e == nil {
		return ""
	}
	return e.message
}

func (e *Error) Metadata() Metadata {
	return MetadataFor(e.Code())
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	if e.cause == nil {
		return fmt.Sprintf("%s: %s", e.code, e.message)
	}
	return fmt.Sprintf("%s: %s: %v", e.code, e.message, e.cause)
}

func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.cause
}

// Is matches any transfer error carrying the same code.
func (e *Error) Is(target error) bool {
	var other *Error
	if !stdErrors.As(target, &other) || e == nil || other == nil {
		return false
	}
	return e.code == other.code
}

// As extracts a *Error from the chain.
func As(err error) *Error {
	var typed *Error
	if stdErrors.As(err, &typed) {
		return typed
	}
	return nil
}

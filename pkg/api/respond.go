package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/go-playground/validator/v10"

	"github.com/mycotrack/wallet-ledger/pkg/storage"
	"github.com/mycotrack/wallet-ledger/pkg/transfer"
)

const (
	CodeBadRequest = "BAD_REQUEST"
	CodeNotFound   = "NOT_FOUND"
	CodeConflict   = "CONFLICT"
	CodeInternal   = "INTERNAL_ERROR"
)

var validate = validator.New(validator.WithRequiredStructEnabled())

// Decode reads a JSON body into dst and validates it.
func Decode(r *http.Request, dst any) error {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		return BadRequest(fmt.Errorf("invalid request body: %w", err))
	}
	if err := validate.Struct(dst); err != nil {
		return fmt.Errorf("invalid request body: %w", err)
	}
	return nil
}

// WriteJSON writes v with the given status.
func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, fmt.Sprintf("Failed to write response: %v", err), http.StatusInternalServerError)
	}
}

// WriteError maps err onto a status code and error body.
func WriteError(w http.ResponseWriter, err error) {
	status, body := ErrorFor(err)
	WriteJSON(w, status, body)
}

// ErrorFor classifies err. Transfer errors carry their own status; storage sentinels and
// validation failures are mapped here; anything else is an internal error.
func ErrorFor(err error) (int, Error) {
	if typed := transfer.As(err); typed != nil {
		meta := typed.Metadata()
		return meta.HTTPStatus, Error{Code: string(typed.Code()), Message: typed.Message(), Retryable: meta.Retryable}
	}

	var validationErrs validator.ValidationErrors
	switch {
	case errors.As(err, &validationErrs):
		return http.StatusBadRequest, Error{Code: CodeBadRequest, Message: err.Error()}
	case errors.Is(err, ErrBadRequest):
		return http.StatusBadRequest, Error{Code: CodeBadRequest, Message: err.Error()}
	case errors.Is(err, storage.ErrAccountNotFound):
		return http.StatusNotFound, Error{Code: CodeNotFound, Message: "account not found"}
	case errors.Is(err, storage.ErrAccountExists):
		return http.StatusConflict, Error{Code: CodeConflict, Message: "account already exists"}
	}
	return http.StatusInternalServerError, Error{Code: CodeInternal, Message: "internal server error", Retryable: true}
}

// ErrBadRequest marks malformed input that is not a validation failure.
var ErrBadRequest = errors.New("bad request")

// BadRequest wraps a decoding problem so WriteError reports it as a 400.
func BadRequest(err error) error {
	return fmt.Errorf("%w: %v", ErrBadRequest, err)
}

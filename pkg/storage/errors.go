package storage

import (
	"errors"

	"github.com/mycotrack/wallet-ledger/pkg/models"
)

// ErrAccountNotFound is returned when no account exists for the requested id.
var ErrAccountNotFound = errors.New("account not found")

// ErrAccountExists is returned when creating an account whose id is already registered.
var ErrAccountExists = errors.New("account already exists")

// ErrVersionConflict is returned by a compare-and-swap write when the stored version no longer matches.
var ErrVersionConflict = errors.New("account version conflict")

// ErrNegativeBalance is returned when a write would leave a customer or farmer balance below zero.
var ErrNegativeBalance = errors.New("balance would become negative")

// ErrDuplicateReference is returned when a ledger batch reuses a (reference, kind) pair that already settled.
var ErrDuplicateReference = errors.New("reference already settled")

// ErrInvalidBatch is returned when a ledger batch is not exactly one balanced debit and credit.
var ErrInvalidBatch = models.ErrInvalidBatch

// ErrSequenceConflict is returned by Append when another writer published an entry at the same position
// of an account history. The batch was not written and may be retried.
var ErrSequenceConflict = errors.New("ledger sequence taken")

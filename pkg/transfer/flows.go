package transfer

import (
	"context"
	"fmt"

	"github.com/mycotrack/wallet-ledger/pkg/models"
)

// Pay settles a checkout: the customer pays the farmer for an order.
func (c *Coordinator) Pay(ctx context.Context, orderID, customerID, farmerID string, amount int64, description string) (*models.TransferResult, error) {
	return c.Transfer(ctx, Request{
		Reference:     orderID,
		Kind:          models.KindPayment,
		FromAccountID: customerID,
		ToAccountID:   farmerID,
		Amount:        amount,
		Description:   description,
	})
}

// TopUp moves funds from the platform holding account into accountID.
func (c *Coordinator) TopUp(ctx context.Context, reference, accountID string, amount int64, description string, metadata map[string]string) (*models.TransferResult, error) {
	return c.Transfer(ctx, Request{
		Reference:     reference,
		Kind:          models.KindTopUp,
		FromAccountID: c.opts.PlatformAccountID,
		ToAccountID:   accountID,
		Amount:        amount,
		Description:   description,
		Metadata:      metadata,
	})
}

// Withdraw moves funds from accountID back to the platform holding account.
func (c *Coordinator) Withdraw(ctx context.Context, reference, accountID string, amount int64, description string, metadata map[string]string) (*models.TransferResult, error) {
	return c.Transfer(ctx, Request{
		Reference:     reference,
		Kind:          models.KindWithdrawal,
		FromAccountID: accountID,
		ToAccountID:   c.opts.PlatformAccountID,
		Amount:        amount,
		Description:   description,
		Metadata:      metadata,
	})
}

// Refund reverses a payment. It is a new transfer from the farmer back to the customer under the
// refund kind; the original payment entries are never touched. The order must have a settled payment
// from customerID to farmerID of at least amount.
func (c *Coordinator) Refund(ctx context.Context, orderID, farmerID, customerID string, amount int64, description string) (*models.TransferResult, error) {
	payment, err := c.settledPayment(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if payment.FromAccountID != customerID || payment.ToAccountID != farmerID {
		return nil, New(CodeInvalidRequest, fmt.Sprintf("order %s was paid by %s to %s", orderID, payment.FromAccountID, payment.ToAccountID))
	}
	if amount > payment.Amount {
		return nil, New(CodeInvalidAmount, fmt.Sprintf("refund %d exceeds payment %d for order %s", amount, payment.Amount, orderID))
	}

	return c.Transfer(ctx, Request{
		Reference:     orderID,
		Kind:          models.KindRefund,
		FromAccountID: farmerID,
		ToAccountID:   customerID,
		Amount:        amount,
		Description:   description,
	})
}

func (c *Coordinator) settledPayment(ctx context.Context, orderID string) (*models.TransferResult, error) {
	entries, err := c.ledger.FindByReference(ctx, orderID, models.KindPayment)
	if err != nil {
		return nil, Wrap(CodeStorageUnavailable, err, fmt.Sprintf("failed to load payment for order %s", orderID))
	}
	if len(entries) == 0 {
		return nil, New(CodeInvalidRequest, fmt.Sprintf("order %s has no settled payment", orderID))
	}
	payment, err := models.ResultFromEntries(entries)
	if err != nil {
		return nil, Wrap(CodeStorageUnavailable, err, fmt.Sprintf("payment for order %s has inconsistent entries", orderID))
	}
	return payment, nil
}

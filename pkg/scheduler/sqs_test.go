package scheduler

import (
	"context"
	"errors"
	"testing"

	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/mycotrack/wallet-ledger/pkg/models"
	"github.com/mycotrack/wallet-ledger/pkg/transfer"
)

type mockSQS struct {
	mock.Mock
}

func (m *mockSQS) SendMessage(ctx context.Context, params *sqs.SendMessageInput, optFns ...func(*sqs.Options)) (*sqs.SendMessageOutput, error) {
	args := m.Called(ctx, params)
	out, _ := args.Get(0).(*sqs.SendMessageOutput)
	return out, args.Error(1)
}

func TestSQSScheduler_ScheduleTransfer(t *testing.T) {
	ctx := context.Background()
	req := &transfer.Request{
		Reference:     "order-9",
		Kind:          models.KindPayment,
		FromAccountID: "cust-1",
		ToAccountID:   "farm-1",
		Amount:        1250,
		Metadata:      map[string]string{"channel": "checkout"},
	}

	t.Run("Success", func(t *testing.T) {
		client := new(mockSQS)
		scheduler := NewSQSScheduler(client, "https://sqs.example/transfers")

		var sent string
		client.On("SendMessage", ctx, mock.MatchedBy(func(input *sqs.SendMessageInput) bool {
			sent = *input.MessageBody
			return *input.QueueUrl == "https://sqs.example/transfers"
		})).Return(&sqs.SendMessageOutput{}, nil).Once()

		require.NoError(t, scheduler.ScheduleTransfer(ctx, req))
		client.AssertExpectations(t)

		decoded, err := DecodeTransfer(sent)
		require.NoError(t, err)
		assert.Equal(t, req, decoded)
	})

	t.Run("Send Error", func(t *testing.T) {
		client := new(mockSQS)
		scheduler := NewSQSScheduler(client, "queue")
		client.On("SendMessage", ctx, mock.Anything).Return(nil, errors.New("access denied")).Once()

		err := scheduler.ScheduleTransfer(ctx, req)
		assert.ErrorContains(t, err, "failed to send message to SQS")
	})

	t.Run("Bad Message", func(t *testing.T) {
		_, err := DecodeTransfer("{not json")
		assert.Error(t, err)
	})
}

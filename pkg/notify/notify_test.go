package notify

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/mycotrack/wallet-ledger/pkg/models"
)

type mockSQS struct {
	mock.Mock
}

func (m *mockSQS) SendMessage(ctx context.Context, params *sqs.SendMessageInput, optFns ...func(*sqs.Options)) (*sqs.SendMessageOutput, error) {
	args := m.Called(ctx, params)
	out, _ := args.Get(0).(*sqs.SendMessageOutput)
	return out, args.Error(1)
}

type recordingGateway struct {
	mu     sync.Mutex
	events []Event
	block  chan struct{}
}

func (g *recordingGateway) Publish(_ context.Context, event Event) error {
	if g.block != nil {
		<-g.block
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	g.events = append(g.events, event)
	return nil
}

func (g *recordingGateway) count() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.events)
}

func sampleResult() *models.TransferResult {
	return &models.TransferResult{
		TransactionID: "tx-1",
		Reference:     "order-1",
		Kind:          models.KindPayment,
		FromAccountID: "customer-1",
		ToAccountID:   "farmer-1",
		Amount:        250,
		FromBalance:   750,
		ToBalance:     250,
		Description:   "Payment for order order-1",
	}
}

func TestTransferEvent(t *testing.T) {
	t.Run("settled", func(t *testing.T) {
		event := TransferEvent(sampleResult())
		assert.Equal(t, EventTransferSettled, event.Type)

		payload, ok := event.Payload.(TransferPayload)
		require.True(t, ok)
		assert.Equal(t, "tx-1", payload.TransactionID)
		require.Len(t, payload.Changes, 2)
		assert.Equal(t, BalanceChange{AccountID: "customer-1", Change: -250, NewBalance: 750}, payload.Changes[0])
		assert.Equal(t, BalanceChange{AccountID: "farmer-1", Change: 250, NewBalance: 250}, payload.Changes[1])
	})

	t.Run("deferred", func(t *testing.T) {
		result := sampleResult()
		result.Deferred = true
		assert.Equal(t, EventTransferDeferred, TransferEvent(result).Type)
	})
}

func TestSQSGateway_Publish(t *testing.T) {
	ctx := context.Background()

	t.Run("sends event as json", func(t *testing.T) {
		client := new(mockSQS)
		gateway := NewSQSGateway(client, "https://sqs.example/queue")

		client.On("SendMessage", ctx, mock.MatchedBy(func(input *sqs.SendMessageInput) bool {
			var decoded map[string]any
			if err := json.Unmarshal([]byte(*input.MessageBody), &decoded); err != nil {
				return false
			}
			return *input.QueueUrl == "https://sqs.example/queue" &&
				decoded["type"] == string(EventTransferSettled) &&
				*input.MessageAttributes["event_type"].StringValue == string(EventTransferSettled)
		})).Return(&sqs.SendMessageOutput{}, nil).Once()

		require.NoError(t, gateway.Publish(ctx, TransferEvent(sampleResult())))
		client.AssertExpectations(t)
	})

	t.Run("wraps send errors", func(t *testing.T) {
		client := new(mockSQS)
		gateway := NewSQSGateway(client, "queue")
		sendErr := errors.New("throttled")

		client.On("SendMessage", ctx, mock.Anything).Return(nil, sendErr).Once()

		err := gateway.Publish(ctx, TransferEvent(sampleResult()))
		require.Error(t, err)
		assert.ErrorIs(t, err, sendErr)
	})
}

func TestAsync(t *testing.T) {
	t.Run("delivers buffered events on close", func(t *testing.T) {
		next := &recordingGateway{}
		async := NewAsync(next, 8, nil)

		for i := 0; i < 5; i++ {
			require.NoError(t, async.Publish(context.Background(), TransferEvent(sampleResult())))
		}

		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		require.NoError(t, async.Close(ctx))
		assert.Equal(t, 5, next.count())
	})

	t.Run("drops events when the buffer is full", func(t *testing.T) {
		next := &recordingGateway{block: make(chan struct{})}
		async := NewAsync(next, 1, nil)

		// The worker holds at most one event while blocked, the buffer one more.
		for i := 0; i < 10; i++ {
			require.NoError(t, async.Publish(context.Background(), TransferEvent(sampleResult())))
		}
		close(next.block)

		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		require.NoError(t, async.Close(ctx))
		assert.LessOrEqual(t, next.count(), 2)
		assert.GreaterOrEqual(t, next.count(), 1)
	})

	t.Run("publish after close is a no-op", func(t *testing.T) {
		async := NewAsync(NoOp{}, 1, nil)
		require.NoError(t, async.Close(context.Background()))
		assert.NoError(t, async.Publish(context.Background(), Event{Type: EventTransferSettled}))
	})
}

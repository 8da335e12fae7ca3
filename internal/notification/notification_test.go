package notification

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
)

type MockSender struct {
	mock.Mock
}

func (m *MockSender) Send(ctx context.Context, msg Message) error {
	args := m.Called(ctx, msg)
	return args.Error(0)
}

func TestRouter_Send(t *testing.T) {
	ctx := context.Background()

	t.Run("Routes by kind", func(t *testing.T) {
		email := new(MockSender)
		sms := new(MockSender)
		r := Router{Email: email, SMS: sms}

		emailMsg := Message{Kind: KindEmail, To: "a@example.com"}
		smsMsg := Message{Kind: KindSMS, To: "0241234567"}
		email.On("Send", ctx, emailMsg).Return(nil).Once()
		sms.On("Send", ctx, smsMsg).Return(errors.New("gateway down")).Once()

		assert.NoError(t, r.Send(ctx, emailMsg))
		assert.EqualError(t, r.Send(ctx, smsMsg), "gateway down")

		email.AssertExpectations(t)
		sms.AssertExpectations(t)
	})

	t.Run("No recipient", func(t *testing.T) {
		r := Router{Email: new(MockSender)}
		assert.ErrorIs(t, r.Send(ctx, Message{Kind: KindEmail}), ErrNoRecipient)
	})

	t.Run("Unsupported kind", func(t *testing.T) {
		r := Router{}
		assert.ErrorIs(t, r.Send(ctx, Message{Kind: "push", To: "x"}), ErrUnsupportedKind)
	})

	t.Run("Nil sender skips", func(t *testing.T) {
		r := Router{}
		assert.NoError(t, r.Send(ctx, Message{Kind: KindSMS, To: "0241234567"}))
	})
}

func TestDiscardAndNoop(t *testing.T) {
	assert.NoError(t, Discard{}.Dispatch(context.Background(), Message{}))
	assert.NoError(t, NoopSender{}.Send(context.Background(), Message{}))
}

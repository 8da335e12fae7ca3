package notification

import (
	"context"
	"fmt"

	"cediman-be/internal/logger"

	"github.com/sendgrid/rest"
	"github.com/sendgrid/sendgrid-go"
	"github.com/sendgrid/sendgrid-go/helpers/mail"
	"go.uber.org/zap"
)

type mailClient interface {
	SendWithContext(ctx context.Context, email *mail.SGMailV3) (*rest.Response, error)
}

type sendGridSender struct {
	client    mailClient
	fromEmail string
	fromName  string
}

// NewSendGridSender returns a NoopSender when apiKey is empty so that
// unconfigured environments skip email quietly.
func NewSendGridSender(apiKey, fromEmail, fromName string) Sender {
	if apiKey == "" {
		logger.L().Warn("SendGrid API key is empty, email notifications disabled")
		return NoopSender{}
	}
	return &sendGridSender{
		client:    sendgrid.NewSendClient(apiKey),
		fromEmail: fromEmail,
		fromName:  fromName,
	}
}

func (s *sendGridSender) Send(ctx context.Context, msg Message) error {
	if msg.To == "" {
		return ErrNoRecipient
	}

	from := mail.NewEmail(s.fromName, s.fromEmail)
	to := mail.NewEmail("", msg.To)
	email := mail.NewSingleEmail(from, msg.Subject, to, msg.Text, msg.HTML)

	resp, err := s.client.SendWithContext(ctx, email)
	if err != nil {
		return fmt.Errorf("sendgrid request: %w", err)
	}
	if resp.StatusCode >= 300 {
		return fmt.Errorf("sendgrid error: status %d: %s", resp.StatusCode, resp.Body)
	}

	logger.FromCtx(ctx).Debug("email sent",
		zap.String("order_id", msg.OrderID),
		zap.Int("status", resp.StatusCode),
	)
	return nil
}

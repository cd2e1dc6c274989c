// Package email sends order confirmation messages.
package email

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sesv2"
	"github.com/aws/aws-sdk-go-v2/service/sesv2/types"

	"github.com/gagps/ecommerce-cx/common/logging"
	"github.com/gagps/ecommerce-cx/orders/internal/models"
)

const charset = "UTF-8"

// Message is a plain-text email.
type Message struct {
	To      string
	Subject string
	Body    string
}

// Sender delivers messages.
type Sender interface {
	Send(ctx context.Context, m Message) error
}

// OrderConfirmation builds the message sent for a new order.
func OrderConfirmation(ev *models.OrderEvent) Message {
	return Message{
		To:      ev.Email,
		Subject: "We received your order!",
		Body:    fmt.Sprintf("We received your order number %s, total $ %.2f.", ev.OrderID, ev.BillingTotal),
	}
}

// SESAPI is the subset of the SES v2 client used here.
type SESAPI interface {
	SendEmail(ctx context.Context, params *sesv2.SendEmailInput, optFns ...func(*sesv2.Options)) (*sesv2.SendEmailOutput, error)
}

var _ SESAPI = (*sesv2.Client)(nil)

// SESSender sends through Amazon SES.
type SESSender struct {
	client  SESAPI
	source  string
	replyTo []string
}

// NewSESSender creates a sender with source as the From address.
func NewSESSender(client SESAPI, source, replyTo string) *SESSender {
	s := &SESSender{client: client, source: source}
	if replyTo != "" {
		s.replyTo = []string{replyTo}
	}
	return s
}

func (s *SESSender) Send(ctx context.Context, m Message) error {
	_, err := s.client.SendEmail(ctx, &sesv2.SendEmailInput{
		FromEmailAddress: aws.String(s.source),
		ReplyToAddresses: s.replyTo,
		Destination:      &types.Destination{ToAddresses: []string{m.To}},
		Content: &types.EmailContent{
			Simple: &types.Message{
				Subject: &types.Content{Data: aws.String(m.Subject), Charset: aws.String(charset)},
				Body: &types.Body{
					Text: &types.Content{Data: aws.String(m.Body), Charset: aws.String(charset)},
				},
			},
		},
	})
	if err != nil {
		return fmt.Errorf("send email to %s: %w", m.To, err)
	}
	return nil
}

// LogSender only logs messages. Used when email delivery is disabled.
type LogSender struct {
	logger *slog.Logger
}

func NewLogSender() *LogSender {
	return &LogSender{logger: logging.Component("email")}
}

func (s *LogSender) Send(ctx context.Context, m Message) error {
	s.logger.InfoContext(ctx, "Email delivery disabled, message not sent",
		slog.String("to", m.To),
		slog.String("subject", m.Subject))
	return nil
}

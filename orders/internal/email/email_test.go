package email

import (
	"context"
	"errors"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sesv2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gagps/ecommerce-cx/common/messaging"
	"github.com/gagps/ecommerce-cx/orders/internal/events"
	"github.com/gagps/ecommerce-cx/orders/internal/models"
)

type fakeSES struct {
	inputs []*sesv2.SendEmailInput
	err    error
}

func (f *fakeSES) SendEmail(_ context.Context, in *sesv2.SendEmailInput, _ ...func(*sesv2.Options)) (*sesv2.SendEmailOutput, error) {
	f.inputs = append(f.inputs, in)
	if f.err != nil {
		return nil, f.err
	}
	return &sesv2.SendEmailOutput{MessageId: aws.String("m-1")}, nil
}

type capturePublisher struct {
	msgs []*messaging.Message
}

func (p *capturePublisher) Publish(ctx context.Context, subject string, data []byte) error {
	return p.PublishMsg(ctx, &messaging.Message{Subject: subject, Data: data})
}

func (p *capturePublisher) PublishMsg(_ context.Context, msg *messaging.Message) error {
	p.msgs = append(p.msgs, msg)
	return nil
}

func publish(t *testing.T, eventType string) *messaging.Message {
	t.Helper()
	pub := &capturePublisher{}
	require.NoError(t, events.NewPublisher(pub).Publish(context.Background(), eventType, &models.OrderEvent{
		Email:        "buyer@example.com",
		OrderID:      "o-1",
		BillingTotal: 14.5,
	}))
	return pub.msgs[0]
}

func TestConsumer_SendsConfirmationThroughSES(t *testing.T) {
	ses := &fakeSES{}
	c := NewConsumer(NewSESSender(ses, "orders@example.com", "support@example.com"))

	require.NoError(t, c.Handle(context.Background(), publish(t, models.EventOrderCreated)))
	require.Len(t, ses.inputs, 1)

	in := ses.inputs[0]
	assert.Equal(t, "orders@example.com", aws.ToString(in.FromEmailAddress))
	assert.Equal(t, []string{"support@example.com"}, in.ReplyToAddresses)
	assert.Equal(t, []string{"buyer@example.com"}, in.Destination.ToAddresses)
	assert.Equal(t, "We received your order!", aws.ToString(in.Content.Simple.Subject.Data))
	assert.Equal(t, "We received your order number o-1, total $ 14.50.", aws.ToString(in.Content.Simple.Body.Text.Data))
}

func TestConsumer_SkipsOtherEvents(t *testing.T) {
	ses := &fakeSES{}
	c := NewConsumer(NewSESSender(ses, "orders@example.com", ""))

	require.NoError(t, c.Handle(context.Background(), publish(t, models.EventOrderDeleted)))
	require.NoError(t, c.Handle(context.Background(), &messaging.Message{Data: []byte("garbage")}))
	assert.Empty(t, ses.inputs)
}

func TestConsumer_SendFailureIsRetried(t *testing.T) {
	ses := &fakeSES{err: errors.New("throttled")}
	c := NewConsumer(NewSESSender(ses, "orders@example.com", ""))

	err := c.Handle(context.Background(), publish(t, models.EventOrderCreated))
	assert.ErrorContains(t, err, "throttled")
	assert.Nil(t, ses.inputs[0].ReplyToAddresses)
}

func TestLogSender(t *testing.T) {
	assert.NoError(t, NewLogSender().Send(context.Background(), Message{To: "a@example.com", Subject: "s"}))
}

package notify

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/gomail.v2"
)

type fakeDialer struct {
	sent []*gomail.Message
	err  error
}

func (f *fakeDialer) DialAndSend(m ...*gomail.Message) error {
	if f.err != nil {
		return f.err
	}
	f.sent = append(f.sent, m...)
	return nil
}

func TestNewSMTPSender_NilWithoutHost(t *testing.T) {
	assert.Nil(t, NewSMTPSender(SMTPConfig{}, nil))
}

func TestSMTPSender_Send(t *testing.T) {
	sender := NewSMTPSender(SMTPConfig{Host: "smtp.example.com", Port: 587, FromEmail: "team@example.com"}, nil)
	require.NotNil(t, sender)
	dialer := &fakeDialer{}
	sender.dialer = dialer

	err := sender.Send(context.Background(), EmailMessage{To: "jane@example.com", ToName: "Jane", Subject: "Hello", Body: "text", HTML: "<p>text</p>"})
	require.NoError(t, err)
	require.Len(t, dialer.sent, 1)
	assert.Equal(t, []string{"Hello"}, dialer.sent[0].GetHeader("Subject"))
}

func TestSMTPSender_Send_DialError(t *testing.T) {
	sender := NewSMTPSender(SMTPConfig{Host: "smtp.example.com", FromEmail: "team@example.com"}, nil)
	sender.dialer = &fakeDialer{err: errors.New("connection refused")}

	err := sender.Send(context.Background(), EmailMessage{To: "jane@example.com"})
	assert.ErrorContains(t, err, "connection refused")
}

func TestSMTPSender_Send_CancelledContext(t *testing.T) {
	sender := NewSMTPSender(SMTPConfig{Host: "smtp.example.com", FromEmail: "team@example.com"}, nil)
	dialer := &fakeDialer{}
	sender.dialer = dialer

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := sender.Send(ctx, EmailMessage{To: "jane@example.com"})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, dialer.sent)
}

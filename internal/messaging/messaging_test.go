package messaging

import (
	"context"
	"errors"
	"testing"

	"github.com/BTreeMap/ClinicIntake/internal/models"
	"github.com/BTreeMap/ClinicIntake/internal/twiliosms"
	"github.com/sendgrid/rest"
	sgmail "github.com/sendgrid/sendgrid-go/helpers/mail"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSMSService_Canonicalize(t *testing.T) {
	svc := NewSMSService(twiliosms.NewMockClient())
	cases := []struct {
		in, want string
		ok       bool
	}{
		{"(555) 123-4567", "+15551234567", true},
		{"+1 555 123 4567", "+15551234567", true},
		{"+44 20 7946 0958", "+442079460958", true},
		{"555-1234", "", false},
		{"   ", "", false},
	}
	for _, c := range cases {
		got, err := svc.ValidateAndCanonicalizeRecipient(c.in)
		if c.ok {
			require.NoError(t, err, c.in)
			assert.Equal(t, c.want, got, c.in)
		} else {
			assert.ErrorIs(t, err, ErrInvalidRecipient, c.in)
		}
	}
}

func TestSMSService_SendMessage(t *testing.T) {
	mock := twiliosms.NewMockClient()
	svc := NewSMSService(mock)
	assert.Equal(t, models.ChannelSMS, svc.Channel())

	require.NoError(t, svc.SendMessage(context.Background(), "+15551234567", Message{Subject: "ignored", Text: "code 123456"}))
	msgs := mock.Messages()
	require.Len(t, msgs, 1)
	assert.Equal(t, "code 123456", msgs[0].Body)

	mock.Err = errors.New("carrier down")
	assert.Error(t, svc.SendMessage(context.Background(), "+15551234567", Message{Text: "x"}))
}

type fakeMailClient struct {
	status int
	err    error
	sent   []*sgmail.SGMailV3
}

func (f *fakeMailClient) SendWithContext(ctx context.Context, email *sgmail.SGMailV3) (*rest.Response, error) {
	f.sent = append(f.sent, email)
	if f.err != nil {
		return nil, f.err
	}
	return &rest.Response{StatusCode: f.status}, nil
}

func TestEmailService_SendMessage(t *testing.T) {
	fake := &fakeMailClient{status: 202}
	svc := newEmailService(fake, "clinic@example.com", "Clinic")
	assert.Equal(t, models.ChannelEmail, svc.Channel())

	err := svc.SendMessage(context.Background(), "patient@example.com", Message{Subject: "Your code", Text: "123456"})
	require.NoError(t, err)
	require.Len(t, fake.sent, 1)
	assert.Equal(t, "Your code", fake.sent[0].Subject)
	assert.Equal(t, "clinic@example.com", fake.sent[0].From.Address)

	fake.status = 401
	assert.Error(t, svc.SendMessage(context.Background(), "patient@example.com", Message{Text: "x"}))

	fake.err = errors.New("network")
	assert.Error(t, svc.SendMessage(context.Background(), "patient@example.com", Message{Text: "x"}))
}

func TestEmailService_Canonicalize(t *testing.T) {
	svc := newEmailService(&fakeMailClient{}, "clinic@example.com", "")
	got, err := svc.ValidateAndCanonicalizeRecipient("  Patient@Example.COM ")
	require.NoError(t, err)
	assert.Equal(t, "patient@example.com", got)

	for _, bad := range []string{"", "not-an-email", "a@b", "Bob <bob@example.com>"} {
		_, err := svc.ValidateAndCanonicalizeRecipient(bad)
		assert.ErrorIs(t, err, ErrInvalidRecipient, bad)
	}
}

func TestNewEmailServiceRequiresKey(t *testing.T) {
	t.Setenv("SENDGRID_API_KEY", "")
	t.Setenv("EMAIL_FROM_ADDRESS", "")
	_, err := NewEmailService()
	assert.Error(t, err)
	_, err = NewEmailService(WithSendGridAPIKey("SG.x"))
	assert.Error(t, err)
	_, err = NewEmailService(WithSendGridAPIKey("SG.x"), WithFromAddress("clinic@example.com"), WithFromName("Clinic"))
	assert.NoError(t, err)
}

package twiliosms

import (
	"context"
	"errors"
	"testing"
)

func TestMockClient_SendSMS(t *testing.T) {
	ctx := context.Background()
	mock := NewMockClient()

	if err := mock.SendSMS(ctx, "+15551234567", "Your code is 123456"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	msgs := mock.Messages()
	if len(msgs) != 1 {
		t.Fatalf("expected 1 message, got %d", len(msgs))
	}
	if msgs[0].To != "+15551234567" || msgs[0].Body != "Your code is 123456" {
		t.Errorf("unexpected message %#v", msgs[0])
	}
}

func TestMockClient_Err(t *testing.T) {
	mock := NewMockClient()
	mock.Err = errors.New("carrier rejected")
	if err := mock.SendSMS(context.Background(), "+1", "x"); err == nil {
		t.Fatal("expected error")
	}
	if len(mock.Messages()) != 0 {
		t.Error("failed sends must not be recorded")
	}
}

func TestNewClientRequiresCredentials(t *testing.T) {
	t.Setenv("TWILIO_ACCOUNT_SID", "")
	t.Setenv("TWILIO_AUTH_TOKEN", "")
	t.Setenv("TWILIO_FROM_NUMBER", "")
	if _, err := NewClient(); err == nil {
		t.Error("expected error without credentials")
	}
	if _, err := NewClient(WithAccountSID("AC1"), WithAuthToken("tok")); err == nil {
		t.Error("expected error without from number")
	}
	if _, err := NewClient(WithAccountSID("AC1"), WithAuthToken("tok"), WithFromNumber("+15550001111")); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
}

package messaging

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"strings"

	"github.com/BTreeMap/ClinicIntake/internal/models"
	"github.com/BTreeMap/ClinicIntake/internal/twiliosms"
)

var nonDigits = regexp.MustCompile(`\D`)

// SMSService implements Service over a Twilio SMS sender.
type SMSService struct {
	client twiliosms.Sender
}

var _ Service = (*SMSService)(nil)

// NewSMSService creates an SMSService around client, which may be a real Twilio
// client or a mock.
func NewSMSService(client twiliosms.Sender) *SMSService {
	return &SMSService{client: client}
}

func (s *SMSService) Channel() models.Channel { return models.ChannelSMS }

// ValidateAndCanonicalizeRecipient strips formatting and returns an E.164 number.
// Ten-digit numbers are taken as North American and get a +1 prefix.
func (s *SMSService) ValidateAndCanonicalizeRecipient(recipient string) (string, error) {
	recipient = strings.TrimSpace(recipient)
	if recipient == "" {
		return "", fmt.Errorf("%w: phone number cannot be empty", ErrInvalidRecipient)
	}
	digits := nonDigits.ReplaceAllString(recipient, "")
	if len(digits) < models.MinPhoneDigits {
		return "", fmt.Errorf("%w: %w", ErrInvalidRecipient, models.ErrInvalidPhone)
	}
	canonical := "+" + digits
	if len(digits) == models.MinPhoneDigits && !strings.HasPrefix(recipient, "+") {
		canonical = "+1" + digits
	}
	if canonical != recipient {
		slog.Debug("SMSService canonicalized recipient", "digits", len(digits))
	}
	return canonical, nil
}

func (s *SMSService) SendMessage(ctx context.Context, to string, msg Message) error {
	if err := s.client.SendSMS(ctx, to, msg.Text); err != nil {
		return fmt.Errorf("sms delivery failed: %w", err)
	}
	return nil
}

package messaging

import (
	"context"
	"fmt"
	"log/slog"
	"net/mail"
	"os"
	"strings"

	"github.com/BTreeMap/ClinicIntake/internal/models"
	"github.com/sendgrid/rest"
	"github.com/sendgrid/sendgrid-go"
	sgmail "github.com/sendgrid/sendgrid-go/helpers/mail"
)

// mailClient is the subset of the SendGrid client EmailService needs.
type mailClient interface {
	SendWithContext(ctx context.Context, email *sgmail.SGMailV3) (*rest.Response, error)
}

// EmailOpts holds configuration options for the email service.
type EmailOpts struct {
	APIKey   string
	FromAddr string
	FromName string
}

// EmailOption defines a configuration option for the email service.
type EmailOption func(*EmailOpts)

// WithSendGridAPIKey sets the SendGrid API key.
func WithSendGridAPIKey(key string) EmailOption {
	return func(o *EmailOpts) { o.APIKey = key }
}

// WithFromAddress sets the sender address.
func WithFromAddress(addr string) EmailOption {
	return func(o *EmailOpts) { o.FromAddr = addr }
}

// WithFromName sets the sender display name.
func WithFromName(name string) EmailOption {
	return func(o *EmailOpts) { o.FromName = name }
}

// EmailService implements Service using SendGrid.
type EmailService struct {
	client mailClient
	from   *sgmail.Email
}

var _ Service = (*EmailService)(nil)

// NewEmailService builds a SendGrid-backed email service. Missing options fall
// back to SENDGRID_API_KEY, EMAIL_FROM_ADDRESS and EMAIL_FROM_NAME.
func NewEmailService(opts ...EmailOption) (*EmailService, error) {
	var cfg EmailOpts
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.APIKey == "" {
		cfg.APIKey = os.Getenv("SENDGRID_API_KEY")
	}
	if cfg.FromAddr == "" {
		cfg.FromAddr = os.Getenv("EMAIL_FROM_ADDRESS")
	}
	if cfg.FromName == "" {
		cfg.FromName = os.Getenv("EMAIL_FROM_NAME")
	}
	slog.Debug("SendGrid config loaded", "APIKey_set", cfg.APIKey != "", "FromAddr_set", cfg.FromAddr != "")
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("sendgrid API key must be provided")
	}
	if cfg.FromAddr == "" {
		return nil, fmt.Errorf("sender address must be provided")
	}
	return newEmailService(sendgrid.NewSendClient(cfg.APIKey), cfg.FromAddr, cfg.FromName), nil
}

func newEmailService(client mailClient, fromAddr, fromName string) *EmailService {
	return &EmailService{client: client, from: sgmail.NewEmail(fromName, fromAddr)}
}

func (s *EmailService) Channel() models.Channel { return models.ChannelEmail }

// ValidateAndCanonicalizeRecipient checks the address parses and lowercases it.
func (s *EmailService) ValidateAndCanonicalizeRecipient(recipient string) (string, error) {
	recipient = strings.TrimSpace(recipient)
	if recipient == "" {
		return "", fmt.Errorf("%w: email cannot be empty", ErrInvalidRecipient)
	}
	addr, err := mail.ParseAddress(recipient)
	if err != nil || addr.Name != "" || !strings.Contains(addr.Address, ".") {
		return "", fmt.Errorf("%w: %w", ErrInvalidRecipient, models.ErrInvalidEmail)
	}
	return strings.ToLower(addr.Address), nil
}

func (s *EmailService) SendMessage(ctx context.Context, to string, msg Message) error {
	html := msg.HTML
	if html == "" {
		html = "<p>" + strings.ReplaceAll(msg.Text, "\n", "<br>") + "</p>"
	}
	email := sgmail.NewSingleEmail(s.from, msg.Subject, sgmail.NewEmail("", to), msg.Text, html)
	resp, err := s.client.SendWithContext(ctx, email)
	if err != nil {
		slog.Error("EmailService.SendMessage failed", "error", err)
		return fmt.Errorf("email delivery failed: %w", err)
	}
	if resp.StatusCode >= 300 {
		slog.Error("EmailService.SendMessage rejected", "status", resp.StatusCode)
		return fmt.Errorf("email delivery failed: sendgrid returned status %d", resp.StatusCode)
	}
	slog.Debug("EmailService.SendMessage succeeded", "status", resp.StatusCode)
	return nil
}

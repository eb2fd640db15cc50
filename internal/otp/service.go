package otp

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/BTreeMap/ClinicIntake/internal/messaging"
	"github.com/BTreeMap/ClinicIntake/internal/models"
	"github.com/BTreeMap/ClinicIntake/internal/util"
)

// ReceiptRecorder persists one receipt per delivery attempt.
type ReceiptRecorder interface {
	AddReceipt(r models.Receipt) error
}

// Challenge is one issued code and where it was sent.
type Challenge struct {
	Code        string
	IssuedTo    models.SendCodeRequest
	DeliveredAt time.Time
}

// IssueResult reports per-channel delivery outcomes.
type IssueResult struct {
	Delivered      []models.Channel `json:"delivered"`
	FailedChannels []models.Channel `json:"failed_channels,omitempty"`
}

// Opts holds configuration options for the OTP service.
type Opts struct {
	SMS         messaging.Service
	Email       messaging.Service
	Credentials CredentialStore
	Receipts    ReceiptRecorder
	ClinicName  string
	TTL         time.Duration
}

// Option defines a configuration option for the OTP service.
type Option func(*Opts)

// WithSMS sets the SMS delivery channel.
func WithSMS(s messaging.Service) Option {
	return func(o *Opts) { o.SMS = s }
}

// WithEmail sets the email delivery channel.
func WithEmail(s messaging.Service) Option {
	return func(o *Opts) { o.Email = s }
}

// WithCredentialStore overrides the default cookie credential store.
func WithCredentialStore(c CredentialStore) Option {
	return func(o *Opts) { o.Credentials = c }
}

// WithReceipts records a receipt for every delivery attempt.
func WithReceipts(r ReceiptRecorder) Option {
	return func(o *Opts) { o.Receipts = r }
}

// WithClinicName sets the name used in message text.
func WithClinicName(name string) Option {
	return func(o *Opts) { o.ClinicName = name }
}

// WithTTL sets the validity window quoted in message text and used by the
// default credential store.
func WithTTL(ttl time.Duration) Option {
	return func(o *Opts) { o.TTL = ttl }
}

// Service issues and verifies codes.
type Service struct {
	sms        messaging.Service
	email      messaging.Service
	creds      CredentialStore
	receipts   ReceiptRecorder
	clinicName string
	ttl        time.Duration
}

// NewService builds a Service. Unset channels are treated as unavailable.
func NewService(opts ...Option) *Service {
	cfg := Opts{ClinicName: "the clinic", TTL: DefaultTTL}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.TTL <= 0 {
		cfg.TTL = DefaultTTL
	}
	if cfg.Credentials == nil {
		cfg.Credentials = NewCookieStore(cfg.TTL, false)
	}
	slog.Debug("otp.NewService", "sms_set", cfg.SMS != nil, "email_set", cfg.Email != nil, "ttl", cfg.TTL)
	return &Service{
		sms:        cfg.SMS,
		email:      cfg.Email,
		creds:      cfg.Credentials,
		receipts:   cfg.Receipts,
		clinicName: cfg.ClinicName,
		ttl:        cfg.TTL,
	}
}

// Issue generates a code, sends it to every supplied destination and, once at
// least one delivery succeeded, stores the credential on w. Channels are
// independent: one failing does not stop the other.
func (s *Service) Issue(ctx context.Context, w http.ResponseWriter, r *http.Request, req models.SendCodeRequest) (*IssueResult, error) {
	req.Normalize()
	if err := req.Validate(); err != nil {
		return nil, ErrNoDestination
	}

	code, err := util.GenerateNumericCode(models.OTPCodeLength)
	if err != nil {
		return nil, fmt.Errorf("generate code: %w", err)
	}
	ch := Challenge{Code: code, IssuedTo: req}

	result := &IssueResult{}
	if req.Phone != "" {
		s.deliver(ctx, s.sms, models.ChannelSMS, req.Phone, s.smsMessage(code), result)
	}
	if req.Email != "" {
		s.deliver(ctx, s.email, models.ChannelEmail, req.Email, s.emailMessage(code), result)
	}
	if len(result.Delivered) == 0 {
		slog.Warn("otp.Service.Issue: every channel failed", "failed", result.FailedChannels)
		return result, ErrDeliveryFailed
	}
	ch.DeliveredAt = time.Now()

	if err := s.creds.Save(w, r, ch.Code); err != nil {
		return result, fmt.Errorf("store credential: %w", err)
	}
	slog.Info("otp.Service.Issue: code issued", "delivered", result.Delivered, "failed", result.FailedChannels)
	return result, nil
}

func (s *Service) deliver(ctx context.Context, svc messaging.Service, channel models.Channel, to string, msg messaging.Message, result *IssueResult) {
	status := models.MessageStatusFailed
	recipient := to
	defer func() {
		if status == models.MessageStatusSent {
			result.Delivered = append(result.Delivered, channel)
		} else {
			result.FailedChannels = append(result.FailedChannels, channel)
		}
		s.recordReceipt(recipient, channel, status)
	}()

	if svc == nil {
		slog.Warn("otp.Service.deliver: channel not configured", "channel", channel)
		return
	}
	canonical, err := svc.ValidateAndCanonicalizeRecipient(to)
	if err != nil {
		slog.Warn("otp.Service.deliver: invalid recipient", "channel", channel, "error", err)
		return
	}
	recipient = canonical
	if err := svc.SendMessage(ctx, canonical, msg); err != nil {
		slog.Error("otp.Service.deliver: send failed", "channel", channel, "error", err)
		return
	}
	status = models.MessageStatusSent
}

func (s *Service) recordReceipt(to string, channel models.Channel, status models.MessageStatus) {
	if s.receipts == nil {
		return
	}
	r := models.Receipt{To: to, Channel: channel, Kind: models.ReceiptKindOTP, Status: status, Time: time.Now().Unix()}
	if err := s.receipts.AddReceipt(r); err != nil {
		slog.Error("otp.Service.recordReceipt failed", "channel", channel, "error", err)
	}
}

func (s *Service) smsMessage(code string) messaging.Message {
	return messaging.Message{
		Text: fmt.Sprintf("Your %s verification code is %s. It expires in %d minutes.", s.clinicName, code, s.ttlMinutes()),
	}
}

func (s *Service) emailMessage(code string) messaging.Message {
	mins := s.ttlMinutes()
	return messaging.Message{
		Subject: "Your verification code",
		Text:    fmt.Sprintf("Your %s verification code is %s.\nIt expires in %d minutes.", s.clinicName, code, mins),
		HTML:    fmt.Sprintf("<p>Your %s verification code is <strong>%s</strong>.</p><p>It expires in %d minutes.</p>", s.clinicName, code, mins),
	}
}

func (s *Service) ttlMinutes() int {
	m := int(s.ttl / time.Minute)
	if m < 1 {
		m = 1
	}
	return m
}

// Verify checks a submitted code. On success the credential is consumed.
func (s *Service) Verify(w http.ResponseWriter, r *http.Request, req models.VerifyCodeRequest) error {
	if err := req.Validate(); err != nil {
		return err
	}
	return s.creds.Verify(w, r, req.OTP)
}

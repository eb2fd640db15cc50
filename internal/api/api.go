// Package api provides HTTP handlers and the main API server logic for ClinicIntake.
//
// It exposes the verification-code endpoints used by the intake wizard, the
// final submission endpoint, and read-only endpoints for clinic staff. The API
// integrates with the otp, messaging, genai, and store modules.
package api

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/BTreeMap/ClinicIntake/internal/genai"
	"github.com/BTreeMap/ClinicIntake/internal/messaging"
	"github.com/BTreeMap/ClinicIntake/internal/otp"
	"github.com/BTreeMap/ClinicIntake/internal/store"
	"github.com/BTreeMap/ClinicIntake/internal/twiliosms"
)

// Default configuration constants
const (
	// DefaultAddr is the listen address when none is configured.
	DefaultAddr = ":8080"
	// DefaultClinicName appears in verification messages.
	DefaultClinicName = "the clinic"
	// DefaultOutboxPollInterval is how often queued staff notices are retried.
	DefaultOutboxPollInterval = 5 * time.Second
	// DefaultShutdownTimeout bounds graceful shutdown.
	DefaultShutdownTimeout = 10 * time.Second
	// MaxRequestBodyBytes caps every JSON request body.
	MaxRequestBodyBytes = 1 << 20
	// DefaultMaintenanceSchedule runs the daily purge of old idempotency keys.
	DefaultMaintenanceSchedule = "17 3 * * *"
	// DefaultSubmissionKeyRetention is how long a retried submission is recognised.
	DefaultSubmissionKeyRetention = 30 * 24 * time.Hour
	// OutboxRequeueSchedule is how often stuck staff notices are requeued.
	OutboxRequeueSchedule = "@every 5m"
)

// Credential modes for the verification code.
const (
	CredentialModeCookie = "cookie"
	CredentialModeServer = "server"
)

// Backend is everything the server persists.
type Backend interface {
	store.Store
	store.DedupRepo
	store.OutboxRepo
}

// Opts holds configuration options for the API server.
type Opts struct {
	Addr               string
	CredentialMode     string
	CookieSecure       bool
	OTPTTL             time.Duration
	ClinicName         string
	StaffEmail         string
	OutboxPollInterval time.Duration

	MaintenanceSchedule    string
	SubmissionKeyRetention time.Duration
}

// Option defines a configuration option for the API server.
type Option func(*Opts)

// WithAddr sets the listen address.
func WithAddr(addr string) Option {
	return func(o *Opts) { o.Addr = addr }
}

// WithCredentialMode selects where issued codes are kept: "cookie" or "server".
func WithCredentialMode(mode string) Option {
	return func(o *Opts) { o.CredentialMode = mode }
}

// WithCookieSecure marks credential cookies Secure.
func WithCookieSecure(secure bool) Option {
	return func(o *Opts) { o.CookieSecure = secure }
}

// WithOTPTTL sets how long an issued code stays valid.
func WithOTPTTL(ttl time.Duration) Option {
	return func(o *Opts) { o.OTPTTL = ttl }
}

// WithClinicName sets the name used in verification messages.
func WithClinicName(name string) Option {
	return func(o *Opts) { o.ClinicName = name }
}

// WithStaffEmail enables staff notifications to addr on every submission.
func WithStaffEmail(addr string) Option {
	return func(o *Opts) { o.StaffEmail = addr }
}

// WithOutboxPollInterval sets how often the staff notice outbox is polled.
func WithOutboxPollInterval(d time.Duration) Option {
	return func(o *Opts) { o.OutboxPollInterval = d }
}

// WithMaintenanceSchedule sets the cron schedule of the idempotency key purge.
func WithMaintenanceSchedule(expr string) Option {
	return func(o *Opts) { o.MaintenanceSchedule = expr }
}

// WithSubmissionKeyRetention sets how long idempotency keys are kept.
func WithSubmissionKeyRetention(d time.Duration) Option {
	return func(o *Opts) { o.SubmissionKeyRetention = d }
}

func applyDefaults(cfg *Opts) {
	if cfg.Addr == "" {
		cfg.Addr = DefaultAddr
	}
	if cfg.CredentialMode == "" {
		cfg.CredentialMode = CredentialModeCookie
	}
	if cfg.OTPTTL <= 0 {
		cfg.OTPTTL = otp.DefaultTTL
	}
	if cfg.ClinicName == "" {
		cfg.ClinicName = DefaultClinicName
	}
	if cfg.OutboxPollInterval <= 0 {
		cfg.OutboxPollInterval = DefaultOutboxPollInterval
	}
	if cfg.MaintenanceSchedule == "" {
		cfg.MaintenanceSchedule = DefaultMaintenanceSchedule
	}
	if cfg.SubmissionKeyRetention <= 0 {
		cfg.SubmissionKeyRetention = DefaultSubmissionKeyRetention
	}
}

// Server holds all dependencies of the HTTP handlers.
type Server struct {
	st         Backend
	otp        *otp.Service
	addr       string
	staffEmail string
	mux        *http.ServeMux
}

// NewServer wires handlers around st and otpSvc.
func NewServer(st Backend, otpSvc *otp.Service, opts ...Option) *Server {
	cfg := Opts{}
	for _, opt := range opts {
		opt(&cfg)
	}
	applyDefaults(&cfg)

	s := &Server{
		st:         st,
		otp:        otpSvc,
		addr:       cfg.Addr,
		staffEmail: cfg.StaffEmail,
		mux:        http.NewServeMux(),
	}
	s.routes()
	return s
}

func (s *Server) routes() {
	s.mux.HandleFunc(otp.PathSendCode, s.sendCodeHandler)
	s.mux.HandleFunc(otp.PathVerifyCode, s.verifyCodeHandler)
	s.mux.HandleFunc(PathSubmitForm, s.submitFormHandler)
	s.mux.HandleFunc("/api/submissions", s.submissionsHandler)
	s.mux.HandleFunc("/api/submissions/", s.submissionsHandler)
	s.mux.HandleFunc("/api/receipts", s.receiptsHandler)
	s.mux.HandleFunc("/health", s.healthHandler)
}

// Handler returns the root HTTP handler.
func (s *Server) Handler() http.Handler { return s.mux }

// Serve listens on the configured address until ctx is cancelled, then shuts
// down gracefully.
func (s *Server) Serve(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.addr,
		Handler:           s.mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), DefaultShutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			slog.Error("Server.Serve: shutdown failed", "error", err)
		}
	}()

	slog.Info("ClinicIntake API running", "addr", s.addr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("listen on %s: %w", s.addr, err)
	}
	slog.Info("ClinicIntake API stopped")
	return nil
}

// OpenBackend opens PostgreSQL or SQLite from storeOpts, or an in-memory
// store when no DSN is configured.
func OpenBackend(storeOpts []store.Option) (Backend, error) {
	var cfg store.Opts
	for _, opt := range storeOpts {
		opt(&cfg)
	}
	switch {
	case cfg.DSN == "":
		slog.Warn("OpenBackend: no DSN configured, using in-memory store")
		return store.NewInMemoryStore(), nil
	case store.DetectDSNType(cfg.DSN) == "postgres":
		return store.NewPostgresStore(storeOpts...)
	default:
		return store.NewSQLiteStore(storeOpts...)
	}
}

// Run bootstraps storage, delivery channels, the staff notice outbox, and the
// HTTP server, then serves until SIGINT or SIGTERM.
func Run(storeOpts []store.Option, smsOpts []twiliosms.Option, emailOpts []messaging.EmailOption, genaiOpts []genai.Option, apiOpts []Option) error {
	cfg := Opts{}
	for _, opt := range apiOpts {
		opt(&cfg)
	}
	applyDefaults(&cfg)

	st, err := OpenBackend(storeOpts)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer st.Close()

	var sms, email messaging.Service
	if client, err := twiliosms.NewClient(smsOpts...); err != nil {
		slog.Warn("Run: SMS delivery disabled", "error", err)
	} else {
		sms = messaging.NewSMSService(client)
	}
	if svc, err := messaging.NewEmailService(emailOpts...); err != nil {
		slog.Warn("Run: email delivery disabled", "error", err)
	} else {
		email = svc
	}
	if sms == nil && email == nil {
		slog.Warn("Run: no delivery channel configured, every verification code will fail to send")
	}

	var summarizer Summarizer
	if gen, err := genai.NewClient(genaiOpts...); err != nil {
		slog.Info("Run: intake summaries disabled", "error", err)
	} else {
		summarizer = gen
	}

	otpSvc := otp.NewService(
		otp.WithSMS(sms),
		otp.WithEmail(email),
		otp.WithReceipts(st),
		otp.WithClinicName(cfg.ClinicName),
		otp.WithTTL(cfg.OTPTTL),
		otp.WithCredentialStore(newCredentialStore(cfg)),
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var sender *store.OutboxSender
	if cfg.StaffEmail != "" {
		if email == nil {
			slog.Warn("Run: STAFF_NOTIFY_EMAIL set but email is not configured, notices will retry until abandoned")
		}
		notifier := NewStaffNotifier(st, email, cfg.StaffEmail, summarizer)
		sender = store.NewOutboxSender(st, notifier.Send, cfg.OutboxPollInterval)
	}

	if err := newRecoveryManager(st, sender, cfg).RecoverAll(ctx); err != nil {
		slog.Error("Run: startup recovery incomplete", "error", err)
	}
	sched, err := startMaintenance(ctx, st, sender, cfg)
	if err != nil {
		return err
	}
	defer sched.Stop()

	if sender != nil {
		go sender.Run(ctx)
	}

	server := NewServer(st, otpSvc, apiOpts...)
	return server.Serve(ctx)
}

func newCredentialStore(cfg Opts) otp.CredentialStore {
	if cfg.CredentialMode == CredentialModeServer {
		slog.Debug("newCredentialStore: keeping codes server-side")
		return otp.NewServerStore(cfg.OTPTTL, cfg.CookieSecure)
	}
	return otp.NewCookieStore(cfg.OTPTTL, cfg.CookieSecure)
}

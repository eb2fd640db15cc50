package main

import (
	"flag"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/BTreeMap/ClinicIntake/internal/api"
	"github.com/BTreeMap/ClinicIntake/internal/genai"
	"github.com/BTreeMap/ClinicIntake/internal/messaging"
	"github.com/BTreeMap/ClinicIntake/internal/otp"
	"github.com/BTreeMap/ClinicIntake/internal/scheduler"
	"github.com/BTreeMap/ClinicIntake/internal/store"
	"github.com/BTreeMap/ClinicIntake/internal/twiliosms"
	"github.com/BTreeMap/ClinicIntake/internal/util"
	"github.com/joho/godotenv"
)

// Default configuration constants
const (
	// DefaultStateDir is the default directory for ClinicIntake state data
	DefaultStateDir = "/var/lib/clinicintake"
	// DefaultDBFileName is the default SQLite database filename
	DefaultDBFileName = "clinicintake.db"
)

func main() {
	// Initialize structured logger
	initializeLogger()

	// Load environment configuration
	config := loadEnvironmentConfig()

	// Parse command line flags
	flags := parseCommandLineFlags(flag.CommandLine, os.Args[1:], config)

	// Ensure required directories exist
	if err := ensureDirectoriesExist(flags); err != nil {
		slog.Error("Failed to create required directories", "error", err)
		os.Exit(1)
	}

	// Build module options
	storeOpts := buildStoreOptions(flags)
	smsOpts := buildSMSOptions(flags)
	emailOpts := buildEmailOptions(flags)
	genaiOpts := buildGenAIOptions(flags)
	apiOpts := buildAPIOptions(flags)

	// Start the service
	slog.Info("Bootstrapping ClinicIntake with configured modules")
	slog.Debug("Module options counts", "store", len(storeOpts), "sms", len(smsOpts), "email", len(emailOpts), "genai", len(genaiOpts), "api", len(apiOpts))
	slog.Debug("Final configuration", "state_dir", *flags.stateDir, "dsn_set", *flags.dbDSN != "", "api_addr", *flags.apiAddr)
	if err := api.Run(storeOpts, smsOpts, emailOpts, genaiOpts, apiOpts); err != nil {
		slog.Error("ClinicIntake failed to run", "error", err)
		os.Exit(1)
	}
	slog.Info("ClinicIntake exited successfully")
}

// Config holds environment configuration
type Config struct {
	DatabaseURL    string
	StateDir       string
	APIAddr        string
	TwilioSID      string
	TwilioToken    string
	TwilioFrom     string
	SendGridKey    string
	EmailFrom      string
	EmailFromName  string
	StaffEmail     string
	OpenAIKey      string
	ClinicName     string
	CredentialMode string
	CookieSecure   bool
	OTPTTL         time.Duration
	Maintenance    string
	KeyRetention   time.Duration
}

// Flags holds command line flag values
type Flags struct {
	stateDir       *string
	dbDSN          *string
	apiAddr        *string
	twilioSID      *string
	twilioToken    *string
	twilioFrom     *string
	sendgridKey    *string
	emailFrom      *string
	emailFromName  *string
	staffEmail     *string
	openaiKey      *string
	clinicName     *string
	credentialMode *string
	cookieSecure   *bool
	otpTTL         *time.Duration
	maintenance    *string
	keyRetention   *time.Duration
}

// initializeLogger sets up structured logging with debug level
func initializeLogger() {
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug}))
	slog.SetDefault(logger)
}

// loadEnvironmentConfig loads configuration from environment variables and .env file
func loadEnvironmentConfig() Config {
	if err := godotenv.Load(); err != nil {
		slog.Debug("failed to load .env file", "error", err)
	} else {
		slog.Debug("successfully loaded .env file")
	}

	config := Config{
		DatabaseURL:    os.Getenv("DATABASE_URL"),
		StateDir:       os.Getenv("INTAKE_STATE_DIR"),
		APIAddr:        os.Getenv("API_ADDR"),
		TwilioSID:      os.Getenv("TWILIO_ACCOUNT_SID"),
		TwilioToken:    os.Getenv("TWILIO_AUTH_TOKEN"),
		TwilioFrom:     os.Getenv("TWILIO_FROM_NUMBER"),
		SendGridKey:    os.Getenv("SENDGRID_API_KEY"),
		EmailFrom:      os.Getenv("EMAIL_FROM_ADDRESS"),
		EmailFromName:  os.Getenv("EMAIL_FROM_NAME"),
		StaffEmail:     os.Getenv("STAFF_NOTIFY_EMAIL"),
		OpenAIKey:      os.Getenv("OPENAI_API_KEY"),
		ClinicName:     os.Getenv("CLINIC_NAME"),
		CredentialMode: os.Getenv("OTP_CREDENTIAL_MODE"),
		CookieSecure:   util.ParseBoolEnv("OTP_COOKIE_SECURE", true),
		OTPTTL:         util.ParseDurationEnv("OTP_TTL", otp.DefaultTTL),
		Maintenance:    os.Getenv("MAINTENANCE_SCHEDULE"),
		KeyRetention:   util.ParseDurationEnv("SUBMISSION_KEY_RETENTION", api.DefaultSubmissionKeyRetention),
	}

	// Set default state directory if not specified
	if config.StateDir == "" {
		config.StateDir = DefaultStateDir
		slog.Debug("No INTAKE_STATE_DIR set, using default", "default_state_dir", config.StateDir)
	} else {
		slog.Debug("INTAKE_STATE_DIR found in environment", "state_dir", config.StateDir)
	}

	// If no database URL is provided, default to SQLite in the state directory
	if config.DatabaseURL == "" {
		config.DatabaseURL = filepath.Join(config.StateDir, DefaultDBFileName)
		slog.Debug("No DATABASE_URL provided, defaulting to SQLite", "sqlite_path", config.DatabaseURL)
	}

	slog.Debug("environment variables loaded",
		"DATABASE_URL_SET", config.DatabaseURL != "",
		"INTAKE_STATE_DIR", config.StateDir,
		"API_ADDR", config.APIAddr,
		"TWILIO_ACCOUNT_SID_SET", config.TwilioSID != "",
		"TWILIO_AUTH_TOKEN_SET", config.TwilioToken != "",
		"TWILIO_FROM_NUMBER", config.TwilioFrom,
		"SENDGRID_API_KEY_SET", config.SendGridKey != "",
		"EMAIL_FROM_ADDRESS", config.EmailFrom,
		"STAFF_NOTIFY_EMAIL_SET", config.StaffEmail != "",
		"OPENAI_API_KEY_SET", config.OpenAIKey != "",
		"OTP_CREDENTIAL_MODE", config.CredentialMode,
		"OTP_COOKIE_SECURE", config.CookieSecure,
		"OTP_TTL", config.OTPTTL,
		"MAINTENANCE_SCHEDULE", config.Maintenance,
		"SUBMISSION_KEY_RETENTION", config.KeyRetention)

	return config
}

// parseCommandLineFlags parses command line arguments with environment defaults
func parseCommandLineFlags(fs *flag.FlagSet, args []string, config Config) Flags {
	flags := Flags{
		stateDir:       fs.String("state-dir", config.StateDir, "state directory for ClinicIntake data (overrides $INTAKE_STATE_DIR)"),
		dbDSN:          fs.String("db-dsn", config.DatabaseURL, "database DSN, a SQLite path or PostgreSQL URL (overrides $DATABASE_URL)"),
		apiAddr:        fs.String("api-addr", config.APIAddr, "API server address (overrides $API_ADDR)"),
		twilioSID:      fs.String("twilio-account-sid", config.TwilioSID, "Twilio account SID (overrides $TWILIO_ACCOUNT_SID)"),
		twilioToken:    fs.String("twilio-auth-token", config.TwilioToken, "Twilio auth token (overrides $TWILIO_AUTH_TOKEN)"),
		twilioFrom:     fs.String("twilio-from", config.TwilioFrom, "Twilio sender number (overrides $TWILIO_FROM_NUMBER)"),
		sendgridKey:    fs.String("sendgrid-api-key", config.SendGridKey, "SendGrid API key (overrides $SENDGRID_API_KEY)"),
		emailFrom:      fs.String("email-from", config.EmailFrom, "sender address for email (overrides $EMAIL_FROM_ADDRESS)"),
		emailFromName:  fs.String("email-from-name", config.EmailFromName, "sender name for email (overrides $EMAIL_FROM_NAME)"),
		staffEmail:     fs.String("staff-email", config.StaffEmail, "address notified of every submission (overrides $STAFF_NOTIFY_EMAIL)"),
		openaiKey:      fs.String("openai-api-key", config.OpenAIKey, "OpenAI API key for intake summaries (overrides $OPENAI_API_KEY)"),
		clinicName:     fs.String("clinic-name", config.ClinicName, "clinic name used in verification messages (overrides $CLINIC_NAME)"),
		credentialMode: fs.String("otp-credential-mode", config.CredentialMode, "where issued codes are kept: cookie or server (overrides $OTP_CREDENTIAL_MODE)"),
		cookieSecure:   fs.Bool("otp-cookie-secure", config.CookieSecure, "mark credential cookies Secure (overrides $OTP_COOKIE_SECURE)"),
		otpTTL:         fs.Duration("otp-ttl", config.OTPTTL, "verification code lifetime (overrides $OTP_TTL)"),
		maintenance:    fs.String("maintenance-schedule", config.Maintenance, "cron schedule for purging old idempotency keys (overrides $MAINTENANCE_SCHEDULE)"),
		keyRetention:   fs.Duration("submission-key-retention", config.KeyRetention, "how long idempotency keys are kept (overrides $SUBMISSION_KEY_RETENTION)"),
	}

	if err := fs.Parse(args); err != nil {
		slog.Error("flag parsing failed", "error", err)
	}

	slog.Debug("flags parsed",
		"stateDir", *flags.stateDir,
		"dbDSN_set", *flags.dbDSN != "",
		"apiAddr", *flags.apiAddr,
		"twilioConfigured", *flags.twilioSID != "" && *flags.twilioToken != "",
		"sendgridKeySet", *flags.sendgridKey != "",
		"staffEmailSet", *flags.staffEmail != "",
		"openaiKeySet", *flags.openaiKey != "",
		"credentialMode", *flags.credentialMode,
		"otpTTL", *flags.otpTTL)

	// Update database DSN if not explicitly set but state directory is provided
	if *flags.dbDSN == config.DatabaseURL && config.DatabaseURL == filepath.Join(config.StateDir, DefaultDBFileName) && *flags.stateDir != config.StateDir {
		*flags.dbDSN = filepath.Join(*flags.stateDir, DefaultDBFileName)
		slog.Debug("Updated dbDSN based on state directory", "dsn_updated", true, "old_state_dir", config.StateDir, "new_state_dir", *flags.stateDir)
	}

	return flags
}

// ensureDirectoriesExist creates necessary directories for file-based storage
func ensureDirectoriesExist(flags Flags) error {
	if *flags.dbDSN == "" || store.DetectDSNType(*flags.dbDSN) == "postgres" {
		return nil
	}
	stateDir := filepath.Dir(*flags.dbDSN)
	slog.Debug("Creating state directory for file-based database", "state_dir", stateDir)
	if err := os.MkdirAll(stateDir, 0755); err != nil {
		slog.Error("Failed to create state directory", "error", err, "state_dir", stateDir)
		return err
	}
	return nil
}

// buildStoreOptions constructs store configuration options
func buildStoreOptions(flags Flags) []store.Option {
	var storeOpts []store.Option
	if *flags.dbDSN == "" {
		slog.Debug("No database DSN provided, will use in-memory store")
		return storeOpts
	}
	if store.DetectDSNType(*flags.dbDSN) == "postgres" {
		slog.Debug("Detected PostgreSQL DSN, configuring PostgreSQL store", "dsn_type", "postgresql", "dsn_set", true)
		storeOpts = append(storeOpts, store.WithPostgresDSN(*flags.dbDSN))
	} else {
		slog.Debug("Detected SQLite DSN, configuring SQLite store", "dsn_type", "sqlite", "db_path", *flags.dbDSN)
		storeOpts = append(storeOpts, store.WithSQLiteDSN(*flags.dbDSN))
	}
	return storeOpts
}

// buildSMSOptions constructs Twilio configuration options
func buildSMSOptions(flags Flags) []twiliosms.Option {
	var opts []twiliosms.Option
	if *flags.twilioSID != "" {
		opts = append(opts, twiliosms.WithAccountSID(*flags.twilioSID))
	}
	if *flags.twilioToken != "" {
		opts = append(opts, twiliosms.WithAuthToken(*flags.twilioToken))
	}
	if *flags.twilioFrom != "" {
		opts = append(opts, twiliosms.WithFromNumber(*flags.twilioFrom))
	}
	return opts
}

// buildEmailOptions constructs SendGrid configuration options
func buildEmailOptions(flags Flags) []messaging.EmailOption {
	var opts []messaging.EmailOption
	if *flags.sendgridKey != "" {
		opts = append(opts, messaging.WithSendGridAPIKey(*flags.sendgridKey))
	}
	if *flags.emailFrom != "" {
		opts = append(opts, messaging.WithFromAddress(*flags.emailFrom))
	}
	if *flags.emailFromName != "" {
		opts = append(opts, messaging.WithFromName(*flags.emailFromName))
	}
	return opts
}

// buildGenAIOptions constructs GenAI configuration options
func buildGenAIOptions(flags Flags) []genai.Option {
	var genaiOpts []genai.Option
	if *flags.openaiKey != "" {
		genaiOpts = append(genaiOpts, genai.WithAPIKey(*flags.openaiKey))
	}
	return genaiOpts
}

// buildAPIOptions constructs API server configuration options
func buildAPIOptions(flags Flags) []api.Option {
	apiOpts := []api.Option{
		api.WithCookieSecure(*flags.cookieSecure),
		api.WithOTPTTL(*flags.otpTTL),
		api.WithSubmissionKeyRetention(*flags.keyRetention),
	}
	if *flags.apiAddr != "" {
		apiOpts = append(apiOpts, api.WithAddr(*flags.apiAddr))
	}
	if *flags.clinicName != "" {
		apiOpts = append(apiOpts, api.WithClinicName(*flags.clinicName))
	}
	if *flags.credentialMode != "" {
		apiOpts = append(apiOpts, api.WithCredentialMode(*flags.credentialMode))
	}
	if *flags.staffEmail != "" {
		apiOpts = append(apiOpts, api.WithStaffEmail(*flags.staffEmail))
	}
	if *flags.maintenance != "" {
		if err := scheduler.ValidateExpr(*flags.maintenance); err != nil {
			slog.Warn("Ignoring invalid maintenance schedule, using default", "error", err, "default", api.DefaultMaintenanceSchedule)
		} else {
			apiOpts = append(apiOpts, api.WithMaintenanceSchedule(*flags.maintenance))
		}
	}
	return apiOpts
}

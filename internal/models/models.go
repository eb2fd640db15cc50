// Package models defines the core data structures for ClinicIntake.
//
// It includes the questionnaire answer map, OTP request payloads, submissions and
// delivery receipts, which are shared across modules.
package models

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Validation constants for input validation
const (
	// OTPCodeLength is the number of digits in an issued verification code
	OTPCodeLength = 6
	// MinPhoneDigits is the minimum number of digits accepted for a phone number
	MinPhoneDigits = 10
	// MaxFieldLength defines the maximum allowed length for a single free-text answer
	MaxFieldLength = 2000
)

// Error variables for better error handling and testability
var (
	ErrMissingDestination = errors.New("phone number or email is required")
	ErrMissingOTP         = errors.New("verification code is required")
	ErrMalformedOTP       = errors.New("verification code must be 6 digits")
	ErrInvalidEmail       = errors.New("invalid email address")
	ErrInvalidPhone       = errors.New("phone number is too short")
	ErrMissingContact     = errors.New("submission requires a phone number or email")
	ErrMissingState       = errors.New("submission requires a state")
	ErrFieldTooLong       = errors.New("answer exceeds maximum length")
)

// Channel identifies how a verification code was delivered.
type Channel string

const (
	// ChannelSMS delivers through the SMS collaborator.
	ChannelSMS Channel = "sms"
	// ChannelEmail delivers through the email collaborator.
	ChannelEmail Channel = "email"
)

// MessageStatus represents the delivery status of a message.
type MessageStatus string

const (
	// MessageStatusSent indicates the message was sent.
	MessageStatusSent MessageStatus = "sent"
	// MessageStatusFailed indicates the message failed to send.
	MessageStatusFailed MessageStatus = "failed"
)

// Receipt records one delivery attempt to one channel.
type Receipt struct {
	To      string        `json:"to"`
	Channel Channel       `json:"channel"`
	Kind    string        `json:"kind"`
	Status  MessageStatus `json:"status"`
	Time    int64         `json:"time"`
}

// Receipt kinds.
const (
	ReceiptKindOTP         = "otp"
	ReceiptKindStaffNotice = "staff_notice"
)

// SendCodeRequest is the payload of the issue-code endpoint.
type SendCodeRequest struct {
	Phone string `json:"phone,omitempty"`
	Email string `json:"email,omitempty"`
}

// Normalize trims whitespace from both destinations.
func (r *SendCodeRequest) Normalize() {
	r.Phone = strings.TrimSpace(r.Phone)
	r.Email = strings.TrimSpace(r.Email)
}

// Validate checks that at least one destination is present.
func (r *SendCodeRequest) Validate() error {
	if r.Phone == "" && r.Email == "" {
		return ErrMissingDestination
	}
	return nil
}

// VerifyCodeRequest is the payload of the verify-code endpoint.
type VerifyCodeRequest struct {
	OTP string `json:"otp"`
}

// Validate checks the submitted code is present and well formed.
func (r *VerifyCodeRequest) Validate() error {
	code := strings.TrimSpace(r.OTP)
	if code == "" {
		return ErrMissingOTP
	}
	if !IsOTPCode(code) {
		return ErrMalformedOTP
	}
	return nil
}

// IsOTPCode reports whether s is exactly OTPCodeLength ASCII digits.
func IsOTPCode(s string) bool {
	if len(s) != OTPCodeLength {
		return false
	}
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}

// Submission is a completed questionnaire as stored by the clinic.
type Submission struct {
	ID        string    `json:"id"`
	Answers   Answers   `json:"answers"`
	Summary   string    `json:"summary,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// ValidateForSubmission checks the minimum a clinic needs to follow up.
func ValidateForSubmission(a Answers) error {
	if a.String(KeyPhone) == "" && a.String(KeyEmail) == "" {
		return ErrMissingContact
	}
	if a.String(KeyState) == "" {
		return ErrMissingState
	}
	for k, v := range a {
		if s, ok := v.(string); ok && len(s) > MaxFieldLength {
			return fmt.Errorf("%w: %s", ErrFieldTooLong, k)
		}
	}
	return nil
}

// API Response types for consistent JSON responses

// APIStatus represents the status of an API response.
type APIStatus string

const (
	// APIStatusOK indicates an API request completed successfully.
	APIStatusOK APIStatus = "ok"
	// APIStatusError indicates an API request failed with an error.
	APIStatusError APIStatus = "error"
)

// APIResponse represents a standard API response with a status and optional data.
// Success mirrors Status for clients that only check a boolean.
type APIResponse struct {
	Status  string      `json:"status"`            // status of the API response
	Success bool        `json:"success"`           // true when Status is "ok"
	Message string      `json:"message,omitempty"` // optional message for error responses or additional info
	Result  interface{} `json:"result,omitempty"`  // optional result data for successful responses
}

// APIResponseBuilder provides a fluent interface for building API responses.
type APIResponseBuilder struct {
	response APIResponse
}

// NewAPIResponseBuilder creates a new APIResponseBuilder instance.
func NewAPIResponseBuilder() *APIResponseBuilder {
	return &APIResponseBuilder{
		response: APIResponse{},
	}
}

// WithStatus sets the status of the API response.
func (b *APIResponseBuilder) WithStatus(status APIStatus) *APIResponseBuilder {
	b.response.Status = string(status)
	b.response.Success = status == APIStatusOK
	return b
}

// WithMessage sets the message of the API response.
func (b *APIResponseBuilder) WithMessage(message string) *APIResponseBuilder {
	b.response.Message = message
	return b
}

// WithResult sets the result data of the API response.
func (b *APIResponseBuilder) WithResult(result interface{}) *APIResponseBuilder {
	b.response.Result = result
	return b
}

// Build constructs and returns the final APIResponse.
func (b *APIResponseBuilder) Build() APIResponse {
	return b.response
}

// Success creates a successful API response with optional result data.
func Success(result interface{}) APIResponse {
	return NewAPIResponseBuilder().
		WithStatus(APIStatusOK).
		WithResult(result).
		Build()
}

// SuccessWithMessage creates a successful API response with a message and optional result data.
func SuccessWithMessage(message string, result interface{}) APIResponse {
	return NewAPIResponseBuilder().
		WithStatus(APIStatusOK).
		WithMessage(message).
		WithResult(result).
		Build()
}

// Error creates an error API response with a message.
func Error(message string) APIResponse {
	return NewAPIResponseBuilder().
		WithStatus(APIStatusError).
		WithMessage(message).
		Build()
}

// ErrorWithResult creates an error API response carrying extra detail.
func ErrorWithResult(message string, result interface{}) APIResponse {
	return NewAPIResponseBuilder().
		WithStatus(APIStatusError).
		WithMessage(message).
		WithResult(result).
		Build()
}

package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/BTreeMap/ClinicIntake/internal/messaging"
	"github.com/BTreeMap/ClinicIntake/internal/models"
	"github.com/BTreeMap/ClinicIntake/internal/store"
)

// ErrEmailNotConfigured is returned when a staff notice has no email channel.
var ErrEmailNotConfigured = errors.New("email delivery not configured")

// Summarizer writes a short staff-facing summary of a questionnaire.
type Summarizer interface {
	SummarizeIntake(ctx context.Context, answers models.Answers) (string, error)
}

// StaffNotifier delivers queued staff notices by email.
type StaffNotifier struct {
	st         store.Store
	email      messaging.Service
	to         string
	summarizer Summarizer
}

// NewStaffNotifier creates a notifier sending to addr. summarizer may be nil.
func NewStaffNotifier(st store.Store, email messaging.Service, addr string, summarizer Summarizer) *StaffNotifier {
	return &StaffNotifier{st: st, email: email, to: addr, summarizer: summarizer}
}

// Send is a store.OutboxSendFunc. A returned error schedules a retry.
func (n *StaffNotifier) Send(ctx context.Context, msg store.OutboxMessage) error {
	if msg.Kind != store.OutboxKindStaffNotice {
		return fmt.Errorf("unsupported outbox kind %q", msg.Kind)
	}
	var payload StaffNoticePayload
	if err := json.Unmarshal([]byte(msg.PayloadJSON), &payload); err != nil {
		return fmt.Errorf("decode payload: %w", err)
	}
	if n.email == nil {
		return ErrEmailNotConfigured
	}

	sub, err := n.st.GetSubmission(payload.SubmissionID)
	if err != nil {
		return fmt.Errorf("load submission %s: %w", payload.SubmissionID, err)
	}
	if sub.Summary == "" && n.summarizer != nil {
		summary, err := n.summarizer.SummarizeIntake(ctx, sub.Answers)
		if err != nil {
			slog.Warn("StaffNotifier.Send: summary unavailable", "id", sub.ID, "error", err)
		} else {
			sub.Summary = summary
			if err := n.st.UpdateSubmissionSummary(sub.ID, summary); err != nil {
				slog.Error("StaffNotifier.Send: failed to save summary", "id", sub.ID, "error", err)
			}
		}
	}

	to, err := n.email.ValidateAndCanonicalizeRecipient(n.to)
	if err != nil {
		return fmt.Errorf("staff address: %w", err)
	}
	sendErr := n.email.SendMessage(ctx, to, StaffNoticeMessage(*sub))
	status := models.MessageStatusSent
	if sendErr != nil {
		status = models.MessageStatusFailed
	}
	receipt := models.Receipt{To: to, Channel: models.ChannelEmail, Kind: models.ReceiptKindStaffNotice, Status: status, Time: time.Now().Unix()}
	if err := n.st.AddReceipt(receipt); err != nil {
		slog.Error("StaffNotifier.Send: failed to add receipt", "error", err)
	}
	if sendErr != nil {
		return fmt.Errorf("send staff notice: %w", sendErr)
	}
	slog.Info("StaffNotifier.Send: staff notified", "id", sub.ID)
	return nil
}

// StaffNoticeMessage renders the email body for one submission.
func StaffNoticeMessage(sub models.Submission) messaging.Message {
	var b strings.Builder
	fmt.Fprintf(&b, "New intake submission %s\nReceived %s\n\n", sub.ID, sub.CreatedAt.Format(time.RFC1123))
	if sub.Summary != "" {
		fmt.Fprintf(&b, "Summary:\n%s\n\n", sub.Summary)
	}
	for _, f := range models.Fields {
		if f.Key == models.KeyOTP {
			continue
		}
		if _, ok := sub.Answers[f.Key]; !ok {
			continue
		}
		b.WriteString(sub.Answers.Describe(f.Key))
		b.WriteByte('\n')
	}
	name := strings.TrimSpace(sub.Answers.String(models.KeyFirstName) + " " + sub.Answers.String(models.KeyLastName))
	if name == "" {
		name = "unnamed patient"
	}
	return messaging.Message{
		Subject: "New intake: " + name,
		Text:    b.String(),
	}
}

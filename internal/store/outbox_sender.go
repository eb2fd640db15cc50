package store

import (
	"context"
	"log/slog"
	"time"
)

// OutboxSendFunc is the callback that performs the actual message send.
// It receives the outbox message and should return an error if sending failed.
type OutboxSendFunc func(ctx context.Context, msg OutboxMessage) error

// DefaultOutboxMaxAttempts bounds retries before a message is abandoned.
const DefaultOutboxMaxAttempts = 6

// OutboxSender periodically claims due outbox messages and attempts to send them.
type OutboxSender struct {
	repo           OutboxRepo
	sendFunc       OutboxSendFunc
	pollInterval   time.Duration
	staleThreshold time.Duration
	claimLimit     int
	maxAttempts    int
	baseBackoff    time.Duration
}

// NewOutboxSender creates a new OutboxSender.
func NewOutboxSender(repo OutboxRepo, sendFunc OutboxSendFunc, pollInterval time.Duration) *OutboxSender {
	if pollInterval <= 0 {
		pollInterval = 5 * time.Second
	}
	return &OutboxSender{
		repo:           repo,
		sendFunc:       sendFunc,
		pollInterval:   pollInterval,
		staleThreshold: 5 * time.Minute,
		claimLimit:     10,
		maxAttempts:    DefaultOutboxMaxAttempts,
		baseBackoff:    10 * time.Second,
	}
}

// RecoverStaleMessages requeues messages stuck in sending state.
// Should be called once at startup.
func (s *OutboxSender) RecoverStaleMessages() error {
	staleBefore := time.Now().Add(-s.staleThreshold)
	n, err := s.repo.RequeueStaleSendingMessages(staleBefore)
	if err != nil {
		return err
	}
	if n > 0 {
		slog.Info("OutboxSender.RecoverStaleMessages: requeued stale messages", "count", n)
	}
	return nil
}

// RecoverState requeues stale messages. It lets the sender take part in
// startup recovery and periodic maintenance.
func (s *OutboxSender) RecoverState(ctx context.Context) error {
	return s.RecoverStaleMessages()
}

// Run starts the polling loop. It blocks until the context is cancelled.
func (s *OutboxSender) Run(ctx context.Context) {
	slog.Info("OutboxSender.Run: starting outbox sender", "pollInterval", s.pollInterval)

	ticker := time.NewTicker(s.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			slog.Info("OutboxSender.Run: stopping")
			return
		case <-ticker.C:
			s.Poll(ctx)
		}
	}
}

// Poll claims and sends one batch of due messages.
func (s *OutboxSender) Poll(ctx context.Context) {
	now := time.Now()
	msgs, err := s.repo.ClaimDueOutboxMessages(now, s.claimLimit)
	if err != nil {
		slog.Error("OutboxSender.Poll: claim failed", "error", err)
		return
	}

	for _, msg := range msgs {
		slog.Debug("OutboxSender.Poll: sending message", "id", msg.ID, "submissionID", msg.SubmissionID, "kind", msg.Kind)
		err := s.sendFunc(ctx, msg)
		if err == nil {
			if err := s.repo.MarkOutboxMessageSent(msg.ID); err != nil {
				slog.Error("OutboxSender.Poll: mark sent error", "id", msg.ID, "error", err)
			}
			continue
		}

		slog.Error("OutboxSender.Poll: send failed", "id", msg.ID, "attempts", msg.Attempts+1, "error", err)
		if msg.Attempts+1 >= s.maxAttempts {
			if err := s.repo.AbandonOutboxMessage(msg.ID, err.Error()); err != nil {
				slog.Error("OutboxSender.Poll: abandon message error", "id", msg.ID, "error", err)
			}
			continue
		}
		// 10s, 20s, 40s, ...
		nextAttempt := now.Add(s.baseBackoff * time.Duration(1<<msg.Attempts))
		if err := s.repo.FailOutboxMessage(msg.ID, err.Error(), nextAttempt); err != nil {
			slog.Error("OutboxSender.Poll: fail message error", "id", msg.ID, "error", err)
		}
	}
}

package api

import (
	"context"
	"log/slog"
	"time"

	"github.com/BTreeMap/ClinicIntake/internal/recovery"
	"github.com/BTreeMap/ClinicIntake/internal/scheduler"
	"github.com/BTreeMap/ClinicIntake/internal/store"
)

// purgeSubmissionKeys drops idempotency keys older than retention. A client
// retrying after that window creates a new submission.
func purgeSubmissionKeys(repo store.DedupRepo, retention time.Duration) scheduler.Job {
	return func(ctx context.Context) error {
		n, err := repo.PurgeSubmissionKeys(time.Now().Add(-retention))
		if err != nil {
			return err
		}
		if n > 0 {
			slog.Info("purgeSubmissionKeys: removed expired keys", "count", n, "retention", retention)
		}
		return nil
	}
}

// newRecoveryManager lists what must be repaired before serving. sender may be nil.
func newRecoveryManager(st Backend, sender *store.OutboxSender, cfg Opts) *recovery.Manager {
	m := recovery.NewManager()
	if sender != nil {
		m.Register("outbox", sender)
	}
	m.Register("submission-keys", recovery.RecoverFunc(purgeSubmissionKeys(st, cfg.SubmissionKeyRetention)))
	return m
}

// startMaintenance schedules periodic jobs. sender may be nil.
func startMaintenance(ctx context.Context, st Backend, sender *store.OutboxSender, cfg Opts) (*scheduler.Scheduler, error) {
	sched := scheduler.New(ctx)
	if err := sched.AddJob("purge-submission-keys", cfg.MaintenanceSchedule, purgeSubmissionKeys(st, cfg.SubmissionKeyRetention)); err != nil {
		sched.Stop()
		return nil, err
	}
	if sender != nil {
		if err := sched.AddJob("requeue-stale-outbox", OutboxRequeueSchedule, sender.RecoverState); err != nil {
			sched.Stop()
			return nil, err
		}
	}
	slog.Debug("startMaintenance: jobs scheduled", "jobs", sched.Jobs())
	return sched, nil
}

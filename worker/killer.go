package worker

import (
	"context"

	"github.com/batsimgo/core/job"
	"github.com/batsimgo/core/message"
	"github.com/sirupsen/logrus"
)

// RunningJobs is the Server-owned registry of live Job Executor tasks a
// Killer consults. Cancel aborts the named job's profile execution if it is
// still running and returns a progress snapshot; it reports ok=false for a
// job that is not currently running, making SCHED_KILL_JOB idempotent
// against an already-terminal job (spec.md §5 "kill path must be
// idempotent").
type RunningJobs interface {
	Cancel(id job.ID) (progress message.Progress, ok bool)
}

// Killer aborts a batch of running jobs and reports back which of them it
// actually killed (spec.md §4.6).
type Killer struct {
	Registry RunningJobs
	Server   *message.Mailbox
	Log      *logrus.Entry
}

// Kill cancels every id that is currently running and sends KILLING_DONE
// with a progress entry for each one actually killed. ids already terminal
// are silently skipped.
func (k *Killer) Kill(ctx context.Context, ids []job.ID) error {
	progress := make(map[job.ID]message.Progress, len(ids))
	for _, id := range ids {
		if p, ok := k.Registry.Cancel(id); ok {
			progress[id] = p
		}
	}

	if k.Log != nil {
		k.Log.WithFields(logrus.Fields{"requested": len(ids), "killed": len(progress)}).Debug("killer done")
	}

	return k.Server.Send(ctx, message.Envelope{
		Kind:    message.KindKillingDone,
		Payload: message.KillingDone{JobIDs: ids, Progress: progress},
	})
}

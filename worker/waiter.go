// Package worker holds the short-lived tasks the Server spawns in response
// to decider commands: the Waiter (C2), the Pstate Switcher (C3), the
// Profile Executor (C4), the Job Executor (C5), the Killer (C6), and the
// Submitters (C7). Every task here follows the same shape: it owns nothing
// the Server doesn't hand it, runs to one of its terminal sends, and talks
// back only through the message bus.
package worker

import (
	"context"

	"github.com/batsimgo/core/message"
	"github.com/batsimgo/core/platform"
	"github.com/sirupsen/logrus"
)

// minWait is the floor spec.md §4.2 puts under a Waiter's sleep duration,
// guarding against sub-precision no-ops when the target time is only
// infinitesimally ahead of the current clock.
const minWait = 1e-5

// Waiter sleeps until a target simulated time, then reports back to the
// Server mailbox. Exactly one WAITING_DONE is sent per Wait call.
type Waiter struct {
	Clock  platform.Clock
	Server *message.Mailbox
	Log    *logrus.Entry
}

// Wait blocks the calling goroutine until targetTime, then sends
// WAITING_DONE. Run it in its own goroutine; it does not return until the
// Server has received that message (or ctx is done).
func (w *Waiter) Wait(ctx context.Context, targetTime float64) error {
	w.Clock.Enter()
	defer w.Clock.Leave()

	if now := w.Clock.Now(); now < targetTime {
		d := targetTime - now
		if d < minWait {
			d = minWait
		}
		if err := w.Clock.Sleep(ctx, d); err != nil {
			return err
		}
	}

	if w.Log != nil {
		w.Log.WithField("target_time", targetTime).Debug("waiter done")
	}
	return w.Server.Send(ctx, message.Envelope{
		Kind:    message.KindWaitingDone,
		Payload: message.WaitingDone{TargetTime: targetTime},
	})
}

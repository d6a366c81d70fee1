package worker

import (
	"context"

	"github.com/batsimgo/core/message"
	"github.com/batsimgo/core/platform"
	"github.com/sirupsen/logrus"
)

// Switcher drives one machine through a pstate transition: it sleeps for
// the platform-defined transition delay, flips the pstate, then reports
// back. A PSTATE_MODIFICATION naming N machines spawns N independent
// Switchers (spec.md §4.3, §4.9).
type Switcher struct {
	Clock    platform.Clock
	Machines platform.MachineOps
	Server   *message.Mailbox
	Log      *logrus.Entry
}

// SwitchOn transitions machineID to target and sends SWITCHED_ON.
func (sw *Switcher) SwitchOn(ctx context.Context, machineID, target int) error {
	return sw.run(ctx, machineID, target, message.KindSwitchedOn)
}

// SwitchOff transitions machineID to target and sends SWITCHED_OFF.
func (sw *Switcher) SwitchOff(ctx context.Context, machineID, target int) error {
	return sw.run(ctx, machineID, target, message.KindSwitchedOff)
}

func (sw *Switcher) run(ctx context.Context, machineID, target int, kind message.Kind) error {
	sw.Clock.Enter()
	defer sw.Clock.Leave()

	delay := sw.Machines.TransitionDelay(machineID, target)
	if delay > 0 {
		if err := sw.Clock.Sleep(ctx, delay); err != nil {
			return err
		}
	}
	sw.Machines.SetPstate(machineID, target)

	if sw.Log != nil {
		sw.Log.WithFields(logrus.Fields{"machine": machineID, "pstate": target}).Debug("pstate switched")
	}

	var payload interface{}
	if kind == message.KindSwitchedOn {
		payload = message.SwitchedOn{MachineID: machineID, Pstate: target}
	} else {
		payload = message.SwitchedOff{MachineID: machineID, Pstate: target}
	}
	return sw.Server.Send(ctx, message.Envelope{Kind: kind, Payload: payload})
}

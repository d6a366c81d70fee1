// Package relay implements the Scheduler-Relay (spec.md §4.8, §6): it
// buffers the Server's outbound events, hands a batch to an external
// Decider for one transactional round trip, and re-injects the parsed
// reply into the Server mailbox as typed messages. The actual socket to
// the decider process is out of this core's scope (spec.md §1); Decider is
// this core's side of that boundary.
package relay

import "encoding/json"

// OutboundEvent is one event in a batch sent to the decider (spec.md §6
// "a single JSON document per round containing a simulated timestamp and
// an ordered list of typed events").
type OutboundEvent struct {
	Timestamp float64     `json:"timestamp"`
	Type      string      `json:"type"`
	Data      interface{} `json:"data,omitempty"`
}

// Batch is the full outbound document for one round.
type Batch struct {
	Now    float64         `json:"now"`
	Events []OutboundEvent `json:"events"`
}

// InboundEvent is one event in the decider's reply, still holding its Data
// as raw JSON until decode resolves it against a concrete kind.
type InboundEvent struct {
	Timestamp float64         `json:"timestamp"`
	Type      string          `json:"type"`
	Data      json.RawMessage `json:"data,omitempty"`
}

// InboundBatch is the full reply document for one round. It need not carry
// a SCHED_READY event: Relay.Flush injects one after the reply's own
// events.
type InboundBatch struct {
	Events []InboundEvent `json:"events"`
}

// Outbound event type tags. These name the Server->decider direction; they
// are a distinct vocabulary from the inbound Relay->Server kinds in
// message.Kind, though several share a name across both directions.
const (
	TypeJobSubmitted  = "JOB_SUBMITTED"
	TypeJobCompleted  = "JOB_COMPLETED"
	TypeWaitingDone   = "WAITING_DONE"
	TypeKillingDone   = "KILLING_DONE"
	TypeSwitchedOn    = "SWITCHED_ON"
	TypeSwitchedOff   = "SWITCHED_OFF"
	TypeEnergyReport  = "ENERGY_REPORT"
	TypeFromJobMsg    = "FROM_JOB_MSG"
	TypePstateChanged = "PSTATE_CHANGED"
	TypeSimulationEnd = "SIMULATION_ENDS"
)

// Inbound event type tags mirror spec.md §4.1's Relay->Server kinds.
const (
	TypeJobSubmittedByDP      = "JOB_SUBMITTED_BY_DP"
	TypeProfileSubmittedByDP  = "PROFILE_SUBMITTED_BY_DP"
	TypeSchedExecuteJob       = "SCHED_EXECUTE_JOB"
	TypeSchedChangeJobState   = "SCHED_CHANGE_JOB_STATE"
	TypeSchedRejectJob        = "SCHED_REJECT_JOB"
	TypeSchedKillJob          = "SCHED_KILL_JOB"
	TypeSchedCallMeLater      = "SCHED_CALL_ME_LATER"
	TypeSchedTellMeEnergy     = "SCHED_TELL_ME_ENERGY"
	TypePstateModification    = "PSTATE_MODIFICATION"
	TypeEndDynamicSubmit      = "END_DYNAMIC_SUBMIT"
	TypeContinueDynamicSubmit = "CONTINUE_DYNAMIC_SUBMIT"
	TypeToJobMsg              = "TO_JOB_MSG"
	TypeSchedReady            = "SCHED_READY"
)

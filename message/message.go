// Package message implements the core's message bus: a typed envelope and
// named mailboxes that the Server and every Worker task communicate
// through (spec.md §4.1). No handler ever touches another goroutine's
// state directly; everything that crosses a goroutine boundary in this
// repository goes through an Envelope.
package message

import "github.com/batsimgo/core/job"

// Kind tags the payload carried by an Envelope. The grouping below mirrors
// spec.md §4.1's producer -> consumer table.
type Kind int

const (
	// Submitter -> Server
	KindSubmitterHello Kind = iota
	KindJobSubmitted
	KindSubmitterBye

	// Server -> Submitter
	KindSubmitterCallback

	// Relay -> Server (originated by the external decider)
	KindJobSubmittedByDP
	KindProfileSubmittedByDP
	KindSchedExecuteJob
	KindSchedChangeJobState
	KindSchedRejectJob
	KindSchedKillJob
	KindSchedCallMeLater
	KindSchedTellMeEnergy
	KindPstateModification
	KindEndDynamicSubmit
	KindContinueDynamicSubmit
	KindToJobMsg
	KindSchedReady

	// Job -> Server
	KindFromJobMsg

	// Worker -> Server
	KindJobCompleted
	KindWaitingDone
	KindKillingDone
	KindSwitchedOn
	KindSwitchedOff
)

func (k Kind) String() string {
	switch k {
	case KindSubmitterHello:
		return "SUBMITTER_HELLO"
	case KindJobSubmitted:
		return "JOB_SUBMITTED"
	case KindSubmitterBye:
		return "SUBMITTER_BYE"
	case KindSubmitterCallback:
		return "SUBMITTER_CALLBACK"
	case KindJobSubmittedByDP:
		return "JOB_SUBMITTED_BY_DP"
	case KindProfileSubmittedByDP:
		return "PROFILE_SUBMITTED_BY_DP"
	case KindSchedExecuteJob:
		return "SCHED_EXECUTE_JOB"
	case KindSchedChangeJobState:
		return "SCHED_CHANGE_JOB_STATE"
	case KindSchedRejectJob:
		return "SCHED_REJECT_JOB"
	case KindSchedKillJob:
		return "SCHED_KILL_JOB"
	case KindSchedCallMeLater:
		return "SCHED_CALL_ME_LATER"
	case KindSchedTellMeEnergy:
		return "SCHED_TELL_ME_ENERGY"
	case KindPstateModification:
		return "PSTATE_MODIFICATION"
	case KindEndDynamicSubmit:
		return "END_DYNAMIC_SUBMIT"
	case KindContinueDynamicSubmit:
		return "CONTINUE_DYNAMIC_SUBMIT"
	case KindToJobMsg:
		return "TO_JOB_MSG"
	case KindSchedReady:
		return "SCHED_READY"
	case KindFromJobMsg:
		return "FROM_JOB_MSG"
	case KindJobCompleted:
		return "JOB_COMPLETED"
	case KindWaitingDone:
		return "WAITING_DONE"
	case KindKillingDone:
		return "KILLING_DONE"
	case KindSwitchedOn:
		return "SWITCHED_ON"
	case KindSwitchedOff:
		return "SWITCHED_OFF"
	default:
		return "UNKNOWN"
	}
}

// Envelope is the single message type that crosses mailbox boundaries. The
// concrete Payload is one of the Kind-specific structs below; Kind
// determines how to type-assert it, playing the role the per-kind
// destructor dispatcher plays in the original core (spec.md §9).
type Envelope struct {
	Kind    Kind
	Payload interface{}
}

// --- Submitter -> Server payloads ---

type SubmitterHello struct {
	Name           string
	WantsCallback  bool
	IsWorkflowKind bool
}

type JobSubmitted struct {
	SubmitterName string
	JobID         job.ID
}

type SubmitterBye struct {
	Name        string
	WasWorkflow bool
}

// --- Server -> Submitter payloads ---

type SubmitterCallback struct {
	CompletedJobID job.ID
}

// --- Relay -> Server payloads ---

type JobSubmittedByDP struct {
	Job job.Job
}

type ProfileSubmittedByDP struct {
	Workload string
	Profile  job.Profile
}

type SchedExecuteJob struct {
	JobID      job.ID
	Machines   []int
	RankToHost []int // optional MPI executor->host mapping
}

type SchedChangeJobState struct {
	JobID      job.ID
	NewState   job.State
	KillReason string
}

type SchedRejectJob struct {
	JobID job.ID
}

type SchedKillJob struct {
	JobIDs []job.ID
}

type SchedCallMeLater struct {
	TargetTime float64
}

type SchedTellMeEnergy struct{}

type PstateModification struct {
	Machines []int
	Pstate   int
}

type EndDynamicSubmit struct{}

type ContinueDynamicSubmit struct{}

type ToJobMsg struct {
	JobID job.ID
	Data  []byte
}

type SchedReady struct{}

// --- Job -> Server payloads ---

type FromJobMsg struct {
	JobID job.ID
	Data  []byte
}

// --- Worker -> Server payloads ---

type JobCompleted struct {
	JobID job.ID
	// FinalState is the terminal state the Job Executor determined by
	// playing the profile out (or by observing a kill); the Server is the
	// only component allowed to write it onto the Job (spec.md §5 "only
	// the Server mutates job state").
	FinalState job.State
	KillReason string
}

type WaitingDone struct {
	TargetTime float64
}

type KillingDone struct {
	JobIDs   []job.ID
	Progress map[job.ID]Progress
}

// Progress is the opaque per-job snapshot a Killer gathers for jobs it
// actually killed (spec.md §4.6 "BatTask*").
type Progress struct {
	ElapsedTime    float64
	ProfileCounter int
}

type SwitchedOn struct {
	MachineID int
	Pstate    int
}

type SwitchedOff struct {
	MachineID int
	Pstate    int
}

// Package trace holds the scheduling and energy trace sinks spec.md §1
// treats as external collaborators: "tracing/telemetry sinks (scheduling
// trace, energy trace)". The default sinks here write structured log lines
// through logrus and, when a tracer is configured, open one opentracing
// span per job execution, in the style of Chapter11/tracing's provider.
// Scheduler-relay rounds are not traced.
package trace

import (
	"github.com/batsimgo/core/job"
	"github.com/opentracing/opentracing-go"
	"github.com/sirupsen/logrus"
)

// Scheduling records job lifecycle and machine pstate events (spec.md §4.5
// "record job-start/job-end in the scheduling trace", §4.3 pstate changes).
type Scheduling interface {
	JobStarted(id job.ID, startingTime float64, machines []int)
	JobEnded(id job.ID, state job.State, runtime float64)
	JobKilled(id job.ID, reason string)
	PstateChanged(machineID, pstate int)
}

// Energy records per-job energy deltas (spec.md §4.5 "record job-start/
// job-end in the energy trace").
type Energy interface {
	JobEnergyStarted(id job.ID, baseline map[int]float64)
	JobEnergyEnded(id job.ID, consumed float64)
}

// LogrusSink is the default Scheduling and Energy sink: every event becomes
// one structured log line. A non-nil tracer additionally wraps each job's
// start/end pair in an opentracing span so the run can be inspected in
// Jaeger, exactly as Chapter11/tracing's gateway wraps request handling.
type LogrusSink struct {
	Log    *logrus.Entry
	Tracer opentracing.Tracer

	spans jobSpans
}

var _ Scheduling = (*LogrusSink)(nil)
var _ Energy = (*LogrusSink)(nil)

// NewLogrusSink creates a trace sink logging through log. tracer may be nil,
// in which case no spans are emitted.
func NewLogrusSink(log *logrus.Entry, tracer opentracing.Tracer) *LogrusSink {
	return &LogrusSink{Log: log, Tracer: tracer, spans: newJobSpans()}
}

func (s *LogrusSink) JobStarted(id job.ID, startingTime float64, machines []int) {
	if s.Tracer != nil {
		s.spans.start(s.Tracer, id, startingTime)
	}
	s.Log.WithFields(logrus.Fields{
		"job":       id.String(),
		"sim_time":  startingTime,
		"machines":  machines,
		"trace_evt": "job_started",
	}).Info("job started")
}

func (s *LogrusSink) JobEnded(id job.ID, state job.State, runtime float64) {
	if s.Tracer != nil {
		s.spans.finish(id, func(span opentracing.Span) {
			span.SetTag("final_state", state.String())
		})
	}
	s.Log.WithFields(logrus.Fields{
		"job":       id.String(),
		"state":     state.String(),
		"runtime":   runtime,
		"trace_evt": "job_ended",
	}).Info("job ended")
}

func (s *LogrusSink) JobKilled(id job.ID, reason string) {
	s.Log.WithFields(logrus.Fields{
		"job":       id.String(),
		"reason":    reason,
		"trace_evt": "job_killed",
	}).Info("job killed")
}

func (s *LogrusSink) PstateChanged(machineID, pstate int) {
	s.Log.WithFields(logrus.Fields{
		"machine":   machineID,
		"pstate":    pstate,
		"trace_evt": "pstate_changed",
	}).Debug("machine pstate changed")
}

func (s *LogrusSink) JobEnergyStarted(id job.ID, baseline map[int]float64) {
	s.Log.WithFields(logrus.Fields{
		"job":       id.String(),
		"baseline":  baseline,
		"trace_evt": "energy_start",
	}).Debug("energy accounting started")
}

func (s *LogrusSink) JobEnergyEnded(id job.ID, consumed float64) {
	s.Log.WithFields(logrus.Fields{
		"job":       id.String(),
		"consumed":  consumed,
		"trace_evt": "energy_end",
	}).Info("energy accounting ended")
}

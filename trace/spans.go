package trace

import (
	"sync"

	"github.com/batsimgo/core/job"
	"github.com/opentracing/opentracing-go"
)

// jobSpans tracks the in-flight opentracing span for each currently
// executing job, since a Job Executor's start and end calls happen on
// different goroutine turns of the same run.
type jobSpans struct {
	mu    sync.Mutex
	spans map[job.ID]opentracing.Span
}

func newJobSpans() jobSpans {
	return jobSpans{spans: make(map[job.ID]opentracing.Span)}
}

func (js *jobSpans) start(tracer opentracing.Tracer, id job.ID, startingTime float64) {
	span := tracer.StartSpan("job_execution")
	span.SetTag("job_id", id.String())
	span.SetTag("sim_start_time", startingTime)

	js.mu.Lock()
	js.spans[id] = span
	js.mu.Unlock()
}

func (js *jobSpans) finish(id job.ID, tag func(opentracing.Span)) {
	js.mu.Lock()
	span, ok := js.spans[id]
	if ok {
		delete(js.spans, id)
	}
	js.mu.Unlock()

	if !ok {
		return
	}
	if tag != nil {
		tag(span)
	}
	span.Finish()
}

package main

import (
	"context"
	"net"
	"os"
	"sort"
	"time"

	"github.com/batsimgo/core/job"
	"github.com/batsimgo/core/machine"
	"github.com/batsimgo/core/message"
	"github.com/batsimgo/core/metrics"
	"github.com/batsimgo/core/platform/simkernel"
	"github.com/batsimgo/core/relay"
	coreserver "github.com/batsimgo/core/server"
	"github.com/batsimgo/core/service"
	"github.com/batsimgo/core/trace"
	"github.com/batsimgo/core/worker"
	"github.com/opentracing/opentracing-go"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"
	"github.com/uber/jaeger-client-go"
	jaegercfg "github.com/uber/jaeger-client-go/config"
	"github.com/urfave/cli"
	"golang.org/x/xerrors"
)

func runCommand() cli.Command {
	return cli.Command{
		Name:  "run",
		Usage: "run a simulation against a workload file, driven by an external decider",
		Flags: []cli.Flag{
			cli.StringFlag{Name: "workload", Usage: "path to a workload JSON file (required)"},
			cli.IntFlag{Name: "hosts", Value: 4, Usage: "number of simulated compute hosts"},
			cli.BoolFlag{Name: "dynamic-submission", Usage: "allow the decider to submit jobs dynamically (END_DYNAMIC_SUBMIT gates termination)"},
			cli.StringFlag{Name: "decider-addr", Usage: "TCP address of the external decider process; if unset, a no-op decider that immediately says SCHED_READY is used"},
			cli.StringFlag{Name: "metrics-addr", Value: ":9100", Usage: "listen address for the Prometheus /metrics endpoint"},
			cli.BoolFlag{Name: "tracing", Usage: "enable Jaeger tracing (configured via the standard JAEGER_* environment variables)"},
			cli.StringFlag{Name: "log-level", Value: "info", Usage: "logrus level: debug, info, warn, error"},
		},
		Action: runRun,
	}
}

func runRun(c *cli.Context) error {
	log, err := newLogger(c.String("log-level"))
	if err != nil {
		return err
	}

	workloadPath := c.String("workload")
	if workloadPath == "" {
		return xerrors.Errorf("run: --workload is required")
	}

	tracer, closer, err := maybeTracer(c.Bool("tracing"))
	if err != nil {
		return err
	}
	if closer != nil {
		defer func() { _ = closer.Close() }()
	}

	decider, deciderCloser, err := newDecider(c.String("decider-addr"))
	if err != nil {
		return err
	}
	if deciderCloser != nil {
		defer func() { _ = deciderCloser.Close() }()
	}

	svcGroup, err := setupServices(c, log, tracer, decider)
	if err != nil {
		return err
	}

	ctx, cancelFn := context.WithCancel(context.Background())
	defer cancelFn()
	watchSignals(ctx, cancelFn, log)

	return svcGroup.Run(ctx)
}

func setupServices(c *cli.Context, log *logrus.Entry, tracer opentracing.Tracer, decider relay.Decider) (service.Group, error) {
	wf, err := loadWorkloadFile(c.String("workload"))
	if err != nil {
		return service.Group{}, err
	}
	if wf.Name == "" {
		return service.Group{}, xerrors.Errorf("workload file %q has no name", c.String("workload"))
	}

	registry := job.NewRegistry()
	workload := registry.Workload(wf.Name)
	submissions, err := wf.apply(workload)
	if err != nil {
		return service.Group{}, err
	}
	sort.Slice(submissions, func(i, j int) bool { return submissions[i].time < submissions[j].time })

	clock := simkernel.NewClock()
	cluster := machine.NewCluster(c.Int("hosts"), nil)
	exec := simkernel.NewExecutor(clock, cluster)

	bus := message.NewBus()
	sink := trace.NewLogrusSink(log.WithField("component", "trace"), tracer)

	rl := relay.NewRelay(decider, bus.Mailbox(message.ServerMailboxName), log.WithField("component", "relay"))
	profiles := &worker.ProfileExecutor{Clock: clock, Exec: exec, Machines: cluster, Log: log.WithField("component", "profile-executor")}

	srv := coreserver.New(
		coreserver.Config{DynamicSubmissionEnabled: c.Bool("dynamic-submission")},
		bus, clock, cluster, registry, rl, profiles, sink, sink,
		log.WithField("component", "server"),
	)

	collectors := metrics.New(prometheus.DefaultRegisterer, srv, cluster)
	srv.Metrics = collectors

	entries := make([]worker.SubmissionEntry, len(submissions))
	for i, e := range submissions {
		entries[i] = worker.SubmissionEntry{Time: e.time, JobID: e.id}
	}
	submitter := &worker.Submitter{
		Name:   "default",
		Clock:  clock,
		Server: bus.Mailbox(message.ServerMailboxName),
		Log:    log.WithField("component", "submitter"),
	}

	return service.Group{
		Services: []service.Service{
			serverService{srv},
			submitterService{submitter: submitter, entries: entries},
			metricsService{Addr: c.String("metrics-addr"), Collectors: collectors, RefreshTick: time.Second, Log: log.WithField("component", "metrics")},
		},
		Log: log.WithField("component", "services"),
	}, nil
}

// noopDecider is the bundled default: it immediately reports readiness
// with no scheduling decisions, useful for exercising the core end to end
// without standing up a real decider process (spec.md §14 "no real network
// I/O" non-goal).
type noopDecider struct{}

func (noopDecider) Exchange(ctx context.Context, batch relay.Batch) (relay.InboundBatch, error) {
	return relay.InboundBatch{}, nil
}

func newDecider(addr string) (relay.Decider, *net.TCPConn, error) {
	if addr == "" {
		return noopDecider{}, nil, nil
	}
	conn, err := net.Dial("tcp", addr)
	if err != nil {
		return nil, nil, xerrors.Errorf("dialing decider at %q: %w", addr, err)
	}
	tcpConn, _ := conn.(*net.TCPConn)
	return relay.NewStreamDecider(conn), tcpConn, nil
}

func maybeTracer(enabled bool) (opentracing.Tracer, tracerCloser, error) {
	if !enabled {
		return nil, nil, nil
	}
	cfg, err := jaegercfg.FromEnv()
	if err != nil {
		return nil, nil, xerrors.Errorf("loading jaeger config from environment: %w", err)
	}
	cfg.Sampler = &jaegercfg.SamplerConfig{Type: jaeger.SamplerTypeConst, Param: 1}
	if cfg.ServiceName == "" {
		cfg.ServiceName = appName
	}
	tracer, closer, err := cfg.NewTracer()
	if err != nil {
		return nil, nil, xerrors.Errorf("creating jaeger tracer: %w", err)
	}
	return tracer, closer, nil
}

type tracerCloser interface {
	Close() error
}

func newLogger(level string) (*logrus.Entry, error) {
	lvl, err := logrus.ParseLevel(level)
	if err != nil {
		return nil, xerrors.Errorf("parsing --log-level: %w", err)
	}
	host, _ := os.Hostname()
	root := logrus.New()
	root.SetFormatter(new(logrus.JSONFormatter))
	root.SetLevel(lvl)
	return root.WithFields(logrus.Fields{"app": appName, "sha": appSha, "host": host}), nil
}

package main

import (
	"context"
	"net/http"
	"time"

	"github.com/batsimgo/core/metrics"
	coreserver "github.com/batsimgo/core/server"
	"github.com/batsimgo/core/worker"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
)

// serverService adapts *coreserver.Server to service.Service; the
// dispatch loop's Run signature already matches, so this only supplies a
// Name.
type serverService struct {
	*coreserver.Server
}

func (serverService) Name() string { return "server" }

// submitterService runs one worker.Submitter's fixed job schedule as a
// service.Service, so the CLI can start it alongside the server and have
// the whole run's lifetime tracked by one service.Group.
type submitterService struct {
	submitter *worker.Submitter
	entries   []worker.SubmissionEntry
}

func (s submitterService) Name() string { return "submitter:" + s.submitter.Name }

func (s submitterService) Run(ctx context.Context) error {
	return s.submitter.Run(ctx, s.entries)
}

// metricsService exposes the Prometheus collectors over HTTP and keeps
// them refreshed from the Server's counters on a fixed tick, in the style
// of Chapter13/prom_http/main.go's promhttp.Handler wiring.
type metricsService struct {
	Addr        string
	Collectors  *metrics.Collectors
	RefreshTick time.Duration
	Log         *logrus.Entry
}

func (metricsService) Name() string { return "metrics" }

func (m metricsService) Run(ctx context.Context) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{Addr: m.Addr, Handler: mux}

	errCh := make(chan error, 1)
	go func() {
		m.Log.WithField("addr", m.Addr).Info("serving prometheus metrics")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	tick := m.RefreshTick
	if tick <= 0 {
		tick = time.Second
	}
	ticker := time.NewTicker(tick)
	defer ticker.Stop()

	for {
		select {
		case err := <-errCh:
			return err
		case <-ticker.C:
			m.Collectors.Refresh()
		case <-ctx.Done():
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = srv.Shutdown(shutdownCtx)
			return nil
		}
	}
}

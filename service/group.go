// Package service composes the long-running pieces of a batsimgo run (the
// Server loop, the Submitters, a metrics HTTP endpoint) so they
// start together and a failure in any one of them shuts the rest down.
package service

import (
	"context"
	"sync"

	"github.com/hashicorp/go-multierror"
	"github.com/sirupsen/logrus"
	"golang.org/x/xerrors"
)

// Service is one independently-run piece of a batsimgo process.
type Service interface {
	// Name returns the service name.
	Name() string

	// Run executes the service and blocks until the context gets cancelled
	// or an error occurs.
	Run(context.Context) error
}

// Group is a list of Service instances that can execute in parallel. Log,
// if set, gets one entry per service start/stop, the same
// *logrus.Entry-or-nil convention this core's Server and Worker tasks use.
type Group struct {
	Services []Service
	Log      *logrus.Entry
}

// Run executes all Service instances in the group using the provided
// context. Calls to Run block until all services have completed executing
// either because the context was cancelled or any of the services reported
// an error.
func (g Group) Run(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}
	runCtx, cancelFn := context.WithCancel(ctx)
	defer cancelFn()

	var wg sync.WaitGroup
	errCh := make(chan error, len(g.Services))
	wg.Add(len(g.Services))
	for _, s := range g.Services {
		go func(s Service) {
			defer wg.Done()
			if g.Log != nil {
				g.Log.WithField("service", s.Name()).Info("service starting")
			}
			err := s.Run(runCtx)
			if err == nil {
				if g.Log != nil {
					g.Log.WithField("service", s.Name()).Info("service stopped")
				}
				return
			}
			if g.Log != nil {
				g.Log.WithError(err).WithField("service", s.Name()).Error("service failed")
			}
			errCh <- xerrors.Errorf("%s: %w", s.Name(), err)
			cancelFn()
		}(s)
	}

	// Keep running until the run context gets cancelled; then wait for
	// all spawned service go-routines to exit
	<-runCtx.Done()
	wg.Wait()

	// Collect and accumulate any reported errors.
	var err error
	close(errCh)
	for srvErr := range errCh {
		err = multierror.Append(err, srvErr)
	}
	return err
}

// Command batsim-core runs the event-driven job-execution core against a
// workload file and an external decider, following the urfave/cli
// application shape used throughout the teacher's Chapter11 services
// (Chapter11/linksrus/linkgraph/main.go).
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"
	"github.com/urfave/cli"
)

var (
	appName = "batsim-core"
	appSha  = "populated-at-link-time"
)

func main() {
	app := cli.NewApp()
	app.Name = appName
	app.Version = appSha
	app.Usage = "event-driven HPC batch-scheduling simulation core"
	app.Commands = []cli.Command{
		runCommand(),
		validateWorkloadCommand(),
	}

	if err := app.Run(os.Args); err != nil {
		logrus.WithField("err", err).Error("shutting down due to error")
		_ = os.Stderr.Sync()
		os.Exit(1)
	}
}

// watchSignals cancels cancelFn on SIGINT/SIGHUP, the way every teacher
// main.go (e.g. Chapter11/linksrus/linkgraph/main.go) shuts its services
// down.
func watchSignals(ctx context.Context, cancelFn context.CancelFunc, log *logrus.Entry) {
	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGHUP)
		select {
		case s := <-sigCh:
			log.WithField("signal", s.String()).Info("shutting down due to signal")
			cancelFn()
		case <-ctx.Done():
		}
	}()
}

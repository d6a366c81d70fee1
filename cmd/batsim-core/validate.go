package main

import (
	"github.com/batsimgo/core/job"
	"github.com/sirupsen/logrus"
	"github.com/urfave/cli"
	"golang.org/x/xerrors"
)

func validateWorkloadCommand() cli.Command {
	return cli.Command{
		Name:      "validate-workload",
		Usage:     "parse and structurally validate a workload JSON file without running it",
		ArgsUsage: "<workload.json>",
		Action:    runValidateWorkload,
	}
}

func runValidateWorkload(c *cli.Context) error {
	path := c.Args().First()
	if path == "" {
		return xerrors.Errorf("validate-workload: missing <workload.json> argument")
	}

	wf, err := loadWorkloadFile(path)
	if err != nil {
		return err
	}
	if wf.Name == "" {
		return xerrors.Errorf("validate-workload: workload file %q has no name", path)
	}

	workload := job.NewWorkload(wf.Name)
	entries, err := wf.apply(workload)
	if err != nil {
		return err
	}

	logrus.WithFields(logrus.Fields{
		"workload": wf.Name,
		"profiles": len(wf.Profiles),
		"jobs":     len(entries),
	}).Info("workload is structurally valid")
	return nil
}

package service

import (
	"context"
	"testing"
	"time"

	"golang.org/x/xerrors"
	gc "gopkg.in/check.v1"
)

func Test(t *testing.T) { gc.TestingT(t) }

var _ = gc.Suite(new(GroupTestSuite))

type GroupTestSuite struct{}

func (s *GroupTestSuite) TestGroupTerminatesWithOneError(c *gc.C) {
	grp := Group{Services: []Service{
		dummyService{id: "server"},
		dummyService{id: "metrics", err: xerrors.Errorf("address already in use")},
		dummyService{id: "submitter"},
	}}

	err := grp.Run(context.Background())
	c.Assert(err, gc.Not(gc.IsNil))
	c.Assert(err, gc.ErrorMatches, "(?ms).*metrics: address already in use.*")
}

func (s *GroupTestSuite) TestGroupTerminatesWithMultipleErrors(c *gc.C) {
	grp := Group{Services: []Service{
		dummyService{id: "server", err: xerrors.Errorf("dispatch loop failed")},
		dummyService{id: "metrics", err: xerrors.Errorf("address already in use")},
	}}

	err := grp.Run(context.Background())
	c.Assert(err, gc.ErrorMatches, "(?ms).*server: dispatch loop failed.*")
	c.Assert(err, gc.ErrorMatches, "(?ms).*metrics: address already in use.*")
}

func (s *GroupTestSuite) TestGroupTerminatesFromContext(c *gc.C) {
	grp := Group{Services: []Service{
		dummyService{id: "server"},
		dummyService{id: "metrics"},
	}}

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()
	c.Assert(grp.Run(ctx), gc.IsNil)
}

func (s *GroupTestSuite) TestGroupWithNilContextUsesBackground(c *gc.C) {
	grp := Group{Services: []Service{dummyService{id: "server", err: xerrors.Errorf("boom")}}}
	err := grp.Run(nil)
	c.Assert(err, gc.ErrorMatches, "(?ms).*server: boom.*")
}

type dummyService struct {
	id  string
	err error
}

func (s dummyService) Name() string { return s.id }

func (s dummyService) Run(ctx context.Context) error {
	if s.err != nil {
		return s.err
	}
	<-ctx.Done()
	return nil
}

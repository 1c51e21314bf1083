package pipeline_test

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"github.com/rankgate/rankgate/internal/config"
	"github.com/rankgate/rankgate/internal/domain/event"
	"github.com/rankgate/rankgate/internal/pipeline"
	"github.com/rankgate/rankgate/internal/testutil"
)

// DriverSuite exercises the Pipeline Driver's request lifecycle (limit
// normalization, exact-phrase detection, cancellation-on-close) through
// the shared pipeline fixtures rather than hand-rolled fakes per test.
type DriverSuite struct {
	testutil.BasePipelineTestSuite
	driver *pipeline.Driver
}

func TestDriverSuite(t *testing.T) {
	suite.Run(t, new(DriverSuite))
}

func (s *DriverSuite) SetupTest() {
	s.BasePipelineTestSuite.SetupTest()

	cfg := &config.Configuration{
		Pipeline: config.PipelineConfig{
			Concurrency:  4,
			BatchSize:    10,
			BatchDelay:   time.Hour,
			DefaultLimit: 5,
		},
		Authz: config.AuthzConfig{Deadline: time.Second},
	}
	fakes := s.GetFakes()
	s.driver = pipeline.New(fakes.IndexSource, fakes.Authorizer, cfg, s.GetLogger(), nil)
}

// A null/absent limit is normalized to the configured default, not zero.
func (s *DriverSuite) TestLimitNormalizedToDefault() {
	fakes := s.GetFakes()
	events := make([]event.Event, 20)
	for i := range events {
		events[i] = event.Event{ID: fmt.Sprintf("evt-%02d", i), Title: "gadget"}
		fakes.Authorizer.Allow("user-1", events[i].ID)
	}
	fakes.IndexSource.Seed(events...)

	result, err := s.driver.Search(s.GetContext(), &event.SearchRequest{Query: "gadget", UserID: "user-1"})
	s.Require().NoError(err)
	defer result.Close()

	var out []event.Event
	for {
		e, ok, err := result.Next(s.GetContext())
		s.Require().NoError(err)
		if !ok {
			break
		}
		out = append(out, e)
	}
	s.Require().Len(out, 5) // DefaultLimit, not zero
}

// A quoted query strips its quotes and is treated as exact-phrase rather
// than free-text, without changing the authorized result set.
func (s *DriverSuite) TestQuotedQueryIsExactPhrase() {
	fakes := s.GetFakes()
	fakes.IndexSource.Seed(event.Event{ID: "evt-phrase", Title: "widget pro"})
	fakes.Authorizer.Allow("user-1", "evt-phrase")

	req := &event.SearchRequest{Query: `"widget pro"`, UserID: "user-1", Limit: 10}
	query, mode := req.NormalizedQuery()
	s.Require().Equal("widget pro", query)
	s.Require().Equal(event.QueryModeExactPhrase, mode)

	result, err := s.driver.Search(s.GetContext(), req)
	s.Require().NoError(err)
	defer result.Close()

	e, ok, err := result.Next(s.GetContext())
	s.Require().NoError(err)
	s.Require().True(ok)
	s.Require().Equal("evt-phrase", e.ID)
}

// Reaching the limit releases the underlying index handle on Close even
// though the source was never exhausted.
func (s *DriverSuite) TestCloseReleasesHandleBeforeExhaustion() {
	fakes := s.GetFakes()
	events := make([]event.Event, 50)
	for i := range events {
		events[i] = event.Event{ID: fmt.Sprintf("evt-%03d", i), Title: "gizmo"}
		fakes.Authorizer.Allow("user-1", events[i].ID)
	}
	fakes.IndexSource.Seed(events...)

	result, err := s.driver.Search(s.GetContext(), &event.SearchRequest{Query: "gizmo", UserID: "user-1", Limit: 3})
	s.Require().NoError(err)

	count := 0
	for {
		_, ok, err := result.Next(s.GetContext())
		s.Require().NoError(err)
		if !ok {
			break
		}
		count++
	}
	s.Require().Equal(3, count)
	s.Require().NoError(result.Close())
}

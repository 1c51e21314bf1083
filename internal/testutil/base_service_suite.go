package testutil

import (
	"context"
	"time"

	"github.com/stretchr/testify/suite"

	"github.com/rankgate/rankgate/internal/config"
	"github.com/rankgate/rankgate/internal/logger"
	"github.com/rankgate/rankgate/internal/types"
)

// PipelineFakes holds the in-memory fakes substituted for the real Index
// Source and Authorizer Client during tests.
type PipelineFakes struct {
	IndexSource *InMemoryIndexSource
	Authorizer  *InMemoryAuthorizer
}

// BasePipelineTestSuite provides common fixtures for the pipeline's test
// suites: a logger, a context, and fresh fakes per test.
type BasePipelineTestSuite struct {
	suite.Suite
	ctx    context.Context
	fakes  PipelineFakes
	logger *logger.Logger
	now    time.Time
}

func (s *BasePipelineTestSuite) SetupSuite() {
	cfg := &config.Configuration{Logging: config.LoggingConfig{Level: types.LogLevelDebug}}
	var err error
	s.logger, err = logger.NewLogger(cfg)
	if err != nil {
		s.T().Fatalf("failed to create logger: %v", err)
	}
}

func (s *BasePipelineTestSuite) SetupTest() {
	s.ctx = SetupContext()
	s.fakes = PipelineFakes{
		IndexSource: NewInMemoryIndexSource(20),
		Authorizer:  NewInMemoryAuthorizer(),
	}
	s.now = time.Now().UTC()
}

// GetContext returns the test context.
func (s *BasePipelineTestSuite) GetContext() context.Context { return s.ctx }

// GetFakes returns the test's in-memory Index Source and Authorizer.
func (s *BasePipelineTestSuite) GetFakes() PipelineFakes { return s.fakes }

// GetLogger returns the test logger.
func (s *BasePipelineTestSuite) GetLogger() *logger.Logger { return s.logger }

// GetNow returns the current test time.
func (s *BasePipelineTestSuite) GetNow() time.Time { return s.now.UTC() }

// GetUUID returns a new ULID string from types.GenerateUUID.
func (s *BasePipelineTestSuite) GetUUID() string { return types.GenerateUUID() }

package test

import (
	"context"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/celestiaorg/shipyard/internal/app"
	"github.com/celestiaorg/shipyard/internal/config"
	"github.com/celestiaorg/shipyard/internal/runner"
	"github.com/celestiaorg/shipyard/pkg/api/v1/client"
)

// DefaultTestTimeout is the default timeout for test suites.
const DefaultTestTimeout = 30 * time.Second

// testClientTimeout is the timeout for test API client requests
const testClientTimeout = 5 * time.Second

// Option represents a configuration option for the test suite.
type Option func(*Suite)

// WithConfig returns an option that edits the application configuration
// before the application is built.
func WithConfig(edit func(*config.Config)) Option {
	return func(s *Suite) {
		edit(&s.Config)
	}
}

// WithDB returns an option that builds the application on an existing database.
// The caller keeps ownership of the connection.
func WithDB(database *gorm.DB) Option {
	return func(s *Suite) {
		s.DB = database
	}
}

// Suite encapsulates all components needed for integration testing.
// It provides a complete test setup with:
//   - File-based SQLite database
//   - Real engine and services
//   - Real API server
//   - Real API clients
type Suite struct {
	t *testing.T

	Config config.Config

	// Server components
	App     *app.App
	Server  *httptest.Server
	Runner  *GateRunner
	Metrics *prometheus.Registry

	// Database components
	DB *gorm.DB

	// Context management
	ctx        context.Context
	cancelFunc context.CancelFunc

	cleanup func()
}

// NewSuite creates a new test suite with the given options.
// The suite must be cleaned up after use by calling Cleanup.
func NewSuite(t *testing.T, opts ...Option) *Suite {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), DefaultTestTimeout)
	s := &Suite{
		t:          t,
		ctx:        ctx,
		cancelFunc: cancel,
		Config: config.Config{
			HTTPAddr:        config.DefaultHTTPAddr,
			LogLevel:        config.DefaultLogLevel,
			ShutdownTimeout: 5 * time.Second,
			MetricsEnabled:  true,
			AuthEnabled:     true,
		},
	}
	s.cleanup = cancel

	for _, opt := range opts {
		opt(s)
	}

	if s.DB == nil {
		database, tmpDir, err := NewFileBasedTestDB()
		s.Require().NoError(err, "Failed to create file-based database")
		s.DB = database
		s.addCleanup(func() { CleanupTestDB(database, tmpDir) })
	}

	s.Runner = NewGateRunner(runner.NewDryRun(s.Config.RunnerStepDelay))
	s.Metrics = prometheus.NewRegistry()

	shipyard, err := app.New(app.Options{
		Config:   s.Config,
		DB:       s.DB,
		Runner:   s.Runner,
		Registry: s.Metrics,
	})
	s.Require().NoError(err, "Failed to build application")
	s.App = shipyard
	s.Require().NoError(shipyard.Start(ctx), "Failed to start application")

	// Create test server using adaptor to convert Fiber app to http.Handler
	s.Server = httptest.NewServer(adaptor.FiberApp(shipyard.Fiber))
	s.addCleanup(func() {
		s.Server.Close()
		s.Runner.Release()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.Config.ShutdownTimeout)
		defer cancel()
		_ = s.App.Shutdown(shutdownCtx)
	})
	return s
}

// addCleanup registers fn to run before the cleanups registered earlier
func (s *Suite) addCleanup(fn func()) {
	previous := s.cleanup
	s.cleanup = func() {
		fn()
		if previous != nil {
			previous()
		}
	}
}

// Cleanup tears down the test suite, releasing all resources.
// This should be deferred immediately after creating the suite.
func (s *Suite) Cleanup() {
	if s.cleanup != nil {
		s.cleanup()
		s.cleanup = nil
	}
}

// Client returns an API client acting as actor with role
func (s *Suite) Client(actor, role string) client.Client {
	c, err := client.NewClient(&client.Options{
		BaseURL: s.Server.URL,
		Timeout: testClientTimeout,
		Actor:   actor,
		Role:    role,
	})
	s.Require().NoError(err, "Failed to create API client")
	return c
}

// Drain waits until every dispatched execution has finished
func (s *Suite) Drain() {
	ctx, cancel := context.WithTimeout(s.ctx, 10*time.Second)
	defer cancel()
	s.Require().NoError(s.App.Dispatcher.Wait(ctx), "executions did not finish")
}

// Context returns the suite's context, which is automatically
// canceled when the suite is cleaned up.
func (s *Suite) Context() context.Context {
	return s.ctx
}

// T returns the testing.T instance for this suite
func (s *Suite) T() *testing.T {
	return s.t
}

// Require returns a require.Assertions instance for this suite.
func (s *Suite) Require() *require.Assertions {
	return require.New(s.t)
}

// Retry retries a function until it succeeds or the number of retries is reached.
func (s *Suite) Retry(fn func() error, retries int, interval time.Duration) (err error) {
	for i := 0; i < retries; i++ {
		err = fn()
		if err == nil {
			return nil
		}
		time.Sleep(interval)
	}
	return
}
